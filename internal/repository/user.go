package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/procur/school-events/internal/model"
)

// EmailVerificationToken is a one-shot token delivered via an emailed
// link; VerifiedAt is nil while unspent.
type EmailVerificationToken struct {
	ID         string
	UserID     string
	Token      string
	CreatedAt  time.Time
	VerifiedAt *time.Time
}

// PasswordResetToken is a one-shot token for resetting a password.
type PasswordResetToken struct {
	ID        string
	UserID    string
	Token     string
	CreatedAt time.Time
	UsedAt    *time.Time
}

// UserRepository handles persistence for user accounts and their
// email/reset tokens.
type UserRepository struct {
	db
}

// NewUserRepository constructs a UserRepository.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db{pool: pool}}
}

// WithTx runs fn in a single transaction.
func (r *UserRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

const userColumns = `id, username, email, password_hash, role, school, created_at`

func scanUser(row pgx.Row) (model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Role, &u.School, &u.CreatedAt)
	return u, err
}

// Create inserts a new user, mapping unique violations to
// ErrUsernameTaken / ErrEmailTaken.
func (r *UserRepository) Create(ctx context.Context, u model.User) error {
	_, err := r.exec(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		u.ID, u.Username, u.Email, u.PasswordHash, u.Role, u.School, u.CreatedAt,
	)
	if err != nil {
		if pgErr := uniqueViolation(err); pgErr != nil {
			if strings.Contains(pgErr.ConstraintName, "email") {
				return ErrEmailTaken
			}
			return ErrUsernameTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetByID returns a single user or ErrNotFound.
func (r *UserRepository) GetByID(ctx context.Context, id string) (model.User, error) {
	u, err := scanUser(r.queryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, ErrNotFound
		}
		return model.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// GetByUsername returns a single user or ErrNotFound.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (model.User, error) {
	u, err := scanUser(r.queryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = $1`, username))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, ErrNotFound
		}
		return model.User{}, fmt.Errorf("get user by username: %w", err)
	}
	return u, nil
}

// FindByLogin looks a user up by username or email, for the forgot-password
// flow.
func (r *UserRepository) FindByLogin(ctx context.Context, usernameOrEmail string) (model.User, error) {
	u, err := scanUser(r.queryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = $1 OR email = $1`,
		usernameOrEmail))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, ErrNotFound
		}
		return model.User{}, fmt.Errorf("find user by login: %w", err)
	}
	return u, nil
}

// List returns all users ordered by creation time.
func (r *UserRepository) List(ctx context.Context) ([]model.User, error) {
	rows, err := r.query(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// UpdateRole sets a user's role.
func (r *UserRepository) UpdateRole(ctx context.Context, id string, role model.Role) error {
	tag, err := r.exec(ctx, `UPDATE users SET role = $2 WHERE id = $1`, id, role)
	if err != nil {
		return fmt.Errorf("update role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdatePassword replaces a user's password hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	tag, err := r.exec(ctx, `UPDATE users SET password_hash = $2 WHERE id = $1`, id, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateEmailToken records a fresh email-verification token.
func (r *UserRepository) CreateEmailToken(ctx context.Context, userID, token string, now time.Time) error {
	_, err := r.exec(ctx,
		`INSERT INTO email_verification_tokens (id, user_id, token, created_at)
		 VALUES ($1, $2, $3, $4)`,
		uuid.New().String(), userID, token, now,
	)
	if err != nil {
		return fmt.Errorf("insert email token: %w", err)
	}
	return nil
}

// FindEmailToken returns the token record or ErrNotFound.
func (r *UserRepository) FindEmailToken(ctx context.Context, token string) (EmailVerificationToken, error) {
	var t EmailVerificationToken
	err := r.queryRow(ctx,
		`SELECT id, user_id, token, created_at, verified_at
		 FROM email_verification_tokens WHERE token = $1`,
		token,
	).Scan(&t.ID, &t.UserID, &t.Token, &t.CreatedAt, &t.VerifiedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return EmailVerificationToken{}, ErrNotFound
		}
		return EmailVerificationToken{}, fmt.Errorf("find email token: %w", err)
	}
	return t, nil
}

// FindPendingEmailToken returns the user's unspent verification token, or
// ErrNotFound when none exists.
func (r *UserRepository) FindPendingEmailToken(ctx context.Context, userID string) (EmailVerificationToken, error) {
	var t EmailVerificationToken
	err := r.queryRow(ctx,
		`SELECT id, user_id, token, created_at, verified_at
		 FROM email_verification_tokens
		 WHERE user_id = $1 AND verified_at IS NULL
		 ORDER BY created_at DESC LIMIT 1`,
		userID,
	).Scan(&t.ID, &t.UserID, &t.Token, &t.CreatedAt, &t.VerifiedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return EmailVerificationToken{}, ErrNotFound
		}
		return EmailVerificationToken{}, fmt.Errorf("find pending email token: %w", err)
	}
	return t, nil
}

// MarkEmailVerified stamps the token as spent.
func (r *UserRepository) MarkEmailVerified(ctx context.Context, tokenID string, when time.Time) error {
	_, err := r.exec(ctx,
		`UPDATE email_verification_tokens SET verified_at = $2 WHERE id = $1`,
		tokenID, when,
	)
	if err != nil {
		return fmt.Errorf("mark email verified: %w", err)
	}
	return nil
}

// CreateResetToken records a fresh password-reset token.
func (r *UserRepository) CreateResetToken(ctx context.Context, userID, token string, now time.Time) error {
	_, err := r.exec(ctx,
		`INSERT INTO password_reset_tokens (id, user_id, token, created_at)
		 VALUES ($1, $2, $3, $4)`,
		uuid.New().String(), userID, token, now,
	)
	if err != nil {
		return fmt.Errorf("insert reset token: %w", err)
	}
	return nil
}

// FindResetToken returns the token record or ErrNotFound.
func (r *UserRepository) FindResetToken(ctx context.Context, token string) (PasswordResetToken, error) {
	var t PasswordResetToken
	err := r.queryRow(ctx,
		`SELECT id, user_id, token, created_at, used_at
		 FROM password_reset_tokens WHERE token = $1`,
		token,
	).Scan(&t.ID, &t.UserID, &t.Token, &t.CreatedAt, &t.UsedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PasswordResetToken{}, ErrNotFound
		}
		return PasswordResetToken{}, fmt.Errorf("find reset token: %w", err)
	}
	return t, nil
}

// MarkResetUsed stamps the token as spent.
func (r *UserRepository) MarkResetUsed(ctx context.Context, tokenID string, when time.Time) error {
	_, err := r.exec(ctx,
		`UPDATE password_reset_tokens SET used_at = $2 WHERE id = $1`,
		tokenID, when,
	)
	if err != nil {
		return fmt.Errorf("mark reset used: %w", err)
	}
	return nil
}
