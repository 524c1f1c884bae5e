package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/procur/school-events/internal/clock"
	"github.com/procur/school-events/internal/config"
	"github.com/procur/school-events/internal/model"
	"github.com/procur/school-events/internal/repository"
)

// UserStore is the persistence surface for accounts and one-shot tokens.
// Implemented by repository.UserRepository.
type UserStore interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	Create(ctx context.Context, u model.User) error
	GetByID(ctx context.Context, id string) (model.User, error)
	GetByUsername(ctx context.Context, username string) (model.User, error)
	FindByLogin(ctx context.Context, usernameOrEmail string) (model.User, error)
	List(ctx context.Context) ([]model.User, error)
	UpdateRole(ctx context.Context, id string, role model.Role) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	CreateEmailToken(ctx context.Context, userID, token string, now time.Time) error
	FindEmailToken(ctx context.Context, token string) (repository.EmailVerificationToken, error)
	FindPendingEmailToken(ctx context.Context, userID string) (repository.EmailVerificationToken, error)
	MarkEmailVerified(ctx context.Context, tokenID string, when time.Time) error
	CreateResetToken(ctx context.Context, userID, token string, now time.Time) error
	FindResetToken(ctx context.Context, token string) (repository.PasswordResetToken, error)
	MarkResetUsed(ctx context.Context, tokenID string, when time.Time) error
}

// AuthService owns accounts, sessions and the email-link token flows.
// Verification and reset links are delivered by logging them; wiring a
// real mailer sits outside this service's boundary.
type AuthService struct {
	users   UserStore
	sink    Sink
	clock   clock.Clock
	log     *zap.Logger
	cfg     config.Auth
	baseURL string
}

// NewAuthService constructs an AuthService.
func NewAuthService(users UserStore, sink Sink, clk clock.Clock, log *zap.Logger, cfg config.Auth, baseURL string) *AuthService {
	return &AuthService{users: users, sink: sink, clock: clk, log: log, cfg: cfg, baseURL: baseURL}
}

// Signup creates a participant account, mints an email-verification
// token and logs the verification link.
func (s *AuthService) Signup(ctx context.Context, req model.SignupRequest) (model.User, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	req.School = strings.TrimSpace(req.School)

	if req.Username == "" || req.Email == "" || req.Password == "" || req.School == "" {
		return model.User{}, fmt.Errorf("%w: all fields are required", ErrValidation)
	}
	if !isValidEmail(req.Email) {
		return model.User{}, fmt.Errorf("%w: email is not a valid address", ErrValidation)
	}
	if len(req.Password) < 6 {
		return model.User{}, fmt.Errorf("%w: password must be at least 6 characters", ErrValidation)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cfg.BcryptCost)
	if err != nil {
		return model.User{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.clock.Now()
	user := model.User{
		ID:           uuid.New().String(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hash),
		Role:         model.RoleParticipant,
		School:       req.School,
		CreatedAt:    now,
	}
	verifyToken := uuid.New().String()

	err = s.users.WithTx(ctx, func(ctx context.Context) error {
		if err := s.users.Create(ctx, user); err != nil {
			return err
		}
		if err := s.users.CreateEmailToken(ctx, user.ID, verifyToken, now); err != nil {
			return err
		}
		return s.sink.CreateNotification(ctx, model.Notification{
			ID:        uuid.New().String(),
			UserID:    user.ID,
			Title:     "Verify your email",
			Body:      "Please verify your email to unlock full features.",
			CreatedAt: now,
		})
	})
	if err != nil {
		return model.User{}, err
	}

	s.log.Info("email verification link",
		zap.String("user_id", user.ID),
		zap.String("url", s.baseURL+"/verify/"+verifyToken),
	)
	return user, nil
}

// Login verifies credentials and returns a signed session token.
func (s *AuthService) Login(ctx context.Context, req model.LoginRequest) (string, model.User, error) {
	user, err := s.users.GetByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", model.User{}, repository.ErrInvalidCredentials
		}
		return "", model.User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		return "", model.User{}, repository.ErrInvalidCredentials
	}

	token, err := s.issueToken(user)
	if err != nil {
		return "", model.User{}, err
	}
	return token, user, nil
}

func (s *AuthService) issueToken(user model.User) (string, error) {
	now := s.clock.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"userId": user.ID,
		"role":   string(user.Role),
		"iat":    now.Unix(),
		"exp":    now.Add(s.cfg.TokenTTL).Unix(),
	})
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// UserByToken parses a session token and loads the current account, so a
// role change takes effect on the next request rather than at token
// expiry.
func (s *AuthService) UserByToken(ctx context.Context, tokenString string) (model.User, error) {
	parsed, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return []byte(s.cfg.JWTSecret), nil
	}, jwt.WithTimeFunc(s.clock.Now))
	if err != nil || !parsed.Valid {
		return model.User{}, repository.ErrInvalidCredentials
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return model.User{}, repository.ErrInvalidCredentials
	}
	userID, _ := claims["userId"].(string)
	if userID == "" {
		return model.User{}, repository.ErrInvalidCredentials
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.User{}, repository.ErrInvalidCredentials
		}
		return model.User{}, err
	}
	return user, nil
}

// VerifyEmail spends a verification token, notifying and auditing in the
// same transaction.
func (s *AuthService) VerifyEmail(ctx context.Context, token string) error {
	rec, err := s.users.FindEmailToken(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return repository.ErrInvalidToken
		}
		return err
	}
	if rec.VerifiedAt != nil {
		return repository.ErrInvalidToken
	}

	now := s.clock.Now()
	return s.users.WithTx(ctx, func(ctx context.Context) error {
		if err := s.users.MarkEmailVerified(ctx, rec.ID, now); err != nil {
			return err
		}
		if err := s.sink.CreateNotification(ctx, model.Notification{
			ID:        uuid.New().String(),
			UserID:    rec.UserID,
			Title:     "Email verified",
			Body:      "Thanks for verifying your email.",
			CreatedAt: now,
		}); err != nil {
			return err
		}
		return s.sink.CreateAuditLog(ctx, model.AuditLog{
			ID:         uuid.New().String(),
			ActorID:    rec.UserID,
			Action:     "verify_email",
			ObjectType: "user",
			ObjectID:   rec.UserID,
			CreatedAt:  now,
		})
	})
}

// RequestVerification reuses the caller's pending verification token or
// mints a new one, then logs the link.
func (s *AuthService) RequestVerification(ctx context.Context, actor model.User) error {
	token := ""
	rec, err := s.users.FindPendingEmailToken(ctx, actor.ID)
	switch {
	case err == nil:
		token = rec.Token
	case errors.Is(err, repository.ErrNotFound):
		token = uuid.New().String()
		if err := s.users.CreateEmailToken(ctx, actor.ID, token, s.clock.Now()); err != nil {
			return err
		}
	default:
		return err
	}

	s.log.Info("email verification link",
		zap.String("user_id", actor.ID),
		zap.String("url", s.baseURL+"/verify/"+token),
	)
	return nil
}

// ForgotPassword mints a reset token when the account exists and logs the
// reset link. It never reveals whether the account exists.
func (s *AuthService) ForgotPassword(ctx context.Context, usernameOrEmail string) error {
	user, err := s.users.FindByLogin(ctx, strings.TrimSpace(usernameOrEmail))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return err
	}

	token := uuid.New().String()
	if err := s.users.CreateResetToken(ctx, user.ID, token, s.clock.Now()); err != nil {
		return err
	}
	s.log.Info("password reset link",
		zap.String("user_id", user.ID),
		zap.String("url", s.baseURL+"/password/reset/"+token),
	)
	return nil
}

// ResetPassword spends a reset token and replaces the password.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	rec, err := s.users.FindResetToken(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return repository.ErrInvalidToken
		}
		return err
	}
	if rec.UsedAt != nil {
		return repository.ErrInvalidToken
	}
	if len(newPassword) < 6 {
		return fmt.Errorf("%w: password must be at least 6 characters", ErrValidation)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	now := s.clock.Now()
	return s.users.WithTx(ctx, func(ctx context.Context) error {
		if err := s.users.UpdatePassword(ctx, rec.UserID, string(hash)); err != nil {
			return err
		}
		if err := s.users.MarkResetUsed(ctx, rec.ID, now); err != nil {
			return err
		}
		return s.sink.CreateAuditLog(ctx, model.AuditLog{
			ID:         uuid.New().String(),
			ActorID:    rec.UserID,
			Action:     "password_reset",
			ObjectType: "user",
			ObjectID:   rec.UserID,
			CreatedAt:  now,
		})
	})
}

// ListUsers returns every account. Admin only.
func (s *AuthService) ListUsers(ctx context.Context, actor model.User) ([]model.User, error) {
	if actor.Role != model.RoleAdmin {
		return nil, repository.ErrForbidden
	}
	return s.users.List(ctx)
}

// ToggleRole cycles a user through admin → participant → coordinator →
// admin. Admin only.
func (s *AuthService) ToggleRole(ctx context.Context, actor model.User, userID string) (model.Role, error) {
	if actor.Role != model.RoleAdmin {
		return "", repository.ErrForbidden
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}

	var next model.Role
	switch user.Role {
	case model.RoleAdmin:
		next = model.RoleParticipant
	case model.RoleParticipant:
		next = model.RoleCoordinator
	default:
		next = model.RoleAdmin
	}

	now := s.clock.Now()
	err = s.users.WithTx(ctx, func(ctx context.Context) error {
		if err := s.users.UpdateRole(ctx, user.ID, next); err != nil {
			return err
		}
		return s.sink.CreateAuditLog(ctx, model.AuditLog{
			ID:         uuid.New().String(),
			ActorID:    actor.ID,
			Action:     "toggle_user_role",
			ObjectType: "user",
			ObjectID:   user.ID,
			Snapshot:   "role=" + string(next),
			CreatedAt:  now,
		})
	})
	if err != nil {
		return "", err
	}
	return next, nil
}

// isValidEmail does a basic structural check (no external deps).
func isValidEmail(email string) bool {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return false
	}
	return len(parts[0]) > 0 && strings.Contains(parts[1], ".")
}
