// Package config loads service configuration from an optional YAML file
// overlaid with environment variables.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config holds everything the server needs at startup.
type Config struct {
	Port    string `yaml:"port" validate:"required"`
	BaseURL string `yaml:"base_url" validate:"required,url"`

	Database Database `yaml:"database"`
	Auth     Auth     `yaml:"auth"`

	UploadsDir string `yaml:"uploads_dir" validate:"required"`
}

// Database holds PostgreSQL connection settings.
type Database struct {
	Host     string `yaml:"host" validate:"required"`
	Port     string `yaml:"port" validate:"required"`
	User     string `yaml:"user" validate:"required"`
	Password string `yaml:"password"`
	Name     string `yaml:"name" validate:"required"`
	SSLMode  string `yaml:"sslmode" validate:"required"`
}

// Auth holds session-token and password-hashing settings.
type Auth struct {
	JWTSecret  string        `yaml:"jwt_secret" validate:"required,min=16"`
	TokenTTL   time.Duration `yaml:"token_ttl" validate:"required"`
	BcryptCost int           `yaml:"bcrypt_cost" validate:"min=4,max=31"`
}

// DSN builds a libpq-compatible connection string.
func (d Database) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

func defaults() Config {
	return Config{
		Port:    "8080",
		BaseURL: "http://localhost:8080",
		Database: Database{
			Host:    "localhost",
			Port:    "5432",
			User:    "postgres",
			Name:    "schoolevents",
			SSLMode: "disable",
		},
		Auth: Auth{
			TokenTTL:   2 * time.Hour,
			BcryptCost: 12,
		},
		UploadsDir: "uploads",
	}
}

// Load reads the config file at path (skipped when path is empty or the
// file does not exist), applies environment overrides and validates the
// result.
func Load(path string) (Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	applyEnv(&cfg)

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setFromEnv(&cfg.Port, "PORT")
	setFromEnv(&cfg.BaseURL, "BASE_URL")
	setFromEnv(&cfg.Database.Host, "DB_HOST")
	setFromEnv(&cfg.Database.Port, "DB_PORT")
	setFromEnv(&cfg.Database.User, "DB_USER")
	setFromEnv(&cfg.Database.Password, "DB_PASSWORD")
	setFromEnv(&cfg.Database.Name, "DB_NAME")
	setFromEnv(&cfg.Database.SSLMode, "DB_SSLMODE")
	setFromEnv(&cfg.Auth.JWTSecret, "JWT_SECRET")
	setFromEnv(&cfg.UploadsDir, "UPLOADS_DIR")
	if v := os.Getenv("TOKEN_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Auth.TokenTTL = d
		}
	}
}

func setFromEnv(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
