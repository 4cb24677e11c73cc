// Package auth guards the operator console with a single bcrypt-hashed
// account and HS256 bearer tokens.
package auth

import (
	"errors"
	"os"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAuthDisabled       = errors.New("authentication is disabled")
)

// Config configures the authenticator
type Config struct {
	Enabled   bool
	Username  string
	Password  string // plaintext or a bcrypt hash
	JWTSecret string // random per process when empty
	JWTExpiry time.Duration
}

// ConfigFromEnv reads AUTH_ENABLED, AUTH_USERNAME, AUTH_PASSWORD, JWT_SECRET and JWT_EXPIRY
func ConfigFromEnv() Config {
	cfg := Config{
		Enabled:   os.Getenv("AUTH_ENABLED") == "true",
		Username:  os.Getenv("AUTH_USERNAME"),
		Password:  os.Getenv("AUTH_PASSWORD"),
		JWTSecret: os.Getenv("JWT_SECRET"),
	}
	if exp := os.Getenv("JWT_EXPIRY"); exp != "" {
		if d, err := time.ParseDuration(exp); err == nil {
			cfg.JWTExpiry = d
		}
	}
	return cfg
}

// Authenticator handles operator authentication
type Authenticator struct {
	enabled      bool
	username     string
	passwordHash []byte
	jwtManager   *JWTManager
}

// NewAuthenticator creates an authenticator. A plaintext password is hashed once here.
func NewAuthenticator(cfg Config) (*Authenticator, error) {
	username := cfg.Username
	if username == "" {
		username = "operator"
	}

	var passwordHash []byte
	if cfg.Enabled {
		if cfg.Password == "" {
			return nil, errors.New("auth enabled without a password")
		}
		if isBcryptHash(cfg.Password) {
			passwordHash = []byte(cfg.Password)
		} else {
			hash, err := bcrypt.GenerateFromPassword([]byte(cfg.Password), bcrypt.DefaultCost)
			if err != nil {
				return nil, err
			}
			passwordHash = hash
		}
	}

	jm, err := NewJWTManager(cfg.JWTSecret, cfg.JWTExpiry)
	if err != nil {
		return nil, err
	}

	return &Authenticator{
		enabled:      cfg.Enabled,
		username:     username,
		passwordHash: passwordHash,
		jwtManager:   jm,
	}, nil
}

func isBcryptHash(s string) bool {
	return len(s) == 60 && strings.HasPrefix(s, "$2")
}

// IsEnabled returns whether authentication is enabled
func (a *Authenticator) IsEnabled() bool {
	return a.enabled
}

// Authenticate validates credentials and returns a signed token and its expiry
func (a *Authenticator) Authenticate(username, password string) (string, time.Time, error) {
	if !a.enabled {
		return "", time.Time{}, ErrAuthDisabled
	}

	if username != a.username {
		return "", time.Time{}, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)); err != nil {
		return "", time.Time{}, ErrInvalidCredentials
	}

	return a.jwtManager.GenerateToken(username)
}

// ValidateToken validates a bearer token
func (a *Authenticator) ValidateToken(token string) (*Claims, error) {
	return a.jwtManager.ValidateToken(token)
}

// HashPassword creates a bcrypt hash of a password
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
