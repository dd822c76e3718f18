package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"finrag/internal/pkg/jwtutil"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidCredential = errors.New("invalid admin key")
	ErrAuthDisabled      = errors.New("admin key is not configured")
)

// AuthService exchanges the operator admin key for a short-lived admin JWT
// used by the ingestion endpoints.
type AuthService struct {
	adminKeyHash  string
	jwtSecret     string
	jwtExpiration time.Duration
}

type TokenInput struct {
	Subject  string
	AdminKey string
}

type AuthResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func NewAuthService(adminKeyHash, jwtSecret string, jwtExpiration time.Duration) *AuthService {
	if jwtExpiration <= 0 {
		jwtExpiration = 2 * time.Hour
	}
	return &AuthService{
		adminKeyHash:  strings.TrimSpace(adminKeyHash),
		jwtSecret:     jwtSecret,
		jwtExpiration: jwtExpiration,
	}
}

func (s *AuthService) IssueToken(input TokenInput) (*AuthResult, error) {
	subject := strings.TrimSpace(input.Subject)
	key := strings.TrimSpace(input.AdminKey)
	if subject == "" || key == "" {
		return nil, ErrInvalidInput
	}
	if s.adminKeyHash == "" {
		return nil, ErrAuthDisabled
	}
	if err := bcrypt.CompareHashAndPassword([]byte(s.adminKeyHash), []byte(key)); err != nil {
		return nil, ErrInvalidCredential
	}
	return s.Mint(subject)
}

// Mint signs an admin token without checking the admin key. Used by the CLI,
// which already has the JWT secret.
func (s *AuthService) Mint(subject string) (*AuthResult, error) {
	if strings.TrimSpace(subject) == "" {
		return nil, ErrInvalidInput
	}
	token, err := jwtutil.GenerateToken(s.jwtSecret, subject, jwtutil.RoleAdmin, s.jwtExpiration)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, ExpiresAt: time.Now().Add(s.jwtExpiration).UTC()}, nil
}

// HashAdminKey returns the bcrypt hash to put in auth.admin_key_hash.
func HashAdminKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if len(key) < 16 {
		return "", fmt.Errorf("%w: admin key must be at least 16 characters", ErrInvalidInput)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash admin key failed: %w", err)
	}
	return string(hash), nil
}
