package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrPasswordNotConfigured = errors.New("access password not configured")
	ErrInvalidPassword       = errors.New("invalid access password")
)

// PasswordVerifier checks the dashboard access password.
// A bcrypt hash takes precedence over a plain password.
type PasswordVerifier struct {
	plain string
	hash  []byte
}

func NewPasswordVerifier(cfg Config) *PasswordVerifier {
	v := &PasswordVerifier{plain: cfg.AccessPassword}
	if cfg.AccessPasswordHash != "" {
		v.hash = []byte(cfg.AccessPasswordHash)
	}
	return v
}

// Configured reports whether any password is set. Without one every check fails.
func (v *PasswordVerifier) Configured() bool {
	return v != nil && (len(v.hash) > 0 || v.plain != "")
}

func (v *PasswordVerifier) Verify(password string) error {
	if !v.Configured() {
		return ErrPasswordNotConfigured
	}
	if password == "" {
		return ErrInvalidPassword
	}

	if len(v.hash) > 0 {
		if err := bcrypt.CompareHashAndPassword(v.hash, []byte(password)); err != nil {
			return ErrInvalidPassword
		}
		return nil
	}

	if subtle.ConstantTimeCompare([]byte(v.plain), []byte(password)) != 1 {
		return ErrInvalidPassword
	}
	return nil
}

// HashPassword produces a value suitable for ACCESS_PASSWORD_HASH.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password is required")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hashed), nil
}
