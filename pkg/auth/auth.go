// Package auth handles password hashing, roles and bearer tokens.
package auth

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials is returned when the email, password or role
	// does not match a registered user.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidToken is returned when a bearer token is malformed, expired
	// or signed with another secret.
	ErrInvalidToken = errors.New("invalid token")
	// ErrPasswordTooLong is returned for passwords over 72 bytes, the most
	// bcrypt will hash.
	ErrPasswordTooLong = errors.New("password must be at most 72 bytes")
)

type Role string

const (
	RoleAdmin Role = "admin"
	RoleStaff Role = "staff"
)

func (r Role) String() string {
	return string(r)
}

// ParseRole accepts "admin" or "staff" in any case.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleStaff:
		return RoleStaff, nil
	default:
		return "", fmt.Errorf("unknown role %q, expected %s or %s", s, RoleAdmin, RoleStaff)
	}
}

// Session identifies the caller of an authenticated request.
type Session struct {
	UserID string `json:"id" yaml:"id"`
	Email  string `json:"email" yaml:"email"`
	Name   string `json:"name" yaml:"name"`
	Role   Role   `json:"role" yaml:"role"`
}

func (s Session) IsAdmin() bool {
	return s.Role == RoleAdmin
}

func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", ErrPasswordTooLong
	}
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
