package types

import "github.com/agencycal/calib/pkg/auth"

// RegisterRequest creates an account. Role defaults to staff.
type RegisterRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,max=72"`
	Role     string `json:"role,omitempty"`
}

// LoginRequest exchanges credentials for a bearer token. When Role is set it
// must match the account's role.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	Role     string `json:"role,omitempty"`
}

type LoginResponse struct {
	AccessToken string       `json:"accessToken"`
	ExpiresAt   int64        `json:"expiresAt"`
	User        auth.Session `json:"user"`
}

type VersionResponse struct {
	Version   string `json:"version"`
	GitCommit string `json:"gitCommit"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}
