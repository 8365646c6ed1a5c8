package store

import (
	"context"
	"errors"
	"time"

	"github.com/agencycal/calib/pkg/agency"
)

var (
	// ErrNotFound is returned when the requested user or agency does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned when a unique key (e.g. user email) is already taken.
	ErrDuplicate = errors.New("already exists")

	// ErrRoleExists is returned by CreateUserIfNoRole when the guarded role
	// already has a user.
	ErrRoleExists = errors.New("a user with this role already exists")
)

// User is a registered account.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Store persists users and agencies.
type Store interface {
	CreateUser(ctx context.Context, u *User) error
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	// CreateUserIfNoRole creates u only if no user has role yet, atomically.
	CreateUserIfNoRole(ctx context.Context, u *User, role string) error

	ListAgencies(ctx context.Context) ([]agency.Agency, error)
	GetAgency(ctx context.Context, id string) (*agency.Agency, error)
	CreateAgency(ctx context.Context, a *agency.Agency) error
	UpdateAgency(ctx context.Context, id string, p agency.Patch) (*agency.Agency, error)
	// AppendService records a completed visit. The calibration date, report
	// number and report detail are appended; existing history is kept as is.
	AppendService(ctx context.Context, id string, r agency.ServiceReport) (*agency.Agency, error)
	DeleteAgency(ctx context.Context, id string) error

	Ping(ctx context.Context) error
	Close() error
}
