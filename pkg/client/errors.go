package client

import "github.com/agencycal/calib/internal/client"

var (
	// ErrServerNotRunning is returned when the server cannot be reached.
	ErrServerNotRunning = client.ErrServerNotRunning

	// ErrUnauthorized is returned when the session is missing, expired or the
	// credentials are wrong.
	ErrUnauthorized = client.ErrUnauthorized

	// ErrForbidden is returned when the session's role may not perform the action.
	ErrForbidden = client.ErrForbidden

	// ErrNotFound is returned when 404 is returned from the server
	ErrNotFound = client.ErrNotFound
)

// StatusError carries the HTTP status and server message of a failed call.
type StatusError = client.StatusError
