// Package client is the Go API of the calib server.
package client

import (
	"github.com/agencycal/calib/internal/client"
)

// Client calls the calib server on behalf of one session.
type Client struct {
	*client.Client
}

// NewClient returns a client for serverURL. token is the bearer credential of
// the session; pass "" for anonymous calls such as login.
func NewClient(serverURL, token string) *Client {
	return &Client{Client: client.NewClient(serverURL, token)}
}
