// Package session stores the CLI's login on disk.
package session

import (
	"encoding/json"
	"os"
	"path/filepath"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/agencycal/calib/pkg/auth"
)

// Session is what a successful login leaves behind.
type Session struct {
	Server    string       `json:"server"`
	Token     string       `json:"token"`
	ExpiresAt int64        `json:"expiresAt,omitempty"`
	User      auth.Session `json:"user"`
}

// LoggedIn reports whether s holds a token.
func (s *Session) LoggedIn() bool {
	return s != nil && s.Token != ""
}

// File is a session persisted as JSON.
type File struct {
	path string
}

func NewFile(path string) *File {
	return &File{path: path}
}

// DefaultPath is $XDG_CONFIG_HOME/calib/session.json (or the OS equivalent).
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "calib", "session.json")
}

func (f *File) Path() string {
	return f.path
}

// Load returns the stored session, or an empty one if none was saved.
func (f *File) Load() (*Session, error) {
	b, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Session{}, nil
		}
		return nil, pkgerrors.Wrapf(err, "failed to read session file %s", f.path)
	}
	var s Session
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to parse session file %s", f.path)
	}
	return &s, nil
}

// Save writes s readable only by the current user.
func (f *File) Save(s *Session) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return pkgerrors.Wrapf(err, "failed to create directory for %s", f.path)
	}
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return pkgerrors.Wrap(err, "failed to encode session")
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0600); err != nil {
		return pkgerrors.Wrapf(err, "failed to write session file %s", tmp)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return pkgerrors.Wrapf(err, "failed to replace session file %s", f.path)
	}
	logrus.WithField("path", f.path).Debug("session saved")
	return nil
}

// Clear removes the stored session. A missing file is not an error.
func (f *File) Clear() error {
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return pkgerrors.Wrapf(err, "failed to remove session file %s", f.path)
	}
	return nil
}
