package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/agencycal/calib/pkg/client"
	"github.com/agencycal/calib/pkg/session"
)

var errNotLoggedIn = errors.New("not logged in")

func sessionFile() *session.File {
	if sessionPath != "" {
		return session.NewFile(sessionPath)
	}
	return session.NewFile(session.DefaultPath())
}

// resolveServerURL picks --server, then $CALIB_SERVER, then the session's
// server, then the default.
func resolveServerURL(sess *session.Session) string {
	if serverURL != "" {
		return serverURL
	}
	if env := os.Getenv("CALIB_SERVER"); env != "" {
		return env
	}
	if sess != nil && sess.Server != "" {
		return sess.Server
	}
	return defaultServerURL
}

// anonymousClient is used for calls that need no session.
func anonymousClient() *client.Client {
	sess, _ := sessionFile().Load()
	return client.NewClient(resolveServerURL(sess), "")
}

// sessionClient returns a client carrying the stored session's token.
func sessionClient() (*client.Client, *session.Session, error) {
	sess, err := sessionFile().Load()
	if err != nil {
		return nil, nil, err
	}
	if !sess.LoggedIn() {
		return nil, nil, errNotLoggedIn
	}
	return client.NewClient(resolveServerURL(sess), sess.Token), sess, nil
}

// prompt reads one line from in after printing label.
func prompt(cmd *cobra.Command, in *bufio.Reader, label string) (string, error) {
	cmd.Print(label)
	line, err := in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("failed to read %s: %w", strings.TrimSuffix(strings.ToLower(label), ": "), err)
	}
	return strings.TrimSpace(line), nil
}

// readPassword reads without echo from a terminal, or a line from stdin otherwise.
func readPassword(cmd *cobra.Command, in *bufio.Reader, fromStdin bool) (string, error) {
	if !fromStdin && term.IsTerminal(int(os.Stdin.Fd())) {
		cmd.Print("Password: ")
		b, err := term.ReadPassword(int(os.Stdin.Fd()))
		cmd.Println()
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(b), nil
	}
	line, err := in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("failed to read password from stdin: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
