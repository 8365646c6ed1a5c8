package main

import (
	"bufio"
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/agencycal/calib/pkg/auth"
	"github.com/agencycal/calib/pkg/client"
	"github.com/agencycal/calib/pkg/session"
	"github.com/agencycal/calib/pkg/types"
)

type credentialFlags struct {
	email         string
	role          string
	passwordStdin bool
}

func (f *credentialFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.email, "email", "", "account email (prompted if empty)")
	cmd.Flags().StringVar(&f.role, "role", "", "role: admin or staff")
	cmd.Flags().BoolVar(&f.passwordStdin, "password-stdin", false, "read the password from stdin")
}

// collect fills in email and password, prompting where needed.
func (f *credentialFlags) collect(cmd *cobra.Command, in *bufio.Reader) (email, password string, err error) {
	if f.role != "" {
		if _, err := auth.ParseRole(f.role); err != nil {
			return "", "", err
		}
	}
	email = f.email
	if email == "" {
		if email, err = prompt(cmd, in, "Email: "); err != nil {
			return "", "", err
		}
	}
	if password, err = readPassword(cmd, in, f.passwordStdin); err != nil {
		return "", "", err
	}
	if email == "" || password == "" {
		return "", "", fmt.Errorf("email and password are required")
	}
	return email, password, nil
}

func NewRegisterCommand() *cobra.Command {
	var (
		creds credentialFlags
		name  string
	)

	cmd := &cobra.Command{
		Use:     "register",
		Short:   "Create an account",
		GroupID: gAccount,
		Long: `Create an account on the server.

The first admin can register freely. Further admins can only be registered
by a logged-in admin, who can also register staff when self-registration is
disabled on the server.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in := bufio.NewReader(cmd.InOrStdin())
			if name == "" {
				var err error
				if name, err = prompt(cmd, in, "Name: "); err != nil {
					return err
				}
			}
			email, password, err := creds.collect(cmd, in)
			if err != nil {
				return err
			}

			// An admin session, if any, authorizes admin registrations.
			c := anonymousClient()
			if sc, _, err := sessionClient(); err == nil {
				c = sc
			}

			u, err := c.Register(context.Background(), types.RegisterRequest{
				Name: name, Email: email, Password: password, Role: creds.role,
			})
			if err != nil {
				return err
			}
			logrus.Infof("registered %s as %s", u.Email, u.Role)
			cmd.Println("Account created. Log in with 'calib login'.")
			return nil
		},
	}

	creds.register(cmd)
	cmd.Flags().StringVar(&name, "name", "", "display name (prompted if empty)")
	return cmd
}

func NewLoginCommand() *cobra.Command {
	var creds credentialFlags

	cmd := &cobra.Command{
		Use:     "login",
		Short:   "Log in and store the session",
		GroupID: gAccount,
		Long: `Log in and store the session token in the session file.

When --role is given it must match the account's role.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			email, password, err := creds.collect(cmd, bufio.NewReader(cmd.InOrStdin()))
			if err != nil {
				return err
			}

			f := sessionFile()
			prev, _ := f.Load()
			server := resolveServerURL(prev)

			resp, err := client.NewClient(server, "").Login(context.Background(), types.LoginRequest{
				Email: email, Password: password, Role: creds.role,
			})
			if err != nil {
				return err
			}

			if err := f.Save(&session.Session{
				Server:    server,
				Token:     resp.AccessToken,
				ExpiresAt: resp.ExpiresAt,
				User:      resp.User,
			}); err != nil {
				return err
			}
			cmd.Printf("Logged in as %s (%s).\n", bold("%s", resp.User.Email), resp.User.Role)
			return nil
		},
	}

	creds.register(cmd)
	return cmd
}

func NewLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "logout",
		Short:   "Forget the stored session",
		GroupID: gAccount,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := sessionFile().Clear(); err != nil {
				return err
			}
			cmd.Println("Logged out.")
			return nil
		},
	}
}

func NewWhoamiCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:     "whoami",
		Short:   "Show the logged-in user",
		GroupID: gAccount,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkOutput(output); err != nil {
				return err
			}
			c, _, err := sessionClient()
			if err != nil {
				return err
			}
			me, err := c.Me(context.Background())
			if err != nil {
				return err
			}
			if output != outputTable {
				return writeStructured(cmd.OutOrStdout(), output, me)
			}
			cmd.Printf("%s <%s>\n", me.Name, me.Email)
			cmd.Printf("  Role: %s\n", bold("%s", me.Role))
			cmd.Printf("  Admin: %s\n", bool2Text(me.IsAdmin()))
			return nil
		},
	}

	addOutputFlag(cmd, &output)
	return cmd
}
