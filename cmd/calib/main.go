package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/agencycal/calib/pkg/client"
)

const defaultServerURL = "http://127.0.0.1:5513"

var (
	logLevel    = "info"
	configPath  = defaultConfigPath()
	serverURL   = ""
	sessionPath = ""
)

var (
	gAccount      = "Account:"
	gAgencies     = "Agencies:"
	gServer       = "Server:"
	commandGroups = []string{
		gAgencies,
		gAccount,
		gServer,
	}
)

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "calib.json"
	}
	return filepath.Join(dir, "calib", "calib.json")
}

func setupLogger() error {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %v", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{})
	if term.IsTerminal(int(os.Stderr.Fd())) {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.Kitchen,
		})
	}

	return nil
}

func handleCmdError(err error) {
	switch {
	case errors.Is(err, client.ErrServerNotRunning):
		fmt.Fprintln(os.Stderr, "\nError: calib server is not running")
		fmt.Fprintf(os.Stderr, "Is the server running at %s? Start it with 'calib serve'.\n", resolveServerURL(nil))
	case errors.Is(err, errNotLoggedIn), errors.Is(err, client.ErrUnauthorized):
		fmt.Fprintln(os.Stderr, "\nError: not logged in or the session has expired")
		fmt.Fprintln(os.Stderr, "Log in with 'calib login'.")
	case errors.Is(err, client.ErrForbidden):
		fmt.Fprintln(os.Stderr, "\nError: Permission Denied")
		fmt.Fprintln(os.Stderr, "This action needs the admin role. Run 'calib whoami' to see your role.")
	}
}

func main() {
	cmd := NewCommand()
	if err := cmd.Execute(); err != nil {
		handleCmdError(err)
		os.Exit(1)
	}
}

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calib",
		Short: "calib tracks agencies that need periodic calibration",
		Long: `calib tracks agencies (field equipment / route records) that need
calibration every six months.

Run 'calib serve' to start the server, then register, log in and manage
agencies from the same binary.`,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return setupLogger()
		},
	}

	globalFlags := cmd.PersistentFlags()
	globalFlags.StringVarP(&logLevel, "log-level", "l", "info", "log level (trace, debug, info, warn, error, fatal, panic)")
	globalFlags.StringVar(&configPath, "config", configPath, "server config file path")
	globalFlags.StringVar(&serverURL, "server", "", "server URL (default: from session, $CALIB_SERVER or "+defaultServerURL+")")
	globalFlags.StringVar(&sessionPath, "session", "", "session file path (default: user config dir)")

	for _, i := range commandGroups {
		cmd.AddGroup(&cobra.Group{
			ID:    i,
			Title: i,
		})
	}

	cmd.AddCommand(
		NewServeCommand(),
		NewVersionCommand(),
		NewRegisterCommand(),
		NewLoginCommand(),
		NewLogoutCommand(),
		NewWhoamiCommand(),
		NewStatusCommand(),
		NewAgencyCommand(),
		NewDueCommand(),
		NewReminderCommand(),
		NewWatchCommand(),
	)

	return cmd
}
