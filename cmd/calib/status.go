package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/agencycal/calib/pkg/agency"
	"github.com/agencycal/calib/pkg/client"
	"github.com/agencycal/calib/pkg/types"
	"github.com/agencycal/calib/pkg/version"
)

type statusData struct {
	server    string
	reachable bool
	version   string
	loggedIn  bool
	email     string
	role      string
	reminder  *types.ReminderStatus
	agencies  []agency.Record
}

// fetchStatusData gathers what the status command prints. Only transport
// failures other than an unreachable server are returned as errors.
func fetchStatusData(ctx context.Context) (*statusData, error) {
	sess, err := sessionFile().Load()
	if err != nil {
		return nil, err
	}

	data := &statusData{server: resolveServerURL(sess)}
	c := client.NewClient(data.server, sess.Token)

	v, err := c.GetVersion(ctx)
	if errors.Is(err, client.ErrServerNotRunning) {
		return data, nil
	}
	if err != nil {
		return nil, err
	}
	data.reachable = true
	data.version = v.Version

	if !sess.LoggedIn() {
		return data, nil
	}
	me, err := c.Me(ctx)
	if errors.Is(err, client.ErrUnauthorized) {
		return data, nil
	}
	if err != nil {
		return nil, err
	}
	data.loggedIn = true
	data.email = me.Email
	data.role = me.Role.String()

	if data.reminder, err = c.GetReminder(ctx); err != nil {
		return nil, err
	}
	if data.agencies, err = c.ListAgencies(ctx, types.ListOptions{}); err != nil {
		return nil, err
	}
	return data, nil
}

func NewStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		GroupID: gServer,
		Short:   "Show server, login and reminder status",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := fetchStatusData(context.Background())
			if err != nil {
				return err
			}
			printStatus(cmd, data, time.Now())
			return nil
		},
	}
}

func printStatus(cmd *cobra.Command, data *statusData, now time.Time) {
	cmd.Println(bold("Server:"))
	cmd.Printf("  Address: %s\n", data.server)
	cmd.Println("  Reachable: " + bool2Text(data.reachable))
	if !data.reachable {
		cmd.Println("    Start the server with 'calib serve'.")
		return
	}
	cmd.Printf("  Version: %s", data.version)
	if data.version != version.Version {
		cmd.Printf(" (client is %s)", version.Version)
	}
	cmd.Println()

	cmd.Println(bold("Account:"))
	cmd.Println("  Logged in: " + bool2Text(data.loggedIn))
	if !data.loggedIn {
		cmd.Println("    Log in with 'calib login'.")
		return
	}
	cmd.Printf("  User: %s (%s)\n", data.email, data.role)

	cmd.Println(bold("Reminder:"))
	cmd.Println("  Enabled: " + bool2Text(data.reminder.Enabled))
	if data.reminder.Enabled {
		cmd.Printf("  Schedule: %s\n", data.reminder.Cron)
		if len(data.reminder.NextRuns) > 0 {
			cmd.Printf("  Next run: %s\n", bold("%s", data.reminder.NextRuns[0].Local().Format(time.DateTime)))
		}
	}

	due, overdue := 0, 0
	for i := range data.agencies {
		switch r := &data.agencies[i]; {
		case r.IsDueThisMonth(now):
			due++
		case r.IsOverdue(now):
			overdue++
		}
	}
	cmd.Println(bold("Calibrations:"))
	cmd.Printf("  Agencies: %d\n", len(data.agencies))
	cmd.Printf("  Due this month: %s\n", bold("%d", due))
	cmd.Printf("  Overdue: %s\n", bold("%d", overdue))
	if due > 0 {
		cmd.Println("    Run 'calib due' for the list.")
	}
}
