package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/agencycal/calib/pkg/types"
)

func NewReminderCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "reminder [cron-expression]",
		Aliases: []string{"remind", "rem"},
		Short:   "Manage the due-calibration reminder",
		Long: `Manage the due-calibration reminder.

On every run the server announces each agency that is due this month to
connected clients (see 'calib watch').

  calib reminder 'minute hour day month weekday' Set the schedule (admin)
  calib reminder disable                         Disable the reminder (admin)
  calib reminder postpone [duration]             Postpone the next run (admin)
  calib reminder skip                            Skip the next run (admin)
  calib reminder show                            Show the schedule`,
		Example: `  calib reminder '0 9 * * 1'  (At 09:00 every Monday)
  calib reminder '0 9 1 * *'  (At 09:00 on the first day of every month)
  calib reminder @daily`,
		GroupID: gServer,
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return runReminderShow(cmd)
			}
			return runReminderSet(cmd, args[0])
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "disable",
			Short: "Disable the reminder",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runReminderDisable(cmd)
			},
		},
		newReminderPostponeCommand(),
		&cobra.Command{
			Use:   "skip",
			Short: "Skip the next reminder run",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runReminderSkip(cmd)
			},
		},
		&cobra.Command{
			Use:   "show",
			Short: "Show the reminder schedule and next run times",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runReminderShow(cmd)
			},
		},
	)

	return cmd
}

func newReminderPostponeCommand() *cobra.Command {
	var duration time.Duration

	cmd := &cobra.Command{
		Use:   "postpone [duration]",
		Short: "Postpone the next reminder run",
		Example: `  calib reminder postpone      (Postpone by 1 hour)
  calib reminder postpone 90m  (Postpone by 90 minutes)`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d := duration
			if len(args) > 0 {
				parsed, err := time.ParseDuration(args[0])
				if err != nil {
					return fmt.Errorf("invalid duration %q: %w", args[0], err)
				}
				d = parsed
			}
			if d <= 0 {
				return fmt.Errorf("duration must be positive, got %s", d)
			}
			return runReminderPostpone(cmd, d)
		},
	}

	cmd.Flags().DurationVar(&duration, "duration", time.Hour, "duration to postpone (e.g., 1h, 90m)")
	return cmd
}

func printNextRuns(cmd *cobra.Command, st *types.ReminderStatus) {
	if !st.Enabled || len(st.NextRuns) == 0 {
		cmd.Println("Reminder is not scheduled.")
		return
	}
	cmd.Printf("Reminder schedule: %s\n", bold("%s", st.Cron))
	cmd.Printf("Next %d run(s):\n", len(st.NextRuns))
	for _, run := range st.NextRuns {
		cmd.Printf("  - %s\n", run.Local().Format(time.DateTime))
	}
}

func runReminderSet(cmd *cobra.Command, cronExpr string) error {
	if cronExpr == "" {
		return fmt.Errorf("cron expression cannot be empty, use 'calib reminder disable' instead")
	}
	c, _, err := sessionClient()
	if err != nil {
		return err
	}
	st, err := c.SetReminder(context.Background(), cronExpr)
	if err != nil {
		return err
	}
	printNextRuns(cmd, st)
	return nil
}

func runReminderDisable(cmd *cobra.Command) error {
	c, _, err := sessionClient()
	if err != nil {
		return err
	}
	if _, err := c.SetReminder(context.Background(), ""); err != nil {
		return err
	}
	cmd.Println("Reminder disabled.")
	return nil
}

func runReminderPostpone(cmd *cobra.Command, d time.Duration) error {
	c, _, err := sessionClient()
	if err != nil {
		return err
	}
	r, err := c.PostponeReminder(context.Background(), d.String())
	if err != nil {
		return err
	}
	cmd.Printf("Next run postponed by %s to %s.\n", d, r.NextRun.Local().Format(time.DateTime))
	return nil
}

func runReminderSkip(cmd *cobra.Command) error {
	c, _, err := sessionClient()
	if err != nil {
		return err
	}
	r, err := c.SkipReminder(context.Background())
	if err != nil {
		return err
	}
	cmd.Printf("Next run skipped. The reminder will run next at %s.\n", r.NextRun.Local().Format(time.DateTime))
	return nil
}

func runReminderShow(cmd *cobra.Command) error {
	c, _, err := sessionClient()
	if err != nil {
		return err
	}
	st, err := c.GetReminder(context.Background())
	if err != nil {
		return err
	}
	printNextRuns(cmd, st)
	return nil
}
