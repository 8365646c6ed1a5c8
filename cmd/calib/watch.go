package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/agencycal/calib/pkg/events"
)

func NewWatchCommand() *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:     "watch",
		Short:   "Print agency changes and reminders as they happen",
		GroupID: gAgencies,
		Long: `Print agency changes and reminders as they happen.

Runs until interrupted. Due-calibration reminders are announced on the
server's reminder schedule (see 'calib reminder').`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, _, err := sessionClient()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ch, err := c.SubscribeEvents(ctx)
			if err != nil {
				return err
			}
			logrus.Infof("watching events from %s, press Ctrl-C to stop", c.BaseURL())

			for ev := range ch {
				if raw {
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", ev.Name, ev.Data)
					continue
				}
				if err := printEvent(cmd.OutOrStdout(), ev); err != nil {
					logrus.WithError(err).Warnf("failed to decode %s event", ev.Name)
				}
			}
			if ctx.Err() == nil {
				return fmt.Errorf("event stream closed by server")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "print event names and JSON payloads as received")
	return cmd
}

func tsText(ts int64) string {
	if ts == 0 {
		return time.Now().Format(time.TimeOnly)
	}
	return time.Unix(ts, 0).Local().Format(time.TimeOnly)
}

func printEvent(w io.Writer, ev events.Event) error {
	switch ev.Name {
	case events.AgencyCreated, events.AgencyUpdated, events.AgencyDeleted, events.AgencyDone:
		p, err := events.DecodeAs[events.AgencyChangedEvent](ev)
		if err != nil {
			return err
		}
		verb := map[string]string{
			events.AgencyCreated: "created",
			events.AgencyUpdated: "updated",
			events.AgencyDeleted: "deleted",
			events.AgencyDone:    "calibrated",
		}[ev.Name]
		fmt.Fprintf(w, "%s agency %s %s", tsText(p.Ts), bold("%s", orDash(p.RouteNo)), verb)
		if p.AgencyNo != "" {
			fmt.Fprintf(w, " (agency no %s)", p.AgencyNo)
		}
		if p.By != "" {
			fmt.Fprintf(w, " by %s", p.By)
		}
		fmt.Fprintln(w)
	case events.AgencyDue:
		p, err := events.DecodeAs[events.AgencyDueEvent](ev)
		if err != nil {
			return err
		}
		state := color.New(color.Bold, color.FgYellow).Sprint("due")
		if p.Overdue {
			state = color.New(color.Bold, color.FgRed).Sprint("overdue")
		}
		fmt.Fprintf(w, "%s calibration %s: route %s, agency %s, person %s, due %s\n",
			tsText(p.Ts), state, bold("%s", p.RouteNo), p.AgencyNo, orDash(p.Person), p.DueDate)
	case events.ReminderUpcoming:
		p, err := events.DecodeAs[events.ReminderUpcomingEvent](ev)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s reminder runs at %s\n", tsText(p.Ts), time.Unix(p.At, 0).Local().Format(time.DateTime))
	case events.ReminderChanged:
		p, err := events.DecodeAs[events.ReminderChangedEvent](ev)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s reminder %s", tsText(p.Ts), p.Action)
		if p.Message != "" {
			fmt.Fprintf(w, ": %s", p.Message)
		}
		fmt.Fprintln(w)
	case events.ReminderFailed:
		p, err := events.DecodeAs[events.ReminderFailedEvent](ev)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s %s %s\n", tsText(p.Ts), color.RedString("reminder failed:"), p.Error)
	default:
		fmt.Fprintf(w, "%s %s %s\n", time.Now().Format(time.TimeOnly), ev.Name, ev.Data)
	}
	return nil
}
