package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/agencycal/calib/pkg/agency"
	"github.com/agencycal/calib/pkg/types"
)

func NewAgencyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "agency",
		Aliases: []string{"agencies", "ag"},
		Short:   "Manage agencies",
		GroupID: gAgencies,
		Long: `Manage agencies.

  calib agency list      List agencies, newest calibration first
  calib agency show ID   Show one agency with its history
  calib agency create    Create an agency
  calib agency update ID Edit an agency
  calib agency done ID   Record a completed calibration
  calib agency delete ID Delete an agency (admin)`,
	}

	cmd.AddCommand(
		newAgencyListCommand(),
		newAgencyShowCommand(),
		newAgencyCreateCommand(),
		newAgencyUpdateCommand(),
		newAgencyDoneCommand(),
		newAgencyDeleteCommand(),
	)

	return cmd
}

func newAgencyListCommand() *cobra.Command {
	var (
		output string
		query  string
		field  string
		month  int
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List agencies",
		Example: `  calib agency list --search R12
  calib agency list --search ravi --field person
  calib agency list --month 0   (due in January)`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkOutput(output); err != nil {
				return err
			}
			if _, err := agency.ParseField(field, agency.FieldRouteNo); err != nil {
				return err
			}
			opts := types.ListOptions{Query: query, Field: field}
			if cmd.Flags().Changed("month") {
				if _, err := agency.MonthFromIndex(month); err != nil {
					return err
				}
				opts.Month = &month
			}

			c, _, err := sessionClient()
			if err != nil {
				return err
			}
			records, err := c.ListAgencies(context.Background(), opts)
			if err != nil {
				return err
			}
			return printRecords(cmd.OutOrStdout(), output, records, time.Now())
		},
	}

	addOutputFlag(cmd, &output)
	cmd.Flags().StringVarP(&query, "search", "s", "", "case-insensitive text to search for")
	cmd.Flags().StringVar(&field, "field", string(agency.FieldRouteNo), "field to search: routeNo or person")
	cmd.Flags().IntVar(&month, "month", 0, "only agencies due in this month, 0 (January) to 11 (December)")
	return cmd
}

func newAgencyShowCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "show ID",
		Short: "Show an agency",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkOutput(output); err != nil {
				return err
			}
			c, _, err := sessionClient()
			if err != nil {
				return err
			}
			r, err := c.GetAgency(context.Background(), args[0])
			if err != nil {
				return err
			}
			return printRecord(cmd.OutOrStdout(), output, r, time.Now())
		},
	}

	addOutputFlag(cmd, &output)
	return cmd
}

func newAgencyCreateCommand() *cobra.Command {
	var (
		output string
		req    types.CreateAgencyRequest
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an agency",
		Example: `  calib agency create --route-no R12 --agency-no AG-7 --description "Dairy counter" \
      --person Ravi --calibration-date 2024-01-10`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkOutput(output); err != nil {
				return err
			}
			for _, d := range req.CalibrationDates {
				if _, ok := agency.ParseDate(d); !ok {
					return fmt.Errorf("invalid calibration date %q, expected YYYY-MM-DD", d)
				}
			}

			c, _, err := sessionClient()
			if err != nil {
				return err
			}
			r, err := c.CreateAgency(context.Background(), req)
			if err != nil {
				return err
			}
			logrus.Infof("created agency %s", r.ID)
			return printRecord(cmd.OutOrStdout(), output, r, time.Now())
		},
	}

	addOutputFlag(cmd, &output)
	f := cmd.Flags()
	f.StringVar(&req.RouteNo, "route-no", "", "route number (at least 2 characters)")
	f.StringVar(&req.AgencyNo, "agency-no", "", "agency number (at least 2 characters)")
	f.StringVar(&req.Description, "description", "", "description (at least 2 characters)")
	f.StringVar(&req.Person, "person", "", "responsible person")
	f.StringSliceVar(&req.CalibrationDates, "calibration-date", nil, "past calibration date, YYYY-MM-DD (repeatable)")
	f.StringSliceVar(&req.ServiceReportNo, "service-report-no", nil, "past service report number (repeatable)")
	_ = cmd.MarkFlagRequired("route-no")
	_ = cmd.MarkFlagRequired("agency-no")
	_ = cmd.MarkFlagRequired("description")
	return cmd
}

func newAgencyUpdateCommand() *cobra.Command {
	var (
		output                                 string
		person, routeNo, agencyNo, description string
	)

	cmd := &cobra.Command{
		Use:   "update ID",
		Short: "Edit an agency",
		Long: `Edit an agency. Only the given fields change.

Calibration history cannot be edited; use 'calib agency done' to add to it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkOutput(output); err != nil {
				return err
			}

			var req types.UpdateAgencyRequest
			set := func(name string, v *string, dst **string) {
				if cmd.Flags().Changed(name) {
					*dst = v
				}
			}
			set("person", &person, &req.Person)
			set("route-no", &routeNo, &req.RouteNo)
			set("agency-no", &agencyNo, &req.AgencyNo)
			set("description", &description, &req.Description)
			if agency.Patch(req).Empty() {
				return fmt.Errorf("nothing to update, set at least one of --person, --route-no, --agency-no, --description")
			}

			c, _, err := sessionClient()
			if err != nil {
				return err
			}
			r, err := c.UpdateAgency(context.Background(), args[0], req)
			if err != nil {
				return err
			}
			logrus.Infof("updated agency %s", r.ID)
			return printRecord(cmd.OutOrStdout(), output, r, time.Now())
		},
	}

	addOutputFlag(cmd, &output)
	f := cmd.Flags()
	f.StringVar(&person, "person", "", "responsible person")
	f.StringVar(&routeNo, "route-no", "", "route number")
	f.StringVar(&agencyNo, "agency-no", "", "agency number")
	f.StringVar(&description, "description", "", "description")
	return cmd
}

func newAgencyDoneCommand() *cobra.Command {
	var (
		output string
		req    types.DoneRequest
	)

	cmd := &cobra.Command{
		Use:   "done ID",
		Short: "Record a completed calibration",
		Long: `Record a completed calibration visit.

The date and service report number are appended to the agency's history,
which moves its next due date six months after the newest calibration.`,
		Example: `  calib agency done 0b7c... --service-report-no SR-104
  calib agency done 0b7c... --service-report-no SR-104 --date 2024-07-01 --description "Replaced sensor"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkOutput(output); err != nil {
				return err
			}
			if req.Date != "" {
				if _, ok := agency.ParseDate(req.Date); !ok {
					return fmt.Errorf("invalid date %q, expected YYYY-MM-DD", req.Date)
				}
			}

			c, _, err := sessionClient()
			if err != nil {
				return err
			}
			r, err := c.MarkDone(context.Background(), args[0], req)
			if err != nil {
				return err
			}
			logrus.Infof("recorded calibration for agency %s, next due %s", r.ID, formatDate(r.DueDate))
			return printRecord(cmd.OutOrStdout(), output, r, time.Now())
		},
	}

	addOutputFlag(cmd, &output)
	f := cmd.Flags()
	f.StringVar(&req.ServiceReportNo, "service-report-no", "", "service report number")
	f.StringVar(&req.Date, "date", "", "calibration date, YYYY-MM-DD (default: today on the server)")
	f.StringVar(&req.Description, "description", "", "what was done")
	_ = cmd.MarkFlagRequired("service-report-no")
	return cmd
}

func newAgencyDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "delete ID",
		Aliases: []string{"rm"},
		Short:   "Delete an agency (admin only)",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := sessionClient()
			if err != nil {
				return err
			}
			if err := c.DeleteAgency(context.Background(), args[0]); err != nil {
				return err
			}
			cmd.Printf("Agency %s deleted.\n", args[0])
			return nil
		},
	}
}

func NewDueCommand() *cobra.Command {
	var (
		output string
		person string
	)

	cmd := &cobra.Command{
		Use:     "due",
		Short:   "List agencies due for calibration this month",
		GroupID: gAgencies,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkOutput(output); err != nil {
				return err
			}
			c, _, err := sessionClient()
			if err != nil {
				return err
			}
			records, err := c.ListDue(context.Background(), person)
			if err != nil {
				return err
			}
			return printRecords(cmd.OutOrStdout(), output, records, time.Now())
		},
	}

	addOutputFlag(cmd, &output)
	cmd.Flags().StringVarP(&person, "person", "p", "", "only agencies whose person contains this text")
	return cmd
}
