package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/agencycal/calib/pkg/agency"
)

const (
	outputTable = "table"
	outputJSON  = "json"
	outputYAML  = "yaml"
)

func addOutputFlag(cmd *cobra.Command, output *string) {
	cmd.Flags().StringVarP(output, "output", "o", outputTable, "output format (table, json, yaml)")
}

func checkOutput(output string) error {
	switch output {
	case outputTable, outputJSON, outputYAML:
		return nil
	default:
		return fmt.Errorf("unknown output format %q, expected %s, %s or %s", output, outputTable, outputJSON, outputYAML)
	}
}

// writeStructured encodes v as JSON or YAML.
func writeStructured(w io.Writer, output string, v any) error {
	switch output {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return checkOutput(output)
	}
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(agency.DateLayout)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// dueState describes r relative to now, colored for terminals.
func dueState(r *agency.Record, now time.Time) string {
	switch {
	case r.DueDate == nil:
		return color.New(color.Faint).Sprint("never calibrated")
	case r.IsOverdue(now):
		return color.New(color.Bold, color.FgRed).Sprint("overdue")
	case r.IsDueThisMonth(now):
		return color.New(color.Bold, color.FgYellow).Sprint("due this month")
	default:
		return color.GreenString("ok")
	}
}

func printRecords(w io.Writer, output string, records []agency.Record, now time.Time) error {
	if output != outputTable {
		return writeStructured(w, output, records)
	}
	if len(records) == 0 {
		_, err := fmt.Fprintln(w, "No agencies found.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tROUTE NO\tAGENCY NO\tPERSON\tLAST CALIBRATION\tDUE\tSTATUS")
	for i := range records {
		r := &records[i]
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.RouteNo, r.AgencyNo, orDash(r.Person),
			formatDate(r.MostRecentCalibrationDate), formatDate(r.DueDate), dueState(r, now))
	}
	return tw.Flush()
}

func printRecord(w io.Writer, output string, r *agency.Record, now time.Time) error {
	if output != outputTable {
		return writeStructured(w, output, r)
	}

	fmt.Fprintln(w, bold("Agency %s", r.ID))
	fmt.Fprintf(w, "  Route no: %s\n", r.RouteNo)
	fmt.Fprintf(w, "  Agency no: %s\n", r.AgencyNo)
	fmt.Fprintf(w, "  Person: %s\n", orDash(r.Person))
	fmt.Fprintf(w, "  Description: %s\n", orDash(r.Description))
	fmt.Fprintf(w, "  Last calibration: %s\n", bold("%s", formatDate(r.MostRecentCalibrationDate)))
	fmt.Fprintf(w, "  Due: %s (%s)\n", bold("%s", formatDate(r.DueDate)), dueState(r, now))

	fmt.Fprintln(w, bold("Calibration history:"))
	if len(r.CalibrationDates) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, d := range r.CalibrationDates {
		fmt.Fprintf(w, "  - %s\n", d)
	}

	// Numbers recorded without a visit, e.g. supplied at creation, have no
	// details. A number may repeat across visits.
	detailed := make(map[string]int, len(r.ServiceReports))
	for _, sr := range r.ServiceReports {
		detailed[sr.No]++
	}
	var bare []string
	for _, no := range r.ServiceReportNo {
		if detailed[no] > 0 {
			detailed[no]--
			continue
		}
		bare = append(bare, no)
	}
	if len(bare)+len(r.ServiceReports) > 0 {
		fmt.Fprintln(w, bold("Service reports:"))
	}
	for _, no := range bare {
		fmt.Fprintf(w, "  - %s\n", no)
	}
	for i := range r.ServiceReports {
		sr := &r.ServiceReports[i]
		fmt.Fprintf(w, "  - %s (%s)\n", sr.No, strings.TrimSpace(sr.Date+" "+sr.Description))
	}
	return nil
}

func bool2Text(b bool) string {
	if b {
		return color.New(color.Bold, color.FgGreen).Sprint("✔")
	}
	return color.New(color.Bold, color.FgRed).Sprint("✘")
}

func bold(format string, a ...interface{}) string {
	return color.New(color.Bold).Sprintf(format, a...)
}
