package agency

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// DueIntervalMonths is the number of calendar months between calibrations.
const DueIntervalMonths = 6

// DateLayout is the canonical layout for calibration dates.
const DateLayout = time.DateOnly

// ParseDate parses a calibration date. Both YYYY-MM-DD and RFC 3339 timestamps
// are accepted. ok is false for anything else; callers treat such a value as
// the oldest possible date and never derive a due date from it.
func ParseDate(s string) (t time.Time, ok bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}

// ComputeDueDate adds DueIntervalMonths calendar months to d. Day overflow is
// normalised by the calendar, e.g. Aug 31 + 6 months is Mar 3 (or Mar 2 in a
// leap year).
func ComputeDueDate(d time.Time) time.Time {
	return d.AddDate(0, DueIntervalMonths, 0)
}

// MonthFromIndex converts a 0-indexed month (0 = January) to a time.Month.
func MonthFromIndex(i int) (time.Month, error) {
	if i < 0 || i > 11 {
		return 0, fmt.Errorf("month must be between 0 and 11, got %d", i)
	}
	return time.Month(i + 1), nil
}

type datedEntry struct {
	raw   string
	t     time.Time
	valid bool
}

// SortByMostRecentCalibration returns one Record per agency with its
// calibration dates sorted newest first. Equal dates keep their input order and
// invalid dates sort last. The input is not modified.
func SortByMostRecentCalibration(agencies []Agency) []Record {
	records := make([]Record, 0, len(agencies))
	for _, a := range agencies {
		records = append(records, NewRecord(a))
	}
	return records
}

// NewRecord builds the Record view of a single agency.
func NewRecord(a Agency) Record {
	entries := make([]datedEntry, 0, len(a.CalibrationDates))
	for _, raw := range a.CalibrationDates {
		t, ok := ParseDate(raw)
		entries = append(entries, datedEntry{raw: raw, t: t, valid: ok})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		// Zero time for invalid entries makes them the oldest.
		return entries[i].t.After(entries[j].t)
	})

	a.CalibrationDates = make([]string, 0, len(entries))
	for _, e := range entries {
		a.CalibrationDates = append(a.CalibrationDates, e.raw)
	}
	a.ServiceReportNo = append([]string(nil), a.ServiceReportNo...)
	a.ServiceReports = append([]ServiceReport(nil), a.ServiceReports...)

	r := Record{Agency: a}
	if len(entries) > 0 && entries[0].valid {
		mostRecent := entries[0].t
		due := ComputeDueDate(mostRecent)
		r.MostRecentCalibrationDate = &mostRecent
		r.DueDate = &due
	}
	return r
}

// FilterDueInMonth keeps the records whose due date falls in month, in any
// year. A nil month returns records unchanged. Records without a calibration
// date are never due.
func FilterDueInMonth(records []Record, month *time.Month) []Record {
	if month == nil {
		return records
	}
	out := make([]Record, 0)
	for _, r := range records {
		if r.DueDate == nil {
			continue
		}
		if r.DueDate.Month() == *month {
			out = append(out, r)
		}
	}
	return out
}

// FilterDueThisMonth keeps the records due in the same year and month as now.
func FilterDueThisMonth(records []Record, now time.Time) []Record {
	out := make([]Record, 0)
	for _, r := range records {
		if r.IsDueThisMonth(now) {
			out = append(out, r)
		}
	}
	return out
}

// FilterByText keeps the agencies whose field contains query, ignoring case.
// An empty query matches everything.
func FilterByText(agencies []Agency, query string, field Field) []Agency {
	if query == "" {
		return agencies
	}
	q := strings.ToLower(query)
	out := make([]Agency, 0)
	for i := range agencies {
		if strings.Contains(strings.ToLower(agencies[i].Value(field)), q) {
			out = append(out, agencies[i])
		}
	}
	return out
}

// ParseField validates a search field name. Empty selects def.
func ParseField(s string, def Field) (Field, error) {
	switch Field(s) {
	case "":
		return def, nil
	case FieldPerson, FieldRouteNo:
		return Field(s), nil
	default:
		return "", fmt.Errorf("unknown search field %q, expected %q or %q", s, FieldPerson, FieldRouteNo)
	}
}

// IsOverdue reports whether the record's due date lies in a month before now's.
func (r *Record) IsOverdue(now time.Time) bool {
	if r.DueDate == nil {
		return false
	}
	dy, dm, _ := r.DueDate.Date()
	ny, nm, _ := now.Date()
	return dy < ny || (dy == ny && dm < nm)
}

// IsDueThisMonth reports whether the record is due in now's year and month.
func (r *Record) IsDueThisMonth(now time.Time) bool {
	if r.DueDate == nil {
		return false
	}
	return r.DueDate.Year() == now.Year() && r.DueDate.Month() == now.Month()
}
