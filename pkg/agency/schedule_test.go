package agency

import (
	"reflect"
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestComputeDueDate(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{name: "end of january", in: date(2024, time.January, 31), want: date(2024, time.July, 31)},
		{name: "year rollover", in: date(2024, time.December, 15), want: date(2025, time.June, 15)},
		{name: "day overflow rolls forward", in: date(2023, time.August, 31), want: date(2024, time.March, 2)},
		{name: "mid year", in: date(2024, time.March, 10), want: date(2024, time.September, 10)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ComputeDueDate(tt.in); !got.Equal(tt.want) {
				t.Errorf("ComputeDueDate(%s) = %s, want %s", tt.in.Format(DateLayout), got.Format(DateLayout), tt.want.Format(DateLayout))
			}
		})
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in     string
		want   time.Time
		wantOK bool
	}{
		{in: "2024-01-10", want: date(2024, time.January, 10), wantOK: true},
		{in: "2024-01-10T00:00:00.000Z", want: date(2024, time.January, 10), wantOK: true},
		{in: "2024-01-10T02:00:00+02:00", want: date(2024, time.January, 10), wantOK: true},
		{in: " 2024-02-29 ", want: date(2024, time.February, 29), wantOK: true},
		{in: "", wantOK: false},
		{in: "not a date", wantOK: false},
		{in: "2024-13-01", wantOK: false},
	}
	for _, tt := range tests {
		got, ok := ParseDate(tt.in)
		if ok != tt.wantOK {
			t.Fatalf("ParseDate(%q) ok = %t, want %t", tt.in, ok, tt.wantOK)
		}
		if ok && !got.Equal(tt.want) {
			t.Errorf("ParseDate(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestSortByMostRecentCalibration(t *testing.T) {
	in := []Agency{
		{ID: "a", CalibrationDates: []string{"2023-05-01", "2024-01-10", "garbage", "2023-11-20"}},
		{ID: "b", CalibrationDates: nil},
		{ID: "c", CalibrationDates: []string{"bad", "worse"}},
	}
	orig := append([]string(nil), in[0].CalibrationDates...)

	got := SortByMostRecentCalibration(in)
	if len(got) != 3 {
		t.Fatalf("expected 3 records, got %d", len(got))
	}

	wantOrder := []string{"2024-01-10", "2023-11-20", "2023-05-01", "garbage"}
	if !reflect.DeepEqual(got[0].CalibrationDates, wantOrder) {
		t.Fatalf("sorted dates = %v, want %v", got[0].CalibrationDates, wantOrder)
	}
	if got[0].MostRecentCalibrationDate == nil || !got[0].MostRecentCalibrationDate.Equal(date(2024, time.January, 10)) {
		t.Fatalf("most recent = %v, want 2024-01-10", got[0].MostRecentCalibrationDate)
	}
	if got[0].DueDate == nil || !got[0].DueDate.Equal(date(2024, time.July, 10)) {
		t.Fatalf("due = %v, want 2024-07-10", got[0].DueDate)
	}

	if got[1].MostRecentCalibrationDate != nil || got[1].DueDate != nil {
		t.Errorf("agency without history must have no dates, got %+v", got[1])
	}
	if got[2].MostRecentCalibrationDate != nil || got[2].DueDate != nil {
		t.Errorf("agency with only invalid dates must have no dates, got %+v", got[2])
	}

	if !reflect.DeepEqual(in[0].CalibrationDates, orig) {
		t.Errorf("input was mutated: %v", in[0].CalibrationDates)
	}
}

func TestSortIsStableForEqualDates(t *testing.T) {
	in := []Agency{{CalibrationDates: []string{"2024-01-10", "2024-01-10T00:00:00Z", "2023-01-01"}}}
	got := SortByMostRecentCalibration(in)
	want := []string{"2024-01-10", "2024-01-10T00:00:00Z", "2023-01-01"}
	if !reflect.DeepEqual(got[0].CalibrationDates, want) {
		t.Fatalf("got %v, want %v", got[0].CalibrationDates, want)
	}
}

func TestMostRecentIsMax(t *testing.T) {
	dates := []string{"2021-06-01", "2022-02-28", "2020-12-31", "2022-02-27"}
	got := NewRecord(Agency{CalibrationDates: dates})
	if !got.MostRecentCalibrationDate.Equal(date(2022, time.February, 28)) {
		t.Fatalf("most recent = %s, want 2022-02-28", got.MostRecentCalibrationDate)
	}
}

func TestFilterDueInMonth(t *testing.T) {
	records := SortByMostRecentCalibration([]Agency{
		{ID: "jan", CalibrationDates: []string{"2024-01-10"}},
		{ID: "mar", CalibrationDates: []string{"2024-03-10"}},
		{ID: "none"},
	})

	july := time.July
	got := FilterDueInMonth(records, &july)
	if len(got) != 1 || got[0].ID != "jan" {
		t.Fatalf("expected only jan, got %+v", got)
	}

	if got := FilterDueInMonth(records, nil); !reflect.DeepEqual(got, records) {
		t.Fatalf("nil month must return input unchanged")
	}

	for m := time.January; m <= time.December; m++ {
		month := m
		for _, r := range FilterDueInMonth(records, &month) {
			if r.ID == "none" {
				t.Fatalf("agency without history returned for month %s", m)
			}
		}
	}
}

func TestFilterDueThisMonth(t *testing.T) {
	records := SortByMostRecentCalibration([]Agency{
		{ID: "due", CalibrationDates: []string{"2024-01-10"}},
		{ID: "other-year", CalibrationDates: []string{"2023-01-10"}},
		{ID: "later", CalibrationDates: []string{"2024-02-10"}},
	})
	now := date(2024, time.July, 20)

	got := FilterDueThisMonth(records, now)
	if len(got) != 1 || got[0].ID != "due" {
		t.Fatalf("expected only due, got %+v", got)
	}
	if !records[1].IsOverdue(now) {
		t.Errorf("expected other-year to be overdue")
	}
	if records[2].IsOverdue(now) {
		t.Errorf("expected later not to be overdue")
	}
}

func TestFilterByText(t *testing.T) {
	agencies := []Agency{
		{ID: "1", Person: "Andrew Singh", RouteNo: "R-12"},
		{ID: "2", Person: "maria lopez", RouteNo: "R-7"},
	}

	if got := FilterByText(agencies, "", FieldPerson); len(got) != 2 {
		t.Fatalf("empty query should match all, got %d", len(got))
	}
	if got := FilterByText(agencies, "nobody", FieldPerson); len(got) != 0 {
		t.Fatalf("expected no match, got %+v", got)
	}
	if got := FilterByText(agencies, "MARIA", FieldPerson); len(got) != 1 || got[0].ID != "2" {
		t.Fatalf("expected case-insensitive match on person, got %+v", got)
	}
	if got := FilterByText(agencies, "r-1", FieldRouteNo); len(got) != 1 || got[0].ID != "1" {
		t.Fatalf("expected route match, got %+v", got)
	}
}

func TestMonthFromIndex(t *testing.T) {
	if m, err := MonthFromIndex(6); err != nil || m != time.July {
		t.Fatalf("MonthFromIndex(6) = %v, %v", m, err)
	}
	for _, i := range []int{-1, 12} {
		if _, err := MonthFromIndex(i); err == nil {
			t.Errorf("MonthFromIndex(%d) should fail", i)
		}
	}
}

func TestParseField(t *testing.T) {
	if f, err := ParseField("", FieldRouteNo); err != nil || f != FieldRouteNo {
		t.Fatalf("default field not applied: %v %v", f, err)
	}
	if _, err := ParseField("agencyNo", FieldPerson); err == nil {
		t.Fatalf("expected error for unknown field")
	}
}

func TestPatchApply(t *testing.T) {
	person := "New Person"
	a := Agency{Person: "Old", RouteNo: "R1"}
	p := Patch{Person: &person}
	if p.Empty() {
		t.Fatalf("patch should not be empty")
	}
	p.Apply(&a)
	if a.Person != person || a.RouteNo != "R1" {
		t.Fatalf("unexpected agency after patch: %+v", a)
	}
}
