package agency

import "time"

// Field names a searchable text field of an agency.
type Field string

const (
	FieldPerson  Field = "person"
	FieldRouteNo Field = "routeNo"
)

// ServiceReport is one completed calibration/maintenance visit.
type ServiceReport struct {
	No          string `json:"serviceReportNo" yaml:"serviceReportNo"`
	Date        string `json:"date" yaml:"date"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Agency is a tracked route/equipment record subject to periodic calibration.
type Agency struct {
	ID          string `json:"id" yaml:"id"`
	Person      string `json:"person" yaml:"person"`
	RouteNo     string `json:"routeNo" yaml:"routeNo"`
	AgencyNo    string `json:"agencyNo" yaml:"agencyNo"`
	Description string `json:"description" yaml:"description"`
	// CalibrationDates is a history; insertion order carries no meaning.
	CalibrationDates []string        `json:"calibrationDates" yaml:"calibrationDates"`
	ServiceReportNo  []string        `json:"serviceReportNo" yaml:"serviceReportNo"`
	ServiceReports   []ServiceReport `json:"serviceReports,omitempty" yaml:"serviceReports,omitempty"`
	CreatedAt        time.Time       `json:"createdAt" yaml:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt" yaml:"updatedAt"`
}

// Value returns the value of the given text field.
func (a *Agency) Value(f Field) string {
	switch f {
	case FieldPerson:
		return a.Person
	case FieldRouteNo:
		return a.RouteNo
	default:
		return ""
	}
}

// Record is an Agency with its calibration history sorted newest first and
// the derived dates attached. Nil pointers mean "absent".
type Record struct {
	Agency                    `yaml:",inline"`
	MostRecentCalibrationDate *time.Time `json:"mostRecentCalibrationDate" yaml:"mostRecentCalibrationDate"`
	DueDate                   *time.Time `json:"dueDate" yaml:"dueDate"`
}

// Patch holds the editable fields of an agency. Nil fields are left unchanged.
// History is never edited through a Patch.
type Patch struct {
	Person      *string `json:"person,omitempty"`
	RouteNo     *string `json:"routeNo,omitempty"`
	AgencyNo    *string `json:"agencyNo,omitempty"`
	Description *string `json:"description,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Person == nil && p.RouteNo == nil && p.AgencyNo == nil && p.Description == nil
}

// Apply writes the non-nil fields of p into a.
func (p Patch) Apply(a *Agency) {
	if p.Person != nil {
		a.Person = *p.Person
	}
	if p.RouteNo != nil {
		a.RouteNo = *p.RouteNo
	}
	if p.AgencyNo != nil {
		a.AgencyNo = *p.AgencyNo
	}
	if p.Description != nil {
		a.Description = *p.Description
	}
}
