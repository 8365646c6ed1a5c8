package types

// CreateAgencyRequest holds a new agency. Dates are YYYY-MM-DD.
type CreateAgencyRequest struct {
	Person           string   `json:"person,omitempty"`
	RouteNo          string   `json:"routeNo" binding:"required,min=2"`
	AgencyNo         string   `json:"agencyNo" binding:"required,min=2"`
	Description      string   `json:"description" binding:"required,min=2"`
	CalibrationDates []string `json:"calibrationDates,omitempty"`
	ServiceReportNo  []string `json:"serviceReportNo,omitempty"`
}

// UpdateAgencyRequest changes the non-nil fields.
type UpdateAgencyRequest struct {
	Person      *string `json:"person,omitempty"`
	RouteNo     *string `json:"routeNo,omitempty" binding:"omitempty,min=2"`
	AgencyNo    *string `json:"agencyNo,omitempty" binding:"omitempty,min=2"`
	Description *string `json:"description,omitempty" binding:"omitempty,min=2"`
}

// DoneRequest records a completed calibration visit.
type DoneRequest struct {
	ServiceReportNo string `json:"serviceReportNo" binding:"required"`
	// Date defaults to today on the server.
	Date        string `json:"date,omitempty"`
	Description string `json:"description,omitempty"`
}

// ListOptions are the query parameters of the agency list.
type ListOptions struct {
	Query string
	// Field is "person" or "routeNo"; empty means routeNo.
	Field string
	// Month is 0-indexed (0 = January). Nil means every month.
	Month *int
}
