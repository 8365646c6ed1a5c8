package events

import "encoding/json"

// Event name constants
const (
	AgencyCreated    = "agency.created"
	AgencyUpdated    = "agency.updated"
	AgencyDeleted    = "agency.deleted"
	AgencyDone       = "agency.done"
	AgencyDue        = "agency.due"
	ReminderUpcoming = "reminder.upcoming"
	ReminderChanged  = "reminder.changed"
	ReminderFailed   = "reminder.failed"
)

// Event is a generic SSE event from the server.
type Event struct {
	Name string          // SSE event name
	Data json.RawMessage // Raw JSON payload
}

// AgencyChangedEvent is the payload for agency.created, agency.updated,
// agency.deleted and agency.done.
type AgencyChangedEvent struct {
	ID       string `json:"id"`
	RouteNo  string `json:"routeNo,omitempty"`
	AgencyNo string `json:"agencyNo,omitempty"`
	Person   string `json:"person,omitempty"`
	By       string `json:"by,omitempty"`
	Ts       int64  `json:"ts"`
}

// AgencyDueEvent is published by the reminder for each agency due this month.
type AgencyDueEvent struct {
	ID       string `json:"id"`
	RouteNo  string `json:"routeNo"`
	AgencyNo string `json:"agencyNo"`
	Person   string `json:"person,omitempty"`
	DueDate  string `json:"dueDate"`
	Overdue  bool   `json:"overdue"`
	Ts       int64  `json:"ts"`
}

// ReminderUpcomingEvent announces the next reminder run.
type ReminderUpcomingEvent struct {
	At int64 `json:"at"`
	Ts int64 `json:"ts"`
}

// ReminderChangedEvent is published when the reminder schedule is set,
// disabled, postponed or skipped.
type ReminderChangedEvent struct {
	Action  string `json:"action"`
	Message string `json:"message,omitempty"`
	Ts      int64  `json:"ts"`
}

// ReminderFailedEvent carries a pre-check or run failure of the reminder.
type ReminderFailedEvent struct {
	Error string `json:"error"`
	Ts    int64  `json:"ts"`
}

// DecodeAs decodes the event payload into the caller-specified generic type T.
// It ignores the event name and simply unmarshals Data into T. If Data is empty,
// it returns the zero value of T with a nil error.
//
// Example:
//
//	payload, err := events.DecodeAs[events.AgencyDueEvent](ev)
//	if err != nil { /* handle */ }
//	fmt.Println(payload.RouteNo, payload.DueDate)
func DecodeAs[T any](e Event) (T, error) {
	var zero T
	if len(e.Data) == 0 {
		return zero, nil
	}
	var v T
	if err := json.Unmarshal(e.Data, &v); err != nil {
		return zero, err
	}
	return v, nil
}
