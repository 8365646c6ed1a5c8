package types

import "time"

type ReminderStatus struct {
	Cron     string      `json:"cron" yaml:"cron"`
	Enabled  bool        `json:"enabled" yaml:"enabled"`
	NextRuns []time.Time `json:"nextRuns" yaml:"nextRuns"`
}

type SetReminderRequest struct {
	// Cron is the schedule; empty disables the reminder.
	Cron string `json:"cron"`
}

type PostponeRequest struct {
	Duration string `json:"duration" binding:"required"`
}

type NextRunResponse struct {
	NextRun time.Time `json:"nextRun"`
}
