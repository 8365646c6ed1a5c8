package config

import (
	"time"

	"github.com/sirupsen/logrus"
)

type Config interface {
	Listen() string
	DatabasePath() string
	TokenSecret() string
	TokenTTL() time.Duration
	ReminderCron() string
	AllowRegistration() bool

	SetListen(string)
	SetDatabasePath(string)
	SetTokenSecret(string)
	SetTokenTTL(time.Duration)
	SetReminderCron(string)
	SetAllowRegistration(bool)

	LogrusFields() logrus.Fields

	// Load reads the configuration from the source.
	Load() error
	// Save saves the configuration to the source.
	Save() error
}
