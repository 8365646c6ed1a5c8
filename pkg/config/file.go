package config

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/agencycal/calib/pkg/utils/ptr"
)

var (
	defaultFileConfig = &RawFileConfig{
		Listen:            ptr.To("127.0.0.1:5513"),
		DatabasePath:      ptr.To("calib.db"),
		TokenSecret:       ptr.To(""),
		TokenTTLMinutes:   ptr.To(12 * 60),
		ReminderCron:      ptr.To(""),
		AllowRegistration: ptr.To(true),
	}
)

var _ Config = &File{}

type File struct {
	c        *RawFileConfig
	mu       *sync.RWMutex
	filepath string
}

func NewFile(configPath string) (*File, error) {
	f := &File{
		filepath: configPath,
		mu:       &sync.RWMutex{},
	}
	err := f.Load()
	if err != nil {
		return nil, err
	}

	return f, nil
}

func NewFileFromConfig(c *RawFileConfig, configPath string) *File {
	if c == nil {
		c = &RawFileConfig{}
	}

	return &File{
		c:        c,
		mu:       &sync.RWMutex{},
		filepath: configPath,
	}
}

type RawFileConfig struct {
	Listen            *string `json:"listen,omitempty"`
	DatabasePath      *string `json:"databasePath,omitempty"`
	TokenSecret       *string `json:"tokenSecret,omitempty"`
	TokenTTLMinutes   *int    `json:"tokenTTLMinutes,omitempty"`
	ReminderCron      *string `json:"reminderCron,omitempty"`
	AllowRegistration *bool   `json:"allowRegistration,omitempty"`
}

// get returns the configured value or the default.
func get[T any](f *File, pick func(*RawFileConfig) *T) T {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if v := pick(f.c); v != nil {
		return *v
	}
	return *pick(defaultFileConfig)
}

func (f *File) set(apply func(*RawFileConfig)) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	apply(f.c)
}

func (f *File) Listen() string {
	return get(f, func(c *RawFileConfig) *string { return c.Listen })
}

// DatabasePath is resolved relative to the config file's directory.
func (f *File) DatabasePath() string {
	p := get(f, func(c *RawFileConfig) *string { return c.DatabasePath })
	if p == ":memory:" || filepath.IsAbs(p) || f.filepath == "" {
		return p
	}
	return filepath.Join(filepath.Dir(f.filepath), p)
}

func (f *File) TokenSecret() string {
	return get(f, func(c *RawFileConfig) *string { return c.TokenSecret })
}

func (f *File) TokenTTL() time.Duration {
	minutes := get(f, func(c *RawFileConfig) *int { return c.TokenTTLMinutes })
	if minutes <= 0 {
		minutes = *defaultFileConfig.TokenTTLMinutes
	}
	return time.Duration(minutes) * time.Minute
}

func (f *File) ReminderCron() string {
	return get(f, func(c *RawFileConfig) *string { return c.ReminderCron })
}

func (f *File) AllowRegistration() bool {
	return get(f, func(c *RawFileConfig) *bool { return c.AllowRegistration })
}

func (f *File) SetListen(s string) {
	f.set(func(c *RawFileConfig) { c.Listen = &s })
}

func (f *File) SetDatabasePath(s string) {
	f.set(func(c *RawFileConfig) { c.DatabasePath = &s })
}

func (f *File) SetTokenSecret(s string) {
	f.set(func(c *RawFileConfig) { c.TokenSecret = &s })
}

func (f *File) SetTokenTTL(d time.Duration) {
	if d < time.Minute {
		panic("token ttl must be at least one minute")
	}
	minutes := int(d / time.Minute)
	f.set(func(c *RawFileConfig) { c.TokenTTLMinutes = &minutes })
}

func (f *File) SetReminderCron(s string) {
	f.set(func(c *RawFileConfig) { c.ReminderCron = &s })
}

func (f *File) SetAllowRegistration(b bool) {
	f.set(func(c *RawFileConfig) { c.AllowRegistration = &b })
}

func (f *File) Load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	fp, err := os.Open(f.filepath)
	if err != nil {
		if os.IsNotExist(err) {
			// If the file does not exist, return the empty config.
			// Do not make f.c a nil.
			f.c = &RawFileConfig{}
			return nil
		}
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	// Since we want to tell if the file is empty, using json.Decoder will
	// not work.
	b, err := io.ReadAll(fp)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to read file %s", f.filepath)
	}

	if strings.TrimSpace(string(b)) == "" {
		f.c = &RawFileConfig{}
		return nil
	}

	conf := RawFileConfig{}
	err = json.Unmarshal(b, &conf)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to unmarshal config from file %s", f.filepath)
	}
	f.c = &conf

	return nil
}

func (f *File) Save() error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c == nil {
		return pkgerrors.New("config is nil")
	}
	if f.filepath == "" {
		return nil
	}

	if dir := filepath.Dir(f.filepath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return pkgerrors.Wrapf(err, "failed to create directory %s", dir)
		}
	}

	// The file holds the token signing secret.
	fp, err := os.OpenFile(f.filepath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	enc := json.NewEncoder(fp)
	enc.SetIndent("", "  ")
	err = enc.Encode(f.c)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to encode config to file %s", f.filepath)
	}

	return nil
}

func (f *File) LogrusFields() logrus.Fields {
	if f.c == nil {
		panic("config is nil")
	}

	return logrus.Fields{
		"listen":            f.Listen(),
		"databasePath":      f.DatabasePath(),
		"tokenSecretSet":    f.TokenSecret() != "",
		"tokenTTL":          f.TokenTTL().String(),
		"reminderCron":      f.ReminderCron(),
		"allowRegistration": f.AllowRegistration(),
	}
}
