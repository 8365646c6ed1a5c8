package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.json")
	f, err := NewFile(path)
	if err != nil {
		t.Fatalf("NewFile() failed: %v", err)
	}

	if got := f.Listen(); got != "127.0.0.1:5513" {
		t.Errorf("Listen() = %q", got)
	}
	if got := f.TokenTTL(); got != 12*time.Hour {
		t.Errorf("TokenTTL() = %s", got)
	}
	if !f.AllowRegistration() {
		t.Errorf("AllowRegistration() should default to true")
	}
	if got, want := f.DatabasePath(), filepath.Join(filepath.Dir(path), "calib.db"); got != want {
		t.Errorf("DatabasePath() = %q, want %q", got, want)
	}
}

func TestFileEmptyContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calib.json")
	if err := os.WriteFile(path, []byte("  \n"), 0600); err != nil {
		t.Fatal(err)
	}
	f, err := NewFile(path)
	if err != nil {
		t.Fatalf("NewFile() failed on empty file: %v", err)
	}
	if f.ReminderCron() != "" {
		t.Errorf("expected empty reminder cron")
	}
}

func TestFileSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "calib.json")
	f, err := NewFile(path)
	if err != nil {
		t.Fatal(err)
	}

	f.SetListen(":8080")
	f.SetReminderCron("0 9 1 * *")
	f.SetTokenSecret("s3cret")
	f.SetTokenTTL(90 * time.Minute)
	f.SetAllowRegistration(false)
	f.SetDatabasePath("/var/lib/calib/calib.db")
	if err := f.Save(); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("config file permissions = %o, want 600", perm)
	}

	g, err := NewFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if g.Listen() != ":8080" || g.ReminderCron() != "0 9 1 * *" || g.TokenSecret() != "s3cret" {
		t.Errorf("unexpected reloaded config: %+v", g.LogrusFields())
	}
	if g.TokenTTL() != 90*time.Minute {
		t.Errorf("TokenTTL() = %s", g.TokenTTL())
	}
	if g.AllowRegistration() {
		t.Errorf("AllowRegistration() should be false")
	}
	if g.DatabasePath() != "/var/lib/calib/calib.db" {
		t.Errorf("absolute database path should be kept, got %q", g.DatabasePath())
	}
}

func TestFileInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calib.json")
	if err := os.WriteFile(path, []byte("{"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFile(path); err == nil {
		t.Fatalf("expected error for invalid JSON")
	}
}

func TestLogrusFieldsHideSecret(t *testing.T) {
	f := NewFileFromConfig(&RawFileConfig{}, "")
	f.SetTokenSecret("do-not-print")
	fields := f.LogrusFields()
	for k, v := range fields {
		if s, ok := v.(string); ok && s == "do-not-print" {
			t.Fatalf("secret leaked in field %s", k)
		}
	}
	if fields["tokenSecretSet"] != true {
		t.Errorf("tokenSecretSet = %v", fields["tokenSecretSet"])
	}
}
