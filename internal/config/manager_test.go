package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestParseJSON(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{
  "telegram": { "token": "123:abc", "poll_timeout": "15s" },
  "logging": { "level": "debug", "console": true, "file": { "enabled": false, "path": "" } },
  "storage": { "driver": "file", "path": "./schedule.json" },
  "scheduler": { "enabled": true, "timezone": "Asia/Bangkok" }
}`)

	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
	if !cfg.Scheduler.Enabled || cfg.Scheduler.Timezone != "Asia/Bangkok" {
		t.Fatalf("scheduler = %+v", cfg.Scheduler)
	}
	if cfg.Storage.Driver != "file" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
}

func TestParseYAML(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.yaml", `
telegram:
  token: "123:abc"
logging:
  level: info
  console: true
storage:
  driver: file
  path: ./schedule.json
scheduler:
  enabled: true
  purge_fired: true
notifier:
  workers: 3
  retry_base: 250ms
`)

	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Scheduler.PurgeFired {
		t.Fatalf("purge_fired not parsed: %+v", cfg.Scheduler)
	}
	if cfg.Notifier == nil || cfg.Notifier.Workers != 3 || cfg.Notifier.RetryBase != "250ms" {
		t.Fatalf("notifier = %+v", cfg.Notifier)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{
  "telegram": { "token": "x" },
  "scheduler": { "enabled": true, "workerz": 3 }
}`)

	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatalf("expected unknown-field error")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{"telegram":{"token":"x"}}{"extra":true}`)

	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatalf("expected trailing-data error")
	}
}

func TestParseMissingFile(t *testing.T) {
	t.Parallel()
	if _, err := NewManager(filepath.Join(t.TempDir(), "nope.json")).Parse(); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{raw: "", want: "0s"},
		{raw: "500ms", want: "500ms"},
		{raw: "2m", want: "2m0s"},
		{raw: "-1s", wantErr: true},
		{raw: "fast", wantErr: true},
	}
	for _, tt := range tests {
		d, err := ParseDurationField("test.field", tt.raw)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("ParseDurationField(%q): expected error", tt.raw)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseDurationField(%q): %v", tt.raw, err)
		}
		if d.String() != tt.want {
			t.Fatalf("ParseDurationField(%q) = %v, want %v", tt.raw, d, tt.want)
		}
	}
}

func TestSubscribePublishUnsubscribe(t *testing.T) {
	t.Parallel()
	m := NewManager("unused")
	ch := m.Subscribe(1)

	cfg := &Config{}
	m.publish(cfg)
	select {
	case got := <-ch:
		if got != cfg {
			t.Fatalf("wrong config delivered")
		}
	default:
		t.Fatalf("nothing delivered")
	}

	// A full buffer drops the oldest, keeps the newest.
	first, second := &Config{MaxLifetime: "1h"}, &Config{MaxLifetime: "2h"}
	m.publish(first)
	m.publish(second)
	if got := <-ch; got != second {
		t.Fatalf("expected newest config, got %+v", got)
	}

	m.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Fatalf("channel not closed after Unsubscribe")
	}
}
