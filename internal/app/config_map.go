package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"remindbot/internal/notifier"
	"remindbot/internal/observability/health"
	"remindbot/internal/scheduler"
	"remindbot/internal/storage"
)

// resolveToken prefers the literal config value; otherwise it falls back to
// the environment variable named by telegram.token_env (default TOKEN).
func resolveToken(cfg *Config) string {
	if tok := strings.TrimSpace(cfg.Telegram.Token); tok != "" {
		return tok
	}
	env := strings.TrimSpace(cfg.Telegram.TokenEnv)
	if env == "" {
		env = "TOKEN"
	}
	return strings.TrimSpace(os.Getenv(env))
}

func mapStorageConfig(cfg *Config) (storage.Config, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	path := strings.TrimSpace(cfg.Storage.Path)
	if path == "" {
		path = "./schedule.json"
	}

	switch driver {
	case "", "file":
		return storage.Config{Driver: "file", Path: path}, nil
	case "sqlite", "sqlite3":
		busy, err := parseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{Driver: driver, Path: path, BusyTimeout: busy}, nil
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", cfg.Storage.Driver)
	}
}

func mapSchedulerConfig(cfg *Config) scheduler.Config {
	return scheduler.Config{
		Enabled:    cfg.Scheduler.Enabled,
		Timezone:   cfg.Scheduler.Timezone,
		TickSpec:   cfg.Scheduler.TickSpec,
		PurgeFired: cfg.Scheduler.PurgeFired,
	}
}

func mapNotifierConfig(cfg *Config) (notifier.Config, error) {
	// Omitted section means "on with defaults": a reminder bot that cannot
	// deliver is pointless.
	nc := notifier.Config{Enabled: true}
	src := cfg.Notifier
	if src == nil {
		return nc, nil
	}
	if src.Enabled != nil {
		nc.Enabled = *src.Enabled
	}
	nc.Workers = src.Workers
	nc.QueueSize = src.QueueSize
	nc.RatePerSec = src.RatePerSec
	nc.RetryMax = src.RetryMax

	var err error
	if nc.RetryBase, err = parseDurationField("notifier.retry_base", src.RetryBase); err != nil {
		return notifier.Config{}, err
	}
	if nc.RetryMaxDelay, err = parseDurationField("notifier.retry_max_delay", src.RetryMaxDelay); err != nil {
		return notifier.Config{}, err
	}
	return nc, nil
}

func mapHealthConfig(cfg *Config) health.Config {
	if cfg.Health == nil {
		return health.Config{}
	}
	return health.Config{Enabled: cfg.Health.Enabled, Addr: cfg.Health.Addr}
}
