package config

type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Notifier  *NotifierConfig `json:"notifier,omitempty"`
	Health    *HealthConfig   `json:"health,omitempty"`

	// MaxLifetime is a Go duration string. When set, the process shuts itself
	// down after this long (some free hosting tiers recycle long-lived
	// processes less gracefully than a clean self-restart).
	MaxLifetime string `json:"max_lifetime,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// TokenEnv names an environment variable to read the token from when
	// Token is empty. Defaults to TOKEN.
	TokenEnv string `json:"token_env,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig controls the reminder persistence layer.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./schedule.json" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// SchedulerConfig controls the reminder reconciliation loop.
//
// Timezone is the single civil timezone ALL schedule matching happens in,
// independent of the host's local zone. TickSpec is a cron expression for the
// tick trigger; the default fires on every minute boundary, which is also the
// coarsest cadence that cannot skip a scheduled minute.
type SchedulerConfig struct {
	Enabled    bool   `json:"enabled"`
	Timezone   string `json:"timezone,omitempty"`
	TickSpec   string `json:"tick_spec,omitempty"`
	PurgeFired bool   `json:"purge_fired,omitempty"`
}

// NotifierConfig controls the async delivery pipeline.
//
// All durations are Go duration strings (e.g. "500ms", "10s").
// If the whole section is omitted, the notifier defaults to enabled.
type NotifierConfig struct {
	Enabled       *bool  `json:"enabled,omitempty"`
	Workers       int    `json:"workers,omitempty"`
	QueueSize     int    `json:"queue_size,omitempty"`
	RatePerSec    int    `json:"rate_per_sec,omitempty"`
	RetryMax      int    `json:"retry_max,omitempty"`
	RetryBase     string `json:"retry_base,omitempty"`
	RetryMaxDelay string `json:"retry_max_delay,omitempty"`
}

// HealthConfig controls the optional liveness HTTP endpoint.
// Hosting platforms that probe the process for liveness point at this.
type HealthConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default: "127.0.0.1:8090"
}
