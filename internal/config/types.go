package config

type Config struct {
	HTTP    HTTPConfig    `json:"http"`
	Backend BackendConfig `json:"backend"`
	Console ConsoleConfig `json:"console"`
	Logging LoggingConfig `json:"logging"`

	// Scheduler drives periodic background work (cluster cache refresh).
	Scheduler SchedulerConfig `json:"scheduler"`

	Notifier *NotifierConfig `json:"notifier,omitempty"`
	Storage  *StorageConfig  `json:"storage,omitempty"`
}

// HTTPConfig controls the JSON API listener.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type HTTPConfig struct {
	Addr         string `json:"addr"` // default: "127.0.0.1:8080"
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
}

// BackendConfig points at the Kubernetes-style cluster API.
//
// Token is forwarded as a bearer token and never logged.
type BackendConfig struct {
	URL        string  `json:"url"`
	Token      string  `json:"token,omitempty"`
	Timeout    string  `json:"timeout,omitempty"`
	RatePerSec float64 `json:"rate_per_sec,omitempty"`
	Burst      int     `json:"burst,omitempty"`
}

// ConsoleConfig holds user-facing console settings.
//
// Timezone is the local timezone used to display and enter backup schedules.
// Schedules are always stored in UTC on the backend.
type ConsoleConfig struct {
	Timezone         string `json:"timezone,omitempty"`
	RefreshSchedule  string `json:"refresh_schedule,omitempty"` // "every:30s", "cron:*/5 * * * *", "03:00"
	DefaultNamespace string `json:"default_namespace,omitempty"`
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

// SchedulerConfig controls the scheduler (trigger) service.
type SchedulerConfig struct {
	Enabled bool `json:"enabled"`

	// Trigger timezone.
	Timezone string `json:"timezone,omitempty"`
}

// NotifierConfig controls Telegram change notifications.
//
// If the whole section is omitted the notifier is disabled.
type NotifierConfig struct {
	Enabled    bool   `json:"enabled"`
	Token      string `json:"token,omitempty"`
	ChatID     int64  `json:"chat_id"`
	ThreadID   int    `json:"thread_id,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// StorageConfig controls the optional persistence layer (drafts + audit).
//
// Example:
//
//	"storage": { "driver": "file", "path": "./dbconsole_store" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}
