package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultHTTPAddr        = "127.0.0.1:8080"
	DefaultBackendTimeout  = 15 * time.Second
	DefaultRefreshSchedule = "every:1m"
	DefaultNamespace       = "default"
)

// Validate checks static constraints that don't need any running service.
// The scheduler timezone is checked when loaded (it falls back to the local
// zone with a warning). The console timezone is checked here because schedule
// writes depend on it.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error

	if raw := strings.TrimSpace(cfg.Backend.URL); raw == "" {
		errs = append(errs, errors.New("backend.url: required"))
	} else if u, err := url.Parse(raw); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("backend.url: invalid url %q", raw))
	}
	if cfg.Backend.RatePerSec < 0 {
		errs = append(errs, errors.New("backend.rate_per_sec: must be >= 0"))
	}
	if cfg.Backend.Burst < 0 {
		errs = append(errs, errors.New("backend.burst: must be >= 0"))
	}

	if tz := strings.TrimSpace(cfg.Console.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			errs = append(errs, fmt.Errorf("console.timezone: %w", err))
		}
	}

	for path, raw := range map[string]string{
		"http.read_timeout":    cfg.HTTP.ReadTimeout,
		"http.write_timeout":   cfg.HTTP.WriteTimeout,
		"backend.timeout":      cfg.Backend.Timeout,
		"storage.busy_timeout": storageBusy(cfg.Storage),
	} {
		if _, err := ParseDurationOrDefault(path, raw, 0); err != nil {
			errs = append(errs, err)
		}
	}

	if cfg.Storage != nil {
		switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
		case "", "none", "file", "sqlite", "sqlite3":
		default:
			errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver))
		}
	}

	if n := cfg.Notifier; n != nil && n.Enabled {
		if strings.TrimSpace(n.Token) == "" {
			errs = append(errs, errors.New("notifier.token: required when enabled"))
		}
		if n.ChatID == 0 {
			errs = append(errs, errors.New("notifier.chat_id: required when enabled"))
		}
		if n.RatePerSec < 0 {
			errs = append(errs, errors.New("notifier.rate_per_sec: must be >= 0"))
		}
	}

	return errors.Join(errs...)
}

func storageBusy(s *StorageConfig) string {
	if s == nil {
		return ""
	}
	return s.BusyTimeout
}

// DurationError reports a duration setting that does not parse or is
// negative.
type DurationError struct {
	Path string
	Raw  string
	Err  error // nil when the value parsed but is negative
}

func (e *DurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %q is not a duration: %v", e.Path, e.Raw, e.Err)
	}
	return fmt.Sprintf("%s: %q is negative", e.Path, e.Raw)
}

func (e *DurationError) Unwrap() error { return e.Err }

// ParseDurationOrDefault reads a Go duration setting. Blank and zero mean def.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	switch {
	case err != nil:
		return 0, &DurationError{Path: path, Raw: raw, Err: err}
	case d < 0:
		return 0, &DurationError{Path: path, Raw: raw}
	case d == 0:
		return def, nil
	}
	return d, nil
}
