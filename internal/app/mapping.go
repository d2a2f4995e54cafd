package app

import (
	"fmt"
	"strings"
	"time"

	"dbconsole/internal/backend"
	"dbconsole/internal/config"
	"dbconsole/internal/console"
	"dbconsole/internal/httpapi"
	"dbconsole/internal/notifier"
	"dbconsole/internal/storage"
	"dbconsole/internal/task/scheduler"
	"dbconsole/pkg/logx"
)

const refreshJob = "console.refresh_schedule"

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)
	switch driver {
	case "", "none":
		return storage.Config{}, false, nil
	case "file":
		if path == "" {
			path = "./dbconsole_store"
		}
		return storage.Config{Driver: "file", Path: path}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: driver, Path: path, BusyTimeout: busy}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapBackendConfig(cfg *config.Config) (backend.Config, error) {
	timeout, err := config.ParseDurationOrDefault("backend.timeout", cfg.Backend.Timeout, config.DefaultBackendTimeout)
	if err != nil {
		return backend.Config{}, err
	}
	return backend.Config{
		URL:        cfg.Backend.URL,
		Token:      cfg.Backend.Token,
		Timeout:    timeout,
		RatePerSec: cfg.Backend.RatePerSec,
		Burst:      cfg.Backend.Burst,
	}, nil
}

func mapConsoleOptions(cfg *config.Config) console.Options {
	ns := strings.TrimSpace(cfg.Console.DefaultNamespace)
	if ns == "" {
		ns = config.DefaultNamespace
	}
	return console.Options{
		Timezone:         strings.TrimSpace(cfg.Console.Timezone),
		DefaultNamespace: ns,
		Actor:            "dbconsole",
	}
}

func refreshSchedule(cfg *config.Config) string {
	if s := strings.TrimSpace(cfg.Console.RefreshSchedule); s != "" {
		return s
	}
	return config.DefaultRefreshSchedule
}

func mapSchedulerConfig(cfg *config.Config) scheduler.Config {
	return scheduler.Config{Enabled: cfg.Scheduler.Enabled, Timezone: cfg.Scheduler.Timezone}
}

func mapNotifierConfig(cfg *config.Config) notifier.Config {
	n := cfg.Notifier
	if n == nil {
		return notifier.Config{}
	}
	return notifier.Config{
		Enabled:    n.Enabled,
		ChatID:     n.ChatID,
		ThreadID:   n.ThreadID,
		RatePerSec: n.RatePerSec,
		RetryMax:   2,
	}
}

func mapHTTPOptions(cfg *config.Config) (addr string, opts httpapi.Options, err error) {
	addr = strings.TrimSpace(cfg.HTTP.Addr)
	if addr == "" {
		addr = config.DefaultHTTPAddr
	}
	if opts.ReadTimeout, err = config.ParseDurationOrDefault("http.read_timeout", cfg.HTTP.ReadTimeout, 15*time.Second); err != nil {
		return "", httpapi.Options{}, err
	}
	if opts.WriteTimeout, err = config.ParseDurationOrDefault("http.write_timeout", cfg.HTTP.WriteTimeout, 30*time.Second); err != nil {
		return "", httpapi.Options{}, err
	}
	return addr, opts, nil
}
