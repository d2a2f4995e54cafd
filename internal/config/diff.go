package config

import (
	"sort"
	"strings"

	"dbconsole/pkg/logx"
)

// SummarizeConfigChange returns a sorted list of changed sections and safe
// structured attrs for logging. Secrets (tokens) are only reported as
// "set"/"unset".
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 7)
	attrs := make([]logx.Field, 0, 20)

	if oldCfg.HTTP != newCfg.HTTP {
		changed = append(changed, "http")
		attrs = append(attrs,
			logx.String("http.addr", strings.TrimSpace(newCfg.HTTP.Addr)),
			logx.String("http.read_timeout", newCfg.HTTP.ReadTimeout),
			logx.String("http.write_timeout", newCfg.HTTP.WriteTimeout),
		)
	}

	ob, nb := oldCfg.Backend, newCfg.Backend
	if strings.TrimSpace(ob.URL) != strings.TrimSpace(nb.URL) ||
		ob.Timeout != nb.Timeout ||
		ob.RatePerSec != nb.RatePerSec ||
		ob.Burst != nb.Burst ||
		ob.Token != nb.Token {
		changed = append(changed, "backend")
		attrs = append(attrs,
			logx.String("backend.url", strings.TrimSpace(nb.URL)),
			logx.Bool("backend.token_set", strings.TrimSpace(nb.Token) != ""),
			logx.String("backend.timeout", nb.Timeout),
			logx.Float64("backend.rate_per_sec", nb.RatePerSec),
		)
	}

	if oldCfg.Console != newCfg.Console {
		changed = append(changed, "console")
		attrs = append(attrs,
			logx.String("console.timezone", newCfg.Console.Timezone),
			logx.String("console.refresh_schedule", newCfg.Console.RefreshSchedule),
			logx.String("console.default_namespace", newCfg.Console.DefaultNamespace),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.Scheduler.Enabled != newCfg.Scheduler.Enabled ||
		strings.TrimSpace(oldCfg.Scheduler.Timezone) != strings.TrimSpace(newCfg.Scheduler.Timezone) {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Bool("scheduler.enabled", newCfg.Scheduler.Enabled),
			logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)),
		)
	}

	// Nil notifier means disabled.
	on, nn := derefNotifier(oldCfg.Notifier), derefNotifier(newCfg.Notifier)
	if on != nn {
		changed = append(changed, "notifier")
		attrs = append(attrs,
			logx.Bool("notifier.enabled", nn.Enabled),
			logx.Bool("notifier.token_set", strings.TrimSpace(nn.Token) != ""),
			logx.Int64("notifier.chat_id", nn.ChatID),
			logx.Int("notifier.rate_per_sec", nn.RatePerSec),
		)
	}

	var oS, nS StorageConfig
	if oldCfg.Storage != nil {
		oS = *oldCfg.Storage
	}
	if newCfg.Storage != nil {
		nS = *newCfg.Storage
	}
	if strings.TrimSpace(oS.Driver) != strings.TrimSpace(nS.Driver) ||
		strings.TrimSpace(oS.BusyTimeout) != strings.TrimSpace(nS.BusyTimeout) ||
		strings.TrimSpace(oS.Path) != strings.TrimSpace(nS.Path) {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(nS.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(nS.Path) != ""),
			logx.String("storage.busy_timeout", strings.TrimSpace(nS.BusyTimeout)),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

func derefNotifier(n *NotifierConfig) NotifierConfig {
	if n == nil {
		return NotifierConfig{}
	}
	return *n
}
