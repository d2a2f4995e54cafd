package app

import (
	"context"
	"html"
	"slices"
	"strings"
	"time"

	"dbconsole/internal/config"
	"dbconsole/pkg/logx"
)

// restartOnly lists sections whose services are built once in NewApp.
var restartOnly = []string{"http", "backend", "storage"}

// applyConfig pushes a validated config to the live services.
func (a *App) applyConfig(ctx context.Context, prev, next *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	for _, s := range sections {
		if slices.Contains(restartOnly, s) {
			a.log.Warn("config section changed; restart required", logx.String("section", s))
		}
	}

	a.logs.Apply(mapLogConfig(next))
	a.console.Apply(mapConsoleOptions(next))

	a.sched.Apply(ctx, mapSchedulerConfig(next))
	if refreshSchedule(prev) != refreshSchedule(next) || prev.Backend.Timeout != next.Backend.Timeout {
		if err := a.scheduleRefresh(next); err != nil {
			a.log.Warn("refresh schedule not updated", logx.Err(err))
		}
	}

	a.applyNotifier(ctx, prev, next)
	if tz := zoneOf(next); tz != zoneOf(prev) && a.notif.Enabled() {
		if err := a.notif.Notify(timezoneNotice(tz)); err != nil {
			a.log.Warn("timezone notice not queued", logx.Err(err))
		}
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) applyNotifier(ctx context.Context, prev, next *config.Config) {
	was := a.notif.Enabled()
	ncfg := mapNotifierConfig(next)
	if tokenOf(prev) != tokenOf(next) {
		a.log.Warn("notifier token changed; restart required")
	}
	a.notif.Apply(ncfg)

	switch now := a.notif.Enabled(); {
	case was && !now:
		stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		a.notif.Stop(stopCtx)
		cancel()
		a.log.Info("notifier disabled via config")
	case !was && now:
		a.notif.Start(ctx)
		a.log.Info("notifier enabled via config")
	case !was && ncfg.Enabled:
		a.log.Warn("notifier enabled but no token was configured at startup")
	}
}

// zoneOf is the console timezone cfg selects, "UTC" when unset.
func zoneOf(cfg *config.Config) string {
	if tz := mapConsoleOptions(cfg).Timezone; tz != "" {
		return tz
	}
	return "UTC"
}

func timezoneNotice(tz string) string {
	return "🕒 Backup schedules are now shown in <b>" + html.EscapeString(tz) + "</b>"
}

func tokenOf(cfg *config.Config) string {
	if cfg == nil || cfg.Notifier == nil {
		return ""
	}
	return strings.TrimSpace(cfg.Notifier.Token)
}
