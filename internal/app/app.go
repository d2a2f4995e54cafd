// Package app wires the console services together and owns their lifecycle.
package app

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"dbconsole/internal/backend"
	"dbconsole/internal/config"
	"dbconsole/internal/console"
	"dbconsole/internal/eventbus"
	"dbconsole/internal/httpapi"
	"dbconsole/internal/notifier"
	"dbconsole/internal/runtime/supervisor"
	"dbconsole/internal/storage"
	"dbconsole/internal/task/scheduler"
	"dbconsole/pkg/logx"

	"github.com/coreos/go-systemd/v22/daemon"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	console *console.Service
	sched   *scheduler.Service
	notif   *notifier.Service
	http    *httpapi.Server

	httpAddr string
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg))
	appLog := log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log)
		if err != nil {
			return nil, err
		}
		store = st
		appLog.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	bcfg, err := mapBackendConfig(cfg)
	if err != nil {
		return nil, err
	}
	be, err := backend.New(bcfg, nil, log.With(logx.String("comp", "backend")))
	if err != nil {
		return nil, err
	}

	svc := console.New(be, store, bus, mapConsoleOptions(cfg), log)
	sched := scheduler.New(mapSchedulerConfig(cfg), log.With(logx.String("comp", "scheduler")))

	a := &App{
		cfgm:    cfgm,
		log:     appLog,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		console: svc,
		sched:   sched,
	}
	if err := a.scheduleRefresh(cfg); err != nil {
		return nil, err
	}

	var sender notifier.Sender
	if n := cfg.Notifier; n != nil && strings.TrimSpace(n.Token) != "" {
		tg, err := notifier.NewTelegram(n.Token)
		if err != nil {
			return nil, fmt.Errorf("notifier: %w", err)
		}
		sender = tg
	}
	a.notif = notifier.New(mapNotifierConfig(cfg), sender, bus, log)

	addr, hopts, err := mapHTTPOptions(cfg)
	if err != nil {
		return nil, err
	}
	hopts.Scheduler = func() any { return sched.Snapshot() }
	a.http = httpapi.New(svc, hopts, log)
	a.httpAddr = addr

	return a, nil
}

// validate runs the static checks plus the ones that need service parsers.
func validate(cfg *config.Config) error {
	if err := config.Validate(cfg); err != nil {
		return err
	}
	if err := scheduler.ValidateSchedule(refreshSchedule(cfg)); err != nil {
		return fmt.Errorf("console.refresh_schedule: %w", err)
	}
	return nil
}

// scheduleRefresh (re)registers the cluster cache refresh job.
func (a *App) scheduleRefresh(cfg *config.Config) error {
	timeout, err := config.ParseDurationOrDefault("backend.timeout", cfg.Backend.Timeout, config.DefaultBackendTimeout)
	if err != nil {
		return err
	}
	_, err = a.sched.AddSchedule(refreshJob, refreshSchedule(cfg), 2*timeout, a.console.Refresh)
	return err
}

// Done is closed when the app supervisor context is canceled.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.httpAddr)
	if err != nil {
		return fmt.Errorf("http listen %s: %w", a.httpAddr, err)
	}

	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	run := a.sup.Context()

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error { return validate(cfg) })

	a.sched.Start(run)
	a.notif.Start(run)

	a.sup.Go("http", func(c context.Context) error {
		return a.http.Serve(c, ln, 5*time.Second)
	})

	// Warm the cluster cache so the first page load doesn't wait on the backend.
	a.sup.Go("console.warmup", func(c context.Context) error {
		if err := a.console.Refresh(c); err != nil {
			a.log.Warn("initial cluster refresh failed", logx.Err(err))
		}
		return nil
	})

	if a.log.Enabled(logx.LevelDebug) {
		events, unsub := a.bus.Subscribe(64)
		a.sup.Go("events.debug", func(c context.Context) error {
			defer unsub()
			for {
				select {
				case <-c.Done():
					return nil
				case e, ok := <-events:
					if !ok {
						return nil
					}
					a.log.Debug("event",
						logx.String("type", e.Type),
						logx.String("namespace", e.Namespace),
						logx.String("cluster", e.Cluster),
						logx.String("target", e.Target),
					)
				}
			}
		})
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return nil
			case next, ok := <-sub:
				if !ok {
					return nil
				}
				// Coalesce bursts; only the newest config matters.
				for drained := false; !drained; {
					select {
					case newer := <-sub:
						if newer != nil {
							next = newer
						}
					default:
						drained = true
					}
				}
				a.applyConfig(c, last, next)
				last = next
			}
		}
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.notifySystemd()
	a.log.Info("app started", logx.String("http", ln.Addr().String()))
	return nil
}

// notifySystemd reports readiness and feeds the watchdog when running as a
// Type=notify unit. Outside systemd both calls are no-ops.
func (a *App) notifySystemd() {
	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn("systemd notify failed", logx.Err(err))
	} else if sent {
		a.log.Debug("systemd notified ready")
	}

	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return
	}
	a.sup.Go("systemd.watchdog", func(c context.Context) error {
		t := time.NewTicker(interval / 2)
		defer t.Stop()
		for {
			select {
			case <-c.Done():
				return nil
			case <-t.C:
				_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
			}
		}
	})
}
