package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"dbconsole/pkg/logx"

	"github.com/robfig/cron/v3"
)

// AddSchedule parses schedule and registers a cron or interval job under
// name, replacing any job with the same name.
//
// Supported schedule formats:
//   - Cron: "*/5 * * * *", "55 * * * *", "@hourly", "@every 55m"
//   - Interval duration: "55m", "2h30m"
//   - Interval HH:MM: "00:50" (50 minutes), "02:30" (2 hours 30 minutes)
//
// A trigger that fires while the previous run of the same job is still in
// flight is skipped.
func (s *Service) AddSchedule(name, schedule string, timeout time.Duration, job func(ctx context.Context) error) (string, error) {
	ps, err := ParseSchedule(schedule)
	if err != nil {
		return "", err
	}
	switch ps.Kind {
	case SpecCron:
		if _, err := s.parser.Parse(ps.Cron); err != nil {
			return "", fmt.Errorf("invalid cron %q: %w", ps.Cron, err)
		}
		return s.add(name, ps.Cron, timeout, job)
	case SpecInterval:
		return s.add(name, "@every "+ps.Every.String(), timeout, job)
	default:
		return "", errors.New("unsupported schedule kind")
	}
}

// ValidateSchedule reports whether AddSchedule would accept raw.
func ValidateSchedule(raw string) error {
	ps, err := ParseSchedule(raw)
	if err != nil {
		return err
	}
	if ps.Kind == SpecCron {
		if _, err := specParser.Parse(ps.Cron); err != nil {
			return fmt.Errorf("invalid cron %q: %w", ps.Cron, err)
		}
	}
	return nil
}

func (s *Service) add(name, spec string, timeout time.Duration, job func(ctx context.Context) error) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("name required")
	}
	if job == nil {
		return "", errors.New("job required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	// Upsert by name so hot reloads do not duplicate jobs.
	_ = s.removeScheduleLocked(name)
	s.defs = append(s.defs, scheduleDef{
		name:    name,
		spec:    spec,
		timeout: timeout,
		job:     job,
		running: &atomic.Bool{},
	})
	if s.c == nil {
		// Registered on Start.
		return name, nil
	}
	d := &s.defs[len(s.defs)-1]
	if err := s.addCronLocked(d); err != nil {
		s.log.Error("schedule register failed", logx.String("name", name), logx.String("spec", spec), logx.Err(err))
		return name, err
	}
	fields := []logx.Field{logx.String("name", name), logx.String("spec", spec), logx.Duration("timeout", timeout)}
	if d.startupSpread > 0 {
		fields = append(fields, logx.Duration("spread", d.startupSpread))
	}
	s.log.Debug("schedule registered", fields...)
	return name, nil
}

// Remove unschedules the job with the given name and reports whether
// something was removed. Safe to call before Start.
func (s *Service) Remove(name string) bool {
	s.mu.Lock()
	removed := s.removeScheduleLocked(name)
	s.mu.Unlock()
	if removed {
		s.log.Debug("schedule removed", logx.String("name", name))
	}
	return removed
}

// removeScheduleLocked drops every def matching name. Call with s.mu held.
func (s *Service) removeScheduleLocked(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	removed := false
	n := 0
	for _, d := range s.defs {
		if d.name == name {
			if s.c != nil && d.entryID != 0 {
				s.c.Remove(d.entryID)
			}
			removed = true
			continue
		}
		s.defs[n] = d
		n++
	}
	s.defs = s.defs[:n]
	return removed
}

func (s *Service) addCronLocked(d *scheduleDef) error {
	base := s.base
	job := cron.FuncJob(func() { s.run(base, d.name, d.timeout, d.running, d.job) })

	// Interval schedules get a startup spread so they do not all fire
	// together right after Start.
	spec := strings.TrimSpace(d.spec)
	if strings.HasPrefix(spec, "@every") {
		every, err := time.ParseDuration(strings.TrimSpace(strings.TrimPrefix(spec, "@every")))
		if err == nil && every > 0 {
			sched, jitter := makeIntervalScheduleWithSpread(every, time.Now().In(s.loc), d.name)
			d.startupSpread = jitter
			d.entryID = s.c.Schedule(sched, job)
			return nil
		}
	}

	d.startupSpread = 0
	eid, err := s.c.AddJob(spec, job)
	if err != nil {
		return err
	}
	d.entryID = eid
	return nil
}

func (s *Service) run(base context.Context, name string, timeout time.Duration, running *atomic.Bool, job func(ctx context.Context) error) {
	started := time.Now()
	if !running.CompareAndSwap(false, true) {
		s.log.Debug("schedule trigger skipped", logx.String("schedule", name))
		s.record(HistoryItem{Name: name, Started: started, Skipped: true})
		return
	}
	defer running.Store(false)

	if base == nil {
		base = context.Background()
	}
	ctx := base
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(base, timeout)
		defer cancel()
	}

	err := job(ctx)
	item := HistoryItem{Name: name, Started: started, Duration: time.Since(started)}
	if err != nil {
		item.Error = err.Error()
		s.log.Warn("scheduled job failed", logx.String("schedule", name), logx.Duration("took", item.Duration), logx.Err(err))
	} else {
		s.log.Debug("scheduled job done", logx.String("schedule", name), logx.Duration("took", item.Duration))
	}
	s.record(item)
}

func (s *Service) record(it HistoryItem) {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	s.history = append(s.history, it)
	if over := len(s.history) - historySize; over > 0 {
		s.history = append(s.history[:0], s.history[over:]...)
	}
}

// NextRuns returns the next n activation times of a 5-field cron spec in
// loc, strictly after from. loc nil means UTC.
func NextRuns(spec string, loc *time.Location, from time.Time, n int) ([]time.Time, error) {
	sched, err := cron.ParseStandard(strings.TrimSpace(spec))
	if err != nil {
		return nil, fmt.Errorf("invalid cron %q: %w", spec, err)
	}
	if loc == nil {
		loc = time.UTC
	}
	out := make([]time.Time, 0, max(n, 0))
	t := from.In(loc)
	for range n {
		t = sched.Next(t)
		if t.IsZero() {
			break
		}
		out = append(out, t)
	}
	return out, nil
}
