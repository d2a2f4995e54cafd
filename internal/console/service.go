// Package console is the orchestration layer behind the HTTP API. It pulls
// clusters from the backend, applies schedule and wizard rules, writes the
// result back, then records an audit entry and publishes a bus event.
//
// Clusters returned by the service carry backup schedules in the console
// timezone; the backend always sees UTC.
package console

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"dbconsole/internal/dbcluster"
	"dbconsole/internal/eventbus"
	"dbconsole/internal/storage"
	"dbconsole/pkg/logx"
)

// Backend is the subset of the REST client the service needs.
type Backend interface {
	ListClusters(ctx context.Context, ns string) ([]dbcluster.DatabaseCluster, error)
	GetCluster(ctx context.Context, ns, name string) (dbcluster.DatabaseCluster, error)
	CreateCluster(ctx context.Context, c dbcluster.DatabaseCluster) (dbcluster.DatabaseCluster, error)
	UpdateCluster(ctx context.Context, c dbcluster.DatabaseCluster) (dbcluster.DatabaseCluster, error)
	DeleteCluster(ctx context.Context, ns, name string) error

	ListBackups(ctx context.Context, ns, cluster string) ([]dbcluster.DatabaseClusterBackup, error)
	CreateBackup(ctx context.Context, b dbcluster.DatabaseClusterBackup) (dbcluster.DatabaseClusterBackup, error)
	ListRestores(ctx context.Context, ns, cluster string) ([]dbcluster.DatabaseClusterRestore, error)
	CreateRestore(ctx context.Context, r dbcluster.DatabaseClusterRestore) (dbcluster.DatabaseClusterRestore, error)

	ListBackupStorages(ctx context.Context, ns string) ([]dbcluster.BackupStorage, error)
	CreateBackupStorage(ctx context.Context, ns string, bs dbcluster.BackupStorage) (dbcluster.BackupStorage, error)
	ListMonitoringInstances(ctx context.Context, ns string) ([]dbcluster.MonitoringInstance, error)
	CreateMonitoringInstance(ctx context.Context, ns string, mi dbcluster.MonitoringInstance) (dbcluster.MonitoringInstance, error)
}

var ErrInvalid = errors.New("invalid request")

// InvalidError marks a request the console refused before reaching the
// backend.
type InvalidError struct{ Err error }

func (e *InvalidError) Error() string { return e.Err.Error() }

func (e *InvalidError) Unwrap() error { return e.Err }

func (e *InvalidError) Is(target error) bool { return target == ErrInvalid }

func invalid(err error) error {
	if err == nil {
		return nil
	}
	return &InvalidError{Err: err}
}

type Options struct {
	Timezone         string // console timezone for schedules; empty means UTC
	DefaultNamespace string
	Actor            string // recorded in audit entries
	Now              func() time.Time
}

type Service struct {
	be    Backend
	store storage.Store // nil when storage is disabled
	bus   eventbus.Bus
	log   logx.Logger

	mu    sync.RWMutex
	opts  Options
	cache map[string]clusterCache
}

type clusterCache struct {
	items []dbcluster.DatabaseCluster
	at    time.Time
}

func New(be Backend, store storage.Store, bus eventbus.Bus, opts Options, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.New()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		be:    be,
		store: store,
		bus:   bus,
		log:   log.With(logx.String("comp", "console")),
		opts:  opts,
		cache: map[string]clusterCache{},
	}
}

// Apply swaps timezone, default namespace and actor on config reload. The
// cluster cache is dropped so schedules are re-rendered in the new zone.
func (s *Service) Apply(opts Options) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if opts.Now == nil {
		opts.Now = s.opts.Now
	}
	if opts.Timezone != s.opts.Timezone {
		s.cache = map[string]clusterCache{}
	}
	s.opts = opts
}

func (s *Service) options() Options {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.opts
}

// Timezone returns the console timezone name ("UTC" when unset).
func (s *Service) Timezone() string {
	if tz := strings.TrimSpace(s.options().Timezone); tz != "" {
		return tz
	}
	return "UTC"
}

func (s *Service) namespace(ns string) string {
	if ns = strings.TrimSpace(ns); ns != "" {
		return ns
	}
	return s.options().DefaultNamespace
}

// audit records e and logs the outcome. Storage failures never fail the
// operation.
func (s *Service) audit(ctx context.Context, e storage.AuditEntry, started time.Time, err error) {
	e.At = s.options().Now()
	e.Actor = s.options().Actor
	e.TookMS = time.Since(started).Milliseconds()
	e.OK = err == nil
	if err != nil {
		e.Error = err.Error()
	}

	fields := []logx.Field{
		logx.String("action", e.Action),
		logx.String("namespace", e.Namespace),
		logx.String("cluster", e.Cluster),
		logx.String("target", e.Target),
		logx.Int64("took_ms", e.TookMS),
	}
	if err != nil {
		s.log.Warn("console action failed", append(fields, logx.Err(err))...)
	} else {
		s.log.Info("console action", fields...)
	}

	if s.store == nil {
		return
	}
	if aerr := s.store.AppendAudit(ctx, e); aerr != nil {
		s.log.Warn("audit append failed", logx.Err(aerr))
	}
}

// Audit returns the newest audit entries.
func (s *Service) Audit(ctx context.Context, limit int) ([]storage.AuditEntry, error) {
	if s.store == nil {
		return nil, storage.ErrDisabled
	}
	return s.store.ListAudit(ctx, limit)
}

func (s *Service) publish(typ, ns, cluster, target string, data any) {
	s.bus.Publish(eventbus.Event{
		Type:      typ,
		Time:      s.options().Now(),
		Namespace: ns,
		Cluster:   cluster,
		Target:    target,
		Data:      data,
	})
}
