package console

import (
	"context"
	"time"

	"dbconsole/internal/dbcluster"
	"dbconsole/internal/storage"
)

// BackupStorages lists the storage locations visible in ns.
func (s *Service) BackupStorages(ctx context.Context, ns string) ([]dbcluster.BackupStorage, error) {
	return s.be.ListBackupStorages(ctx, s.namespace(ns))
}

// CreateBackupStorage registers a storage location.
func (s *Service) CreateBackupStorage(ctx context.Context, ns string, bs dbcluster.BackupStorage) (dbcluster.BackupStorage, error) {
	started := time.Now()
	ns = s.namespace(ns)
	out, err := s.createBackupStorage(ctx, ns, bs)
	s.audit(ctx, storage.AuditEntry{Action: "storage.create", Namespace: ns, Target: bs.Name}, started, err)
	return out, err
}

func (s *Service) createBackupStorage(ctx context.Context, ns string, bs dbcluster.BackupStorage) (dbcluster.BackupStorage, error) {
	if err := dbcluster.ValidateBackupStorage(bs); err != nil {
		return dbcluster.BackupStorage{}, invalid(err)
	}
	return s.be.CreateBackupStorage(ctx, ns, bs)
}

// MonitoringInstances lists the monitoring endpoints visible in ns.
func (s *Service) MonitoringInstances(ctx context.Context, ns string) ([]dbcluster.MonitoringInstance, error) {
	return s.be.ListMonitoringInstances(ctx, s.namespace(ns))
}

// CreateMonitoringInstance registers a monitoring endpoint.
func (s *Service) CreateMonitoringInstance(ctx context.Context, ns string, mi dbcluster.MonitoringInstance) (dbcluster.MonitoringInstance, error) {
	started := time.Now()
	ns = s.namespace(ns)
	out, err := s.createMonitoringInstance(ctx, ns, mi)
	s.audit(ctx, storage.AuditEntry{Action: "monitoring.create", Namespace: ns, Target: mi.Name}, started, err)
	return out, err
}

func (s *Service) createMonitoringInstance(ctx context.Context, ns string, mi dbcluster.MonitoringInstance) (dbcluster.MonitoringInstance, error) {
	if err := dbcluster.ValidateMonitoringInstance(mi); err != nil {
		return dbcluster.MonitoringInstance{}, invalid(err)
	}
	return s.be.CreateMonitoringInstance(ctx, ns, mi)
}
