package console

import (
	"context"
	"errors"
	"strings"
	"time"

	"dbconsole/internal/dbcluster"
	"dbconsole/internal/eventbus"
	"dbconsole/internal/schedules"
	"dbconsole/internal/storage"

	"github.com/google/uuid"
)

// OnDemandBackup starts a backup of cluster into storageName. An empty
// storageName falls back to the cluster's active storage, then to its first
// schedule's storage. MongoDB clusters only back up into their active
// storage.
func (s *Service) OnDemandBackup(ctx context.Context, ns, cluster, storageName string) (dbcluster.DatabaseClusterBackup, error) {
	started := time.Now()
	ns = s.namespace(ns)
	entry := storage.AuditEntry{Action: "backup.create", Namespace: ns, Cluster: cluster}

	b, err := s.startBackup(ctx, ns, cluster, strings.TrimSpace(storageName))
	entry.Target = b.Metadata.Name
	s.audit(ctx, entry, started, err)
	if err != nil {
		return dbcluster.DatabaseClusterBackup{}, err
	}
	s.publish(eventbus.BackupRequested, ns, cluster, b.Metadata.Name, b.Spec.BackupStorageName)
	return b, nil
}

func (s *Service) startBackup(ctx context.Context, ns, cluster, storageName string) (dbcluster.DatabaseClusterBackup, error) {
	c, err := s.be.GetCluster(ctx, ns, cluster)
	if err != nil {
		return dbcluster.DatabaseClusterBackup{}, err
	}
	active := c.ActiveStorage()
	if active == "" {
		active = schedules.ActiveStorage(c.Spec.Engine.Type, c.Spec.Backup.Schedules)
	}
	switch {
	case storageName == "":
		storageName = active
	case c.Spec.Engine.Type == dbcluster.EnginePSMDB && active != "" && storageName != active:
		return dbcluster.DatabaseClusterBackup{}, &schedules.PolicyError{Rule: schedules.ErrPSMDBViolateActiveStorage}
	}
	if storageName == "" && len(c.Spec.Backup.Schedules) > 0 {
		storageName = c.Spec.Backup.Schedules[0].BackupStorageName
	}
	if storageName == "" {
		return dbcluster.DatabaseClusterBackup{}, invalid(errors.New("backup storage required"))
	}
	if err := s.checkStorages(ctx, ns, []dbcluster.Schedule{{BackupStorageName: storageName}}); err != nil {
		return dbcluster.DatabaseClusterBackup{}, err
	}
	return s.be.CreateBackup(ctx, dbcluster.DatabaseClusterBackup{
		Metadata: dbcluster.Metadata{Name: backupName(cluster), Namespace: ns},
		Spec:     dbcluster.BackupSpec{DBClusterName: cluster, BackupStorageName: storageName},
	})
}

func backupName(cluster string) string { return cluster + "-" + shortID() }

func shortID() string { return strings.ReplaceAll(uuid.NewString(), "-", "")[:5] }

// Backups lists the cluster's backups.
func (s *Service) Backups(ctx context.Context, ns, cluster string) ([]dbcluster.DatabaseClusterBackup, error) {
	return s.be.ListBackups(ctx, s.namespace(ns), cluster)
}
