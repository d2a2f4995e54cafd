package console

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"dbconsole/internal/dbcluster"
	"dbconsole/internal/eventbus"
	"dbconsole/internal/storage"

	"github.com/samber/lo"
)

// RestoreRequest restores a cluster in place from one of its backups. With
// PointInTime set the restore rolls forward to that instant.
type RestoreRequest struct {
	BackupName  string     `json:"backupName"`
	PointInTime *time.Time `json:"pointInTime,omitempty"`
}

// Restore replaces the cluster's data with the backup named in req.
func (s *Service) Restore(ctx context.Context, ns, cluster string, req RestoreRequest) (dbcluster.DatabaseClusterRestore, error) {
	started := time.Now()
	ns = s.namespace(ns)
	req.BackupName = strings.TrimSpace(req.BackupName)
	entry := storage.AuditEntry{Action: "restore.create", Namespace: ns, Cluster: cluster, Target: req.BackupName}

	r, err := s.startRestore(ctx, ns, cluster, req)
	s.audit(ctx, entry, started, err)
	if err != nil {
		return dbcluster.DatabaseClusterRestore{}, err
	}
	s.publish(eventbus.RestoreRequested, ns, cluster, r.Metadata.Name, req.BackupName)
	return r, nil
}

func (s *Service) startRestore(ctx context.Context, ns, cluster string, req RestoreRequest) (dbcluster.DatabaseClusterRestore, error) {
	if req.BackupName == "" {
		return dbcluster.DatabaseClusterRestore{}, invalid(errors.New("backup name required"))
	}
	backups, err := s.be.ListBackups(ctx, ns, cluster)
	if err != nil {
		return dbcluster.DatabaseClusterRestore{}, err
	}
	b, ok := lo.Find(dbcluster.BackupsFor(cluster, backups), func(b dbcluster.DatabaseClusterBackup) bool {
		return b.Metadata.Name == req.BackupName
	})
	if !ok {
		return dbcluster.DatabaseClusterRestore{}, invalid(fmt.Errorf("cluster %q has no backup %q", cluster, req.BackupName))
	}
	if b.State() != dbcluster.BackupOK {
		return dbcluster.DatabaseClusterRestore{}, invalid(fmt.Errorf("backup %q has not succeeded", req.BackupName))
	}

	ds := dbcluster.DataSource{DBClusterBackupName: req.BackupName}
	if at := req.PointInTime; at != nil {
		if b.Status.Completed != nil && at.Before(*b.Status.Completed) {
			return dbcluster.DatabaseClusterRestore{}, invalid(errors.New("point in time is earlier than the backup"))
		}
		ds.PITR = &dbcluster.DataSourcePITR{Date: at.UTC().Format(time.RFC3339), Type: "date"}
	}
	return s.be.CreateRestore(ctx, dbcluster.DatabaseClusterRestore{
		Metadata: dbcluster.Metadata{Name: "restore-" + shortID(), Namespace: ns},
		Spec:     dbcluster.RestoreSpec{DBClusterName: cluster, DataSource: ds},
	})
}

// Restores lists the cluster's restores.
func (s *Service) Restores(ctx context.Context, ns, cluster string) ([]dbcluster.DatabaseClusterRestore, error) {
	return s.be.ListRestores(ctx, s.namespace(ns), cluster)
}
