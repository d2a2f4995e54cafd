package backend

import (
	"context"
	"net/http"

	"dbconsole/internal/dbcluster"
)

func (c *Client) ListClusters(ctx context.Context, ns string) ([]dbcluster.DatabaseCluster, error) {
	var out list[dbcluster.DatabaseCluster]
	if err := c.do(ctx, http.MethodGet, c.endpoint("namespaces", ns, "database-clusters"), nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

func (c *Client) GetCluster(ctx context.Context, ns, name string) (dbcluster.DatabaseCluster, error) {
	var out dbcluster.DatabaseCluster
	err := c.do(ctx, http.MethodGet, c.endpoint("namespaces", ns, "database-clusters", name), nil, &out)
	return out, err
}

func (c *Client) CreateCluster(ctx context.Context, cl dbcluster.DatabaseCluster) (dbcluster.DatabaseCluster, error) {
	cl.APIVersion, cl.Kind = dbcluster.APIVersion, dbcluster.Kind
	var out dbcluster.DatabaseCluster
	err := c.do(ctx, http.MethodPost, c.endpoint("namespaces", cl.Metadata.Namespace, "database-clusters"), cl, &out)
	return out, err
}

// UpdateCluster replaces the cluster. cl.Metadata.ResourceVersion should come
// from a fresh GetCluster so the backend can reject stale writes.
func (c *Client) UpdateCluster(ctx context.Context, cl dbcluster.DatabaseCluster) (dbcluster.DatabaseCluster, error) {
	var out dbcluster.DatabaseCluster
	err := c.do(ctx, http.MethodPut, c.endpoint("namespaces", cl.Metadata.Namespace, "database-clusters", cl.Metadata.Name), cl, &out)
	return out, err
}

func (c *Client) DeleteCluster(ctx context.Context, ns, name string) error {
	return c.do(ctx, http.MethodDelete, c.endpoint("namespaces", ns, "database-clusters", name), nil, nil)
}

func (c *Client) ListBackups(ctx context.Context, ns, cluster string) ([]dbcluster.DatabaseClusterBackup, error) {
	var out list[dbcluster.DatabaseClusterBackup]
	if err := c.do(ctx, http.MethodGet, c.endpoint("namespaces", ns, "database-clusters", cluster, "backups"), nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

func (c *Client) CreateBackup(ctx context.Context, b dbcluster.DatabaseClusterBackup) (dbcluster.DatabaseClusterBackup, error) {
	b.APIVersion, b.Kind = dbcluster.APIVersion, "DatabaseClusterBackup"
	var out dbcluster.DatabaseClusterBackup
	err := c.do(ctx, http.MethodPost, c.endpoint("namespaces", b.Metadata.Namespace, "database-cluster-backups"), b, &out)
	return out, err
}

func (c *Client) ListRestores(ctx context.Context, ns, cluster string) ([]dbcluster.DatabaseClusterRestore, error) {
	var out list[dbcluster.DatabaseClusterRestore]
	if err := c.do(ctx, http.MethodGet, c.endpoint("namespaces", ns, "database-clusters", cluster, "restores"), nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

func (c *Client) CreateRestore(ctx context.Context, r dbcluster.DatabaseClusterRestore) (dbcluster.DatabaseClusterRestore, error) {
	r.APIVersion, r.Kind = dbcluster.APIVersion, "DatabaseClusterRestore"
	var out dbcluster.DatabaseClusterRestore
	err := c.do(ctx, http.MethodPost, c.endpoint("namespaces", r.Metadata.Namespace, "database-cluster-restores"), r, &out)
	return out, err
}

func (c *Client) ListBackupStorages(ctx context.Context, ns string) ([]dbcluster.BackupStorage, error) {
	var out []dbcluster.BackupStorage
	err := c.do(ctx, http.MethodGet, c.endpoint("namespaces", ns, "backup-storages"), nil, &out)
	return out, err
}

// CreateBackupStorage validates bs locally before sending it.
func (c *Client) CreateBackupStorage(ctx context.Context, ns string, bs dbcluster.BackupStorage) (dbcluster.BackupStorage, error) {
	if err := dbcluster.ValidateBackupStorage(bs); err != nil {
		return dbcluster.BackupStorage{}, err
	}
	var out dbcluster.BackupStorage
	err := c.do(ctx, http.MethodPost, c.endpoint("namespaces", ns, "backup-storages"), bs, &out)
	return out, err
}

func (c *Client) ListMonitoringInstances(ctx context.Context, ns string) ([]dbcluster.MonitoringInstance, error) {
	var out []dbcluster.MonitoringInstance
	err := c.do(ctx, http.MethodGet, c.endpoint("namespaces", ns, "monitoring-instances"), nil, &out)
	return out, err
}

// CreateMonitoringInstance validates mi locally before sending it.
func (c *Client) CreateMonitoringInstance(ctx context.Context, ns string, mi dbcluster.MonitoringInstance) (dbcluster.MonitoringInstance, error) {
	if err := dbcluster.ValidateMonitoringInstance(mi); err != nil {
		return dbcluster.MonitoringInstance{}, err
	}
	var out dbcluster.MonitoringInstance
	err := c.do(ctx, http.MethodPost, c.endpoint("namespaces", ns, "monitoring-instances"), mi, &out)
	return out, err
}
