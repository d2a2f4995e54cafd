package console

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"dbconsole/internal/dbcluster"
	"dbconsole/internal/eventbus"
	"dbconsole/internal/overview"
	"dbconsole/internal/storage"
	"dbconsole/internal/wizard"
	"dbconsole/pkg/logx"
)

// Clusters returns the clusters of ns from the cache, loading it on a miss.
func (s *Service) Clusters(ctx context.Context, ns string) ([]dbcluster.DatabaseCluster, error) {
	ns = s.namespace(ns)
	s.mu.RLock()
	cached, ok := s.cache[ns]
	s.mu.RUnlock()
	if ok {
		return slices.Clone(cached.items), nil
	}
	items, err := s.load(ctx, ns)
	if err != nil {
		return nil, err
	}
	return slices.Clone(items), nil
}

func (s *Service) load(ctx context.Context, ns string) ([]dbcluster.DatabaseCluster, error) {
	raw, err := s.be.ListClusters(ctx, ns)
	if err != nil {
		return nil, err
	}
	items := make([]dbcluster.DatabaseCluster, 0, len(raw))
	for _, c := range raw {
		items = append(items, s.toLocal(c))
	}
	at := s.options().Now()
	s.mu.Lock()
	s.cache[ns] = clusterCache{items: items, at: at}
	s.mu.Unlock()
	return items, nil
}

// Refresh reloads every cached namespace plus the default one. A failing
// namespace keeps its previous entry; the first error is returned.
func (s *Service) Refresh(ctx context.Context) error {
	s.mu.RLock()
	set := map[string]struct{}{}
	for ns := range s.cache {
		set[ns] = struct{}{}
	}
	if def := s.opts.DefaultNamespace; def != "" {
		set[def] = struct{}{}
	}
	s.mu.RUnlock()

	started := time.Now()
	namespaces := slices.Sorted(maps.Keys(set))
	var firstErr error
	total := 0
	for _, ns := range namespaces {
		items, err := s.load(ctx, ns)
		if err != nil {
			s.log.Warn("cluster refresh failed", logx.String("namespace", ns), logx.Err(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		total += len(items)
	}
	s.log.Debug("clusters refreshed",
		logx.Strings("namespaces", namespaces),
		logx.Int("clusters", total),
		logx.Duration("took", time.Since(started)),
	)
	s.publish(eventbus.ClustersRefreshed, "", "", "", map[string]int{"namespaces": len(namespaces), "clusters": total})
	return firstErr
}

func (s *Service) invalidate(ns string) {
	s.mu.Lock()
	delete(s.cache, ns)
	s.mu.Unlock()
}

// Overview builds the cluster details cards.
func (s *Service) Overview(ctx context.Context, ns, name string) (overview.Overview, error) {
	ns = s.namespace(ns)
	raw, err := s.be.GetCluster(ctx, ns, name)
	if err != nil {
		return overview.Overview{}, err
	}
	backups, err := s.be.ListBackups(ctx, ns, name)
	if err != nil {
		return overview.Overview{}, err
	}
	return overview.Build(s.toLocal(raw), backups), nil
}

// UpgradeEngine moves the cluster to engine version. Downgrades and major
// version jumps are refused; the current version is a no-op.
func (s *Service) UpgradeEngine(ctx context.Context, ns, name, version string) (dbcluster.DatabaseCluster, error) {
	started := time.Now()
	ns = s.namespace(ns)
	version = strings.TrimSpace(version)
	entry := storage.AuditEntry{Action: "cluster.upgrade", Namespace: ns, Cluster: name, Target: version}

	out, changed, err := s.upgradeEngine(ctx, ns, name, version)
	if !changed && err == nil {
		return out, nil
	}
	s.audit(ctx, entry, started, err)
	if err != nil {
		return dbcluster.DatabaseCluster{}, err
	}
	s.invalidate(ns)
	s.publish(eventbus.ClusterUpdated, ns, name, version, string(out.Spec.Engine.Type))
	return out, nil
}

func (s *Service) upgradeEngine(ctx context.Context, ns, name, version string) (dbcluster.DatabaseCluster, bool, error) {
	raw, err := s.be.GetCluster(ctx, ns, name)
	if err != nil {
		return dbcluster.DatabaseCluster{}, false, err
	}
	if version == raw.Spec.Engine.Version {
		return s.toLocal(raw), false, nil
	}
	if err := dbcluster.ValidateEngineUpgrade(version, raw.Spec.Engine.Version); err != nil {
		return dbcluster.DatabaseCluster{}, false, invalid(err)
	}
	raw.Spec.Engine.Version = version
	updated, err := s.be.UpdateCluster(ctx, raw)
	if err != nil {
		return dbcluster.DatabaseCluster{}, false, err
	}
	return s.toLocal(updated), true, nil
}

// DeleteCluster removes the cluster.
func (s *Service) DeleteCluster(ctx context.Context, ns, name string) error {
	started := time.Now()
	ns = s.namespace(ns)
	err := s.be.DeleteCluster(ctx, ns, name)
	s.audit(ctx, storage.AuditEntry{Action: "cluster.delete", Namespace: ns, Cluster: name}, started, err)
	if err != nil {
		return err
	}
	s.invalidate(ns)
	s.publish(eventbus.ClusterDeleted, ns, name, "", nil)
	return nil
}

// WizardFromCluster prefills the wizard from an existing cluster, either to
// edit it or to restore it into a new one. Schedules are in the console
// timezone.
func (s *Service) WizardFromCluster(ctx context.Context, ns, name string, mode wizard.Mode) (wizard.Values, error) {
	switch mode {
	case wizard.ModeEdit, wizard.ModeRestoreFromBackup:
	default:
		return wizard.Values{}, invalid(fmt.Errorf("wizard mode %q cannot start from a cluster", mode))
	}
	ns = s.namespace(ns)
	raw, err := s.be.GetCluster(ctx, ns, name)
	if err != nil {
		return wizard.Values{}, err
	}
	return wizard.FromCluster(s.toLocal(raw), mode, ns), nil
}
