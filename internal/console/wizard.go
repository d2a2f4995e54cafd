package console

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"dbconsole/internal/dbcluster"
	"dbconsole/internal/eventbus"
	"dbconsole/internal/storage"
	"dbconsole/internal/wizard"
	"dbconsole/pkg/logx"
)

// SubmitWizard validates v, maps it to a cluster and creates it. Schedules in
// v are read in the console timezone. The returned cluster is local again.
func (s *Service) SubmitWizard(ctx context.Context, v wizard.Values, ds *dbcluster.DataSource) (dbcluster.DatabaseCluster, error) {
	started := time.Now()
	v.K8sNamespace = s.namespace(v.K8sNamespace)
	entry := storage.AuditEntry{Action: "cluster.create", Namespace: v.K8sNamespace, Cluster: v.DBName}
	if ds != nil && ds.DBClusterBackupName != "" {
		entry.Target = ds.DBClusterBackupName
	}

	out, err := s.submit(ctx, v, ds)
	s.audit(ctx, entry, started, err)
	if err != nil {
		return dbcluster.DatabaseCluster{}, err
	}
	s.invalidate(v.K8sNamespace)
	s.publish(eventbus.ClusterCreated, v.K8sNamespace, v.DBName, "", string(v.DBType))
	return out, nil
}

func (s *Service) submit(ctx context.Context, v wizard.Values, ds *dbcluster.DataSource) (dbcluster.DatabaseCluster, error) {
	if err := wizard.Validate(v).Err(); err != nil {
		return dbcluster.DatabaseCluster{}, err
	}
	c, err := wizard.ToClusterAt(v, ds, s.Timezone(), s.options().Now())
	if err != nil {
		return dbcluster.DatabaseCluster{}, invalid(err)
	}
	if err := dbcluster.ValidateSpec(c); err != nil {
		return dbcluster.DatabaseCluster{}, invalid(err)
	}
	if err := s.checkStorages(ctx, c.Metadata.Namespace, c.Spec.Backup.Schedules); err != nil {
		return dbcluster.DatabaseCluster{}, err
	}
	created, err := s.be.CreateCluster(ctx, c)
	if err != nil {
		return dbcluster.DatabaseCluster{}, err
	}
	return s.toLocal(created), nil
}

// Draft is a saved wizard form.
type Draft struct {
	ID        string        `json:"id"`
	Values    wizard.Values `json:"values"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

func draftFrom(d storage.Draft) (Draft, error) {
	out := Draft{ID: d.ID, CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt}
	if err := json.Unmarshal(d.Values, &out.Values); err != nil {
		return Draft{}, fmt.Errorf("draft %s: %w", d.ID, err)
	}
	return out, nil
}

// SaveDraft stores v under id. An empty id creates a new draft. Drafts are not
// validated.
func (s *Service) SaveDraft(ctx context.Context, id string, v wizard.Values) (Draft, error) {
	if s.store == nil {
		return Draft{}, storage.ErrDisabled
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return Draft{}, err
	}
	saved, err := s.store.PutDraft(ctx, storage.Draft{
		ID:        id,
		Namespace: v.K8sNamespace,
		Name:      v.DBName,
		Values:    raw,
	})
	if err != nil {
		return Draft{}, err
	}
	return draftFrom(saved)
}

func (s *Service) LoadDraft(ctx context.Context, id string) (Draft, error) {
	if s.store == nil {
		return Draft{}, storage.ErrDisabled
	}
	d, err := s.store.GetDraft(ctx, id)
	if err != nil {
		return Draft{}, err
	}
	return draftFrom(d)
}

func (s *Service) DeleteDraft(ctx context.Context, id string) error {
	if s.store == nil {
		return storage.ErrDisabled
	}
	return s.store.DeleteDraft(ctx, id)
}

// ListDrafts returns drafts newest first. Unreadable drafts are skipped.
func (s *Service) ListDrafts(ctx context.Context) ([]Draft, error) {
	if s.store == nil {
		return nil, storage.ErrDisabled
	}
	raw, err := s.store.ListDrafts(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Draft, 0, len(raw))
	for _, d := range raw {
		dr, err := draftFrom(d)
		if err != nil {
			s.log.Warn("skipping draft", logx.Err(err))
			continue
		}
		out = append(out, dr)
	}
	return out, nil
}
