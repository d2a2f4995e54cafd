package console

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"dbconsole/internal/dbcluster"
	"dbconsole/internal/eventbus"
	"dbconsole/internal/schedules"
	"dbconsole/internal/storage"
	"dbconsole/internal/task/scheduler"

	"github.com/samber/lo"
)

var ErrUnknownStorage = errors.New("unknown backup storage")

// CreateSchedule adds s (cron in the console timezone) to the cluster.
// PostgreSQL clusters refuse a fourth schedule with a *schedules.PolicyError.
func (s *Service) CreateSchedule(ctx context.Context, ns, cluster string, sch schedules.Schedule) (dbcluster.DatabaseCluster, error) {
	return s.changeSchedules(ctx, "schedule.create", eventbus.ScheduleCreated, ns, cluster, sch.Name,
		func(engine dbcluster.EngineType, list []schedules.Schedule) ([]schedules.Schedule, error) {
			return schedules.ApplyForm(engine, schedules.ModeNew, "", sch, list)
		})
}

// EditSchedule replaces the schedule named oldName with s. A rename onto an
// existing name fails with *schedules.DuplicateNameError.
func (s *Service) EditSchedule(ctx context.Context, ns, cluster, oldName string, sch schedules.Schedule) (dbcluster.DatabaseCluster, error) {
	return s.changeSchedules(ctx, "schedule.update", eventbus.ScheduleUpdated, ns, cluster, oldName,
		func(engine dbcluster.EngineType, list []schedules.Schedule) ([]schedules.Schedule, error) {
			return schedules.ApplyForm(engine, schedules.ModeEdit, oldName, sch, list)
		})
}

// DeleteSchedule removes the named schedule. Deleting a missing name is a
// no-op: nothing is written and the cluster is returned as is.
func (s *Service) DeleteSchedule(ctx context.Context, ns, cluster, name string) (dbcluster.DatabaseCluster, error) {
	return s.changeSchedules(ctx, "schedule.delete", eventbus.ScheduleDeleted, ns, cluster, name,
		func(_ dbcluster.EngineType, list []schedules.Schedule) ([]schedules.Schedule, error) {
			return schedules.Delete(list, name), nil
		})
}

type scheduleChange func(engine dbcluster.EngineType, local []schedules.Schedule) ([]schedules.Schedule, error)

func (s *Service) changeSchedules(ctx context.Context, action, event, ns, cluster, target string, change scheduleChange) (dbcluster.DatabaseCluster, error) {
	started := time.Now()
	ns = s.namespace(ns)
	entry := storage.AuditEntry{Action: action, Namespace: ns, Cluster: cluster, Target: target}

	out, changed, err := s.applyScheduleChange(ctx, ns, cluster, change)
	if !changed && err == nil {
		return out, nil
	}
	s.audit(ctx, entry, started, err)
	if err != nil {
		return dbcluster.DatabaseCluster{}, err
	}
	s.invalidate(ns)
	s.publish(event, ns, cluster, target, out.Spec.Backup.Schedules)
	return out, nil
}

func (s *Service) applyScheduleChange(ctx context.Context, ns, cluster string, change scheduleChange) (dbcluster.DatabaseCluster, bool, error) {
	raw, err := s.be.GetCluster(ctx, ns, cluster)
	if err != nil {
		return dbcluster.DatabaseCluster{}, false, err
	}
	c := s.toLocal(raw)
	engine := c.Spec.Engine.Type
	current := c.Spec.Backup.Schedules

	next, err := change(engine, current)
	if err != nil {
		return dbcluster.DatabaseCluster{}, false, err
	}
	if slices.Equal(current, next) {
		return c, false, nil
	}

	active := c.ActiveStorage()
	if active == "" {
		active = schedules.ActiveStorage(engine, current)
	}
	if err := schedules.ValidateUpdate(engine, current, next, active); err != nil {
		return dbcluster.DatabaseCluster{}, false, err
	}
	if err := s.checkStorages(ctx, ns, next); err != nil {
		return dbcluster.DatabaseCluster{}, false, err
	}

	utc, err := s.toUTC(next, storedCrons(current, raw.Spec.Backup.Schedules))
	if err != nil {
		return dbcluster.DatabaseCluster{}, false, err
	}
	raw.Spec.Backup.Schedules = utc
	raw.Spec.Backup.Enabled = len(utc) > 0 || (raw.Spec.Backup.PITR != nil && raw.Spec.Backup.PITR.Enabled)

	updated, err := s.be.UpdateCluster(ctx, raw)
	if err != nil {
		return dbcluster.DatabaseCluster{}, false, err
	}
	return s.toLocal(updated), true, nil
}

// checkStorages verifies every referenced storage exists in ns.
func (s *Service) checkStorages(ctx context.Context, ns string, list []schedules.Schedule) error {
	names := lo.Uniq(lo.FilterMap(list, func(sch schedules.Schedule, _ int) (string, bool) {
		return sch.BackupStorageName, sch.BackupStorageName != ""
	}))
	if len(names) == 0 {
		return nil
	}
	storages, err := s.be.ListBackupStorages(ctx, ns)
	if err != nil {
		return err
	}
	known := lo.SliceToMap(storages, func(bs dbcluster.BackupStorage) (string, struct{}) { return bs.Name, struct{}{} })
	for _, n := range names {
		if _, ok := known[n]; !ok {
			return invalid(fmt.Errorf("%w %q", ErrUnknownStorage, n))
		}
	}
	return nil
}

// Schedules returns the cluster's schedules in the console timezone.
func (s *Service) Schedules(ctx context.Context, ns, cluster string) ([]schedules.Schedule, error) {
	raw, err := s.be.GetCluster(ctx, s.namespace(ns), cluster)
	if err != nil {
		return nil, err
	}
	return s.toLocal(raw).Spec.Backup.Schedules, nil
}

// NextRuns previews the next n activations of a cluster schedule in the
// console timezone.
func (s *Service) NextRuns(ctx context.Context, ns, cluster, name string, n int) ([]time.Time, error) {
	list, err := s.Schedules(ctx, ns, cluster)
	if err != nil {
		return nil, err
	}
	i := schedules.Index(list, name)
	if i < 0 {
		return nil, &schedules.NotFoundError{Name: name}
	}
	loc, err := time.LoadLocation(s.Timezone())
	if err != nil {
		return nil, invalid(err)
	}
	return scheduler.NextRuns(list[i].Schedule, loc, s.options().Now(), n)
}
