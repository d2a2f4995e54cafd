package console

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"dbconsole/internal/backend"
	"dbconsole/internal/dbcluster"
	"dbconsole/internal/eventbus"
	"dbconsole/internal/schedules"
	"dbconsole/internal/wizard"
	"dbconsole/pkg/logx"

	"github.com/go-test/deep"
)

const backendCluster = `{
  "apiVersion": "everest.percona.com/v1alpha1",
  "kind": "DatabaseCluster",
  "metadata": {"name": "pg", "namespace": "team", "resourceVersion": "12", "annotations": {"owner": "payments"}},
  "spec": {
    "allowUnsafeConfiguration": true,
    "podSchedulingPolicyName": "spread",
    "engine": {"type": "postgresql", "version": "16.1", "replicas": 1, "userSecretsName": "pg-secrets", "crVersion": "1.4.0"},
    "backup": {"enabled": true, "schedules": [
      {"name": "a", "enabled": true, "schedule": "0 1 * * *", "backupStorageName": "s3-a"},
      {"name": "b", "enabled": true, "schedule": "0 2 * * *", "backupStorageName": "s3-b"}
    ]}
  }
}`

// everestStub serves one cluster and records the bodies of PUT requests.
type everestStub struct {
	mu   sync.Mutex
	puts [][]byte
}

func (e *everestStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/database-clusters/pg"):
		_, _ = io.WriteString(w, backendCluster)
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/backup-storages"):
		_, _ = io.WriteString(w, `[{"name":"s3-a","type":"s3","bucketName":"a"},{"name":"s3-b","type":"s3","bucketName":"b"},{"name":"s3-c","type":"s3","bucketName":"c"}]`)
	case r.Method == http.MethodPut && strings.HasSuffix(r.URL.Path, "/database-clusters/pg"):
		b, _ := io.ReadAll(r.Body)
		e.mu.Lock()
		e.puts = append(e.puts, b)
		e.mu.Unlock()
		_, _ = w.Write(b)
	default:
		http.NotFound(w, r)
	}
}

func TestScheduleWritesKeepUnmodeledFields(t *testing.T) {
	t.Parallel()
	stub := &everestStub{}
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)
	be, err := backend.New(backend.Config{URL: srv.URL}, srv.Client(), logx.Nop())
	if err != nil {
		t.Fatalf("backend.New: %v", err)
	}
	svc, _, _ := newTestService(t, be, false)
	ctx := context.Background()

	if _, err := svc.DeleteSchedule(ctx, "team", "pg", "b"); err != nil {
		t.Fatalf("DeleteSchedule: %v", err)
	}
	if _, err := svc.CreateSchedule(ctx, "team", "pg", schedules.Schedule{
		Name: "c", Enabled: true, Schedule: "0 4 * * *", BackupStorageName: "s3-c",
	}); err != nil {
		t.Fatalf("CreateSchedule: %v", err)
	}

	stub.mu.Lock()
	defer stub.mu.Unlock()
	if len(stub.puts) != 2 {
		t.Fatalf("PUT count = %d, want 2", len(stub.puts))
	}
	for i, body := range stub.puts {
		var got map[string]any
		if err := json.Unmarshal(body, &got); err != nil {
			t.Fatalf("PUT %d body: %v", i, err)
		}
		meta := got["metadata"].(map[string]any)
		spec := got["spec"].(map[string]any)
		engine := spec["engine"].(map[string]any)
		kept := map[string]any{
			"annotations":              meta["annotations"],
			"allowUnsafeConfiguration": spec["allowUnsafeConfiguration"],
			"podSchedulingPolicyName":  spec["podSchedulingPolicyName"],
			"userSecretsName":          engine["userSecretsName"],
			"crVersion":                engine["crVersion"],
			"resourceVersion":          meta["resourceVersion"],
		}
		want := map[string]any{
			"annotations":              map[string]any{"owner": "payments"},
			"allowUnsafeConfiguration": true,
			"podSchedulingPolicyName":  "spread",
			"userSecretsName":          "pg-secrets",
			"crVersion":                "1.4.0",
			"resourceVersion":          "12",
		}
		if diff := deep.Equal(kept, want); diff != nil {
			t.Fatalf("PUT %d lost fields: %v", i, diff)
		}
	}

	var last dbcluster.DatabaseCluster
	if err := json.Unmarshal(stub.puts[1], &last); err != nil {
		t.Fatalf("decode: %v", err)
	}
	// Local 04:00 in Berlin winter is 03:00 UTC.
	want := []dbcluster.Schedule{
		{Name: "a", Enabled: true, Schedule: "0 1 * * *", BackupStorageName: "s3-a"},
		{Name: "b", Enabled: true, Schedule: "0 2 * * *", BackupStorageName: "s3-b"},
		{Name: "c", Enabled: true, Schedule: "0 3 * * *", BackupStorageName: "s3-c"},
	}
	if diff := deep.Equal(last.Spec.Backup.Schedules, want); diff != nil {
		t.Fatalf("schedules: %v", diff)
	}
}

func TestUnconvertibleScheduleDoesNotBlockOthers(t *testing.T) {
	t.Parallel()
	be := newFakeBackend(pgCluster(
		dbcluster.Schedule{Name: "legacy", Enabled: true, Schedule: "0 */6 * * *", BackupStorageName: "s3-a"},
		dbcluster.Schedule{Name: "b", Enabled: true, Schedule: "0 2 * * *", BackupStorageName: "s3-b"},
	))
	svc, _, _ := newTestService(t, be, false)
	ctx := context.Background()

	got, err := svc.DeleteSchedule(ctx, "team", "pg", "b")
	if err != nil {
		t.Fatalf("DeleteSchedule: %v", err)
	}
	if s := got.Spec.Backup.Schedules; len(s) != 1 || s[0].Schedule != "0 */6 * * *" {
		t.Fatalf("returned schedules = %+v", s)
	}

	if _, err := svc.CreateSchedule(ctx, "team", "pg", schedules.Schedule{
		Name: "c", Enabled: true, Schedule: "30 5 * * *", BackupStorageName: "s3-c",
	}); err != nil {
		t.Fatalf("CreateSchedule: %v", err)
	}
	want := []dbcluster.Schedule{
		{Name: "legacy", Enabled: true, Schedule: "0 */6 * * *", BackupStorageName: "s3-a"},
		{Name: "c", Enabled: true, Schedule: "30 4 * * *", BackupStorageName: "s3-c"},
	}
	if diff := deep.Equal(be.stored("team", "pg").Spec.Backup.Schedules, want); diff != nil {
		t.Fatalf("stored schedules: %v", diff)
	}

	// A new schedule still has to be convertible.
	_, err = svc.CreateSchedule(ctx, "team", "pg", schedules.Schedule{
		Name: "d", Enabled: true, Schedule: "0 */4 * * *", BackupStorageName: "s3-d",
	})
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("err = %v, want invalid", err)
	}
}

func TestUpgradeEngine(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		version string
		wantErr error
		stored  string
	}{
		{"minor upgrade", "16.3", nil, "16.3"},
		{"same version", "16.1", nil, "16.1"},
		{"downgrade", "15.4", dbcluster.ErrEngineDowngrade, "16.1"},
		{"major jump", "17.0", dbcluster.ErrEngineMajorUpgrade, "16.1"},
		{"garbage", "latest", dbcluster.ErrInvalidVersion, "16.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			be := newFakeBackend(pgCluster())
			svc, _, _ := newTestService(t, be, false)

			_, err := svc.UpgradeEngine(context.Background(), "team", "pg", tt.version)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("UpgradeEngine: %v", err)
			}
			if tt.wantErr != nil && (!errors.Is(err, tt.wantErr) || !errors.Is(err, ErrInvalid)) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if v := be.stored("team", "pg").Spec.Engine.Version; v != tt.stored {
				t.Fatalf("stored version = %q, want %q", v, tt.stored)
			}
			if tt.version == "16.1" && be.updates != 0 {
				t.Fatal("unchanged version reached the backend")
			}
		})
	}
}

func TestUpgradeEnginePublishes(t *testing.T) {
	t.Parallel()
	svc, bus, st := newTestService(t, newFakeBackend(pgCluster()), true)
	events, unsub := bus.Subscribe(1)
	defer unsub()

	if _, err := svc.UpgradeEngine(context.Background(), "team", "pg", "16.2"); err != nil {
		t.Fatalf("UpgradeEngine: %v", err)
	}
	e := nextEvent(t, events)
	if e.Type != eventbus.ClusterUpdated || e.Cluster != "pg" || e.Target != "16.2" {
		t.Fatalf("event = %+v", e)
	}
	entries, _ := st.ListAudit(context.Background(), 10)
	if len(entries) != 1 || entries[0].Action != "cluster.upgrade" || !entries[0].OK {
		t.Fatalf("audit = %+v", entries)
	}
}

func TestDeleteCluster(t *testing.T) {
	t.Parallel()
	be := newFakeBackend(pgCluster())
	svc, bus, st := newTestService(t, be, true)
	events, unsub := bus.Subscribe(1)
	defer unsub()
	ctx := context.Background()

	if list, err := svc.Clusters(ctx, "team"); err != nil || len(list) != 1 {
		t.Fatalf("Clusters = %v, %v", list, err)
	}
	if err := svc.DeleteCluster(ctx, "team", "pg"); err != nil {
		t.Fatalf("DeleteCluster: %v", err)
	}
	if e := nextEvent(t, events); e.Type != eventbus.ClusterDeleted || e.Cluster != "pg" {
		t.Fatalf("event = %+v", e)
	}
	if list, err := svc.Clusters(ctx, "team"); err != nil || len(list) != 0 {
		t.Fatalf("Clusters after delete = %v, %v", list, err)
	}
	if err := svc.DeleteCluster(ctx, "team", "pg"); err == nil {
		t.Fatal("second delete should fail")
	}
	entries, _ := st.ListAudit(context.Background(), 10)
	if len(entries) != 2 || entries[0].Action != "cluster.delete" {
		t.Fatalf("audit = %+v", entries)
	}
}

func TestWizardFromCluster(t *testing.T) {
	t.Parallel()
	be := newFakeBackend(pgCluster(dbcluster.Schedule{Name: "a", Enabled: true, Schedule: "0 1 * * *", BackupStorageName: "s3-a"}))
	svc, _, _ := newTestService(t, be, false)
	ctx := context.Background()

	v, err := svc.WizardFromCluster(ctx, "team", "pg", wizard.ModeEdit)
	if err != nil {
		t.Fatalf("WizardFromCluster: %v", err)
	}
	if v.DBName != "pg" || v.DBVersion != "16.1" || v.K8sNamespace != "team" {
		t.Fatalf("values = %+v", v)
	}
	// 01:00 UTC is 02:00 in Berlin.
	if len(v.Schedules) != 1 || v.Schedules[0].Schedule != "0 2 * * *" {
		t.Fatalf("schedules = %+v", v.Schedules)
	}

	v, err = svc.WizardFromCluster(ctx, "team", "pg", wizard.ModeRestoreFromBackup)
	if err != nil || !strings.HasPrefix(v.DBName, "restored-pg-") {
		t.Fatalf("restore values = %q, %v", v.DBName, err)
	}

	if _, err := svc.WizardFromCluster(ctx, "team", "pg", wizard.ModeNew); !errors.Is(err, ErrInvalid) {
		t.Fatalf("new mode err = %v", err)
	}
}

func TestOnDemandBackupMongoActiveStorage(t *testing.T) {
	t.Parallel()
	c := pgCluster(dbcluster.Schedule{Name: "a", Enabled: true, Schedule: "0 1 * * *", BackupStorageName: "s3-a"})
	c.Spec.Engine.Type = dbcluster.EnginePSMDB
	be := newFakeBackend(c)
	svc, _, _ := newTestService(t, be, false)
	ctx := context.Background()

	_, err := svc.OnDemandBackup(ctx, "team", "pg", "s3-b")
	if !errors.Is(err, schedules.ErrPSMDBViolateActiveStorage) {
		t.Fatalf("err = %v, want active storage violation", err)
	}
	if len(be.backups) != 0 {
		t.Fatal("refused backup reached the backend")
	}
	if b, err := svc.OnDemandBackup(ctx, "team", "pg", "s3-a"); err != nil || b.Spec.BackupStorageName != "s3-a" {
		t.Fatalf("active storage backup = %+v, %v", b, err)
	}

	// Other engines may back up anywhere.
	be.clusters["team/pg"] = pgCluster(dbcluster.Schedule{Name: "a", Enabled: true, Schedule: "0 1 * * *", BackupStorageName: "s3-a"})
	if b, err := svc.OnDemandBackup(ctx, "team", "pg", "s3-b"); err != nil || b.Spec.BackupStorageName != "s3-b" {
		t.Fatalf("postgres backup = %+v, %v", b, err)
	}
}

func TestRestore(t *testing.T) {
	t.Parallel()
	done := time.Date(2024, 1, 14, 3, 0, 0, 0, time.UTC)
	be := newFakeBackend(pgCluster())
	be.backups = []dbcluster.DatabaseClusterBackup{
		{
			Metadata: dbcluster.Metadata{Name: "pg-ok"},
			Spec:     dbcluster.BackupSpec{DBClusterName: "pg", BackupStorageName: "s3-a"},
			Status:   &dbcluster.BackupStatus{State: "Succeeded", Completed: &done},
		},
		{
			Metadata: dbcluster.Metadata{Name: "pg-running"},
			Spec:     dbcluster.BackupSpec{DBClusterName: "pg", BackupStorageName: "s3-a"},
			Status:   &dbcluster.BackupStatus{State: "Running"},
		},
		{
			Metadata: dbcluster.Metadata{Name: "other-ok"},
			Spec:     dbcluster.BackupSpec{DBClusterName: "other", BackupStorageName: "s3-a"},
			Status:   &dbcluster.BackupStatus{State: "Succeeded", Completed: &done},
		},
	}
	svc, bus, _ := newTestService(t, be, false)
	events, unsub := bus.Subscribe(1)
	defer unsub()
	ctx := context.Background()

	early := done.Add(-time.Hour)
	later := time.Date(2024, 1, 14, 6, 30, 0, 0, time.FixedZone("CET", 3600))
	for _, req := range []RestoreRequest{
		{},
		{BackupName: "missing"},
		{BackupName: "pg-running"},
		{BackupName: "other-ok"},
		{BackupName: "pg-ok", PointInTime: &early},
	} {
		if _, err := svc.Restore(ctx, "team", "pg", req); !errors.Is(err, ErrInvalid) {
			t.Fatalf("Restore(%+v) err = %v, want invalid", req, err)
		}
	}

	r, err := svc.Restore(ctx, "team", "pg", RestoreRequest{BackupName: " pg-ok ", PointInTime: &later})
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	want := dbcluster.RestoreSpec{
		DBClusterName: "pg",
		DataSource: dbcluster.DataSource{
			DBClusterBackupName: "pg-ok",
			PITR:                &dbcluster.DataSourcePITR{Date: "2024-01-14T05:30:00Z", Type: "date"},
		},
	}
	if diff := deep.Equal(r.Spec, want); diff != nil {
		t.Fatalf("restore spec: %v", diff)
	}
	if !strings.HasPrefix(r.Metadata.Name, "restore-") || r.Metadata.Namespace != "team" {
		t.Fatalf("restore metadata = %+v", r.Metadata)
	}
	if e := nextEvent(t, events); e.Type != eventbus.RestoreRequested || e.Target != r.Metadata.Name {
		t.Fatalf("event = %+v", e)
	}
	if list, err := svc.Restores(ctx, "", "pg"); err != nil || len(list) != 1 {
		t.Fatalf("Restores = %v, %v", list, err)
	}
}

func TestBackupStoragesAndMonitoring(t *testing.T) {
	t.Parallel()
	be := newFakeBackend()
	svc, _, st := newTestService(t, be, true)
	ctx := context.Background()

	if _, err := svc.CreateBackupStorage(ctx, "", dbcluster.BackupStorage{Name: "Bad_Name", Type: dbcluster.StorageS3}); !errors.Is(err, ErrInvalid) {
		t.Fatalf("bad storage err = %v", err)
	}
	bs := dbcluster.BackupStorage{Name: "s3-e", Type: dbcluster.StorageS3, BucketName: "bucket", Region: "eu-central-1", URL: "https://s3.example.com"}
	if _, err := svc.CreateBackupStorage(ctx, "", bs); err != nil {
		t.Fatalf("CreateBackupStorage: %v", err)
	}
	list, err := svc.BackupStorages(ctx, "")
	if err != nil || len(list) != 5 || list[4].Name != "s3-e" {
		t.Fatalf("BackupStorages = %v, %v", list, err)
	}

	if _, err := svc.CreateMonitoringInstance(ctx, "", dbcluster.MonitoringInstance{Name: "pmm", Type: "pmm", URL: "not a url"}); !errors.Is(err, ErrInvalid) {
		t.Fatalf("bad monitoring err = %v", err)
	}
	mi := dbcluster.MonitoringInstance{Name: "pmm", Type: "pmm", URL: "https://pmm.example.com"}
	if _, err := svc.CreateMonitoringInstance(ctx, "", mi); err != nil {
		t.Fatalf("CreateMonitoringInstance: %v", err)
	}
	if got, err := svc.MonitoringInstances(ctx, ""); err != nil || len(got) != 1 {
		t.Fatalf("MonitoringInstances = %v, %v", got, err)
	}

	entries, _ := st.ListAudit(ctx, 10)
	actions := map[string]int{}
	for _, e := range entries {
		actions[e.Action]++
	}
	if diff := deep.Equal(actions, map[string]int{"storage.create": 2, "monitoring.create": 2}); diff != nil {
		t.Fatalf("audit actions: %v", diff)
	}
}
