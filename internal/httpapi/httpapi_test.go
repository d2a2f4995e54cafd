package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"dbconsole/internal/backend"
	"dbconsole/internal/console"
	"dbconsole/internal/dbcluster"
	"dbconsole/internal/eventbus"
	"dbconsole/internal/schedules"
	"dbconsole/internal/storage"
	"dbconsole/pkg/logx"

	"github.com/go-test/deep"
)

type memBackend struct {
	mu       sync.Mutex
	clusters map[string]dbcluster.DatabaseCluster
	backups  []dbcluster.DatabaseClusterBackup
	restores []dbcluster.DatabaseClusterRestore
	storages []dbcluster.BackupStorage
	monitors []dbcluster.MonitoringInstance
}

func (m *memBackend) ListClusters(_ context.Context, ns string) ([]dbcluster.DatabaseCluster, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []dbcluster.DatabaseCluster
	for _, c := range m.clusters {
		if c.Metadata.Namespace == ns {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memBackend) GetCluster(_ context.Context, ns, name string) (dbcluster.DatabaseCluster, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clusters[name]
	if !ok || c.Metadata.Namespace != ns {
		return dbcluster.DatabaseCluster{}, &backend.APIError{Status: http.StatusNotFound, Message: "cluster not found"}
	}
	return c, nil
}

func (m *memBackend) CreateCluster(_ context.Context, c dbcluster.DatabaseCluster) (dbcluster.DatabaseCluster, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.clusters[c.Metadata.Name]; ok {
		return dbcluster.DatabaseCluster{}, &backend.APIError{Status: http.StatusConflict, Message: "exists"}
	}
	m.clusters[c.Metadata.Name] = c
	return c, nil
}

func (m *memBackend) UpdateCluster(_ context.Context, c dbcluster.DatabaseCluster) (dbcluster.DatabaseCluster, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clusters[c.Metadata.Name] = c
	return c, nil
}

func (m *memBackend) ListBackups(_ context.Context, _, cluster string) ([]dbcluster.DatabaseClusterBackup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return dbcluster.BackupsFor(cluster, m.backups), nil
}

func (m *memBackend) CreateBackup(_ context.Context, b dbcluster.DatabaseClusterBackup) (dbcluster.DatabaseClusterBackup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.backups = append(m.backups, b)
	return b, nil
}

func (m *memBackend) ListBackupStorages(context.Context, string) ([]dbcluster.BackupStorage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]dbcluster.BackupStorage{{Name: "s3-a"}, {Name: "s3-b"}, {Name: "s3-c"}, {Name: "s3-d"}}, m.storages...), nil
}

func (m *memBackend) DeleteCluster(_ context.Context, ns, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.clusters[name]; !ok || c.Metadata.Namespace != ns {
		return &backend.APIError{Status: http.StatusNotFound, Message: "cluster not found"}
	}
	delete(m.clusters, name)
	return nil
}

func (m *memBackend) ListRestores(context.Context, string, string) ([]dbcluster.DatabaseClusterRestore, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.restores, nil
}

func (m *memBackend) CreateRestore(_ context.Context, r dbcluster.DatabaseClusterRestore) (dbcluster.DatabaseClusterRestore, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.restores = append(m.restores, r)
	return r, nil
}

func (m *memBackend) CreateBackupStorage(_ context.Context, _ string, bs dbcluster.BackupStorage) (dbcluster.BackupStorage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.storages = append(m.storages, bs)
	return bs, nil
}

func (m *memBackend) ListMonitoringInstances(context.Context, string) ([]dbcluster.MonitoringInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.monitors, nil
}

func (m *memBackend) CreateMonitoringInstance(_ context.Context, _ string, mi dbcluster.MonitoringInstance) (dbcluster.MonitoringInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.monitors = append(m.monitors, mi)
	return mi, nil
}

func newTestServer(t *testing.T, withStore bool) *Server {
	t.Helper()
	be := &memBackend{clusters: map[string]dbcluster.DatabaseCluster{
		"pg": {
			Metadata: dbcluster.Metadata{Name: "pg", Namespace: "team"},
			Spec: dbcluster.Spec{
				Engine: dbcluster.Engine{Type: dbcluster.EnginePostgresql, Version: "16.1", Replicas: 1,
					Resources: dbcluster.Resources{CPU: "1", Memory: "2G"}, Storage: dbcluster.Storage{Size: "25Gi"}},
				Backup: dbcluster.Backup{Enabled: true, Schedules: []dbcluster.Schedule{
					{Name: "a", Enabled: true, Schedule: "0 1 * * *", BackupStorageName: "s3-a"},
				}},
			},
		},
	}}
	var st storage.Store
	if withStore {
		var err error
		st, err = storage.Open(storage.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "api")}, logx.Nop())
		if err != nil {
			t.Fatalf("storage.Open: %v", err)
		}
		t.Cleanup(func() { _ = st.Close() })
	}
	svc := console.New(be, st, eventbus.New(), console.Options{
		Timezone:         "Europe/Berlin",
		DefaultNamespace: "team",
		Now:              func() time.Time { return time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC) },
	}, logx.Nop())
	return New(svc, Options{Scheduler: func() any { return map[string]bool{"enabled": true} }}, logx.Nop())
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	rec := do(t, newTestServer(t, false), http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	got := decode[map[string]string](t, rec)
	if got["timezone"] != "Europe/Berlin" {
		t.Fatalf("body = %v", got)
	}
}

func TestScheduleLifecycle(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, false)
	base := "/api/namespaces/team/clusters/pg/schedules"

	rec := do(t, s, http.MethodGet, base, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	list := decode[struct {
		Timezone string               `json:"timezone"`
		Items    []dbcluster.Schedule `json:"items"`
	}](t, rec)
	if list.Timezone != "Europe/Berlin" || len(list.Items) != 1 || list.Items[0].Schedule != "0 2 * * *" {
		t.Fatalf("list = %+v", list)
	}

	rec = do(t, s, http.MethodPost, base, `{"name":"b","enabled":true,"schedule":"0 5 * * *","backupStorageName":"s3-b"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(t, s, http.MethodPost, base, `{"name":"b","enabled":true,"schedule":"0 6 * * *","backupStorageName":"s3-c"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate status = %d", rec.Code)
	}

	rec = do(t, s, http.MethodPut, base+"/b", `{"name":"b","enabled":true,"schedule":"0 7 * * *","backupStorageName":"s3-b"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("edit status = %d: %s", rec.Code, rec.Body.String())
	}
	edited := decode[dbcluster.DatabaseCluster](t, rec)
	if got := edited.Spec.Backup.Schedules[1].Schedule; got != "0 7 * * *" {
		t.Fatalf("edited schedule = %q", got)
	}

	rec = do(t, s, http.MethodPut, base+"/ghost", `{"name":"ghost","schedule":"0 8 * * *","backupStorageName":"s3-d"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("edit missing status = %d", rec.Code)
	}

	rec = do(t, s, http.MethodDelete, base+"/b", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	if got := decode[dbcluster.DatabaseCluster](t, rec); len(got.Spec.Backup.Schedules) != 1 {
		t.Fatalf("schedules after delete = %+v", got.Spec.Backup.Schedules)
	}
}

func TestScheduleErrors(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, false)
	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"bad json", http.MethodPost, "/api/namespaces/team/clusters/pg/schedules", `{`, http.StatusBadRequest},
		{"unknown storage", http.MethodPost, "/api/namespaces/team/clusters/pg/schedules", `{"name":"x","schedule":"0 3 * * *","backupStorageName":"nope"}`, http.StatusBadRequest},
		{"unsupported cron", http.MethodPost, "/api/namespaces/team/clusters/pg/schedules", `{"name":"x","schedule":"*/5 * * * *","backupStorageName":"s3-b"}`, http.StatusBadRequest},
		{"storage change on pg", http.MethodPut, "/api/namespaces/team/clusters/pg/schedules/a", `{"name":"a","schedule":"0 3 * * *","backupStorageName":"s3-b"}`, http.StatusConflict},
		{"missing cluster", http.MethodGet, "/api/namespaces/team/clusters/nope/schedules", "", http.StatusNotFound},
		{"bad n", http.MethodGet, "/api/namespaces/team/clusters/pg/schedules/a/next?n=0", "", http.StatusBadRequest},
	}
	for _, tt := range tests {
		rec := do(t, s, tt.method, tt.path, tt.body)
		if rec.Code != tt.status {
			t.Fatalf("%s: status = %d, want %d (%s)", tt.name, rec.Code, tt.status, rec.Body.String())
		}
		if body := decode[errorBody](t, rec); body.Error == "" {
			t.Fatalf("%s: empty error body", tt.name)
		}
	}
}

func TestNextRuns(t *testing.T) {
	t.Parallel()
	rec := do(t, newTestServer(t, false), http.MethodGet, "/api/namespaces/team/clusters/pg/schedules/a/next?n=3", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	got := decode[struct {
		Runs []time.Time `json:"runs"`
	}](t, rec)
	if len(got.Runs) != 3 {
		t.Fatalf("runs = %v", got.Runs)
	}
	if d := got.Runs[1].Sub(got.Runs[0]); d != 24*time.Hour {
		t.Fatalf("run spacing = %v", d)
	}
}

func TestOverviewAndBackup(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, false)

	rec := do(t, s, http.MethodPost, "/api/namespaces/team/clusters/pg/backups", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("backup status = %d: %s", rec.Code, rec.Body.String())
	}
	b := decode[dbcluster.DatabaseClusterBackup](t, rec)
	if b.Spec.BackupStorageName != "s3-a" {
		t.Fatalf("backup = %+v", b)
	}

	rec = do(t, s, http.MethodGet, "/api/namespaces/team/clusters/pg/overview", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("overview status = %d", rec.Code)
	}
	ov := decode[map[string]json.RawMessage](t, rec)
	for _, k := range []string{"details", "resources", "backups"} {
		if _, ok := ov[k]; !ok {
			t.Fatalf("overview missing %q: %s", k, rec.Body.String())
		}
	}

	rec = do(t, s, http.MethodGet, "/api/namespaces/team/clusters/pg/backups", "")
	items := decode[struct {
		Items []dbcluster.DatabaseClusterBackup `json:"items"`
	}](t, rec)
	if len(items.Items) != 1 {
		t.Fatalf("backups = %+v", items)
	}
}

const mysqlForm = `{"dbType":"mysql","dbName":"mysql-1","dbVersion":"8.0.36","storageClass":"standard",
"numberOfNodes":"1","numberOfProxies":"1","customNrOfNodes":"1","customNrOfProxies":"1",
"resourceSizePerNode":"small","resourceSizePerProxy":"small","cpu":1,"proxyCpu":1,"memory":2,"proxyMemory":2,
"disk":25,"diskUnit":"Gi","shardNr":"1","shardConfigServers":"1","sourceRanges":[{}],
"schedules":[{"name":"daily","enabled":true,"schedule":"0 3 * * *","backupStorageName":"s3-a"}]}`

func TestWizardEndpoints(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, false)

	rec := do(t, s, http.MethodPost, "/api/wizard/validate", `{"dbType":"mysql","dbName":"Bad_Name"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("validate status = %d", rec.Code)
	}
	res := decode[struct {
		OK     bool `json:"ok"`
		Errors []struct {
			Field string `json:"field"`
		} `json:"errors"`
	}](t, rec)
	if res.OK || len(res.Errors) == 0 {
		t.Fatalf("validate = %+v", res)
	}

	rec = do(t, s, http.MethodPost, "/api/wizard/preview", mysqlForm)
	lines := decode[struct {
		Lines []string `json:"lines"`
	}](t, rec)
	if len(lines.Lines) == 0 || lines.Lines[0] != "Nº nodes: 1" {
		t.Fatalf("preview = %v", lines.Lines)
	}

	rec = do(t, s, http.MethodPost, "/api/wizard/submit", fmt.Sprintf(`{"values":%s}`, mysqlForm))
	if rec.Code != http.StatusCreated {
		t.Fatalf("submit status = %d: %s", rec.Code, rec.Body.String())
	}
	rec = do(t, s, http.MethodPost, "/api/wizard/submit", fmt.Sprintf(`{"values":%s}`, mysqlForm))
	if rec.Code != http.StatusConflict {
		t.Fatalf("resubmit status = %d", rec.Code)
	}

	rec = do(t, s, http.MethodPost, "/api/wizard/submit", `{"values":{"dbType":"mysql","dbName":"Bad_Name"}}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid submit status = %d", rec.Code)
	}
	if body := decode[errorBody](t, rec); len(body.Fields) == 0 {
		t.Fatalf("invalid submit should list fields: %s", rec.Body.String())
	}
}

func TestDraftEndpoints(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, true)

	rec := do(t, s, http.MethodPost, "/api/drafts", `{"dbType":"mysql","dbName":"half"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}
	d := decode[console.Draft](t, rec)

	rec = do(t, s, http.MethodPut, "/api/drafts/"+d.ID, `{"dbType":"mysql","dbName":"done"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("put status = %d", rec.Code)
	}
	rec = do(t, s, http.MethodGet, "/api/drafts/"+d.ID, "")
	if got := decode[console.Draft](t, rec); got.Values.DBName != "done" {
		t.Fatalf("draft = %+v", got)
	}

	rec = do(t, s, http.MethodGet, "/api/drafts", "")
	if got := decode[struct {
		Items []console.Draft `json:"items"`
	}](t, rec); len(got.Items) != 1 {
		t.Fatalf("drafts = %+v", got)
	}

	if rec = do(t, s, http.MethodDelete, "/api/drafts/"+d.ID, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	if rec = do(t, s, http.MethodGet, "/api/drafts/"+d.ID, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("get deleted status = %d", rec.Code)
	}
	if rec = do(t, s, http.MethodGet, "/api/drafts/not-a-uuid", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad id status = %d", rec.Code)
	}
}

func TestDraftsDisabled(t *testing.T) {
	t.Parallel()
	rec := do(t, newTestServer(t, false), http.MethodGet, "/api/drafts", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestConvertCron(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, false)

	rec := do(t, s, http.MethodPost, "/api/cron/convert", `{"expr":"0 23 * * 6","from":"UTC","to":"Asia/Tokyo"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	want := map[string]string{"expr": "0 8 * * 0", "from": "UTC", "to": "Asia/Tokyo"}
	if diff := deep.Equal(decode[map[string]string](t, rec), want); diff != nil {
		t.Fatalf("convert: %v", diff)
	}

	if rec = do(t, s, http.MethodPost, "/api/cron/convert", `{"expr":"0 1 * * *","to":"Mars/Base"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad tz status = %d", rec.Code)
	}
}

func TestSchedulerSnapshot(t *testing.T) {
	t.Parallel()
	rec := do(t, newTestServer(t, false), http.MethodGet, "/api/scheduler", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "enabled") {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
}

func TestClusterEndpoints(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, false)
	base := "/api/namespaces/team/clusters/pg"

	rec := do(t, s, http.MethodGet, base+"/wizard?mode=edit", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("wizard status = %d: %s", rec.Code, rec.Body.String())
	}
	v := decode[struct {
		DBName    string               `json:"dbName"`
		Schedules []schedules.Schedule `json:"schedules"`
	}](t, rec)
	if v.DBName != "pg" || len(v.Schedules) != 1 || v.Schedules[0].Schedule != "0 2 * * *" {
		t.Fatalf("wizard values = %+v", v)
	}
	if rec := do(t, s, http.MethodGet, base+"/wizard?mode=new", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("wizard new mode status = %d", rec.Code)
	}

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"downgrade", `{"version":"15.0"}`, http.StatusBadRequest},
		{"major", `{"version":"17.1"}`, http.StatusBadRequest},
		{"minor", `{"version":"16.4"}`, http.StatusOK},
	}
	for _, tt := range tests {
		rec := do(t, s, http.MethodPut, base+"/engine", tt.body)
		if rec.Code != tt.status {
			t.Fatalf("%s: status = %d, want %d (%s)", tt.name, rec.Code, tt.status, rec.Body.String())
		}
	}
	rec = do(t, s, http.MethodGet, base+"/overview", "")
	if !strings.Contains(rec.Body.String(), "16.4") {
		t.Fatalf("overview after upgrade: %s", rec.Body.String())
	}

	if rec := do(t, s, http.MethodDelete, base, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d: %s", rec.Code, rec.Body.String())
	}
	if rec := do(t, s, http.MethodDelete, base, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d", rec.Code)
	}
}

func TestRestoreEndpoints(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, false)
	base := "/api/namespaces/team/clusters/pg/restores"

	if rec := do(t, s, http.MethodPost, base, `{"backupName":"nope"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing backup status = %d", rec.Code)
	}

	rec := do(t, s, http.MethodGet, base, "")
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != `{"items":[]}` {
		t.Fatalf("empty restores = %d %s", rec.Code, rec.Body.String())
	}
}

func TestSettingsEndpoints(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, false)
	tests := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{"storage bad type", "/api/namespaces/team/backup-storages", `{"name":"gcs","type":"gcs","bucketName":"b"}`, http.StatusBadRequest},
		{"storage ok", "/api/namespaces/team/backup-storages", `{"name":"s3-e","type":"s3","bucketName":"b","region":"eu-west-1"}`, http.StatusCreated},
		{"monitoring bad url", "/api/namespaces/team/monitoring-instances", `{"name":"pmm","type":"pmm","url":"pmm"}`, http.StatusBadRequest},
		{"monitoring ok", "/api/namespaces/team/monitoring-instances", `{"name":"pmm","type":"pmm","url":"https://pmm.example.com"}`, http.StatusCreated},
	}
	for _, tt := range tests {
		rec := do(t, s, http.MethodPost, tt.path, tt.body)
		if rec.Code != tt.status {
			t.Fatalf("%s: status = %d, want %d (%s)", tt.name, rec.Code, tt.status, rec.Body.String())
		}
	}

	storages := decode[struct {
		Items []dbcluster.BackupStorage `json:"items"`
	}](t, do(t, s, http.MethodGet, "/api/namespaces/team/backup-storages", ""))
	if n := len(storages.Items); n != 5 || storages.Items[4].Name != "s3-e" {
		t.Fatalf("storages = %+v", storages.Items)
	}
	monitors := decode[struct {
		Items []dbcluster.MonitoringInstance `json:"items"`
	}](t, do(t, s, http.MethodGet, "/api/namespaces/team/monitoring-instances", ""))
	if diff := deep.Equal(monitors.Items, []dbcluster.MonitoringInstance{{Name: "pmm", Type: "pmm", URL: "https://pmm.example.com"}}); diff != nil {
		t.Fatalf("monitoring: %v", diff)
	}
}

func TestStatusFor(t *testing.T) {
	t.Parallel()
	tests := []struct {
		err  error
		want int
	}{
		{&backend.APIError{Status: 500, Message: "x"}, http.StatusBadGateway},
		{&backend.APIError{Status: 404}, http.StatusNotFound},
		{storage.ErrDisabled, http.StatusServiceUnavailable},
		{fmt.Errorf("wrapped: %w", storage.ErrBadID), http.StatusBadRequest},
		{context.Canceled, http.StatusInternalServerError},
		{&schedules.FieldError{Err: schedules.ErrNoName}, http.StatusBadRequest},
		{&schedules.PolicyError{Rule: schedules.ErrLimitReached}, http.StatusConflict},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Fatalf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
