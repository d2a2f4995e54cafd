package wizard

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"dbconsole/internal/dbcluster"
	"dbconsole/internal/schedules"

	"github.com/AlekSi/pointer"
	"github.com/go-test/deep"
)

var winter = time.Date(2024, time.January, 15, 12, 0, 0, 0, time.UTC)

func validValues() Values {
	v := Defaults()
	v.DBType = dbcluster.DBMySQL
	v.DBName = "mysql-1"
	v.DBVersion = "8.0.36"
	v.K8sNamespace = "ns"
	v.StorageClass = "standard"
	return v
}

func TestDefaultsSurviveJSON(t *testing.T) {
	t.Parallel()
	v := validValues()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Values
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if diff := deep.Equal(v, back); diff != nil {
		t.Fatalf("values changed through JSON: %v", diff)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(v *Values)
		field  string
	}{
		{name: "ok", mutate: func(*Values) {}},
		{name: "missing name", mutate: func(v *Values) { v.DBName = "" }, field: "dbName"},
		{name: "long name", mutate: func(v *Values) { v.DBName = strings.Repeat("a", 23) }, field: "dbName"},
		{name: "unknown type", mutate: func(v *Values) { v.DBType = "redis" }, field: "dbType"},
		{name: "bad nodes", mutate: func(v *Values) { v.NumberOfNodes = "2" }, field: "numberOfNodes"},
		{name: "bad custom nodes", mutate: func(v *Values) { v.NumberOfNodes = CustomUnits; v.CustomNrOfNodes = "0" }, field: "customNrOfNodes"},
		{name: "low cpu", mutate: func(v *Values) { v.CPU = 0.5 }, field: "cpu"},
		{name: "low memory", mutate: func(v *Values) { v.Memory = 0.5 }, field: "memory"},
		{name: "low disk", mutate: func(v *Values) { v.Disk = 512; v.DiskUnit = "Mi" }, field: "disk"},
		{name: "bad disk unit", mutate: func(v *Values) { v.DiskUnit = "Pi" }, field: "diskUnit"},
		{
			name: "bad source range",
			mutate: func(v *Values) {
				v.ExternalAccess = true
				v.SourceRanges = []SourceRange{{SourceRange: "10.0.0.0/8"}, {SourceRange: "nope"}}
			},
			field: "sourceRanges.1.sourceRange",
		},
		{name: "sharding on mysql", mutate: func(v *Values) { v.Sharding = true }, field: "sharding"},
		{
			name: "even config servers",
			mutate: func(v *Values) {
				v.DBType = dbcluster.DBMongo
				v.Sharding = true
				v.ShardConfigServers = "2"
			},
			field: "shardConfigServers",
		},
		{name: "monitoring without instance", mutate: func(v *Values) { v.Monitoring = true }, field: "monitoringInstance"},
		{name: "pitr without storage", mutate: func(v *Values) { v.PITREnabled = true }, field: "pitrStorageLocation"},
		{
			name: "pg schedule cap",
			mutate: func(v *Values) {
				v.DBType = dbcluster.DBPostgres
				for i, h := range []string{"1", "2", "3", "4"} {
					v.Schedules = append(v.Schedules, schedules.Schedule{
						Name:              "s" + h,
						Schedule:          "0 " + h + " * * *",
						BackupStorageName: "st" + string(rune('a'+i)),
					})
				}
			},
			field: "schedules",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			v := validValues()
			tt.mutate(&v)
			r := Validate(v)
			if tt.field == "" {
				if !r.OK() {
					t.Fatalf("unexpected errors: %+v", r.Errors)
				}
				if r.Err() != nil {
					t.Fatal("Err() should be nil for valid values")
				}
				return
			}
			if r.Field(tt.field) == "" {
				t.Fatalf("expected error on %q, got %+v", tt.field, r.Errors)
			}
			if !errors.Is(r.Err(), ErrInvalid) {
				t.Fatalf("Err() = %v", r.Err())
			}
		})
	}
}

func TestToClusterConvertsSchedulesToUTC(t *testing.T) {
	t.Parallel()
	v := validValues()
	v.CPU = 0.6
	v.Memory = 1
	v.Disk = 10
	v.NumberOfNodes = "3"
	v.NumberOfProxies = CustomUnits
	v.CustomNrOfProxies = "2"
	v.ExternalAccess = true
	v.SourceRanges = []SourceRange{{SourceRange: " 10.0.0.0/8 "}, {}}
	v.Schedules = []schedules.Schedule{{Name: "nightly", Enabled: true, Schedule: "0 1 * * *", BackupStorageName: "s3"}}
	v.PITREnabled = true
	v.PITRStorageLocation = pointer.ToString("s3")

	c, err := ToClusterAt(v, &dbcluster.DataSource{DBClusterBackupName: "bk-1", PITR: &dbcluster.DataSourcePITR{Date: "2024-01-01T00:00:00Z"}}, "Europe/Berlin", winter)
	if err != nil {
		t.Fatalf("ToClusterAt: %v", err)
	}

	want := dbcluster.Spec{
		Engine: dbcluster.Engine{
			Type:      dbcluster.EnginePXC,
			Version:   "8.0.36",
			Replicas:  3,
			Resources: dbcluster.Resources{CPU: "0.6", Memory: "1G"},
			Storage:   dbcluster.Storage{Class: "standard", Size: "10Gi"},
		},
		Proxy: dbcluster.Proxy{
			Type:      dbcluster.ProxyHAProxy,
			Replicas:  2,
			Resources: &dbcluster.Resources{CPU: "1", Memory: "2G"},
			Expose:    dbcluster.Expose{Type: dbcluster.ExposeExternal, IPSourceRanges: []string{"10.0.0.0/8"}},
		},
		Backup: dbcluster.Backup{
			Enabled:   true,
			PITR:      &dbcluster.PITR{Enabled: true, BackupStorageName: pointer.ToString("s3")},
			Schedules: []schedules.Schedule{{Name: "nightly", Enabled: true, Schedule: "0 0 * * *", BackupStorageName: "s3"}},
		},
		DataSource: &dbcluster.DataSource{
			DBClusterBackupName: "bk-1",
			PITR:                &dbcluster.DataSourcePITR{Date: "2024-01-01T00:00:00Z", Type: "date"},
		},
	}
	if diff := deep.Equal(c.Spec, want); diff != nil {
		t.Fatalf("spec mismatch: %v", diff)
	}
	if v.Schedules[0].Schedule != "0 1 * * *" {
		t.Fatal("input values mutated")
	}
	if c.Metadata.Name != "mysql-1" || c.Metadata.Namespace != "ns" || c.APIVersion != dbcluster.APIVersion {
		t.Fatalf("metadata = %+v", c.Metadata)
	}
}

func TestToClusterBadSchedule(t *testing.T) {
	t.Parallel()
	v := validValues()
	v.Schedules = []schedules.Schedule{{Name: "x", Schedule: "*/5 * * * *"}}
	if _, err := ToCluster(v, nil, "Europe/Berlin"); err == nil {
		t.Fatal("expected cron error")
	}
}

func TestFromClusterRoundTrip(t *testing.T) {
	t.Parallel()
	v := validValues()
	v.DBType = dbcluster.DBMongo
	v.NumberOfNodes = "3"
	v.NumberOfProxies = "3"
	v.Sharding = true
	v.ShardNr = "2"
	v.ShardConfigServers = "3"
	v.Monitoring = true
	v.MonitoringInstance = "pmm"

	c, err := ToClusterAt(v, nil, "UTC", winter)
	if err != nil {
		t.Fatalf("ToClusterAt: %v", err)
	}
	back := FromCluster(c, ModeEdit, "ns")

	if back.DBName != v.DBName || back.DBType != v.DBType || back.NumberOfNodes != "3" {
		t.Fatalf("basic fields = %+v", back)
	}
	if back.ResourceSizePerNode != SizeSmall || back.CPU != 1 || back.Memory != 2 || back.Disk != 25 || back.DiskUnit != "Gi" {
		t.Fatalf("resources = %+v", back)
	}
	if !back.Sharding || back.ShardNr != "2" || back.ShardConfigServers != "3" {
		t.Fatalf("sharding = %+v", back)
	}
	if !back.Monitoring || back.MonitoringInstance != "pmm" {
		t.Fatalf("monitoring = %+v", back)
	}
	if len(back.SourceRanges) != 1 || back.SourceRanges[0].SourceRange != "" {
		t.Fatalf("source ranges = %+v", back.SourceRanges)
	}
}

func TestFromClusterRestoreName(t *testing.T) {
	t.Parallel()
	c := dbcluster.DatabaseCluster{
		Metadata: dbcluster.Metadata{Name: "production-db", Namespace: "ns"},
		Spec: dbcluster.Spec{
			Engine: dbcluster.Engine{Type: dbcluster.EnginePostgresql, Replicas: 7, Storage: dbcluster.Storage{Size: "bad"}},
		},
	}
	v := FromCluster(c, ModeRestoreFromBackup, "")
	if v.DBName != "restored-production-db" {
		t.Fatalf("long restore name = %q", v.DBName)
	}

	c.Metadata.Name = "pg"
	short := FromCluster(c, ModeRestoreFromBackup, "")
	if !strings.HasPrefix(short.DBName, "restored-pg-") || len(short.DBName) != len("restored-pg-")+5 {
		t.Fatalf("short restore name = %q", short.DBName)
	}
	if v.NumberOfNodes != CustomUnits || v.CustomNrOfNodes != "7" {
		t.Fatalf("nodes = %q / %q", v.NumberOfNodes, v.CustomNrOfNodes)
	}
	if v.Disk != 0 || v.K8sNamespace != "ns" {
		t.Fatalf("disk/namespace = %v / %q", v.Disk, v.K8sNamespace)
	}
	if _, err := json.Marshal(v); err != nil {
		t.Fatalf("values not encodable: %v", err)
	}
}

func TestMatchResourceSize(t *testing.T) {
	t.Parallel()
	tests := []struct {
		r    *dbcluster.Resources
		want ResourceSize
	}{
		{&dbcluster.Resources{CPU: "1", Memory: "2G"}, SizeSmall},
		{&dbcluster.Resources{CPU: "4000m", Memory: "8G"}, SizeMedium},
		{&dbcluster.Resources{CPU: "8", Memory: "32Gi"}, SizeLarge},
		{&dbcluster.Resources{CPU: "2", Memory: "2G"}, SizeCustom},
		{nil, SizeCustom},
	}
	for _, tt := range tests {
		if got := MatchResourceSize(tt.r); got != tt.want {
			t.Fatalf("MatchResourceSize(%+v) = %q, want %q", tt.r, got, tt.want)
		}
	}
}

func TestPreview(t *testing.T) {
	t.Parallel()
	v := validValues()
	v.NumberOfNodes = "3"
	v.CPU = 0.6
	v.Memory = 2
	v.Disk = 25
	got := Preview(v)
	want := []string{"Nº nodes: 3", "CPU: 1.80 CPU", "Memory: 6.00 GB", "Disk: 75.00 Gi"}
	if diff := deep.Equal(got, want); diff != nil {
		t.Fatalf("Preview: %v", diff)
	}

	v.Sharding = true
	v.ShardNr = "2"
	v.ShardConfigServers = "3"
	if got := Preview(v); len(got) != 6 || got[1] != "Shards: 2" || got[2] != "Configuration servers: 3" {
		t.Fatalf("Preview sharded = %v", got)
	}
}
