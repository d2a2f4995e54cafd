package overview

import (
	"testing"
	"time"

	"dbconsole/internal/dbcluster"
	"dbconsole/internal/schedules"

	"github.com/go-test/deep"
)

func mongoCluster() dbcluster.DatabaseCluster {
	return dbcluster.DatabaseCluster{
		Metadata: dbcluster.Metadata{Name: "mongo", Namespace: "ns"},
		Spec: dbcluster.Spec{
			Engine: dbcluster.Engine{
				Type:      dbcluster.EnginePSMDB,
				Version:   "6.0.9",
				Replicas:  3,
				Resources: dbcluster.Resources{CPU: "600m", Memory: "2G"},
				Storage:   dbcluster.Storage{Size: "25Gi"},
			},
			Sharding: &dbcluster.Sharding{Enabled: true, Shards: 2, ConfigServer: dbcluster.ConfigServer{Replicas: 3}},
			Backup: dbcluster.Backup{
				Enabled:   true,
				Schedules: []dbcluster.Schedule{{Name: "a", Schedule: "0 1 * * *"}},
			},
		},
	}
}

func TestResources(t *testing.T) {
	t.Parallel()
	got := Resources(mongoCluster())
	want := []Section{
		{Title: "Sharding", Rows: []Row{
			{Label: "Status", Value: "Enabled"},
			{Label: "Shards", Value: "2"},
			{Label: "Configuration servers", Value: "3"},
		}},
		{Title: "3 nodes", Rows: []Row{
			{Label: "CPU", Value: "1.80 CPU"},
			{Label: "Memory", Value: "6.00 G"},
			{Label: "Disk", Value: "75.00 Gi"},
		}},
	}
	if diff := deep.Equal(got, want); diff != nil {
		t.Fatalf("Resources: %v", diff)
	}
}

func TestResourcesSingleNodeMalformed(t *testing.T) {
	t.Parallel()
	c := dbcluster.DatabaseCluster{Spec: dbcluster.Spec{Engine: dbcluster.Engine{
		Type:     dbcluster.EnginePXC,
		Replicas: 1,
		Storage:  dbcluster.Storage{Size: "lots"},
	}}}
	got := Resources(c)
	if len(got) != 1 || got[0].Title != "1 node" {
		t.Fatalf("sections = %+v", got)
	}
	if got[0].Rows[0].Value != "0.00 CPU" || got[0].Rows[2].Value != "" {
		t.Fatalf("rows = %+v", got[0].Rows)
	}
}

func TestBackups(t *testing.T) {
	t.Parallel()
	older := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(24 * time.Hour)
	backups := []dbcluster.DatabaseClusterBackup{
		{Spec: dbcluster.BackupSpec{DBClusterName: "mongo"}, Status: &dbcluster.BackupStatus{State: "Succeeded", Completed: &older}},
		{Spec: dbcluster.BackupSpec{DBClusterName: "mongo"}, Status: &dbcluster.BackupStatus{State: "ready", Completed: &newer}},
		{Spec: dbcluster.BackupSpec{DBClusterName: "other"}, Status: &dbcluster.BackupStatus{State: "Succeeded", Completed: &newer}},
		{Spec: dbcluster.BackupSpec{DBClusterName: "mongo"}, Status: &dbcluster.BackupStatus{State: "Failed"}},
	}
	got := Backups(mongoCluster(), backups)
	if !got.Enabled || got.Schedules != 1 || got.PITR || got.Total != 3 {
		t.Fatalf("card = %+v", got)
	}
	if got.LastBackup == nil || !got.LastBackup.Equal(newer) {
		t.Fatalf("last backup = %v", got.LastBackup)
	}
	want := []schedules.Description{{Name: "a", When: "Every day at 01:00", Retention: "Retention copies: infinite", Storage: "Storage: "}}
	if diff := deep.Equal(got.Descriptions, want); diff != nil {
		t.Fatalf("descriptions: %v", diff)
	}
}

func TestDetails(t *testing.T) {
	t.Parallel()
	c := mongoCluster()
	c.Status = &dbcluster.Status{Status: "ready", Hostname: "mongo.ns.svc", Port: 27017}
	c.Spec.Monitoring.MonitoringConfigName = "pmm"
	got := Details(c)
	want := []Row{
		{Label: "Type", Value: "mongodb"},
		{Label: "Name", Value: "mongo"},
		{Label: "Namespace", Value: "ns"},
		{Label: "Version", Value: "6.0.9"},
		{Label: "Status", Value: "ready"},
		{Label: "Host", Value: "mongo.ns.svc"},
		{Label: "Port", Value: "27017"},
		{Label: "External access", Value: "disabled"},
		{Label: "Monitoring", Value: "pmm"},
	}
	if diff := deep.Equal(got.Rows, want); diff != nil {
		t.Fatalf("Details: %v", diff)
	}
}
