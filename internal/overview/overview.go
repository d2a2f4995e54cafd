// Package overview builds the cluster details cards from a cluster and its
// backups. Everything here is a pure function of its inputs.
package overview

import (
	"strconv"
	"time"

	"dbconsole/internal/dbcluster"
	"dbconsole/internal/schedules"
	"dbconsole/pkg/k8sres"

	"github.com/samber/lo"
)

type Row struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

type Section struct {
	Title string `json:"title"`
	Rows  []Row  `json:"rows"`
}

type Overview struct {
	Details   Section    `json:"details"`
	Resources []Section  `json:"resources"`
	Backups   BackupCard `json:"backups"`
}

type BackupCard struct {
	Enabled    bool       `json:"enabled"`
	Schedules  int        `json:"schedules"`
	PITR       bool       `json:"pitr"`
	LastBackup *time.Time `json:"lastBackup,omitempty"`
	Total      int        `json:"total"`

	Descriptions []schedules.Description `json:"descriptions"`
}

// Build assembles every card for c. backups may include other clusters'
// backups; only c's are considered.
func Build(c dbcluster.DatabaseCluster, backups []dbcluster.DatabaseClusterBackup) Overview {
	return Overview{
		Details:   Details(c),
		Resources: Resources(c),
		Backups:   Backups(c, backups),
	}
}

func Details(c dbcluster.DatabaseCluster) Section {
	s := Section{
		Title: "Database details",
		Rows: []Row{
			{Label: "Type", Value: string(c.DBType())},
			{Label: "Name", Value: c.Metadata.Name},
			{Label: "Namespace", Value: c.Metadata.Namespace},
			{Label: "Version", Value: c.Spec.Engine.Version},
		},
	}
	if st := c.Status; st != nil {
		s.Rows = append(s.Rows, Row{Label: "Status", Value: st.Status})
		if st.Hostname != "" {
			s.Rows = append(s.Rows,
				Row{Label: "Host", Value: st.Hostname},
				Row{Label: "Port", Value: strconv.Itoa(st.Port)},
			)
		}
	}
	external := "disabled"
	if c.Spec.Proxy.Expose.Type == dbcluster.ExposeExternal {
		external = "enabled"
	}
	s.Rows = append(s.Rows, Row{Label: "External access", Value: external})
	if m := c.Spec.Monitoring.MonitoringConfigName; m != "" {
		s.Rows = append(s.Rows, Row{Label: "Monitoring", Value: m})
	}
	return s
}

// Resources returns the sharding section (MongoDB only) followed by the
// per-node totals section titled "N node(s)".
func Resources(c dbcluster.DatabaseCluster) []Section {
	var out []Section
	if c.DBType() == dbcluster.DBMongo {
		sh := Section{Title: "Sharding"}
		if c.Sharded() {
			sh.Rows = []Row{
				{Label: "Status", Value: "Enabled"},
				{Label: "Shards", Value: strconv.Itoa(c.Spec.Sharding.Shards)},
				{Label: "Configuration servers", Value: strconv.Itoa(c.Spec.Sharding.ConfigServer.Replicas)},
			}
		} else {
			sh.Rows = []Row{{Label: "Status", Value: "Disabled"}}
		}
		out = append(out, sh)
	}

	replicas := c.Spec.Engine.Replicas
	title := strconv.Itoa(replicas) + " node"
	if replicas > 1 {
		title += "s"
	}
	cpu := c.Spec.Engine.Resources.CPU
	if cpu == "" {
		cpu = "0"
	}
	mem := k8sres.ParseMemory(c.Spec.Engine.Resources.Memory)
	disk := k8sres.ParseMemory(c.Spec.Engine.Storage.Size)
	return append(out, Section{
		Title: title,
		Rows: []Row{
			{Label: "CPU", Value: k8sres.FormatTotal(k8sres.ParseCPU(cpu), replicas, "CPU")},
			{Label: "Memory", Value: k8sres.FormatTotal(mem.Value, replicas, mem.OriginalUnit)},
			{Label: "Disk", Value: k8sres.FormatTotal(disk.Value, replicas, disk.OriginalUnit)},
		},
	})
}

// Backups summarizes backup settings and history for c.
func Backups(c dbcluster.DatabaseCluster, backups []dbcluster.DatabaseClusterBackup) BackupCard {
	own := dbcluster.BackupsFor(c.Metadata.Name, backups)
	b := BackupCard{
		Enabled:   c.Spec.Backup.Enabled,
		Schedules: len(c.Spec.Backup.Schedules),
		PITR:      c.Spec.Backup.PITR != nil && c.Spec.Backup.PITR.Enabled,
		Total:     len(own),

		Descriptions: lo.Map(c.Spec.Backup.Schedules, func(sch dbcluster.Schedule, _ int) schedules.Description {
			return schedules.Describe(sch)
		}),
	}
	if t, ok := dbcluster.LastBackup(own); ok {
		b.LastBackup = &t
	}
	return b
}
