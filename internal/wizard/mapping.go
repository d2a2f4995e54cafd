package wizard

import (
	"math"
	"strconv"
	"strings"
	"time"

	"dbconsole/internal/dbcluster"
	"dbconsole/internal/schedules"
	"dbconsole/pkg/cronconv"
	"dbconsole/pkg/k8sres"

	"github.com/AlekSi/pointer"
	"github.com/google/uuid"
)

const shortUIDLength = 5

func itoa(n int) string { return strconv.Itoa(n) }

func atoi(s string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	return n, err == nil
}

func shortUID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:shortUIDLength]
}

// nanToZero keeps unparseable quantities JSON-encodable.
func nanToZero(f float64) float64 {
	if math.IsNaN(f) {
		return 0
	}
	return f
}

// FromCluster fills the wizard from an existing cluster. In restore mode the
// name becomes "restored-<name>-<uid>", cut to the cluster name limit.
func FromCluster(c dbcluster.DatabaseCluster, mode Mode, namespace string) Values {
	dbType := c.DBType()
	disk := k8sres.ParseMemory(c.Spec.Engine.Storage.Size)

	v := Values{
		DBType:       dbType,
		DBName:       c.Metadata.Name,
		DBVersion:    c.Spec.Engine.Version,
		StorageClass: c.Spec.Engine.Storage.Class,
		K8sNamespace: namespace,

		NumberOfNodes:        replicasToNodes(c.Spec.Engine.Replicas, dbType),
		NumberOfProxies:      replicasToNodes(c.Spec.Proxy.Replicas, dbType),
		CustomNrOfNodes:      itoa(c.Spec.Engine.Replicas),
		CustomNrOfProxies:    itoa(c.Spec.Proxy.Replicas),
		ResourceSizePerNode:  MatchResourceSize(&c.Spec.Engine.Resources),
		ResourceSizePerProxy: MatchResourceSize(c.Spec.Proxy.Resources),
		CPU:                  nanToZero(k8sres.ParseCPU(orZero(c.Spec.Engine.Resources.CPU))),
		Memory:               nanToZero(k8sres.ParseMemory(orZero(c.Spec.Engine.Resources.Memory)).Value),
		Disk:                 nanToZero(disk.Value),
		DiskUnit:             disk.OriginalUnit,
		ShardNr:              "1",
		ShardConfigServers:   "1",

		BackupsEnabled: c.Spec.Backup.Enabled,
		Schedules:      append([]schedules.Schedule{}, c.Spec.Backup.Schedules...),

		ExternalAccess:          c.Spec.Proxy.Expose.Type == dbcluster.ExposeExternal,
		EngineParametersEnabled: c.Spec.Engine.Config != "",
		EngineParameters:        c.Spec.Engine.Config,

		Monitoring:         c.Spec.Monitoring.MonitoringConfigName != "",
		MonitoringInstance: c.Spec.Monitoring.MonitoringConfigName,
	}
	if v.K8sNamespace == "" {
		v.K8sNamespace = c.Metadata.Namespace
	}
	if pr := c.Spec.Proxy.Resources; pr != nil {
		v.ProxyCPU = nanToZero(k8sres.ParseCPU(orZero(pr.CPU)))
		v.ProxyMemory = nanToZero(k8sres.ParseMemory(orZero(pr.Memory)).Value)
	}

	if mode == ModeRestoreFromBackup {
		name := "restored-" + c.Metadata.Name + "-" + shortUID()
		if len(name) > dbcluster.MaxNameLength {
			name = name[:dbcluster.MaxNameLength]
		}
		v.DBName = name
	}

	if s := c.Spec.Sharding; s != nil {
		v.Sharding = s.Enabled
		if s.Shards > 0 {
			v.ShardNr = itoa(s.Shards)
		}
		if s.ConfigServer.Replicas > 0 {
			v.ShardConfigServers = itoa(s.ConfigServer.Replicas)
		}
	}

	if ranges := c.Spec.Proxy.Expose.IPSourceRanges; len(ranges) > 0 {
		for _, r := range ranges {
			v.SourceRanges = append(v.SourceRanges, SourceRange{SourceRange: r})
		}
	} else {
		v.SourceRanges = []SourceRange{{}}
	}

	if p := c.Spec.Backup.PITR; p != nil {
		v.PITREnabled = p.Enabled
		if p.Enabled || mode == ModeEdit {
			v.PITRStorageLocation = p.BackupStorageName
		}
	}
	return v
}

func orZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}

// ToCluster maps the wizard values to a cluster payload. Schedules are
// entered in localTZ and converted to UTC.
func ToCluster(v Values, ds *dbcluster.DataSource, localTZ string) (dbcluster.DatabaseCluster, error) {
	return ToClusterAt(v, ds, localTZ, time.Now())
}

// ToClusterAt is ToCluster with the offset taken at a fixed instant.
func ToClusterAt(v Values, ds *dbcluster.DataSource, localTZ string, at time.Time) (dbcluster.DatabaseCluster, error) {
	engine := v.Engine()

	utcSchedules := make([]schedules.Schedule, 0, len(v.Schedules))
	for _, s := range v.Schedules {
		expr, err := cronconv.ConvertAt(s.Schedule, localTZ, "UTC", at)
		if err != nil {
			return dbcluster.DatabaseCluster{}, err
		}
		s.Schedule = expr
		utcSchedules = append(utcSchedules, s)
	}

	c := dbcluster.DatabaseCluster{
		APIVersion: dbcluster.APIVersion,
		Kind:       dbcluster.Kind,
		Metadata:   dbcluster.Metadata{Name: v.DBName, Namespace: v.K8sNamespace},
		Spec: dbcluster.Spec{
			Engine: dbcluster.Engine{
				Type:     engine,
				Version:  v.DBVersion,
				Replicas: v.Nodes(),
				Resources: dbcluster.Resources{
					CPU:    formatFloat(v.CPU),
					Memory: formatFloat(v.Memory) + "G",
				},
				Storage: dbcluster.Storage{
					Class: v.StorageClass,
					Size:  formatFloat(v.Disk) + v.DiskUnit,
				},
			},
			Proxy: proxySpec(v, engine),
			Backup: dbcluster.Backup{
				Enabled: len(utcSchedules) > 0,
			},
		},
	}
	if len(utcSchedules) > 0 {
		c.Spec.Backup.Schedules = utcSchedules
	}
	if v.PITREnabled {
		c.Spec.Backup.PITR = &dbcluster.PITR{
			Enabled:           true,
			BackupStorageName: pointer.ToStringOrNil(pointer.GetString(v.PITRStorageLocation)),
		}
	}
	if v.EngineParametersEnabled {
		c.Spec.Engine.Config = v.EngineParameters
	}
	if v.Monitoring {
		c.Spec.Monitoring.MonitoringConfigName = v.MonitoringInstance
	}
	if v.DBType == dbcluster.DBMongo {
		shards, ok := atoi(v.ShardNr)
		if !ok {
			shards = 1
		}
		cfgSrv, ok := atoi(v.ShardConfigServers)
		if !ok {
			cfgSrv = 3
		}
		c.Spec.Sharding = &dbcluster.Sharding{
			Enabled:      v.Sharding,
			Shards:       shards,
			ConfigServer: dbcluster.ConfigServer{Replicas: cfgSrv},
		}
	}
	if ds != nil && ds.DBClusterBackupName != "" {
		out := &dbcluster.DataSource{DBClusterBackupName: ds.DBClusterBackupName}
		if ds.PITR != nil {
			out.PITR = &dbcluster.DataSourcePITR{Date: ds.PITR.Date, Type: "date"}
		}
		c.Spec.DataSource = out
	}
	return c, nil
}

func proxySpec(v Values, engine dbcluster.EngineType) dbcluster.Proxy {
	p := dbcluster.Proxy{
		Type:     dbcluster.DefaultProxy(engine),
		Replicas: v.Proxies(),
		Expose:   dbcluster.Expose{Type: dbcluster.ExposeInternal},
	}
	if v.ProxyCPU > 0 || v.ProxyMemory > 0 {
		p.Resources = &dbcluster.Resources{
			CPU:    formatFloat(v.ProxyCPU),
			Memory: formatFloat(v.ProxyMemory) + "G",
		}
	}
	if v.ExternalAccess {
		p.Expose.Type = dbcluster.ExposeExternal
		for _, r := range v.SourceRanges {
			if s := strings.TrimSpace(r.SourceRange); s != "" {
				p.Expose.IPSourceRanges = append(p.Expose.IPSourceRanges, s)
			}
		}
	}
	return p
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
