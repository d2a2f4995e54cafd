// Package wizard holds the cluster creation wizard's form state.
//
// Values is a plain serializable struct: the HTTP layer posts it between
// steps and the draft store persists it as JSON. Nothing in here keeps
// state between calls.
package wizard

import (
	"slices"

	"dbconsole/internal/dbcluster"
	"dbconsole/internal/schedules"
	"dbconsole/pkg/k8sres"
)

// CustomUnits is the node/proxy count option that defers to the custom field.
const CustomUnits = "custom"

type Mode string

const (
	ModeNew               Mode = "new"
	ModeEdit              Mode = "edit"
	ModeRestoreFromBackup Mode = "restoreFromBackup"
)

type ResourceSize string

const (
	SizeSmall  ResourceSize = "small"
	SizeMedium ResourceSize = "medium"
	SizeLarge  ResourceSize = "large"
	SizeCustom ResourceSize = "custom"
)

// SizePreset is a per-node resource preset. Memory and disk are in G/Gi.
type SizePreset struct {
	CPU    float64 `json:"cpu"`
	Memory float64 `json:"memory"`
	Disk   float64 `json:"disk"`
}

var DefaultSizes = map[ResourceSize]SizePreset{
	SizeSmall:  {CPU: 1, Memory: 2, Disk: 25},
	SizeMedium: {CPU: 4, Memory: 8, Disk: 100},
	SizeLarge:  {CPU: 8, Memory: 32, Disk: 200},
}

type SourceRange struct {
	SourceRange string `json:"sourceRange"`
}

// Values is the complete wizard form.
type Values struct {
	// basic info
	DBType       dbcluster.DBType `json:"dbType"`
	DBName       string           `json:"dbName"`
	DBVersion    string           `json:"dbVersion"`
	StorageClass string           `json:"storageClass"`
	K8sNamespace string           `json:"k8sNamespace"`

	// resources
	NumberOfNodes        string       `json:"numberOfNodes"`
	NumberOfProxies      string       `json:"numberOfProxies"`
	CustomNrOfNodes      string       `json:"customNrOfNodes"`
	CustomNrOfProxies    string       `json:"customNrOfProxies"`
	ResourceSizePerNode  ResourceSize `json:"resourceSizePerNode"`
	ResourceSizePerProxy ResourceSize `json:"resourceSizePerProxy"`
	CPU                  float64      `json:"cpu"`
	ProxyCPU             float64      `json:"proxyCpu"`
	Memory               float64      `json:"memory"`
	ProxyMemory          float64      `json:"proxyMemory"`
	Disk                 float64      `json:"disk"`
	DiskUnit             string       `json:"diskUnit"`
	Sharding             bool         `json:"sharding"`
	ShardNr              string       `json:"shardNr"`
	ShardConfigServers   string       `json:"shardConfigServers"`

	// backups
	BackupsEnabled      bool                 `json:"backupsEnabled"`
	PITREnabled         bool                 `json:"pitrEnabled"`
	PITRStorageLocation *string              `json:"pitrStorageLocation"`
	Schedules           []schedules.Schedule `json:"schedules"`

	// advanced
	ExternalAccess          bool          `json:"externalAccess"`
	SourceRanges            []SourceRange `json:"sourceRanges"`
	EngineParametersEnabled bool          `json:"engineParametersEnabled"`
	EngineParameters        string        `json:"engineParameters"`

	// monitoring
	Monitoring         bool   `json:"monitoring"`
	MonitoringInstance string `json:"monitoringInstance"`
}

// Defaults returns the values a fresh wizard starts from.
func Defaults() Values {
	small := DefaultSizes[SizeSmall]
	return Values{
		NumberOfNodes:        "1",
		NumberOfProxies:      "1",
		CustomNrOfNodes:      "1",
		CustomNrOfProxies:    "1",
		ResourceSizePerNode:  SizeSmall,
		ResourceSizePerProxy: SizeSmall,
		CPU:                  small.CPU,
		ProxyCPU:             small.CPU,
		Memory:               small.Memory,
		ProxyMemory:          small.Memory,
		Disk:                 small.Disk,
		DiskUnit:             "Gi",
		ShardNr:              "1",
		ShardConfigServers:   "1",
		SourceRanges:         []SourceRange{{}},
		Schedules:            []schedules.Schedule{},
	}
}

// NodesForDBType lists the preset node counts offered for t.
func NodesForDBType(t dbcluster.DBType) []string {
	switch t {
	case dbcluster.DBPostgres:
		return []string{"1", "2", "3"}
	case dbcluster.DBMongo, dbcluster.DBMySQL:
		return []string{"1", "3", "5"}
	}
	return nil
}

// replicasToNodes returns the preset option for replicas, or CustomUnits.
func replicasToNodes(replicas int, t dbcluster.DBType) string {
	s := itoa(replicas)
	if slices.Contains(NodesForDBType(t), s) {
		return s
	}
	return CustomUnits
}

// MatchResourceSize finds the preset matching r's CPU and memory, else custom.
func MatchResourceSize(r *dbcluster.Resources) ResourceSize {
	if r == nil {
		return SizeCustom
	}
	cpu := k8sres.ParseCPU(r.CPU)
	mem := k8sres.ParseMemory(r.Memory)
	for _, size := range []ResourceSize{SizeSmall, SizeMedium, SizeLarge} {
		p := DefaultSizes[size]
		if cpu == p.CPU && mem.Value == p.Memory && (mem.OriginalUnit == "G" || mem.OriginalUnit == "Gi") {
			return size
		}
	}
	return SizeCustom
}

// Nodes resolves the node count, honoring the custom option.
func (v Values) Nodes() int { return units(v.NumberOfNodes, v.CustomNrOfNodes) }

// Proxies resolves the proxy count, honoring the custom option.
func (v Values) Proxies() int { return units(v.NumberOfProxies, v.CustomNrOfProxies) }

func units(option, custom string) int {
	if option == CustomUnits {
		option = custom
	}
	n, ok := atoi(option)
	if !ok || n < 0 {
		return 0
	}
	return n
}

// Engine returns the backend engine for the selected database type.
func (v Values) Engine() dbcluster.EngineType { return dbcluster.DBTypeToEngine(v.DBType) }
