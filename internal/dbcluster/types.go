package dbcluster

import (
	"time"

	"github.com/AlekSi/pointer"
)

const (
	APIVersion = "everest.percona.com/v1alpha1"
	Kind       = "DatabaseCluster"
)

type Metadata struct {
	Name              string            `json:"name"`
	Namespace         string            `json:"namespace,omitempty"`
	UID               string            `json:"uid,omitempty"`
	ResourceVersion   string            `json:"resourceVersion,omitempty"`
	CreationTimestamp *time.Time        `json:"creationTimestamp,omitempty"`
	Labels            map[string]string `json:"labels,omitempty"`
}

// DatabaseCluster mirrors the backend's DatabaseCluster resource, limited to
// the fields the console reads or writes.
type DatabaseCluster struct {
	APIVersion string   `json:"apiVersion"`
	Kind       string   `json:"kind"`
	Metadata   Metadata `json:"metadata"`
	Spec       Spec     `json:"spec"`
	Status     *Status  `json:"status,omitempty"`

	raw map[string]any // object as decoded, see MarshalJSON
}

type Spec struct {
	Engine     Engine      `json:"engine"`
	Proxy      Proxy       `json:"proxy"`
	Backup     Backup      `json:"backup"`
	Monitoring Monitoring  `json:"monitoring"`
	Sharding   *Sharding   `json:"sharding,omitempty"`
	DataSource *DataSource `json:"dataSource,omitempty"`
}

type Resources struct {
	CPU    string `json:"cpu,omitempty"`
	Memory string `json:"memory,omitempty"`
}

type Storage struct {
	Class string `json:"class,omitempty"`
	Size  string `json:"size"`
}

type Engine struct {
	Type      EngineType `json:"type"`
	Version   string     `json:"version,omitempty"`
	Replicas  int        `json:"replicas"`
	Resources Resources  `json:"resources"`
	Storage   Storage    `json:"storage"`
	Config    string     `json:"config,omitempty"`
}

type Expose struct {
	Type           ExposeType `json:"type"`
	IPSourceRanges []string   `json:"ipSourceRanges,omitempty"`
}

type ExposeType string

const (
	ExposeInternal ExposeType = "internal"
	ExposeExternal ExposeType = "external"
)

type Proxy struct {
	Type      ProxyType  `json:"type,omitempty"`
	Replicas  int        `json:"replicas"`
	Resources *Resources `json:"resources,omitempty"`
	Expose    Expose     `json:"expose"`
}

// Schedule is a named recurring backup policy. Schedule (the cron string) is
// stored in UTC on the backend.
type Schedule struct {
	Name              string `json:"name"`
	Enabled           bool   `json:"enabled"`
	Schedule          string `json:"schedule"`
	BackupStorageName string `json:"backupStorageName"`
	// RetentionCopies of 0 keeps every copy.
	RetentionCopies int `json:"retentionCopies,omitempty"`
}

type PITR struct {
	Enabled           bool    `json:"enabled"`
	BackupStorageName *string `json:"backupStorageName,omitempty"`
	UploadIntervalSec *int    `json:"uploadIntervalSec,omitempty"`
}

type Backup struct {
	Enabled   bool       `json:"enabled"`
	PITR      *PITR      `json:"pitr,omitempty"`
	Schedules []Schedule `json:"schedules,omitempty"`
}

// PITRStorage returns the PITR storage name, or "" when PITR is off.
func (b Backup) PITRStorage() string {
	if b.PITR == nil || !b.PITR.Enabled {
		return ""
	}
	return pointer.GetString(b.PITR.BackupStorageName)
}

type Monitoring struct {
	MonitoringConfigName string `json:"monitoringConfigName,omitempty"`
}

type ConfigServer struct {
	Replicas int `json:"replicas"`
}

type Sharding struct {
	Enabled      bool         `json:"enabled"`
	Shards       int          `json:"shards"`
	ConfigServer ConfigServer `json:"configServer"`
}

type DataSourcePITR struct {
	Date string `json:"date"`
	Type string `json:"type"`
}

type DataSource struct {
	DBClusterBackupName string          `json:"dbClusterBackupName,omitempty"`
	PITR                *DataSourcePITR `json:"pitr,omitempty"`
}

type Status struct {
	Status        string  `json:"status,omitempty"`
	Hostname      string  `json:"hostname,omitempty"`
	Port          int     `json:"port,omitempty"`
	Ready         int     `json:"ready,omitempty"`
	Size          int     `json:"size,omitempty"`
	ActiveStorage *string `json:"activeStorage,omitempty"`
}

// ActiveStorage returns the storage the backend currently writes to.
func (c DatabaseCluster) ActiveStorage() string {
	if c.Status == nil {
		return ""
	}
	return pointer.GetString(c.Status.ActiveStorage)
}

// DBType is the user-facing database flavour of the cluster.
func (c DatabaseCluster) DBType() DBType { return EngineToDBType(c.Spec.Engine.Type) }

// Sharded reports whether sharding is enabled.
func (c DatabaseCluster) Sharded() bool { return c.Spec.Sharding != nil && c.Spec.Sharding.Enabled }

// Backup resources

type BackupSpec struct {
	DBClusterName     string `json:"dbClusterName"`
	BackupStorageName string `json:"backupStorageName"`
}

type BackupStatus struct {
	State     string     `json:"state,omitempty"`
	Created   *time.Time `json:"created,omitempty"`
	Completed *time.Time `json:"completed,omitempty"`
}

type DatabaseClusterBackup struct {
	APIVersion string        `json:"apiVersion"`
	Kind       string        `json:"kind"`
	Metadata   Metadata      `json:"metadata"`
	Spec       BackupSpec    `json:"spec"`
	Status     *BackupStatus `json:"status,omitempty"`
}

type RestoreSpec struct {
	DBClusterName string     `json:"dbClusterName"`
	DataSource    DataSource `json:"dataSource"`
}

type RestoreStatus struct {
	State       string     `json:"state,omitempty"`
	CompletedAt *time.Time `json:"completed,omitempty"`
}

type DatabaseClusterRestore struct {
	APIVersion string         `json:"apiVersion"`
	Kind       string         `json:"kind"`
	Metadata   Metadata       `json:"metadata"`
	Spec       RestoreSpec    `json:"spec"`
	Status     *RestoreStatus `json:"status,omitempty"`
}

// BackupStorageType is the storage backend kind.
type BackupStorageType string

const (
	StorageS3    BackupStorageType = "s3"
	StorageAzure BackupStorageType = "azure"
)

type BackupStorage struct {
	Name        string            `json:"name"`
	Type        BackupStorageType `json:"type"`
	BucketName  string            `json:"bucketName"`
	Region      string            `json:"region,omitempty"`
	URL         string            `json:"url,omitempty"`
	Description string            `json:"description,omitempty"`
	Namespaces  []string          `json:"allowedNamespaces,omitempty"`
}

type MonitoringInstance struct {
	Name              string   `json:"name"`
	Type              string   `json:"type"`
	URL               string   `json:"url"`
	AllowedNamespaces []string `json:"allowedNamespaces,omitempty"`
}
