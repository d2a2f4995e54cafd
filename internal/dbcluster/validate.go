package dbcluster

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
	"k8s.io/apimachinery/pkg/api/resource"
)

const (
	// MaxNameLength is shorter than RFC 1035 allows; the PXC operator caps
	// cluster names at 22.
	MaxNameLength = 22

	minShards        = 1
	minConfigServers = 1
)

var (
	MinCPU     = resource.MustParse("600m")
	MinMemory  = resource.MustParse("512M")
	MinStorage = resource.MustParse("1G")

	shardingSince = semver.MustParse("1.17.0")

	rfc1035Re = regexp.MustCompile(`^[a-z]([-a-z0-9]{0,61}[a-z0-9])?$`)
)

var (
	ErrInvalidVersion        = errors.New("invalid database engine version provided")
	ErrEngineMajorUpgrade    = errors.New("database engine cannot be upgraded to a major version")
	ErrEngineDowngrade       = errors.New("database engine version cannot be downgraded")
	ErrNotEnoughCPU          = fmt.Errorf("CPU limits should be above %s", MinCPU.String())
	ErrNotEnoughMemory       = fmt.Errorf("memory limits should be above %s", MinMemory.String())
	ErrNotEnoughDisk         = fmt.Errorf("storage size should be above %s", MinStorage.String())
	ErrShardingNotSupported  = errors.New("sharding is not supported")
	ErrShardingVersion       = errors.New("sharding is available starting PSMDB 1.17.0")
	ErrInsufficientShards    = errors.New("shards number should be greater than 0")
	ErrInsufficientCfgSrv    = errors.New("sharding: minimum config servers number is 1")
	ErrEvenConfigServers     = errors.New("sharding: config servers number should be odd")
	ErrPITRNoStorage         = errors.New("'backupStorageName' field cannot be empty when pitr is enabled")
	ErrPITRUploadInterval    = errors.New("'uploadIntervalSec' should be more than 0")
	ErrUnsupportedProxy      = errors.New("proxy type is not supported for this engine")
	ErrBackupStorageRequired = errors.New("bucketName and region are required for s3 storages")
	ErrUnknownStorageType    = errors.New("backup storage type must be s3 or azure")
	ErrMonitoringType        = errors.New("monitoring type is not supported")
)

// NameError reports a resource name that violates RFC 1035 or the length cap.
type NameError struct {
	Field   string
	TooLong bool
	Max     int
}

func (e *NameError) Error() string {
	if e.TooLong {
		return fmt.Sprintf("'%s' can be at most %d characters long", e.Field, e.Max)
	}
	return fmt.Sprintf("'%s' is not RFC 1035 compatible. The name should contain only lowercase alphanumeric characters or '-', start with an alphabetic character, end with an alphanumeric character", e.Field)
}

// ValidateName checks s against RFC 1035 and a max length.
func ValidateName(s, field string, maxLen int) error {
	if len(s) > maxLen {
		return &NameError{Field: field, TooLong: true, Max: maxLen}
	}
	if !rfc1035Re.MatchString(s) {
		return &NameError{Field: field, Max: maxLen}
	}
	return nil
}

// InvalidURLError reports a malformed URL field.
type InvalidURLError struct{ Field string }

func (e *InvalidURLError) Error() string { return fmt.Sprintf("'%s' is an invalid URL", e.Field) }

func validURL(s string) bool {
	u, err := url.ParseRequestURI(s)
	return err == nil && u.Host != ""
}

// ValidateEngineUpgrade rejects downgrades and major version jumps.
// A leading "v" is accepted on either version.
func ValidateEngineUpgrade(newVersion, oldVersion string) error {
	nv, err := semver.NewVersion(strings.TrimPrefix(newVersion, "v"))
	if err != nil {
		return ErrInvalidVersion
	}
	ov, err := semver.NewVersion(strings.TrimPrefix(oldVersion, "v"))
	if err != nil {
		return ErrInvalidVersion
	}
	if nv.LessThan(ov) {
		return ErrEngineDowngrade
	}
	if nv.Major() != ov.Major() {
		return ErrEngineMajorUpgrade
	}
	return nil
}

// ValidateSharding checks the sharding block of a cluster spec.
func ValidateSharding(spec Spec) error {
	if spec.Sharding == nil || !spec.Sharding.Enabled {
		return nil
	}
	if spec.Engine.Type != EnginePSMDB {
		return ErrShardingNotSupported
	}
	v, err := semver.NewVersion(strings.TrimPrefix(spec.Engine.Version, "v"))
	if err != nil || v.LessThan(shardingSince) {
		return ErrShardingVersion
	}
	if spec.Sharding.Shards < minShards {
		return ErrInsufficientShards
	}
	if spec.Sharding.ConfigServer.Replicas < minConfigServers {
		return ErrInsufficientCfgSrv
	}
	if spec.Sharding.ConfigServer.Replicas%2 == 0 {
		return ErrEvenConfigServers
	}
	return nil
}

// ValidateResources enforces the minimum CPU, memory and disk per node.
func ValidateResources(e Engine) error {
	cpu, err := resource.ParseQuantity(e.Resources.CPU)
	if err != nil || cpu.Cmp(MinCPU) < 0 {
		return ErrNotEnoughCPU
	}
	mem, err := resource.ParseQuantity(e.Resources.Memory)
	if err != nil || mem.Cmp(MinMemory) < 0 {
		return ErrNotEnoughMemory
	}
	disk, err := resource.ParseQuantity(e.Storage.Size)
	if err != nil || disk.Cmp(MinStorage) < 0 {
		return ErrNotEnoughDisk
	}
	return nil
}

// ValidatePITR checks the point-in-time recovery settings.
func ValidatePITR(engine EngineType, b Backup) error {
	if b.PITR == nil || !b.PITR.Enabled {
		return nil
	}
	if engine == EnginePXC && b.PITRStorage() == "" {
		return ErrPITRNoStorage
	}
	if b.PITR.UploadIntervalSec != nil && *b.PITR.UploadIntervalSec <= 0 {
		return ErrPITRUploadInterval
	}
	return nil
}

// ValidateSpec runs the cluster-level checks that don't involve schedules.
func ValidateSpec(c DatabaseCluster) error {
	if err := ValidateName(c.Metadata.Name, "metadata.name", MaxNameLength); err != nil {
		return err
	}
	if c.Spec.Proxy.Type != "" && !AllowedProxy(c.Spec.Engine.Type, c.Spec.Proxy.Type) {
		return ErrUnsupportedProxy
	}
	if err := ValidatePITR(c.Spec.Engine.Type, c.Spec.Backup); err != nil {
		return err
	}
	if err := ValidateSharding(c.Spec); err != nil {
		return err
	}
	return ValidateResources(c.Spec.Engine)
}

// ValidateBackupStorage checks a backup storage before create.
func ValidateBackupStorage(bs BackupStorage) error {
	if err := ValidateName(bs.Name, "name", MaxNameLength); err != nil {
		return err
	}
	if bs.URL != "" && !validURL(bs.URL) {
		return &InvalidURLError{Field: "url"}
	}
	switch bs.Type {
	case StorageS3:
		if bs.BucketName == "" || bs.Region == "" {
			return ErrBackupStorageRequired
		}
	case StorageAzure:
		if bs.BucketName == "" {
			return ErrBackupStorageRequired
		}
	default:
		return ErrUnknownStorageType
	}
	return nil
}

// ValidateMonitoringInstance checks a monitoring endpoint before create.
func ValidateMonitoringInstance(mi MonitoringInstance) error {
	if err := ValidateName(mi.Name, "name", MaxNameLength); err != nil {
		return err
	}
	if !validURL(mi.URL) {
		return &InvalidURLError{Field: "url"}
	}
	if mi.Type != "pmm" {
		return ErrMonitoringType
	}
	return nil
}
