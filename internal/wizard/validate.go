package wizard

import (
	"errors"
	"fmt"
	"net/netip"
	"slices"
	"strings"

	"dbconsole/internal/dbcluster"
	"dbconsole/internal/schedules"
	"dbconsole/pkg/k8sres"

	"github.com/AlekSi/pointer"
)

// FieldError is one invalid form field. Field uses the JSON field name.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Result is the outcome of Validate.
type Result struct {
	Errors []FieldError `json:"errors"`
}

func (r Result) OK() bool { return len(r.Errors) == 0 }

// Err returns nil for a valid result, else an error listing every field.
func (r Result) Err() error {
	if r.OK() {
		return nil
	}
	return &ValidationError{Result: r}
}

func (r *Result) add(field, format string, args ...any) {
	r.Errors = append(r.Errors, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// Field returns the first message for field, or "".
func (r Result) Field(field string) string {
	for _, e := range r.Errors {
		if e.Field == field {
			return e.Message
		}
	}
	return ""
}

// ErrInvalid matches every *ValidationError.
var ErrInvalid = errors.New("invalid wizard values")

type ValidationError struct{ Result Result }

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Result.Errors))
	for _, fe := range e.Result.Errors {
		parts = append(parts, fe.Field+": "+fe.Message)
	}
	return "invalid wizard values: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalid }

// Validate checks every wizard field and returns all problems at once.
func Validate(v Values) Result {
	var r Result

	if v.DBName == "" {
		r.add("dbName", "required")
	} else if err := dbcluster.ValidateName(v.DBName, "dbName", dbcluster.MaxNameLength); err != nil {
		r.add("dbName", "%v", err)
	}
	if v.Engine() == "" {
		r.add("dbType", "unknown database type %q", v.DBType)
	}
	if strings.TrimSpace(v.DBVersion) == "" {
		r.add("dbVersion", "required")
	}
	if strings.TrimSpace(v.K8sNamespace) == "" {
		r.add("k8sNamespace", "required")
	}

	validateUnits(&r, v, "numberOfNodes", v.NumberOfNodes, "customNrOfNodes", v.CustomNrOfNodes)
	validateUnits(&r, v, "numberOfProxies", v.NumberOfProxies, "customNrOfProxies", v.CustomNrOfProxies)
	validateResources(&r, v)
	validateSourceRanges(&r, v)
	validateSharding(&r, v)

	if v.Monitoring && strings.TrimSpace(v.MonitoringInstance) == "" {
		r.add("monitoringInstance", "required when monitoring is enabled")
	}
	if v.EngineParametersEnabled && strings.TrimSpace(v.EngineParameters) == "" {
		r.add("engineParameters", "required when engine parameters are enabled")
	}
	if v.PITREnabled && pointer.GetString(v.PITRStorageLocation) == "" {
		r.add("pitrStorageLocation", "required when point-in-time recovery is enabled")
	}
	if engine := v.Engine(); engine != "" {
		if err := schedules.Validate(engine, v.Schedules); err != nil {
			r.add("schedules", "%v", err)
		}
	}
	return r
}

func validateUnits(r *Result, v Values, field, option, customField, custom string) {
	if option == CustomUnits {
		if n, ok := atoi(custom); !ok || n < 1 {
			r.add(customField, "must be a positive number")
		}
		return
	}
	if !slices.Contains(NodesForDBType(v.DBType), option) {
		r.add(field, "must be one of %s", strings.Join(NodesForDBType(v.DBType), ", "))
	}
}

func validateResources(r *Result, v Values) {
	if cpu, err := k8sres.CPUQuantity(v.CPU); err != nil || cpu.Cmp(dbcluster.MinCPU) < 0 {
		r.add("cpu", "CPU should be at least %s", dbcluster.MinCPU.String())
	}
	if mem, err := k8sres.ToQuantity(k8sres.Quantity{Value: v.Memory, OriginalUnit: "G"}); err != nil || mem.Cmp(dbcluster.MinMemory) < 0 {
		r.add("memory", "memory should be at least %s", dbcluster.MinMemory.String())
	}
	if !k8sres.IsMemoryUnit(v.DiskUnit) {
		r.add("diskUnit", "unknown unit %q", v.DiskUnit)
		return
	}
	if disk, err := k8sres.ToQuantity(k8sres.Quantity{Value: v.Disk, OriginalUnit: v.DiskUnit}); err != nil || disk.Cmp(dbcluster.MinStorage) < 0 {
		r.add("disk", "disk should be at least %s", dbcluster.MinStorage.String())
	}
}

func validateSourceRanges(r *Result, v Values) {
	if !v.ExternalAccess {
		return
	}
	for i, sr := range v.SourceRanges {
		s := strings.TrimSpace(sr.SourceRange)
		if s == "" {
			continue
		}
		if _, err := netip.ParsePrefix(s); err == nil {
			continue
		}
		if _, err := netip.ParseAddr(s); err == nil {
			continue
		}
		r.add(fmt.Sprintf("sourceRanges.%d.sourceRange", i), "invalid IP address or CIDR %q", s)
	}
}

func validateSharding(r *Result, v Values) {
	if !v.Sharding {
		return
	}
	if v.DBType != dbcluster.DBMongo {
		r.add("sharding", "sharding is only supported for MongoDB")
		return
	}
	if n, ok := atoi(v.ShardNr); !ok || n < 1 {
		r.add("shardNr", "shards number should be greater than 0")
	}
	n, ok := atoi(v.ShardConfigServers)
	switch {
	case !ok || n < 1:
		r.add("shardConfigServers", "minimum config servers number is 1")
	case n%2 == 0:
		r.add("shardConfigServers", "config servers number should be odd")
	}
}
