package schedules

import (
	"errors"
	"fmt"

	"dbconsole/internal/dbcluster"

	"github.com/samber/lo"
)

const (
	// PGSlotsLimit caps PostgreSQL clusters at three schedules (one pgBackRest
	// repo per schedule).
	PGSlotsLimit = 3

	// MaxNameLength leaves room for the operator's generated suffixes.
	MaxNameLength = 57
)

var (
	ErrPolicy  = errors.New("schedule policy violation")
	ErrInvalid = errors.New("invalid schedule")
)

var (
	ErrLimitReached              = fmt.Errorf("only %d schedules are allowed for PostgreSQL clusters", PGSlotsLimit)
	ErrNoName                    = errors.New("'name' field for the backup schedules cannot be empty")
	ErrNoStorage                 = errors.New("'backupStorageName' field cannot be empty when schedule is enabled")
	ErrDuplicatedSchedules       = errors.New("duplicated backup schedules are not allowed")
	ErrDuplicatedStoragePG       = errors.New("postgres clusters can't use the same storage for the different schedules")
	ErrStorageChangePG           = errors.New("the existing postgres schedules can't change their storage")
	ErrPSMDBMultipleStorages     = errors.New("can't use more than one backup storage for PSMDB clusters")
	ErrPSMDBViolateActiveStorage = errors.New("can't change the active storage for PSMDB clusters")
)

// PolicyError wraps a rule violation together with the offending schedule.
// errors.Is matches both ErrPolicy and the wrapped rule.
type PolicyError struct {
	Schedule string
	Rule     error
}

func (e *PolicyError) Error() string {
	if e.Schedule == "" {
		return e.Rule.Error()
	}
	return fmt.Sprintf("schedule %q: %v", e.Schedule, e.Rule)
}

func (e *PolicyError) Unwrap() error { return e.Rule }

func (e *PolicyError) Is(target error) bool { return target == ErrPolicy }

func violation(name string, rule error) error { return &PolicyError{Schedule: name, Rule: rule} }

// FieldError reports a malformed field of a single schedule, as opposed to a
// rule about the list as a whole. errors.Is matches ErrInvalid and Err.
type FieldError struct {
	Schedule string
	Err      error
}

func (e *FieldError) Error() string {
	if e.Schedule == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("schedule %q: %v", e.Schedule, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

func (e *FieldError) Is(target error) bool { return target == ErrInvalid }

// Limit returns the maximum number of schedules for engine; 0 means no cap.
func Limit(engine dbcluster.EngineType) int {
	if engine == dbcluster.EnginePostgresql {
		return PGSlotsLimit
	}
	return 0
}

// CanCreate reports whether one more schedule fits under the engine cap.
func CanCreate(engine dbcluster.EngineType, list []Schedule) bool {
	limit := Limit(engine)
	return limit == 0 || len(list) < limit
}

// ActiveStorage is the storage new schedules must use. Only MongoDB pins
// one: the storage of its first schedule.
func ActiveStorage(engine dbcluster.EngineType, list []Schedule) string {
	if engine != dbcluster.EnginePSMDB || len(list) == 0 {
		return ""
	}
	return list[0].BackupStorageName
}

// Mode selects what ApplyForm does with the submitted schedule.
type Mode string

const (
	ModeNew  Mode = "new"
	ModeEdit Mode = "edit"
)

// ApplyForm merges a schedule form submission into list. In edit mode
// selectedName is the schedule being edited.
func ApplyForm(engine dbcluster.EngineType, mode Mode, selectedName string, s Schedule, list []Schedule) ([]Schedule, error) {
	switch mode {
	case ModeNew:
		if !CanCreate(engine, list) {
			return list, violation(s.Name, ErrLimitReached)
		}
		return Create(list, s)
	case ModeEdit:
		return Edit(list, selectedName, s)
	default:
		return list, fmt.Errorf("unknown schedule form mode %q", mode)
	}
}

// Validate checks a full schedule list for engine.
func Validate(engine dbcluster.EngineType, list []Schedule) error {
	if limit := Limit(engine); limit > 0 && len(list) > limit {
		return violation("", ErrLimitReached)
	}
	for _, s := range list {
		if s.Name == "" {
			return &FieldError{Err: ErrNoName}
		}
		if err := dbcluster.ValidateName(s.Name, "name", MaxNameLength); err != nil {
			return &FieldError{Schedule: s.Name, Err: err}
		}
		if s.Enabled && s.BackupStorageName == "" {
			return &FieldError{Schedule: s.Name, Err: ErrNoStorage}
		}
	}

	if dup := lo.FindDuplicatesBy(list, func(s Schedule) string { return s.Schedule }); len(dup) > 0 {
		return violation(dup[0].Name, ErrDuplicatedSchedules)
	}
	if dup := lo.FindDuplicatesBy(list, func(s Schedule) string { return s.Name }); len(dup) > 0 {
		return &DuplicateNameError{Name: dup[0].Name}
	}

	switch engine {
	case dbcluster.EnginePostgresql:
		if dup := lo.FindDuplicatesBy(list, func(s Schedule) string { return s.BackupStorageName }); len(dup) > 0 {
			return violation(dup[0].Name, ErrDuplicatedStoragePG)
		}
	case dbcluster.EnginePSMDB:
		storages := lo.Uniq(lo.Map(list, func(s Schedule, _ int) string { return s.BackupStorageName }))
		if len(storages) > 1 {
			return violation("", ErrPSMDBMultipleStorages)
		}
	}
	return nil
}

// ValidateUpdate checks a replacement list against the one it replaces.
// activeStorage is the storage the backend reports as active for the
// cluster ("" if none).
func ValidateUpdate(engine dbcluster.EngineType, oldList, newList []Schedule, activeStorage string) error {
	if err := Validate(engine, newList); err != nil {
		return err
	}
	switch engine {
	case dbcluster.EnginePostgresql:
		for _, n := range newList {
			if i := Index(oldList, n.Name); i >= 0 && oldList[i].BackupStorageName != n.BackupStorageName {
				return violation(n.Name, ErrStorageChangePG)
			}
		}
	case dbcluster.EnginePSMDB:
		if activeStorage == "" {
			return nil
		}
		if s, ok := lo.Find(newList, func(s Schedule) bool { return s.BackupStorageName != activeStorage }); ok {
			return violation(s.Name, ErrPSMDBViolateActiveStorage)
		}
	}
	return nil
}
