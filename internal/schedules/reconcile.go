// Package schedules reconciles a cluster's backup schedule list.
//
// Create, Edit and Delete are pure: they never mutate the input slice and on
// error they return the original list untouched. Engine policy (caps,
// storage rules) lives in policy.go and is applied by callers.
package schedules

import (
	"errors"
	"fmt"
	"slices"

	"dbconsole/internal/dbcluster"
)

// Schedule is a named recurring backup policy.
type Schedule = dbcluster.Schedule

var (
	ErrDuplicateName = errors.New("schedule name already exists")
	ErrNotFound      = errors.New("schedule not found")
)

type DuplicateNameError struct{ Name string }

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("schedule %q already exists", e.Name)
}

func (e *DuplicateNameError) Is(target error) bool { return target == ErrDuplicateName }

type NotFoundError struct{ Name string }

func (e *NotFoundError) Error() string { return fmt.Sprintf("schedule %q not found", e.Name) }

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// Index returns the position of the first schedule named name, or -1.
func Index(list []Schedule, name string) int {
	return slices.IndexFunc(list, func(s Schedule) bool { return s.Name == name })
}

// Create appends s. It fails if a schedule with the same name exists.
func Create(list []Schedule, s Schedule) ([]Schedule, error) {
	if Index(list, s.Name) >= 0 {
		return list, &DuplicateNameError{Name: s.Name}
	}
	out := make([]Schedule, 0, len(list)+1)
	out = append(out, list...)
	return append(out, s), nil
}

// Edit replaces the schedule named oldName with s, keeping its position.
// Renaming onto another existing schedule's name fails.
func Edit(list []Schedule, oldName string, s Schedule) ([]Schedule, error) {
	i := Index(list, oldName)
	if i < 0 {
		return list, &NotFoundError{Name: oldName}
	}
	if s.Name != oldName {
		if j := Index(list, s.Name); j >= 0 && j != i {
			return list, &DuplicateNameError{Name: s.Name}
		}
	}
	out := slices.Clone(list)
	out[i] = s
	return out, nil
}

// Delete removes the first schedule named name. A missing name is a no-op
// that returns list itself.
func Delete(list []Schedule, name string) []Schedule {
	i := Index(list, name)
	if i < 0 {
		return list
	}
	out := make([]Schedule, 0, len(list)-1)
	out = append(out, list[:i]...)
	return append(out, list[i+1:]...)
}
