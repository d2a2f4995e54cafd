package dbcluster

import (
	"time"

	"github.com/samber/lo"
)

// BackupState is the normalized state shown for backups and restores.
type BackupState string

const (
	BackupOK         BackupState = "OK"
	BackupInProgress BackupState = "IN_PROGRESS"
	BackupFailed     BackupState = "FAILED"
	BackupDeleting   BackupState = "DELETING"
	BackupUnknown    BackupState = "UNKNOWN"
)

// Operators report states with mixed casing; the map is keyed by the exact
// strings they emit.
var backupStates = map[string]BackupState{
	"Starting":  BackupInProgress,
	"Running":   BackupInProgress,
	"Failed":    BackupFailed,
	"Succeeded": BackupOK,
	"Deleting":  BackupDeleting,
	"waiting":   BackupInProgress,
	"requested": BackupInProgress,
	"rejected":  BackupFailed,
	"running":   BackupInProgress,
	"error":     BackupFailed,
	"ready":     BackupOK,
}

// BackupStateToStatus maps a raw operator state to a BackupState.
func BackupStateToStatus(raw string) BackupState {
	if s, ok := backupStates[raw]; ok {
		return s
	}
	return BackupUnknown
}

// State returns the normalized state of b.
func (b DatabaseClusterBackup) State() BackupState {
	if b.Status == nil {
		return BackupUnknown
	}
	return BackupStateToStatus(b.Status.State)
}

// LastBackup returns the completion time of the newest successful backup.
func LastBackup(backups []DatabaseClusterBackup) (time.Time, bool) {
	done := lo.Filter(backups, func(b DatabaseClusterBackup, _ int) bool {
		return b.State() == BackupOK && b.Status.Completed != nil
	})
	if len(done) == 0 {
		return time.Time{}, false
	}
	newest := lo.MaxBy(done, func(a, b DatabaseClusterBackup) bool {
		return a.Status.Completed.After(*b.Status.Completed)
	})
	return *newest.Status.Completed, true
}

// BackupsFor returns the backups that belong to cluster, in input order.
func BackupsFor(cluster string, backups []DatabaseClusterBackup) []DatabaseClusterBackup {
	return lo.Filter(backups, func(b DatabaseClusterBackup, _ int) bool {
		return b.Spec.DBClusterName == cluster
	})
}
