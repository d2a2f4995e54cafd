package notifier

import (
	"fmt"
	"html"
	"strings"

	"dbconsole/internal/dbcluster"
	"dbconsole/internal/eventbus"
)

// Format renders e as an HTML Telegram message. ok is false for events the
// notifier ignores.
func Format(e eventbus.Event) (text string, ok bool) {
	where := html.EscapeString(strings.Trim(e.Namespace+"/"+e.Cluster, "/"))
	target := html.EscapeString(e.Target)

	switch e.Type {
	case eventbus.ScheduleCreated:
		return fmt.Sprintf("🗓 Backup schedule <b>%s</b> created on <code>%s</code>%s", target, where, scheduleLine(e)), true
	case eventbus.ScheduleUpdated:
		return fmt.Sprintf("✏️ Backup schedule <b>%s</b> updated on <code>%s</code>%s", target, where, scheduleLine(e)), true
	case eventbus.ScheduleDeleted:
		return fmt.Sprintf("🗑 Backup schedule <b>%s</b> removed from <code>%s</code>", target, where), true
	case eventbus.ClusterCreated:
		msg := fmt.Sprintf("🆕 Database cluster <code>%s</code> created", where)
		if kind, _ := e.Data.(string); kind != "" {
			msg += " (" + html.EscapeString(kind) + ")"
		}
		return msg, true
	case eventbus.ClusterUpdated:
		return fmt.Sprintf("⬆️ Database cluster <code>%s</code> moved to version <b>%s</b>", where, target), true
	case eventbus.ClusterDeleted:
		return fmt.Sprintf("❌ Database cluster <code>%s</code> deleted", where), true
	case eventbus.RestoreRequested:
		msg := fmt.Sprintf("♻️ Restore <b>%s</b> requested for <code>%s</code>", target, where)
		if b, _ := e.Data.(string); b != "" {
			msg += " from <i>" + html.EscapeString(b) + "</i>"
		}
		return msg, true
	case eventbus.BackupRequested:
		msg := fmt.Sprintf("💾 Backup <b>%s</b> requested for <code>%s</code>", target, where)
		if st, _ := e.Data.(string); st != "" {
			msg += " into <i>" + html.EscapeString(st) + "</i>"
		}
		return msg, true
	default:
		return "", false
	}
}

// scheduleLine describes the changed schedule when the event carries the
// resulting list.
func scheduleLine(e eventbus.Event) string {
	list, _ := e.Data.([]dbcluster.Schedule)
	for _, s := range list {
		if s.Name != e.Target {
			continue
		}
		line := "\n<code>" + html.EscapeString(s.Schedule) + "</code>"
		if s.BackupStorageName != "" {
			line += " → " + html.EscapeString(s.BackupStorageName)
		}
		if !s.Enabled {
			line += " (disabled)"
		}
		return line
	}
	return ""
}
