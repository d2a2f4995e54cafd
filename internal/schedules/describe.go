package schedules

import (
	"fmt"
	"strconv"
	"time"

	"dbconsole/pkg/cronconv"
)

// Description is the human-readable form of a schedule row.
type Description struct {
	Name      string `json:"name"`
	When      string `json:"when"`
	Retention string `json:"retention"`
	Storage   string `json:"storage"`
}

// Describe renders s for display. Expressions outside the supported cron
// shapes are shown verbatim.
func Describe(s Schedule) Description {
	return Description{
		Name:      s.Name,
		When:      When(s.Schedule),
		Retention: "Retention copies: " + RetentionLabel(s.RetentionCopies),
		Storage:   "Storage: " + s.BackupStorageName,
	}
}

// RetentionLabel renders a retention copy count; 0 keeps every copy.
func RetentionLabel(n int) string {
	if n <= 0 {
		return "infinite"
	}
	return strconv.Itoa(n)
}

// When renders a cron expression as a sentence.
func When(expr string) string {
	e, err := cronconv.Parse(expr)
	if err != nil {
		return expr
	}
	if e.Hourly() {
		return fmt.Sprintf("Every hour at minute %d", e.Minute)
	}
	at := fmt.Sprintf("%02d:%02d", *e.Hour, e.Minute)
	switch {
	case e.DayOfWeek != nil:
		return fmt.Sprintf("Every %s at %s", time.Weekday(*e.DayOfWeek), at)
	case e.DayOfMonth != nil:
		return fmt.Sprintf("Every month on day %d at %s", *e.DayOfMonth, at)
	default:
		return "Every day at " + at
	}
}
