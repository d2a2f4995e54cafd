package console

import (
	"fmt"
	"slices"

	"dbconsole/internal/dbcluster"
	"dbconsole/internal/schedules"
	"dbconsole/pkg/cronconv"
	"dbconsole/pkg/logx"
)

// toLocal returns c with its schedules shifted from UTC into the console
// timezone. A schedule that cannot be converted is kept verbatim and logged.
func (s *Service) toLocal(c dbcluster.DatabaseCluster) dbcluster.DatabaseCluster {
	list := c.Spec.Backup.Schedules
	if len(list) == 0 {
		return c
	}
	tz, at := s.Timezone(), s.options().Now()
	out := slices.Clone(list)
	for i := range out {
		expr, err := cronconv.ConvertAt(out[i].Schedule, "UTC", tz, at)
		if err != nil {
			s.log.Warn("schedule left in UTC",
				logx.String("cluster", c.Metadata.Name),
				logx.String("schedule", out[i].Name),
				logx.String("cron", out[i].Schedule),
				logx.Err(err),
			)
			continue
		}
		out[i].Schedule = expr
	}
	c.Spec.Backup.Schedules = out
	return c
}

// toUTC converts list back to UTC for writing. stored maps each cron string
// as displayed to the string the backend holds, so untouched schedules
// (including ones toLocal could not convert) are written back verbatim.
func (s *Service) toUTC(list []schedules.Schedule, stored map[string]string) ([]schedules.Schedule, error) {
	tz, at := s.Timezone(), s.options().Now()
	out := slices.Clone(list)
	for i := range out {
		if utc, ok := stored[out[i].Schedule]; ok {
			out[i].Schedule = utc
			continue
		}
		expr, err := cronconv.ConvertAt(out[i].Schedule, tz, "UTC", at)
		if err != nil {
			return nil, invalid(fmt.Errorf("schedule %q: %w", out[i].Name, err))
		}
		out[i].Schedule = expr
	}
	return out, nil
}

// storedCrons pairs the displayed schedules with the stored ones they were
// rendered from. Both lists come from the same cluster, index by index.
func storedCrons(local, stored []schedules.Schedule) map[string]string {
	m := make(map[string]string, len(local))
	for i := range min(len(local), len(stored)) {
		m[local[i].Schedule] = stored[i].Schedule
	}
	return m
}
