// Package scheduler runs the console's periodic jobs (cluster cache refresh)
// on robfig/cron in a configurable timezone, and previews upcoming runs of
// backup schedules.
package scheduler
