// Package cronconv shifts simple cron expressions between timezones.
//
// Backup schedules are entered in the console user's local timezone and
// stored in UTC. Only the shapes the console produces are supported:
//
//	M * * * *        hourly at minute M
//	M H * * *        daily at H:M
//	M H * * D        weekly on day-of-week D (0..7, Sunday is 0 or 7)
//	M H DOM * *      monthly on day-of-month DOM (1..31)
//
// Anything else (ranges, steps, lists, descriptors, explicit months) fails
// with a *ParseError instead of producing a different schedule.
//
// Day boundaries: when the hour shift crosses midnight the day-of-week moves
// modulo 7 and the day-of-month moves modulo 31 within 1..31. The mapping is
// a bijection so converting there and back at the same instant returns the
// original expression. A monthly schedule moved onto the 31st only fires in
// months that have one. A Sunday written as 7 comes back as 0 once the
// expression is rewritten.
package cronconv

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	minutesPerHour = 60
	minutesPerDay  = 24 * 60
	daysPerWeek    = 7
	maxMonthDay    = 31
)

// ErrParse matches every *ParseError via errors.Is.
var ErrParse = errors.New("cronconv: unsupported cron expression")

// ErrTimezone is returned for an unknown IANA timezone name.
var ErrTimezone = errors.New("cronconv: unknown timezone")

// ParseError reports an expression outside the supported shapes.
type ParseError struct {
	Expr   string
	Field  string // minute, hour, day-of-month, month, day-of-week; empty for whole-expression errors
	Reason string
}

func (e *ParseError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("cronconv: %q: %s", e.Expr, e.Reason)
	}
	return fmt.Sprintf("cronconv: %q: %s: %s", e.Expr, e.Field, e.Reason)
}

func (e *ParseError) Is(target error) bool { return target == ErrParse }

// Expr is a parsed cron expression in one of the supported shapes.
// A nil pointer field means "*".
type Expr struct {
	Minute     int
	Hour       *int
	DayOfMonth *int
	DayOfWeek  *int
}

// Hourly reports whether the expression fires every hour.
func (e Expr) Hourly() bool { return e.Hour == nil }

func (e Expr) String() string {
	return strings.Join([]string{
		strconv.Itoa(e.Minute),
		starOr(e.Hour),
		starOr(e.DayOfMonth),
		"*",
		starOr(e.DayOfWeek),
	}, " ")
}

func starOr(v *int) string {
	if v == nil {
		return "*"
	}
	return strconv.Itoa(*v)
}

var stdParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Parse validates expr and returns its parsed form.
func Parse(expr string) (Expr, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return Expr{}, &ParseError{Expr: expr, Reason: fmt.Sprintf("expected 5 fields, got %d", len(fields))}
	}
	if fields[4] == "7" {
		fields[4] = "0"
	}
	if _, err := stdParser.Parse(strings.Join(fields, " ")); err != nil {
		return Expr{}, &ParseError{Expr: expr, Reason: err.Error()}
	}

	var out Expr
	m, err := number(expr, "minute", fields[0], 0, 59, false)
	if err != nil {
		return Expr{}, err
	}
	out.Minute = *m
	if out.Hour, err = number(expr, "hour", fields[1], 0, 23, true); err != nil {
		return Expr{}, err
	}
	if out.DayOfMonth, err = number(expr, "day-of-month", fields[2], 1, maxMonthDay, true); err != nil {
		return Expr{}, err
	}
	if fields[3] != "*" {
		return Expr{}, &ParseError{Expr: expr, Field: "month", Reason: "only * is supported"}
	}
	if out.DayOfWeek, err = number(expr, "day-of-week", fields[4], 0, daysPerWeek-1, true); err != nil {
		return Expr{}, err
	}

	if out.DayOfMonth != nil && out.DayOfWeek != nil {
		return Expr{}, &ParseError{Expr: expr, Reason: "day-of-month and day-of-week cannot both be set"}
	}
	if out.Hourly() && (out.DayOfMonth != nil || out.DayOfWeek != nil) {
		return Expr{}, &ParseError{Expr: expr, Field: "hour", Reason: "hourly schedules cannot pin a day"}
	}
	return out, nil
}

func number(expr, field, raw string, lo, hi int, allowStar bool) (*int, error) {
	if raw == "*" {
		if allowStar {
			return nil, nil
		}
		return nil, &ParseError{Expr: expr, Field: field, Reason: "* is not supported"}
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, &ParseError{Expr: expr, Field: field, Reason: fmt.Sprintf("%q is not a plain number", raw)}
	}
	if n < lo || n > hi {
		return nil, &ParseError{Expr: expr, Field: field, Reason: fmt.Sprintf("%d out of range [%d, %d]", n, lo, hi)}
	}
	return &n, nil
}

// Convert shifts expr from fromTz to toTz using the offsets in effect now.
func Convert(expr, fromTz, toTz string) (string, error) {
	return ConvertAt(expr, fromTz, toTz, time.Now())
}

// ConvertAt shifts expr from fromTz to toTz using the offsets in effect at at.
// Timezones are IANA names; "" means UTC.
func ConvertAt(expr, fromTz, toTz string, at time.Time) (string, error) {
	from, err := loadLocation(fromTz)
	if err != nil {
		return "", err
	}
	to, err := loadLocation(toTz)
	if err != nil {
		return "", err
	}
	return ConvertIn(expr, from, to, at)
}

// ConvertIn is ConvertAt with already loaded locations.
func ConvertIn(expr string, from, to *time.Location, at time.Time) (string, error) {
	parsed, err := Parse(expr)
	if err != nil {
		return "", err
	}
	diff := OffsetDiff(from, to, at)
	if diff == 0 {
		return expr, nil
	}
	return Shift(parsed, diff).String(), nil
}

// OffsetDiff returns offset(to) - offset(from) in minutes at the instant at.
func OffsetDiff(from, to *time.Location, at time.Time) int {
	_, fromOff := at.In(from).Zone()
	_, toOff := at.In(to).Zone()
	return (toOff - fromOff) / 60
}

// Shift moves e by diff minutes.
func Shift(e Expr, diff int) Expr {
	if e.Hourly() {
		e.Minute = mod(e.Minute+diff, minutesPerHour)
		return e
	}

	total := *e.Hour*minutesPerHour + e.Minute + diff
	dayShift := floorDiv(total, minutesPerDay)
	total = mod(total, minutesPerDay)
	h := total / minutesPerHour
	e.Hour = &h
	e.Minute = total % minutesPerHour

	if dayShift == 0 {
		return e
	}
	if e.DayOfWeek != nil {
		d := mod(*e.DayOfWeek+dayShift, daysPerWeek)
		e.DayOfWeek = &d
	}
	if e.DayOfMonth != nil {
		d := mod(*e.DayOfMonth-1+dayShift, maxMonthDay) + 1
		e.DayOfMonth = &d
	}
	return e
}

func loadLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrTimezone, name, err)
	}
	return loc, nil
}

func mod(a, n int) int {
	r := a % n
	if r < 0 {
		r += n
	}
	return r
}

func floorDiv(a, n int) int {
	q := a / n
	if a%n != 0 && (a < 0) != (n < 0) {
		q--
	}
	return q
}
