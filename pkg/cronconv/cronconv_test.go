package cronconv

import (
	"errors"
	"testing"
	"time"
)

var (
	winter = time.Date(2024, time.January, 15, 12, 0, 0, 0, time.UTC)
	summer = time.Date(2024, time.July, 15, 12, 0, 0, 0, time.UTC)
)

func TestConvertAt(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		expr     string
		from, to string
		at       time.Time
		want     string
	}{
		{name: "same zone", expr: "0 5 * * *", from: "UTC", to: "UTC", at: winter, want: "0 5 * * *"},
		{name: "zero offset keeps input", expr: "0  5 * * *", from: "Europe/Lisbon", to: "UTC", at: winter, want: "0  5 * * *"},
		{name: "daily dst", expr: "0 5 * * *", from: "Europe/Lisbon", to: "UTC", at: summer, want: "0 4 * * *"},
		{name: "daily forward", expr: "30 22 * * *", from: "UTC", to: "Asia/Kolkata", at: winter, want: "0 4 * * *"},
		{name: "weekly crosses midnight back", expr: "0 1 * * 0", from: "Europe/Berlin", to: "UTC", at: winter, want: "0 0 * * 0"},
		{name: "weekly wraps sunday to saturday", expr: "0 0 * * 0", from: "Europe/Berlin", to: "UTC", at: winter, want: "0 23 * * 6"},
		{name: "sunday written as seven", expr: "0 0 * * 7", from: "Europe/Berlin", to: "UTC", at: winter, want: "0 23 * * 6"},
		{name: "seven emitted as zero", expr: "0 23 * * 7", from: "UTC", to: "Europe/Berlin", at: winter, want: "0 0 * * 1"},
		{name: "weekly wraps saturday to sunday", expr: "0 23 * * 6", from: "UTC", to: "Europe/Berlin", at: winter, want: "0 0 * * 0"},
		{name: "monthly wraps first to 31st", expr: "0 0 1 * *", from: "Europe/Berlin", to: "UTC", at: winter, want: "0 23 31 * *"},
		{name: "monthly wraps 31st to first", expr: "0 23 31 * *", from: "UTC", to: "Europe/Berlin", at: winter, want: "0 0 1 * *"},
		{name: "hourly half hour zone", expr: "15 * * * *", from: "Asia/Kolkata", to: "UTC", at: winter, want: "45 * * * *"},
		{name: "hourly whole hour zone", expr: "15 * * * *", from: "America/New_York", to: "UTC", at: winter, want: "15 * * * *"},
		{name: "empty zone is utc", expr: "0 12 * * *", from: "America/New_York", to: "", at: winter, want: "0 17 * * *"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ConvertAt(tt.expr, tt.from, tt.to, tt.at)
			if err != nil {
				t.Fatalf("ConvertAt(%q): %v", tt.expr, err)
			}
			if got != tt.want {
				t.Fatalf("ConvertAt(%q, %s -> %s) = %q, want %q", tt.expr, tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestConvertRoundTrip(t *testing.T) {
	t.Parallel()
	exprs := []string{
		"0 0 * * *", "59 23 * * *", "30 12 * * *",
		"0 0 * * 0", "45 23 * * 6", "5 1 * * 3",
		"0 0 1 * *", "0 23 31 * *", "10 10 15 * *",
		"0 * * * *", "59 * * * *",
	}
	zones := []string{"UTC", "Europe/Lisbon", "Asia/Kolkata", "America/Los_Angeles", "Pacific/Auckland", "Asia/Kathmandu"}
	for _, at := range []time.Time{winter, summer} {
		for _, expr := range exprs {
			for _, a := range zones {
				for _, b := range zones {
					there, err := ConvertAt(expr, a, b, at)
					if err != nil {
						t.Fatalf("ConvertAt(%q, %s, %s): %v", expr, a, b, err)
					}
					back, err := ConvertAt(there, b, a, at)
					if err != nil {
						t.Fatalf("ConvertAt(%q, %s, %s): %v", there, b, a, err)
					}
					if back != expr {
						t.Fatalf("round trip %q %s->%s->%s = %q via %q", expr, a, b, a, back, there)
					}
				}
			}
		}
	}
}

func TestConvertRejectsUnsupportedShapes(t *testing.T) {
	t.Parallel()
	bad := []string{
		"",
		"0 5 * *",
		"0 5 * * * *",
		"@daily",
		"*/5 * * * *",
		"0 1-3 * * *",
		"0 1,2 * * *",
		"* 5 * * *",
		"0 5 * 1 *",
		"0 5 1 * 1",
		"0 * * * 1",
		"0 * 5 * *",
		"0 24 * * *",
		"0 5 0 * *",
		"0 5 * * 8",
		"0 5 * * MON",
	}
	for _, expr := range bad {
		_, err := ConvertAt(expr, "Europe/Berlin", "UTC", winter)
		if err == nil {
			t.Fatalf("ConvertAt(%q) expected error", expr)
		}
		if !errors.Is(err, ErrParse) {
			t.Fatalf("ConvertAt(%q) err = %v, want ErrParse", expr, err)
		}
		var pe *ParseError
		if !errors.As(err, &pe) || pe.Expr != expr {
			t.Fatalf("ConvertAt(%q) err = %#v, want *ParseError", expr, err)
		}
	}
}

func TestConvertUnknownTimezone(t *testing.T) {
	t.Parallel()
	_, err := ConvertAt("0 5 * * *", "Mars/Olympus", "UTC", winter)
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrParse) {
		t.Fatalf("timezone errors should not be parse errors: %v", err)
	}
}

func TestShiftNegativeTotals(t *testing.T) {
	t.Parallel()
	h := 0
	dow := 1
	got := Shift(Expr{Minute: 10, Hour: &h, DayOfWeek: &dow}, -30)
	if got.String() != "40 23 * * 0" {
		t.Fatalf("Shift = %q", got.String())
	}
	if floorDiv(-1, 1440) != -1 || floorDiv(1440, 1440) != 1 || floorDiv(0, 1440) != 0 {
		t.Fatal("floorDiv mismatch")
	}
}
