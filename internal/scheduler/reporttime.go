package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Named report anchors. Sunset is approximated by a fixed local clock time;
// no astronomical calculation is done.
const (
	AnchorSunset       = "sunset"
	AnchorSunsetPlus30 = "sunset+30"
	AnchorSunsetPlus60 = "sunset+60"

	SunsetHour = 19
)

// DefaultReportTime is used when the configured report time is malformed.
var DefaultReportTime = ReportTime{Hour: SunsetHour, Minute: 30}

var anchors = map[string]ReportTime{
	AnchorSunset:       {Hour: SunsetHour, Minute: 0},
	AnchorSunsetPlus30: {Hour: SunsetHour, Minute: 30},
	AnchorSunsetPlus60: {Hour: SunsetHour + 1, Minute: 0},
}

// ReportTime is a local wall-clock time of day.
type ReportTime struct {
	Hour   int
	Minute int
}

// ParseReportTime accepts a named anchor or an explicit "HH:MM".
func ParseReportTime(s string) (ReportTime, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if rt, ok := anchors[s]; ok {
		return rt, nil
	}
	hh, mm, ok := strings.Cut(s, ":")
	if !ok {
		return ReportTime{}, fmt.Errorf("invalid report time %q", s)
	}
	h, err := parseClockField(hh, 23)
	if err != nil {
		return ReportTime{}, fmt.Errorf("invalid report time %q: hour: %w", s, err)
	}
	m, err := parseClockField(mm, 59)
	if err != nil {
		return ReportTime{}, fmt.Errorf("invalid report time %q: minute: %w", s, err)
	}
	return ReportTime{Hour: h, Minute: m}, nil
}

func parseClockField(s string, max int) (int, error) {
	if len(s) == 0 || len(s) > 2 {
		return 0, fmt.Errorf("want 1 or 2 digits, got %q", s)
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if v < 0 || v > max {
		return 0, fmt.Errorf("%d out of range 0-%d", v, max)
	}
	return v, nil
}

// On returns the report instant on the calendar day of t, in t's location.
func (r ReportTime) On(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, r.Hour, r.Minute, 0, 0, t.Location())
}

func (r ReportTime) String() string {
	return fmt.Sprintf("%02d:%02d", r.Hour, r.Minute)
}
