// Package schedule decides when a FIX session is expected to be connected
// and whether two instants belong to the same logical session window.
package schedule

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Schedule interface {
	// IsSessionTime reports whether t falls inside a session window.
	IsSessionTime(t time.Time) bool
	// IsSameSession reports whether no session boundary falls between t1 and t2.
	IsSameSession(t1, t2 time.Time) bool
	// IsNonStopSession reports whether the schedule never resets.
	IsNonStopSession() bool
}

var ErrInvalidSchedule = errors.New("schedule: invalid configuration")

// TimeOfDay is a wall clock time in the schedule's location.
type TimeOfDay struct {
	Hour, Minute, Second int
}

// ParseTimeOfDay parses HH:MM or HH:MM:SS.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return TimeOfDay{}, fmt.Errorf("%w: time of day %q", ErrInvalidSchedule, s)
	}
	values := [3]int{}
	limits := [3]int{23, 59, 59}
	for i, part := range parts {
		v, err := strconv.Atoi(part)
		if err != nil || v < 0 || v > limits[i] {
			return TimeOfDay{}, fmt.Errorf("%w: time of day %q", ErrInvalidSchedule, s)
		}
		values[i] = v
	}
	return TimeOfDay{Hour: values[0], Minute: values[1], Second: values[2]}, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

func (t TimeOfDay) seconds() int {
	return t.Hour*3600 + t.Minute*60 + t.Second
}

// on returns the instant at this time of day on the date of day, offset by
// addDays calendar days.
func (t TimeOfDay) on(day time.Time, addDays int, loc *time.Location) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d+addDays, t.Hour, t.Minute, t.Second, 0, loc)
}

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

func ParseWeekday(s string) (time.Weekday, error) {
	day, ok := weekdays[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("%w: weekday %q", ErrInvalidSchedule, s)
	}
	return day, nil
}

// Params is the textual form of a schedule as found in session settings.
// StartDay and EndDay select a weekly schedule; otherwise the schedule is
// daily, optionally restricted to Weekdays.
type Params struct {
	NonStop   bool
	StartTime string
	EndTime   string
	StartDay  string
	EndDay    string
	Weekdays  []string
	TimeZone  string
}

func New(params Params) (Schedule, error) {
	if params.NonStop {
		return NonStop(), nil
	}

	loc := time.UTC
	if params.TimeZone != "" {
		var err error
		loc, err = time.LoadLocation(params.TimeZone)
		if err != nil {
			return nil, fmt.Errorf("%w: time zone %q: %v", ErrInvalidSchedule, params.TimeZone, err)
		}
	}

	start, err := ParseTimeOfDay(params.StartTime)
	if err != nil {
		return nil, err
	}
	end, err := ParseTimeOfDay(params.EndTime)
	if err != nil {
		return nil, err
	}

	if (params.StartDay == "") != (params.EndDay == "") {
		return nil, fmt.Errorf("%w: start and end day must be set together", ErrInvalidSchedule)
	}
	if params.StartDay != "" {
		if len(params.Weekdays) > 0 {
			return nil, fmt.Errorf("%w: weekdays cannot be combined with a weekly schedule", ErrInvalidSchedule)
		}
		startDay, err := ParseWeekday(params.StartDay)
		if err != nil {
			return nil, err
		}
		endDay, err := ParseWeekday(params.EndDay)
		if err != nil {
			return nil, err
		}
		return NewWeekly(startDay, start, endDay, end, loc), nil
	}

	days := make([]time.Weekday, 0, len(params.Weekdays))
	for _, name := range params.Weekdays {
		day, err := ParseWeekday(name)
		if err != nil {
			return nil, err
		}
		days = append(days, day)
	}
	return NewDaily(start, end, loc, days...), nil
}

type nonStop struct{}

// NonStop returns a schedule that is always in session and never crosses a
// session boundary.
func NonStop() Schedule {
	return nonStop{}
}

func (nonStop) IsSessionTime(time.Time) bool      { return true }
func (nonStop) IsSameSession(_, _ time.Time) bool { return true }
func (nonStop) IsNonStopSession() bool            { return true }
