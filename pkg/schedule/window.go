package schedule

import "time"

// windowed schedules answer both predicates through the start of the window
// that contains an instant.
type windowed interface {
	windowStart(t time.Time) (time.Time, bool)
}

func isSessionTime(w windowed, t time.Time) bool {
	_, ok := w.windowStart(t)
	return ok
}

func isSameSession(w windowed, t1, t2 time.Time) bool {
	s1, ok := w.windowStart(t1)
	if !ok {
		return false
	}
	s2, ok := w.windowStart(t2)
	if !ok {
		return false
	}
	return s1.Equal(s2)
}

// Daily is a window opening at Start every (selected) day and closing at End.
// End at or before Start means the window crosses midnight; End equal to
// Start makes a full 24 hour window.
type Daily struct {
	start, end TimeOfDay
	days       map[time.Weekday]bool
	loc        *time.Location
}

// NewDaily builds a daily schedule. With no days given every day of the week
// opens a window; otherwise only windows starting on the listed days count.
func NewDaily(start, end TimeOfDay, loc *time.Location, days ...time.Weekday) *Daily {
	if loc == nil {
		loc = time.UTC
	}
	var set map[time.Weekday]bool
	if len(days) > 0 {
		set = make(map[time.Weekday]bool, len(days))
		for _, d := range days {
			set[d] = true
		}
	}
	return &Daily{start: start, end: end, days: set, loc: loc}
}

func (d *Daily) IsSessionTime(t time.Time) bool      { return isSessionTime(d, t) }
func (d *Daily) IsSameSession(t1, t2 time.Time) bool { return isSameSession(d, t1, t2) }
func (d *Daily) IsNonStopSession() bool              { return false }

func (d *Daily) windowStart(t time.Time) (time.Time, bool) {
	local := t.In(d.loc)
	endOffset := 0
	if d.end.seconds() <= d.start.seconds() {
		endOffset = 1
	}
	// today's window first so that an instant on the shared boundary of a
	// 24 hour schedule belongs to the window it opens
	for _, back := range []int{0, -1} {
		start := d.start.on(local, back, d.loc)
		if d.days != nil && !d.days[start.Weekday()] {
			continue
		}
		end := d.end.on(local, back+endOffset, d.loc)
		if !local.Before(start) && !local.After(end) {
			return start, true
		}
	}
	return time.Time{}, false
}

// Weekly is a single window per week, from StartDay at Start to EndDay at End.
type Weekly struct {
	startDay, endDay time.Weekday
	start, end       TimeOfDay
	loc              *time.Location
}

func NewWeekly(startDay time.Weekday, start TimeOfDay, endDay time.Weekday, end TimeOfDay, loc *time.Location) *Weekly {
	if loc == nil {
		loc = time.UTC
	}
	return &Weekly{startDay: startDay, endDay: endDay, start: start, end: end, loc: loc}
}

func (w *Weekly) IsSessionTime(t time.Time) bool      { return isSessionTime(w, t) }
func (w *Weekly) IsSameSession(t1, t2 time.Time) bool { return isSameSession(w, t1, t2) }
func (w *Weekly) IsNonStopSession() bool              { return false }

func (w *Weekly) length() int {
	days := (int(w.endDay) - int(w.startDay) + 7) % 7
	if days == 0 && w.end.seconds() <= w.start.seconds() {
		days = 7
	}
	return days
}

func (w *Weekly) windowStart(t time.Time) (time.Time, bool) {
	local := t.In(w.loc)
	back := (int(local.Weekday()) - int(w.startDay) + 7) % 7
	start := w.start.on(local, -back, w.loc)
	if start.After(local) {
		back += 7
		start = w.start.on(local, -back, w.loc)
	}
	end := w.end.on(local, -back+w.length(), w.loc)
	if local.After(end) {
		return time.Time{}, false
	}
	return start, true
}
