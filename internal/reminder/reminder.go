package reminder

import (
	"strings"
	"time"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusFired   Status = "fired"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"
)

// Reminder is one scheduled notification belonging to an owner chat.
//
// Day selects the schedule shape:
//   - ""            fires on any day at Time (the next time that minute comes around)
//   - "mon".."sun"  fires on that weekday at Time
//   - "2006-01-02"  fires on that exact date at Time
//
// Status is monotonic: pending -> fired, never back. The scheduler tick is the
// only writer of fired.
type Reminder struct {
	Day     string `json:"day,omitempty"`
	Time    string `json:"time"`
	Message string `json:"message"`
	Status  Status `json:"status"`
}

func (r Reminder) Pending() bool { return r.Status != StatusFired }

// Matches reports whether the reminder is scheduled for the given instant,
// compared at minute granularity. now must already be in the scheduler's
// fixed timezone; seconds are ignored.
func (r Reminder) Matches(now time.Time) bool {
	if r.Time != now.Format(timeLayout) {
		return false
	}
	day := strings.TrimSpace(r.Day)
	if day == "" {
		return true
	}
	if d, err := time.Parse(dateLayout, day); err == nil {
		y1, m1, d1 := d.Date()
		y2, m2, d2 := now.Date()
		return y1 == y2 && m1 == m2 && d1 == d2
	}
	if wd, ok := parseWeekday(day); ok {
		return wd == now.Weekday()
	}
	// Unrecognized day field (hand-edited store): never match rather than
	// fire on a guess.
	return false
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tues": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thur": time.Thursday, "thurs": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

func parseWeekday(s string) (time.Weekday, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if wd, ok := weekdayNames[s]; ok {
		return wd, true
	}
	// ISO-style number: 1 = Monday .. 7 = Sunday.
	if len(s) == 1 && s[0] >= '1' && s[0] <= '7' {
		n := int(s[0] - '0')
		return time.Weekday(n % 7), true
	}
	return 0, false
}
