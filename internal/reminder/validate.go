package reminder

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ValidationError marks user input that could not be turned into a reminder.
// Its message is safe to echo back to the sender.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

func validationErrf(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a user-input validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Parse turns raw (day-token, time-token, text) input into a well-formed
// pending reminder, or a ValidationError describing what is wrong.
//
// now must be in the scheduler's fixed timezone; it anchors relative day
// tokens. Resolution rules:
//   - empty day token: the reminder fires on whatever day Time next occurs
//   - "today" / "tomorrow": resolved to a concrete date
//   - weekday name or 1-7 (Monday=1): resolved to the next date with that
//     weekday; today qualifies only while the time-of-day has not yet passed,
//     otherwise the reminder lands one week out
func Parse(now time.Time, dayToken, timeToken, text string) (Reminder, error) {
	hh, mm, err := parseHHMM(timeToken)
	if err != nil {
		return Reminder{}, err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return Reminder{}, validationErrf("reminder text is empty")
	}

	day, err := resolveDay(now, dayToken, hh, mm)
	if err != nil {
		return Reminder{}, err
	}

	return Reminder{
		Day:     day,
		Time:    fmt.Sprintf("%02d:%02d", hh, mm),
		Message: text,
		Status:  StatusPending,
	}, nil
}

func parseHHMM(s string) (hour, minute int, err error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, validationErrf("invalid time %q, expected HH:MM", s)
	}
	h, err1 := strconv.Atoi(parts[0])
	if err1 != nil || h < 0 || h > 23 {
		return 0, 0, validationErrf("invalid hour in %q", s)
	}
	m, err2 := strconv.Atoi(parts[1])
	if err2 != nil || m < 0 || m > 59 {
		return 0, 0, validationErrf("invalid minute in %q", s)
	}
	return h, m, nil
}

func resolveDay(now time.Time, token string, hh, mm int) (string, error) {
	token = strings.ToLower(strings.TrimSpace(token))
	switch token {
	case "":
		return "", nil
	case "today":
		return now.Format(dateLayout), nil
	case "tomorrow":
		return now.AddDate(0, 0, 1).Format(dateLayout), nil
	}

	if d, err := time.Parse(dateLayout, token); err == nil {
		// ISO dates compare correctly as strings, which sidesteps zone math.
		canon := d.Format(dateLayout)
		if canon < now.Format(dateLayout) {
			return "", validationErrf("date %s is in the past", canon)
		}
		return canon, nil
	}

	wd, ok := parseWeekday(token)
	if !ok {
		return "", validationErrf("unknown day %q (use today, tomorrow, a weekday name, 1-7, or a date like 2026-01-31)", token)
	}

	delta := (int(wd) - int(now.Weekday()) + 7) % 7
	if delta == 0 && !timeOfDayAhead(now, hh, mm) {
		// Same weekday but the minute already passed (or is in progress):
		// schedule one week out.
		delta = 7
	}
	return now.AddDate(0, 0, delta).Format(dateLayout), nil
}

// timeOfDayAhead reports whether hh:mm is still strictly ahead of now within
// the same day. The current minute counts as passed: its tick may already
// have run.
func timeOfDayAhead(now time.Time, hh, mm int) bool {
	if hh != now.Hour() {
		return hh > now.Hour()
	}
	return mm > now.Minute()
}
