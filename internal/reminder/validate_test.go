package reminder

import (
	"testing"
	"time"
)

// Wednesday 2024-06-12, 15:30 (arbitrary fixed anchor for day resolution).
var anchorNow = time.Date(2024, 6, 12, 15, 30, 0, 0, time.UTC)

func TestParseValid(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		day  string
		at   string
		text string
		want Reminder
	}{
		{
			name: "daily no day token",
			at:   "9:05", text: "standup",
			want: Reminder{Day: "", Time: "09:05", Message: "standup", Status: StatusPending},
		},
		{
			name: "today",
			day:  "today", at: "23:59", text: "backup",
			want: Reminder{Day: "2024-06-12", Time: "23:59", Message: "backup", Status: StatusPending},
		},
		{
			name: "tomorrow",
			day:  "tomorrow", at: "08:00", text: "dentist",
			want: Reminder{Day: "2024-06-13", Time: "08:00", Message: "dentist", Status: StatusPending},
		},
		{
			name: "weekday name, later this week",
			day:  "fri", at: "19:00", text: "movie",
			want: Reminder{Day: "2024-06-14", Time: "19:00", Message: "movie", Status: StatusPending},
		},
		{
			name: "weekday name full, wraps to next week",
			day:  "Monday", at: "10:00", text: "review",
			want: Reminder{Day: "2024-06-17", Time: "10:00", Message: "review", Status: StatusPending},
		},
		{
			name: "same weekday, time still ahead today",
			day:  "wed", at: "16:00", text: "call",
			want: Reminder{Day: "2024-06-12", Time: "16:00", Message: "call", Status: StatusPending},
		},
		{
			name: "same weekday, time already passed, defers one week",
			day:  "wed", at: "15:00", text: "call",
			want: Reminder{Day: "2024-06-19", Time: "15:00", Message: "call", Status: StatusPending},
		},
		{
			name: "same weekday, current minute counts as passed",
			day:  "wed", at: "15:30", text: "call",
			want: Reminder{Day: "2024-06-19", Time: "15:30", Message: "call", Status: StatusPending},
		},
		{
			name: "weekday number, monday is 1",
			day:  "1", at: "07:45", text: "gym",
			want: Reminder{Day: "2024-06-17", Time: "07:45", Message: "gym", Status: StatusPending},
		},
		{
			name: "weekday number, sunday is 7",
			day:  "7", at: "12:00", text: "lunch",
			want: Reminder{Day: "2024-06-16", Time: "12:00", Message: "lunch", Status: StatusPending},
		},
		{
			name: "explicit date",
			day:  "2024-12-25", at: "08:00", text: "presents",
			want: Reminder{Day: "2024-12-25", Time: "08:00", Message: "presents", Status: StatusPending},
		},
		{
			name: "text is trimmed",
			at:   "09:00", text: "  water plants  ",
			want: Reminder{Day: "", Time: "09:00", Message: "water plants", Status: StatusPending},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(anchorNow, tt.day, tt.at, tt.text)
			if err != nil {
				t.Fatalf("Parse error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("Parse = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseInvalid(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		day  string
		at   string
		text string
	}{
		{name: "bad time format", at: "19.00", text: "x"},
		{name: "hour out of range", at: "24:00", text: "x"},
		{name: "minute out of range", at: "12:60", text: "x"},
		{name: "not a time", at: "soon", text: "x"},
		{name: "empty text", at: "09:00", text: "   "},
		{name: "unknown day token", day: "someday", at: "09:00", text: "x"},
		{name: "weekday number out of range", day: "8", at: "09:00", text: "x"},
		{name: "date in the past", day: "2024-06-01", at: "09:00", text: "x"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(anchorNow, tt.day, tt.at, tt.text)
			if err == nil {
				t.Fatalf("expected error for (%q, %q, %q)", tt.day, tt.at, tt.text)
			}
			if !IsValidation(err) {
				t.Fatalf("expected ValidationError, got %T: %v", err, err)
			}
		})
	}
}

func TestMatches(t *testing.T) {
	t.Parallel()
	// Monday 2024-06-10 19:00:45; seconds must be ignored.
	now := time.Date(2024, 6, 10, 19, 0, 45, 0, time.UTC)

	tests := []struct {
		name string
		r    Reminder
		want bool
	}{
		{name: "daily at matching minute", r: Reminder{Time: "19:00"}, want: true},
		{name: "daily at other minute", r: Reminder{Time: "19:01"}, want: false},
		{name: "date match", r: Reminder{Day: "2024-06-10", Time: "19:00"}, want: true},
		{name: "date mismatch", r: Reminder{Day: "2024-06-11", Time: "19:00"}, want: false},
		{name: "weekday match", r: Reminder{Day: "mon", Time: "19:00"}, want: true},
		{name: "weekday mismatch", r: Reminder{Day: "tue", Time: "19:00"}, want: false},
		{name: "weekday match wrong minute", r: Reminder{Day: "mon", Time: "19:01"}, want: false},
		{name: "garbage day never matches", r: Reminder{Day: "whenever", Time: "19:00"}, want: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.r.Matches(now); got != tt.want {
				t.Fatalf("Matches = %v, want %v (r=%+v)", got, tt.want, tt.r)
			}
		})
	}
}
