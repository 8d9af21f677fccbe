// Package scheduler reconciles stored reminders against wall-clock time.
//
// A cron trigger fires once per minute boundary in one fixed civil timezone.
// Each tick is a single atomic pass over the reminder document: match, flip
// pending reminders to fired, persist, then hand deliveries to the sink. The
// persisted status flip is the at-most-once guarantee; delivery success is
// deliberately not part of it.
package scheduler
