package storage

import (
	"context"
	"time"

	"remindbot/internal/reminder"
)

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free single-document JSON backend (default)
//   - "sqlite": SQLite database file (optional build tag)
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the durable mapping from an owner chat to its ordered reminder
// sequence.
//
// Update and UpdateAll serialize their whole load -> mutate -> save sequence
// against every other mutation; the mutation callback always observes the
// latest persisted state. Callbacks must be fast and must not block on I/O of
// their own.
//
// UpdateAll's callback additionally returns changed=false to skip the save
// entirely (one write per scheduler tick at most, none when idle).
type Store interface {
	List(ctx context.Context, owner int64) ([]reminder.Reminder, error)
	Update(ctx context.Context, owner int64, fn func([]reminder.Reminder) ([]reminder.Reminder, error)) error
	UpdateAll(ctx context.Context, fn func(map[int64][]reminder.Reminder) (map[int64][]reminder.Reminder, bool, error)) error
	Close() error
}
