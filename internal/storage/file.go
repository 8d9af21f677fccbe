package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"remindbot/internal/reminder"
	logx "remindbot/pkg/logx"
)

// fileStore keeps the whole dataset in one JSON document:
// a map of decimal owner id -> ordered reminder list.
//
// Every mutation re-reads the document from disk under the mutex before
// applying the change, then replaces the file atomically (tmp + rename).
// Holding the lock across the full read-modify-write is what makes two
// concurrent mutations (tick vs. command, command vs. command) safe.
type fileStore struct {
	log  logx.Logger
	path string

	mu sync.Mutex
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &fileStore{log: log, path: path}, nil
}

func (s *fileStore) Close() error { return nil }

func (s *fileStore) List(ctx context.Context, owner int64) ([]reminder.Reminder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.loadLocked()
	if err != nil {
		return nil, err
	}
	return append([]reminder.Reminder(nil), data[owner]...), nil
}

func (s *fileStore) Update(ctx context.Context, owner int64, fn func([]reminder.Reminder) ([]reminder.Reminder, error)) error {
	return s.UpdateAll(ctx, func(data map[int64][]reminder.Reminder) (map[int64][]reminder.Reminder, bool, error) {
		seq, err := fn(append([]reminder.Reminder(nil), data[owner]...))
		if err != nil {
			return nil, false, err
		}
		if len(seq) == 0 {
			delete(data, owner)
		} else {
			data[owner] = seq
		}
		return data, true, nil
	})
}

func (s *fileStore) UpdateAll(ctx context.Context, fn func(map[int64][]reminder.Reminder) (map[int64][]reminder.Reminder, bool, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.loadLocked()
	if err != nil {
		return err
	}
	out, changed, err := fn(data)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	return s.saveLocked(out)
}

// loadLocked reads the latest document from disk. A missing or empty file is
// an empty dataset. An unparseable document is ALSO an empty dataset: the
// store fails open, logs the corruption once here, and the next save replaces
// the broken file. This is the single deliberate data-loss path in the repo.
func (s *fileStore) loadLocked() (map[int64][]reminder.Reminder, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[int64][]reminder.Reminder{}, nil
		}
		return nil, fmt.Errorf("storage read %s: %w", s.path, err)
	}
	if len(b) == 0 {
		return map[int64][]reminder.Reminder{}, nil
	}

	var raw map[string][]reminder.Reminder
	if err := json.Unmarshal(b, &raw); err != nil {
		s.log.Warn("reminder document unreadable; starting from an empty dataset",
			logx.String("path", s.path), logx.Err(err))
		return map[int64][]reminder.Reminder{}, nil
	}

	data := make(map[int64][]reminder.Reminder, len(raw))
	for k, v := range raw {
		owner, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			s.log.Warn("dropping entry with non-numeric owner key", logx.String("key", k))
			continue
		}
		data[owner] = v
	}
	return data, nil
}

func (s *fileStore) saveLocked(data map[int64][]reminder.Reminder) error {
	raw := make(map[string][]reminder.Reminder, len(data))
	for owner, seq := range data {
		if len(seq) == 0 {
			continue
		}
		raw[strconv.FormatInt(owner, 10)] = seq
	}

	b, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("storage encode: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return fmt.Errorf("storage write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("storage replace %s: %w", s.path, err)
	}
	return nil
}
