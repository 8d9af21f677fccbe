//go:build sqlite
// +build sqlite

package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"remindbot/internal/reminder"
	logx "remindbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger

	// mu serializes load -> mutate -> save sequences, same contract as the
	// file driver. The per-sequence transaction alone is not enough because
	// the mutation callback runs between read and write.
	mu sync.Mutex
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) List(ctx context.Context, owner int64) ([]reminder.Reminder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT day, time, message, status FROM reminders WHERE owner = ? ORDER BY id`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReminders(rows)
}

func (s *sqliteStore) Update(ctx context.Context, owner int64, fn func([]reminder.Reminder) ([]reminder.Reminder, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT day, time, message, status FROM reminders WHERE owner = ? ORDER BY id`, owner)
	if err != nil {
		return err
	}
	seq, err := scanReminders(rows)
	if err != nil {
		return err
	}

	out, err := fn(seq)
	if err != nil {
		return err
	}

	if err := replaceOwnerTx(ctx, tx, owner, out); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *sqliteStore) UpdateAll(ctx context.Context, fn func(map[int64][]reminder.Reminder) (map[int64][]reminder.Reminder, bool, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT owner, day, time, message, status FROM reminders ORDER BY id`)
	if err != nil {
		return err
	}
	data := map[int64][]reminder.Reminder{}
	for rows.Next() {
		var owner int64
		var r reminder.Reminder
		if err := rows.Scan(&owner, &r.Day, &r.Time, &r.Message, &r.Status); err != nil {
			rows.Close()
			return err
		}
		data[owner] = append(data[owner], r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	out, changed, err := fn(data)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM reminders`); err != nil {
		return err
	}
	for owner, seq := range out {
		if err := insertOwnerTx(ctx, tx, owner, seq); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func replaceOwnerTx(ctx context.Context, tx *sql.Tx, owner int64, seq []reminder.Reminder) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM reminders WHERE owner = ?`, owner); err != nil {
		return err
	}
	return insertOwnerTx(ctx, tx, owner, seq)
}

func insertOwnerTx(ctx context.Context, tx *sql.Tx, owner int64, seq []reminder.Reminder) error {
	for _, r := range seq {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO reminders(owner, day, time, message, status) VALUES(?,?,?,?,?)`,
			owner, r.Day, r.Time, r.Message, string(r.Status)); err != nil {
			return err
		}
	}
	return nil
}

func scanReminders(rows *sql.Rows) ([]reminder.Reminder, error) {
	defer rows.Close()
	var out []reminder.Reminder
	for rows.Next() {
		var r reminder.Reminder
		if err := rows.Scan(&r.Day, &r.Time, &r.Message, &r.Status); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
