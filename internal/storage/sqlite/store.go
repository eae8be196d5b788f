package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"taskdesk/internal/models"
	"taskdesk/internal/storage"
)

const lastUpdatedKey = "last_updated"

// Store keeps the task collection in a SQLite database file. Every save
// rewrites the tasks table inside a single transaction. Like the file
// backend it holds an advisory lock on the database for its lifetime.
type Store struct {
	db     *sqlx.DB
	lock   *flock.Flock
	logger *slog.Logger
	now    func() time.Time
}

// row is a stored task plus its position in the collection.
type row struct {
	Position int64 `db:"position"`
	storage.Record
}

// Open initializes a new SQLite store and runs the required migrations.
func Open(dbPath string, logger *slog.Logger) (*Store, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("empty database path")
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if err := ensureDir(dbPath); err != nil {
		return nil, err
	}

	lock := flock.New(dbPath + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", dbPath, err)
	}
	if !locked {
		return nil, fmt.Errorf("%s: %w", dbPath, storage.ErrLocked)
	}

	conn, err := sqlx.Open("sqlite3", fmt.Sprintf("file:%s?_busy_timeout=5000", dbPath))
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetConnMaxLifetime(0)

	s := &Store{db: conn, lock: lock, logger: logger, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = conn.Close()
		_ = lock.Unlock()
		return nil, err
	}

	return s, nil
}

// Close releases the database resources and the lock.
func (s *Store) Close() error {
	var err error
	if s.db != nil {
		err = s.db.Close()
	}
	if s.lock != nil {
		if uerr := s.lock.Unlock(); uerr != nil && err == nil {
			err = uerr
		}
	}
	return err
}

func ensureDir(dbPath string) error {
	dir := filepath.Dir(dbPath)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
            position INTEGER NOT NULL,
            id INTEGER NOT NULL PRIMARY KEY,
            description TEXT NOT NULL,
            priority TEXT NOT NULL DEFAULT 'medium',
            status TEXT NOT NULL DEFAULT 'pending',
            created_at TEXT NOT NULL,
            due_date TEXT NULL,
            category TEXT NOT NULL DEFAULT 'general',
            completed_at TEXT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_position ON tasks(position);`,
		`CREATE TABLE IF NOT EXISTS meta (
            key TEXT NOT NULL PRIMARY KEY,
            value TEXT NOT NULL
        );`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Load reads every task in collection order.
func (s *Store) Load(ctx context.Context) (storage.Snapshot, error) {
	var rows []row
	err := s.db.SelectContext(ctx, &rows, `SELECT position, id, description, priority, status, created_at, due_date, category, completed_at
        FROM tasks ORDER BY position ASC`)
	if err != nil {
		return storage.Snapshot{}, fmt.Errorf("list tasks: %w", err)
	}

	records := make([]storage.Record, 0, len(rows))
	for _, r := range rows {
		records = append(records, r.Record)
	}
	tasks, err := storage.DecodeRecords(records, s.now())
	if err != nil {
		return storage.Snapshot{}, fmt.Errorf("decode tasks: %w", err)
	}

	snap := storage.Snapshot{Tasks: tasks}

	var updated string
	err = s.db.GetContext(ctx, &updated, `SELECT value FROM meta WHERE key = ?`, lastUpdatedKey)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return storage.Snapshot{}, fmt.Errorf("get last_updated: %w", err)
	default:
		if ts, perr := models.ParseTimestamp(updated); perr == nil {
			snap.LastUpdated = ts
		} else {
			s.logger.Warn("ignoring malformed last_updated", slog.String("error", perr.Error()))
		}
	}
	return snap, nil
}

// Save replaces the stored collection with snap.
func (s *Store) Save(ctx context.Context, snap storage.Snapshot) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM tasks`); err != nil {
		return rollback(tx, fmt.Errorf("clear tasks: %w", err))
	}

	for i, rec := range storage.EncodeRecords(snap.Tasks) {
		_, err := tx.NamedExecContext(ctx, `INSERT INTO tasks(position, id, description, priority, status, created_at, due_date, category, completed_at)
            VALUES(:position, :id, :description, :priority, :status, :created_at, :due_date, :category, :completed_at)`,
			row{Position: int64(i), Record: rec})
		if err != nil {
			return rollback(tx, fmt.Errorf("insert task %d: %w", *rec.ID, err))
		}
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO meta(key, value) VALUES(?, ?)
        ON CONFLICT(key) DO UPDATE SET value = excluded.value`, lastUpdatedKey, snap.LastUpdated.String())
	if err != nil {
		return rollback(tx, fmt.Errorf("set last_updated: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tasks: %w", err)
	}
	return nil
}

func rollback(tx *sqlx.Tx, err error) error {
	if rerr := tx.Rollback(); rerr != nil {
		err = fmt.Errorf("%w: %v", err, rerr)
	}
	return err
}
