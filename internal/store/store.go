// Package store keeps pulse's local state: the config file, a cache of the last
// plan the planner confirmed, and the journal of reconciliation attempts.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "modernc.org/sqlite"
)

const (
	sqliteFileName = "state.sqlite"
	stampFileName  = "plan.stamp"
)

type Store struct {
	Dir string
}

// DefaultDir resolves the state directory: PULSE_DIR, then the config's state_dir,
// then the config dir itself.
func DefaultDir(cfg *Config) (string, error) {
	if v := strings.TrimSpace(os.Getenv("PULSE_DIR")); v != "" {
		return v, nil
	}
	if cfg != nil && strings.TrimSpace(cfg.StateDir) != "" {
		return expandHome(strings.TrimSpace(cfg.StateDir))
	}
	return ConfigDir()
}

func expandHome(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
}

func (s Store) Ensure() error {
	if strings.TrimSpace(s.Dir) == "" {
		return errors.New("store dir is empty")
	}
	return os.MkdirAll(s.Dir, 0o755)
}

func (s Store) SQLitePath() string {
	return filepath.Join(filepath.Clean(s.Dir), sqliteFileName)
}

// StampPath is touched after every cache write so other processes can notice.
func (s Store) StampPath() string {
	return filepath.Join(filepath.Clean(s.Dir), stampFileName)
}

func (s Store) openSQLite(ctx context.Context) (*sql.DB, error) {
	if err := s.Ensure(); err != nil {
		return nil, err
	}
	// modernc.org/sqlite driver name is "sqlite".
	db, err := sql.Open("sqlite", s.SQLitePath())
	if err != nil {
		return nil, err
	}
	// The TUI and the CLI may share the file; WAL plus busy_timeout keeps them from
	// tripping over each other.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	if err := migrateSQLiteState(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func migrateSQLiteState(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS plans (
			date TEXT PRIMARY KEY,
			seq INTEGER NOT NULL,
			source TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at_unixms INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS attempts (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			phase TEXT NOT NULL,
			task_id INTEGER NOT NULL,
			error TEXT NOT NULL,
			json TEXT NOT NULL,
			started_at_unixms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_attempts_started ON attempts(started_at_unixms);`,
	}
	for _, st := range stmts {
		if _, err := db.ExecContext(ctx, st); err != nil {
			return fmt.Errorf("migrate state: %w", err)
		}
	}
	return nil
}

func readJSONRows[T any](ctx context.Context, db *sql.DB, query string, args ...any) ([]T, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		var js string
		if err := rows.Scan(&js); err != nil {
			return nil, err
		}
		var v T
		if err := json.Unmarshal([]byte(js), &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s Store) touchStamp() error {
	b := []byte(strconv.Itoa(os.Getpid()) + "\n")
	return atomicWriteFile(filepath.Clean(s.Dir), "plan.stamp.*.tmp", s.StampPath(), b, 0o644)
}

// StampWriter returns the pid of the process that last wrote the plan cache.
func (s Store) StampWriter() (int, error) {
	b, err := os.ReadFile(s.StampPath())
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", stampFileName, err)
	}
	return pid, nil
}
