package store

import (
	"context"
	"encoding/json"

	"github.com/flowbit-labs/flowbit-pulse/internal/reconcile"
)

// Record appends a to the attempt journal. Store satisfies reconcile.Journal.
func (s Store) Record(ctx context.Context, a reconcile.Attempt) error {
	raw, err := json.Marshal(a)
	if err != nil {
		return err
	}
	db, err := s.openSQLite(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	_, err = db.ExecContext(ctx, `INSERT OR REPLACE INTO attempts(id, kind, phase, task_id, error, json, started_at_unixms)
		VALUES(?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Kind, string(a.Phase), a.TaskID, a.Err, string(raw), a.StartedAt.UTC().UnixMilli())
	return err
}

// ReadAttempts returns up to limit attempts, newest first. limit <= 0 reads all.
func (s Store) ReadAttempts(ctx context.Context, limit int) ([]reconcile.Attempt, error) {
	db, err := s.openSQLite(ctx)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	q := `SELECT json FROM attempts ORDER BY started_at_unixms DESC, rowid DESC`
	if limit > 0 {
		return readJSONRows[reconcile.Attempt](ctx, db, q+` LIMIT ?`, limit)
	}
	return readJSONRows[reconcile.Attempt](ctx, db, q)
}
