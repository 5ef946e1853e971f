package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/flowbit-labs/flowbit-pulse/internal/model"
	"github.com/flowbit-labs/flowbit-pulse/internal/replica"
)

type CachedPlan struct {
	Plan      *model.TodayPlan
	Source    replica.Source
	UpdatedAt time.Time
}

// SavePlan stores plan as the cached plan for its date, replacing any earlier one.
// The stamp is only touched when the stored content changes, so processes that
// refresh on each other's writes settle instead of ping-ponging.
func (s Store) SavePlan(ctx context.Context, plan *model.TodayPlan, src replica.Source) error {
	if plan == nil {
		return errors.New("save plan: nil plan")
	}
	if src == replica.SourceOptimistic {
		return errors.New("save plan: optimistic plans are not cached")
	}
	raw, err := json.Marshal(plan)
	if err != nil {
		return err
	}
	db, err := s.openSQLite(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	date := strings.TrimSpace(plan.Date)
	var prev string
	if err := db.QueryRowContext(ctx, `SELECT json FROM plans WHERE date = ?`, date).Scan(&prev); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	_, err = db.ExecContext(ctx, `INSERT INTO plans(date, seq, source, json, updated_at_unixms)
		VALUES(?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM plans), ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			seq = excluded.seq,
			source = excluded.source,
			json = excluded.json,
			updated_at_unixms = excluded.updated_at_unixms`,
		date, string(src), string(raw), time.Now().UTC().UnixMilli())
	if err != nil {
		return err
	}
	if prev == string(raw) {
		return nil
	}
	return s.touchStamp()
}

// LoadPlan returns the cached plan for date, or nil when there is none.
func (s Store) LoadPlan(ctx context.Context, date string) (*CachedPlan, error) {
	return s.queryPlan(ctx, `SELECT json, source, updated_at_unixms FROM plans WHERE date = ?`, strings.TrimSpace(date))
}

// LatestPlan returns the most recently cached plan, or nil.
func (s Store) LatestPlan(ctx context.Context) (*CachedPlan, error) {
	return s.queryPlan(ctx, `SELECT json, source, updated_at_unixms FROM plans ORDER BY seq DESC LIMIT 1`)
}

func (s Store) queryPlan(ctx context.Context, q string, args ...any) (*CachedPlan, error) {
	db, err := s.openSQLite(ctx)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	var (
		js, src string
		ms      int64
	)
	if err := db.QueryRowContext(ctx, q, args...).Scan(&js, &src, &ms); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	var p model.TodayPlan
	if err := json.Unmarshal([]byte(js), &p); err != nil {
		return nil, err
	}
	return &CachedPlan{Plan: &p, Source: replica.Source(src), UpdatedAt: time.UnixMilli(ms).UTC()}, nil
}

// CacheSubscriber persists every confirmed publish. Optimistic plans are skipped;
// they may still be rolled back.
func (s Store) CacheSubscriber(log *slog.Logger) replica.Subscriber {
	return func(snap replica.Snapshot) {
		if snap.Plan == nil || !snap.Source.Authoritative() {
			return
		}
		if err := s.SavePlan(context.Background(), snap.Plan, snap.Source); err != nil && log != nil {
			log.Warn("cache plan", "version", snap.Version, "err", err)
		}
	}
}
