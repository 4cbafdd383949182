package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"blockpatterns.dev/internal/verify"
)

type MatchQuery struct {
	Pattern string
	World   string
	// Limit defaults to 100; newest rows come first.
	Limit int
}

// Matches returns stored matches decoded from their raw JSON.
func (s *SQLiteIndex) Matches(ctx context.Context, q MatchQuery) ([]verify.Match, error) {
	var (
		where []string
		args  []any
	)
	if q.Pattern != "" {
		where = append(where, "pattern = ?")
		args = append(args, q.Pattern)
	}
	if q.World != "" {
		where = append(where, "world = ?")
		args = append(args, q.World)
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT raw_json FROM matches`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []verify.Match
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var m verify.Match
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

type StatsRow struct {
	Pattern      string  `json:"pattern"`
	World        string  `json:"world"`
	Strategy     string  `json:"strategy"`
	Active       bool    `json:"active"`
	Attempts     int64   `json:"attempts"`
	Inconclusive int64   `json:"inconclusive"`
	Candidates   float64 `json:"ewma_candidates"`
	Cost         float64 `json:"ewma_cost"`
	HitRate      float64 `json:"ewma_hit_rate"`
}

func (s *SQLiteIndex) StrategyStats(ctx context.Context) ([]StatsRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT pattern,world,strategy,active,attempts,inconclusive,ewma_candidates,ewma_cost,ewma_hit_rate
		FROM strategy_stats ORDER BY pattern, world, strategy`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StatsRow
	for rows.Next() {
		var r StatsRow
		var active int
		if err := rows.Scan(&r.Pattern, &r.World, &r.Strategy, &active, &r.Attempts, &r.Inconclusive, &r.Candidates, &r.Cost, &r.HitRate); err != nil {
			return nil, err
		}
		r.Active = active != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// LastReload returns the most recent reload row, or ok=false when none.
func (s *SQLiteIndex) LastReload(ctx context.Context) (ReloadRow, bool, error) {
	var (
		r          ReloadRow
		ok         int
		version    int64
		errText    sql.NullString
		recordedAt string
	)
	err := s.db.QueryRowContext(ctx, `SELECT version,ok,patterns,variants,entries,compile_errors,error,recorded_at
		FROM reloads ORDER BY id DESC LIMIT 1`).Scan(&version, &ok, &r.Patterns, &r.Variants, &r.Entries, &r.CompileErrors, &errText, &recordedAt)
	if err == sql.ErrNoRows {
		return ReloadRow{}, false, nil
	}
	if err != nil {
		return ReloadRow{}, false, err
	}
	r.Version = uint64(version)
	r.OK = ok != 0
	r.Error = errText.String
	r.RecordedAt, _ = time.Parse(time.RFC3339Nano, recordedAt)
	return r, true, nil
}

// CatalogDigests maps catalog name to digest.
func (s *SQLiteIndex) CatalogDigests(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name,digest FROM catalogs`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]string{}
	for rows.Next() {
		var name, digest string
		if err := rows.Scan(&name, &digest); err != nil {
			return nil, err
		}
		out[name] = digest
	}
	return out, rows.Err()
}
