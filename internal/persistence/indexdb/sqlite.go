// Package indexdb keeps a queryable SQLite read model of detections:
// matches, strategy stats, index reloads and the catalogs they ran against.
// Writes are queued and applied by one goroutine in batched transactions;
// the match log stays the source of truth.
package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"blockpatterns.dev/internal/catalogs"
	"blockpatterns.dev/internal/detect"
	"blockpatterns.dev/internal/metrics"
	"blockpatterns.dev/internal/tuning"
	"blockpatterns.dev/internal/verify"
)

const defaultQueue = 65536

type SQLiteIndex struct {
	db      *sql.DB
	metrics *metrics.Metrics

	mu     sync.RWMutex
	closed bool
	ch     chan req
	wg     sync.WaitGroup

	dropMatch  atomic.Uint64
	dropStats  atomic.Uint64
	dropReload atomic.Uint64
}

type reqKind int

const (
	reqMatch reqKind = iota + 1
	reqStats
	reqReload
	reqFlush
)

type req struct {
	kind reqKind

	match  verify.Match
	stats  []detect.StatsSnapshot
	reload ReloadRow
	done   chan struct{}
}

// ReloadRow records one index rebuild attempt.
type ReloadRow struct {
	Version       uint64
	OK            bool
	Patterns      int
	Variants      int
	Entries       int
	CompileErrors int
	Error         string
	RecordedAt    time.Time
}

type QueueStats struct {
	QueueDepth      int
	QueueCapacity   int
	DropMatchTotal  uint64
	DropStatsTotal  uint64
	DropReloadTotal uint64
}

func OpenSQLite(path string, m *metrics.Metrics) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db:      db,
		metrics: m,
		ch:      make(chan req, defaultQueue),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS matches (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			seq INTEGER NOT NULL,
			at TEXT NOT NULL,
			world TEXT NOT NULL,
			pattern TEXT NOT NULL,
			variant TEXT NOT NULL,
			transform INTEGER NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z INTEGER NOT NULL,
			strategy TEXT NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_matches_pattern ON matches(pattern, world, id);`,
		`CREATE INDEX IF NOT EXISTS idx_matches_pos ON matches(world, x, z, y);`,
		`CREATE TABLE IF NOT EXISTS strategy_stats (
			pattern TEXT NOT NULL,
			world TEXT NOT NULL,
			strategy TEXT NOT NULL,
			active INTEGER NOT NULL,
			attempts INTEGER NOT NULL,
			inconclusive INTEGER NOT NULL,
			ewma_candidates REAL NOT NULL,
			ewma_cost REAL NOT NULL,
			ewma_hit_rate REAL NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (pattern, world, strategy)
		);`,
		`CREATE TABLE IF NOT EXISTS reloads (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			version INTEGER NOT NULL,
			ok INTEGER NOT NULL,
			patterns INTEGER NOT NULL,
			variants INTEGER NOT NULL,
			entries INTEGER NOT NULL,
			compile_errors INTEGER NOT NULL,
			error TEXT,
			recorded_at TEXT NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Close drains pending writes and closes the database.
func (s *SQLiteIndex) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.ch)
	s.mu.Unlock()
	s.wg.Wait()
	return s.db.Close()
}

// enqueue reports false when the request was dropped.
func (s *SQLiteIndex) enqueue(r req) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return true
	}
	select {
	case s.ch <- r:
		return true
	default:
		return false
	}
}

// Emit implements detect.Sink.
func (s *SQLiteIndex) Emit(m verify.Match) {
	if s == nil {
		return
	}
	if !s.enqueue(req{kind: reqMatch, match: m}) {
		s.dropMatch.Add(1)
		s.metrics.SinkDrop("indexdb")
	}
}

// RecordStats upserts one row per (pattern, world, strategy).
func (s *SQLiteIndex) RecordStats(snaps []detect.StatsSnapshot) {
	if s == nil || len(snaps) == 0 {
		return
	}
	if !s.enqueue(req{kind: reqStats, stats: snaps}) {
		s.dropStats.Add(1)
	}
}

func (s *SQLiteIndex) RecordReload(r ReloadRow) {
	if s == nil {
		return
	}
	if r.RecordedAt.IsZero() {
		r.RecordedAt = time.Now()
	}
	if !s.enqueue(req{kind: reqReload, reload: r}) {
		s.dropReload.Add(1)
	}
}

// Flush blocks until everything queued before it is committed.
func (s *SQLiteIndex) Flush(ctx context.Context) error {
	done := make(chan struct{})
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil
	}
	select {
	case s.ch <- req{kind: reqFlush, done: done}:
	case <-ctx.Done():
		s.mu.RUnlock()
		return ctx.Err()
	}
	s.mu.RUnlock()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SQLiteIndex) Stats() QueueStats {
	return QueueStats{
		QueueDepth:      len(s.ch),
		QueueCapacity:   cap(s.ch),
		DropMatchTotal:  s.dropMatch.Load(),
		DropStatsTotal:  s.dropStats.Load(),
		DropReloadTotal: s.dropReload.Load(),
	}
}

// UpsertCatalogs stores the loaded catalogs and the applied tuning so rows
// can be traced back to the configuration that produced them.
func (s *SQLiteIndex) UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	if configDir != "" {
		if b, err := os.ReadFile(filepath.Join(configDir, "blocks.json")); err == nil {
			rows = append(rows, kv{name: "blocks_defs", digest: cats.Blocks.DefsDigest, json: b})
		}
	}
	if cats.Blocks.Registry != nil {
		b, _ := json.Marshal(cats.Blocks.Registry.Names())
		rows = append(rows, kv{name: "blocks_palette", digest: cats.Blocks.PaletteDigest, json: b})
	}
	if b, _ := json.Marshal(cats.Tags.ByName); len(b) > 0 {
		rows = append(rows, kv{name: "tags", digest: cats.Tags.Digest, json: b})
	}
	{
		files := map[string]string{}
		for id, p := range cats.Patterns.Files {
			files[id] = filepath.Base(p)
		}
		b, _ := json.Marshal(files)
		rows = append(rows, kv{name: "patterns", digest: cats.Patterns.Digest, json: b})
	}
	{
		b, _ := json.Marshal(tune)
		sum := sha256.Sum256(b)
		rows = append(rows, kv{name: "tuning", digest: hex.EncodeToString(sum[:]), json: b})
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if r.name == "" || r.digest == "" || len(r.json) == 0 {
			continue
		}
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertMatch, _ := s.db.Prepare(`INSERT INTO matches(seq,at,world,pattern,variant,transform,x,y,z,strategy,raw_json) VALUES(?,?,?,?,?,?,?,?,?,?,?)`)
	upsertStats, _ := s.db.Prepare(`INSERT OR REPLACE INTO strategy_stats(pattern,world,strategy,active,attempts,inconclusive,ewma_candidates,ewma_cost,ewma_hit_rate,updated_at) VALUES(?,?,?,?,?,?,?,?,?,?)`)
	insertReload, _ := s.db.Prepare(`INSERT INTO reloads(version,ok,patterns,variants,entries,compile_errors,error,recorded_at) VALUES(?,?,?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertMatch, upsertStats, insertReload} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 1000
		commitMaxWait = time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	for r := range s.ch {
		if r.kind == reqFlush {
			commit()
			close(r.done)
			continue
		}
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqMatch:
			m := r.match
			if insertMatch == nil {
				break
			}
			raw, _ := json.Marshal(m)
			if _, err := tx.Stmt(insertMatch).Exec(
				int64(m.Seq),
				m.At.UTC().Format(time.RFC3339Nano),
				m.World,
				m.PatternID,
				m.VariantID,
				int(m.Transform),
				m.Origin.X, m.Origin.Y, m.Origin.Z,
				m.Strategy,
				string(raw),
			); err != nil {
				rollback()
				continue
			}
			opCount++

		case reqStats:
			if upsertStats == nil {
				break
			}
			now := time.Now().UTC().Format(time.RFC3339Nano)
		stats:
			for _, sn := range r.stats {
				for _, k := range sn.Strategies {
					active := 0
					if k.Strategy == sn.Active {
						active = 1
					}
					if _, err := tx.Stmt(upsertStats).Exec(
						sn.Pattern, sn.World, k.Strategy, active,
						int64(k.Attempts), int64(k.Inconclusive),
						k.Candidates, k.Cost, k.HitRate, now,
					); err != nil {
						rollback()
						break stats
					}
					opCount++
				}
			}

		case reqReload:
			rl := r.reload
			if insertReload == nil {
				break
			}
			ok := 0
			if rl.OK {
				ok = 1
			}
			if _, err := tx.Stmt(insertReload).Exec(
				int64(rl.Version), ok, rl.Patterns, rl.Variants, rl.Entries,
				rl.CompileErrors, rl.Error, rl.RecordedAt.UTC().Format(time.RFC3339Nano),
			); err != nil {
				rollback()
				continue
			}
			opCount++
		}
		flushIfNeeded()
	}

	commit()
}
