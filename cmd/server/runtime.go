package main

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net"
	"net/http"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"blockpatterns.dev/internal/catalogs"
	"blockpatterns.dev/internal/detect"
	"blockpatterns.dev/internal/metrics"
	"blockpatterns.dev/internal/palette"
	"blockpatterns.dev/internal/persistence/indexdb"
	"blockpatterns.dev/internal/persistence/matchlog"
	"blockpatterns.dev/internal/protocol"
	"blockpatterns.dev/internal/transport/ws"
	"blockpatterns.dev/internal/tuning"
	"blockpatterns.dev/internal/verify"
	"blockpatterns.dev/internal/voxel"
	"blockpatterns.dev/internal/watch"
	"blockpatterns.dev/internal/worldstore"
)

type runtimeConfig struct {
	ConfigDir string
	Catalogs  *catalogs.Catalogs
	Tuning    tuning.Tuning
	// Index and MatchLog are optional sinks.
	Index    *indexdb.SQLiteIndex
	MatchLog *matchlog.Logger
	Metrics  *metrics.Metrics
	Logger   *log.Logger
}

// runtime owns everything served over HTTP: the worlds, the engine, the
// websocket front-end and the pattern catalog currently compiled into the
// engine.
type runtime struct {
	configDir string
	cats      *catalogs.Catalogs
	worlds    *worldstore.Set
	engine    *detect.Engine
	ws        *ws.Server
	idx       *indexdb.SQLiteIndex
	mlog      *matchlog.Logger
	logger    *log.Logger

	watcher *watch.Watcher

	reloadMu sync.Mutex
	mu       sync.RWMutex
	patterns *catalogs.PatternCatalog
}

func newRuntime(cfg runtimeConfig) (*runtime, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	reg := cfg.Catalogs.Blocks.Registry
	set, wm, err := buildWorlds(reg, cfg.Tuning)
	if err != nil {
		return nil, err
	}

	rt := &runtime{
		configDir: cfg.ConfigDir,
		cats:      cfg.Catalogs,
		worlds:    set,
		idx:       cfg.Index,
		mlog:      cfg.MatchLog,
		logger:    logger,
		patterns:  &cfg.Catalogs.Patterns,
	}

	// The websocket server is created after the engine, so it joins the
	// sink fan-out through a late-bound func.
	sinks := detect.MultiSink{detect.SinkFunc(func(m verify.Match) { rt.ws.Emit(m) })}
	if rt.mlog != nil {
		sinks = append(sinks, rt.mlog)
	}
	if rt.idx != nil {
		sinks = append(sinks, rt.idx)
	}

	eng, err := detect.New(detect.Config{
		Registry: reg,
		Rarity:   cfg.Catalogs.Blocks.Rarity,
		Worlds:   wm,
		Sink:     sinks,
		Engine:   cfg.Tuning.Engine,
		Index:    cfg.Tuning.Index,
		Metrics:  cfg.Metrics,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	rt.engine = eng
	rt.ws = ws.NewServer(ws.Config{
		Engine:    eng,
		Worlds:    set,
		Digests:   rt.digests,
		Transport: cfg.Tuning.Transport,
		Metrics:   cfg.Metrics,
		Logger:    logger,
	})

	if err := rt.apply(context.Background(), &cfg.Catalogs.Patterns); err != nil {
		return nil, err
	}
	return rt, nil
}

// buildWorlds creates the configured worlds and the engine's view of them.
func buildWorlds(reg *palette.Registry, tune tuning.Tuning) (*worldstore.Set, detect.WorldMap, error) {
	set, err := worldstore.BuildSet(reg, tune.Worlds)
	if err != nil {
		return nil, nil, err
	}
	wm := detect.WorldMap{}
	for _, id := range set.IDs() {
		st, _ := set.Store(id)
		wm[id] = st
	}
	return set, wm, nil
}

// reloadPatterns re-reads the pattern directory and swaps the compiled index.
// A malformed directory keeps the current index.
func (rt *runtime) reloadPatterns(ctx context.Context) error {
	pc, err := catalogs.LoadPatterns(filepath.Join(rt.configDir, "patterns"))
	if err != nil {
		rt.idx.RecordReload(indexdb.ReloadRow{Version: rt.engine.Index().Version, Error: err.Error(), RecordedAt: time.Now()})
		return err
	}
	return rt.apply(ctx, pc)
}

func (rt *runtime) apply(ctx context.Context, pc *catalogs.PatternCatalog) error {
	rt.reloadMu.Lock()
	defer rt.reloadMu.Unlock()

	errs, err := rt.engine.Reload(ctx, pc.Patterns)
	ix := rt.engine.Index()
	row := indexdb.ReloadRow{
		Version:       ix.Version,
		OK:            err == nil,
		Patterns:      len(ix.Patterns),
		Variants:      len(ix.Variants),
		Entries:       ix.Entries(),
		CompileErrors: len(errs),
		RecordedAt:    time.Now(),
	}
	if err != nil {
		row.Error = err.Error()
	}
	rt.idx.RecordReload(row)
	if err != nil {
		return err
	}
	rt.mu.Lock()
	rt.patterns = pc
	rt.mu.Unlock()
	return nil
}

func (rt *runtime) patternCatalog() *catalogs.PatternCatalog {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.patterns
}

func (rt *runtime) digests() protocol.CatalogDigests {
	pc := rt.patternCatalog()
	return protocol.CatalogDigests{
		BlockPalette: protocol.DigestRef{
			Digest: rt.cats.Blocks.PaletteDigest,
			Count:  rt.cats.Blocks.Registry.Len(),
		},
		TagsDigest:     rt.cats.Tags.Digest,
		PatternsDigest: pc.Digest,
		Patterns:       len(pc.Patterns),
	}
}

// runStatsFlusher persists strategy stats every interval until ctx ends.
func (rt *runtime) runStatsFlusher(ctx context.Context, every time.Duration) {
	if rt.idx == nil || every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			rt.idx.RecordStats(rt.engine.Stats())
			return
		case <-t.C:
			rt.idx.RecordStats(rt.engine.Stats())
		}
	}
}

func (rt *runtime) routes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/v1/ws", rt.ws.Handler())
	mux.HandleFunc("/v1/patterns", rt.handlePatterns)
	mux.HandleFunc("/v1/stats", rt.handleStats)
	mux.HandleFunc("/v1/matches", rt.handleMatches)
}

// adminRoutes are loopback-only.
func (rt *runtime) adminRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/admin/v1/reload", func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		defer cancel()
		err := rt.reloadPatterns(ctx)
		rw.Header().Set("Content-Type", "application/json")
		if err != nil {
			rw.WriteHeader(http.StatusUnprocessableEntity)
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "index_version": rt.engine.Index().Version, "error": err.Error()})
			return
		}
		_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "index_version": rt.engine.Index().Version})
	})
}

type variantView struct {
	ID         string       `json:"id"`
	Transforms []string     `json:"transforms"`
	Box        voxel.AABB   `json:"box"`
	Cells      int          `json:"cells"`
	Anchors    []voxel.Vec3 `json:"anchors"`
}

type patternView struct {
	ID       string        `json:"id"`
	File     string        `json:"file,omitempty"`
	Cells    int           `json:"cells"`
	Worlds   []string      `json:"worlds,omitempty"`
	Variants []variantView `json:"variants"`
}

type patternsResponse struct {
	IndexVersion uint64        `json:"index_version"`
	Digest       string        `json:"digest"`
	Entries      int           `json:"entries"`
	Patterns     []patternView `json:"patterns"`
}

func (rt *runtime) handlePatterns(rw http.ResponseWriter, r *http.Request) {
	ix := rt.engine.Index()
	pc := rt.patternCatalog()
	want := strings.TrimSpace(r.URL.Query().Get("id"))

	resp := patternsResponse{IndexVersion: ix.Version, Digest: pc.Digest, Entries: ix.Entries()}
	ids := make([]string, 0, len(ix.Patterns))
	for id := range ix.Patterns {
		if want == "" || id == want {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if want != "" && len(ids) == 0 {
		http.Error(rw, "unknown pattern", http.StatusNotFound)
		return
	}
	for _, id := range ids {
		p := ix.Patterns[id]
		pv := patternView{ID: id, Cells: len(p.Cells), Worlds: p.Worlds}
		if path := pc.Files[id]; path != "" {
			pv.File = filepath.Base(path)
		}
		for _, v := range ix.ByPattern[id] {
			vv := variantView{ID: v.ID, Box: v.Box, Cells: len(v.Cells)}
			for _, t := range v.Transforms {
				vv.Transforms = append(vv.Transforms, t.String())
			}
			for _, c := range v.AnchorCells() {
				vv.Anchors = append(vv.Anchors, c.Offset)
			}
			pv.Variants = append(pv.Variants, vv)
		}
		resp.Patterns = append(resp.Patterns, pv)
	}
	writeJSON(rw, resp)
}

type statsResponse struct {
	IndexVersion uint64                 `json:"index_version"`
	Patterns     int                    `json:"patterns"`
	Variants     int                    `json:"variants"`
	Entries      int                    `json:"entries"`
	Sessions     int                    `json:"sessions"`
	Worlds       []string               `json:"worlds"`
	Selectors    []detect.StatsSnapshot `json:"selectors"`

	MatchLogDropped *uint64             `json:"matchlog_dropped,omitempty"`
	IndexQueue      *indexdb.QueueStats `json:"index_queue,omitempty"`
	WatchReloads    *uint64             `json:"watch_reloads,omitempty"`
	WatchFailed     *uint64             `json:"watch_failed,omitempty"`
}

func (rt *runtime) handleStats(rw http.ResponseWriter, r *http.Request) {
	ix := rt.engine.Index()
	resp := statsResponse{
		IndexVersion: ix.Version,
		Patterns:     len(ix.Patterns),
		Variants:     len(ix.Variants),
		Entries:      ix.Entries(),
		Sessions:     rt.ws.Sessions(),
		Worlds:       rt.worlds.IDs(),
		Selectors:    rt.engine.Stats(),
	}
	if rt.mlog != nil {
		n := rt.mlog.Dropped()
		resp.MatchLogDropped = &n
	}
	if rt.idx != nil {
		qs := rt.idx.Stats()
		resp.IndexQueue = &qs
	}
	if rt.watcher != nil {
		reloads, failed := rt.watcher.Reloads(), rt.watcher.Failed()
		resp.WatchReloads = &reloads
		resp.WatchFailed = &failed
	}
	writeJSON(rw, resp)
}

// handleMatches serves recent matches from the read model.
func (rt *runtime) handleMatches(rw http.ResponseWriter, r *http.Request) {
	if rt.idx == nil {
		http.Error(rw, "index disabled", http.StatusServiceUnavailable)
		return
	}
	q := indexdb.MatchQuery{
		Pattern: strings.TrimSpace(r.URL.Query().Get("pattern")),
		World:   strings.TrimSpace(r.URL.Query().Get("world")),
		Limit:   100,
	}
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(rw, "bad limit", http.StatusBadRequest)
			return
		}
		q.Limit = min(n, 1000)
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := rt.idx.Flush(ctx); err != nil {
		http.Error(rw, err.Error(), http.StatusServiceUnavailable)
		return
	}
	ms, err := rt.idx.Matches(ctx, q)
	if err != nil {
		http.Error(rw, err.Error(), http.StatusInternalServerError)
		return
	}
	if ms == nil {
		ms = []verify.Match{}
	}
	writeJSON(rw, ms)
}

// shutdown flushes and closes the sinks. The engine must no longer be
// receiving triggers.
func (rt *runtime) shutdown() {
	if rt.idx != nil {
		rt.idx.RecordStats(rt.engine.Stats())
		if err := rt.idx.Close(); err != nil {
			rt.logger.Printf("close index: %v", err)
		}
	}
	if rt.mlog != nil {
		if err := rt.mlog.Close(); err != nil {
			rt.logger.Printf("close match log: %v", err)
		}
	}
}

func writeJSON(rw http.ResponseWriter, v any) {
	rw.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(rw).Encode(v)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
