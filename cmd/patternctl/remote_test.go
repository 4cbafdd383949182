package main

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"blockpatterns.dev/internal/detect"
	"blockpatterns.dev/internal/palette"
	"blockpatterns.dev/internal/pattern"
	"blockpatterns.dev/internal/persistence/indexdb"
	"blockpatterns.dev/internal/protocol"
	"blockpatterns.dev/internal/transport/ws"
	"blockpatterns.dev/internal/tuning"
	"blockpatterns.dev/internal/verify"
	"blockpatterns.dev/internal/voxel"
	"blockpatterns.dev/internal/worldstore"
)

type pingServer struct {
	srv   *ws.Server
	eng   *detect.Engine
	store *worldstore.Store
	url   string
}

func newPingServer(t *testing.T) *pingServer {
	t.Helper()
	reg, err := palette.NewRegistry([]string{"stone", "gold_block"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	ps := &pingServer{store: worldstore.New(reg, worldstore.Config{ID: "overworld", MinY: -64, MaxY: 319})}
	ps.eng, err = detect.New(detect.Config{
		Registry: reg,
		Worlds:   detect.WorldMap{"overworld": ps.store},
		Sink:     detect.SinkFunc(func(m verify.Match) { ps.srv.Emit(m) }),
		Engine:   tuning.Defaults().Engine,
	})
	if err != nil {
		t.Fatal(err)
	}
	gold := &pattern.Pattern{ID: "gold", Cells: map[voxel.Vec3]*pattern.Requirement{{}: pattern.Block("gold_block")}}
	if _, err := ps.eng.Reload(context.Background(), []*pattern.Pattern{gold}); err != nil {
		t.Fatal(err)
	}
	ps.srv = ws.NewServer(ws.Config{
		Engine:    ps.eng,
		Worlds:    worldstore.NewSet(ps.store),
		Transport: tuning.Defaults().Transport,
		Digests: func() protocol.CatalogDigests {
			return protocol.CatalogDigests{BlockPalette: protocol.DigestRef{Digest: "abc", Count: reg.Len()}, Patterns: 1}
		},
	})
	hs := httptest.NewServer(ps.srv.Handler())
	t.Cleanup(hs.Close)
	ps.url = "ws" + strings.TrimPrefix(hs.URL, "http")
	return ps
}

func TestPing_Welcome(t *testing.T) {
	ps := newPingServer(t)
	out, stderr, err := run(t, "ping", "--url", ps.url, "--follow", "0s")
	if err != nil {
		t.Fatalf("ping: %v\n%s", err, stderr)
	}
	if !strings.HasPrefix(out, "session S1, index v1, 1 patterns, 1 worlds, rtt ") {
		t.Fatalf("ping output = %q", out)
	}

	if _, _, err := run(t, "ping", "--url", "ws://127.0.0.1:1/v1/ws", "--follow", "0s"); err == nil || !strings.Contains(err.Error(), "dial") {
		t.Fatalf("unreachable server: err = %v", err)
	}
}

func TestPing_FollowsMatches(t *testing.T) {
	ps := newPingServer(t)

	type result struct {
		out string
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, _, err := run(t, "ping", "--url", ps.url, "--follow", "1500ms")
		done <- result{out, err}
	}()

	deadline := time.Now().Add(5 * time.Second)
	for ps.srv.Sessions() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("ping never connected")
		}
		time.Sleep(10 * time.Millisecond)
	}
	pos := voxel.Vec3{X: 2, Y: 64, Z: 2}
	gold, _ := ps.store.Registry().Lookup("gold_block")
	st := palette.BlockState{Material: gold}
	if _, err := ps.store.SetBlock(pos, st); err != nil {
		t.Fatal(err)
	}
	if n := len(ps.eng.Handle(detect.Trigger{Kind: detect.Placed, Pos: pos, World: "overworld", State: &st})); n != 1 {
		t.Fatalf("Handle matches = %d", n)
	}

	r := <-done
	if r.err != nil {
		t.Fatalf("ping --follow: %v", r.err)
	}
	lines := strings.Split(strings.TrimSpace(r.out), "\n")
	if len(lines) != 2 {
		t.Fatalf("output lines = %d:\n%s", len(lines), r.out)
	}
	if !strings.Contains(lines[1], `"MATCH"`) || !strings.Contains(lines[1], `"gold"`) {
		t.Fatalf("match line = %s", lines[1])
	}
}

func TestStats_FromIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "detections.sqlite")
	idx, err := indexdb.OpenSQLite(path, nil)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	idx.RecordStats([]detect.StatsSnapshot{{
		Pattern: "altar",
		World:   "overworld",
		Active:  "voxel_hash_vote",
		Strategies: []detect.KindStats{
			{Strategy: "anchor_first", Attempts: 10, Cost: 4},
			{Strategy: "voxel_hash_vote", Attempts: 3, Cost: 2, HitRate: 0.5},
		},
	}})
	idx.RecordReload(indexdb.ReloadRow{Version: 2, OK: true, Patterns: 2, Variants: 9, Entries: 40})
	if err := idx.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatal(err)
	}

	out, stderr, err := run(t, "stats", "--db", path)
	if err != nil {
		t.Fatalf("stats: %v\n%s", err, stderr)
	}
	if !strings.Contains(out, "last reload: v2 at ") || !strings.Contains(out, "2 patterns, 9 variants, 40 entries, 0 compile errors (ok)") {
		t.Fatalf("reload line missing:\n%s", out)
	}
	var active string
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "altar") && strings.Contains(line, "*") {
			active = line
		}
	}
	if !strings.Contains(active, "voxel_hash_vote") || !strings.Contains(active, "0.500") {
		t.Fatalf("active strategy row = %q\n%s", active, out)
	}

	if _, _, err := run(t, "stats", "--db", filepath.Join(t.TempDir(), "missing.sqlite")); err == nil {
		t.Fatalf("expected error for a missing database")
	}
}
