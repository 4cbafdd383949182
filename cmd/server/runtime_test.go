package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"blockpatterns.dev/internal/catalogs"
	"blockpatterns.dev/internal/detect"
	"blockpatterns.dev/internal/palette"
	"blockpatterns.dev/internal/persistence/indexdb"
	"blockpatterns.dev/internal/tuning"
	"blockpatterns.dev/internal/verify"
	"blockpatterns.dev/internal/voxel"
)

func findRepoRootForServerTests(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatalf("could not locate go.mod from %s", dir)
		}
		dir = parent
	}
}

// newTestConfigDir copies the shipped block and tag catalogs next to a
// pattern directory holding only the given files.
func newTestConfigDir(t *testing.T, patterns map[string]string) string {
	t.Helper()
	root := findRepoRootForServerTests(t)
	dir := t.TempDir()
	for _, name := range []string{"blocks.json", "tags.json"} {
		b, err := os.ReadFile(filepath.Join(root, "configs", name))
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if err := os.WriteFile(filepath.Join(dir, name), b, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.MkdirAll(filepath.Join(dir, "patterns"), 0o755); err != nil {
		t.Fatal(err)
	}
	for name, src := range patterns {
		if err := os.WriteFile(filepath.Join(dir, "patterns", name), []byte(src), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func newTestRuntime(t *testing.T, configDir string, idx *indexdb.SQLiteIndex) *runtime {
	t.Helper()
	cats, err := catalogs.Load(configDir)
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	tune := tuning.Defaults()
	tune.Worlds = []tuning.WorldSpec{{ID: "overworld", MinY: -64, MaxY: 319}}
	rt, err := newRuntime(runtimeConfig{ConfigDir: configDir, Catalogs: cats, Tuning: tune, Index: idx})
	if err != nil {
		t.Fatalf("newRuntime: %v", err)
	}
	t.Cleanup(rt.shutdown)
	return rt
}

const goldPattern = "id: gold_marker\nlayers: [[\"G\"]]\nkey: {G: minecraft:gold_block}\n"

func TestBuildWorlds_EngineView(t *testing.T) {
	reg, err := palette.NewRegistry([]string{"minecraft:air", "minecraft:stone"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	tune := tuning.Tuning{Worlds: []tuning.WorldSpec{{ID: "a", MaxY: 15}, {ID: "b", MaxY: 15}}}
	set, wm, err := buildWorlds(reg, tune)
	if err != nil {
		t.Fatalf("buildWorlds: %v", err)
	}
	for _, id := range set.IDs() {
		if _, ok := wm.World(id); !ok {
			t.Fatalf("world %s missing from engine view", id)
		}
	}
	if len(wm) != 2 {
		t.Fatalf("engine worlds = %d", len(wm))
	}
}

func TestRuntime_PatternsAndStats(t *testing.T) {
	dir := newTestConfigDir(t, map[string]string{"gold.yaml": goldPattern})
	rt := newTestRuntime(t, dir, nil)
	mux := http.NewServeMux()
	rt.routes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/patterns", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("patterns status = %d", rec.Code)
	}
	var pr patternsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &pr); err != nil {
		t.Fatal(err)
	}
	if pr.IndexVersion != 1 || len(pr.Patterns) != 1 {
		t.Fatalf("patterns = %+v", pr)
	}
	gp := pr.Patterns[0]
	if gp.ID != "gold_marker" || gp.File != "gold.yaml" || len(gp.Variants) != 1 {
		t.Fatalf("gold_marker = %+v", gp)
	}
	// A single cell is symmetric under the whole group.
	if got := len(gp.Variants[0].Transforms); got != 48 {
		t.Fatalf("transforms = %d, want 48", got)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/patterns?id=nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown id status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/stats", nil))
	var sr statsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &sr); err != nil {
		t.Fatal(err)
	}
	if sr.IndexVersion != 1 || sr.Patterns != 1 || sr.Sessions != 0 || sr.IndexQueue != nil {
		t.Fatalf("stats = %+v", sr)
	}

	d := rt.digests()
	if d.Patterns != 1 || d.PatternsDigest == "" || d.BlockPalette.Count != rt.cats.Blocks.Registry.Len() {
		t.Fatalf("digests = %+v", d)
	}
}

func TestRuntime_AdminReload(t *testing.T) {
	dir := newTestConfigDir(t, map[string]string{"gold.yaml": goldPattern})
	rt := newTestRuntime(t, dir, nil)
	mux := http.NewServeMux()
	rt.adminRoutes(mux)

	post := func(remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/admin/v1/reload", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		return rec
	}

	if rec := post("10.0.0.1:1234"); rec.Code != http.StatusForbidden {
		t.Fatalf("remote reload status = %d", rec.Code)
	}

	src := "id: stone_pair\ncells: [{pos: [0,0,0], block: stone}, {pos: [1,0,0], block: gold_block}]\n"
	if err := os.WriteFile(filepath.Join(dir, "patterns", "pair.yaml"), []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
	if rec := post("127.0.0.1:1234"); rec.Code != http.StatusOK {
		t.Fatalf("reload status = %d: %s", rec.Code, rec.Body.String())
	}
	if v := rt.engine.Index().Version; v != 2 {
		t.Fatalf("index version = %d, want 2", v)
	}
	if n := rt.digests().Patterns; n != 2 {
		t.Fatalf("patterns after reload = %d", n)
	}

	// A broken file keeps the running index.
	if err := os.WriteFile(filepath.Join(dir, "patterns", "bad.yaml"), []byte("id: bad\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if rec := post("127.0.0.1:1234"); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad reload status = %d", rec.Code)
	}
	if v := rt.engine.Index().Version; v != 2 {
		t.Fatalf("index version after failed reload = %d, want 2", v)
	}
	if n := rt.digests().Patterns; n != 2 {
		t.Fatalf("patterns after failed reload = %d", n)
	}
}

func TestRuntime_MatchesReachIndex(t *testing.T) {
	dir := newTestConfigDir(t, map[string]string{"gold.yaml": goldPattern})
	idx, err := indexdb.OpenSQLite(filepath.Join(t.TempDir(), "idx.sqlite"), nil)
	if err != nil {
		t.Fatalf("open index: %v", err)
	}
	rt := newTestRuntime(t, dir, idx)
	mux := http.NewServeMux()
	rt.routes(mux)

	st, _ := rt.worlds.Store("overworld")
	gold, ok := rt.cats.Blocks.Registry.Lookup("minecraft:gold_block")
	if !ok {
		t.Fatalf("gold_block missing from palette")
	}
	pos := voxel.Vec3{X: 3, Y: 70, Z: -9}
	state := palette.BlockState{Material: gold}
	if _, err := st.SetBlock(pos, state); err != nil {
		t.Fatalf("SetBlock: %v", err)
	}
	if got := rt.engine.Handle(detect.Trigger{Kind: detect.Placed, Pos: pos, World: "overworld", State: &state}); len(got) != 1 {
		t.Fatalf("Handle matches = %d", len(got))
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/matches?pattern=gold_marker&limit=5", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("matches status = %d: %s", rec.Code, rec.Body.String())
	}
	var ms []verify.Match
	if err := json.Unmarshal(rec.Body.Bytes(), &ms); err != nil {
		t.Fatal(err)
	}
	if len(ms) != 1 || ms[0].PatternID != "gold_marker" || ms[0].Origin != pos {
		t.Fatalf("matches = %+v", ms)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/matches?limit=0", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad limit status = %d", rec.Code)
	}

	row, ok, err := idx.LastReload(context.Background())
	if err != nil || !ok || row.Version != 1 || !row.OK {
		t.Fatalf("last reload = %+v %v %v", row, ok, err)
	}
}
