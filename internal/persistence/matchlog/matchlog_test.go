package matchlog

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"blockpatterns.dev/internal/metrics"
	"blockpatterns.dev/internal/palette"
	"blockpatterns.dev/internal/transform"
	"blockpatterns.dev/internal/verify"
	"blockpatterns.dev/internal/voxel"
)

func sampleMatch(seq uint64) verify.Match {
	return verify.Match{
		Seq:       seq,
		At:        time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		World:     "overworld",
		PatternID: "altar",
		VariantID: "altar/r01",
		Transform: transform.MustFor(1, transform.MirrorNone),
		Origin:    voxel.Vec3{X: 5, Y: 64, Z: -3},
		Box:       voxel.AABB{Min: voxel.Vec3{X: 5, Y: 64, Z: -4}, Max: voxel.Vec3{X: 5, Y: 65, Z: -3}},
		Strategy:  "anchor_first",
		Bindings: []verify.Binding{{
			Pos:      voxel.Vec3{X: 5, Y: 64, Z: -4},
			Material: 3,
			Block:    "minecraft:oak_stairs",
			Props:    []palette.Prop{{Name: "facing", Value: "north"}},
		}},
	}
}

func TestLogger_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	l := New(dir, 16, nil, nil)
	want := []verify.Match{sampleMatch(1), sampleMatch(2)}
	for _, m := range want {
		l.Emit(m)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	// Emit after Close is a no-op.
	l.Emit(sampleMatch(3))

	files, err := Files(dir)
	if err != nil || len(files) != 1 {
		t.Fatalf("Files = %v, %v", files, err)
	}
	got, err := ReadFile(files[0])
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("matches (-want +got):\n%s", diff)
	}
}

func TestJSONLZstdWriter_RotatesHourly(t *testing.T) {
	dir := t.TempDir()
	w := NewJSONLZstdWriter(dir, "matches")
	now := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	w.now = func() time.Time { return now }

	if err := w.Write(sampleMatch(1)); err != nil {
		t.Fatal(err)
	}
	now = now.Add(2 * time.Minute)
	if err := w.Write(sampleMatch(2)); err != nil {
		t.Fatal(err)
	}
	// A synced file reopened in append mode holds two frames.
	if err := w.Sync(); err != nil {
		t.Fatal(err)
	}
	if err := w.Write(sampleMatch(3)); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	files, _ := Files(dir)
	wantFiles := []string{
		filepath.Join(dir, "matches-2026-03-01-10.jsonl.zst"),
		filepath.Join(dir, "matches-2026-03-01-11.jsonl.zst"),
	}
	if diff := cmp.Diff(wantFiles, files); diff != "" {
		t.Fatalf("files (-want +got):\n%s", diff)
	}
	second, err := ReadFile(files[1])
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(second) != 2 || second[0].Seq != 2 || second[1].Seq != 3 {
		t.Fatalf("second hour = %+v", second)
	}
}

func TestLogger_DropsWhenFull(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	// Unstarted logger: nothing drains the queue.
	l := &Logger{metrics: m, ch: make(chan verify.Match, 1)}
	l.Emit(sampleMatch(1))
	l.Emit(sampleMatch(2))
	l.Emit(sampleMatch(3))
	if l.Dropped() != 2 {
		t.Fatalf("Dropped = %d, want 2", l.Dropped())
	}
	const want = `
# HELP blockpatterns_sink_dropped_total Matches dropped by a full sink queue
# TYPE blockpatterns_sink_dropped_total counter
blockpatterns_sink_dropped_total{sink="matchlog"} 2
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(want), "blockpatterns_sink_dropped_total"); err != nil {
		t.Fatalf("sink drop metric: %v", err)
	}
}
