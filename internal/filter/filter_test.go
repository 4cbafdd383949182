package filter

import (
	"context"
	"testing"

	"blockpatterns.dev/internal/index"
	"blockpatterns.dev/internal/palette"
	"blockpatterns.dev/internal/pattern"
	"blockpatterns.dev/internal/transform"
	"blockpatterns.dev/internal/voxel"
	"blockpatterns.dev/internal/worldstore"
)

type countingWorld struct {
	*worldstore.Store
	reads int
}

func (c *countingWorld) BlockAt(p voxel.Vec3) (palette.BlockState, error) {
	c.reads++
	return c.Store.BlockAt(p)
}

type fixture struct {
	reg   *palette.Registry
	store *worldstore.Store
	v     *index.Variant
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg, err := palette.NewRegistry(
		[]string{"stone", "gold_block", "oak_log", "birch_log"},
		map[string][]string{"logs": {"oak_log", "birch_log"}},
	)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	p := &pattern.Pattern{
		ID: "totem",
		Cells: map[voxel.Vec3]*pattern.Requirement{
			{}:     pattern.Block("gold_block"),
			{Y: 1}: pattern.InTag("logs"),
		},
		Rotations: []int{0},
		Mirrors:   []transform.Mirror{},
		Worlds:    []string{"overworld"},
		Height:    &pattern.HeightRange{Min: 0, Max: 200},
	}
	ix, _, err := index.Build(context.Background(), reg, []*pattern.Pattern{p}, index.Options{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	s := worldstore.New(reg, worldstore.Config{ID: "overworld", MinY: -64, MaxY: 255, BoundaryR: 1000})
	s.EnsureLoaded(voxel.SectionPos{X: -1, Y: 3, Z: -1}, voxel.SectionPos{X: 1, Y: 5, Z: 1})
	return &fixture{reg: reg, store: s, v: ix.Variants[0]}
}

func (f *fixture) set(t *testing.T, p voxel.Vec3, id string) {
	t.Helper()
	m, ok := f.reg.Lookup(id)
	if !ok {
		t.Fatalf("unknown %s", id)
	}
	if _, err := f.store.SetBlock(p, palette.BlockState{Material: m}); err != nil {
		t.Fatalf("SetBlock: %v", err)
	}
}

func TestCheck_PlacedPatternPasses(t *testing.T) {
	f := newFixture(t)
	// Straddle a section boundary so the union spans two sections.
	origin := voxel.Vec3{X: 5, Y: 63, Z: 5}
	f.set(t, origin, "gold_block")
	f.set(t, origin.Add(voxel.Vec3{Y: 1}), "birch_log")

	w := &countingWorld{Store: f.store}
	scratch := f.reg.NewBitset()
	if r := Check(w, "overworld", origin, f.v, scratch); r != Pass {
		t.Fatalf("placed pattern rejected: %v", r)
	}
	if w.reads != 0 {
		t.Fatalf("filter read %d blocks", w.reads)
	}
}

func TestCheck_Rejections(t *testing.T) {
	f := newFixture(t)
	origin := voxel.Vec3{X: 5, Y: 64, Z: 5}
	f.set(t, origin, "gold_block")
	f.set(t, origin.Add(voxel.Vec3{Y: 1}), "stone")

	cases := []struct {
		name   string
		world  string
		origin voxel.Vec3
		want   Reason
	}{
		{"other world", "nether", origin, RejectWorld},
		{"too high", "overworld", voxel.Vec3{X: 5, Y: 201, Z: 5}, RejectHeight},
		{"outside border", "overworld", voxel.Vec3{X: 1001, Y: 64}, RejectBounds},
		{"no log anywhere", "overworld", origin, RejectTags},
		{"no gold in section", "overworld", voxel.Vec3{X: 5, Y: 64, Z: 25}, RejectPalette},
		{"unloaded", "overworld", voxel.Vec3{X: 40, Y: 64}, RejectUnloaded},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := &countingWorld{Store: f.store}
			got := Check(w, tc.world, tc.origin, f.v, nil)
			if got != tc.want {
				t.Fatalf("Check=%v want %v", got, tc.want)
			}
			if w.reads != 0 {
				t.Fatalf("filter read %d blocks", w.reads)
			}
		})
	}
	if !RejectUnloaded.Inconclusive() || RejectPalette.Inconclusive() {
		t.Fatalf("only unloaded is inconclusive")
	}
}

// Every real placement passes: try each origin in a small region after
// scattering the pattern's blocks around it.
func TestCheck_NoFalseNegatives(t *testing.T) {
	f := newFixture(t)
	placed := []voxel.Vec3{{X: 0, Y: 60, Z: 0}, {X: 15, Y: 79, Z: -1}, {X: -16, Y: 48, Z: 15}}
	for i, o := range placed {
		f.set(t, o, "gold_block")
		log := "oak_log"
		if i%2 == 1 {
			log = "birch_log"
		}
		f.set(t, o.Add(voxel.Vec3{Y: 1}), log)
	}
	scratch := f.reg.NewBitset()
	for _, o := range placed {
		if r := Check(f.store, "overworld", o, f.v, scratch); r != Pass {
			t.Fatalf("placement at %v rejected: %v", o, r)
		}
	}
}
