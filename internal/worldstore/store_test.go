package worldstore

import (
	"errors"
	"math"
	"strconv"
	"testing"

	"blockpatterns.dev/internal/palette"
	"blockpatterns.dev/internal/voxel"
)

func testStore(t *testing.T, cfg Config) (*Store, *palette.Registry) {
	t.Helper()
	reg, err := palette.NewRegistry([]string{"stone", "gold_block", "oak_stairs"}, nil)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return New(reg, cfg), reg
}

func TestStore_SetAndRead(t *testing.T) {
	s, reg := testStore(t, Config{ID: "w", MinY: -64, MaxY: 319})
	gold, _ := reg.Lookup("gold_block")
	p := voxel.Vec3{X: -1, Y: 64, Z: 17}

	if _, err := s.BlockAt(p); !errors.Is(err, ErrUnloaded) {
		t.Fatalf("expected ErrUnloaded, got %v", err)
	}
	if _, err := s.SetBlock(p, palette.BlockState{Material: gold}); err != nil {
		t.Fatalf("SetBlock: %v", err)
	}
	got, err := s.BlockAt(p)
	if err != nil || got.Material != gold {
		t.Fatalf("BlockAt=%v,%v", got, err)
	}
	if other, _ := s.BlockAt(p.Add(voxel.Vec3{X: -1})); other.Material != 0 {
		t.Fatalf("neighbour should be air")
	}

	mats := reg.NewBitset()
	if err := s.SectionPalette(voxel.SectionOf(p), mats); err != nil {
		t.Fatalf("SectionPalette: %v", err)
	}
	if !mats.Has(gold) || !mats.Has(0) {
		t.Fatalf("palette missing members")
	}

	prev, _ := s.SetBlock(p, palette.BlockState{})
	if prev.Material != gold {
		t.Fatalf("prev=%v", prev)
	}
	mats.Clear()
	_ = s.SectionPalette(voxel.SectionOf(p), mats)
	if mats.Has(gold) {
		t.Fatalf("removed material still in section palette")
	}
}

func TestStore_PropsInterned(t *testing.T) {
	s, reg := testStore(t, Config{ID: "w", MinY: 0, MaxY: 255})
	stairs, _ := reg.Lookup("oak_stairs")
	a := palette.BlockState{Material: stairs, Props: []palette.Prop{{Name: "half", Value: "top"}, {Name: "facing", Value: "east"}}}
	b := palette.BlockState{Material: stairs, Props: []palette.Prop{{Name: "facing", Value: "east"}, {Name: "half", Value: "top"}}}
	_, _ = s.SetBlock(voxel.Vec3{}, a)
	_, _ = s.SetBlock(voxel.Vec3{X: 1}, b)
	if len(s.states) != 2 {
		t.Fatalf("states=%d want 2 (air + stairs)", len(s.states))
	}
	got, _ := s.BlockAt(voxel.Vec3{X: 1})
	if v, _ := got.Prop("facing"); v != "east" {
		t.Fatalf("facing=%q", v)
	}
}

func TestStore_BoundsAndLoad(t *testing.T) {
	s, reg := testStore(t, Config{ID: "w", MinY: 0, MaxY: 15, BoundaryR: 20})
	if s.InBounds(voxel.Vec3{Y: 16}) || s.InBounds(voxel.Vec3{X: 21}) || !s.InBounds(voxel.Vec3{X: -20, Z: 20}) {
		t.Fatalf("bounds wrong")
	}
	if _, err := s.SetBlock(voxel.Vec3{Y: -1}, palette.BlockState{}); !errors.Is(err, ErrOutOfWorld) {
		t.Fatalf("expected ErrOutOfWorld, got %v", err)
	}

	stone, _ := reg.Lookup("stone")
	mats := make([]uint16, SectionVolume)
	mats[index(3, 2, 1)] = uint16(stone)
	sp := voxel.SectionPos{X: 1}
	if err := s.LoadSection(sp, mats); err != nil {
		t.Fatalf("LoadSection: %v", err)
	}
	got, _ := s.BlockAt(voxel.Vec3{X: 19, Y: 2, Z: 1})
	if got.Material != stone {
		t.Fatalf("loaded block=%v", got)
	}
	back, ok := s.Materials(sp)
	if !ok || back[index(3, 2, 1)] != uint16(stone) {
		t.Fatalf("Materials round trip failed")
	}
	if err := s.LoadSection(sp, mats[:10]); err == nil {
		t.Fatalf("short section should fail")
	}
	d1, _ := s.Digest(sp)
	_, _ = s.SetBlock(voxel.Vec3{X: 16}, palette.BlockState{Material: stone})
	d2, _ := s.Digest(sp)
	if d1 == d2 {
		t.Fatalf("digest should change after a write")
	}
	s.Unload(sp)
	if len(s.LoadedSections()) != 0 {
		t.Fatalf("unload failed")
	}
}

func TestStore_FlatGenerator(t *testing.T) {
	s, reg := testStore(t, Config{ID: "w", MinY: -16, MaxY: 31})
	stone, _ := reg.Lookup("stone")
	s.cfg.Generate = Flat(-1, stone)
	s.EnsureLoaded(voxel.SectionPos{Y: -1}, voxel.SectionPos{Y: 0})
	if got, _ := s.BlockAt(voxel.Vec3{Y: -1}); got.Material != stone {
		t.Fatalf("floor=%v", got)
	}
	if got, _ := s.BlockAt(voxel.Vec3{Y: 0}); got.Material != 0 {
		t.Fatalf("above floor=%v", got)
	}
	if ids := NewSet(s).IDs(); len(ids) != 1 || ids[0] != "w" {
		t.Fatalf("set ids=%v", ids)
	}
}

func TestStore_StateTableFull(t *testing.T) {
	s, reg := testStore(t, Config{ID: "w", MinY: 0, MaxY: 15})
	stone, _ := reg.Lookup("stone")
	p := voxel.Vec3{X: 3, Y: 3, Z: 3}
	state := func(i int) palette.BlockState {
		return palette.BlockState{Material: stone, Props: []palette.Prop{{Name: "n", Value: strconv.Itoa(i)}}}
	}

	// Air holds id 0, so math.MaxUint16 more states fill the table.
	for i := 0; i < math.MaxUint16; i++ {
		if _, err := s.SetBlock(p, state(i)); err != nil {
			t.Fatalf("SetBlock n=%d: %v", i, err)
		}
	}
	last := state(math.MaxUint16 - 1)

	if _, err := s.SetBlock(p, state(math.MaxUint16)); !errors.Is(err, ErrStateTableFull) {
		t.Fatalf("expected ErrStateTableFull, got %v", err)
	}
	got, err := s.BlockAt(p)
	if err != nil || got.Material != stone || palette.PropsKey(got.Props) != palette.PropsKey(last.Props) {
		t.Fatalf("cell after rejected write = %+v, %v", got, err)
	}
	sp := voxel.SectionOf(p)
	if n := s.sections[sp].counts[stone]; n != 1 {
		t.Fatalf("stone count = %d, want 1", n)
	}

	// Known states still resolve.
	if _, err := s.SetBlock(p.Add(voxel.Vec3{X: 1}), state(7)); err != nil {
		t.Fatalf("known state: %v", err)
	}
	if _, err := s.SetBlock(p.Add(voxel.Vec3{X: 2}), palette.BlockState{}); err != nil {
		t.Fatalf("air: %v", err)
	}
}
