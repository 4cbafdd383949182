package detect

import (
	"blockpatterns.dev/internal/palette"
	"blockpatterns.dev/internal/voxel"
)

// World is the read contract the engine needs from a voxel world.
type World interface {
	BlockAt(p voxel.Vec3) (palette.BlockState, error)
	SectionPalette(s voxel.SectionPos, dst palette.Bitset) error
	InBounds(p voxel.Vec3) bool
}

type Worlds interface {
	World(id string) (World, bool)
}

// WorldMap is a fixed set of worlds.
type WorldMap map[string]World

func (m WorldMap) World(id string) (World, bool) {
	w, ok := m[id]
	return w, ok
}

type TriggerKind uint8

const (
	Placed TriggerKind = iota
	Broken
	Updated
)

func (k TriggerKind) String() string {
	switch k {
	case Broken:
		return "broken"
	case Updated:
		return "updated"
	}
	return "placed"
}

// Trigger is a block change. State is the new block; when nil the engine
// reads it from the world.
type Trigger struct {
	Kind  TriggerKind
	Pos   voxel.Vec3
	World string
	State *palette.BlockState
}

// countingWorld counts BlockAt calls for one attempt.
type countingWorld struct {
	w     World
	reads int
}

func (c *countingWorld) BlockAt(p voxel.Vec3) (palette.BlockState, error) {
	c.reads++
	return c.w.BlockAt(p)
}
