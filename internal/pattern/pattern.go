package pattern

import (
	"fmt"
	"sort"

	"blockpatterns.dev/internal/transform"
	"blockpatterns.dev/internal/voxel"
)

// HeightRange bounds the world Y of a pattern's origin, inclusive.
type HeightRange struct {
	Min int
	Max int
}

// Pattern is the canonical (identity transform) definition of a structure.
// It is produced by a loader and never mutated afterwards.
type Pattern struct {
	ID string
	// Cells maps offsets to requirements. Absent or nil cells are
	// unconstrained.
	Cells  map[voxel.Vec3]*Requirement
	Origin voxel.Vec3

	// Rotations lists allowed rotation ids (0..23). Nil allows all 24.
	Rotations []int
	// Mirrors lists allowed mirrors in addition to the identity. Nil allows
	// every axis; an empty non-nil slice allows none.
	Mirrors []transform.Mirror

	// Worlds restricts detection to these world ids; empty means any.
	Worlds []string
	Height *HeightRange
}

// Positions returns the constrained offsets in a stable order.
func (p *Pattern) Positions() []voxel.Vec3 {
	out := make([]voxel.Vec3, 0, len(p.Cells))
	for pos, r := range p.Cells {
		if r != nil {
			out = append(out, pos)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// AllowedRotations resolves the rotation policy.
func (p *Pattern) AllowedRotations() []int {
	if p.Rotations == nil {
		out := make([]int, transform.Rotations)
		for i := range out {
			out[i] = i
		}
		return out
	}
	return p.Rotations
}

// AllowedMirrors resolves the mirror policy; the identity always comes first.
func (p *Pattern) AllowedMirrors() []transform.Mirror {
	if p.Mirrors == nil {
		return transform.AllMirrors
	}
	out := []transform.Mirror{transform.MirrorNone}
	for _, m := range p.Mirrors {
		if m != transform.MirrorNone {
			out = append(out, m)
		}
	}
	return out
}

func (p *Pattern) AllowsWorld(id string) bool {
	if len(p.Worlds) == 0 {
		return true
	}
	for _, w := range p.Worlds {
		if w == id {
			return true
		}
	}
	return false
}

func (p *Pattern) AllowsHeight(y int) bool {
	return p.Height == nil || (y >= p.Height.Min && y <= p.Height.Max)
}

// Validate checks the structural contract the loader guarantees.
func (p *Pattern) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("pattern: missing id")
	}
	if len(p.Positions()) == 0 {
		return fmt.Errorf("pattern %s: no constrained cells", p.ID)
	}
	for _, r := range p.Rotations {
		if r < 0 || r >= transform.Rotations {
			return fmt.Errorf("pattern %s: rotation %d out of range", p.ID, r)
		}
	}
	for _, m := range p.Mirrors {
		if m > transform.MirrorZ {
			return fmt.Errorf("pattern %s: unknown mirror %d", p.ID, m)
		}
	}
	if p.Height != nil && p.Height.Min > p.Height.Max {
		return fmt.Errorf("pattern %s: height min %d > max %d", p.ID, p.Height.Min, p.Height.Max)
	}
	return nil
}
