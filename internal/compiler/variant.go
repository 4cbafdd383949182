package compiler

import (
	"blockpatterns.dev/internal/palette"
	"blockpatterns.dev/internal/pattern"
	"blockpatterns.dev/internal/transform"
	"blockpatterns.dev/internal/voxel"
)

// Cell is one constrained position of a variant, resolved against the palette.
type Cell struct {
	// Offset is relative to the variant's origin.
	Offset voxel.Vec3
	Req    *pattern.Requirement
	// Materials holds every accepted material (one bit for exact cells).
	Materials palette.Bitset
	Material  palette.Material
	// Info is the estimated information content in bits.
	Info float64
}

// Matches tests a block against the cell: material or tag membership first,
// then every required property by exact equality.
func (c *Cell) Matches(s palette.BlockState) bool {
	if c.Req.Kind() == pattern.Exact {
		if s.Material != c.Material {
			return false
		}
	} else if !c.Materials.Has(s.Material) {
		return false
	}
	for _, want := range c.Req.Props() {
		got, ok := s.Prop(want.Name)
		if !ok || got != want.Value {
			return false
		}
	}
	return true
}

// compatible reports whether some block state could satisfy both cells.
func compatible(a, b *Cell) bool {
	if !a.Materials.Intersects(b.Materials) {
		return false
	}
	for _, p := range a.Req.Props() {
		if v, ok := b.Req.Prop(p.Name); ok && v != p.Value {
			return false
		}
	}
	return true
}

// Variant is one rotated/mirrored instance of a pattern. Variants are
// read-only once compiled.
type Variant struct {
	// ID is "<pattern id>/<first transform>".
	ID      string
	Pattern *pattern.Pattern
	// Transforms lists every transform that produces this cell grid; the
	// first one defines the origin and ID.
	Transforms []transform.Transform
	// Cells are ordered by information, most distinguishing first.
	Cells []Cell
	// Box bounds the cells relative to the origin.
	Box voxel.AABB
	// Anchors is the length of the Cells prefix used as anchors.
	Anchors int

	canonical string
}

func (v *Variant) Transform() transform.Transform { return v.Transforms[0] }

// AnchorCells returns the anchor prefix of Cells.
func (v *Variant) AnchorCells() []Cell { return v.Cells[:v.Anchors] }

// CellAt returns the cell at offset, or nil.
func (v *Variant) CellAt(off voxel.Vec3) *Cell {
	for i := range v.Cells {
		if v.Cells[i].Offset == off {
			return &v.Cells[i]
		}
	}
	return nil
}

// Canonical is the translation-normalized form used for deduplication.
func (v *Variant) Canonical() string { return v.canonical }
