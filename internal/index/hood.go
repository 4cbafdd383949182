package index

import (
	"blockpatterns.dev/internal/compiler"
	"blockpatterns.dev/internal/palette"
	"blockpatterns.dev/internal/voxel"
)

const hoodSeed = 0x9e3779b97f4a7c15

// Hood describes what a variant expects in the six face neighbours of one of
// its cells, in voxel.Faces order.
type Hood struct {
	Cells [6]*compiler.Cell
	// Constrained counts the non-nil Cells.
	Constrained int
	// Exact is true when every neighbour is a single material without
	// property requirements; Hash is then the expected HoodHash.
	Exact bool
	Hash  uint64
}

func hoodOf(v *compiler.Variant, at voxel.Vec3) Hood {
	var h Hood
	var mats [6]palette.Material
	h.Exact = true
	for i, f := range voxel.Faces {
		c := v.CellAt(at.Add(f))
		h.Cells[i] = c
		if c == nil {
			h.Exact = false
			continue
		}
		h.Constrained++
		if c.Materials.Count() != 1 || len(c.Req.Props()) > 0 {
			h.Exact = false
			continue
		}
		mats[i] = c.Material
	}
	if h.Exact {
		h.Hash = HoodHash(mats)
	}
	return h
}

// HoodHash hashes six neighbour materials in voxel.Faces order.
func HoodHash(mats [6]palette.Material) uint64 {
	z := uint64(hoodSeed)
	for _, m := range mats {
		z = voxel.Mix64(z ^ uint64(m))
	}
	return z
}
