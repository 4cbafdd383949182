package index

import (
	"blockpatterns.dev/internal/compiler"
	"blockpatterns.dev/internal/palette"
	"blockpatterns.dev/internal/voxel"
)

// Signature is the coarse per-variant summary checked before any block read.
type Signature struct {
	// Required holds every exact material the variant needs.
	Required palette.Bitset
	// Tags lists distinct tag member sets; a loaded area must contain at
	// least one member of each.
	Tags    []palette.Bitset
	Anchors []voxel.Vec3
	Volume  int
}

func signatureOf(reg *palette.Registry, v *compiler.Variant) Signature {
	sig := Signature{Required: reg.NewBitset(), Volume: v.Box.Volume()}
	for i := range v.Cells {
		c := &v.Cells[i]
		if c.Materials.Count() == 1 {
			sig.Required.Or(c.Materials)
			continue
		}
		dup := false
		for _, t := range sig.Tags {
			if t.Equal(c.Materials) {
				dup = true
				break
			}
		}
		if !dup {
			sig.Tags = append(sig.Tags, c.Materials)
		}
	}
	for _, c := range v.AnchorCells() {
		sig.Anchors = append(sig.Anchors, c.Offset)
	}
	return sig
}

// Variant is a compiled variant together with its signature.
type Variant struct {
	*compiler.Variant
	Sig Signature
	// Seq is the variant's position in the index.
	Seq int
}
