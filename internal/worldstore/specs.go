package worldstore

import (
	"fmt"

	"blockpatterns.dev/internal/palette"
	"blockpatterns.dev/internal/tuning"
	"blockpatterns.dev/internal/voxel"
)

// BuildSet creates one store per world spec. Specs with a floor block get a
// flat generator, and PreloadRadius sections around the origin are created
// over the full height.
func BuildSet(reg *palette.Registry, specs []tuning.WorldSpec) (*Set, error) {
	stores := make([]*Store, 0, len(specs))
	for _, spec := range specs {
		cfg := Config{ID: spec.ID, MinY: spec.MinY, MaxY: spec.MaxY, BoundaryR: spec.BoundaryR}
		if spec.FloorBlock != "" {
			floor, ok := reg.Lookup(spec.FloorBlock)
			if !ok {
				return nil, fmt.Errorf("world %s: floor_block %q not in palette", spec.ID, spec.FloorBlock)
			}
			cfg.Generate = Flat(spec.FloorY, floor)
		}
		st := New(reg, cfg)
		if r := spec.PreloadRadius; r > 0 {
			lo := voxel.SectionOf(voxel.Vec3{Y: spec.MinY})
			hi := voxel.SectionOf(voxel.Vec3{Y: spec.MaxY})
			err := st.EnsureLoaded(
				voxel.SectionPos{X: -r, Y: lo.Y, Z: -r},
				voxel.SectionPos{X: r, Y: hi.Y, Z: r},
			)
			if err != nil {
				return nil, fmt.Errorf("world %s: %w", spec.ID, err)
			}
		}
		stores = append(stores, st)
	}
	return NewSet(stores...), nil
}
