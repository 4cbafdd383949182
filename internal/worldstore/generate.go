package worldstore

import (
	"blockpatterns.dev/internal/palette"
	"blockpatterns.dev/internal/voxel"
)

// Generator returns the initial state of a position in a new section.
type Generator func(p voxel.Vec3) palette.BlockState

// Flat fills everything at or below floorY with floor, air above.
func Flat(floorY int, floor palette.Material) Generator {
	return func(p voxel.Vec3) palette.BlockState {
		if p.Y <= floorY {
			return palette.BlockState{Material: floor}
		}
		return palette.BlockState{}
	}
}

func (s *Store) generateSection(sec *Section) error {
	if s.cfg.Generate == nil {
		sec.counts[0] = SectionVolume
		sec.mats.Set(0)
		return nil
	}
	base := voxel.Vec3{
		X: sec.Pos.X * voxel.SectionSize,
		Y: sec.Pos.Y * voxel.SectionSize,
		Z: sec.Pos.Z * voxel.SectionSize,
	}
	for y := 0; y < voxel.SectionSize; y++ {
		for z := 0; z < voxel.SectionSize; z++ {
			for x := 0; x < voxel.SectionSize; x++ {
				st := s.cfg.Generate(base.Add(voxel.Vec3{X: x, Y: y, Z: z}))
				id, err := s.intern(st)
				if err != nil {
					return err
				}
				sec.States[index(x, y, z)] = id
				m := s.states[id].Material
				sec.counts[m]++
				sec.mats.Set(m)
			}
		}
	}
	return nil
}
