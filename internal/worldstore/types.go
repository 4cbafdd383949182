// Package worldstore is an in-memory sectioned voxel world. It implements the
// world-access contract the detector reads through and keeps a per-section
// material set up to date on every write.
package worldstore

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"

	"blockpatterns.dev/internal/palette"
	"blockpatterns.dev/internal/voxel"
)

const SectionVolume = voxel.SectionSize * voxel.SectionSize * voxel.SectionSize

var (
	// ErrUnloaded is returned for reads inside a section that is not loaded.
	ErrUnloaded   = errors.New("section not loaded")
	ErrOutOfWorld = errors.New("position out of world bounds")
	// ErrStateTableFull is returned once a world holds every distinct state
	// a uint16 id can name.
	ErrStateTableFull = errors.New("block state table full")
)

type Section struct {
	Pos voxel.SectionPos
	// States are interned state ids, indexed x + z*16 + y*256.
	States []uint16

	counts []uint32 // per material
	mats   palette.Bitset
	dirty  bool
	hash   [32]byte
}

func index(x, y, z int) int {
	return x + z*voxel.SectionSize + y*voxel.SectionSize*voxel.SectionSize
}

// Digest hashes the section's state ids.
func (s *Section) Digest() [32]byte {
	if s.dirty || s.hash == ([32]byte{}) {
		h := sha256.New()
		var tmp [2]byte
		for _, v := range s.States {
			binary.LittleEndian.PutUint16(tmp[:], v)
			h.Write(tmp[:])
		}
		copy(s.hash[:], h.Sum(nil))
		s.dirty = false
	}
	return s.hash
}

// Config bounds a world. MaxY is inclusive.
type Config struct {
	ID        string
	MinY      int
	MaxY      int
	BoundaryR int // blocks; 0 means unbounded horizontally

	// Generate fills newly created sections; nil leaves them air.
	Generate Generator
}
