// Package strategy generates candidate placements for one pattern from a
// trigger block. The set of strategies is closed; Generate dispatches on
// Kind.
package strategy

import (
	"fmt"

	"blockpatterns.dev/internal/index"
	"blockpatterns.dev/internal/palette"
	"blockpatterns.dev/internal/voxel"
)

type Kind uint8

const (
	AnchorFirst Kind = iota
	VoxelHashVote
	ConstraintPropagation

	NumKinds = 3
)

var kindNames = [NumKinds]string{"anchor_first", "voxel_hash_vote", "constraint_propagation"}

func (k Kind) String() string {
	if int(k) < NumKinds {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

func ParseKind(s string) (Kind, error) {
	for i, n := range kindNames {
		if n == s {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown strategy %q", s)
}

func Kinds() []Kind { return []Kind{AnchorFirst, VoxelHashVote, ConstraintPropagation} }

type World interface {
	BlockAt(p voxel.Vec3) (palette.BlockState, error)
}

// Candidate is a hypothesis: Entry's variant placed with its origin at
// Origin.
type Candidate struct {
	Origin voxel.Vec3
	Entry  *index.Entry
}

// Input is one pattern's share of a trigger. Entries all belong to the same
// pattern and all accept State.
type Input struct {
	World   World
	Pos     voxel.Vec3
	State   palette.BlockState
	Entries []*index.Entry

	// VoteThreshold is the fraction of constrained neighbours that must
	// agree for VoxelHashVote; values <= 0 mean 1.
	VoteThreshold float64
}

type read struct {
	st palette.BlockState
	ok bool
}

// Scratch holds per-attempt state. It is reused across attempts by one
// goroutine at a time.
type Scratch struct {
	memo map[voxel.Vec3]read
}

func NewScratch() *Scratch {
	return &Scratch{memo: make(map[voxel.Vec3]read, 64)}
}

// Generate appends the candidates of kind to dst.
func Generate(kind Kind, in Input, s *Scratch, dst []Candidate) []Candidate {
	switch kind {
	case VoxelHashVote:
		return hashVote(in, dst)
	case ConstraintPropagation:
		return propagate(in, s, dst)
	default:
		return anchorFirst(in, dst)
	}
}

func anchorFirst(in Input, dst []Candidate) []Candidate {
	for _, e := range in.Entries {
		dst = append(dst, Candidate{Origin: e.Origin(in.Pos), Entry: e})
	}
	return dst
}
