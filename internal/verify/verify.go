// Package verify checks a candidate placement cell by cell.
package verify

import (
	"time"

	"blockpatterns.dev/internal/index"
	"blockpatterns.dev/internal/palette"
	"blockpatterns.dev/internal/transform"
	"blockpatterns.dev/internal/voxel"
)

type World interface {
	BlockAt(p voxel.Vec3) (palette.BlockState, error)
}

type Outcome uint8

const (
	Mismatch Outcome = iota
	Matched
	// Inconclusive means a block could not be read; nothing is known about
	// the candidate.
	Inconclusive
)

func (o Outcome) String() string {
	switch o {
	case Matched:
		return "matched"
	case Inconclusive:
		return "inconclusive"
	}
	return "mismatch"
}

// Binding is the observed block at one verified cell.
type Binding struct {
	Pos      voxel.Vec3       `json:"pos"`
	Material palette.Material `json:"material"`
	Block    string           `json:"block"`
	Props    []palette.Prop   `json:"props,omitempty"`
}

// Match is a verified placement. Seq and At are assigned by the detector
// when the match is emitted.
type Match struct {
	Seq       uint64              `json:"seq"`
	At        time.Time           `json:"at"`
	World     string              `json:"world"`
	PatternID string              `json:"pattern"`
	VariantID string              `json:"variant"`
	Transform transform.Transform `json:"transform"`
	Origin    voxel.Vec3          `json:"origin"`
	Box       voxel.AABB          `json:"box"`
	Strategy  string              `json:"strategy,omitempty"`
	Bindings  []Binding           `json:"bindings"`

	Variant *index.Variant `json:"-"`
}

type Options struct {
	// KnownState is used instead of reading KnownPos.
	KnownPos   voxel.Vec3
	KnownState *palette.BlockState
	// Registry, when set, fills Binding.Block.
	Registry *palette.Registry
}

// Verify reads every cell of v placed at origin, most distinguishing cells
// first, and stops at the first cell that does not match. Any read error
// makes the result Inconclusive.
func Verify(w World, worldID string, origin voxel.Vec3, v *index.Variant, opts Options) (Match, Outcome) {
	var observed [32]palette.BlockState
	states := observed[:0]
	if len(v.Cells) > len(observed) {
		states = make([]palette.BlockState, 0, len(v.Cells))
	}
	for i := range v.Cells {
		c := &v.Cells[i]
		pos := origin.Add(c.Offset)
		var st palette.BlockState
		if opts.KnownState != nil && pos == opts.KnownPos {
			st = *opts.KnownState
		} else {
			var err error
			st, err = w.BlockAt(pos)
			if err != nil {
				return Match{}, Inconclusive
			}
		}
		if !c.Matches(st) {
			return Match{}, Mismatch
		}
		states = append(states, st)
	}

	m := Match{
		World:     worldID,
		PatternID: v.Pattern.ID,
		VariantID: v.ID,
		Transform: v.Transform(),
		Origin:    origin,
		Box:       v.Box.Translate(origin),
		Bindings:  make([]Binding, len(v.Cells)),
		Variant:   v,
	}
	for i := range v.Cells {
		st := states[i]
		m.Bindings[i] = Binding{
			Pos:      origin.Add(v.Cells[i].Offset),
			Material: st.Material,
			Props:    st.Props,
		}
		if opts.Registry != nil {
			m.Bindings[i].Block = opts.Registry.Name(st.Material)
		}
	}
	return m, Matched
}
