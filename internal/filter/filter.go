// Package filter rejects candidate placements from coarse signature data
// before any block is read.
package filter

import (
	"blockpatterns.dev/internal/index"
	"blockpatterns.dev/internal/palette"
	"blockpatterns.dev/internal/voxel"
)

// World is the part of the world contract the filter may touch. BlockAt is
// deliberately absent.
type World interface {
	// SectionPalette ORs the materials present in the section into dst.
	SectionPalette(s voxel.SectionPos, dst palette.Bitset) error
	InBounds(p voxel.Vec3) bool
}

type Reason uint8

const (
	Pass Reason = iota
	RejectWorld
	RejectHeight
	RejectBounds
	RejectPalette
	RejectTags
	// RejectUnloaded means a section could not be read; the candidate is
	// inconclusive rather than absent.
	RejectUnloaded
)

var reasonNames = [...]string{"pass", "world", "height", "bounds", "palette", "tags", "unloaded"}

func (r Reason) String() string {
	if int(r) < len(reasonNames) {
		return reasonNames[r]
	}
	return "unknown"
}

func (r Reason) Inconclusive() bool { return r == RejectUnloaded }

// Reasons lists every value, for metric label pre-registration.
func Reasons() []Reason {
	out := make([]Reason, len(reasonNames))
	for i := range out {
		out[i] = Reason(i)
	}
	return out
}

// Check runs the stages in order: pattern world and origin height, box
// corners in bounds, then the section palette union against the variant's
// signature. scratch is cleared and reused for the union; it is reallocated
// when too small.
func Check(w World, worldID string, origin voxel.Vec3, v *index.Variant, scratch palette.Bitset) Reason {
	p := v.Pattern
	if !p.AllowsWorld(worldID) {
		return RejectWorld
	}
	if !p.AllowsHeight(origin.Y) {
		return RejectHeight
	}
	box := v.Box.Translate(origin)
	for _, c := range box.Corners() {
		if !w.InBounds(c) {
			return RejectBounds
		}
	}

	if len(scratch) < len(v.Sig.Required) {
		scratch = make(palette.Bitset, len(v.Sig.Required))
	} else {
		scratch = scratch[:len(v.Sig.Required)]
		scratch.Clear()
	}
	lo, hi := box.Sections()
	for sy := lo.Y; sy <= hi.Y; sy++ {
		for sz := lo.Z; sz <= hi.Z; sz++ {
			for sx := lo.X; sx <= hi.X; sx++ {
				if err := w.SectionPalette(voxel.SectionPos{X: sx, Y: sy, Z: sz}, scratch); err != nil {
					return RejectUnloaded
				}
			}
		}
	}
	if !scratch.ContainsAll(v.Sig.Required) {
		return RejectPalette
	}
	for _, tag := range v.Sig.Tags {
		if !scratch.Intersects(tag) {
			return RejectTags
		}
	}
	return Pass
}
