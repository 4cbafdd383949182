// Package compiler expands canonical patterns into their rotation and mirror
// variants, merges variants that coincide, and ranks each variant's cells so
// the most distinguishing ones are checked first.
package compiler

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"blockpatterns.dev/internal/palette"
	"blockpatterns.dev/internal/pattern"
	"blockpatterns.dev/internal/transform"
	"blockpatterns.dev/internal/voxel"
)

const (
	DefaultAnchorCap            = 8
	DefaultMaxAnchorComparisons = 1 << 20
)

type Options struct {
	Registry *palette.Registry
	// Rarity defaults to DefaultRarity.
	Rarity Rarity
	// AnchorCap bounds the anchor prefix when no shorter distinguishing prefix
	// is found.
	AnchorCap int
	// MaxAnchorComparisons bounds the cross-variant work per variant in
	// SelectAnchors.
	MaxAnchorComparisons int
}

func (o Options) normalized() Options {
	if o.Rarity == nil {
		o.Rarity = DefaultRarity
	}
	if o.AnchorCap <= 0 {
		o.AnchorCap = DefaultAnchorCap
	}
	if o.MaxAnchorComparisons <= 0 {
		o.MaxAnchorComparisons = DefaultMaxAnchorComparisons
	}
	return o
}

// Compile produces the distinct variants of p in enumeration order: allowed
// rotations ascending, then mirrors none, x, y, z. Transforms that name an
// element already produced are skipped, and transforms whose cell grid equals
// an earlier variant's (after moving the box minimum to the origin) are
// attached to that variant instead of creating a new one. Anchors default to
// the capped ranking; SelectAnchors refines them against other variants.
func Compile(p *pattern.Pattern, opts Options) ([]*Variant, error) {
	opts = opts.normalized()
	if opts.Registry == nil {
		return nil, &CompileError{PatternID: p.ID, Reason: "no palette"}
	}
	if err := p.Validate(); err != nil {
		return nil, &CompileError{PatternID: p.ID, Reason: "invalid pattern", Err: err}
	}
	positions := p.Positions()

	res := resolver{reg: opts.Registry, rarity: opts.Rarity, byKey: map[string]resolved{}}
	rotations := append([]int(nil), p.AllowedRotations()...)
	sort.Ints(rotations)

	var (
		out     []*Variant
		byCanon = map[string]*Variant{}
		seen    [transform.Count]bool
		dropped int
	)
	for i, rot := range rotations {
		if i > 0 && rotations[i-1] == rot {
			continue
		}
		for _, m := range p.AllowedMirrors() {
			t, err := transform.For(rot, m)
			if err != nil {
				return nil, &CompileError{PatternID: p.ID, Reason: "bad transform", Err: err}
			}
			if seen[t] {
				continue
			}
			seen[t] = true

			v, ok, err := build(p, positions, t, &res)
			if err != nil {
				return nil, &CompileError{PatternID: p.ID, Reason: "unresolvable requirement", Err: err}
			}
			if !ok {
				dropped++
				continue
			}
			if prev, dup := byCanon[v.canonical]; dup {
				prev.Transforms = append(prev.Transforms, t)
				continue
			}
			byCanon[v.canonical] = v
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil, &CompileError{PatternID: p.ID, Reason: fmt.Sprintf("no representable variant (%d transforms dropped)", dropped)}
	}
	for _, v := range out {
		rank(v)
		v.Anchors = min(opts.AnchorCap, len(v.Cells))
	}
	return out, nil
}

// build applies t to every cell. ok is false when a property cannot be
// remapped under t.
func build(p *pattern.Pattern, positions []voxel.Vec3, t transform.Transform, res *resolver) (*Variant, bool, error) {
	cells := make([]Cell, 0, len(positions))
	for _, pos := range positions {
		req, ok := p.Cells[pos].Transformed(t)
		if !ok {
			return nil, false, nil
		}
		r, err := res.resolve(req)
		if err != nil {
			return nil, false, err
		}
		cells = append(cells, Cell{
			Offset:    t.Apply(pos.Sub(p.Origin)),
			Req:       req,
			Materials: r.materials,
			Material:  r.material,
			Info:      r.info,
		})
	}
	offsets := make([]voxel.Vec3, len(cells))
	for i := range cells {
		offsets[i] = cells[i].Offset
	}
	box, _ := voxel.BoxOf(offsets)
	v := &Variant{
		ID:         p.ID + "/" + t.String(),
		Pattern:    p,
		Transforms: []transform.Transform{t},
		Cells:      cells,
		Box:        box,
	}
	v.canonical = canonicalize(cells, box.Min)
	return v, true, nil
}

func canonicalize(cells []Cell, base voxel.Vec3) string {
	parts := make([]string, len(cells))
	for i := range cells {
		o := cells[i].Offset.Sub(base)
		parts[i] = strconv.Itoa(o.X) + "," + strconv.Itoa(o.Y) + "," + strconv.Itoa(o.Z) + "=" + cells[i].Req.Key()
	}
	sort.Strings(parts)
	return strings.Join(parts, ";")
}

// rank orders cells by information, ties broken by offset.
func rank(v *Variant) {
	sort.SliceStable(v.Cells, func(i, j int) bool {
		a, b := &v.Cells[i], &v.Cells[j]
		if a.Info != b.Info {
			return a.Info > b.Info
		}
		return a.Offset.Less(b.Offset)
	})
}

type resolved struct {
	materials palette.Bitset
	material  palette.Material
	info      float64
}

type resolver struct {
	reg    *palette.Registry
	rarity Rarity
	byKey  map[string]resolved
}

func (r *resolver) resolve(req *pattern.Requirement) (resolved, error) {
	key := req.Key()
	if v, ok := r.byKey[key]; ok {
		return v, nil
	}
	var out resolved
	switch req.Kind() {
	case pattern.Exact:
		m, ok := r.reg.Lookup(req.Name())
		if !ok {
			return out, fmt.Errorf("unknown block id: %s", req.Name())
		}
		out.material = m
		out.materials = r.reg.NewBitset()
		out.materials.Set(m)
	case pattern.Tag:
		set, ok := r.reg.Tag(req.Name())
		if !ok {
			return out, fmt.Errorf("unknown block tag: #%s", req.Name())
		}
		if set.Empty() {
			return out, fmt.Errorf("empty block tag: #%s", req.Name())
		}
		out.materials = set
	}
	out.info = information(r.reg, r.rarity, out.materials, len(req.Props()))
	r.byKey[key] = out
	return out, nil
}
