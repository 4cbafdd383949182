package compiler

import (
	"blockpatterns.dev/internal/pattern"
	"blockpatterns.dev/internal/voxel"
)

// SelectAnchors shortens each variant's anchor prefix to the smallest ranked
// prefix that no other variant can also satisfy at any alignment that pairs
// the prefix's first cell with one of its cells. When no prefix within the
// cap qualifies, or the comparison budget runs out, the capped ranking stays.
func SelectAnchors(variants []*Variant, opts Options) {
	opts = opts.normalized()
	lookup := make([]map[voxel.Vec3]*Cell, len(variants))
	for i, v := range variants {
		m := make(map[voxel.Vec3]*Cell, len(v.Cells))
		for j := range v.Cells {
			m[v.Cells[j].Offset] = &v.Cells[j]
		}
		lookup[i] = m
	}

	for i, v := range variants {
		limit := min(opts.AnchorCap, len(v.Cells))
		budget := opts.MaxAnchorComparisons
		chosen := limit
		for k := 1; k <= limit; k++ {
			ok, exhausted := distinguishes(v.Cells[:k], i, variants, lookup, &budget)
			if exhausted {
				break
			}
			if ok {
				chosen = k
				break
			}
		}
		v.Anchors = chosen
	}
}

func distinguishes(prefix []Cell, self int, variants []*Variant, lookup []map[voxel.Vec3]*Cell, budget *int) (ok, exhausted bool) {
	first := &prefix[0]
	for j, o := range variants {
		if j == self {
			continue
		}
		for c := range o.Cells {
			*budget--
			if *budget < 0 {
				return false, true
			}
			cand := &o.Cells[c]
			if !compatible(first, cand) {
				continue
			}
			shift := first.Offset.Sub(cand.Offset)
			collides := true
			for p := 1; p < len(prefix); p++ {
				*budget--
				other, has := lookup[j][prefix[p].Offset.Sub(shift)]
				if has && !compatible(&prefix[p], other) {
					collides = false
					break
				}
			}
			if collides {
				return false, false
			}
		}
	}
	return true, false
}

// CompileSet compiles every pattern and refines anchors across the whole
// set. Patterns that fail are reported in errs and left out.
func CompileSet(patterns []*pattern.Pattern, opts Options) (variants []*Variant, errs []error) {
	for _, p := range patterns {
		vs, err := Compile(p, opts)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		variants = append(variants, vs...)
	}
	SelectAnchors(variants, opts)
	return variants, errs
}
