// Package index builds the immutable lookup structures the detector reads on
// every trigger: a key-block index from block state to (variant, cell) entries
// and a signature per variant.
package index

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"blockpatterns.dev/internal/compiler"
	"blockpatterns.dev/internal/palette"
	"blockpatterns.dev/internal/pattern"
	"blockpatterns.dev/internal/voxel"
)

const DefaultMaxEntries = 1 << 22

type Options struct {
	Compiler compiler.Options
	// Workers bounds concurrent pattern compilation; 0 means GOMAXPROCS.
	Workers    int
	MaxEntries int
}

// Entry says: a block matching Cell may be part of Variant at Offset, so the
// variant's origin would be the block position minus Offset.
type Entry struct {
	Variant *Variant
	Offset  voxel.Vec3
	Cell    *compiler.Cell
	Hood    Hood
}

// Origin returns the variant origin implied by a block at pos.
func (e *Entry) Origin(pos voxel.Vec3) voxel.Vec3 { return pos.Sub(e.Offset) }

type group struct {
	props   []palette.Prop
	entries []*Entry
}

// Index is an immutable snapshot. It is safe for concurrent readers.
type Index struct {
	Registry *palette.Registry
	Variants []*Variant
	Patterns map[string]*pattern.Pattern
	// ByPattern lists variant positions per pattern id.
	ByPattern map[string][]*Variant
	// Version is assigned by the Holder that published the index.
	Version uint64

	byMaterial [][]group
	entries    int
}

// Empty returns an index that matches nothing.
func Empty(reg *palette.Registry) *Index {
	return &Index{
		Registry:   reg,
		Patterns:   map[string]*pattern.Pattern{},
		ByPattern:  map[string][]*Variant{},
		byMaterial: make([][]group, reg.Len()),
	}
}

func (ix *Index) Entries() int { return ix.entries }

// Lookup appends the entries whose key cell accepts s. It does not allocate
// when dst has room.
func (ix *Index) Lookup(s palette.BlockState, dst []*Entry) []*Entry {
	if int(s.Material) >= len(ix.byMaterial) {
		return dst
	}
	for gi := range ix.byMaterial[s.Material] {
		g := &ix.byMaterial[s.Material][gi]
		if !propsHold(g.props, s) {
			continue
		}
		dst = append(dst, g.entries...)
	}
	return dst
}

func propsHold(props []palette.Prop, s palette.BlockState) bool {
	for _, p := range props {
		v, ok := s.Prop(p.Name)
		if !ok || v != p.Value {
			return false
		}
	}
	return true
}

// Build compiles patterns concurrently and assembles a new index. Patterns
// that fail to compile are left out and reported in the returned slice, in
// pattern id order. The error is a *BuildError when the build as a whole
// cannot proceed.
func Build(ctx context.Context, reg *palette.Registry, patterns []*pattern.Pattern, opts Options) (*Index, []error, error) {
	if reg == nil {
		return nil, nil, &BuildError{Stage: "palette", Err: errors.New("nil registry")}
	}
	opts.Compiler.Registry = reg
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	sorted := make([]*pattern.Pattern, 0, len(patterns))
	seen := make(map[string]bool, len(patterns))
	for _, p := range patterns {
		if p == nil {
			continue
		}
		if seen[p.ID] {
			return nil, nil, &BuildError{Stage: "patterns", Err: fmt.Errorf("duplicate pattern id %q", p.ID)}
		}
		seen[p.ID] = true
		sorted = append(sorted, p)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	compiled := make([][]*compiler.Variant, len(sorted))
	failed := make([]error, len(sorted))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, p := range sorted {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			compiled[i], failed[i] = compiler.Compile(p, opts.Compiler)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, &BuildError{Stage: "compile", Err: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, &BuildError{Stage: "compile", Err: err}
	}

	var (
		errs []error
		all  []*compiler.Variant
	)
	for i := range sorted {
		if failed[i] != nil {
			errs = append(errs, failed[i])
			continue
		}
		all = append(all, compiled[i]...)
	}
	compiler.SelectAnchors(all, opts.Compiler)

	ix := Empty(reg)
	for i, p := range sorted {
		if failed[i] == nil {
			ix.Patterns[p.ID] = p
		}
	}
	for _, cv := range all {
		v := &Variant{Variant: cv, Sig: signatureOf(reg, cv), Seq: len(ix.Variants)}
		ix.Variants = append(ix.Variants, v)
		ix.ByPattern[cv.Pattern.ID] = append(ix.ByPattern[cv.Pattern.ID], v)
		for ci := range cv.Cells {
			c := &cv.Cells[ci]
			e := &Entry{Variant: v, Offset: c.Offset, Cell: c, Hood: hoodOf(cv, c.Offset)}
			var overflow bool
			c.Materials.Each(func(m palette.Material) {
				if overflow {
					return
				}
				ix.add(m, e)
				overflow = ix.entries > opts.MaxEntries
			})
			if overflow {
				return nil, errs, &BuildError{Stage: "entries", Err: fmt.Errorf("more than %d key entries", opts.MaxEntries)}
			}
		}
	}
	return ix, errs, nil
}

func (ix *Index) add(m palette.Material, e *Entry) {
	props := e.Cell.Req.Props()
	key := palette.PropsKey(props)
	groups := ix.byMaterial[m]
	for gi := range groups {
		if palette.PropsKey(groups[gi].props) == key {
			groups[gi].entries = append(groups[gi].entries, e)
			ix.entries++
			return
		}
	}
	ix.byMaterial[m] = append(groups, group{props: props, entries: []*Entry{e}})
	ix.entries++
}
