// Package detect turns block-change triggers into verified pattern matches.
// It picks a candidate strategy per (pattern, world) from observed cost,
// runs candidates through the fast-fail filter and verification, and hands
// matches to a sink.
package detect

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"log"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"blockpatterns.dev/internal/compiler"
	"blockpatterns.dev/internal/filter"
	"blockpatterns.dev/internal/index"
	"blockpatterns.dev/internal/metrics"
	"blockpatterns.dev/internal/palette"
	"blockpatterns.dev/internal/pattern"
	"blockpatterns.dev/internal/strategy"
	"blockpatterns.dev/internal/tuning"
	"blockpatterns.dev/internal/verify"
)

type Config struct {
	Registry *palette.Registry
	// Rarity ranks cells during compilation; nil uses compiler.DefaultRarity.
	Rarity  compiler.Rarity
	Worlds  Worlds
	Sink    Sink
	Engine  tuning.Engine
	Index   tuning.Index
	Metrics *metrics.Metrics
	Logger  *log.Logger
	// Now stamps matches; defaults to time.Now.
	Now func() time.Time
}

type Engine struct {
	reg     *palette.Registry
	worlds  Worlds
	sink    Sink
	policy  Policy
	vote    float64
	opts    index.Options
	metrics *metrics.Metrics
	log     *log.Logger
	now     func() time.Time

	holder    *index.Holder
	selectors sync.Map // selectorKey -> *selector
	seq       atomic.Uint64
	pool      sync.Pool
}

type selectorKey struct {
	pattern string
	world   string
}

type scratch struct {
	entries []*index.Entry
	cands   []strategy.Candidate
	bits    palette.Bitset
	strat   *strategy.Scratch
	cw      countingWorld
}

func New(cfg Config) (*Engine, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("detect: nil registry")
	}
	if cfg.Worlds == nil {
		return nil, fmt.Errorf("detect: nil worlds")
	}
	def := cfg.Engine.DefaultStrategy
	if def == "" {
		def = strategy.AnchorFirst.String()
	}
	kind, err := strategy.ParseKind(def)
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}
	alpha := cfg.Engine.EWMAAlpha
	if alpha <= 0 || alpha > 1 {
		alpha = 0.1
	}
	e := &Engine{
		reg:    cfg.Registry,
		worlds: cfg.Worlds,
		sink:   cfg.Sink,
		policy: Policy{
			Default:        kind,
			Alpha:          alpha,
			ExploreEvery:   uint64(max(cfg.Engine.ExploreEvery, 0)),
			SwitchCooldown: uint64(max(cfg.Engine.SwitchCooldown, 0)),
			Hysteresis:     cfg.Engine.Hysteresis,
		},
		vote: cfg.Engine.VoteThreshold,
		opts: index.Options{
			Compiler: compiler.Options{
				Rarity:               cfg.Rarity,
				AnchorCap:            cfg.Index.AnchorCap,
				MaxAnchorComparisons: cfg.Index.MaxAnchorComparisons,
			},
			Workers:    cfg.Index.Workers,
			MaxEntries: cfg.Index.MaxEntries,
		},
		metrics: cfg.Metrics,
		log:     cfg.Logger,
		now:     cfg.Now,
		holder:  index.NewHolder(cfg.Registry),
	}
	if e.sink == nil {
		e.sink = discard{}
	}
	if e.log == nil {
		e.log = log.New(io.Discard, "", 0)
	}
	if e.now == nil {
		e.now = time.Now
	}
	e.pool.New = func() any {
		return &scratch{
			entries: make([]*index.Entry, 0, 64),
			cands:   make([]strategy.Candidate, 0, 64),
			bits:    e.reg.NewBitset(),
			strat:   strategy.NewScratch(),
		}
	}
	return e, nil
}

func (e *Engine) Registry() *palette.Registry { return e.reg }

// Index returns the active snapshot.
func (e *Engine) Index() *index.Index { return e.holder.Load() }

// Reload compiles patterns into a new index and swaps it in. Patterns that
// fail to compile are logged and left out; a failed build keeps the current
// index.
func (e *Engine) Reload(ctx context.Context, patterns []*pattern.Pattern) ([]error, error) {
	start := time.Now()
	errs, err := e.holder.Rebuild(ctx, e.reg, patterns, e.opts)
	for _, ce := range errs {
		e.log.Printf("pattern excluded: %v", ce)
	}
	ix := e.holder.Load()
	if err != nil {
		e.log.Printf("index rebuild failed, keeping v%d: %v", ix.Version, err)
	} else {
		e.log.Printf("index v%d: %d patterns, %d variants, %d entries in %s",
			ix.Version, len(ix.Patterns), len(ix.Variants), ix.Entries(), time.Since(start).Round(time.Microsecond))
	}
	e.metrics.Rebuild(err == nil, time.Since(start).Seconds(), len(errs), len(ix.Variants), ix.Entries(), ix.Version)
	return errs, err
}

// Handle processes one trigger and returns the matches it produced, which
// have also been handed to the sink. It never blocks on I/O of its own.
func (e *Engine) Handle(t Trigger) []verify.Match {
	start := time.Now()
	ix := e.holder.Load()
	w, ok := e.worlds.World(t.World)
	if !ok {
		e.metrics.Trigger(t.World, "unknown_world")
		return nil
	}
	var st palette.BlockState
	if t.State != nil {
		st = *t.State
	} else {
		var err error
		if st, err = w.BlockAt(t.Pos); err != nil {
			e.metrics.Trigger(t.World, "unreadable")
			return nil
		}
	}

	sc := e.pool.Get().(*scratch)
	defer e.pool.Put(sc)
	sc.entries = ix.Lookup(st, sc.entries[:0])
	if len(sc.entries) == 0 {
		e.metrics.Trigger(t.World, "no_entries")
		return nil
	}
	if n := (ix.Registry.Len() + 63) / 64; len(sc.bits) != n {
		sc.bits = ix.Registry.NewBitset()
	}
	// Variants of one pattern are contiguous in index order.
	slices.SortStableFunc(sc.entries, func(a, b *index.Entry) int {
		return cmp.Compare(a.Variant.Seq, b.Variant.Seq)
	})

	var out []verify.Match
	for i := 0; i < len(sc.entries); {
		p := sc.entries[i].Variant.Pattern
		j := i + 1
		for j < len(sc.entries) && sc.entries[j].Variant.Pattern == p {
			j++
		}
		if p.AllowsWorld(t.World) {
			out = e.attempt(ix, w, t, st, sc.entries[i:j], sc, out)
		}
		i = j
	}
	e.metrics.Trigger(t.World, "handled")
	e.metrics.HandleSeconds(time.Since(start).Seconds())
	return out
}

func (e *Engine) attempt(ix *index.Index, w World, t Trigger, st palette.BlockState, entries []*index.Entry, sc *scratch, out []verify.Match) []verify.Match {
	p := entries[0].Variant.Pattern
	sel := e.selector(p.ID, t.World)
	kind, _ := sel.choose(e.policy)

	sc.cw = countingWorld{w: w}
	in := strategy.Input{
		World:         &sc.cw,
		Pos:           t.Pos,
		State:         st,
		Entries:       entries,
		VoteThreshold: e.vote,
	}
	sc.cands = strategy.Generate(kind, in, sc.strat, sc.cands[:0])

	smp := sample{candidates: len(sc.cands)}
	vopts := verify.Options{KnownPos: t.Pos, KnownState: &st, Registry: ix.Registry}
	for _, c := range sc.cands {
		v := c.Entry.Variant
		r := filter.Check(w, t.World, c.Origin, v, sc.bits)
		e.metrics.Filter(r.String())
		if r != filter.Pass {
			if r.Inconclusive() {
				smp.inconclusive++
			}
			continue
		}
		m, outcome := verify.Verify(&sc.cw, t.World, c.Origin, v, vopts)
		e.metrics.Verify(outcome.String())
		switch outcome {
		case verify.Inconclusive:
			smp.inconclusive++
		case verify.Matched:
			m.Seq = e.seq.Add(1)
			m.At = e.now()
			m.Strategy = kind.String()
			e.sink.Emit(m)
			e.metrics.Match(p.ID)
			smp.hits++
			out = append(out, m)
		}
	}
	smp.reads = sc.cw.reads
	e.metrics.Candidates(kind.String(), smp.candidates)
	e.metrics.BlockReads(kind.String(), smp.reads)

	if switched, to := sel.record(e.policy, kind, smp); switched {
		e.log.Printf("pattern %s in %s: strategy -> %s", p.ID, t.World, to)
		e.metrics.StrategySwitch(to.String())
		e.metrics.ActiveStrategy(p.ID, t.World, int(to))
	}
	return out
}

func (e *Engine) selector(patternID, world string) *selector {
	k := selectorKey{pattern: patternID, world: world}
	if s, ok := e.selectors.Load(k); ok {
		return s.(*selector)
	}
	s, _ := e.selectors.LoadOrStore(k, newSelector(patternID, world, e.policy))
	return s.(*selector)
}

// Stats returns a snapshot of every (pattern, world) selector, sorted.
func (e *Engine) Stats() []StatsSnapshot {
	var out []StatsSnapshot
	e.selectors.Range(func(_, v any) bool {
		out = append(out, v.(*selector).snapshot())
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Pattern != out[j].Pattern {
			return out[i].Pattern < out[j].Pattern
		}
		return out[i].World < out[j].World
	})
	return out
}
