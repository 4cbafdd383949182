package detect

import (
	"math"
	"sync/atomic"

	"blockpatterns.dev/internal/strategy"
)

// minHitRate keeps cost-per-hit finite for patterns that rarely match.
const minHitRate = 1e-3

// ewma is a float64 moving average updated with relaxed atomics; concurrent
// updates may overwrite each other.
type ewma struct{ bits atomic.Uint64 }

func (e *ewma) Load() float64 { return math.Float64frombits(e.bits.Load()) }

func (e *ewma) update(x, alpha float64, first bool) {
	if first {
		e.bits.Store(math.Float64bits(x))
		return
	}
	old := e.Load()
	e.bits.Store(math.Float64bits(old + alpha*(x-old)))
}

// StrategyStats tracks one strategy for one (pattern, world).
type StrategyStats struct {
	Candidates ewma
	Cost       ewma // block reads per attempt
	HitRate    ewma

	attempts     atomic.Uint64
	inconclusive atomic.Uint64
}

func (s *StrategyStats) Attempts() uint64     { return s.attempts.Load() }
func (s *StrategyStats) Inconclusive() uint64 { return s.inconclusive.Load() }

func (s *StrategyStats) costPerHit() float64 {
	return s.Cost.Load() / math.Max(s.HitRate.Load(), minHitRate)
}

// Policy controls strategy selection.
type Policy struct {
	Default        strategy.Kind
	Alpha          float64
	ExploreEvery   uint64
	SwitchCooldown uint64
	Hysteresis     float64
}

type sample struct {
	candidates   int
	reads        int
	hits         int
	inconclusive int
}

type selector struct {
	pattern string
	world   string

	stats      [strategy.NumKinds]StrategyStats
	active     atomic.Uint32
	attempts   atomic.Uint64
	lastSwitch atomic.Uint64
}

func newSelector(pattern, world string, p Policy) *selector {
	s := &selector{pattern: pattern, world: world}
	s.active.Store(uint32(p.Default))
	return s
}

func (s *selector) Active() strategy.Kind { return strategy.Kind(s.active.Load()) }

// choose returns the active strategy, or every ExploreEvery attempts one of
// the others in rotation so their stats stay current.
func (s *selector) choose(p Policy) (strategy.Kind, bool) {
	n := s.attempts.Add(1)
	active := s.Active()
	if p.ExploreEvery == 0 || n%p.ExploreEvery != 0 {
		return active, false
	}
	step := (n/p.ExploreEvery)%(strategy.NumKinds-1) + 1
	return strategy.Kind((uint64(active) + step) % strategy.NumKinds), true
}

// record folds one attempt into the stats of k and reports a strategy switch.
func (s *selector) record(p Policy, k strategy.Kind, smp sample) (bool, strategy.Kind) {
	st := &s.stats[k]
	first := st.attempts.Add(1) == 1
	st.Candidates.update(float64(smp.candidates), p.Alpha, first)
	st.Cost.update(float64(smp.reads), p.Alpha, first)
	hit := 0.0
	if smp.hits > 0 {
		hit = 1
	}
	st.HitRate.update(hit, p.Alpha, first)
	if smp.inconclusive > 0 {
		st.inconclusive.Add(uint64(smp.inconclusive))
	}
	return s.maybeSwitch(p)
}

func (s *selector) maybeSwitch(p Policy) (bool, strategy.Kind) {
	n := s.attempts.Load()
	last := s.lastSwitch.Load()
	if n-last < p.SwitchCooldown {
		return false, 0
	}
	active := s.Active()
	if s.stats[active].Attempts() == 0 {
		return false, 0
	}
	cur := s.stats[active].costPerHit()
	best, bestScore := active, cur
	for k := range s.stats {
		if strategy.Kind(k) == active || s.stats[k].Attempts() == 0 {
			continue
		}
		if sc := s.stats[k].costPerHit(); sc < bestScore {
			best, bestScore = strategy.Kind(k), sc
		}
	}
	if best == active || bestScore >= cur*(1-p.Hysteresis) {
		return false, 0
	}
	if !s.active.CompareAndSwap(uint32(active), uint32(best)) {
		return false, 0
	}
	s.lastSwitch.Store(n)
	return true, best
}

// KindStats is a point-in-time copy of one strategy's stats.
type KindStats struct {
	Strategy     string  `json:"strategy"`
	Candidates   float64 `json:"ewma_candidates"`
	Cost         float64 `json:"ewma_cost"`
	HitRate      float64 `json:"ewma_hit_rate"`
	Attempts     uint64  `json:"attempts"`
	Inconclusive uint64  `json:"inconclusive"`
}

type StatsSnapshot struct {
	Pattern    string      `json:"pattern"`
	World      string      `json:"world"`
	Active     string      `json:"active"`
	Attempts   uint64      `json:"attempts"`
	Strategies []KindStats `json:"strategies"`
}

func (s *selector) snapshot() StatsSnapshot {
	out := StatsSnapshot{
		Pattern:  s.pattern,
		World:    s.world,
		Active:   s.Active().String(),
		Attempts: s.attempts.Load(),
	}
	for _, k := range strategy.Kinds() {
		st := &s.stats[k]
		out.Strategies = append(out.Strategies, KindStats{
			Strategy:     k.String(),
			Candidates:   st.Candidates.Load(),
			Cost:         st.Cost.Load(),
			HitRate:      st.HitRate.Load(),
			Attempts:     st.Attempts(),
			Inconclusive: st.Inconclusive(),
		})
	}
	return out
}
