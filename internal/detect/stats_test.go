package detect

import (
	"testing"

	"blockpatterns.dev/internal/strategy"
)

func TestSelector_ExploresInRotation(t *testing.T) {
	p := Policy{Default: strategy.AnchorFirst, Alpha: 0.5, ExploreEvery: 2, SwitchCooldown: 1 << 30}
	s := newSelector("p", "w", p)
	var got []strategy.Kind
	for i := 0; i < 6; i++ {
		k, _ := s.choose(p)
		got = append(got, k)
	}
	want := []strategy.Kind{
		strategy.AnchorFirst, strategy.ConstraintPropagation,
		strategy.AnchorFirst, strategy.VoxelHashVote,
		strategy.AnchorFirst, strategy.ConstraintPropagation,
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("choice %d=%v want %v (all %v)", i, got[i], want[i], got)
		}
	}
}

func TestSelector_SwitchesAfterCooldownWithHysteresis(t *testing.T) {
	p := Policy{Default: strategy.AnchorFirst, Alpha: 1, SwitchCooldown: 4, Hysteresis: 0.2}
	s := newSelector("p", "w", p)
	feed := func(k strategy.Kind, reads int) (bool, strategy.Kind) {
		s.attempts.Add(1)
		return s.record(p, k, sample{candidates: 1, reads: reads})
	}

	feed(strategy.AnchorFirst, 10)
	feed(strategy.VoxelHashVote, 9) // 10% cheaper: inside hysteresis
	if sw, _ := feed(strategy.AnchorFirst, 10); sw {
		t.Fatalf("switched before cooldown")
	}
	if sw, _ := feed(strategy.AnchorFirst, 10); sw {
		t.Fatalf("switched on a gain smaller than hysteresis")
	}
	sw, to := feed(strategy.ConstraintPropagation, 4)
	if !sw || to != strategy.ConstraintPropagation || s.Active() != strategy.ConstraintPropagation {
		t.Fatalf("expected switch to constraint propagation, got %v %v", sw, to)
	}
	if sw, _ := feed(strategy.AnchorFirst, 1); sw {
		t.Fatalf("switched again inside cooldown")
	}
}

func TestEWMA(t *testing.T) {
	var e ewma
	e.update(10, 0.5, true)
	e.update(20, 0.5, false)
	if got := e.Load(); got != 15 {
		t.Fatalf("ewma=%v want 15", got)
	}
}
