package palette

import "testing"

func TestNewRegistry_AirFirstAndSorted(t *testing.T) {
	r, err := NewRegistry([]string{"stone", "minecraft:gold_block", "AIR", "oak_log"}, map[string][]string{
		"#minecraft:logs": {"oak_log"},
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	want := []string{Air, "minecraft:gold_block", "minecraft:oak_log", "minecraft:stone"}
	got := r.Names()
	if len(got) != len(want) {
		t.Fatalf("names=%v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("names[%d]=%s want %s", i, got[i], want[i])
		}
	}
	logs, ok := r.Tag("logs")
	if !ok {
		t.Fatalf("expected logs tag")
	}
	oak, _ := r.Lookup("minecraft:oak_log")
	if !logs.Has(oak) || logs.Count() != 1 {
		t.Fatalf("logs tag members wrong")
	}
}

func TestNewRegistry_UnknownTagMember(t *testing.T) {
	if _, err := NewRegistry([]string{"stone"}, map[string][]string{"logs": {"oak_log"}}); err == nil {
		t.Fatalf("expected error for unknown tag member")
	}
}

func TestBitset_SupersetAndIntersect(t *testing.T) {
	a := NewBitset(130)
	b := NewBitset(130)
	a.Set(1)
	a.Set(64)
	a.Set(129)
	b.Set(64)
	if !a.ContainsAll(b) {
		t.Fatalf("a should contain b")
	}
	b.Set(2)
	if a.ContainsAll(b) {
		t.Fatalf("a should not contain b after adding 2")
	}
	if !a.Intersects(b) {
		t.Fatalf("a and b share 64")
	}
	var got []Material
	a.Each(func(m Material) { got = append(got, m) })
	if len(got) != 3 || got[0] != 1 || got[1] != 64 || got[2] != 129 {
		t.Fatalf("Each=%v", got)
	}
	c := a.Clone()
	c.Clear()
	if !c.Empty() || a.Empty() {
		t.Fatalf("clone must be independent")
	}
}

func TestPropsKey_Sorted(t *testing.T) {
	got := PropsKey([]Prop{{Name: "half", Value: "top"}, {Name: "facing", Value: "north"}})
	if got != "facing=north,half=top" {
		t.Fatalf("PropsKey=%q", got)
	}
}
