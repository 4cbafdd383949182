package voxel

import "testing"

func TestSectionOf_NegativeCoordinates(t *testing.T) {
	cases := []struct {
		in   Vec3
		want SectionPos
	}{
		{in: Vec3{X: 0, Y: 0, Z: 0}, want: SectionPos{}},
		{in: Vec3{X: 15, Y: 15, Z: 15}, want: SectionPos{}},
		{in: Vec3{X: 16, Y: 64, Z: -1}, want: SectionPos{X: 1, Y: 4, Z: -1}},
		{in: Vec3{X: -16, Y: -17, Z: -32}, want: SectionPos{X: -1, Y: -2, Z: -2}},
	}
	for _, c := range cases {
		if got := SectionOf(c.in); got != c.want {
			t.Fatalf("SectionOf(%v)=%v want %v", c.in, got, c.want)
		}
	}
	x, y, z := Local(Vec3{X: -1, Y: 17, Z: -16})
	if x != 15 || y != 1 || z != 0 {
		t.Fatalf("Local=(%d,%d,%d)", x, y, z)
	}
}

func TestBoxOf(t *testing.T) {
	box, ok := BoxOf([]Vec3{{X: 1, Y: 2, Z: 3}, {X: -1, Y: 5, Z: 0}, {X: 0, Y: 0, Z: 4}})
	if !ok {
		t.Fatalf("expected box")
	}
	want := AABB{Min: Vec3{X: -1, Y: 0, Z: 0}, Max: Vec3{X: 1, Y: 5, Z: 4}}
	if box != want {
		t.Fatalf("box=%v want %v", box, want)
	}
	if box.Volume() != 3*6*5 {
		t.Fatalf("volume=%d", box.Volume())
	}
	if _, ok := BoxOf(nil); ok {
		t.Fatalf("empty input should not produce a box")
	}
	lo, hi := AABB{Min: Vec3{X: -1, Y: 60, Z: 0}, Max: Vec3{X: 16, Y: 64, Z: 3}}.Sections()
	if lo != (SectionPos{X: -1, Y: 3, Z: 0}) || hi != (SectionPos{X: 1, Y: 4, Z: 0}) {
		t.Fatalf("sections lo=%v hi=%v", lo, hi)
	}
}
