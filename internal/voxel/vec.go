package voxel

import (
	"encoding/json"
	"strconv"
)

// SectionSize is the edge length of a world section (palette granularity).
const SectionSize = 16

type Vec3 struct {
	X int
	Y int
	Z int
}

func (v Vec3) Add(o Vec3) Vec3 { return Vec3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z} }
func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z} }

// Less orders by X, then Y, then Z.
func (v Vec3) Less(o Vec3) bool {
	if v.X != o.X {
		return v.X < o.X
	}
	if v.Y != o.Y {
		return v.Y < o.Y
	}
	return v.Z < o.Z
}

func (v Vec3) String() string {
	return "(" + strconv.Itoa(v.X) + "," + strconv.Itoa(v.Y) + "," + strconv.Itoa(v.Z) + ")"
}

func (v Vec3) Array() [3]int { return [3]int{v.X, v.Y, v.Z} }

func FromArray(a [3]int) Vec3 { return Vec3{X: a[0], Y: a[1], Z: a[2]} }

// Vectors travel as [x,y,z] on the wire and in logs.
func (v Vec3) MarshalJSON() ([]byte, error) { return json.Marshal(v.Array()) }

func (v *Vec3) UnmarshalJSON(b []byte) error {
	var a [3]int
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	*v = FromArray(a)
	return nil
}

// Face neighbour offsets in a fixed order: down, up, north, south, west, east.
var Faces = [6]Vec3{
	{X: 0, Y: -1, Z: 0},
	{X: 0, Y: 1, Z: 0},
	{X: 0, Y: 0, Z: -1},
	{X: 0, Y: 0, Z: 1},
	{X: -1, Y: 0, Z: 0},
	{X: 1, Y: 0, Z: 0},
}

// AABB is an inclusive axis-aligned box.
type AABB struct {
	Min Vec3 `json:"min"`
	Max Vec3 `json:"max"`
}

// BoxOf returns the smallest box containing all points. ok is false for an
// empty input.
func BoxOf(points []Vec3) (box AABB, ok bool) {
	for i, p := range points {
		if i == 0 {
			box = AABB{Min: p, Max: p}
			continue
		}
		box = box.Include(p)
	}
	return box, len(points) > 0
}

func (b AABB) Include(p Vec3) AABB {
	if p.X < b.Min.X {
		b.Min.X = p.X
	}
	if p.Y < b.Min.Y {
		b.Min.Y = p.Y
	}
	if p.Z < b.Min.Z {
		b.Min.Z = p.Z
	}
	if p.X > b.Max.X {
		b.Max.X = p.X
	}
	if p.Y > b.Max.Y {
		b.Max.Y = p.Y
	}
	if p.Z > b.Max.Z {
		b.Max.Z = p.Z
	}
	return b
}

func (b AABB) Translate(d Vec3) AABB {
	return AABB{Min: b.Min.Add(d), Max: b.Max.Add(d)}
}

func (b AABB) Contains(p Vec3) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
		p.Z >= b.Min.Z && p.Z <= b.Max.Z
}

func (b AABB) Size() Vec3 {
	return Vec3{X: b.Max.X - b.Min.X + 1, Y: b.Max.Y - b.Min.Y + 1, Z: b.Max.Z - b.Min.Z + 1}
}

func (b AABB) Volume() int {
	s := b.Size()
	return s.X * s.Y * s.Z
}

// Corners returns the 8 corners; a box lies inside a convex region iff all
// corners do.
func (b AABB) Corners() [8]Vec3 {
	return [8]Vec3{
		{X: b.Min.X, Y: b.Min.Y, Z: b.Min.Z},
		{X: b.Max.X, Y: b.Min.Y, Z: b.Min.Z},
		{X: b.Min.X, Y: b.Max.Y, Z: b.Min.Z},
		{X: b.Max.X, Y: b.Max.Y, Z: b.Min.Z},
		{X: b.Min.X, Y: b.Min.Y, Z: b.Max.Z},
		{X: b.Max.X, Y: b.Min.Y, Z: b.Max.Z},
		{X: b.Min.X, Y: b.Max.Y, Z: b.Max.Z},
		{X: b.Max.X, Y: b.Max.Y, Z: b.Max.Z},
	}
}

// SectionPos addresses a 16x16x16 world section.
type SectionPos struct {
	X int
	Y int
	Z int
}

func SectionOf(p Vec3) SectionPos {
	return SectionPos{
		X: FloorDiv(p.X, SectionSize),
		Y: FloorDiv(p.Y, SectionSize),
		Z: FloorDiv(p.Z, SectionSize),
	}
}

// Local returns p's coordinates inside its section.
func Local(p Vec3) (x, y, z int) {
	return Mod(p.X, SectionSize), Mod(p.Y, SectionSize), Mod(p.Z, SectionSize)
}

// Sections returns the inclusive range of sections overlapped by b.
func (b AABB) Sections() (lo, hi SectionPos) {
	return SectionOf(b.Min), SectionOf(b.Max)
}
