package transform

import (
	"strconv"

	"blockpatterns.dev/internal/voxel"
)

// orientationProperties are the blockstate property names whose meaning
// depends on orientation. Everything else (including waterlogged) is copied
// through unchanged.
var orientationProperties = map[string]bool{
	"facing":   true,
	"axis":     true,
	"rotation": true,
	"half":     true,
	"shape":    true,
	"hinge":    true,
	"open":     true,
	"type":     true,
	"powered":  true,
	"north":    true,
	"south":    true,
	"east":     true,
	"west":     true,
	"up":       true,
	"down":     true,

	"rail_shape":    true,
	"wall_post_bit": true,
}

// IsOrientationProperty reports whether name belongs to a remapped family.
func IsOrientationProperty(name string) bool { return orientationProperties[name] }

// direction names indexed like voxel.Faces: down, up, north, south, west, east.
var directionNames = [6]string{"down", "up", "north", "south", "west", "east"}

func directionIndex(name string) int {
	for i, n := range directionNames {
		if n == name {
			return i
		}
	}
	return -1
}

// dirTable[t][d] is the direction d is carried to by t.
var dirTable [Count][6]uint8

// sign rotation (16 steps, 0 = south, 4 = west, 8 = north, 12 = east).
var rotationSteps = map[string]int{"south": 0, "west": 4, "north": 8, "east": 12}

func init() {
	for t := 0; t < Count; t++ {
		for d, v := range voxel.Faces {
			out := Transform(t).Apply(v)
			for j, f := range voxel.Faces {
				if f == out {
					dirTable[t][d] = uint8(j)
				}
			}
		}
	}
}

// Direction maps a direction name (down/up/north/south/west/east).
func (t Transform) Direction(name string) (string, bool) {
	d := directionIndex(name)
	if d < 0 {
		return "", false
	}
	return directionNames[dirTable[t][d]], true
}

// ApplyProperty remaps one required blockstate property. Multi-face boolean
// properties (north, up, ...) change their name; the other families change
// their value. ok is false when the value cannot be expressed after the
// transform (for example a 16-step sign rotation on a tipped-over structure);
// callers drop such variants. Unknown properties and values pass through.
func (t Transform) ApplyProperty(name, value string) (string, string, bool) {
	if !orientationProperties[name] {
		return name, value, true
	}
	switch name {
	case "facing":
		if v, ok := t.Direction(value); ok {
			return name, v, true
		}
		return name, value, true
	case "axis":
		return name, t.axis(value), true
	case "rotation":
		v, ok := t.signRotation(value)
		return name, v, ok
	case "half":
		v, ok := t.vertical(value)
		return name, v, ok
	case "type":
		switch value {
		case "top", "bottom":
			v, ok := t.vertical(value)
			return name, v, ok
		case "left", "right":
			return name, t.hand(value), true
		}
		return name, value, true
	case "shape":
		return t.shape(value)
	case "rail_shape":
		v, ok := t.rail(value)
		return name, v, ok
	case "hinge":
		return name, t.hand(value), true
	case "north", "south", "east", "west", "up", "down":
		n, _ := t.Direction(name)
		return n, value, true
	}
	// open, powered, wall_post_bit: orientation-sensitive but value-invariant.
	return name, value, true
}

func (t Transform) axis(value string) string {
	var v voxel.Vec3
	switch value {
	case "x":
		v = voxel.Vec3{X: 1}
	case "y":
		v = voxel.Vec3{Y: 1}
	case "z":
		v = voxel.Vec3{Z: 1}
	default:
		return value
	}
	o := t.Apply(v)
	switch {
	case o.X != 0:
		return "x"
	case o.Y != 0:
		return "y"
	default:
		return "z"
	}
}

func (t Transform) signRotation(value string) (string, bool) {
	r, err := strconv.Atoi(value)
	if err != nil || r < 0 || r > 15 {
		return value, true
	}
	if !t.Upright() {
		return value, false
	}
	south, _ := t.Direction("south")
	rs := rotationSteps[south]
	if t.Mirrored() {
		return strconv.Itoa(((rs-r)%16 + 16) % 16), true
	}
	return strconv.Itoa((rs + r) % 16), true
}

// vertical handles top/bottom and upper/lower.
func (t Transform) vertical(value string) (string, bool) {
	var flipped string
	switch value {
	case "top":
		flipped = "bottom"
	case "bottom":
		flipped = "top"
	case "upper":
		flipped = "lower"
	case "lower":
		flipped = "upper"
	default:
		return value, true
	}
	switch elements[t].up {
	case 1:
		return value, true
	case -1:
		return flipped, true
	}
	return value, false
}

func (t Transform) hand(value string) string {
	if !t.swapsHandedness() {
		return value
	}
	switch value {
	case "left":
		return "right"
	case "right":
		return "left"
	}
	return value
}

var stairShapes = map[string][2]string{
	"inner_left":  {"inner_left", "inner_right"},
	"inner_right": {"inner_right", "inner_left"},
	"outer_left":  {"outer_left", "outer_right"},
	"outer_right": {"outer_right", "outer_left"},
}

func (t Transform) shape(value string) (string, string, bool) {
	if value == "straight" {
		return "shape", value, true
	}
	if s, ok := stairShapes[value]; ok {
		if t.swapsHandedness() {
			return "shape", s[1], true
		}
		return "shape", s[0], true
	}
	v, ok := t.rail(value)
	return "shape", v, ok
}

// rail remaps a rail shape and passes other values through.
func (t Transform) rail(value string) (string, bool) {
	if r, ok := t.railShape(value); ok {
		return r, true
	} else if r != "" {
		return value, false
	}
	return value, true
}

// railShape remaps rail shapes. It returns ("", false) for values that are
// not rail shapes and (value, false) when the rail would leave the ground.
func (t Transform) railShape(value string) (string, bool) {
	a, b, ascending, ok := parseRail(value)
	if !ok {
		return "", false
	}
	if !t.Upright() {
		return value, false
	}
	na, _ := t.Direction(a)
	if ascending {
		return "ascending_" + na, true
	}
	nb, _ := t.Direction(b)
	return railName(na, nb), true
}

func parseRail(v string) (a, b string, ascending bool, ok bool) {
	const asc = "ascending_"
	if len(v) > len(asc) && v[:len(asc)] == asc {
		d := v[len(asc):]
		if horizontal(d) {
			return d, "", true, true
		}
		return "", "", false, false
	}
	for i := 0; i < len(v); i++ {
		if v[i] != '_' {
			continue
		}
		a, b = v[:i], v[i+1:]
		if horizontal(a) && horizontal(b) && a != b {
			return a, b, false, true
		}
	}
	return "", "", false, false
}

func horizontal(d string) bool {
	return d == "north" || d == "south" || d == "east" || d == "west"
}

// railName orders the pair the way blockstates spell it: north/south first,
// and straight rails as north_south / east_west.
func railName(a, b string) string {
	rank := func(d string) int {
		switch d {
		case "north":
			return 0
		case "south":
			return 1
		case "east":
			return 2
		}
		return 3
	}
	if rank(b) < rank(a) {
		a, b = b, a
	}
	return a + "_" + b
}
