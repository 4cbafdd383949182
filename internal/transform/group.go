// Package transform implements the 48-element cube symmetry group used to
// place patterns in the world: the 24 proper rotations, each optionally
// composed with a mirror. Composition and inversion are table lookups.
package transform

import (
	"fmt"

	"blockpatterns.dev/internal/voxel"
)

// Rotations is the number of proper cube rotations.
const Rotations = 24

// Count is the number of distinct transforms (rotations x {plain, mirrored}).
const Count = 2 * Rotations

// Transform identifies one group element. Ids 0..23 are rotations; 24..47 are
// rotation(id-24) applied after MirrorX.
type Transform uint8

// Identity leaves coordinates and properties unchanged.
const Identity Transform = 0

// Mirror selects an optional reflection applied before the rotation.
type Mirror uint8

const (
	MirrorNone Mirror = iota
	// MirrorX reflects across the X axis: Z is negated, north and south swap.
	MirrorX
	// MirrorY flips the structure upside down.
	MirrorY
	// MirrorZ reflects across the Z axis: X is negated, east and west swap.
	MirrorZ
)

var mirrorNames = [...]string{"none", "x", "y", "z"}

func (m Mirror) String() string {
	if int(m) < len(mirrorNames) {
		return mirrorNames[m]
	}
	return fmt.Sprintf("mirror(%d)", m)
}

// ParseMirror accepts "none", "x", "y", "z" (case-sensitive lower).
func ParseMirror(s string) (Mirror, error) {
	for i, n := range mirrorNames {
		if n == s {
			return Mirror(i), nil
		}
	}
	return MirrorNone, fmt.Errorf("unknown mirror %q", s)
}

// AllMirrors lists every mirror in enumeration order.
var AllMirrors = []Mirror{MirrorNone, MirrorX, MirrorY, MirrorZ}

// matrix is a signed permutation matrix stored row-major.
type matrix [3][3]int

func (m matrix) mul(o matrix) matrix {
	var out matrix
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			s := 0
			for k := 0; k < 3; k++ {
				s += m[i][k] * o[k][j]
			}
			out[i][j] = s
		}
	}
	return out
}

func (m matrix) det() int {
	return m[0][0]*(m[1][1]*m[2][2]-m[1][2]*m[2][1]) -
		m[0][1]*(m[1][0]*m[2][2]-m[1][2]*m[2][0]) +
		m[0][2]*(m[1][0]*m[2][1]-m[1][1]*m[2][0])
}

func (m matrix) apply(v voxel.Vec3) voxel.Vec3 {
	return voxel.Vec3{
		X: m[0][0]*v.X + m[0][1]*v.Y + m[0][2]*v.Z,
		Y: m[1][0]*v.X + m[1][1]*v.Y + m[1][2]*v.Z,
		Z: m[2][0]*v.X + m[2][1]*v.Y + m[2][2]*v.Z,
	}
}

// element is the precomputed form of one transform. Applying it is a signed
// permutation: out[i] = sign[i] * in[perm[i]].
type element struct {
	m    matrix
	perm [3]uint8
	sign [3]int8
	det  int8
	// up is where +Y ends up: +1 (upright), -1 (upside down), 0 (on its side).
	up int8
}

var (
	elements [Count]element
	compose  [Count][Count]Transform
	inverse  [Count]Transform
)

var (
	identity = matrix{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	// yaw is one quarter turn about Y: (x, z) -> (z, -x).
	yaw = matrix{{0, 0, 1}, {0, 1, 0}, {-1, 0, 0}}
	// tilts map +Y to +Y, -Y, +X, -X, +Z, -Z.
	tilts = [6]matrix{
		identity,
		{{1, 0, 0}, {0, -1, 0}, {0, 0, -1}},
		{{0, 1, 0}, {-1, 0, 0}, {0, 0, 1}},
		{{0, -1, 0}, {1, 0, 0}, {0, 0, 1}},
		{{1, 0, 0}, {0, 0, -1}, {0, 1, 0}},
		{{1, 0, 0}, {0, 0, 1}, {0, -1, 0}},
	}
	mirrorMatrices = [4]matrix{
		identity,
		{{1, 0, 0}, {0, 1, 0}, {0, 0, -1}},
		{{1, 0, 0}, {0, -1, 0}, {0, 0, 1}},
		{{-1, 0, 0}, {0, 1, 0}, {0, 0, 1}},
	}
)

func init() {
	// Rotation id = tilt*4 + quarter turns, so ids 0..3 are plain yaw turns.
	for t := 0; t < 6; t++ {
		y := identity
		for q := 0; q < 4; q++ {
			id := t*4 + q
			elements[id] = newElement(tilts[t].mul(y))
			elements[id+Rotations] = newElement(tilts[t].mul(y).mul(mirrorMatrices[MirrorX]))
			y = yaw.mul(y)
		}
	}
	for a := 0; a < Count; a++ {
		for b := 0; b < Count; b++ {
			c, ok := lookup(elements[a].m.mul(elements[b].m))
			if !ok {
				panic("transform: composition escaped the group")
			}
			compose[a][b] = c
		}
		for b := 0; b < Count; b++ {
			if compose[a][b] == Identity {
				inverse[a] = Transform(b)
				break
			}
		}
	}
}

func newElement(m matrix) element {
	e := element{m: m, det: int8(m.det())}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if m[i][j] != 0 {
				e.perm[i] = uint8(j)
				e.sign[i] = int8(m[i][j])
			}
		}
	}
	e.up = int8(m[1][1])
	return e
}

func lookup(m matrix) (Transform, bool) {
	for i := range elements {
		if elements[i].m == m {
			return Transform(i), true
		}
	}
	return 0, false
}

// For returns the transform for rotation id 0..23 applied after mirror.
// Different (rotation, mirror) pairs can name the same element: a Y or Z
// mirror is an X mirror followed by a rotation.
func For(rotation int, mirror Mirror) (Transform, error) {
	if rotation < 0 || rotation >= Rotations {
		return 0, fmt.Errorf("rotation %d out of range [0,%d)", rotation, Rotations)
	}
	if int(mirror) >= len(mirrorMatrices) {
		return 0, fmt.Errorf("unknown mirror %d", mirror)
	}
	t, ok := lookup(elements[rotation].m.mul(mirrorMatrices[mirror]))
	if !ok {
		return 0, fmt.Errorf("rotation %d with mirror %s is not a cube symmetry", rotation, mirror)
	}
	return t, nil
}

// MustFor is For for static tables and tests.
func MustFor(rotation int, mirror Mirror) Transform {
	t, err := For(rotation, mirror)
	if err != nil {
		panic(err)
	}
	return t
}

// All returns every transform in id order.
func All() []Transform {
	out := make([]Transform, Count)
	for i := range out {
		out[i] = Transform(i)
	}
	return out
}

func (t Transform) Valid() bool { return int(t) < Count }

// Apply maps an offset through the transform.
func (t Transform) Apply(v voxel.Vec3) voxel.Vec3 {
	e := &elements[t]
	in := [3]int{v.X, v.Y, v.Z}
	return voxel.Vec3{
		X: int(e.sign[0]) * in[e.perm[0]],
		Y: int(e.sign[1]) * in[e.perm[1]],
		Z: int(e.sign[2]) * in[e.perm[2]],
	}
}

// Then returns the transform equivalent to applying t first and o second.
func (t Transform) Then(o Transform) Transform { return compose[o][t] }

// Compose returns t ∘ o: o is applied first.
func (t Transform) Compose(o Transform) Transform { return compose[t][o] }

func (t Transform) Inverse() Transform { return inverse[t] }

// Mirrored reports whether the transform reverses handedness.
func (t Transform) Mirrored() bool { return elements[t].det < 0 }

// Rotation is the proper rotation component (the X mirror removed).
func (t Transform) Rotation() int { return int(t) % Rotations }

// Upright reports whether +Y stays +Y.
func (t Transform) Upright() bool { return elements[t].up == 1 }

// Matrix returns the row-major signed permutation matrix.
func (t Transform) Matrix() [3][3]int { return elements[t].m }

func (t Transform) String() string {
	if t.Mirrored() {
		return fmt.Sprintf("r%02dx", t.Rotation())
	}
	return fmt.Sprintf("r%02d", t.Rotation())
}

// swapsHandedness reports whether left/right labels flip when viewed from
// above: a reflection, or a proper rotation that turns the structure upside
// down, but not both.
func (t Transform) swapsHandedness() bool {
	e := &elements[t]
	return (e.det < 0) != (e.up == -1)
}
