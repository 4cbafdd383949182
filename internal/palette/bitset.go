package palette

import "math/bits"

// Bitset is a fixed-width set of material ids.
type Bitset []uint64

func NewBitset(n int) Bitset { return make(Bitset, (n+63)/64) }

func (b Bitset) Set(m Material) {
	b[m>>6] |= 1 << (m & 63)
}

func (b Bitset) Has(m Material) bool {
	w := int(m >> 6)
	return w < len(b) && b[w]&(1<<(m&63)) != 0
}

func (b Bitset) Clear() {
	for i := range b {
		b[i] = 0
	}
}

// Or adds every member of o to b.
func (b Bitset) Or(o Bitset) {
	n := len(o)
	if n > len(b) {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		b[i] |= o[i]
	}
}

// ContainsAll reports whether b is a superset of o.
func (b Bitset) ContainsAll(o Bitset) bool {
	for i, w := range o {
		if w == 0 {
			continue
		}
		if i >= len(b) || b[i]&w != w {
			return false
		}
	}
	return true
}

func (b Bitset) Intersects(o Bitset) bool {
	n := len(o)
	if n > len(b) {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if b[i]&o[i] != 0 {
			return true
		}
	}
	return false
}

func (b Bitset) Count() int {
	n := 0
	for _, w := range b {
		n += bits.OnesCount64(w)
	}
	return n
}

func (b Bitset) Empty() bool {
	for _, w := range b {
		if w != 0 {
			return false
		}
	}
	return true
}

func (b Bitset) Equal(o Bitset) bool {
	if len(b) != len(o) {
		return false
	}
	for i := range b {
		if b[i] != o[i] {
			return false
		}
	}
	return true
}

func (b Bitset) Clone() Bitset {
	out := make(Bitset, len(b))
	copy(out, b)
	return out
}

// Each calls fn for every member in ascending order.
func (b Bitset) Each(fn func(Material)) {
	for i, w := range b {
		for w != 0 {
			t := bits.TrailingZeros64(w)
			fn(Material(i*64 + t))
			w &= w - 1
		}
	}
}
