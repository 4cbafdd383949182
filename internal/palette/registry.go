package palette

import (
	"fmt"
	"sort"
	"strings"
)

// Air is always material 0.
const Air = "minecraft:air"

const defaultNamespace = "minecraft"

// Material is a dense palette id.
type Material uint16

// MaxMaterials bounds the palette so ids fit a Material.
const MaxMaterials = 1 << 16

// Registry maps namespaced block ids to dense material ids and resolves block
// tags to material sets. It is immutable after construction.
type Registry struct {
	names []string
	index map[string]Material
	tags  map[string]Bitset
}

// NormalizeID lower-cases id and adds the default namespace when missing.
func NormalizeID(id string) string {
	s := strings.ToLower(strings.TrimSpace(id))
	if s == "" {
		return ""
	}
	if !strings.Contains(s, ":") {
		s = defaultNamespace + ":" + s
	}
	return s
}

// NewRegistry builds a palette: air first, the remaining ids sorted. Tag
// members must be known ids.
func NewRegistry(ids []string, tags map[string][]string) (*Registry, error) {
	seen := map[string]bool{}
	var rest []string
	for _, raw := range ids {
		id := NormalizeID(raw)
		if id == "" {
			return nil, fmt.Errorf("palette: empty block id")
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		if id != Air {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	names := append([]string{Air}, rest...)
	if len(names) > MaxMaterials {
		return nil, fmt.Errorf("palette: %d materials exceeds %d", len(names), MaxMaterials)
	}

	r := &Registry{
		names: names,
		index: make(map[string]Material, len(names)),
		tags:  make(map[string]Bitset, len(tags)),
	}
	for i, n := range names {
		r.index[n] = Material(i)
	}
	for rawTag, members := range tags {
		tag := NormalizeID(strings.TrimPrefix(rawTag, "#"))
		if tag == "" {
			return nil, fmt.Errorf("palette: empty tag name")
		}
		set := r.NewBitset()
		for _, m := range members {
			id, ok := r.Lookup(m)
			if !ok {
				return nil, fmt.Errorf("palette: tag #%s: unknown block %q", tag, m)
			}
			set.Set(id)
		}
		r.tags[tag] = set
	}
	return r, nil
}

func (r *Registry) Len() int { return len(r.names) }

func (r *Registry) Lookup(id string) (Material, bool) {
	m, ok := r.index[NormalizeID(id)]
	return m, ok
}

func (r *Registry) Name(m Material) string {
	if int(m) >= len(r.names) {
		return ""
	}
	return r.names[m]
}

// Names returns the palette in id order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Tag returns the member set of a tag. The returned set must not be mutated.
func (r *Registry) Tag(name string) (Bitset, bool) {
	b, ok := r.tags[NormalizeID(strings.TrimPrefix(name, "#"))]
	return b, ok
}

// TagNames returns the known tags, sorted.
func (r *Registry) TagNames() []string {
	out := make([]string, 0, len(r.tags))
	for k := range r.tags {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// NewBitset returns an empty set sized for this palette.
func (r *Registry) NewBitset() Bitset { return NewBitset(len(r.names)) }
