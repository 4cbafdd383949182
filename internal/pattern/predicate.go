package pattern

import (
	"fmt"
	"strings"

	"blockpatterns.dev/internal/palette"
)

// ParsePredicate parses a block predicate in command syntax:
//
//	minecraft:oak_log[axis=x]
//	stone
//	#minecraft:logs[axis=y]
//
// The namespace defaults to minecraft. Listed properties must match exactly;
// omitted ones are wildcards. Tag and block existence is checked later
// against the palette.
func ParsePredicate(input string) (*Requirement, error) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return nil, fmt.Errorf("empty block predicate")
	}
	kind := Exact
	work := raw
	if strings.HasPrefix(work, "#") {
		kind = Tag
		work = work[1:]
	}

	idPart := work
	var props []palette.Prop
	if i := strings.IndexByte(work, '['); i >= 0 {
		if !strings.HasSuffix(work, "]") {
			return nil, fmt.Errorf("unclosed properties list: %s", work)
		}
		idPart = work[:i]
		var err error
		props, err = parseProps(work[i+1 : len(work)-1])
		if err != nil {
			return nil, err
		}
	}

	id := strings.TrimSpace(idPart)
	if id == "" {
		return nil, fmt.Errorf("missing identifier before properties")
	}
	if err := checkID(id); err != nil {
		return nil, err
	}
	return NewRequirement(kind, id, props), nil
}

// MustParsePredicate panics on malformed input; for tests and static tables.
func MustParsePredicate(input string) *Requirement {
	r, err := ParsePredicate(input)
	if err != nil {
		panic(err)
	}
	return r
}

func checkID(id string) error {
	ns, path, found := strings.Cut(id, ":")
	if !found {
		ns, path = "minecraft", id
	}
	if ns == "" || path == "" {
		return fmt.Errorf("invalid namespaced id: %s", id)
	}
	for _, c := range ns {
		if !isIdentChar(c) && c != '.' {
			return fmt.Errorf("invalid namespaced id: %s", id)
		}
	}
	for _, c := range path {
		if !isIdentChar(c) && c != '/' && c != '.' {
			return fmt.Errorf("invalid namespaced id: %s", id)
		}
	}
	return nil
}

func parseProps(s string) ([]palette.Prop, error) {
	var out []palette.Prop
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	for _, pair := range strings.Split(s, ",") {
		p := strings.TrimSpace(pair)
		if p == "" {
			continue
		}
		eq := strings.IndexByte(p, '=')
		if eq <= 0 || eq == len(p)-1 {
			return nil, fmt.Errorf("bad property entry: %s", p)
		}
		k := strings.TrimSpace(p[:eq])
		v := strings.TrimSpace(p[eq+1:])
		if !identifier(k) {
			return nil, fmt.Errorf("invalid property key: %s", k)
		}
		if !identifier(v) {
			return nil, fmt.Errorf("invalid property value: %s", v)
		}
		out = append(out, palette.Prop{Name: k, Value: v})
	}
	return out, nil
}

func identifier(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if !isIdentChar(c) {
			return false
		}
	}
	return true
}

func isIdentChar(c rune) bool {
	return c == '_' || c == '-' || (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z')
}
