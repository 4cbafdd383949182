package pattern

import (
	"strings"

	"blockpatterns.dev/internal/palette"
	"blockpatterns.dev/internal/transform"
)

type Kind uint8

const (
	// Exact requires one specific block id.
	Exact Kind = iota
	// Tag requires membership in a block tag.
	Tag
)

func (k Kind) String() string {
	if k == Tag {
		return "tag"
	}
	return "exact"
}

// Requirement constrains one cell: a block id or tag plus the blockstate
// properties that must hold exactly. Properties that are not listed are
// wildcards. A Requirement is immutable.
type Requirement struct {
	kind        Kind
	name        string
	props       []palette.Prop
	orientation []string
}

// NewRequirement normalizes name and records which of props are
// orientation-sensitive. Later duplicates of a property name replace earlier
// ones in place.
func NewRequirement(kind Kind, name string, props []palette.Prop) *Requirement {
	r := &Requirement{kind: kind, name: palette.NormalizeID(strings.TrimPrefix(name, "#"))}
	for _, p := range props {
		replaced := false
		for i := range r.props {
			if r.props[i].Name == p.Name {
				r.props[i].Value = p.Value
				replaced = true
				break
			}
		}
		if !replaced {
			r.props = append(r.props, p)
		}
	}
	for _, p := range r.props {
		if transform.IsOrientationProperty(p.Name) {
			r.orientation = append(r.orientation, p.Name)
		}
	}
	return r
}

// Block is shorthand for an exact requirement.
func Block(name string, props ...palette.Prop) *Requirement {
	return NewRequirement(Exact, name, props)
}

// InTag is shorthand for a tag requirement.
func InTag(name string, props ...palette.Prop) *Requirement {
	return NewRequirement(Tag, name, props)
}

func (r *Requirement) Kind() Kind   { return r.kind }
func (r *Requirement) Name() string { return r.name }

// Props returns the required properties in declaration order. The slice is
// shared and must not be modified.
func (r *Requirement) Props() []palette.Prop { return r.props }

// Orientation returns the names of required properties that rotate or mirror.
func (r *Requirement) Orientation() []string { return r.orientation }

func (r *Requirement) HasOrientation() bool { return len(r.orientation) > 0 }

func (r *Requirement) Prop(name string) (string, bool) {
	for _, p := range r.props {
		if p.Name == name {
			return p.Value, true
		}
	}
	return "", false
}

// Transformed returns the requirement as seen after t. ok is false when a
// property cannot be expressed under t.
func (r *Requirement) Transformed(t transform.Transform) (*Requirement, bool) {
	if len(r.orientation) == 0 {
		return r, true
	}
	props := make([]palette.Prop, len(r.props))
	for i, p := range r.props {
		n, v, ok := t.ApplyProperty(p.Name, p.Value)
		if !ok {
			return nil, false
		}
		props[i] = palette.Prop{Name: n, Value: v}
	}
	return NewRequirement(r.kind, r.name, props), true
}

// Key is a canonical form: equal keys mean equal requirements.
func (r *Requirement) Key() string {
	var sb strings.Builder
	if r.kind == Tag {
		sb.WriteByte('#')
	}
	sb.WriteString(r.name)
	if len(r.props) > 0 {
		sb.WriteByte('[')
		sb.WriteString(palette.PropsKey(r.props))
		sb.WriteByte(']')
	}
	return sb.String()
}

// String renders the predicate in bracket syntax, properties in declared order.
func (r *Requirement) String() string {
	var sb strings.Builder
	if r.kind == Tag {
		sb.WriteByte('#')
	}
	sb.WriteString(r.name)
	if len(r.props) > 0 {
		sb.WriteByte('[')
		for i, p := range r.props {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(p.Name)
			sb.WriteByte('=')
			sb.WriteString(p.Value)
		}
		sb.WriteByte(']')
	}
	return sb.String()
}
