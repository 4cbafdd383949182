package palette

import (
	"sort"
	"strings"
)

// Prop is one blockstate property.
type Prop struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// BlockState is what the world reports for one coordinate. Props are owned by
// the reporter and must be treated as read-only.
type BlockState struct {
	Material Material
	Props    []Prop
}

func (s BlockState) Prop(name string) (string, bool) {
	for _, p := range s.Props {
		if p.Name == name {
			return p.Value, true
		}
	}
	return "", false
}

// PropsKey deterministically encodes properties as "k1=v1,k2=v2" with keys
// sorted.
func PropsKey(props []Prop) string {
	if len(props) == 0 {
		return ""
	}
	sorted := make([]Prop, len(props))
	copy(sorted, props)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	var sb strings.Builder
	for i, p := range sorted {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(p.Name)
		sb.WriteByte('=')
		sb.WriteString(p.Value)
	}
	return sb.String()
}

// PropsFromMap converts a map into props sorted by name.
func PropsFromMap(m map[string]string) []Prop {
	if len(m) == 0 {
		return nil
	}
	out := make([]Prop, 0, len(m))
	for k, v := range m {
		out = append(out, Prop{Name: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func PropsToMap(props []Prop) map[string]string {
	if len(props) == 0 {
		return nil
	}
	m := make(map[string]string, len(props))
	for _, p := range props {
		m[p.Name] = p.Value
	}
	return m
}
