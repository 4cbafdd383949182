package protocol

import (
	"fmt"
	"strings"

	"blockpatterns.dev/internal/palette"
	"blockpatterns.dev/internal/pattern"
)

// ParseBlockState resolves bracket syntax against a palette. Tags are not
// block states and are rejected.
func ParseBlockState(reg *palette.Registry, s string) (palette.BlockState, error) {
	req, err := pattern.ParsePredicate(s)
	if err != nil {
		return palette.BlockState{}, err
	}
	if req.Kind() == pattern.Tag {
		return palette.BlockState{}, fmt.Errorf("tag %q is not a block state", s)
	}
	m, ok := reg.Lookup(req.Name())
	if !ok {
		return palette.BlockState{}, fmt.Errorf("unknown block %q", req.Name())
	}
	var props []palette.Prop
	if len(req.Props()) > 0 {
		props = append(props, req.Props()...)
	}
	return palette.BlockState{Material: m, Props: props}, nil
}

func FormatBlockState(reg *palette.Registry, st palette.BlockState) string {
	name := reg.Name(st.Material)
	if len(st.Props) == 0 {
		return name
	}
	var sb strings.Builder
	sb.WriteString(name)
	sb.WriteByte('[')
	sb.WriteString(palette.PropsKey(st.Props))
	sb.WriteByte(']')
	return sb.String()
}
