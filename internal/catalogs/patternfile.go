package catalogs

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"blockpatterns.dev/internal/pattern"
	"blockpatterns.dev/internal/transform"
	"blockpatterns.dev/internal/voxel"
)

//go:embed schemas/pattern.schema.json
var patternSchemaJSON string

var patternSchema = jsonschema.MustCompileString("pattern.schema.json", patternSchemaJSON)

// PatternFile is the on-disk form of a pattern.
//
// Layers run bottom (y=0) to top. Within a layer each string is one row of
// constant z, north to south, and each character one column of constant x,
// west to east. Characters are looked up in Key; '.' and ' ' leave the cell
// unconstrained. Cells adds sparse entries on top of (or instead of) layers.
type PatternFile struct {
	ID          string            `yaml:"id" json:"id"`
	Description string            `yaml:"description,omitempty" json:"description,omitempty"`
	Origin      *[3]int           `yaml:"origin,omitempty" json:"origin,omitempty"`
	Key         map[string]string `yaml:"key,omitempty" json:"key,omitempty"`
	Layers      [][]string        `yaml:"layers,omitempty" json:"layers,omitempty"`
	Cells       []CellDef         `yaml:"cells,omitempty" json:"cells,omitempty"`

	// Rotations are rotation ids 0..23; Yaw is a shorthand for upright turns
	// in quarter turns or degrees. At most one may be set; neither allows all
	// 24 rotations.
	Rotations []int `yaml:"rotations,omitempty" json:"rotations,omitempty"`
	Yaw       []int `yaml:"yaw,omitempty" json:"yaw,omitempty"`
	// Mirrors omitted allows every axis; an empty list allows none.
	Mirrors []string `yaml:"mirrors" json:"mirrors,omitempty"`

	Worlds []string   `yaml:"worlds,omitempty" json:"worlds,omitempty"`
	Height *HeightDef `yaml:"height,omitempty" json:"height,omitempty"`
}

type CellDef struct {
	Pos   [3]int `yaml:"pos" json:"pos"`
	Block string `yaml:"block" json:"block"`
}

type HeightDef struct {
	Min int `yaml:"min" json:"min"`
	Max int `yaml:"max" json:"max"`
}

// ParsePattern validates raw YAML against the pattern schema and converts it.
func ParsePattern(raw []byte) (*pattern.Pattern, error) {
	if err := validateSchema(raw); err != nil {
		return nil, err
	}
	var f PatternFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, err
	}
	return f.Pattern()
}

func validateSchema(raw []byte) error {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return err
	}
	// The validator expects JSON values: string map keys and float64 numbers.
	js, err := json.Marshal(jsonValue(doc))
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(js, &v); err != nil {
		return err
	}
	if err := patternSchema.Validate(v); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	return nil
}

func jsonValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = jsonValue(e)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[fmt.Sprint(k)] = jsonValue(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = jsonValue(e)
		}
		return out
	}
	return v
}

// Pattern converts the file form; predicates are parsed but not resolved
// against a palette.
func (f *PatternFile) Pattern() (*pattern.Pattern, error) {
	p := &pattern.Pattern{
		ID:     f.ID,
		Cells:  map[voxel.Vec3]*pattern.Requirement{},
		Worlds: f.Worlds,
	}
	if f.Origin != nil {
		p.Origin = voxel.FromArray(*f.Origin)
	}

	key := map[rune]*pattern.Requirement{}
	for k, pred := range f.Key {
		r := []rune(k)
		if len(r) != 1 {
			return nil, fmt.Errorf("key %q: must be a single character", k)
		}
		if r[0] == '.' || r[0] == ' ' {
			return nil, fmt.Errorf("key %q: reserved for unconstrained cells", k)
		}
		req, err := pattern.ParsePredicate(pred)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		key[r[0]] = req
	}
	for y, layer := range f.Layers {
		for z, row := range layer {
			for x, c := range []rune(row) {
				if c == '.' || c == ' ' {
					continue
				}
				req, ok := key[c]
				if !ok {
					return nil, fmt.Errorf("layer %d row %d: character %q not in key", y, z, c)
				}
				p.Cells[voxel.Vec3{X: x, Y: y, Z: z}] = req
			}
		}
	}
	for i, c := range f.Cells {
		req, err := pattern.ParsePredicate(c.Block)
		if err != nil {
			return nil, fmt.Errorf("cells[%d]: %w", i, err)
		}
		pos := voxel.FromArray(c.Pos)
		if _, dup := p.Cells[pos]; dup {
			return nil, fmt.Errorf("cells[%d]: %v already defined", i, pos)
		}
		p.Cells[pos] = req
	}

	switch {
	case f.Rotations != nil && f.Yaw != nil:
		return nil, fmt.Errorf("rotations and yaw are mutually exclusive")
	case f.Rotations != nil:
		p.Rotations = append([]int(nil), f.Rotations...)
	case f.Yaw != nil:
		for _, y := range f.Yaw {
			p.Rotations = append(p.Rotations, transform.NormalizeYaw(y))
		}
	}
	if f.Mirrors != nil {
		p.Mirrors = []transform.Mirror{}
		for _, s := range f.Mirrors {
			m, err := transform.ParseMirror(s)
			if err != nil {
				return nil, err
			}
			p.Mirrors = append(p.Mirrors, m)
		}
	}
	if f.Height != nil {
		p.Height = &pattern.HeightRange{Min: f.Height.Min, Max: f.Height.Max}
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}
