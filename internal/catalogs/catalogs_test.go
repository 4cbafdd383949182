package catalogs

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"blockpatterns.dev/internal/compiler"
	"blockpatterns.dev/internal/palette"
	"blockpatterns.dev/internal/transform"
	"blockpatterns.dev/internal/voxel"
)

func TestLoad_ConfigsDir(t *testing.T) {
	c, err := Load(filepath.Join("..", "..", "configs"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	reg := c.Blocks.Registry
	if reg.Name(0) != palette.Air {
		t.Fatalf("material 0 = %q, want air", reg.Name(0))
	}
	if _, ok := reg.Tag("minecraft:logs"); !ok {
		t.Fatalf("logs tag missing")
	}
	if f, _ := c.Blocks.Rarity.Frequency("minecraft:oak_stairs"); f != 0.00005 {
		t.Fatalf("oak_stairs frequency = %v", f)
	}
	// Untouched defaults survive the overlay.
	if f, _ := c.Blocks.Rarity.Frequency("minecraft:gold_block"); f != compiler.DefaultRarity["minecraft:gold_block"] {
		t.Fatalf("gold_block frequency = %v", f)
	}
	if len(c.Blocks.PaletteDigest) != 64 || len(c.Patterns.Digest) != 64 {
		t.Fatalf("digests: %q %q", c.Blocks.PaletteDigest, c.Patterns.Digest)
	}

	var ids []string
	for _, p := range c.Patterns.Patterns {
		ids = append(ids, p.ID)
	}
	want := []string{"altar", "beacon", "gold_marker", "iron_golem", "log_totem", "nether_portal"}
	if diff := cmp.Diff(want, ids); diff != "" {
		t.Fatalf("pattern ids (-want +got):\n%s", diff)
	}

	// Every shipped pattern must compile against the shipped palette.
	opts := compiler.Options{Registry: reg, Rarity: c.Blocks.Rarity}
	for _, p := range c.Patterns.Patterns {
		if _, err := compiler.Compile(p, opts); err != nil {
			t.Fatalf("compile %s: %v", p.ID, err)
		}
	}
}

func TestParsePattern_Layers(t *testing.T) {
	p, err := ParsePattern([]byte(`
id: altar
origin: [1, 0, 0]
yaw: [0, 90, 180, 270]
mirrors: [x]
worlds: [overworld]
height: {min: 0, max: 128}
key:
  S: stone
  T: "oak_stairs[facing=west]"
layers:
  - ["ST", ".S"]
  - ["T"]
`))
	if err != nil {
		t.Fatalf("ParsePattern: %v", err)
	}
	got := map[voxel.Vec3]string{}
	for pos, r := range p.Cells {
		got[pos] = r.String()
	}
	want := map[voxel.Vec3]string{
		{X: 0, Y: 0, Z: 0}: "minecraft:stone",
		{X: 1, Y: 0, Z: 0}: "minecraft:oak_stairs[facing=west]",
		{X: 1, Y: 0, Z: 1}: "minecraft:stone",
		{X: 0, Y: 1, Z: 0}: "minecraft:oak_stairs[facing=west]",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("cells (-want +got):\n%s", diff)
	}
	if p.Origin != (voxel.Vec3{X: 1}) {
		t.Fatalf("origin = %v", p.Origin)
	}
	if diff := cmp.Diff([]int{0, 1, 2, 3}, p.Rotations); diff != "" {
		t.Fatalf("rotations (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]transform.Mirror{transform.MirrorX}, p.Mirrors); diff != "" {
		t.Fatalf("mirrors (-want +got):\n%s", diff)
	}
	if p.Height == nil || p.Height.Min != 0 || p.Height.Max != 128 {
		t.Fatalf("height = %+v", p.Height)
	}
	if !p.AllowsWorld("overworld") || p.AllowsWorld("the_nether") {
		t.Fatalf("world restriction not applied")
	}
}

func TestParsePattern_MirrorPolicy(t *testing.T) {
	omitted, err := ParsePattern([]byte("id: a\ncells: [{pos: [0,0,0], block: stone}]\n"))
	if err != nil {
		t.Fatalf("omitted: %v", err)
	}
	if omitted.Mirrors != nil || omitted.Rotations != nil {
		t.Fatalf("omitted policy should stay nil: %v %v", omitted.Mirrors, omitted.Rotations)
	}
	none, err := ParsePattern([]byte("id: a\nmirrors: []\ncells: [{pos: [0,0,0], block: stone}]\n"))
	if err != nil {
		t.Fatalf("empty: %v", err)
	}
	if none.Mirrors == nil || len(none.Mirrors) != 0 {
		t.Fatalf("mirrors: [] should be empty non-nil, got %#v", none.Mirrors)
	}
}

func TestParsePattern_Errors(t *testing.T) {
	cases := []struct {
		name string
		src  string
		want string
	}{
		{"missing id", "cells: [{pos: [0,0,0], block: stone}]\n", "schema"},
		{"no cells", "id: a\n", "schema"},
		{"unknown field", "id: a\nfoo: 1\ncells: [{pos: [0,0,0], block: stone}]\n", "schema"},
		{"rotation range", "id: a\nrotations: [24]\ncells: [{pos: [0,0,0], block: stone}]\n", "schema"},
		{"bad mirror", "id: a\nmirrors: [w]\ncells: [{pos: [0,0,0], block: stone}]\n", "schema"},
		{"bad predicate", "id: a\ncells: [{pos: [0,0,0], block: \"stone[facing\"}]\n", "unclosed"},
		{"char not in key", "id: a\nkey: {S: stone}\nlayers: [[\"SX\"]]\n", "not in key"},
		{"both rotation forms", "id: a\nrotations: [0]\nyaw: [90]\ncells: [{pos: [0,0,0], block: stone}]\n", "mutually exclusive"},
		{"only wildcards", "id: a\nkey: {S: stone}\nlayers: [[\"..\"]]\n", "no constrained cells"},
		{"height inverted", "id: a\nheight: {min: 5, max: 1}\ncells: [{pos: [0,0,0], block: stone}]\n", "height"},
		{"duplicate cell", "id: a\nkey: {S: stone}\nlayers: [[\"S\"]]\ncells: [{pos: [0,0,0], block: dirt}]\n", "already defined"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParsePattern([]byte(tc.src))
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestLoadPatterns_DuplicateIDsAndMissingDir(t *testing.T) {
	empty, err := LoadPatterns(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("missing dir: %v", err)
	}
	if len(empty.Patterns) != 0 || empty.Digest == "" {
		t.Fatalf("missing dir catalog = %+v", empty)
	}

	dir := t.TempDir()
	src := []byte("id: same\ncells: [{pos: [0,0,0], block: stone}]\n")
	for _, name := range []string{"a.yaml", "b.yml"} {
		if err := os.WriteFile(filepath.Join(dir, name), src, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadPatterns(dir); err == nil || !strings.Contains(err.Error(), "already defined") {
		t.Fatalf("duplicate ids: err = %v", err)
	}
}

func TestLoad_BlocksRequireAir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "blocks.json"), []byte(`[{"id":"stone"}]`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir); err == nil || !strings.Contains(err.Error(), "missing") {
		t.Fatalf("err = %v", err)
	}
}
