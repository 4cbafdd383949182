// Package catalogs loads the block palette, block tags and pattern files from
// a config directory.
package catalogs

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"blockpatterns.dev/internal/compiler"
	"blockpatterns.dev/internal/palette"
	"blockpatterns.dev/internal/pattern"
)

type Catalogs struct {
	Blocks   BlockCatalog
	Tags     TagCatalog
	Patterns PatternCatalog
}

type BlockCatalog struct {
	Registry *palette.Registry
	// Rarity is DefaultRarity overlaid with the frequencies listed in
	// blocks.json.
	Rarity        compiler.FrequencyTable
	PaletteDigest string
	DefsDigest    string
}

type BlockDef struct {
	ID        string   `json:"id"`
	Frequency *float64 `json:"frequency,omitempty"`
}

type TagCatalog struct {
	ByName map[string][]string
	Digest string
}

type PatternCatalog struct {
	// Patterns is sorted by id.
	Patterns []*pattern.Pattern
	// Files maps pattern id to the file it was read from.
	Files  map[string]string
	Digest string
}

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs

	if err := loadTags(filepath.Join(configDir, "tags.json"), &c.Tags); err != nil {
		return nil, err
	}
	if err := loadBlocks(filepath.Join(configDir, "blocks.json"), c.Tags.ByName, &c.Blocks); err != nil {
		return nil, err
	}
	pc, err := LoadPatterns(filepath.Join(configDir, "patterns"))
	if err != nil {
		return nil, err
	}
	c.Patterns = *pc
	return &c, nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func loadBlocks(path string, tags map[string][]string, out *BlockCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.DefsDigest = sha256Hex(raw)

	var defs []BlockDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("blocks.json: %w", err)
	}
	out.Rarity = compiler.FrequencyTable{}
	for id, f := range compiler.DefaultRarity {
		out.Rarity[id] = f
	}
	ids := make([]string, 0, len(defs))
	hasAir := false
	for _, d := range defs {
		id := palette.NormalizeID(d.ID)
		if id == "" {
			return fmt.Errorf("blocks.json: empty id")
		}
		if id == palette.Air {
			hasAir = true
		}
		if d.Frequency != nil {
			if *d.Frequency < 0 || *d.Frequency > 1 {
				return fmt.Errorf("blocks.json: %s: frequency %v outside [0,1]", id, *d.Frequency)
			}
			out.Rarity[id] = *d.Frequency
		}
		ids = append(ids, id)
	}
	// Air must exist and is palette id 0.
	if !hasAir {
		return fmt.Errorf("blocks.json: missing %s", palette.Air)
	}

	reg, err := palette.NewRegistry(ids, tags)
	if err != nil {
		return fmt.Errorf("blocks.json: %w", err)
	}
	out.Registry = reg
	palJSON, _ := json.Marshal(reg.Names())
	out.PaletteDigest = sha256Hex(palJSON)
	return nil
}

func loadTags(path string, out *TagCatalog) error {
	out.ByName = map[string][]string{}
	raw, err := os.ReadFile(path)
	if err != nil {
		// No tags is a valid setup.
		if os.IsNotExist(err) {
			out.Digest = sha256Hex(nil)
			return nil
		}
		return err
	}
	out.Digest = sha256Hex(raw)
	if err := json.Unmarshal(raw, &out.ByName); err != nil {
		return fmt.Errorf("tags.json: %w", err)
	}
	return nil
}

// LoadPatterns reads every *.yaml / *.yml file under dir. A missing directory
// yields an empty catalog. Any malformed file fails the whole load so a
// reload never half-applies.
func LoadPatterns(dir string) (*PatternCatalog, error) {
	out := &PatternCatalog{Files: map[string]string{}}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			out.Digest = sha256Hex(nil)
			return out, nil
		}
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if IsPatternFile(e.Name()) {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)

	var concat bytes.Buffer
	for _, p := range files {
		b, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		concat.Write(b)
		concat.WriteByte('\n')

		pat, err := ParsePattern(b)
		if err != nil {
			return nil, fmt.Errorf("pattern %s: %w", filepath.Base(p), err)
		}
		if prev, dup := out.Files[pat.ID]; dup {
			return nil, fmt.Errorf("pattern %s: id %q already defined in %s", filepath.Base(p), pat.ID, filepath.Base(prev))
		}
		out.Files[pat.ID] = p
		out.Patterns = append(out.Patterns, pat)
	}
	sort.Slice(out.Patterns, func(i, j int) bool { return out.Patterns[i].ID < out.Patterns[j].ID })
	out.Digest = sha256Hex(concat.Bytes())
	return out, nil
}

// IsPatternFile reports whether name has a pattern file extension.
func IsPatternFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
