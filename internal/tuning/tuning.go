// Package tuning loads tuning.yaml: detection engine knobs, index build
// limits, front-end rate limits and the in-memory worlds to serve.
package tuning

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	Engine    Engine    `yaml:"engine"`
	Index     Index     `yaml:"index"`
	Transport Transport `yaml:"transport"`

	DefaultWorldID string      `yaml:"default_world_id"`
	Worlds         []WorldSpec `yaml:"worlds"`
}

type Engine struct {
	DefaultStrategy string  `yaml:"default_strategy"`
	EWMAAlpha       float64 `yaml:"ewma_alpha"`
	ExploreEvery    int     `yaml:"explore_every"`
	SwitchCooldown  int     `yaml:"switch_cooldown"`
	Hysteresis      float64 `yaml:"hysteresis"`
	VoteThreshold   float64 `yaml:"vote_threshold"`
}

type Index struct {
	AnchorCap            int `yaml:"anchor_cap"`
	MaxAnchorComparisons int `yaml:"max_anchor_comparisons"`
	Workers              int `yaml:"workers"`
	MaxEntries           int `yaml:"max_entries"`
	ReloadDebounceMs     int `yaml:"reload_debounce_ms"`
}

type Transport struct {
	TriggersPerSecond float64 `yaml:"triggers_per_second"`
	TriggerBurst      int     `yaml:"trigger_burst"`
	MaxMessageBytes   int64   `yaml:"max_message_bytes"`
	SendQueue         int     `yaml:"send_queue"`
}

type WorldSpec struct {
	ID        string `yaml:"id"`
	MinY      int    `yaml:"min_y"`
	MaxY      int    `yaml:"max_y"`
	BoundaryR int    `yaml:"boundary_r"`
	// PreloadRadius is in sections around the world origin; 0 preloads
	// nothing and sections appear on first write.
	PreloadRadius int    `yaml:"preload_radius"`
	FloorY        int    `yaml:"floor_y"`
	FloorBlock    string `yaml:"floor_block,omitempty"`
}

func Load(path string) (Tuning, error) {
	t := Defaults()
	if strings.TrimSpace(path) == "" {
		t.Normalize()
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

// Defaults are the values a user file is merged over.
func Defaults() Tuning {
	return Tuning{
		Engine: Engine{
			DefaultStrategy: "anchor_first",
			EWMAAlpha:       0.1,
			ExploreEvery:    64,
			SwitchCooldown:  256,
			Hysteresis:      0.15,
			VoteThreshold:   1.0,
		},
		Index: Index{
			AnchorCap:            8,
			MaxAnchorComparisons: 1 << 20,
			MaxEntries:           1 << 22,
			ReloadDebounceMs:     250,
		},
		Transport: Transport{
			TriggersPerSecond: 2000,
			TriggerBurst:      4000,
			MaxMessageBytes:   1 << 20,
			SendQueue:         256,
		},
		DefaultWorldID: "overworld",
		Worlds: []WorldSpec{
			{ID: "overworld", MinY: -64, MaxY: 319, BoundaryR: 30000000, PreloadRadius: 2, FloorY: 62, FloorBlock: "minecraft:stone"},
			{ID: "the_nether", MinY: 0, MaxY: 255, BoundaryR: 3750000},
			{ID: "the_end", MinY: 0, MaxY: 255, BoundaryR: 30000000},
		},
	}
}

func (t *Tuning) Normalize() {
	t.Engine.DefaultStrategy = strings.ToLower(strings.TrimSpace(t.Engine.DefaultStrategy))
	if t.Engine.DefaultStrategy == "" {
		t.Engine.DefaultStrategy = "anchor_first"
	}
	if t.Engine.VoteThreshold <= 0 {
		t.Engine.VoteThreshold = 1
	}
	if t.Index.AnchorCap <= 0 {
		t.Index.AnchorCap = 8
	}
	if t.Transport.SendQueue <= 0 {
		t.Transport.SendQueue = 256
	}
	for i := range t.Worlds {
		t.Worlds[i].ID = strings.TrimSpace(t.Worlds[i].ID)
		t.Worlds[i].FloorBlock = strings.TrimSpace(t.Worlds[i].FloorBlock)
	}
	if strings.TrimSpace(t.DefaultWorldID) == "" && len(t.Worlds) > 0 {
		t.DefaultWorldID = t.Worlds[0].ID
	}
}

func (t Tuning) Validate() error {
	switch t.Engine.DefaultStrategy {
	case "anchor_first", "voxel_hash_vote", "constraint_propagation":
	default:
		return fmt.Errorf("engine.default_strategy %q unknown", t.Engine.DefaultStrategy)
	}
	if t.Engine.EWMAAlpha <= 0 || t.Engine.EWMAAlpha > 1 {
		return fmt.Errorf("engine.ewma_alpha must be in (0, 1]")
	}
	if t.Engine.ExploreEvery < 0 || t.Engine.SwitchCooldown < 0 {
		return fmt.Errorf("engine.explore_every and engine.switch_cooldown must be >= 0")
	}
	if t.Engine.Hysteresis < 0 || t.Engine.Hysteresis >= 1 {
		return fmt.Errorf("engine.hysteresis must be in [0, 1)")
	}
	if t.Engine.VoteThreshold > 1 {
		return fmt.Errorf("engine.vote_threshold must be <= 1")
	}
	if t.Index.MaxAnchorComparisons < 0 || t.Index.MaxEntries < 0 || t.Index.Workers < 0 {
		return fmt.Errorf("index limits must be >= 0")
	}
	if t.Transport.TriggersPerSecond < 0 || t.Transport.TriggerBurst < 0 {
		return fmt.Errorf("transport rate limits must be >= 0")
	}
	if len(t.Worlds) == 0 {
		return fmt.Errorf("worlds must not be empty")
	}
	seen := map[string]bool{}
	for _, w := range t.Worlds {
		if w.ID == "" {
			return fmt.Errorf("world id must not be empty")
		}
		if seen[w.ID] {
			return fmt.Errorf("duplicate world id: %s", w.ID)
		}
		seen[w.ID] = true
		if w.MinY > w.MaxY {
			return fmt.Errorf("world %s min_y must be <= max_y", w.ID)
		}
		if w.BoundaryR < 0 || w.PreloadRadius < 0 {
			return fmt.Errorf("world %s boundary_r and preload_radius must be >= 0", w.ID)
		}
	}
	if !seen[t.DefaultWorldID] {
		return fmt.Errorf("default_world_id %q not found in worlds", t.DefaultWorldID)
	}
	return nil
}

func (t Tuning) WorldSpecByID(id string) (WorldSpec, bool) {
	for _, w := range t.Worlds {
		if w.ID == id {
			return w, true
		}
	}
	return WorldSpec{}, false
}
