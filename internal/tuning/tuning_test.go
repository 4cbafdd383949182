package tuning

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_RepoConfig(t *testing.T) {
	tu, err := Load("../../configs/tuning.yaml")
	if err != nil {
		t.Fatalf("load tuning.yaml: %v", err)
	}
	if _, ok := tu.WorldSpecByID(tu.DefaultWorldID); !ok {
		t.Fatalf("default world %q missing", tu.DefaultWorldID)
	}
	if tu.Engine.VoteThreshold != 1 {
		t.Fatalf("vote_threshold=%v", tu.Engine.VoteThreshold)
	}
}

func TestLoad_MergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(path, []byte("engine:\n  default_strategy: Voxel_Hash_Vote\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tu, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tu.Engine.DefaultStrategy != "voxel_hash_vote" {
		t.Fatalf("strategy=%q", tu.Engine.DefaultStrategy)
	}
	d := Defaults()
	if tu.Engine.SwitchCooldown != d.Engine.SwitchCooldown || len(tu.Worlds) != len(d.Worlds) {
		t.Fatalf("defaults not kept: %+v", tu)
	}
}

func TestValidate_Errors(t *testing.T) {
	cases := map[string]func(*Tuning){
		"strategy":  func(t *Tuning) { t.Engine.DefaultStrategy = "guess" },
		"alpha":     func(t *Tuning) { t.Engine.EWMAAlpha = 0 },
		"hyst":      func(t *Tuning) { t.Engine.Hysteresis = 1 },
		"dup world": func(t *Tuning) { t.Worlds = append(t.Worlds, t.Worlds[0]) },
		"height":    func(t *Tuning) { t.Worlds[0].MinY = 400 },
		"default":   func(t *Tuning) { t.DefaultWorldID = "moon" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			tu := Defaults()
			mutate(&tu)
			if err := tu.Validate(); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
	if err := Defaults().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}
