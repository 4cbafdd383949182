package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestOpenRuntimeIndex_Env(t *testing.T) {
	dataDir := t.TempDir()

	t.Setenv("BP_INDEX_BACKEND", "off")
	if idx, err := openRuntimeIndex(dataDir, false, nil); err != nil || idx != nil {
		t.Fatalf("off: idx=%v err=%v", idx, err)
	}

	t.Setenv("BP_INDEX_BACKEND", "d1")
	if _, err := openRuntimeIndex(dataDir, false, nil); err == nil || !strings.Contains(err.Error(), "BP_INDEX_BACKEND") {
		t.Fatalf("unsupported backend: err=%v", err)
	}

	t.Setenv("BP_INDEX_BACKEND", "")
	if idx, err := openRuntimeIndex(dataDir, true, nil); err != nil || idx != nil {
		t.Fatalf("disable_db: idx=%v err=%v", idx, err)
	}

	custom := filepath.Join(t.TempDir(), "custom.sqlite")
	t.Setenv("BP_INDEX_SQLITE_PATH", custom)
	idx, err := openRuntimeIndex(dataDir, false, nil)
	if err != nil || idx == nil {
		t.Fatalf("sqlite: idx=%v err=%v", idx, err)
	}
	if err := idx.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(custom); err != nil {
		t.Fatalf("BP_INDEX_SQLITE_PATH not used: %v", err)
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("BP_STATS_FLUSH_MS", "250")
	t.Setenv("BP_MATCHLOG_QUEUE", "many")
	t.Setenv("BP_ENABLE_PPROF_HTTP", "yes")
	if got := envInt("BP_STATS_FLUSH_MS", 10000); got != 250 {
		t.Fatalf("envInt = %d", got)
	}
	if got := envInt("BP_MATCHLOG_QUEUE", 7); got != 7 {
		t.Fatalf("envInt fallback = %d", got)
	}
	if !envBool("BP_ENABLE_PPROF_HTTP", false) {
		t.Fatalf("envBool yes = false")
	}
	if envBool("BP_ENABLE_ADMIN_HTTP_UNSET", false) {
		t.Fatalf("envBool default = true")
	}
}
