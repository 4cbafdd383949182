package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"blockpatterns.dev/internal/metrics"
	"blockpatterns.dev/internal/persistence/indexdb"
)

// openRuntimeIndex opens the optional SQLite read model. It returns nil when
// indexing is disabled by flag or by BP_INDEX_BACKEND.
func openRuntimeIndex(dataDir string, disableDB bool, m *metrics.Metrics) (*indexdb.SQLiteIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("BP_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		dbPath := strings.TrimSpace(os.Getenv("BP_INDEX_SQLITE_PATH"))
		if dbPath == "" {
			dbPath = filepath.Join(dataDir, "index", "detections.sqlite")
		}
		return indexdb.OpenSQLite(dbPath, m)
	default:
		return nil, fmt.Errorf("unsupported BP_INDEX_BACKEND: %s", backend)
	}
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envBool(key string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}
