package main

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"blockpatterns.dev/internal/catalogs"
	"blockpatterns.dev/internal/compiler"
	"blockpatterns.dev/internal/detect"
	"blockpatterns.dev/internal/index"
	"blockpatterns.dev/internal/tuning"
	"blockpatterns.dev/internal/worldstore"
)

// loadConfig loads the catalogs and tuning named by the root flags. A
// missing tuning file falls back to the defaults.
func loadConfig() (*catalogs.Catalogs, tuning.Tuning, error) {
	cats, err := catalogs.Load(rootFlags.configDir)
	if err != nil {
		return nil, tuning.Tuning{}, err
	}
	tp := strings.TrimSpace(rootFlags.tuningPath)
	explicit := tp != ""
	if !explicit {
		tp = filepath.Join(rootFlags.configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if explicit || !os.IsNotExist(err) {
			return nil, tuning.Tuning{}, err
		}
		tune, _ = tuning.Load("")
	}
	return cats, tune, nil
}

func indexOptions(cats *catalogs.Catalogs, tune tuning.Tuning) index.Options {
	return index.Options{
		Compiler: compiler.Options{
			Rarity:               cats.Blocks.Rarity,
			AnchorCap:            tune.Index.AnchorCap,
			MaxAnchorComparisons: tune.Index.MaxAnchorComparisons,
		},
		Workers:    tune.Index.Workers,
		MaxEntries: tune.Index.MaxEntries,
	}
}

// newOfflineEngine builds the configured worlds and an engine over them with
// the catalog's patterns loaded. Matches are stamped with a fixed time so
// replays are reproducible.
func newOfflineEngine(ctx context.Context, cats *catalogs.Catalogs, tune tuning.Tuning, sink detect.Sink) (*detect.Engine, *worldstore.Set, []error, error) {
	reg := cats.Blocks.Registry
	set, err := worldstore.BuildSet(reg, tune.Worlds)
	if err != nil {
		return nil, nil, nil, err
	}
	wm := detect.WorldMap{}
	for _, id := range set.IDs() {
		st, _ := set.Store(id)
		wm[id] = st
	}
	eng, err := detect.New(detect.Config{
		Registry: reg,
		Rarity:   cats.Blocks.Rarity,
		Worlds:   wm,
		Sink:     sink,
		Engine:   tune.Engine,
		Index:    tune.Index,
		Now:      func() time.Time { return time.Unix(0, 0).UTC() },
	})
	if err != nil {
		return nil, nil, nil, err
	}
	errs, err := eng.Reload(ctx, cats.Patterns.Patterns)
	if err != nil {
		return nil, nil, nil, err
	}
	return eng, set, errs, nil
}

type readCloser struct {
	io.Reader
	close func() error
}

func (r readCloser) Close() error { return r.close() }

// openFeed opens a JSONL feed; a .zst suffix is decompressed and "-" reads
// stdin.
func openFeed(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(bufio.NewReader(os.Stdin)), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(path, ".zst") {
		return f, nil
	}
	dec, err := zstd.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return readCloser{Reader: dec, close: func() error {
		dec.Close()
		return f.Close()
	}}, nil
}
