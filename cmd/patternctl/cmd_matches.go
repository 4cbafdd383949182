package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"blockpatterns.dev/internal/persistence/indexdb"
	"blockpatterns.dev/internal/persistence/matchlog"
	"blockpatterns.dev/internal/verify"
)

var matchesFlags struct {
	dir     string
	db      string
	pattern string
	world   string
	limit   int
}

var matchesCmd = &cobra.Command{
	Use:   "matches",
	Short: "List recorded matches from the match log or the SQLite index",
	RunE:  runMatches,
}

func init() {
	f := matchesCmd.Flags()
	f.StringVar(&matchesFlags.dir, "dir", "./data/matches", "match log directory")
	f.StringVar(&matchesFlags.db, "db", "", "read from this SQLite index instead of the match log")
	f.StringVar(&matchesFlags.pattern, "pattern", "", "pattern id filter")
	f.StringVar(&matchesFlags.world, "world", "", "world id filter")
	f.IntVar(&matchesFlags.limit, "limit", 20, "result limit, newest first (0 for all)")
}

func runMatches(cmd *cobra.Command, _ []string) error {
	var (
		ms  []verify.Match
		err error
	)
	if matchesFlags.db != "" {
		ms, err = matchesFromDB(cmd, matchesFlags.db)
	} else {
		ms, err = matchesFromLog(matchesFlags.dir)
	}
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	for _, m := range ms {
		if err := enc.Encode(m); err != nil {
			return err
		}
	}
	return nil
}

func matchesFromDB(cmd *cobra.Command, path string) ([]verify.Match, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	idx, err := indexdb.OpenSQLite(path, nil)
	if err != nil {
		return nil, err
	}
	defer idx.Close()
	limit := matchesFlags.limit
	if limit <= 0 {
		limit = 1 << 30
	}
	return idx.Matches(cmd.Context(), indexdb.MatchQuery{Pattern: matchesFlags.pattern, World: matchesFlags.world, Limit: limit})
}

func matchesFromLog(dir string) ([]verify.Match, error) {
	files, err := matchlog.Files(dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no match log files in %s", dir)
	}
	var out []verify.Match
	for _, f := range files {
		ms, err := matchlog.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f, err)
		}
		for _, m := range ms {
			if matchesFlags.pattern != "" && m.PatternID != matchesFlags.pattern {
				continue
			}
			if matchesFlags.world != "" && m.World != matchesFlags.world {
				continue
			}
			out = append(out, m)
		}
	}
	// Newest first, like the index.
	sort.SliceStable(out, func(i, j int) bool { return out[i].Seq > out[j].Seq })
	if matchesFlags.limit > 0 && len(out) > matchesFlags.limit {
		out = out[:matchesFlags.limit]
	}
	return out, nil
}
