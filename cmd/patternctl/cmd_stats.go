package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"blockpatterns.dev/internal/persistence/indexdb"
)

var statsFlags struct {
	db string
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show strategy statistics, the last reload and catalog digests from a SQLite index",
	RunE:  runStats,
}

func init() {
	statsCmd.Flags().StringVar(&statsFlags.db, "db", "./data/index/detections.sqlite", "SQLite index path")
}

func runStats(cmd *cobra.Command, _ []string) error {
	if _, err := os.Stat(statsFlags.db); err != nil {
		return err
	}
	idx, err := indexdb.OpenSQLite(statsFlags.db, nil)
	if err != nil {
		return err
	}
	defer idx.Close()
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if r, ok, err := idx.LastReload(ctx); err != nil {
		return err
	} else if ok {
		status := "ok"
		if !r.OK {
			status = "failed: " + r.Error
		}
		fmt.Fprintf(out, "last reload: v%d at %s, %d patterns, %d variants, %d entries, %d compile errors (%s)\n",
			r.Version, r.RecordedAt.Format("2006-01-02 15:04:05"), r.Patterns, r.Variants, r.Entries, r.CompileErrors, status)
	} else {
		fmt.Fprintln(out, "last reload: none")
	}

	digests, err := idx.CatalogDigests(ctx)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(digests))
	for n := range digests {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintf(out, "catalog %-15s %s\n", n, short(digests[n]))
	}

	rows, err := idx.StrategyStats(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PATTERN\tWORLD\tSTRATEGY\tACTIVE\tATTEMPTS\tCANDIDATES\tCOST\tHIT RATE")
	for _, r := range rows {
		active := ""
		if r.Active {
			active = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%.2f\t%.2f\t%.3f\n",
			r.Pattern, r.World, r.Strategy, active, r.Attempts, r.Candidates, r.Cost, r.HitRate)
	}
	return tw.Flush()
}
