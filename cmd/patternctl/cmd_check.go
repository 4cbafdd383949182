package main

import (
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"blockpatterns.dev/internal/index"
	"blockpatterns.dev/internal/worldstore"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Load the catalogs and tuning and compile every pattern",
	RunE:  runCheck,
}

func runCheck(cmd *cobra.Command, _ []string) error {
	cats, tune, err := loadConfig()
	if err != nil {
		return err
	}
	reg := cats.Blocks.Registry
	if _, err := worldstore.BuildSet(reg, tune.Worlds); err != nil {
		return fmt.Errorf("worlds: %w", err)
	}
	ix, errs, err := index.Build(cmd.Context(), reg, cats.Patterns.Patterns, indexOptions(cats, tune))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "palette: %d blocks (%s)\n", reg.Len(), short(cats.Blocks.PaletteDigest))
	fmt.Fprintf(out, "tags:    %d\n", len(cats.Tags.ByName))
	fmt.Fprintf(out, "worlds:  %d\n", len(tune.Worlds))
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PATTERN\tFILE\tCELLS\tVARIANTS")
	for _, p := range cats.Patterns.Patterns {
		vs, ok := ix.ByPattern[p.ID]
		status := fmt.Sprint(len(vs))
		if !ok {
			status = "FAILED"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", p.ID, filepath.Base(cats.Patterns.Files[p.ID]), len(p.Cells), status)
	}
	_ = tw.Flush()
	fmt.Fprintf(out, "index:   %d variants, %d entries\n", len(ix.Variants), ix.Entries())

	for _, e := range errs {
		fmt.Fprintln(cmd.ErrOrStderr(), e)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%d pattern(s) failed to compile", len(errs))
	}
	return nil
}

func short(digest string) string {
	if len(digest) > 12 {
		return digest[:12]
	}
	return digest
}
