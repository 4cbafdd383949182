package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"blockpatterns.dev/internal/index"
	"blockpatterns.dev/internal/voxel"
)

var compileFlags struct {
	cells bool
}

var compileCmd = &cobra.Command{
	Use:   "compile [pattern-id...]",
	Short: "Dump compiled variants and anchors as JSON",
	RunE:  runCompile,
}

func init() {
	compileCmd.Flags().BoolVar(&compileFlags.cells, "cells", false, "include every cell, not just the anchors")
}

type cellDump struct {
	Offset voxel.Vec3 `json:"offset"`
	Block  string     `json:"block"`
	Info   float64    `json:"info_bits"`
}

type variantDump struct {
	ID         string     `json:"id"`
	Transforms []string   `json:"transforms"`
	Box        voxel.AABB `json:"box"`
	Anchors    []cellDump `json:"anchors"`
	Cells      []cellDump `json:"cells,omitempty"`
}

type patternDump struct {
	ID       string        `json:"id"`
	Variants []variantDump `json:"variants"`
}

func runCompile(cmd *cobra.Command, args []string) error {
	cats, tune, err := loadConfig()
	if err != nil {
		return err
	}
	ix, errs, err := index.Build(cmd.Context(), cats.Blocks.Registry, cats.Patterns.Patterns, indexOptions(cats, tune))
	if err != nil {
		return err
	}
	for _, e := range errs {
		fmt.Fprintln(cmd.ErrOrStderr(), e)
	}

	ids := args
	if len(ids) == 0 {
		for _, p := range cats.Patterns.Patterns {
			ids = append(ids, p.ID)
		}
	}
	var out []patternDump
	for _, id := range ids {
		vs, ok := ix.ByPattern[id]
		if !ok {
			return fmt.Errorf("pattern %q not in index", id)
		}
		pd := patternDump{ID: id}
		for _, v := range vs {
			vd := variantDump{ID: v.ID, Box: v.Box}
			for _, t := range v.Transforms {
				vd.Transforms = append(vd.Transforms, t.String())
			}
			for i, c := range v.Cells {
				cd := cellDump{Offset: c.Offset, Block: c.Req.String(), Info: c.Info}
				if i < v.Anchors {
					vd.Anchors = append(vd.Anchors, cd)
				}
				if compileFlags.cells {
					vd.Cells = append(vd.Cells, cd)
				}
			}
			pd.Variants = append(pd.Variants, vd)
		}
		out = append(out, pd)
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
