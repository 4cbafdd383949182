package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	configDir  string
	tuningPath string
}

var rootCmd = &cobra.Command{
	Use:   "patternctl",
	Short: "Inspect, compile and replay block pattern catalogs",
	Long:  "patternctl validates pattern catalogs, dumps compiled variants,\nreplays block-change feeds offline and queries a running server's outputs.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceUsage: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootFlags.configDir, "configs", "./configs", "config directory (blocks.json, tags.json, patterns/)")
	pf.StringVar(&rootFlags.tuningPath, "tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")

	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(compileCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(matchesCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(pingCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
