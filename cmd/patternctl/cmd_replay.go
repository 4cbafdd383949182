package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"blockpatterns.dev/internal/detect"
	"blockpatterns.dev/internal/encoding"
	"blockpatterns.dev/internal/protocol"
	"blockpatterns.dev/internal/verify"
	"blockpatterns.dev/internal/voxel"
	"blockpatterns.dev/internal/worldstore"
)

var replayFlags struct {
	feed        string
	quiet       bool
	stopOnError bool
}

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Run a SET_BLOCK / LOAD_SECTION feed through an offline engine",
	Long: "replay reads protocol messages, one JSON object per line (optionally\nzstd-compressed), applies them to fresh in-memory worlds built from\ntuning.yaml and prints every match as a JSON line.",
	RunE: runReplay,
}

func init() {
	f := replayCmd.Flags()
	f.StringVar(&replayFlags.feed, "feed", "", "feed path (.jsonl or .jsonl.zst, - for stdin)")
	f.BoolVar(&replayFlags.quiet, "quiet", false, "print only the summary")
	f.BoolVar(&replayFlags.stopOnError, "stop-on-error", false, "fail on the first rejected message")
	_ = replayCmd.MarkFlagRequired("feed")
}

type replaySummary struct {
	Lines     int            `json:"lines"`
	Applied   int            `json:"applied"`
	Rejected  int            `json:"rejected"`
	Matches   int            `json:"matches"`
	ByPattern map[string]int `json:"by_pattern"`
}

func runReplay(cmd *cobra.Command, _ []string) error {
	cats, tune, err := loadConfig()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	enc := json.NewEncoder(out)
	sum := replaySummary{ByPattern: map[string]int{}}
	sink := detect.SinkFunc(func(m verify.Match) {
		sum.Matches++
		sum.ByPattern[m.PatternID]++
		if !replayFlags.quiet {
			_ = enc.Encode(m)
		}
	})
	eng, set, errs, err := newOfflineEngine(cmd.Context(), cats, tune, sink)
	if err != nil {
		return err
	}
	for _, e := range errs {
		fmt.Fprintln(cmd.ErrOrStderr(), e)
	}

	rc, err := openFeed(replayFlags.feed)
	if err != nil {
		return err
	}
	defer rc.Close()

	sc := bufio.NewScanner(rc)
	sc.Buffer(make([]byte, 0, 64*1024), 8<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		sum.Lines++
		if err := applyFeedLine(eng, set, []byte(line)); err != nil {
			sum.Rejected++
			if replayFlags.stopOnError {
				return fmt.Errorf("line %d: %w", sum.Lines, err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "line %d: %v\n", sum.Lines, err)
			continue
		}
		sum.Applied++
		if err := cmd.Context().Err(); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	b, _ := json.Marshal(sum)
	fmt.Fprintln(cmd.ErrOrStderr(), string(b))
	return nil
}

// applyFeedLine applies one protocol message the way the websocket server
// does.
func applyFeedLine(eng *detect.Engine, set *worldstore.Set, raw []byte) error {
	base, err := protocol.ValidateInbound(raw)
	if err != nil {
		return err
	}
	switch base.Type {
	case protocol.TypeSetBlock:
		var m protocol.SetBlockMsg
		if err := json.Unmarshal(raw, &m); err != nil {
			return err
		}
		st, ok := set.Store(m.World)
		if !ok {
			return fmt.Errorf("unknown world %s", m.World)
		}
		state, err := protocol.ParseBlockState(st.Registry(), m.Block)
		if err != nil {
			return err
		}
		pos := voxel.FromArray(m.Pos)
		if _, err := st.SetBlock(pos, state); err != nil {
			return err
		}
		eng.Handle(detect.Trigger{Kind: triggerKind(m.Kind), Pos: pos, World: m.World, State: &state})
		return nil
	case protocol.TypeLoadSection:
		var m protocol.LoadSectionMsg
		if err := json.Unmarshal(raw, &m); err != nil {
			return err
		}
		st, ok := set.Store(m.World)
		if !ok {
			return fmt.Errorf("unknown world %s", m.World)
		}
		mats, err := encoding.DecodeExact(m.RLE, worldstore.SectionVolume)
		if err != nil {
			return err
		}
		return st.LoadSection(voxel.SectionPos{X: m.Section[0], Y: m.Section[1], Z: m.Section[2]}, mats)
	}
	return errors.New("unexpected " + base.Type)
}

func triggerKind(s string) detect.TriggerKind {
	switch s {
	case "broken":
		return detect.Broken
	case "updated":
		return detect.Updated
	}
	return detect.Placed
}
