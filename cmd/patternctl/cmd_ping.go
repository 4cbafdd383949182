package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"blockpatterns.dev/internal/protocol"
)

var pingFlags struct {
	url      string
	worlds   []string
	patterns []string
	follow   time.Duration
}

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Handshake with a running server and optionally follow its matches",
	RunE:  runPing,
}

func init() {
	f := pingCmd.Flags()
	f.StringVar(&pingFlags.url, "url", "ws://127.0.0.1:8080/v1/ws", "server websocket url")
	f.StringSliceVar(&pingFlags.worlds, "world", nil, "only follow matches in these worlds")
	f.StringSliceVar(&pingFlags.patterns, "pattern", nil, "only follow matches of these patterns")
	f.DurationVar(&pingFlags.follow, "follow", 0, "print MATCH messages for this long after WELCOME")
}

func runPing(cmd *cobra.Command, _ []string) error {
	start := time.Now()
	conn, _, err := websocket.DefaultDialer.DialContext(cmd.Context(), pingFlags.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      "patternctl",
		Worlds:          pingFlags.worlds,
		Patterns:        pingFlags.patterns,
	}
	if err := conn.WriteJSON(hello); err != nil {
		return err
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, b, err := conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("read WELCOME: %w", err)
	}
	base, err := protocol.DecodeBase(b)
	if err != nil {
		return err
	}
	if base.Type == protocol.TypeError {
		var e protocol.ErrorMsg
		_ = json.Unmarshal(b, &e)
		return fmt.Errorf("server refused: %s %s", e.Code, e.Message)
	}
	var w protocol.WelcomeMsg
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "session %s, index v%d, %d patterns, %d worlds, rtt %s\n",
		w.SessionID, w.IndexVersion, w.Catalogs.Patterns, len(w.Worlds), time.Since(start).Round(time.Millisecond))

	if pingFlags.follow <= 0 {
		return nil
	}
	deadline := time.Now().Add(pingFlags.follow)
	_ = conn.SetReadDeadline(deadline)
	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			if time.Now().After(deadline) {
				return nil
			}
			return err
		}
		if base, err := protocol.DecodeBase(b); err == nil && base.Type == protocol.TypeMatch {
			fmt.Fprintln(out, string(b))
		}
	}
}
