package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	persistlog "npcsim.ai/internal/persistence/log"
	"npcsim.ai/internal/protocol"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "db":
			dbCmd(os.Args[2:])
			return
		case "messages":
			messagesCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (optional)")
	_ = fs.Parse(args)

	base := filepath.Join(*dataDir, "worlds")
	if *worldID != "" {
		base = filepath.Join(base, *worldID)
	}

	entries, err := os.ReadDir(base)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		fmt.Println(e.Name())
	}
}

// messagesCmd reads the log-only messages (MOVEMENT, BLOCKED, ERROR) from the
// message log, so they stay readable with the index off.
func messagesCmd(args []string) {
	fs := flag.NewFlagSet("messages", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id")
	agentID := fs.String("agent", "", "only messages about this agent (optional)")
	kind := fs.String("kind", "", "only this message kind (optional)")
	limit := fs.Int("limit", 50, "newest N messages")
	asText := fs.Bool("text", false, "print display text instead of json")
	_ = fs.Parse(args)

	if strings.TrimSpace(*worldID) == "" {
		fmt.Fprintln(os.Stderr, "missing -world")
		os.Exit(2)
	}
	msgs, err := persistlog.ReadMessages(filepath.Join(*dataDir, "worlds", *worldID))
	if err != nil {
		fmt.Fprintln(os.Stderr, "read messages:", err)
		os.Exit(1)
	}
	msgs = filterMessages(msgs, *agentID, protocol.MessageKind(strings.ToUpper(strings.TrimSpace(*kind))), *limit)
	if err := printMessages(os.Stdout, msgs, *asText); err != nil {
		fmt.Fprintln(os.Stderr, "write:", err)
		os.Exit(1)
	}
}

// filterMessages keeps the newest limit messages matching agentID and kind,
// oldest first.
func filterMessages(msgs []protocol.Message, agentID string, kind protocol.MessageKind, limit int) []protocol.Message {
	out := make([]protocol.Message, 0, len(msgs))
	for _, m := range msgs {
		if agentID != "" && m.AgentID != agentID && m.Target != agentID {
			continue
		}
		if kind != "" && m.Kind != kind {
			continue
		}
		out = append(out, m)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

func printMessages(w io.Writer, msgs []protocol.Message, asText bool) error {
	if asText {
		for _, m := range msgs {
			if _, err := fmt.Fprintf(w, "[%d] %s\n", m.Tick, m.DisplayText()); err != nil {
				return err
			}
		}
		return nil
	}
	enc := json.NewEncoder(w)
	for _, m := range msgs {
		if err := enc.Encode(m); err != nil {
			return err
		}
	}
	return nil
}
