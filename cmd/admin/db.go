package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"npcsim.ai/internal/persistence/indexdb"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	runID := fs.String("run", "", "run id (defaults to the latest run)")
	agentID := fs.String("agent", "", "agent id (messages)")
	tick := fs.Uint64("tick", 0, "tick (digest)")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	q := "runs"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*worldID) == "" {
			fmt.Fprintln(os.Stderr, "missing -world or -db")
			os.Exit(2)
		}
		path = filepath.Join(*dataDir, "worlds", *worldID, "index", "world.sqlite")
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}

	idx, err := indexdb.OpenSQLite(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer idx.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := runQuery(ctx, os.Stdout, idx, q, dbQuery{RunID: *runID, AgentID: *agentID, Tick: *tick, Limit: *limit}); err != nil {
		fmt.Fprintln(os.Stderr, q+":", err)
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

type dbQuery struct {
	RunID   string
	AgentID string
	Tick    uint64
	Limit   int
}

var errUsage = errors.New("usage")

func runQuery(ctx context.Context, w io.Writer, idx *indexdb.SQLiteIndex, q string, args dbQuery) error {
	enc := json.NewEncoder(w)
	switch q {
	case "runs":
		runs, err := idx.Runs(ctx)
		if err != nil {
			return err
		}
		for _, r := range runs {
			if err := enc.Encode(r); err != nil {
				return err
			}
		}
		return nil

	case "snapshot":
		info, err := idx.LatestSnapshot(ctx)
		if err != nil {
			return err
		}
		return enc.Encode(info)

	case "messages":
		if args.AgentID == "" {
			return fmt.Errorf("%w: messages needs -agent", errUsage)
		}
		runID, err := resolveRun(ctx, idx, args.RunID)
		if err != nil {
			return err
		}
		msgs, err := idx.MessagesForAgent(ctx, runID, args.AgentID, args.Limit)
		if err != nil {
			return err
		}
		for _, m := range msgs {
			if err := enc.Encode(m); err != nil {
				return err
			}
		}
		return nil

	case "digest":
		if args.Tick == 0 {
			return fmt.Errorf("%w: digest needs -tick", errUsage)
		}
		runID, err := resolveRun(ctx, idx, args.RunID)
		if err != nil {
			return err
		}
		d, err := idx.TickDigest(ctx, runID, args.Tick)
		if err != nil {
			return err
		}
		return enc.Encode(map[string]any{"run_id": runID, "tick": args.Tick, "digest": d})

	default:
		return fmt.Errorf("%w: unknown query %q (runs|snapshot|messages|digest)", errUsage, q)
	}
}

// resolveRun defaults to the most recently started run.
func resolveRun(ctx context.Context, idx *indexdb.SQLiteIndex, runID string) (string, error) {
	if runID != "" {
		return runID, nil
	}
	runs, err := idx.Runs(ctx)
	if err != nil {
		return "", err
	}
	if len(runs) == 0 {
		return "", indexdb.ErrNotFound
	}
	return runs[len(runs)-1].RunID, nil
}
