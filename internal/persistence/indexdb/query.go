package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"npcsim.ai/internal/protocol"
)

var ErrNotFound = errors.New("not found")

// MessagesForAgent returns up to limit of the most recent messages a run
// produced about agentID, as actor or target, oldest first.
func (s *SQLiteIndex) MessagesForAgent(ctx context.Context, runID, agentID string, limit int) ([]protocol.Message, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT raw_json FROM messages
		WHERE run_id = ? AND (agent_id = ? OR target = ?)
		ORDER BY seq DESC
		LIMIT ?`, runID, agentID, agentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []protocol.Message
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var m protocol.Message
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *SQLiteIndex) TickDigest(ctx context.Context, runID string, tick uint64) (string, error) {
	var d string
	err := s.db.QueryRowContext(ctx, `SELECT digest FROM ticks WHERE run_id = ? AND tick = ?`, runID, int64(tick)).Scan(&d)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return d, err
}

// LatestSnapshot returns the most recently recorded snapshot across runs.
func (s *SQLiteIndex) LatestSnapshot(ctx context.Context) (SnapshotInfo, error) {
	var (
		info SnapshotInfo
		tick int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT run_id, tick, path FROM snapshots
		ORDER BY recorded_at DESC, tick DESC
		LIMIT 1`).Scan(&info.RunID, &tick, &info.Path)
	if errors.Is(err, sql.ErrNoRows) {
		return SnapshotInfo{}, ErrNotFound
	}
	if err != nil {
		return SnapshotInfo{}, err
	}
	info.Tick = uint64(tick)
	return info, nil
}

func (s *SQLiteIndex) Runs(ctx context.Context) ([]RunInfo, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT run_id, world_id, seed, start_tick FROM runs ORDER BY started_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RunInfo
	for rows.Next() {
		var (
			r     RunInfo
			start int64
		)
		if err := rows.Scan(&r.RunID, &r.WorldID, &r.Seed, &start); err != nil {
			return nil, err
		}
		r.StartTick = uint64(start)
		out = append(out, r)
	}
	return out, rows.Err()
}
