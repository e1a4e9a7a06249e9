package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

type Header struct {
	Version int    `json:"version"`
	WorldID string `json:"world_id"`
	RunID   string `json:"run_id"`
	Tick    uint64 `json:"tick"`
}

type SnapshotV1 struct {
	Header Header `json:"header"`

	Seed int64 `json:"seed"`

	// Rule parameters, captured so a resumed world keeps the rules it ran with.
	VisibilityRadius  int          `json:"visibility_radius"`
	GameSpeed         float64      `json:"game_speed"`
	MoveFailure       string       `json:"move_failure"`
	CombatMemoryTicks int          `json:"combat_memory_ticks"`
	TradeSessionTicks int          `json:"trade_session_ticks"`
	RateLimits        RateLimitsV1 `json:"rate_limits"`

	Clock ClockV1 `json:"clock"`

	Maps   []MapV1   `json:"maps"`
	Agents []AgentV1 `json:"agents"`
	Trades []TradeV1 `json:"trades"`

	Counters CountersV1 `json:"counters"`

	Events []EventRunV1 `json:"events,omitempty"`
}

// EventRunV1 is how often a scheduled event has fired and when it last did,
// in clock seconds.
type EventRunV1 struct {
	ID        string `json:"id"`
	Count     int    `json:"count"`
	LastFired uint64 `json:"last_fired"`
}

type RateLimitsV1 struct {
	SayWindowTicks int `json:"say_window_ticks,omitempty"`
	SayMax         int `json:"say_max,omitempty"`
}

type ClockV1 struct {
	Seconds uint64 `json:"seconds"`
	CarryMs int64  `json:"carry_ms"`
}

type TerrainV1 struct {
	Kind        string `json:"kind"`
	Walkable    bool   `json:"walkable"`
	Description string `json:"description"`
}

// MapV1 stores terrain as a palette plus one palette index per cell, row-major.
type MapV1 struct {
	ID      string         `json:"id"`
	Name    string         `json:"name"`
	Width   int            `json:"width"`
	Height  int            `json:"height"`
	Palette []TerrainV1    `json:"palette"`
	Cells   []uint16       `json:"cells"`
	Items   []GroundItemV1 `json:"items,omitempty"`
}

type GroundItemV1 struct {
	X     int    `json:"x"`
	Y     int    `json:"y"`
	Item  string `json:"item"`
	Count int    `json:"count"`
}

type AgentV1 struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Kind  string `json:"kind"`
	MapID string `json:"map_id"`
	X     int    `json:"x"`
	Y     int    `json:"y"`

	HP    int `json:"hp"`
	MaxHP int `json:"max_hp"`
	MP    int `json:"mp"`
	MaxMP int `json:"max_mp"`

	Inventory map[string]int `json:"inventory,omitempty"`

	Interacting bool   `json:"interacting"`
	PartyID     string `json:"party_id,omitempty"`
	PartyLeader bool   `json:"party_leader,omitempty"`

	Dialogue []string `json:"dialogue,omitempty"`

	CombatTarget string `json:"combat_target,omitempty"`
	CombatUntil  uint64 `json:"combat_until,omitempty"`
	Dead         bool   `json:"dead,omitempty"`

	RateWindows []RateWindowV1 `json:"rate_windows,omitempty"`
}

type RateWindowV1 struct {
	Kind      string `json:"kind"`
	StartTick uint64 `json:"start_tick"`
	Count     int    `json:"count"`
	Window    uint64 `json:"window"`
	Max       int    `json:"max"`
}

type TradeV1 struct {
	ID          string `json:"id"`
	A           string `json:"a"`
	B           string `json:"b"`
	OpenedTick  uint64 `json:"opened_tick"`
	ExpiresTick uint64 `json:"expires_tick"`
}

type CountersV1 struct {
	NextTrade uint64 `json:"next_trade"`
}

func WriteSnapshot(path string, snap SnapshotV1) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// The JSON header line is for humans and tools; gob carries it too.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("%w: %d", ErrUnsupportedVersion, snap.Header.Version)
	}
	return snap, nil
}

var ErrUnsupportedVersion = errors.New("unsupported snapshot version")

// ReadHeader decodes only the leading JSON header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()
	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}
