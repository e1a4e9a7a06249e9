package archive

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"npcsim.ai/internal/persistence/snapshot"
)

const secondsPerDay = 24 * 60 * 60

type DayArchiveMeta struct {
	Day       uint32 `json:"day"`
	WorldID   string `json:"world_id"`
	RunID     string `json:"run_id"`
	Tick      uint64 `json:"tick"`
	Seed      int64  `json:"seed"`
	Snapshot  string `json:"snapshot"`
	CreatedAt string `json:"created_at"`
}

// SnapshotDay is the game day (starting at 1) a snapshot was taken on.
func SnapshotDay(snap snapshot.SnapshotV1) uint32 {
	return uint32(snap.Clock.Seconds/secondsPerDay) + 1
}

// ArchiveDaySnapshot copies the first snapshot of each game day into
// `worldDir/archives/day_<NNN>/`. Later snapshots of an archived day are left
// alone and return archived=false.
func ArchiveDaySnapshot(worldDir, snapshotPath string, snap snapshot.SnapshotV1) (day uint32, archivedPath string, archived bool, err error) {
	day = SnapshotDay(snap)
	archiveDir := filepath.Join(worldDir, "archives", fmt.Sprintf("day_%03d", day))
	metaPath := filepath.Join(archiveDir, "meta.json")
	if _, err := os.Stat(metaPath); err == nil {
		return day, "", false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return day, "", false, err
	}
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return day, "", false, err
	}

	dst := filepath.Join(archiveDir, filepath.Base(snapshotPath))
	if err := copyFile(snapshotPath, dst); err != nil {
		return day, "", false, err
	}

	meta := DayArchiveMeta{
		Day:       day,
		WorldID:   snap.Header.WorldID,
		RunID:     snap.Header.RunID,
		Tick:      snap.Header.Tick,
		Seed:      snap.Seed,
		Snapshot:  filepath.Base(dst),
		CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	b, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return day, "", false, err
	}
	// meta.json marks the day as done, so it is written last.
	if err := os.WriteFile(metaPath, b, 0o644); err != nil {
		return day, "", false, err
	}
	return day, dst, true, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
