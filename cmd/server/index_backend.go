package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"npcsim.ai/internal/persistence/indexdb"
	"npcsim.ai/internal/protocol"
	"npcsim.ai/internal/sim/kernel"
)

// openRuntimeIndex returns nil when indexing is off. The index never affects
// simulation determinism.
func openRuntimeIndex(worldDir string, disableDB bool) (*indexdb.SQLiteIndex, error) {
	if disableDB {
		return nil, nil
	}
	backend := strings.ToLower(strings.TrimSpace(os.Getenv("NPCSIM_INDEX_BACKEND")))
	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "", "sqlite":
		return indexdb.OpenSQLite(filepath.Join(worldDir, "index", "world.sqlite"))
	default:
		return nil, fmt.Errorf("unsupported NPCSIM_INDEX_BACKEND: %s", backend)
	}
}

type multiTickLogger []kernel.TickLogger

// WriteTick reports the first error but always writes to every logger.
func (m multiTickLogger) WriteTick(rec protocol.TickRecord) error {
	var first error
	for _, l := range m {
		if err := l.WriteTick(rec); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type multiPresenter []kernel.Presenter

func (m multiPresenter) Present(tick uint64, msgs []protocol.Message) {
	for _, p := range m {
		p.Present(tick, msgs)
	}
}
