package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"npcsim.ai/internal/persistence/snapshot"
	"npcsim.ai/internal/protocol"
	"npcsim.ai/internal/sim/catalogs"
	"npcsim.ai/internal/sim/tuning"
)

var ErrClosed = errors.New("index closed")

// Fixed width so timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func now() string { return time.Now().UTC().Format(timeLayout) }

// SQLiteIndex is a queryable read model of a run: ticks, messages and
// snapshot metadata. Writes are queued to one writer goroutine and dropped
// when the queue is full; the tick log stays the source of truth.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTick     atomic.Uint64
	dropMessages atomic.Uint64
	dropSnapshot atomic.Uint64
	writeErrors  atomic.Uint64
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqMessages
	reqSnapshot
	reqFlush
)

type req struct {
	kind reqKind

	tick     protocol.TickRecord
	runID    string
	messages []protocol.Message
	snapshot snapshotRow
	done     chan struct{}
}

type snapshotRow struct {
	RunID  string
	Tick   uint64
	Path   string
	Seed   int64
	Maps   int
	Agents int
	Trades int
}

// RunInfo identifies one process lifetime of a world.
type RunInfo struct {
	RunID     string
	WorldID   string
	Seed      int64
	StartTick uint64
}

type SnapshotInfo struct {
	RunID string
	Tick  uint64
	Path  string
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	return openSQLite(path, 65536)
}

func openSQLite(path string, queueSize int) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite pragmas: %w", err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, queueSize),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			world_id TEXT NOT NULL,
			seed INTEGER NOT NULL,
			start_tick INTEGER NOT NULL,
			started_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			run_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			digest TEXT NOT NULL,
			events INTEGER NOT NULL,
			messages INTEGER NOT NULL,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (run_id, tick)
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			run_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			tick INTEGER NOT NULL,
			kind TEXT NOT NULL,
			agent_id TEXT NOT NULL,
			target TEXT NOT NULL,
			text TEXT NOT NULL,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (run_id, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_agent_seq ON messages(agent_id, run_id, seq);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_target_seq ON messages(target, run_id, seq);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			run_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			path TEXT NOT NULL,
			seed INTEGER NOT NULL,
			maps INTEGER NOT NULL,
			agents INTEGER NOT NULL,
			trades INTEGER NOT NULL,
			recorded_at TEXT NOT NULL,
			PRIMARY KEY (run_id, tick)
		);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// BeginRun records a run row synchronously.
func (s *SQLiteIndex) BeginRun(ctx context.Context, r RunInfo) error {
	if s.closed.Load() {
		return ErrClosed
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs(run_id,world_id,seed,start_tick,started_at) VALUES(?,?,?,?,?)`,
		r.RunID, r.WorldID, r.Seed, int64(r.StartTick), now())
	return err
}

// WriteTick makes the index usable as a kernel tick logger. It never blocks.
func (s *SQLiteIndex) WriteTick(rec protocol.TickRecord) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqTick, tick: rec}:
	default:
		s.dropTick.Add(1)
	}
	return nil
}

// MessagePresenter adapts the index to the kernel Presenter interface for
// one run.
type MessagePresenter struct {
	idx   *SQLiteIndex
	runID string
}

func (s *SQLiteIndex) Messages(runID string) *MessagePresenter {
	return &MessagePresenter{idx: s, runID: runID}
}

func (p *MessagePresenter) Present(_ uint64, msgs []protocol.Message) {
	p.idx.RecordMessages(p.runID, msgs)
}

func (s *SQLiteIndex) RecordMessages(runID string, msgs []protocol.Message) {
	if s == nil || s.closed.Load() || len(msgs) == 0 {
		return
	}
	select {
	case s.ch <- req{kind: reqMessages, runID: runID, messages: msgs}:
	default:
		s.dropMessages.Add(1)
	}
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil || s.closed.Load() {
		return
	}
	r := snapshotRow{
		RunID:  snap.Header.RunID,
		Tick:   snap.Header.Tick,
		Path:   path,
		Seed:   snap.Seed,
		Maps:   len(snap.Maps),
		Agents: len(snap.Agents),
		Trades: len(snap.Trades),
	}
	select {
	case s.ch <- req{kind: reqSnapshot, snapshot: r}:
	default:
		s.dropSnapshot.Add(1)
	}
}

// Flush waits until every write queued before the call is committed.
func (s *SQLiteIndex) Flush(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	done := make(chan struct{})
	select {
	case s.ch <- req{kind: reqFlush, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SQLiteIndex) UpsertCatalogs(items *catalogs.ItemCatalog, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	ts := now()

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	if items != nil {
		defs := make([]catalogs.ItemDef, 0, len(items.Defs))
		for _, d := range items.Defs {
			defs = append(defs, d)
		}
		sort.Slice(defs, func(i, j int) bool { return defs[i].ID < defs[j].ID })
		if b, _ := json.Marshal(defs); len(b) > 0 {
			rows = append(rows, kv{name: "items_defs", digest: items.DefsDigest, json: b})
		}
		if b, _ := json.Marshal(items.Palette); len(b) > 0 {
			rows = append(rows, kv{name: "items_palette", digest: digestHex(b), json: b})
		}
	}
	if b, _ := json.Marshal(tune); len(b) > 0 {
		rows = append(rows, kv{name: "tuning", digest: digestHex(b), json: b})
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if r.digest == "" {
			continue
		}
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), ts); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func digestHex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

type Stats struct {
	QueueDepth        int
	QueueCapacity     int
	DropTickTotal     uint64
	DropMessageTotal  uint64
	DropSnapshotTotal uint64
	WriteErrorTotal   uint64
}

func (s *SQLiteIndex) Stats() Stats {
	return Stats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropTickTotal:     s.dropTick.Load(),
		DropMessageTotal:  s.dropMessages.Load(),
		DropSnapshotTotal: s.dropSnapshot.Load(),
		WriteErrorTotal:   s.writeErrors.Load(),
	}
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertTick, _ := s.db.Prepare(`INSERT OR REPLACE INTO ticks(run_id,tick,digest,events,messages,raw_json) VALUES(?,?,?,?,?,?)`)
	insertMessage, _ := s.db.Prepare(`INSERT OR REPLACE INTO messages(run_id,seq,tick,kind,agent_id,target,text,raw_json) VALUES(?,?,?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(run_id,tick,path,seed,maps,agents,trades,recorded_at) VALUES(?,?,?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertTick, insertMessage, insertSnapshot} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			s.writeErrors.Add(1)
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			s.writeErrors.Add(1)
		}
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		s.writeErrors.Add(1)
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) bool {
		if st == nil || tx == nil {
			return false
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return false
		}
		opCount++
		return true
	}

	for r := range s.ch {
		if r.kind == reqFlush {
			commit()
			close(r.done)
			continue
		}
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqTick:
			b, _ := json.Marshal(r.tick)
			exec(insertTick, r.tick.RunID, int64(r.tick.Tick), r.tick.Digest, len(r.tick.Events), r.tick.Messages, string(b))

		case reqMessages:
			for _, m := range r.messages {
				raw, _ := json.Marshal(m)
				if !exec(insertMessage, r.runID, int64(m.Seq), int64(m.Tick), string(m.Kind), m.AgentID, m.Target, m.DisplayText(), string(raw)) {
					break
				}
			}

		case reqSnapshot:
			sn := r.snapshot
			exec(insertSnapshot, sn.RunID, int64(sn.Tick), sn.Path, sn.Seed, sn.Maps, sn.Agents, sn.Trades, now())
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}

	commit()
}
