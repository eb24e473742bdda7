package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"llmsim.ai/internal/sim/world"
)

const schemaVersion = "1"

// SQLiteIndex is a queryable read model of the tick log. Writes are queued and
// applied by one goroutine; the JSONL tick log stays the source of truth.
type SQLiteIndex struct {
	db    *sqlx.DB
	runID string

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTick atomic.Uint64
	written  atomic.Uint64
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqMeta
)

type req struct {
	kind reqKind

	tick world.TickLogEntry
	key  string
	val  string
}

type Stats struct {
	QueueDepth    int    `json:"queue_depth"`
	QueueCapacity int    `json:"queue_capacity"`
	DropTickTotal uint64 `json:"drop_tick_total"`
	TicksWritten  uint64 `json:"ticks_written"`
}

// Row types returned by the query helpers.
type TickRow struct {
	Tick           int    `db:"tick" json:"tick"`
	RunID          string `db:"run_id" json:"run_id"`
	Digest         string `db:"digest" json:"digest"`
	Actions        int    `db:"actions" json:"actions"`
	Events         int    `db:"events" json:"events"`
	OracleFailures int    `db:"oracle_failures" json:"oracle_failures"`
}

type FlowTotal struct {
	Entity string `db:"entity" json:"entity"`
	Item   string `db:"item" json:"item"`
	Qty    int    `db:"qty" json:"qty"`
}

type FailureRow struct {
	Tick     int    `db:"tick" json:"tick"`
	AgentID  string `db:"agent_id" json:"agent_id"`
	Attempts int    `db:"attempts" json:"attempts"`
	Action   string `db:"action" json:"action"`
}

type DeathRow struct {
	Tick    int    `db:"tick" json:"tick"`
	AgentID string `db:"agent_id" json:"agent_id"`
	Cause   string `db:"cause" json:"cause"`
	Place   string `db:"place" json:"place"`
}

// OpenSQLite opens (creating if needed) the index at path and starts its
// writer. runID is recorded in the meta table.
func OpenSQLite(path string, runID string) (*SQLiteIndex, error) {
	return openSQLite(path, runID, 262144)
}

func openSQLite(path string, runID string, queue int) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db.DB); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db.DB); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version',?)`, schemaVersion); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db:    db,
		runID: runID,
		ch:    make(chan req, queue),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	if runID != "" {
		s.SetMeta("run_id", runID)
		s.SetMeta("opened_at", time.Now().UTC().Format(time.RFC3339Nano))
	}
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
		`CREATE TABLE IF NOT EXISTS ticks (
			run_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			digest TEXT NOT NULL,
			actions INTEGER NOT NULL,
			events INTEGER NOT NULL,
			oracle_failures INTEGER NOT NULL,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (run_id, tick)
		);`,
		`CREATE TABLE IF NOT EXISTS actions (
			run_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			agent_id TEXT NOT NULL,
			verb TEXT NOT NULL,
			requested TEXT NOT NULL,
			resolved TEXT NOT NULL,
			result TEXT NOT NULL,
			forced INTEGER NOT NULL,
			PRIMARY KEY (run_id, tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_actions_agent_tick ON actions(agent_id, tick);`,
		`CREATE TABLE IF NOT EXISTS flows (
			run_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			entity TEXT NOT NULL,
			item TEXT NOT NULL,
			qty INTEGER NOT NULL,
			PRIMARY KEY (run_id, tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_flows_entity_item ON flows(entity, item);`,
		`CREATE TABLE IF NOT EXISTS oracle_failures (
			run_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			agent_id TEXT NOT NULL,
			attempts INTEGER NOT NULL,
			action TEXT NOT NULL,
			PRIMARY KEY (run_id, tick, agent_id)
		);`,
		`CREATE TABLE IF NOT EXISTS deaths (
			run_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			agent_id TEXT NOT NULL,
			cause TEXT NOT NULL,
			place TEXT NOT NULL,
			PRIMARY KEY (run_id, agent_id)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Close drains the queue, commits and closes the database.
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

// WriteTick implements world.TickLogger. It never blocks the tick loop.
func (s *SQLiteIndex) WriteTick(entry world.TickLogEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqTick, tick: entry}:
	default:
		s.dropTick.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) SetMeta(key, value string) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqMeta, key: key, val: value}:
	default:
	}
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:    len(s.ch),
		QueueCapacity: cap(s.ch),
		DropTickTotal: s.dropTick.Load(),
		TicksWritten:  s.written.Load(),
	}
}

func (s *SQLiteIndex) RunID() string { return s.runID }

// Ticks lists indexed ticks of a run in [from, to).
func (s *SQLiteIndex) Ticks(ctx context.Context, runID string, from, to int) ([]TickRow, error) {
	var out []TickRow
	err := s.db.SelectContext(ctx, &out,
		`SELECT tick, run_id, digest, actions, events, oracle_failures FROM ticks
		 WHERE run_id = ? AND tick >= ? AND tick < ? ORDER BY tick`, runID, from, to)
	return out, err
}

// Flows sums resource flows per (entity, item) for a run.
func (s *SQLiteIndex) Flows(ctx context.Context, runID string) ([]FlowTotal, error) {
	var out []FlowTotal
	err := s.db.SelectContext(ctx, &out,
		`SELECT entity, item, SUM(qty) AS qty FROM flows WHERE run_id = ?
		 GROUP BY entity, item ORDER BY entity, item`, runID)
	return out, err
}

func (s *SQLiteIndex) Failures(ctx context.Context, runID string) ([]FailureRow, error) {
	var out []FailureRow
	err := s.db.SelectContext(ctx, &out,
		`SELECT tick, agent_id, attempts, action FROM oracle_failures WHERE run_id = ?
		 ORDER BY tick, agent_id`, runID)
	return out, err
}

func (s *SQLiteIndex) Deaths(ctx context.Context, runID string) ([]DeathRow, error) {
	var out []DeathRow
	err := s.db.SelectContext(ctx, &out,
		`SELECT tick, agent_id, cause, place FROM deaths WHERE run_id = ? ORDER BY tick, agent_id`, runID)
	return out, err
}

func (s *SQLiteIndex) Meta(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.GetContext(ctx, &v, `SELECT value FROM meta WHERE key = ?`, key)
	return v, err
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertTick, _ := s.db.Prepare(`INSERT OR REPLACE INTO ticks(run_id,tick,digest,actions,events,oracle_failures,raw_json) VALUES(?,?,?,?,?,?,?)`)
	insertAction, _ := s.db.Prepare(`INSERT OR REPLACE INTO actions(run_id,tick,seq,agent_id,verb,requested,resolved,result,forced) VALUES(?,?,?,?,?,?,?,?,?)`)
	insertFlow, _ := s.db.Prepare(`INSERT OR REPLACE INTO flows(run_id,tick,seq,entity,item,qty) VALUES(?,?,?,?,?,?)`)
	insertFailure, _ := s.db.Prepare(`INSERT OR REPLACE INTO oracle_failures(run_id,tick,agent_id,attempts,action) VALUES(?,?,?,?,?)`)
	insertDeath, _ := s.db.Prepare(`INSERT OR REPLACE INTO deaths(run_id,tick,agent_id,cause,place) VALUES(?,?,?,?,?)`)
	insertMeta, _ := s.db.Prepare(`INSERT OR REPLACE INTO meta(key,value) VALUES(?,?)`)
	stmts := []*sql.Stmt{insertTick, insertAction, insertFlow, insertFailure, insertDeath, insertMeta}
	defer func() {
		for _, st := range stmts {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		pending       uint64
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
		if err := tx.Commit(); err == nil {
			s.written.Add(pending)
		}
		tx = nil
		opCount = 0
		pending = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		pending = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) bool {
		if st == nil {
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
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqMeta:
			exec(insertMeta, r.key, r.val)

		case reqTick:
			if s.writeTick(r.tick, exec, insertTick, insertAction, insertFlow, insertFailure, insertDeath) {
				pending++
			}
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}

	commit()
}

func (s *SQLiteIndex) writeTick(e world.TickLogEntry, exec func(*sql.Stmt, ...any) bool, tick, action, flow, failure, death *sql.Stmt) bool {
	runID := e.RunID
	if runID == "" {
		runID = s.runID
	}
	raw, _ := json.Marshal(e)
	if !exec(tick, runID, e.Tick, e.Digest, len(e.Actions), len(e.Events), e.OracleFailures, string(raw)) {
		return false
	}
	for i, a := range e.Actions {
		if !exec(action, runID, e.Tick, i, a.AgentID, a.Verb, a.Requested, a.Resolved, a.Result, a.Forced) {
			return false
		}
		if a.Failed && !exec(failure, runID, e.Tick, a.AgentID, a.Attempts, a.Resolved) {
			return false
		}
	}
	for i, f := range e.Flows {
		if !exec(flow, runID, e.Tick, i, f.Entity, f.Item, f.Qty) {
			return false
		}
	}
	for _, d := range e.Deaths {
		if !exec(death, runID, d.Tick, d.AgentID, d.Cause, d.Place) {
			return false
		}
	}
	return true
}
