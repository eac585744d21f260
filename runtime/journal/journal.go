// Package journal stores the blocks a dev node executes in a local sqlite
// database.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/kanengo/rigging/runtime/gtest"
	"github.com/kanengo/rigging/runtime/logging"
	"github.com/kanengo/rigging/runtime/retry"
	"github.com/kanengo/rigging/runtime/scale"
)

// DB 一个把执行过的区块储存在本地文件的数据库
type DB struct {
	fName  string
	db     *sql.DB
	logger *slog.Logger

	mu      sync.Mutex
	pending []gtest.BlockRunResult
	waiters []chan struct{}
	notify  chan struct{}
	done    chan struct{}
	closed  bool
}

func Open(ctx context.Context, fName string, logger *slog.Logger) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(fName), 0700); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Discard()
	}

	const params = "?_locking_mode=NORMAL&_busy_timeout=10000"
	db, err := sql.Open("sqlite", fName+params)
	if err != nil {
		return nil, fmt.Errorf("open db %q failed: %w", fName, err)
	}
	db.SetMaxOpenConns(1)

	j := &DB{
		fName:  fName,
		db:     db,
		logger: logger,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	const initDB = `
CREATE TABLE IF NOT EXISTS blocks (
	height INTEGER NOT NULL,
	executed INTEGER,
	failed INTEGER,
	gas_burned INTEGER,
	events INTEGER,
	PRIMARY KEY(height)
);

CREATE TABLE IF NOT EXISTS messages (
	id TEXT NOT NULL,
	block INTEGER NOT NULL,
	source TEXT,
	destination TEXT,
	payload BLOB,
	value TEXT,
	is_reply INTEGER,
	reply_to TEXT,
	code BLOB,
	PRIMARY KEY(id)
);

CREATE TABLE IF NOT EXISTS events (
	block INTEGER NOT NULL,
	source TEXT,
	payload BLOB
);

CREATE INDEX IF NOT EXISTS messages_by_block ON messages (block);

-- Queryable trace data.
CREATE TABLE IF NOT EXISTS traces (
	trace_id TEXT NOT NULL,
	name TEXT,
	start_time_unix_us INTEGER,
	end_time_unix_us INTEGER,
	status TEXT,
	PRIMARY KEY(trace_id)
);

-- JSON encoded spans.
CREATE TABLE IF NOT EXISTS encoded_spans (
	trace_id TEXT NOT NULL,
	start_time_unix_us INTEGER,
	data TEXT
);
`
	if _, err := j.execDB(ctx, initDB); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open journal %s: %w", fName, err)
	}

	go j.drain()
	return j, nil
}

func (j *DB) execDB(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var res sql.Result
	err := retry.Do(ctx, retry.Default, func(ctx context.Context) error {
		var err error
		res, err = j.db.ExecContext(ctx, query, args...)
		if err != nil && !isLocked(err) {
			return retry.Permanent(err)
		}
		return err
	})
	return res, err
}

// isLocked returns whether the error is a "database is locked" error.
func isLocked(err error) bool {
	sqlError := &sqlite.Error{}
	ok := errors.As(err, &sqlError)

	return ok && (sqlError.Code() == sqlite3.SQLITE_BUSY || sqlError.Code() == sqlite3.SQLITE_LOCKED)
}

// Observe queues a block for storage. It is meant to be passed to
// gtest.WithBlockObserver and never blocks the system.
func (j *DB) Observe(r gtest.BlockRunResult) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return
	}
	j.pending = append(j.pending, r)
	j.signal()
}

// signal wakes the drainer, j.mu must be held.
func (j *DB) signal() {
	select {
	case j.notify <- struct{}{}:
	default:
	}
}

func (j *DB) drain() {
	defer close(j.done)
	for range j.notify {
		j.storePending()
	}
	j.storePending()
}

func (j *DB) storePending() {
	j.mu.Lock()
	blocks, waiters := j.pending, j.waiters
	j.pending, j.waiters = nil, nil
	j.mu.Unlock()
	for _, b := range blocks {
		if err := j.Store(context.Background(), b); err != nil {
			j.logger.Error("journal block", "height", b.Height, "err", err)
		}
	}
	for _, w := range waiters {
		close(w)
	}
}

// Store writes one block, its messages and its events in a transaction.
func (j *DB) Store(ctx context.Context, r gtest.BlockRunResult) error {
	tx, err := j.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelLinearizable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var gas uint64
	for _, g := range r.GasBurned {
		gas += g
	}

	var errs []error
	const blockStmt = `INSERT OR REPLACE INTO blocks VALUES (?,?,?,?,?)`
	if _, err := tx.ExecContext(ctx, blockStmt, r.Height, len(r.Executed), len(r.Failed), gas, len(r.Events)); err != nil {
		errs = append(errs, err)
	}
	const msgStmt = `INSERT OR REPLACE INTO messages VALUES (?,?,?,?,?,?,?,?,?)`
	for _, m := range r.Sent {
		if _, err := tx.ExecContext(ctx, msgStmt, m.ID.String(), r.Height, m.Source.String(), m.Destination.String(),
			m.Payload, m.Value.Big().String(), m.IsReply, replyTo(m), m.Code[:]); err != nil {
			errs = append(errs, err)
		}
	}
	const eventStmt = `INSERT INTO events VALUES (?,?,?)`
	for _, e := range r.Events {
		if _, err := tx.ExecContext(ctx, eventStmt, e.Block, e.Source.String(), e.Payload); err != nil {
			errs = append(errs, err)
		}
	}

	if errs != nil {
		return errors.Join(errs...)
	}
	return tx.Commit()
}

func replyTo(m gtest.MessageRecord) any {
	if !m.IsReply {
		return nil
	}
	return m.ReplyTo.String()
}

// Block is a stored block summary.
type Block struct {
	Height    uint32
	Executed  int
	Failed    int
	GasBurned uint64
	Events    int
}

// Message is a stored message.
type Message struct {
	ID          string
	Block       uint32
	Source      string
	Destination string
	Payload     []byte
	Value       string
	IsReply     bool
	ReplyTo     string
	Code        []byte
}

func (j *DB) Block(ctx context.Context, height uint32) (Block, error) {
	const q = `SELECT height, executed, failed, gas_burned, events FROM blocks WHERE height = ?`
	var b Block
	err := j.db.QueryRowContext(ctx, q, height).Scan(&b.Height, &b.Executed, &b.Failed, &b.GasBurned, &b.Events)
	return b, err
}

// Messages returns the messages sent in block height.
func (j *DB) Messages(ctx context.Context, height uint32) ([]Message, error) {
	const q = `SELECT id, block, source, destination, payload, value, is_reply, COALESCE(reply_to, ''), code
FROM messages WHERE block = ? ORDER BY rowid`
	rows, err := j.db.QueryContext(ctx, q, height)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.Block, &m.Source, &m.Destination, &m.Payload, &m.Value, &m.IsReply, &m.ReplyTo, &m.Code); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// EventsFrom returns the payloads source emitted.
func (j *DB) EventsFrom(ctx context.Context, source scale.ActorID) ([][]byte, error) {
	const q = `SELECT payload FROM events WHERE source = ? ORDER BY rowid`
	rows, err := j.db.QueryContext(ctx, q, source.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out [][]byte
	for rows.Next() {
		var p []byte
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Flush waits until every block observed so far is stored.
func (j *DB) Flush(ctx context.Context) error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil
	}
	w := make(chan struct{})
	j.waiters = append(j.waiters, w)
	j.signal()
	j.mu.Unlock()

	select {
	case <-w:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (j *DB) Close() error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil
	}
	j.closed = true
	close(j.notify)
	j.mu.Unlock()
	<-j.done
	return j.db.Close()
}
