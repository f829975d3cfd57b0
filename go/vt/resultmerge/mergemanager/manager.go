/*
Copyright 2024 The Qserv Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package mergemanager owns the single SQL connection used to bulk
// load worker result fragments into a merge table, serializes all SQL
// issued against it, and tracks in-flight load actions so a session
// can wait for all of them to finish before finalizing. Modeled on
// InfileMerger::Mgr.
package mergemanager

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"sync"

	gomysql "github.com/go-sql-driver/mysql"

	"github.com/lsst-sqre/qserv/go/sync2"
	"github.com/lsst-sqre/qserv/go/vt/resultmerge/loaddata"
	"github.com/lsst-sqre/qserv/go/vt/resultmerge/wire"
	"github.com/lsst-sqre/qserv/go/vt/vterrors"
)

// Manager owns exactly one *sql.DB connection (configured with
// MaxOpenConns(1) so database/sql never multiplexes it across
// goroutines behind our backs) and the Load Channel Registry that
// feeds it. All SQL issued through a Manager is serialized by connMu,
// matching the spec's single-connection-for-merging contract.
//
// Dispatch bounds how many Actions may be Running at once via sem;
// wg/inflight track every Action from creation to terminal state
// regardless of whether it has acquired a slot yet, so Wait reflects
// the full backlog a session's finalize step must drain.
type Manager struct {
	db       *sql.DB
	registry *loaddata.Registry

	connMu sync.Mutex // guards all SQL statement execution

	sem      chan struct{}
	wg       sync.WaitGroup
	inflight sync2.AtomicInt64
}

// DefaultMaxConcurrentLoads bounds Dispatch concurrency when Open is
// called without a caller-supplied limit.
const DefaultMaxConcurrentLoads = 4

// Open connects to dsn (a go-sql-driver/mysql DSN) and returns a
// Manager driving that single connection. The connection is
// configured to never exceed one concurrent use so that Manager's own
// mutex is the sole point of serialization, as spec.md §5 requires.
// maxConcurrentLoads bounds how many Actions Dispatch runs at once; a
// value <= 0 falls back to DefaultMaxConcurrentLoads.
func Open(dsn string, maxConcurrentLoads int) (*Manager, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, vterrors.Wrap(err, "open SQL connection")
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, vterrors.Errorf(vterrors.MySQLConnect, "connect: %v", err)
	}
	if maxConcurrentLoads <= 0 {
		maxConcurrentLoads = DefaultMaxConcurrentLoads
	}
	return &Manager{
		db:       db,
		registry: loaddata.NewRegistry(),
		sem:      make(chan struct{}, maxConcurrentLoads),
	}, nil
}

// Close releases the underlying connection. Callers must ensure no
// Action is in flight.
func (m *Manager) Close() error {
	return m.db.Close()
}

// ApplySQL serializes sql execution against the single connection. A
// lost connection is surfaced as MySQLConnect without any silent
// reconnect attempt, per spec.md §4.4.
func (m *Manager) ApplySQL(ctx context.Context, query string) error {
	m.connMu.Lock()
	defer m.connMu.Unlock()

	if _, err := m.db.ExecContext(ctx, query); err != nil {
		if errors.Is(err, sql.ErrConnDone) || errors.Is(err, driver.ErrBadConn) {
			return vterrors.Errorf(vterrors.MySQLConnect, "connection unavailable: %v", err)
		}
		var sqlErr *gomysql.MySQLError
		if errors.As(err, &sqlErr) {
			return vterrors.WithErrno(fmt.Sprintf("exec failed (errno %d): %s", sqlErr.Number, sqlErr.Message), int(sqlErr.Number))
		}
		return vterrors.Errorf(vterrors.MySQLExec, "exec failed: %v", err)
	}
	return nil
}

// InFlight returns the current number of load actions that have been
// created but have not yet called signalDone.
func (m *Manager) InFlight() int64 {
	return m.inflight.Get()
}

// Load constructs an Action for env against mergeTable and dispatches
// it, combining NewAction and Dispatch for callers (the Merger Facade,
// chiefly) that have no need to hold the intermediate *Action.
func (m *Manager) Load(ctx context.Context, mergeTable string, env *wire.Envelope, onResult func(error)) {
	m.Dispatch(ctx, m.NewAction(mergeTable, env), onResult)
}

// Dispatch hands a to a bounded pool of at most maxConcurrentLoads
// concurrently Running Actions and returns immediately; the caller
// learns the outcome asynchronously via onResult, which runs exactly
// once per Dispatch call. Backpressure is applied inside the spawned
// goroutine, not against the caller, so feeding frames never blocks on
// load throughput.
func (m *Manager) Dispatch(ctx context.Context, a *Action, onResult func(error)) {
	go func() {
		m.sem <- struct{}{}
		defer func() { <-m.sem }()
		err := a.Run(ctx)
		if onResult != nil {
			onResult(err)
		}
	}()
}

// Wait blocks until every Action created so far has reached a terminal
// state, or ctx is done first. It is the "waits for the in-flight
// counter to reach zero" step finalize performs before Qserv's fixup
// SQL runs.
func (m *Manager) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// signalDone decrements the in-flight counter. It is invoked on every
// terminal transition of an Action (Done or Failed), per spec.md §4.4.
func (m *Manager) signalDone() {
	m.inflight.Add(-1)
	m.wg.Done()
}

