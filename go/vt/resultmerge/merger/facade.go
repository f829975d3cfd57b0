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

package merger

import (
	"context"
	"fmt"
	"sync"

	"github.com/lsst-sqre/qserv/go/vt/log"
	"github.com/lsst-sqre/qserv/go/vt/resultmerge/schema"
	"github.com/lsst-sqre/qserv/go/vt/resultmerge/wire"
	"github.com/lsst-sqre/qserv/go/vt/vterrors"
)

// Manager is the slice of *mergemanager.Manager the facade depends on:
// DDL/fixup execution, dispatching a bulk-load action for one
// envelope, and waiting for every dispatched action to finish. It is
// expressed narrowly here, rather than importing mergemanager.Manager
// directly, so the facade can be driven in tests by a fake that never
// opens a SQL connection.
type Manager interface {
	ApplySQL(ctx context.Context, sql string) error
	Load(ctx context.Context, mergeTable string, env *wire.Envelope, onResult func(error))
	Wait(ctx context.Context) error
}

// Facade is the per-query Merger Facade: the one object a worker
// connection handler feeds decoded frame bytes into, and the one
// object the coordinator calls Finalize on once every worker has
// reported it sent its last frame.
type Facade struct {
	cfg         Config
	targetTable string
	mergeTable  string

	mgr Manager
	mat *schema.Materializer

	mu    sync.Mutex
	state State
	err   error

	finalizeOnce sync.Once
	finalizeErr  error
}

// New returns a Facade for one Query Session, targeting cfg's
// resolved table names via mgr.
func New(cfg Config, mgr Manager) *Facade {
	target, merge := resolvedNames(cfg)
	return &Facade{
		cfg:         cfg,
		targetTable: target,
		mergeTable:  merge,
		mgr:         mgr,
		mat:         schema.New(merge, mgr),
		state:       Open,
	}
}

// TargetTable returns the table name the session's results will
// ultimately be visible under.
func (f *Facade) TargetTable() string { return f.targetTable }

// State returns the session's current lifecycle state.
func (f *Facade) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Err returns the first fatal error recorded on the session, if any.
func (f *Facade) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Merge feeds data into the Frame Codec and decodes every complete
// frame currently present, dispatching a Merge Manager Action for
// each. It returns the total number of bytes consumed, which the
// caller uses to slide its own input window forward, retaining only
// the unconsumed tail. Once the session has recorded a fatal error,
// Merge is a no-op that returns that error immediately without
// inspecting data.
func (f *Facade) Merge(ctx context.Context, data []byte) (int, error) {
	if err := f.checkErrored(); err != nil {
		return 0, err
	}

	consumed := 0
	for {
		env, n, err := wire.Decode(data[consumed:])
		if err == wire.ErrNeedMore {
			return consumed, nil
		}
		if err != nil {
			f.fail(err)
			return consumed, err
		}
		consumed += n

		// EnsureTable is called on every frame, not just the first:
		// the Materializer's own create-mutex and cached result are
		// what make this at-most-once, so every frame (including
		// ones racing the very first) observes a fully created table
		// or the cached creation error before its load action runs.
		if err := f.mat.EnsureTable(ctx, env.RowSchema); err != nil {
			f.fail(err)
			return consumed, err
		}
		f.markTableCreated()

		f.mgr.Load(ctx, f.mergeTable, env, func(actionErr error) {
			if actionErr != nil {
				f.fail(actionErr)
			}
		})

		if consumed >= len(data) {
			return consumed, nil
		}
	}
}

// Finalize waits for every dispatched Action to reach a terminal
// state, then, if the session requires a fixup, issues the single
// "CREATE TABLE IF NOT EXISTS <target> SELECT <projection> FROM
// <mergeTable> <suffix>" projection statement followed by "DROP TABLE
// IF EXISTS <mergeTable>". If no fixup is required the merge table IS
// the target table and Finalize performs no SQL of its own. Finalize
// is idempotent: the first call's outcome is cached and returned
// verbatim on every later call.
func (f *Facade) Finalize(ctx context.Context) error {
	f.finalizeOnce.Do(func() {
		if err := f.checkErrored(); err != nil {
			f.finalizeErr = err
			return
		}
		if err := f.mgr.Wait(ctx); err != nil {
			f.fail(err)
			f.finalizeErr = err
			return
		}
		if err := f.checkErrored(); err != nil {
			f.finalizeErr = err
			return
		}

		if f.cfg.NeedsFixup {
			create := fmt.Sprintf(
				"CREATE TABLE IF NOT EXISTS %s SELECT %s FROM %s %s",
				f.targetTable, projectionOrDefault(f.cfg.Projection), f.mergeTable, f.cfg.FixupSuffix)
			if err := f.mgr.ApplySQL(ctx, create); err != nil {
				wrapped := vterrors.Wrap(err, "fixup projection into "+f.targetTable)
				f.fail(wrapped)
				f.finalizeErr = wrapped
				return
			}
			drop := fmt.Sprintf("DROP TABLE IF EXISTS %s", f.mergeTable)
			if err := f.mgr.ApplySQL(ctx, drop); err != nil {
				log.Warningf("resultmerge/merger: drop merge table %s failed: %v", f.mergeTable, err)
			}
		}

		f.mu.Lock()
		f.state = Finalized
		f.mu.Unlock()
	})
	return f.finalizeErr
}

func (f *Facade) checkErrored() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == Errored {
		return f.err
	}
	return nil
}

func (f *Facade) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == Errored {
		return
	}
	f.state = Errored
	f.err = err
	log.Errorf("resultmerge/merger: session for %s failed: %v", f.targetTable, err)
}

// markTableCreated records the Open -> TableCreated transition after a
// successful EnsureTable call. It is idempotent and safe to call after
// the first frame too.
func (f *Facade) markTableCreated() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == Open {
		f.state = TableCreated
	}
}
