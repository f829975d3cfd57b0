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

package mergemanager

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/lsst-sqre/qserv/go/vt/log"
	"github.com/lsst-sqre/qserv/go/vt/resultmerge/loaddata"
	"github.com/lsst-sqre/qserv/go/vt/resultmerge/wire"
	"github.com/lsst-sqre/qserv/go/vt/vterrors"
)

// ActionState is one point in an Action's Prepared -> Running ->
// (Done | Failed) lifecycle.
type ActionState int32

const (
	Prepared ActionState = iota
	Running
	Done
	Failed
)

func (s ActionState) String() string {
	switch s {
	case Prepared:
		return "Prepared"
	case Running:
		return "Running"
	case Done:
		return "Done"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// sqlApplier is the narrow slice of Manager that Action depends on,
// so Action can be driven in tests without a live SQL connection.
type sqlApplier interface {
	ApplySQL(ctx context.Context, query string) error
}

// Action is a deferred bulk-load unit of work: it takes exclusive
// ownership of one decoded Envelope at construction — the caller must
// not retain any reference to env or its rows afterward, the explicit
// move the Qserv original expressed with std::auto_ptr — and, when
// Run, issues a single LOAD DATA LOCAL INFILE statement against
// mergeTable sourced from that envelope's rows.
type Action struct {
	applier    sqlApplier
	registry   *loaddata.Registry
	onDone     func()
	mergeTable string
	vfile      string

	state atomic.Int32
	err   error
}

// NewAction takes ownership of env, registers a RowBuffer over its
// rows under a fresh virtual file name, increments the manager's
// in-flight counter, and returns the prepared Action. Run must
// eventually be called exactly once.
func (m *Manager) NewAction(mergeTable string, env *wire.Envelope) *Action {
	m.inflight.Add(1)
	m.wg.Add(1)
	return newAction(m, m.registry, m.signalDone, mergeTable, env)
}

// newAction is the dependency-injected constructor NewAction delegates
// to; this package's tests call it directly to exercise Action
// without a live *Manager.
func newAction(applier sqlApplier, registry *loaddata.Registry, onDone func(), mergeTable string, env *wire.Envelope) *Action {
	buf := loaddata.NewRowBuffer(env)
	vfile := registry.Register(buf)
	a := &Action{
		applier:    applier,
		registry:   registry,
		onDone:     onDone,
		mergeTable: mergeTable,
		vfile:      vfile,
	}
	a.state.Store(int32(Prepared))
	return a
}

// State returns the Action's current lifecycle state.
func (a *Action) State() ActionState {
	return ActionState(a.state.Load())
}

// Err returns the terminal error if State() == Failed, else nil.
func (a *Action) Err() error {
	return a.err
}

// Run executes the bulk load. It always deregisters the virtual file
// and signals the in-flight counter exactly once, whether it succeeds
// or fails — matching spec.md §4.4's "the manager is required to
// invoke signalDone on every terminal transition".
func (a *Action) Run(ctx context.Context) error {
	a.state.Store(int32(Running))
	defer a.registry.Deregister(a.vfile)
	defer a.onDone()

	stmt := fmt.Sprintf(
		"LOAD DATA LOCAL INFILE '%s' INTO TABLE %s",
		loaddata.InfileRef(a.vfile), a.mergeTable)

	if err := a.applier.ApplySQL(ctx, stmt); err != nil {
		a.err = err
		a.state.Store(int32(Failed))
		if vterrors.IsResultTooBig(err) {
			log.Warningf("resultmerge/mergemanager: load into %s rejected, result too big", a.mergeTable)
		} else {
			log.Errorf("resultmerge/mergemanager: load into %s failed: %v", a.mergeTable, err)
		}
		return err
	}
	a.state.Store(int32(Done))
	return nil
}
