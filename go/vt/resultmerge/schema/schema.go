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

// Package schema turns the row schema declared by the first frame of
// a query session into a CREATE TABLE statement for the transient
// merge table, and guarantees it is issued at most once per session.
// Modeled on InfileMerger::_setupTable.
package schema

import (
	"context"
	"strings"
	"sync"

	"github.com/lsst-sqre/qserv/go/vt/log"
	"github.com/lsst-sqre/qserv/go/vt/resultmerge/wire"
	"github.com/lsst-sqre/qserv/go/vt/vterrors"
)

// Applier issues DDL against the SQL engine. *mergemanager.Manager
// satisfies this; it is expressed narrowly here so schema does not
// import mergemanager (the merger package constructs the Materializer
// and hands it its Manager).
type Applier interface {
	ApplySQL(ctx context.Context, sql string) error
}

// Materializer ensures the merge table for one query session exists,
// issuing at most one CREATE TABLE statement regardless of how many
// frames arrive or how many goroutines call EnsureTable concurrently.
type Materializer struct {
	mergeTable string
	applier    Applier

	mu      sync.Mutex // serializes creation; never held during SQL other than the CREATE itself
	created bool
	err     error
}

// New returns a Materializer targeting mergeTable via applier.
func New(mergeTable string, applier Applier) *Materializer {
	return &Materializer{mergeTable: mergeTable, applier: applier}
}

// EnsureTable materializes the merge table from rs on the first
// successful call for this Materializer; subsequent calls (including
// concurrent ones) observe the cached result without issuing SQL
// again. Once an error has been recorded, every later call returns it
// verbatim without retrying the DDL.
func (m *Materializer) EnsureTable(ctx context.Context, rs wire.RowSchema) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.created || m.err != nil {
		return m.err
	}

	stmt := buildCreateTable(m.mergeTable, rs)
	log.Infof("resultmerge/schema: creating merge table %s", m.mergeTable)
	if err := m.applier.ApplySQL(ctx, stmt); err != nil {
		m.err = vterrors.Errorf(vterrors.CreateTable, "create merge table %s: %v", m.mergeTable, err)
		return m.err
	}
	m.created = true
	return nil
}

// buildCreateTable renders a CREATE TABLE IF NOT EXISTS statement
// whose column order matches rs exactly, carrying each column's SQL
// type, optional storage-engine type override, and optional default.
func buildCreateTable(table string, rs wire.RowSchema) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS ")
	b.WriteString(table)
	b.WriteString(" (")
	for i, col := range rs {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(col.Name)
		b.WriteString(" ")
		if col.HasEngine {
			b.WriteString(col.EngineType)
		} else {
			b.WriteString(col.SQLType)
		}
		if col.HasDefault {
			b.WriteString(" DEFAULT ")
			b.WriteString(col.DefaultValue)
		}
	}
	b.WriteString(")")
	return b.String()
}
