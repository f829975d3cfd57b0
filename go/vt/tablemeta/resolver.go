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

package tablemeta

import (
	"context"
	"sync"

	"github.com/lsst-sqre/qserv/go/vt/vterrors"
)

// Resolver builds and memoizes TableDescriptors on demand, consulting
// store only for a (db, table) pair it has not already pooled.
// Modeled on TableInfoPool::get(ctx, db, table).
type Resolver struct {
	mu    sync.Mutex // serializes the whole build-or-fetch path, not just Pool access
	pool  Pool
	store ConfigStore
}

// NewResolver returns a Resolver with an empty pool, backed by store.
func NewResolver(store ConfigStore) *Resolver {
	return &Resolver{store: store}
}

// Get returns the TableDescriptor for db.table, building it (and, for
// Match and Child tables, recursively building the Director tables it
// references) on first reference and returning the pooled value on
// every call after. It returns (nil, nil) for an unpartitioned table,
// matching TableInfoPool::get's `return 0` when chunkLevel == 0 — this
// is "no descriptor", not an error.
func (r *Resolver) Get(ctx context.Context, db, table string) (*Descriptor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.get(ctx, db, table)
}

// get assumes r.mu is held; it is the recursive worker Get delegates
// to so that resolving a Match or Child table's Director references
// does not re-enter the mutex.
func (r *Resolver) get(ctx context.Context, db, table string) (*Descriptor, error) {
	if d := r.pool.Get(db, table); d != nil {
		return d, nil
	}

	tp, err := r.store.GetTableParams(ctx, db, table)
	if err != nil {
		return nil, vterrors.Wrap(err, "get table params for "+db+"."+table)
	}

	if tp.Partitioning.ChunkLevel == 0 {
		return nil, nil
	}

	if tp.Match.IsMatchTable {
		return r.resolveMatch(ctx, db, table, tp.Match)
	}

	dirTable := tp.Partitioning.DirTable
	if dirTable == "" || dirTable == table {
		return r.resolveDirector(ctx, db, table, tp.Partitioning.ChunkLevel)
	}
	return r.resolveChild(ctx, db, table, tp.Partitioning)
}

func (r *Resolver) resolveMatch(ctx context.Context, db, table string, m MatchParams) (*Descriptor, error) {
	dir1, err := r.get(ctx, db, m.DirTable1)
	if err != nil {
		return nil, err
	}
	dir2, err := r.get(ctx, db, m.DirTable2)
	if err != nil {
		return nil, err
	}
	if dir1 == nil || dir1.Kind != Director || dir2 == nil || dir2.Kind != Director {
		return nil, vterrors.Errorf(vterrors.InvalidTable,
			"%s.%s is a match table, but does not reference two director tables", db, table)
	}
	if m.DirColName1 == m.DirColName2 || m.DirColName1 == "" || m.DirColName2 == "" {
		return nil, vterrors.Errorf(vterrors.InvalidTable,
			"match table %s.%s metadata does not contain 2 non-empty and distinct director column names", db, table)
	}
	if dir1.PartitioningID != dir2.PartitioningID {
		return nil, vterrors.Errorf(vterrors.InvalidTable,
			"match table %s.%s relates two director tables with different partitionings", db, table)
	}

	d := &Descriptor{
		DB: db, Name: table, Kind: Match,
		Director1: dir1, Director2: dir2,
		FK1: m.DirColName1, FK2: m.DirColName2,
	}
	r.pool.Insert(d)
	return d, nil
}

func (r *Resolver) resolveDirector(ctx context.Context, db, table string, chunkLevel int) (*Descriptor, error) {
	if chunkLevel != 2 {
		return nil, vterrors.Errorf(vterrors.InvalidTable,
			"%s.%s is a director table, but cannot be sub-chunked", db, table)
	}
	cols, err := r.store.GetPartTableParams(ctx, db, table)
	if err != nil {
		return nil, vterrors.Wrap(err, "get partition columns for "+db+"."+table)
	}
	if cols.Lon == "" || cols.Lat == "" || cols.PK == "" ||
		cols.Lon == cols.Lat || cols.Lat == cols.PK || cols.Lon == cols.PK {
		return nil, vterrors.Errorf(vterrors.InvalidTable,
			"director table %s.%s metadata does not contain non-empty and distinct director, longitude, and latitude column names", db, table)
	}
	partitioningID, err := r.store.GetDbStriping(ctx, db)
	if err != nil {
		return nil, vterrors.Wrap(err, "get db striping for "+db)
	}

	d := &Descriptor{
		DB: db, Name: table, Kind: Director,
		PK: cols.PK, Lon: cols.Lon, Lat: cols.Lat,
		PartitioningID: partitioningID,
	}
	r.pool.Insert(d)
	return d, nil
}

func (r *Resolver) resolveChild(ctx context.Context, db, table string, p PartitioningParams) (*Descriptor, error) {
	if p.ChunkLevel != 1 {
		return nil, vterrors.Errorf(vterrors.InvalidTable,
			"%s.%s is a child table, but can be sub-chunked", db, table)
	}
	dir, err := r.get(ctx, db, p.DirTable)
	if err != nil {
		return nil, err
	}
	if dir == nil || dir.Kind != Director {
		return nil, vterrors.Errorf(vterrors.InvalidTable,
			"%s.%s is a child table, but does not reference a director table", db, table)
	}
	if p.DirColName == "" {
		return nil, vterrors.Errorf(vterrors.InvalidTable,
			"child table %s.%s metadata does not contain a director column name", db, table)
	}

	d := &Descriptor{DB: db, Name: table, Kind: Child, ChildDirector: dir, ChildFK: p.DirColName}
	r.pool.Insert(d)
	return d, nil
}

// PoolLen reports how many descriptors the Resolver has built so far;
// exposed chiefly for tests asserting the pool invariants of spec.md
// §8 Testable Properties 5 and 6.
func (r *Resolver) PoolLen() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pool.Len()
}
