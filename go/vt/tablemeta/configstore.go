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

import "context"

// PartitioningParams is the partitioning half of css::TableParams.
type PartitioningParams struct {
	ChunkLevel int // 0 = unpartitioned, 1 = child, 2 = director
	DirTable   string
	DirColName string
}

// MatchParams is the match-table half of css::TableParams.
type MatchParams struct {
	IsMatchTable bool
	DirTable1    string
	DirTable2    string
	DirColName1  string
	DirColName2  string
}

// TableParams mirrors css::TableParams: the configuration record the
// Resolver consults for every table it has not yet pooled.
type TableParams struct {
	Partitioning PartitioningParams
	Match        MatchParams
}

// PartitionColumns mirrors css::PartTableParams::partitionCols()'s
// [lon, lat, pk] triple for a director table.
type PartitionColumns struct {
	Lon string
	Lat string
	PK  string
}

// ConfigStore is the external configuration contract spec.md §6
// describes: getTableParams, getPartTableParams(...).partitionCols(),
// and getDbStriping(...).partitioningId, translated to Go's
// (value, error) convention — which is also how SPEC_FULL.md §13
// resolves the "if (rc = ZOK)" ambiguity in the original's analogous
// config-store access: there is no assignment-vs-comparison pitfall
// once errors are returned rather than checked via a status code.
type ConfigStore interface {
	GetTableParams(ctx context.Context, db, table string) (TableParams, error)
	GetPartTableParams(ctx context.Context, db, table string) (PartitionColumns, error)
	GetDbStriping(ctx context.Context, db string) (int, error)
}
