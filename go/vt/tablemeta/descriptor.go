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

// Package tablemeta lazily builds and memoizes a pool of table
// descriptors — Director, Match, Child, or the absence of a
// descriptor for an unpartitioned table — consulting a configuration
// store only on first reference to any given table. Modeled on
// qana::TableInfoPool and qana::TableInfo.
package tablemeta

// Kind tags which variant of Descriptor a value holds.
type Kind int

const (
	// Director tables are sub-chunked and own a longitude, latitude,
	// and primary-key column plus a partitioning id.
	Director Kind = iota
	// Match tables relate two Director tables via two distinct
	// foreign-key columns.
	Match
	// Child tables are chunked but not sub-chunked and reference exactly one Director
	// table via a single foreign-key column.
	Child
)

func (k Kind) String() string {
	switch k {
	case Director:
		return "Director"
	case Match:
		return "Match"
	case Child:
		return "Child"
	default:
		return "Unknown"
	}
}

// Descriptor is the tagged variant over {Director, Match, Child}
// spec.md §3 describes. Unpartitioned tables have no Descriptor at
// all — Resolver.Get returns (nil, nil) for them, mirroring
// TableInfoPool::get's `return 0` on chunkLevel == 0.
//
// Director/Child/Match references (ChildDirector, Director1, Director2)
// are non-owning pointers into the Pool that produced them; the Pool
// is the sole owner and must outlive every Descriptor it has handed
// out.
type Descriptor struct {
	DB   string
	Name string
	Kind Kind

	// Director-specific.
	PK             string
	Lon            string
	Lat            string
	PartitioningID int

	// Child-specific.
	ChildDirector *Descriptor
	ChildFK       string

	// Match-specific. Invariant: Director1.PartitioningID ==
	// Director2.PartitioningID, and FK1 != FK2, both non-empty.
	Director1 *Descriptor
	Director2 *Descriptor
	FK1       string
	FK2       string
}

// key returns the (db, name) pair the pool sorts and looks up by.
func (d *Descriptor) key() (string, string) { return d.DB, d.Name }
