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

import "sort"

// Pool holds every Descriptor resolved so far, sorted by (db, name)
// and unique on that key, exactly as TableInfoPool::_pool is: a
// std::vector kept sorted by TableInfoLt, searched with
// std::equal_range and inserted with std::upper_bound. A Descriptor,
// once inserted, keeps a stable address for the lifetime of the Pool
// (Director/Child/Match references borrow it directly), so Pool never
// reslices in a way that would move an existing *Descriptor.
type Pool struct {
	items []*Descriptor // sorted by (DB, Name); pointers, never moved once present
}

func less(db1, name1, db2, name2 string) bool {
	if db1 != db2 {
		return db1 < db2
	}
	return name1 < name2
}

// lowerBound returns the index of the first item whose key is >=
// (db, name).
func (p *Pool) lowerBound(db, name string) int {
	return sort.Search(len(p.items), func(i int) bool {
		idb, iname := p.items[i].key()
		return !less(idb, iname, db, name)
	})
}

// Get returns the pooled Descriptor for (db, name), or nil if none has
// been resolved yet. This is TableInfoPool::get(db, table)'s
// equal_range lookup.
func (p *Pool) Get(db, name string) *Descriptor {
	i := p.lowerBound(db, name)
	if i < len(p.items) {
		idb, iname := p.items[i].key()
		if idb == db && iname == name {
			return p.items[i]
		}
	}
	return nil
}

// Insert adds d to the pool in sorted position. The caller must have
// already confirmed no Descriptor for d's (db, name) exists (Get
// returned nil); Insert does not itself re-check, matching
// TableInfoPool::_insert's unconditional std::upper_bound + insert.
func (p *Pool) Insert(d *Descriptor) {
	i := p.lowerBound(d.DB, d.Name)
	p.items = append(p.items, nil)
	copy(p.items[i+1:], p.items[i:])
	p.items[i] = d
}

// Len reports how many descriptors are currently pooled.
func (p *Pool) Len() int { return len(p.items) }
