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

package loaddata

import (
	"fmt"
	"io"
	"sync"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
)

// Registry maps virtual file names to the RowBuffer the SQL driver
// should read from when a LOAD DATA LOCAL INFILE statement names
// them. Registered names are unique per process for as long as they
// remain registered; a name is released when its load action
// completes, successfully or not.
type Registry struct {
	mu   sync.Mutex
	open map[string]struct{}
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{open: make(map[string]struct{})}
}

// Register allocates a fresh virtual file name for buf, registers it
// with the go-sql-driver/mysql reader-handler table, and returns the
// name. Embed InfileRef(name) as the source of a LOAD DATA LOCAL
// INFILE statement to have the driver pull rows from buf. The caller
// must call Deregister with the returned name exactly once, when the
// load action that consumes buf has finished.
func (r *Registry) Register(buf *RowBuffer) string {
	name := uuid.New().String()

	r.mu.Lock()
	r.open[name] = struct{}{}
	r.mu.Unlock()

	mysql.RegisterReaderHandler(name, func() io.Reader { return buf })
	return name
}

// Deregister releases the driver-level registration for name. It is
// safe to call even if name was never registered (a no-op), which
// keeps the Merge Manager's error-path cleanup simple.
func (r *Registry) Deregister(name string) {
	r.mu.Lock()
	_, ok := r.open[name]
	if ok {
		delete(r.open, name)
	}
	r.mu.Unlock()

	if ok {
		mysql.DeregisterReaderHandler(name)
	}
}

// InfileRef renders the LOAD DATA LOCAL INFILE source expression for
// name, in the `Reader::<name>` form go-sql-driver/mysql recognizes.
func InfileRef(name string) string {
	return fmt.Sprintf("Reader::%s", name)
}
