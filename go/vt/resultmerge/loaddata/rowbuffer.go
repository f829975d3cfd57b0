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

// Package loaddata exposes a decoded worker result payload as a lazy
// byte source the SQL engine's bulk-load facility can pull from, and
// registers that source under a virtual filename the engine's LOAD
// DATA statement references. It is the Go-native analogue of Qserv's
// mysql::LocalInfile::Mgr and the coordinator-side counterpart of the
// row-splitting logic in vitess's go/vt/vtgate/load_data.go.
package loaddata

import (
	"io"

	"github.com/lsst-sqre/qserv/go/vt/resultmerge/wire"
)

// RowBuffer wraps one Envelope's row bytes and exposes them through
// io.Reader, satisfying go-sql-driver/mysql's LOAD DATA LOCAL INFILE
// reader-handler contract: successive Read calls return row bytes
// until exhaustion, then io.EOF.
//
// A RowBuffer is consumed by exactly one load action. Ownership of
// the Envelope transfers to the RowBuffer at construction; callers
// must not retain or reread env.Rows afterward.
type RowBuffer struct {
	rows []byte
	pos  int
}

// NewRowBuffer takes ownership of env and returns a RowBuffer over
// its row bytes.
func NewRowBuffer(env *wire.Envelope) *RowBuffer {
	return &RowBuffer{rows: env.Rows}
}

// Read implements io.Reader.
func (b *RowBuffer) Read(p []byte) (int, error) {
	if b.pos >= len(b.rows) {
		return 0, io.EOF
	}
	n := copy(p, b.rows[b.pos:])
	b.pos += n
	return n, nil
}
