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
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lsst-sqre/qserv/go/vt/resultmerge/wire"
)

func TestRowBufferReadsThenEOF(t *testing.T) {
	buf := NewRowBuffer(&wire.Envelope{Rows: []byte("1\t1.5\n2\t2.5\n")})

	got, err := io.ReadAll(buf)
	require.NoError(t, err)
	assert.Equal(t, "1\t1.5\n2\t2.5\n", string(got))

	n, err := buf.Read(make([]byte, 8))
	assert.Equal(t, 0, n)
	assert.Equal(t, io.EOF, err)
}

func TestRowBufferSmallReads(t *testing.T) {
	buf := NewRowBuffer(&wire.Envelope{Rows: []byte("abcdefgh")})
	small := make([]byte, 3)
	var out []byte
	for {
		n, err := buf.Read(small)
		out = append(out, small[:n]...)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
	}
	assert.Equal(t, "abcdefgh", string(out))
}

func TestRegistryRegisterDeregisterUniqueNames(t *testing.T) {
	r := NewRegistry()
	b1 := NewRowBuffer(&wire.Envelope{Rows: []byte("a")})
	b2 := NewRowBuffer(&wire.Envelope{Rows: []byte("b")})

	n1 := r.Register(b1)
	n2 := r.Register(b2)
	assert.NotEqual(t, n1, n2)
	assert.NotEmpty(t, InfileRef(n1))

	r.Deregister(n1)
	r.Deregister(n2)
	// Deregistering an already-released or unknown name must not panic.
	r.Deregister(n1)
	r.Deregister("never-registered")
}
