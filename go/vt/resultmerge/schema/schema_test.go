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

package schema

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lsst-sqre/qserv/go/vt/resultmerge/wire"
)

type countingApplier struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (c *countingApplier) ApplySQL(_ context.Context, sql string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, sql)
	return c.err
}

func TestEnsureTableBuildsColumnsInOrder(t *testing.T) {
	applier := &countingApplier{}
	m := New("merge.q1", applier)

	rs := wire.RowSchema{
		{Name: "id", SQLType: "INT"},
		{Name: "v", SQLType: "DOUBLE", HasDefault: true, DefaultValue: "0.0"},
		{Name: "note", SQLType: "VARCHAR(8)", HasEngine: true, EngineType: "TEXT"},
	}
	require.NoError(t, m.EnsureTable(context.Background(), rs))
	require.Len(t, applier.calls, 1)
	stmt := applier.calls[0]
	assert.Contains(t, stmt, "CREATE TABLE IF NOT EXISTS merge.q1")
	assert.Contains(t, stmt, "id INT")
	assert.Contains(t, stmt, "v DOUBLE DEFAULT 0.0")
	assert.Contains(t, stmt, "note TEXT")
	idPos := indexOf(stmt, "id INT")
	vPos := indexOf(stmt, "v DOUBLE")
	notePos := indexOf(stmt, "note TEXT")
	assert.True(t, idPos < vPos && vPos < notePos, "columns must appear in declaration order")
}

func TestEnsureTableAtMostOnce(t *testing.T) {
	applier := &countingApplier{}
	m := New("merge.q1", applier)
	rs := wire.RowSchema{{Name: "id", SQLType: "INT"}}

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.EnsureTable(context.Background(), rs)
		}()
	}
	wg.Wait()

	assert.Len(t, applier.calls, 1)
}

func TestEnsureTableCachesError(t *testing.T) {
	applier := &countingApplier{err: assertError{"boom"}}
	m := New("merge.q1", applier)
	rs := wire.RowSchema{{Name: "id", SQLType: "INT"}}

	err1 := m.EnsureTable(context.Background(), rs)
	require.Error(t, err1)
	err2 := m.EnsureTable(context.Background(), rs)
	require.Error(t, err2)
	assert.Equal(t, err1, err2)
	assert.Len(t, applier.calls, 1, "DDL must not be retried once cached")
}

type assertError struct{ msg string }

func (e assertError) Error() string { return e.msg }

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}
