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

package merger

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lsst-sqre/qserv/go/vt/resultmerge/wire"
	"github.com/lsst-sqre/qserv/go/vt/vterrors"
)

// fakeManager implements the facade's Manager interface without ever
// touching a SQL connection: ApplySQL records statements and Load runs
// synchronously (in the calling goroutine) unless told to defer, which
// is enough to exercise every facade code path deterministically.
type fakeManager struct {
	mu          sync.Mutex
	statements  []string
	applyErr    error
	loadErr     error // returned by every Load's onResult callback
	loadedRows  [][]byte
	waitCalls   int
	deferLoads  bool
	pendingLoad []func()
}

func (f *fakeManager) ApplySQL(_ context.Context, sql string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statements = append(f.statements, sql)
	return f.applyErr
}

func (f *fakeManager) Load(_ context.Context, _ string, env *wire.Envelope, onResult func(error)) {
	f.mu.Lock()
	f.loadedRows = append(f.loadedRows, env.Rows)
	run := func() { onResult(f.loadErr) }
	if f.deferLoads {
		f.pendingLoad = append(f.pendingLoad, run)
		f.mu.Unlock()
		return
	}
	f.mu.Unlock()
	run()
}

func (f *fakeManager) runPending() {
	f.mu.Lock()
	pending := f.pendingLoad
	f.pendingLoad = nil
	f.mu.Unlock()
	for _, run := range pending {
		run()
	}
}

func (f *fakeManager) Wait(_ context.Context) error {
	f.mu.Lock()
	f.waitCalls++
	f.mu.Unlock()
	return nil
}

func frame(t *testing.T, sessionID string, rs wire.RowSchema, rows []byte) []byte {
	t.Helper()
	return wire.Encode(&wire.Envelope{SessionID: sessionID, RowSchema: rs, Rows: rows})
}

func TestMergeSingleFrameNoFixup(t *testing.T) {
	mgr := &fakeManager{}
	f := New(Config{DB: "qservResult", TargetTable: "qservResult.r1"}, mgr)

	rs := wire.RowSchema{{Name: "id", SQLType: "INT"}, {Name: "v", SQLType: "DOUBLE"}}
	buf := frame(t, "s1", rs, []byte("1\t1.5\n2\t2.5\n"))

	n, err := f.Merge(context.Background(), buf)
	require.NoError(t, err)
	assert.Equal(t, len(buf), n)
	assert.Equal(t, TableCreated, f.State())

	require.NoError(t, f.Finalize(context.Background()))
	assert.Equal(t, Finalized, f.State())
	assert.Equal(t, "qservResult.r1", f.TargetTable())

	// No fixup requested: finalize issues no SQL of its own, only the
	// single CREATE TABLE the schema materializer issued for the merge
	// table, which IS the target table here.
	require.Len(t, mgr.statements, 1)
	assert.Contains(t, mgr.statements[0], "CREATE TABLE IF NOT EXISTS qservResult.r1")
	require.Len(t, mgr.loadedRows, 1)
	assert.Equal(t, "1\t1.5\n2\t2.5\n", string(mgr.loadedRows[0]))
}

func TestMergeMultiFrameWithFixup(t *testing.T) {
	mgr := &fakeManager{}
	f := New(Config{
		DB:          "qservResult",
		TargetTable: "qservResult.r2",
		NeedsFixup:  true,
		Projection:  "v",
		FixupSuffix: "ORDER BY v LIMIT 2",
	}, mgr)

	rs := wire.RowSchema{{Name: "v", SQLType: "DOUBLE"}}
	var consumed int
	for i, row := range [][]byte{[]byte("3.0\n"), []byte("1.0\n"), []byte("2.0\n")} {
		buf := frame(t, "s2", rs, row)
		n, err := f.Merge(context.Background(), buf)
		require.NoError(t, err, "frame %d", i)
		consumed += n
	}
	assert.Equal(t, 3, len(mgr.loadedRows))

	require.NoError(t, f.Finalize(context.Background()))
	require.Len(t, mgr.statements, 3) // 1 CREATE TABLE (merge) + 1 fixup CREATE + 1 DROP
	assert.Contains(t, mgr.statements[0], "qservResult.r2_m")
	assert.Contains(t, mgr.statements[1], "CREATE TABLE IF NOT EXISTS qservResult.r2 SELECT v FROM qservResult.r2_m ORDER BY v LIMIT 2")
	assert.Contains(t, mgr.statements[2], "DROP TABLE IF EXISTS qservResult.r2_m")
}

func TestMergeCorruptDigestFailsSession(t *testing.T) {
	mgr := &fakeManager{}
	f := New(Config{DB: "qservResult"}, mgr)

	rs := wire.RowSchema{{Name: "id", SQLType: "INT"}}
	buf := frame(t, "s3", rs, []byte("1\n"))
	buf[len(buf)-1] ^= 0xff // tamper the last payload byte, invalidating the digest

	_, err := f.Merge(context.Background(), buf)
	require.Error(t, err)
	assert.Equal(t, vterrors.ResultMD5, vterrors.CodeOf(err))
	assert.Equal(t, Errored, f.State())

	// The session is now short-circuited: a later call returns the
	// same cached error without touching mgr again.
	n, err2 := f.Merge(context.Background(), []byte("more data"))
	assert.Equal(t, 0, n)
	assert.Equal(t, err, err2)

	ferr := f.Finalize(context.Background())
	assert.Equal(t, err, ferr)
	assert.Equal(t, 0, mgr.waitCalls, "finalize must not wait on an already-errored session")
}

func TestConcurrentFirstFramesCreateTableOnce(t *testing.T) {
	mgr := &fakeManager{}
	f := New(Config{DB: "qservResult", TargetTable: "qservResult.r4"}, mgr)

	rs := wire.RowSchema{{Name: "id", SQLType: "INT"}}
	const n = 16
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			buf := frame(t, "s4", rs, []byte("x\n"))
			_, err := f.Merge(context.Background(), buf)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	mgr.mu.Lock()
	stmtCount := len(mgr.statements)
	loadCount := len(mgr.loadedRows)
	mgr.mu.Unlock()
	assert.Equal(t, 1, stmtCount, "the materializer's create-mutex must collapse n concurrent EnsureTable calls into one CREATE TABLE")
	assert.Equal(t, n, loadCount, "every frame still dispatches its own load regardless of who created the table")
}

func TestFinalizeIsIdempotent(t *testing.T) {
	mgr := &fakeManager{}
	f := New(Config{DB: "qservResult", TargetTable: "qservResult.r5", NeedsFixup: true}, mgr)

	rs := wire.RowSchema{{Name: "id", SQLType: "INT"}}
	buf := frame(t, "s5", rs, []byte("1\n"))
	_, err := f.Merge(context.Background(), buf)
	require.NoError(t, err)

	err1 := f.Finalize(context.Background())
	stmtsAfterFirst := len(mgr.statements)
	err2 := f.Finalize(context.Background())

	assert.Equal(t, err1, err2)
	assert.Equal(t, stmtsAfterFirst, len(mgr.statements), "second finalize issues no additional SQL")
	assert.Equal(t, 1, mgr.waitCalls, "finalize waits on the manager exactly once")
}

func TestAsyncLoadFailureMarksSessionErrored(t *testing.T) {
	mgr := &fakeManager{deferLoads: true, loadErr: vterrors.WithErrno("table full", 1114)}
	f := New(Config{DB: "qservResult", TargetTable: "qservResult.r6"}, mgr)

	rs := wire.RowSchema{{Name: "id", SQLType: "INT"}}
	buf := frame(t, "s6", rs, []byte("1\n"))
	_, err := f.Merge(context.Background(), buf)
	require.NoError(t, err, "Merge itself succeeds; the load failure arrives asynchronously")

	mgr.runPending()
	assert.Equal(t, Errored, f.State())
	assert.True(t, vterrors.IsResultTooBig(f.Err()))
}
