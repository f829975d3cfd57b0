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

package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lsst-sqre/qserv/go/vt/vterrors"
)

func sampleEnvelope() *Envelope {
	return &Envelope{
		SessionID: "sess-1",
		RowSchema: RowSchema{
			{Name: "id", SQLType: "INT"},
			{Name: "v", SQLType: "DOUBLE", HasDefault: true, DefaultValue: "0.0"},
		},
		Rows: []byte("1\t1.5\n2\t2.5\n"),
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	env := sampleEnvelope()
	frame := Encode(env)

	got, consumed, err := Decode(frame)
	require.NoError(t, err)
	assert.Equal(t, len(frame), consumed)
	assert.Equal(t, env.SessionID, got.SessionID)
	assert.Equal(t, env.RowSchema, got.RowSchema)
	assert.Equal(t, env.Rows, got.Rows)
}

func TestDecodeNeedMoreOnShortBuffer(t *testing.T) {
	frame := Encode(sampleEnvelope())
	for n := 0; n < len(frame); n++ {
		_, consumed, err := Decode(frame[:n])
		assert.ErrorIs(t, err, ErrNeedMore, "prefix length %d", n)
		assert.Equal(t, 0, consumed)
	}
}

func TestDecodeSequenceOfFrames(t *testing.T) {
	envs := []*Envelope{
		{SessionID: "a", Rows: []byte("row-a")},
		{SessionID: "b", Rows: []byte("row-b")},
		{SessionID: "c", Rows: []byte("row-c")},
	}
	var buf []byte
	for _, e := range envs {
		buf = append(buf, Encode(e)...)
	}

	var decoded []*Envelope
	for len(buf) > 0 {
		env, consumed, err := Decode(buf)
		if err == ErrNeedMore {
			t.Fatalf("unexpected NeedMore with %d bytes left", len(buf))
		}
		require.NoError(t, err)
		decoded = append(decoded, env)
		buf = buf[consumed:]
	}

	require.Len(t, decoded, len(envs))
	for i, e := range envs {
		assert.Equal(t, e.SessionID, decoded[i].SessionID)
	}
}

func TestDecodeCorruptDigest(t *testing.T) {
	frame := Encode(sampleEnvelope())
	// Tamper with a payload byte without touching the declared digest.
	frame[len(frame)-1] ^= 0xff

	_, _, err := Decode(frame)
	require.Error(t, err)
	assert.Equal(t, vterrors.ResultMD5, vterrors.CodeOf(err))
}

func TestDecodeHeaderOverflow(t *testing.T) {
	frame := Encode(sampleEnvelope())
	// Corrupt the declared payload_size (first 4 bytes of the header,
	// which start at offset 1) to a value beyond MaxPayloadSize.
	frame[1] = 0xff
	frame[2] = 0xff
	frame[3] = 0xff
	frame[4] = 0xff

	_, _, err := Decode(frame)
	require.Error(t, err)
	assert.Equal(t, vterrors.HeaderOverflow, vterrors.CodeOf(err))
}

func TestDecodeBadHeaderLength(t *testing.T) {
	frame := Encode(sampleEnvelope())
	frame[0] = 3 // header envelope is always headerEnvelopeSize bytes

	_, _, err := Decode(frame)
	require.Error(t, err)
	assert.Equal(t, vterrors.HeaderImport, vterrors.CodeOf(err))
}
