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

// Package wire implements the coordinator-side half of the
// worker-to-coordinator result frame: a one-byte header-length
// prefix, a fixed-shape header envelope (payload size + content
// digest), and a length-implied result payload envelope. See
// InfileMerger::_fetchHeader in the Qserv sources this protocol is
// modeled on for the exact byte layout.
package wire

import (
	"crypto/md5"
	"encoding/binary"
	"errors"

	"github.com/lsst-sqre/qserv/go/vt/vterrors"
)

// ErrNeedMore is returned (never wrapped) when buf does not yet
// contain a complete frame. Callers must not treat it as a fatal
// session error: more bytes may arrive and complete the frame.
var ErrNeedMore = errors.New("wire: need more data")

// headerEnvelopeSize is the fixed wire size of the header envelope:
// a little-endian uint32 payload_size followed by a 16-byte MD5
// digest of the payload.
const headerEnvelopeSize = 4 + md5.Size

// MaxPayloadSize bounds the payload_size a header envelope may
// declare. A declared size above this is never "just need more
// bytes" (NeedMore) — it is a protocol violation that would otherwise
// have the coordinator buffer an unbounded amount of data waiting for
// a frame that will never complete, so it is reported as
// HeaderOverflow and is fatal for the session immediately, without
// waiting for more bytes to arrive.
const MaxPayloadSize = 256 << 20 // 256 MiB

// Decode attempts to consume exactly one frame from the front of buf.
//
//   - If buf is shorter than the frame declares, it returns
//     (nil, 0, ErrNeedMore) without interpreting any of buf as an error;
//     the caller is expected to accumulate more bytes and retry.
//   - If the header envelope cannot be parsed (wrong declared size),
//     it returns a HeaderImport error. This is judged from buf[0]
//     alone, before the rest of the header has arrived.
//   - If the header parses but declares a payload_size above
//     MaxPayloadSize, it is HeaderOverflow: unlike an ordinary short
//     buffer, no amount of additional buffering will ever complete
//     this frame, so it is fatal immediately rather than NeedMore.
//   - If the payload envelope cannot be parsed, it is ResultImport.
//   - If the computed MD5 of the payload does not equal header.digest,
//     it is ResultMD5.
//
// On success it returns the decoded Envelope and the number of bytes
// consumed, which is always 1 + H + payload_size.
func Decode(buf []byte) (*Envelope, int, error) {
	if len(buf) < 1 {
		return nil, 0, ErrNeedMore
	}
	h := int(buf[0]) // unsigned: header_len is always in [0, 255]
	if h != headerEnvelopeSize {
		return nil, 0, vterrors.Errorf(vterrors.HeaderImport,
			"header envelope length %d, want %d", h, headerEnvelopeSize)
	}
	if len(buf) < 1+h {
		return nil, 0, ErrNeedMore
	}
	headerBytes := buf[1 : 1+h]
	payloadSize := binary.LittleEndian.Uint32(headerBytes[0:4])
	var digest [md5.Size]byte
	copy(digest[:], headerBytes[4:4+md5.Size])

	if payloadSize > MaxPayloadSize {
		return nil, 0, vterrors.Errorf(vterrors.HeaderOverflow,
			"declared payload_size %d exceeds max %d", payloadSize, MaxPayloadSize)
	}

	total := 1 + h + int(payloadSize)
	if len(buf) < total {
		// Caller's buffer does not yet hold the whole declared
		// payload. This is the common, expected NeedMore case: the
		// header was readable but the payload has not fully arrived.
		return nil, 0, ErrNeedMore
	}

	payload := buf[1+h : total]
	computed := md5.Sum(payload)
	if computed != digest {
		return nil, 0, vterrors.Errorf(vterrors.ResultMD5,
			"payload digest mismatch: computed %x, declared %x", computed, digest)
	}

	env, err := decodeResultEnvelope(payload)
	if err != nil {
		return nil, 0, vterrors.Wrap(err, "decode result envelope")
	}
	return env, total, nil
}

// decodeResultEnvelope parses exactly payloadSize bytes of payload,
// already confirmed present by Decode. Any structural inconsistency
// found here (a length prefix that claims more bytes than remain in
// the payload) means the payload itself is corrupt, not merely
// incomplete, and is reported as ResultImport.
func decodeResultEnvelope(payload []byte) (*Envelope, error) {
	pos := 0
	readU32 := func() (uint32, bool) {
		if len(payload)-pos < 4 {
			return 0, false
		}
		v := binary.LittleEndian.Uint32(payload[pos:])
		pos += 4
		return v, true
	}
	readBytes := func(n int) ([]byte, bool) {
		if n < 0 || len(payload)-pos < n {
			return nil, false
		}
		b := payload[pos : pos+n]
		pos += n
		return b, true
	}
	readByte := func() (byte, bool) {
		if len(payload)-pos < 1 {
			return 0, false
		}
		b := payload[pos]
		pos++
		return b, true
	}
	readShortString := func() (string, bool) { // 1-byte length prefix
		n, ok := readByte()
		if !ok {
			return "", false
		}
		b, ok := readBytes(int(n))
		if !ok {
			return "", false
		}
		return string(b), true
	}

	sidLen, ok := readU32()
	if !ok {
		return nil, vterrors.Errorf(vterrors.ResultImport, "truncated session id length")
	}
	sidBytes, ok := readBytes(int(sidLen))
	if !ok {
		return nil, vterrors.Errorf(vterrors.ResultImport, "truncated session id")
	}

	numCols, ok := readU32()
	if !ok {
		return nil, vterrors.Errorf(vterrors.ResultImport, "truncated column count")
	}
	schema := make(RowSchema, 0, numCols)
	for i := uint32(0); i < numCols; i++ {
		name, ok := readShortString()
		if !ok {
			return nil, vterrors.Errorf(vterrors.ResultImport, "truncated column %d name", i)
		}
		sqlType, ok := readShortString()
		if !ok {
			return nil, vterrors.Errorf(vterrors.ResultImport, "truncated column %d sql_type", i)
		}
		flags, ok := readByte()
		if !ok {
			return nil, vterrors.Errorf(vterrors.ResultImport, "truncated column %d flags", i)
		}
		col := ColumnSchema{Name: name, SQLType: sqlType}
		if flags&0x1 != 0 {
			et, ok := readShortString()
			if !ok {
				return nil, vterrors.Errorf(vterrors.ResultImport, "truncated column %d engine_type", i)
			}
			col.EngineType, col.HasEngine = et, true
		}
		if flags&0x2 != 0 {
			dvLen, ok := readU32()
			if !ok {
				return nil, vterrors.Errorf(vterrors.ResultImport, "truncated column %d default_value length", i)
			}
			dv, ok := readBytes(int(dvLen))
			if !ok {
				return nil, vterrors.Errorf(vterrors.ResultImport, "truncated column %d default_value", i)
			}
			col.DefaultValue, col.HasDefault = string(dv), true
		}
		schema = append(schema, col)
	}

	rows := payload[pos:]
	return &Envelope{
		SessionID: string(sidBytes),
		RowSchema: schema,
		Rows:      rows,
	}, nil
}

// Encode serializes env into a complete wire frame: the one-byte
// header length, the header envelope (payload size + MD5 digest), and
// the payload envelope. It is the inverse of Decode and exists chiefly
// so that tests can exercise the round-trip law spec.md §8 requires,
// and so a worker-side test harness can synthesize frames.
func Encode(env *Envelope) []byte {
	payload := encodeResultEnvelope(env)
	digest := md5.Sum(payload)

	header := make([]byte, headerEnvelopeSize)
	binary.LittleEndian.PutUint32(header[0:4], uint32(len(payload)))
	copy(header[4:], digest[:])

	out := make([]byte, 0, 1+len(header)+len(payload))
	out = append(out, byte(len(header)))
	out = append(out, header...)
	out = append(out, payload...)
	return out
}

func encodeResultEnvelope(env *Envelope) []byte {
	buf := make([]byte, 0, 64+len(env.Rows))
	var u32 [4]byte

	binary.LittleEndian.PutUint32(u32[:], uint32(len(env.SessionID)))
	buf = append(buf, u32[:]...)
	buf = append(buf, env.SessionID...)

	binary.LittleEndian.PutUint32(u32[:], uint32(len(env.RowSchema)))
	buf = append(buf, u32[:]...)

	for _, col := range env.RowSchema {
		buf = append(buf, byte(len(col.Name)))
		buf = append(buf, col.Name...)
		buf = append(buf, byte(len(col.SQLType)))
		buf = append(buf, col.SQLType...)

		var flags byte
		if col.HasEngine {
			flags |= 0x1
		}
		if col.HasDefault {
			flags |= 0x2
		}
		buf = append(buf, flags)

		if col.HasEngine {
			buf = append(buf, byte(len(col.EngineType)))
			buf = append(buf, col.EngineType...)
		}
		if col.HasDefault {
			binary.LittleEndian.PutUint32(u32[:], uint32(len(col.DefaultValue)))
			buf = append(buf, u32[:]...)
			buf = append(buf, col.DefaultValue...)
		}
	}

	buf = append(buf, env.Rows...)
	return buf
}
