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

package vterrors

// Code classifies a result-merge error. The set is closed and mirrors
// the taxonomy enforced end to end: a worker frame that fails to
// decode, a schema that fails to materialize, or a SQL engine that
// refuses a statement.
type Code int

// All recognized error codes. Zero value (None) means "no error".
const (
	None Code = iota

	// HeaderImport: the header envelope failed to decode because the
	// one-byte header length is not the fixed header envelope size.
	// This is decided from that first byte alone; a buffer that is
	// merely short of a well-formed frame is NeedMore, not an error.
	HeaderImport

	// HeaderOverflow: the header declares a payload_size above the
	// codec's MaxPayloadSize bound. A payload_size within the bound
	// but larger than what the caller supplied is NeedMore instead.
	HeaderOverflow

	// ResultImport: the payload envelope failed to decode.
	ResultImport

	// ResultMD5: the payload digest did not match header.digest.
	ResultMD5

	// CreateTable: the merge table DDL failed.
	CreateTable

	// MySQLConnect: the SQL connection could not be established.
	MySQLConnect

	// MySQLExec: a SQL statement failed for a reason other than the
	// connection being unavailable. Carries the engine errno; errno
	// 1114 is additionally classified as ResultTooBig by IsResultTooBig.
	MySQLExec

	// InvalidTable: the metadata resolver could not construct a
	// descriptor consistent with the director/match/child invariants.
	InvalidTable
)

func (c Code) String() string {
	switch c {
	case None:
		return "NONE"
	case HeaderImport:
		return "HEADER_IMPORT"
	case HeaderOverflow:
		return "HEADER_OVERFLOW"
	case ResultImport:
		return "RESULT_IMPORT"
	case ResultMD5:
		return "RESULT_MD5"
	case CreateTable:
		return "CREATE_TABLE"
	case MySQLConnect:
		return "MYSQLCONNECT"
	case MySQLExec:
		return "MYSQLEXEC"
	case InvalidTable:
		return "InvalidTable"
	default:
		return "UNKNOWN"
	}
}
