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

// ColumnSchema describes one column of a worker's result set, as
// declared by the planner that produced the query. Name and SQLType
// are always present; EngineType and DefaultValue are optional.
type ColumnSchema struct {
	Name         string
	SQLType      string
	EngineType   string // storage-engine-specific type hint, "" if absent
	HasEngine    bool
	DefaultValue string
	HasDefault   bool
}

// RowSchema is an ordered list of column descriptors. Column order
// here is preserved verbatim into the merge table's DDL.
type RowSchema []ColumnSchema

// Envelope is one decoded worker result message: the session it
// belongs to, the declared row schema, and the opaque row bytes in
// the SQL engine's bulk-load wire format.
type Envelope struct {
	SessionID string
	RowSchema RowSchema
	Rows      []byte
}
