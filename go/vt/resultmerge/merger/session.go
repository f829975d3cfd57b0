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

// Package merger implements the per-query-session orchestrator that
// drives the Frame Codec, Schema Materializer, Merge Manager, and Row
// Buffer/Load Channel in order, and applies the final
// aggregation/fixup SQL. Modeled on rproc::InfileMerger.
package merger

import (
	"fmt"

	"github.com/google/uuid"
)

// State is one point in a Query Session's
// Open -> TableCreated -> Finalized lifecycle, with Errored reachable
// from any non-terminal state.
type State int

const (
	Open State = iota
	TableCreated
	Finalized
	Errored
)

func (s State) String() string {
	switch s {
	case Open:
		return "Open"
	case TableCreated:
		return "TableCreated"
	case Finalized:
		return "Finalized"
	case Errored:
		return "Errored"
	default:
		return "Unknown"
	}
}

// Config names a Query Session's target and, when a fixup is needed,
// the projection that populates it from the merge table.
//
// Target table naming follows InfileMerger::_fixupTargetName: when
// TargetTable is left empty one is synthesized as
// "<db>.result_<id>", with the original's wall-clock-derived suffix
// replaced by a uuid. When NeedsFixup is set, the merge table is the
// target with "_m" appended, so recognizing and dropping it on
// finalize is a simple suffix check; otherwise the merge table IS the
// target and finalize performs no SQL of its own.
type Config struct {
	DB          string
	TargetTable string
	NeedsFixup  bool
	Projection  string // column list for the fixup SELECT; defaults to "*"
	FixupSuffix string // e.g. "ORDER BY v LIMIT 2"; may be empty
}

// resolvedNames computes the target and merge table names implied by
// cfg, synthesizing TargetTable when the caller left it empty.
func resolvedNames(cfg Config) (target, merge string) {
	target = cfg.TargetTable
	if target == "" {
		target = fmt.Sprintf("%s.result_%s", cfg.DB, uuid.New().String())
	}
	if cfg.NeedsFixup {
		merge = target + "_m"
	} else {
		merge = target
	}
	return target, merge
}

func projectionOrDefault(p string) string {
	if p == "" {
		return "*"
	}
	return p
}
