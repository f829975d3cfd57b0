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

// Command czard is the coordinator process: it accepts worker result
// frames over TCP and drives them through the result streaming and
// merging engine. Everything in this command is plumbing — the
// parsing, planning, and transport concerns spec.md §1 explicitly
// excludes from the core design — wired together the way the
// teacher's own server commands wire servenv/cobra around their core
// packages.
package main

import (
	"os"

	"github.com/lsst-sqre/qserv/cmd/czard/cli"
	"github.com/lsst-sqre/qserv/go/vt/log"
)

func main() {
	if err := cli.Main.Execute(); err != nil {
		log.Errorf("czard: %v", err)
		os.Exit(1)
	}
}
