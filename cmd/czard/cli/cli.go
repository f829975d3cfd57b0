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

// Package cli wires czard's cobra entrypoint: flags, configuration,
// and the plumbing that stands up the Table Metadata Resolver and the
// Merge Manager before handing worker connections to the server loop.
package cli

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lsst-sqre/qserv/go/vt/log"
	"github.com/lsst-sqre/qserv/go/vt/resultmerge/mergemanager"
	"github.com/lsst-sqre/qserv/go/vt/servenv/config"
	"github.com/lsst-sqre/qserv/go/vt/tablemeta"
)

var v = viper.New()

// Main is czard's root command: accept worker result frames over TCP
// and drive them through the Merge Manager and Merger Facade until
// each connection's session finalizes.
var Main = &cobra.Command{
	Use:     "czard",
	Short:   "czard streams and merges sharded worker results into a coordinator-side table.",
	Example: `czard --merge-dsn "merge:merge@tcp(127.0.0.1:3306)/merge" --etcd-endpoints 127.0.0.1:2379 --listen-addr :4040`,
	Args:    cobra.NoArgs,
	RunE:    run,
}

func init() {
	log.RegisterFlags(Main.Flags())
	config.RegisterFlags(Main.Flags(), v)
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}

	store, err := tablemeta.NewEtcdConfigStore(cfg.EtcdEndpoints, cfg.EtcdRoot, cfg.EtcdDialTimeout)
	if err != nil {
		return err
	}
	defer store.Close()
	resolver := tablemeta.NewResolver(store)

	mgr, err := mergemanager.Open(cfg.MergeDSN, cfg.MaxConcurrentLoads)
	if err != nil {
		return err
	}
	defer mgr.Close()

	log.Infof("czard: listening on %s, merge-dsn=%s, max-concurrent-loads=%d",
		cfg.ListenAddr, cfg.MergeDSN, cfg.MaxConcurrentLoads)

	srv := &Server{Addr: cfg.ListenAddr, Manager: mgr, Resolver: resolver}
	return srv.ListenAndServe()
}
