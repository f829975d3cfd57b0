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

// Package config loads the coordinator's runtime configuration from
// flags, environment variables, and an optional config file, using
// viper layered over pflag the way the rest of this codebase's
// teacher lineage configures its servers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds everything the coordinator needs to stand up a result
// merge pipeline: where to reach the SQL engine used for merging, how
// many bulk loads may run concurrently, and how to reach the external
// table-metadata configuration store.
type Config struct {
	// MergeDSN is the go-sql-driver/mysql DSN for the single
	// connection the Merge Manager owns.
	MergeDSN string

	// MaxConcurrentLoads bounds the number of bulk-load actions the
	// Merge Manager runs at once.
	MaxConcurrentLoads int

	// EtcdEndpoints addresses the table metadata configuration store.
	EtcdEndpoints []string

	// EtcdRoot is the key prefix under which table parameters live.
	EtcdRoot string

	// EtcdDialTimeout bounds how long to wait for the etcd client to
	// establish a connection.
	EtcdDialTimeout time.Duration

	// ListenAddr is where cmd/czard accepts worker connections.
	ListenAddr string
}

// RegisterFlags installs this package's flags on fs and binds them
// into v so that environment variables and a config file can also
// supply them.
func RegisterFlags(fs *pflag.FlagSet, v *viper.Viper) {
	fs.String("merge-dsn", "merge:merge@tcp(127.0.0.1:3306)/merge", "go-sql-driver/mysql DSN for the merge connection")
	fs.Int("max-concurrent-loads", 8, "maximum number of concurrently running bulk-load actions per process")
	fs.StringSlice("etcd-endpoints", []string{"127.0.0.1:2379"}, "etcd endpoints backing the table metadata store")
	fs.String("etcd-root", "/qserv/css", "etcd key prefix for table metadata")
	fs.Duration("etcd-dial-timeout", 5*time.Second, "etcd client dial timeout")
	fs.String("listen-addr", ":4040", "address the coordinator listens on for worker result frames")

	v.SetEnvPrefix("QSERV")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	_ = v.BindPFlags(fs)
}

// Load materializes a Config from v, which must already have had
// RegisterFlags' flags bound via BindPFlags (and optionally a config
// file merged in via v.ReadInConfig).
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		MergeDSN:           v.GetString("merge-dsn"),
		MaxConcurrentLoads: v.GetInt("max-concurrent-loads"),
		EtcdEndpoints:      v.GetStringSlice("etcd-endpoints"),
		EtcdRoot:           v.GetString("etcd-root"),
		EtcdDialTimeout:    v.GetDuration("etcd-dial-timeout"),
		ListenAddr:         v.GetString("listen-addr"),
	}
	if cfg.MaxConcurrentLoads <= 0 {
		return nil, fmt.Errorf("max-concurrent-loads must be positive, got %d", cfg.MaxConcurrentLoads)
	}
	if cfg.MergeDSN == "" {
		return nil, fmt.Errorf("merge-dsn must not be empty")
	}
	return cfg, nil
}
