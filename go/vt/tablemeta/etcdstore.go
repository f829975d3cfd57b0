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

package tablemeta

import (
	"context"
	"encoding/json"
	"path"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/lsst-sqre/qserv/go/vt/vterrors"
)

// etcdRecord is the small JSON document stored under
// <root>/tables/<db>/<table>: everything the Resolver needs for one
// table, folded into a single key so a lookup is one round trip.
type etcdRecord struct {
	Partitioning   PartitioningParams `json:"partitioning"`
	Match          MatchParams        `json:"match"`
	PartitionCols  PartitionColumns   `json:"partitionCols,omitempty"`
	PartitioningID int                `json:"partitioningId,omitempty"`
}

// EtcdConfigStore is a ConfigStore backed by etcd, grounded on
// etcd2topo.Server's use of go.etcd.io/etcd/client/v3 for the
// analogous "fetch a small structured record by key" problem: a
// clientv3.Client dialed once against a set of endpoints, keys built
// with path.Join under a configured root.
type EtcdConfigStore struct {
	cli  *clientv3.Client
	root string
}

// NewEtcdConfigStore dials endpoints and returns a store rooted at
// root. The db-striping value, which css stores per-database rather
// than per-table, is looked up under <root>/dbs/<db>.
func NewEtcdConfigStore(endpoints []string, root string, dialTimeout time.Duration) (*EtcdConfigStore, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: dialTimeout,
	})
	if err != nil {
		return nil, vterrors.Wrap(err, "dial etcd config store")
	}
	return &EtcdConfigStore{cli: cli, root: root}, nil
}

// Close releases the underlying etcd client.
func (s *EtcdConfigStore) Close() error {
	return s.cli.Close()
}

func (s *EtcdConfigStore) tableKey(db, table string) string {
	return path.Join(s.root, "tables", db, table)
}

func (s *EtcdConfigStore) dbKey(db string) string {
	return path.Join(s.root, "dbs", db)
}

func (s *EtcdConfigStore) getRecord(ctx context.Context, db, table string) (etcdRecord, error) {
	var rec etcdRecord
	resp, err := s.cli.Get(ctx, s.tableKey(db, table))
	if err != nil {
		return rec, vterrors.Wrap(err, "etcd get "+db+"."+table)
	}
	if len(resp.Kvs) == 0 {
		return rec, vterrors.Errorf(vterrors.InvalidTable, "no configuration for table %s.%s", db, table)
	}
	if err := json.Unmarshal(resp.Kvs[0].Value, &rec); err != nil {
		return rec, vterrors.Wrap(err, "decode table record for "+db+"."+table)
	}
	return rec, nil
}

// GetTableParams implements ConfigStore.
func (s *EtcdConfigStore) GetTableParams(ctx context.Context, db, table string) (TableParams, error) {
	rec, err := s.getRecord(ctx, db, table)
	if err != nil {
		return TableParams{}, err
	}
	return TableParams{Partitioning: rec.Partitioning, Match: rec.Match}, nil
}

// GetPartTableParams implements ConfigStore.
func (s *EtcdConfigStore) GetPartTableParams(ctx context.Context, db, table string) (PartitionColumns, error) {
	rec, err := s.getRecord(ctx, db, table)
	if err != nil {
		return PartitionColumns{}, err
	}
	return rec.PartitionCols, nil
}

// GetDbStriping implements ConfigStore.
func (s *EtcdConfigStore) GetDbStriping(ctx context.Context, db string) (int, error) {
	resp, err := s.cli.Get(ctx, s.dbKey(db))
	if err != nil {
		return 0, vterrors.Wrap(err, "etcd get striping for db "+db)
	}
	if len(resp.Kvs) == 0 {
		return 0, vterrors.Errorf(vterrors.InvalidTable, "no striping configuration for db %s", db)
	}
	var striping struct {
		PartitioningID int `json:"partitioningId"`
	}
	if err := json.Unmarshal(resp.Kvs[0].Value, &striping); err != nil {
		return 0, vterrors.Wrap(err, "decode striping record for db "+db)
	}
	return striping.PartitioningID, nil
}

// ParseEndpoints splits a comma-separated endpoint list, the same
// convention etcd2topo.Server.NewServer's serverAddr argument follows.
func ParseEndpoints(csv string) []string {
	return strings.Split(csv, ",")
}
