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

package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net"

	"github.com/lsst-sqre/qserv/go/vt/log"
	"github.com/lsst-sqre/qserv/go/vt/resultmerge/merger"
	"github.com/lsst-sqre/qserv/go/vt/tablemeta"
)

// Server accepts worker connections and drives one Merger Facade per
// connection. Query planning — which chunks feed which session, and
// whether a session's projection needs a fixup pass — is deliberately
// out of scope (spec.md §1 non-goals chunk assignment and SQL
// parsing), so a connection's session parameters arrive as a single
// JSON header line the caller sends before any frame bytes. One TCP
// connection carries exactly one Query Session; a coordinator driving
// many concurrent sessions opens one connection per session rather
// than multiplexing several sessions over one socket by session_id.
// This is narrower than a production Qserv czar's worker fan-in, but
// spec.md's scope is the merge engine behind that fan-in, not the
// fan-in itself.
type Server struct {
	Addr     string
	Manager  merger.Manager
	Resolver *tablemeta.Resolver
}

// sessionInit is the header line a worker connection sends before any
// framed result bytes: the session's target table and whether its
// results need a post-load fixup projection.
type sessionInit struct {
	DB          string `json:"db"`
	Table       string `json:"table"`
	TargetTable string `json:"target_table"`
	NeedsFixup  bool   `json:"needs_fixup"`
	Projection  string `json:"projection"`
	FixupSuffix string `json:"fixup_suffix"`
}

// ListenAndServe accepts connections on s.Addr until Accept returns
// any error (including the listener being closed), which it returns.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	defer ln.Close()

	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go s.handleConn(conn)
	}
}

// handleConn reads one session's header, then feeds every frame that
// arrives on conn into a Merger Facade until conn reaches EOF, at
// which point it finalizes the session and logs the outcome. Nothing
// is written back over the connection.
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	ctx := context.Background()

	r := bufio.NewReader(conn)
	line, err := r.ReadBytes('\n')
	if err != nil {
		log.Errorf("czard: read session header: %v", err)
		return
	}
	var init sessionInit
	if err := json.Unmarshal(line, &init); err != nil {
		log.Errorf("czard: decode session header: %v", err)
		return
	}

	// The resolver has no bearing on whether or how this session
	// merges its results — that is decided entirely by sessionInit,
	// which the upstream query planner (out of scope) computed — but
	// logging the table's descriptor kind here gives an operator a
	// cheap sanity check that planning and merging agree about what
	// is being queried.
	if init.Table != "" {
		if desc, err := s.Resolver.Get(ctx, init.DB, init.Table); err != nil {
			log.Warningf("czard: resolve %s.%s: %v", init.DB, init.Table, err)
		} else if desc != nil {
			log.Infof("czard: session for %s.%s (%s table)", init.DB, init.Table, desc.Kind)
		}
	}

	f := merger.New(merger.Config{
		DB:          init.DB,
		TargetTable: init.TargetTable,
		NeedsFixup:  init.NeedsFixup,
		Projection:  init.Projection,
		FixupSuffix: init.FixupSuffix,
	}, s.Manager)

	if err := s.feed(ctx, f, r); err != nil {
		log.Errorf("czard: session for %s failed: %v", f.TargetTable(), err)
		return
	}

	if err := f.Finalize(ctx); err != nil {
		log.Errorf("czard: finalize %s: %v", f.TargetTable(), err)
		return
	}
	log.Infof("czard: session complete, results in %s", f.TargetTable())
}

// feed reads frame bytes from r until EOF, sliding an accumulation
// buffer forward by however many bytes f.Merge reports it consumed on
// each call, per the Frame Codec's NeedMore contract.
func (s *Server) feed(ctx context.Context, f *merger.Facade, r io.Reader) error {
	buf := make([]byte, 0, 64*1024)
	chunk := make([]byte, 32*1024)

	for {
		n, err := r.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			consumed, mergeErr := f.Merge(ctx, buf)
			if mergeErr != nil {
				return mergeErr
			}
			buf = append(buf[:0], buf[consumed:]...)
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
