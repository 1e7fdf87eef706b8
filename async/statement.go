// Licensed to the Apache Software Foundation (ASF) under one
// or more contributor license agreements.  See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership.  The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License.  You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

package async

import (
	"context"
	"runtime"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
	squill "github.com/squill-app/squill-drivers"
)

// Statement is a handle on a statement prepared by a connection actor.
//
// A Statement that is garbage collected without being closed is
// dropped; a stream it opened keeps working until it is closed.
type Statement struct {
	*statement
}

// statement is the state shared by a Statement and its stream.
type statement struct {
	conn   *Connection
	handle Handle

	mu     sync.Mutex
	stream *cursor
	closed bool
}

func newStatement(conn *Connection, h Handle) *Statement {
	s := &Statement{&statement{conn: conn, handle: h}}
	runtime.SetFinalizer(s, func(s *Statement) { go s.statement.release() })
	return s
}

// Handle returns the identifier of the statement in its connection.
func (s *Statement) Handle() Handle { return s.handle }

func (s *statement) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errorHelper.Errorf(squill.StatusInvalidState, "statement %d is closed", s.handle)
	}
	return nil
}

// Bind sets the parameters used by Execute and Query calls made with
// nil parameters.
func (s *Statement) Bind(ctx context.Context, params squill.Parameters) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	req := newRequest[struct{}](ctx)
	_, err := call(ctx, s.conn, &bindCmd{request: req, handle: s.handle, params: params}, req)
	return err
}

// Execute runs the statement and returns the number of affected rows.
// Non-nil params are bound first.
func (s *Statement) Execute(ctx context.Context, params squill.Parameters) (int64, error) {
	if err := s.checkOpen(); err != nil {
		return -1, err
	}
	req := newRequest[int64](ctx)
	n, err := call(ctx, s.conn, &executePreparedCmd{request: req, handle: s.handle, params: params}, req)
	if err != nil {
		return -1, err
	}
	return n, nil
}

// Query runs the statement and returns its result as a stream of
// record batches. Non-nil params are bound first.
//
// The connection accepts nothing else until the stream is exhausted or
// closed.
func (s *Statement) Query(ctx context.Context, params squill.Parameters) (*RecordBatchStream, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	req := newRequest[*arrow.Schema](ctx)
	schema, err := call(ctx, s.conn, &queryCmd{request: req, handle: s.handle, params: params}, req)
	if err != nil {
		return nil, err
	}

	stream := newRecordBatchStream(&cursor{
		conn:    s.conn,
		stmt:    s.statement,
		schema:  schema,
		batches: make(chan response[arrow.Record]),
	})
	s.mu.Lock()
	s.stream = stream.cursor
	s.mu.Unlock()
	return stream, nil
}

// QueryRows runs the statement and returns its rows.
func (s *Statement) QueryRows(ctx context.Context, params squill.Parameters) (*RowStream, error) {
	stream, err := s.Query(ctx, params)
	if err != nil {
		return nil, err
	}
	return NewRowStream(stream), nil
}

// Close closes the stream opened by the statement, if any, then drops
// the statement. A fetch in progress on that stream completes first;
// its batch is released. Close never fails: a statement of a closed
// connection is already gone.
func (s *Statement) Close() error {
	runtime.SetFinalizer(s, nil)
	return s.statement.close()
}

func (s *statement) close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	stream := s.stream
	s.stream = nil
	s.mu.Unlock()

	if stream != nil {
		_ = stream.close()
	}
	s.conn.post(&dropStatementCmd{handle: s.handle})
	return nil
}

// release drops the statement and leaves its stream open. The actor
// holds the drop back until the stream is released.
func (s *statement) release() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.conn.post(&dropStatementCmd{handle: s.handle})
}

func (s *statement) detach(stream *cursor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == stream {
		s.stream = nil
	}
}
