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

// RecordBatchStream is the active cursor of a connection, consumed one
// record batch at a time. It is meant to be read by one goroutine.
//
//	stream, err := stmt.Query(ctx, nil)
//	if err != nil {
//		return err
//	}
//	defer stream.Close()
//	for stream.Next(ctx) {
//		rec := stream.Record()
//		...
//	}
//	return stream.Err()
//
// A stream that is garbage collected without being closed releases the
// cursor.
type RecordBatchStream struct {
	*cursor
}

// cursor is the state of a RecordBatchStream, also reachable from its
// statement.
type cursor struct {
	conn    *Connection
	stmt    *statement
	ownStmt bool
	schema  *arrow.Schema
	// batches receives every FetchCursor response of this stream.
	batches chan response[arrow.Record]

	// mu serializes fetches with a Close coming from the statement.
	mu        sync.Mutex
	cur       arrow.Record
	err       error
	exhausted bool
	closed    bool
}

func newRecordBatchStream(c *cursor) *RecordBatchStream {
	r := &RecordBatchStream{c}
	runtime.SetFinalizer(r, func(r *RecordBatchStream) { go r.cursor.close() })
	return r
}

// Schema returns the schema reported by the backend when the query
// started.
func (r *RecordBatchStream) Schema() *arrow.Schema { return r.schema }

// Next fetches the next batch. It returns false once the result is
// exhausted, after an error, or after Close. An exhausted stream does
// not contact the connection again.
func (r *RecordBatchStream) Next(ctx context.Context) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.releaseCurrent()
	if r.closed || r.exhausted || r.err != nil {
		return false
	}

	req := request[arrow.Record]{ctx: ctx, reply: r.batches}
	rec, err := call(ctx, r.conn, &fetchCmd{request: req}, req)
	if err != nil {
		r.err = err
		return false
	}
	if rec == nil {
		r.exhausted = true
		r.stmt.detach(r.cursor)
		return false
	}
	r.cur = rec
	return true
}

// Record returns the current batch. It is released by the next call
// to Next or Close; Retain it to keep it longer.
func (r *RecordBatchStream) Record() arrow.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cur
}

// Err returns the error that stopped the stream, if any.
func (r *RecordBatchStream) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Close releases the cursor, making the connection available again.
// It closes the statement too when the stream was created by
// Connection.Query.
func (r *RecordBatchStream) Close() error {
	runtime.SetFinalizer(r, nil)
	return r.cursor.close()
}

func (c *cursor) close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.releaseCurrent()
	if !c.exhausted {
		c.conn.post(&dropCursorCmd{})
	}
	c.mu.Unlock()

	c.stmt.detach(c)
	if c.ownStmt {
		return c.stmt.close()
	}
	return nil
}

func (c *cursor) releaseCurrent() {
	if c.cur != nil {
		c.cur.Release()
		c.cur = nil
	}
}

// RowStream presents the batches of a RecordBatchStream one row at a
// time. Only one batch is held at any time. It is not safe for
// concurrent use.
type RowStream struct {
	batches *RecordBatchStream
	cur     arrow.Record
	offset  int
	row     *squill.Row
	err     error
	done    bool
}

// NewRowStream returns a row stream taking ownership of batches.
func NewRowStream(batches *RecordBatchStream) *RowStream {
	return &RowStream{batches: batches}
}

// Schema returns the schema of the rows.
func (r *RowStream) Schema() *arrow.Schema { return r.batches.Schema() }

// Next advances to the next row, fetching a batch when the current one
// is consumed. The end of the rows and errors are terminal.
func (r *RowStream) Next(ctx context.Context) bool {
	r.releaseRow()
	if r.done {
		return false
	}

	for r.cur == nil {
		if !r.batches.Next(ctx) {
			r.err = r.batches.Err()
			r.done = true
			return false
		}
		if rec := r.batches.Record(); rec.NumRows() > 0 {
			rec.Retain()
			r.cur, r.offset = rec, 0
		}
	}

	r.row = squill.NewRow(r.cur, r.offset)
	r.offset++
	if r.offset >= int(r.cur.NumRows()) {
		// the row keeps the batch alive
		r.cur.Release()
		r.cur = nil
	}
	return true
}

// Row returns the current row. It is released by the next call to
// Next or Close; Retain it to keep it longer.
func (r *RowStream) Row() *squill.Row { return r.row }

// Err returns the error that ended the rows, if any.
func (r *RowStream) Err() error { return r.err }

// Close releases the current row and closes the underlying stream.
func (r *RowStream) Close() error {
	r.releaseRow()
	if r.cur != nil {
		r.cur.Release()
		r.cur = nil
	}
	r.done = true
	return r.batches.Close()
}

func (r *RowStream) releaseRow() {
	if r.row != nil {
		r.row.Release()
		r.row = nil
	}
}
