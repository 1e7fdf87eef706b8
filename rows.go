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

package squill

import "github.com/apache/arrow-go/v18/arrow"

// Rows iterates over the rows of a [RecordReader], one batch at a
// time.
//
//	rows, err := conn.QueryRows(ctx, "SELECT id FROM users", nil)
//	if err != nil {
//		return err
//	}
//	defer rows.Close()
//	for rows.Next() {
//		id, err := rows.Row().Int64("id")
//		...
//	}
//	return rows.Err()
type Rows struct {
	rdr     RecordReader
	schema  *arrow.Schema
	cur     arrow.Record
	curRow  int
	row     *Row
	err     error
	done    bool
	onClose func() error
}

// NewRows returns a row iterator taking ownership of rdr. onClose, if
// not nil, is called once by Close after the reader is released.
func NewRows(rdr RecordReader, onClose func() error) *Rows {
	return &Rows{rdr: rdr, schema: rdr.Schema(), onClose: onClose}
}

// Next advances to the next row. It returns false at the end of the
// result or after an error.
func (r *Rows) Next() bool {
	r.releaseRow()
	if r.done {
		return false
	}

	for r.cur == nil || r.curRow >= int(r.cur.NumRows()) {
		if r.cur != nil {
			r.cur.Release()
			r.cur = nil
		}
		if !r.rdr.Next() {
			r.err = r.rdr.Err()
			r.done = true
			return false
		}
		r.cur = r.rdr.Record()
		r.cur.Retain()
		r.curRow = 0
	}

	r.row = NewRow(r.cur, r.curRow)
	r.curRow++
	return true
}

// Row returns the current row. It stays valid until the next call to
// Next or Close; Retain it to keep it longer.
func (r *Rows) Row() *Row { return r.row }

// Schema returns the schema of the result.
func (r *Rows) Schema() *arrow.Schema { return r.schema }

func (r *Rows) Err() error { return r.err }

// Close releases the underlying reader. It is safe to call Close more
// than once.
func (r *Rows) Close() error {
	r.releaseRow()
	if r.cur != nil {
		r.cur.Release()
		r.cur = nil
	}
	r.done = true
	if r.rdr == nil {
		return nil
	}
	r.rdr.Release()
	r.rdr = nil

	if r.onClose == nil {
		return nil
	}
	onClose := r.onClose
	r.onClose = nil
	return onClose()
}

func (r *Rows) releaseRow() {
	if r.row != nil {
		r.row.Release()
		r.row = nil
	}
}
