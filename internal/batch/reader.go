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

package batch

import (
	"errors"
	"io"
	"sync/atomic"

	"github.com/apache/arrow-go/v18/arrow"
)

// RowSource produces rows of Go values. Next returns io.EOF once the
// rows are exhausted.
type RowSource interface {
	Next() ([]any, error)
	Close() error
}

// Reader turns a RowSource into a stream of record batches, each
// bounded by the limits of its Builder. It implements
// squill.RecordReader.
type Reader struct {
	refCount atomic.Int64

	bldr *Builder
	src  RowSource
	cur  arrow.Record
	err  error
	done bool
}

// NewReader returns a reader owning bldr and src; both are released
// with the reader.
func NewReader(bldr *Builder, src RowSource) *Reader {
	r := &Reader{bldr: bldr, src: src}
	r.refCount.Add(1)
	return r
}

func (r *Reader) Retain() { r.refCount.Add(1) }

func (r *Reader) Release() {
	if r.refCount.Add(-1) != 0 {
		return
	}
	if r.cur != nil {
		r.cur.Release()
		r.cur = nil
	}
	r.bldr.Release()
	if err := r.src.Close(); err != nil && r.err == nil {
		r.err = err
	}
}

func (r *Reader) Schema() *arrow.Schema { return r.bldr.Schema() }

func (r *Reader) Record() arrow.Record { return r.cur }

func (r *Reader) Err() error { return r.err }

func (r *Reader) Next() bool {
	if r.cur != nil {
		r.cur.Release()
		r.cur = nil
	}
	if r.done {
		return false
	}

	for !r.bldr.Full() {
		row, err := r.src.Next()
		if errors.Is(err, io.EOF) {
			r.done = true
			break
		}
		if err == nil {
			err = r.bldr.Append(row)
		}
		if err != nil {
			r.err = err
			r.done = true
			// rows of a failed batch are dropped
			if r.bldr.Len() > 0 {
				r.bldr.NewRecord().Release()
			}
			return false
		}
	}

	if r.bldr.Len() == 0 {
		return false
	}
	r.cur = r.bldr.NewRecord()
	return true
}

// SliceSource is a RowSource over rows held in memory.
type SliceSource struct {
	Rows [][]any
	// Err, if set, is returned once the rows are exhausted.
	Err error
	pos int
}

func (s *SliceSource) Next() ([]any, error) {
	if s.pos >= len(s.Rows) {
		if s.Err != nil {
			return nil, s.Err
		}
		return nil, io.EOF
	}
	row := s.Rows[s.pos]
	s.pos++
	return row, nil
}

func (s *SliceSource) Close() error { return nil }
