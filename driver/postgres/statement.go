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

package postgres

import (
	"context"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/jackc/pgx/v5"
	squill "github.com/squill-app/squill-drivers"
	"github.com/squill-app/squill-drivers/internal/batch"
)

type statement struct {
	conn    *connection
	name    string
	nparams int
	bound   squill.Parameters
	schema  *arrow.Schema
	closed  bool
}

func (s *statement) ParameterCount() int { return s.nparams }

// Schema returns the schema described by the server when the statement
// was prepared; it is empty for statements returning no rows.
func (s *statement) Schema() *arrow.Schema { return s.schema }

func (s *statement) Bind(params squill.Parameters) error {
	if s.closed {
		return errorHelper.Errorf(squill.StatusInvalidState, "statement is closed")
	}
	if err := params.CheckCount(s.nparams); err != nil {
		return err
	}
	s.bound = params
	return nil
}

func (s *statement) args(params squill.Parameters) ([]any, error) {
	if params != nil {
		if err := s.Bind(params); err != nil {
			return nil, err
		}
	} else if s.closed {
		return nil, errorHelper.Errorf(squill.StatusInvalidState, "statement is closed")
	} else if err := s.bound.CheckCount(s.nparams); err != nil {
		return nil, err
	}
	return []any(s.bound), nil
}

func (s *statement) Execute(ctx context.Context, params squill.Parameters) (int64, error) {
	args, err := s.args(params)
	if err != nil {
		return -1, err
	}
	tag, err := s.conn.conn.Exec(ctx, s.name, args...)
	if err != nil {
		return -1, wrapError(err)
	}
	return tag.RowsAffected(), nil
}

func (s *statement) Query(ctx context.Context, params squill.Parameters) (squill.RecordReader, error) {
	args, err := s.args(params)
	if err != nil {
		return nil, err
	}
	rows, err := s.conn.conn.Query(ctx, s.name, args...)
	if err != nil {
		return nil, wrapError(err)
	}
	// pgx reports most errors on the first call to Next
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, wrapError(err)
	}

	opts := s.conn.opts
	fields := fieldsOf(rows.FieldDescriptions())
	bldr := batch.NewBuilder(opts.Allocator, fields, opts.MaxBatchRows, opts.MaxBatchBytes)
	return batch.NewReader(bldr, &rowSource{rows: rows}), nil
}

func (s *statement) Close() error {
	if s.closed {
		return errorHelper.Errorf(squill.StatusInvalidState, "statement already closed")
	}
	s.closed = true
	if s.conn.closed {
		return nil
	}
	return wrapError(s.conn.conn.Deallocate(context.Background(), s.name))
}

type rowSource struct {
	rows pgx.Rows
}

func (r *rowSource) Next() ([]any, error) {
	if !r.rows.Next() {
		if err := r.rows.Err(); err != nil {
			return nil, wrapError(err)
		}
		return nil, io.EOF
	}
	values, err := r.rows.Values()
	if err != nil {
		return nil, wrapError(err)
	}
	for i, v := range values {
		if values[i], err = normalize(v); err != nil {
			return nil, errorHelper.Wrap(squill.StatusInvalidData, err)
		}
	}
	return values, nil
}

// Close discards the remaining rows. Errors were already reported by
// Next.
func (r *rowSource) Close() error {
	r.rows.Close()
	return nil
}
