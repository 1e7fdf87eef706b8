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

package sqlite

import (
	"context"
	"database/sql"
	"io"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	squill "github.com/squill-app/squill-drivers"
	"github.com/squill-app/squill-drivers/internal/batch"
)

type statement struct {
	conn    *connection
	stmt    *sql.Stmt
	nparams int
	bound   squill.Parameters
	schema  *arrow.Schema
	closed  bool
}

func (s *statement) ParameterCount() int { return s.nparams }

// Schema returns the schema of the last query run, nil before.
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

// args binds params when not nil and returns the bound values.
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
	res, err := s.stmt.ExecContext(ctx, args...)
	if err != nil {
		return -1, wrapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return -1, wrapError(err)
	}
	return n, nil
}

func (s *statement) Query(ctx context.Context, params squill.Parameters) (squill.RecordReader, error) {
	args, err := s.args(params)
	if err != nil {
		return nil, err
	}
	rows, err := s.stmt.QueryContext(ctx, args...)
	if err != nil {
		return nil, wrapError(err)
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		_ = rows.Close()
		return nil, wrapError(err)
	}

	fields := make([]arrow.Field, len(types))
	for i, ct := range types {
		fields[i] = arrow.Field{
			Name:     ct.Name(),
			Type:     arrowType(ct.DatabaseTypeName()),
			Nullable: true,
		}
	}
	opts := s.conn.opts
	bldr := batch.NewBuilder(opts.Allocator, fields, opts.MaxBatchRows, opts.MaxBatchBytes)
	rdr := batch.NewReader(bldr, &rowSource{rows: rows, values: make([]any, len(fields))})
	s.schema = rdr.Schema()
	return rdr, nil
}

func (s *statement) Close() error {
	if s.closed {
		return errorHelper.Errorf(squill.StatusInvalidState, "statement already closed")
	}
	s.closed = true
	return wrapError(s.stmt.Close())
}

// rowSource reads the rows of a query as Go values.
type rowSource struct {
	rows   *sql.Rows
	values []any
}

func (r *rowSource) Next() ([]any, error) {
	if !r.rows.Next() {
		if err := r.rows.Err(); err != nil {
			return nil, wrapError(err)
		}
		return nil, io.EOF
	}
	dest := make([]any, len(r.values))
	for i := range dest {
		dest[i] = &r.values[i]
	}
	if err := r.rows.Scan(dest...); err != nil {
		return nil, wrapError(err)
	}
	return r.values, nil
}

func (r *rowSource) Close() error { return wrapError(r.rows.Close()) }

// arrowType maps a declared column type to an Arrow type following
// the SQLite column affinity rules. Columns with numeric affinity or
// without a declared type are typed by their first value.
func arrowType(decl string) arrow.DataType {
	decl = strings.ToUpper(decl)
	switch {
	case decl == "":
		return arrow.Null
	case strings.Contains(decl, "INT"):
		return arrow.PrimitiveTypes.Int64
	case strings.Contains(decl, "CHAR"), strings.Contains(decl, "CLOB"), strings.Contains(decl, "TEXT"):
		return arrow.BinaryTypes.String
	case strings.Contains(decl, "BLOB"):
		return arrow.BinaryTypes.Binary
	case strings.Contains(decl, "REAL"), strings.Contains(decl, "FLOA"), strings.Contains(decl, "DOUB"):
		return arrow.PrimitiveTypes.Float64
	default:
		return arrow.Null
	}
}
