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

// Package mock provides a deterministic in-memory backend registered
// under the "mock" scheme. It runs no SQL; statements are recognized
// by their shape:
//
//   - opening a URI containing "?error" fails;
//   - preparing "XINSERT" fails;
//   - executing a statement starting with "SELECT" fails;
//   - "SELECT n" returns n rows (id int32 from 1 to n, username
//     "user<id>"), an empty result for 0, and fails on the first
//     fetch when n is negative;
//   - "SELECT ?, ..." returns a single row holding the bound
//     parameters;
//   - any other query fails.
//
// Parameter counts are checked against the number of "?" in the
// statement.
package mock

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	squill "github.com/squill-app/squill-drivers"
	"github.com/squill-app/squill-drivers/internal/batch"
	"github.com/squill-app/squill-drivers/internal/driverbase"
)

const DriverName = "mock"

var (
	selectCount  = regexp.MustCompile(`^SELECT\s+(-?[0-9]+)\s*$`)
	selectParams = regexp.MustCompile(`^SELECT\s+\?(\s*,\s*\?)*\s*$`)

	errorHelper = driverbase.ErrorHelper{DriverName: DriverName}
)

// Factory opens mock connections.
var Factory squill.DriverFactory = factory{}

// Register adds the mock backend to a registry.
func Register(r *squill.Registry) { r.Register(Factory) }

type factory struct{}

func (factory) Schemes() []string { return []string{"mock"} }

func (factory) Open(ctx context.Context, uri string, opts squill.Options) (squill.DriverConnection, error) {
	if err := ctx.Err(); err != nil {
		return nil, errorHelper.ContextError(err)
	}
	if strings.Contains(uri, "?error") {
		return nil, errorHelper.Errorf(squill.StatusIO, "Invalid URI: %s", uri)
	}
	return &connection{opts: opts.WithDefaults()}, nil
}

type connection struct {
	opts   squill.Options
	closed bool
}

func (c *connection) DriverName() string { return DriverName }

func (c *connection) Prepare(ctx context.Context, sql string) (squill.DriverStatement, error) {
	if c.closed {
		return nil, errorHelper.Errorf(squill.StatusInvalidState, "connection is closed")
	}
	if err := ctx.Err(); err != nil {
		return nil, errorHelper.ContextError(err)
	}
	if sql == "XINSERT" {
		return nil, errorHelper.Errorf(squill.StatusInvalidArgument, "Invalid statement: %s", sql)
	}
	return &statement{
		conn:    c,
		sql:     strings.TrimSpace(sql),
		nparams: driverbase.CountPlaceholders(sql),
	}, nil
}

func (c *connection) Close() error {
	if c.closed {
		return errorHelper.Errorf(squill.StatusInvalidState, "connection already closed")
	}
	c.closed = true
	return nil
}

type statement struct {
	conn    *connection
	sql     string
	nparams int
	bound   squill.Parameters
	schema  *arrow.Schema
	closed  bool
}

func (s *statement) ParameterCount() int { return s.nparams }

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

func (s *statement) bindIfAny(ctx context.Context, params squill.Parameters) error {
	if err := ctx.Err(); err != nil {
		return errorHelper.ContextError(err)
	}
	if params != nil {
		return s.Bind(params)
	}
	if s.closed {
		return errorHelper.Errorf(squill.StatusInvalidState, "statement is closed")
	}
	return s.bound.CheckCount(s.nparams)
}

func (s *statement) Execute(ctx context.Context, params squill.Parameters) (int64, error) {
	if err := s.bindIfAny(ctx, params); err != nil {
		return -1, err
	}
	if strings.HasPrefix(strings.ToUpper(s.sql), "SELECT") {
		return -1, errorHelper.Errorf(squill.StatusInvalidArgument,
			"Cannot execute a statement returning rows: %s", s.sql)
	}
	return 1, nil
}

func (s *statement) Query(ctx context.Context, params squill.Parameters) (squill.RecordReader, error) {
	if err := s.bindIfAny(ctx, params); err != nil {
		return nil, err
	}

	opts := s.conn.opts
	if selectParams.MatchString(s.sql) {
		fields := make([]arrow.Field, len(s.bound))
		for i := range fields {
			fields[i] = arrow.Field{Name: fmt.Sprintf("col%d", i), Type: arrow.Null, Nullable: true}
		}
		bldr := batch.NewBuilder(opts.Allocator, fields, opts.MaxBatchRows, opts.MaxBatchBytes)
		rdr := batch.NewReader(bldr, &batch.SliceSource{Rows: [][]any{s.bound}})
		s.schema = rdr.Schema()
		return rdr, nil
	}

	m := selectCount.FindStringSubmatch(s.sql)
	if m == nil {
		return nil, errorHelper.Errorf(squill.StatusInvalidArgument, "Invalid statement: %s", s.sql)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return nil, errorHelper.Errorf(squill.StatusInvalidArgument, "Invalid statement: %s", s.sql)
	}

	fields := []arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int32},
		{Name: "username", Type: arrow.BinaryTypes.String},
	}
	bldr := batch.NewBuilder(opts.Allocator, fields, opts.MaxBatchRows, opts.MaxBatchBytes)
	rdr := batch.NewReader(bldr, &users{count: n})
	s.schema = rdr.Schema()
	return rdr, nil
}

func (s *statement) Close() error {
	if s.closed {
		return errorHelper.Errorf(squill.StatusInvalidState, "statement already closed")
	}
	s.closed = true
	return nil
}

// users generates the rows of "SELECT n".
type users struct {
	count int
	next  int
}

func (u *users) Next() ([]any, error) {
	if u.count < 0 {
		return nil, errorHelper.Errorf(squill.StatusIO, "Invalid count: %d", u.count)
	}
	if u.next >= u.count {
		return nil, io.EOF
	}
	u.next++
	return []any{int32(u.next), fmt.Sprintf("user%d", u.next)}, nil
}

func (u *users) Close() error { return nil }
