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

// Package validation is a backend-agnostic test suite intended to aid
// in developing squill backends. It provides a series of utilities and
// defined tests that can be used to validate a backend follows the
// correct and expected behavior, both through the blocking API and
// through the async connection.
package validation

import (
	"context"
	"fmt"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	squill "github.com/squill-app/squill-drivers"
	"github.com/squill-app/squill-drivers/async"
	"github.com/stretchr/testify/suite"
)

type DriverQuirks interface {
	// Called in SetupTest to initialize anything needed for testing
	SetupDriver(*testing.T) squill.DriverFactory
	// Called in TearDownTest to clean up anything necessary in between tests
	TearDownDriver(*testing.T, squill.DriverFactory)
	// The connection URI of the database under test
	URI() string
	// Return the SQL to reference the bind parameter for a given index,
	// starting at 0
	BindParameter(index int) string
	// A query returning n rows whose first column holds the integers
	// 1 to n
	CountQuery(n int) string
	// A query returning its n bound integer parameters as one row
	EchoQuery(n int) string
	// Create a table holding an integer id and a text name
	CreateSampleTable(ctx context.Context, cnxn Executor, tableName string) error
	// A statement inserting one row, with the id and name as parameters
	InsertStatement(tableName string) string
	// The backend name reported by the connections
	DriverName() string
}

// Executor runs statements returning no rows. Both squill.Connection
// and async.Connection implement it.
type Executor interface {
	Execute(ctx context.Context, sql string, params squill.Parameters) (int64, error)
}

// CheckedClose fails the test when closing c fails.
func CheckedClose(t *testing.T, c interface{ Close() error }) {
	if err := c.Close(); err != nil {
		t.Errorf("close failed: %v", err)
	}
}

func intValue(arr arrow.Array, i int) (int64, bool) {
	switch arr := arr.(type) {
	case *array.Int32:
		return int64(arr.Value(i)), true
	case *array.Int64:
		return arr.Value(i), true
	}
	return 0, false
}

type ConnectionTests struct {
	suite.Suite

	Factory squill.DriverFactory
	Quirks  DriverQuirks

	Registry *squill.Registry
	ctx      context.Context
}

func (c *ConnectionTests) SetupTest() {
	c.Factory = c.Quirks.SetupDriver(c.T())
	c.Registry = squill.NewRegistry(c.Factory)
	c.ctx = context.Background()
}

func (c *ConnectionTests) TearDownTest() {
	c.Quirks.TearDownDriver(c.T(), c.Factory)
	c.Factory = nil
	c.Registry = nil
}

func (c *ConnectionTests) TestNewConn() {
	cnxn, err := squill.Open(c.ctx, c.Registry, c.Quirks.URI(), squill.Options{})
	c.Require().NoError(err)
	c.NotNil(cnxn)
	c.Equal(c.Quirks.DriverName(), cnxn.DriverName())

	c.NoError(cnxn.Close())
}

func (c *ConnectionTests) TestCloseConnTwice() {
	cnxn, err := squill.Open(c.ctx, c.Registry, c.Quirks.URI(), squill.Options{})
	c.Require().NoError(err)

	c.NoError(cnxn.Close())
	c.ErrorIs(cnxn.Close(), squill.ErrConnectionClosed)
}

func (c *ConnectionTests) TestConcurrent() {
	cnxn, err := squill.Open(c.ctx, c.Registry, c.Quirks.URI(), squill.Options{})
	c.Require().NoError(err)
	cnxn2, err := squill.Open(c.ctx, c.Registry, c.Quirks.URI(), squill.Options{})
	c.Require().NoError(err)

	c.NoError(cnxn.Close())
	c.NoError(cnxn2.Close())
}

func (c *ConnectionTests) TestUnknownScheme() {
	_, err := squill.Open(c.ctx, c.Registry, "unknown-scheme://", squill.Options{})
	var serr squill.Error
	c.ErrorAs(err, &serr)
	c.Equal(squill.StatusNotFound, serr.Code)
}

type StatementTests struct {
	suite.Suite

	Factory squill.DriverFactory
	Quirks  DriverQuirks

	Mem  *memory.CheckedAllocator
	Cnxn *squill.Connection
	ctx  context.Context
}

func (s *StatementTests) SetupTest() {
	s.Factory = s.Quirks.SetupDriver(s.T())
	s.Mem = memory.NewCheckedAllocator(memory.DefaultAllocator)
	s.ctx = context.Background()
	var err error
	s.Cnxn, err = squill.Open(s.ctx, squill.NewRegistry(s.Factory), s.Quirks.URI(),
		squill.Options{Allocator: s.Mem, MaxBatchRows: 3})
	s.Require().NoError(err)
}

func (s *StatementTests) TearDownTest() {
	s.Require().NoError(s.Cnxn.Close())
	s.Mem.AssertSize(s.T(), 0)
	s.Quirks.TearDownDriver(s.T(), s.Factory)
	s.Cnxn = nil
	s.Factory = nil
}

func (s *StatementTests) TestSQLPrepareSelectNoParams() {
	stmt, err := s.Cnxn.Prepare(s.ctx, s.Quirks.CountQuery(1))
	s.Require().NoError(err)
	defer CheckedClose(s.T(), stmt)
	s.Equal(0, stmt.ParameterCount())

	rdr, err := stmt.Query(s.ctx, nil)
	s.Require().NoError(err)
	defer rdr.Release()

	sc := rdr.Schema()
	s.Require().NotNil(sc)
	s.GreaterOrEqual(len(sc.Fields()), 1)

	s.True(rdr.Next())
	rec := rdr.Record()
	s.EqualValues(1, rec.NumRows())
	v, ok := intValue(rec.Column(0), 0)
	s.True(ok, rec.Column(0).DataType().String())
	s.EqualValues(1, v)

	s.False(rdr.Next())
	s.NoError(rdr.Err())
}

func (s *StatementTests) TestSQLPrepareParameterCount() {
	query := "SELECT " + s.Quirks.BindParameter(0) + ", " + s.Quirks.BindParameter(1)
	stmt, err := s.Cnxn.Prepare(s.ctx, query)
	s.Require().NoError(err)
	defer CheckedClose(s.T(), stmt)
	s.Equal(2, stmt.ParameterCount())

	var serr squill.Error
	s.ErrorAs(stmt.Bind(squill.Params(1)), &serr)
	s.Equal(squill.StatusInvalidArgument, serr.Code)
}

func (s *StatementTests) TestBindAndQuery() {
	stmt, err := s.Cnxn.Prepare(s.ctx, s.Quirks.EchoQuery(2))
	s.Require().NoError(err)
	defer CheckedClose(s.T(), stmt)

	s.Require().NoError(stmt.Bind(squill.Params(int64(7), int64(8))))
	for i := 0; i < 2; i++ {
		rows, err := stmt.QueryRows(s.ctx, nil)
		s.Require().NoError(err)
		s.Require().True(rows.Next())
		values, err := rows.Row().Values()
		s.NoError(err)
		s.EqualValues([]any{int64(7), int64(8)}, values)
		s.False(rows.Next())
		s.NoError(rows.Close())
	}
}

func (s *StatementTests) TestBatchesAreBounded() {
	rdr, err := s.Cnxn.QueryArrow(s.ctx, s.Quirks.CountQuery(7), nil)
	s.Require().NoError(err)
	defer rdr.Release()

	var (
		sizes []int64
		next  int64 = 1
	)
	for rdr.Next() {
		rec := rdr.Record()
		sizes = append(sizes, rec.NumRows())
		for i := 0; i < int(rec.NumRows()); i++ {
			v, _ := intValue(rec.Column(0), i)
			s.Equal(next, v)
			next++
		}
	}
	s.NoError(rdr.Err())
	s.Equal([]int64{3, 3, 1}, sizes)
}

func (s *StatementTests) TestEmptyResult() {
	rows, err := s.Cnxn.QueryRows(s.ctx, s.Quirks.CountQuery(0), nil)
	s.Require().NoError(err)
	defer CheckedClose(s.T(), rows)
	s.NotNil(rows.Schema())
	s.False(rows.Next())
	s.NoError(rows.Err())
}

func (s *StatementTests) TestExecuteInsert() {
	s.Require().NoError(s.Quirks.CreateSampleTable(s.ctx, s.Cnxn, "sample"))

	stmt, err := s.Cnxn.Prepare(s.ctx, s.Quirks.InsertStatement("sample"))
	s.Require().NoError(err)
	defer CheckedClose(s.T(), stmt)
	s.Equal(2, stmt.ParameterCount())

	for i := 1; i <= 3; i++ {
		n, err := stmt.Execute(s.ctx, squill.Params(int64(i), fmt.Sprintf("name%d", i)))
		s.Require().NoError(err)
		s.EqualValues(1, n)
	}

	_, err = stmt.Execute(s.ctx, squill.Params(int64(4)))
	s.Error(err)
}

type AsyncTests struct {
	suite.Suite

	Factory squill.DriverFactory
	Quirks  DriverQuirks

	Mem  *memory.CheckedAllocator
	Cnxn *async.Connection
	ctx  context.Context
}

func (a *AsyncTests) SetupTest() {
	a.Factory = a.Quirks.SetupDriver(a.T())
	a.Mem = memory.NewCheckedAllocator(memory.DefaultAllocator)
	a.ctx = context.Background()
	var err error
	a.Cnxn, err = async.Open(a.ctx, squill.NewRegistry(a.Factory), a.Quirks.URI(),
		squill.Options{Allocator: a.Mem, MaxBatchRows: 3})
	a.Require().NoError(err)
}

func (a *AsyncTests) TearDownTest() {
	err := a.Cnxn.Close(a.ctx)
	if err != nil {
		a.ErrorIs(err, squill.ErrConnectionClosed)
	}
	a.Mem.AssertSize(a.T(), 0)
	a.Quirks.TearDownDriver(a.T(), a.Factory)
	a.Cnxn = nil
	a.Factory = nil
}

func (a *AsyncTests) TestDriverName() {
	a.Equal(a.Quirks.DriverName(), a.Cnxn.DriverName())
}

func (a *AsyncTests) TestQueryRows() {
	rows, err := a.Cnxn.QueryRows(a.ctx, a.Quirks.CountQuery(5), nil)
	a.Require().NoError(err)
	defer CheckedClose(a.T(), rows)

	var got []int64
	for rows.Next(a.ctx) {
		v, err := rows.Row().Int64(0)
		a.Require().NoError(err)
		got = append(got, v)
	}
	a.NoError(rows.Err())
	a.Equal([]int64{1, 2, 3, 4, 5}, got)
}

func (a *AsyncTests) TestPreparedStatement() {
	stmt, err := a.Cnxn.Prepare(a.ctx, a.Quirks.EchoQuery(1))
	a.Require().NoError(err)
	defer CheckedClose(a.T(), stmt)

	for i := int64(1); i <= 2; i++ {
		rows, err := stmt.QueryRows(a.ctx, squill.Params(i))
		a.Require().NoError(err)
		a.Require().True(rows.Next(a.ctx))
		v, err := rows.Row().Int64(0)
		a.NoError(err)
		a.Equal(i, v)
		a.NoError(rows.Close())
	}
}

func (a *AsyncTests) TestExecute() {
	a.Require().NoError(a.Quirks.CreateSampleTable(a.ctx, a.Cnxn, "sample"))

	for i := 1; i <= 3; i++ {
		n, err := a.Cnxn.Execute(a.ctx, a.Quirks.InsertStatement("sample"), squill.Params(int64(i), "name"))
		a.Require().NoError(err)
		a.EqualValues(1, n)
	}
}

func (a *AsyncTests) TestCursorIsExclusive() {
	stream, err := a.Cnxn.Query(a.ctx, a.Quirks.CountQuery(5), nil)
	a.Require().NoError(err)
	defer CheckedClose(a.T(), stream)

	_, err = a.Cnxn.Prepare(a.ctx, a.Quirks.CountQuery(1))
	a.ErrorIs(err, squill.ErrProtocol)
	a.True(async.IsUnusable(err))
}
