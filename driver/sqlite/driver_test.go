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

package sqlite_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	squill "github.com/squill-app/squill-drivers"
	"github.com/squill-app/squill-drivers/driver/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type SqliteTests struct {
	suite.Suite

	ctx  context.Context
	mem  *memory.CheckedAllocator
	reg  *squill.Registry
	conn *squill.Connection
}

func (s *SqliteTests) SetupTest() {
	s.ctx = context.Background()
	s.mem = memory.NewCheckedAllocator(memory.DefaultAllocator)
	s.reg = squill.NewRegistry(sqlite.Factory)

	var err error
	s.conn, err = squill.Open(s.ctx, s.reg, sqlite.InMemoryURI,
		squill.Options{Allocator: s.mem, MaxBatchRows: 2})
	s.Require().NoError(err)

	_, err = s.conn.Execute(s.ctx,
		`CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT, score REAL, avatar BLOB, misc)`, nil)
	s.Require().NoError(err)
}

func (s *SqliteTests) TearDownTest() {
	s.NoError(s.conn.Close())
	s.mem.AssertSize(s.T(), 0)
}

func (s *SqliteTests) insertUsers(n int) {
	stmt, err := s.conn.Prepare(s.ctx, `INSERT INTO users (id, name, score, avatar) VALUES (?, ?, ?, ?)`)
	s.Require().NoError(err)
	defer stmt.Close()
	for i := 1; i <= n; i++ {
		affected, err := stmt.Execute(s.ctx, squill.Params(i, fmt.Sprintf("user%d", i), float64(i)/2, []byte{byte(i)}))
		s.Require().NoError(err)
		s.EqualValues(1, affected)
	}
}

func (s *SqliteTests) TestDriverName() {
	s.Equal(sqlite.DriverName, s.conn.DriverName())
}

func (s *SqliteTests) TestDeclaredTypes() {
	s.insertUsers(1)

	row, err := s.conn.QueryRow(s.ctx, `SELECT id, name, score, avatar FROM users`, nil)
	s.Require().NoError(err)
	defer row.Release()

	expected := arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
		{Name: "name", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "score", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
		{Name: "avatar", Type: arrow.BinaryTypes.Binary, Nullable: true},
	}, nil)
	s.Truef(expected.Equal(row.Schema()), "expected: %s\ngot: %s", expected, row.Schema())

	id, err := row.Int64("id")
	s.NoError(err)
	s.EqualValues(1, id)
	name, err := row.String(1)
	s.NoError(err)
	s.Equal("user1", name)
	score, err := row.Float64("score")
	s.NoError(err)
	s.Equal(0.5, score)
	avatar, err := row.Bytes("avatar")
	s.NoError(err)
	s.Equal([]byte{1}, avatar)
}

func (s *SqliteTests) TestExpressionTypesAreInferred() {
	row, err := s.conn.QueryRow(s.ctx, `SELECT NULL AS a, 1 AS b, 'x' AS c, 1.5 AS d`, nil)
	s.Require().NoError(err)
	defer row.Release()

	types := []arrow.DataType{arrow.Null, arrow.PrimitiveTypes.Int64, arrow.BinaryTypes.String, arrow.PrimitiveTypes.Float64}
	for i, dt := range types {
		s.Truef(arrow.TypeEqual(dt, row.Schema().Field(i).Type), "column %d: %s", i, row.Schema().Field(i).Type)
	}
	v, err := row.Get("a")
	s.NoError(err)
	s.Nil(v)
}

func (s *SqliteTests) TestLeadingNullsAreKept() {
	_, err := s.conn.Execute(s.ctx, `INSERT INTO users (id, misc) VALUES (1, NULL), (2, 'two')`, nil)
	s.Require().NoError(err)

	rdr, err := s.conn.QueryArrow(s.ctx, `SELECT misc FROM users ORDER BY id`, nil)
	s.Require().NoError(err)
	defer rdr.Release()

	s.Require().True(rdr.Next())
	rec := rdr.Record()
	s.EqualValues(2, rec.NumRows())
	s.True(arrow.TypeEqual(arrow.BinaryTypes.String, rec.Schema().Field(0).Type))
	s.True(rec.Column(0).IsNull(0))
	s.False(rec.Column(0).IsNull(1))
	s.False(rdr.Next())
	s.NoError(rdr.Err())
}

func (s *SqliteTests) TestBatchesAreBounded() {
	s.insertUsers(5)

	rdr, err := s.conn.QueryArrow(s.ctx, `SELECT id FROM users ORDER BY id`, nil)
	s.Require().NoError(err)
	defer rdr.Release()

	var sizes []int64
	for rdr.Next() {
		sizes = append(sizes, rdr.Record().NumRows())
	}
	s.NoError(rdr.Err())
	s.Equal([]int64{2, 2, 1}, sizes)
}

func (s *SqliteTests) TestQueryRows() {
	s.insertUsers(3)

	rows, err := s.conn.QueryRows(s.ctx, `SELECT id FROM users WHERE id >= ? ORDER BY id`, squill.Params(2))
	s.Require().NoError(err)
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		id, err := rows.Row().Int64(0)
		s.Require().NoError(err)
		ids = append(ids, id)
	}
	s.NoError(rows.Err())
	s.Equal([]int64{2, 3}, ids)
}

func (s *SqliteTests) TestNoRows() {
	_, err := s.conn.QueryRow(s.ctx, `SELECT id FROM users`, nil)
	s.ErrorIs(err, squill.ErrNoRows)
}

func (s *SqliteTests) TestParameterCount() {
	stmt, err := s.conn.Prepare(s.ctx, `SELECT ?, '?', ?`)
	s.Require().NoError(err)
	defer stmt.Close()
	s.Equal(2, stmt.ParameterCount())

	_, err = stmt.QueryRows(s.ctx, squill.Params(1))
	var serr squill.Error
	s.Require().ErrorAs(err, &serr)
	s.Equal(squill.StatusInvalidArgument, serr.Code)
	s.Equal("Invalid parameter count: expected 2, actual 1", serr.Msg)
}

func (s *SqliteTests) TestBoundParametersAreReused() {
	stmt, err := s.conn.Prepare(s.ctx, `SELECT ? + 1`)
	s.Require().NoError(err)
	defer stmt.Close()

	s.Require().NoError(stmt.Bind(squill.Params(41)))
	for i := 0; i < 2; i++ {
		rows, err := stmt.QueryRows(s.ctx, nil)
		s.Require().NoError(err)
		s.Require().True(rows.Next())
		n, err := rows.Row().Int64(0)
		s.NoError(err)
		s.EqualValues(42, n)
		s.NoError(rows.Close())
	}
}

func (s *SqliteTests) TestConstraintViolation() {
	s.insertUsers(1)
	_, err := s.conn.Execute(s.ctx, `INSERT INTO users (id) VALUES (1)`, nil)
	var serr squill.Error
	s.Require().ErrorAs(err, &serr)
	s.Equal(squill.StatusIntegrity, serr.Code)
	s.Contains(serr.Msg, "[sqlite]")
}

func (s *SqliteTests) TestInvalidStatement() {
	_, err := s.conn.QueryRows(s.ctx, `SELECT * FROM no_such_table`, nil)
	var serr squill.Error
	s.Require().ErrorAs(err, &serr)
	s.Equal(squill.StatusInvalidArgument, serr.Code)
}

func TestSqlite(t *testing.T) {
	suite.Run(t, new(SqliteTests))
}

func TestFileDatabase(t *testing.T) {
	ctx := context.Background()
	reg := squill.NewRegistry()
	sqlite.Register(reg)
	uri := "sqlite:" + filepath.Join(t.TempDir(), "test.db")

	conn, err := squill.Open(ctx, reg, uri, squill.Options{})
	require.NoError(t, err)
	_, err = conn.Execute(ctx, `CREATE TABLE t (v TEXT)`, nil)
	require.NoError(t, err)
	_, err = conn.Execute(ctx, `INSERT INTO t VALUES (?)`, squill.Params("persisted"))
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	conn, err = squill.Open(ctx, reg, uri, squill.Options{})
	require.NoError(t, err)
	defer conn.Close()
	row, err := conn.QueryRow(ctx, `SELECT v FROM t`, nil)
	require.NoError(t, err)
	defer row.Release()
	v, err := row.String("v")
	require.NoError(t, err)
	assert.Equal(t, "persisted", v)
}

func TestInMemoryDatabasesAreDistinct(t *testing.T) {
	ctx := context.Background()
	reg := squill.NewRegistry(sqlite.Factory)

	first, err := squill.Open(ctx, reg, sqlite.InMemoryURI, squill.Options{})
	require.NoError(t, err)
	defer first.Close()
	second, err := squill.Open(ctx, reg, sqlite.InMemoryURI, squill.Options{})
	require.NoError(t, err)
	defer second.Close()

	_, err = first.Execute(ctx, `CREATE TABLE t (v)`, nil)
	require.NoError(t, err)
	_, err = second.Execute(ctx, `SELECT * FROM t`, nil)
	assert.Error(t, err)
}

func TestInvalidURI(t *testing.T) {
	reg := squill.NewRegistry(sqlite.Factory)
	_, err := squill.Open(context.Background(), reg, "sqlite:", squill.Options{})
	var serr squill.Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, squill.StatusInvalidArgument, serr.Code)
}
