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

import (
	"context"
	"errors"

	"github.com/apache/arrow-go/v18/arrow"
)

// Connection is a blocking connection to a backend.
//
// A Connection must not be used concurrently. Statements prepared from
// it must be closed before the connection itself is closed.
type Connection struct {
	conn   DriverConnection
	closed bool
}

// Open opens a blocking connection using the driver registered for
// the scheme of uri.
func Open(ctx context.Context, registry *Registry, uri string, opts Options) (*Connection, error) {
	conn, err := registry.Open(ctx, uri, opts)
	if err != nil {
		return nil, err
	}
	return &Connection{conn: conn}, nil
}

// NewConnection wraps an already opened backend connection.
func NewConnection(conn DriverConnection) *Connection {
	return &Connection{conn: conn}
}

func (c *Connection) DriverName() string { return c.conn.DriverName() }

// Prepare creates a prepared statement.
func (c *Connection) Prepare(ctx context.Context, sql string) (*Statement, error) {
	if c.closed {
		return nil, ErrConnectionClosed
	}
	stmt, err := c.conn.Prepare(ctx, sql)
	if err != nil {
		return nil, err
	}
	return &Statement{stmt: stmt}, nil
}

// Execute prepares and runs a statement that does not return rows.
// A nil params is treated as an empty parameter list.
func (c *Connection) Execute(ctx context.Context, sql string, params Parameters) (n int64, err error) {
	stmt, err := c.Prepare(ctx, sql)
	if err != nil {
		return -1, err
	}
	defer func() {
		err = errors.Join(err, stmt.Close())
	}()
	if params == nil {
		params = Parameters{}
	}
	return stmt.Execute(ctx, params)
}

// QueryArrow prepares and runs a query. The statement is closed when
// the returned reader is released.
func (c *Connection) QueryArrow(ctx context.Context, sql string, params Parameters) (RecordReader, error) {
	stmt, err := c.Prepare(ctx, sql)
	if err != nil {
		return nil, err
	}
	rdr, err := stmt.Query(ctx, params)
	if err != nil {
		return nil, errors.Join(err, stmt.Close())
	}
	return &ownedReader{RecordReader: rdr, stmt: stmt}, nil
}

// QueryRows prepares and runs a query, returning its rows. The
// statement is closed by Rows.Close.
func (c *Connection) QueryRows(ctx context.Context, sql string, params Parameters) (*Rows, error) {
	stmt, err := c.Prepare(ctx, sql)
	if err != nil {
		return nil, err
	}
	rdr, err := stmt.Query(ctx, params)
	if err != nil {
		return nil, errors.Join(err, stmt.Close())
	}
	return NewRows(rdr, stmt.Close), nil
}

// QueryRow runs a query and returns its first row, or ErrNoRows. The
// caller must Release the row.
func (c *Connection) QueryRow(ctx context.Context, sql string, params Parameters) (*Row, error) {
	rows, err := c.QueryRows(ctx, sql, params)
	if err != nil {
		return nil, err
	}
	if !rows.Next() {
		err := rows.Err()
		if err == nil {
			err = ErrNoRows
		}
		return nil, errors.Join(err, rows.Close())
	}
	row := rows.Row()
	row.Retain()
	if err := rows.Close(); err != nil {
		row.Release()
		return nil, err
	}
	return row, nil
}

// Close closes the backend connection. Closing twice returns
// ErrConnectionClosed.
func (c *Connection) Close() error {
	if c.closed {
		return ErrConnectionClosed
	}
	c.closed = true
	return c.conn.Close()
}

// Statement is a blocking prepared statement.
type Statement struct {
	stmt DriverStatement
}

func (s *Statement) ParameterCount() int { return s.stmt.ParameterCount() }

func (s *Statement) Bind(params Parameters) error { return s.stmt.Bind(params) }

func (s *Statement) Execute(ctx context.Context, params Parameters) (int64, error) {
	return s.stmt.Execute(ctx, params)
}

// Query runs the statement. The returned reader must be released
// before the statement is used again.
func (s *Statement) Query(ctx context.Context, params Parameters) (RecordReader, error) {
	return s.stmt.Query(ctx, params)
}

// QueryRows runs the statement and returns its rows.
func (s *Statement) QueryRows(ctx context.Context, params Parameters) (*Rows, error) {
	rdr, err := s.stmt.Query(ctx, params)
	if err != nil {
		return nil, err
	}
	return NewRows(rdr, nil), nil
}

func (s *Statement) Schema() *arrow.Schema { return s.stmt.Schema() }

func (s *Statement) Close() error { return s.stmt.Close() }

type ownedReader struct {
	RecordReader
	stmt     *Statement
	released bool
}

func (r *ownedReader) Release() {
	if r.released {
		return
	}
	r.released = true
	r.RecordReader.Release()
	_ = r.stmt.Close()
}
