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

package sqldriver

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"reflect"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	squill "github.com/squill-app/squill-drivers"
)

type connector struct {
	drv Driver
	uri string
}

// Connect opens a squill connection to the URI of the connector.
//
// The provided context.Context is for dialing purposes only and is not
// stored. The returned connection is only used by one goroutine at a
// time.
func (c *connector) Connect(ctx context.Context) (driver.Conn, error) {
	cnxn, err := squill.Open(ctx, c.drv.Registry, c.uri, c.drv.Options)
	if err != nil {
		return nil, err
	}
	return &conn{Conn: cnxn}, nil
}

// Driver returns the underlying Driver of the connector,
// mainly to maintain compatibility with the Driver method on sql.DB
func (c *connector) Driver() driver.Driver { return c.drv }

// Driver exposes the backends of a squill registry to database/sql.
type Driver struct {
	Registry *squill.Registry
	Options  squill.Options
}

// Open returns a new connection to the database. The name is a squill
// connection URI, e.g. "sqlite::memory:".
//
// The sql package maintains a pool of idle connections; every call
// opens a new backend connection.
func (d Driver) Open(name string) (driver.Conn, error) {
	connector, err := d.OpenConnector(name)
	if err != nil {
		return nil, err
	}
	return connector.Connect(context.Background())
}

// OpenConnector expects the same format as driver.Open. The scheme of
// the URI must be registered.
func (d Driver) OpenConnector(name string) (driver.Connector, error) {
	if d.Registry == nil {
		return nil, squill.Error{
			Msg:  "no registry configured",
			Code: squill.StatusInvalidState,
		}
	}
	scheme, err := squill.ParseScheme(name)
	if err != nil {
		return nil, err
	}
	if _, err := d.Registry.Lookup(scheme); err != nil {
		return nil, err
	}
	return &connector{drv: d, uri: name}, nil
}

// conn is a connection to a database. It is not used concurrently by
// multiple goroutines.
type conn struct {
	Conn *squill.Connection
}

// Close closes the backend connection. Statements and rows of the
// connection have been closed by the sql package already.
func (c *conn) Close() error {
	return c.Conn.Close()
}

func (c *conn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	s, err := c.Conn.Prepare(ctx, query)
	if err != nil {
		return nil, err
	}
	rows, err := (&stmt{stmt: s}).query(ctx, args, s.Close)
	if err != nil {
		return nil, errors.Join(err, s.Close())
	}
	return rows, nil
}

func (c *conn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	params, err := parameters(args)
	if err != nil {
		return nil, err
	}
	affected, err := c.Conn.Execute(ctx, query, params)
	if err != nil {
		return nil, err
	}
	return driver.RowsAffected(affected), nil
}

// Begin always fails; run explicit BEGIN and COMMIT statements
// instead.
func (c *conn) Begin() (driver.Tx, error) {
	return nil, squill.Error{
		Msg:  "transactions are not supported, execute BEGIN instead",
		Code: squill.StatusNotImplemented,
	}
}

// Prepare returns a prepared statement, bound to this connection.
func (c *conn) Prepare(query string) (driver.Stmt, error) {
	return c.PrepareContext(context.Background(), query)
}

// PrepareContext returns a prepared statement, bound to this connection.
func (c *conn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	s, err := c.Conn.Prepare(ctx, query)
	if err != nil {
		return nil, err
	}
	return &stmt{stmt: s}, nil
}

type stmt struct {
	stmt *squill.Statement
}

func (s *stmt) Close() error {
	return s.stmt.Close()
}

func (s *stmt) NumInput() int {
	return s.stmt.ParameterCount()
}

func (s *stmt) Exec(args []driver.Value) (driver.Result, error) {
	return nil, driver.ErrSkip
}

func (s *stmt) Query(args []driver.Value) (driver.Rows, error) {
	return nil, driver.ErrSkip
}

// CheckNamedValue accepts the values the squill backends bind natively
// and converts the other ones with the default converter.
func (s *stmt) CheckNamedValue(val *driver.NamedValue) error {
	return checkNamedValue(val)
}

func (c *conn) CheckNamedValue(val *driver.NamedValue) error {
	return checkNamedValue(val)
}

func checkNamedValue(val *driver.NamedValue) error {
	if val.Name != "" {
		return squill.Error{
			Msg:  "named parameters are not supported: " + val.Name,
			Code: squill.StatusNotImplemented,
		}
	}
	switch val.Value.(type) {
	case nil, bool, int8, int16, int32, int64, uint8, uint16, uint32, uint64,
		float32, float64, string, []byte, time.Time:
		return nil
	}
	v, err := driver.DefaultParameterConverter.ConvertValue(val.Value)
	if err != nil {
		return squill.Error{
			Msg:  fmt.Sprintf("unsupported parameter %d: %s", val.Ordinal, err),
			Code: squill.StatusInvalidArgument,
		}
	}
	val.Value = v
	return nil
}

// parameters orders args by their 1-based ordinal.
func parameters(args []driver.NamedValue) (squill.Parameters, error) {
	params := make(squill.Parameters, len(args))
	for _, arg := range args {
		if arg.Ordinal < 1 || arg.Ordinal > len(args) {
			return nil, squill.Error{
				Msg:  fmt.Sprintf("invalid parameter ordinal %d", arg.Ordinal),
				Code: squill.StatusInvalidArgument,
			}
		}
		params[arg.Ordinal-1] = arg.Value
	}
	return params, nil
}

func (s *stmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	params, err := parameters(args)
	if err != nil {
		return nil, err
	}
	affected, err := s.stmt.Execute(ctx, params)
	if err != nil {
		return nil, err
	}
	return driver.RowsAffected(affected), nil
}

func (s *stmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	return s.query(ctx, args, nil)
}

// query runs the statement. onClose, if set, runs once the rows are
// closed.
func (s *stmt) query(ctx context.Context, args []driver.NamedValue, onClose func() error) (*rows, error) {
	params, err := parameters(args)
	if err != nil {
		return nil, err
	}
	rdr, err := s.stmt.Query(ctx, params)
	if err != nil {
		return nil, err
	}
	return &rows{Rows: squill.NewRows(rdr, onClose)}, nil
}

// rows exposes a squill row iterator to database/sql.
type rows struct {
	*squill.Rows
}

func (r *rows) Columns() []string {
	fields := r.Schema().Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	return names
}

func (r *rows) Next(dest []driver.Value) error {
	if !r.Rows.Next() {
		if err := r.Err(); err != nil {
			return err
		}
		return io.EOF
	}
	row := r.Row()
	for i := range dest {
		v, err := row.Get(i)
		if err != nil {
			return err
		}
		dest[i] = driverValue(v)
	}
	return nil
}

// driverValue widens the values of narrow Arrow types to the types
// database/sql converts from.
func driverValue(v any) driver.Value {
	switch v := v.(type) {
	case int8:
		return int64(v)
	case int16:
		return int64(v)
	case int32:
		return int64(v)
	case uint8:
		return int64(v)
	case uint16:
		return int64(v)
	case uint32:
		return int64(v)
	case float32:
		return float64(v)
	}
	return v
}

func (r *rows) ColumnTypeDatabaseTypeName(index int) string {
	return r.Schema().Field(index).Type.String()
}

func (r *rows) ColumnTypeNullable(index int) (nullable, ok bool) {
	return r.Schema().Field(index).Nullable, true
}

func (r *rows) ColumnTypeScanType(index int) reflect.Type {
	switch r.Schema().Field(index).Type.ID() {
	case arrow.BOOL:
		return reflect.TypeOf(false)
	case arrow.INT8, arrow.UINT8, arrow.INT16, arrow.UINT16,
		arrow.INT32, arrow.UINT32, arrow.INT64:
		return reflect.TypeOf(int64(0))
	case arrow.UINT64:
		return reflect.TypeOf(uint64(0))
	case arrow.FLOAT32, arrow.FLOAT64:
		return reflect.TypeOf(float64(0))
	case arrow.BINARY, arrow.LARGE_BINARY:
		return reflect.TypeOf([]byte{})
	case arrow.STRING, arrow.LARGE_STRING:
		return reflect.TypeOf("")
	case arrow.DATE32, arrow.DATE64, arrow.TIMESTAMP:
		return reflect.TypeOf(time.Time{})
	}
	return reflect.TypeOf(new(any)).Elem()
}
