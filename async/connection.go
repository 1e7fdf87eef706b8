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

// Package async shares a single blocking backend connection between
// many goroutines.
//
// Open starts a goroutine, the connection actor, that owns the backend
// connection, its prepared statements and at most one active cursor.
// Connection, Statement and the stream types are thin proxies: every
// operation is sent to the actor as a command over a channel with a
// single slot, and the caller waits for the matching response. A slow
// query therefore only delays other operations on the same connection.
//
// Only one cursor may be active per connection. Until a stream is
// exhausted or closed, any command other than fetching from it or
// closing it is a protocol violation: the offending call fails with an
// error wrapping squill.ErrProtocol and the connection becomes
// unusable.
//
// A caller whose context is cancelled while waiting for a response
// also makes the connection unusable, as the actor cannot tell whether
// the half-finished operation is safe to resume. Once unusable, every
// operation fails with squill.ErrConnectionClosed.
package async

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync/atomic"

	"github.com/google/uuid"
	squill "github.com/squill-app/squill-drivers"
	"github.com/squill-app/squill-drivers/internal/driverbase"
)

var errorHelper = driverbase.ErrorHelper{DriverName: "async"}

// Connection is a handle on a connection actor. It is safe for
// concurrent use.
type Connection struct {
	id       uuid.UUID
	driver   string
	commands chan command
	// done is closed when the actor has exited.
	done   chan struct{}
	closed atomic.Bool
	logger *slog.Logger
}

type openResult struct {
	driver string
	err    error
}

// Open opens a backend connection through the registry and starts the
// actor owning it. When the backend cannot be opened no goroutine is
// left running.
func Open(ctx context.Context, registry *squill.Registry, uri string, opts squill.Options) (*Connection, error) {
	// the actor and the backend share the options resolved from the URI
	uri, opts, err := squill.ResolveOptions(uri, opts)
	if err != nil {
		return nil, err
	}

	var tracing *driverbase.Tracing
	if opts.Tracer != nil {
		tracing = &driverbase.Tracing{Tracer: opts.Tracer}
	} else if tracing, err = driverbase.InitTracing(ctx, "async"); err != nil {
		return nil, err
	}

	c := &Connection{
		id:       uuid.New(),
		commands: make(chan command, 1),
		done:     make(chan struct{}),
		logger:   driverbase.LoggerOrNil(opts.Logger),
	}

	ready := make(chan openResult)
	go func() {
		conn, err := registry.Open(ctx, uri, opts)
		if err != nil {
			_ = tracing.Shutdown(context.Background())
			close(c.done)
			select {
			case ready <- openResult{err: err}:
			case <-ctx.Done():
			}
			return
		}

		a := newActor(c.id, conn, c.commands, opts, tracing)
		select {
		case ready <- openResult{driver: a.driver}:
			a.run(c.done)
		case <-ctx.Done():
			// nobody is waiting for this connection
			_ = a.shutdown()
			close(c.done)
		}
	}()

	select {
	case res := <-ready:
		if res.err != nil {
			return nil, res.err
		}
		c.driver = res.driver
		c.logger.Debug("connection opened", "conn", c.id.String(), "driver", c.driver)
		return c, nil
	case <-ctx.Done():
		return nil, errorHelper.ContextError(ctx.Err())
	}
}

// ID returns the identifier of the connection, as found in its logs
// and traces.
func (c *Connection) ID() uuid.UUID { return c.id }

// DriverName returns the name of the backend.
func (c *Connection) DriverName() string { return c.driver }

// send waits for the command slot. It fails when the actor has exited
// or ctx is done.
func (c *Connection) send(ctx context.Context, cmd command) error {
	if c.closed.Load() {
		return squill.ErrConnectionClosed
	}
	select {
	case <-c.done:
		return squill.ErrConnectionClosed
	default:
	}

	select {
	case c.commands <- cmd:
		return nil
	case <-c.done:
		return squill.ErrConnectionClosed
	case <-ctx.Done():
		return errorHelper.ContextError(ctx.Err())
	}
}

// post sends a command no one waits a response for. It is dropped when
// the actor has exited.
func (c *Connection) post(cmd command) {
	select {
	case c.commands <- cmd:
	case <-c.done:
	}
}

// call sends cmd and waits for the response delivered on req.
func call[T any](ctx context.Context, c *Connection, cmd command, req request[T]) (T, error) {
	var zero T
	if err := c.send(ctx, cmd); err != nil {
		return zero, err
	}
	select {
	case resp := <-req.reply:
		return resp.value, resp.err
	case <-c.done:
		return zero, squill.ErrConnectionClosed
	case <-ctx.Done():
		return zero, errorHelper.ContextError(ctx.Err())
	}
}

// Prepare creates a prepared statement.
func (c *Connection) Prepare(ctx context.Context, sql string) (*Statement, error) {
	req := newRequest[Handle](ctx)
	h, err := call(ctx, c, &prepareCmd{request: req, sql: sql}, req)
	if err != nil {
		return nil, err
	}
	return newStatement(c, h), nil
}

// Execute runs a statement that does not return rows and returns the
// number of affected rows. A nil params is an empty parameter list.
//
// The prepared statement is kept in a per-connection cache of
// squill.Options.StatementCacheSize entries, keyed by sql.
func (c *Connection) Execute(ctx context.Context, sql string, params squill.Parameters) (int64, error) {
	req := newRequest[int64](ctx)
	n, err := call(ctx, c, &executeCmd{request: req, sql: sql, params: params}, req)
	if err != nil {
		return -1, err
	}
	return n, nil
}

// Query prepares and runs a query. The statement is dropped when the
// stream is closed.
func (c *Connection) Query(ctx context.Context, sql string, params squill.Parameters) (*RecordBatchStream, error) {
	stmt, err := c.Prepare(ctx, sql)
	if err != nil {
		return nil, err
	}
	stream, err := stmt.Query(ctx, params)
	if err != nil {
		_ = stmt.Close()
		return nil, err
	}
	// the stream closes the statement
	stream.ownStmt = true
	runtime.SetFinalizer(stmt, nil)
	return stream, nil
}

// QueryRows prepares and runs a query, returning its rows.
func (c *Connection) QueryRows(ctx context.Context, sql string, params squill.Parameters) (*RowStream, error) {
	stream, err := c.Query(ctx, sql, params)
	if err != nil {
		return nil, err
	}
	return NewRowStream(stream), nil
}

// QueryRow runs a query and returns its first row, or an error
// matching squill.ErrNoRows. The caller must Release the row.
func (c *Connection) QueryRow(ctx context.Context, sql string, params squill.Parameters) (*squill.Row, error) {
	rows, err := c.QueryRows(ctx, sql, params)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next(ctx) {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, squill.ErrNoRows
	}
	row := rows.Row()
	row.Retain()
	return row, nil
}

// Close tears down every statement and closes the backend connection.
// The connection cannot be used afterwards; closing it again returns
// squill.ErrConnectionClosed. When ctx is done first, Close returns its
// error without waiting but the teardown still happens.
func (c *Connection) Close(ctx context.Context) error {
	if !c.closed.CompareAndSwap(false, true) {
		return squill.ErrConnectionClosed
	}

	req := newRequest[struct{}](ctx)
	cmd := &closeCmd{request: req}
	var err error
	select {
	case <-c.done:
		return squill.ErrConnectionClosed
	case c.commands <- cmd:
	case <-ctx.Done():
		// The handle is consumed already: the actor must still be
		// reached. Its response is dropped since ctx is done.
		go c.post(cmd)
		return errorHelper.ContextError(ctx.Err())
	}

	select {
	case resp := <-req.reply:
		err = resp.err
	case <-c.done:
		return squill.ErrConnectionClosed
	case <-ctx.Done():
		return errorHelper.ContextError(ctx.Err())
	}

	select {
	case <-c.done:
	case <-ctx.Done():
	}
	if err != nil {
		c.logger.Warn("connection closed with errors", "conn", c.id.String(), "error", err)
	}
	return err
}

// IsUnusable reports whether err means the connection can no longer
// be used.
func IsUnusable(err error) bool {
	return errors.Is(err, squill.ErrConnectionClosed) || errors.Is(err, squill.ErrProtocol)
}
