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

package async

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bluele/gcache"
	"github.com/google/uuid"
	squill "github.com/squill-app/squill-drivers"
	"github.com/squill-app/squill-drivers/internal/driverbase"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/exp/slices"
)

// actor owns a backend connection. All of its fields are only touched
// by the goroutine running run.
//
// The actor is idle while run reads commands, and cursor-active while
// drain reads them. Only FetchCursor and DropCursor are accepted in
// cursor mode.
type actor struct {
	id     uuid.UUID
	driver string
	conn   squill.DriverConnection

	statements map[Handle]squill.DriverStatement
	nextHandle Handle
	// cache maps the SQL of one-shot Execute calls to the handle of
	// their prepared statement.
	cache gcache.Cache

	commands <-chan command
	// ctx is passed to backend calls and cancelled when the actor exits.
	ctx    context.Context
	cancel context.CancelFunc

	logger    *slog.Logger
	tracing   *driverbase.Tracing
	errHelper driverbase.ErrorHelper

	closed bool
}

func newActor(id uuid.UUID, conn squill.DriverConnection, commands <-chan command,
	opts squill.Options, tracing *driverbase.Tracing) *actor {
	ctx, cancel := context.WithCancel(context.Background())
	a := &actor{
		id:         id,
		driver:     conn.DriverName(),
		conn:       conn,
		statements: make(map[Handle]squill.DriverStatement),
		nextHandle: 1,
		commands:   commands,
		ctx:        ctx,
		cancel:     cancel,
		tracing:    tracing,
		errHelper:  errorHelper,
	}
	a.logger = driverbase.LoggerOrNil(opts.Logger).With(
		slog.String("conn", id.String()),
		slog.String("driver", a.driver))

	if opts.StatementCacheSize > 0 {
		a.cache = gcache.New(opts.StatementCacheSize).LRU().
			EvictedFunc(func(_, value interface{}) {
				a.dropStatement(value.(Handle))
			}).Build()
	}
	return a
}

// run processes commands until Close, a protocol violation or a reply
// that cannot be delivered. done is closed once the backend connection
// has been closed.
func (a *actor) run(done chan<- struct{}) {
	defer close(done)
	defer func() {
		if err := a.shutdown(); err != nil {
			a.logger.Warn("connection teardown failed", "error", err)
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("connection actor panicked", "panic", fmt.Sprint(r))
		}
	}()

	for cmd := range a.commands {
		keep, rdr := a.handle(cmd)
		if !keep {
			return
		}
		if rdr != nil && !a.drain(rdr) {
			return
		}
	}
}

func (a *actor) begin(cmd command) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("db.system", a.driver),
		attribute.String("squill.connection.id", a.id.String()),
	}
	if h, ok := handleOf(cmd); ok {
		attrs = append(attrs, attribute.Int64("squill.statement.handle", int64(h)))
	}
	_, span := a.tracing.Tracer.Start(cmd.context(), "squill.async."+cmd.name(),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...))
	a.logger.Debug("command", "command", cmd.name())
	return trace.ContextWithSpan(a.ctx, span), span
}

func end(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// handle processes a command in idle mode. It returns false when the
// actor must stop, and the reader of a successful query.
func (a *actor) handle(cmd command) (keep bool, rdr squill.RecordReader) {
	ctx, span := a.begin(cmd)
	var err error
	defer func() { end(span, err) }()

	switch cmd := cmd.(type) {
	case *closeCmd:
		err = a.shutdown()
		cmd.respond(struct{}{}, err)
		return false, nil

	case *prepareCmd:
		var stmt squill.DriverStatement
		if stmt, err = a.conn.Prepare(ctx, cmd.sql); err != nil {
			return cmd.fail(err), nil
		}
		h := a.register(stmt)
		span.SetAttributes(attribute.Int64("squill.statement.handle", int64(h)))
		return cmd.respond(h, nil), nil

	case *dropStatementCmd:
		a.dropStatement(cmd.handle)
		return true, nil

	case *bindCmd:
		var stmt squill.DriverStatement
		if stmt, err = a.lookup(cmd.handle); err == nil {
			err = stmt.Bind(cmd.params)
		}
		return cmd.respond(struct{}{}, err), nil

	case *executeCmd:
		var n int64
		n, err = a.execute(ctx, cmd.sql, cmd.params)
		return cmd.respond(n, err), nil

	case *executePreparedCmd:
		var (
			stmt squill.DriverStatement
			n    int64 = -1
		)
		if stmt, err = a.lookup(cmd.handle); err == nil {
			n, err = stmt.Execute(ctx, cmd.params)
		}
		return cmd.respond(n, err), nil

	case *queryCmd:
		var stmt squill.DriverStatement
		if stmt, err = a.lookup(cmd.handle); err != nil {
			return cmd.fail(err), nil
		}
		if rdr, err = stmt.Query(ctx, cmd.params); err != nil {
			return cmd.fail(err), nil
		}
		if !cmd.respond(rdr.Schema(), nil) {
			rdr.Release()
			return false, nil
		}
		return true, rdr

	case *fetchCmd:
		err = a.violation(cmd, "no cursor is active")
		return false, nil

	case *dropCursorCmd:
		// stale drop of a cursor that was already exhausted
		return true, nil
	}

	err = a.violation(cmd, "the connection is idle")
	return false, nil
}

// drain runs the cursor mode until the cursor is exhausted or dropped.
// Statements dropped meanwhile are closed once the cursor is released.
func (a *actor) drain(rdr squill.RecordReader) bool {
	release := sync.OnceFunc(rdr.Release)
	var dropped []Handle
	defer func() {
		release()
		for _, h := range dropped {
			a.dropStatement(h)
		}
	}()

	for cmd := range a.commands {
		switch cmd := cmd.(type) {
		case *fetchCmd:
			more, keep := a.fetch(rdr, cmd)
			if !keep {
				return false
			}
			if !more {
				return true
			}
		case *dropCursorCmd:
			a.logger.Debug("command", "command", cmd.name())
			return true
		case *dropStatementCmd:
			a.logger.Debug("deferring statement drop", "handle", cmd.handle)
			dropped = append(dropped, cmd.handle)
		case *closeCmd:
			release()
			keep, _ := a.handle(cmd)
			return keep
		default:
			_, span := a.begin(cmd)
			end(span, a.violation(cmd, "a cursor is active"))
			return false
		}
	}
	return false
}

// fetch replies with the next batch of rdr. more is false once the
// cursor is exhausted; keep is false when the reply was not delivered.
func (a *actor) fetch(rdr squill.RecordReader, cmd *fetchCmd) (more, keep bool) {
	_, span := a.begin(cmd)
	if rdr.Next() {
		rec := rdr.Record()
		rec.Retain()
		span.SetAttributes(attribute.Int64("squill.batch.rows", rec.NumRows()))
		end(span, nil)
		if !cmd.respond(rec, nil) {
			rec.Release()
			return true, false
		}
		return true, true
	}

	if err := rdr.Err(); err != nil {
		// the cursor stays active until the caller drops it
		end(span, err)
		return true, cmd.fail(err)
	}
	end(span, nil)
	return false, cmd.respond(nil, nil)
}

func (a *actor) violation(cmd command, state string) error {
	err := squill.Error{
		Msg:  fmt.Sprintf("%s: %s received while %s", squill.ErrProtocol.Msg, cmd.name(), state),
		Code: squill.StatusInvalidState,
		Err:  squill.ErrProtocol,
	}
	a.logger.Error("protocol violation", "command", cmd.name(), "state", state)
	cmd.fail(err)
	return err
}

func (a *actor) register(stmt squill.DriverStatement) Handle {
	h := a.nextHandle
	a.nextHandle++
	a.statements[h] = stmt
	return h
}

func (a *actor) lookup(h Handle) (squill.DriverStatement, error) {
	stmt, ok := a.statements[h]
	if !ok {
		return nil, a.errHelper.Errorf(squill.StatusNotFound, "statement %d not found", h)
	}
	return stmt, nil
}

func (a *actor) dropStatement(h Handle) {
	stmt, ok := a.statements[h]
	if !ok {
		a.logger.Debug("statement already dropped", "handle", h)
		return
	}
	delete(a.statements, h)
	if err := stmt.Close(); err != nil {
		a.logger.Warn("failed to close statement", "handle", h, "error", err)
	}
}

// execute runs a one-shot statement, reusing the prepared statement of
// a previous call with the same SQL when the cache is enabled.
func (a *actor) execute(ctx context.Context, sql string, params squill.Parameters) (int64, error) {
	if params == nil {
		params = squill.Parameters{}
	}

	if a.cache == nil {
		stmt, err := a.conn.Prepare(ctx, sql)
		if err != nil {
			return -1, err
		}
		n, err := stmt.Execute(ctx, params)
		return n, errors.Join(err, stmt.Close())
	}

	if v, err := a.cache.Get(sql); err == nil {
		if stmt, ok := a.statements[v.(Handle)]; ok {
			return stmt.Execute(ctx, params)
		}
	}

	stmt, err := a.conn.Prepare(ctx, sql)
	if err != nil {
		return -1, err
	}
	h := a.register(stmt)
	if err := a.cache.Set(sql, h); err != nil {
		a.logger.Warn("failed to cache statement", "error", err)
		defer a.dropStatement(h)
	}
	return stmt.Execute(ctx, params)
}

// shutdown closes every statement, in handle order, then the backend
// connection. Only the first call has an effect.
func (a *actor) shutdown() error {
	if a.closed {
		return nil
	}
	a.closed = true

	if a.cache != nil {
		a.cache.Purge()
	}
	handles := make([]Handle, 0, len(a.statements))
	for h := range a.statements {
		handles = append(handles, h)
	}
	slices.Sort(handles)

	var errs []error
	for _, h := range handles {
		if err := a.statements[h].Close(); err != nil {
			errs = append(errs, err)
		}
		delete(a.statements, h)
	}
	errs = append(errs, a.conn.Close())
	a.cancel()
	errs = append(errs, a.tracing.Shutdown(context.Background()))
	a.logger.Debug("connection closed")
	return errors.Join(errs...)
}
