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

package async_test

import (
	"context"
	"log/slog"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow/memory"
	squill "github.com/squill-app/squill-drivers"
	"github.com/squill-app/squill-drivers/async"
	"github.com/squill-app/squill-drivers/driver/mock"
	"github.com/stretchr/testify/assert"
	testifymock "github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestExecuteReusesCachedStatements(t *testing.T) {
	ctx := context.Background()
	insert, update, remove := new(mockedStatement), new(mockedStatement), new(mockedStatement)
	conn := new(mockedConnection)
	conn.On("Prepare", testifymock.Anything, "INSERT").Return(insert, nil).Once()
	conn.On("Prepare", testifymock.Anything, "UPDATE").Return(update, nil).Once()
	conn.On("Prepare", testifymock.Anything, "DELETE").Return(remove, nil).Once()
	conn.On("Close").Return(nil).Once()
	insert.On("Execute", testifymock.Anything, squill.Parameters{}).Return(int64(1), nil).Times(3)
	// the least recently used statement is closed on eviction
	insert.On("Close").Return(nil).Once()
	update.On("Execute", testifymock.Anything, squill.Parameters{}).Return(int64(2), nil).Once()
	update.On("Close").Return(nil).Once()
	remove.On("Execute", testifymock.Anything, squill.Parameters{}).Return(int64(3), nil).Once()
	remove.On("Close").Return(nil).Once()

	reg := squill.NewRegistry(&mockedFactory{conn: conn})
	c, err := async.Open(ctx, reg, "mocked://", squill.Options{StatementCacheSize: 2})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		n, err := c.Execute(ctx, "INSERT", nil)
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)
	}
	n, err := c.Execute(ctx, "UPDATE", nil)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	n, err = c.Execute(ctx, "DELETE", nil)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	require.NoError(t, c.Close(ctx))
	conn.AssertExpectations(t)
	insert.AssertExpectations(t)
	update.AssertExpectations(t)
	remove.AssertExpectations(t)
}

func TestExecuteWithoutCache(t *testing.T) {
	ctx := context.Background()
	stmt := new(mockedStatement)
	conn := new(mockedConnection)
	conn.On("Prepare", testifymock.Anything, "INSERT").Return(stmt, nil).Twice()
	conn.On("Close").Return(nil).Once()
	stmt.On("Execute", testifymock.Anything, squill.Params(1)).Return(int64(1), nil).Twice()
	stmt.On("Close").Return(nil).Twice()

	reg := squill.NewRegistry(&mockedFactory{conn: conn})
	c, err := async.Open(ctx, reg, "mocked://", squill.Options{StatementCacheSize: -1})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := c.Execute(ctx, "INSERT", squill.Params(1))
		require.NoError(t, err)
	}
	require.NoError(t, c.Close(ctx))
	conn.AssertExpectations(t)
	stmt.AssertExpectations(t)
}

func TestStatementCacheIsEnabledByDefault(t *testing.T) {
	ctx := context.Background()
	stmt := new(mockedStatement)
	conn := new(mockedConnection)
	conn.On("Prepare", testifymock.Anything, "INSERT").Return(stmt, nil).Once()
	conn.On("Close").Return(nil).Once()
	stmt.On("Execute", testifymock.Anything, squill.Parameters{}).Return(int64(1), nil).Times(3)
	stmt.On("Close").Return(nil).Once()

	reg := squill.NewRegistry(&mockedFactory{conn: conn})
	c, err := async.Open(ctx, reg, "mocked://", squill.Options{})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := c.Execute(ctx, "INSERT", nil)
		require.NoError(t, err)
	}
	require.NoError(t, c.Close(ctx))
	conn.AssertExpectations(t)
	stmt.AssertExpectations(t)
}

func TestStatementCacheSizeFromURI(t *testing.T) {
	ctx := context.Background()
	insert, update := new(mockedStatement), new(mockedStatement)
	conn := new(mockedConnection)
	conn.On("Prepare", testifymock.Anything, "INSERT").Return(insert, nil).Twice()
	conn.On("Prepare", testifymock.Anything, "UPDATE").Return(update, nil).Once()
	conn.On("Close").Return(nil).Once()
	insert.On("Execute", testifymock.Anything, squill.Parameters{}).Return(int64(1), nil).Twice()
	insert.On("Close").Return(nil).Twice()
	update.On("Execute", testifymock.Anything, squill.Parameters{}).Return(int64(1), nil).Once()
	update.On("Close").Return(nil).Once()

	reg := squill.NewRegistry(&mockedFactory{conn: conn})
	c, err := async.Open(ctx, reg, "mocked://?statement_cache_size=1", squill.Options{StatementCacheSize: 8})
	require.NoError(t, err)

	for _, sql := range []string{"INSERT", "UPDATE", "INSERT"} {
		_, err := c.Execute(ctx, sql, nil)
		require.NoError(t, err)
	}
	require.NoError(t, c.Close(ctx))
	conn.AssertExpectations(t)
	insert.AssertExpectations(t)
	update.AssertExpectations(t)
}

func TestUnclosedStatementIsDropped(t *testing.T) {
	ctx := context.Background()
	var dropped atomic.Bool
	stmt := new(mockedStatement)
	conn := new(mockedConnection)
	conn.On("Prepare", testifymock.Anything, "S").Return(stmt, nil).Once()
	conn.On("Close").Return(nil).Once()
	stmt.On("Close").Run(func(testifymock.Arguments) { dropped.Store(true) }).Return(nil).Once()

	reg := squill.NewRegistry(&mockedFactory{conn: conn})
	c, err := async.Open(ctx, reg, "mocked://", squill.Options{})
	require.NoError(t, err)

	func() {
		_, err := c.Prepare(ctx, "S")
		require.NoError(t, err)
	}()
	assert.Eventually(t, func() bool {
		runtime.GC()
		return dropped.Load()
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, c.Close(ctx))
	conn.AssertExpectations(t)
	stmt.AssertExpectations(t)
}

func TestUnclosedStreamReleasesCursor(t *testing.T) {
	ctx := context.Background()
	mem := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer mem.AssertSize(t, 0)

	var dropped atomic.Bool
	query, other := new(mockedStatement), new(mockedStatement)
	conn := new(mockedConnection)
	conn.On("Prepare", testifymock.Anything, "Q").Return(query, nil).Once()
	conn.On("Prepare", testifymock.Anything, "O").Return(other, nil).Once()
	conn.On("Close").Return(nil).Once()
	query.On("Query", testifymock.Anything, squill.Parameters(nil)).Return(int64Reader(mem, 1, 2, 3), nil).Once()
	query.On("Close").Run(func(testifymock.Arguments) { dropped.Store(true) }).Return(nil).Once()
	other.On("Close").Return(nil).Once()

	reg := squill.NewRegistry(&mockedFactory{conn: conn})
	c, err := async.Open(ctx, reg, "mocked://", squill.Options{})
	require.NoError(t, err)

	func() {
		stream, err := c.Query(ctx, "Q", nil)
		require.NoError(t, err)
		require.True(t, stream.Next(ctx))
	}()
	assert.Eventually(t, func() bool {
		runtime.GC()
		return dropped.Load()
	}, 5*time.Second, 10*time.Millisecond)

	// the cursor is gone: the connection accepts other work
	stmt, err := c.Prepare(ctx, "O")
	require.NoError(t, err)
	require.NoError(t, stmt.Close())

	require.NoError(t, c.Close(ctx))
	conn.AssertExpectations(t)
	query.AssertExpectations(t)
	other.AssertExpectations(t)
}

func TestTeardownClosesStatementsBeforeConnection(t *testing.T) {
	ctx := context.Background()
	var order []string
	first, second := new(mockedStatement), new(mockedStatement)
	conn := new(mockedConnection)
	conn.On("Prepare", testifymock.Anything, "A").Return(first, nil).Once()
	conn.On("Prepare", testifymock.Anything, "B").Return(second, nil).Once()
	conn.On("Close").Run(func(testifymock.Arguments) { order = append(order, "conn") }).Return(nil).Once()
	first.On("Close").Run(func(testifymock.Arguments) { order = append(order, "A") }).Return(nil).Once()
	second.On("Close").Run(func(testifymock.Arguments) { order = append(order, "B") }).Return(nil).Once()

	reg := squill.NewRegistry(&mockedFactory{conn: conn})
	c, err := async.Open(ctx, reg, "mocked://", squill.Options{})
	require.NoError(t, err)
	a, err := c.Prepare(ctx, "A")
	require.NoError(t, err)
	b, err := c.Prepare(ctx, "B")
	require.NoError(t, err)

	require.NoError(t, c.Close(ctx))
	assert.Equal(t, []string{"A", "B", "conn"}, order)
	runtime.KeepAlive(a)
	runtime.KeepAlive(b)
}

func TestStatementDropIsDeferredWhileCursorActive(t *testing.T) {
	ctx := context.Background()
	mem := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer mem.AssertSize(t, 0)

	query, other := new(mockedStatement), new(mockedStatement)
	conn := new(mockedConnection)
	conn.On("Prepare", testifymock.Anything, "Q").Return(query, nil).Once()
	conn.On("Prepare", testifymock.Anything, "O").Return(other, nil).Once()
	conn.On("Close").Return(nil).Once()
	query.On("Query", testifymock.Anything, squill.Parameters(nil)).Return(int64Reader(mem, 1, 2, 3), nil).Once()
	query.On("Close").Return(nil).Once()
	other.On("Close").Return(nil).Once()

	reg := squill.NewRegistry(&mockedFactory{conn: conn})
	c, err := async.Open(ctx, reg, "mocked://", squill.Options{})
	require.NoError(t, err)

	otherStmt, err := c.Prepare(ctx, "O")
	require.NoError(t, err)
	rows, err := c.QueryRows(ctx, "Q", nil)
	require.NoError(t, err)
	require.True(t, rows.Next(ctx))

	require.NoError(t, otherStmt.Close())
	other.AssertNotCalled(t, "Close")
	for rows.Next(ctx) {
	}
	require.NoError(t, rows.Err())
	require.NoError(t, rows.Close())

	require.NoError(t, c.Close(ctx))
	conn.AssertExpectations(t)
	query.AssertExpectations(t)
	other.AssertExpectations(t)
}

func TestCommandsAreTraced(t *testing.T) {
	ctx := context.Background()
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer provider.Shutdown(ctx)

	reg := squill.NewRegistry()
	mock.Register(reg)
	conn, err := async.Open(ctx, reg, "mock://", squill.Options{Tracer: provider.Tracer("test")})
	require.NoError(t, err)

	stmt, err := conn.Prepare(ctx, "INSERT ?")
	require.NoError(t, err)
	_, err = stmt.Execute(ctx, squill.Params(1))
	require.NoError(t, err)
	_, err = stmt.Execute(ctx, squill.Params(1, 2))
	require.Error(t, err)
	require.NoError(t, conn.Close(ctx))

	var names []string
	for _, span := range recorder.Ended() {
		names = append(names, span.Name())
	}
	assert.Equal(t, []string{
		"squill.async.PrepareStatement",
		"squill.async.ExecutePrepared",
		"squill.async.ExecutePrepared",
		"squill.async.Close",
	}, names)

	spans := recorder.Ended()
	attrs := attribute.NewSet(spans[1].Attributes()...)
	driver, ok := attrs.Value("db.system")
	require.True(t, ok)
	assert.Equal(t, mock.DriverName, driver.AsString())
	handle, ok := attrs.Value("squill.statement.handle")
	require.True(t, ok)
	assert.EqualValues(t, stmt.Handle(), handle.AsInt64())
	connID, ok := attrs.Value("squill.connection.id")
	require.True(t, ok)
	assert.Equal(t, conn.ID().String(), connID.AsString())

	assert.Equal(t, "Error", spans[2].Status().Code.String())
	assert.Len(t, spans[2].Events(), 1)
}

func TestProtocolViolationIsLogged(t *testing.T) {
	ctx := context.Background()
	var handler MockedHandler
	handler.On("Handle", testifymock.Anything, testifymock.Anything).Return(nil)

	reg := squill.NewRegistry()
	mock.Register(reg)
	conn, err := async.Open(ctx, reg, "mock://", squill.Options{Logger: slog.New(&handler)})
	require.NoError(t, err)

	rows, err := conn.QueryRows(ctx, "SELECT 3", nil)
	require.NoError(t, err)
	_, err = conn.Execute(ctx, "INSERT 1", nil)
	require.ErrorIs(t, err, squill.ErrProtocol)
	require.NoError(t, rows.Close())
	require.ErrorIs(t, conn.Close(ctx), squill.ErrConnectionClosed)

	handler.AssertCalled(t, "Handle", testifymock.Anything, testifymock.MatchedBy(func(r slog.Record) bool {
		return r.Level == slog.LevelError && r.Message == "protocol violation"
	}))
}

// MockedHandler is a mock.Mock that implements the slog.Handler interface.
type MockedHandler struct {
	testifymock.Mock
}

func (h *MockedHandler) Enabled(ctx context.Context, level slog.Level) bool { return true }
func (h *MockedHandler) WithAttrs(attrs []slog.Attr) slog.Handler           { return h }
func (h *MockedHandler) WithGroup(name string) slog.Handler                 { return h }
func (h *MockedHandler) Handle(ctx context.Context, r slog.Record) error {
	args := h.Called(ctx, r)
	return args.Error(0)
}
