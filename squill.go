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

// Package squill defines a common connection/statement/row
// abstraction over pluggable database backends.
//
// Backends implement the small capability set described by
// [DriverFactory], [DriverConnection] and [DriverStatement]. Query
// results are always produced as Arrow record batches through a
// [RecordReader], and can be consumed either batch by batch or one
// [Row] at a time.
//
// The types in this package are blocking and are not safe for
// concurrent use. The async subpackage wraps a single backend
// connection in a dedicated goroutine so that it can be shared by
// many callers.
package squill

import (
	"context"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
)

//go:generate go run golang.org/x/tools/cmd/stringer -type Status -linecomment

// Error is the detailed error for an operation
type Error struct {
	// Msg is a string representing a human readable error message
	Msg string
	// Code is the status representing this error
	Code Status
	// Err is the underlying cause, if any.
	Err error
}

func (e Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e Error) Unwrap() error { return e.Err }

// Is reports whether target is an Error with the same code and message.
func (e Error) Is(target error) bool {
	t, ok := target.(Error)
	return ok && t.Code == e.Code && t.Msg == e.Msg
}

// Status represents an error code for operations that may fail
type Status uint8

const (
	// No Error
	StatusOK Status = iota // OK
	// An unknown error occurred.
	StatusUnknown // Unknown
	// The operation is not implemented or supported.
	StatusNotImplemented // Not Implemented
	// A requested resource was not found: a driver for a URI scheme,
	// a column, a prepared statement.
	StatusNotFound // Not Found
	// A requested resource already exists
	StatusAlreadyExists // Already Exists
	// The arguments are invalid, likely a programming error.
	//
	// For instance, a malformed URI or a parameter count that does not
	// match the statement placeholders.
	StatusInvalidArgument // Invalid Argument
	// The preconditions for the operation are not met, likely a
	// programming error.
	//
	// For instance, the connection was closed or a command was sent
	// while a cursor was still active.
	StatusInvalidState // Invalid State
	// Invalid data was processed (not a programming error)
	StatusInvalidData // Invalid Data
	// The database's integrity was affected.
	StatusIntegrity // Integrity Issue
	// An error internal to the driver or database occurred.
	StatusInternal // Internal
	// An I/O error occurred.
	StatusIO // I/O
	// The operation was cancelled, not due to a timeout.
	StatusCancelled // Cancelled
	// The operation was cancelled due to a timeout.
	StatusTimeout // Timeout
	// Authentication failed.
	StatusUnauthenticated // Unauthenticated
	// The client is not authorized to perform the given operation.
	StatusUnauthorized // Unauthorized
)

var (
	// ErrConnectionClosed is returned by every operation on a connection
	// that was closed or that became unusable.
	ErrConnectionClosed = Error{Msg: "connection closed or unusable", Code: StatusInvalidState}
	// ErrProtocol is wrapped by errors reporting a command that is not
	// accepted in the current connection state.
	ErrProtocol = Error{Msg: "protocol violation", Code: StatusInvalidState}
	// ErrNoRows is returned by QueryRow when the query yields no row.
	ErrNoRows = Error{Msg: "no rows in result set", Code: StatusNotFound}
)

// Canonical option keys
const (
	OptionKeyMaxBatchRows       = "squill.max_batch_rows"
	OptionKeyMaxBatchBytes      = "squill.max_batch_bytes"
	OptionKeyStatementCacheSize = "squill.statement_cache_size"
)

// RecordReader is a pull-based, finite, non-restartable producer of
// record batches. It is satisfied by [array.RecordReader].
//
// The record returned by Record is only valid until the next call to
// Next; callers must Retain it to keep it longer.
type RecordReader interface {
	Schema() *arrow.Schema
	Next() bool
	Record() arrow.Record
	Err() error
	Release()
}

// DriverFactory opens backend connections for a set of URI schemes.
type DriverFactory interface {
	// Schemes returns the URI schemes handled by this factory, e.g.
	// "sqlite" or "postgres".
	Schemes() []string
	// Open creates a new backend connection. The options have been
	// resolved with their defaults.
	Open(ctx context.Context, uri string, opts Options) (DriverConnection, error)
}

// DriverConnection is a blocking backend connection. Implementations
// do not need to be safe for concurrent use.
type DriverConnection interface {
	// DriverName returns a short name for the backend, e.g. "sqlite".
	DriverName() string
	// Prepare creates a prepared statement for the given SQL.
	Prepare(ctx context.Context, sql string) (DriverStatement, error)
	// Close releases the connection. It is called exactly once, after
	// every statement prepared from the connection has been closed.
	Close() error
}

// DriverStatement is a blocking prepared statement.
type DriverStatement interface {
	// ParameterCount returns the number of placeholders in the statement.
	ParameterCount() int
	// Bind sets the parameters used by the next Execute or Query
	// called with nil parameters.
	Bind(params Parameters) error
	// Execute runs a statement that does not return rows and returns
	// the number of affected rows. Non-nil params are bound first.
	Execute(ctx context.Context, params Parameters) (int64, error)
	// Query runs a statement returning rows. Non-nil params are bound
	// first. The statement must not be used again until the reader
	// has been released.
	Query(ctx context.Context, params Parameters) (RecordReader, error)
	// Schema returns the schema of the last query result, or nil when
	// the statement has not been queried yet.
	Schema() *arrow.Schema
	Close() error
}
