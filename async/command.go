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

	"github.com/apache/arrow-go/v18/arrow"
	squill "github.com/squill-app/squill-drivers"
)

// Handle identifies a prepared statement within a connection. Handles
// start at 1 and are never reused by a connection.
type Handle uint64

// command is a message sent to the connection actor.
type command interface {
	name() string
	// context returns the context of the caller awaiting a response.
	context() context.Context
	// fail replies err to a command awaiting a response. It returns
	// false when the reply could not be delivered.
	fail(err error) bool
}

type response[T any] struct {
	value T
	err   error
}

// request is the response side of a command: the caller's context and
// the channel it waits on.
type request[T any] struct {
	ctx   context.Context
	reply chan response[T]
}

func newRequest[T any](ctx context.Context) request[T] {
	return request[T]{ctx: ctx, reply: make(chan response[T])}
}

func (r request[T]) context() context.Context { return r.ctx }

// respond returns false when the caller stopped waiting.
func (r request[T]) respond(v T, err error) bool {
	select {
	case r.reply <- response[T]{value: v, err: err}:
		return true
	case <-r.ctx.Done():
		return false
	}
}

func (r request[T]) fail(err error) bool {
	var zero T
	return r.respond(zero, err)
}

// noReply is embedded by fire-and-forget commands.
type noReply struct{}

func (noReply) context() context.Context { return context.Background() }
func (noReply) fail(error) bool          { return true }

type closeCmd struct {
	request[struct{}]
}

type prepareCmd struct {
	request[Handle]
	sql string
}

type dropStatementCmd struct {
	noReply
	handle Handle
}

type bindCmd struct {
	request[struct{}]
	handle Handle
	params squill.Parameters
}

type executeCmd struct {
	request[int64]
	sql    string
	params squill.Parameters
}

type executePreparedCmd struct {
	request[int64]
	handle Handle
	params squill.Parameters
}

// queryCmd replies with the result schema and leaves the actor in
// cursor mode.
type queryCmd struct {
	request[*arrow.Schema]
	handle Handle
	params squill.Parameters
}

// fetchCmd replies with the next batch, or nil once the cursor is
// exhausted.
type fetchCmd struct {
	request[arrow.Record]
}

type dropCursorCmd struct {
	noReply
}

func (*closeCmd) name() string           { return "Close" }
func (*prepareCmd) name() string         { return "PrepareStatement" }
func (*dropStatementCmd) name() string   { return "DropStatement" }
func (*bindCmd) name() string            { return "Bind" }
func (*executeCmd) name() string         { return "Execute" }
func (*executePreparedCmd) name() string { return "ExecutePrepared" }
func (*queryCmd) name() string           { return "Query" }
func (*fetchCmd) name() string           { return "FetchCursor" }
func (*dropCursorCmd) name() string      { return "DropCursor" }

// handleOf returns the statement a command applies to.
func handleOf(cmd command) (Handle, bool) {
	switch cmd := cmd.(type) {
	case *dropStatementCmd:
		return cmd.handle, true
	case *bindCmd:
		return cmd.handle, true
	case *executePreparedCmd:
		return cmd.handle, true
	case *queryCmd:
		return cmd.handle, true
	}
	return 0, false
}
