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
	"fmt"
	"log/slog"
	"strconv"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultMaxBatchRows       = 10_000
	DefaultMaxBatchBytes      = 1_000_000
	DefaultStatementCacheSize = 16
)

// Options is the set of options shared by every backend. It is
// consumed once, when a connection is opened.
//
// Zero values select the defaults. A negative StatementCacheSize
// disables the statement cache of async connections.
type Options struct {
	// MaxBatchRows caps the number of rows in a single record batch.
	MaxBatchRows int
	// MaxBatchBytes is an approximate cap on the size of the data
	// buffered in a single record batch.
	MaxBatchBytes int
	// StatementCacheSize is the number of prepared statements kept by
	// an async connection for one-shot Execute calls.
	StatementCacheSize int

	Allocator memory.Allocator
	Logger    *slog.Logger
	Tracer    trace.Tracer
}

// DefaultOptions returns the options with every default applied.
func DefaultOptions() Options {
	return Options{}.WithDefaults()
}

// WithDefaults returns a copy of o where unset fields hold their
// default values. Logger and Tracer are left untouched.
func (o Options) WithDefaults() Options {
	if o.MaxBatchRows <= 0 {
		o.MaxBatchRows = DefaultMaxBatchRows
	}
	if o.MaxBatchBytes <= 0 {
		o.MaxBatchBytes = DefaultMaxBatchBytes
	}
	if o.StatementCacheSize == 0 {
		o.StatementCacheSize = DefaultStatementCacheSize
	}
	if o.Allocator == nil {
		o.Allocator = memory.DefaultAllocator
	}
	return o
}

// SetOption sets a single option from its string form.
func (o *Options) SetOption(key, val string) error {
	switch key {
	case OptionKeyMaxBatchRows:
		return parsePositive(key, val, &o.MaxBatchRows)
	case OptionKeyMaxBatchBytes:
		return parsePositive(key, val, &o.MaxBatchBytes)
	case OptionKeyStatementCacheSize:
		n, err := strconv.Atoi(val)
		if err != nil {
			return invalidOptionValue(key, val)
		}
		if n == 0 {
			n = -1
		}
		o.StatementCacheSize = n
		return nil
	}
	return Error{
		Msg:  fmt.Sprintf("Unknown option '%s'", key),
		Code: StatusNotImplemented,
	}
}

// SetOptions sets every option of the map, stopping at the first
// error.
func (o *Options) SetOptions(options map[string]string) error {
	for key, val := range options {
		if err := o.SetOption(key, val); err != nil {
			return err
		}
	}
	return nil
}

func parsePositive(key, val string, dst *int) error {
	n, err := strconv.Atoi(val)
	if err != nil || n <= 0 {
		return invalidOptionValue(key, val)
	}
	*dst = n
	return nil
}

func invalidOptionValue(key, val string) error {
	return Error{
		Msg:  fmt.Sprintf("Invalid value '%s' for option '%s'", val, key),
		Code: StatusInvalidArgument,
	}
}
