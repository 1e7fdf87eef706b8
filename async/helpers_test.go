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
	"sync"
	"sync/atomic"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	squill "github.com/squill-app/squill-drivers"
	"github.com/stretchr/testify/mock"
)

// gateDriver serves the "gate" scheme. Its readers block in Next until
// release is closed, so that a fetch can be abandoned while in flight.
type gateDriver struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
	closed  atomic.Bool
}

func newGateDriver() *gateDriver {
	return &gateDriver{entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gateDriver) Schemes() []string { return []string{"gate"} }

func (g *gateDriver) Open(context.Context, string, squill.Options) (squill.DriverConnection, error) {
	return &gateConnection{driver: g}, nil
}

type gateConnection struct {
	driver *gateDriver
}

func (c *gateConnection) DriverName() string { return "gate" }

func (c *gateConnection) Prepare(context.Context, string) (squill.DriverStatement, error) {
	return &gateStatement{driver: c.driver}, nil
}

func (c *gateConnection) Close() error {
	c.driver.closed.Store(true)
	return nil
}

type gateStatement struct {
	driver *gateDriver
}

var gateSchema = arrow.NewSchema([]arrow.Field{{Name: "v", Type: arrow.PrimitiveTypes.Int64}}, nil)

func (s *gateStatement) ParameterCount() int          { return 0 }
func (s *gateStatement) Bind(squill.Parameters) error { return nil }
func (s *gateStatement) Schema() *arrow.Schema        { return gateSchema }
func (s *gateStatement) Close() error                 { return nil }
func (s *gateStatement) Execute(context.Context, squill.Parameters) (int64, error) {
	return 0, nil
}

func (s *gateStatement) Query(context.Context, squill.Parameters) (squill.RecordReader, error) {
	return &gateReader{driver: s.driver}, nil
}

type gateReader struct {
	driver *gateDriver
}

func (r *gateReader) Schema() *arrow.Schema { return gateSchema }
func (r *gateReader) Record() arrow.Record  { return nil }
func (r *gateReader) Err() error            { return nil }
func (r *gateReader) Release()              {}

func (r *gateReader) Next() bool {
	r.driver.once.Do(func() { close(r.driver.entered) })
	<-r.driver.release
	return false
}

// mockedFactory, mockedConnection and mockedStatement are testify mocks
// of the backend capabilities.
type mockedFactory struct {
	conn *mockedConnection
}

func (f *mockedFactory) Schemes() []string { return []string{"mocked"} }

func (f *mockedFactory) Open(context.Context, string, squill.Options) (squill.DriverConnection, error) {
	return f.conn, nil
}

type mockedConnection struct {
	mock.Mock
}

func (c *mockedConnection) DriverName() string { return "mocked" }

func (c *mockedConnection) Prepare(ctx context.Context, sql string) (squill.DriverStatement, error) {
	args := c.Called(ctx, sql)
	stmt, _ := args.Get(0).(squill.DriverStatement)
	return stmt, args.Error(1)
}

func (c *mockedConnection) Close() error {
	return c.Called().Error(0)
}

type mockedStatement struct {
	mock.Mock
}

func (s *mockedStatement) ParameterCount() int { return 0 }

func (s *mockedStatement) Bind(params squill.Parameters) error {
	return s.Called(params).Error(0)
}

func (s *mockedStatement) Execute(ctx context.Context, params squill.Parameters) (int64, error) {
	args := s.Called(ctx, params)
	return args.Get(0).(int64), args.Error(1)
}

func (s *mockedStatement) Query(ctx context.Context, params squill.Parameters) (squill.RecordReader, error) {
	args := s.Called(ctx, params)
	rdr, _ := args.Get(0).(squill.RecordReader)
	return rdr, args.Error(1)
}

func (s *mockedStatement) Schema() *arrow.Schema { return nil }

func (s *mockedStatement) Close() error {
	return s.Called().Error(0)
}

func int64Reader(mem memory.Allocator, values ...int64) squill.RecordReader {
	bldr := array.NewInt64Builder(mem)
	defer bldr.Release()
	bldr.AppendValues(values, nil)
	arr := bldr.NewArray()
	defer arr.Release()

	rec := array.NewRecord(gateSchema, []arrow.Array{arr}, int64(len(values)))
	defer rec.Release()
	rdr, err := array.NewRecordReader(gateSchema, []arrow.Record{rec})
	if err != nil {
		panic(err)
	}
	return rdr
}
