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

// Package batch builds Arrow record batches from rows of Go values.
package batch

import (
	"fmt"
	"math"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	squill "github.com/squill-app/squill-drivers"
)

// Builder accumulates rows into a record batch.
//
// A field declared with the arrow.Null type is typed by the first non
// null value appended to it; the nulls seen so far are kept. Once
// typed, a field keeps its type for the following batches.
type Builder struct {
	mem      memory.Allocator
	fields   []arrow.Field
	builders []array.Builder
	pending  []int

	rows     int
	bytes    int
	maxRows  int
	maxBytes int
}

// NewBuilder creates a builder for the given fields. maxRows and
// maxBytes bound a batch, see Full.
func NewBuilder(mem memory.Allocator, fields []arrow.Field, maxRows, maxBytes int) *Builder {
	b := &Builder{
		mem:      mem,
		fields:   append([]arrow.Field(nil), fields...),
		builders: make([]array.Builder, len(fields)),
		pending:  make([]int, len(fields)),
		maxRows:  maxRows,
		maxBytes: maxBytes,
	}
	for i, f := range b.fields {
		if f.Type.ID() != arrow.NULL {
			b.builders[i] = array.NewBuilder(mem, f.Type)
		}
	}
	return b
}

// Schema returns the schema of the next batch.
func (b *Builder) Schema() *arrow.Schema {
	return arrow.NewSchema(append([]arrow.Field(nil), b.fields...), nil)
}

// Len returns the number of rows appended since the last batch.
func (b *Builder) Len() int { return b.rows }

// Full reports whether the current batch reached its row or byte
// limit.
func (b *Builder) Full() bool {
	return (b.maxRows > 0 && b.rows >= b.maxRows) ||
		(b.maxBytes > 0 && b.bytes >= b.maxBytes)
}

// Append adds one row. values must hold one value per field.
func (b *Builder) Append(values []any) error {
	if len(values) != len(b.fields) {
		return squill.Error{
			Msg:  fmt.Sprintf("row has %d values, expected %d", len(values), len(b.fields)),
			Code: squill.StatusInternal,
		}
	}
	for i, v := range values {
		if err := b.appendValue(i, v); err != nil {
			return err
		}
	}
	b.rows++
	return nil
}

func (b *Builder) appendValue(i int, v any) error {
	if v == nil {
		if b.builders[i] == nil {
			b.pending[i]++
		} else {
			b.builders[i].AppendNull()
		}
		return nil
	}

	if b.builders[i] == nil {
		b.fields[i].Type = InferType(v)
		b.fields[i].Nullable = true
		b.builders[i] = array.NewBuilder(b.mem, b.fields[i].Type)
		b.builders[i].AppendNulls(b.pending[i])
		b.pending[i] = 0
	}

	n, err := appendTo(b.builders[i], v)
	if err != nil {
		return squill.Error{
			Msg:  fmt.Sprintf("Invalid type: column '%s': %s", b.fields[i].Name, err),
			Code: squill.StatusInvalidData,
		}
	}
	b.bytes += n
	return nil
}

// NewRecord returns the rows appended so far as a record and resets
// the builder for the next batch.
func (b *Builder) NewRecord() arrow.Record {
	cols := make([]arrow.Array, len(b.fields))
	for i, bldr := range b.builders {
		if bldr == nil {
			cols[i] = array.NewNull(b.pending[i])
			b.pending[i] = 0
			continue
		}
		cols[i] = bldr.NewArray()
	}
	defer func() {
		for _, c := range cols {
			c.Release()
		}
	}()

	rec := array.NewRecord(b.Schema(), cols, int64(b.rows))
	b.rows, b.bytes = 0, 0
	return rec
}

// Release frees the builders.
func (b *Builder) Release() {
	for i, bldr := range b.builders {
		if bldr != nil {
			bldr.Release()
			b.builders[i] = nil
		}
	}
}

// InferType returns the Arrow type used for a Go value.
func InferType(v any) arrow.DataType {
	switch v.(type) {
	case bool:
		return arrow.FixedWidthTypes.Boolean
	case int8:
		return arrow.PrimitiveTypes.Int8
	case int16:
		return arrow.PrimitiveTypes.Int16
	case int32:
		return arrow.PrimitiveTypes.Int32
	case int, int64:
		return arrow.PrimitiveTypes.Int64
	case uint8:
		return arrow.PrimitiveTypes.Uint8
	case uint16:
		return arrow.PrimitiveTypes.Uint16
	case uint32:
		return arrow.PrimitiveTypes.Uint32
	case uint, uint64:
		return arrow.PrimitiveTypes.Uint64
	case float32:
		return arrow.PrimitiveTypes.Float32
	case float64:
		return arrow.PrimitiveTypes.Float64
	case []byte:
		return arrow.BinaryTypes.Binary
	case time.Time:
		return &arrow.TimestampType{Unit: arrow.Microsecond}
	default:
		return arrow.BinaryTypes.String
	}
}

func appendTo(bldr array.Builder, v any) (int, error) {
	switch bldr := bldr.(type) {
	case *array.BooleanBuilder:
		switch v := v.(type) {
		case bool:
			bldr.Append(v)
			return 1, nil
		}
		if n, ok := asInt64(v); ok {
			bldr.Append(n != 0)
			return 1, nil
		}
	case *array.Int8Builder:
		if n, ok := asInt64(v); ok && n >= math.MinInt8 && n <= math.MaxInt8 {
			bldr.Append(int8(n))
			return 1, nil
		}
	case *array.Int16Builder:
		if n, ok := asInt64(v); ok && n >= math.MinInt16 && n <= math.MaxInt16 {
			bldr.Append(int16(n))
			return 2, nil
		}
	case *array.Int32Builder:
		if n, ok := asInt64(v); ok && n >= math.MinInt32 && n <= math.MaxInt32 {
			bldr.Append(int32(n))
			return 4, nil
		}
	case *array.Int64Builder:
		if n, ok := asInt64(v); ok {
			bldr.Append(n)
			return 8, nil
		}
	case *array.Uint8Builder:
		if n, ok := asInt64(v); ok && n >= 0 && n <= math.MaxUint8 {
			bldr.Append(uint8(n))
			return 1, nil
		}
	case *array.Uint16Builder:
		if n, ok := asInt64(v); ok && n >= 0 && n <= math.MaxUint16 {
			bldr.Append(uint16(n))
			return 2, nil
		}
	case *array.Uint32Builder:
		if n, ok := asInt64(v); ok && n >= 0 && n <= math.MaxUint32 {
			bldr.Append(uint32(n))
			return 4, nil
		}
	case *array.Uint64Builder:
		switch v := v.(type) {
		case uint:
			bldr.Append(uint64(v))
			return 8, nil
		case uint64:
			bldr.Append(v)
			return 8, nil
		}
		if n, ok := asInt64(v); ok && n >= 0 {
			bldr.Append(uint64(n))
			return 8, nil
		}
	case *array.Float32Builder:
		if f, ok := asFloat64(v); ok {
			bldr.Append(float32(f))
			return 4, nil
		}
	case *array.Float64Builder:
		if f, ok := asFloat64(v); ok {
			bldr.Append(f)
			return 8, nil
		}
	case *array.StringBuilder:
		s := asString(v)
		bldr.Append(s)
		return len(s) + 4, nil
	case *array.BinaryBuilder:
		switch v := v.(type) {
		case []byte:
			bldr.Append(v)
			return len(v) + 4, nil
		case string:
			bldr.AppendString(v)
			return len(v) + 4, nil
		}
	case *array.Date32Builder:
		if t, ok := v.(time.Time); ok {
			bldr.Append(arrow.Date32FromTime(t))
			return 4, nil
		}
	case *array.TimestampBuilder:
		if t, ok := v.(time.Time); ok {
			unit := bldr.Type().(*arrow.TimestampType).Unit
			ts, err := arrow.TimestampFromTime(t, unit)
			if err != nil {
				return 0, err
			}
			bldr.Append(ts)
			return 8, nil
		}
	default:
		return 0, fmt.Errorf("unsupported column type %s", bldr.Type())
	}
	return 0, fmt.Errorf("cannot store %T in a %s column", v, bldr.Type())
}

func asInt64(v any) (int64, bool) {
	switch v := v.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint:
		if uint64(v) <= math.MaxInt64 {
			return int64(v), true
		}
	case uint64:
		if v <= math.MaxInt64 {
			return int64(v), true
		}
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func asFloat64(v any) (float64, bool) {
	switch v := v.(type) {
	case float32:
		return float64(v), true
	case float64:
		return v, true
	}
	if n, ok := asInt64(v); ok {
		return float64(n), true
	}
	return 0, false
}

func asString(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case time.Time:
		return v.Format(time.RFC3339Nano)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}
