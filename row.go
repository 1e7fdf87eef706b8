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
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
)

// Row is a view over one row of a record batch.
//
// A Row holds a reference on its batch; many rows may share the same
// batch. Release must be called once the row is no longer needed.
//
// Columns are addressed either by their zero-based index (int) or by
// their field name (string).
type Row struct {
	rec   arrow.Record
	index int
}

// NewRow returns a view over row index of rec. The record is retained.
func NewRow(rec arrow.Record, index int) *Row {
	rec.Retain()
	return &Row{rec: rec, index: index}
}

func (r *Row) Retain() { r.rec.Retain() }

func (r *Row) Release() { r.rec.Release() }

func (r *Row) Schema() *arrow.Schema { return r.rec.Schema() }

func (r *Row) NumColumns() int { return int(r.rec.NumCols()) }

// Record returns the batch this row belongs to and the row offset
// within it. The record is not retained.
func (r *Row) Record() (arrow.Record, int) { return r.rec, r.index }

// ColumnIndex resolves a column given by index or by name.
func (r *Row) ColumnIndex(col any) (int, error) {
	switch c := col.(type) {
	case int:
		if c < 0 || c >= int(r.rec.NumCols()) {
			return -1, Error{
				Msg:  fmt.Sprintf("Index out of bounds: %d", c),
				Code: StatusInvalidArgument,
			}
		}
		return c, nil
	case string:
		indices := r.rec.Schema().FieldIndices(c)
		if len(indices) == 0 {
			return -1, Error{
				Msg:  fmt.Sprintf("Column not found: %s", c),
				Code: StatusNotFound,
			}
		}
		return indices[0], nil
	default:
		return -1, Error{
			Msg:  fmt.Sprintf("Invalid column reference of type %T", col),
			Code: StatusInvalidArgument,
		}
	}
}

func (r *Row) column(col any) (arrow.Array, error) {
	idx, err := r.ColumnIndex(col)
	if err != nil {
		return nil, err
	}
	return r.rec.Column(idx), nil
}

// IsNull reports whether the value of the column is null.
func (r *Row) IsNull(col any) (bool, error) {
	arr, err := r.column(col)
	if err != nil {
		return false, err
	}
	return isNull(arr, r.index), nil
}

// isNull also covers arrays of the Null type, which carry no validity
// bitmap.
func isNull(arr arrow.Array, i int) bool {
	return arr.DataType().ID() == arrow.NULL || arr.IsNull(i)
}

// Get returns the value of the column as a Go value, or nil for a
// null value.
func (r *Row) Get(col any) (any, error) {
	arr, err := r.column(col)
	if err != nil {
		return nil, err
	}
	if isNull(arr, r.index) {
		return nil, nil
	}
	i := r.index
	switch a := arr.(type) {
	case *array.Boolean:
		return a.Value(i), nil
	case *array.Int8:
		return a.Value(i), nil
	case *array.Int16:
		return a.Value(i), nil
	case *array.Int32:
		return a.Value(i), nil
	case *array.Int64:
		return a.Value(i), nil
	case *array.Uint8:
		return a.Value(i), nil
	case *array.Uint16:
		return a.Value(i), nil
	case *array.Uint32:
		return a.Value(i), nil
	case *array.Uint64:
		return a.Value(i), nil
	case *array.Float32:
		return a.Value(i), nil
	case *array.Float64:
		return a.Value(i), nil
	case *array.String:
		return a.Value(i), nil
	case *array.LargeString:
		return a.Value(i), nil
	case *array.Binary:
		return a.Value(i), nil
	case *array.LargeBinary:
		return a.Value(i), nil
	case *array.Date32:
		return a.Value(i).ToTime(), nil
	case *array.Date64:
		return a.Value(i).ToTime(), nil
	case *array.Timestamp:
		unit := a.DataType().(*arrow.TimestampType).Unit
		return a.Value(i).ToTime(unit), nil
	default:
		return arr.GetOneForMarshal(i), nil
	}
}

func typeError(field arrow.Field, target string) error {
	return Error{
		Msg:  fmt.Sprintf("Invalid type: column '%s' of type %s cannot be read as %s", field.Name, field.Type, target),
		Code: StatusInvalidData,
	}
}

func nullError(field arrow.Field) error {
	return Error{
		Msg:  fmt.Sprintf("Invalid type: column '%s' is null", field.Name),
		Code: StatusInvalidData,
	}
}

// value returns the non-null value of a column along with its field.
func (r *Row) value(col any) (any, arrow.Field, error) {
	idx, err := r.ColumnIndex(col)
	if err != nil {
		return nil, arrow.Field{}, err
	}
	field := r.rec.Schema().Field(idx)
	v, err := r.Get(idx)
	if err != nil {
		return nil, field, err
	}
	if v == nil {
		return nil, field, nullError(field)
	}
	return v, field, nil
}

// Int64 returns the value of an integer column.
func (r *Row) Int64(col any) (int64, error) {
	v, field, err := r.value(col)
	if err != nil {
		return 0, err
	}
	switch v := v.(type) {
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	}
	return 0, typeError(field, "int64")
}

// Float64 returns the value of a floating point or integer column.
func (r *Row) Float64(col any) (float64, error) {
	v, field, err := r.value(col)
	if err != nil {
		return 0, err
	}
	switch v := v.(type) {
	case float32:
		return float64(v), nil
	case float64:
		return v, nil
	}
	if n, err := r.Int64(col); err == nil {
		return float64(n), nil
	}
	return 0, typeError(field, "float64")
}

// String returns the value of a string column.
func (r *Row) String(col any) (string, error) {
	v, field, err := r.value(col)
	if err != nil {
		return "", err
	}
	if s, ok := v.(string); ok {
		return s, nil
	}
	return "", typeError(field, "string")
}

// Bool returns the value of a boolean column.
func (r *Row) Bool(col any) (bool, error) {
	v, field, err := r.value(col)
	if err != nil {
		return false, err
	}
	if b, ok := v.(bool); ok {
		return b, nil
	}
	return false, typeError(field, "bool")
}

// Bytes returns the value of a binary or string column.
func (r *Row) Bytes(col any) ([]byte, error) {
	v, field, err := r.value(col)
	if err != nil {
		return nil, err
	}
	switch v := v.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	}
	return nil, typeError(field, "[]byte")
}

// Time returns the value of a date or timestamp column.
func (r *Row) Time(col any) (time.Time, error) {
	v, field, err := r.value(col)
	if err != nil {
		return time.Time{}, err
	}
	if t, ok := v.(time.Time); ok {
		return t, nil
	}
	return time.Time{}, typeError(field, "time.Time")
}

// Values returns the values of every column of the row.
func (r *Row) Values() ([]any, error) {
	values := make([]any, r.rec.NumCols())
	for i := range values {
		v, err := r.Get(i)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}
