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

package postgres

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"net/netip"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

var timestampType = &arrow.TimestampType{Unit: arrow.Microsecond}

var timestamptzType = &arrow.TimestampType{Unit: arrow.Microsecond, TimeZone: "UTC"}

// arrowType maps the type of a result column to an Arrow type. Types
// without a native Arrow counterpart are read as their text form.
func arrowType(oid uint32) arrow.DataType {
	switch oid {
	case pgtype.BoolOID:
		return arrow.FixedWidthTypes.Boolean
	case pgtype.Int2OID:
		return arrow.PrimitiveTypes.Int16
	case pgtype.Int4OID:
		return arrow.PrimitiveTypes.Int32
	case pgtype.Int8OID:
		return arrow.PrimitiveTypes.Int64
	case pgtype.Float4OID:
		return arrow.PrimitiveTypes.Float32
	case pgtype.Float8OID:
		return arrow.PrimitiveTypes.Float64
	case pgtype.ByteaOID:
		return arrow.BinaryTypes.Binary
	case pgtype.DateOID:
		return arrow.FixedWidthTypes.Date32
	case pgtype.TimestampOID:
		return timestampType
	case pgtype.TimestamptzOID:
		return timestamptzType
	default:
		return arrow.BinaryTypes.String
	}
}

func fieldsOf(descs []pgconn.FieldDescription) []arrow.Field {
	fields := make([]arrow.Field, len(descs))
	for i, d := range descs {
		fields[i] = arrow.Field{Name: d.Name, Type: arrowType(d.DataTypeOID), Nullable: true}
	}
	return fields
}

func schemaOf(descs []pgconn.FieldDescription) *arrow.Schema {
	return arrow.NewSchema(fieldsOf(descs), nil)
}

// normalize converts a value decoded by pgx for a column read as text.
func normalize(v any) (any, error) {
	switch v := v.(type) {
	case [16]byte:
		return uuid.UUID(v).String(), nil
	case netip.Prefix:
		return v.String(), nil
	case map[string]any, []any:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	case driver.Valuer:
		return textValue(v)
	}
	return v, nil
}

func textValue(v driver.Valuer) (any, error) {
	val, err := v.Value()
	if err != nil {
		return nil, err
	}
	switch val := val.(type) {
	case nil, string:
		return val, nil
	default:
		return fmt.Sprint(val), nil
	}
}
