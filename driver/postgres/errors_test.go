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
	"context"
	"errors"
	"fmt"
	"net/netip"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	squill "github.com/squill-app/squill-drivers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArrowType(t *testing.T) {
	for oid, expected := range map[uint32]arrow.DataType{
		pgtype.BoolOID:        arrow.FixedWidthTypes.Boolean,
		pgtype.Int2OID:        arrow.PrimitiveTypes.Int16,
		pgtype.Int4OID:        arrow.PrimitiveTypes.Int32,
		pgtype.Int8OID:        arrow.PrimitiveTypes.Int64,
		pgtype.Float8OID:      arrow.PrimitiveTypes.Float64,
		pgtype.TextOID:        arrow.BinaryTypes.String,
		pgtype.VarcharOID:     arrow.BinaryTypes.String,
		pgtype.ByteaOID:       arrow.BinaryTypes.Binary,
		pgtype.DateOID:        arrow.FixedWidthTypes.Date32,
		pgtype.TimestamptzOID: timestamptzType,
		pgtype.NumericOID:     arrow.BinaryTypes.String,
		pgtype.UUIDOID:        arrow.BinaryTypes.String,
	} {
		assert.Truef(t, arrow.TypeEqual(expected, arrowType(oid)), "oid %d: %s", oid, arrowType(oid))
	}
}

func TestNormalize(t *testing.T) {
	id := uuid.New()
	v, err := normalize([16]byte(id))
	require.NoError(t, err)
	assert.Equal(t, id.String(), v)

	v, err = normalize(map[string]any{"a": 1})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, v)

	v, err = normalize(netip.MustParsePrefix("10.0.0.0/8"))
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.0/8", v)

	v, err = normalize(int32(7))
	require.NoError(t, err)
	assert.Equal(t, int32(7), v)
}

func TestWrapError(t *testing.T) {
	for _, tc := range []struct {
		err  error
		code squill.Status
	}{
		{&pgconn.PgError{Code: "23505", Message: "duplicate key"}, squill.StatusIntegrity},
		{&pgconn.PgError{Code: "42P01", Message: "relation does not exist"}, squill.StatusNotFound},
		{&pgconn.PgError{Code: "42601", Message: "syntax error"}, squill.StatusInvalidArgument},
		{&pgconn.PgError{Code: "42501", Message: "permission denied"}, squill.StatusUnauthorized},
		{&pgconn.PgError{Code: "28P01", Message: "password authentication failed"}, squill.StatusUnauthenticated},
		{&pgconn.PgError{Code: "22012", Message: "division by zero"}, squill.StatusInvalidData},
		{fmt.Errorf("query: %w", context.DeadlineExceeded), squill.StatusTimeout},
		{context.Canceled, squill.StatusCancelled},
		{errors.New("boom"), squill.StatusUnknown},
	} {
		var serr squill.Error
		require.ErrorAs(t, wrapError(tc.err), &serr)
		assert.Equal(t, tc.code, serr.Code, tc.err.Error())
		assert.ErrorIs(t, serr, tc.err)
	}
	assert.NoError(t, wrapError(nil))
}
