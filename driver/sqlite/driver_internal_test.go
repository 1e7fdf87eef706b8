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

package sqlite

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDataSourceName(t *testing.T) {
	for _, tc := range []struct {
		uri, dsn string
	}{
		{"sqlite::memory:", "file::memory:"},
		{"sqlite::memory:?cache=shared", "file::memory:?cache=shared"},
		{"sqlite:test.db", "file:test.db"},
		{"sqlite:///tmp/test.db?mode=ro", "file:/tmp/test.db?mode=ro"},
	} {
		dsn, err := dataSourceName(tc.uri)
		require.NoError(t, err, tc.uri)
		assert.Equal(t, tc.dsn, dsn)
	}

	for _, uri := range []string{"sqlite:", "sqlite:?mode=ro", "postgres://host"} {
		_, err := dataSourceName(uri)
		assert.Error(t, err, uri)
	}
}

func TestArrowType(t *testing.T) {
	for decl, expected := range map[string]arrow.DataType{
		"INTEGER":     arrow.PrimitiveTypes.Int64,
		"bigint":      arrow.PrimitiveTypes.Int64,
		"VARCHAR(20)": arrow.BinaryTypes.String,
		"TEXT":        arrow.BinaryTypes.String,
		"BLOB":        arrow.BinaryTypes.Binary,
		"DOUBLE":      arrow.PrimitiveTypes.Float64,
		"REAL":        arrow.PrimitiveTypes.Float64,
		"NUMERIC":     arrow.Null,
		"":            arrow.Null,
		"DATETIME":    arrow.Null,
	} {
		assert.Truef(t, arrow.TypeEqual(expected, arrowType(decl)), "%q: %s", decl, arrowType(decl))
	}
}
