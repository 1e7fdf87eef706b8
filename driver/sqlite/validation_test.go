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

package sqlite_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	squill "github.com/squill-app/squill-drivers"
	"github.com/squill-app/squill-drivers/driver/sqlite"
	"github.com/squill-app/squill-drivers/validation"
	"github.com/stretchr/testify/suite"
)

type SqliteQuirks struct{}

func (SqliteQuirks) SetupDriver(*testing.T) squill.DriverFactory     { return sqlite.Factory }
func (SqliteQuirks) TearDownDriver(*testing.T, squill.DriverFactory) {}
func (SqliteQuirks) URI() string                                     { return sqlite.InMemoryURI }
func (SqliteQuirks) BindParameter(int) string                        { return "?" }
func (SqliteQuirks) DriverName() string                              { return sqlite.DriverName }

func (SqliteQuirks) CountQuery(n int) string {
	return fmt.Sprintf(`WITH RECURSIVE c(x) AS (SELECT 1 UNION ALL SELECT x + 1 FROM c WHERE x < %d)
		SELECT x FROM c WHERE x <= %d`, n, n)
}

func (SqliteQuirks) EchoQuery(n int) string {
	return "SELECT " + strings.Repeat("?, ", n-1) + "?"
}

func (SqliteQuirks) CreateSampleTable(ctx context.Context, cnxn validation.Executor, tableName string) error {
	_, err := cnxn.Execute(ctx, `CREATE TABLE `+tableName+` (id INTEGER PRIMARY KEY, name TEXT)`, nil)
	return err
}

func (SqliteQuirks) InsertStatement(tableName string) string {
	return `INSERT INTO ` + tableName + ` (id, name) VALUES (?, ?)`
}

func TestValidation(t *testing.T) {
	q := SqliteQuirks{}
	suite.Run(t, &validation.ConnectionTests{Quirks: q})
	suite.Run(t, &validation.StatementTests{Quirks: q})
	suite.Run(t, &validation.AsyncTests{Quirks: q})
}
