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
	"context"
	"database/sql"
	"errors"
	"log/slog"

	squill "github.com/squill-app/squill-drivers"
	"github.com/squill-app/squill-drivers/internal/driverbase"
)

type connection struct {
	db     *sql.DB
	conn   *sql.Conn
	opts   squill.Options
	logger *slog.Logger
	closed bool
}

func (c *connection) DriverName() string { return DriverName }

func (c *connection) Prepare(ctx context.Context, query string) (squill.DriverStatement, error) {
	if c.closed {
		return nil, errorHelper.Errorf(squill.StatusInvalidState, "connection is closed")
	}
	stmt, err := c.conn.PrepareContext(ctx, query)
	if err != nil {
		return nil, wrapError(err)
	}
	c.logger.Debug("statement prepared", "sql", query)
	return &statement{
		conn:    c,
		stmt:    stmt,
		nparams: driverbase.CountPlaceholders(query),
	}, nil
}

func (c *connection) Close() error {
	if c.closed {
		return errorHelper.Errorf(squill.StatusInvalidState, "connection already closed")
	}
	c.closed = true
	return wrapError(errors.Join(c.conn.Close(), c.db.Close()))
}
