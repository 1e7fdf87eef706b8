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
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	squill "github.com/squill-app/squill-drivers"
)

type connection struct {
	conn   *pgx.Conn
	opts   squill.Options
	logger *slog.Logger
	closed bool
}

func (c *connection) DriverName() string { return DriverName }

func (c *connection) Prepare(ctx context.Context, sql string) (squill.DriverStatement, error) {
	if c.closed {
		return nil, errorHelper.Errorf(squill.StatusInvalidState, "connection is closed")
	}
	name := "squill_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	desc, err := c.conn.Prepare(ctx, name, sql)
	if err != nil {
		return nil, wrapError(err)
	}
	c.logger.Debug("statement prepared", "name", name, "sql", sql)
	return &statement{
		conn:    c,
		name:    name,
		nparams: len(desc.ParamOIDs),
		schema:  schemaOf(desc.Fields),
	}, nil
}

func (c *connection) Close() error {
	if c.closed {
		return errorHelper.Errorf(squill.StatusInvalidState, "connection already closed")
	}
	c.closed = true
	return wrapError(c.conn.Close(context.Background()))
}
