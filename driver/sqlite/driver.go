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

// Package sqlite is a squill backend for SQLite databases, built on the
// pure Go modernc.org/sqlite engine.
//
// Connection URIs use the "sqlite" scheme:
//
//	sqlite::memory:               a private in-memory database
//	sqlite:path/to/file.db        a database file, created if missing
//	sqlite:file.db?mode=ro        SQLite URI parameters are passed through
//
// Result columns are typed from their declared type (INTEGER, REAL,
// TEXT, BLOB). Expressions have no declared type; their Arrow type is
// inferred from the first non-null value.
package sqlite

import (
	"context"
	"database/sql"
	"strings"

	squill "github.com/squill-app/squill-drivers"
	"github.com/squill-app/squill-drivers/internal/driverbase"
	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver
)

const (
	DriverName = "sqlite"

	// InMemoryURI opens a private in-memory database.
	InMemoryURI = "sqlite::memory:"
)

var errorHelper = driverbase.ErrorHelper{DriverName: DriverName}

// Factory opens SQLite connections.
var Factory squill.DriverFactory = factory{}

// Register adds the SQLite backend to a registry.
func Register(r *squill.Registry) { r.Register(Factory) }

type factory struct{}

func (factory) Schemes() []string { return []string{"sqlite"} }

func (factory) Open(ctx context.Context, uri string, opts squill.Options) (squill.DriverConnection, error) {
	dsn, err := dataSourceName(uri)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errorHelper.Wrap(squill.StatusIO, err)
	}
	// every :memory: connection opens a distinct database
	db.SetMaxOpenConns(1)

	conn, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close()
		return nil, wrapError(err)
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		_ = db.Close()
		return nil, wrapError(err)
	}

	opts = opts.WithDefaults()
	return &connection{
		db:     db,
		conn:   conn,
		opts:   opts,
		logger: driverbase.LoggerOrNil(opts.Logger).With("driver", DriverName),
	}, nil
}

// dataSourceName turns a squill URI into a SQLite URI filename.
func dataSourceName(uri string) (string, error) {
	rest, ok := strings.CutPrefix(uri, "sqlite:")
	if !ok {
		return "", errorHelper.Errorf(squill.StatusInvalidArgument, "Invalid URI: %s", uri)
	}
	if strings.HasPrefix(rest, ":memory:") {
		return "file:" + rest, nil
	}
	rest = strings.TrimPrefix(rest, "//")
	if rest == "" || strings.HasPrefix(rest, "?") {
		return "", errorHelper.Errorf(squill.StatusInvalidArgument, "Invalid URI: %s", uri)
	}
	return "file:" + rest, nil
}
