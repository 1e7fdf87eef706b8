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

	squill "github.com/squill-app/squill-drivers"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// wrapError converts an error of the SQLite engine into a squill.Error.
func wrapError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return errorHelper.ContextError(err)
	case errors.Is(err, sql.ErrConnDone), errors.Is(err, sql.ErrTxDone):
		return errorHelper.Wrap(squill.StatusInvalidState, err)
	}

	var serr *msqlite.Error
	if !errors.As(err, &serr) {
		return errorHelper.Wrap(squill.StatusUnknown, err)
	}
	return errorHelper.Wrap(statusOf(serr.Code()), err)
}

func statusOf(code int) squill.Status {
	// extended result codes carry the primary code in their low byte
	switch code & 0xff {
	case sqlite3.SQLITE_ERROR, sqlite3.SQLITE_MISMATCH, sqlite3.SQLITE_RANGE, sqlite3.SQLITE_TOOBIG:
		return squill.StatusInvalidArgument
	case sqlite3.SQLITE_CONSTRAINT:
		return squill.StatusIntegrity
	case sqlite3.SQLITE_CORRUPT, sqlite3.SQLITE_NOTADB:
		return squill.StatusInvalidData
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return squill.StatusInvalidState
	case sqlite3.SQLITE_PERM, sqlite3.SQLITE_READONLY, sqlite3.SQLITE_AUTH:
		return squill.StatusUnauthorized
	case sqlite3.SQLITE_INTERRUPT:
		return squill.StatusCancelled
	case sqlite3.SQLITE_NOTFOUND:
		return squill.StatusNotFound
	case sqlite3.SQLITE_IOERR, sqlite3.SQLITE_FULL, sqlite3.SQLITE_NOMEM, sqlite3.SQLITE_CANTOPEN:
		return squill.StatusIO
	default:
		return squill.StatusUnknown
	}
}
