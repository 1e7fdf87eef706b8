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

	"github.com/jackc/pgx/v5/pgconn"
	squill "github.com/squill-app/squill-drivers"
)

// wrapError converts a pgx error into a squill.Error. Server errors
// are classified by their SQLSTATE.
func wrapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return errorHelper.ContextError(err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return errorHelper.Wrap(statusOf(pgErr.Code), err)
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) || pgconn.Timeout(err) {
		return errorHelper.Wrap(squill.StatusIO, err)
	}
	return errorHelper.Wrap(squill.StatusUnknown, err)
}

func statusOf(sqlState string) squill.Status {
	switch sqlState {
	case "42501":
		return squill.StatusUnauthorized
	case "57014":
		return squill.StatusCancelled
	case "42P01", "42703", "42883":
		return squill.StatusNotFound
	}
	if len(sqlState) < 2 {
		return squill.StatusUnknown
	}
	switch sqlState[:2] {
	case "23":
		return squill.StatusIntegrity
	case "22":
		return squill.StatusInvalidData
	case "42", "07":
		return squill.StatusInvalidArgument
	case "28":
		return squill.StatusUnauthenticated
	case "08", "53", "58":
		return squill.StatusIO
	case "25", "40", "55":
		return squill.StatusInvalidState
	default:
		return squill.StatusUnknown
	}
}
