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

// Package driverbase holds the plumbing shared by the squill backends
// and the async connection: error construction, logging and tracing
// setup, placeholder counting and batch size limits.
package driverbase

import (
	"context"
	"errors"
	"fmt"

	squill "github.com/squill-app/squill-drivers"
)

// ErrorHelper builds errors whose message is prefixed with the name of
// the component that raised them, e.g. "[sqlite] no such table: t".
type ErrorHelper struct {
	DriverName string
}

func (helper ErrorHelper) Errorf(code squill.Status, message string, format ...interface{}) error {
	return squill.Error{
		Msg:  fmt.Sprintf("[%s] %s", helper.DriverName, fmt.Sprintf(message, format...)),
		Code: code,
	}
}

// Wrap converts a backend error into a squill.Error with the given
// code, keeping err as its cause. A squill.Error is returned as is.
func (helper ErrorHelper) Wrap(code squill.Status, err error) error {
	if err == nil {
		return nil
	}
	var serr squill.Error
	if errors.As(err, &serr) {
		return err
	}
	return squill.Error{
		Msg:  fmt.Sprintf("[%s] %s", helper.DriverName, err.Error()),
		Code: code,
		Err:  err,
	}
}

// ContextError maps a context error to a Cancelled or Timeout error.
func (helper ErrorHelper) ContextError(err error) error {
	code := squill.StatusCancelled
	if errors.Is(err, context.DeadlineExceeded) {
		code = squill.StatusTimeout
	}
	return squill.Error{
		Msg:  fmt.Sprintf("[%s] %s", helper.DriverName, err.Error()),
		Code: code,
		Err:  err,
	}
}
