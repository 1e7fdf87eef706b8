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

package driverbase

import (
	"context"
	"log/slog"
)

// NilLogger returns a logger that discards every record.
func NilLogger() *slog.Logger {
	return slog.New(nilHandler{})
}

// LoggerOrNil returns logger, or a discarding logger when it is nil.
func LoggerOrNil(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return NilLogger()
	}
	return logger
}

type nilHandler struct{}

func (nilHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nilHandler) Handle(context.Context, slog.Record) error { return nil }
func (h nilHandler) WithAttrs([]slog.Attr) slog.Handler      { return h }
func (h nilHandler) WithGroup(string) slog.Handler           { return h }
