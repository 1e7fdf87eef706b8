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

// Package sqldriver is a wrapper around the squill backends to support
// the standard golang database/sql package, described here:
// https://go.dev/src/database/sql/doc.txt
//
// This allows any backend registered in a squill.Registry to also be
// used as-is with the database/sql package of the standard library.
//
// Registering the driver can be done by importing this and then running
//
//	reg := squill.NewRegistry(sqlite.Factory)
//	sql.Register("squill", sqldriver.Driver{Registry: reg})
//
// The data source name given to sql.Open is the squill connection URI.
// Values are returned as int64, float64, bool, string, []byte or
// time.Time; uint64 columns are returned as uint64.
package sqldriver
