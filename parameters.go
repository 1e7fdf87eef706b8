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

package squill

import "fmt"

// Parameters are positional statement parameters.
//
// A nil Parameters means "no binding": Execute and Query use whatever
// was last bound. A non-nil, empty Parameters binds zero values.
//
// Values are Go scalars: nil, bool, signed and unsigned integers,
// float32, float64, string, []byte and time.Time.
type Parameters []any

// Params builds positional parameters. Params() with no argument
// returns an empty, non-nil Parameters.
func Params(values ...any) Parameters {
	if values == nil {
		return Parameters{}
	}
	return Parameters(values)
}

// CheckCount returns an error when the number of parameters does not
// match the expected placeholder count.
func (p Parameters) CheckCount(expected int) error {
	if len(p) != expected {
		return NewParameterCountError(expected, len(p))
	}
	return nil
}

// NewParameterCountError builds the error reported when a statement
// is given the wrong number of parameters.
func NewParameterCountError(expected, actual int) error {
	return Error{
		Msg:  fmt.Sprintf("Invalid parameter count: expected %d, actual %d", expected, actual),
		Code: StatusInvalidArgument,
	}
}
