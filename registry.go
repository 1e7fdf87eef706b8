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

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"golang.org/x/exp/slices"
)

var schemeRegexp = regexp.MustCompile(`^([a-zA-Z][a-zA-Z0-9+.-]*):`)

// Registry resolves the scheme of a connection URI to the
// [DriverFactory] handling it.
//
// A Registry is usually built once at startup and handed to whatever
// opens connections. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]DriverFactory
}

// NewRegistry creates a registry holding the given factories.
func NewRegistry(factories ...DriverFactory) *Registry {
	r := &Registry{factories: make(map[string]DriverFactory)}
	for _, f := range factories {
		r.Register(f)
	}
	return r
}

// Register adds a factory for each of its schemes, replacing any
// factory previously registered for the same scheme.
func (r *Registry) Register(f DriverFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, scheme := range f.Schemes() {
		r.factories[strings.ToLower(scheme)] = f
	}
}

// Unregister removes the factory registered for scheme, if any.
func (r *Registry) Unregister(scheme string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.factories, strings.ToLower(scheme))
}

// Lookup returns the factory registered for scheme.
func (r *Registry) Lookup(scheme string) (DriverFactory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[strings.ToLower(scheme)]
	if !ok {
		return nil, Error{
			Msg:  fmt.Sprintf("No driver found for scheme: %s", scheme),
			Code: StatusNotFound,
		}
	}
	return f, nil
}

// Schemes returns the registered schemes in lexical order.
func (r *Registry) Schemes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	schemes := make([]string, 0, len(r.factories))
	for scheme := range r.factories {
		schemes = append(schemes, scheme)
	}
	slices.Sort(schemes)
	return schemes
}

// Open resolves the scheme of uri and opens a backend connection.
//
// Query parameters named after an option key without its "squill."
// prefix (e.g. "?max_batch_rows=100") are applied to opts and removed
// from the URI handed to the backend.
func (r *Registry) Open(ctx context.Context, uri string, opts Options) (DriverConnection, error) {
	scheme, err := ParseScheme(uri)
	if err != nil {
		return nil, err
	}
	f, err := r.Lookup(scheme)
	if err != nil {
		return nil, err
	}
	uri, opts, err = ResolveOptions(uri, opts)
	if err != nil {
		return nil, err
	}
	return f.Open(ctx, uri, opts)
}

// ResolveOptions applies the options found in the query of uri to
// opts, then the defaults. It returns uri without those options.
func ResolveOptions(uri string, opts Options) (string, Options, error) {
	uri, err := extractOptions(uri, &opts)
	if err != nil {
		return "", Options{}, err
	}
	return uri, opts.WithDefaults(), nil
}

// ParseScheme returns the scheme of a connection URI.
func ParseScheme(uri string) (string, error) {
	m := schemeRegexp.FindStringSubmatch(uri)
	if m == nil {
		return "", Error{
			Msg:  fmt.Sprintf("Invalid URI: No scheme found in '%s'", uri),
			Code: StatusInvalidArgument,
		}
	}
	return m[1], nil
}

const optionKeyPrefix = "squill."

func extractOptions(uri string, opts *Options) (string, error) {
	base, query, ok := strings.Cut(uri, "?")
	if !ok {
		return uri, nil
	}

	var kept []string
	for _, pair := range strings.Split(query, "&") {
		key, val, _ := strings.Cut(pair, "=")
		switch optionKeyPrefix + key {
		case OptionKeyMaxBatchRows, OptionKeyMaxBatchBytes, OptionKeyStatementCacheSize:
			v, err := url.QueryUnescape(val)
			if err != nil {
				return "", invalidOptionValue(optionKeyPrefix+key, val)
			}
			if err := opts.SetOption(optionKeyPrefix+key, v); err != nil {
				return "", err
			}
		default:
			kept = append(kept, pair)
		}
	}
	if len(kept) == 0 {
		return base, nil
	}
	return base + "?" + strings.Join(kept, "&"), nil
}
