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
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	defaultFilePrefix    = "squill"
	defaultFileSizeMaxKb = int64(1024)
	defaultFileCountMax  = 100
	traceFileExt         = ".jsonl"
)

type traceFileConfig struct {
	Folder        string
	Prefix        string
	FileSizeMaxKb int64
	FileCountMax  int
}

type TraceFileOption func(*traceFileConfig)

// WithTraceFolder sets the folder receiving the trace files. It
// defaults to <user config dir>/squill/traces.
func WithTraceFolder(folder string) TraceFileOption {
	return func(cfg *traceFileConfig) { cfg.Folder = folder }
}

func WithFilePrefix(prefix string) TraceFileOption {
	return func(cfg *traceFileConfig) { cfg.Prefix = prefix }
}

func WithFileSizeMaxKb(kb int64) TraceFileOption {
	return func(cfg *traceFileConfig) { cfg.FileSizeMaxKb = kb }
}

func WithFileCountMax(n int) TraceFileOption {
	return func(cfg *traceFileConfig) { cfg.FileCountMax = n }
}

// TraceFileWriter writes to "<prefix>-<UTC time>.jsonl" files in a
// folder, starting a new file once the current one reaches
// FileSizeMaxKb and removing the oldest files beyond FileCountMax.
type TraceFileWriter struct {
	mu      sync.Mutex
	cfg     traceFileConfig
	current *os.File
}

// NewTraceFileWriter creates the trace folder if needed and checks
// that it is writable.
func NewTraceFileWriter(options ...TraceFileOption) (*TraceFileWriter, error) {
	cfg := traceFileConfig{
		Prefix:        defaultFilePrefix,
		FileSizeMaxKb: defaultFileSizeMaxKb,
		FileCountMax:  defaultFileCountMax,
	}
	for _, opt := range options {
		opt(&cfg)
	}
	if strings.TrimSpace(cfg.Prefix) == "" {
		cfg.Prefix = defaultFilePrefix
	}
	if cfg.FileSizeMaxKb <= 0 {
		cfg.FileSizeMaxKb = defaultFileSizeMaxKb
	}
	if cfg.FileCountMax <= 0 {
		cfg.FileCountMax = defaultFileCountMax
	}
	if strings.TrimSpace(cfg.Folder) == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, err
		}
		cfg.Folder = filepath.Join(dir, "squill", "traces")
	}

	if err := os.MkdirAll(cfg.Folder, 0755); err != nil {
		return nil, err
	}
	tmp, err := os.CreateTemp(cfg.Folder, cfg.Prefix)
	if err != nil {
		return nil, err
	}
	_ = tmp.Close()
	_ = os.Remove(tmp.Name())

	return &TraceFileWriter{cfg: cfg}, nil
}

func (w *TraceFileWriter) Folder() string { return w.cfg.Folder }

// Files returns the trace files of the writer, oldest first.
func (w *TraceFileWriter) Files() ([]string, error) {
	// Glob sorts lexically, which is chronological for our names.
	return filepath.Glob(filepath.Join(w.cfg.Folder, w.cfg.Prefix+"-*"+traceFileExt))
}

func (w *TraceFileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.rotate(); err != nil {
		return 0, err
	}
	if w.current == nil {
		if err := w.open(); err != nil {
			return 0, err
		}
	}
	return w.current.Write(p)
}

func (w *TraceFileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.current == nil {
		return nil
	}
	err := w.current.Close()
	w.current = nil
	return err
}

func (w *TraceFileWriter) maxBytes() int64 { return w.cfg.FileSizeMaxKb * 1024 }

func (w *TraceFileWriter) rotate() error {
	if w.current == nil {
		return nil
	}
	info, err := w.current.Stat()
	if err != nil {
		return err
	}
	if info.Size() < w.maxBytes() {
		return nil
	}
	if err := w.current.Close(); err != nil {
		return err
	}
	w.current = nil
	return w.removeOldFiles()
}

func (w *TraceFileWriter) open() error {
	const perm = 0666

	// Reuse the newest file while it has room left.
	if files, err := w.Files(); err == nil && len(files) > 0 {
		last := files[len(files)-1]
		if info, err := os.Stat(last); err == nil && info.Size() < w.maxBytes() {
			if f, err := os.OpenFile(last, os.O_APPEND|os.O_WRONLY, perm); err == nil {
				w.current = f
				return nil
			}
		}
	}

	stamp := time.Now().UTC().Format("2006-01-02-15-04-05.000000000")
	name := filepath.Join(w.cfg.Folder, w.cfg.Prefix+"-"+stamp+traceFileExt)
	f, err := os.OpenFile(name, os.O_APPEND|os.O_CREATE|os.O_WRONLY, perm)
	if err != nil {
		return err
	}
	w.current = f
	return nil
}

func (w *TraceFileWriter) removeOldFiles() error {
	files, err := w.Files()
	if err != nil {
		return nil
	}
	// keep room for the file about to be created
	excess := len(files) - w.cfg.FileCountMax + 1
	var errs []error
	for i := 0; i < excess; i++ {
		errs = append(errs, os.Remove(files[i]))
	}
	return errors.Join(errs...)
}
