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
	"errors"
	"os"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	squill "github.com/squill-app/squill-drivers"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.30.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	tracerNamespace    = "squill"
	otelTracesExporter = "OTEL_TRACES_EXPORTER"
	modulePath         = "github.com/squill-app/squill-drivers"
)

type TraceExporterType int

const (
	TraceExporterNone TraceExporterType = iota
	TraceExporterOtlp
	TraceExporterConsole
	TraceExporterFile
)

var traceExporterNames = map[string]TraceExporterType{
	"none":    TraceExporterNone,
	"otlp":    TraceExporterOtlp,
	"console": TraceExporterConsole,
	"file":    TraceExporterFile,
}

func (te TraceExporterType) String() string {
	return [...]string{"none", "otlp", "console", "file"}[te]
}

const (
	MessageOtelTracesExporterOptionUnknown = "Unknown " + otelTracesExporter + " option"
)

var getExporterName = sync.OnceValue(func() string {
	return os.Getenv(otelTracesExporter)
})

// Version is the version of the squill module as recorded in the
// build info, or "unknown".
var Version = sync.OnceValue(func() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	version := ""
	if info.Main.Path == modulePath {
		version = info.Main.Version
	}
	for _, dep := range info.Deps {
		if dep.Path == modulePath {
			version = dep.Version
		}
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.modified" && s.Value == "true" {
			version += "-dev"
		}
	}
	if version == "" || version == "-dev" {
		return "unknown" + version
	}
	return version
})

// Tracing holds a tracer and the function flushing its exporters.
type Tracing struct {
	Tracer   trace.Tracer
	shutdown func(context.Context) error
}

// Shutdown flushes and stops the exporters created by InitTracing.
func (t *Tracing) Shutdown(ctx context.Context) error {
	if t.shutdown == nil {
		return nil
	}
	err := t.shutdown(ctx)
	t.shutdown = nil
	return err
}

// InitTracing creates the tracer for a component.
//
// Exporters are selected with the OTEL_TRACES_EXPORTER environment
// variable: "otlp" (gRPC and HTTP, configured by the standard OTLP
// variables), "console" (stdout), "file" (rotating JSON lines files)
// or "none". When the variable is unset the global tracer provider is
// used.
func InitTracing(ctx context.Context, component string) (*Tracing, error) {
	return initTracing(ctx, component, getExporterName())
}

func initTracing(ctx context.Context, component, exporterName string) (*Tracing, error) {
	name := tracerNamespace + "." + component
	if exporterName == "" {
		return &Tracing{Tracer: otel.Tracer(name)}, nil
	}

	errorHelper := ErrorHelper{DriverName: component}
	exporterType, ok := traceExporterNames[strings.ToLower(exporterName)]
	if !ok {
		return nil, errorHelper.Errorf(squill.StatusInvalidArgument, "%s '%s'",
			MessageOtelTracesExporterOptionUnknown, exporterName)
	}

	var exporters []sdktrace.SpanExporter
	switch exporterType {
	case TraceExporterNone:
		return &Tracing{Tracer: noop.NewTracerProvider().Tracer(name)}, nil
	case TraceExporterConsole:
		exporter, err := stdouttrace.New()
		if err != nil {
			return nil, err
		}
		exporters = append(exporters, exporter)
	case TraceExporterOtlp:
		otlp, err := newOtlpTraceExporters(ctx)
		if err != nil {
			return nil, err
		}
		exporters = append(exporters, otlp...)
	case TraceExporterFile:
		exporter, err := newFileExporter(name)
		if err != nil {
			return nil, err
		}
		exporters = append(exporters, exporter)
	}

	provider, err := newTracerProvider(exporters...)
	if err != nil {
		return nil, err
	}
	return &Tracing{
		Tracer: provider.Tracer(name,
			trace.WithInstrumentationVersion(Version()),
			trace.WithSchemaURL(semconv.SchemaURL)),
		shutdown: provider.Shutdown,
	}, nil
}

func newOtlpTraceExporters(ctx context.Context) ([]sdktrace.SpanExporter, error) {
	// Endpoints and headers come from the OTEL_EXPORTER_OTLP_* variables.
	grpcExporter, err := otlptracegrpc.New(
		ctx,
		otlptracegrpc.WithRetry(otlptracegrpc.RetryConfig{
			Enabled:         true,
			InitialInterval: 5 * time.Second,
			MaxInterval:     30 * time.Second,
		}),
	)
	if err != nil {
		return nil, err
	}
	httpExporter, err := otlptracehttp.New(
		ctx,
		otlptracehttp.WithRetry(otlptracehttp.RetryConfig{
			Enabled:         true,
			InitialInterval: 5 * time.Second,
			MaxInterval:     30 * time.Second,
		}),
	)
	if err != nil {
		return nil, err
	}
	return []sdktrace.SpanExporter{grpcExporter, httpExporter}, nil
}

func newFileExporter(name string) (*stdouttrace.Exporter, error) {
	w, err := NewTraceFileWriter(WithFilePrefix(strings.ToLower(name)))
	if err != nil {
		return nil, err
	}
	return stdouttrace.New(stdouttrace.WithWriter(w))
}

func newTracerProvider(exporters ...sdktrace.SpanExporter) (*sdktrace.TracerProvider, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(tracerNamespace),
		),
	)
	if err != nil {
		if !errors.Is(err, resource.ErrSchemaURLConflict) {
			return nil, err
		}
		res = resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(tracerNamespace),
		)
	}

	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	for _, exporter := range exporters {
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}
	return sdktrace.NewTracerProvider(opts...), nil
}
