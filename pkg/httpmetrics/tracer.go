/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package httpmetrics

import (
	"context"
	"os"

	"cloud.google.com/go/compute/metadata"
	texporter "github.com/GoogleCloudPlatform/opentelemetry-operations-go/exporter/trace"
	"github.com/chainguard-dev/clog"
	"go.opentelemetry.io/contrib/detectors/gcp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/api/option"
)

func tracerOptionsGCP(ctx context.Context) []trace.TracerProviderOption {
	traceExporter, err := texporter.New(
		// Trace uploads must not be traced themselves.
		//   https://github.com/open-telemetry/opentelemetry-go/issues/1928
		texporter.WithTraceClientOptions([]option.ClientOption{option.WithTelemetryDisabled()}),
	)
	if err != nil {
		clog.FromContext(ctx).Fatalf("creating Cloud Trace exporter: %v", err)
	}
	res, err := resource.New(ctx,
		resource.WithDetectors(gcp.NewDetector()),
		resource.WithTelemetrySDK(),
	)
	if err != nil {
		clog.FromContext(ctx).Fatalf("detecting GCP resource: %v", err)
	}
	return []trace.TracerProviderOption{
		trace.WithResource(res),
		trace.WithSpanProcessor(trace.NewBatchSpanProcessor(traceExporter)),
		trace.WithSampler(trace.AlwaysSample()),
	}
}

func tracerOptionsOTLP(ctx context.Context) []trace.TracerProviderOption {
	traceExporter, err := otlptracehttp.New(ctx)
	if err != nil {
		clog.FromContext(ctx).Fatalf("creating OTLP exporter: %v", err)
	}
	return []trace.TracerProviderOption{
		trace.WithResource(resource.Default()),
		trace.WithSpanProcessor(trace.NewBatchSpanProcessor(traceExporter)),
	}
}

// SetupTracer installs a tracer provider and W3C propagation. Spans go to
// Cloud Trace when running on GCP without an OTLP endpoint configured, and
// to the OTLP endpoint otherwise.
//
// Expected usage:
//
//	defer httpmetrics.SetupTracer(ctx)()
func SetupTracer(ctx context.Context) func() {
	var options []trace.TracerProviderOption
	if os.Getenv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT") == "" && metadata.OnGCE() {
		options = tracerOptionsGCP(ctx)
	} else {
		options = tracerOptionsOTLP(ctx)
	}
	tp := trace.NewTracerProvider(options...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			clog.FromContext(ctx).Infof("Error shutting down tracer provider: %v", err)
		}
	}
}
