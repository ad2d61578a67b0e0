package trace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
)

var logger = log.WithField("package", "trace")

const (
	TRACER_NAME             = "github.com/gh-nvat/pipecheck"
	PERFORMANCE_REPORT_FILE = "performance-report.json"
)

// InitTracer installs the global tracer provider. When enabled, spans are
// exported as JSON to <outputDir>/performance-report.json; otherwise spans
// are no-ops. The returned func flushes and closes the exporter.
func InitTracer(serviceName string, enabled bool, outputDir string) (func(), error) {
	if !enabled {
		return func() {}, nil
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}
	path := filepath.Join(outputDir, PERFORMANCE_REPORT_FILE)
	f, err := os.Create(path) // #nosec G304
	if err != nil {
		return nil, fmt.Errorf("failed to create performance report: %w", err)
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(f), stdouttrace.WithPrettyPrint())
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", serviceName))),
	)
	otel.SetTracerProvider(tp)
	logger.WithField("path", path).Info("Performance report enabled")

	return func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			logger.WithField("error", err).Warn("Failed to flush traces")
		}
		_ = f.Close()
	}, nil
}

// StartSpan starts a span from the global tracer provider
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, oteltrace.Span) {
	return otel.Tracer(TRACER_NAME).Start(ctx, name, oteltrace.WithAttributes(attrs...))
}
