package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"dailyalchemy/internal/logger"
)

const serviceName = "dailyalchemy"

// setupTracing installs a global tracer provider for the named exporter and
// returns its shutdown func. "none" leaves the no-op provider in place.
func setupTracing(exporter string, log *logger.Logger) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }

	var exp sdktrace.SpanExporter
	switch strings.ToLower(strings.TrimSpace(exporter)) {
	case "", "none", "off":
		return noop, nil
	case "stdout":
		e, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return noop, fmt.Errorf("failed to create stdout exporter: %w", err)
		}
		exp = e
	default:
		return noop, fmt.Errorf("unsupported trace exporter: %s", exporter)
	}

	res := resource.NewSchemaless(attribute.String("service.name", serviceName))
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	log.Info("Tracing initialized", "exporter", exporter)
	return tp.Shutdown, nil
}
