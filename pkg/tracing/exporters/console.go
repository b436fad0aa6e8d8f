package exporters

import (
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
)

// NewConsoleExporter writes spans to stdout, for local debugging.
func NewConsoleExporter() (*stdouttrace.Exporter, error) {
	return stdouttrace.New(stdouttrace.WithPrettyPrint())
}
