package engine

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/upliftcs/upliftcs-backend/engine"

// tracer resolves through the global provider so it picks up whatever
// observability.InitOTel installed, or the noop provider.
func tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}
