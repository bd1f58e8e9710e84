package telemetry

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestSetupWithoutEndpointIsNoop(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	shutdown := Setup("clubdesk-test", zerolog.Nop())
	assert.NoError(t, shutdown(context.Background()))

	_, span := Tracer().Start(context.Background(), "checkin.start")
	defer span.End()
	assert.False(t, span.SpanContext().IsSampled())
}
