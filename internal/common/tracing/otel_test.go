package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEndpointHost(t *testing.T) {
	assert.Equal(t, "collector:4318", endpointHost("http://collector:4318"))
	assert.Equal(t, "collector:4318", endpointHost("https://collector:4318/"))
	assert.Equal(t, "collector:4318", endpointHost("collector:4318"))
}

func TestTracer_NoopWithoutEndpoint(t *testing.T) {
	if Enabled() {
		t.Skip("OTEL_EXPORTER_OTLP_ENDPOINT set in environment")
	}
	_, span := Tracer("test").Start(context.Background(), "op")
	defer span.End()
	assert.False(t, span.SpanContext().IsValid())
	assert.NoError(t, Shutdown(context.Background()))
}
