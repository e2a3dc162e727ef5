package tracing

import (
	"testing"

	"github.com/opentracing/opentracing-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uber/jaeger-client-go"
)

func TestInitTracerDisabledIsNoop(t *testing.T) {
	tracer, closer, err := InitTracer(Config{})
	require.NoError(t, err)
	require.NotNil(t, closer)
	closer()

	span := tracer.StartSpan("noop")
	defer span.Finish()
	traceID, spanID := IDs(span)
	assert.Empty(t, traceID)
	assert.Empty(t, spanID)
}

func TestIDsFromJaegerSpan(t *testing.T) {
	tracer, closer := jaeger.NewTracer("test", jaeger.NewConstSampler(true), jaeger.NewNullReporter())
	defer closer.Close()

	span := tracer.StartSpan("op")
	defer span.Finish()
	traceID, spanID := IDs(span)
	assert.NotEmpty(t, traceID)
	assert.NotEmpty(t, spanID)

	var _ opentracing.Tracer = tracer
}
