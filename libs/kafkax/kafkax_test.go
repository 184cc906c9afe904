package kafkax

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestExtractEventMetaFallbacks(t *testing.T) {
	msg := kafka.Message{Topic: "booking.appointment.completed.v1", Key: []byte("appt-1"), Partition: 2, Offset: 41}
	meta := ExtractEventMeta(msg)
	assert.Equal(t, "booking.appointment.completed.v1:2:41", meta.EventID)
	assert.Equal(t, "booking.appointment.completed.v1", meta.EventType)

	msg.Headers = EventMeta{EventID: "evt-9", EventType: "custom", BusinessID: "biz-1"}.Headers()
	meta = ExtractEventMeta(msg)
	assert.Equal(t, EventMeta{EventID: "evt-9", EventType: "custom", BusinessID: "biz-1"}, meta)
}

func TestSplitBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, SplitBrokers(" a:9092, ,b:9092 "))
	assert.Empty(t, SplitBrokers(""))
}

func TestTraceHeadersRoundTrip(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx, span := tp.Tracer("test").Start(context.Background(), "publish")
	defer span.End()

	headers := InjectTraceHeaders(ctx, []kafka.Header{{Key: HeaderEventID, Value: []byte("e1")}})
	assert.NotEmpty(t, HeaderValue(headers, "traceparent"))

	extracted := ExtractTraceContext(context.Background(), kafka.Message{Headers: headers})
	got := trace.SpanContextFromContext(extracted)
	assert.Equal(t, span.SpanContext().TraceID(), got.TraceID())
}
