package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type recordingWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func TestPublishWritesTopicKeyAndTraceHeaders(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	ctx, span := tp.Tracer("test").Start(context.Background(), "parent")
	defer span.End()

	w := &recordingWriter{}
	p := NewProducerWithWriter(w)

	orderID := uuid.New()
	err := p.Publish(ctx, TopicOrderPaid, orderID.String(), OrderPaidEvent{OrderID: orderID, GatewayPaymentID: "pay_1"})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, TopicOrderPaid, msg.Topic)
	assert.Equal(t, orderID.String(), string(msg.Key))
	assert.NotEmpty(t, NewMessageCarrier(&msg).Get("traceparent"))

	var decoded OrderPaidEvent
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "pay_1", decoded.GatewayPaymentID)
}

func TestPublishReturnsWriterError(t *testing.T) {
	p := NewProducerWithWriter(&recordingWriter{err: errors.New("broker down")})
	err := p.Publish(context.Background(), TopicOrderCreated, "k", OrderCreatedEvent{})
	assert.EqualError(t, err, "broker down")
}

func TestCarrierOverwritesExistingHeader(t *testing.T) {
	msg := kafka.Message{}
	c := NewMessageCarrier(&msg)
	c.Set("a", "1")
	c.Set("a", "2")
	c.Set("b", "3")
	assert.Equal(t, "2", c.Get("a"))
	assert.Equal(t, []string{"a", "b"}, c.Keys())
}
