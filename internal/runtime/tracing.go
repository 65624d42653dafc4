package runtime

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	enginepkg "github.com/drblury/lightmq/internal/runtime/engine"
)

const tracerName = "github.com/drblury/lightmq"

func (c *Client) startSendSpan(env *enginepkg.Envelope) trace.Span {
	_, span := c.tracer.Start(context.Background(), "lightmq.send",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.system", "lightmq"),
			attribute.String("messaging.destination.name", env.Topic),
			attribute.String("messaging.message.id", env.ID),
			attribute.Int("lightmq.qos", env.QoS),
			attribute.String("lightmq.client_id", c.id),
		),
	)
	return span
}

func (c *Client) startDeliverSpan(s *Subscription, d *Delivery, kind string) trace.Span {
	_, span := c.tracer.Start(context.Background(), "lightmq.deliver",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "lightmq"),
			attribute.String("messaging.destination.name", d.Message.Topic),
			attribute.String("lightmq.topic_pattern", s.pattern),
			attribute.String("lightmq.share", s.share),
			attribute.Int("lightmq.qos", s.qos),
			attribute.String("lightmq.delivery_kind", kind),
		),
	)
	return span
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
