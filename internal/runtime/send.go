package runtime

import (
	"time"

	"go.opentelemetry.io/otel/trace"

	enginepkg "github.com/drblury/lightmq/internal/runtime/engine"
	errspkg "github.com/drblury/lightmq/internal/runtime/errors"
	idspkg "github.com/drblury/lightmq/internal/runtime/ids"
	loggingpkg "github.com/drblury/lightmq/internal/runtime/logging"
)

// SendOptions tunes a single Send. The zero value sends at QoS 0 without
// expiry.
type SendOptions struct {
	// QoS is 0 (at most once) or 1 (at least once).
	QoS int
	// TTL expires the message on the service; zero means no expiry.
	TTL        time.Duration
	Properties map[string]string
}

// SendCallback reports the completion of a send. err is nil once the engine
// has settled env.
type SendCallback func(env *enginepkg.Envelope, err error)

type pendingSend struct {
	env  *enginepkg.Envelope
	cb   SendCallback
	gen  uint64
	span trace.Span
	done bool
}

// Send publishes payload on topic. Argument and state problems are returned;
// the outcome of an accepted send arrives through cb, which QoS 1 requires.
func (c *Client) Send(topic string, payload any, opts *SendOptions, cb SendCallback) error {
	if topic == "" {
		return errspkg.NewValidationError("topic", errspkg.ErrTopicRequired)
	}
	body, contentType, err := encodeBody(payload)
	if err != nil {
		return err
	}
	var o SendOptions
	if opts != nil {
		o = *opts
	}
	if o.QoS != 0 && o.QoS != 1 {
		return errspkg.NewValidationError("qos", errspkg.ErrInvalidQoS)
	}
	if o.TTL < 0 {
		return errspkg.NewValidationError("ttl", errspkg.ErrInvalidTTL)
	}
	if o.QoS == 1 && cb == nil {
		return errspkg.NewValidationError("callback", errspkg.ErrCallbackRequired)
	}

	c.mu.Lock()
	if c.closed {
		defer c.mu.Unlock()
		return errspkg.NewStateError("send", c.state.String(), errspkg.ErrClientClosed)
	}
	if c.state != StateConnected || c.messenger == nil {
		defer c.mu.Unlock()
		return errspkg.NewStateError("send", c.state.String(), errspkg.ErrNotConnected)
	}
	m := c.messenger
	gen := c.generation
	service := c.service
	c.addSendLocked()
	c.mu.Unlock()

	env := &enginepkg.Envelope{
		ID:          idspkg.CreateULID(),
		Address:     service + "/" + topic,
		Topic:       topic,
		Body:        body,
		ContentType: contentType,
		QoS:         o.QoS,
		TTL:         o.TTL,
		Properties:  o.Properties,
	}
	p := &pendingSend{env: env, cb: cb, gen: gen, span: c.startSendSpan(env)}

	err = m.Put(env)
	if err == nil {
		err = m.Send()
	}
	if err != nil {
		c.loop.Post(func() { c.failSend(p, m, err) })
		return nil
	}

	c.metrics.recordSent(o.QoS)
	c.logger.Trace("Message queued", loggingpkg.LogFields{
		"topic":      topic,
		"message_id": env.ID,
		"qos":        o.QoS,
	})
	c.loop.Post(func() { c.pollSend(p) })
	return nil
}

func (c *Client) pollSend(p *pendingSend) {
	if p.done {
		return
	}
	m, ok := c.borrow(p.gen)
	if !ok {
		c.finishSend(p, c.notConnected("send"))
		return
	}

	switch m.Status(p.env) {
	case enginepkg.StatusSettled:
		c.finishSend(p, nil)
	case enginepkg.StatusFailed:
		c.failSend(p, m, p.env.Err())
	default:
		if err := m.Send(); err != nil {
			c.failSend(p, m, err)
			return
		}
		c.repost(func() { c.pollSend(p) }, true)
	}
}

// finishSend completes p exactly once.
func (c *Client) finishSend(p *pendingSend, err error) {
	if p.done {
		return
	}
	p.done = true
	endSpan(p.span, err)
	if p.cb != nil {
		c.loop.Post(func() { p.cb(p.env, err) })
	}
	c.sendDone()
}

// failSend drops the connection, then reports the failure to the callback
// and the error event. A send whose connection already went away only learns
// that it is no longer connected.
func (c *Client) failSend(p *pendingSend, m enginepkg.Messenger, cause error) {
	if p.done {
		return
	}
	if _, ok := c.borrow(p.gen); !ok {
		c.finishSend(p, c.notConnected("send"))
		return
	}

	err := c.transportError(m, "send", p.env.Address, cause)
	c.metrics.recordSendFailure()
	c.logger.Error("Send failed", err, loggingpkg.LogFields{
		"topic":      p.env.Topic,
		"message_id": p.env.ID,
	})
	c.disconnectIfCurrent(p.gen)
	c.finishSend(p, err)
	c.emitError(err)
}
