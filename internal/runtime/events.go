package runtime

import (
	"sync"

	loggingpkg "github.com/drblury/lightmq/internal/runtime/logging"
)

// MessageHandler receives the decoded body and the delivery it came from.
type MessageHandler func(body any, d *Delivery)

type listener[F any] struct {
	id uint64
	fn F
}

// listenerList is an ordered, goroutine-safe set of callbacks.
type listenerList[F any] struct {
	mu      sync.Mutex
	nextID  uint64
	entries []listener[F]
}

func (l *listenerList[F]) add(fn F) func() {
	l.mu.Lock()
	l.nextID++
	id := l.nextID
	l.entries = append(l.entries, listener[F]{id: id, fn: fn})
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { l.remove(id) })
	}
}

func (l *listenerList[F]) remove(id uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, entry := range l.entries {
		if entry.id == id {
			l.entries = append(l.entries[:i:i], l.entries[i+1:]...)
			return
		}
	}
}

func (l *listenerList[F]) snapshot() []F {
	l.mu.Lock()
	defer l.mu.Unlock()
	fns := make([]F, len(l.entries))
	for i, entry := range l.entries {
		fns[i] = entry.fn
	}
	return fns
}

type eventRegistry struct {
	connected    listenerList[func()]
	disconnected listenerList[func()]
	errors       listenerList[func(error)]
	message      listenerList[MessageHandler]
	malformed    listenerList[MessageHandler]
}

// OnConnected registers fn for the connected event. The returned func removes
// it.
func (c *Client) OnConnected(fn func()) func() {
	if fn == nil {
		return func() {}
	}
	return c.events.connected.add(fn)
}

// OnDisconnected registers fn for the disconnected event.
func (c *Client) OnDisconnected(fn func()) func() {
	if fn == nil {
		return func() {}
	}
	return c.events.disconnected.add(fn)
}

// OnError registers fn for asynchronous transport failures. Errors emitted
// while no listener is registered are logged instead.
func (c *Client) OnError(fn func(error)) func() {
	if fn == nil {
		return func() {}
	}
	return c.events.errors.add(fn)
}

// OnMessage registers fn for well-formed deliveries.
func (c *Client) OnMessage(fn MessageHandler) func() {
	if fn == nil {
		return func() {}
	}
	return c.events.message.add(fn)
}

// OnMalformed registers fn for deliveries the service flagged as malformed.
func (c *Client) OnMalformed(fn MessageHandler) func() {
	if fn == nil {
		return func() {}
	}
	return c.events.malformed.add(fn)
}

// The emit helpers are only called from loop tasks. Listeners are captured
// when the event is emitted and each one runs as its own task.

func (c *Client) emitConnected() {
	for _, fn := range c.events.connected.snapshot() {
		c.loop.Post(fn)
	}
}

func (c *Client) emitDisconnected() {
	for _, fn := range c.events.disconnected.snapshot() {
		c.loop.Post(fn)
	}
}

func (c *Client) emitError(err error) {
	fns := c.events.errors.snapshot()
	if len(fns) == 0 {
		c.logger.Error("Unhandled client error", err, nil)
		return
	}
	for _, fn := range fns {
		c.loop.Post(func() { fn(err) })
	}
}

func (c *Client) emitDelivery(s *Subscription, body any, d *Delivery) {
	list, kind := &c.events.message, deliveryKindMessage
	if d.Malformed != nil {
		list, kind = &c.events.malformed, deliveryKindMalformed
	}

	fns := list.snapshot()
	if len(fns) == 0 {
		c.logger.Trace("No listener for delivery", loggingpkg.LogFields{
			"kind":  kind,
			"topic": d.Message.Topic,
		})
		return
	}
	for _, fn := range fns {
		c.loop.Post(func() {
			span := c.startDeliverSpan(s, d, kind)
			defer span.End()
			fn(body, d)
		})
	}
}
