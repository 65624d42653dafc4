package runtime

import (
	"context"
	"fmt"
	"strings"
	"time"

	enginepkg "github.com/drblury/lightmq/internal/runtime/engine"
	errspkg "github.com/drblury/lightmq/internal/runtime/errors"
	loggingpkg "github.com/drblury/lightmq/internal/runtime/logging"
	servicepkg "github.com/drblury/lightmq/internal/runtime/service"
)

// ConnectCallback receives the outcome of a connect request.
type ConnectCallback func(err error)

// DisconnectCallback is invoked once the client is disconnected.
type DisconnectCallback func(err error)

// Connect starts connecting to the service. The outcome arrives through cb and
// the connected or error events, always on a later loop turn.
func (c *Client) Connect(cb ConnectCallback) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errspkg.NewStateError("connect", c.state.String(), errspkg.ErrClientClosed)
	}
	c.connectLocked(cb)
	return nil
}

func (c *Client) connectLocked(cb ConnectCallback) {
	switch c.state {
	case StateConnecting, StateRetrying:
		if cb != nil {
			c.connectWaiters = append(c.connectWaiters, cb)
		}
	case StateConnected:
		if cb != nil {
			c.loop.Post(func() { cb(nil) })
		}
	case StateDisconnecting:
		c.connectQueued = true
		if cb != nil {
			c.queuedConnects = append(c.queuedConnects, cb)
		}
	default:
		c.beginConnectLocked(cb)
	}
}

func (c *Client) beginConnectLocked(cb ConnectCallback) {
	c.generation++
	gen := c.generation
	c.setStateLocked(StateConnecting)
	if cb != nil {
		c.connectWaiters = append(c.connectWaiters, cb)
	}
	c.loop.Post(func() { c.attemptConnect(gen) })
}

func (c *Client) attemptConnect(gen uint64) {
	if !c.isCurrent(gen, StateConnecting) {
		return
	}

	m, err := c.factory(enginepkg.Session{
		ClientID: c.id,
		User:     c.user,
		Password: c.password,
	})
	if err != nil {
		c.failConnect(gen, nil, errspkg.NewTransportError("connect", "", err))
		return
	}
	if err := m.Start(); err != nil {
		c.failConnect(gen, m, c.transportError(m, "connect", "", err))
		return
	}

	services, err := servicepkg.Resolve(context.Background(), c.source)
	if err != nil {
		c.failConnect(gen, m, err)
		return
	}
	service := services[0]

	if err := m.Connect(service); err != nil {
		c.failConnect(gen, m, c.transportError(m, "connect", service, err))
		return
	}

	c.mu.Lock()
	if c.generation != gen || c.state != StateConnecting {
		c.mu.Unlock()
		m.Stop()
		c.logger.Debug("Discarded cancelled connect", loggingpkg.LogFields{"service": service})
		return
	}
	c.messenger = m
	c.service = service
	c.setStateLocked(StateConnected)
	waiters := c.connectWaiters
	c.connectWaiters = nil
	c.mu.Unlock()

	c.logger.Info("Connected", loggingpkg.LogFields{"service": service})
	c.emitConnected()
	for _, cb := range waiters {
		c.loop.Post(func() { cb(nil) })
	}
	c.startHeartbeat(gen, m, service)
}

// failConnect abandons the attempt of generation gen. Attempts that never
// connected emit no disconnected event.
func (c *Client) failConnect(gen uint64, m enginepkg.Messenger, err error) {
	if m != nil {
		m.Stop()
	}

	c.mu.Lock()
	if c.generation != gen || c.state != StateConnecting {
		c.mu.Unlock()
		return
	}
	c.setStateLocked(StateDisconnected)
	waiters := c.connectWaiters
	c.connectWaiters = nil
	c.mu.Unlock()

	c.logger.Error("Connect failed", err, nil)
	for _, cb := range waiters {
		c.loop.Post(func() { cb(err) })
	}
	c.emitError(err)
}

func (c *Client) isCurrent(gen uint64, s State) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation == gen && c.state == s
}

// Disconnect stops the messenger and closes every subscription. A connect in
// flight is cancelled.
func (c *Client) Disconnect(cb DisconnectCallback) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateDisconnected:
		if cb != nil {
			c.loop.Post(func() { cb(nil) })
		}
	case StateDisconnecting:
		if cb != nil {
			c.disconnectWaiters = append(c.disconnectWaiters, cb)
		}
	default:
		c.beginDisconnectLocked(cb)
	}
	return nil
}

func (c *Client) beginDisconnectLocked(cb DisconnectCallback) {
	c.generation++
	from := c.state
	c.setStateLocked(StateDisconnecting)
	if cb != nil {
		c.disconnectWaiters = append(c.disconnectWaiters, cb)
	}
	cancelled := c.connectWaiters
	c.connectWaiters = nil
	m := c.messenger
	c.loop.Post(func() { c.teardown(m, from, cancelled) })
}

func (c *Client) teardown(m enginepkg.Messenger, from State, cancelled []ConnectCallback) {
	c.mu.Lock()
	subs := c.subscriptions
	c.subscriptions = make(map[string]*Subscription)
	c.messenger = nil
	c.service = ""
	c.mu.Unlock()

	for _, s := range subs {
		s.markClosed()
		c.metrics.deleteLinkCredit(s.pattern)
	}
	if m != nil {
		m.Stop()
	}

	c.mu.Lock()
	c.setStateLocked(StateDisconnected)
	waiters := c.disconnectWaiters
	c.disconnectWaiters = nil
	requeue := c.connectQueued
	queued := c.queuedConnects
	c.connectQueued = false
	c.queuedConnects = nil
	closed := c.closed
	c.mu.Unlock()

	c.logger.Info("Disconnected", loggingpkg.LogFields{"from": from.String()})

	cancelErr := errspkg.NewStateError("connect", StateDisconnecting.String(), errspkg.ErrConnectCancelled)
	for _, cb := range cancelled {
		c.loop.Post(func() { cb(cancelErr) })
	}
	c.emitDisconnected()
	for _, cb := range waiters {
		c.loop.Post(func() { cb(nil) })
	}

	if !requeue {
		return
	}
	if closed {
		closedErr := errspkg.NewStateError("connect", StateDisconnected.String(), errspkg.ErrClientClosed)
		for _, cb := range queued {
			c.loop.Post(func() { cb(closedErr) })
		}
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(queued) == 0 {
		c.connectLocked(nil)
		return
	}
	for _, cb := range queued {
		c.connectLocked(cb)
	}
}

// borrow returns the messenger of generation gen while it is still current
// and running.
func (c *Client) borrow(gen uint64) (enginepkg.Messenger, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnected || c.generation != gen || c.messenger == nil {
		return nil, false
	}
	if c.messenger.Stopped() {
		return nil, false
	}
	return c.messenger, true
}

func (c *Client) disconnectIfCurrent(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation == gen && c.state == StateConnected {
		c.beginDisconnectLocked(nil)
	}
}

func (c *Client) notConnected(op string) error {
	return errspkg.NewStateError(op, c.State().String(), errspkg.ErrNotConnected)
}

// transportError wraps err, adding the engine's last error text when it says
// something err does not.
func (c *Client) transportError(m enginepkg.Messenger, op, address string, err error) error {
	if m != nil {
		if text := m.LastErrorText(); text != "" && !strings.Contains(err.Error(), text) {
			err = fmt.Errorf("%w: %s", err, text)
		}
	}
	return errspkg.NewTransportError(op, address, err)
}

// transportFailure reports an engine failure that has no callback to carry
// it, then drops the connection.
func (c *Client) transportFailure(gen uint64, m enginepkg.Messenger, op, address string, cause error) {
	err := c.transportError(m, op, address, cause)
	c.logger.Error("Transport failure", err, loggingpkg.LogFields{"op": op, "address": address})
	c.emitError(err)
	c.disconnectIfCurrent(gen)
}

func (c *Client) startHeartbeat(gen uint64, m enginepkg.Messenger, service string) {
	idle := m.RemoteIdleTimeout(service)
	if idle <= 0 {
		return
	}
	interval := idle / 2
	if interval <= 0 {
		interval = idle
	}
	c.logger.Debug("Heartbeat enabled", loggingpkg.LogFields{"interval": interval.String()})

	var beat func()
	beat = func() {
		current, ok := c.borrow(gen)
		if !ok {
			return
		}
		if err := current.Work(0); err != nil {
			c.transportFailure(gen, current, "heartbeat", service, err)
			return
		}
		c.loop.PostAfter(interval, beat)
	}
	c.loop.PostAfter(interval, beat)
}

// Close flushes pending sends, disconnects and stops the client's own loop.
// If ctx ends first the messenger is stopped without waiting and ctx's error
// is returned. Close waits on the loop, so it must not be called from a
// callback.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	idle := c.sendsIdle
	c.mu.Unlock()

	var err error
	if idle != nil {
		select {
		case <-idle:
		case <-ctx.Done():
			err = ctx.Err()
		}
	}

	done := make(chan struct{})
	_ = c.Disconnect(func(error) { close(done) })
	if err == nil {
		select {
		case <-done:
		case <-ctx.Done():
			err = ctx.Err()
		}
	}
	if err != nil {
		c.mu.Lock()
		m := c.messenger
		c.mu.Unlock()
		if m != nil {
			m.Stop()
		}
		c.logger.Error("Client closed before disconnect completed", err, nil)
	}

	if c.ownsLoop {
		c.stopLoop()
		select {
		case <-c.loopDone:
		case <-time.After(time.Second):
			c.logger.Info("Loop still busy after close", nil)
		}
		c.loop.Close()
	}
	c.logger.Info("Client closed", nil)
	return err
}
