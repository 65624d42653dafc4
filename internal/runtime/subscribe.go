package runtime

import (
	"fmt"
	"strings"
	"sync/atomic"

	enginepkg "github.com/drblury/lightmq/internal/runtime/engine"
	errspkg "github.com/drblury/lightmq/internal/runtime/errors"
	loggingpkg "github.com/drblury/lightmq/internal/runtime/logging"
	topicpkg "github.com/drblury/lightmq/internal/runtime/topic"
)

// SubscribeOptions tunes a subscription.
type SubscribeOptions struct {
	// QoS is 0 (at most once) or 1 (at least once).
	QoS int
	// Credit caps the unconfirmed deliveries on the link. Zero uses
	// Config.DefaultCredit.
	Credit int
	// AutoConfirm confirms each delivery as it is handed out. Defaults to
	// true; set it to false to call Delivery.Confirm yourself at QoS 1.
	AutoConfirm *bool
}

// SubscribeCallback reports whether the link for address was opened.
type SubscribeCallback func(address string, err error)

// UnsubscribeCallback reports whether the link for address was closed.
type UnsubscribeCallback func(address string, err error)

// Subscription is an open (or opening) link for a topic pattern.
type Subscription struct {
	address     string
	pattern     string
	share       string
	qos         int
	autoConfirm bool
	credit      *creditWindow
	closed      atomic.Bool
}

func (s *Subscription) Address() string   { return s.address }
func (s *Subscription) Pattern() string   { return s.pattern }
func (s *Subscription) Share() string     { return s.share }
func (s *Subscription) QoS() int          { return s.qos }
func (s *Subscription) AutoConfirm() bool { return s.autoConfirm }
func (s *Subscription) MaxCredit() int    { return s.credit.Max() }

// Credit returns the deliveries the link may still receive.
func (s *Subscription) Credit() int { return s.credit.Available() }

// Outstanding returns the deliveries awaiting confirmation.
func (s *Subscription) Outstanding() int { return s.credit.Outstanding() }

// Closed reports whether the subscription was unsubscribed or lost to a
// disconnect.
func (s *Subscription) Closed() bool { return s.closed.Load() }

func (s *Subscription) markClosed() { s.closed.Store(true) }

// autoSettle reports whether deliveries are settled as they arrive.
func (s *Subscription) autoSettle() bool {
	return s.qos == 0 || s.autoConfirm
}

// Subscribe opens a link for pattern. An empty share makes the subscription
// private to this client. The link opens asynchronously; cb reports the
// outcome.
func (c *Client) Subscribe(pattern, share string, opts *SubscribeOptions, cb SubscribeCallback) (*Subscription, error) {
	if err := validateDestination(pattern, share); err != nil {
		return nil, err
	}
	var o SubscribeOptions
	if opts != nil {
		o = *opts
	}
	if o.QoS != 0 && o.QoS != 1 {
		return nil, errspkg.NewValidationError("qos", errspkg.ErrInvalidQoS)
	}
	if o.Credit < 0 {
		return nil, errspkg.NewValidationError("credit", errspkg.ErrInvalidCredit)
	}
	credit := o.Credit
	if credit == 0 {
		credit = c.conf.DefaultCredit
	}
	autoConfirm := true
	if o.AutoConfirm != nil {
		autoConfirm = *o.AutoConfirm
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, errspkg.NewStateError("subscribe", c.state.String(), errspkg.ErrClientClosed)
	}
	if c.state != StateConnected || c.messenger == nil {
		return nil, errspkg.NewStateError("subscribe", c.state.String(), errspkg.ErrNotConnected)
	}
	address := enginepkg.LinkAddress{Service: c.service, Share: share, Pattern: pattern}.String()
	if _, exists := c.subscriptions[address]; exists {
		return nil, errspkg.NewStateError("subscribe", c.state.String(), errspkg.ErrAlreadySubscribed)
	}

	s := &Subscription{
		address:     address,
		pattern:     pattern,
		share:       share,
		qos:         o.QoS,
		autoConfirm: autoConfirm,
		credit:      newCreditWindow(credit),
	}
	c.subscriptions[address] = s
	gen := c.generation
	c.loop.Post(func() { c.openLink(s, gen, cb) })
	return s, nil
}

func validateDestination(pattern, share string) error {
	if pattern == "" {
		return errspkg.NewValidationError("pattern", errspkg.ErrPatternRequired)
	}
	if err := topicpkg.Validate(pattern); err != nil {
		return errspkg.NewValidationError("pattern", err)
	}
	if strings.Contains(share, ":") {
		return errspkg.NewValidationError("share", errspkg.ErrInvalidShare)
	}
	return nil
}

func (c *Client) openLink(s *Subscription, gen uint64, cb SubscribeCallback) {
	m, ok := c.borrow(gen)
	if !ok {
		s.markClosed()
		c.dropSubscription(s)
		c.postSubscribeResult(cb, s.address, c.notConnected("subscribe"))
		return
	}

	err := m.Subscribe(s.address, enginepkg.LinkOptions{
		QoS:        s.qos,
		Credit:     s.credit.Max(),
		AutoSettle: s.autoSettle(),
	})
	if err != nil {
		s.markClosed()
		c.dropSubscription(s)
		terr := c.transportError(m, "subscribe", s.address, err)
		c.logger.Error("Subscribe failed", terr, loggingpkg.LogFields{"address": s.address})
		c.postSubscribeResult(cb, s.address, terr)
		c.emitError(terr)
		c.disconnectIfCurrent(gen)
		return
	}

	c.metrics.setLinkCredit(s.pattern, s.credit.Available())
	c.logger.Debug("Subscribed", loggingpkg.LogFields{
		"address": s.address,
		"qos":     s.qos,
		"credit":  s.credit.Max(),
	})
	c.postSubscribeResult(cb, s.address, nil)
	c.loop.Post(func() { c.pollReceive(s, gen) })
}

func (c *Client) postSubscribeResult(cb func(string, error), address string, err error) {
	if cb == nil {
		return
	}
	c.loop.Post(func() { cb(address, err) })
}

func (c *Client) dropSubscription(s *Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subscriptions[s.address] == s {
		delete(c.subscriptions, s.address)
	}
}

// pollReceive is the receive task of s. It drains a batch from the engine and
// re-arms itself until s closes or the messenger goes away.
func (c *Client) pollReceive(s *Subscription, gen uint64) {
	if s.Closed() {
		return
	}
	m, ok := c.borrow(gen)
	if !ok {
		return
	}
	if err := m.Work(0); err != nil {
		c.transportFailure(gen, m, "receive", s.address, err)
		return
	}

	raws := m.Receive(c.conf.ReceiveBatch)
	for _, raw := range raws {
		c.route(m, gen, raw)
	}
	c.repost(func() { c.pollReceive(s, gen) }, len(raws) == 0)
}

// route hands raw to the subscription owning its link. Deliveries for links
// that are gone are settled.
func (c *Client) route(m enginepkg.Messenger, gen uint64, raw *enginepkg.RawDelivery) {
	c.mu.Lock()
	s := c.subscriptions[raw.LinkAddress]
	c.mu.Unlock()

	if s == nil || s.Closed() {
		if err := m.Settle(raw); err != nil {
			c.logger.Error("Failed to settle unroutable delivery", err, loggingpkg.LogFields{"link": raw.LinkAddress})
		}
		c.logger.Debug("Settled delivery for closed link", loggingpkg.LogFields{"link": raw.LinkAddress})
		return
	}
	c.deliver(m, gen, s, raw)
}

func (c *Client) deliver(m enginepkg.Messenger, gen uint64, s *Subscription, raw *enginepkg.RawDelivery) {
	if !s.credit.take() {
		if err := m.Settle(raw); err != nil {
			c.logger.Error("Failed to settle delivery", err, loggingpkg.LogFields{"address": s.address})
		}
		c.logger.Error("Delivery exceeded link credit", fmt.Errorf("link %s has no credit left", s.address), loggingpkg.LogFields{
			"max_credit": s.credit.Max(),
		})
		return
	}

	d := newDelivery(s, raw)
	body := decodeBody(raw.ContentType, raw.Body)
	kind := deliveryKindMessage
	if d.Malformed != nil {
		kind = deliveryKindMalformed
	}

	if s.autoSettle() {
		c.settle(m, s, raw)
		c.replenish(m, s)
	} else {
		d.confirm = c.confirmFunc(s, raw, gen)
		c.metrics.setLinkCredit(s.pattern, s.credit.Available())
	}

	c.metrics.recordDelivery(kind)
	c.logger.Trace("Delivery received", loggingpkg.LogFields{
		"address": s.address,
		"topic":   d.Message.Topic,
		"kind":    kind,
	})
	c.loop.Post(func() { c.emitDelivery(s, body, d) })
}

func (c *Client) settle(m enginepkg.Messenger, s *Subscription, raw *enginepkg.RawDelivery) {
	if err := m.Accept(raw); err != nil {
		c.logger.Error("Failed to accept delivery", err, loggingpkg.LogFields{"address": s.address})
	}
	if err := m.Settle(raw); err != nil {
		c.logger.Error("Failed to settle delivery", err, loggingpkg.LogFields{"address": s.address})
	}
}

// replenish returns one unit of credit to s and grants it to the link.
func (c *Client) replenish(m enginepkg.Messenger, s *Subscription) {
	if !s.credit.give() {
		return
	}
	m.Flow(s.address, 1)
	c.metrics.setLinkCredit(s.pattern, s.credit.Available())
}

func (c *Client) confirmFunc(s *Subscription, raw *enginepkg.RawDelivery, gen uint64) func() error {
	var confirmed atomic.Bool
	return func() error {
		m, ok := c.borrow(gen)
		if !ok {
			return c.notConnected("confirm")
		}
		if s.Closed() {
			return errspkg.NewStateError("confirm", StateConnected.String(), errspkg.ErrNotSubscribed)
		}
		if !confirmed.CompareAndSwap(false, true) {
			return errspkg.NewStateError("confirm", StateConnected.String(), errspkg.ErrAlreadyConfirmed)
		}
		c.settle(m, s, raw)
		c.replenish(m, s)
		c.metrics.recordConfirm()
		return nil
	}
}

// Unsubscribe closes the subscription for pattern and share. The link closes
// asynchronously; cb reports the outcome.
func (c *Client) Unsubscribe(pattern, share string, cb UnsubscribeCallback) error {
	if err := validateDestination(pattern, share); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errspkg.NewStateError("unsubscribe", c.state.String(), errspkg.ErrClientClosed)
	}
	if c.state != StateConnected || c.messenger == nil {
		return errspkg.NewStateError("unsubscribe", c.state.String(), errspkg.ErrNotConnected)
	}
	address := enginepkg.LinkAddress{Service: c.service, Share: share, Pattern: pattern}.String()
	s, ok := c.subscriptions[address]
	if !ok {
		return errspkg.NewStateError("unsubscribe", c.state.String(), errspkg.ErrNotSubscribed)
	}
	delete(c.subscriptions, address)
	gen := c.generation
	c.loop.Post(func() { c.closeLink(s, gen, cb) })
	return nil
}

func (c *Client) closeLink(s *Subscription, gen uint64, cb UnsubscribeCallback) {
	wasOpen := !s.Closed()
	s.markClosed()
	c.metrics.deleteLinkCredit(s.pattern)

	m, ok := c.borrow(gen)
	if !ok || !wasOpen {
		// The link went away with the connection or never opened.
		c.postSubscribeResult(cb, s.address, nil)
		return
	}
	if err := m.Unsubscribe(s.address); err != nil {
		terr := c.transportError(m, "unsubscribe", s.address, err)
		c.logger.Error("Unsubscribe failed", terr, loggingpkg.LogFields{"address": s.address})
		c.postSubscribeResult(cb, s.address, terr)
		c.emitError(terr)
		c.disconnectIfCurrent(gen)
		return
	}

	c.logger.Debug("Unsubscribed", loggingpkg.LogFields{"address": s.address})
	c.postSubscribeResult(cb, s.address, nil)
}
