package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/lightmq/internal/runtime/ids"
	"github.com/drblury/lightmq/internal/runtime/jsoncodec"
	"github.com/drblury/lightmq/internal/runtime/logging"
	"github.com/drblury/lightmq/internal/runtime/metadata"
	"github.com/drblury/lightmq/internal/runtime/topic"
	"github.com/drblury/lightmq/transport"
)

// DefaultBusTopic is the Watermill topic used when none is configured.
const DefaultBusTopic = "lightmq"

var (
	errNotStarted   = errors.New("messenger is not started")
	errStopped      = errors.New("messenger is stopped")
	errNotConnected = errors.New("messenger is not connected")
)

// TransportBuilder opens the Watermill backend for service on behalf of session.
type TransportBuilder func(ctx context.Context, service string, session Session) (transport.Transport, error)

// WatermillOptions configures messengers created by NewWatermillFactory.
type WatermillOptions struct {
	// Topic is the bus topic every message is published on.
	Topic string
	// IdleTimeout is reported as the remote idle timeout.
	IdleTimeout time.Duration
	Build       TransportBuilder
	Logger      logging.ServiceLogger
}

// NewWatermillFactory returns a Factory producing Watermill messengers.
func NewWatermillFactory(opts WatermillOptions) Factory {
	return func(session Session) (Messenger, error) {
		if opts.Build == nil {
			return nil, errors.New("transport builder is required")
		}
		return NewWatermillMessenger(session, opts), nil
	}
}

// WatermillMessenger carries the Messenger surface over a Watermill publisher
// and one subscriber per link.
type WatermillMessenger struct {
	session Session
	topic   string
	idle    time.Duration
	build   TransportBuilder
	logger  logging.ServiceLogger

	mu       sync.Mutex
	started  bool
	stopped  bool
	ctx      context.Context
	cancel   context.CancelFunc
	service  string
	tr       transport.Transport
	outbox   []*Envelope
	inbox    []*RawDelivery
	links    map[string]*link
	lastErr  error
	failure  error
	outReady chan struct{}

	wg sync.WaitGroup
}

type link struct {
	address string
	service string
	pattern string
	qos     int

	sub    message.Subscriber
	cancel context.CancelFunc
	tokens chan struct{}
	done   chan struct{}

	// unsettled is guarded by the messenger mutex.
	unsettled map[*message.Message]struct{}
}

// NewWatermillMessenger creates an unstarted messenger.
func NewWatermillMessenger(session Session, opts WatermillOptions) *WatermillMessenger {
	busTopic := opts.Topic
	if busTopic == "" {
		busTopic = DefaultBusTopic
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNopServiceLogger()
	}
	return &WatermillMessenger{
		session:  session,
		topic:    busTopic,
		idle:     opts.IdleTimeout,
		build:    opts.Build,
		logger:   logger.With(logging.LogFields{"client_id": session.ClientID}),
		links:    make(map[string]*link),
		outReady: make(chan struct{}, 1),
	}
}

func (m *WatermillMessenger) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return errStopped
	}
	if m.started {
		return nil
	}
	m.started = true
	m.ctx, m.cancel = context.WithCancel(context.Background())
	return nil
}

func (m *WatermillMessenger) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	if m.cancel != nil {
		m.cancel()
	}
	links := make([]*link, 0, len(m.links))
	for address, l := range m.links {
		links = append(links, l)
		delete(m.links, address)
	}
	m.releaseLocked(links)
	tr := m.tr
	m.outbox = nil
	m.mu.Unlock()

	m.wg.Wait()
	for _, l := range links {
		if err := l.sub.Close(); err != nil {
			m.logger.Error("Failed to close link subscriber", err, logging.LogFields{"address": l.address})
		}
	}
	if tr.Publisher != nil {
		if err := tr.Publisher.Close(); err != nil {
			m.logger.Error("Failed to close publisher", err, nil)
		}
	}
	if tr.Close != nil {
		if err := tr.Close(); err != nil {
			m.logger.Error("Failed to close transport", err, nil)
		}
	}
	m.logger.Debug("Messenger stopped", nil)
}

func (m *WatermillMessenger) Stopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

func (m *WatermillMessenger) Connect(service string) error {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return errNotStarted
	}
	if m.stopped {
		m.mu.Unlock()
		return errStopped
	}
	if m.service != "" {
		m.mu.Unlock()
		return fmt.Errorf("messenger already connected to %s", m.service)
	}
	ctx := m.ctx
	m.mu.Unlock()

	tr, err := m.build(ctx, service, m.session)
	if err == nil && (tr.Publisher == nil || tr.NewSubscriber == nil) {
		err = errors.New("transport is missing a publisher or subscriber")
	}
	if err != nil {
		m.mu.Lock()
		m.lastErr = err
		m.mu.Unlock()
		return err
	}

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		// Stopped while dialling; nothing else owns tr.
		closeTransport(tr)
		return errStopped
	}
	m.service = service
	m.tr = tr
	m.wg.Add(1)
	go m.publishLoop(ctx, tr.Publisher)
	m.mu.Unlock()

	m.logger.Info("Messenger connected", logging.LogFields{"service": service, "topic": m.topic})
	return nil
}

func closeTransport(tr transport.Transport) {
	if tr.Publisher != nil {
		_ = tr.Publisher.Close()
	}
	if tr.Close != nil {
		_ = tr.Close()
	}
}

func (m *WatermillMessenger) Put(env *Envelope) error {
	if env == nil {
		return errors.New("envelope is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.usableLocked(); err != nil {
		return err
	}
	env.SetStatus(StatusPending, nil)
	m.outbox = append(m.outbox, env)
	return nil
}

func (m *WatermillMessenger) Send() error {
	m.mu.Lock()
	err := m.usableLocked()
	pending := len(m.outbox)
	m.mu.Unlock()

	if err != nil {
		return err
	}
	if pending > 0 {
		select {
		case m.outReady <- struct{}{}:
		default:
		}
	}
	return nil
}

func (m *WatermillMessenger) Status(env *Envelope) Status {
	return env.CurrentStatus()
}

func (m *WatermillMessenger) usableLocked() error {
	switch {
	case m.stopped:
		return errStopped
	case m.service == "":
		return errNotConnected
	case m.failure != nil:
		return m.failure
	}
	return nil
}

func (m *WatermillMessenger) publishLoop(ctx context.Context, pub message.Publisher) {
	defer m.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.outReady:
		}

		m.mu.Lock()
		batch := m.outbox
		m.outbox = nil
		m.mu.Unlock()

		for _, env := range batch {
			if ctx.Err() != nil {
				return
			}
			msg, err := m.encode(env)
			if err == nil {
				err = pub.Publish(m.topic, msg)
			}
			if err != nil {
				m.mu.Lock()
				m.lastErr = err
				m.mu.Unlock()
				m.logger.Error("Failed to publish message", err, logging.LogFields{"topic": env.Topic, "message_id": env.ID})
				env.SetStatus(StatusFailed, err)
				continue
			}
			m.logger.Trace("Message published", logging.LogFields{"topic": env.Topic, "message_id": env.ID})
			env.SetStatus(StatusSettled, nil)
		}
	}
}

func (m *WatermillMessenger) encode(env *Envelope) (*message.Message, error) {
	md := metadata.New(
		metadata.KeyTopic, env.Topic,
		metadata.KeyContentType, env.ContentType,
		metadata.KeyQoS, strconv.Itoa(env.QoS),
	).WithTTL(env.TTL).WithProperties(env.Properties)

	if len(env.Annotations) > 0 {
		raw, err := jsoncodec.Marshal(env.Annotations)
		if err != nil {
			return nil, fmt.Errorf("encode annotations: %w", err)
		}
		md = md.With(metadata.KeyAnnotations, string(raw))
	}

	msg := message.NewMessage(env.ID, env.Body)
	metadata.Attach(msg, md)
	return msg, nil
}

func (m *WatermillMessenger) Subscribe(address string, opts LinkOptions) error {
	parsed, err := ParseLinkAddress(address)
	if err != nil {
		return err
	}
	if opts.Credit <= 0 {
		return fmt.Errorf("link credit must be positive, got %d", opts.Credit)
	}

	m.mu.Lock()
	if err := m.usableLocked(); err != nil {
		m.mu.Unlock()
		return err
	}
	if _, exists := m.links[address]; exists {
		m.mu.Unlock()
		return fmt.Errorf("link %s is already open", address)
	}
	parent := m.ctx
	newSubscriber := m.tr.NewSubscriber
	m.mu.Unlock()

	group := linkGroup(parsed.Share, m.session.ClientID)
	sub, err := newSubscriber(group)
	if err != nil {
		m.recordError(err)
		return err
	}

	linkCtx, cancel := context.WithCancel(parent)
	messages, err := sub.Subscribe(linkCtx, m.topic)
	if err != nil {
		cancel()
		_ = sub.Close()
		m.recordError(err)
		return err
	}

	l := &link{
		address:   address,
		service:   parsed.Service,
		pattern:   parsed.Pattern,
		qos:       opts.QoS,
		sub:       sub,
		cancel:    cancel,
		tokens:    make(chan struct{}, opts.Credit),
		done:      make(chan struct{}),
		unsettled: make(map[*message.Message]struct{}),
	}
	for i := 0; i < opts.Credit; i++ {
		l.tokens <- struct{}{}
	}

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		cancel()
		_ = sub.Close()
		return errStopped
	}
	m.links[address] = l
	m.wg.Add(1)
	go m.pump(linkCtx, l, messages)
	m.mu.Unlock()

	m.logger.Debug("Link opened", logging.LogFields{"address": address, "group": group, "credit": opts.Credit})
	return nil
}

func (m *WatermillMessenger) recordError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

// pump moves messages from the link subscriber into the inbox, one credit
// token per matching message.
func (m *WatermillMessenger) pump(ctx context.Context, l *link, messages <-chan *message.Message) {
	defer m.wg.Done()
	defer close(l.done)

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.tokens:
		}

		for delivered := false; !delivered; {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					if ctx.Err() == nil {
						m.fail(fmt.Errorf("link %s closed by transport", l.address))
					}
					return
				}
				delivered = m.deliver(l, msg)
			}
		}
	}
}

func (m *WatermillMessenger) deliver(l *link, msg *message.Message) bool {
	md := metadata.Extract(msg)
	msgTopic := md[metadata.KeyTopic]
	if !topic.Match(l.pattern, msgTopic) {
		msg.Ack()
		return false
	}

	d := &RawDelivery{
		LinkAddress: l.address,
		Address:     l.service + "/" + msgTopic,
		Body:        msg.Payload,
		ContentType: md[metadata.KeyContentType],
		TTL:         md.TTL(),
		Properties:  md.Properties(),
		msg:         msg,
	}
	if raw := md[metadata.KeyAnnotations]; raw != "" {
		if err := jsoncodec.Unmarshal([]byte(raw), &d.Annotations); err != nil {
			m.logger.Error("Failed to decode annotations", err, logging.LogFields{"address": l.address})
		}
	}
	if l.qos == 0 {
		msg.Ack()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped || m.links[l.address] != l {
		msg.Nack()
		return true
	}
	if l.qos != 0 {
		l.unsettled[msg] = struct{}{}
	}
	m.inbox = append(m.inbox, d)
	return true
}

func (m *WatermillMessenger) fail(err error) {
	m.mu.Lock()
	if m.failure == nil {
		m.failure = err
	}
	m.lastErr = err
	m.mu.Unlock()
	m.logger.Error("Messenger failed", err, nil)
}

func (m *WatermillMessenger) Receive(limit int) []*RawDelivery {
	m.mu.Lock()
	defer m.mu.Unlock()

	if limit <= 0 || len(m.inbox) == 0 {
		return nil
	}
	if limit > len(m.inbox) {
		limit = len(m.inbox)
	}
	out := make([]*RawDelivery, limit)
	copy(out, m.inbox[:limit])
	m.inbox = append(m.inbox[:0], m.inbox[limit:]...)
	return out
}

func (m *WatermillMessenger) Unsubscribe(address string) error {
	m.mu.Lock()
	l, ok := m.links[address]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("no link open for %s", address)
	}
	delete(m.links, address)
	m.releaseLocked([]*link{l})
	m.mu.Unlock()

	l.cancel()
	<-l.done
	m.logger.Debug("Link closed", logging.LogFields{"address": address})
	return l.sub.Close()
}

// releaseLocked nacks everything the links still hold and drops their queued
// deliveries from the inbox.
func (m *WatermillMessenger) releaseLocked(links []*link) {
	if len(links) == 0 {
		return
	}
	closing := make(map[string]struct{}, len(links))
	for _, l := range links {
		closing[l.address] = struct{}{}
		l.cancel()
		for msg := range l.unsettled {
			msg.Nack()
		}
		l.unsettled = map[*message.Message]struct{}{}
	}

	kept := m.inbox[:0]
	for _, d := range m.inbox {
		if _, drop := closing[d.LinkAddress]; !drop {
			kept = append(kept, d)
		}
	}
	m.inbox = kept
}

func (m *WatermillMessenger) Flow(address string, credit int) {
	m.mu.Lock()
	l, ok := m.links[address]
	m.mu.Unlock()
	if !ok {
		return
	}
	for i := 0; i < credit; i++ {
		select {
		case l.tokens <- struct{}{}:
		default:
			return
		}
	}
}

func (m *WatermillMessenger) Accept(d *RawDelivery) error {
	if d == nil || d.msg == nil {
		return errors.New("delivery was not received by this messenger")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if l, ok := m.links[d.LinkAddress]; ok {
		delete(l.unsettled, d.msg)
	}
	d.msg.Ack()
	return nil
}

// Settle releases the delivery. A QoS 1 delivery that was not accepted is
// nacked so the backend can redeliver it.
func (m *WatermillMessenger) Settle(d *RawDelivery) error {
	if d == nil || d.msg == nil {
		return errors.New("delivery was not received by this messenger")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if l, ok := m.links[d.LinkAddress]; ok {
		if _, pending := l.unsettled[d.msg]; pending {
			delete(l.unsettled, d.msg)
			d.msg.Nack()
		}
	}
	return nil
}

func (m *WatermillMessenger) LastErrorText() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastErr == nil {
		return ""
	}
	return m.lastErr.Error()
}

func (m *WatermillMessenger) RemoteIdleTimeout(string) time.Duration {
	return m.idle
}

func (m *WatermillMessenger) Work(timeout time.Duration) error {
	m.mu.Lock()
	ctx := m.ctx
	failure := m.failure
	m.mu.Unlock()

	if failure != nil || timeout <= 0 || ctx == nil {
		return failure
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failure
}

// linkGroup names the consumer group for a link. Shared links with the same
// name compete; private links get a unique group.
func linkGroup(share, clientID string) string {
	if share != "" {
		return "share-" + sanitizeGroup(share)
	}
	return "private-" + sanitizeGroup(clientID) + "-" + ids.CreateULID()
}

func sanitizeGroup(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}
