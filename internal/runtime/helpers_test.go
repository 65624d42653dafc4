package runtime

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	configpkg "github.com/drblury/lightmq/internal/runtime/config"
	enginepkg "github.com/drblury/lightmq/internal/runtime/engine"
	loggingpkg "github.com/drblury/lightmq/internal/runtime/logging"
	looppkg "github.com/drblury/lightmq/internal/runtime/loop"
	topicpkg "github.com/drblury/lightmq/internal/runtime/topic"
)

const testService = "amqp://localhost:5672"

// fakeLink mirrors engine credit: a message only reaches the inbox while the
// link has credit, otherwise it waits in the backlog until Flow.
type fakeLink struct {
	opts    enginepkg.LinkOptions
	pattern string
	credit  int
	backlog []*enginepkg.RawDelivery
}

type fakeMessenger struct {
	mu sync.Mutex

	session enginepkg.Session
	started bool
	stopped bool
	service string
	idle    time.Duration

	connectErr     error
	putErr         error
	sendErr        error
	subscribeErr   error
	unsubscribeErr error
	workErr        error
	lastErrText    string
	holdSends      bool

	envelopes    []*enginepkg.Envelope
	links        map[string]*fakeLink
	inbox        []*enginepkg.RawDelivery
	receives     int
	accepted     int
	settled      int
	flows        int
	unsubscribed []string
	violations   []string
}

func newFakeMessenger(session enginepkg.Session) *fakeMessenger {
	return &fakeMessenger{session: session, links: make(map[string]*fakeLink)}
}

func (f *fakeMessenger) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = true
	return nil
}

func (f *fakeMessenger) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

func (f *fakeMessenger) Stopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

func (f *fakeMessenger) Connect(service string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	f.service = service
	return nil
}

func (f *fakeMessenger) Put(env *enginepkg.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return f.putErr
	}
	env.SetStatus(enginepkg.StatusPending, nil)
	f.envelopes = append(f.envelopes, env)
	return nil
}

func (f *fakeMessenger) Send() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	if !f.holdSends {
		for _, env := range f.envelopes {
			if env.CurrentStatus() == enginepkg.StatusPending {
				env.SetStatus(enginepkg.StatusSettled, nil)
			}
		}
	}
	return nil
}

func (f *fakeMessenger) Status(env *enginepkg.Envelope) enginepkg.Status {
	return env.CurrentStatus()
}

func (f *fakeMessenger) Receive(limit int) []*enginepkg.RawDelivery {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.receives++
	if limit > len(f.inbox) {
		limit = len(f.inbox)
	}
	out := append([]*enginepkg.RawDelivery(nil), f.inbox[:limit]...)
	f.inbox = f.inbox[limit:]
	return out
}

func (f *fakeMessenger) Subscribe(address string, opts enginepkg.LinkOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr != nil {
		return f.subscribeErr
	}
	parsed, err := enginepkg.ParseLinkAddress(address)
	if err != nil {
		return err
	}
	f.links[address] = &fakeLink{opts: opts, pattern: parsed.Pattern, credit: opts.Credit}
	return nil
}

func (f *fakeMessenger) Unsubscribe(address string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unsubscribeErr != nil {
		return f.unsubscribeErr
	}
	if _, ok := f.links[address]; !ok {
		return fmt.Errorf("no link for %s", address)
	}
	delete(f.links, address)
	f.unsubscribed = append(f.unsubscribed, address)
	return nil
}

func (f *fakeMessenger) Flow(address string, credit int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flows += credit
	l, ok := f.links[address]
	if !ok {
		return
	}
	l.credit += credit
	if l.credit > l.opts.Credit {
		f.violations = append(f.violations, fmt.Sprintf("%s: credit %d exceeds %d", address, l.credit, l.opts.Credit))
	}
	for l.credit > 0 && len(l.backlog) > 0 {
		l.credit--
		f.inbox = append(f.inbox, l.backlog[0])
		l.backlog = l.backlog[1:]
	}
}

func (f *fakeMessenger) Accept(*enginepkg.RawDelivery) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accepted++
	return nil
}

func (f *fakeMessenger) Settle(*enginepkg.RawDelivery) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settled++
	return nil
}

func (f *fakeMessenger) LastErrorText() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastErrText
}

func (f *fakeMessenger) RemoteIdleTimeout(string) time.Duration { return f.idle }

func (f *fakeMessenger) Work(time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.workErr
}

// publish routes a message to every link whose pattern matches topic.
func (f *fakeMessenger) publish(topic string, body []byte, contentType string, annotations ...enginepkg.Annotation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for address, l := range f.links {
		if !topicpkg.Match(l.pattern, topic) {
			continue
		}
		d := &enginepkg.RawDelivery{
			LinkAddress: address,
			Address:     f.service + "/" + topic,
			Body:        body,
			ContentType: contentType,
			Annotations: annotations,
		}
		if l.credit > 0 {
			l.credit--
			f.inbox = append(f.inbox, d)
			continue
		}
		l.backlog = append(l.backlog, d)
	}
}

func (f *fakeMessenger) inject(d *enginepkg.RawDelivery) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inbox = append(f.inbox, d)
}

func (f *fakeMessenger) completeSends(status enginepkg.Status, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, env := range f.envelopes {
		if env.CurrentStatus() == enginepkg.StatusPending {
			env.SetStatus(status, err)
		}
	}
}

func (f *fakeMessenger) set(fn func(f *fakeMessenger)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeMessenger) link(address string) (fakeLink, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.links[address]
	if !ok {
		return fakeLink{}, false
	}
	return *l, true
}

func (f *fakeMessenger) counts() (accepted, settled, flows int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.accepted, f.settled, f.flows
}

func (f *fakeMessenger) sent() []*enginepkg.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*enginepkg.Envelope(nil), f.envelopes...)
}

func (f *fakeMessenger) creditViolations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.violations...)
}

type logEntry struct {
	level  string
	msg    string
	err    error
	fields loggingpkg.LogFields
}

type captureLogger struct {
	mu      *sync.Mutex
	entries *[]logEntry
	base    loggingpkg.LogFields
}

func newCaptureLogger() *captureLogger {
	return &captureLogger{mu: &sync.Mutex{}, entries: &[]logEntry{}}
}

func (l *captureLogger) With(fields loggingpkg.LogFields) loggingpkg.ServiceLogger {
	merged := loggingpkg.LogFields{}
	for k, v := range l.base {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &captureLogger{mu: l.mu, entries: l.entries, base: merged}
}

func (l *captureLogger) record(level, msg string, err error, fields loggingpkg.LogFields) {
	merged := loggingpkg.LogFields{}
	for k, v := range l.base {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.entries = append(*l.entries, logEntry{level: level, msg: msg, err: err, fields: merged})
}

func (l *captureLogger) Debug(msg string, fields loggingpkg.LogFields) {
	l.record("debug", msg, nil, fields)
}

func (l *captureLogger) Info(msg string, fields loggingpkg.LogFields) {
	l.record("info", msg, nil, fields)
}

func (l *captureLogger) Error(msg string, err error, fields loggingpkg.LogFields) {
	l.record("error", msg, err, fields)
}

func (l *captureLogger) Trace(msg string, fields loggingpkg.LogFields) {
	l.record("trace", msg, nil, fields)
}

func (l *captureLogger) find(level, msg string) (logEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range *l.entries {
		if e.level == level && e.msg == msg {
			return e, true
		}
	}
	return logEntry{}, false
}

// harness drives a client over fake messengers on a loop stepped by the test.
type harness struct {
	t      *testing.T
	loop   *looppkg.Loop
	client *Client
	logs   *captureLogger

	mu      sync.Mutex
	engines []*fakeMessenger
	prepare func(*fakeMessenger)
}

func newHarness(t *testing.T, mods ...func(*configpkg.Config, *ClientDependencies)) *harness {
	t.Helper()
	h := &harness{t: t, loop: looppkg.New(), logs: newCaptureLogger()}
	conf := &configpkg.Config{
		Service:  []string{"amqp://localhost"},
		ClientID: "test_client",
	}
	deps := ClientDependencies{EngineFactory: h.factory, Loop: h.loop}
	for _, mod := range mods {
		mod(conf, &deps)
	}

	c, err := NewClient(conf, h.logs, deps)
	require.NoError(t, err)
	h.client = c
	t.Cleanup(h.loop.Close)
	return h
}

func (h *harness) factory(session enginepkg.Session) (enginepkg.Messenger, error) {
	fm := newFakeMessenger(session)
	h.mu.Lock()
	prepare := h.prepare
	h.engines = append(h.engines, fm)
	h.mu.Unlock()
	if prepare != nil {
		prepare(fm)
	}
	return fm, nil
}

func (h *harness) engineCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.engines)
}

func (h *harness) engine() *fakeMessenger {
	h.mu.Lock()
	defer h.mu.Unlock()
	require.NotEmpty(h.t, h.engines)
	return h.engines[len(h.engines)-1]
}

func (h *harness) drain() {
	h.loop.Drain(64)
}

func (h *harness) connect() *fakeMessenger {
	h.t.Helper()
	require.NoError(h.t, h.client.Connect(nil))
	h.drain()
	require.Equal(h.t, StateConnected, h.client.State())
	return h.engine()
}

func (h *harness) subscribe(pattern, share string, opts *SubscribeOptions) *Subscription {
	h.t.Helper()
	s, err := h.client.Subscribe(pattern, share, opts, nil)
	require.NoError(h.t, err)
	h.drain()
	return s
}

// turnUntil steps the loop until cond holds, for tests that wait on timers.
func (h *harness) turnUntil(cond func() bool) {
	h.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		h.loop.Turn()
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	h.t.Fatalf("condition not met before deadline")
}

func boolPtr(v bool) *bool { return &v }

func (f *fakeMessenger) receiveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.receives
}
