package runtime

import (
	"errors"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// ClientMetrics exposes Prometheus collectors for client activity. A nil
// *ClientMetrics records nothing.
type ClientMetrics struct {
	mu sync.Mutex

	messagesSent     *prometheus.CounterVec
	sendFailures     prometheus.Counter
	deliveries       *prometheus.CounterVec
	confirms         prometheus.Counter
	stateTransitions *prometheus.CounterVec
	linkCredit       *prometheus.GaugeVec

	registerer prometheus.Registerer
	registered bool
}

func newClientCounterVec(name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lightmq",
			Subsystem: "client",
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

func newClientCounter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "lightmq",
		Subsystem: "client",
		Name:      name,
		Help:      help,
	})
}

// NewClientMetrics creates the collectors. A nil registerer means the default
// Prometheus registerer.
func NewClientMetrics(registerer prometheus.Registerer) *ClientMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &ClientMetrics{
		registerer:       registerer,
		messagesSent:     newClientCounterVec("messages_sent_total", "Messages handed to the transport engine", []string{"qos"}),
		sendFailures:     newClientCounter("send_failures_total", "Sends that failed in the transport engine"),
		deliveries:       newClientCounterVec("deliveries_total", "Deliveries dispatched to listeners", []string{"kind"}),
		confirms:         newClientCounter("confirms_total", "Manual delivery confirmations"),
		stateTransitions: newClientCounterVec("state_transitions_total", "Client lifecycle state transitions", []string{"state"}),
		linkCredit: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "lightmq",
				Subsystem: "client",
				Name:      "link_credit",
				Help:      "Available link credit per subscription pattern",
			},
			[]string{"pattern"},
		),
	}
}

// Register registers the Prometheus collectors. Safe to call multiple times.
func (m *ClientMetrics) Register() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	collectors := []prometheus.Collector{
		m.messagesSent,
		m.sendFailures,
		m.deliveries,
		m.confirms,
		m.stateTransitions,
		m.linkCredit,
	}

	for _, c := range collectors {
		if err := m.registerer.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				return err
			}
		}
	}

	m.registered = true
	return nil
}

func (m *ClientMetrics) recordSent(qos int) {
	if m == nil {
		return
	}
	m.messagesSent.WithLabelValues(strconv.Itoa(qos)).Inc()
}

func (m *ClientMetrics) recordSendFailure() {
	if m == nil {
		return
	}
	m.sendFailures.Inc()
}

func (m *ClientMetrics) recordDelivery(kind string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(kind).Inc()
}

func (m *ClientMetrics) recordConfirm() {
	if m == nil {
		return
	}
	m.confirms.Inc()
}

func (m *ClientMetrics) recordState(s State) {
	if m == nil {
		return
	}
	m.stateTransitions.WithLabelValues(string(s)).Inc()
}

func (m *ClientMetrics) setLinkCredit(pattern string, available int) {
	if m == nil {
		return
	}
	m.linkCredit.WithLabelValues(pattern).Set(float64(available))
}

func (m *ClientMetrics) deleteLinkCredit(pattern string) {
	if m == nil {
		return
	}
	m.linkCredit.DeleteLabelValues(pattern)
}

// Reset clears every collector (useful for testing).
func (m *ClientMetrics) Reset() {
	m.messagesSent.Reset()
	m.deliveries.Reset()
	m.stateTransitions.Reset()
	m.linkCredit.Reset()
}
