package client

import (
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the counters the engine increments at the points described
// alongside the transport and FSM code. They are wired independently of
// whether the HTTP exporter is enabled, so tests can assert on them
// directly without starting a listener.
type Metrics struct {
	messagesSent       *prometheus.CounterVec // by message type
	messagesReceived   *prometheus.CounterVec // by message type
	retransmissions    prometheus.Counter
	duplicatesDropped  prometheus.Counter
	confirmationsSent  prometheus.Counter
}

// NewMetrics registers a fresh set of counters against the default
// Prometheus registry.
func NewMetrics() *Metrics {
	return &Metrics{
		messagesSent: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ipk24chat_client_messages_sent_total",
				Help: "Total number of messages sent, by message type.",
			},
			[]string{"type"},
		),
		messagesReceived: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ipk24chat_client_messages_received_total",
				Help: "Total number of messages received, by message type.",
			},
			[]string{"type"},
		),
		retransmissions: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "ipk24chat_client_retransmissions_total",
				Help: "Total number of UDP retransmissions triggered by a receive timeout.",
			},
		),
		duplicatesDropped: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "ipk24chat_client_duplicates_dropped_total",
				Help: "Total number of UDP messages dropped as already-seen duplicates.",
			},
		),
		confirmationsSent: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "ipk24chat_client_confirmations_sent_total",
				Help: "Total number of CONFIRM messages emitted for inbound UDP traffic.",
			},
		),
	}
}

func (m *Metrics) RecordSent(msgType string) {
	m.messagesSent.WithLabelValues(msgType).Inc()
}

func (m *Metrics) RecordReceived(msgType string) {
	m.messagesReceived.WithLabelValues(msgType).Inc()
}

func (m *Metrics) RecordRetransmission() {
	m.retransmissions.Inc()
}

func (m *Metrics) RecordDuplicateDropped() {
	m.duplicatesDropped.Inc()
}

func (m *Metrics) RecordConfirmationSent() {
	m.confirmationsSent.Inc()
}

// ServeMetrics starts the Prometheus /metrics HTTP handler on addr in its
// own goroutine. It never touches the engine's queues, sockets or FSM
// state: the registered counters are the only thing it reads, and
// promauto's registrations are safe for concurrent scraping.
func ServeMetrics(addr string) {
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Printf("metrics server error: %v", err)
		}
	}()
}
