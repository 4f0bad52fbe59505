// Package metrics holds the prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the bot's counters. A nil *Metrics is valid and records
// nothing, so components can be built without a registry in tests.
type Metrics struct {
	deliveries  *prometheus.CounterVec
	uploads     prometheus.Counter
	scheduled   prometheus.Counter
	fired       prometheus.Counter
	deleteFails prometheus.Counter
	broadcast   *prometheus.CounterVec
	updates     *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		deliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "codegate_deliveries_total",
				Help: "Delivery attempts by outcome.",
			},
			[]string{"outcome"},
		),
		uploads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "codegate_uploads_total",
			Help: "Artifacts committed to the catalog.",
		}),
		scheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "codegate_obligations_scheduled_total",
			Help: "Deletion obligations persisted.",
		}),
		fired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "codegate_obligations_fired_total",
			Help: "Deletion obligations claimed and executed.",
		}),
		deleteFails: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "codegate_message_delete_failures_total",
			Help: "Message deletions rejected by the transport.",
		}),
		broadcast: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "codegate_broadcast_messages_total",
				Help: "Broadcast sends by result.",
			},
			[]string{"result"},
		),
		updates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "codegate_updates_total",
				Help: "Inbound updates by event kind.",
			},
			[]string{"kind"},
		),
	}
	for _, c := range []prometheus.Collector{m.deliveries, m.uploads, m.scheduled, m.fired, m.deleteFails, m.broadcast, m.updates} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Delivery counts one delivery attempt.
func (m *Metrics) Delivery(outcome string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(outcome).Inc()
}

// Upload counts one committed artifact.
func (m *Metrics) Upload() {
	if m == nil {
		return
	}
	m.uploads.Inc()
}

// Scheduled counts one persisted obligation.
func (m *Metrics) Scheduled() {
	if m == nil {
		return
	}
	m.scheduled.Inc()
}

// Fired counts one claimed obligation.
func (m *Metrics) Fired() {
	if m == nil {
		return
	}
	m.fired.Inc()
}

// DeleteFailed counts one failed message deletion.
func (m *Metrics) DeleteFailed() {
	if m == nil {
		return
	}
	m.deleteFails.Inc()
}

// Broadcast adds the result of one broadcast run.
func (m *Metrics) Broadcast(sent, failed int) {
	if m == nil {
		return
	}
	m.broadcast.WithLabelValues("sent").Add(float64(sent))
	m.broadcast.WithLabelValues("failed").Add(float64(failed))
}

// Update counts one inbound update.
func (m *Metrics) Update(kind string) {
	if m == nil {
		return
	}
	m.updates.WithLabelValues(kind).Inc()
}
