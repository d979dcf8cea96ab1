package triage

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the triage engine.
type Metrics struct {
	IngestsTotal       *prometheus.CounterVec
	AlertsCreated      *prometheus.CounterVec
	EscalationsTotal   *prometheus.CounterVec
	StaffActions       *prometheus.CounterVec
	NotificationsTotal *prometheus.CounterVec
	NotifyQueueDrops   prometheus.Counter
}

// NewMetrics registers and returns triage metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		IngestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roomcompanion_ingests_total",
			Help: "Total event ingestions by outcome.",
		}, []string{"outcome"}),
		AlertsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roomcompanion_alerts_created_total",
			Help: "Total alerts created by severity.",
		}, []string{"severity"}),
		EscalationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roomcompanion_escalations_total",
			Help: "Total alert escalations by severity.",
		}, []string{"severity"}),
		StaffActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roomcompanion_staff_actions_total",
			Help: "Total staff lifecycle actions by action and outcome.",
		}, []string{"action", "outcome"}),
		NotificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roomcompanion_notifications_total",
			Help: "Total notification deliveries by channel and outcome.",
		}, []string{"channel", "outcome"}),
		NotifyQueueDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roomcompanion_notify_queue_drops_total",
			Help: "Notifications dropped because the dispatch queue was full.",
		}),
	}

	reg.MustRegister(
		m.IngestsTotal,
		m.AlertsCreated,
		m.EscalationsTotal,
		m.StaffActions,
		m.NotificationsTotal,
		m.NotifyQueueDrops,
	)

	return m
}

// NotifyObserver adapts the notification counters for the notify router,
// which must not import prometheus directly.
func (m *Metrics) NotifyObserver() func(channel string, err error) {
	return func(channel string, err error) {
		outcome := "success"
		if err != nil {
			outcome = "error"
		}
		m.NotificationsTotal.WithLabelValues(channel, outcome).Inc()
	}
}

// QueueDropObserver counts dropped notifications.
func (m *Metrics) QueueDropObserver() func() {
	return m.NotifyQueueDrops.Inc
}
