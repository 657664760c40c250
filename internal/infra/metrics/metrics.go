// Package metrics exposes prometheus collectors for report delivery.
package metrics

import (
	"attendpro/internal/domain/notification"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collectors implements app.DispatchMetrics and app.TickMetrics.
type Collectors struct {
	dispatches *prometheus.CounterVec
	ticks      *prometheus.CounterVec
	relay      *prometheus.CounterVec
}

// New registers the collectors on reg. Pass prometheus.DefaultRegisterer in production.
func New(reg prometheus.Registerer) *Collectors {
	f := promauto.With(reg)
	return &Collectors{
		dispatches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attendpro",
			Name:      "report_dispatches_total",
			Help:      "Report dispatch attempts by source and outcome.",
		}, []string{"source", "outcome"}),
		ticks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attendpro",
			Name:      "report_poll_ticks_total",
			Help:      "Auto-report poller ticks by mode and outcome.",
		}, []string{"mode", "outcome"}),
		relay: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attendpro",
			Name:      "relay_requests_total",
			Help:      "Relay endpoint requests by HTTP status.",
		}, []string{"status"}),
	}
}

func (c *Collectors) DispatchOutcome(source notification.Source, outcome string) {
	c.dispatches.WithLabelValues(string(source), outcome).Inc()
}

func (c *Collectors) PollTick(mode, outcome string) {
	c.ticks.WithLabelValues(mode, outcome).Inc()
}

func (c *Collectors) RelayRequest(status string) {
	c.relay.WithLabelValues(status).Inc()
}
