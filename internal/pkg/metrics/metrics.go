// Package metrics exports tracking engine activity to Prometheus.
package metrics

import (
	"errors"
	"fmt"
	"net/http"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jcmexdev/multihop-creator/internal/core/entity"
	"github.com/jcmexdev/multihop-creator/internal/tracking"
)

const namespace = "creator"

// Collector implements tracking.Observer on top of Prometheus metrics.
type Collector struct {
	registry *promclient.Registry

	sessionsActive      promclient.Gauge
	sessionsTotal       *promclient.CounterVec
	stepTransitions     *promclient.CounterVec
	notificationsTotal  *promclient.CounterVec
	outputFallbacks     promclient.Counter
	subscriptionsActive promclient.Gauge
}

var _ tracking.Observer = (*Collector)(nil)

// New registers the collector and the Go runtime collectors on a fresh registry.
func New() (*Collector, error) {
	c := &Collector{
		registry: promclient.NewRegistry(),
		sessionsActive: promclient.NewGauge(promclient.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Tracking sessions currently open.",
		}),
		sessionsTotal: promclient.NewCounterVec(promclient.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Closed tracking sessions by outcome.",
		}, []string{"outcome"}),
		stepTransitions: promclient.NewCounterVec(promclient.CounterOpts{
			Namespace: namespace,
			Name:      "step_transitions_total",
			Help:      "Step status transitions applied.",
		}, []string{"status"}),
		notificationsTotal: promclient.NewCounterVec(promclient.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Registry notifications by kind and how they were handled.",
		}, []string{"kind", "outcome"}),
		outputFallbacks: promclient.NewCounter(promclient.CounterOpts{
			Namespace: namespace,
			Name:      "output_fallbacks_total",
			Help:      "Completed steps recorded with a placeholder output.",
		}),
		subscriptionsActive: promclient.NewGauge(promclient.GaugeOpts{
			Namespace: namespace,
			Name:      "subscriptions_active",
			Help:      "1 while the shared notification subscriptions run.",
		}),
	}

	cs := []promclient.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.sessionsActive,
		c.sessionsTotal,
		c.stepTransitions,
		c.notificationsTotal,
		c.outputFallbacks,
		c.subscriptionsActive,
	}
	for _, col := range cs {
		if err := c.registry.Register(col); err != nil {
			var are promclient.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return nil, fmt.Errorf("metrics: register: %w", err)
		}
	}
	return c, nil
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Collector) SessionOpened(string) {
	c.sessionsActive.Inc()
}

func (c *Collector) SessionSubmitted(string, string) {}

func (c *Collector) StepAdvanced(_ string, _ int, status tracking.StepStatus) {
	c.stepTransitions.WithLabelValues(status.String()).Inc()
}

func (c *Collector) NotificationHandled(kind entity.NotificationKind, outcome tracking.NotificationOutcome) {
	c.notificationsTotal.WithLabelValues(string(kind), string(outcome)).Inc()
}

func (c *Collector) OutputFallback(string, int, error) {
	c.outputFallbacks.Inc()
}

func (c *Collector) SessionClosed(_ string, outcome tracking.Outcome) {
	c.sessionsActive.Dec()
	c.sessionsTotal.WithLabelValues(string(outcome)).Inc()
}

func (c *Collector) SubscriptionsChanged(active bool) {
	if active {
		c.subscriptionsActive.Set(1)
		return
	}
	c.subscriptionsActive.Set(0)
}
