//
//  Copyright © Manetu Inc. All rights reserved.
//

package core

import (
	"errors"
	"time"

	"github.com/manetu/dataguard/pkg/core/types"
	"github.com/manetu/dataguard/pkg/policydomain/registry"
	"github.com/prometheus/client_golang/prometheus"
)

// metrics holds the engine's collectors.
type metrics struct {
	decisions *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	invalid   prometheus.Counter
	reloads   *prometheus.CounterVec
	version   prometheus.Gauge
	policies  prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dataguard_decisions_total",
			Help: "Access decisions by service and outcome.",
		}, []string{"service", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dataguard_decision_duration_seconds",
			Help:    "Time to reach a decision.",
			Buckets: []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05},
		}, []string{"service"}),
		invalid: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dataguard_invalid_requests_total",
			Help: "Requests rejected before evaluation.",
		}),
		reloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dataguard_policy_reloads_total",
			Help: "Policy reload attempts by result.",
		}, []string{"result"}),
		version: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dataguard_snapshot_version",
			Help: "Version of the active policy snapshot.",
		}),
		policies: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dataguard_snapshot_policies",
			Help: "Policies in the active snapshot.",
		}),
	}

	for _, c := range []prometheus.Collector{m.decisions, m.latency, m.invalid, m.reloads, m.version, m.policies} {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				return nil, err
			}
			// a second engine in the same process shares the first one's series
			switch c {
			case m.decisions:
				m.decisions = already.ExistingCollector.(*prometheus.CounterVec)
			case m.latency:
				m.latency = already.ExistingCollector.(*prometheus.HistogramVec)
			case m.invalid:
				m.invalid = already.ExistingCollector.(prometheus.Counter)
			case m.reloads:
				m.reloads = already.ExistingCollector.(*prometheus.CounterVec)
			case m.version:
				m.version = already.ExistingCollector.(prometheus.Gauge)
			case m.policies:
				m.policies = already.ExistingCollector.(prometheus.Gauge)
			}
		}
	}
	return m, nil
}

func (m *metrics) observeDecision(service string, outcome types.Outcome, elapsed time.Duration) {
	m.decisions.WithLabelValues(service, string(outcome)).Inc()
	m.latency.WithLabelValues(service).Observe(elapsed.Seconds())
}

func (m *metrics) observeInvalid() {
	m.invalid.Inc()
}

// observeReload is registered as a reload observer.
func (m *metrics) observeReload(snap *registry.Snapshot, err error) {
	if err != nil {
		m.reloads.WithLabelValues("failure").Inc()
		return
	}
	m.reloads.WithLabelValues("success").Inc()
	m.observeSnapshot(snap)
}

func (m *metrics) observeSnapshot(snap *registry.Snapshot) {
	if snap == nil {
		return
	}
	m.version.Set(float64(snap.Version))
	m.policies.Set(float64(snap.PolicyCount()))
}
