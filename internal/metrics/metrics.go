// Package metrics defines the Prometheus collectors exported on /metrics.
// They are registered with controller-runtime's global registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	ctrlmetrics "sigs.k8s.io/controller-runtime/pkg/metrics"
)

const namespace = "dyndns_switch"

var (
	HostReachable = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "host_reachable",
		Help:      "Whether the last probe of a host succeeded (1) or not (0).",
	}, []string{"host"})

	ProbesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "probes_total",
		Help:      "Completed host probes by result.",
	}, []string{"host", "result"})

	ProbeDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "probe_duration_seconds",
		Help:      "Duration of host probes.",
		Buckets:   []float64{0.5, 1, 2, 3, 4, 5, 8, 10, 15, 30},
	}, []string{"host"})

	RefreshTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "refresh_total",
		Help:      "Subdomain refresh cycles by result.",
	}, []string{"result"})

	LastRefreshSuccess = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_refresh_success_timestamp_seconds",
		Help:      "Unix time of the last successful subdomain refresh.",
	})

	MovesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "moves_total",
		Help:      "Subdomain moves by target host and result.",
	}, []string{"to", "result"})
)

func init() {
	ctrlmetrics.Registry.MustRegister(
		HostReachable,
		ProbesTotal,
		ProbeDuration,
		RefreshTotal,
		LastRefreshSuccess,
		MovesTotal,
	)
}

// Result maps an outcome to the "result" label value.
func Result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// BoolValue converts a flag to a gauge value.
func BoolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
