package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	ProviderLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "signal_engine",
			Subsystem: "ai",
			Name:      "latency_seconds",
			Help:      "Latency of opinion provider calls",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	ProviderFallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "signal_engine",
			Subsystem: "ai",
			Name:      "fallbacks_total",
			Help:      "Neutral opinions substituted per provider and cause",
		},
		[]string{"provider", "cause"},
	)
)

// Register adds the provider collectors to the default registry once.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(ProviderLatency, ProviderFallbacks)
	})
}
