package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"SignalEngine/internal/domain/models"
)

const namespace = "signal_engine"

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	signals     *prometheus.CounterVec
	rejections  *prometheus.CounterVec
	consensus   *prometheus.HistogramVec
	positionEvt *prometheus.CounterVec
	errorsTotal *prometheus.CounterVec
	lastPrice   *prometheus.GaugeVec
	latency     *prometheus.HistogramVec
}

// New creates a recorder registered with the default registry. Call it once.
func New() *Recorder {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the collectors with reg.
func NewWith(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		signals: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "signals_total",
				Help:      "Accepted signals by symbol and direction",
			},
			[]string{"symbol", "direction"},
		),
		rejections: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rejections_total",
				Help:      "Candidates dropped by quality gate stage",
			},
			[]string{"stage"},
		),
		consensus: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "consensus_confidence",
				Help:      "Final consensus confidence per symbol",
				Buckets:   prometheus.LinearBuckets(0, 10, 11),
			},
			[]string{"symbol"},
		),
		positionEvt: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "position_events_total",
				Help:      "Position lifecycle events by kind",
			},
			[]string{"kind"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_price",
				Help:      "Last recorded price for a symbol",
			},
			[]string{"symbol"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of operations in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordSignal(symbol string, dir models.Direction) {
	r.signals.WithLabelValues(symbol, string(dir)).Inc()
}

func (r *Recorder) RecordRejection(stage string) {
	r.rejections.WithLabelValues(stage).Inc()
}

func (r *Recorder) RecordConsensus(symbol string, confidence float64) {
	r.consensus.WithLabelValues(symbol).Observe(confidence)
}

func (r *Recorder) RecordPositionEvent(kind string) {
	r.positionEvt.WithLabelValues(kind).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// Nop discards everything. Handy in tests and tools.
type Nop struct{}

func (Nop) RecordSignal(string, models.Direction) {}
func (Nop) RecordRejection(string)                {}
func (Nop) RecordConsensus(string, float64)       {}
func (Nop) RecordPositionEvent(string)            {}
func (Nop) RecordError(string)                    {}
func (Nop) RecordLastPrice(string, float64)       {}
func (Nop) RecordLatency(string, float64)         {}
