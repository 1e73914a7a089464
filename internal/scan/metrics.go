package scan

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// metrics are the optional Prometheus collectors of one scan.
type metrics struct {
	rounds     prometheus.Counter
	duration   prometheus.Observer
	remaining  prometheus.Gauge
	reductions prometheus.Counter
	removed    prometheus.Counter
}

// register adds c to reg, reusing an identical collector registered by an
// earlier scan.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func newMetrics(reg prometheus.Registerer, experiment string) (*metrics, error) {
	if reg == nil {
		return nil, nil
	}
	labels := prometheus.Labels{"experiment": experiment}
	m := &metrics{}
	var err error
	if m.rounds, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "hyperscan_rounds_total",
		Help:        "Completed scan rounds.",
		ConstLabels: labels,
	})); err != nil {
		return nil, err
	}
	hist, err := register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "hyperscan_round_duration_seconds",
		Help:        "Wall time spent in the training function per round.",
		ConstLabels: labels,
		Buckets:     prometheus.ExponentialBuckets(0.01, 4, 10),
	}))
	if err != nil {
		return nil, err
	}
	m.duration = hist
	if m.remaining, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "hyperscan_remaining_configurations",
		Help:        "Configurations left in the remaining index.",
		ConstLabels: labels,
	})); err != nil {
		return nil, err
	}
	if m.reductions, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "hyperscan_reductions_total",
		Help:        "Parameter values dropped by the reducer.",
		ConstLabels: labels,
	})); err != nil {
		return nil, err
	}
	if m.removed, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "hyperscan_removed_configurations_total",
		Help:        "Configurations removed from the remaining index by reductions.",
		ConstLabels: labels,
	})); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *metrics) round(d time.Duration, remaining int) {
	if m == nil {
		return
	}
	m.rounds.Inc()
	m.duration.Observe(d.Seconds())
	m.remaining.Set(float64(remaining))
}

func (m *metrics) reduction(decisions, removed, remaining int) {
	if m == nil {
		return
	}
	m.reductions.Add(float64(decisions))
	m.removed.Add(float64(removed))
	m.remaining.Set(float64(remaining))
}
