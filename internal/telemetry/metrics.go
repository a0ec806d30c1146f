package telemetry

import (
	"github.com/bassista/go_syncstore/internal/syncstore"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	MetricFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syncstore_failures_total",
			Help: "Number of failures recovered by synchronized stores",
		},
		[]string{"kind"},
	)
	MetricWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syncstore_writes_total",
			Help: "Number of write-through attempts to storage",
		},
		[]string{"result"},
	)
	MetricHydrations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syncstore_hydrations_total",
			Help: "Number of hydrations from storage",
		},
		[]string{"source"},
	)
	MetricActiveStores = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "syncstore_active_stores",
			Help: "Number of stores currently listening for external changes",
		},
	)
)

// Register adds the syncstore metrics to reg.
func Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{MetricFailures, MetricWrites, MetricHydrations, MetricActiveStores} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// Metrics counts store failures and lifecycle events.
// It implements both syncstore.Reporter and syncstore.Observer.
type Metrics struct{}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) Report(f *syncstore.Failure) {
	MetricFailures.WithLabelValues(string(f.Kind)).Inc()
}

func (m *Metrics) Hydrated(_ string, source syncstore.Source) {
	MetricHydrations.WithLabelValues(string(source)).Inc()
}

func (m *Metrics) Persisted(_ string, err error) {
	if err != nil {
		MetricWrites.WithLabelValues("error").Inc()
		return
	}
	MetricWrites.WithLabelValues("ok").Inc()
}

func (m *Metrics) ActiveChanged(_ string, active bool) {
	if active {
		MetricActiveStores.Inc()
		return
	}
	MetricActiveStores.Dec()
}
