package report

import (
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors of one run, registered on a private registry
type Metrics struct {
	registry      *prometheus.Registry
	cases         *prometheus.CounterVec
	caseDuration  prometheus.Histogram
	cycleDuration *prometheus.GaugeVec
	runDuration   prometheus.Gauge
	cycles        prometheus.Gauge
}

// NewMetrics creates the run collectors
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		cases: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sqlcycle",
				Name:      "cases_total",
				Help:      "Evaluated test cases by cycle and result",
			},
			[]string{"cycle", "result"},
		),
		caseDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "sqlcycle",
				Name:      "case_duration_seconds",
				Help:      "Time spent executing one test case",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
			},
		),
		cycleDuration: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "sqlcycle",
				Name:      "cycle_duration_seconds",
				Help:      "Wall time of one cycle",
			},
			[]string{"cycle"},
		),
		runDuration: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "sqlcycle",
				Name:      "run_duration_seconds",
				Help:      "Wall time of the test phase",
			},
		),
		cycles: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "sqlcycle",
				Name:      "cycles",
				Help:      "Number of completed cycles",
			},
		),
	}
}

// Observe records a finished run
func (m *Metrics) Observe(run *RunResult) {
	for _, cycle := range run.Cycles {
		label := strconv.Itoa(cycle.Cycle)

		for _, cr := range cycle.Cases {
			result := "failed"
			if cr.Passed {
				result = "passed"
			}

			m.cases.WithLabelValues(label, result).Inc()
			m.caseDuration.Observe(cr.Elapsed.Seconds())
		}

		m.cycleDuration.WithLabelValues(label).Set(cycle.Elapsed.Seconds())
	}

	m.runDuration.Set(run.Elapsed.Seconds())
	m.cycles.Set(float64(len(run.Cycles)))
}

// Registry exposes the registry for gathering
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteMetrics writes the metrics of run to path in the text exposition format
func WriteMetrics(path string, run *RunResult) error {
	m := NewMetrics()
	m.Observe(run)

	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}

	return nil
}
