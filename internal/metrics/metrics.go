// Package metrics counts indexing work in a private prometheus registry.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "macroindex"

// Metrics holds the run's collectors. The zero value is not usable; a nil
// *Metrics discards observations.
type Metrics struct {
	reg *prometheus.Registry

	units           *prometheus.CounterVec
	unitDuration    prometheus.Histogram
	symbols         prometheus.Counter
	occurrences     prometheus.Counter
	usedDefines     prometheus.Counter
	includeFailures prometheus.Counter
	filesEntered    prometheus.Counter
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		units: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "units_total",
			Help:      "Translation units processed, by status.",
		}, []string{"status"}),
		unitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "unit_duration_seconds",
			Help:      "Time to preprocess and collect one translation unit.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		symbols: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "symbols_total",
			Help:      "Macro symbol entries collected.",
		}),
		occurrences: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "occurrences_total",
			Help:      "Macro occurrences collected.",
		}),
		usedDefines: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "used_defines_total",
			Help:      "Used defines after finalization.",
		}),
		includeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "include_failures_total",
			Help:      "Includes that could not be resolved.",
		}),
		filesEntered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_entered_total",
			Help:      "Files walked by the preprocessor.",
		}),
	}
	m.reg.MustRegister(m.units, m.unitDuration, m.symbols, m.occurrences,
		m.usedDefines, m.includeFailures, m.filesEntered)
	return m
}

// UnitSample is what one translation unit contributed.
type UnitSample struct {
	Status          string
	Duration        time.Duration
	Symbols         int
	Occurrences     int
	UsedDefines     int
	IncludeFailures int
	FilesEntered    int
}

// ObserveUnit records one translation unit.
func (m *Metrics) ObserveUnit(s UnitSample) {
	if m == nil {
		return
	}
	m.units.WithLabelValues(s.Status).Inc()
	if s.Duration > 0 {
		m.unitDuration.Observe(s.Duration.Seconds())
	}
	m.symbols.Add(float64(s.Symbols))
	m.occurrences.Add(float64(s.Occurrences))
	m.usedDefines.Add(float64(s.UsedDefines))
	m.includeFailures.Add(float64(s.IncludeFailures))
	m.filesEntered.Add(float64(s.FilesEntered))
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// WriteTextfile writes all metrics in the text exposition format, for the
// node exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.reg); err != nil {
		return fmt.Errorf("writing metrics: %w", err)
	}
	return nil
}
