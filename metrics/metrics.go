// Package metrics exposes prometheus instrumentation for dataset loads. A
// nil *Metrics is valid and records nothing, so callers never need to guard
// instrumentation sites.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the load-path collectors, labelled by database kind.
type Metrics struct {
	RecordsDecoded    *prometheus.CounterVec
	DecodeFailures    *prometheus.CounterVec
	PartitionsRead    *prometheus.CounterVec
	PartitionFailures *prometheus.CounterVec
	LoadDuration      *prometheus.HistogramVec
}

// New builds the collectors and registers them with r.
func New(r prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		RecordsDecoded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reperio",
			Name:      "records_decoded_total",
			Help:      "Records successfully decoded, by database kind.",
		}, []string{"kind"}),
		DecodeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reperio",
			Name:      "record_decode_failures_total",
			Help:      "Records skipped because they failed to decode, by database kind.",
		}, []string{"kind"}),
		PartitionsRead: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reperio",
			Name:      "partitions_read_total",
			Help:      "Partitions opened and read, by database kind.",
		}, []string{"kind"}),
		PartitionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reperio",
			Name:      "partition_failures_total",
			Help:      "Partitions skipped because of open or read failures, by database kind.",
		}, []string{"kind"}),
		LoadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "reperio",
			Name:      "load_duration_seconds",
			Help:      "Wall-clock duration of complete dataset loads, by database kind.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"kind"}),
	}

	for _, c := range []prometheus.Collector{
		m.RecordsDecoded, m.DecodeFailures,
		m.PartitionsRead, m.PartitionFailures,
		m.LoadDuration,
	} {
		if err := r.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// RecordDecoded counts one successfully decoded record.
func (m *Metrics) RecordDecoded(kind string) {
	if m == nil {
		return
	}
	m.RecordsDecoded.WithLabelValues(kind).Inc()
}

// DecodeFailed counts one skipped record.
func (m *Metrics) DecodeFailed(kind string) {
	if m == nil {
		return
	}
	m.DecodeFailures.WithLabelValues(kind).Inc()
}

// PartitionRead counts one fully read partition.
func (m *Metrics) PartitionRead(kind string) {
	if m == nil {
		return
	}
	m.PartitionsRead.WithLabelValues(kind).Inc()
}

// PartitionFailed counts one skipped partition.
func (m *Metrics) PartitionFailed(kind string) {
	if m == nil {
		return
	}
	m.PartitionFailures.WithLabelValues(kind).Inc()
}

// ObserveLoad records the duration of one complete load.
func (m *Metrics) ObserveLoad(kind string, seconds float64) {
	if m == nil {
		return
	}
	m.LoadDuration.WithLabelValues(kind).Observe(seconds)
}
