package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "merkle"

// Outcome labels
const (
	ProofFound  = "found"
	ProofAbsent = "absent"

	ValidationValid   = "valid"
	ValidationInvalid = "invalid"
)

// Metrics holds the collectors for tree operations.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	treesBuilt    *prometheus.CounterVec
	buildDuration *prometheus.HistogramVec
	leavesHashed  prometheus.Counter
	proofs        *prometheus.CounterVec
	validations   *prometheus.CounterVec
	treesLoaded   prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		treesBuilt: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Help:      "Number of trees built",
				Name:      "trees_built_total",
				Namespace: namespace,
			},
			[]string{"algorithm"},
		),
		buildDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Help:      "Tree construction time in seconds",
				Name:      "build_duration_seconds",
				Namespace: namespace,
				Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 12),
			},
			[]string{"algorithm"},
		),
		leavesHashed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Help:      "Number of leaf values hashed into trees",
				Name:      "leaves_hashed_total",
				Namespace: namespace,
			},
		),
		proofs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Help:      "Number of proof requests by outcome",
				Name:      "proofs_total",
				Namespace: namespace,
			},
			[]string{"outcome"},
		),
		validations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Help:      "Number of proof validations by result",
				Name:      "validations_total",
				Namespace: namespace,
			},
			[]string{"result"},
		),
		treesLoaded: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Help:      "Number of trees held in memory",
				Name:      "trees_loaded",
				Namespace: namespace,
			},
		),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{
			m.treesBuilt, m.buildDuration, m.leavesHashed, m.proofs, m.validations, m.treesLoaded,
		} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

// ObserveBuild records one tree construction.
func (m *Metrics) ObserveBuild(algorithm string, leaves int, took time.Duration) {
	if m == nil {
		return
	}
	m.treesBuilt.WithLabelValues(algorithm).Inc()
	m.buildDuration.WithLabelValues(algorithm).Observe(took.Seconds())
	m.leavesHashed.Add(float64(leaves))
}

// ObserveProof records a proof request.
func (m *Metrics) ObserveProof(found bool) {
	if m == nil {
		return
	}
	if found {
		m.proofs.WithLabelValues(ProofFound).Inc()
	} else {
		m.proofs.WithLabelValues(ProofAbsent).Inc()
	}
}

// ObserveValidation records a validation result.
func (m *Metrics) ObserveValidation(valid bool) {
	if m == nil {
		return
	}
	if valid {
		m.validations.WithLabelValues(ValidationValid).Inc()
	} else {
		m.validations.WithLabelValues(ValidationInvalid).Inc()
	}
}

// SetTreesLoaded sets the number of trees held in memory.
func (m *Metrics) SetTreesLoaded(n int) {
	if m == nil {
		return
	}
	m.treesLoaded.Set(float64(n))
}
