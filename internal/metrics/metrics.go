// Package metrics holds the Prometheus collectors for detection, filtering
// and index rebuilds. A nil *Metrics records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "blockpatterns"

type Metrics struct {
	triggers      *prometheus.CounterVec
	candidates    *prometheus.CounterVec
	filter        *prometheus.CounterVec
	verify        *prometheus.CounterVec
	blockReads    *prometheus.CounterVec
	matches       *prometheus.CounterVec
	handleSeconds prometheus.Histogram
	strategy      *prometheus.GaugeVec
	switches      *prometheus.CounterVec

	rebuilds       *prometheus.CounterVec
	rebuildSeconds prometheus.Histogram
	compileErrors  prometheus.Counter
	variants       prometheus.Gauge
	entries        prometheus.Gauge
	indexVersion   prometheus.Gauge

	sinkDrops *prometheus.CounterVec
}

// New registers every collector on reg. Use prometheus.DefaultRegisterer in
// servers and a fresh prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		// Labels: world, outcome (handled, unknown_world, unreadable, no_entries)
		triggers: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detect",
			Name:      "triggers_total",
			Help:      "Block-change triggers handled by outcome",
		}, []string{"world", "outcome"}),

		// Labels: strategy
		candidates: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detect",
			Name:      "candidates_total",
			Help:      "Candidates generated per strategy",
		}, []string{"strategy"}),

		// Labels: reason (pass, world, height, bounds, palette, tags, unloaded)
		filter: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "filter",
			Name:      "results_total",
			Help:      "Fast-fail filter results by reason",
		}, []string{"reason"}),

		// Labels: outcome (matched, mismatch, inconclusive)
		verify: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "verify",
			Name:      "results_total",
			Help:      "Verification outcomes",
		}, []string{"outcome"}),

		blockReads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detect",
			Name:      "block_reads_total",
			Help:      "Block reads issued per strategy, verification included",
		}, []string{"strategy"}),

		matches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detect",
			Name:      "matches_total",
			Help:      "Verified matches by pattern",
		}, []string{"pattern"}),

		handleSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "detect",
			Name:      "handle_seconds",
			Help:      "Time spent handling one trigger",
			Buckets:   []float64{0.000005, 0.00001, 0.000025, 0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.005},
		}),

		// Labels: pattern, world; value is the active strategy kind
		strategy: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "detect",
			Name:      "active_strategy",
			Help:      "Active strategy kind per pattern and world",
		}, []string{"pattern", "world"}),

		switches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detect",
			Name:      "strategy_switches_total",
			Help:      "Strategy switches by destination strategy",
		}, []string{"to"}),

		// Labels: status (ok, error)
		rebuilds: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "rebuilds_total",
			Help:      "Index rebuild attempts by status",
		}, []string{"status"}),

		rebuildSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "rebuild_seconds",
			Help:      "Index rebuild duration",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),

		compileErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "compile_errors_total",
			Help:      "Patterns excluded from a rebuild because they failed to compile",
		}),

		variants: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "variants",
			Help:      "Variants in the active index",
		}),

		entries: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "entries",
			Help:      "Key-block entries in the active index",
		}),

		indexVersion: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "version",
			Help:      "Version of the active index",
		}),

		// Labels: sink
		sinkDrops: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "dropped_total",
			Help:      "Matches dropped by a full sink queue",
		}, []string{"sink"}),
	}
}

func (m *Metrics) Trigger(world, outcome string) {
	if m == nil {
		return
	}
	m.triggers.WithLabelValues(world, outcome).Inc()
}

func (m *Metrics) Candidates(strategy string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.candidates.WithLabelValues(strategy).Add(float64(n))
}

func (m *Metrics) Filter(reason string) {
	if m == nil {
		return
	}
	m.filter.WithLabelValues(reason).Inc()
}

func (m *Metrics) Verify(outcome string) {
	if m == nil {
		return
	}
	m.verify.WithLabelValues(outcome).Inc()
}

func (m *Metrics) BlockReads(strategy string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.blockReads.WithLabelValues(strategy).Add(float64(n))
}

func (m *Metrics) Match(pattern string) {
	if m == nil {
		return
	}
	m.matches.WithLabelValues(pattern).Inc()
}

func (m *Metrics) HandleSeconds(s float64) {
	if m == nil {
		return
	}
	m.handleSeconds.Observe(s)
}

func (m *Metrics) ActiveStrategy(pattern, world string, kind int) {
	if m == nil {
		return
	}
	m.strategy.WithLabelValues(pattern, world).Set(float64(kind))
}

func (m *Metrics) StrategySwitch(to string) {
	if m == nil {
		return
	}
	m.switches.WithLabelValues(to).Inc()
}

// Rebuild records one rebuild attempt. variants, entries and version describe
// the index that is active afterwards.
func (m *Metrics) Rebuild(ok bool, seconds float64, compileErrors, variants, entries int, version uint64) {
	if m == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "error"
	}
	m.rebuilds.WithLabelValues(status).Inc()
	m.rebuildSeconds.Observe(seconds)
	m.compileErrors.Add(float64(compileErrors))
	m.variants.Set(float64(variants))
	m.entries.Set(float64(entries))
	m.indexVersion.Set(float64(version))
}

func (m *Metrics) SinkDrop(sink string) {
	if m == nil {
		return
	}
	m.sinkDrops.WithLabelValues(sink).Inc()
}
