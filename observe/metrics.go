package observe

import (
	"time"

	"github.com/go-kit/kit/metrics"
	kitprometheus "github.com/go-kit/kit/metrics/prometheus"
	"github.com/olebedev/emitter"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/praxiomlabs/expect"
)

const (
	metricNamespace = "expect"
	metricSubsystem = "session"

	// Histogram unit for expect call latency.
	timingUnit = time.Millisecond
)

// Metrics aggregates session telemetry from the emitter: sessions spawned,
// output volume, match/timeout/end-of-stream counts, and expect latency.
// One Metrics value can watch any number of sessions through a shared
// emitter.
type Metrics struct {
	spawned   metrics.Counter
	bytesRead metrics.Counter
	chunks    metrics.Counter
	outcomes  metrics.Counter
	latency   metrics.Histogram
}

// NewMetrics registers the collectors on reg and returns the observer.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	spawned := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricNamespace,
		Subsystem: metricSubsystem,
		Name:      "spawned_total",
		Help:      "Sessions spawned.",
	}, []string{})
	bytesRead := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricNamespace,
		Subsystem: metricSubsystem,
		Name:      "output_bytes_total",
		Help:      "Bytes appended to session buffers.",
	}, []string{})
	chunks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricNamespace,
		Subsystem: metricSubsystem,
		Name:      "output_chunks_total",
		Help:      "Transport reads appended to session buffers.",
	}, []string{})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricNamespace,
		Subsystem: metricSubsystem,
		Name:      "expect_outcomes_total",
		Help:      "Expect call outcomes by lifecycle event type.",
	}, []string{"outcome"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricNamespace,
		Subsystem: metricSubsystem,
		Name:      "expect_duration_milliseconds",
		Help:      "Expect call duration until match or timeout.",
		Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
	}, []string{})

	for _, c := range []prometheus.Collector{spawned, bytesRead, chunks, outcomes, latency} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return &Metrics{
		spawned:   kitprometheus.NewCounter(spawned),
		bytesRead: kitprometheus.NewCounter(bytesRead),
		chunks:    kitprometheus.NewCounter(chunks),
		outcomes:  kitprometheus.NewCounter(outcomes),
		latency:   kitprometheus.NewHistogram(latency),
	}, nil
}

// Attach subscribes the metrics observer to em until the returned Detach
// runs.
func (m *Metrics) Attach(em *emitter.Emitter) Detach {
	return subscribe(em, m.onOutput, m.onLifecycle)
}

func (m *Metrics) onOutput(chunk expect.OutputChunk) {
	m.chunks.Add(1)
	m.bytesRead.Add(float64(len(chunk.Data)))
}

func (m *Metrics) onLifecycle(evt expect.LifecycleEvent) {
	switch evt.Type {
	case expect.EventSpawned:
		m.spawned.Add(1)
	case expect.EventMatched, expect.EventTimedOut:
		m.outcomes.With("outcome", evt.Type.String()).Add(1)
		measureSince(m.latency, evt.Elapsed)
	case expect.EventEndOfStream, expect.EventErrored:
		m.outcomes.With("outcome", evt.Type.String()).Add(1)
	}
}

// measureSince records d on h in the histogram's timing unit.
func measureSince(h metrics.Histogram, d time.Duration) {
	if d < 0 {
		d = 0
	}
	h.Observe(float64(d) / float64(timingUnit))
}
