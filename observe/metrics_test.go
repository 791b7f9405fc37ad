package observe

import (
	"testing"
	"time"

	"github.com/olebedev/emitter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praxiomlabs/expect"
)

func gatherValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metric:
		for _, m := range mf.GetMetric() {
			for k, v := range labels {
				found := false
				for _, lp := range m.GetLabel() {
					if lp.GetName() == k && lp.GetValue() == v {
						found = true
						break
					}
				}
				if !found {
					continue metric
				}
			}
			if m.GetCounter() != nil {
				return m.GetCounter().GetValue()
			}
			if m.GetHistogram() != nil {
				return float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return 0
}

func TestMetrics_CountsOutputVolume(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	m.onOutput(expect.OutputChunk{Data: []byte("12345")})
	m.onOutput(expect.OutputChunk{Data: []byte("678")})

	assert.Equal(t, float64(8), gatherValue(t, reg, "expect_session_output_bytes_total", nil))
	assert.Equal(t, float64(2), gatherValue(t, reg, "expect_session_output_chunks_total", nil))
}

func TestMetrics_CountsOutcomesByType(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	m.onLifecycle(expect.LifecycleEvent{Type: expect.EventSpawned})
	m.onLifecycle(expect.LifecycleEvent{Type: expect.EventMatched, Elapsed: 12 * time.Millisecond})
	m.onLifecycle(expect.LifecycleEvent{Type: expect.EventMatched, Elapsed: 3 * time.Millisecond})
	m.onLifecycle(expect.LifecycleEvent{Type: expect.EventTimedOut, Elapsed: 50 * time.Millisecond})
	m.onLifecycle(expect.LifecycleEvent{Type: expect.EventEndOfStream})

	assert.Equal(t, float64(1), gatherValue(t, reg, "expect_session_spawned_total", nil))
	assert.Equal(t, float64(2), gatherValue(t, reg, "expect_session_expect_outcomes_total", map[string]string{"outcome": "matched"}))
	assert.Equal(t, float64(1), gatherValue(t, reg, "expect_session_expect_outcomes_total", map[string]string{"outcome": "timed_out"}))
	assert.Equal(t, float64(1), gatherValue(t, reg, "expect_session_expect_outcomes_total", map[string]string{"outcome": "end_of_stream"}))
	assert.Equal(t, float64(3), gatherValue(t, reg, "expect_session_expect_duration_milliseconds", nil))
}

func TestMetrics_DoubleRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewMetrics(reg)
	require.NoError(t, err)

	_, err = NewMetrics(reg)
	assert.Error(t, err)
}

func TestMetrics_AttachConsumesEmittedEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	em := emitter.New(16)
	detach := m.Attach(em)
	defer detach()

	<-em.Emit(expect.TopicOutput, expect.OutputChunk{Data: []byte("abc")})
	<-em.Emit(expect.TopicLifecycle, expect.LifecycleEvent{Type: expect.EventSpawned})

	require.Eventually(t, func() bool {
		return gatherValue(t, reg, "expect_session_spawned_total", nil) == 1 &&
			gatherValue(t, reg, "expect_session_output_bytes_total", nil) == 3
	}, time.Second, 5*time.Millisecond)
}
