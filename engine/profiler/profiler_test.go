package profiler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestProfilerReportsOnInterval(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	p := NewProfiler(zap.New(core), time.Second)
	start := time.Now()
	p.lastTime = start
	clock := start
	p.now = func() time.Time { return clock }

	for range 9 {
		assert.False(t, p.Tick(true))
	}
	assert.False(t, p.Tick(false))
	clock = start.Add(2 * time.Second)
	require.True(t, p.Tick(true))

	entries := logs.FilterMessage("profiler").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.InDelta(t, 5.0, fields["fps"], 1e-9, "10 presented frames over 2s")
	assert.Equal(t, int64(1), fields["skipped"])

	clock = clock.Add(100 * time.Millisecond)
	assert.False(t, p.Tick(true), "counters restart after a report")
}

func TestNewProfilerDefaults(t *testing.T) {
	p := NewProfiler(nil, 0)
	assert.Equal(t, time.Second, p.updateInterval)
	assert.NotNil(t, p.logger)
}

func TestMetricsObserveFrame(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	m.ObserveFrame(true, 2*time.Millisecond)
	m.ObserveFrame(true, 3*time.Millisecond)
	m.ObserveFrame(false, time.Millisecond)
	m.Reconfigures.Inc()
	m.Capacity.Set(100)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.FramesPresented))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FramesSkipped))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Reconfigures))
	assert.Equal(t, 100.0, testutil.ToFloat64(m.Capacity))
	assert.Equal(t, 5, testutil.CollectAndCount(reg))

	err = testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP particles_frames_skipped_total Frames dropped because the surface timed out.
# TYPE particles_frames_skipped_total counter
particles_frames_skipped_total 1
`), "particles_frames_skipped_total")
	assert.NoError(t, err)
}

func TestNewMetricsDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewMetrics(reg)
	require.NoError(t, err)
	_, err = NewMetrics(reg)
	assert.ErrorContains(t, err, "register metrics")
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)
	m.ObserveFrame(true, time.Millisecond)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "particles_frames_presented_total 1")
	assert.Contains(t, rec.Body.String(), "particles_frame_duration_seconds_count 1")
}

func TestServeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, "127.0.0.1:0", prometheus.NewRegistry(), zap.NewNop())
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
