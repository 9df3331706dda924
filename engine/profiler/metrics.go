package profiler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "particles"

// Metrics holds the Prometheus collectors updated by the frame loop.
type Metrics struct {
	FramesPresented prometheus.Counter
	FramesSkipped   prometheus.Counter
	Reconfigures    prometheus.Counter
	Capacity        prometheus.Gauge
	FrameDuration   prometheus.Histogram
}

// NewMetrics creates the collectors and registers them on reg.
//
// Parameters:
//   - reg: the registry receiving the collectors
//
// Returns:
//   - *Metrics: the registered collectors
//   - error: an error if a collector is already registered on reg
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		FramesPresented: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_presented_total",
			Help:      "Frames submitted and presented to the surface.",
		}),
		FramesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_skipped_total",
			Help:      "Frames dropped because the surface timed out.",
		}),
		Reconfigures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "surface_reconfigures_total",
			Help:      "Successful surface configurations, including resizes and outdated recoveries.",
		}),
		Capacity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "capacity",
			Help:      "Particle capacity of the store.",
		}),
		FrameDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "frame_duration_seconds",
			Help:      "Wall time spent advancing one frame.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
	}
	for _, c := range []prometheus.Collector{m.FramesPresented, m.FramesSkipped, m.Reconfigures, m.Capacity, m.FrameDuration} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("profiler: register metrics: %w", err)
		}
	}
	return m, nil
}

// ObserveFrame records the outcome and duration of one advanced frame.
//
// Parameters:
//   - presented: false when the frame was skipped
//   - elapsed: the time taken to advance the frame
func (m *Metrics) ObserveFrame(presented bool, elapsed time.Duration) {
	if presented {
		m.FramesPresented.Inc()
	} else {
		m.FramesSkipped.Inc()
	}
	m.FrameDuration.Observe(elapsed.Seconds())
}

// Handler returns a mux serving the collectors of gatherer under /metrics.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return mux
}

// Serve exposes the collectors of gatherer on addr under /metrics until ctx is cancelled.
//
// Parameters:
//   - ctx: stops the server when done
//   - addr: the listen address, e.g. ":9090"
//   - gatherer: the registry to expose
//   - logger: receives server failures
//
// Returns:
//   - error: the listener error, or nil after a clean shutdown
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer, logger *zap.Logger) error {
	srv := &http.Server{Addr: addr, Handler: Handler(gatherer), ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown", zap.Error(err))
		}
	}()

	logger.Info("metrics server listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("profiler: metrics server: %w", err)
	}
	return nil
}
