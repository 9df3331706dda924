// Command particles runs the GPU particle simulation in a window.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/Carmen-Shannon/oxy-particles/common"
	"github.com/Carmen-Shannon/oxy-particles/common/logger"
	"github.com/Carmen-Shannon/oxy-particles/config"
	"github.com/Carmen-Shannon/oxy-particles/engine"
	"github.com/Carmen-Shannon/oxy-particles/engine/gpu"
	"github.com/Carmen-Shannon/oxy-particles/engine/particle"
	"github.com/Carmen-Shannon/oxy-particles/engine/profiler"
	"github.com/Carmen-Shannon/oxy-particles/engine/renderer"
	"github.com/Carmen-Shannon/oxy-particles/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-particles/engine/shared"
	"github.com/Carmen-Shannon/oxy-particles/engine/stage"
	"github.com/Carmen-Shannon/oxy-particles/engine/window"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// Indirection for tests, which cannot open a window.
var (
	newLogger = logger.New
	runEngine = run
)

func main() {
	os.Exit(realMain(os.Args[0], os.Args[1:], os.Stderr))
}

// realMain returns the process exit code. Deferred cleanup, including flushing the logger, runs before
// main exits.
func realMain(name string, args []string, stderr io.Writer) int {
	cfg, err := config.Parse(name, args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	log, err := newLogger(cfg.LoggerConfig())
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	defer func() { _ = log.Sync() }()

	if err := runEngine(cfg, log); err != nil {
		log.Error("particles exited", zap.Error(err))
		return 1
	}
	return 0
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := profiler.NewMetrics(reg)
	if err != nil {
		return err
	}
	if cfg.Metrics.Addr != "" {
		go func() {
			if err := profiler.Serve(ctx, cfg.Metrics.Addr, reg, log); err != nil {
				log.Error("metrics server failed", zap.Error(err))
			}
		}()
	}

	w, err := window.NewWindow(cfg.WindowOptions()...)
	if err != nil {
		return err
	}
	defer w.Close()

	rendererOpts := append(cfg.RendererOptions(log.Named("renderer")), renderer.WithConfigureObserver(func(renderer.SurfaceState) {
		metrics.Reconfigures.Inc()
	}))
	r, err := renderer.NewRenderer(gpu.NewWGPUBackend(), w, rendererOpts...)
	if err != nil {
		return err
	}
	defer r.Release()
	device := r.Device()

	store, err := particle.NewStore(device, cfg.StoreOptions(log.Named("particles"))...)
	if err != nil {
		return err
	}
	defer store.Release()
	metrics.Capacity.Set(float64(store.Capacity()))

	state, err := shared.NewSharedState(device, cfg.Particles.Count, cfg.Particles.EmitBatch)
	if err != nil {
		return err
	}
	defer state.Release()

	computeProgram, err := shader.NewShader("particles compute", shader.ComputeProgramSource,
		shader.WithDefine(shader.DefineDoubleBuffered, cfg.Particles.DoubleBuffered))
	if err != nil {
		return err
	}
	compute, err := stage.NewComputeStage(device, computeProgram, store, state, cfg.ComputeOptions(log.Named("compute"))...)
	if err != nil {
		return err
	}
	defer compute.Release()

	renderProgram, err := shader.NewShader("particles render", shader.RenderProgramSource)
	if err != nil {
		return err
	}
	renderOpts := []stage.RenderStageOption{stage.WithRenderLogger(log.Named("render"))}
	if cfg.Renderer.Sprite != "" {
		sprite, err := common.LoadTextureStagingData(cfg.Renderer.Sprite)
		if err != nil {
			return err
		}
		renderOpts = append(renderOpts, stage.WithSprite(sprite))
	}
	surface := r.SurfaceState()
	render, err := stage.NewRenderStage(device, renderProgram, store, state,
		stage.RenderTarget{Format: surface.Format, SampleCount: surface.SampleCount}, renderOpts...)
	if err != nil {
		return err
	}
	defer render.Release()

	driver := engine.NewFrameDriver(r, store, state, compute, render, engine.WithFrameLogger(log))
	eng := engine.NewEngine(driver,
		engine.WithWindow(w),
		engine.WithEngineLogger(log),
		engine.WithMetrics(metrics),
		engine.WithProfiling(cfg.Engine.Profiling),
		engine.WithRenderFrameLimit(cfg.Engine.FrameLimit),
	)

	go func() {
		<-ctx.Done()
		eng.Quit()
	}()
	return eng.Run()
}
