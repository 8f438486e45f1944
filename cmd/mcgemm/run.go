package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/fxnlabs/multigemm/internal/config"
	"github.com/fxnlabs/multigemm/internal/gemm"
	"github.com/fxnlabs/multigemm/internal/metrics"
	"github.com/fxnlabs/multigemm/internal/reference"
	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// runParams are the flags of the run command.
type runParams struct {
	M, N, K     int
	Iterations  int
	Validate    bool
	Seed        uint64
	MetricsAddr string
	Banner      bool
}

// runReport summarizes a benchmark run.
type runReport struct {
	Iterations  int
	Best        time.Duration
	Mean        time.Duration
	GFLOPS      float64
	Fingerprint string
	Stable      bool
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Multiply random matrices repeatedly and report the throughput",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "m", Value: 1024, Usage: "rows of A and C"},
			&cli.IntFlag{Name: "n", Value: 1024, Usage: "columns of B and C"},
			&cli.IntFlag{Name: "k", Value: 1024, Usage: "columns of A and rows of B"},
			&cli.IntFlag{Name: "iterations", Aliases: []string{"i"}, Value: 10, Usage: "number of timed products"},
			&cli.BoolFlag{Name: "validate", Usage: "compare the result with a host reference product"},
			&cli.Uint64Flag{Name: "seed", Value: 1, Usage: "seed of the random operands"},
			&cli.StringFlag{Name: "metrics-addr", Usage: "serve Prometheus metrics on `ADDR` while running (overrides metrics.listenAddress)"},
			&cli.BoolFlag{Name: "banner", Value: true, Usage: "print the banner"},
		},
		Action: func(c *cli.Context) error {
			cfg := appConfig(c)
			p := runParams{
				M:           c.Int("m"),
				N:           c.Int("n"),
				K:           c.Int("k"),
				Iterations:  c.Int("iterations"),
				Validate:    c.Bool("validate"),
				Seed:        c.Uint64("seed"),
				MetricsAddr: cfg.Metrics.ListenAddress,
				Banner:      c.Bool("banner"),
			}
			if c.IsSet("metrics-addr") {
				p.MetricsAddr = c.String("metrics-addr")
			}
			_, err := runBenchmark(c.Context, cfg, p, appLogger(c))
			return err
		},
	}
}

func (p runParams) validate() error {
	if p.M <= 0 || p.N <= 0 || p.K <= 0 {
		return fmt.Errorf("matrix dimensions must be positive, got m=%d n=%d k=%d", p.M, p.N, p.K)
	}
	if p.Iterations <= 0 {
		return fmt.Errorf("iterations must be positive, got %d", p.Iterations)
	}
	return nil
}

func newWorkload(p runParams) gemm.Workload {
	return gemm.Workload{
		A: reference.Random(p.M, p.K, p.Seed),
		B: reference.Random(p.K, p.N, p.Seed+1),
		C: make([]float32, p.M*p.N),
		M: p.M, N: p.N, K: p.K,
	}
}

// registerSession ties the session to the application lifecycle: devices are
// set up on start and released on stop.
func registerSession(lc fx.Lifecycle, s *gemm.Session, w gemm.Workload) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error { return s.Initialize(w) },
		OnStop:  func(context.Context) error { return s.Finalize(w) },
	})
}

func registerMetricsServer(lc fx.Lifecycle, p runParams, log *zap.Logger) {
	if p.MetricsAddr == "" {
		return
	}
	srv := metrics.NewServer(p.MetricsAddr, log)
	lc.Append(fx.StartStopHook(srv.Start, srv.Shutdown))
}

// newRunApp wires the benchmark. Populated values are valid once the app has
// started.
func newRunApp(cfg *config.Config, p runParams, log *zap.Logger, session **gemm.Session, w *gemm.Workload) *fx.App {
	return fx.New(
		fx.WithLogger(func() fxevent.Logger {
			l := &fxevent.ZapLogger{Logger: log.Named("fx")}
			l.UseLogLevel(zap.DebugLevel)
			return l
		}),
		fx.Supply(cfg, p, log),
		fx.Provide(newPlatform, newOptions, newSession, newWorkload),
		fx.Invoke(registerMetricsServer, registerSession),
		fx.Populate(session, w),
	)
}

func runBenchmark(ctx context.Context, cfg *config.Config, p runParams, log *zap.Logger) (report runReport, err error) {
	if err := p.validate(); err != nil {
		return report, err
	}
	log = log.With(zap.String("run_id", uuid.NewString()))
	if p.Banner {
		figure.NewFigure("mcgemm", "", true).Print()
		fmt.Fprintln(os.Stdout)
	}

	var (
		session *gemm.Session
		w       gemm.Workload
	)
	app := newRunApp(cfg, p, log, &session, &w)
	if err := app.Err(); err != nil {
		return report, err
	}

	startCtx, cancel := context.WithTimeout(ctx, app.StartTimeout())
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return report, err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), app.StopTimeout())
		defer cancel()
		err = errors.Join(err, app.Stop(stopCtx))
	}()

	for _, d := range session.Devices() {
		log.Info("Device slice",
			zap.Int("ordinal", d.Ordinal),
			zap.String("device", d.Name),
			zap.Int("rows", d.Rows),
			zap.Int("row_offset", d.RowOffset),
			zap.Ints("global", d.Grid.Global),
			zap.Ints("local", d.Grid.Local))
	}

	report, err = benchmark(session, w, p.Iterations, log)
	if err != nil {
		return report, err
	}

	if p.Validate {
		want, err := reference.Multiply(w.A, w.B, w.M, w.N, w.K)
		if err != nil {
			return report, err
		}
		if err := reference.Compare(w.C, want, w.N, validationTolerance(w.K)); err != nil {
			return report, fmt.Errorf("validation failed: %w", err)
		}
		log.Info("Validation passed", zap.Float64("max_abs_diff", reference.MaxAbsDiff(w.C, want)))
	}
	return report, nil
}

// benchmark times iterations products and checks that every one of them
// produced the same matrix.
func benchmark(s *gemm.Session, w gemm.Workload, iterations int, log *zap.Logger) (runReport, error) {
	report := runReport{Iterations: iterations, Stable: true}
	var total time.Duration
	var first string

	for i := 0; i < iterations; i++ {
		start := time.Now()
		if err := s.Compute(w); err != nil {
			return report, err
		}
		elapsed := time.Since(start)
		total += elapsed
		if report.Best == 0 || elapsed < report.Best {
			report.Best = elapsed
		}

		fp := reference.Fingerprint(w.C).Hex()
		if i == 0 {
			first = fp
		} else if fp != first {
			report.Stable = false
			log.Warn("Result differs from first iteration", zap.Int("iteration", i), zap.String("fingerprint", fp))
		}

		log.Info("Iteration completed",
			zap.Int("iteration", i),
			zap.Duration("elapsed", elapsed),
			zap.Float64("gflops", gflops(w, elapsed)))
	}

	report.Mean = total / time.Duration(iterations)
	report.GFLOPS = gflops(w, report.Best)
	report.Fingerprint = first
	log.Info("Benchmark completed",
		zap.Int("m", w.M), zap.Int("n", w.N), zap.Int("k", w.K),
		zap.Int("iterations", iterations),
		zap.Duration("best", report.Best),
		zap.Duration("mean", report.Mean),
		zap.Float64("gflops", report.GFLOPS),
		zap.String("fingerprint", report.Fingerprint),
		zap.Bool("stable", report.Stable))
	return report, nil
}

func gflops(w gemm.Workload, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return w.FLOPs() / d.Seconds() / 1e9
}

// validationTolerance grows with the length of the dot products, since each
// output accumulates k rounding errors in single precision.
func validationTolerance(k int) float64 {
	return 1e-5 * float64(max(k, 100))
}
