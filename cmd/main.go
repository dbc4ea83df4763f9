package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"runtime"
	"syscall"
	"time"

	"github.com/aukilabs/go-tooling/pkg/cli"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/events"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/go-tooling/pkg/metrics"
	"github.com/carlmjohnson/versioninfo"
	"github.com/google/uuid"
	"github.com/gravlens/srcgrid/featureflag"
	srcgridhttp "github.com/gravlens/srcgrid/http"
	"github.com/gravlens/srcgrid/lens"
	"github.com/gravlens/srcgrid/tracer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/encoding/json"
)

var infoGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Name:        "srcgrid_info",
	Help:        "Srcgrid information.",
	ConstLabels: prometheus.Labels{"version": versioninfo.Short()},
})

type config struct {
	Width        int           `cli:""        env:"SRCGRID_WIDTH"         help:"Image-plane grid width, in pixels."`
	Height       int           `cli:""        env:"SRCGRID_HEIGHT"        help:"Image-plane grid height, in pixels."`
	Supersample  int           `cli:""        env:"SRCGRID_SUPERSAMPLE"   help:"Sub-grid sampling factor per pixel (the N of the N×N sub-grid)."`
	Threshold    float64       `cli:""        env:"SRCGRID_THRESHOLD"     help:"Refinement threshold multiplier on N²."`
	MaxDepth     int           `cli:",hidden" env:"SRCGRID_MAX_DEPTH"     help:"Maximum refinement depth. 0 disables the guard."`
	Workers      int           `cli:",hidden" env:"SRCGRID_WORKERS"       help:"The number of root cells refined concurrently."`
	PointBudget  int           `cli:",hidden" env:"SRCGRID_POINT_BUDGET"  help:"Buffered point capacity per root cell. 0 means unlimited."`
	Output       string        `cli:""        env:"SRCGRID_OUTPUT"        help:"Report destination. '-' writes to stdout."`
	LogLevel     string        `cli:""        env:"SRCGRID_LOG_LEVEL"     help:"Log level (debug|info|warning|error)."`
	LogIndent    bool          `cli:""        env:"SRCGRID_LOG_INDENT"    help:"Indent logs."`
	AdminAddr    string        `cli:",hidden" env:"SRCGRID_ADMIN_ADDR"    help:"Admin listening address. Empty disables the admin endpoint."`
	Lens         lensConfig    `cli:",hidden" env:"-"                     help:"Lens model configuration."`
	Events       eventsConfig  `cli:",hidden" env:"-"                     help:"Event pusher configuration."`
	FeatureFlags []string      `cli:",hidden" env:"SRCGRID_FEATURE_FLAGS" help:"Comma separated feature flags."`
	Version      bool          `cli:""        env:"-"                     help:"Show version."`
	Help         bool          `cli:""        env:"-"                     help:"Show help."`
}

type lensConfig struct {
	X  float64 `cli:",hidden" env:"SRCGRID_LENS_X"  help:"Lens center x."`
	Y  float64 `cli:",hidden" env:"SRCGRID_LENS_Y"  help:"Lens center y."`
	B  float64 `cli:",hidden" env:"SRCGRID_LENS_B"  help:"Lens scale radius."`
	Q  float64 `cli:",hidden" env:"SRCGRID_LENS_Q"  help:"Lens axis ratio, in (0, 1]."`
	PA float64 `cli:",hidden" env:"SRCGRID_LENS_PA" help:"Lens position angle, in degrees."`
}

type eventsConfig struct {
	Endpoint      string        `cli:",hidden" env:"SRCGRID_EVENTS_ENDPOINT"       help:"Endpoint to where events are pushed. Empty disables pushing."`
	FlushInterval time.Duration `cli:",hidden" env:"SRCGRID_EVENTS_FLUSH_INTERVAL" help:"The duration between each event flush."`
	BatchSize     int           `cli:",hidden" env:"SRCGRID_EVENTS_BATCH_SIZE"     help:"The maximum number of events sent at once."`
	QueueSize     int           `cli:",hidden" env:"SRCGRID_EVENTS_QUEUE_SIZE"     help:"The size of the queue where events are stored."`
}

func main() {
	conf := config{
		Width:       20,
		Height:      20,
		Supersample: 10,
		Threshold:   1.0,
		MaxDepth:    48,
		Workers:     runtime.NumCPU(),
		Output:      "-",
		LogLevel:    logs.InfoLevel.String(),
		Lens: lensConfig{
			X:  11.23,
			Y:  9.87,
			B:  6.34,
			Q:  0.78,
			PA: 34.56,
		},
		Events: eventsConfig{
			FlushInterval: events.DefaultFlushInterval,
			BatchSize:     events.DefaultBatchSize,
			QueueSize:     events.DefaultQueueSize,
		},
	}

	// set the information gauge to 1, useful for SUM query
	infoGauge.Set(1)

	ctx, cancel := cli.ContextWithSignals(context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer cancel()

	cli.Register().
		Help("Builds an adaptively refined source-plane grid for a gravitational lens.").
		Options(&conf)
	cli.Load()

	if conf.Version {
		fmt.Println(versioninfo.Short())
		os.Exit(0)
	}

	logs.SetLevel(logs.ParseLevel(conf.LogLevel))
	logs.Encoder = json.Marshal
	if conf.LogIndent {
		logs.Encoder = func(v any) ([]byte, error) {
			return json.MarshalIndent(v, "", "  ")
		}
	}

	errors.Encoder = json.Marshal

	if err := validateConfig(conf); err != nil {
		logs.Fatal(err)
	}

	flags := featureflag.New(conf.FeatureFlags)
	flags.IfSet(featureflag.FlagDisableDepthGuard, func() {
		conf.MaxDepth = 0
	})
	flags.IfSet(featureflag.FlagDisableParallelRefine, func() {
		conf.Workers = 1
	})

	transport := metrics.HTTPTransport(http.DefaultTransport)

	if conf.Events.Endpoint != "" {
		eventsPusher := events.Pusher{
			Endpoint:      conf.Events.Endpoint,
			FlushInterval: conf.Events.FlushInterval,
			BatchSize:     conf.Events.BatchSize,
			QueueSize:     conf.Events.QueueSize,
			Transport:     transport,
		}
		go eventsPusher.Start()
		defer eventsPusher.Close()

		eventsLogger := events.Logger{
			Pusher:           &eventsPusher,
			SDKType:          "srcgrid",
			SDKVersionFamily: versioninfo.Short(),
		}
		logs.SetLogger(eventsLogger.Log)
	}

	if conf.AdminAddr != "" {
		var admin http.ServeMux
		admin.Handle("/metrics", promhttp.Handler())
		admin.HandleFunc("/health", srcgridhttp.HandleHealthCheck)
		admin.HandleFunc("/version", srcgridhttp.HandleVersion(versioninfo.Short()))
		admin.HandleFunc("/debug/pprof/", pprof.Index)
		admin.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		admin.HandleFunc("/debug/pprof/profile", pprof.Profile)
		admin.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		admin.HandleFunc("/debug/pprof/trace", pprof.Trace)

		go srcgridhttp.ListenAndServe(ctx, &http.Server{
			Addr:    conf.AdminAddr,
			Handler: metrics.HTTPHandler(&admin, srcgridhttp.MetricsPathFormatter),
		})
	}

	runID := uuid.NewString()

	model := lens.NewSIE(conf.Lens.X, conf.Lens.Y, conf.Lens.B, conf.Lens.Q, conf.Lens.PA)

	t, err := tracer.New(tracer.Config{
		Width:       conf.Width,
		Height:      conf.Height,
		Supersample: conf.Supersample,
		Threshold:   conf.Threshold,
		MaxDepth:    conf.MaxDepth,
		PointBudget: conf.PointBudget,
		Workers:     conf.Workers,
	}, model)
	if err != nil {
		logs.Fatal(err)
	}
	defer t.Release()

	logs.WithTag("run_id", runID).
		WithTag("version", versioninfo.Short()).
		WithTag("log_level", conf.LogLevel).
		WithTag("grid", fmt.Sprintf("%dx%d", conf.Width, conf.Height)).
		WithTag("supersample", conf.Supersample).
		WithTag("threshold", conf.Threshold).
		WithTag("workers", conf.Workers).
		Info("starting trace")

	start := time.Now()

	if err := t.Trace(ctx); err != nil {
		logs.Fatal(errors.New("tracing the image plane failed").
			WithTag("run_id", runID).
			Wrap(err))
	}

	if err := t.Refine(ctx); err != nil {
		logs.Fatal(errors.New("refining the source-plane grid failed").
			WithTag("run_id", runID).
			Wrap(err))
	}

	out := os.Stdout
	if conf.Output != "-" {
		f, err := os.Create(conf.Output)
		if err != nil {
			logs.Fatal(errors.New("creating the report file failed").
				WithTag("run_id", runID).
				WithTag("output", conf.Output).
				Wrap(err))
		}
		defer f.Close()
		out = f
	}

	if err := t.Report(out); err != nil {
		logs.Fatal(errors.New("writing the leaf report failed").
			WithTag("run_id", runID).
			Wrap(err))
	}

	stats := t.Stats()
	logs.WithTag("run_id", runID).
		WithTag("traced", stats.Traced).
		WithTag("discarded", stats.Discarded).
		WithTag("inserted", stats.Inserted).
		WithTag("leaves", stats.Leaves).
		WithTag("overflow_leaves", stats.Overflow).
		WithTag("duration", time.Since(start).String()).
		Info("trace complete")
}

func validateConfig(conf config) error {
	if conf.Width <= 0 || conf.Height <= 0 {
		return errors.New("grid dimensions must be positive").
			WithTag("width", conf.Width).
			WithTag("height", conf.Height)
	}

	if conf.Supersample <= 0 {
		return errors.New("supersampling factor must be positive").
			WithTag("supersample", conf.Supersample)
	}

	if conf.Threshold <= 0 {
		return errors.New("refinement threshold must be positive").
			WithTag("threshold", conf.Threshold)
	}

	if conf.Lens.Q <= 0 || conf.Lens.Q > 1 {
		return errors.New("lens axis ratio must be in (0, 1]").
			WithTag("q", conf.Lens.Q)
	}

	if conf.Lens.B <= 0 {
		return errors.New("lens scale radius must be positive").
			WithTag("b", conf.Lens.B)
	}

	if conf.Output == "" {
		return errors.New("report destination must not be empty")
	}

	return nil
}
