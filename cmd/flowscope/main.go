// Command flowscope runs small structured-concurrency scenarios with logging,
// tracing and metrics wired in, as configured by a YAML file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/NetPo4ki/go-flowscope/config"
	"github.com/NetPo4ki/go-flowscope/observe/logging"
	otelobs "github.com/NetPo4ki/go-flowscope/observe/otel"
	"github.com/NetPo4ki/go-flowscope/observe/prom"
	"github.com/NetPo4ki/go-flowscope/scope"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "flowscope:", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("flowscope", flag.ContinueOnError)
	fs.SetOutput(stderr)
	cfgPath := fs.String("config", "", "path to a YAML config file")
	name := fs.String("scenario", "all", "scenario to run, or all")
	list := fs.Bool("list", false, "list scenarios and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *list {
		for _, n := range scenarioNames() {
			fmt.Fprintln(stdout, n)
		}
		return nil
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	selected, err := selectScenarios(*name)
	if err != nil {
		return err
	}

	logger := slog.New(logging.NewHandler(cfg.Log.Handler(stderr)))
	compute, blocking := cfg.Dispatchers.Build()
	rt := &env{log: logger, compute: compute, io: blocking}

	observers := []scope.Observer{logging.New(logger)}

	metrics := prom.New(cfg.Metrics.Namespace)
	reg := prometheus.NewRegistry()
	metrics.MustRegister(reg)
	reg.MustRegister(prom.NewDispatcherCollector(cfg.Metrics.Namespace, compute, blocking))
	observers = append(observers, metrics)

	if cfg.Tracing.Enabled {
		tp, closeOutput, err := newTracerProvider(cfg.Tracing, stdout)
		if err != nil {
			return err
		}
		defer closeOutput()
		defer func() { _ = tp.Shutdown(context.Background()) }()
		observers = append(observers, otelobs.New(tp.Tracer(otelobs.TracerName)))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var errs []error
	for _, n := range selected {
		_, err := scope.RunBlocking(ctx, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, scenarios[n](ctx, rt)
		}, scope.WithObserver(scope.Observers(observers...)), scope.WithName(n))
		if err != nil {
			logger.Error("scenario failed", "scenario", n, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", n, err))
			continue
		}
		logger.Info("scenario done", "scenario", n)
	}

	if cfg.Metrics.Dump {
		if err := dumpMetrics(reg, stdout); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func selectScenarios(name string) ([]string, error) {
	if name == "all" {
		return scenarioNames(), nil
	}
	if _, ok := scenarios[name]; !ok {
		return nil, fmt.Errorf("unknown scenario %q", name)
	}
	return []string{name}, nil
}

func scenarioNames() []string {
	names := make([]string, 0, len(scenarios))
	for n := range scenarios {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// newTracerProvider exports spans as JSON to cfg.Output, or to stdout.
func newTracerProvider(cfg config.Tracing, stdout io.Writer) (*sdktrace.TracerProvider, func(), error) {
	w, closeOutput := stdout, func() {}
	if cfg.Output != "" {
		f, err := os.Create(cfg.Output)
		if err != nil {
			return nil, nil, err
		}
		w, closeOutput = f, func() { _ = f.Close() }
	}
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		closeOutput()
		return nil, nil, err
	}
	res, err := resource.New(context.Background(),
		resource.WithAttributes(attribute.String("service.name", cfg.ServiceName)),
	)
	if err != nil {
		closeOutput()
		return nil, nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)),
		sdktrace.WithResource(res),
	)
	return tp, closeOutput, nil
}

func dumpMetrics(g prometheus.Gatherer, w io.Writer) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
