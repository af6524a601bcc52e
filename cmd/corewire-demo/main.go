// Package main is a demonstration entry point: it wires the default
// factories and the metrics example plugin, and starts the initializer.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/corewire"
	"github.com/c360/corewire/builtin"
	"github.com/c360/corewire/examples/metricsplugin"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("corewire-demo failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	metrics := builtin.NewMetrics()

	init := corewire.New(
		builtin.DefaultFactories(logger),
		corewire.WithMetrics(metrics),
	)

	collector := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "corewire_demo_example_total",
		Help: "Example counter registered through the metrics example plugin.",
	})
	for _, f := range metricsplugin.Features(collector, metrics.Registry().Register) {
		if err := init.Add(f); err != nil {
			return fmt.Errorf("register metrics plugin: %w", err)
		}
	}

	slog.Info("starting corewire-demo")
	if err := init.Start(context.Background()); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	slog.Info("corewire-demo running")

	// Start installs its own signal watcher outside test mode and exits
	// the process once stop() completes; block here until that happens.
	select {}
}
