// Command benchmark generates, degrades and parses synthetic copies and
// records per-copy timing and precision.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hekzam/markers-eval-25-sub000/internal/bench"
	"github.com/hekzam/markers-eval-25-sub000/internal/config"
	"github.com/hekzam/markers-eval-25-sub000/internal/version"

	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "benchmark: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := config.Flags()
	showVersion := fs.Bool("version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *showVersion {
		fmt.Println(version.String())
		return nil
	}

	path, _ := fs.GetString("config")
	cfg, err := config.Load(path, fs)
	if err != nil {
		return err
	}
	logger := cfg.Logger(os.Stderr)

	benchCfg, err := cfg.Bench(logger)
	if err != nil {
		return err
	}
	gen, err := cfg.NewGenerator(logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mode, err := bench.ParseMode(cfg.Output.Mode)
	if err != nil {
		return err
	}
	csvSink, err := bench.NewCSVSink(cfg.Output.CSV, mode)
	if err != nil {
		return err
	}
	sinks := bench.MultiSink{csvSink}
	defer func() {
		if err := sinks.Close(); err != nil {
			logger.Error("closing sinks", "error", err)
		}
	}()

	if cfg.Output.PostgresDSN != "" {
		pg, err := bench.OpenPostgresSink(ctx, cfg.Output.PostgresDSN, bench.WithTable(cfg.Output.PostgresTable))
		if err != nil {
			return err
		}
		sinks = append(sinks, pg)
	}

	metrics := bench.NewMetrics()
	h, err := bench.New(benchCfg, gen,
		bench.WithLogger(logger),
		bench.WithSinks(sinks...),
		bench.WithMetrics(metrics),
	)
	if err != nil {
		return err
	}

	report, runErr := h.Run(ctx)
	if cfg.Output.MetricsFile != "" {
		if err := metrics.WriteTextfile(cfg.Output.MetricsFile); err != nil {
			logger.Error("writing metrics", "path", cfg.Output.MetricsFile, "error", err)
		}
	}
	if runErr != nil {
		return runErr
	}

	fmt.Printf("run %s\n", report.RunID)
	for _, s := range report.Sweeps {
		fmt.Printf("%-7s %-60s %3d/%-3d ok  mean %.2f px  sd %.2f  max %.2f\n",
			s.Parser, s.Markers, s.Summary.Successes, s.Summary.Copies,
			s.Summary.MeanError, s.Summary.StdDevError, s.Summary.MaxError)
	}
	return nil
}
