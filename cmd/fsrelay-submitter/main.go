// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/bureau-foundation/fsrelay/lib/config"
	"github.com/bureau-foundation/fsrelay/lib/metrics"
	"github.com/bureau-foundation/fsrelay/lib/process"
	"github.com/bureau-foundation/fsrelay/lib/queue"
	"github.com/bureau-foundation/fsrelay/lib/version"
	"github.com/bureau-foundation/fsrelay/submitter"
)

// shutdownTimeout bounds the wait for in-flight relays on SIGTERM.
const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(os.Args[1:]); err != nil {
		process.Fatal(err)
	}
}

// flags holds command-line overrides. Only flags the operator actually
// set replace configuration values.
type flags struct {
	configPath    string
	queueDir      string
	listenAddress string
	timeout       time.Duration
	streaming     bool
	logLevel      string
	showVersion   bool
}

func parseFlags(args []string) (*flags, *pflag.FlagSet, error) {
	var f flags
	flagSet := pflag.NewFlagSet("fsrelay-submitter", pflag.ContinueOnError)
	flagSet.StringVar(&f.configPath, "config", "", "path to config file (default: $"+config.EnvVar+")")
	flagSet.StringVar(&f.queueDir, "queue-dir", "", "shared queue directory")
	flagSet.StringVar(&f.listenAddress, "listen", "", "address to accept HTTP calls on")
	flagSet.DurationVar(&f.timeout, "timeout", 0, "how long to wait for a response or the next stream fragment")
	flagSet.BoolVar(&f.streaming, "streaming", false, `relay bodies with "stream": true as server-sent events`)
	flagSet.StringVar(&f.logLevel, "log-level", "", "debug, info, warn, or error")
	flagSet.BoolVar(&f.showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(args); err != nil {
		return nil, flagSet, err
	}
	if flagSet.NArg() > 0 {
		return nil, flagSet, fmt.Errorf("unexpected argument: %s", flagSet.Arg(0))
	}
	return &f, flagSet, nil
}

// loadConfig reads the configuration file and applies flag overrides.
func loadConfig(f *flags, flagSet *pflag.FlagSet) (*config.Config, error) {
	cfg, err := config.Load(config.Path(f.configPath))
	if err != nil {
		return nil, err
	}
	if flagSet.Changed("queue-dir") {
		cfg.QueueDir = f.queueDir
	}
	if flagSet.Changed("listen") {
		cfg.Submitter.ListenAddress = f.listenAddress
	}
	if flagSet.Changed("timeout") {
		cfg.Submitter.Timeout = f.timeout
	}
	if flagSet.Changed("streaming") {
		cfg.Submitter.Streaming = f.streaming
	}
	if flagSet.Changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if err := cfg.ValidateSubmitter(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func run(args []string) error {
	f, flagSet, err := parseFlags(args)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if f.showVersion {
		fmt.Println(version.Full("fsrelay-submitter"))
		return nil
	}

	cfg, err := loadConfig(f, flagSet)
	if err != nil {
		return err
	}
	level, err := process.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := process.NewLogger(level)
	slog.SetDefault(logger)

	dir, err := queue.Open(cfg.QueueDir)
	if err != nil {
		return err
	}
	recorder := metrics.New()

	relay, err := submitter.New(submitter.Config{
		Queue:          dir,
		Timeout:        cfg.Submitter.Timeout,
		PollInterval:   cfg.Submitter.PollInterval,
		ResponseSettle: cfg.Submitter.ResponseSettle,
		FragmentSettle: cfg.Submitter.FragmentSettle,
		RetryDelay:     cfg.Submitter.RetryDelay,
		Logger:         logger,
		Metrics:        recorder,
	})
	if err != nil {
		return err
	}
	server, err := submitter.NewServer(submitter.ServerConfig{
		Address: cfg.Submitter.ListenAddress,
		Handler: submitter.NewHandler(relay, cfg.Submitter.Streaming),
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	var metricsListener net.Listener
	if cfg.MetricsAddress != "" {
		metricsListener, err = net.Listen("tcp", cfg.MetricsAddress)
		if err != nil {
			return fmt.Errorf("listening for metrics on %s: %w", cfg.MetricsAddress, err)
		}
	}
	if err := server.Start(); err != nil {
		return err
	}

	logger.Info("starting fsrelay-submitter",
		"version", version.Info(),
		"queue_dir", dir.Root(),
		"timeout", cfg.Submitter.Timeout,
		"streaming", cfg.Submitter.Streaming,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		select {
		case err := <-server.Done():
			if err != nil {
				return fmt.Errorf("serving: %w", err)
			}
			return nil
		case <-ctx.Done():
		}
		logger.Info("received shutdown signal")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})
	if metricsListener != nil {
		group.Go(func() error { return recorder.Serve(ctx, metricsListener) })
	}

	process.NotifySystemd("READY=1")
	err = group.Wait()
	process.NotifySystemd("STOPPING=1")
	if err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}
