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

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/bureau-foundation/fsrelay/dispatcher"
	"github.com/bureau-foundation/fsrelay/lib/config"
	"github.com/bureau-foundation/fsrelay/lib/credential"
	"github.com/bureau-foundation/fsrelay/lib/metrics"
	"github.com/bureau-foundation/fsrelay/lib/process"
	"github.com/bureau-foundation/fsrelay/lib/queue"
	"github.com/bureau-foundation/fsrelay/lib/secret"
	"github.com/bureau-foundation/fsrelay/lib/version"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		process.Fatal(err)
	}
}

type flags struct {
	configPath     string
	queueDir       string
	upstream       string
	maxWorkers     int
	credentialFile string
	logLevel       string
	showVersion    bool
}

func parseFlags(args []string) (*flags, *pflag.FlagSet, error) {
	var f flags
	flagSet := pflag.NewFlagSet("fsrelay-dispatcher", pflag.ContinueOnError)
	flagSet.StringVar(&f.configPath, "config", "", "path to config file (default: $"+config.EnvVar+")")
	flagSet.StringVar(&f.queueDir, "queue-dir", "", "shared queue directory")
	flagSet.StringVar(&f.upstream, "upstream", "", "base URL of the upstream API")
	flagSet.IntVar(&f.maxWorkers, "max-workers", 0, "maximum concurrent upstream calls (0 is unbounded)")
	flagSet.StringVar(&f.credentialFile, "credential-file", "", "KEY=value credentials file, consulted before the environment")
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

func loadConfig(f *flags, flagSet *pflag.FlagSet) (*config.Config, error) {
	cfg, err := config.Load(config.Path(f.configPath))
	if err != nil {
		return nil, err
	}
	if flagSet.Changed("queue-dir") {
		cfg.QueueDir = f.queueDir
	}
	if flagSet.Changed("upstream") {
		cfg.Dispatcher.Upstream = f.upstream
	}
	if flagSet.Changed("max-workers") {
		cfg.Dispatcher.MaxWorkers = f.maxWorkers
	}
	if flagSet.Changed("credential-file") {
		cfg.Dispatcher.CredentialFile = f.credentialFile
	}
	if flagSet.Changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if err := cfg.ValidateDispatcher(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// lookupAPIKey resolves the configured credential name. A missing key
// is not an error: local upstreams commonly need none.
func lookupAPIKey(cfg *config.Config, credentials credential.Chain, logger *slog.Logger) (*secret.Buffer, error) {
	name := cfg.Dispatcher.APIKeyCredential
	if name == "" {
		return nil, nil
	}
	key := credentials.Get(name)
	for _, source := range credentials {
		if file, ok := source.(*credential.File); ok && file.Err() != nil {
			return nil, file.Err()
		}
	}
	if key == nil {
		logger.Warn("API key not found, calling upstream without authentication",
			"credential", name,
			"environment_variable", credential.EnvName(name),
		)
		return nil, nil
	}
	logger.Info("using API key", "credential", name)
	return key, nil
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
		fmt.Println(version.Full("fsrelay-dispatcher"))
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

	credentials := credential.Default(cfg.Dispatcher.CredentialFile)
	defer credentials.Close()
	apiKey, err := lookupAPIKey(cfg, credentials, logger)
	if err != nil {
		return err
	}

	var filter *dispatcher.PathFilter
	if len(cfg.Dispatcher.Allowed) > 0 || len(cfg.Dispatcher.Blocked) > 0 {
		filter = &dispatcher.PathFilter{
			Allowed: cfg.Dispatcher.Allowed,
			Blocked: cfg.Dispatcher.Blocked,
		}
	}

	relay, err := dispatcher.New(dispatcher.Config{
		Queue:           dir,
		Upstream:        cfg.Dispatcher.Upstream,
		UpstreamTimeout: cfg.Dispatcher.UpstreamTimeout,
		APIKey:          apiKey,
		Filter:          filter,
		Logger:          logger,
		Metrics:         recorder,
	})
	if err != nil {
		return err
	}
	scanner, err := dispatcher.NewScanner(dispatcher.ScannerConfig{
		Queue:      dir,
		Processor:  relay,
		Interval:   cfg.Dispatcher.PollInterval,
		MaxWorkers: cfg.Dispatcher.MaxWorkers,
		Logger:     logger,
		Metrics:    recorder,
	})
	if err != nil {
		return err
	}
	reclaimer := &queue.Reclaimer{
		Dir:      dir,
		MaxAge:   cfg.Reclaimer.MaxAge,
		Interval: cfg.Reclaimer.Interval,
		Logger:   logger,
		Metrics:  recorder,
	}

	var metricsListener net.Listener
	if cfg.MetricsAddress != "" {
		metricsListener, err = net.Listen("tcp", cfg.MetricsAddress)
		if err != nil {
			return fmt.Errorf("listening for metrics on %s: %w", cfg.MetricsAddress, err)
		}
	}

	logger.Info("starting fsrelay-dispatcher",
		"version", version.Info(),
		"queue_dir", dir.Root(),
		"upstream", cfg.Dispatcher.Upstream,
		"max_workers", cfg.Dispatcher.MaxWorkers,
		"max_age", cfg.Reclaimer.MaxAge,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		scanner.Run(ctx)
		return nil
	})
	group.Go(func() error {
		reclaimer.Run(ctx)
		return nil
	})
	if metricsListener != nil {
		group.Go(func() error { return recorder.Serve(ctx, metricsListener) })
	}

	process.NotifySystemd("READY=1")
	err = group.Wait()
	process.NotifySystemd("STOPPING=1")

	logger.Info("waiting for in-flight requests")
	scanner.Wait()
	if err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}
