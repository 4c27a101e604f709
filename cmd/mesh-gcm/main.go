// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/jhu-cisst/cisst-sub002/lib/config"
	"github.com/jhu-cisst/cisst-sub002/lib/gcm"
	"github.com/jhu-cisst/cisst-sub002/lib/managerproxy"
	"github.com/jhu-cisst/cisst-sub002/lib/metrics"
	"github.com/jhu-cisst/cisst-sub002/lib/version"
	"github.com/jhu-cisst/cisst-sub002/transport"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath    string
		listenAddress string
		metricsListen string
		logLevel      string
		showVersion   bool
	)

	flagSet := pflag.NewFlagSet("mesh-gcm", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to the config file (default: $MESH_CONFIG)")
	flagSet.StringVar(&listenAddress, "listen", "", "manager proxy listen address (overrides global.listen_address)")
	flagSet.StringVar(&metricsListen, "metrics-listen", "", "Prometheus listen address (overrides metrics.listen_address)")
	flagSet.StringVar(&logLevel, "log-level", "", "log level (overrides log.level)")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if showVersion {
		fmt.Printf("mesh-gcm %s\n", version.Info())
		return nil
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if flagSet.Changed("listen") {
		cfg.Global.ListenAddress = listenAddress
	}
	if flagSet.Changed("metrics-listen") {
		cfg.Metrics.ListenAddress = metricsListen
	}
	if flagSet.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := cfg.Log.NewLogger(os.Stderr)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return serve(ctx, cfg, logger)
}

// loadConfig reads the file named by --config, or by MESH_CONFIG when
// the flag is absent. With neither, the defaults are used.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	if os.Getenv(config.EnvVar) != "" {
		return config.Load()
	}
	return config.Default(), nil
}

// serve runs the GCM, its manager proxy server, and the metrics
// endpoint until ctx is cancelled or one of them fails.
func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.New(registry)

	manager := gcm.New(gcm.Config{
		Logger:                logger.With("component", "gcm"),
		ConnectConfirmTimeout: cfg.Global.ConnectConfirmTimeout,
		SweepInterval:         cfg.Global.SweepInterval,
		Metrics:               recorder,
	})

	listener, err := transport.NewTCPListener(cfg.Global.ListenAddress)
	if err != nil {
		return err
	}
	server, err := managerproxy.NewServer(managerproxy.ServerConfig{
		GCM:           manager,
		Listener:      listener,
		Logger:        logger.With("component", "manager_proxy"),
		RefreshPeriod: cfg.Proxy.RefreshPeriod,
		CallTimeout:   cfg.Proxy.CallTimeout,
		Metrics:       recorder,
	})
	if err != nil {
		listener.Close()
		return err
	}

	logger.Info("global component manager started",
		"version", version.Info(),
		"listen_address", server.Address(),
		"metrics_address", cfg.Metrics.ListenAddress,
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return server.Serve(groupCtx)
	})
	group.Go(func() error {
		return manager.Run(groupCtx)
	})
	if cfg.Metrics.ListenAddress != "" {
		metricsServer := &http.Server{
			Addr:              cfg.Metrics.ListenAddress,
			Handler:           metricsHandler(registry),
			ReadHeaderTimeout: 5 * time.Second,
		}
		group.Go(func() error {
			if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics endpoint: %w", err)
			}
			return nil
		})
		group.Go(func() error {
			<-groupCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return metricsServer.Shutdown(shutdownCtx)
		})
	}

	err = group.Wait()
	manager.Cleanup()
	logger.Info("global component manager stopped")
	return err
}

func metricsHandler(registry *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	return mux
}
