package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/edgewatt/powerexporter/internal/broker"
	"github.com/edgewatt/powerexporter/internal/config"
	"github.com/edgewatt/powerexporter/internal/exporter"
	"github.com/edgewatt/powerexporter/internal/logger"
	"github.com/edgewatt/powerexporter/internal/pid"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 5 * time.Second
)

var settings *config.Settings

func init() {
	var err error
	settings, err = config.Load()
	if err != nil {
		fmt.Printf("failed to load settings: %v\n", err)
		os.Exit(1)
	}

	logger.Init(settings.LogLevel, logger.IsService())
	logger.Debug().Str("device_id", settings.DeviceID).Msg("Settings loaded")
}

func main() {
	if err := pid.Write(); err != nil {
		logger.Fatal().Err(err).Msg("failed to acquire pid file")
	}
	defer func() {
		if err := pid.Remove(); err != nil {
			logger.Error().Err(err).Msg("failed to remove pid file")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	rpcBroker := broker.New()
	defer func() {
		if err := rpcBroker.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close device broker")
		}
	}()

	service, err := exporter.NewService(ctx, exporter.Config{
		Settings: settings,
		Resolver: config.NewResolver(settings),
		Broker:   rpcBroker,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize exporter")
	}
	defer func() {
		if err := service.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close collector")
		}
	}()

	servers := startServers(service, rpcBroker, cancel)

	if err := service.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("error in main loop")
	}

	shutdownServers(servers)
	logger.Info().Msg("Exiting...")
}

// startServers brings up the exposition, management and device RPC
// listeners. A listener failing takes the process down with it.
func startServers(service *exporter.Service, rpcBroker *broker.Broker, cancel context.CancelFunc) []*http.Server {
	cfg := service.ActiveConfig()

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", service.MetricsHandler())

	servers := []*http.Server{
		{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           metricsMux,
			ReadHeaderTimeout: readHeaderTimeout,
		},
		{
			Addr:              fmt.Sprintf(":%d", cfg.ReloadPort),
			Handler:           service.ManagementHandler(),
			ReadHeaderTimeout: readHeaderTimeout,
		},
	}
	if cfg.Shelly != nil {
		servers = append(servers, &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Shelly.ListenPort),
			Handler:           broker.NewListener(rpcBroker),
			ReadHeaderTimeout: readHeaderTimeout,
		})
	}

	for _, srv := range servers {
		srv := srv
		go func() {
			logger.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Str("addr", srv.Addr).Msg("HTTP server failed")
				cancel()
			}
		}()
	}

	return servers
}

func shutdownServers(servers []*http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn().Err(err).Str("addr", srv.Addr).Msg("HTTP server shutdown failed")
		}
	}
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}
