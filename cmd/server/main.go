package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"taxihub/internal/broker"
	"taxihub/internal/config"
	"taxihub/internal/coordinator"
	"taxihub/internal/otelutil"
	"taxihub/internal/rmq"
	"taxihub/internal/store/memory"
	"taxihub/internal/store/postgres"
	"taxihub/internal/trip"
)

func main() {
	defaultConfig := os.Getenv("TAXIHUB_CONFIG")
	if defaultConfig == "" {
		defaultConfig = "config.yaml"
	}
	configPath := flag.String("config", defaultConfig, "path to config file")
	flag.Parse()

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("config load failed", "path", *configPath, "error", err)
		os.Exit(1)
	}

	if err := otelutil.Init(); err != nil {
		log.Debug("tracing disabled", "reason", err)
	}
	defer otelutil.Flush()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		trips trip.Store
		dir   trip.Directory
	)
	if cfg.Database.DSN != "" {
		pool, err := postgres.Connect(ctx, cfg.Database.DSN)
		if err != nil {
			log.Error("database connect failed", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		trips = postgres.NewTripStore(pool)
		dir = postgres.NewUserDirectory(pool)
		log.Info("database connected")
	} else {
		trips = memory.NewStore()
		dir = memory.NewDirectory()
		log.Warn("no database configured, using in-memory store")
	}

	var events coordinator.TripEvents
	if cfg.Rabbit.Enabled {
		mq := rmq.New(cfg.Rabbit.URL, log)
		if err := mq.Connect(ctx); err != nil {
			log.Error("rabbitmq connect failed", "error", err)
			os.Exit(1)
		}
		defer mq.Close()
		events = rmq.NewStatusPublisher(mq, log)
		log.Info("rabbitmq ready", "exchange", rmq.ExchangeTrips)
	}

	b := broker.NewMemory()
	manager := coordinator.NewManager(log, b, dir, trips)
	rep := trip.NewRepresenter(dir)
	co := coordinator.NewCoordinator(log, b, trips, rep, manager, events)
	srv := NewServer(log, manager, b, co.Router())

	httpSrv := &http.Server{
		Addr:    cfg.Addr,
		Handler: srv.routes(),
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Error("forced shutdown", "error", err)
		}
		cancel()
	}()

	log.Info("server listening", "addr", cfg.Addr)
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
