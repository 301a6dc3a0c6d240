package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"chatrelay/internal/config"
	"chatrelay/internal/handlers"
	"chatrelay/internal/httpserver"
	"chatrelay/internal/llm"
	"chatrelay/internal/metrics"
	"chatrelay/pkg/logging"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("chatrelay exited with error: %v", err)
	}
}

func run() error {
	// ----- Logger -----
	logger := logging.DefaultLogger()
	defer logger.Sync()

	// ----- Config -----
	if err := config.LoadDotEnv(); err != nil {
		logger.Error("dotenv load failed", zap.Error(err))
		return err
	}

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		logger.Error("invalid configuration", zap.Error(err))
		return err
	}

	adapter := cfg.Adapter()

	logger.Info("loaded config",
		zap.String("port", cfg.Port),
		zap.String("provider", cfg.Provider),
		zap.String("endpoint", adapter.Endpoint()),
		zap.String("frontend_origin", cfg.FrontendOrigin),
		zap.Duration("upstream_timeout", cfg.UpstreamTimeout),
	)

	// ----- Metrics -----
	metrics.Register(prometheus.DefaultRegisterer)

	// ----- Upstream relay -----
	relay, err := llm.NewRelay(cfg.RelayConfig(), adapter, logger)
	if err != nil {
		return err
	}
	defer relay.Close()

	// ----- Router + middleware -----
	r := chi.NewRouter()
	httpserver.SetupRouter(r, logger, httpserver.Options{
		FrontendOrigin: cfg.FrontendOrigin,
	}, handlers.NewChatHandler(relay))

	// ----- HTTP server -----
	// WriteTimeout leaves room for a full upstream call.
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.UpstreamTimeout + 10*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting chatrelay", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// ----- Graceful shutdown -----
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		if err != nil {
			logger.Error("server error", zap.Error(err))
			return err
		}
		return nil
	case <-stop:
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.UpstreamTimeout+5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
		return err
	}

	logger.Info("server shutdown complete")
	return nil
}
