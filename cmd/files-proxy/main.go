// Command files-proxy runs the HTTP proxy in front of the platform Files API.
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

	proxy "github.com/commercekit/files-proxy"
	"github.com/commercekit/files-proxy/security"
)

var version = "dev"

func main() {
	cfg := proxy.LoadConfig()

	rt, err := proxy.NewRuntime(cfg, version)
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
	defer rt.Close()

	logger := rt.Logger

	var rateLimiter *security.RateLimiter
	if cfg.RateLimitRPS > 0 {
		rateLimiter = security.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, logger)
		defer rateLimiter.Stop()
	}

	handler, err := proxy.NewHandler(proxy.HandlerConfig{
		Config:          cfg,
		Resolver:        rt.Resolver,
		Upstream:        rt.Upstream,
		RateLimiter:     rateLimiter,
		Auditor:         security.NewAuditor(logger, cfg.AuditLogEnabled),
		Logger:          logger,
		Instrumentation: rt.Instrumentation,
	})
	if err != nil {
		log.Fatalf("Failed to create handler: %v", err)
	}

	srv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      handler.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("Files proxy listening",
			"addr", srv.Addr,
			"upstream", cfg.BaseURL,
			"session_store", cfg.SessionStore,
			"version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Forced shutdown", "error", err)
	}
}
