package proxy

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/commercekit/files-proxy/auth"
	"github.com/commercekit/files-proxy/instrumentation"
	"github.com/commercekit/files-proxy/storage"
	"github.com/commercekit/files-proxy/storage/memory"
	"github.com/commercekit/files-proxy/storage/valkey"
	"github.com/commercekit/files-proxy/upstream"
)

// Runtime bundles the wired components shared by the HTTP and MCP
// entrypoints. Construct it with NewRuntime and release it with Close.
type Runtime struct {
	Config          *Config
	Logger          *slog.Logger
	Issuer          *auth.Issuer
	Resolver        *auth.Resolver
	Upstream        *upstream.Client
	Sessions        storage.SessionTokenStore
	Instrumentation *instrumentation.Instrumentation

	closers []func()
}

// NewRuntime validates the configuration and wires the token issuer,
// resolver, session store, and upstream client.
func NewRuntime(cfg *Config, serviceVersion string) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger := NewLogger(cfg.LogLevel)

	inst, err := instrumentation.New(instrumentation.Config{
		ServiceName:    "files-proxy",
		ServiceVersion: serviceVersion,
		Enabled:        true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize instrumentation: %w", err)
	}

	rt := &Runtime{
		Config:          cfg,
		Logger:          logger,
		Instrumentation: inst,
	}
	rt.closers = append(rt.closers, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := inst.Shutdown(ctx); err != nil {
			logger.Warn("Instrumentation shutdown failed", "error", err)
		}
	})

	httpClient := &http.Client{Timeout: cfg.UpstreamTimeout}

	issuer, err := auth.NewIssuer(auth.IssuerConfig{
		TokenURL:        cfg.TokenURL(),
		ClientID:        cfg.ClientID,
		ClientSecret:    cfg.ClientSecret,
		HTTPClient:      httpClient,
		Logger:          logger,
		Instrumentation: inst,
	})
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to create token issuer: %w", err)
	}
	rt.Issuer = issuer

	sessions, err := rt.buildSessionStore()
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.Sessions = sessions

	resolver, err := auth.NewResolver(auth.ResolverConfig{
		Issuer:      issuer,
		Sessions:    sessions,
		DisableAuth: cfg.DisableAuth,
		Logger:      logger,
	})
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to create token resolver: %w", err)
	}
	rt.Resolver = resolver

	client, err := upstream.NewClient(upstream.Config{
		BaseURL:         cfg.BaseURL,
		APIVersion:      cfg.APIVersion,
		HTTPClient:      httpClient,
		Logger:          logger,
		Instrumentation: inst,
	})
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to create upstream client: %w", err)
	}
	rt.Upstream = client

	return rt, nil
}

func (rt *Runtime) buildSessionStore() (storage.SessionTokenStore, error) {
	switch rt.Config.SessionStore {
	case SessionStoreValkey:
		store, err := valkey.New(valkey.Config{
			Address:  rt.Config.ValkeyAddress,
			Password: rt.Config.ValkeyPassword,
			DB:       rt.Config.ValkeyDB,
			Logger:   rt.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create valkey session store: %w", err)
		}
		rt.closers = append(rt.closers, store.Close)
		return store, nil
	default:
		store := memory.New(rt.Logger)
		rt.closers = append(rt.closers, store.Stop)
		return store, nil
	}
}

// Close releases runtime resources in reverse construction order.
func (rt *Runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}

// NewLogger builds a JSON slog logger at the given level.
func NewLogger(level string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}
