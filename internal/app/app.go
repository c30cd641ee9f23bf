// Package app wires all FaceDancer subsystems into a running service.
//
// The App struct owns the full lifecycle: New connects the session backend
// and validates providers, Run serves the HTTP surface (conversation
// websocket, admin endpoints, health, metrics), and Shutdown tears
// everything down in order.
//
// For testing, inject test doubles via functional options (WithStoreFactory,
// WithMetrics, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/sofie-labs/facedancer/internal/config"
	"github.com/sofie-labs/facedancer/internal/health"
	"github.com/sofie-labs/facedancer/internal/observe"
	"github.com/sofie-labs/facedancer/internal/session"
	"github.com/sofie-labs/facedancer/pkg/provider/avatar"
	"github.com/sofie-labs/facedancer/pkg/provider/llm"
	"github.com/sofie-labs/facedancer/pkg/provider/room"
	"github.com/sofie-labs/facedancer/pkg/provider/stt"
)

// Providers holds one interface value per provider slot. LLM, STT and Avatar
// are required; a nil Room disables the room endpoints. Populated by main.go
// from the config.
type Providers struct {
	LLM    llm.Provider
	STT    stt.Provider
	Avatar avatar.Provider
	Room   room.Provider
}

// StoreFactory builds a per-conversation session store seeded with the given
// history seeder.
type StoreFactory func(seed session.Seeder) (session.Store, error)

// App owns all subsystem lifetimes and serves the FaceDancer HTTP surface.
type App struct {
	cfg       *config.Config
	providers *Providers

	log      *slog.Logger
	metrics  *observe.Metrics
	newStore StoreFactory
	redis    *redis.Client

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithLogger injects the application logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.log = l }
}

// WithMetrics injects the metrics set. Defaults to the process-wide set.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithStoreFactory injects a session store factory instead of creating one
// from the config's session block.
func WithStoreFactory(f StoreFactory) Option {
	return func(a *App) { a.newStore = f }
}

// New creates an App by validating providers and connecting the session
// backend. Use Option functions to inject test doubles for any subsystem.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		return nil, errors.New("app: providers are required")
	}
	switch {
	case providers.LLM == nil:
		return nil, errors.New("app: LLM provider is required")
	case providers.STT == nil:
		return nil, errors.New("app: STT provider is required")
	case providers.Avatar == nil:
		return nil, errors.New("app: avatar provider is required")
	}

	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.log == nil {
		a.log = slog.Default()
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if providers.Room == nil {
		a.log.Warn("no room provider configured; room endpoints are disabled")
	}

	if a.newStore == nil {
		if err := a.initStoreFactory(ctx); err != nil {
			return nil, fmt.Errorf("app: init session backend: %w", err)
		}
	}

	return a, nil
}

// initStoreFactory connects Redis when configured, falling back to the
// in-process store otherwise.
func (a *App) initStoreFactory(ctx context.Context) error {
	ttl := session.DefaultTTL
	if s := a.cfg.Session.TTLSeconds; s > 0 {
		ttl = time.Duration(s) * time.Second
	}

	if addr := a.cfg.Session.RedisAddr; addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: a.cfg.Session.RedisPassword,
			DB:       a.cfg.Session.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return fmt.Errorf("ping redis %q: %w", addr, err)
		}
		a.redis = client
		a.closers = append(a.closers, client.Close)
		a.newStore = func(seed session.Seeder) (session.Store, error) {
			return session.NewRedisStore(client, seed,
				session.WithTTL(ttl),
				session.WithLogger(a.log),
			)
		}
		a.log.Info("session backend connected", "redis_addr", addr, "ttl", ttl)
		return nil
	}

	a.newStore = func(seed session.Seeder) (session.Store, error) {
		return session.NewMemoryStore(seed,
			session.WithMemoryTTL(ttl),
			session.WithMemoryLogger(a.log),
		), nil
	}
	a.log.Info("session backend is in-process memory")
	return nil
}

// Handler returns the full HTTP surface: the conversation websocket, the
// admin endpoints, health probes and Prometheus metrics.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()

	checkers := []health.Checker{health.AvatarChecker(a.providers.Avatar)}
	if a.redis != nil {
		checkers = append(checkers, health.RedisChecker(a.redis))
	}
	health.New(checkers...).Register(mux)

	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /v1/conversation", a.handleConversation)

	a.registerAdmin(mux)

	return observe.Middleware(a.metrics)(mux)
}

// Run serves the HTTP surface until ctx is cancelled, then drains in-flight
// requests.
func (a *App) Run(ctx context.Context) error {
	addr := a.cfg.Server.ListenAddr
	if addr == "" {
		addr = ":8080"
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("listening", "addr", addr, "tls", a.cfg.Server.TLS != nil)
		if tls := a.cfg.Server.TLS; tls != nil {
			errCh <- srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
			return
		}
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(drainCtx); err != nil {
			a.log.Warn("http drain error", "error", err)
		}
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	}
}

// Shutdown tears down all subsystems in reverse-init order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.log.Info("shutting down", "closers", len(a.closers))
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				a.log.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				a.log.Warn("closer error", "index", i, "error", err)
			}
		}
		a.log.Info("shutdown complete")
	})
	return shutdownErr
}
