// Command facedancer is the main entry point for the FaceDancer
// speech-to-reply orchestration server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/sofie-labs/facedancer/internal/app"
	"github.com/sofie-labs/facedancer/internal/config"
	"github.com/sofie-labs/facedancer/internal/observe"
	"github.com/sofie-labs/facedancer/pkg/provider/avatar/heygen"
	"github.com/sofie-labs/facedancer/pkg/provider/llm/openai"
	"github.com/sofie-labs/facedancer/pkg/provider/room/twilio"
	"github.com/sofie-labs/facedancer/pkg/provider/stt/deepgram"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// .env is optional; real deployments export the variables directly.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "facedancer: load .env: %v\n", err)
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "facedancer: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "facedancer: %v\n", err)
		}
		return 1
	}
	applyEnvOverrides(cfg)

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("facedancer starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
		"use_cases", len(cfg.UseCases),
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "facedancer",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Providers ─────────────────────────────────────────────────────────────
	providers, err := buildProviders(cfg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Application ───────────────────────────────────────────────────────────
	application, err := app.New(ctx, cfg, providers, app.WithLogger(logger))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// buildProviders constructs the real vendor providers from the config.
func buildProviders(cfg *config.Config) (*app.Providers, error) {
	ps := &app.Providers{}

	llmProvider, err := openai.New(cfg.Providers.LLM.APIKey, cfg.Providers.LLM.Model,
		llmOptions(cfg.Providers.LLM)...)
	if err != nil {
		return nil, fmt.Errorf("create llm provider: %w", err)
	}
	ps.LLM = llmProvider
	slog.Info("provider created", "kind", "llm", "name", "openai", "model", cfg.Providers.LLM.Model)

	sttProvider, err := deepgram.New(cfg.Providers.STT.APIKey, sttOptions(cfg.Providers.STT)...)
	if err != nil {
		return nil, fmt.Errorf("create stt provider: %w", err)
	}
	ps.STT = sttProvider
	slog.Info("provider created", "kind", "stt", "name", "deepgram", "model", cfg.Providers.STT.Model)

	var avatarOpts []heygen.Option
	if cfg.Providers.Avatar.BaseURL != "" {
		avatarOpts = append(avatarOpts, heygen.WithBaseURL(cfg.Providers.Avatar.BaseURL))
	}
	avatarProvider, err := heygen.New(cfg.Providers.Avatar.APIKey, avatarOpts...)
	if err != nil {
		return nil, fmt.Errorf("create avatar provider: %w", err)
	}
	ps.Avatar = avatarProvider
	slog.Info("provider created", "kind", "avatar", "name", "heygen")

	if rc := cfg.Providers.Room; rc.AccountSID != "" {
		roomProvider, err := twilio.New(twilio.Config{
			AccountSID:       rc.AccountSID,
			APIKey:           rc.APIKey,
			APISecret:        rc.APISecret,
			EmptyRoomTimeout: time.Duration(rc.EmptyRoomTimeoutMinutes) * time.Minute,
			MaxParticipants:  rc.MaxParticipants,
			TokenTTL:         time.Duration(rc.TokenTTLSeconds) * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("create room provider: %w", err)
		}
		ps.Room = roomProvider
		slog.Info("provider created", "kind", "room", "name", "twilio")
	}

	return ps, nil
}

func llmOptions(lc config.LLMConfig) []openai.Option {
	var opts []openai.Option
	if lc.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(lc.BaseURL))
	}
	return opts
}

func sttOptions(sc config.STTConfig) []deepgram.Option {
	var opts []deepgram.Option
	if sc.Model != "" {
		opts = append(opts, deepgram.WithModel(sc.Model))
	}
	if sc.Language != "" {
		opts = append(opts, deepgram.WithLanguage(sc.Language))
	}
	if sc.SampleRate > 0 {
		opts = append(opts, deepgram.WithSampleRate(sc.SampleRate))
	}
	return opts
}

// applyEnvOverrides fills credentials left empty in the config file from the
// environment, so secrets never need to live on disk next to the config.
func applyEnvOverrides(cfg *config.Config) {
	overlay(&cfg.Providers.LLM.APIKey, "OPENAI_API_KEY")
	overlay(&cfg.Providers.STT.APIKey, "DEEPGRAM_API_KEY")
	overlay(&cfg.Providers.Avatar.APIKey, "HEYGEN_API_KEY")
	overlay(&cfg.Providers.Room.AccountSID, "TWILIO_ACCOUNT_SID")
	overlay(&cfg.Providers.Room.APIKey, "TWILIO_API_KEY")
	overlay(&cfg.Providers.Room.APISecret, "TWILIO_API_SECRET")
	overlay(&cfg.Session.RedisAddr, "REDIS_ADDR")
	overlay(&cfg.Session.RedisPassword, "REDIS_PASSWORD")
}

func overlay(dst *string, envKey string) {
	if *dst == "" {
		if v := os.Getenv(envKey); v != "" {
			*dst = v
		}
	}
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
