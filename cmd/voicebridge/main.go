// Command voicebridge is the main entry point for the voicebridge streaming
// transcription and translation server.
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

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/voicebridge-ai/voicebridge/internal/archive"
	"github.com/voicebridge-ai/voicebridge/internal/config"
	"github.com/voicebridge-ai/voicebridge/internal/observe"
	"github.com/voicebridge-ai/voicebridge/internal/resilience"
	"github.com/voicebridge-ai/voicebridge/internal/server"
	"github.com/voicebridge-ai/voicebridge/internal/session"
	"github.com/voicebridge-ai/voicebridge/internal/translator"
	"github.com/voicebridge-ai/voicebridge/pkg/asr"
	"github.com/voicebridge-ai/voicebridge/pkg/asr/whisper"
	"github.com/voicebridge-ai/voicebridge/pkg/translate"
	"github.com/voicebridge-ai/voicebridge/pkg/translate/anyllm"
	oaitranslate "github.com/voicebridge-ai/voicebridge/pkg/translate/openai"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voicebridge: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voicebridge: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("voicebridge starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(context.Background(), observe.ProviderConfig{
		ServiceName: "voicebridge",
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
	metrics := observe.DefaultMetrics()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	// ── ASR engine ────────────────────────────────────────────────────────────
	engine, err := reg.CreateASR(cfg.ASR)
	if err != nil {
		slog.Error("failed to create transcription engine", "backend", cfg.ASR.Backend, "err", err)
		return 1
	}
	asrSvc := asr.NewService(engine)
	defer func() {
		if err := asrSvc.Close(); err != nil {
			slog.Warn("closing transcription engine", "err", err)
		}
	}()

	// ── Translation pool ──────────────────────────────────────────────────────
	providers, err := buildTranslators(cfg, reg)
	if err != nil {
		slog.Error("failed to build translation providers", "err", err)
		return 1
	}
	pool := translator.NewPool(providers, translator.Config{
		MaxAttempts:  cfg.Translator.MaxAttempts,
		RetryDelay:   time.Duration(cfg.Translator.RetryDelayMS) * time.Millisecond,
		ChunkSize:    cfg.Translator.ChunkSize,
		ContextDepth: cfg.Translator.ContextDepth,
	}, translator.WithMetrics(metrics))

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Archive (optional) ────────────────────────────────────────────────────
	var store *archive.Store
	if cfg.Archive.PostgresDSN != "" {
		store, err = archive.New(ctx, cfg.Archive.PostgresDSN)
		if err != nil {
			slog.Error("failed to connect transcript archive", "err", err)
			return 1
		}
		defer store.Close()
		slog.Info("transcript archive connected")
	}

	// ── Session manager and server ────────────────────────────────────────────
	manager := session.NewManager(session.ManagerConfig{
		MaxSpeakers:       cfg.Capacity.MaxSpeakers,
		MaxListeners:      cfg.Capacity.MaxListeners,
		MaxConnectionTime: time.Duration(cfg.Capacity.MaxConnectionTime) * time.Second,
		HeartbeatInterval: time.Duration(cfg.Capacity.HeartbeatInterval) * time.Second,
	}, metrics, logger)

	srvCfg := server.Config{
		ListenAddr:  cfg.Server.ListenAddr,
		ModelSize:   cfg.ASR.ModelSize,
		DefaultTask: string(cfg.ASR.Task),
	}
	if cfg.Server.TLS != nil {
		srvCfg.TLSCertFile = cfg.Server.TLS.CertFile
		srvCfg.TLSKeyFile = cfg.Server.TLS.KeyFile
	}
	deps := server.Deps{
		Manager:    manager,
		ASR:        asrSvc,
		Translator: pool,
		Metrics:    metrics,
		Logger:     logger,
	}
	if store != nil {
		deps.Archiver = store
	}
	srv := server.New(srvCfg, deps)

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg, len(providers))

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives its config block and constructs the provider from the
// real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── ASR ───────────────────────────────────────────────────────────────────

	reg.RegisterASR("whisper-native", func(cfg config.ASRConfig) (asr.Engine, error) {
		return whisper.New(cfg.ModelPath)
	})

	// ── Translation ───────────────────────────────────────────────────────────

	// The native openai client supports OpenAI-compatible endpoints through
	// base_url, so it also covers self-hosted gateways.
	reg.RegisterTranslate("openai", func(entry config.ProviderEntry) (translate.Provider, error) {
		apiKey := entry.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		var opts []oaitranslate.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaitranslate.WithBaseURL(entry.BaseURL))
		}
		return oaitranslate.New(apiKey, entry.Model, opts...)
	})

	// groq, mistral, deepseek, llamacpp and llamafile all share the same
	// pattern: optional APIKey + optional BaseURL via any-llm-go.
	for _, providerName := range []string{
		"groq", "mistral", "deepseek", "llamacpp", "llamafile",
	} {
		reg.RegisterTranslate(providerName, func(entry config.ProviderEntry) (translate.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterTranslate("ollama", func(entry config.ProviderEntry) (translate.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.NewOllama(entry.Model, opts...)
	})

	// "anyllm" routes to any backend any-llm-go knows about; the concrete
	// backend name comes from the options block.
	reg.RegisterTranslate("anyllm", func(entry config.ProviderEntry) (translate.Provider, error) {
		backend := optString(entry.Options, "backend")
		if backend == "" {
			return nil, errors.New("anyllm provider requires options.backend")
		}
		var opts []anyllmlib.Option
		if entry.APIKey != "" {
			opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
		}
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New(backend, entry.Model, opts...)
	})
}

// buildTranslators instantiates every configured translation provider and
// wraps each one in its own circuit breaker so a dead endpoint is skipped by
// the pool's round-robin until its reset timeout elapses.
func buildTranslators(cfg *config.Config, reg *config.Registry) ([]translate.Provider, error) {
	providers := make([]translate.Provider, 0, len(cfg.Translator.Providers))
	for i, entry := range cfg.Translator.Providers {
		p, err := reg.CreateTranslate(entry)
		if err != nil {
			return nil, fmt.Errorf("translator.providers[%d] (%s): %w", i, entry.Name, err)
		}
		providers = append(providers, resilience.Guard(p, resilience.CircuitBreakerConfig{}))
		slog.Info("translation provider ready", "name", p.Name(), "model", entry.Model)
	}
	return providers, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, providerCount int) {
	fmt.Println("╔═══════════════════════════════════════════╗")
	fmt.Println("║       voicebridge — startup summary       ║")
	fmt.Println("╠═══════════════════════════════════════════╣")
	fmt.Printf("║  Listen addr     : %-22s ║\n", cfg.Server.ListenAddr)
	fmt.Printf("║  ASR backend     : %-22s ║\n", cfg.ASR.Backend)
	fmt.Printf("║  Model           : %-22s ║\n", summaryModel(cfg))
	fmt.Printf("║  Task            : %-22s ║\n", cfg.ASR.Task)
	fmt.Printf("║  Translators     : %-22d ║\n", providerCount)
	fmt.Printf("║  Max speakers    : %-22d ║\n", cfg.Capacity.MaxSpeakers)
	fmt.Printf("║  Max listeners   : %-22d ║\n", cfg.Capacity.MaxListeners)
	if cfg.Archive.PostgresDSN != "" {
		fmt.Printf("║  Archive         : %-22s ║\n", "postgres")
	} else {
		fmt.Printf("║  Archive         : %-22s ║\n", "(disabled)")
	}
	if cfg.Server.TLS != nil {
		fmt.Printf("║  TLS             : %-22s ║\n", "enabled")
	} else {
		fmt.Printf("║  TLS             : %-22s ║\n", "plain http")
	}
	fmt.Println("╚═══════════════════════════════════════════╝")
}

func summaryModel(cfg *config.Config) string {
	if cfg.ASR.ModelSize != "" {
		return cfg.ASR.ModelSize
	}
	return cfg.ASR.ModelPath
}

// ── Logging ───────────────────────────────────────────────────────────────────

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

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}
