// Command tilawa is the main entry point for the Tilawa recitation server.
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

	"github.com/goquran/tilawa/internal/app"
	"github.com/goquran/tilawa/internal/config"
	"github.com/goquran/tilawa/internal/speech"
	"github.com/goquran/tilawa/internal/speech/browser"
	"github.com/goquran/tilawa/internal/transcribe"
	oaitranscribe "github.com/goquran/tilawa/internal/transcribe/openai"
	"github.com/goquran/tilawa/internal/transcribe/whisperserver"
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
			fmt.Fprintf(os.Stderr, "tilawa: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "tilawa: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logLevel := new(slog.LevelVar)
	logLevel.Set(slogLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	slog.Info("tilawa starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	// ── Instantiate providers ─────────────────────────────────────────────────
	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers, app.WithLogLevel(logLevel))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, updated *config.Config) {
		application.ApplyConfig(ctx, old, updated)
	})
	if err != nil {
		slog.Warn("config watcher unavailable — hot reload disabled", "err", err)
	} else {
		defer watcher.Stop()
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

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── Transcribers ──────────────────────────────────────────────────────────

	reg.RegisterTranscriber("openai", func(entry config.ProviderEntry) (transcribe.Transcriber, error) {
		var opts []oaitranscribe.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaitranscribe.WithBaseURL(entry.BaseURL))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, oaitranscribe.WithLanguage(lang))
		}
		return oaitranscribe.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterTranscriber("whisper-server", func(entry config.ProviderEntry) (transcribe.Transcriber, error) {
		var opts []whisperserver.Option
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisperserver.WithLanguage(lang))
		}
		return whisperserver.New(entry.BaseURL, opts...)
	})

	// ── Speech outputs ────────────────────────────────────────────────────────

	reg.RegisterSpeaker("browser", func(entry config.ProviderEntry) (speech.Speaker, error) {
		return browser.New(), nil
	})
}

// buildProviders instantiates every provider named in the config. Unregistered
// names are skipped with a debug log so partial configs keep working.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	if name := cfg.Providers.Transcriber.Name; name != "" {
		p, err := reg.CreateTranscriber(cfg.Providers.Transcriber)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Debug("provider not yet implemented — skipping", "kind", "transcriber", "name", name)
		} else if err != nil {
			return nil, fmt.Errorf("create transcriber provider %q: %w", name, err)
		} else {
			ps.Transcriber = p
			slog.Info("provider created", "kind", "transcriber", "name", name)
		}
	}

	if name := cfg.Providers.Speech.Name; name != "" {
		p, err := reg.CreateSpeaker(cfg.Providers.Speech)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Debug("provider not yet implemented — skipping", "kind", "speech", "name", name)
		} else if err != nil {
			return nil, fmt.Errorf("create speech provider %q: %w", name, err)
		} else {
			ps.Speaker = p
			slog.Info("provider created", "kind", "speech", "name", name)
		}
	}

	return ps, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          Tilawa — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("Transcriber", cfg.Providers.Transcriber.Name, cfg.Providers.Transcriber.Model)
	printProvider("Speech", cfg.Providers.Speech.Name, "")
	fmt.Printf("║  Translation     : %-19s ║\n", cfg.Corpus.Language)
	fmt.Printf("║  Source mode     : %-19s ║\n", cfg.Source.Mode)
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
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
