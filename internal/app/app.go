// Package app wires all Tilawa subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the server loops, and Shutdown tears everything
// down in order.
//
// For testing, inject collaborators via functional options (WithCorpus,
// WithSpeaker, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/goquran/tilawa/internal/api"
	"github.com/goquran/tilawa/internal/config"
	"github.com/goquran/tilawa/internal/corpus"
	"github.com/goquran/tilawa/internal/health"
	"github.com/goquran/tilawa/internal/observe"
	"github.com/goquran/tilawa/internal/resilience"
	"github.com/goquran/tilawa/internal/session"
	"github.com/goquran/tilawa/internal/source"
	"github.com/goquran/tilawa/internal/speech"
	"github.com/goquran/tilawa/internal/speech/browser"
	"github.com/goquran/tilawa/internal/transcribe"
)

// shutdownGrace bounds how long the HTTP server may take to drain.
const shutdownGrace = 10 * time.Second

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	Transcriber transcribe.Transcriber
	Speaker     speech.Speaker
}

// sinkRelay lets the machine's notification sink be bound after the API
// server exists, since each needs the other.
type sinkRelay struct {
	mu sync.RWMutex
	fn session.Sink
}

func (r *sinkRelay) bind(fn session.Sink) {
	r.mu.Lock()
	r.fn = fn
	r.mu.Unlock()
}

func (r *sinkRelay) forward(n session.Notification) {
	r.mu.RLock()
	fn := r.fn
	r.mu.RUnlock()
	if fn != nil {
		fn(n)
	}
}

// App owns all subsystem lifetimes and orchestrates the recitation pipeline.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems — initialised in New, torn down in Shutdown.
	loader     *corpus.Loader
	machine    *session.Machine
	buffers    *transcribe.Buffers
	continuous *source.Continuous
	router     *source.Router
	server     *api.Server
	httpServer *http.Server
	metrics    *observe.Metrics
	logLevel   *slog.LevelVar

	// injected test doubles
	corpusOverride *corpus.Corpus
	speaker        speech.Speaker

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithCorpus injects a preloaded corpus instead of fetching one over HTTP.
func WithCorpus(c *corpus.Corpus) Option {
	return func(a *App) { a.corpusOverride = c }
}

// WithSpeaker injects a speech output instead of the browser speaker.
func WithSpeaker(s speech.Speaker) Option {
	return func(a *App) { a.speaker = s }
}

// WithLoader injects a corpus loader, letting tests point fetches at a local
// server.
func WithLoader(l *corpus.Loader) Option {
	return func(a *App) { a.loader = l }
}

// WithLogLevel hands the app the level var controlling the root logger, so
// config reloads can adjust verbosity at runtime.
func WithLogLevel(v *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = v }
}

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry).
//
// New performs all initialisation synchronously, including the initial corpus
// fetch, so a ready App can serve requests immediately.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
		metrics:   observe.DefaultMetrics(),
	}
	for _, o := range opts {
		o(a)
	}

	// Speech output: the configured provider, or the browser relay.
	if a.speaker == nil {
		if providers.Speaker != nil {
			a.speaker = providers.Speaker
		} else {
			a.speaker = browser.New()
		}
	}

	// Recitation machine. The sink is bound once the API server exists.
	relay := &sinkRelay{}
	a.machine = session.New(cfg.Tuning, a.speaker, session.WithSink(relay.forward))

	// Corpus.
	if err := a.initCorpus(ctx); err != nil {
		return nil, fmt.Errorf("app: init corpus: %w", err)
	}

	// Transcription buffers (chunked mode backend). The configured provider
	// runs behind a circuit breaker so repeated upstream failures back off
	// instead of stalling every flush.
	if providers.Transcriber != nil {
		name := cfg.Providers.Transcriber.Name
		if name == "" {
			name = "transcriber"
		}
		guarded := resilience.NewTranscriberFallback(providers.Transcriber, name, resilience.FallbackConfig{})
		a.buffers = transcribe.NewBuffers(guarded)
	} else {
		a.buffers = transcribe.NewBuffers(noTranscriber{})
	}

	// Transcript sources.
	a.continuous = source.NewContinuous(cfg.Source.Debounce())
	a.router = source.NewRouter()

	// API server.
	browserSpeaker, _ := a.speaker.(*browser.Speaker)
	a.server = api.NewServer(api.Config{
		Machine:        a.machine,
		Buffers:        a.buffers,
		Speaker:        browserSpeaker,
		Transcripts:    a.continuous,
		Health:         health.New(a.healthCheckers()...),
		Metrics:        a.metrics,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})
	relay.bind(a.server.Broadcast)

	a.httpServer = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           a.server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// initCorpus loads the reference corpus for the configured language.
func (a *App) initCorpus(ctx context.Context) error {
	if a.corpusOverride != nil {
		a.machine.SetCorpus(a.corpusOverride)
		return nil
	}
	if a.loader == nil {
		a.loader = a.newLoader()
	}
	c, err := a.loader.Fetch(ctx, a.cfg.Corpus.Language)
	if err != nil {
		return err
	}
	a.machine.SetCorpus(c)
	return nil
}

// newLoader builds the corpus loader, honouring a configured base URL
// override.
func (a *App) newLoader() *corpus.Loader {
	var opts []corpus.LoaderOption
	if a.cfg.Corpus.BaseURL != "" {
		opts = append(opts, corpus.WithURL(a.cfg.Corpus.Language, a.cfg.Corpus.BaseURL))
	}
	return corpus.NewLoader(opts...)
}

// healthCheckers builds the readiness probes.
func (a *App) healthCheckers() []health.Checker {
	return []health.Checker{
		{
			Name: "corpus",
			Check: func(context.Context) error {
				if !a.machine.CorpusReady() {
					return errors.New("corpus not loaded")
				}
				return nil
			},
		},
	}
}

// Run starts the HTTP server and the processing loops, blocking until ctx is
// cancelled or a loop fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	// Machine watchdog ticker.
	g.Go(func() error {
		return a.machine.Run(ctx)
	})

	// Transcript delta consumer: whatever source is active feeds the
	// machine in arrival order.
	if err := a.router.Switch(ctx, a.continuous); err != nil {
		return fmt.Errorf("app: start transcript source: %w", err)
	}
	g.Go(func() error {
		a.consumeDeltas(ctx)
		return nil
	})

	// Server-side flush loop for chunked mode.
	if a.cfg.Source.Mode == config.SourceChunked {
		g.Go(func() error {
			a.chunkedFlushLoop(ctx)
			return nil
		})
	}

	// HTTP server.
	g.Go(func() error {
		slog.Info("http server listening", "addr", a.cfg.Server.ListenAddr)
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.httpServer.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = a.httpServer.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return a.httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// consumeDeltas feeds transcript deltas from the active source into the
// machine, strictly in arrival order.
func (a *App) consumeDeltas(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-a.router.Deltas():
			if !ok {
				return
			}
			a.machine.Transcript(d.Text)
		}
	}
}

// chunkedFlushLoop periodically transcribes the active session's uploaded
// audio and feeds the delta to the machine. Busy and empty rounds are
// skipped; the next round picks up where they left off.
func (a *App) chunkedFlushLoop(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.Source.FlushInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := a.machine.Snapshot()
			if snap.ID == "" {
				continue
			}
			delta, err := a.buffers.Flush(ctx, snap.ID, "")
			switch {
			case errors.Is(err, transcribe.ErrBusy),
				errors.Is(err, transcribe.ErrNoAudio),
				errors.Is(err, transcribe.ErrSessionNotFound):
			case err != nil:
				slog.Warn("chunked flush failed", "error", err)
				a.metrics.RecordTranscribeError(ctx, a.cfg.Providers.Transcriber.Name)
			case delta != "":
				a.metrics.RecordTranscriptDelta(ctx, "chunked")
				a.machine.Transcript(delta)
			}
		}
	}
}

// ApplyConfig reacts to a configuration reload. Only hot-swappable settings
// are applied; listener and provider changes need a restart.
func (a *App) ApplyConfig(ctx context.Context, old, updated *config.Config) {
	diff := config.Diff(old, updated)

	if diff.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(slogLevel(diff.NewLogLevel))
		slog.Info("log level changed", "level", diff.NewLogLevel)
	}
	if diff.LanguageChanged {
		if a.loader == nil {
			a.loader = a.newLoader()
		}
		c, err := a.loader.Fetch(ctx, diff.NewLanguage)
		if err != nil {
			slog.Error("corpus reload failed; keeping previous language",
				"language", diff.NewLanguage, "error", err)
		} else {
			a.machine.SetCorpus(c)
		}
	}
	if diff.TuningChanged || diff.SourceChanged {
		slog.Warn("tuning and source settings apply on restart")
	}
	a.cfg = updated
}

// Shutdown tears down all subsystems. Safe to call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	a.stopOnce.Do(func() {
		slog.Info("shutting down")
		a.machine.Stop()
		if closeErr := a.router.Close(); closeErr != nil {
			slog.Warn("source shutdown error", "error", closeErr)
		}
		err = a.httpServer.Shutdown(ctx)
		slog.Info("shutdown complete")
	})
	return err
}

// slogLevel converts a config log level to its slog equivalent.
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

// noTranscriber rejects transcription when no provider is configured, which
// is the normal state in continuous mode.
type noTranscriber struct{}

func (noTranscriber) Transcribe(context.Context, []byte, string) (string, error) {
	return "", errors.New("no transcription provider configured")
}
