// Package app assembles a runnable DevHub from configuration: fixtures,
// backends, tool registry, completion provider, orchestrator, session
// memory and telemetry.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	openai "github.com/sashabaranov/go-openai"

	"github.com/devhub/devhub-go/adapter/llm"
	"github.com/devhub/devhub-go/config"
	"github.com/devhub/devhub-go/data"
	"github.com/devhub/devhub-go/faults"
	"github.com/devhub/devhub-go/memory"
	"github.com/devhub/devhub-go/middleware"
	"github.com/devhub/devhub-go/observability"
	"github.com/devhub/devhub-go/orchestrator"
	"github.com/devhub/devhub-go/services"
	"github.com/devhub/devhub-go/tools"
	"github.com/devhub/devhub-go/vectorstore"
)

// App is a fully wired DevHub.
type App struct {
	Config       *config.Config
	Logger       *slog.Logger
	Injector     *faults.Injector
	DocSearch    *services.DocSearch
	Directory    *services.Directory
	Health       *services.Health
	Registry     *tools.Registry
	LLM          llm.LLM
	Orchestrator *orchestrator.Orchestrator
	Memory       memory.Memory
	Metrics      *prometheus.Registry

	closers []func(context.Context) error
}

// Option overrides part of the assembly.
type Option func(*options)

type options struct {
	llm    llm.LLM
	logger *slog.Logger
	clock  faults.Clock
}

// WithLLM uses completion instead of building a provider from config.
func WithLLM(completion llm.LLM) Option {
	return func(o *options) { o.llm = completion }
}

// WithLogger uses logger instead of one built from config.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithClock sets the clock backends sleep on.
func WithClock(clock faults.Clock) Option {
	return func(o *options) { o.clock = clock }
}

// Build wires every component. On error, whatever was already started is
// shut down.
func Build(ctx context.Context, cfg *config.Config, opts ...Option) (_ *App, err error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{Config: cfg, Logger: o.logger}
	if a.Logger == nil {
		a.Logger = observability.NewLogger(nil, cfg.Logging.Level, cfg.Logging.JSON)
	}
	defer func() {
		if err != nil {
			a.Close(context.Background())
		}
	}()

	if err := cfg.Faults.Validate(); err != nil {
		return nil, fmt.Errorf("invalid fault profiles: %w", err)
	}

	tp, err := observability.InitTracing(ctx, cfg.Tracing)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, tp.Shutdown)

	mp, registry, err := observability.InitMetrics(ctx, cfg.Tracing.ServiceName)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, mp.Shutdown)
	a.Metrics = registry

	instruments, err := observability.NewInstruments(mp.Meter(observability.TracerName))
	if err != nil {
		return nil, err
	}

	injOpts := []faults.Option{}
	if cfg.Seed != 0 {
		injOpts = append(injOpts, faults.WithSeed(cfg.Seed))
	}
	if o.clock != nil {
		injOpts = append(injOpts, faults.WithClock(o.clock))
	}
	a.Injector = faults.NewInjector(injOpts...)

	if err := a.buildBackends(ctx); err != nil {
		return nil, err
	}

	a.Registry, err = tools.New(a.DocSearch, a.Directory, a.Health)
	if err != nil {
		return nil, err
	}

	completion := o.llm
	if completion == nil {
		if completion, err = llm.New(ctx, cfg.LLM); err != nil {
			return nil, fmt.Errorf("failed to create llm: %w", err)
		}
	}
	// Each attempt gets its own deadline.
	a.LLM = middleware.NewRetryDecorator(
		middleware.NewTimeoutDecorator(completion, cfg.Resilience.LLMTimeout),
		cfg.Resilience.LLMRetry,
	)

	a.Orchestrator, err = orchestrator.New(a.LLM, a.Registry,
		orchestrator.WithLogger(a.Logger),
		orchestrator.WithInstruments(instruments),
		orchestrator.WithSimilarityThreshold(cfg.Faults.DocSearch.LowSimilarityThreshold),
	)
	if err != nil {
		return nil, err
	}

	if err := a.buildMemory(ctx); err != nil {
		return nil, err
	}

	a.Logger.Info("devhub ready",
		"model", a.LLM.Model(),
		"documents", a.DocSearch.DocumentCount(),
		"owners", a.Directory.OwnerCount(),
		"services", a.Health.ServiceCount(),
	)
	return a, nil
}

func (a *App) buildBackends(ctx context.Context) error {
	cfg := a.Config
	logger := services.WithLogger(a.Logger)

	raw, err := readFixture(cfg.Fixtures.Docs, data.Docs)
	if err != nil {
		return err
	}
	docs, err := services.ParseDocuments(raw)
	if err != nil {
		return err
	}
	index, err := a.buildIndex()
	if err != nil {
		return err
	}
	if a.DocSearch, err = services.NewDocSearch(ctx, docs, index, cfg.Faults.DocSearch, a.Injector, logger); err != nil {
		return err
	}

	if raw, err = readFixture(cfg.Fixtures.Teams, data.Teams); err != nil {
		return err
	}
	directory, err := services.ParseDirectory(raw)
	if err != nil {
		return err
	}
	if a.Directory, err = services.NewDirectory(ctx, directory, cfg.Faults.Directory, a.Injector, logger); err != nil {
		return err
	}
	a.closers = append(a.closers, func(context.Context) error { return a.Directory.Close() })

	if raw, err = readFixture(cfg.Fixtures.Status, data.Status); err != nil {
		return err
	}
	statuses, err := services.ParseStatuses(raw)
	if err != nil {
		return err
	}
	a.Health = services.NewHealth(statuses, cfg.Faults.Health, a.Injector, logger)
	return nil
}

// buildIndex returns nil for the default hashing index.
func (a *App) buildIndex() (vectorstore.Index, error) {
	cfg := a.Config
	switch strings.ToLower(cfg.Embeddings.Provider) {
	case "", config.EmbeddingsHashing:
		if cfg.Embeddings.Dimension > 0 {
			return vectorstore.NewInMemoryIndex(vectorstore.NewHashingEmbedder(cfg.Embeddings.Dimension)), nil
		}
		return nil, nil
	case config.EmbeddingsOpenAI:
		clientCfg := openai.DefaultConfig(cfg.LLM.APIKey)
		if cfg.LLM.BaseURL != "" {
			clientCfg.BaseURL = cfg.LLM.BaseURL
		}
		client := openai.NewClientWithConfig(clientCfg)
		return vectorstore.NewInMemoryIndex(vectorstore.NewOpenAIEmbeddings(client, cfg.Embeddings.Model)), nil
	default:
		return nil, fmt.Errorf("unknown embeddings provider %q", cfg.Embeddings.Provider)
	}
}

func (a *App) buildMemory(ctx context.Context) error {
	session := a.Config.Session
	if session.Redis.URL == "" {
		a.Memory = memory.NewInMemoryMemory(session.MaxMessages)
		return nil
	}

	redisCfg := session.Redis
	if redisCfg.MaxSize == 0 {
		redisCfg.MaxSize = session.MaxMessages
	}
	mem, err := memory.NewRedisMemory(redisCfg)
	if err != nil {
		return err
	}
	if err := mem.Ping(ctx); err != nil {
		// History is optional; keep serving without it.
		a.Logger.Warn("session history falls back to process memory", "error", err)
		mem.Close()
		a.Memory = memory.NewInMemoryMemory(session.MaxMessages)
		return nil
	}
	a.Memory = mem
	return nil
}

// Close releases every component in reverse order of creation.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Memory != nil {
		errs = append(errs, a.Memory.Close())
		a.Memory = nil
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}
	a.closers = nil
	return errors.Join(errs...)
}

func readFixture(path string, embedded []byte) ([]byte, error) {
	if path == "" {
		return embedded, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	return raw, nil
}
