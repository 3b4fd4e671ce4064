package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/nugget/smarty/internal/acquire"
	"github.com/nugget/smarty/internal/agent"
	"github.com/nugget/smarty/internal/batch"
	"github.com/nugget/smarty/internal/config"
	"github.com/nugget/smarty/internal/engine"
	"github.com/nugget/smarty/internal/fetch"
	"github.com/nugget/smarty/internal/llm"
	"github.com/nugget/smarty/internal/media"
	"github.com/nugget/smarty/internal/runs"
	"github.com/nugget/smarty/internal/search"
	"github.com/nugget/smarty/internal/tools"
)

// app holds the wired components shared by the ask and batch
// subcommands.
type app struct {
	runner   *batch.Runner
	store    *runs.Store // nil when data_dir is unset
	registry *tools.Registry
}

// Close releases the run store.
func (a *app) Close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}

// newApp builds the full agent from configuration: provider clients,
// one engine per role, the tool registry, the acquisition client, the
// control loop, and the optional run store.
func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	scratch := cfg.ScratchDir
	if scratch == "" {
		scratch = filepath.Join(os.TempDir(), "smarty")
	}
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}

	var store *runs.Store
	if path := cfg.RunsPath(); path != "" {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		s, err := runs.NewStore(path, logger)
		if err != nil {
			return nil, err
		}
		store = s
		logger.Info("run log enabled", "path", path)
	}

	fail := func(err error) (*app, error) {
		if store != nil {
			store.Close()
		}
		return nil, err
	}

	client := createLLMClient(cfg, logger)

	var usage engine.UsageRecorder
	if store != nil {
		usage = store
	}
	newEngine := func(role string, rc config.RoleConfig) *engine.Engine {
		return engine.New(engine.Config{
			Client:      client,
			Model:       rc.Model,
			Temperature: rc.Temperature,
			Role:        role,
			Logger:      logger,
			Usage:       usage,
		})
	}

	planEngine := newEngine("planner", cfg.Roles.Planner)
	execEngine := newEngine("executor", cfg.Roles.Executor)
	replanEngine := newEngine("replanner", cfg.Roles.Replanner)
	finalEngine := newEngine("finalizer", cfg.Roles.Finalizer)
	videoEngine := newEngine("video", cfg.Roles.Finalizer)

	registry := buildRegistry(cfg, scratch, videoEngine, logger)

	acq := acquire.New(acquire.Config{
		BaseURL:    cfg.Files.BaseURL,
		ScratchDir: scratch,
	}, logger)

	loopCfg := agent.Config{
		Planner:       agent.NewPlanner(planEngine),
		Acquirer:      acq,
		Executor:      agent.NewToolExecutor(execEngine, registry, cfg.Loop.MaxToolCalls, logger),
		Replanner:     agent.NewReplanner(replanEngine),
		Finalizer:     agent.NewFinalizer(finalEngine),
		MaxIterations: cfg.Loop.MaxIterations,
		Logger:        logger,
	}
	if store != nil {
		loopCfg.Observer = store
	}
	loop, err := agent.NewLoop(loopCfg)
	if err != nil {
		return fail(err)
	}

	bc := batch.Config{
		Loop:        loop,
		Concurrency: cfg.Batch.Concurrency,
		Logger:      logger,
	}
	if store != nil {
		bc.Recorder = store
	}

	logger.Info("agent ready",
		"planner", cfg.Roles.Planner.Model,
		"executor", cfg.Roles.Executor.Model,
		"replanner", cfg.Roles.Replanner.Model,
		"finalizer", cfg.Roles.Finalizer.Model,
		"tools", len(registry.Names()),
		"scratch_dir", scratch,
	)

	return &app{
		runner:   batch.NewRunner(bc),
		store:    store,
		registry: registry,
	}, nil
}

// createLLMClient builds a multi-provider client. Every provider with
// credentials is registered (Ollama always is), and each role's model
// is mapped to its provider.
func createLLMClient(cfg *config.Config, logger *slog.Logger) llm.Client {
	p := cfg.Providers
	ollama := llm.NewOllamaClient(p.Ollama.BaseURL, logger)

	multi := llm.NewMultiClient(nil)
	multi.AddProvider(config.ProviderOllama, ollama)

	if p.OpenAI.Configured() {
		multi.AddProvider(config.ProviderOpenAI, llm.NewOpenAIClient(config.ProviderOpenAI, p.OpenAI.BaseURL, p.OpenAI.APIKey, logger))
	}
	if p.Groq.Configured() {
		multi.AddProvider(config.ProviderGroq, llm.NewOpenAIClient(config.ProviderGroq, p.Groq.BaseURL, p.Groq.APIKey, logger))
	}
	if p.Anthropic.Configured() {
		multi.AddProvider(config.ProviderAnthropic, llm.NewAnthropicClient(p.Anthropic.BaseURL, p.Anthropic.APIKey, logger))
	}

	for role, rc := range map[string]config.RoleConfig{
		"planner":   cfg.Roles.Planner,
		"executor":  cfg.Roles.Executor,
		"replanner": cfg.Roles.Replanner,
		"finalizer": cfg.Roles.Finalizer,
	} {
		if !multi.HasProvider(rc.Provider) {
			logger.Warn("role provider has no credentials; calls will fail",
				"role", role,
				"provider", rc.Provider,
				"model", rc.Model,
			)
		}
		multi.AddModel(rc.Model, rc.Provider)
	}

	return multi
}

// buildRegistry registers every tool whose backing service is
// configured.
func buildRegistry(cfg *config.Config, scratch string, video *engine.Engine, logger *slog.Logger) *tools.Registry {
	reg := tools.NewRegistry(logger)

	reg.SetFileTools(tools.NewFileTools(scratch))
	reg.SetCodeExecutor(tools.NewCodeExecutor(tools.CodeExecConfig{
		Interpreter: cfg.CodeExec.Python,
		WorkingDir:  scratch,
		Timeout:     time.Duration(cfg.CodeExec.TimeoutSec) * time.Second,
	}, logger))

	var transcriber *tools.Transcriber
	if pc, ok := cfg.Providers.Get(cfg.Transcription.Provider); ok && pc.Configured() {
		transcriber = tools.NewTranscriber(pc.BaseURL, pc.APIKey, cfg.Transcription.Model, nil, logger)
		reg.SetTranscriber(transcriber)
	} else {
		logger.Warn("transcription disabled: provider not configured", "provider", cfg.Transcription.Provider)
	}

	if pc, ok := cfg.Providers.Get(cfg.Vision.Provider); ok && pc.Configured() {
		reg.SetImageDescriber(tools.NewImageDescriber(pc.BaseURL, pc.APIKey, cfg.Vision.Model, nil, logger))
	} else {
		logger.Warn("image description disabled: provider not configured", "provider", cfg.Vision.Provider)
	}

	reg.SetSearchManager(buildSearch(cfg))
	reg.SetFetcher(fetch.New(fetch.Config{SaveDir: scratch}, logger))

	mc := media.Config{
		YtDlpPath:     cfg.Media.YtDlpPath,
		TranscriptDir: scratch,
		Complete:      video.Complete,
	}
	if transcriber != nil {
		mc.Transcribe = transcriber.Transcribe
	}
	reg.SetMediaClient(media.New(mc, logger))

	return reg
}

// buildSearch registers the configured search providers. Wikipedia
// needs no credentials and is always available.
func buildSearch(cfg *config.Config) *search.Manager {
	sc := cfg.Search
	mgr := search.NewManager(sc.Default)
	mgr.SetDefaultCount(sc.MaxResults)
	if sc.Tavily.APIKey != "" {
		mgr.Register(search.NewTavily(sc.Tavily.APIKey, nil))
	}
	if sc.Brave.APIKey != "" {
		mgr.Register(search.NewBrave(sc.Brave.APIKey, nil))
	}
	if sc.SearXNG.URL != "" {
		mgr.Register(search.NewSearXNG(sc.SearXNG.URL))
	}
	mgr.Register(search.NewWikipedia(sc.WikipediaLanguage, nil))
	return mgr
}
