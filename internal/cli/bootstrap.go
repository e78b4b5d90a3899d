package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/scrypster/engram/internal/config"
	"github.com/scrypster/engram/internal/engine"
	"github.com/scrypster/engram/internal/llm"
	"github.com/scrypster/engram/internal/storage"
	"github.com/scrypster/engram/internal/storage/postgres"
	"github.com/scrypster/engram/internal/storage/sqlite"
)

// app bundles everything a command needs after bootstrap: config,
// logger, store, and a fully wired engine. Close releases resources in
// reverse order of construction.
type app struct {
	cfg    *config.Config
	log    *zap.SugaredLogger
	store  storage.Store
	engine *engine.Engine

	closers []func()
}

func newApp() (*app, error) {
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadConfigFromFile(configPath)
	} else {
		cfg, err = config.LoadConfig()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log, err := buildLogger()
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &app{cfg: cfg, log: log}
	a.closers = append(a.closers, func() { _ = log.Sync() })

	store, embeddings, err := a.openStore()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.store = store

	collab := a.buildCollaborators()

	eng, err := engine.New(store, embeddings, collab, engine.Options{
		UnderstandTimeout: cfg.Engine.UnderstandTimeout,
		QueueSize:         cfg.Engine.QueueSize,
		Workers:           cfg.Engine.Workers,
	}, log)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init engine: %w", err)
	}
	a.engine = eng
	a.closers = append(a.closers, eng.Close)

	return a, nil
}

// Close tears down in reverse construction order.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func (a *app) openStore() (storage.Store, storage.EmbeddingProvider, error) {
	switch a.cfg.Storage.Engine {
	case "postgres":
		store, err := postgres.NewStore(a.cfg.Storage.PostgresDSN, a.log.Infof)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres store: %w", err)
		}
		a.closers = append(a.closers, func() { _ = store.Close() })
		return store, postgres.NewEmbeddingProvider(store.GetDB(), store.PgvectorAvailable()), nil
	default:
		if err := os.MkdirAll(a.cfg.Storage.DataPath, 0o700); err != nil {
			return nil, nil, fmt.Errorf("create data dir: %w", err)
		}
		dbPath := filepath.Join(a.cfg.Storage.DataPath, "engram.db")
		store, err := sqlite.NewStore(dbPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		a.log.Infow("sqlite store ready", "path", dbPath)
		a.closers = append(a.closers, func() { _ = store.Close() })
		return store, sqlite.NewEmbeddingProvider(store.GetDB()), nil
	}
}

// buildCollaborators wires the optional external LLM. A provider of
// "none", or a misconfigured one, degrades to local heuristics only.
func (a *app) buildCollaborators() engine.Collaborators {
	cfg := a.cfg.LLM
	if cfg.Provider == "none" {
		a.log.Infow("collaborator disabled, running on local heuristics")
		return engine.Collaborators{}
	}

	pcfg := llm.ProviderConfig{
		Provider:       cfg.Provider,
		BaseURL:        cfg.OllamaURL,
		Model:          cfg.OllamaModel,
		EmbeddingModel: cfg.EmbeddingModel,
		Timeout:        cfg.CallTimeout,
	}
	if cfg.Provider == "openai" {
		pcfg.BaseURL = cfg.OpenAIBaseURL
		pcfg.APIKey = cfg.OpenAIAPIKey
		pcfg.Model = cfg.OpenAIModel
	}

	gen, err := llm.NewTextGenerator(pcfg)
	if err != nil {
		a.log.Warnw("collaborator unavailable, running on local heuristics", "error", err)
		return engine.Collaborators{}
	}
	collab := llm.NewCollaborator(gen,
		llm.WithCallInterval(cfg.CallInterval),
		llm.WithCallTimeout(cfg.CallTimeout),
	)

	embedder, err := llm.NewEmbeddingGenerator(pcfg)
	if err != nil {
		a.log.Warnw("embedding generator unavailable", "error", err)
	}

	a.log.Infow("collaborator ready", "provider", cfg.Provider, "model", gen.GetModel())
	return engine.Collaborators{
		Understander: collab,
		Compressor:   collab,
		Reasoner:     collab,
		Rater:        collab,
		Embedder:     embedder,
	}
}

func buildLogger() (*zap.SugaredLogger, error) {
	var zcfg zap.Config
	if os.Getenv("ENGRAM_ENV") == "production" {
		zcfg = zap.NewProductionConfig()
		zcfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	} else {
		zcfg = zap.NewDevelopmentConfig()
		zcfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zcfg.EncoderConfig.TimeKey = "timestamp"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zcfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}
