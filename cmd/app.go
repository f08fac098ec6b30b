package cmd

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/nlq/internal/chain"
	"github.com/JonMunkholm/nlq/internal/config"
	"github.com/JonMunkholm/nlq/internal/database"
	"github.com/JonMunkholm/nlq/internal/embedding"
	"github.com/JonMunkholm/nlq/internal/exemplar"
	"github.com/JonMunkholm/nlq/internal/llm"
	"github.com/JonMunkholm/nlq/internal/observability"
	"github.com/JonMunkholm/nlq/internal/prompt"
	"github.com/JonMunkholm/nlq/internal/schema"
	"github.com/JonMunkholm/nlq/internal/secrets"
)

// app is everything a question needs, built once at startup. Any failure here
// aborts the command.
type app struct {
	cfg      config.Config
	logger   zerolog.Logger
	db       *sql.DB
	schema   *schema.Source
	backend  llm.Backend
	executor *chain.Executor
}

func loadConfig() (config.Config, zerolog.Logger, error) {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return config.Config{}, zerolog.Nop(), fmt.Errorf("load config: %w", err)
	}
	return cfg, observability.SetupLogger(cfg, nil), nil
}

func newApp(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*app, error) {
	store, err := secrets.NewStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open secret store: %w", err)
	}
	resolver := secrets.NewResolver(store)

	creds, err := resolver.DatabaseCredentials(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve database credentials: %w", err)
	}
	logger.Info().Str("database", creds.Redacted()).Msg("resolved database credentials")

	var apiKey string
	if cfg.Backend == config.BackendOpenAI || cfg.Embeddings.Provider == embedding.ProviderOpenAI {
		if apiKey, err = resolver.APIKey(ctx); err != nil {
			return nil, fmt.Errorf("resolve api key: %w", err)
		}
	}

	db, err := database.Open(ctx, database.Config{
		DSN:             creds.DSN(cfg.Database.SSLMode),
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}

	src := schema.NewSource(db, cfg.Database.SchemaSampleRows)
	var examples *exemplar.Store

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := src.Refresh(gctx); err != nil {
			return fmt.Errorf("load schema: %w", err)
		}
		logger.Info().Int("tables", src.TableCount()).Msg("loaded schema")
		return nil
	})
	g.Go(func() error {
		store, err := loadExemplarStore(gctx, cfg, apiKey)
		if err != nil {
			return err
		}
		examples = store
		logger.Info().Int("exemplars", store.Len()).Str("source", cfg.Exemplars.Source).Msg("indexed exemplars")
		return nil
	})
	if err := g.Wait(); err != nil {
		_ = db.Close()
		return nil, err
	}

	backend, err := llm.NewBackend(ctx, cfg, apiKey)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create backend: %w", err)
	}
	logger.Info().Str("model", cfg.ModelLabel()).Msg("backend ready")

	var prefix string
	if cfg.Chain.PromptPrefixFile != "" {
		if prefix, err = prompt.LoadPrefix(cfg.Chain.PromptPrefixFile); err != nil {
			_ = db.Close()
			return nil, err
		}
		logger.Info().Str("file", cfg.Chain.PromptPrefixFile).Msg("using custom prompt prefix")
	}

	executor := chain.NewExecutor(backend, examples, src, database.NewRunner(db), chain.Options{
		ExemplarCount:   cfg.Exemplars.Count,
		ResultLimit:     cfg.Chain.ResultLimit,
		MaxStringLength: cfg.Chain.MaxStringLength,
		Prefix:          prefix,
		Logger:          logger,
	})

	return &app{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		schema:   src,
		backend:  backend,
		executor: executor,
	}, nil
}

func (a *app) Close() error {
	return a.db.Close()
}

func resolveAPIKey(ctx context.Context, cfg config.Config) (string, error) {
	store, err := secrets.NewStore(ctx, cfg)
	if err != nil {
		return "", fmt.Errorf("open secret store: %w", err)
	}
	key, err := secrets.NewResolver(store).APIKey(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve api key: %w", err)
	}
	return key, nil
}

func loadExemplars(ctx context.Context, cfg config.Config) ([]exemplar.Exemplar, error) {
	examples, err := exemplar.Load(ctx, cfg.Exemplars.Source, exemplar.LoadOptions{
		S3Endpoint: cfg.Exemplars.S3Endpoint,
		S3UseSSL:   cfg.Exemplars.S3UseSSL,
		Region:     cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("load exemplars: %w", err)
	}
	return examples, nil
}

func loadExemplarStore(ctx context.Context, cfg config.Config, apiKey string) (*exemplar.Store, error) {
	examples, err := loadExemplars(ctx, cfg)
	if err != nil {
		return nil, err
	}
	var embed chromem.EmbeddingFunc
	if embed, err = embedding.New(ctx, cfg, embedding.Options{APIKey: apiKey}); err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	store, err := exemplar.NewStore(ctx, examples, embed)
	if err != nil {
		return nil, fmt.Errorf("index exemplars: %w", err)
	}
	return store, nil
}
