package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Noctocode/worken-ai/internal/access"
	"github.com/Noctocode/worken-ai/internal/chat"
	"github.com/Noctocode/worken-ai/internal/config"
	"github.com/Noctocode/worken-ai/internal/conversations"
	"github.com/Noctocode/worken-ai/internal/documents"
	"github.com/Noctocode/worken-ai/internal/embeddings"
	"github.com/Noctocode/worken-ai/internal/events"
	"github.com/Noctocode/worken-ai/internal/guardrails"
	httpserver "github.com/Noctocode/worken-ai/internal/http"
	"github.com/Noctocode/worken-ai/internal/keys"
	"github.com/Noctocode/worken-ai/internal/llm"
	"github.com/Noctocode/worken-ai/internal/logging"
	"github.com/Noctocode/worken-ai/internal/mail"
	"github.com/Noctocode/worken-ai/internal/projects"
	"github.com/Noctocode/worken-ai/internal/store"
	"github.com/Noctocode/worken-ai/internal/store/memory"
	"github.com/Noctocode/worken-ai/internal/store/postgres"
	"github.com/Noctocode/worken-ai/internal/teams"
	"github.com/Noctocode/worken-ai/internal/telemetry"
	"github.com/Noctocode/worken-ai/internal/vectorstore"
)

// app holds the infrastructure shared by every command.
type app struct {
	cfg       *config.Config
	logger    *logging.Logger
	telemetry *telemetry.Telemetry
	store     store.Store
	db        *gorm.DB
	embedder  *embeddings.Lazy
	index     vectorstore.Store

	closers []func() error
}

// bootstrap loads configuration and opens the store, the embedder and the
// vector index. migrate runs schema migrations before the index is built.
func bootstrap(ctx context.Context, migrate bool) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logCfg, err := logging.FromSettings(cfg.Log, cfg.Observability.ServiceName, false)
	if err != nil {
		return nil, fmt.Errorf("invalid log settings: %w", err)
	}
	logger, err := logging.NewLogger(logCfg, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	a := &app{cfg: cfg, logger: logger}
	a.closers = append(a.closers, logger.Sync)

	tel, err := telemetry.New(ctx, telemetry.FromSettings(cfg.Observability, version), logger.Underlying())
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	a.telemetry = tel
	a.closers = append(a.closers, func() error { return tel.Shutdown(context.Background()) })

	if err := a.openStore(ctx, migrate); err != nil {
		a.Close()
		return nil, err
	}

	a.embedder = embeddings.NewLazyFromConfig(embeddings.ProviderConfig{
		Provider:  cfg.Embeddings.Provider,
		Model:     cfg.Embeddings.Model,
		BaseURL:   cfg.Embeddings.BaseURL,
		CacheDir:  cfg.Embeddings.CacheDir,
		Dimension: cfg.Embeddings.Dimension,
	}, logger.Underlying())
	a.closers = append(a.closers, a.embedder.Close)

	vsCfg := cfg.VectorStore
	if a.db == nil && vsCfg.Provider == "pgvector" {
		logger.Warn(ctx, "pgvector needs the postgres store, using chromem")
		vsCfg.Provider = "chromem"
	}
	index, err := vectorstore.NewStore(ctx, vsCfg, cfg.Embeddings.Dimension, a.db, logger.Underlying())
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create vector index: %w", err)
	}
	a.index = index
	a.closers = append(a.closers, index.Close)

	logger.Info(ctx, "infrastructure ready",
		zap.String("database", cfg.Database.Driver),
		zap.String("vectorstore", index.Name()),
		zap.String("embedding_model", cfg.Embeddings.Model),
		zap.Int("dimension", cfg.Embeddings.Dimension))
	return a, nil
}

func (a *app) openStore(ctx context.Context, migrate bool) error {
	switch a.cfg.Database.Driver {
	case "memory":
		a.store = memory.New()
		a.logger.Warn(ctx, "using in-memory store, data is lost on exit")
		return nil
	case "postgres":
		pg, err := postgres.Open(ctx, a.cfg.Database.URL.Value(), a.logger.Underlying())
		if err != nil {
			return err
		}
		a.store = pg
		a.db = pg.DB()
		a.closers = append(a.closers, pg.Close)
		if migrate {
			if err := pg.Migrate(ctx, a.cfg.Embeddings.Dimension); err != nil {
				return fmt.Errorf("failed to migrate: %w", err)
			}
			a.logger.Info(ctx, "schema migrated")
		}
		return nil
	default:
		return fmt.Errorf("unsupported database driver %q", a.cfg.Database.Driver)
	}
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil && a.logger != nil {
		a.logger.Underlying().Warn("shutdown incomplete", zap.Error(err))
	}
}

// domain holds the wired services.
type domain struct {
	access        *access.Resolver
	keys          *keys.Resolver
	projects      *projects.Service
	documents     *documents.Service
	conversations *conversations.Service
	chat          *chat.Service
	evaluator     *chat.Evaluator
	teams         *teams.Service
}

func (a *app) services(ctx context.Context) (*domain, error) {
	cfg := a.cfg
	zl := a.logger.Underlying()

	cipher, err := keys.NewCipher(cfg.OpenRouter.EncryptionKey.Value())
	if err != nil {
		return nil, fmt.Errorf("invalid encryption key: %w", err)
	}

	var provisioner keys.Provisioner
	if cfg.OpenRouter.ProvisioningKey.IsSet() {
		provisioner = keys.NewOpenRouterProvisioner(cfg.OpenRouter.BaseURL, cfg.OpenRouter.ProvisioningKey.Value())
	} else {
		a.logger.Warn(ctx, "no provisioning key, every call uses the fallback credential")
	}

	var locker keys.Locker = keys.NoopLocker{}
	if cfg.Redis.URL.IsSet() {
		rl, err := keys.NewRedisLocker(ctx, cfg.Redis.URL.Value())
		if err != nil {
			return nil, err
		}
		locker = rl
		a.closers = append(a.closers, rl.Close)
	}

	publisher, err := events.New(cfg.NATS.URL, cfg.NATS.SubjectPrefix, zl)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	a.closers = append(a.closers, publisher.Close)

	g, err := guardrails.New(guardrails.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to build guardrails: %w", err)
	}

	completer := llm.NewClient(llm.Config{
		BaseURL:  cfg.OpenRouter.BaseURL,
		SiteURL:  cfg.Site.URL,
		SiteName: cfg.Site.Name,
	})

	a.logger.Info(ctx, "openrouter configured",
		zap.String("base_url", cfg.OpenRouter.BaseURL),
		zap.String("chat_model", cfg.OpenRouter.ChatModel),
		logging.Secret("fallback_key", cfg.OpenRouter.APIKey),
		zap.Bool("provisioning", provisioner != nil),
		zap.Bool("distributed_lock", cfg.Redis.URL.IsSet()))

	resolver := access.NewResolver(a.store)
	keyResolver := keys.NewResolver(keys.ResolverConfig{
		Store:       a.store,
		Cipher:      cipher,
		Provisioner: provisioner,
		Locker:      locker,
		Fallback:    cfg.OpenRouter.APIKey.Value(),
		CreditLimit: cfg.OpenRouter.KeyCreditLimit,
		Logger:      zl,
	})

	docs := documents.NewService(documents.Config{
		Store:    a.store,
		Index:    a.index,
		Embedder: a.embedder,
		Access:   resolver,
		Keys:     keyResolver,
		Titler:   documents.NewLLMTitler(completer, cfg.OpenRouter.TitleModel, zl),
		Events:   publisher,
		Logger:   zl,
	})
	convs := conversations.NewService(conversations.Config{
		Store:  a.store,
		Access: resolver,
		Events: publisher,
		Logger: zl,
	})

	return &domain{
		access:        resolver,
		keys:          keyResolver,
		projects:      projects.NewService(a.store, resolver),
		documents:     docs,
		conversations: convs,
		chat: chat.NewService(chat.Config{
			Store:         a.store,
			Conversations: convs,
			Documents:     docs,
			Keys:          keyResolver,
			Completer:     completer,
			Guardrails:    g,
			DefaultModel:  cfg.OpenRouter.ChatModel,
			Logger:        zl,
		}),
		evaluator: chat.NewEvaluator(completer, cfg.OpenRouter.APIKey.Value(), cfg.OpenRouter.JudgeModel, zl),
		teams: teams.NewService(teams.Config{
			Store:       a.store,
			Access:      resolver,
			Provisioner: provisioner,
			Cipher:      cipher,
			Mailer:      mail.New(cfg.Mail, cfg.Frontend.URL, zl),
			Events:      publisher,
			CreditLimit: cfg.OpenRouter.KeyCreditLimit,
			Logger:      zl,
		}),
	}, nil
}

func (a *app) httpServer(d *domain) (*httpserver.Server, error) {
	return httpserver.NewServer(httpserver.Services{
		Projects:      d.projects,
		Documents:     d.documents,
		Conversations: d.conversations,
		Chat:          d.chat,
		Evaluator:     d.evaluator,
		Teams:         d.teams,
		Users:         a.store.Users(),
		Index:         a.index,
	}, a.logger, &httpserver.Config{
		Host:           a.cfg.Server.Host,
		Port:           a.cfg.Server.Port,
		JWTSecret:      a.cfg.JWT.Secret.Value(),
		RateLimitRPS:   a.cfg.RateLimit.RPS,
		RateLimitBurst: a.cfg.RateLimit.Burst,
		MaxUploadMB:    a.cfg.Server.MaxUploadMB,
	})
}
