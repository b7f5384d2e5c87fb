package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"studio/internal/adapter/repo"
	"studio/internal/agents"
	"studio/internal/domain"
	"studio/internal/events"
	httpapi "studio/internal/http"
	"studio/internal/http/handlers"
	"studio/internal/infra"
	"studio/internal/pipeline"
	"studio/internal/providers/genai"
	"studio/internal/providers/vision"
	"studio/internal/storage"
	"studio/internal/telegram"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Job store: Postgres when configured, in-memory otherwise.
	var store domain.JobStore
	if cfg.DatabaseURL != "" {
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect database")
		}
		defer pool.Close()
		if err := repo.EnsureSchema(ctx, pool); err != nil {
			logger.Fatal().Err(err).Msg("failed to ensure schema")
		}
		store = repo.NewJobRepositoryPG(pool)
		logger.Info().Msg("using postgres job store")
	} else {
		store = repo.NewMemoryJobStore()
		logger.Warn().Msg("DATABASE_URL not set; using in-memory job store")
	}

	files, err := storage.NewFileStore(cfg.OutputsDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init output storage")
	}

	analyst, err := buildAnalyst(cfg)
	if err != nil {
		logger.Warn().Err(err).Msg("analyst provider unavailable; using static fallback")
		analyst = vision.NewStaticAnalyst()
	}

	imageClient := genai.NewClient(genai.Options{
		APIKey:  cfg.GeminiAPIKey,
		BaseURL: cfg.GeminiBaseURL,
		Model:   cfg.GeminiImageModel,
		Logger:  logger,
	})
	if cfg.GeminiAPIKey == "" {
		logger.Warn().Msg("GEMINI_API_KEY not set; image generation will produce synthetic frames")
	}

	bus := events.NewBus(logger)
	broker := handlers.NewBroker(bus, logger)

	retryPolicy := agents.RetryPolicy{
		MaxRetries: cfg.MaxRetries,
		BaseDelay:  cfg.RetryBaseDelay,
	}
	orchestrator := pipeline.NewOrchestrator(
		store,
		bus,
		agents.NewResearchAgent(analyst, files, bus, logger),
		agents.NewPromptArchitect(analyst, store, bus, logger),
		agents.NewImageGenerator(imageClient, files, bus, logger, retryPolicy),
		agents.NewCriticAgent(analyst, files, bus, logger),
		logger,
	)
	supervisor := pipeline.NewSupervisor(logger)

	app := &handlers.App{
		Store:              store,
		Pipeline:           orchestrator,
		Supervisor:         supervisor,
		Broker:             broker,
		Files:              files,
		Logger:             logger,
		DefaultAspectRatio: cfg.DefaultAspectRatio,
		DefaultResolution:  cfg.DefaultResolution,
	}
	server := infra.NewHTTPServer(cfg, logger, httpapi.NewRouter(app, cfg))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if cfg.TelegramBotToken != "" {
		bot := telegram.NewBot(telegram.BotOptions{
			Client: telegram.NewClient(telegram.ClientOptions{
				Token:   cfg.TelegramBotToken,
				BaseURL: cfg.TelegramBaseURL,
				Logger:  logger,
			}),
			Pipeline:     orchestrator,
			Store:        store,
			Supervisor:   supervisor,
			Bus:          bus,
			Files:        files,
			Sessions:     telegram.NewSessionStore(cfg.DefaultAspectRatio, cfg.DefaultResolution),
			Logger:       logger,
			AllowedUsers: cfg.TelegramAllowedUsers,
		})
		g.Go(func() error {
			if err := bot.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	} else {
		logger.Info().Msg("TELEGRAM_BOT_TOKEN not set; chat bot disabled")
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("service error")
	}

	// Let in-flight pipelines finish before exiting.
	supervisor.Wait()
	logger.Info().Msg("server stopped")
}

func buildAnalyst(cfg *infra.Config) (vision.Analyst, error) {
	switch cfg.AnalystProvider {
	case "openai":
		return vision.NewOpenAIAnalyst(vision.OpenAIOptions{
			APIKey:       cfg.OpenAIAPIKey,
			Model:        cfg.OpenAIModel,
			BaseURL:      cfg.OpenAIBaseURL,
			Organization: cfg.OpenAIOrg,
		})
	default:
		return vision.NewGeminiAnalyst(vision.GeminiOptions{
			APIKey:  cfg.GeminiAPIKey,
			Model:   cfg.GeminiModel,
			BaseURL: cfg.GeminiBaseURL,
		})
	}
}
