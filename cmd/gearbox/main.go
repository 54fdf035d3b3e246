package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/gearbox-hq/gearbox/internal/agent/registry"
	"github.com/gearbox-hq/gearbox/internal/agent/supervisor"
	"github.com/gearbox-hq/gearbox/internal/agent/tools"
	"github.com/gearbox-hq/gearbox/internal/auth"
	"github.com/gearbox-hq/gearbox/internal/completion"
	"github.com/gearbox-hq/gearbox/internal/config"
	"github.com/gearbox-hq/gearbox/internal/embedding"
	"github.com/gearbox-hq/gearbox/internal/mail"
	"github.com/gearbox-hq/gearbox/internal/mcp"
	"github.com/gearbox-hq/gearbox/internal/model"
	"github.com/gearbox-hq/gearbox/internal/oplog"
	"github.com/gearbox-hq/gearbox/internal/ratelimit"
	"github.com/gearbox-hq/gearbox/internal/search"
	"github.com/gearbox-hq/gearbox/internal/server"
	"github.com/gearbox-hq/gearbox/internal/storage"
	"github.com/gearbox-hq/gearbox/internal/telemetry"
	"github.com/gearbox-hq/gearbox/migrations"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(os.Getenv("GEARBOX_LOG_LEVEL")),
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func logLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("gearbox starting", "version", version, "port", cfg.Port)

	// Initialize OpenTelemetry.
	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	// Connect to database and apply embedded migrations.
	db, err := storage.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer db.Close()

	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	jwtMgr, err := auth.NewJWTManager(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath, cfg.JWTExpiration)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	completer := completion.New(cfg.CompletionBaseURL, cfg.CompletionAPIKey, cfg.CompletionModel,
		cfg.CompletionTemperature, cfg.CompletionMaxTokens)

	embedder := newEmbeddingProvider(cfg, logger)

	// Qdrant search index (optional — disabled when QDRANT_URL is empty,
	// which degrades the vectorSearch tool to an envelope error).
	var searcher search.Searcher
	if cfg.QdrantURL != "" {
		qdrantIndex, err := search.NewQdrantIndex(search.QdrantConfig{
			URL:        cfg.QdrantURL,
			APIKey:     cfg.QdrantAPIKey,
			Collection: cfg.QdrantCollection,
			Dims:       uint64(cfg.EmbeddingDimensions), //nolint:gosec // validated positive in config.Validate
		}, logger)
		if err != nil {
			return fmt.Errorf("qdrant: %w", err)
		}
		defer func() { _ = qdrantIndex.Close() }()

		if err := qdrantIndex.EnsureCollection(ctx); err != nil {
			return fmt.Errorf("qdrant ensure collection: %w", err)
		}
		searcher = qdrantIndex
		logger.Info("qdrant: enabled", "collection", cfg.QdrantCollection)
	} else {
		logger.Info("qdrant: disabled (no QDRANT_URL)")
	}

	mailer := mail.New(mail.Config{
		Host: cfg.SMTPHost,
		Port: cfg.SMTPPort,
		User: cfg.SMTPUser,
		Pass: cfg.SMTPPass,
		From: cfg.SMTPFrom,
	}, logger)

	// Tool set, registry, and supervisor. Operation logs go to both slog
	// and the operation_logs table.
	toolset := tools.New(tools.Deps{
		Store:      db,
		Completion: completer,
		Embedder:   embedder,
		Searcher:   searcher,
		Mailer:     mailer,
		Logger:     logger,
		OpLog:      oplog.New("tools", logger, db),
	})
	reg := registry.New(toolset)

	sup := supervisor.New(supervisor.Deps{
		Registry:   reg,
		Completion: completer,
		Store:      db,
		Logger:     logger,
		OpLog:      oplog.New("SupervisorAgent", logger, db),
		Options: supervisor.Options{
			MaxSteps: cfg.SupervisorMaxSteps,
		},
	})

	mcpSrv := mcp.New(reg, sup, logger, version)

	var limiter ratelimit.Limiter
	if cfg.RateLimitEnabled {
		memLimiter := ratelimit.NewMemoryLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
		defer func() { _ = memLimiter.Close() }()
		limiter = memLimiter
		logger.Info("rate limiting: memory (in-process token bucket)",
			"rps", cfg.RateLimitRPS, "burst", cfg.RateLimitBurst)
	} else {
		limiter = ratelimit.NoopLimiter{}
		logger.Info("rate limiting: disabled")
	}

	srv := server.New(server.Config{
		DB:                  db,
		JWTMgr:              jwtMgr,
		Supervisor:          sup,
		Registry:            reg,
		Logger:              logger,
		Limiter:             limiter,
		Searcher:            searcher,
		MCPServer:           mcpSrv.MCPServer(),
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	})

	// Seed the bootstrap admin (non-fatal; skipped without an API key).
	if err := seedAdmin(ctx, db, cfg.AdminAPIKey); err != nil {
		slog.Warn("admin seed failed", "error", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	slog.Info("gearbox shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}

	slog.Info("gearbox stopped")
	return nil
}

// seedAdmin ensures a default organization and an "admin" account exist so a
// fresh install can mint its first token. Idempotent: existing rows win and
// the API key is never rotated here.
func seedAdmin(ctx context.Context, db *storage.DB, apiKey string) error {
	if apiKey == "" {
		return nil
	}

	org, err := db.GetOrganizationBySlug(ctx, "default")
	if errors.Is(err, storage.ErrNotFound) {
		org, err = db.CreateOrganization(ctx, model.Organization{
			Name: "Default Workshop",
			Slug: "default",
			Plan: "starter",
		})
	}
	if err != nil {
		return fmt.Errorf("default org: %w", err)
	}

	if _, err := db.GetAccountByAccountID(ctx, "admin"); err == nil {
		return nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("admin lookup: %w", err)
	}

	hash, err := auth.HashAPIKey(apiKey)
	if err != nil {
		return fmt.Errorf("hash admin key: %w", err)
	}
	_, err = db.CreateAccount(ctx, model.Account{
		AccountID:  "admin",
		OrgID:      org.ID,
		Name:       "Platform Admin",
		Email:      "admin@gearbox.dev",
		Role:       model.RoleAdmin,
		APIKeyHash: &hash,
	})
	if err != nil {
		return fmt.Errorf("create admin: %w", err)
	}
	return nil
}

// newEmbeddingProvider selects the embedding backend: "ollama", "openai",
// "noop", or "auto" (default). Auto prefers a reachable Ollama instance,
// then OpenAI if a key is present, else noop.
func newEmbeddingProvider(cfg config.Config, logger *slog.Logger) embedding.Provider {
	dims := cfg.EmbeddingDimensions

	switch cfg.EmbeddingProvider {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			logger.Error("OPENAI_API_KEY required when GEARBOX_EMBEDDING_PROVIDER=openai")
			return embedding.NewNoopProvider(dims)
		}
		logger.Info("embedding provider: openai", "model", cfg.EmbeddingModel, "dimensions", dims)
		return embedding.NewOpenAIProvider("", cfg.OpenAIAPIKey, cfg.EmbeddingModel, dims)

	case "ollama":
		logger.Info("embedding provider: ollama", "url", cfg.OllamaURL, "model", cfg.OllamaModel, "dimensions", dims)
		return embedding.NewOllamaProvider(cfg.OllamaURL, cfg.OllamaModel, dims)

	case "noop":
		logger.Info("embedding provider: noop (semantic search disabled)")
		return embedding.NewNoopProvider(dims)

	default:
		if ollamaReachable(cfg.OllamaURL) {
			logger.Info("embedding provider: ollama (auto-detected)", "url", cfg.OllamaURL, "model", cfg.OllamaModel, "dimensions", dims)
			return embedding.NewOllamaProvider(cfg.OllamaURL, cfg.OllamaModel, dims)
		}
		if cfg.OpenAIAPIKey != "" {
			logger.Info("embedding provider: openai (auto-detected)", "model", cfg.EmbeddingModel, "dimensions", dims)
			return embedding.NewOpenAIProvider("", cfg.OpenAIAPIKey, cfg.EmbeddingModel, dims)
		}
		logger.Warn("no embedding provider available, using noop (semantic search disabled)")
		return embedding.NewNoopProvider(dims)
	}
}

func ollamaReachable(baseURL string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
