package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/omnipizza/storefront/internal/di"
	"github.com/omnipizza/storefront/internal/platform/config"
	"github.com/omnipizza/storefront/internal/platform/observability"
	"github.com/omnipizza/storefront/internal/platform/requestctx"
	"github.com/omnipizza/storefront/internal/platform/secrets"
	"github.com/omnipizza/storefront/internal/services"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("storefront")
	ctx = requestctx.WithLogger(ctx, logger)

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx, config.WithSecretResolver(fetcher))
	if err != nil {
		var validation *config.ValidationError
		if errors.As(err, &validation) {
			logger.Fatal("invalid configuration", zap.Strings("fields", validation.Fields()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	container, err := di.NewContainer(ctx, cfg, di.Deps{
		Logger:  logger,
		Secrets: fetcher,
		Build:   buildInfoFromEnv(envValues, startedAt),
	})
	if err != nil {
		logger.Fatal("failed to assemble storefront", zap.Error(err))
	}

	workerCtx, stopWorkers := context.WithCancel(ctx)
	container.Start(workerCtx)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      container.Router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("storefront listening",
			zap.String("defaultMarket", cfg.Markets.Default),
			zap.Bool("firestore", cfg.Firestore.ProjectID != ""),
			zap.Bool("pubsub", cfg.PubSub.ProjectID != ""),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	stopWorkers()
	if err := container.Close(shutdownCtx); err != nil {
		logger.Warn("container close error", zap.Error(err))
	}
}

func buildInfoFromEnv(env map[string]string, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(env["STOREFRONT_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["STOREFRONT_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	return services.BuildInfo{
		Version:   version,
		CommitSHA: commit,
		StartedAt: started,
	}
}

// newSecretFetcher reads its own settings straight from the environment, since configuration
// loading depends on it.
func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		return strings.TrimSpace(env[key])
	}
	project := lookup("STOREFRONT_SECRETS_PROJECT_ID")
	if project == "" {
		project = lookup("STOREFRONT_FIRESTORE_PROJECT_ID")
	}
	fallback := lookup("STOREFRONT_SECRETS_FALLBACK_FILE")
	if fallback == "" {
		fallback = ".secrets.local"
	}
	return secrets.NewFetcher(ctx,
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithProject(project),
		secrets.WithFallbackFile(fallback),
	)
}
