// Package main is the entry point for the API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/healthassist/internal/config"
	"github.com/capitalize-ai/healthassist/internal/gateway"
	"github.com/capitalize-ai/healthassist/internal/handler"
	"github.com/capitalize-ai/healthassist/internal/llm"
	natsclient "github.com/capitalize-ai/healthassist/internal/nats"
	"github.com/capitalize-ai/healthassist/internal/service"
	"github.com/capitalize-ai/healthassist/internal/store"
	"github.com/capitalize-ai/healthassist/internal/store/memory"
	"github.com/capitalize-ai/healthassist/internal/store/postgres"
	"github.com/capitalize-ai/healthassist/internal/store/sqlite"
	"github.com/capitalize-ai/healthassist/pkg/logger"
	"github.com/capitalize-ai/healthassist/pkg/tracing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	if err := run(cfg, log); err != nil {
		log.Error("server exited with error", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	log.Info("starting API server",
		zap.String("db_driver", cfg.DBDriver),
		zap.String("llm_provider", cfg.LLMProvider),
	)

	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "healthassist-api", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(context.Background(), tp)
		}
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	var (
		publisher  service.EventPublisher
		natsClient *natsclient.Client
	)
	if cfg.NATSURL != "" {
		natsClient, err = natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			return err
		}
		defer natsClient.Close()

		if err := natsclient.EnsureStream(ctx, natsClient.JetStream()); err != nil {
			return err
		}
		publisher = natsclient.NewEventPublisher(natsClient, cfg.NATSPublishTimeout)
	} else {
		log.Info("NATS_URL not set, activity events disabled")
	}

	llmClient, err := llm.NewClient(llm.Options{
		Provider:         llm.Provider(cfg.LLMProvider),
		APIKey:           providerKey(cfg),
		BaseURL:          providerURL(cfg),
		Model:            cfg.LLMModel,
		YandexOAuthToken: cfg.YandexOAuthToken,
		YandexFolderID:   cfg.YandexFolderID,
	})
	switch {
	case errors.Is(err, llm.ErrNotConfigured):
		log.Warn("no LLM provider configured, serving fallback replies only")
	case err != nil:
		log.Warn("failed to create LLM client, serving fallback replies only", zap.Error(err))
		llmClient = nil
	default:
		log.Info("LLM provider ready", zap.String("provider", llmClient.Name()))
	}

	gw := gateway.New(llmClient, gateway.DefaultFallback(), gateway.Config{
		SystemPrompt: gateway.SystemPrompt,
		Model:        cfg.LLMModel,
		Temperature:  cfg.LLMTemperature,
		MaxTokens:    cfg.LLMMaxTokens,
		Timeout:      cfg.LLMTimeout,
	}, log.With(zap.String("component", "gateway")))

	conversationSvc := service.NewConversationService(st, publisher, log)
	messageSvc := service.NewMessageService(conversationSvc, gw, log)

	checks := map[string]handler.Pinger{"store": st}
	if natsClient != nil {
		checks["nats"] = natsClient
	}

	router := handler.NewRouter(handler.RouterConfig{
		Conversations:     conversationSvc,
		Messages:          messageSvc,
		Health:            handler.NewHealthHandler(checks),
		Logger:            log,
		JWTSecret:         cfg.JWTSecret,
		CORSOrigins:       cfg.CORSOrigins,
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitWindow:   cfg.RateLimitWindow,
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-quit:
	}

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.DBDriver {
	case config.DriverMemory:
		return memory.New(nil), nil
	case config.DriverSQLite:
		if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
			}
		}
		return sqlite.New(cfg.SQLitePath, nil)
	case config.DriverPostgres:
		pool, err := postgres.Connect(ctx, cfg.DatabaseURL, postgres.PoolOptions{
			MaxConns:        cfg.DBMaxConns,
			MaxConnIdleTime: cfg.DBMaxConnIdleTime,
			MaxConnLifetime: cfg.DBMaxConnLifetime,
		})
		if err != nil {
			return nil, err
		}
		st, err := postgres.New(ctx, pool, nil)
		if err != nil {
			pool.Close()
			return nil, err
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown DB_DRIVER %q", cfg.DBDriver)
	}
}

func providerKey(cfg *config.Config) string {
	switch llm.Provider(cfg.LLMProvider) {
	case llm.ProviderAnthropic:
		return cfg.AnthropicAPIKey
	default:
		return cfg.OpenAIAPIKey
	}
}

func providerURL(cfg *config.Config) string {
	if llm.Provider(cfg.LLMProvider) == llm.ProviderLocal {
		return cfg.LocalLLMURL
	}
	return cfg.OpenAIBaseURL
}

func newLogger(cfg *config.Config) (*logger.Logger, error) {
	if cfg.LogFormat == "console" {
		return logger.NewDevelopment(cfg.LogLevel)
	}
	return logger.New(cfg.LogLevel)
}
