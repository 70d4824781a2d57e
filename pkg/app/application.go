package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/renderq/renderq/internal/auth"
	"github.com/renderq/renderq/internal/converter"
	"github.com/renderq/renderq/internal/fetcher"
	"github.com/renderq/renderq/internal/ledger"
	"github.com/renderq/renderq/internal/metrics"
	"github.com/renderq/renderq/internal/middleware"
	"github.com/renderq/renderq/internal/notifier"
	"github.com/renderq/renderq/internal/orchestrator"
	"github.com/renderq/renderq/internal/providers"
	"github.com/renderq/renderq/internal/ratelimit"
	"github.com/renderq/renderq/internal/retry"
	"github.com/renderq/renderq/internal/secrets"
	"github.com/renderq/renderq/internal/tracing"
	"github.com/renderq/renderq/internal/uploader"
	"github.com/renderq/renderq/internal/validation"
	"github.com/renderq/renderq/pkg/config"

	"github.com/gin-gonic/gin"
)

type Application struct {
	Config          *config.Config
	Engine          *gin.Engine
	Orchestrator    *orchestrator.Orchestrator
	Ledger          ledger.Ledger
	Logger          *slog.Logger
	TokenAuth       auth.Validator
	RateLimiter     ratelimit.Limiter
	TracingShutdown func(context.Context) error
}

// ApplicationOption configures the Application
type ApplicationOption func(*Application) error

// WithTokenValidator sets a custom bearer token validator
func WithTokenValidator(validator auth.Validator) ApplicationOption {
	return func(app *Application) error {
		app.TokenAuth = validator
		return nil
	}
}

func NewApplication(cfg *config.Config, opts ...ApplicationOption) (*Application, error) {
	redisClient := providers.NewRedisProvider(cfg.RedisAddr, cfg.RedisPassword)
	limiter := ratelimit.NewTokenBucketLimiter(redisClient)

	level := new(slog.LevelVar)
	switch cfg.LogLevel {
	case "debug":
		level.Set(slog.LevelDebug)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	default:
		level.Set(slog.LevelInfo)
	}
	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	if cfg.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	logger := slog.New(handler).With("service", "renderq", "env", cfg.Env)
	slog.SetDefault(logger)

	metrics.RegisterRedisCollector(redisClient, logger)

	policy := retry.Policy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   time.Duration(cfg.BackoffBaseMillis) * time.Millisecond,
	}

	mode := validation.TrustStrict
	if cfg.TrustMode == "permissive" {
		mode = validation.TrustPermissive
	}
	urls := validation.NewURLValidator(mode)

	httpClient := &http.Client{Timeout: 60 * time.Second}
	fetch := fetcher.New(httpClient, policy, int64(cfg.MaxDocumentMB)<<20, logger)
	engine := converter.NewHTTPEngine(cfg.ConverterURL, httpClient, cfg.MaxPages, logger)
	up := uploader.New(httpClient, policy, cfg.UploadConcurrency, logger)
	notify := notifier.New(httpClient, policy, time.Duration(cfg.WebhookTimeoutSeconds)*time.Second, logger)
	led := ledger.New(redisClient, time.Duration(cfg.LedgerTTLHours)*time.Hour)

	orch := orchestrator.New(urls, fetch, engine, up, notify, led, logger, cfg.WorkDir, cfg.ConverterDPI)

	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestIDMiddleware(), middleware.LoggerMiddleware(logger))

	var tracingShutdown func(context.Context) error
	if cfg.TracingEnabled {
		shutdown, err := tracing.Setup(context.Background(), tracing.Config{
			Enabled:      true,
			ServiceName:  "renderq",
			OTLPEndpoint: cfg.TracingEndpoint,
		}, logger)
		if err != nil {
			logger.Warn("tracing setup failed, continuing without traces", "err", err)
		} else {
			tracingShutdown = shutdown
			router.Use(middleware.TracingMiddleware("renderq"))
		}
	}

	app := &Application{
		Config:          cfg,
		Engine:          router,
		Orchestrator:    orch,
		Ledger:          led,
		Logger:          logger,
		RateLimiter:     limiter,
		TracingShutdown: tracingShutdown,
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, err
		}
	}

	if app.TokenAuth == nil {
		var store secrets.Store
		switch cfg.SecretProvider {
		case "awsSecretsManager":
			s, err := secrets.NewManagerStore(cfg.AWSRegion)
			if err != nil {
				return nil, fmt.Errorf("secrets manager store: %w", err)
			}
			store = s
		default:
			store = secrets.EnvStore{}
		}
		cache := secrets.NewCache(store, cfg.AuthSecretName)
		skew := time.Duration(cfg.AllowedClockSkewSeconds) * time.Second
		app.TokenAuth = auth.NewHMACValidator(cache, cfg.TokenIssuer, skew)
	}

	return app, nil
}
