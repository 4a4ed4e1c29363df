package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-migrate/migrate/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/smill0791/data-integration-platform/database"
	"github.com/smill0791/data-integration-platform/internal/api"
	"github.com/smill0791/data-integration-platform/internal/config"
	"github.com/smill0791/data-integration-platform/internal/jobs"
	"github.com/smill0791/data-integration-platform/internal/logger"
	"github.com/smill0791/data-integration-platform/internal/pipeline"
	"github.com/smill0791/data-integration-platform/internal/queue"
	"github.com/smill0791/data-integration-platform/internal/sources"
	"github.com/smill0791/data-integration-platform/internal/status"
	"github.com/smill0791/data-integration-platform/internal/store"
	"github.com/smill0791/data-integration-platform/internal/store/memory"
	"github.com/smill0791/data-integration-platform/internal/store/postgres"
	"github.com/smill0791/data-integration-platform/internal/telemetry"
)

const (
	defaultReadTimeout = 10 * time.Second
	defaultIdleTimeout = 60 * time.Second
)

// Options is a function that configures the platform app builder
type Options func(*appConfig) error

// appConfig holds the builder state. It supports dependency injection
// for testing while providing production defaults.
type appConfig struct {
	config *config.Config

	// Optional component overrides (primarily for testing)
	store      store.Store
	sqsClient  queue.API
	httpClient *http.Client

	middlewares []func(http.Handler) http.Handler
}

// WithConfig sets the configuration
func WithConfig(c *config.Config) Options {
	return func(cfg *appConfig) error {
		cfg.config = c
		return nil
	}
}

// WithStore allows injecting a storage backend (for testing)
func WithStore(s store.Store) Options {
	return func(cfg *appConfig) error {
		cfg.store = s
		return nil
	}
}

// WithSQSClient allows injecting an SQS client (for testing)
func WithSQSClient(client queue.API) Options {
	return func(cfg *appConfig) error {
		cfg.sqsClient = client
		return nil
	}
}

// WithSourceHTTPClient sets the HTTP client used by the source API clients
func WithSourceHTTPClient(client *http.Client) Options {
	return func(cfg *appConfig) error {
		cfg.httpClient = client
		return nil
	}
}

// WithMiddlewares sets custom HTTP middlewares
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Options {
	return func(cfg *appConfig) error {
		cfg.middlewares = mw
		return nil
	}
}

// NewApp builds the platform application from the configuration: storage,
// queue provisioning, orchestrators, consumer workers, and HTTP server.
func NewApp(ctx context.Context, opts ...Options) (*App, error) {
	cfg := &appConfig{}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	st, cleanup, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	cleanupNeeded := true
	defer func() {
		if cleanupNeeded && cleanup != nil {
			cleanup()
		}
	}()

	publisher := status.NewPublisher()

	meterProvider, metricsHandler, err := buildTelemetry(cfg.config)
	if err != nil {
		return nil, err
	}
	syncMetrics, err := telemetry.NewSyncMetrics(meterProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync metrics: %w", err)
	}

	registry := jobs.NewRegistry(st, publisher, jobs.WithMetrics(syncMetrics))
	router := buildRouter(cfg, registry, st)

	var producer *queue.Producer
	var consumer *queue.Consumer
	if cfg.config.Queue != nil {
		if cfg.sqsClient == nil {
			cfg.sqsClient, err = buildSQSClient(ctx, cfg.config.Queue)
			if err != nil {
				return nil, err
			}
		}
		if err := queue.EnsureQueues(ctx, cfg.sqsClient, cfg.config.Queue); err != nil {
			return nil, err
		}
		producer = queue.NewProducer(cfg.sqsClient, cfg.config.Queue.QueueName)
		consumer = queue.NewConsumer(cfg.sqsClient, registry, router,
			cfg.config.Queue.QueueName, cfg.config.Queue.Workers)
	}

	httpServer := buildHTTPServer(cfg, api.Dependencies{
		Registry:     registry,
		Router:       router,
		Producer:     producerOrNil(producer),
		Publisher:    publisher,
		Readiness:    st,
		DispatchMode: cfg.config.DispatchMode,
	}, metricsHandler)

	appCtx, cancel := context.WithCancel(ctx)
	cleanupNeeded = false

	return &App{
		config:     cfg.config,
		httpServer: httpServer,
		consumer:   consumer,
		publisher:  publisher,
		cleanup:    cleanup,
		ctx:        appCtx,
		cancelFunc: cancel,
	}, nil
}

// buildStore selects the storage backend: injected, postgres when a
// database block is configured (migrations applied on startup), or the
// in-memory store.
func buildStore(ctx context.Context, cfg *appConfig) (store.Store, func(), error) {
	if cfg.store != nil {
		return cfg.store, nil, nil
	}
	if cfg.config.Database == nil {
		logger.Info("No database configured, using in-memory store")
		return memory.New(), nil, nil
	}

	migrator, err := database.NewFromConnectionString(cfg.config.Database.MigrateURL())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize migrations: %w", err)
	}
	if err := migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return nil, nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	pgStore, err := postgres.Connect(ctx, cfg.config.Database.ConnString())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	logger.Infof("Connected to database %s", cfg.config.Database.Database)
	return pgStore, pgStore.Close, nil
}

// buildTelemetry creates the meter provider and the Prometheus scrape
// handler when telemetry is enabled.
func buildTelemetry(cfg *config.Config) (metric.MeterProvider, http.Handler, error) {
	if !cfg.Telemetry.Enabled {
		return nil, nil, nil
	}
	exporter, err := otelprom.New()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	logger.Info("Telemetry enabled, metrics exposed at /metrics")
	return provider, promhttp.Handler(), nil
}

// buildRouter wires one orchestrator per configured source. A source
// with no base URL is disabled.
func buildRouter(cfg *appConfig, registry *jobs.Registry, st store.Store) *pipeline.Router {
	var orchestrators []pipeline.Orchestrator
	if cfg.config.Sources.CRM.BaseURL != "" {
		client := sources.NewCRMClient(cfg.config.Sources.CRM, cfg.httpClient)
		orchestrators = append(orchestrators, pipeline.NewCustomerOrchestrator(registry, st, st, client))
	}
	if cfg.config.Sources.ERP.BaseURL != "" {
		client := sources.NewERPClient(cfg.config.Sources.ERP, cfg.httpClient)
		orchestrators = append(orchestrators, pipeline.NewProductOrchestrator(registry, st, st, client))
	}
	if cfg.config.Sources.Accounting.BaseURL != "" {
		client := sources.NewAccountingClient(cfg.config.Sources.Accounting, cfg.httpClient)
		orchestrators = append(orchestrators, pipeline.NewInvoiceOrchestrator(registry, st, st, client))
	}
	router := pipeline.NewRouter(orchestrators...)
	logger.Infof("Registered sync sources: %v", router.Sources())
	return router
}

// buildSQSClient creates the SQS client. Static credentials and an
// endpoint override support local development against LocalStack.
func buildSQSClient(ctx context.Context, qc *config.QueueConfig) (queue.API, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(qc.Region),
	}
	if qc.AccessKey != "" && qc.SecretKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(qc.AccessKey, qc.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}
	return sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if qc.Endpoint != "" {
			o.BaseEndpoint = aws.String(qc.Endpoint)
		}
	}), nil
}

// buildHTTPServer builds the HTTP server with router and middleware.
// The write timeout stays unset so /events streams are not cut off.
func buildHTTPServer(cfg *appConfig, deps api.Dependencies, metricsHandler http.Handler) *http.Server {
	if cfg.middlewares == nil {
		cfg.middlewares = []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			api.LoggingMiddleware,
		}
	}

	serverOpts := []api.ServerOption{
		api.WithMiddlewares(cfg.middlewares...),
	}
	if metricsHandler != nil {
		serverOpts = append(serverOpts, api.WithMetricsHandler(metricsHandler))
	}
	mux := api.NewServer(deps, serverOpts...)

	return &http.Server{
		Addr:        cfg.config.Server.Address,
		Handler:     mux,
		ReadTimeout: defaultReadTimeout,
		IdleTimeout: defaultIdleTimeout,
	}
}

// producerOrNil avoids handing the API a non-nil interface wrapping a
// nil pointer.
func producerOrNil(p *queue.Producer) api.Producer {
	if p == nil {
		return nil
	}
	return p
}
