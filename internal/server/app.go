package server

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/pkg/auth"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/health"
	"github.com/Ramsey-B/fern/pkg/httpclient"
	"github.com/Ramsey-B/fern/pkg/jobs"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/providers"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/repositories"
	"github.com/Ramsey-B/fern/pkg/secrets"
	"github.com/Ramsey-B/fern/pkg/startup"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/tracing/exporters"
)

const googleAdsScope = "https://www.googleapis.com/auth/adwords"

// App owns the process dependencies shared by the server and the CLI
type App struct {
	cfg     *config.Config
	logger  ectologger.Logger
	startup *startup.Startup

	tracingShutdown func(context.Context) error

	DB       database.DB
	Redis    *redis.Client
	Producer *kafka.Producer
	Jobs     *jobs.Manager
	Health   *health.Checker
}

// NewApp registers the dependency graph. Nothing connects until Start.
func NewApp(cfg *config.Config, logger ectologger.Logger) *App {
	app := &App{
		cfg:     cfg,
		logger:  logger,
		startup: startup.NewStartup(logger, cfg.StartupMaxAttempts),
		Health:  health.NewChecker(cfg.Version),
	}

	app.startup.AddDependency(&startup.Dependency{
		Name:    "tracing",
		StartFn: app.startTracing,
		StopFn:  app.stopTracing,
	})
	app.startup.AddDependency(&startup.Dependency{
		Name:    "database",
		StartFn: app.startDatabase,
		StopFn:  app.stopDatabase,
	})
	app.startup.AddDependency(&startup.Dependency{
		Name:    "redis",
		StartFn: app.startRedis,
		StopFn:  app.stopRedis,
	})
	app.startup.AddDependency(&startup.Dependency{
		Name:    "kafka",
		StartFn: app.startKafka,
		StopFn:  app.stopKafka,
	})
	app.startup.AddDependency(&startup.Dependency{
		Name:     "jobs",
		Requires: []string{"database", "redis", "kafka"},
		StartFn:  app.startJobs,
	})

	return app
}

// Start connects every dependency, retrying with backoff
func (a *App) Start(ctx context.Context) error {
	return a.startup.Start(ctx)
}

// Stop releases dependencies in reverse start order
func (a *App) Stop(ctx context.Context) error {
	a.Health.SetReady(false)
	return a.startup.Stop(ctx)
}

func (a *App) startTracing(ctx context.Context) error {
	protocol, err := exporters.ParseProtocol(a.cfg.OTLPProtocol)
	if err != nil {
		return err
	}

	shutdown, err := tracing.NewProvider(ctx, tracing.ProviderConfig{
		ServiceName:    a.cfg.AppName,
		ServiceVersion: a.cfg.Version,
		OTLPEnabled:    a.cfg.OTLPEnabled,
		OTLP: exporters.OTLPConfig{
			Endpoint: a.cfg.OTLPEndpoint,
			Protocol: protocol,
			Insecure: a.cfg.OTLPInsecure,
			Timeout:  a.cfg.OTLPTimeout,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to start tracing: %w", err)
	}

	a.tracingShutdown = shutdown
	return nil
}

func (a *App) stopTracing(ctx context.Context) error {
	if a.tracingShutdown == nil {
		return nil
	}
	return a.tracingShutdown(ctx)
}

func (a *App) startDatabase(ctx context.Context) error {
	db, err := database.Connect(ctx, database.ConnectionConfig{
		Driver:          a.cfg.DatabaseDriver,
		Host:            a.cfg.DatabaseHost,
		Port:            a.cfg.DatabasePort,
		User:            a.cfg.DatabaseUserName,
		Password:        a.cfg.DatabasePassword,
		Name:            a.cfg.DatabaseName,
		SSLMode:         a.cfg.DatabaseSSLMode,
		MaxOpenConns:    a.cfg.DatabaseMaxOpenConns,
		MaxIdleConns:    a.cfg.DatabaseMaxIdleConns,
		ConnMaxLifetime: a.cfg.DatabaseConnMaxLifetime,
	}, a.logger)
	if err != nil {
		return err
	}
	a.DB = db

	if a.cfg.DatabaseMigrateOnStart {
		if err := a.migrate(); err != nil {
			return err
		}
	}

	a.Health.AddCheck("database", health.PingFunc(func(ctx context.Context) error {
		return db.SqlxDB().PingContext(ctx)
	}))
	return nil
}

func (a *App) migrate() error {
	migrations := database.NewMigrationService(a.logger, &database.MigrationConfig{
		MigrationFolderPath: a.cfg.DatabaseMigrationFolderPath,
		Version:             uint(a.cfg.DatabaseMigrationVersion),
		Force:               a.cfg.DatabaseMigrationForce,
		AutoRollback:        a.cfg.DatabaseMigrationAutoRollback,
	})
	return migrations.MigratePostgres(a.DB, a.cfg.DatabaseName)
}

// StartDatabase connects only the database (migrating when enabled), for commands that need nothing else
func (a *App) StartDatabase(ctx context.Context) error {
	return a.startDatabase(ctx)
}

func (a *App) stopDatabase(context.Context) error {
	if a.DB == nil {
		return nil
	}
	return a.DB.SqlxDB().Close()
}

// The token cache is optional: a redis outage only costs extra token refreshes.
func (a *App) startRedis(ctx context.Context) error {
	a.Redis = redis.NewClient(redis.Config{
		Host:     a.cfg.RedisHost,
		Port:     a.cfg.RedisPort,
		Password: a.cfg.RedisPassword,
		DB:       a.cfg.RedisDB,
	}, a.logger)

	if err := a.Redis.Connect(ctx); err != nil {
		a.logger.WithContext(ctx).WithError(err).Warn("Redis is unavailable, access tokens will not be cached")
	}

	a.Health.AddOptionalCheck("redis", a.Redis)
	return nil
}

func (a *App) stopRedis(context.Context) error {
	if a.Redis == nil {
		return nil
	}
	return a.Redis.Close()
}

func (a *App) startKafka(ctx context.Context) error {
	if !a.cfg.KafkaEnabled {
		a.logger.WithContext(ctx).Info("Kafka is disabled, job events will not be published")
		return nil
	}

	kafkaCfg := kafka.ParseConfig(a.cfg.KafkaBrokers, a.cfg.KafkaJobEventsTopic)
	kafkaCfg.PublishTimeout = a.cfg.KafkaPublishTimeout
	a.Producer = kafka.NewProducer(kafkaCfg, a.logger)
	return nil
}

func (a *App) stopKafka(context.Context) error {
	if a.Producer == nil {
		return nil
	}
	return a.Producer.Close()
}

func (a *App) startJobs(ctx context.Context) error {
	box, err := secrets.NewBoxFromBase64(a.cfg.SecretsKey)
	if err != nil {
		return fmt.Errorf("invalid SECRETS_KEY: %w", err)
	}

	integrationRepo := repositories.NewIntegrationRepository(a.DB, a.logger)
	jobRepo := repositories.NewJobRepository(a.DB, a.logger)
	secretRepo := repositories.NewSecretRepository(a.DB, a.logger)
	auditRepo := repositories.NewAuditRepository(a.DB, a.logger)
	adRepo := repositories.NewAdRepository(a.DB, a.logger)

	stripeClient := httpclient.NewClient(a.httpConfig(models.ProviderStripe), a.logger)
	googleAdsClient := httpclient.NewClient(a.httpConfig(models.ProviderGoogleAds), a.logger)

	tokens := auth.NewManager(models.ProviderGoogleAds, auth.OAuthConfig{
		ClientID:     a.cfg.GoogleAdsClientID,
		ClientSecret: a.cfg.GoogleAdsClientSecret,
		TokenURL:     a.cfg.GoogleAdsTokenURL,
		Scopes:       []string{googleAdsScope},
	}, googleAdsClient.HTTPClient(), a.Redis, box, a.logger)

	registry := providers.NewRegistry(a.logger,
		providers.NewStripeHandler(secretRepo, box, stripeClient, a.cfg.StripeAPIBaseURL, a.logger),
		providers.NewGoogleAdsHandler(providers.GoogleAdsConfig{
			BaseURL:          a.cfg.GoogleAdsAPIBaseURL,
			Version:          a.cfg.GoogleAdsAPIVersion,
			DeveloperToken:   a.cfg.GoogleAdsDeveloperToken,
			LoginCustomerID:  a.cfg.GoogleAdsLoginCustomerID,
			CampaignPageSize: a.cfg.GoogleAdsCampaignPageSize,
		}, secretRepo, box, tokens, googleAdsClient, nil, adRepo, a.logger),
	)

	var events jobs.EventPublisher
	if a.Producer != nil {
		events = a.Producer
	}

	a.Jobs = jobs.NewManager(integrationRepo, jobRepo, registry, auditRepo, events, nil, a.logger)

	a.logger.WithContext(ctx).Info("Job manager ready")
	return nil
}

func (a *App) httpConfig(provider models.Provider) httpclient.Config {
	cfg := httpclient.DefaultConfig(string(provider))
	if a.cfg.ProviderHTTPTimeout > 0 {
		cfg.Timeout = a.cfg.ProviderHTTPTimeout
	}
	return cfg
}

// shutdownTimeout bounds graceful shutdown of the server and dependencies
const shutdownTimeout = 15 * time.Second
