package config

import (
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/joho/godotenv"
)

type Config struct {
	AppName                       string   `env:"APP_NAME" env-default:"fern-api"`
	Version                       string   `env:"APP_VERSION" env-default:"dev"`
	Port                          int      `env:"PORT" env-default:"3000"`
	LogLevel                      string   `env:"LOG_LEVEL" env-default:"info"`
	PrettyLogs                    bool     `env:"PRETTY_LOGS" env-default:"false"`
	HttpServerWriteTimeoutSeconds int      `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" env-default:"60"`
	HttpServerReadTimeoutSeconds  int      `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerIdleTimeoutSeconds  int      `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" env-default:"10"`
	MaxHeaderBytes                int      `env:"HTTP_SERVER_MAX_HEADER_BYTES" env-default:"64000"` // 64KB
	ReadHeaderTimeoutSeconds      int      `env:"HTTP_SERVER_READ_HEADER_TIMEOUT_SECONDS" env-default:"10"`
	AllowOrigins                  []string `env:"HTTP_SERVER_ALLOW_ORIGINS" env-default:"*"`
	AllowMethods                  []string `env:"HTTP_SERVER_ALLOW_METHODS" env-default:"GET,POST"`
	StartupMaxAttempts            int      `env:"STARTUP_MAX_ATTEMPTS" env-default:"5"`

	// Database driver
	DatabaseDriver string `env:"DB_DRIVER" env-default:"postgres"`
	// Database host
	DatabaseHost string `env:"DB_HOST" env-default:""`
	// Database port
	DatabasePort string `env:"DB_PORT" env-default:"5432"`
	// Database user
	DatabaseUserName string `env:"DB_USER_NAME" env-default:""`
	// Database user password
	DatabasePassword string `env:"DB_PASSWORD" env-default:""`
	// Database name
	DatabaseName string `env:"DB_NAME" env-default:"fern"`
	// Database SSL Mode
	DatabaseSSLMode string `env:"DB_SQL_MODE" env-default:"disable"`
	// Max Open Conns
	DatabaseMaxOpenConns int `env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	// Max Idle Conns
	DatabaseMaxIdleConns int `env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	// Conn Max Lifetime
	DatabaseConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"10s"`
	// Migration Folder Path
	DatabaseMigrationFolderPath string `env:"DB_MIGRATION_FOLDER_PATH" env-default:"db/pg"`
	// Database Migration Version
	DatabaseMigrationVersion int `env:"DB_MIGRATION_VERSION" env-default:"0"`
	// Database Migration Force
	DatabaseMigrationForce int `env:"DB_MIGRATION_FORCE" env-default:"0"`
	// Database Migration Auto Rollback
	DatabaseMigrationAutoRollback bool `env:"DB_MIGRATION_AUTO_ROLLBACK" env-default:"true"`
	// Run migrations when the server starts
	DatabaseMigrateOnStart bool `env:"DB_MIGRATE_ON_START" env-default:"true"`

	// Auth Enabled - when false, the X-Tenant-ID, X-User-ID and X-Platform headers are trusted (local dev only)
	AuthEnabled bool `env:"AUTH_ENABLED" env-default:"true"`
	// Auth Issuer URL
	AuthIssuerURL string `env:"AUTH_ISSUER_URL" env-default:""`
	// Auth Client ID
	AuthClientID string `env:"AUTH_CLIENT_ID" env-default:""`
	// Realm role granting platform-wide access
	AuthPlatformRole string `env:"AUTH_PLATFORM_ROLE" env-default:"platform-admin"`

	// Redis host
	RedisHost string `env:"REDIS_HOST" env-default:"localhost"`
	// Redis port
	RedisPort int `env:"REDIS_PORT" env-default:"6379"`
	// Redis password
	RedisPassword string `env:"REDIS_PASSWORD" env-default:""`
	// Redis database number
	RedisDB int `env:"REDIS_DB" env-default:"0"`

	// Kafka job lifecycle events
	KafkaEnabled bool `env:"KAFKA_ENABLED" env-default:"false"`
	// Kafka brokers (comma-separated)
	KafkaBrokers string `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	// Kafka topic for job lifecycle events
	KafkaJobEventsTopic string `env:"KAFKA_JOB_EVENTS_TOPIC" env-default:"integration-job-events"`
	// Upper bound on one event publish, retries included
	KafkaPublishTimeout time.Duration `env:"KAFKA_PUBLISH_TIMEOUT" env-default:"2s"`

	// Base64 encoded 32 byte key for credential payloads
	SecretsKey string `env:"SECRETS_KEY" env-default:""`

	// Outbound provider calls
	ProviderHTTPTimeout time.Duration `env:"PROVIDER_HTTP_TIMEOUT" env-default:"30s"`

	StripeAPIBaseURL string `env:"STRIPE_API_BASE_URL" env-default:"https://api.stripe.com"`

	GoogleAdsAPIBaseURL       string `env:"GOOGLE_ADS_API_BASE_URL" env-default:"https://googleads.googleapis.com"`
	GoogleAdsAPIVersion       string `env:"GOOGLE_ADS_API_VERSION" env-default:"v17"`
	GoogleAdsTokenURL         string `env:"GOOGLE_ADS_TOKEN_URL" env-default:"https://oauth2.googleapis.com/token"`
	GoogleAdsClientID         string `env:"GOOGLE_ADS_CLIENT_ID" env-default:""`
	GoogleAdsClientSecret     string `env:"GOOGLE_ADS_CLIENT_SECRET" env-default:""`
	GoogleAdsDeveloperToken   string `env:"GOOGLE_ADS_DEVELOPER_TOKEN" env-default:""`
	GoogleAdsLoginCustomerID  string `env:"GOOGLE_ADS_LOGIN_CUSTOMER_ID" env-default:""`
	GoogleAdsCampaignPageSize int    `env:"GOOGLE_ADS_CAMPAIGN_PAGE_SIZE" env-default:"50"`

	// Tracing settings
	// Enable OTLP tracing export (set to true to send traces to collector)
	OTLPEnabled bool `env:"OTLP_ENABLED" env-default:"false"`
	// OTLP collector endpoint
	OTLPEndpoint string `env:"OTLP_ENDPOINT" env-default:"localhost:4317"`
	// OTLP protocol (grpc or http)
	OTLPProtocol string `env:"OTLP_PROTOCOL" env-default:"grpc"`
	// Disable TLS for OTLP (for local development)
	OTLPInsecure bool `env:"OTLP_INSECURE" env-default:"true"`
	// Span export timeout
	OTLPTimeout time.Duration `env:"OTLP_TIMEOUT" env-default:"10s"`
}

// Load reads an optional .env file and binds the environment onto a Config.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	// a missing .env is normal outside local dev
	_ = godotenv.Load(envFiles...)

	cfg := &Config{}
	if err := ectoenv.BindEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
