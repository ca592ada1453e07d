package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kevin07696/mpesa-checkout/internal/domain"
	"github.com/kevin07696/mpesa-checkout/internal/domain/ports"
)

// Secret backends
const (
	SecretsBackendEnv   = "env"
	SecretsBackendAWS   = "aws"
	SecretsBackendVault = "vault"
	SecretsBackendLocal = "local"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Gateway   GatewayConfig
	Secrets   SecretsConfig
	Events    EventsConfig
	Admin     AdminConfig
	Reconcile ReconcileConfig
	Logger    LoggerConfig
}

// ServerConfig holds HTTP and auxiliary listener configuration
type ServerConfig struct {
	Host               string
	Environment        string // development, staging, production
	CallbackAllowedIPs []string
	TrustedProxies     []string // peers allowed to set X-Forwarded-For / X-Real-IP
	Port               int
	HealthPort         int // gRPC health
	MetricsPort        int
	RateLimitRPS       float64
	RateLimitBurst     int
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL      string // takes precedence over the individual fields when set
	Host     string
	User     string
	Password string
	Database string
	SSLMode  string
	Port     int
	MaxConns int32
	MinConns int32
}

// GatewayConfig holds Daraja (M-Pesa) configuration
type GatewayConfig struct {
	BaseURL         string // https://sandbox.safaricom.co.ke or https://api.safaricom.co.ke
	ShortCode       string
	Passkey         string
	ConsumerKey     string
	ConsumerSecret  string
	CallbackURL     string
	TransactionType string
	RequestTimeout  time.Duration // per HTTP call
	PushTimeout     time.Duration // token fetch + push together
	TokenAttempts   int
	TokenBaseDelay  time.Duration
}

// SecretsConfig selects where the consumer secret and passkey come from
type SecretsConfig struct {
	Backend            string
	ConsumerSecretPath string
	PasskeyPath        string
	AWSRegion          string
	AWSEndpoint        string
	VaultAddress       string
	VaultToken         string
	VaultMount         string
	LocalBaseDir       string
}

// EventsConfig holds RabbitMQ configuration. An empty URL disables publishing.
type EventsConfig struct {
	AMQPURL  string
	Exchange string
}

// AdminConfig holds the staff PIN
type AdminConfig struct {
	PIN string
}

// ReconcileConfig drives the degraded-order sweep
type ReconcileConfig struct {
	Schedule  string
	Threshold time.Duration
}

// LoggerConfig holds logging configuration
type LoggerConfig struct {
	Level string // debug, info, warn, error
}

// LoadFromEnv loads configuration from environment variables.
// Gateway credentials are not checked here because they may still be
// resolved from a secret store; call GatewayConfig.Validate afterwards.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:               getEnv("SERVER_HOST", "0.0.0.0"),
			Port:               getEnvAsInt("PORT", 8080),
			HealthPort:         getEnvAsInt("HEALTH_GRPC_PORT", 50051),
			MetricsPort:        getEnvAsInt("METRICS_PORT", 9090),
			Environment:        getEnv("ENVIRONMENT", "development"),
			CallbackAllowedIPs: getEnvAsList("MPESA_CALLBACK_ALLOWED_IPS"),
			TrustedProxies:     getEnvAsList("TRUSTED_PROXIES"),
			RateLimitRPS:       getEnvAsFloat("RATE_LIMIT_RPS", 5),
			RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 10),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_NAME", "mpesa_checkout"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
			MaxConns: int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns: int32(getEnvAsInt("DB_MIN_CONNS", 2)),
		},
		Gateway: GatewayConfig{
			BaseURL:         strings.TrimRight(getEnv("MPESA_BASE_URL", "https://sandbox.safaricom.co.ke"), "/"),
			ShortCode:       getEnv("MPESA_SHORTCODE", ""),
			Passkey:         getEnv("MPESA_PASSKEY", ""),
			ConsumerKey:     getEnv("MPESA_CONSUMER_KEY", ""),
			ConsumerSecret:  getEnv("MPESA_CONSUMER_SECRET", ""),
			CallbackURL:     getEnv("MPESA_CALLBACK_URL", ""),
			TransactionType: getEnv("MPESA_TRANSACTION_TYPE", "CustomerPayBillOnline"),
			RequestTimeout:  getEnvAsDuration("MPESA_REQUEST_TIMEOUT", 10*time.Second),
			PushTimeout:     getEnvAsDuration("MPESA_PUSH_TIMEOUT", 35*time.Second),
			TokenAttempts:   getEnvAsInt("MPESA_TOKEN_ATTEMPTS", 3),
			TokenBaseDelay:  getEnvAsDuration("MPESA_TOKEN_BASE_DELAY", time.Second),
		},
		Secrets: SecretsConfig{
			Backend:            strings.ToLower(getEnv("SECRETS_BACKEND", SecretsBackendEnv)),
			ConsumerSecretPath: getEnv("MPESA_CONSUMER_SECRET_PATH", "mpesa-checkout/daraja#consumer_secret"),
			PasskeyPath:        getEnv("MPESA_PASSKEY_PATH", "mpesa-checkout/daraja#passkey"),
			AWSRegion:          getEnv("AWS_REGION", "eu-west-1"),
			AWSEndpoint:        getEnv("AWS_SECRETS_ENDPOINT", ""),
			VaultAddress:       getEnv("VAULT_ADDR", "http://127.0.0.1:8200"),
			VaultToken:         getEnv("VAULT_TOKEN", ""),
			VaultMount:         getEnv("VAULT_MOUNT", "secret"),
			LocalBaseDir:       getEnv("LOCAL_SECRETS_DIR", "./secrets"),
		},
		Events: EventsConfig{
			AMQPURL:  getEnv("AMQP_URL", ""),
			Exchange: getEnv("AMQP_EXCHANGE", "mpesa-checkout.events"),
		},
		Admin: AdminConfig{
			PIN: getEnv("ADMIN_PIN", ""),
		},
		Reconcile: ReconcileConfig{
			Schedule:  getEnv("RECONCILE_CRON", "@every 5m"),
			Threshold: getEnvAsDuration("RECONCILE_THRESHOLD", 2*time.Minute),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	switch cfg.Secrets.Backend {
	case SecretsBackendEnv, SecretsBackendAWS, SecretsBackendVault, SecretsBackendLocal:
	default:
		return nil, fmt.Errorf("SECRETS_BACKEND must be one of env, aws, vault, local; got %q", cfg.Secrets.Backend)
	}
	if cfg.Gateway.TokenAttempts < 1 {
		return nil, fmt.Errorf("MPESA_TOKEN_ATTEMPTS must be at least 1")
	}

	return cfg, nil
}

// Validate reports every missing gateway setting in one CONFIG_MISSING error.
// It never touches the network.
func (g *GatewayConfig) Validate() error {
	var missing []string
	check := func(name, value string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	check("MPESA_BASE_URL", g.BaseURL)
	check("MPESA_SHORTCODE", g.ShortCode)
	check("MPESA_PASSKEY", g.Passkey)
	check("MPESA_CONSUMER_KEY", g.ConsumerKey)
	check("MPESA_CONSUMER_SECRET", g.ConsumerSecret)
	check("MPESA_CALLBACK_URL", g.CallbackURL)

	if len(missing) == 0 {
		return nil
	}
	return domain.NewDomainError(domain.ErrorCodeConfigMissing,
		"missing gateway configuration: "+strings.Join(missing, ", ")).
		WithDetail("missing", missing)
}

// ResolveGatewaySecrets fills the consumer secret and passkey from the secret
// store. Values already present in the environment are kept.
func (c *Config) ResolveGatewaySecrets(ctx context.Context, sm ports.SecretManager) error {
	if c.Secrets.Backend == SecretsBackendEnv || sm == nil {
		return nil
	}

	if c.Gateway.ConsumerSecret == "" {
		s, err := sm.GetSecret(ctx, c.Secrets.ConsumerSecretPath)
		if err != nil {
			return fmt.Errorf("resolve consumer secret: %w", err)
		}
		c.Gateway.ConsumerSecret = s.Value
	}
	if c.Gateway.Passkey == "" {
		s, err := sm.GetSecret(ctx, c.Secrets.PasskeyPath)
		if err != nil {
			return fmt.Errorf("resolve passkey: %w", err)
		}
		c.Gateway.Passkey = s.Value
	}
	return nil
}

// ConnectionString returns PostgreSQL connection string
func (c *DatabaseConfig) ConnectionString() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsList(key string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
