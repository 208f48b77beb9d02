package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	Port           int
	GRPCPort       int
	EndpointPrefix string
	GinMode        string

	DatabaseURL string
	RedisAddr   string
	RedisPass   string

	KafkaBrokers []string
	ConsulAddr   string
	ServiceName  string
	ServiceHost  string

	StripeKey           string
	StripeWebhookSecret string
	PaymentSuccessURL   string
	PaymentCancelURL    string
	PaymentCurrency     string

	PrivateKeyPath string
	PublicKeyPath  string

	TaxRate decimal.Decimal
}

// Load reads .env (if present) and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("could not load .env file", slog.String("error", err.Error()))
	}

	cfg := &Config{
		EndpointPrefix:      getEnv("SERVICE_ENDPOINT_PREFIX", "/api/v1"),
		GinMode:             getEnv("GIN_MODE", "debug"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		RedisAddr:           getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPass:           os.Getenv("REDIS_PASSWORD"),
		ConsulAddr:          os.Getenv("CONSUL_ADDR"),
		ServiceName:         getEnv("SERVICE_NAME", "shop"),
		ServiceHost:         getEnv("SERVICE_HOST", "localhost"),
		StripeKey:           os.Getenv("STRIPE_TEST_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		PaymentSuccessURL:   getEnv("PAYMENT_SUCCESS_URL", "https://example.com/success"),
		PaymentCancelURL:    getEnv("PAYMENT_CANCEL_URL", "https://example.com/cancel"),
		PaymentCurrency:     getEnv("PAYMENT_CURRENCY", "usd"),
		PrivateKeyPath:      getEnv("PRIVATE_KEY_PATH", "private.pem"),
		PublicKeyPath:       getEnv("PUBLIC_KEY_PATH", "pubkey.pem"),
	}

	var err error
	if cfg.Port, err = strconv.Atoi(getEnv("PORT", "8080")); err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}
	if cfg.GRPCPort, err = strconv.Atoi(getEnv("GRPC_PORT", "5001")); err != nil {
		return nil, fmt.Errorf("invalid GRPC_PORT: %w", err)
	}
	if cfg.TaxRate, err = decimal.NewFromString(getEnv("TAX_RATE", "0.10")); err != nil {
		return nil, fmt.Errorf("invalid TAX_RATE: %w", err)
	}
	if cfg.TaxRate.IsNegative() {
		return nil, fmt.Errorf("invalid TAX_RATE: %s is negative", cfg.TaxRate)
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
