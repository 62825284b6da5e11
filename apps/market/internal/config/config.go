package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

type Config struct {
	RpcURL                string
	DbURL                 string
	KafkaBroker           string
	KafkaTopic            string
	APIPort               int
	ExchangeAddress       common.Address
	ProxyRegistryAddress  common.Address
	PaymentTokenAddress   common.Address
	ChainCallTimeout      time.Duration
	ChainMaxRetries       uint64
	ChainRetryInterval    time.Duration
	EnforceAllowanceCheck bool
	PublishInterval       time.Duration
}

// NewConfig loads configuration from environment variables and exits on error
func NewConfig() *Config {
	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("Could not load .env file: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	return cfg
}

// Load reads the configuration from the current environment
func Load() (*Config, error) {
	cfg := &Config{
		KafkaBroker:           os.Getenv("KAFKA_BROKER"),
		KafkaTopic:            getEnvString("KAFKA_TOPIC", "market-orders"),
		APIPort:               getEnvInt("API_PORT", 8080),
		ChainCallTimeout:      getEnvDuration("CHAIN_CALL_TIMEOUT", 10*time.Second),
		ChainMaxRetries:       getEnvUint64("CHAIN_MAX_RETRIES", 3),
		ChainRetryInterval:    getEnvDuration("CHAIN_RETRY_INTERVAL", 250*time.Millisecond),
		EnforceAllowanceCheck: getEnvBool("ENFORCE_ALLOWANCE_CHECK", false),
		PublishInterval:       getEnvDuration("PUBLISH_INTERVAL", 3*time.Second),
	}

	var err error
	if cfg.RpcURL, err = requireEnv("RPC_URL"); err != nil {
		return nil, err
	}
	if cfg.DbURL, err = requireEnv("DB_URL"); err != nil {
		return nil, err
	}
	if cfg.ExchangeAddress, err = requireAddress("EXCHANGE_CONTRACT_ADDRESS"); err != nil {
		return nil, err
	}
	if cfg.ProxyRegistryAddress, err = requireAddress("PROXY_REGISTRY_CONTRACT_ADDRESS"); err != nil {
		return nil, err
	}
	if cfg.PaymentTokenAddress, err = requireAddress("PAYMENT_TOKEN_ADDRESS"); err != nil {
		return nil, err
	}
	if cfg.ChainCallTimeout <= 0 {
		return nil, errors.New("CHAIN_CALL_TIMEOUT must be positive")
	}

	return cfg, nil
}

func requireEnv(key string) (string, error) {
	if value := os.Getenv(key); value != "" {
		return value, nil
	}
	return "", fmt.Errorf("environment variable %s not set", key)
}

func requireAddress(key string) (common.Address, error) {
	value, err := requireEnv(key)
	if err != nil {
		return common.Address{}, err
	}
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("environment variable %s is not a valid address: %s", key, value)
	}
	return common.HexToAddress(value), nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvUint64(key string, defaultValue uint64) uint64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseUint(value, 10, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
