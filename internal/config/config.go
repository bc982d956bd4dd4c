package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration values
type Config struct {
	Server ServerConfig
	VASP   VASPConfig
	Chain  ChainConfig
	Worker WorkerConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port string
	Env  string
}

// VASPConfig identifies this VASP on the network.
type VASPConfig struct {
	// Name labels this VASP in logs.
	Name string
	// HRP is the bech32 human readable prefix of account identifiers.
	HRP string
	// BaseURL is the externally reachable off-chain endpoint published on
	// chain.
	BaseURL string
	// AccountAddress is the parent VASP account address, 32 hex chars.
	AccountAddress string
	// ComplianceKey is the hex-encoded Ed25519 private key signing off-chain
	// envelopes and travel rule receipts.
	ComplianceKey string
}

// ChainConfig holds chain access configuration.
type ChainConfig struct {
	RPCURL string
}

// WorkerConfig holds background worker configuration.
type WorkerConfig struct {
	Interval time.Duration
}

// Load loads configuration from environment variables
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Env:  getEnv("SERVER_ENV", "development"),
		},
		VASP: VASPConfig{
			Name:           getEnv("VASP_NAME", "vasp-link"),
			HRP:            getEnv("VASP_HRP", "tvl"),
			BaseURL:        getEnv("VASP_BASE_URL", "http://localhost:8080"),
			AccountAddress: getEnv("VASP_ACCOUNT_ADDRESS", ""),
			ComplianceKey:  getEnv("VASP_COMPLIANCE_KEY", ""),
		},
		Chain: ChainConfig{
			RPCURL: getEnv("CHAIN_RPC_URL", "http://localhost:8545"),
		},
		Worker: WorkerConfig{
			Interval: getEnvAsDuration("WORKER_INTERVAL", 500*time.Millisecond),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
