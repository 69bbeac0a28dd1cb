package config

import (
	"os"
	"strconv"
	"strings"
)

// Config holds all configuration for the verifyd server.
type Config struct {
	Server     ServerConfig
	Compiler   CompilerConfig
	Repository RepositoryConfig
	Storage    StorageConfig
	Fetch      FetchConfig
	Session    SessionConfig
	Logging    LoggingConfig
	RateLimit  RateLimitConfig
	Security   SecurityConfig
	Proxy      ProxyConfig
	Chains     ChainsConfig
}

// ChainsConfig locates the chainregistry.Registry fixture.
type ChainsConfig struct {
	ConfigPath string
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port           int
	Host           string
	ReadTimeout    int // seconds
	WriteTimeout   int // seconds
	IdleTimeout    int // seconds
	RequestTimeout int // seconds
}

// CompilerConfig selects and configures the CompilerDriver implementation.
type CompilerConfig struct {
	Backend     string // "local" or "remote"
	RemoteURL   string
	LocalBinDir string
}

// RepositoryConfig locates the MatchStore's content-addressed tree.
type RepositoryConfig struct {
	Path      string
	ServerURL string
}

// StorageConfig configures the verified-match index backend.
type StorageConfig struct {
	Type     string // "sqlite" or "postgres"
	Postgres PostgresConfig
	SQLite   SQLiteConfig
}

// PostgresConfig holds Postgres connection settings.
type PostgresConfig struct {
	URL string
}

// SQLiteConfig holds SQLite settings.
type SQLiteConfig struct {
	Path string
}

// FetchConfig configures the decentralized StorageFetcher registry.
type FetchConfig struct {
	IPFSGateways  []string
	IPFSAPI       string
	SwarmGateways []string
}

// SessionConfig bounds the SessionStager.
type SessionConfig struct {
	MaxBytes           int64
	IdleTimeoutMinutes int
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string
	Format string // "text" or "json"
}

// RateLimitConfig holds rate limiting settings.
type RateLimitConfig struct {
	Enabled        bool
	RequestsPerMin int
	BurstSize      int
	CleanupMinutes int
}

// SecurityConfig holds security filter settings.
type SecurityConfig struct {
	FilterEnabled bool
	MaxBodySizeMB int
}

// ProxyConfig holds trusted proxy settings for X-Forwarded-For handling.
type ProxyConfig struct {
	TrustProxy     bool
	TrustedProxies []string // CIDR notation
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnvInt("PORT", 8080),
			Host:           getEnv("HOST", "0.0.0.0"),
			ReadTimeout:    getEnvInt("SERVER_READ_TIMEOUT", 30),
			WriteTimeout:   getEnvInt("SERVER_WRITE_TIMEOUT", 60),
			IdleTimeout:    getEnvInt("SERVER_IDLE_TIMEOUT", 120),
			RequestTimeout: getEnvInt("SERVER_REQUEST_TIMEOUT", 30),
		},
		Compiler: CompilerConfig{
			Backend:     getEnv("COMPILER_BACKEND", "local"),
			RemoteURL:   getEnv("COMPILER_REMOTE_URL", ""),
			LocalBinDir: getEnv("COMPILER_LOCAL_BIN_DIR", "./data/solc"),
		},
		Repository: RepositoryConfig{
			Path:      getEnv("REPOSITORY_PATH", "./data/repository"),
			ServerURL: getEnv("REPOSITORY_SERVER_URL", ""),
		},
		Storage: StorageConfig{
			Type: getEnv("STORAGE_TYPE", "sqlite"),
			Postgres: PostgresConfig{
				URL: getEnv("DATABASE_URL", ""),
			},
			SQLite: SQLiteConfig{
				Path: getEnv("SQLITE_PATH", "./data/verify.db"),
			},
		},
		Fetch: FetchConfig{
			IPFSGateways:  getEnvStringSlice("IPFS_GATEWAYS", []string{"https://ipfs.io/ipfs/"}),
			IPFSAPI:       getEnv("IPFS_API", ""),
			SwarmGateways: getEnvStringSlice("SWARM_GATEWAYS", []string{"https://swarm-gateways.net/bzz-raw:/"}),
		},
		Session: SessionConfig{
			MaxBytes:           int64(getEnvInt("SESSION_MAX_BYTES", 50*1024*1024)),
			IdleTimeoutMinutes: getEnvInt("SESSION_IDLE_TIMEOUT_MINUTES", 30),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		RateLimit: RateLimitConfig{
			Enabled:        getEnvBool("RATE_LIMIT_ENABLED", true),
			RequestsPerMin: getEnvInt("RATE_LIMIT_RPM", 300),
			BurstSize:      getEnvInt("RATE_LIMIT_BURST", 50),
			CleanupMinutes: getEnvInt("RATE_LIMIT_CLEANUP_MINUTES", 10),
		},
		Security: SecurityConfig{
			FilterEnabled: getEnvBool("SECURITY_FILTER_ENABLED", true),
			MaxBodySizeMB: getEnvInt("SECURITY_MAX_BODY_SIZE_MB", 50),
		},
		Proxy: ProxyConfig{
			TrustProxy:     getEnvBool("TRUST_PROXY", false),
			TrustedProxies: getEnvStringSlice("TRUSTED_PROXIES", []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"}),
		},
		Chains: ChainsConfig{
			ConfigPath: getEnv("CHAINS_CONFIG_PATH", ""),
		},
	}

	if cfg.Storage.Postgres.URL != "" && cfg.Storage.Type == "sqlite" {
		cfg.Storage.Type = "postgres"
	}

	return cfg, nil
}

// ChainRPC reads the per-chain RPC endpoint override for chainID, e.g.
// CHAIN_RPC_1 for mainnet. Returns "" if unset.
func ChainRPC(chainID string) string {
	return os.Getenv("CHAIN_RPC_" + chainID)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}
