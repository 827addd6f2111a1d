// Package config loads the engine's configuration from config.json,
// overlaid by environment variables which always take precedence.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config is the full process configuration.
type Config struct {
	Binance  BinanceConfig  `json:"binance"`
	Chain    ChainConfig    `json:"chain"`
	Server   ServerConfig   `json:"server"`
	Auth     AuthConfig     `json:"auth"`
	Vault    VaultConfig    `json:"vault"`
	Redis    RedisConfig    `json:"redis"`
	Postgres PostgresConfig `json:"postgres"`
	Logging  LoggingConfig  `json:"logging"`
}

// BinanceConfig holds the exchange endpoints, credentials and watchlist
// toggles (`spy`/`cryptos`).
type BinanceConfig struct {
	BaseURL     string   `json:"base_url"`
	FutureURL   string   `json:"future_url"`
	FutureURLV2 string   `json:"future_url_v2"`
	APIKey      string   `json:"api_key"`
	SecretKey   string   `json:"secret_key"`
	Symbol      string   `json:"symbol"`
	Interval    string   `json:"interval"`
	Limit       int      `json:"limit"`
	Leverage    int      `json:"leverage"`
	Decide      bool     `json:"decide"`
	Spy         bool     `json:"spy"`
	Cryptos     []string `json:"cryptos"`
	OrderQty    float64  `json:"order_quantity"`
}

// ChainConfig holds the chain store's capacity bounds.
type ChainConfig struct {
	SymbolCapacity int `json:"symbol_capacity"`
	ChainCapacity  int `json:"chain_capacity"`
}

// ServerConfig holds the control-surface HTTP listener settings.
type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// AuthConfig holds the control-auth JWT guard settings. APIKeyHash,
// when set, is a bcrypt hash accepted via X-API-Key as an alternative to a
// minted JWT for scripted callers.
type AuthConfig struct {
	Enabled    bool   `json:"enabled"`
	JWTSecret  string `json:"jwt_secret"`
	APIKeyHash string `json:"api_key_hash"`
}

// VaultConfig holds the secrets provider's Vault settings.
type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`
	SecretPath string `json:"secret_path"`
}

// RedisConfig holds the candle cache's Redis settings.
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// PostgresConfig holds the audit mirror's Postgres settings.
type PostgresConfig struct {
	Enabled bool   `json:"enabled"`
	DSN     string `json:"dsn"`
}

// LoggingConfig mirrors the logging package's Config shape.
type LoggingConfig struct {
	Level       string `json:"level"`
	Output      string `json:"output"`
	JSONFormat  bool   `json:"json_format"`
	IncludeFile bool   `json:"include_file"`
}

// Load reads config.json if present, then applies environment overrides,
// which always take precedence.
func Load() (*Config, error) {
	cfg, err := loadFromFile("config.json")
	if err != nil {
		cfg = &Config{}
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(file, &cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	cfg.Binance.BaseURL = getEnvOrDefault("BINANCE_BASE_URL", orDefault(cfg.Binance.BaseURL, "https://api.binance.com"))
	cfg.Binance.FutureURL = getEnvOrDefault("BINANCE_FUTURE_URL", orDefault(cfg.Binance.FutureURL, "https://fapi.binance.com"))
	cfg.Binance.FutureURLV2 = getEnvOrDefault("BINANCE_FUTURE_URL_V2", cfg.Binance.FutureURLV2)
	cfg.Binance.APIKey = getEnvOrDefault("BINANCE_API_KEY", cfg.Binance.APIKey)
	cfg.Binance.SecretKey = getEnvOrDefault("BINANCE_SECRET_KEY", cfg.Binance.SecretKey)
	cfg.Binance.Symbol = getEnvOrDefault("BINANCE_SYMBOL", orDefault(cfg.Binance.Symbol, "BTCUSDT"))
	cfg.Binance.Interval = getEnvOrDefault("BINANCE_INTERVAL", orDefault(cfg.Binance.Interval, "15m"))
	cfg.Binance.Limit = getEnvIntOrDefault("BINANCE_LIMIT", orDefaultInt(cfg.Binance.Limit, 500))
	cfg.Binance.Leverage = getEnvIntOrDefault("BINANCE_LEVERAGE", orDefaultInt(cfg.Binance.Leverage, 1))
	cfg.Binance.Decide = getEnvOrDefault("BINANCE_DECIDE", boolStr(cfg.Binance.Decide)) == "true"
	cfg.Binance.Spy = getEnvOrDefault("SPY", boolStr(cfg.Binance.Spy)) == "true"
	cfg.Binance.OrderQty = getEnvFloatOrDefault("BINANCE_ORDER_QUANTITY", orDefaultFloat(cfg.Binance.OrderQty, 0.001))
	if cryptos := os.Getenv("CRYPTOS"); cryptos != "" {
		cfg.Binance.Cryptos = strings.Split(cryptos, ",")
	} else if len(cfg.Binance.Cryptos) == 0 {
		cfg.Binance.Cryptos = []string{"ETHUSDT", "SOLUSDT", "BNBUSDT"}
	}

	cfg.Chain.SymbolCapacity = getEnvIntOrDefault("SYMBOL_CAPACITY", orDefaultInt(cfg.Chain.SymbolCapacity, 10))
	cfg.Chain.ChainCapacity = getEnvIntOrDefault("CHAIN_CAPACITY", orDefaultInt(cfg.Chain.ChainCapacity, 1))

	cfg.Server.Host = getEnvOrDefault("WEB_HOST", orDefault(cfg.Server.Host, "0.0.0.0"))
	cfg.Server.Port = getEnvIntOrDefault("WEB_PORT", orDefaultInt(cfg.Server.Port, 8080))

	cfg.Auth.Enabled = getEnvOrDefault("AUTH_ENABLED", boolStr(cfg.Auth.Enabled)) == "true"
	cfg.Auth.JWTSecret = getEnvOrDefault("AUTH_JWT_SECRET", cfg.Auth.JWTSecret)
	cfg.Auth.APIKeyHash = getEnvOrDefault("AUTH_API_KEY_HASH", cfg.Auth.APIKeyHash)

	cfg.Vault.Enabled = getEnvOrDefault("VAULT_ENABLED", boolStr(cfg.Vault.Enabled)) == "true"
	cfg.Vault.Address = getEnvOrDefault("VAULT_ADDR", orDefault(cfg.Vault.Address, "http://localhost:8200"))
	cfg.Vault.Token = getEnvOrDefault("VAULT_TOKEN", cfg.Vault.Token)
	cfg.Vault.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", orDefault(cfg.Vault.MountPath, "secret"))
	cfg.Vault.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", orDefault(cfg.Vault.SecretPath, "zonechain/api-keys"))

	cfg.Redis.Enabled = getEnvOrDefault("REDIS_ENABLED", boolStr(cfg.Redis.Enabled)) == "true"
	cfg.Redis.Address = getEnvOrDefault("REDIS_ADDRESS", orDefault(cfg.Redis.Address, "localhost:6379"))
	cfg.Redis.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getEnvIntOrDefault("REDIS_DB", cfg.Redis.DB)

	cfg.Postgres.Enabled = getEnvOrDefault("POSTGRES_ENABLED", boolStr(cfg.Postgres.Enabled)) == "true"
	cfg.Postgres.DSN = getEnvOrDefault("POSTGRES_DSN", cfg.Postgres.DSN)

	cfg.Logging.Level = getEnvOrDefault("LOG_LEVEL", orDefault(cfg.Logging.Level, "INFO"))
	cfg.Logging.Output = getEnvOrDefault("LOG_OUTPUT", orDefault(cfg.Logging.Output, "stdout"))
	cfg.Logging.JSONFormat = getEnvOrDefault("LOG_JSON", boolStrDefault(cfg.Logging.JSONFormat, true)) == "true"
	cfg.Logging.IncludeFile = getEnvOrDefault("LOG_INCLUDE_FILE", boolStr(cfg.Logging.IncludeFile)) == "true"
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func orDefaultInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func orDefaultFloat(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

func boolStr(v bool) string {
	if v {
		return "true"
	}
	return "false"
}

func boolStrDefault(v, def bool) string {
	if v {
		return "true"
	}
	if def {
		return "true"
	}
	return "false"
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

// GenerateSampleConfig writes a sample config.json for operator bootstrap.
func GenerateSampleConfig(filename string) error {
	cfg := Config{
		Binance: BinanceConfig{
			BaseURL:     "https://api.binance.com",
			FutureURL:   "https://fapi.binance.com",
			FutureURLV2: "https://fapi.binance.com",
			APIKey:      "your_api_key_here",
			SecretKey:   "your_secret_key_here",
			Symbol:      "BTCUSDT",
			Interval:    "15m",
			Limit:       500,
			Leverage:    1,
			Decide:      false,
			Spy:         true,
			Cryptos:     []string{"ETHUSDT", "SOLUSDT", "BNBUSDT"},
			OrderQty:    0.001,
		},
		Chain: ChainConfig{
			SymbolCapacity: 10,
			ChainCapacity:  1,
		},
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Logging: LoggingConfig{
			Level:      "INFO",
			Output:     "stdout",
			JSONFormat: true,
		},
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0644)
}
