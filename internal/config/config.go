// Package config defines all configuration for the exchange services.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// sensitive fields overridable via SPOT_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration, shared by the gateway and all
// worker services. Maps directly to the YAML file structure.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	RPC      RPCConfig      `mapstructure:"rpc"`
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// DatabaseConfig holds the Postgres connection settings. URL takes
// precedence over the individual fields when set.
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
}

// DSN returns the pgx connection string.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s", d.User, d.Password, d.Host, d.Port, d.Name)
}

// RedisConfig holds the connection settings for the work queue and the
// per-instrument matching locks.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// RPCConfig tunes the work-queue runtime.
//
//   - Workers: goroutines consuming each service's queue.
//   - CallTimeout: how long the gateway waits for a result future.
//   - ResultTTL: how long finished results are retained in Redis.
//   - LockTTL: lease of the per-instrument matching lock. Kept shorter than
//     CallTimeout so a worker that dies mid-match releases its lock before
//     the caller gives up.
type RPCConfig struct {
	Workers     int           `mapstructure:"workers"`
	CallTimeout time.Duration `mapstructure:"call_timeout"`
	ResultTTL   time.Duration `mapstructure:"result_ttl"`
	LockTTL     time.Duration `mapstructure:"lock_ttl"`
}

// GatewayConfig controls the public HTTP server.
// JWTSecret signs user API keys (HS256); AdminToken is the shared secret
// accepted on /admin routes.
type GatewayConfig struct {
	Port       int    `mapstructure:"port"`
	JWTSecret  string `mapstructure:"jwt_secret"`
	AdminToken string `mapstructure:"admin_token"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads config from a YAML file with env var overrides.
// Sensitive fields use env vars: SPOT_DATABASE_URL, SPOT_DB_PASSWORD,
// SPOT_JWT_SECRET, SPOT_ADMIN_TOKEN, SPOT_REDIS_ADDR.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("SPOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("rpc.workers", 4)
	v.SetDefault("rpc.call_timeout", 10*time.Second)
	v.SetDefault("rpc.result_ttl", time.Hour)
	v.SetDefault("rpc.lock_ttl", 5*time.Second)
	v.SetDefault("gateway.port", 8080)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Override sensitive fields from env
	if url := os.Getenv("SPOT_DATABASE_URL"); url != "" {
		cfg.Database.URL = url
	}
	if pass := os.Getenv("SPOT_DB_PASSWORD"); pass != "" {
		cfg.Database.Password = pass
	}
	if secret := os.Getenv("SPOT_JWT_SECRET"); secret != "" {
		cfg.Gateway.JWTSecret = secret
	}
	if token := os.Getenv("SPOT_ADMIN_TOKEN"); token != "" {
		cfg.Gateway.AdminToken = token
	}
	if addr := os.Getenv("SPOT_REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}

	return &cfg, nil
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if c.Database.URL == "" && (c.Database.User == "" || c.Database.Name == "") {
		return fmt.Errorf("database.url or database.user + database.name is required")
	}
	if c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required")
	}
	if c.RPC.Workers <= 0 {
		return fmt.Errorf("rpc.workers must be > 0")
	}
	if c.RPC.LockTTL >= c.RPC.CallTimeout {
		return fmt.Errorf("rpc.lock_ttl must be shorter than rpc.call_timeout")
	}
	if c.Gateway.JWTSecret == "" {
		return fmt.Errorf("gateway.jwt_secret is required (set SPOT_JWT_SECRET)")
	}
	if c.Gateway.AdminToken == "" {
		return fmt.Errorf("gateway.admin_token is required (set SPOT_ADMIN_TOKEN)")
	}
	if c.Gateway.Port <= 0 {
		return fmt.Errorf("gateway.port must be > 0")
	}
	return nil
}
