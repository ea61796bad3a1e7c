package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Remote   RemoteConfig   `mapstructure:"remote"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Database DatabaseConfig `mapstructure:"database"`
	POS      POSConfig      `mapstructure:"pos"`
	CORS     CORSConfig     `mapstructure:"cors"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig describes the local API consumed by the till UI.
type ServerConfig struct {
	Host                    string        `mapstructure:"host"`
	Port                    int           `mapstructure:"port"`
	Mode                    string        `mapstructure:"mode"`
	ReadTimeout             time.Duration `mapstructure:"read_timeout"`
	WriteTimeout            time.Duration `mapstructure:"write_timeout"`
	GracefulShutdownTimeout time.Duration `mapstructure:"graceful_shutdown_timeout"`
}

// RemoteConfig describes the authoritative retail backend.
type RemoteConfig struct {
	BaseURL          string        `mapstructure:"base_url"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
	HeartbeatPath    string        `mapstructure:"heartbeat_path"`
	ReconnectInitial time.Duration `mapstructure:"reconnect_initial"`
	ReconnectMax     time.Duration `mapstructure:"reconnect_max"`
}

type StorageConfig struct {
	FastTier      FastTierConfig    `mapstructure:"fast_tier"`
	Durable       DurableTierConfig `mapstructure:"durable"`
	SizeThreshold int               `mapstructure:"size_threshold"`
	DurableTTL    time.Duration     `mapstructure:"durable_ttl"`
}

type FastTierConfig struct {
	Backend    string `mapstructure:"backend"` // "redis" | "memory"
	QuotaBytes int    `mapstructure:"quota_bytes"`
	// SnapshotPath persists the memory backend across restarts; empty keeps it in RAM only.
	SnapshotPath string `mapstructure:"snapshot_path"`
}

type DurableTierConfig struct {
	Driver      string `mapstructure:"driver"` // "sqlite" | "postgres"
	SQLitePath  string `mapstructure:"sqlite_path"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	DB              string        `mapstructure:"db"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type POSConfig struct {
	TerminalID string  `mapstructure:"terminal_id"`
	TaxRate    float64 `mapstructure:"tax_rate"`
	// SupervisorRoles may retry failed queue items.
	SupervisorRoles []string `mapstructure:"supervisor_roles"`
	// SyncInterval drives the periodic sync trigger; 0 disables it.
	SyncInterval time.Duration `mapstructure:"sync_interval"`
}

type CORSConfig struct {
	AllowedOrigins   []string      `mapstructure:"allowed_origins"`
	AllowedMethods   []string      `mapstructure:"allowed_methods"`
	AllowedHeaders   []string      `mapstructure:"allowed_headers"`
	AllowCredentials bool          `mapstructure:"allow_credentials"`
	MaxAge           time.Duration `mapstructure:"max_age"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8765)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.graceful_shutdown_timeout", 10*time.Second)

	v.SetDefault("remote.base_url", "http://127.0.0.1:8080")
	v.SetDefault("remote.request_timeout", 15*time.Second)
	v.SetDefault("remote.heartbeat_path", "/ws/heartbeat")
	v.SetDefault("remote.reconnect_initial", time.Second)
	v.SetDefault("remote.reconnect_max", 30*time.Second)

	v.SetDefault("storage.fast_tier.backend", "memory")
	v.SetDefault("storage.fast_tier.quota_bytes", 5*1024*1024)
	v.SetDefault("storage.fast_tier.snapshot_path", "possync-fast.json")
	v.SetDefault("storage.durable.driver", "sqlite")
	v.SetDefault("storage.durable.sqlite_path", "possync.db")
	v.SetDefault("storage.durable.auto_migrate", true)
	v.SetDefault("storage.size_threshold", 100*1024)
	v.SetDefault("storage.durable_ttl", 7*24*time.Hour)

	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.sslmode", "disable")
	v.SetDefault("database.postgres.max_idle_conns", 2)
	v.SetDefault("database.postgres.max_open_conns", 10)
	v.SetDefault("database.postgres.conn_max_lifetime", time.Hour)
	v.SetDefault("database.redis.host", "127.0.0.1")
	v.SetDefault("database.redis.port", 6379)
	v.SetDefault("database.redis.pool_size", 10)

	v.SetDefault("pos.terminal_id", "till-1")
	v.SetDefault("pos.tax_rate", 0.0)
	v.SetDefault("pos.supervisor_roles", []string{"manager", "supervisor"})
	v.SetDefault("pos.sync_interval", 5*time.Minute)

	v.SetDefault("cors.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT", "PATCH", "DELETE"})
	v.SetDefault("cors.allowed_headers", []string{"Origin", "Content-Type", "Authorization"})
	v.SetDefault("cors.max_age", 12*time.Hour)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg, _ := Load("")
	return cfg
}

// Load reads the YAML file at path (skipped when path is empty), overlays
// environment variables, and returns Config.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// Environment variable override: STORAGE_DURABLE_DRIVER -> storage.durable.driver
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
