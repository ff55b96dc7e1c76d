package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the cataloger service
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	Warehouse WarehouseConfig `mapstructure:"warehouse"`
	Chat      ChatConfig      `mapstructure:"chat"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address string `mapstructure:"address"`
}

// LLMConfig describes the chat-completions provider used for extraction and
// the conversational endpoint
type LLMConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

func (l LLMConfig) Validate() error {
	if strings.TrimSpace(l.APIKey) == "" {
		return fmt.Errorf("llm.api_key required")
	}
	if strings.TrimSpace(l.Model) == "" {
		return fmt.Errorf("llm.model required")
	}
	return nil
}

// CrawlerConfig selects and tunes the page-harvesting backend. Provider is
// "tavily" or "local"; local drives a headless browser and needs no API key.
type CrawlerConfig struct {
	Provider    string        `mapstructure:"provider"`
	APIKey      string        `mapstructure:"api_key"`
	Limit       int           `mapstructure:"limit"`
	MaxDepth    int           `mapstructure:"max_depth"`
	SelectPaths []string      `mapstructure:"select_paths"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxChars    int           `mapstructure:"max_chars"`
}

func (c CrawlerConfig) Validate() error {
	switch c.Provider {
	case "tavily":
		if strings.TrimSpace(c.APIKey) == "" {
			return fmt.Errorf("crawler.api_key required for the tavily provider")
		}
	case "local":
	default:
		return fmt.Errorf("crawler.provider must be tavily or local, got %q", c.Provider)
	}
	return nil
}

// WarehouseConfig contains Postgres connection settings plus the default
// project label stamped onto table references
type WarehouseConfig struct {
	Project  string         `mapstructure:"project"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (p PostgresConfig) Validate() error {
	if strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("warehouse.postgres.host required when url is not provided")
	}
	if strings.TrimSpace(p.Port) == "" {
		return fmt.Errorf("warehouse.postgres.port required when url is not provided")
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("warehouse.postgres.dbname required when url is not provided")
	}
	return nil
}

// DSN assembles the connection string, preferring an explicit url.
func (p PostgresConfig) DSN() string {
	if strings.TrimSpace(p.URL) != "" {
		return p.URL
	}
	sslmode := p.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.DBName, sslmode)
}

// ChatConfig tunes the conversational endpoint
type ChatConfig struct {
	MaxToolTurns int           `mapstructure:"max_tool_turns"`
	SessionStore string        `mapstructure:"session_store"` // memory or redis
	SessionTTL   time.Duration `mapstructure:"session_ttl"`
	Redis        RedisConfig   `mapstructure:"redis"`
}

func (c ChatConfig) Validate() error {
	switch c.SessionStore {
	case "memory":
	case "redis":
		if err := c.Redis.Validate(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("chat.session_store must be memory or redis, got %q", c.SessionStore)
	}
	if c.MaxToolTurns < 0 {
		return fmt.Errorf("chat.max_tool_turns must be >= 0")
	}
	return nil
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (r RedisConfig) Validate() error {
	if strings.TrimSpace(r.Host) == "" {
		return fmt.Errorf("chat.redis.host required")
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("chat.redis.port required")
	}
	return nil
}

func (r RedisConfig) Addr() string { return r.Host + ":" + r.Port }

// SyncConfig configures the catalog feed connectors and their schedule
type SyncConfig struct {
	Shopify  ShopifyConfig  `mapstructure:"shopify"`
	Autoland AutolandConfig `mapstructure:"autoland"`
}

// ShopifyConfig identifies one Shopify store to mirror
type ShopifyConfig struct {
	Domain      string        `mapstructure:"domain"`
	AccessToken string        `mapstructure:"access_token"`
	APIVersion  string        `mapstructure:"api_version"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// AutolandConfig controls the scheduled dealer-feed sync. Cron is a standard
// five-field expression; empty disables the schedule.
type AutolandConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Cron    string        `mapstructure:"cron"`
	Dataset string        `mapstructure:"dataset"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// TelemetryConfig contains monitoring and token accounting settings
type TelemetryConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	TokenReportPath string `mapstructure:"token_report_path"`
}

// LoadConfig reads config.json (searched next to the binary and under
// ./config) and overlays CATALOGER_* environment variables. A missing file is
// fine; invalid settings are not.
func LoadConfig(path string) *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("json")
	viper.SetDefault("server.address", ":5500")
	viper.SetDefault("llm.base_url", "https://api.openai.com/v1")
	viper.SetDefault("llm.model", "gpt-4o-mini")
	viper.SetDefault("llm.temperature", 0.0)
	viper.SetDefault("llm.max_tokens", 4096)
	viper.SetDefault("llm.timeout", time.Minute)
	viper.SetDefault("crawler.provider", "tavily")
	viper.SetDefault("crawler.limit", 200)
	viper.SetDefault("crawler.max_depth", 5)
	viper.SetDefault("crawler.select_paths", []string{"/seminuevo"})
	viper.SetDefault("crawler.timeout", 2*time.Minute)
	viper.SetDefault("crawler.max_chars", 200000)
	viper.SetDefault("chat.max_tool_turns", 5)
	viper.SetDefault("chat.session_store", "memory")
	viper.SetDefault("chat.session_ttl", 30*time.Minute)
	viper.SetDefault("sync.shopify.api_version", "2024-04")
	viper.SetDefault("sync.shopify.timeout", 30*time.Second)
	viper.SetDefault("sync.autoland.timeout", time.Minute)
	viper.SetDefault("telemetry.enabled", true)
	viper.SetDefault("telemetry.token_report_path", "token_report.json")

	if path == "" {
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
	} else {
		viper.AddConfigPath(path)
	}

	viper.SetEnvPrefix("CATALOGER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			panic(fmt.Errorf("fatal error config file: %w", err))
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	if err := config.LLM.Validate(); err != nil {
		panic(err)
	}
	if err := config.Crawler.Validate(); err != nil {
		panic(err)
	}
	if err := config.Warehouse.Postgres.Validate(); err != nil {
		panic(err)
	}
	if err := config.Chat.Validate(); err != nil {
		panic(err)
	}
	return &config
}
