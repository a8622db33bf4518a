package config

import (
	"errors"
	"fmt"
	"os"

	"recpay/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	PayHero    PayHeroConfig    `yaml:"payhero"`
	Payment    PaymentConfig    `yaml:"payment"`
	Redis      RedisConfig      `yaml:"redis"`
	Recommend  RecommendConfig  `yaml:"recommend"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	Exports    ExportConfig     `yaml:"exports"`
	Services   []models.Service `yaml:"services"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

// PayHeroConfig describes the payment provider endpoint and credentials.
type PayHeroConfig struct {
	BaseURL     string `yaml:"base_url"`
	AuthToken   string `yaml:"auth_token"`
	ChannelID   int    `yaml:"channel_id"`
	Provider    string `yaml:"provider"`
	CallbackURL string `yaml:"callback_url"`
	CountryCode string `yaml:"country_code"`
}

// PaymentConfig tunes the confirmation engine. Windows are in seconds.
type PaymentConfig struct {
	DeadTime         int  `yaml:"dead_time_seconds"`
	PollInterval     int  `yaml:"poll_interval_seconds"`
	ManualEntryAfter int  `yaml:"manual_entry_after"`
	BypassAfter      int  `yaml:"bypass_after"`
	WarningWindow    int  `yaml:"warning_window_seconds"`
	MaxAttempts      int  `yaml:"max_attempts"`
	AllowDemoBypass  bool `yaml:"allow_demo_bypass"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// RecommendConfig tunes the mood-recommendation cache.
type RecommendConfig struct {
	CacheTTL int `yaml:"cache_ttl_seconds"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	HeaderExtra  string         `yaml:"header_extra"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Extra       string   `yaml:"extra"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional; environment wins either way.
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Expand ${VAR} placeholders before parsing so secrets stay out of YAML.
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.PayHero.BaseURL == "" {
		return errors.New("payhero base_url is required")
	}
	if c.PayHero.AuthToken == "" || c.PayHero.AuthToken == "YOUR_AUTH_TOKEN_HERE" {
		return errors.New("payhero auth token is required")
	}

	return ValidateServices(c.Services)
}

func ValidateServices(services []models.Service) error {
	seen := make(map[string]bool)
	for _, svc := range services {
		if svc.ID == "" {
			return fmt.Errorf("service '%s' has empty ID", svc.Name)
		}
		if seen[svc.ID] {
			return fmt.Errorf("duplicate service ID found: %s", svc.ID)
		}
		if svc.Price <= 0 {
			return fmt.Errorf("service '%s' has non-positive price %d", svc.Name, svc.Price)
		}
		seen[svc.ID] = true
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	// auth enabled by default when API is enabled
	if !c.API.Auth.Enabled {
		c.API.Auth.Enabled = true
	}
	if !c.API.HTTP.Enabled && c.API.Enabled {
		c.API.HTTP.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Auth.HeaderExtra == "" {
		c.API.Auth.HeaderExtra = "x-api-extra"
	}

	if c.PayHero.Provider == "" {
		c.PayHero.Provider = "m-pesa"
	}
	if c.PayHero.CountryCode == "" {
		c.PayHero.CountryCode = models.DefaultCountryCode
	}

	// Engine defaults
	if c.Payment.DeadTime == 0 {
		c.Payment.DeadTime = models.DefaultDeadTimeSeconds
	}
	if c.Payment.PollInterval == 0 {
		c.Payment.PollInterval = models.DefaultPollIntervalSeconds
	}
	if c.Payment.ManualEntryAfter == 0 {
		c.Payment.ManualEntryAfter = models.DefaultManualEntryAfter
	}
	if c.Payment.BypassAfter == 0 {
		c.Payment.BypassAfter = models.DefaultBypassAfter
	}
	if c.Payment.WarningWindow == 0 {
		c.Payment.WarningWindow = models.DefaultWarningWindowSeconds
	}

	if c.Recommend.CacheTTL == 0 {
		c.Recommend.CacheTTL = models.DefaultRecommendCacheSeconds
	}
}
