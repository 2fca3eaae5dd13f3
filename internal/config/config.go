package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ivanoskov/copperx_bot/internal/units"
)

type Config struct {
	TelegramToken string
	SupabaseURL   string
	SupabaseKey   string

	APIBaseURL string
	APITimeout time.Duration

	OfframpCurrency    string
	FlowIdleTimeout    time.Duration
	BatchMaxItems      int
	RateLimitPerMinute int

	LogLevel    string
	MetricsAddr string
	WebhookAddr string
	WebhookPath string

	Assets []units.Asset
}

// fileConfig: необязательный YAML-файл (CONFIG_FILE) с таблицей активов
// и лимитами сценариев
type fileConfig struct {
	API struct {
		BaseURL string `yaml:"base_url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"api"`
	Flows struct {
		IdleTimeout     string `yaml:"idle_timeout"`
		BatchMaxItems   int    `yaml:"batch_max_items"`
		OfframpCurrency string `yaml:"offramp_currency"`
	} `yaml:"flows"`
	RateLimit struct {
		PerMinute int `yaml:"per_minute"`
	} `yaml:"rate_limit"`
	Assets []struct {
		Code     string `yaml:"code"`
		Decimals int32  `yaml:"decimals"`
		Network  string `yaml:"network"`
	} `yaml:"assets"`
}

func defaults() *Config {
	return &Config{
		APIBaseURL:         "https://income-api.copperx.io",
		APITimeout:         30 * time.Second,
		OfframpCurrency:    "USD",
		FlowIdleTimeout:    30 * time.Minute,
		BatchMaxItems:      50,
		RateLimitPerMinute: 30,
		LogLevel:           "info",
		MetricsAddr:        ":9090",
		WebhookAddr:        ":8080",
		WebhookPath:        "/webhook",
		Assets:             units.DefaultAssets(),
	}
}

// LoadConfig собирает конфигурацию: значения по умолчанию, затем файл
// CONFIG_FILE, затем переменные окружения (в том числе из .env)
func LoadConfig() (*Config, error) {
	// .env не обязателен
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), &fc); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	if fc.API.BaseURL != "" {
		c.APIBaseURL = fc.API.BaseURL
	}
	if fc.API.Timeout != "" {
		if c.APITimeout, err = time.ParseDuration(fc.API.Timeout); err != nil {
			return fmt.Errorf("parsing api.timeout %q: %w", fc.API.Timeout, err)
		}
	}
	if fc.Flows.IdleTimeout != "" {
		if c.FlowIdleTimeout, err = time.ParseDuration(fc.Flows.IdleTimeout); err != nil {
			return fmt.Errorf("parsing flows.idle_timeout %q: %w", fc.Flows.IdleTimeout, err)
		}
	}
	if fc.Flows.BatchMaxItems != 0 {
		c.BatchMaxItems = fc.Flows.BatchMaxItems
	}
	if fc.Flows.OfframpCurrency != "" {
		c.OfframpCurrency = fc.Flows.OfframpCurrency
	}
	if fc.RateLimit.PerMinute != 0 {
		c.RateLimitPerMinute = fc.RateLimit.PerMinute
	}
	if len(fc.Assets) > 0 {
		c.Assets = c.Assets[:0:0]
		for _, a := range fc.Assets {
			c.Assets = append(c.Assets, units.Asset{Code: a.Code, Decimals: a.Decimals, Network: a.Network})
		}
	}
	return nil
}

func (c *Config) applyEnv() error {
	setString := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setString(&c.TelegramToken, "TELEGRAM_TOKEN")
	setString(&c.SupabaseURL, "SUPABASE_URL")
	setString(&c.SupabaseKey, "SUPABASE_KEY")
	setString(&c.APIBaseURL, "API_BASE_URL")
	setString(&c.OfframpCurrency, "OFFRAMP_CURRENCY")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.MetricsAddr, "METRICS_ADDR")
	setString(&c.WebhookAddr, "WEBHOOK_ADDR")
	setString(&c.WebhookPath, "WEBHOOK_PATH")

	for key, dst := range map[string]*time.Duration{
		"API_TIMEOUT":       &c.APITimeout,
		"FLOW_IDLE_TIMEOUT": &c.FlowIdleTimeout,
	} {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("parsing %s %q: %w", key, v, err)
			}
			*dst = d
		}
	}

	for key, dst := range map[string]*int{
		"BATCH_MAX_ITEMS":       &c.BatchMaxItems,
		"RATE_LIMIT_PER_MINUTE": &c.RateLimitPerMinute,
	} {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("parsing %s %q: %w", key, v, err)
			}
			*dst = n
		}
	}

	c.OfframpCurrency = strings.ToUpper(c.OfframpCurrency)
	return nil
}

// Validate возвращает первую найденную ошибку
func (c *Config) Validate() error {
	if c.TelegramToken == "" {
		return fmt.Errorf("TELEGRAM_TOKEN is required")
	}
	if c.APIBaseURL == "" {
		return fmt.Errorf("API_BASE_URL is required")
	}
	if c.APITimeout <= 0 {
		return fmt.Errorf("API_TIMEOUT must be positive")
	}
	if c.BatchMaxItems <= 0 {
		return fmt.Errorf("BATCH_MAX_ITEMS must be positive")
	}
	if c.RateLimitPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive")
	}
	if (c.SupabaseURL == "") != (c.SupabaseKey == "") {
		return fmt.Errorf("SUPABASE_URL and SUPABASE_KEY must be set together")
	}
	if !strings.HasPrefix(c.WebhookPath, "/") {
		return fmt.Errorf("WEBHOOK_PATH must start with /")
	}
	if _, err := units.NewRegistry(c.Assets); err != nil {
		return fmt.Errorf("assets: %w", err)
	}
	return nil
}

// Registry строит таблицу активов из конфигурации
func (c *Config) Registry() (*units.Registry, error) {
	return units.NewRegistry(c.Assets)
}

// JournalEnabled: настроен ли журнал исполнений в Supabase
func (c *Config) JournalEnabled() bool {
	return c.SupabaseURL != "" && c.SupabaseKey != ""
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars подставляет ${VAR} из окружения; отсутствующие: пустой строкой
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}
