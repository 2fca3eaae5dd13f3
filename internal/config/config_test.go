package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivanoskov/copperx_bot/internal/units"
)

// clearEnv убирает переменные, которые могли остаться в окружении разработчика
func clearEnv(t *testing.T) {
	for _, key := range []string{
		"TELEGRAM_TOKEN", "SUPABASE_URL", "SUPABASE_KEY", "API_BASE_URL", "API_TIMEOUT",
		"OFFRAMP_CURRENCY", "FLOW_IDLE_TIMEOUT", "BATCH_MAX_ITEMS", "RATE_LIMIT_PER_MINUTE",
		"LOG_LEVEL", "METRICS_ADDR", "WEBHOOK_ADDR", "WEBHOOK_PATH", "CONFIG_FILE",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("TELEGRAM_TOKEN", "tg")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "tg", cfg.TelegramToken)
	assert.Equal(t, 30*time.Second, cfg.APITimeout)
	assert.Equal(t, 30*time.Minute, cfg.FlowIdleTimeout)
	assert.Equal(t, 50, cfg.BatchMaxItems)
	assert.Equal(t, 30, cfg.RateLimitPerMinute)
	assert.Equal(t, "USD", cfg.OfframpCurrency)
	assert.False(t, cfg.JournalEnabled())

	reg, err := cfg.Registry()
	require.NoError(t, err)
	assert.Equal(t, []string{"USDC", "USDT"}, reg.Codes())
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("TELEGRAM_TOKEN", "tg")
	t.Setenv("API_TIMEOUT", "5s")
	t.Setenv("FLOW_IDLE_TIMEOUT", "1h")
	t.Setenv("BATCH_MAX_ITEMS", "10")
	t.Setenv("OFFRAMP_CURRENCY", "eur")
	t.Setenv("SUPABASE_URL", "https://x.supabase.co")
	t.Setenv("SUPABASE_KEY", "key")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.APITimeout)
	assert.Equal(t, time.Hour, cfg.FlowIdleTimeout)
	assert.Equal(t, 10, cfg.BatchMaxItems)
	assert.Equal(t, "EUR", cfg.OfframpCurrency)
	assert.True(t, cfg.JournalEnabled())
}

func TestLoadConfig_YAMLOverlay(t *testing.T) {
	clearEnv(t)
	t.Setenv("TELEGRAM_TOKEN", "tg")
	t.Setenv("TEST_API_HOST", "api.example.com")

	path := filepath.Join(t.TempDir(), "bot.yaml")
	content := `
api:
  base_url: "https://${TEST_API_HOST}"
  timeout: "10s"
flows:
  idle_timeout: "15m"
  batch_max_items: 20
rate_limit:
  per_minute: 60
assets:
  - code: usdc
    decimals: 6
    network: evm
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	t.Setenv("CONFIG_FILE", path)
	// окружение важнее файла
	t.Setenv("BATCH_MAX_ITEMS", "25")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com", cfg.APIBaseURL)
	assert.Equal(t, 10*time.Second, cfg.APITimeout)
	assert.Equal(t, 15*time.Minute, cfg.FlowIdleTimeout)
	assert.Equal(t, 25, cfg.BatchMaxItems)
	assert.Equal(t, 60, cfg.RateLimitPerMinute)
	assert.Equal(t, []units.Asset{{Code: "usdc", Decimals: 6, Network: "evm"}}, cfg.Assets)
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing telegram token", map[string]string{}},
		{"bad duration", map[string]string{"TELEGRAM_TOKEN": "tg", "API_TIMEOUT": "soon"}},
		{"bad int", map[string]string{"TELEGRAM_TOKEN": "tg", "BATCH_MAX_ITEMS": "many"}},
		{"half supabase", map[string]string{"TELEGRAM_TOKEN": "tg", "SUPABASE_URL": "https://x"}},
		{"missing config file", map[string]string{"TELEGRAM_TOKEN": "tg", "CONFIG_FILE": "/nonexistent/bot.yaml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestValidate_BadAsset(t *testing.T) {
	cfg := defaults()
	cfg.TelegramToken = "tg"
	cfg.Assets = []units.Asset{{Code: "USDC", Decimals: 6, Network: "tron"}}
	assert.ErrorContains(t, cfg.Validate(), "unknown network")
}
