package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "app:\n  environment: test\n"))
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 100, cfg.Search.ItemsPerPage)
	assert.Equal(t, 15*time.Second, cfg.Search.RequestTimeout)
	assert.Equal(t, 10, cfg.Resolver.MaxPages)
	assert.Equal(t, 2, cfg.Resolver.EarlyStopPages)
	assert.Equal(t, 120*time.Millisecond, cfg.Resolver.PageDelay)
	assert.Equal(t, 3, cfg.Resolver.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Resolver.RateLimitBackoff)
	assert.Equal(t, time.Second, cfg.Resolver.ErrorBackoff)
	assert.Equal(t, 300*time.Millisecond, cfg.Batch.TargetDelay)
	assert.Equal(t, 5, cfg.Alerting.StepThreshold)
	assert.Equal(t, 10, cfg.Alerting.TopTierCutoff)
	assert.False(t, cfg.Alerting.Enabled)
	assert.Equal(t, "Asia/Seoul", cfg.Location().String())
	assert.Equal(t, "test", cfg.App.Environment)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("RANKTRACKER_RESOLVER_MAX_PAGES", "5")
	t.Setenv("NAVER_CLIENT_ID", "console-id")
	t.Setenv("RANKTRACKER_SEARCH_CLIENT_SECRET", "prefixed-secret")
	t.Setenv("RANKTRACKER_NOTIFY_EMAIL_TO", "a@example.com,b@example.com")

	cfg, err := Load(writeConfig(t, "logging:\n  level: debug\n"))
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Resolver.MaxPages)
	assert.Equal(t, "console-id", cfg.Search.ClientID)
	assert.Equal(t, "prefixed-secret", cfg.Search.ClientSecret)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, cfg.Notify.Email.To)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestValidatePagingLimits(t *testing.T) {
	_, err := Load(writeConfig(t, "resolver:\n  max_pages: 11\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start limit")

	_, err = Load(writeConfig(t, "search:\n  items_per_page: 150\n"))
	require.Error(t, err)

	cfg, err := Load(writeConfig(t, "search:\n  items_per_page: 50\nresolver:\n  max_pages: 20\n"))
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.Resolver.MaxPages)
}

func TestValidateRejects(t *testing.T) {
	tests := map[string]string{
		"unknown driver":        "database:\n  driver: mysql\n",
		"postgres without dsn":  "database:\n  driver: postgres\n",
		"zero threshold":        "alerting:\n  step_threshold: 0\n",
		"bad timezone":          "scheduler:\n  timezone: Mars/Olympus\n",
		"telegram without chat": "notify:\n  telegram:\n    enabled: true\n    bot_token: x\n",
		"email without to":      "notify:\n  email:\n    enabled: true\n    username: u\n    password: p\n",
		"shoutrrr without urls": "notify:\n  shoutrrr:\n    enabled: true\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestResolveMaxPoints(t *testing.T) {
	cfg := &Config{Export: ExportConfig{MaxDataPoints: 100}}
	assert.Equal(t, 100, cfg.ResolveMaxPoints(0))
	assert.Equal(t, 7, cfg.ResolveMaxPoints(7))
}
