package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Run("reads yaml and keeps defaults for missing keys", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		content := `
server:
  port: 9090
database:
  driver: sqlite
ledger:
  exchange_rate: "12.5"
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		cfg, err := LoadConfig(path)
		require.NoError(t, err)

		assert.Equal(t, 9090, cfg.Server.Port)
		assert.Equal(t, "sqlite", cfg.Database.Driver)
		assert.Equal(t, "12.5", cfg.Ledger.ExchangeRate)
		assert.Equal(t, 7, cfg.Ledger.ExpireHorizonDays)
		assert.Equal(t, "ledger_event", cfg.Kafka.Topic.LedgerEvent)
	})

	t.Run("env overrides file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9090\n"), 0o600))
		t.Setenv("COINLEDGER_SERVER_PORT", "7070")

		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, 7070, cfg.Server.Port)
	})

	t.Run("missing file is an error", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, int64(5), cfg.Ledger.CheckinReward)
	assert.Equal(t, []string{"alipay", "wechat"}, cfg.Ledger.RechargeMethods)
	assert.Equal(t, 30, cfg.Business.OrderTimeoutMinutes)
}
