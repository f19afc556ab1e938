package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "debug: false\n"))
	require.NoError(t, err)
	assert.Equal(t, "two_agree", cfg.CopyTrade.ConsensusMode)
	assert.True(t, cfg.CopyTrade.DryRun)
	assert.True(t, cfg.CopyTrade.EnableLogging)
	assert.Equal(t, 10*time.Second, cfg.Monitor.PollInterval())
	assert.Equal(t, 8090, cfg.API.Port)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFullFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
debug: true
olap:
  dsn: postgres://u:p@localhost/olap
copy_trade:
  wallets:
    - "0x1111111111111111111111111111111111111111"
  consensus_mode: n_of_m
  n_required: 3
  min_source_notional_usd: 25
  max_copy_per_trade_usd: 200
monitor:
  poll_interval_ms: 5000
  follow_wallet_exits: true
`))
	require.NoError(t, err)
	assert.True(t, cfg.Debug)
	assert.Equal(t, "postgres://u:p@localhost/olap", cfg.OLAP.ResolveDSN())
	assert.Equal(t, "n_of_m", cfg.CopyTrade.ConsensusMode)
	assert.Equal(t, 3, cfg.CopyTrade.NRequired)
	assert.Equal(t, "25", cfg.CopyTrade.MinNotional().String())
	assert.Equal(t, 5*time.Second, cfg.Monitor.PollInterval())
	assert.True(t, cfg.Monitor.FollowWalletExits)
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadMode(t *testing.T) {
	cfg, err := Load(writeConfig(t, "copy_trade:\n  consensus_mode: quorum\n"))
	require.NoError(t, err)
	assert.Error(t, cfg.Validate())
}

func TestValidateNOfMRequiresN(t *testing.T) {
	cfg, err := Load(writeConfig(t, "copy_trade:\n  consensus_mode: n_of_m\n"))
	require.NoError(t, err)
	assert.Error(t, cfg.Validate())
}

func TestResolveDSNFromParts(t *testing.T) {
	c := OLAPConfig{Host: "db:5432", User: "u", Password: "p", Database: "olap"}
	assert.Equal(t, "postgres://u:p@db:5432/olap?sslmode=disable", c.ResolveDSN())
}

func TestResolveDSNFromEnv(t *testing.T) {
	t.Setenv("OLAP_DSN", "postgres://env")
	c := OLAPConfig{}
	assert.Equal(t, "postgres://env", c.ResolveDSN())
}

func TestTelegramTokenFromEnv(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "tok-123")
	cfg, err := Load(writeConfig(t, "debug: false\n"))
	require.NoError(t, err)
	assert.Equal(t, "tok-123", cfg.Telegram.Token)
}
