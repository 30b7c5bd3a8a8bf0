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
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  mode: test\n"))
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.Server.Mode)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "deepseek-chat", cfg.Oracle.Model)
	assert.InDelta(t, 0.7, cfg.Oracle.Temperature, 0.0001)
	assert.Equal(t, 500, cfg.Oracle.MaxTokens)
	assert.Equal(t, uint64(500), cfg.Ledger.BatchBlocks)
	assert.Equal(t, time.Minute, cfg.Engine.ReconcileInterval)
	assert.Equal(t, DefaultThemes, cfg.Generator.Themes)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
ledger:
  contract_address: "0x00000000000000000000000000000000000000aa"
  private_key: "deadbeef"
  batch_blocks: 50
oracle:
  api_key: "sk-test"
  timeout: 5s
engine:
  concurrency: 4
  reconcile_interval: 0s
generator:
  themes: ["Sunken Library"]
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0x00000000000000000000000000000000000000aa", cfg.Ledger.ContractAddress)
	assert.Equal(t, uint64(50), cfg.Ledger.BatchBlocks)
	assert.Equal(t, 5*time.Second, cfg.Oracle.Timeout)
	assert.Equal(t, time.Duration(0), cfg.Engine.ReconcileInterval)
	assert.Equal(t, []string{"Sunken Library"}, cfg.Generator.Themes)
	assert.NoError(t, cfg.Validate())
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("GAMEMASTER_ORACLE_MODEL", "gpt-4o-mini")
	t.Setenv("GAME_MASTER_PRIVATE_KEY", "abc123")
	t.Setenv("CONTRACT_ADDRESS", "0x00000000000000000000000000000000000000bb")

	cfg, err := Load(writeConfig(t, "log:\n  level: debug\n"))
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o-mini", cfg.Oracle.Model)
	assert.Equal(t, "abc123", cfg.Ledger.PrivateKey)
	assert.Equal(t, "0x00000000000000000000000000000000000000bb", cfg.Ledger.ContractAddress)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  port: 3001\n"))
	require.NoError(t, err)

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ledger.contract_address")

	cfg.Ledger.ContractAddress = "0x01"
	cfg.Ledger.PrivateKey = "01"
	cfg.Oracle.APIKey = "k"
	assert.NoError(t, cfg.Validate())

	cfg.Engine.Concurrency = 0
	assert.Error(t, cfg.Validate())
}
