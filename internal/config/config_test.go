package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_OverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
store:
  sqlite:
    path: /tmp/m.db
sync:
  count: 5
  upsert_policy: filled
sources:
  html:
    - series: DXY
      urls: ["http://example.invalid/dxy"]
      columns: [date, close]
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "/tmp/m.db", cfg.Store.Sqlite.Path)
	assert.Equal(t, 5, cfg.Sync.Count)
	assert.Equal(t, 366, cfg.Sync.MaxWalk)
	assert.Equal(t, "filled", cfg.Sync.UpsertPolicy)
	require.Len(t, cfg.Sources.HTML, 1)
	assert.Equal(t, "DXY", cfg.Sources.HTML[0].Series)
	assert.True(t, cfg.Sources.TWSE.Enabled)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "7000")
	t.Setenv("MARKETSYNC_STORE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://u@localhost/market?sslmode=disable")
	t.Setenv("DINGTALK_WEBHOOK", "https://oapi.dingtalk.com/robot/send?access_token=t")

	cfg, err := Load(writeConfig(t, "log:\n  level: debug\n"))
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://u@localhost/market?sslmode=disable", cfg.Store.Postgres.DSN)
	assert.NotEmpty(t, cfg.Notify.Dingtalk.Webhook)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"driver":   "store:\n  driver: mysql\n",
		"pg dsn":   "store:\n  driver: postgres\n",
		"count":    "sync:\n  count: -1\n",
		"walk cap": "sync:\n  count: 10\n  max_walk: 5\n",
		"policy":   "sync:\n  upsert_policy: always\n",
		"html":     "sources:\n  html:\n    - series: DXY\n      urls: [x]\n      columns: [close]\n",
		"yaml":     "server: [",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_BadPortEnv(t *testing.T) {
	t.Setenv("PORT", "http")
	_, err := Load(writeConfig(t, ""))
	assert.ErrorContains(t, err, "PORT")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "read config")
}

func TestDefault_IsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Len(t, cfg.Sources.HTML, 3)
}

func TestLoad_ExampleFile(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "marketsync.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Sources.HTML, cfg.Sources.HTML)
	assert.Equal(t, "unchanged", cfg.Sync.UpsertPolicy)
}
