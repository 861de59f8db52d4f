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

const validYAML = `
server:
  port: 9090
store:
  backend: redis
  redis:
    addr: "redis:6379"
census:
  apiKey: census-key
reddit:
  clientId: cid
  clientSecret: sec
model:
  apiKey: model-key
`

func TestLoadAppliesFileAndDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "redis:6379", cfg.Store.Redis.Addr)
	// untouched defaults survive
	assert.Equal(t, "http://localhost:5173", cfg.Server.FrontendOrigin)
	assert.Equal(t, "claude-sonnet-4-20250514", cfg.Model.Model)
	assert.Equal(t, 4000, cfg.Model.MaxTokens)
	assert.Equal(t, "analyses", cfg.Store.Table)
}

func TestLoadEnvOverridesWin(t *testing.T) {
	t.Setenv("CENSUS_API_KEY", "from-env")
	t.Setenv("FRONTEND_ORIGIN", "https://app.example.com")

	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Census.APIKey)
	assert.Equal(t, "https://app.example.com", cfg.Server.FrontendOrigin)
}

func TestLoadFailsFastOnMissingCredentials(t *testing.T) {
	_, err := Load(writeConfig(t, `
store:
  backend: redis
  redis:
    addr: "redis:6379"
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "census.apiKey")
	assert.Contains(t, err.Error(), "reddit credentials")
	assert.Contains(t, err.Error(), "model.apiKey")
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	_, err := Load(writeConfig(t, `
store:
  backend: cassandra
census:
  apiKey: k
reddit:
  clientId: a
  clientSecret: b
model:
  apiKey: k
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown store backend")
}

func TestDSNHelpers(t *testing.T) {
	cfg := defaults()
	cfg.Store.Database.Host = "db"
	cfg.Store.Database.Port = 5432
	cfg.Store.Database.User = "app"
	cfg.Store.Database.Password = "pw"
	cfg.Store.Database.Name = "idealens"

	assert.Equal(t,
		"app:pw@tcp(db:5432)/idealens?parseTime=true&charset=utf8mb4&loc=UTC",
		cfg.MySQLDSN())
	assert.Equal(t,
		"host=db port=5432 user=app password=pw dbname=idealens sslmode=disable",
		cfg.PostgresDSN())
}
