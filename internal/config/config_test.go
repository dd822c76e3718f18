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
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.toml"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 1536, cfg.Embedding.Dimension)
	assert.Equal(t, "text-embedding-3-small", cfg.Embedding.Model)
	assert.Equal(t, 0.5, cfg.Retrieval.DefaultThreshold)
	assert.Equal(t, 5, cfg.Retrieval.DefaultLimit)
	assert.Equal(t, 1000, cfg.Ingestion.ChunkSize)
	assert.Equal(t, 200, cfg.Ingestion.ChunkOverlap)
	assert.Equal(t, 5*time.Second, cfg.QueryTimeout())
	assert.Equal(t, "0.0.0.0:8080", cfg.HTTPAddr())
}

func TestLoadFileThenEnv(t *testing.T) {
	path := writeConfig(t, `
[app]
port = 9090

[retrieval]
default_threshold = 0.7
default_limit = 8
max_limit = 50

[postgres]
host = "db"
user = "svc"
password = "secret"
db = "filings"
`)
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("TOP_K_RESULTS", "10")
	t.Setenv("APP_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.App.Port)
	assert.Equal(t, 0.7, cfg.Retrieval.DefaultThreshold)
	assert.Equal(t, 10, cfg.Retrieval.DefaultLimit)
	assert.Equal(t, 50, cfg.Retrieval.MaxLimit)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.App.CORSOrigins)
	assert.Equal(t, "host=db port=5432 user=svc password=secret dbname=filings sslmode=disable", cfg.PostgresDSN())
}

func TestLoadRejectsBadRetrievalDefaults(t *testing.T) {
	path := writeConfig(t, `
[retrieval]
default_threshold = 1.5
default_limit = 0
`)
	t.Setenv("CONFIG_FILE", path)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "default_threshold")
	assert.Contains(t, err.Error(), "default_limit")
}

func TestLoadRejectsEmbeddingDimension(t *testing.T) {
	t.Setenv("CONFIG_FILE", writeConfig(t, `
[embedding]
dimension = 3072
`))

	_, err := Load()
	assert.ErrorContains(t, err, "embedding.dimension must be 1536, got 3072")

	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.toml"))
	t.Setenv("EMBEDDING_DIMENSION", "768")
	_, err = Load()
	assert.ErrorContains(t, err, "got 768")
}

func TestLoadBadTOML(t *testing.T) {
	t.Setenv("CONFIG_FILE", writeConfig(t, "[app\nport ="))

	_, err := Load()
	assert.ErrorContains(t, err, "decode config file failed")
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("FINRAG_INT", "abc")
	t.Setenv("FINRAG_FLOAT", "0.25")
	t.Setenv("FINRAG_BOOL", "false")

	assert.Equal(t, 7, getEnvAsInt("FINRAG_INT", 7))
	assert.Equal(t, 0.25, getEnvAsFloat("FINRAG_FLOAT", 1))
	assert.False(t, getEnvAsBool("FINRAG_BOOL", true))
	assert.Equal(t, "fallback", getEnv("FINRAG_UNSET_KEY", "fallback"))
}
