package config

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("FOYER_DATA_DIR", dir)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, DefaultListenAddr, cfg.ListenAddr)
	assert.Equal(t, ProviderOllama, cfg.LLMProvider)
	assert.Equal(t, DefaultOllamaURL, cfg.OllamaBaseURL)
	assert.Equal(t, DefaultModel, cfg.Model)
	assert.Equal(t, DefaultHistoryEntity, cfg.HistoryEntity)
	assert.Equal(t, DefaultAuditRetention, cfg.AuditRetentionDays)

	// Derived signing key: hex SHA-256, flagged as default.
	assert.Len(t, cfg.SigningKey, 64)
	assert.True(t, cfg.UsingDefaultSigningKey())
}

func TestLoadExplicitSigningKey(t *testing.T) {
	t.Setenv("FOYER_DATA_DIR", t.TempDir())
	t.Setenv("FOYER_SIGNING_KEY", "an-explicit-signing-key-32-bytes!")

	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.UsingDefaultSigningKey())
	assert.Equal(t, "an-explicit-signing-key-32-bytes!", cfg.SigningKey)
}

func TestLoadRejectsShortSigningKey(t *testing.T) {
	t.Setenv("FOYER_DATA_DIR", t.TempDir())
	t.Setenv("FOYER_SIGNING_KEY", "too-short")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "signing_key")
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	t.Setenv("FOYER_DATA_DIR", t.TempDir())
	t.Setenv("FOYER_LLM_PROVIDER", "bedrock")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "llm_provider")
}

func TestLoadOpenAIProviderNeedsKeyOrEndpoint(t *testing.T) {
	t.Setenv("FOYER_DATA_DIR", t.TempDir())
	t.Setenv("FOYER_LLM_PROVIDER", "openai")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "openai_api_key")

	t.Setenv("FOYER_OPENAI_API_KEY", "sk-test")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, cfg.LLMProvider)
	assert.Equal(t, "sk-test", cfg.OpenAIAPIKey)
}

func TestPathHelpers(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("FOYER_DATA_DIR", dir)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "history.json"), cfg.HistoryPath())
	assert.Equal(t, filepath.Join(dir, "foyer_audit.log"), cfg.AuditLogPath())
	assert.Equal(t, filepath.Join(dir, "audit.db"), cfg.AuditDBPath())
}

func TestDeriveDefaultKeyIsStable(t *testing.T) {
	a := deriveDefaultKey("/data", "audit-signing")
	b := deriveDefaultKey("/data", "audit-signing")
	c := deriveDefaultKey("/other", "audit-signing")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
	assert.Equal(t, strings.ToLower(a), a)
}
