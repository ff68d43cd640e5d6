// Package config holds operator-level configuration for a Foyer installation.
//
// This is infrastructure config set by whoever deploys Foyer next to their
// Home Assistant instance: data directory, Ollama endpoint, model name,
// Home Assistant base URL and long-lived access token, grounding entities.
// Set via env vars (FOYER_*) or a config file (foyer.config.yaml).
//
// The access policy (entity/service allowlists, action vocabulary) is NOT
// part of this package; it lives in its own schema-validated policy file
// (internal/policy) so that a config typo cannot widen the trust boundary.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Viper keys. Each maps to an env var with the FOYER_ prefix
// (e.g. "ha_token" → FOYER_HA_TOKEN) and to a YAML field in
// foyer.config.yaml.
const (
	KeyDataDir            = "data_dir"
	KeyListenAddr         = "listen_addr"
	KeyLLMProvider        = "llm_provider"
	KeyOllamaBaseURL      = "ollama_base_url"
	KeyOpenAIAPIKey       = "openai_api_key"
	KeyOpenAIBaseURL      = "openai_base_url"
	KeyModel              = "model"
	KeyHABaseURL          = "ha_base_url"
	KeyHAToken            = "ha_token"
	KeyContextEntities    = "context_entities"
	KeyHistoryEntity      = "history_entity"
	KeyPolicyFile         = "policy_file"
	KeySigningKey         = "signing_key"
	KeyAuditRetentionDays = "audit_retention_days"
)

// Defaults that do NOT involve crypto material. The signing key has no
// baked-in default — when unset we generate a deterministic per-machine
// fallback and warn loudly.
// Supported llm_provider values.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

const (
	DefaultListenAddr     = ":8099"
	DefaultLLMProvider    = ProviderOllama
	DefaultOllamaURL      = "http://localhost:11434"
	DefaultModel          = "qwen2.5:1.5b"
	DefaultHAURL          = "http://localhost:8123"
	DefaultHistoryEntity  = "sensor.smarthome_node_keystudio_humidity"
	DefaultAuditRetention = 90
)

// Config holds resolved operator-level configuration for a Foyer process.
type Config struct {
	DataDir            string   // Base directory for all state (~/.foyer)
	ListenAddr         string   // HTTP listen address for the utterance endpoint
	LLMProvider        string   // Chat gateway: "ollama" (default) or "openai"
	OllamaBaseURL      string   // Ollama API endpoint
	OpenAIAPIKey       string   // API key when llm_provider is "openai"
	OpenAIBaseURL      string   // Optional OpenAI-compatible endpoint override
	Model              string   // Model name passed to the chat endpoint
	HABaseURL          string   // Home Assistant base URL
	HAToken            string   // Home Assistant long-lived access token
	ContextEntities    []string // Entities read for the grounding block
	HistoryEntity      string   // Sensor queried for date-range history lookups
	PolicyFile         string   // Path to the access policy YAML ("" = embedded default)
	SigningKey         string   // HMAC-SHA256 key for audit signing (≥32 bytes)
	AuditRetentionDays int      // Days to keep signed audit records

	usingDefaultSigningKey bool
}

// UsingDefaultSigningKey returns true if the audit signing key was derived
// (not set explicitly). Commands should warn when this is the case.
func (c *Config) UsingDefaultSigningKey() bool {
	return c.usingDefaultSigningKey
}

// HistoryPath returns the full path to the conversation history artifact.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.DataDir, "history.json")
}

// AuditLogPath returns the full path to the append-only audit log file.
func (c *Config) AuditLogPath() string {
	return filepath.Join(c.DataDir, "foyer_audit.log")
}

// AuditDBPath returns the full path to the signed audit record database.
func (c *Config) AuditDBPath() string {
	return filepath.Join(c.DataDir, "audit.db")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0o700)
}

// WarnIfDefaultKeys logs a warning when the signing key is not explicitly set.
func (c *Config) WarnIfDefaultKeys() {
	if c.usingDefaultSigningKey {
		log.Warn().Msg("Using generated default FOYER_SIGNING_KEY — set via env var or config file for production")
	}
}

func init() {
	viper.SetEnvPrefix("FOYER")
	viper.AutomaticEnv()
	viper.SetDefault(KeyListenAddr, DefaultListenAddr)
	viper.SetDefault(KeyLLMProvider, DefaultLLMProvider)
	viper.SetDefault(KeyOllamaBaseURL, DefaultOllamaURL)
	viper.SetDefault(KeyModel, DefaultModel)
	viper.SetDefault(KeyHABaseURL, DefaultHAURL)
	viper.SetDefault(KeyHistoryEntity, DefaultHistoryEntity)
	viper.SetDefault(KeyAuditRetentionDays, DefaultAuditRetention)
}

// Load reads configuration from Viper (which merges env vars, config
// file, and defaults) and returns a validated Config.
func Load() (*Config, error) {
	cfg := &Config{
		DataDir:            resolveDataDir(),
		ListenAddr:         viper.GetString(KeyListenAddr),
		LLMProvider:        viper.GetString(KeyLLMProvider),
		OllamaBaseURL:      viper.GetString(KeyOllamaBaseURL),
		OpenAIAPIKey:       viper.GetString(KeyOpenAIAPIKey),
		OpenAIBaseURL:      viper.GetString(KeyOpenAIBaseURL),
		Model:              viper.GetString(KeyModel),
		HABaseURL:          viper.GetString(KeyHABaseURL),
		HAToken:            viper.GetString(KeyHAToken),
		ContextEntities:    viper.GetStringSlice(KeyContextEntities),
		HistoryEntity:      viper.GetString(KeyHistoryEntity),
		PolicyFile:         viper.GetString(KeyPolicyFile),
		SigningKey:         viper.GetString(KeySigningKey),
		AuditRetentionDays: viper.GetInt(KeyAuditRetentionDays),
	}

	if cfg.SigningKey == "" {
		cfg.SigningKey = deriveDefaultKey(cfg.DataDir, "audit-signing")
		cfg.usingDefaultSigningKey = true
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func resolveDataDir() string {
	if dir := viper.GetString(KeyDataDir); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".foyer"
	}
	return filepath.Join(home, ".foyer")
}

// deriveDefaultKey produces a deterministic 32-byte fallback key from the
// data directory path and a salt. Uses SHA-256 so the full salt always
// contributes to the output regardless of path length. This is NOT
// cryptographically strong — it exists solely so `foyer serve` works out
// of the box while still signing audit records with a per-machine key.
func deriveDefaultKey(dataDir, salt string) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("foyer:%s:%s", dataDir, salt)))
	return hex.EncodeToString(h[:])
}

func (c *Config) validate() error {
	switch c.LLMProvider {
	case ProviderOllama, ProviderOpenAI:
	default:
		return fmt.Errorf("llm_provider must be %q or %q (got %q)", ProviderOllama, ProviderOpenAI, c.LLMProvider)
	}
	if c.LLMProvider == ProviderOpenAI && c.OpenAIAPIKey == "" && c.OpenAIBaseURL == "" {
		return fmt.Errorf("llm_provider %q requires openai_api_key or openai_base_url", ProviderOpenAI)
	}
	if len(c.SigningKey) < 32 {
		return fmt.Errorf("signing_key must be at least 32 bytes (got %d); set FOYER_SIGNING_KEY", len(c.SigningKey))
	}
	if c.AuditRetentionDays <= 0 {
		return fmt.Errorf("audit_retention_days must be positive")
	}
	return nil
}
