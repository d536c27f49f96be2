package config

import (
	"errors"
	"fmt"
	"gemini-rotator/pkg/gemini"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const defaultConfigFile = "config.yaml"

type Config struct {
	GeminiAPIKeys      []string
	Model              string
	EmbeddingModel     string
	VertexAI           bool
	Version            string
	KnowledgeEnabled   bool
	KnowledgeFile      string
	RotationLogFile    string
	MetricsAddr        string
	HistoryTokenBudget int
	BotDBPath          string
	DeviceDBPath       string
}

// fileConfig is the optional YAML file. Environment variables win over it.
type fileConfig struct {
	APIKey             string `yaml:"api_key"`
	Model              string `yaml:"model"`
	EmbeddingModel     string `yaml:"embedding_model"`
	VertexAI           bool   `yaml:"vertexai"`
	KnowledgeEnabled   bool   `yaml:"knowledge_enabled"`
	KnowledgeFile      string `yaml:"knowledge_file"`
	RotationLogFile    string `yaml:"rotation_log_file"`
	MetricsAddr        string `yaml:"metrics_addr"`
	HistoryTokenBudget int    `yaml:"history_token_budget"`
	BotDBPath          string `yaml:"bot_db_path"`
	DeviceDBPath       string `yaml:"device_db_path"`
}

func Load() (*Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found, reading from environment variables")
	}

	path := envOr("CONFIG_FILE", defaultConfigFile)
	fc, err := readFile(path)
	if err != nil {
		return nil, err
	}

	// GEMINI_API_KEYS is the older name of the variable.
	rawKeys := firstNonEmpty(os.Getenv("GEMINI_API_KEY"), os.Getenv("GEMINI_API_KEYS"), fc.APIKey)
	apiKeys := gemini.ParseKeys(rawKeys)
	if len(apiKeys) == 0 {
		return nil, fmt.Errorf("GEMINI_API_KEY is not set in .env, environment or %s: %w", path, gemini.ErrNoAPIKeys)
	}
	log.Printf("Loaded %d Gemini API keys", len(apiKeys))

	cfg := &Config{
		GeminiAPIKeys:      apiKeys,
		Model:              envOr("GEMINI_MODEL", firstNonEmpty(fc.Model, gemini.DefaultModel)),
		EmbeddingModel:     envOr("GEMINI_EMBEDDING_MODEL", firstNonEmpty(fc.EmbeddingModel, gemini.DefaultEmbeddingModel)),
		VertexAI:           envBool("GOOGLE_GENAI_USE_VERTEXAI", fc.VertexAI),
		Version:            os.Getenv("CLI_VERSION"),
		KnowledgeEnabled:   envBool("KNOWLEDGE_ENABLED", fc.KnowledgeEnabled),
		KnowledgeFile:      envOr("KNOWLEDGE_FILE", fc.KnowledgeFile),
		RotationLogFile:    envOr("ROTATION_LOG_FILE", fc.RotationLogFile),
		MetricsAddr:        envOr("METRICS_ADDR", fc.MetricsAddr),
		HistoryTokenBudget: envInt("HISTORY_TOKEN_BUDGET", fc.HistoryTokenBudget),
		BotDBPath:          envOr("BOT_DB_PATH", firstNonEmpty(fc.BotDBPath, "bot_store.db")),
		DeviceDBPath:       envOr("DEVICE_DB_PATH", firstNonEmpty(fc.DeviceDBPath, "bot_device.db")),
	}
	if cfg.VertexAI {
		return nil, gemini.ErrVertexUnsupported
	}
	return cfg, nil
}

func readFile(path string) (fileConfig, error) {
	var fc fileConfig
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return fc, nil
	}
	if err != nil {
		return fc, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fc, fmt.Errorf("parse config %s: %w", path, err)
	}
	log.Printf("Loaded configuration from %s", path)
	return fc, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func envInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
