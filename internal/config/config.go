// Package config loads process configuration from the environment,
// mirroring the teacher's internal/utils.GetEnv helpers (reimplemented
// locally since internal/utils pulls in unrelated domain packages).
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ridgeline-labs/review-orchestrator/internal/logger"
)

type Config struct {
	Port string

	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresName     string

	LLMBaseURL      string
	LLMAPIKey       string
	LLMModel        string
	LLMTimeout      time.Duration
	RetrievalBaseURL string
	RetrievalTimeout time.Duration

	HitlAwaitTimeout time.Duration
	MaxHitlRetries   int
	PromptCharBudget int
	RetrievalK       int

	RedisAddr    string
	RedisChannel string

	ServiceToken string
}

func Load(log *logger.Logger) Config {
	return Config{
		Port: getEnv("PORT", "8080", log),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost", log),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432", log),
		PostgresUser:     getEnv("POSTGRES_USER", "postgres", log),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "", log),
		PostgresName:     getEnv("POSTGRES_NAME", "review_orchestrator", log),

		LLMBaseURL:       getEnv("LLM_BASE_URL", "http://localhost:9000", log),
		LLMAPIKey:        getEnv("LLM_API_KEY", "", log),
		LLMModel:         getEnv("LLM_MODEL", "default", log),
		LLMTimeout:       time.Duration(getEnvInt("LLM_TIMEOUT_SECONDS", 60, log)) * time.Second,
		RetrievalBaseURL: getEnv("RETRIEVAL_BASE_URL", "http://localhost:9100", log),
		RetrievalTimeout: time.Duration(getEnvInt("RETRIEVAL_TIMEOUT_SECONDS", 10, log)) * time.Second,

		HitlAwaitTimeout: time.Duration(getEnvInt("HITL_AWAIT_TIMEOUT_MINUTES", 30, log)) * time.Minute,
		MaxHitlRetries:   getEnvInt("HITL_MAX_RETRIES", 3, log),
		PromptCharBudget: getEnvInt("PROMPT_CHAR_BUDGET", 800, log),
		RetrievalK:       getEnvInt("RETRIEVAL_K", 5, log),

		RedisAddr:    getEnv("REDIS_ADDR", "", log),
		RedisChannel: getEnv("REDIS_CHANNEL", "review_progress", log),

		ServiceToken: getEnv("SERVICE_TOKEN", "", log),
	}
}

func getEnv(key, defaultVal string, log *logger.Logger) string {
	val, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(val) == "" {
		if log != nil {
			log.Debug("environment variable not found, using default", "env_var", key, "default", defaultVal)
		}
		return defaultVal
	}
	return val
}

func getEnvInt(key string, defaultVal int, log *logger.Logger) int {
	raw := getEnv(key, "", log)
	if raw == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		if log != nil {
			log.Warn("invalid integer environment variable, using default", "env_var", key, "value", raw, "default", defaultVal)
		}
		return defaultVal
	}
	return v
}
