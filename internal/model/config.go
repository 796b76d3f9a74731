package model

import (
	"fmt"
	"log"
	"os"
	"strconv"
)

// Config holds OpenAI-compatible chat configuration. Adapted from the
// teacher's internal/llm/openai.Config, dropping the Function-Calling /
// native-thinking duality (ThinkingMode, ToolCallMode, ReasoningEffort) —
// the model package here only ever produces plain chat completions and
// parses their content as strict JSON (§4.E).
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature *float32
	MaxTokens   int
	MaxRetries  int
	HTTPTimeout int
}

// NewConfigFromEnv builds a Config from EPHRAIM_LLM_* environment variables.
func NewConfigFromEnv() (*Config, error) {
	cfg := &Config{
		APIKey:      getEnvOrDefault("EPHRAIM_LLM_API_KEY", ""),
		BaseURL:     getEnvOrDefault("EPHRAIM_LLM_BASE_URL", "https://api.openai.com/v1"),
		Model:       getEnvOrDefault("EPHRAIM_LLM_MODEL", "gpt-4o"),
		Temperature: getEnvFloat32Ptr("EPHRAIM_LLM_TEMPERATURE"),
		MaxTokens:   getEnvIntOrDefault("EPHRAIM_LLM_MAX_TOKENS", 0),
		MaxRetries:  getEnvIntOrDefault("EPHRAIM_LLM_MAX_RETRIES", 2),
		HTTPTimeout: getEnvIntOrDefault("EPHRAIM_LLM_HTTP_TIMEOUT", 300),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration is usable.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("EPHRAIM_LLM_API_KEY is required. Set it in .env or environment")
	}
	if c.Model == "" {
		return fmt.Errorf("EPHRAIM_LLM_MODEL cannot be empty")
	}
	if c.Temperature != nil && (*c.Temperature < 0.0 || *c.Temperature > 2.0) {
		return fmt.Errorf("EPHRAIM_LLM_TEMPERATURE must be between 0.0 and 2.0, got %f", *c.Temperature)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("EPHRAIM_LLM_MAX_RETRIES cannot be negative, got %d", c.MaxRetries)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvFloat32Ptr(key string) *float32 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 32); err == nil {
			f := float32(parsed)
			return &f
		}
		log.Printf("[model] WARNING: invalid value for %s=%q, ignoring", key, v)
	}
	return nil
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
		log.Printf("[model] WARNING: invalid value for %s=%q, using default %d", key, v, defaultValue)
	}
	return defaultValue
}

// ForceCompleteThreshold reads EPHRAIM_FORCE_COMPLETE_THRESHOLD, validated to
// 1-10 and defaulting to 3 (§7, §9 resolved Open Question).
func ForceCompleteThreshold() int {
	const def = 3
	v := getEnvIntOrDefault("EPHRAIM_FORCE_COMPLETE_THRESHOLD", def)
	if v < 1 || v > 10 {
		log.Printf("[model] WARNING: EPHRAIM_FORCE_COMPLETE_THRESHOLD=%d out of range [1,10], using default %d", v, def)
		return def
	}
	return v
}
