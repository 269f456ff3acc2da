package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "forgeagent.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)
	cfg.normalize()

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "FORGEAGENT_PORT")
	setString(&cfg.Server.CORSOrigin, "FORGEAGENT_CORS_ORIGIN")
	setString(&cfg.LLM.Provider, "FORGEAGENT_PROVIDER")
	setString(&cfg.LLM.Model, "FORGEAGENT_MODEL")
	setString(&cfg.LLM.Endpoint, "OPENAI_BASE_URL")
	setInt(&cfg.LLM.MaxTokens, "FORGEAGENT_MAX_TOKENS")
	setDuration(&cfg.LLM.HTTPTimeout, "FORGEAGENT_HTTP_TIMEOUT")
	setInt(&cfg.Agent.MaxIterations, "FORGEAGENT_MAX_ITERATIONS")
	setString(&cfg.Agent.SessionDir, "FORGEAGENT_SESSION_DIR")
	setString(&cfg.Agent.SystemPrompt, "FORGEAGENT_SYSTEM_PROMPT")
	setString(&cfg.Logging.Level, "FORGEAGENT_LOG_LEVEL")
	setString(&cfg.Logging.Service, "FORGEAGENT_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "FORGEAGENT_LOG_ASYNC")
	setInt(&cfg.Breaker.MaxFailures, "FORGEAGENT_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "FORGEAGENT_BREAKER_TIMEOUT")
	setInt64(&cfg.Cache.MaxSizeMB, "FORGEAGENT_CACHE_SIZE_MB")
	setDuration(&cfg.Cache.TTL, "FORGEAGENT_CACHE_TTL")
	setInt(&cfg.Git.MaxConcurrent, "FORGEAGENT_GIT_MAX_CONCURRENT")
	setString(&cfg.Telemetry.OTLPEndpoint, "FORGEAGENT_OTLP_ENDPOINT")
}

// normalize coalesces the top-level alias keys into the LLM section.
// Alias values win only where the section left the field empty; for the
// provider, a section value still equal to the default counts as unset.
func (c *Config) normalize() {
	if c.ProviderAlias != "" && c.LLM.Provider == Defaults().LLM.Provider {
		c.LLM.Provider = c.ProviderAlias
	}
	if c.LLM.Model == "" {
		c.LLM.Model = c.ModelAlias
	}
	if c.LLM.Endpoint == "" {
		for _, alias := range []string{c.EndpointA, c.EndpointB, c.EndpointC} {
			if alias != "" {
				c.LLM.Endpoint = alias
				break
			}
		}
	}
	c.ProviderAlias, c.ModelAlias = "", ""
	c.EndpointA, c.EndpointB, c.EndpointC = "", "", ""
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	switch cfg.LLM.Provider {
	case ProviderOpenAI, ProviderAnthropic:
	case ProviderOpenAICompatible:
		if cfg.LLM.Endpoint == "" {
			return errors.New("llm.endpoint is required for provider openai-compatible")
		}
		if cfg.LLM.Model == "" {
			return errors.New("llm.model is required for provider openai-compatible")
		}
	default:
		return fmt.Errorf("unknown provider %q", cfg.LLM.Provider)
	}
	if cfg.Agent.MaxIterations < 1 {
		return errors.New("agent.max_iterations must be >= 1")
	}
	if cfg.LLM.MaxTokens < 1 {
		return errors.New("llm.max_tokens must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	return nil
}

// Model returns the configured model, falling back to the provider default.
func (c *Config) Model() string {
	if c.LLM.Model != "" {
		return c.LLM.Model
	}
	return DefaultModels[c.LLM.Provider]
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
