// Package config provides hierarchical configuration loading for ForgeAgent.
// Precedence: defaults < YAML file < environment variables.
package config

import "time"

// Provider names recognized by the LLM section.
const (
	ProviderOpenAI           = "openai"
	ProviderAnthropic        = "anthropic"
	ProviderOpenAICompatible = "openai-compatible"
)

// Config holds all runtime configuration for the ForgeAgent core.
type Config struct {
	Server    Server    `yaml:"server"`
	LLM       LLM       `yaml:"llm"`
	Agent     Agent     `yaml:"agent"`
	Logging   Logging   `yaml:"logging"`
	Breaker   Breaker   `yaml:"breaker"`
	Cache     Cache     `yaml:"cache"`
	Git       Git       `yaml:"git"`
	Telemetry Telemetry `yaml:"telemetry"`

	// Top-level aliases kept for compatibility with older config files
	// where provider settings lived at the root.
	ProviderAlias string `yaml:"provider"`
	ModelAlias    string `yaml:"model"`
	EndpointA     string `yaml:"openaiCompatibleEndpoint"`
	EndpointB     string `yaml:"openai_compatible_endpoint"`
	EndpointC     string `yaml:"openai-compatible-endpoint"`
}

// Server holds HTTP server configuration.
type Server struct {
	Port       string `yaml:"port"`
	CORSOrigin string `yaml:"cors_origin"`
}

// LLM holds model provider configuration.
type LLM struct {
	Provider    string        `yaml:"provider"` // "openai" | "anthropic" | "openai-compatible"
	Model       string        `yaml:"model"`
	Endpoint    string        `yaml:"endpoint"` // required for openai-compatible
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature *float64      `yaml:"temperature,omitempty"`
	HTTPTimeout time.Duration `yaml:"http_timeout"`
}

// Agent holds orchestration loop configuration.
type Agent struct {
	MaxIterations int    `yaml:"max_iterations"`
	SessionDir    string `yaml:"session_dir"` // relative to the workspace root
	SystemPrompt  string `yaml:"system_prompt"`
}

// Logging holds structured logging configuration.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
	Async   bool   `yaml:"async"`
}

// Breaker holds circuit breaker configuration for provider HTTP calls.
type Breaker struct {
	MaxFailures int           `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Cache holds the in-process tree-walk cache configuration.
type Cache struct {
	MaxSizeMB int64         `yaml:"max_size_mb"`
	TTL       time.Duration `yaml:"ttl"`
}

// Git holds git CLI pool configuration.
type Git struct {
	MaxConcurrent int `yaml:"max_concurrent"`
}

// Telemetry holds OpenTelemetry export configuration. An empty endpoint
// disables export entirely.
type Telemetry struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

// DefaultModels maps each provider to the model used when none is configured.
// openai-compatible has no default on purpose: the endpoint decides.
var DefaultModels = map[string]string{
	ProviderOpenAI:    "gpt-4o",
	ProviderAnthropic: "claude-sonnet-4-20250514",
}

// Defaults returns a Config with sensible default values for local use.
func Defaults() Config {
	return Config{
		Server: Server{
			Port:       "8080",
			CORSOrigin: "http://localhost:3000",
		},
		LLM: LLM{
			Provider:    ProviderOpenAI,
			MaxTokens:   4096,
			HTTPTimeout: 5 * time.Minute,
		},
		Agent: Agent{
			MaxIterations: 20,
			SessionDir:    ".agent",
		},
		Logging: Logging{
			Level:   "info",
			Service: "forgeagent",
		},
		Breaker: Breaker{
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		},
		Cache: Cache{
			MaxSizeMB: 32,
			TTL:       30 * time.Second,
		},
		Git: Git{
			MaxConcurrent: 4,
		},
	}
}
