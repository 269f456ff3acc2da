// Package secrets handles provider API keys and keeps credentials out
// of subprocess environments.
package secrets

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/Strob0t/ForgeAgent/internal/config"
)

// Env var names per provider.
const (
	EnvOpenAIKey    = "OPENAI_API_KEY"
	EnvAnthropicKey = "ANTHROPIC_API_KEY"
)

// Loader retrieves secrets from a source (env vars, file, remote vault).
type Loader func() (map[string]string, error)

// EnvLoader returns a Loader that reads the specified environment
// variables. Missing variables are silently omitted from the result.
func EnvLoader(keys ...string) Loader {
	return func() (map[string]string, error) {
		vals := make(map[string]string, len(keys))
		for _, k := range keys {
			if v := os.Getenv(k); v != "" {
				vals[k] = v
			}
		}
		return vals, nil
	}
}

// Vault holds secret values in memory and supports atomic reloading.
type Vault struct {
	mu     sync.RWMutex
	values map[string]string
	loader Loader
}

// NewVault creates a Vault, calling the loader once to populate values.
func NewVault(loader Loader) (*Vault, error) {
	vals, err := loader()
	if err != nil {
		return nil, fmt.Errorf("initial secret load: %w", err)
	}
	return &Vault{values: vals, loader: loader}, nil
}

// Get returns the secret for key, or an empty string if not found.
func (v *Vault) Get(key string) string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.values[key]
}

// Reload calls the loader and swaps in the new values atomically.
// If the loader returns an error, existing values are preserved.
func (v *Vault) Reload() error {
	newVals, err := v.loader()
	if err != nil {
		return fmt.Errorf("reload secrets: %w", err)
	}
	v.mu.Lock()
	v.values = newVals
	v.mu.Unlock()
	return nil
}

// APIKey returns the key the given provider needs, and whether one is
// required at all. openai-compatible endpoints may be keyless (local
// inference servers), so the key is optional there.
func (v *Vault) APIKey(providerName string) (key string, required bool) {
	switch providerName {
	case config.ProviderOpenAI:
		return v.Get(EnvOpenAIKey), true
	case config.ProviderAnthropic:
		return v.Get(EnvAnthropicKey), true
	case config.ProviderOpenAICompatible:
		return v.Get(EnvOpenAIKey), false
	default:
		return "", false
	}
}

// sensitiveFragments mark environment variable names that must never
// reach a tool subprocess.
var sensitiveFragments = []string{
	"API_KEY", "SECRET", "PASSWORD", "TOKEN", "CREDENTIAL", "PRIVATE_KEY", "AUTH",
}

// IsSensitiveEnv reports whether the variable name contains any
// credential-bearing fragment, case-insensitively.
func IsSensitiveEnv(name string) bool {
	upper := strings.ToUpper(name)
	for _, fragment := range sensitiveFragments {
		if strings.Contains(upper, fragment) {
			return true
		}
	}
	return false
}

// FilterEnv returns environ with all sensitive variables dropped.
func FilterEnv(environ []string) []string {
	filtered := make([]string, 0, len(environ))
	for _, kv := range environ {
		name, _, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if IsSensitiveEnv(name) {
			continue
		}
		filtered = append(filtered, kv)
	}
	return filtered
}
