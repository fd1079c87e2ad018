package genui

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/unfazed-dev/genui/internal/infra"
	"github.com/unfazed-dev/genui/internal/ratelimit"
	"github.com/unfazed-dev/genui/internal/retry"
)

// Config is the single configuration record for a client, covering both
// operating modes. Zero values take the documented defaults.
type Config struct {
	// APIKey authenticates direct requests against the LLM endpoint.
	// Falls back to the ANTHROPIC_API_KEY environment variable.
	APIKey string `yaml:"api_key"`

	// Model selects the LLM model for direct requests.
	Model string `yaml:"model"`

	// MaxTokens bounds the length of each LLM reply. Default 4096.
	MaxTokens int `yaml:"max_tokens"`

	// Timeout is the per-request wall-clock bound. Default 120s.
	Timeout time.Duration `yaml:"timeout"`

	// RetryAttempts is the maximum number of retries after a failed
	// attempt. Default 3; zero is valid and disables retries.
	RetryAttempts *int `yaml:"retry_attempts"`

	// Sampling controls, passed through when set.
	Temperature   *float64 `yaml:"temperature"`
	TopP          *float64 `yaml:"top_p"`
	TopK          *int     `yaml:"top_k"`
	StopSequences []string `yaml:"stop_sequences"`

	// ProxyEndpoint routes requests through an SSE-forwarding proxy
	// instead of the LLM endpoint. Empty selects direct mode.
	ProxyEndpoint string `yaml:"proxy_endpoint"`

	// AuthToken is sent as a bearer token on proxy requests.
	AuthToken string `yaml:"auth_token"`

	// Headers are extra headers on proxy requests.
	Headers map[string]string `yaml:"headers"`

	// IncludeHistory controls whether conversation history is sent.
	// Default true.
	IncludeHistory *bool `yaml:"include_history"`

	// MaxHistoryMessages prunes the history window. Zero keeps all.
	MaxHistoryMessages int `yaml:"max_history_messages"`

	// CircuitBreaker tunes the breaker around the endpoint.
	CircuitBreaker infra.CircuitBreakerConfig `yaml:"circuit_breaker"`

	// DisableCircuitBreaker bypasses the breaker entirely.
	DisableCircuitBreaker bool `yaml:"disable_circuit_breaker"`

	// RateLimit configures proactive admission.
	RateLimit ratelimit.Config `yaml:"rate_limit"`

	// Deduplication configures in-flight request coalescing.
	Deduplication ratelimit.DedupConfig `yaml:"deduplication"`

	// EnableToolSearch switches to search mode: only control and search
	// tools are advertised initially, widget tools load lazily.
	EnableToolSearch bool `yaml:"enable_tool_search"`

	// MaxLoadedToolsPerSession bounds the lazily loaded tool set.
	MaxLoadedToolsPerSession int `yaml:"max_loaded_tools_per_session"`

	// StreamInactivityTimeout is the longest silent gap tolerated on a
	// live stream. Default 60s.
	StreamInactivityTimeout time.Duration `yaml:"stream_inactivity_timeout"`
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() Config {
	return Config{
		MaxTokens:               4096,
		Timeout:                 120 * time.Second,
		RateLimit:               ratelimit.DefaultConfig(),
		Deduplication:           ratelimit.DefaultDedupConfig(),
		StreamInactivityTimeout: 60 * time.Second,
	}
}

// withDefaults fills unset fields.
func (c Config) withDefaults() Config {
	if c.MaxTokens <= 0 {
		c.MaxTokens = 4096
	}
	if c.Timeout <= 0 {
		c.Timeout = 120 * time.Second
	}
	if c.StreamInactivityTimeout <= 0 {
		c.StreamInactivityTimeout = 60 * time.Second
	}
	if c.APIKey == "" {
		c.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	return c
}

// retryAttempts resolves the configured retry count.
func (c Config) retryAttempts() int {
	if c.RetryAttempts == nil {
		return 3
	}
	if *c.RetryAttempts < 0 {
		return 0
	}
	return *c.RetryAttempts
}

// includeHistory resolves the history switch.
func (c Config) includeHistory() bool {
	return c.IncludeHistory == nil || *c.IncludeHistory
}

// retryPolicy builds the retry policy for this configuration. The policy
// counts total attempts, so the configured retry count adds one for the
// initial call.
func (c Config) retryPolicy() retry.Policy {
	policy := retry.DefaultPolicy()
	policy.MaxAttempts = c.retryAttempts() + 1
	return policy
}

// LoadConfig reads a YAML configuration file.
func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	config := DefaultConfig()
	if err := yaml.Unmarshal(raw, &config); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return config, nil
}
