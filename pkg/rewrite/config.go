package rewrite

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Defaults applied by Config.withDefaults for zero-valued fields.
const (
	// DefaultMinQueryLength is the minimum trimmed query length, counted
	// in Unicode codepoints, below which rewriting is skipped.
	DefaultMinQueryLength = 3

	// DefaultTimeout bounds a single generation call.
	DefaultTimeout = 10 * time.Second

	// DefaultMaxAttempts is the number of generation tries per rewrite.
	DefaultMaxAttempts = 1
)

// Config contains configuration for the rewrite engine.
//
// A Config is validated once at engine construction and is immutable
// afterwards; it may be shared by any number of concurrent Rewrite calls.
type Config struct {
	// Enabled turns the rewrite stage on or off. When false the engine
	// skips every query with SkipDisabled; integrators typically do not
	// construct an engine at all in that case.
	Enabled bool

	// MinQueryLength is the minimum trimmed query length in Unicode
	// codepoints (default: DefaultMinQueryLength). Must not be negative.
	MinQueryLength int

	// Timeout bounds each generation call (default: DefaultTimeout).
	// Must not be negative.
	Timeout time.Duration

	// MaxAttempts is the maximum number of generation tries before
	// falling back to the original query (default: DefaultMaxAttempts).
	// Must not be negative.
	MaxAttempts int

	// CustomInstructions replaces the default rewrite requirements in the
	// generation prompt (optional).
	CustomInstructions string
}

// DefaultConfig returns an enabled Config with all defaults applied.
func DefaultConfig() *Config {
	return &Config{
		Enabled:        true,
		MinQueryLength: DefaultMinQueryLength,
		Timeout:        DefaultTimeout,
		MaxAttempts:    DefaultMaxAttempts,
	}
}

// Validate checks the configuration.
//
// Zero values are legal (defaults are applied at construction); negative
// values are configuration errors and are reported immediately rather
// than surfacing mid-request.
func (c *Config) Validate() error {
	if c.MinQueryLength < 0 {
		return newError("Validate", fmt.Errorf("%w: min_query_length must not be negative, got %d", ErrInvalidConfig, c.MinQueryLength))
	}
	if c.Timeout < 0 {
		return newError("Validate", fmt.Errorf("%w: timeout must not be negative, got %s", ErrInvalidConfig, c.Timeout))
	}
	if c.MaxAttempts < 0 {
		return newError("Validate", fmt.Errorf("%w: max_attempts must not be negative, got %d", ErrInvalidConfig, c.MaxAttempts))
	}
	return nil
}

// withDefaults returns a copy of c with zero-valued fields defaulted.
func (c *Config) withDefaults() *Config {
	out := *c
	if out.MinQueryLength == 0 {
		out.MinQueryLength = DefaultMinQueryLength
	}
	if out.Timeout == 0 {
		out.Timeout = DefaultTimeout
	}
	if out.MaxAttempts == 0 {
		out.MaxAttempts = DefaultMaxAttempts
	}
	return &out
}

// LoadConfigFromEnv loads a Config from environment variables.
//
// A .env file is located with findEnvFile and loaded first, so a plain
// process environment and a dotenv workflow both work.
//
// Supported variables:
//   - QUERY_REWRITE_ENABLED ("true"/"false", default "false")
//   - QUERY_REWRITE_MIN_QUERY_LENGTH (integer)
//   - QUERY_REWRITE_TIMEOUT (Go duration, e.g. "10s")
//   - QUERY_REWRITE_MAX_ATTEMPTS (integer)
//   - QUERY_REWRITE_INSTRUCTIONS (free text)
func LoadConfigFromEnv() (*Config, error) {
	if envPath, found := findEnvFile(); found {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	cfg := &Config{
		Enabled:            os.Getenv("QUERY_REWRITE_ENABLED") == "true",
		CustomInstructions: os.Getenv("QUERY_REWRITE_INSTRUCTIONS"),
	}

	if v := os.Getenv("QUERY_REWRITE_MIN_QUERY_LENGTH"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, newError("LoadConfigFromEnv", fmt.Errorf("%w: QUERY_REWRITE_MIN_QUERY_LENGTH: %v", ErrInvalidConfig, err))
		}
		cfg.MinQueryLength = n
	}

	if v := os.Getenv("QUERY_REWRITE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, newError("LoadConfigFromEnv", fmt.Errorf("%w: QUERY_REWRITE_TIMEOUT: %v", ErrInvalidConfig, err))
		}
		cfg.Timeout = d
	}

	if v := os.Getenv("QUERY_REWRITE_MAX_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, newError("LoadConfigFromEnv", fmt.Errorf("%w: QUERY_REWRITE_MAX_ATTEMPTS: %v", ErrInvalidConfig, err))
		}
		cfg.MaxAttempts = n
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// findEnvFile searches the current directory and up to 5 parent
// directories for a .env or .env.example file.
func findEnvFile() (string, bool) {
	dir, err := os.Getwd()
	if err != nil {
		return "", false
	}
	for i := 0; i < 5; i++ {
		for _, name := range []string{".env", ".env.example"} {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return path, true
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false
}
