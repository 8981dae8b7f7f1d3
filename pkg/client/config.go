package client

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// DefaultBaseURL is used when no base URL is configured.
const DefaultBaseURL = "https://gitlab.com"

// Config holds the immutable authentication context. It is resolved once at
// client construction and read-only afterwards.
type Config struct {
	// Token is the personal or project access token. Required.
	Token string `env:"GITLAB_TOKEN"`

	// BaseURL is the instance URL, e.g. https://gitlab.example.com.
	// The /api/v4 prefix is appended by the client.
	BaseURL string `env:"GITLAB_BASE_URL"`

	// Timeout bounds a single HTTP round trip. It is the only per-request
	// deadline the client enforces on its own.
	Timeout time.Duration `env:"GITLAB_HTTP_TIMEOUT" env-default:"30s"`
}

// FromEnv resolves the configuration from the environment. A .env file in
// the working directory is loaded first when present. GITLAB_URL is accepted
// as a fallback for GITLAB_BASE_URL.
func FromEnv() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, &ConfigError{Reason: fmt.Sprintf("read environment: %v", err)}
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = os.Getenv("GITLAB_URL")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// validate checks the resolved configuration. It runs before any request is
// built, so a bad configuration never reaches the network.
func (c Config) validate() error {
	if c.Token == "" {
		return &ConfigError{Reason: "GITLAB_TOKEN is required"}
	}
	if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		return &ConfigError{Reason: fmt.Sprintf("base URL must start with http:// or https://, got %q", c.BaseURL)}
	}
	return nil
}
