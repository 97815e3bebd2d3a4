// Package config loads the JSON configuration shared by the form app and the
// analysis backend.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"medagentx/analyzer"
	"medagentx/report"
)

const (
	DefaultServerAddr  = ":8080"
	DefaultBackendAddr = ":5000"
	// DefaultEndpoint is the local development address of the analysis service.
	DefaultEndpoint  = "http://localhost:5000/analyze"
	DefaultAPIKeyEnv = "OPENAI_API_KEY"

	// EndpointEnv overrides the configured analysis endpoint.
	EndpointEnv = "MEDAGENTX_ENDPOINT"
)

// Config holds every setting of the application.
type Config struct {
	ServerAddr     string           `json:"server_addr,omitempty"`
	BackendAddr    string           `json:"backend_addr,omitempty"`
	Endpoint       string           `json:"endpoint,omitempty"`
	RequestTimeout Duration         `json:"request_timeout,omitempty"`
	Validation     ValidationConfig `json:"validation"`
	LLM            *LLMConfig       `json:"llm,omitempty"`
	Log            LogConfig        `json:"log"`
}

// ValidationConfig tunes the draft heuristic. Zero values mean defaults.
type ValidationConfig struct {
	MinLength   int      `json:"min_length,omitempty"`
	MinKeywords int      `json:"min_keywords,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
	WordStart   bool     `json:"word_start,omitempty"` // only count keywords that begin a word
}

// LLMConfig configures the model used by the analysis backend.
type LLMConfig struct {
	Provider    string  `json:"provider,omitempty"`
	Model       string  `json:"model,omitempty"`
	APIKey      string  `json:"api_key,omitempty"`
	APIKeyEnv   string  `json:"api_key_env,omitempty"`
	BaseURL     string  `json:"base_url,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

type LogConfig struct {
	Level       string `json:"level,omitempty"`
	Development bool   `json:"development,omitempty"`
}

// Duration reads a Go duration string such as "30s" from JSON.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	if s == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		ServerAddr:  DefaultServerAddr,
		BackendAddr: DefaultBackendAddr,
		Endpoint:    DefaultEndpoint,
		Log:         LogConfig{Level: "info"},
	}
}

// LoadConfig reads JSON config from disk on top of the defaults. A missing file
// is not an error when allowMissing is set.
func LoadConfig(path string, allowMissing bool) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && allowMissing:
	default:
		return Config{}, err
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if ep := os.Getenv(EndpointEnv); ep != "" {
		c.Endpoint = ep
	}
	if c.LLM != nil && c.LLM.APIKey == "" {
		env := c.LLM.APIKeyEnv
		if env == "" {
			env = DefaultAPIKeyEnv
		}
		c.LLM.APIKey = os.Getenv(env)
	}
}

// Validate checks the settings that would otherwise fail late.
func (c Config) Validate() error {
	if c.Endpoint != "" {
		u, err := url.Parse(c.Endpoint)
		if err != nil {
			return fmt.Errorf("endpoint: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("endpoint %q must be an http(s) URL", c.Endpoint)
		}
	}
	if c.Validation.MinLength < 0 || c.Validation.MinKeywords < 0 {
		return errors.New("validation thresholds must not be negative")
	}
	if c.RequestTimeout < 0 {
		return errors.New("request_timeout must not be negative")
	}
	return nil
}

// Validator builds the draft validator from the validation settings.
func (c Config) Validator() *report.Validator {
	v := c.Validation
	var opts []report.Option
	if v.WordStart {
		opts = append(opts, report.WithWordStart())
	}
	return report.NewValidator(v.MinLength, v.MinKeywords, v.Keywords, opts...)
}

// LLMSettings converts the llm block for the analyzer, or nil when absent.
func (c Config) LLMSettings() *analyzer.LLMSettings {
	if c.LLM == nil {
		return nil
	}
	return &analyzer.LLMSettings{
		Provider:    c.LLM.Provider,
		Model:       c.LLM.Model,
		APIKey:      c.LLM.APIKey,
		BaseURL:     c.LLM.BaseURL,
		Temperature: c.LLM.Temperature,
	}
}
