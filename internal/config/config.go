// Package config handles onboard configuration loading.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Provider names accepted by llm.provider.
const (
	ProviderOpenAI   = "openai"
	ProviderDeepSeek = "deepseek"
	ProviderGemini   = "gemini"
)

// Database drivers accepted by database.driver.
const (
	DriverSQLite3 = "sqlite3" // github.com/mattn/go-sqlite3 (cgo)
	DriverSQLite  = "sqlite"  // modernc.org/sqlite (pure Go)
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/onboard/config.yaml, /etc/onboard/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "onboard", "config.yaml"))
	}

	paths = append(paths, "/etc/onboard/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all onboard configuration.
type Config struct {
	Listen    ListenConfig   `yaml:"listen"`
	LLM       LLMConfig      `yaml:"llm"`
	Database  DatabaseConfig `yaml:"database"`
	CORS      CORSConfig     `yaml:"cors"`
	MQTT      MQTTConfig     `yaml:"mqtt"`
	DataDir   string         `yaml:"data_dir"`
	LogLevel  string         `yaml:"log_level"`
	LogFormat string         `yaml:"log_format"` // text or json
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// LLMConfig selects the provider and bounds every call made to it.
type LLMConfig struct {
	// Provider is one of openai, deepseek, gemini.
	Provider string `yaml:"provider"`

	// Temperature is the first-attempt sampling temperature. Each retry
	// adds 0.1.
	Temperature     float64       `yaml:"temperature"`
	MaxOutputTokens int           `yaml:"max_output_tokens"`
	MaxRetries      int           `yaml:"max_retries"`
	RetryBaseDelay  time.Duration `yaml:"retry_base_delay"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`

	OpenAI   ProviderConfig `yaml:"openai"`
	DeepSeek ProviderConfig `yaml:"deepseek"`
	Gemini   ProviderConfig `yaml:"gemini"`
}

// ProviderConfig holds the credential and endpoint for one provider.
type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// Selected returns the settings block for the configured provider.
func (c LLMConfig) Selected() (ProviderConfig, error) {
	switch strings.ToLower(c.Provider) {
	case ProviderOpenAI:
		return c.OpenAI, nil
	case ProviderDeepSeek:
		return c.DeepSeek, nil
	case ProviderGemini:
		return c.Gemini, nil
	default:
		return ProviderConfig{}, fmt.Errorf("unknown llm provider %q (valid: %s, %s, %s)",
			c.Provider, ProviderOpenAI, ProviderDeepSeek, ProviderGemini)
	}
}

// DatabaseConfig defines where sessions are stored.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	// Path is the SQLite file. Defaults to <data_dir>/onboard.db.
	Path string `yaml:"path"`
}

// CORSConfig defines which browser origins may call the API.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// MQTTConfig defines the optional completion notifier. Leaving Broker
// empty disables it.
type MQTTConfig struct {
	Broker      string `yaml:"broker"` // e.g. mqtt://host:1883 or mqtts://host:8883
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
}

// Enabled reports whether an MQTT broker is configured.
func (c MQTTConfig) Enabled() bool {
	return c.Broker != ""
}

// Load reads configuration from a YAML file, expanding ${VAR}
// references from the environment and filling unset values with the
// same defaults as [Default].
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.applyDefaults()

	return cfg, nil
}

// Default returns a configuration with every default applied and no
// credentials.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills zero values. Database.Path derives from DataDir,
// so this must run after the file has been decoded.
func (c *Config) applyDefaults() {
	if c.Listen.Port == 0 {
		c.Listen.Port = 8080
	}
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}

	l := &c.LLM
	if l.Provider == "" {
		l.Provider = ProviderOpenAI
	}
	l.Provider = strings.ToLower(l.Provider)
	if l.Temperature == 0 {
		l.Temperature = 0.7
	}
	if l.MaxOutputTokens == 0 {
		l.MaxOutputTokens = 500
	}
	if l.MaxRetries == 0 {
		l.MaxRetries = 3
	}
	if l.RetryBaseDelay == 0 {
		l.RetryBaseDelay = time.Second
	}
	if l.RequestTimeout == 0 {
		l.RequestTimeout = 30 * time.Second
	}
	fill(&l.OpenAI, "https://api.openai.com/v1/chat/completions", "gpt-4o")
	fill(&l.DeepSeek, "https://api.deepseek.com/v1/chat/completions", "deepseek-chat")
	fill(&l.Gemini, "https://generativelanguage.googleapis.com/", "gemini-2.0-flash")

	if c.Database.Driver == "" {
		c.Database.Driver = DriverSQLite3
	}
	if c.Database.Path == "" {
		c.Database.Path = filepath.Join(c.DataDir, "onboard.db")
	}

	if len(c.CORS.AllowedOrigins) == 0 {
		c.CORS.AllowedOrigins = []string{"*"}
	}

	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "onboard"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "onboard"
	}
}

func fill(p *ProviderConfig, baseURL, model string) {
	if p.BaseURL == "" {
		p.BaseURL = baseURL
	}
	if p.Model == "" {
		p.Model = model
	}
}

// Validate reports every problem with the configuration at once.
// A selected provider without an API key is an error; keys for the
// other providers are optional.
func (c *Config) Validate() error {
	var errs []error

	sel, err := c.LLM.Selected()
	if err != nil {
		errs = append(errs, err)
	} else if strings.TrimSpace(sel.APIKey) == "" {
		errs = append(errs, fmt.Errorf("llm.%s.api_key is required when llm.provider is %s", c.LLM.Provider, c.LLM.Provider))
	}

	if c.LLM.MaxRetries < 1 {
		errs = append(errs, fmt.Errorf("llm.max_retries must be at least 1, got %d", c.LLM.MaxRetries))
	}
	if c.LLM.RetryBaseDelay < 0 {
		errs = append(errs, fmt.Errorf("llm.retry_base_delay must not be negative, got %s", c.LLM.RetryBaseDelay))
	}
	if c.LLM.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("llm.request_timeout must be positive, got %s", c.LLM.RequestTimeout))
	}
	if c.LLM.MaxOutputTokens < 1 {
		errs = append(errs, fmt.Errorf("llm.max_output_tokens must be positive, got %d", c.LLM.MaxOutputTokens))
	}

	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log_format %q (valid: text, json)", c.LogFormat))
	}

	switch c.Database.Driver {
	case DriverSQLite3, DriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("unknown database.driver %q (valid: %s, %s)", c.Database.Driver, DriverSQLite3, DriverSQLite))
	}

	if c.Listen.Port < 1 || c.Listen.Port > 65535 {
		errs = append(errs, fmt.Errorf("listen.port out of range: %d", c.Listen.Port))
	}

	return errors.Join(errs...)
}
