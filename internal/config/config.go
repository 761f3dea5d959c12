// Package config loads the settings shared by the catalog client and the sandbox API.
package config

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	API        APIConfig        `koanf:"api"`
	Resilience ResilienceConfig `koanf:"resilience"`
	HTTPServer ServerConfig     `koanf:"server"`
	Sandbox    SandboxConfig    `koanf:"sandbox"`
	Shutdown   ShutdownConfig   `koanf:"shutdown"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
	Log        LogConfig        `koanf:"log"`
}

// APIConfig locates the remote product API.
type APIConfig struct {
	BaseURL string `koanf:"baseurl"`
	// Timeout of a single request, 0 leaves it to the transport.
	Timeout time.Duration `koanf:"timeout"`
}

type ResilienceConfig struct {
	CircuitBreaker struct {
		Enabled             bool          `koanf:"enabled"`
		ConsecutiveFailures uint32        `koanf:"consecutivefailures"`
		OpenTimeout         time.Duration `koanf:"opentimeout"`
	} `koanf:"circuitbreaker"`
}

type ServerConfig struct {
	Port           int `koanf:"port"`
	MaxHeaderBytes int `koanf:"maxheaderbytes"`
	Timeout        struct {
		Read       time.Duration `koanf:"read"`
		Write      time.Duration `koanf:"write"`
		Idle       time.Duration `koanf:"idle"`
		ReadHeader time.Duration `koanf:"readheader"`
	} `koanf:"timeout"`
}

// SandboxConfig tunes the in-memory product API.
type SandboxConfig struct {
	Latency  time.Duration `koanf:"latency"`
	SeedFile string        `koanf:"seedfile"`
}

type ShutdownConfig struct {
	Timeout time.Duration `koanf:"timeout"`
}

type TelemetryConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Endpoint string `koanf:"endpoint"`
	Insecure bool   `koanf:"insecure"`
}

type LogConfig struct {
	Level string `koanf:"level"`
}

func (c Config) String() string {
	return fmt.Sprintf("api.baseURL=%s, api.timeout=%v, resilience.circuitBreaker.enabled=%t, resilience.circuitBreaker.consecutiveFailures=%d, resilience.circuitBreaker.openTimeout=%v, server.port=%d, server.maxHeaderBytes=%d, server.timeout.read=%v, server.timeout.write=%v, server.timeout.idle=%v, server.timeout.readHeader=%v, sandbox.latency=%v, sandbox.seedFile=%s, shutdown.timeout=%v, telemetry.enabled=%t, telemetry.endpoint=%s, log.level=%s.",
		maskURL(c.API.BaseURL),
		c.API.Timeout,
		c.Resilience.CircuitBreaker.Enabled,
		c.Resilience.CircuitBreaker.ConsecutiveFailures,
		c.Resilience.CircuitBreaker.OpenTimeout,
		c.HTTPServer.Port,
		c.HTTPServer.MaxHeaderBytes,
		c.HTTPServer.Timeout.Read,
		c.HTTPServer.Timeout.Write,
		c.HTTPServer.Timeout.Idle,
		c.HTTPServer.Timeout.ReadHeader,
		c.Sandbox.Latency,
		valueOrNone(c.Sandbox.SeedFile),
		c.Shutdown.Timeout,
		c.Telemetry.Enabled,
		valueOrNone(c.Telemetry.Endpoint),
		c.Log.Level)
}

// maskURL hides the user info of a URL.
func maskURL(raw string) string {
	if raw == "" {
		return "<not configured>"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "****"
	}
	if u.User != nil {
		u.User = url.User("****")
	}
	return u.String()
}

func valueOrNone(s string) string {
	if s == "" {
		return "<none>"
	}
	return s
}

const (
	envPrefix      = "catalog_"
	defaultEnvFile = ".env"
	configFile     = "config.yaml"
)

// defaults are the lowest priority layer.
var defaults = map[string]any{
	"api.baseurl":                                   "http://localhost:8080/api",
	"api.timeout":                                   "0s",
	"resilience.circuitbreaker.enabled":             false,
	"resilience.circuitbreaker.consecutivefailures": 5,
	"resilience.circuitbreaker.opentimeout":         "30s",
	"server.port":                                   8080,
	"server.maxheaderbytes":                         1 << 20,
	"server.timeout.read":                           "5s",
	"server.timeout.write":                          "10s",
	"server.timeout.idle":                           "60s",
	"server.timeout.readheader":                     "2s",
	"sandbox.latency":                               "0s",
	"sandbox.seedfile":                              "",
	"shutdown.timeout":                              "30s",
	"telemetry.enabled":                             false,
	"telemetry.endpoint":                            "localhost:4318",
	"telemetry.insecure":                            true,
	"log.level":                                     "info",
}

// Load reads the configuration from config.yaml, .env and environment variables
func Load() (*Config, error) {
	return LoadFrom(configFile, defaultEnvFile)
}

// LoadFrom reads the configuration from the given yaml and .env files and environment variables.
// Later layers win: defaults, yaml, .env, process environment. Missing files are skipped.
func LoadFrom(yamlPath, envPath string) (*Config, error) {
	// Create a new Koanf instance
	var k = koanf.New(".")

	// 0. Defaults
	if err := k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return nil, fmt.Errorf("error loading default config: %w", err)
	}

	// 1. Load configuration from yaml file
	if err := loadYAML(k, yamlPath); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Printf("WARN: error loading YAML config: %v", err)
		}
	}

	// 2. Load environment variables from .env file
	if envFileMap, err := godotenv.Read(envPath); err == nil {
		envMap := make(map[string]any)
		for key, value := range envFileMap {
			if strings.HasPrefix(strings.ToLower(key), envPrefix) {
				envMap[keyTransformer(key)] = value
			}
		}
		// Load the envMap into Koanf
		if err := k.Load(confmap.Provider(envMap, "."), nil); err != nil {
			log.Printf("WARN: error loading .env config: %v", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		log.Printf("WARN: error reading .env file: %v", err)
	}

	// 3. Load environment variables from the system, the highest priority
	if err := k.Load(env.Provider(strings.ToUpper(envPrefix), ".", keyTransformer), nil); err != nil {
		log.Printf("WARN: error loading env vars: %v", err)
	}

	var cfg Config
	// 4. Unmarshal the configuration into the Config struct
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	// 5. Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// loadYAML merges the yaml file with its keys lowercased, so that
// camelCase yaml keys and environment keys address the same setting.
func loadYAML(k *koanf.Koanf, path string) error {
	y := koanf.New(".")
	if err := y.Load(file.Provider(path), yaml.Parser()); err != nil {
		return err
	}
	lowered := make(map[string]any)
	for key, value := range y.All() {
		lowered[strings.ToLower(key)] = value
	}
	return k.Load(confmap.Provider(lowered, "."), nil)
}

// keyTransformer transforms environment variable keys to match the expected format
func keyTransformer(key string) string {
	key = strings.ToLower(key)
	key = strings.TrimPrefix(key, envPrefix)
	return strings.ReplaceAll(key, "_", ".")
}

// Validate checks every section.
func (c Config) Validate() error {
	return errors.Join(
		c.API.Validate(),
		c.Resilience.Validate(),
		c.HTTPServer.Validate(),
		c.Sandbox.Validate(),
		c.Shutdown.Validate(),
		c.Telemetry.Validate(),
		c.Log.Validate(),
	)
}

func (c APIConfig) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("api base URL must be an absolute http(s) URL: %q", c.BaseURL)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("invalid api timeout: %v", c.Timeout)
	}
	return nil
}

func (c ResilienceConfig) Validate() error {
	cb := c.CircuitBreaker
	if !cb.Enabled {
		return nil
	}
	if cb.ConsecutiveFailures == 0 {
		return errors.New("circuit breaker consecutive failures must be positive")
	}
	if cb.OpenTimeout <= 0 {
		return fmt.Errorf("invalid circuit breaker open timeout: %v", cb.OpenTimeout)
	}
	return nil
}

func (c ServerConfig) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid HTTP server port: %d", c.Port)
	}
	if c.Timeout.Read <= 0 {
		return fmt.Errorf("invalid HTTP server read timeout: %v", c.Timeout.Read)
	}
	if c.Timeout.Write <= 0 {
		return fmt.Errorf("invalid HTTP server write timeout: %v", c.Timeout.Write)
	}
	if c.Timeout.Idle <= 0 {
		return fmt.Errorf("invalid HTTP server idle timeout: %v", c.Timeout.Idle)
	}
	return nil
}

func (c SandboxConfig) Validate() error {
	if c.Latency < 0 {
		return fmt.Errorf("invalid sandbox latency: %v", c.Latency)
	}
	return nil
}

func (c ShutdownConfig) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("invalid shutdown timeout: %v", c.Timeout)
	}
	return nil
}

func (c TelemetryConfig) Validate() error {
	if c.Enabled && c.Endpoint == "" {
		return errors.New("telemetry endpoint is not configured")
	}
	return nil
}

func (c LogConfig) Validate() error {
	switch c.Level {
	case "debug", "info", "warn", "error":
		return nil
	}
	return fmt.Errorf("invalid log level: %q", c.Level)
}
