// Package config loads service configuration from defaults, config.yaml,
// a .env file and PREFIX_* environment variables, in increasing priority.
package config

import (
	"fmt"
	"log"
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

// MemoryURL selects the in-process store instead of a database.
const MemoryURL = "memory"

type Config struct {
	HTTP      HTTPConfig      `koanf:"http"`
	Database  DatabaseConfig  `koanf:"database"`
	Log       LogConfig       `koanf:"log"`
	Metrics   MetricsConfig   `koanf:"metrics"`
	RateLimit RateLimitConfig `koanf:"ratelimit"`
}

type HTTPConfig struct {
	Addr       string        `koanf:"addr"`
	ReadHeader time.Duration `koanf:"readheader"`
	Shutdown   time.Duration `koanf:"shutdown"`
}

type DatabaseConfig struct {
	URL     string        `koanf:"url"`
	Timeout time.Duration `koanf:"timeout"`
}

type LogConfig struct {
	Level string `koanf:"level"`
}

type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Token   string `koanf:"token"`
}

type RateLimitConfig struct {
	RPS   float64 `koanf:"rps"`
	Burst int     `koanf:"burst"`
}

func defaults() map[string]any {
	return map[string]any{
		"http.addr":        ":5000",
		"http.readheader":  5 * time.Second,
		"http.shutdown":    10 * time.Second,
		"database.url":     "db.sqlite",
		"database.timeout": 5 * time.Second,
		"log.level":        "info",
		"metrics.enabled":  true,
		"metrics.token":    "",
		"ratelimit.rps":    20.0,
		"ratelimit.burst":  40,
	}
}

// Load reads config.yaml and .env from the working directory when present.
// Environment keys are SERVICE_SECTION_KEY, e.g. PRODUCTS_DATABASE_URL.
func Load(serviceName string) (*Config, error) {
	return load(serviceName, "config.yaml", ".env")
}

func load(serviceName, configFile, envFile string) (*Config, error) {
	k := koanf.New(".")
	envPrefix := strings.ToUpper(serviceName) + "_"

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("error loading defaults: %w", err)
	}

	if err := k.Load(file.Provider(configFile), yaml.Parser()); err != nil && !os.IsNotExist(err) {
		log.Printf("WARN: error loading YAML config file '%s': %v", configFile, err)
	}

	envTransformer := func(key string) string {
		key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
		return strings.ReplaceAll(key, "_", ".")
	}

	if envFileMap, err := godotenv.Read(envFile); err == nil {
		envMap := make(map[string]any)
		for key, value := range envFileMap {
			if strings.HasPrefix(key, envPrefix) {
				envMap[envTransformer(key)] = value
			}
		}
		if err := k.Load(confmap.Provider(envMap, "."), nil); err != nil {
			log.Printf("WARN: error loading .env config: %v", err)
		}
	} else if !os.IsNotExist(err) {
		log.Printf("WARN: error reading .env file: %v", err)
	}

	if err := k.Load(env.Provider(envPrefix, ".", envTransformer), nil); err != nil {
		log.Printf("WARN: error loading system env vars: %v", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is not configured")
	}
	if c.HTTP.ReadHeader <= 0 {
		return fmt.Errorf("invalid http.readheader timeout: %v", c.HTTP.ReadHeader)
	}
	if c.HTTP.Shutdown <= 0 {
		return fmt.Errorf("invalid http.shutdown timeout: %v", c.HTTP.Shutdown)
	}
	if c.Database.URL == "" {
		return fmt.Errorf("database.url is not configured")
	}
	if c.Database.Timeout <= 0 {
		return fmt.Errorf("invalid database.timeout: %v", c.Database.Timeout)
	}
	if c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0 {
		return fmt.Errorf("invalid rate limit: rps=%v burst=%d", c.RateLimit.RPS, c.RateLimit.Burst)
	}
	return nil
}

func (c *Config) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "http.addr=%s http.readheader=%s http.shutdown=%s ", c.HTTP.Addr, c.HTTP.ReadHeader, c.HTTP.Shutdown)
	fmt.Fprintf(&b, "database.url=%s database.timeout=%s ", maskURL(c.Database.URL), c.Database.Timeout)
	fmt.Fprintf(&b, "log.level=%s metrics.enabled=%t ", c.Log.Level, c.Metrics.Enabled)
	fmt.Fprintf(&b, "ratelimit.rps=%v ratelimit.burst=%d", c.RateLimit.RPS, c.RateLimit.Burst)

	return b.String()
}

// maskURL hides credentials in a database URL.
func maskURL(url string) string {
	scheme, rest, ok := strings.Cut(url, "://")
	if !ok {
		return url
	}
	if _, host, found := strings.Cut(rest, "@"); found {
		return scheme + "://****@" + host
	}
	return url
}
