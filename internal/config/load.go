package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// matches $(VAR_NAME)
var envPattern = regexp.MustCompile(`\$\(([A-Za-z0-9_]+)\)`)

// replaces $(VAR) with os.Getenv(VAR)
func expandEnvVars(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(m string) string {
		key := mapEnvKey(envPattern.FindStringSubmatch(m)[1])
		return os.Getenv(key)
	})
}

// Load reads, expands, defaults and validates the YAML config at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse is Load without the file read.
func Parse(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling yaml: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Catalog.Backend == "" {
		c.Catalog.Backend = "file"
	}
	if c.Catalog.Path == "" {
		switch c.Catalog.Backend {
		case "file":
			c.Catalog.Path = "/var/lib/snaprotate/catalog.yaml"
		case "badger":
			c.Catalog.Path = "/var/lib/snaprotate/catalog"
		}
	}
	if c.Lock.Dir == "" {
		c.Lock.Dir = os.TempDir()
	}
	if c.Executor.Kind == "" {
		c.Executor.Kind = "rsync"
	}
	if c.Executor.RsyncPath == "" {
		c.Executor.RsyncPath = "rsync"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.HTTP.Listen == "" {
		c.HTTP.Listen = "127.0.0.1:9417"
	}
	if c.ConfigReload.Method == "" {
		c.ConfigReload.Method = "auto"
	}
	if c.ConfigReload.PollInterval == 0 {
		c.ConfigReload.PollInterval = 5 * time.Second
	}
	if c.ConfigReload.Debounce == 0 {
		c.ConfigReload.Debounce = 500 * time.Millisecond
	}
	if c.ConfigReload.Stability == 0 {
		c.ConfigReload.Stability = 200 * time.Millisecond
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())
