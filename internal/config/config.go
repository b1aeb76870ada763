// Package config loads server and CLI settings from an optional YAML file,
// a .env file and the environment, in increasing precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPort avoids clashing with other local services on 8080.
const DefaultPort = "8111"

// Config represents the application configuration.
type Config struct {
	Port           string   `yaml:"port"`
	Env            string   `yaml:"env"`
	UseMemoryStore bool     `yaml:"useMemoryStore"`
	SkipAuth       bool     `yaml:"skipAuth"`
	ProjectID      string   `yaml:"projectId"`
	AllowedOrigins []string `yaml:"allowedOrigins"`
	// AppBaseURL prefixes notification links.
	AppBaseURL string `yaml:"appBaseUrl"`

	Recurring RecurringConfig `yaml:"recurring"`
	Algolia   AlgoliaConfig   `yaml:"algolia"`
	Export    ExportConfig    `yaml:"export"`
}

// RecurringConfig controls the scheduler endpoint.
type RecurringConfig struct {
	// SchedulerToken must accompany ProcessAllRecurring calls. Empty disables
	// the endpoint.
	SchedulerToken string        `yaml:"schedulerToken"`
	MinInterval    time.Duration `yaml:"minInterval"`
}

// AlgoliaConfig enables hosted transaction search when AppID and APIKey are
// set.
type AlgoliaConfig struct {
	AppID     string `yaml:"appId"`
	APIKey    string `yaml:"apiKey"`
	IndexName string `yaml:"indexName"`
}

func (a AlgoliaConfig) Enabled() bool {
	return a.AppID != "" && a.APIKey != ""
}

// ExportConfig names the bucket backups are written to.
type ExportConfig struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
}

// Default returns the settings used when nothing overrides them.
func Default() *Config {
	return &Config{
		Port: DefaultPort,
		Env:  "development",
		AllowedOrigins: []string{
			"http://localhost:5173",
			"http://127.0.0.1:5173",
		},
		Recurring: RecurringConfig{MinInterval: 30 * time.Second},
		Export:    ExportConfig{Prefix: "backups"},
	}
}

// Load builds the configuration. path names a YAML file and may be empty;
// FINCONTROL_CONFIG is used when it is. A .env file in the working
// directory is loaded if present.
func Load(path string) (*Config, error) {
	// Missing .env is fine; variables may come from the real environment.
	_ = godotenv.Load()

	cfg := Default()

	if path == "" {
		path = os.Getenv("FINCONTROL_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Port, "PORT")
	setString(&c.Env, "ENV")
	setString(&c.ProjectID, "GOOGLE_CLOUD_PROJECT")
	setString(&c.AppBaseURL, "APP_BASE_URL")
	setString(&c.Recurring.SchedulerToken, "SCHEDULER_TOKEN")
	setString(&c.Algolia.AppID, "ALGOLIA_APP_ID")
	setString(&c.Algolia.APIKey, "ALGOLIA_API_KEY")
	setString(&c.Algolia.IndexName, "ALGOLIA_INDEX_NAME")
	setString(&c.Export.Bucket, "EXPORT_BUCKET")
	setString(&c.Export.Prefix, "EXPORT_PREFIX")

	if v := os.Getenv("USE_MEMORY_STORE"); v != "" {
		c.UseMemoryStore = v == "true"
	}
	if c.Env == "local" {
		c.UseMemoryStore = true
	}
	if v := os.Getenv("SKIP_AUTH"); v != "" {
		c.SkipAuth = v == "true"
	}
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		c.AllowedOrigins = splitList(v)
	}
	if v := os.Getenv("RECURRING_MIN_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid RECURRING_MIN_INTERVAL: %w", err)
		}
		c.Recurring.MinInterval = d
	}
	return nil
}

// Validate checks settings that would otherwise fail at first use.
func (c *Config) Validate() error {
	port, err := strconv.Atoi(c.Port)
	if err != nil || port <= 0 || port > 65535 {
		return fmt.Errorf("invalid port %q", c.Port)
	}
	if !c.UseMemoryStore && c.ProjectID == "" {
		return fmt.Errorf("missing required configuration: GOOGLE_CLOUD_PROJECT (or set USE_MEMORY_STORE=true)")
	}
	if c.Recurring.MinInterval < 0 {
		return fmt.Errorf("recurring.minInterval must not be negative")
	}
	if (c.Algolia.AppID == "") != (c.Algolia.APIKey == "") {
		return fmt.Errorf("algolia appId and apiKey must be set together")
	}
	return nil
}

// IsProduction reports whether the server runs against real backends.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
