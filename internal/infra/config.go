package infra

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds every application setting. Secrets can be overridden through
// environment variables after the file is loaded.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	API struct {
		BaseURL    string  `yaml:"base_url"`
		StreamURL  string  `yaml:"stream_url"`
		Token      string  `yaml:"token"`
		AccountID  string  `yaml:"account_id"`
		TimeoutSec int     `yaml:"timeout_sec"`
		RateBurst  int     `yaml:"rate_burst"`
		RatePerSec float64 `yaml:"rate_per_sec"`
		MaxWaitSec int     `yaml:"max_wait_sec"`
	} `yaml:"api"`

	Sync struct {
		PollIntervalSec  int `yaml:"poll_interval_sec"`
		ClusterWindowMin int `yaml:"cluster_window_min"`
		QuoteTTLSec      int `yaml:"quote_ttl_sec"`
		PageSize         int `yaml:"page_size"`
	} `yaml:"sync"`

	Circuit struct {
		FailureThreshold int `yaml:"failure_threshold"`
		WindowSec        int `yaml:"window_sec"`
		ResetTimeoutSec  int `yaml:"reset_timeout_sec"`
	} `yaml:"circuit"`

	Stream struct {
		MaxRetries     int `yaml:"max_retries"`
		ReadTimeoutSec int `yaml:"read_timeout_sec"`
	} `yaml:"stream"`

	Server struct {
		Addr           string   `yaml:"addr"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"server"`

	Storage struct {
		Path string `yaml:"path"` // empty = per-user data dir
	} `yaml:"storage"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// LoadConfig reads and parses the configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	overrideWithEnv(&cfg)
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if c.API.BaseURL == "" || (!hasPrefix(c.API.BaseURL, "http://") && !hasPrefix(c.API.BaseURL, "https://")) {
		return fmt.Errorf("invalid API base URL: %s", c.API.BaseURL)
	}
	if c.API.StreamURL == "" || (!hasPrefix(c.API.StreamURL, "ws://") && !hasPrefix(c.API.StreamURL, "wss://")) {
		return fmt.Errorf("invalid stream URL: %s", c.API.StreamURL)
	}
	if c.API.Token == "" {
		return fmt.Errorf("API token is required (set TRADESYNC_API_TOKEN)")
	}
	if c.Sync.PollIntervalSec <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if c.Sync.ClusterWindowMin <= 0 {
		return fmt.Errorf("cluster window must be positive")
	}
	if c.Circuit.FailureThreshold <= 0 {
		return fmt.Errorf("circuit failure threshold must be positive")
	}
	return nil
}

func applyDefaults(c *Config) {
	if c.API.TimeoutSec == 0 {
		c.API.TimeoutSec = 10
	}
	if c.API.RateBurst == 0 {
		c.API.RateBurst = 5
	}
	if c.API.RatePerSec == 0 {
		c.API.RatePerSec = 2
	}
	if c.API.MaxWaitSec == 0 {
		c.API.MaxWaitSec = 15
	}
	if c.Sync.ClusterWindowMin == 0 {
		c.Sync.ClusterWindowMin = 5
	}
	if c.Sync.QuoteTTLSec == 0 {
		c.Sync.QuoteTTLSec = 5
	}
	if c.Sync.PageSize == 0 {
		c.Sync.PageSize = 100
	}
	if c.Circuit.WindowSec == 0 {
		c.Circuit.WindowSec = 60
	}
	if c.Circuit.ResetTimeoutSec == 0 {
		c.Circuit.ResetTimeoutSec = 30
	}
	if c.Stream.MaxRetries == 0 {
		c.Stream.MaxRetries = 10
	}
	if c.Stream.ReadTimeoutSec == 0 {
		c.Stream.ReadTimeoutSec = 60
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[0:len(prefix)] == prefix
}

// overrideWithEnv replaces sensitive values from environment variables.
func overrideWithEnv(cfg *Config) {
	if token := os.Getenv("TRADESYNC_API_TOKEN"); token != "" {
		cfg.API.Token = token
	}
	if account := os.Getenv("TRADESYNC_ACCOUNT_ID"); account != "" {
		cfg.API.AccountID = account
	}
}
