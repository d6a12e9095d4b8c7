package engage

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level engine configuration. The zero value is usable:
// every section has working defaults applied at construction.
type Config struct {
	Limits   LimitsConfig   `yaml:"limits"`
	Fetch    FetchConfig    `yaml:"fetch"`
	Solver   SolverConfig   `yaml:"solver"`
	Browser  BrowserConfig  `yaml:"browser"`
	Identity IdentityConfig `yaml:"identity"`
}

// LimitsConfig caps outbound request rates.
type LimitsConfig struct {
	GlobalQPS    float64 `yaml:"global_qps"`     // ceiling across all domains. Default: 5.
	PerDomainQPS float64 `yaml:"per_domain_qps"` // ceiling per destination domain. Default: 2.
}

// FetchConfig controls page retrieval.
type FetchConfig struct {
	Timeout   time.Duration `yaml:"timeout"`   // per-request. Default: 15s.
	MaxBytes  int64         `yaml:"max_bytes"` // response body cap. Default: 10MB.
	UserAgent string        `yaml:"user_agent"`
}

// SolverConfig selects and tunes the external captcha solving service.
// An empty Provider disables solving; detected challenges then fail the
// attempt instead of being submitted unsolved.
type SolverConfig struct {
	Provider         string        `yaml:"provider"` // "2captcha" | "anticaptcha" | ""
	APIKey           string        `yaml:"api_key"`
	BaseURL          string        `yaml:"base_url"`      // override for testing; default per provider
	PollInterval     time.Duration `yaml:"poll_interval"` // Default: 10s.
	ImagePolls       int           `yaml:"image_polls"`       // Default: 30 (5 min).
	InteractivePolls int           `yaml:"interactive_polls"` // Default: 60 (10 min).
	HTTPTimeout      time.Duration `yaml:"http_timeout"`      // Default: 30s.
}

// BrowserConfig controls the scripted backend's Chrome lifecycle.
type BrowserConfig struct {
	// Remote is the WebSocket URL of an external Chrome instance.
	// Empty = launch a local Chrome on first scripted submission.
	Remote           string        `yaml:"remote"`
	NavTimeout       time.Duration `yaml:"nav_timeout"` // Default: 30s.
	SettleWait       time.Duration `yaml:"settle_wait"` // post-load delay for script-rendered content. Default: 3s.
	ResourceBlocking []string      `yaml:"resource_blocking"`
	Disabled         bool          `yaml:"disabled"` // skip the scripted backend entirely
}

// IdentityConfig is the placeholder identity used to fill role fields.
type IdentityConfig struct {
	Name    string `yaml:"name"`
	Email   string `yaml:"email"`
	Phone   string `yaml:"phone"`
	Company string `yaml:"company"`
	Website string `yaml:"website"`
}

func (c *Config) applyDefaults() {
	if c.Limits.GlobalQPS <= 0 {
		c.Limits.GlobalQPS = 5
	}
	if c.Limits.PerDomainQPS <= 0 {
		c.Limits.PerDomainQPS = 2
	}
	if c.Fetch.Timeout <= 0 {
		c.Fetch.Timeout = 15 * time.Second
	}
	if c.Fetch.MaxBytes <= 0 {
		c.Fetch.MaxBytes = 10 << 20
	}
	if c.Fetch.UserAgent == "" {
		c.Fetch.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	}
	if c.Solver.PollInterval <= 0 {
		c.Solver.PollInterval = 10 * time.Second
	}
	if c.Solver.ImagePolls <= 0 {
		c.Solver.ImagePolls = 30
	}
	if c.Solver.InteractivePolls <= 0 {
		c.Solver.InteractivePolls = 60
	}
	if c.Solver.HTTPTimeout <= 0 {
		c.Solver.HTTPTimeout = 30 * time.Second
	}
	if c.Browser.NavTimeout <= 0 {
		c.Browser.NavTimeout = 30 * time.Second
	}
	if c.Browser.SettleWait <= 0 {
		c.Browser.SettleWait = 3 * time.Second
	}
	if c.Browser.ResourceBlocking == nil {
		c.Browser.ResourceBlocking = []string{"images", "fonts", "media"}
	}
	if c.Identity.Name == "" {
		c.Identity.Name = "John Smith"
	}
	if c.Identity.Email == "" {
		c.Identity.Email = "john.smith@example.com"
	}
	if c.Identity.Phone == "" {
		c.Identity.Phone = "555-123-4567"
	}
	if c.Identity.Company == "" {
		c.Identity.Company = "SEO Consulting"
	}
	if c.Identity.Website == "" {
		c.Identity.Website = "https://example.com"
	}
}

func defaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// LoadConfigFile reads a YAML configuration file and applies defaults.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}
