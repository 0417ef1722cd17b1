package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/aluiziolira/go-scrape-quotes/calendar"
	"github.com/aluiziolira/go-scrape-quotes/models"
	"gopkg.in/yaml.v3"
)

// Duplicate policies applied when some tickers already exist for the date.
const (
	DuplicatePolicyBlock  = "block"
	DuplicatePolicyFilter = "filter"
)

// Config holds scraper configuration.
type Config struct {
	BaseURL          string        `yaml:"base_url"`
	Parallelism      int           `yaml:"parallelism"`
	Delay            time.Duration `yaml:"delay"`
	RandomDelay      time.Duration `yaml:"random_delay"`
	Timeout          time.Duration `yaml:"timeout"`
	MaxRetries       int           `yaml:"max_retries"`
	RetryBackoff     time.Duration `yaml:"retry_backoff"`
	RetryBackoffMax  time.Duration `yaml:"retry_backoff_max"`
	UserAgent        string        `yaml:"user_agent"`
	RespectRobotsTxt bool          `yaml:"respect_robots_txt"`
	PageCacheSize    int           `yaml:"page_cache_size"`
	PageCacheTTL     time.Duration `yaml:"page_cache_ttl"`

	OutputFile   string `yaml:"output_file"`
	OutputFormat string `yaml:"output_format"` // csv, json, or dual
	DatabasePath string `yaml:"database_path"`
	MetricsAddr  string `yaml:"metrics_addr"`
	Verbose      bool   `yaml:"verbose"`

	Holidays        []string              `yaml:"holidays"`
	Tickers         []models.TickerOption `yaml:"tickers"`
	DuplicatePolicy string                `yaml:"duplicate_policy"`
	AllowPartial    bool                  `yaml:"allow_partial"`
	DedupeMaxSize   int                   `yaml:"dedupe_max_size"`

	JobWorkers     int           `yaml:"job_workers"`
	JobIDPrefixLen int           `yaml:"job_id_prefix_len"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	ScheduleCron   string        `yaml:"schedule_cron"`
}

// DefaultConfig returns conservative defaults for the quote site.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:          "https://finance.yahoo.com",
		Parallelism:      1,
		Delay:            0,
		RandomDelay:      0,
		Timeout:          15 * time.Second,
		MaxRetries:       2,
		RetryBackoff:     200 * time.Millisecond,
		RetryBackoffMax:  2 * time.Second,
		UserAgent:        "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		RespectRobotsTxt: false,
		PageCacheSize:    256,
		PageCacheTTL:     15 * time.Minute,
		OutputFile:       "output/quotes.csv",
		OutputFormat:     "csv",
		DatabasePath:     "data/quotes.db",
		Verbose:          false,
		Holidays:         append([]string(nil), calendar.DefaultHolidays...),
		DuplicatePolicy:  DuplicatePolicyBlock,
		AllowPartial:     true,
		DedupeMaxSize:    10000,
		JobWorkers:       4,
		JobIDPrefixLen:   0,
		PollInterval:     2 * time.Second,
		ScheduleCron:     "0 30 18 * * 1-5",
	}
}

// Load applies a YAML file on top of DefaultConfig. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	return cfg, nil
}

// Calendar builds the trading calendar from the configured holidays.
func (c *Config) Calendar() (*calendar.Calendar, error) {
	return calendar.Parse(c.Holidays)
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}

	if c.Parallelism <= 0 {
		return fmt.Errorf("parallelism must be positive")
	}
	if c.Delay < 0 {
		return fmt.Errorf("delay cannot be negative")
	}
	if c.RandomDelay < 0 {
		return fmt.Errorf("random delay cannot be negative")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.PageCacheSize < 0 {
		return fmt.Errorf("page cache size cannot be negative")
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	if c.OutputFormat != "csv" && c.OutputFormat != "json" && c.OutputFormat != "dual" {
		return fmt.Errorf("output format must be csv, json, or dual")
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if _, err := c.Calendar(); err != nil {
		return fmt.Errorf("invalid holidays: %w", err)
	}
	for _, opt := range c.Tickers {
		if opt.Value == "" {
			return fmt.Errorf("ticker option %q has no value", opt.Label)
		}
	}
	if c.DuplicatePolicy != DuplicatePolicyBlock && c.DuplicatePolicy != DuplicatePolicyFilter {
		return fmt.Errorf("duplicate policy must be block or filter")
	}
	if c.DedupeMaxSize <= 0 {
		return fmt.Errorf("dedupe max size must be positive")
	}
	if c.JobWorkers <= 0 {
		return fmt.Errorf("job workers must be positive")
	}
	if c.JobIDPrefixLen < 0 {
		return fmt.Errorf("job id prefix length cannot be negative")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}

	return nil
}
