package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Symbols           []string      `yaml:"symbols"`
	ChangeThreshold   string        `yaml:"change_threshold"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	NotificationEmail string        `yaml:"notification_email"`
	Telegram          struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
		Commands bool   `yaml:"commands"`
	} `yaml:"telegram"`
	Webhook struct {
		URL string `yaml:"url"`
	} `yaml:"webhook"`
	Topic struct {
		ID         string `yaml:"id"`
		HistoryLen int64  `yaml:"history_len"`
	} `yaml:"topic"`
	CoinGecko struct {
		BaseURL   string `yaml:"base_url"`
		APIKey    string `yaml:"api_key"`
		Precision int    `yaml:"precision"`
	} `yaml:"coingecko"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`
	Feed struct {
		Interval    time.Duration `yaml:"interval"`
		BatchSize   int           `yaml:"batch_size"`
		MaxAttempts int           `yaml:"max_attempts"`
	} `yaml:"feed"`
	DeadLetter struct {
		Retention time.Duration `yaml:"retention"`
		PurgeCron string        `yaml:"purge_cron"`
	} `yaml:"dead_letter"`
	Notify struct {
		Retries int `yaml:"retries"`
	} `yaml:"notify"`
	Proxy string `yaml:"proxy"`
}

// Load reads an optional .env file and the YAML config, then applies environment variable overrides.
func Load(path string) (*Config, error) {
	envFile := ".env"
	if v := os.Getenv("ENV_FILE"); v != "" {
		envFile = v
	}
	// godotenv never overrides variables that are already set.
	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Symbols = SplitSymbols(v)
	}
	if v := os.Getenv("CHANGE"); v != "" {
		c.ChangeThreshold = strings.TrimSpace(v)
	}
	if v := os.Getenv("EVENT_INTERVAL_MINUTES"); v != "" {
		minutes, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("parse EVENT_INTERVAL_MINUTES: %w", err)
		}
		if minutes < 1 {
			return fmt.Errorf("EVENT_INTERVAL_MINUTES must be at least 1, got %d", minutes)
		}
		c.PollInterval = time.Duration(minutes) * time.Minute
	}
	if v := os.Getenv("EMAIL"); v != "" {
		c.NotificationEmail = v
	}
	if v := os.Getenv("TELEGRAM_API_KEY"); v != "" {
		c.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		c.Telegram.ChatID = v
	}
	if v := os.Getenv("DISCORD_WEBHOOK"); v != "" {
		c.Webhook.URL = v
	}
	if v := os.Getenv("TOPIC_ID"); v != "" {
		c.Topic.ID = v
	}
	if v := os.Getenv("COINGECKO_BASE_URL"); v != "" {
		c.CoinGecko.BaseURL = v
	}
	if v := os.Getenv("COINGECKO_API_KEY"); v != "" {
		c.CoinGecko.APIKey = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		c.Database.SQLitePath = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		c.HTTP.Addr = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		c.Proxy = v
	}
	return nil
}

func (c *Config) applyDefaults() {
	if len(c.Symbols) == 0 {
		c.Symbols = []string{"bitcoin"}
	}
	if c.ChangeThreshold == "" {
		c.ChangeThreshold = "5"
	}
	if c.PollInterval == 0 {
		c.PollInterval = 5 * time.Minute
	}
	if c.Topic.ID == "" {
		c.Topic.ID = "cryptowatch"
	}
	if c.Topic.HistoryLen == 0 {
		c.Topic.HistoryLen = 1000
	}
	if c.CoinGecko.BaseURL == "" {
		c.CoinGecko.BaseURL = "https://api.coingecko.com/api/v3"
	}
	if c.CoinGecko.Precision == 0 {
		c.CoinGecko.Precision = 4
	}
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = "data/cryptowatch.db"
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.Feed.Interval == 0 {
		c.Feed.Interval = 2 * time.Second
	}
	if c.Feed.BatchSize == 0 {
		c.Feed.BatchSize = 100
	}
	if c.Feed.MaxAttempts == 0 {
		c.Feed.MaxAttempts = 3
	}
	if c.DeadLetter.Retention == 0 {
		c.DeadLetter.Retention = 72 * time.Hour
	}
	if c.DeadLetter.PurgeCron == "" {
		c.DeadLetter.PurgeCron = "0 0 3 * * *"
	}
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	if len(c.Symbols) == 0 {
		return fmt.Errorf("symbols must not be empty")
	}
	if _, err := c.Threshold(); err != nil {
		return err
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}
	if c.Topic.ID == "" {
		return fmt.Errorf("topic.id is required")
	}
	if c.Feed.BatchSize <= 0 {
		return fmt.Errorf("feed.batch_size must be positive")
	}
	if c.Feed.MaxAttempts <= 0 {
		return fmt.Errorf("feed.max_attempts must be positive")
	}
	if c.Notify.Retries < 0 {
		return fmt.Errorf("notify.retries must not be negative")
	}
	return nil
}

// Threshold parses change_threshold as a non-negative percentage.
func (c *Config) Threshold() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(c.ChangeThreshold)
	if err != nil {
		return decimal.Zero, fmt.Errorf("change_threshold %q: %w", c.ChangeThreshold, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("change_threshold must not be negative")
	}
	return d, nil
}

// TelegramEnabled reports whether both bot token and chat id are configured.
func (c *Config) TelegramEnabled() bool {
	return c.Telegram.BotToken != "" && c.Telegram.ChatID != ""
}

// WebhookEnabled reports whether the generic webhook URL is configured.
func (c *Config) WebhookEnabled() bool {
	return c.Webhook.URL != ""
}

// SplitSymbols parses a comma separated symbol list, dropping blanks.
func SplitSymbols(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
