package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for the deck configuration.
const (
	DefaultHTTPPort           = 8080
	DefaultSendBuffer         = 64
	DefaultQuoteTTL           = 2 * time.Minute
	DefaultBroadcastInterval  = time.Second
	DefaultBaseLimit          = 10
	DefaultFeedHealthInterval = 15 * time.Second
)

// Config holds the configuration parsed from the `deck:` section of
// config.yaml.
type Config struct {
	Deck DeckConfig `yaml:"deck"`
}

// DeckConfig holds all tickerdeckd settings.
type DeckConfig struct {
	// HTTPPort is the port the REST API and WebSocket hub listen on (default 8080).
	HTTPPort int `yaml:"http_port"`

	// Auth configures how the dashboard API authenticates its clients.
	Auth AuthConfig `yaml:"auth"`

	// Feed configures the upstream quote-feed connection.
	Feed FeedConfig `yaml:"feed"`

	// Quotes controls the in-memory quote cache.
	Quotes QuotesConfig `yaml:"quotes"`

	// Broadcast controls the WebSocket snapshot stream to dashboard clients.
	Broadcast BroadcastConfig `yaml:"broadcast"`

	// Subscriptions holds admission-related defaults.
	Subscriptions SubscriptionsConfig `yaml:"subscriptions"`

	// FeedHealth configures scraping of the feed provider's metrics endpoint.
	FeedHealth FeedHealthConfig `yaml:"feed_health"`

	// Alerts holds rule definitions and webhook delivery targets.
	Alerts AlertsConfig `yaml:"alerts"`
}

// AuthConfig controls client authentication on the dashboard API.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable that holds the expected
	// API key. Used when Mode == "apikey".
	KeyEnv string `yaml:"key_env"`

	// Header is the HTTP header name to read the key from.
	// Defaults to "x-api-key" if empty.
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or the default "x-api-key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return "x-api-key"
}

// FeedConfig configures the upstream quote-feed WebSocket connection.
type FeedConfig struct {
	// Endpoint is the ws:// or wss:// URL of the quote feed. Empty disables
	// the feed connection (the controller still runs; useful in tests).
	Endpoint string `yaml:"endpoint"`

	// SendBuffer is the depth of the outbound control-frame queue. When the
	// queue is full the oldest pending frame is dropped (default 64).
	SendBuffer int `yaml:"send_buffer"`
}

// QuotesConfig controls in-memory quote retention.
type QuotesConfig struct {
	// TTL is how long a quote remains in the cache after its last tick.
	// Default: 2m.
	TTL time.Duration `yaml:"ttl"`
}

// BroadcastConfig controls the dashboard snapshot stream.
type BroadcastConfig struct {
	// Interval is the period between snapshot broadcasts (default 1s).
	Interval time.Duration `yaml:"interval"`
}

// SubscriptionsConfig holds admission-related defaults.
type SubscriptionsConfig struct {
	// DefaultBaseLimit seeds the companion base-limit setting: the default
	// number of additional invisible rows that may hold a channel (default 10).
	DefaultBaseLimit int `yaml:"default_base_limit"`
}

// FeedHealthConfig configures scraping of the feed provider's Prometheus
// metrics endpoint.
type FeedHealthConfig struct {
	// MetricsEndpoint is the http:// or https:// URL of the provider's
	// /metrics endpoint. Empty disables feed-health scraping.
	MetricsEndpoint string `yaml:"metrics_endpoint"`

	// Interval is the scrape period (default 15s).
	Interval time.Duration `yaml:"interval"`

	// Auth configures scrape authentication.
	Auth ScrapeAuthConfig `yaml:"auth"`
}

// ScrapeAuthConfig controls authentication for the feed-health scrape.
type ScrapeAuthConfig struct {
	// Mode is one of: apikey | bearer | none.
	Mode string `yaml:"mode"`

	// Header is the header name for apikey mode (default "x-api-key").
	Header string `yaml:"header"`

	// KeyEnv / TokenEnv name the environment variables holding the secret.
	KeyEnv   string `yaml:"key_env"`
	TokenEnv string `yaml:"token_env"`
}

// Key returns the API key resolved from the environment.
func (s ScrapeAuthConfig) Key() string {
	if s.KeyEnv == "" {
		return ""
	}
	return os.Getenv(s.KeyEnv)
}

// Token returns the bearer token resolved from the environment.
func (s ScrapeAuthConfig) Token() string {
	if s.TokenEnv == "" {
		return ""
	}
	return os.Getenv(s.TokenEnv)
}

// EffectiveHeader returns the configured header name, or the default "x-api-key".
func (s ScrapeAuthConfig) EffectiveHeader() string {
	if s.Header != "" {
		return s.Header
	}
	return "x-api-key"
}

// AlertsConfig holds alerting rules and webhook delivery targets.
type AlertsConfig struct {
	Rules    []AlertRule     `yaml:"rules"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// AlertRule defines one threshold-based alert condition.
type AlertRule struct {
	// Name is the human-readable alert identifier, used as the deduplication key.
	Name string `yaml:"name"`

	// Condition is a simple expression: "fast_fill_pct > 95",
	// "evictions_pm > 120", "feed_uptime_pct < 99", "feed_state == down".
	Condition string `yaml:"condition"`

	// Severity is one of: critical | warning | info.
	Severity string `yaml:"severity"`

	// Cooldown suppresses re-fires for this duration after an alert fires.
	// Defaults to 15 minutes if zero.
	Cooldown time.Duration `yaml:"cooldown"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: teams | slack | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable that holds the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// Load reads and parses the config file at path. Missing fields are filled
// with sensible defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("deck config: read %q: %w", path, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("deck config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("deck config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Deck: DeckConfig{
			HTTPPort: DefaultHTTPPort,
			Feed: FeedConfig{
				SendBuffer: DefaultSendBuffer,
			},
			Quotes: QuotesConfig{
				TTL: DefaultQuoteTTL,
			},
			Broadcast: BroadcastConfig{
				Interval: DefaultBroadcastInterval,
			},
			Subscriptions: SubscriptionsConfig{
				DefaultBaseLimit: DefaultBaseLimit,
			},
			FeedHealth: FeedHealthConfig{
				Interval: DefaultFeedHealthInterval,
			},
		},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	d := &cfg.Deck
	if d.HTTPPort <= 0 || d.HTTPPort > 65535 {
		return fmt.Errorf("deck.http_port %d is out of range [1, 65535]", d.HTTPPort)
	}
	switch d.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("deck.auth.mode %q unknown: want apikey|none", d.Auth.Mode)
	}
	if d.Feed.Endpoint != "" {
		u, err := url.Parse(d.Feed.Endpoint)
		if err != nil {
			return fmt.Errorf("deck.feed.endpoint: %w", err)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return fmt.Errorf("deck.feed.endpoint scheme %q: want ws|wss", u.Scheme)
		}
	}
	if d.Feed.SendBuffer <= 0 {
		return fmt.Errorf("deck.feed.send_buffer must be positive")
	}
	if d.Quotes.TTL < 0 {
		return fmt.Errorf("deck.quotes.ttl must not be negative")
	}
	if d.Broadcast.Interval <= 0 {
		return fmt.Errorf("deck.broadcast.interval must be positive")
	}
	if d.Subscriptions.DefaultBaseLimit < 0 {
		return fmt.Errorf("deck.subscriptions.default_base_limit must not be negative")
	}
	if d.FeedHealth.Interval <= 0 {
		return fmt.Errorf("deck.feed_health.interval must be positive")
	}
	switch d.FeedHealth.Auth.Mode {
	case "apikey", "bearer", "none", "":
	default:
		return fmt.Errorf("deck.feed_health.auth.mode %q unknown: want apikey|bearer|none", d.FeedHealth.Auth.Mode)
	}
	return nil
}
