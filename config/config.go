package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultSymbol        = "ETHUSDTM"
	DefaultDepthLevel    = 5
	DefaultTopicTemplate = "/contractMarket/level2Depth%d:%s"
	DefaultSubscribeID   = uint64(1545910660740)
	DefaultTokenURL      = "https://api.kucoin.com/api/v1/bullet-public"
	DefaultWSURL         = "wss://ws-api-spot.kucoin.com/"
)

// Config holds the application settings
type Config struct {
	Kucoin      KucoinConfig
	Feed        FeedConfig
	Reconnect   ReconnectConfig
	LogLevel    string
	MetricsAddr string
}

// KucoinConfig holds the exchange endpoints.
type KucoinConfig struct {
	TokenURL     string
	WSURL        string
	HTTPTimeout  time.Duration
	PingInterval time.Duration
}

// FeedConfig identifies the instrument and depth channel to subscribe to.
type FeedConfig struct {
	Symbol        string
	DepthLevel    int
	TopicTemplate string
	SubscribeID   uint64
}

// ReconnectConfig drives the optional session supervisor.
type ReconnectConfig struct {
	Enabled     bool
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Topic renders the channel identifier, e.g. /contractMarket/level2Depth5:ETHUSDTM.
func (f FeedConfig) Topic() string {
	return fmt.Sprintf(f.TopicTemplate, f.DepthLevel, f.Symbol)
}

// Default returns the configuration used when no environment is set.
func Default() *Config {
	return &Config{
		Kucoin: KucoinConfig{
			TokenURL:    DefaultTokenURL,
			WSURL:       DefaultWSURL,
			HTTPTimeout: 10 * time.Second,
		},
		Feed: FeedConfig{
			Symbol:        DefaultSymbol,
			DepthLevel:    DefaultDepthLevel,
			TopicTemplate: DefaultTopicTemplate,
			SubscribeID:   DefaultSubscribeID,
		},
		Reconnect: ReconnectConfig{
			MaxAttempts: 5,
			BaseDelay:   500 * time.Millisecond,
			MaxDelay:    30 * time.Second,
		},
		LogLevel: "info",
	}
}

// Load reads the configuration from the environment. A variable that is set
// but does not parse is an error, never a silent fallback to the default.
func Load() (*Config, error) {
	// Load .env when present
	_ = godotenv.Load()

	def := Default()
	env := &envReader{}
	config := &Config{
		Kucoin: KucoinConfig{
			TokenURL:     getEnvOrDefault("KUCOIN_TOKEN_URL", def.Kucoin.TokenURL),
			WSURL:        getEnvOrDefault("KUCOIN_WS_URL", def.Kucoin.WSURL),
			HTTPTimeout:  env.parseSeconds("KUCOIN_HTTP_TIMEOUT_SEC", def.Kucoin.HTTPTimeout),
			PingInterval: env.parseSeconds("KUCOIN_PING_INTERVAL_SEC", 0),
		},
		Feed: FeedConfig{
			Symbol:        strings.ToUpper(getEnvOrDefault("KUCOIN_SYMBOL", def.Feed.Symbol)),
			DepthLevel:    env.parseInt("KUCOIN_DEPTH_LEVEL", def.Feed.DepthLevel),
			TopicTemplate: getEnvOrDefault("KUCOIN_TOPIC_TEMPLATE", def.Feed.TopicTemplate),
			SubscribeID:   env.parseUint("KUCOIN_SUBSCRIBE_ID", def.Feed.SubscribeID),
		},
		Reconnect: ReconnectConfig{
			Enabled:     env.parseBool("RECONNECT_ENABLED", false),
			MaxAttempts: env.parseInt("RECONNECT_MAX_ATTEMPTS", def.Reconnect.MaxAttempts),
			BaseDelay:   env.parseMillis("RECONNECT_BASE_DELAY_MS", def.Reconnect.BaseDelay),
			MaxDelay:    env.parseMillis("RECONNECT_MAX_DELAY_MS", def.Reconnect.MaxDelay),
		},
		LogLevel:    getEnvOrDefault("LOG_LEVEL", def.LogLevel),
		MetricsAddr: strings.TrimSpace(os.Getenv("METRICS_ADDR")),
	}
	if env.err != nil {
		return nil, env.err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks the fields the feed session depends on.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Feed.Symbol) == "" {
		return fmt.Errorf("symbol must not be empty")
	}
	if c.Feed.DepthLevel != 5 && c.Feed.DepthLevel != 50 {
		return fmt.Errorf("unsupported depth level %d (allowed: 5, 50)", c.Feed.DepthLevel)
	}
	if strings.Count(c.Feed.TopicTemplate, "%") != 2 || !strings.Contains(c.Feed.TopicTemplate, "%d") || !strings.Contains(c.Feed.TopicTemplate, "%s") {
		return fmt.Errorf("topic template %q must contain one %%d and one %%s", c.Feed.TopicTemplate)
	}
	if strings.Index(c.Feed.TopicTemplate, "%d") > strings.Index(c.Feed.TopicTemplate, "%s") {
		return fmt.Errorf("topic template %q must place depth before symbol", c.Feed.TopicTemplate)
	}
	if c.Feed.SubscribeID == 0 {
		return fmt.Errorf("subscribe id must be positive")
	}
	if c.Kucoin.TokenURL == "" || c.Kucoin.WSURL == "" {
		return fmt.Errorf("kucoin endpoints must not be empty")
	}
	if c.Kucoin.PingInterval < 0 {
		return fmt.Errorf("ping interval must not be negative")
	}
	if c.Reconnect.Enabled && c.Reconnect.MaxAttempts <= 0 {
		return fmt.Errorf("reconnect max attempts must be positive")
	}
	return nil
}

// getEnvOrDefault returns the environment value or the default
func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// envReader parses typed variables and keeps every parse failure.
type envReader struct {
	err error
}

func (r *envReader) fail(key, raw, want string) {
	r.err = errors.Join(r.err, fmt.Errorf("%s=%q: want %s", key, raw, want))
}

func (r *envReader) parseInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		r.fail(key, raw, "an integer")
		return def
	}
	return v
}

func (r *envReader) parseUint(key string, def uint64) uint64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		r.fail(key, raw, "a non-negative integer")
		return def
	}
	return v
}

func (r *envReader) parseBool(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	switch strings.ToLower(raw) {
	case "":
		return def
	case "1", "true", "yes", "y":
		return true
	case "0", "false", "no", "n":
		return false
	default:
		r.fail(key, raw, "a boolean")
		return def
	}
}

func (r *envReader) parseSeconds(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		r.fail(key, raw, "a non-negative number of seconds")
		return def
	}
	return time.Duration(v) * time.Second
}

func (r *envReader) parseMillis(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		r.fail(key, raw, "a positive number of milliseconds")
		return def
	}
	return time.Duration(v) * time.Millisecond
}
