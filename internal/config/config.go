package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel     string             `yaml:"log_level"`
	TDAmeritrade TDAmeritradeConfig `yaml:"td_ameritrade"`
	Robinhood    RobinhoodConfig    `yaml:"robinhood"`
	Yahoo        YahooConfig        `yaml:"yahoo"`
	IBKR         IBKRConfig         `yaml:"ibkr"`
	Stream       StreamConfig       `yaml:"stream"`
	NATS         NATSConfig         `yaml:"nats"`
	Health       HealthConfig       `yaml:"health"`
}

type TDAmeritradeConfig struct {
	Enabled     bool   `yaml:"enabled"`
	APIKey      string `yaml:"api_key"`
	RedirectURI string `yaml:"redirect_uri"`
	AccountID   string `yaml:"account_id"`
	TokenPath   string `yaml:"token_path"`
	BaseURL     string `yaml:"base_url"`
	AuthURL     string `yaml:"auth_url"`
	TokenURL    string `yaml:"token_url"`
	// RefreshToken switches the login fallback to the non-interactive flow.
	RefreshToken    string `yaml:"refresh_token"`
	BrowserHeadless bool   `yaml:"browser_headless"`
}

type RobinhoodConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	TOTPSecret string `yaml:"totp_secret"`
	TokenPath  string `yaml:"token_path"`
	BaseURL    string `yaml:"base_url"`
}

type YahooConfig struct {
	Enabled bool `yaml:"enabled"`
}

type IBKRConfig struct {
	Enabled     bool   `yaml:"enabled"`
	GatewayURL  string `yaml:"gateway_url"`
	InsecureTLS bool   `yaml:"insecure_tls"`
}

type StreamConfig struct {
	Enabled bool   `yaml:"enabled"`
	FeedID  string `yaml:"feed_id"`
	// QOSLevel 0 (express) through 5 (delayed).
	QOSLevel int `yaml:"qos_level"`
}

type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

type HealthConfig struct {
	Addr string `yaml:"addr"`
}

func defaults() *Config {
	return &Config{
		LogLevel: "info",
		TDAmeritrade: TDAmeritradeConfig{
			Enabled:     true,
			RedirectURI: "https://127.0.0.1",
			TokenPath:   "tokens/td_ameritrade.json",
			BaseURL:     "https://api.tdameritrade.com",
			AuthURL:     "https://auth.tdameritrade.com/auth",
			TokenURL:    "https://api.tdameritrade.com/v1/oauth2/token",
		},
		Robinhood: RobinhoodConfig{
			TokenPath: "tokens/robinhood.json",
			BaseURL:   "https://api.robinhood.com",
		},
		Yahoo: YahooConfig{Enabled: true},
		IBKR: IBKRConfig{
			GatewayURL:  "https://localhost:5000/v1/api",
			InsecureTLS: true,
		},
		Stream: StreamConfig{FeedID: "SPY"},
		NATS:   NATSConfig{Subject: "marketdata.book"},
		Health: HealthConfig{Addr: ":9090"},
	}
}

// Load reads the optional YAML file named by GTI_CONFIG and applies
// environment overrides on top of it.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("GTI_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyEnv() {
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)

	td := &c.TDAmeritrade
	td.Enabled = getBool("TD_ENABLED", td.Enabled)
	td.APIKey = getEnv("TD_API_KEY", td.APIKey)
	td.RedirectURI = getEnv("TD_REDIRECT_URI", td.RedirectURI)
	td.AccountID = getEnv("TD_ACCOUNT_ID", td.AccountID)
	td.TokenPath = getEnv("TD_TOKEN_PATH", td.TokenPath)
	td.BaseURL = getEnv("TD_BASE_URL", td.BaseURL)
	td.RefreshToken = getEnv("TD_REFRESH_TOKEN", td.RefreshToken)
	td.BrowserHeadless = getBool("TD_BROWSER_HEADLESS", td.BrowserHeadless)

	rh := &c.Robinhood
	rh.Enabled = getBool("RH_ENABLED", rh.Enabled)
	rh.Username = getEnv("RH_USERNAME", rh.Username)
	rh.Password = getEnv("RH_PASSWORD", rh.Password)
	rh.TOTPSecret = getEnv("RH_TOTP_SECRET", rh.TOTPSecret)
	rh.TokenPath = getEnv("RH_TOKEN_PATH", rh.TokenPath)

	c.Yahoo.Enabled = getBool("YF_ENABLED", c.Yahoo.Enabled)

	c.IBKR.Enabled = getBool("IB_ENABLED", c.IBKR.Enabled)
	c.IBKR.GatewayURL = getEnv("IB_GATEWAY_URL", c.IBKR.GatewayURL)

	c.Stream.Enabled = getBool("STREAM_ENABLED", c.Stream.Enabled)
	c.Stream.FeedID = getEnv("STREAM_FEED_ID", c.Stream.FeedID)

	c.NATS.URL = getEnv("NATS_URL", c.NATS.URL)
	c.NATS.Subject = getEnv("NATS_SUBJECT", c.NATS.Subject)

	c.Health.Addr = getEnv("HEALTH_ADDR", c.Health.Addr)
}

// Validate reports the first configuration error.
func (c *Config) Validate() error {
	if c.TDAmeritrade.Enabled {
		if c.TDAmeritrade.APIKey == "" {
			return errors.New("td_ameritrade.api_key is required")
		}
		if c.TDAmeritrade.TokenPath == "" {
			return errors.New("td_ameritrade.token_path is required")
		}
		if !strings.HasPrefix(c.TDAmeritrade.RedirectURI, "http") {
			return fmt.Errorf("td_ameritrade.redirect_uri %q must be an http(s) url", c.TDAmeritrade.RedirectURI)
		}
	}

	if c.Robinhood.Enabled && (c.Robinhood.Username == "" || c.Robinhood.Password == "") {
		return errors.New("robinhood.username and robinhood.password are required")
	}

	if c.IBKR.Enabled && c.IBKR.GatewayURL == "" {
		return errors.New("ibkr.gateway_url is required")
	}

	if c.Stream.Enabled {
		if !c.TDAmeritrade.Enabled {
			return errors.New("stream requires td_ameritrade to be enabled")
		}
		if c.Stream.FeedID == "" {
			return errors.New("stream.feed_id is required")
		}
		if c.Stream.QOSLevel < 0 || c.Stream.QOSLevel > 5 {
			return fmt.Errorf("stream.qos_level %d out of range 0-5", c.Stream.QOSLevel)
		}
	}

	if c.NATS.URL != "" && c.NATS.Subject == "" {
		return errors.New("nats.subject is required when nats.url is set")
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}
