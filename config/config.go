// Package config provides shared configuration loading for the watcher.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/tailscale/hujson"

	"subscription_watcher/query"
)

const (
	DefaultListen              = ":9090"
	DefaultDatabasePath        = "subscriptions.db"
	DefaultLogLevel            = "info"
	DefaultPollIntervalSeconds = 60
	DefaultMaxPages            = 3
	DefaultPageDelayMS         = 500
	DefaultOIDCCallback        = "/oauth/callback"
	DefaultOIDCAdminClaim      = "groups"
	DefaultPAMService          = "login"
)

// FeedConfig describes the listing API that new submissions are polled from.
type FeedConfig struct {
	URL                 string `json:"url"`
	Token               string `json:"token,omitempty"`
	PollIntervalSeconds int    `json:"poll_interval_seconds,omitempty"`
	MaxPages            int    `json:"max_pages,omitempty"`
	PageDelayMS         int    `json:"page_delay_ms,omitempty"`
}

// GetPollInterval returns the poll interval, defaulting to 60 seconds.
func (f *FeedConfig) GetPollInterval() time.Duration {
	if f.PollIntervalSeconds <= 0 {
		return DefaultPollIntervalSeconds * time.Second
	}
	return time.Duration(f.PollIntervalSeconds) * time.Second
}

// GetMaxPages returns how many pages one poll may read, defaulting to 3.
func (f *FeedConfig) GetMaxPages() int {
	if f.MaxPages <= 0 {
		return DefaultMaxPages
	}
	return f.MaxPages
}

// GetPageDelay returns the minimum delay between page requests.
func (f *FeedConfig) GetPageDelay() time.Duration {
	if f.PageDelayMS <= 0 {
		return DefaultPageDelayMS * time.Millisecond
	}
	return time.Duration(f.PageDelayMS) * time.Millisecond
}

// GotifyConfig holds the Gotify push notification settings.
// Destinations limits match notifications to those destinations; empty
// means all of them.
type GotifyConfig struct {
	Enabled      bool     `json:"enabled"`
	Hostname     string   `json:"hostname"`
	Token        string   `json:"token"`
	Destinations []string `json:"destinations,omitempty"`
}

// IsValid returns true when Gotify is enabled and fully configured.
func (g *GotifyConfig) IsValid() bool {
	return g != nil && g.Enabled && g.Hostname != "" && g.Token != ""
}

// APITokenConfig grants an API client access to the subscription and
// blocklist endpoints.
type APITokenConfig struct {
	Name  string `json:"name"`
	Token string `json:"token"`
}

// OIDCConfig enables browser login through an OpenID Connect provider.
// Sessions it creates may manage subscriptions and open /ws.
type OIDCConfig struct {
	ServiceURL   string `json:"service_url"` // Public URL of the watcher
	ConfigURL    string `json:"config_url"`  // Discovery document URL
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Callback     string `json:"callback,omitempty"`
	AdminClaim   string `json:"admin_claim,omitempty"`
}

// GetCallback returns the callback path, defaulting to /oauth/callback.
func (o *OIDCConfig) GetCallback() string {
	if o.Callback == "" {
		return DefaultOIDCCallback
	}
	return o.Callback
}

// GetAdminClaim returns the claim checked for admin access, defaulting to groups.
func (o *OIDCConfig) GetAdminClaim() string {
	if o.AdminClaim == "" {
		return DefaultOIDCAdminClaim
	}
	return o.AdminClaim
}

// LocalConfig allows local system users to sign in with HTTP Basic auth,
// checked against PAM.
type LocalConfig struct {
	Admins     []string `json:"admins"`
	PAMService string   `json:"pam_service,omitempty"`
}

// GetPAMService returns the PAM service name, defaulting to login.
func (l *LocalConfig) GetPAMService() string {
	if l.PAMService == "" {
		return DefaultPAMService
	}
	return l.PAMService
}

// SubscriptionConfig seeds a subscription at startup.
type SubscriptionConfig struct {
	Destination string `json:"destination"`
	Query       string `json:"query"`
	Paused      bool   `json:"paused,omitempty"`
}

// Config represents the complete watcher configuration.
type Config struct {
	Listen        string               `json:"listen,omitempty"`
	LogLevel      string               `json:"log_level,omitempty"`
	DatabasePath  string               `json:"database_path,omitempty"`
	Feed          FeedConfig           `json:"feed"`
	Gotify        *GotifyConfig        `json:"gotify,omitempty"`
	APITokens     []APITokenConfig     `json:"api_tokens,omitempty"`
	OIDC          *OIDCConfig          `json:"oidc,omitempty"`
	Local         *LocalConfig         `json:"local,omitempty"`
	Subscriptions []SubscriptionConfig `json:"subscriptions,omitempty"`
	Blocklists    map[string][]string  `json:"blocklists,omitempty"`
}

// GetListen returns the listen address, defaulting to :9090.
func (c *Config) GetListen() string {
	if c.Listen == "" {
		return DefaultListen
	}
	return c.Listen
}

// GetLogLevel returns the log level, defaulting to info.
func (c *Config) GetLogLevel() string {
	if c.LogLevel == "" {
		return DefaultLogLevel
	}
	return c.LogLevel
}

// GetDatabasePath returns the SQLite path, defaulting to subscriptions.db.
func (c *Config) GetDatabasePath() string {
	if c.DatabasePath == "" {
		return DefaultDatabasePath
	}
	return c.DatabasePath
}

// Validate checks that the feed is configured and that every seeded query
// compiles. All problems are reported together.
func (c *Config) Validate() error {
	var errs []error
	if c.Feed.URL == "" {
		errs = append(errs, errors.New("feed.url is required"))
	}
	seen := make(map[string]bool)
	for i, t := range c.APITokens {
		if t.Name == "" || t.Token == "" {
			errs = append(errs, fmt.Errorf("api_tokens[%d]: name and token are required", i))
		}
		if seen[t.Token] {
			errs = append(errs, fmt.Errorf("api_tokens[%d]: token is already used", i))
		}
		seen[t.Token] = true
	}
	if o := c.OIDC; o != nil {
		if o.ServiceURL == "" || o.ConfigURL == "" || o.ClientID == "" {
			errs = append(errs, errors.New("oidc: service_url, config_url and client_id are required"))
		}
		if !strings.HasPrefix(o.GetCallback(), "/") {
			errs = append(errs, fmt.Errorf("oidc: callback %q must be a path", o.Callback))
		}
	}
	if l := c.Local; l != nil {
		if len(l.Admins) == 0 {
			errs = append(errs, errors.New("local: admins must not be empty"))
		}
		for i, name := range l.Admins {
			if strings.TrimSpace(name) == "" {
				errs = append(errs, fmt.Errorf("local.admins[%d]: name is required", i))
			}
		}
	}
	for i, sub := range c.Subscriptions {
		if sub.Destination == "" {
			errs = append(errs, fmt.Errorf("subscriptions[%d]: destination is required", i))
		}
		if _, err := query.Compile(sub.Query); err != nil {
			errs = append(errs, fmt.Errorf("subscriptions[%d]: %q: %w", i, sub.Query, err))
		}
	}
	for dest, texts := range c.Blocklists {
		for _, text := range texts {
			if _, err := query.Compile(text); err != nil {
				errs = append(errs, fmt.Errorf("blocklists[%s]: %q: %w", dest, text, err))
			}
		}
	}
	return errors.Join(errs...)
}

// Global configuration instance
var (
	globalConfig *Config
	configMutex  sync.RWMutex
)

// Load reads, parses and validates the configuration file.
// Supports JSON with comments (//, /* */) and trailing commas.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	// Sanitize JSON: strip comments and trailing commas
	data, err = standardizeJSON(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	// Store as global config
	configMutex.Lock()
	globalConfig = &cfg
	configMutex.Unlock()

	return &cfg, nil
}

// standardizeJSON strips comments and trailing commas from JSON.
func standardizeJSON(b []byte) ([]byte, error) {
	ast, err := hujson.Parse(b)
	if err != nil {
		return nil, err
	}
	ast.Standardize()
	return ast.Pack(), nil
}

// Get returns the currently loaded global configuration.
func Get() *Config {
	configMutex.RLock()
	defer configMutex.RUnlock()
	return globalConfig
}

// Default returns a configuration with only the feed URL set, for running
// without a config file. It also stores the default as the global
// configuration.
func Default(feedURL string) *Config {
	cfg := &Config{
		Feed: FeedConfig{URL: feedURL},
	}

	// Store as global config
	configMutex.Lock()
	globalConfig = cfg
	configMutex.Unlock()

	return cfg
}
