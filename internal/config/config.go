package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all service configuration loaded from environment variables.
type Config struct {
	// General
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	HTTPPort    int    `envconfig:"HTTP_PORT" default:"8080"`

	// GitHub — either a personal token or GitHub App credentials.
	GitHubToken          string `envconfig:"GITHUB_TOKEN"`
	GitHubAppID          int64  `envconfig:"GITHUB_APP_ID"`
	GitHubInstallationID int64  `envconfig:"GITHUB_INSTALLATION_ID"`
	GitHubPrivateKeyPath string `envconfig:"GITHUB_PRIVATE_KEY_PATH"`

	// Scope: one of ORG (scan every repo in the org) or REPO ("owner/name").
	Org  string `envconfig:"GITHUB_ORG"`
	Repo string `envconfig:"GITHUB_REPO"`

	// Staleness
	StaleDays     int    `envconfig:"STALE_DAYS" default:"3"`
	ExcludeLabels string `envconfig:"EXCLUDE_LABELS"` // comma-separated label names
	NotStaleLabel string `envconfig:"NOT_STALE_LABEL"`

	// RulesPath points at an optional YAML file with per-repo overrides.
	RulesPath string `envconfig:"RULES_PATH"`

	// Slack (optional — without tokens the service runs in API-only mode)
	// Prefixed with NUDGE_ to keep other bots from auto-detecting the tokens.
	SlackBotToken string `envconfig:"NUDGE_SLACK_BOT_TOKEN"`
	SlackAppToken string `envconfig:"NUDGE_SLACK_APP_TOKEN"` // xapp- token for Socket Mode
	SlackChannel  string `envconfig:"NUDGE_SLACK_CHANNEL"`

	// Digest schedule. Zero disables the ticker; runs can still be
	// triggered through the operator API.
	DigestInterval time.Duration `envconfig:"DIGEST_INTERVAL" default:"24h"`

	// Operator API
	APIListenAddr     string `envconfig:"API_LISTEN_ADDR" default:":8090"`
	APIAuthMode       string `envconfig:"API_AUTH_MODE" default:"api-key"`
	APIKey            string `envconfig:"API_KEY"`
	APIRateLimitRPS   int    `envconfig:"API_RATE_LIMIT_RPS" default:"100"`
	APIRateLimitBurst int    `envconfig:"API_RATE_LIMIT_BURST" default:"200"`
}

// SlackEnabled returns true if Slack tokens are configured.
func (c *Config) SlackEnabled() bool {
	return c.SlackBotToken != "" && c.SlackAppToken != ""
}

// GitHubAppEnabled returns true if GitHub App credentials are configured.
func (c *Config) GitHubAppEnabled() bool {
	return c.GitHubAppID > 0 && c.GitHubPrivateKeyPath != ""
}

// GitHubEnabled returns true if any GitHub auth is configured.
func (c *Config) GitHubEnabled() bool {
	return c.GitHubToken != "" || c.GitHubAppEnabled()
}

// ExcludeLabelList returns the parsed exclude-label names.
func (c *Config) ExcludeLabelList() []string {
	if c.ExcludeLabels == "" {
		return nil
	}
	parts := strings.Split(c.ExcludeLabels, ",")
	labels := make([]string, 0, len(parts))
	for _, l := range parts {
		l = strings.TrimSpace(l)
		if l != "" {
			labels = append(labels, l)
		}
	}
	return labels
}

// RepoOwnerName splits the REPO setting into owner and name.
func (c *Config) RepoOwnerName() (string, string, error) {
	parts := strings.SplitN(c.Repo, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GITHUB_REPO %q, expected owner/name", c.Repo)
	}
	return parts[0], parts[1], nil
}

// Validate rejects configurations the filter would refuse at run time.
// Called once at startup so bad values never reach a digest pass.
func (c *Config) Validate() error {
	if c.StaleDays < 1 {
		return fmt.Errorf("STALE_DAYS must be >= 1, got %d", c.StaleDays)
	}
	if c.Org == "" && c.Repo == "" {
		return fmt.Errorf("one of GITHUB_ORG or GITHUB_REPO must be set")
	}
	if c.Repo != "" {
		if _, _, err := c.RepoOwnerName(); err != nil {
			return err
		}
	}
	return nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return &cfg, nil
}
