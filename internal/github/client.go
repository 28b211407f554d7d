// Package github implements the pull-request source and label mutator
// against the GitHub API.
package github

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	gh "github.com/google/go-github/v60/github"
	"github.com/rs/zerolog"

	perrors "github.com/p-blackswan/pr-nudge/internal/errors"
)

// Client wraps the GitHub API. It authenticates either with a personal
// token or as a GitHub App installation, exchanging an app JWT for a
// short-lived installation token that is cached until near expiry.
type Client struct {
	token          string
	appID          int64
	installationID int64
	privateKey     *rsa.PrivateKey
	tokens         *tokenCache
	httpClient     *http.Client
	logger         zerolog.Logger

	// apiBase overrides the API endpoint (tests only). Empty = github.com.
	apiBase string
}

// NewTokenClient creates a client authenticated with a personal token.
func NewTokenClient(token string, logger zerolog.Logger) *Client {
	return &Client{
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger.With().Str("component", "github").Logger(),
	}
}

// NewAppClient creates a client authenticated as a GitHub App installation.
func NewAppClient(appID, installationID int64, privateKeyPath string, logger zerolog.Logger) (*Client, error) {
	keyData, err := os.ReadFile(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("reading private key: %w", err)
	}
	return NewAppClientFromKeyBytes(appID, installationID, keyData, logger)
}

// NewAppClientFromKeyBytes creates an App client from PEM key bytes
// (useful for testing).
func NewAppClientFromKeyBytes(appID, installationID int64, keyData []byte, logger zerolog.Logger) (*Client, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM(keyData)
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}

	return &Client{
		appID:          appID,
		installationID: installationID,
		privateKey:     key,
		tokens:         newTokenCache(),
		httpClient:     &http.Client{Timeout: 30 * time.Second},
		logger:         logger.With().Str("component", "github").Logger(),
	}, nil
}

// api returns a go-github client carrying valid credentials.
func (c *Client) api(ctx context.Context) (*gh.Client, error) {
	token := c.token
	if token == "" {
		var err error
		token, err = c.installationToken(ctx)
		if err != nil {
			return nil, err
		}
	}

	client := gh.NewClient(&http.Client{
		Transport: &tokenTransport{token: token, base: http.DefaultTransport},
		Timeout:   30 * time.Second,
	})
	if c.apiBase != "" {
		base, err := url.Parse(strings.TrimSuffix(c.apiBase, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("parsing API base URL: %w", err)
		}
		client.BaseURL = base
	}
	return client, nil
}

// Ping verifies credentials by asking for the current rate limit.
func (c *Client) Ping(ctx context.Context) error {
	client, err := c.api(ctx)
	if err != nil {
		return err
	}
	_, _, err = client.RateLimit.Get(ctx)
	return wrapErr(err)
}

type tokenTransport struct {
	token string
	base  http.RoundTripper
}

func (t *tokenTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req2 := req.Clone(req.Context())
	req2.Header.Set("Authorization", "token "+t.token)
	return t.base.RoundTrip(req2)
}

func isNotFound(err error) bool {
	return errors.Is(err, perrors.ErrNotFound)
}

// wrapErr converts go-github errors into our APIError so retry and
// not-found handling can classify them.
func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	var ghErr *gh.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		apiErr := perrors.NewAPIError("github", ghErr.Response.StatusCode, ghErr.Message)
		if ghErr.Response.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%w: %w", perrors.ErrNotFound, apiErr)
		}
		return apiErr
	}
	var rateErr *gh.RateLimitError
	if errors.As(err, &rateErr) {
		return fmt.Errorf("%w: %v", perrors.ErrRateLimit, err)
	}
	return err
}
