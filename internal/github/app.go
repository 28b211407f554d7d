package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	perrors "github.com/p-blackswan/pr-nudge/internal/errors"
)

const defaultAPIBase = "https://api.github.com"

// generateJWT creates a short-lived App JWT signed with the App's
// private key. GitHub caps validity at 10 minutes.
func (c *Client) generateJWT() (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		// Backdated to tolerate clock drift with GitHub's servers.
		IssuedAt:  jwt.NewNumericDate(now.Add(-60 * time.Second)),
		ExpiresAt: jwt.NewNumericDate(now.Add(9 * time.Minute)),
		Issuer:    fmt.Sprintf("%d", c.appID),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(c.privateKey)
	if err != nil {
		return "", fmt.Errorf("signing app JWT: %w", err)
	}
	return signed, nil
}

// installationToken returns a valid installation access token, fetching
// a new one from GitHub when the cached token is missing or near expiry.
func (c *Client) installationToken(ctx context.Context) (string, error) {
	key := fmt.Sprintf("installation:%d", c.installationID)
	if token, ok := c.tokens.get(key); ok {
		return token, nil
	}

	appJWT, err := c.generateJWT()
	if err != nil {
		return "", err
	}

	base := c.apiBase
	if base == "" {
		base = defaultAPIBase
	}
	url := fmt.Sprintf("%s/app/installations/%d/access_tokens", base, c.installationID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return "", fmt.Errorf("creating token request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+appJWT)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("requesting installation token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return "", fmt.Errorf("%w: installation token request returned %d: %s",
				perrors.ErrAuthFailure, resp.StatusCode, body)
		}
		return "", perrors.NewAPIError("github", resp.StatusCode, string(body))
	}

	var result struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding installation token response: %w", err)
	}

	c.tokens.set(key, result.Token, result.ExpiresAt)
	c.logger.Debug().
		Int64("installation_id", c.installationID).
		Time("expires_at", result.ExpiresAt).
		Msg("fetched installation token")

	return result.Token, nil
}

// tokenCache holds installation tokens until shortly before they expire.
// Tokens are refreshed 5 minutes early so in-flight requests never carry
// a token that lapses mid-call.
type tokenCache struct {
	mu     sync.Mutex
	tokens map[string]cachedToken
}

type cachedToken struct {
	value     string
	expiresAt time.Time
}

func newTokenCache() *tokenCache {
	return &tokenCache{tokens: make(map[string]cachedToken)}
}

func (tc *tokenCache) get(key string) (string, bool) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	entry, ok := tc.tokens[key]
	if !ok || time.Now().After(entry.expiresAt.Add(-5*time.Minute)) {
		delete(tc.tokens, key)
		return "", false
	}
	return entry.value, true
}

func (tc *tokenCache) set(key, value string, expiresAt time.Time) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.tokens[key] = cachedToken{value: value, expiresAt: expiresAt}
}
