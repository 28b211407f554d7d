package github

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/p-blackswan/pr-nudge/internal/errors"
	"github.com/p-blackswan/pr-nudge/internal/nudge"
)

func generateTestKey(t *testing.T) ([]byte, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	pemBytes := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	return pemBytes, key
}

func TestNewAppClientFromKeyBytes_InvalidKey(t *testing.T) {
	_, err := NewAppClientFromKeyBytes(1, 2, []byte("not a key"), zerolog.Nop())
	assert.Error(t, err)
}

func TestGenerateJWT(t *testing.T) {
	pemBytes, key := generateTestKey(t)
	c, err := NewAppClientFromKeyBytes(12345, 67890, pemBytes, zerolog.Nop())
	require.NoError(t, err)

	signed, err := c.generateJWT()
	require.NoError(t, err)

	parsed, err := jwt.ParseWithClaims(signed, &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
		return &key.PublicKey, nil
	})
	require.NoError(t, err)
	require.True(t, parsed.Valid)

	claims := parsed.Claims.(*jwt.RegisteredClaims)
	assert.Equal(t, "12345", claims.Issuer)
	assert.True(t, claims.ExpiresAt.After(time.Now()))
}

func TestInstallationToken_FromAPI(t *testing.T) {
	pemBytes, _ := generateTestKey(t)

	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/app/installations/67890/access_tokens", r.URL.Path)
		assert.True(t, strings.HasPrefix(r.Header.Get("Authorization"), "Bearer "))

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"token":      "ghs_test_token_123",
			"expires_at": time.Now().Add(time.Hour).Format(time.RFC3339),
		})
	}))
	defer srv.Close()

	c, err := NewAppClientFromKeyBytes(12345, 67890, pemBytes, zerolog.Nop())
	require.NoError(t, err)
	c.apiBase = srv.URL

	token, err := c.installationToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ghs_test_token_123", token)

	// Second call should hit the cache, not the API.
	token, err = c.installationToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ghs_test_token_123", token)
	assert.Equal(t, 1, calls)
}

func TestInstallationToken_AuthFailure(t *testing.T) {
	pemBytes, _ := generateTestKey(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"message":"Bad credentials"}`)
	}))
	defer srv.Close()

	c, err := NewAppClientFromKeyBytes(12345, 67890, pemBytes, zerolog.Nop())
	require.NoError(t, err)
	c.apiBase = srv.URL

	_, err = c.installationToken(context.Background())
	assert.ErrorIs(t, err, perrors.ErrAuthFailure)
}

func TestTokenCache_Expiry(t *testing.T) {
	tc := newTokenCache()

	tc.set("a", "tok", time.Now().Add(time.Hour))
	got, ok := tc.get("a")
	assert.True(t, ok)
	assert.Equal(t, "tok", got)

	// Within the 5 minute refresh window counts as expired.
	tc.set("b", "tok2", time.Now().Add(time.Minute))
	_, ok = tc.get("b")
	assert.False(t, ok)
}

func TestListOpenPRs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/acme/widgets/pulls", r.URL.Path)
		assert.Equal(t, "open", r.URL.Query().Get("state"))
		assert.Equal(t, "token test-token", r.Header.Get("Authorization"))

		fmt.Fprint(w, `[
			{
				"number": 42,
				"title": "Fix the widget",
				"html_url": "https://github.com/acme/widgets/pull/42",
				"user": {"login": "alice"},
				"updated_at": "2023-01-02T15:04:05Z",
				"labels": [{"name": "bug"}]
			},
			{
				"number": 43,
				"title": "Add gadgets",
				"html_url": "https://github.com/acme/widgets/pull/43",
				"user": {"login": "bob"},
				"updated_at": "2023-01-05T10:00:00Z",
				"labels": []
			}
		]`)
	}))
	defer srv.Close()

	c := NewTokenClient("test-token", zerolog.Nop())
	c.apiBase = srv.URL

	prs, err := c.ListOpenPRs(context.Background(), "acme", "widgets")
	require.NoError(t, err)
	require.Len(t, prs, 2)

	assert.Equal(t, nudge.Identity{Owner: "acme", Repo: "widgets", Number: 42}, prs[0].Identity)
	assert.Equal(t, "Fix the widget", prs[0].Title)
	assert.Equal(t, "alice", prs[0].Author)
	assert.Equal(t, []string{"bug"}, prs[0].Labels)
	assert.Equal(t, time.Date(2023, 1, 2, 15, 4, 5, 0, time.UTC), prs[0].UpdatedAt)
	assert.Equal(t, 43, prs[1].Number)
}

func TestListOpenPRs_Paginated(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			fmt.Fprint(w, `[{"number": 2, "updated_at": "2023-01-02T00:00:00Z"}]`)
			return
		}
		w.Header().Set("Link", fmt.Sprintf(`<%s/repos/acme/widgets/pulls?page=2>; rel="next"`, srv.URL))
		fmt.Fprint(w, `[{"number": 1, "updated_at": "2023-01-01T00:00:00Z"}]`)
	}))
	defer srv.Close()

	c := NewTokenClient("test-token", zerolog.Nop())
	c.apiBase = srv.URL

	prs, err := c.ListOpenPRs(context.Background(), "acme", "widgets")
	require.NoError(t, err)
	require.Len(t, prs, 2)
	assert.Equal(t, 1, prs[0].Number)
	assert.Equal(t, 2, prs[1].Number)
}

func TestListOrgOpenPRs_SkipsArchived(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/orgs/acme/repos":
			fmt.Fprint(w, `[
				{"name": "widgets", "archived": false},
				{"name": "attic", "archived": true}
			]`)
		case "/repos/acme/widgets/pulls":
			fmt.Fprint(w, `[{"number": 7, "updated_at": "2023-01-01T00:00:00Z"}]`)
		default:
			t.Errorf("unexpected request: %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewTokenClient("test-token", zerolog.Nop())
	c.apiBase = srv.URL

	prs, err := c.ListOrgOpenPRs(context.Background(), "acme")
	require.NoError(t, err)
	require.Len(t, prs, 1)
	assert.Equal(t, nudge.Identity{Owner: "acme", Repo: "widgets", Number: 7}, prs[0].Identity)
}

func TestScopedSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/acme/widgets/pulls", r.URL.Path)
		fmt.Fprint(w, `[{"number": 5, "updated_at": "2023-01-01T00:00:00Z"}]`)
	}))
	defer srv.Close()

	c := NewTokenClient("test-token", zerolog.Nop())
	c.apiBase = srv.URL

	src := NewRepoSource(c, "acme", "widgets")
	prs, err := src.ListOpenPRs(context.Background())
	require.NoError(t, err)
	require.Len(t, prs, 1)
	assert.Equal(t, 5, prs[0].Number)
}

func TestAddLabel(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/repos/acme/widgets/issues/42/labels", r.URL.Path)
		buf := make([]byte, 256)
		n, _ := r.Body.Read(buf)
		gotBody = string(buf[:n])
		fmt.Fprint(w, `[{"name": "not-stale"}]`)
	}))
	defer srv.Close()

	c := NewTokenClient("test-token", zerolog.Nop())
	c.apiBase = srv.URL

	req := nudge.LabelRequest{
		Identity: nudge.Identity{Owner: "acme", Repo: "widgets", Number: 42},
		Label:    "not-stale",
	}
	require.NoError(t, c.AddLabel(context.Background(), req))
	assert.Contains(t, gotBody, "not-stale")
}

func TestRemoveLabel_AlreadyAbsent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message": "Label does not exist"}`)
	}))
	defer srv.Close()

	c := NewTokenClient("test-token", zerolog.Nop())
	c.apiBase = srv.URL

	req := nudge.LabelRequest{
		Identity: nudge.Identity{Owner: "acme", Repo: "widgets", Number: 42},
		Label:    "not-stale",
	}
	assert.NoError(t, c.RemoveLabel(context.Background(), req))
}

func TestWrapErr_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprint(w, `{"message": "upstream broke"}`)
	}))
	defer srv.Close()

	c := NewTokenClient("test-token", zerolog.Nop())
	c.apiBase = srv.URL

	_, err := c.ListOpenPRs(context.Background(), "acme", "widgets")
	require.Error(t, err)
	assert.True(t, perrors.IsRetryable(err))
}
