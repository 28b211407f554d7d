package github

import (
	"context"

	"github.com/p-blackswan/pr-nudge/internal/nudge"
)

// ScopedSource binds a client to its configured scope so callers can
// list open PRs without knowing whether they watch one repo or a whole
// organization.
type ScopedSource struct {
	client *Client
	org    string
	owner  string
	repo   string
}

// NewRepoSource scopes the client to a single repository.
func NewRepoSource(c *Client, owner, repo string) *ScopedSource {
	return &ScopedSource{client: c, owner: owner, repo: repo}
}

// NewOrgSource scopes the client to every repository in an organization.
func NewOrgSource(c *Client, org string) *ScopedSource {
	return &ScopedSource{client: c, org: org}
}

// ListOpenPRs lists all open PRs in the bound scope.
func (s *ScopedSource) ListOpenPRs(ctx context.Context) ([]nudge.PullRequest, error) {
	if s.org != "" {
		return s.client.ListOrgOpenPRs(ctx, s.org)
	}
	return s.client.ListOpenPRs(ctx, s.owner, s.repo)
}
