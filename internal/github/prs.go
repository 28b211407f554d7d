package github

import (
	"context"
	"fmt"

	gh "github.com/google/go-github/v60/github"

	"github.com/p-blackswan/pr-nudge/internal/nudge"
	"github.com/p-blackswan/pr-nudge/internal/retry"
)

const perPage = 100

// ListOpenPRs returns all open pull requests in the given repository.
func (c *Client) ListOpenPRs(ctx context.Context, owner, repo string) ([]nudge.PullRequest, error) {
	client, err := c.api(ctx)
	if err != nil {
		return nil, err
	}

	var prs []nudge.PullRequest
	opts := &gh.PullRequestListOptions{
		State:       "open",
		Sort:        "updated",
		Direction:   "asc",
		ListOptions: gh.ListOptions{PerPage: perPage},
	}

	for {
		var page []*gh.PullRequest
		var resp *gh.Response
		err := retry.Do(ctx, retry.DefaultConfig(), func(ctx context.Context) error {
			var err error
			page, resp, err = client.PullRequests.List(ctx, owner, repo, opts)
			return wrapErr(err)
		})
		if err != nil {
			return nil, fmt.Errorf("listing pull requests for %s/%s: %w", owner, repo, err)
		}

		for _, pr := range page {
			prs = append(prs, convertPR(owner, repo, pr))
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	c.logger.Debug().
		Str("owner", owner).
		Str("repo", repo).
		Int("count", len(prs)).
		Msg("listed open pull requests")

	return prs, nil
}

// ListOrgOpenPRs returns all open pull requests across every
// non-archived repository in the organization.
func (c *Client) ListOrgOpenPRs(ctx context.Context, org string) ([]nudge.PullRequest, error) {
	repos, err := c.listOrgRepos(ctx, org)
	if err != nil {
		return nil, err
	}

	var prs []nudge.PullRequest
	for _, repo := range repos {
		repoPRs, err := c.ListOpenPRs(ctx, org, repo)
		if err != nil {
			return nil, err
		}
		prs = append(prs, repoPRs...)
	}
	return prs, nil
}

func (c *Client) listOrgRepos(ctx context.Context, org string) ([]string, error) {
	client, err := c.api(ctx)
	if err != nil {
		return nil, err
	}

	var names []string
	opts := &gh.RepositoryListByOrgOptions{
		Type:        "all",
		ListOptions: gh.ListOptions{PerPage: perPage},
	}

	for {
		var page []*gh.Repository
		var resp *gh.Response
		err := retry.Do(ctx, retry.DefaultConfig(), func(ctx context.Context) error {
			var err error
			page, resp, err = client.Repositories.ListByOrg(ctx, org, opts)
			return wrapErr(err)
		})
		if err != nil {
			return nil, fmt.Errorf("listing repositories for org %s: %w", org, err)
		}

		for _, repo := range page {
			if repo.GetArchived() {
				continue
			}
			names = append(names, repo.GetName())
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return names, nil
}

// convertPR maps the API representation to our record. A PR that never
// got an updated_at timestamp yields a zero UpdatedAt, which the filter
// counts as skipped rather than stale.
func convertPR(owner, repo string, pr *gh.PullRequest) nudge.PullRequest {
	labels := make([]string, 0, len(pr.Labels))
	for _, l := range pr.Labels {
		labels = append(labels, l.GetName())
	}

	return nudge.PullRequest{
		Identity: nudge.Identity{
			Owner:  owner,
			Repo:   repo,
			Number: pr.GetNumber(),
		},
		Title:     pr.GetTitle(),
		URL:       pr.GetHTMLURL(),
		Author:    pr.GetUser().GetLogin(),
		UpdatedAt: pr.GetUpdatedAt().Time,
		Labels:    labels,
	}
}
