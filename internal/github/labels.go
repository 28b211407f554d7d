package github

import (
	"context"
	"fmt"

	"github.com/p-blackswan/pr-nudge/internal/nudge"
	"github.com/p-blackswan/pr-nudge/internal/retry"
)

// AddLabel applies the label named in req to the pull request. Pull
// requests share the Issues label API.
func (c *Client) AddLabel(ctx context.Context, req nudge.LabelRequest) error {
	client, err := c.api(ctx)
	if err != nil {
		return err
	}

	err = retry.Do(ctx, retry.DefaultConfig(), func(ctx context.Context) error {
		_, _, err := client.Issues.AddLabelsToIssue(ctx,
			req.Owner, req.Repo, req.Number, []string{req.Label})
		return wrapErr(err)
	})
	if err != nil {
		return fmt.Errorf("adding label %q to %s: %w", req.Label, req.Identity, err)
	}

	c.logger.Info().
		Str("pr", req.Identity.String()).
		Str("label", req.Label).
		Msg("added label")
	return nil
}

// RemoveLabel removes the label from the pull request. A 404 from the
// API means the label was already absent and is not an error.
func (c *Client) RemoveLabel(ctx context.Context, req nudge.LabelRequest) error {
	client, err := c.api(ctx)
	if err != nil {
		return err
	}

	err = retry.Do(ctx, retry.DefaultConfig(), func(ctx context.Context) error {
		_, err := client.Issues.RemoveLabelForIssue(ctx,
			req.Owner, req.Repo, req.Number, req.Label)
		return wrapErr(err)
	})
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("removing label %q from %s: %w", req.Label, req.Identity, err)
	}

	c.logger.Info().
		Str("pr", req.Identity.String()).
		Str("label", req.Label).
		Msg("removed label")
	return nil
}
