// Package digest orchestrates one nudge cycle: fetch open PRs, filter
// them against the snooze ledger, drop expired snoozes from the store,
// and post the result. It also executes the interactive actions the
// digest message offers.
package digest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/pr-nudge/internal/metrics"
	"github.com/p-blackswan/pr-nudge/internal/nudge"
	"github.com/p-blackswan/pr-nudge/internal/rules"
	"github.com/p-blackswan/pr-nudge/internal/snooze"
)

// Source lists the open pull requests in the configured scope.
type Source interface {
	ListOpenPRs(ctx context.Context) ([]nudge.PullRequest, error)
}

// Notifier delivers one digest message.
type Notifier interface {
	PostDigest(ctx context.Context, prs []nudge.PullRequest, now time.Time) error
}

// LabelMutator applies labels on pull requests.
type LabelMutator interface {
	AddLabel(ctx context.Context, req nudge.LabelRequest) error
}

// Config wires a Runner's collaborators.
type Config struct {
	Source   Source
	Notifier Notifier
	Labels   LabelMutator
	Store    snooze.Store
	Options  nudge.Options
	Rules    *rules.Rules
	Metrics  *metrics.Metrics
	Logger   zerolog.Logger

	// Now is injected for tests. Defaults to time.Now.
	Now func() time.Time
}

// Runner executes digest cycles and the digest's button actions.
type Runner struct {
	source   Source
	notifier Notifier
	labels   LabelMutator
	store    snooze.Store
	opts     nudge.Options
	rules    *rules.Rules
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	now      func() time.Time

	// mu serializes runs so an operator-triggered digest cannot interleave
	// with a scheduled one.
	mu sync.Mutex
}

// New creates a digest runner.
func New(cfg Config) *Runner {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Runner{
		source:   cfg.Source,
		notifier: cfg.Notifier,
		labels:   cfg.Labels,
		store:    cfg.Store,
		opts:     cfg.Options,
		rules:    cfg.Rules,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger.With().Str("component", "digest").Logger(),
		now:      now,
	}
}

// Run executes one digest cycle.
func (r *Runner) Run(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	now := r.now()

	stale, pruned, skipped, err := r.collect(ctx, now)
	if err != nil {
		r.recordRun("error")
		return err
	}

	// Expired entries are removed key by key under the store's lock, so a
	// snooze landing between the snapshot and this point survives the run.
	if _, err := r.store.PruneExpired(ctx, now); err != nil {
		r.recordRun("error")
		r.recordError("snooze", "prune")
		return fmt.Errorf("pruning snooze ledger: %w", err)
	}

	if err := r.notifier.PostDigest(ctx, stale, now); err != nil {
		r.recordRun("error")
		r.recordError("slack", "post")
		return fmt.Errorf("posting digest: %w", err)
	}

	if r.metrics != nil {
		r.metrics.SetStalePRs(float64(len(stale)))
		r.metrics.AddSkipped(float64(skipped))
		r.metrics.ObserveDigest(time.Since(start).Seconds())
	}
	r.recordRun("ok")

	r.logger.Info().
		Int("stale", len(stale)).
		Int("skipped", skipped).
		Int("snoozes", len(pruned)).
		Dur("took", time.Since(start)).
		Msg("digest run complete")
	return nil
}

// Stale returns the PRs a digest run would report right now, without
// posting or persisting anything.
func (r *Runner) Stale(ctx context.Context) ([]nudge.PullRequest, error) {
	stale, _, _, err := r.collect(ctx, r.now())
	return stale, err
}

// collect fetches the batch and filters it repo by repo so per-repo rule
// overrides apply, then restores the global ordering.
func (r *Runner) collect(ctx context.Context, now time.Time) ([]nudge.PullRequest, nudge.Ledger, int, error) {
	prs, err := r.source.ListOpenPRs(ctx)
	if err != nil {
		r.recordError("github", "list")
		return nil, nil, 0, fmt.Errorf("fetching open PRs: %w", err)
	}

	ledger, err := r.store.Snapshot(ctx)
	if err != nil {
		r.recordError("snooze", "snapshot")
		return nil, nil, 0, fmt.Errorf("reading snooze ledger: %w", err)
	}
	pruned := nudge.Prune(ledger, now)

	var stale []nudge.PullRequest
	var skipped int
	for key, group := range groupByRepo(prs) {
		opts, skip := r.rules.Apply(r.opts, key.owner, key.repo)
		if skip {
			r.logger.Debug().Str("repo", key.owner+"/"+key.repo).Msg("repo skipped by rule")
			continue
		}

		res, err := nudge.FilterStale(group, opts, pruned, now)
		if err != nil {
			return nil, nil, 0, fmt.Errorf("filtering %s/%s: %w", key.owner, key.repo, err)
		}
		stale = append(stale, res.Stale...)
		skipped += res.Skipped
	}
	nudge.SortStale(stale)

	return stale, pruned, skipped, nil
}

// Snooze suppresses one PR from digests for the given number of days.
func (r *Runner) Snooze(ctx context.Context, id nudge.Identity, days int) error {
	now := r.now()
	updated, err := nudge.ApplySnooze(nudge.Ledger{}, id, days, now)
	if err != nil {
		return err
	}

	if err := r.store.Set(ctx, id, updated[id]); err != nil {
		r.recordError("snooze", "set")
		return fmt.Errorf("storing snooze for %s: %w", id, err)
	}

	if r.metrics != nil {
		r.metrics.RecordSnooze(fmt.Sprintf("%dd", days))
	}
	r.logger.Info().
		Str("pr", id.String()).
		Int("days", days).
		Time("until", updated[id]).
		Msg("snoozed")
	return nil
}

// MarkNotStale applies the configured not-stale label to the PR, which
// permanently excludes it from digests, and drops any snooze entry that
// is now redundant.
func (r *Runner) MarkNotStale(ctx context.Context, id nudge.Identity) error {
	req, ok := nudge.MarkNotStale(id, r.opts.NotStaleLabel)
	if !ok {
		r.logger.Debug().Str("pr", id.String()).Msg("no not-stale label configured, skipping")
		return nil
	}

	if err := r.labels.AddLabel(ctx, req); err != nil {
		r.recordError("github", "label")
		return fmt.Errorf("labeling %s: %w", id, err)
	}

	if err := r.store.Delete(ctx, id); err != nil {
		r.recordError("snooze", "delete")
		return fmt.Errorf("dropping snooze for %s: %w", id, err)
	}

	r.logger.Info().
		Str("pr", id.String()).
		Str("label", req.Label).
		Msg("marked not stale")
	return nil
}

// PruneSnoozes drops expired entries from the stored ledger and reports
// how many were removed.
func (r *Runner) PruneSnoozes(ctx context.Context) (int, error) {
	removed, err := r.store.PruneExpired(ctx, r.now())
	if err != nil {
		return 0, fmt.Errorf("pruning snooze ledger: %w", err)
	}
	if removed > 0 {
		r.logger.Info().Int("removed", removed).Msg("pruned expired snoozes")
	}
	return removed, nil
}

// Schedule runs a digest immediately and then on every interval tick
// until the context is cancelled.
func (r *Runner) Schedule(ctx context.Context, interval time.Duration) {
	r.logger.Info().Dur("interval", interval).Msg("digest schedule started")

	if err := r.Run(ctx); err != nil {
		r.logger.Error().Err(err).Msg("digest run failed")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("digest schedule stopped")
			return
		case <-ticker.C:
			if err := r.Run(ctx); err != nil {
				r.logger.Error().Err(err).Msg("digest run failed")
			}
		}
	}
}

type repoKey struct {
	owner, repo string
}

func groupByRepo(prs []nudge.PullRequest) map[repoKey][]nudge.PullRequest {
	groups := make(map[repoKey][]nudge.PullRequest)
	for _, pr := range prs {
		key := repoKey{owner: pr.Owner, repo: pr.Repo}
		groups[key] = append(groups[key], pr)
	}
	return groups
}

func (r *Runner) recordRun(status string) {
	if r.metrics != nil {
		r.metrics.RecordRun(status)
	}
}

func (r *Runner) recordError(module, errType string) {
	if r.metrics != nil {
		r.metrics.RecordError(module, errType)
	}
}
