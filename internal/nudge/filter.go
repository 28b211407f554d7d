package nudge

import (
	"fmt"
	"sort"
	"time"

	perrors "github.com/p-blackswan/pr-nudge/internal/errors"
)

// Result is the outcome of one filter pass.
type Result struct {
	// Stale holds the PRs that should be nudged, oldest activity first.
	Stale []PullRequest

	// Ledger is the input ledger with expired entries removed. The input
	// is never mutated; callers persist this copy back to their store.
	Ledger Ledger

	// Skipped counts malformed records (missing updated_at) dropped from
	// the batch.
	Skipped int
}

// FilterStale selects the PRs that should be nudged. A PR qualifies when
// its last activity is at least opts.StaleDays old (boundary inclusive),
// it carries neither an excluded label nor the not-stale label, and it has
// no live snooze entry. now is injected so the pass is deterministic; the
// function performs no I/O and mutates none of its inputs.
//
// As a side effect of the pass, every ledger entry whose expiry is at or
// before now is absent from the returned ledger — including entries for
// PRs that no longer appear in the batch, so a snooze for a since-closed
// PR still expires cleanly.
func FilterStale(prs []PullRequest, opts Options, ledger Ledger, now time.Time) (Result, error) {
	if opts.StaleDays < 1 {
		return Result{}, fmt.Errorf("%w: stale days must be >= 1, got %d", perrors.ErrInvalidInput, opts.StaleDays)
	}

	excluded := make(map[string]struct{}, len(opts.ExcludeLabels)+1)
	for _, l := range opts.ExcludeLabels {
		excluded[l] = struct{}{}
	}
	if opts.NotStaleLabel != "" {
		excluded[opts.NotStaleLabel] = struct{}{}
	}

	pruned := make(Ledger, len(ledger))
	for id, expiry := range ledger {
		if expiry.After(now) {
			pruned[id] = expiry
		}
	}

	cutoff := now.AddDate(0, 0, -opts.StaleDays)

	res := Result{Ledger: pruned}
	for _, pr := range prs {
		if pr.UpdatedAt.IsZero() {
			res.Skipped++
			continue
		}
		if pr.UpdatedAt.After(cutoff) {
			continue
		}
		if hasAnyLabel(pr.Labels, excluded) {
			continue
		}
		// A pruned entry never suppresses; only a live snooze does.
		if expiry, ok := pruned[pr.Identity]; ok && expiry.After(now) {
			continue
		}
		res.Stale = append(res.Stale, pr)
	}

	SortStale(res.Stale)

	return res, nil
}

// SortStale orders PRs oldest activity first, breaking ties by owner,
// repo, then number so equal batches always render identically.
func SortStale(prs []PullRequest) {
	sort.SliceStable(prs, func(i, j int) bool {
		a, b := prs[i], prs[j]
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.Before(b.UpdatedAt)
		}
		if a.Owner != b.Owner {
			return a.Owner < b.Owner
		}
		if a.Repo != b.Repo {
			return a.Repo < b.Repo
		}
		return a.Number < b.Number
	})
}

// Prune returns the ledger without entries expired at or before now.
// Exposed separately so expired snoozes can be cleaned between digest
// runs, not only as a side effect of filtering.
func Prune(ledger Ledger, now time.Time) Ledger {
	out := make(Ledger, len(ledger))
	for id, expiry := range ledger {
		if expiry.After(now) {
			out[id] = expiry
		}
	}
	return out
}

func hasAnyLabel(labels []string, set map[string]struct{}) bool {
	for _, l := range labels {
		if _, ok := set[l]; ok {
			return true
		}
	}
	return false
}
