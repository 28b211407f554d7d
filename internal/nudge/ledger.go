package nudge

import (
	"fmt"
	"time"

	perrors "github.com/p-blackswan/pr-nudge/internal/errors"
)

// ApplySnooze returns a copy of the ledger with the PR suppressed until
// now + days. An existing entry is overwritten — the last action wins,
// snoozes never accumulate. days may be any positive value; the two Slack
// buttons send 1 and 7.
func ApplySnooze(ledger Ledger, id Identity, days int, now time.Time) (Ledger, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	if days < 1 {
		return nil, fmt.Errorf("%w: snooze duration must be >= 1 day, got %d", perrors.ErrInvalidInput, days)
	}

	out := ledger.Clone()
	out[id] = now.AddDate(0, 0, days)
	return out, nil
}

// MarkNotStale translates the mark-not-stale action into a label request
// for the label mutator. When no not-stale label is configured the action
// is skipped entirely and ok is false; nothing is sent to the mutator.
func MarkNotStale(id Identity, notStaleLabel string) (LabelRequest, bool) {
	if notStaleLabel == "" {
		return LabelRequest{}, false
	}
	return LabelRequest{Identity: id, Label: notStaleLabel}, true
}
