// Package nudge implements the staleness filter and snooze ledger at the
// heart of the PR digest: which open pull requests should be nudged, and
// which are temporarily or permanently suppressed.
package nudge

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	perrors "github.com/p-blackswan/pr-nudge/internal/errors"
)

// Identity uniquely names a pull request across repositories.
type Identity struct {
	Owner  string `json:"owner"`
	Repo   string `json:"repo"`
	Number int    `json:"number"`
}

// String renders the identity as "owner/repo#number" — the form carried
// in Slack button values and API paths.
func (id Identity) String() string {
	return fmt.Sprintf("%s/%s#%d", id.Owner, id.Repo, id.Number)
}

// Validate checks the identity is well-formed.
func (id Identity) Validate() error {
	if id.Owner == "" || id.Repo == "" {
		return fmt.Errorf("%w: identity missing owner or repo", perrors.ErrInvalidInput)
	}
	if id.Number < 1 {
		return fmt.Errorf("%w: identity has non-positive PR number", perrors.ErrInvalidInput)
	}
	return nil
}

// ParseIdentity parses the "owner/repo#number" form back into an Identity.
func ParseIdentity(s string) (Identity, error) {
	slash := strings.Index(s, "/")
	hash := strings.LastIndex(s, "#")
	if slash < 1 || hash <= slash+1 || hash == len(s)-1 {
		return Identity{}, fmt.Errorf("%w: malformed identity %q", perrors.ErrInvalidInput, s)
	}
	num, err := strconv.Atoi(s[hash+1:])
	if err != nil {
		return Identity{}, fmt.Errorf("%w: malformed PR number in %q", perrors.ErrInvalidInput, s)
	}
	id := Identity{
		Owner:  s[:slash],
		Repo:   s[slash+1 : hash],
		Number: num,
	}
	if err := id.Validate(); err != nil {
		return Identity{}, err
	}
	return id, nil
}

// PullRequest is the read-only record the filter consumes. The source
// owns the wire format; only these fields matter here.
type PullRequest struct {
	Identity
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	Author    string    `json:"author"`
	UpdatedAt time.Time `json:"updated_at"`
	Labels    []string  `json:"labels,omitempty"`
}

// Ledger maps a PR identity to its snooze expiry. An entry suppresses
// nudges only while its expiry is strictly in the future.
type Ledger map[Identity]time.Time

// Clone returns an independent copy of the ledger.
func (l Ledger) Clone() Ledger {
	out := make(Ledger, len(l))
	for id, expiry := range l {
		out[id] = expiry
	}
	return out
}

// Options configures one filter pass. Immutable per run.
type Options struct {
	// StaleDays is the inactivity threshold in days. Must be >= 1.
	StaleDays int

	// ExcludeLabels lists label names that exempt a PR from nudging.
	ExcludeLabels []string

	// NotStaleLabel is the label the mark-not-stale action applies.
	// PRs carrying it are never nudged. Empty disables the rule.
	NotStaleLabel string
}

// LabelRequest is an instruction for the label mutator collaborator.
type LabelRequest struct {
	Identity
	Label string
}
