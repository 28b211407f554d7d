package api

import (
	"time"

	"github.com/p-blackswan/pr-nudge/internal/nudge"
)

// SnoozeRequest is the body for PUT /api/v1/snoozes/:owner/:repo/:number.
type SnoozeRequest struct {
	Days int `json:"days"`
}

// SnoozeEntry is one row of the snooze ledger as returned by the API.
type SnoozeEntry struct {
	Owner     string    `json:"owner"`
	Repo      string    `json:"repo"`
	Number    int       `json:"number"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SnoozeListResponse is the response for GET /api/v1/snoozes.
type SnoozeListResponse struct {
	Count   int           `json:"count"`
	Snoozes []SnoozeEntry `json:"snoozes"`
}

// StaleResponse is the response for GET /api/v1/stale.
type StaleResponse struct {
	Count int                 `json:"count"`
	PRs   []nudge.PullRequest `json:"prs"`
}

// PruneResponse is the response for POST /api/v1/snoozes/prune.
type PruneResponse struct {
	Removed int `json:"removed"`
}

// StatusResponse is a generic acknowledgement.
type StatusResponse struct {
	Status string `json:"status"`
}

// ProblemDetail follows RFC 7807 for error responses.
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}
