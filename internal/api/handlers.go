package api

import (
	"context"
	"errors"
	"sort"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	perrors "github.com/p-blackswan/pr-nudge/internal/errors"
	"github.com/p-blackswan/pr-nudge/internal/health"
	"github.com/p-blackswan/pr-nudge/internal/nudge"
	"github.com/p-blackswan/pr-nudge/internal/snooze"
)

// Digest is the runner surface the API drives.
type Digest interface {
	Run(ctx context.Context) error
	Stale(ctx context.Context) ([]nudge.PullRequest, error)
	Snooze(ctx context.Context, id nudge.Identity, days int) error
	PruneSnoozes(ctx context.Context) (int, error)
}

// Handlers implements the operator API endpoints.
type Handlers struct {
	digest  Digest
	store   snooze.Store
	checker *health.Checker
	logger  zerolog.Logger
}

// NewHandlers creates the API handlers.
func NewHandlers(d Digest, store snooze.Store, checker *health.Checker, logger zerolog.Logger) *Handlers {
	return &Handlers{
		digest:  d,
		store:   store,
		checker: checker,
		logger:  logger.With().Str("component", "api").Logger(),
	}
}

// Liveness handles GET /healthz.
func (h *Handlers) Liveness(c *fiber.Ctx) error {
	return c.JSON(StatusResponse{Status: "ok"})
}

// Readiness handles GET /readyz.
func (h *Handlers) Readiness(c *fiber.Ctx) error {
	if h.checker != nil && !h.checker.IsReady(c.UserContext()) {
		return c.Status(fiber.StatusServiceUnavailable).JSON(StatusResponse{Status: "not_ready"})
	}
	return c.JSON(StatusResponse{Status: "ready"})
}

// TriggerDigest handles POST /api/v1/digest. Runs one digest cycle
// synchronously so the caller sees the outcome.
func (h *Handlers) TriggerDigest(c *fiber.Ctx) error {
	if err := h.digest.Run(c.UserContext()); err != nil {
		h.logger.Error().Err(err).Msg("manual digest run failed")
		return problemResponse(c, fiber.StatusBadGateway,
			"digest_failed", "Digest Failed", err.Error())
	}
	return c.JSON(StatusResponse{Status: "ok"})
}

// GetStale handles GET /api/v1/stale. Reports what a digest would post
// right now without posting it.
func (h *Handlers) GetStale(c *fiber.Ctx) error {
	prs, err := h.digest.Stale(c.UserContext())
	if err != nil {
		return problemResponse(c, fiber.StatusBadGateway,
			"stale_query_failed", "Stale Query Failed", err.Error())
	}
	if prs == nil {
		prs = []nudge.PullRequest{}
	}
	return c.JSON(StaleResponse{Count: len(prs), PRs: prs})
}

// ListSnoozes handles GET /api/v1/snoozes.
func (h *Handlers) ListSnoozes(c *fiber.Ctx) error {
	ledger, err := h.store.Snapshot(c.UserContext())
	if err != nil {
		return problemResponse(c, fiber.StatusInternalServerError,
			"snooze_read_failed", "Snooze Read Failed", err.Error())
	}

	entries := make([]SnoozeEntry, 0, len(ledger))
	for id, expiry := range ledger {
		entries = append(entries, SnoozeEntry{
			Owner:     id.Owner,
			Repo:      id.Repo,
			Number:    id.Number,
			ExpiresAt: expiry,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Owner != b.Owner {
			return a.Owner < b.Owner
		}
		if a.Repo != b.Repo {
			return a.Repo < b.Repo
		}
		return a.Number < b.Number
	})

	return c.JSON(SnoozeListResponse{Count: len(entries), Snoozes: entries})
}

// PutSnooze handles PUT /api/v1/snoozes/:owner/:repo/:number.
func (h *Handlers) PutSnooze(c *fiber.Ctx) error {
	id, err := identityFromParams(c)
	if err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_identity", "Invalid Identity", err.Error())
	}

	var req SnoozeRequest
	if err := c.BodyParser(&req); err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_body", "Invalid Body", "Request body must be JSON with a days field")
	}

	if err := h.digest.Snooze(c.UserContext(), id, req.Days); err != nil {
		if errors.Is(err, perrors.ErrInvalidInput) {
			return problemResponse(c, fiber.StatusBadRequest,
				"invalid_snooze", "Invalid Snooze", err.Error())
		}
		return problemResponse(c, fiber.StatusInternalServerError,
			"snooze_failed", "Snooze Failed", err.Error())
	}

	return c.JSON(StatusResponse{Status: "ok"})
}

// DeleteSnooze handles DELETE /api/v1/snoozes/:owner/:repo/:number.
func (h *Handlers) DeleteSnooze(c *fiber.Ctx) error {
	id, err := identityFromParams(c)
	if err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_identity", "Invalid Identity", err.Error())
	}

	ledger, err := h.store.Snapshot(c.UserContext())
	if err != nil {
		return problemResponse(c, fiber.StatusInternalServerError,
			"snooze_read_failed", "Snooze Read Failed", err.Error())
	}
	if _, ok := ledger[id]; !ok {
		return problemResponse(c, fiber.StatusNotFound,
			"snooze_not_found", "Snooze Not Found",
			"No snooze entry for "+id.String())
	}

	if err := h.store.Delete(c.UserContext(), id); err != nil {
		return problemResponse(c, fiber.StatusInternalServerError,
			"snooze_delete_failed", "Snooze Delete Failed", err.Error())
	}
	return c.JSON(StatusResponse{Status: "ok"})
}

// PruneSnoozes handles POST /api/v1/snoozes/prune.
func (h *Handlers) PruneSnoozes(c *fiber.Ctx) error {
	removed, err := h.digest.PruneSnoozes(c.UserContext())
	if err != nil {
		return problemResponse(c, fiber.StatusInternalServerError,
			"prune_failed", "Prune Failed", err.Error())
	}
	return c.JSON(PruneResponse{Removed: removed})
}

func identityFromParams(c *fiber.Ctx) (nudge.Identity, error) {
	number, err := strconv.Atoi(c.Params("number"))
	if err != nil {
		return nudge.Identity{}, errors.New("PR number must be an integer")
	}
	id := nudge.Identity{
		Owner:  c.Params("owner"),
		Repo:   c.Params("repo"),
		Number: number,
	}
	if err := id.Validate(); err != nil {
		return nudge.Identity{}, err
	}
	return id, nil
}
