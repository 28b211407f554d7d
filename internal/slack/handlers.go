package slack

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"

	"github.com/p-blackswan/pr-nudge/internal/metrics"
	"github.com/p-blackswan/pr-nudge/internal/nudge"
)

// ActionHandler executes the digest button actions.
type ActionHandler interface {
	Snooze(ctx context.Context, id nudge.Identity, days int) error
	MarkNotStale(ctx context.Context, id nudge.Identity) error
}

// Handler processes Socket Mode events. Only interactive callbacks from
// the digest buttons are routed; everything else is ignored.
type Handler struct {
	api     BotAPI
	socket  *socketmode.Client
	logger  zerolog.Logger
	actions ActionHandler
	metrics *metrics.Metrics
}

// NewHandler creates a new event handler.
func NewHandler(logger zerolog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{
		logger:  logger.With().Str("component", "slack.handler").Logger(),
		metrics: m,
	}
}

// SetActions sets the handler for digest button callbacks.
func (h *Handler) SetActions(a ActionHandler) {
	h.actions = a
}

// HandleEvent routes Socket Mode events to the appropriate handler.
func (h *Handler) HandleEvent(ctx context.Context, evt socketmode.Event) {
	switch evt.Type {
	case socketmode.EventTypeInteractive:
		h.handleInteraction(ctx, evt)
	default:
		h.logger.Debug().Str("type", string(evt.Type)).Msg("unhandled event type")
	}
}

func (h *Handler) handleInteraction(ctx context.Context, evt socketmode.Event) {
	// Acknowledge first, Slack requires this within 3 seconds.
	if h.socket != nil && evt.Request != nil {
		h.socket.Ack(*evt.Request)
	}

	callback, ok := evt.Data.(slack.InteractionCallback)
	if !ok {
		return
	}

	for _, action := range callback.ActionCallback.BlockActions {
		h.logger.Info().
			Str("action", action.ActionID).
			Str("value", action.Value).
			Str("user", callback.User.ID).
			Msg("interaction received")

		switch action.ActionID {
		case ActionSnoozeDay:
			h.handleSnooze(ctx, callback, action, 1)
		case ActionSnoozeWeek:
			h.handleSnooze(ctx, callback, action, 7)
		case ActionMarkNotStale:
			h.handleMarkNotStale(ctx, callback, action)
		}
	}
}

func (h *Handler) handleSnooze(ctx context.Context, callback slack.InteractionCallback, action *slack.BlockAction, days int) {
	id, err := nudge.ParseIdentity(action.Value)
	if err != nil {
		h.logger.Warn().Err(err).Str("value", action.Value).Msg("malformed snooze value")
		return
	}

	if h.actions != nil {
		if err := h.actions.Snooze(ctx, id, days); err != nil {
			h.logger.Error().Err(err).Str("pr", id.String()).Msg("snooze failed")
			h.recordAction("snooze", "error")
			return
		}
	}
	h.recordAction("snooze", "ok")

	note := fmt.Sprintf("😴 %s snoozed for %dd by <@%s>", id, days, callback.User.ID)
	h.resolveActionRow(callback, id, note)
}

func (h *Handler) handleMarkNotStale(ctx context.Context, callback slack.InteractionCallback, action *slack.BlockAction) {
	id, err := nudge.ParseIdentity(action.Value)
	if err != nil {
		h.logger.Warn().Err(err).Str("value", action.Value).Msg("malformed not-stale value")
		return
	}

	if h.actions != nil {
		if err := h.actions.MarkNotStale(ctx, id); err != nil {
			h.logger.Error().Err(err).Str("pr", id.String()).Msg("mark not stale failed")
			h.recordAction("mark_not_stale", "error")
			return
		}
	}
	h.recordAction("mark_not_stale", "ok")

	note := fmt.Sprintf("✅ %s marked not stale by <@%s>", id, callback.User.ID)
	h.resolveActionRow(callback, id, note)
}

// resolveActionRow rewrites the digest message, replacing the acted PR's
// button row with a context line noting who did what.
func (h *Handler) resolveActionRow(callback slack.InteractionCallback, id nudge.Identity, note string) {
	if h.api == nil {
		return
	}

	target := actionBlockPrefix + id.String()
	var updated []slack.Block
	for _, block := range callback.Message.Msg.Blocks.BlockSet {
		if ab, ok := block.(*slack.ActionBlock); ok && ab.BlockID == target {
			updated = append(updated, slack.NewContextBlock(
				"resolved_"+id.String(),
				slack.NewTextBlockObject("mrkdwn", note, false, false),
			))
			continue
		}
		updated = append(updated, block)
	}

	_, _, _, err := h.api.UpdateMessage(
		callback.Channel.ID,
		callback.Message.Timestamp,
		slack.MsgOptionBlocks(updated...),
	)
	if err != nil {
		h.logger.Warn().Err(err).Str("pr", id.String()).Msg("failed to update digest message")
	}
}

func (h *Handler) recordAction(action, result string) {
	if h.metrics != nil {
		h.metrics.RecordAction(action, result)
	}
}
