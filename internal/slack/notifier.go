package slack

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"

	"github.com/p-blackswan/pr-nudge/internal/nudge"
)

// Notifier posts digest messages to the configured channel.
type Notifier struct {
	api     BotAPI
	channel string
	logger  zerolog.Logger
}

// NewNotifier creates a digest notifier.
func NewNotifier(api BotAPI, channel string, logger zerolog.Logger) *Notifier {
	return &Notifier{
		api:     api,
		channel: channel,
		logger:  logger.With().Str("component", "slack.notifier").Logger(),
	}
}

// PostDigest posts one digest message listing the stale PRs.
func (n *Notifier) PostDigest(ctx context.Context, prs []nudge.PullRequest, now time.Time) error {
	blocks := DigestBlocks(prs, now)

	_, ts, err := n.api.PostMessage(
		n.channel,
		slack.MsgOptionBlocks(blocks...),
		slack.MsgOptionText(fmt.Sprintf("Stale PR digest: %d open", len(prs)), false),
	)
	if err != nil {
		return fmt.Errorf("posting digest: %w", err)
	}

	n.logger.Info().
		Str("channel", n.channel).
		Str("ts", ts).
		Int("stale", len(prs)).
		Msg("posted digest")
	return nil
}
