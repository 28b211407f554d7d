package slack

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/slack-go/slack"

	"github.com/p-blackswan/pr-nudge/internal/nudge"
)

// Action IDs for the digest buttons.
const (
	ActionSnoozeDay    = "snooze_1d"
	ActionSnoozeWeek   = "snooze_7d"
	ActionMarkNotStale = "mark_not_stale"
)

const actionBlockPrefix = "pr_actions_"

// truncate shortens s to max runes, appending "…" if truncated. Cutting
// on a rune boundary keeps the text valid UTF-8, which Slack requires.
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max]) + "…"
}

// DigestBlocks builds the Block Kit message for one digest run. Each
// stale PR gets a section plus an action row with the snooze and
// not-stale buttons; button values carry the PR identity.
func DigestBlocks(prs []nudge.PullRequest, now time.Time) []slack.Block {
	blocks := []slack.Block{
		slack.NewHeaderBlock(
			slack.NewTextBlockObject("plain_text",
				fmt.Sprintf("💤 Stale PR Digest — %d open", len(prs)), false, false),
		),
	}

	if len(prs) == 0 {
		blocks = append(blocks, slack.NewSectionBlock(
			slack.NewTextBlockObject("mrkdwn", "🎉 _No stale pull requests today._", false, false),
			nil, nil,
		))
		return blocks
	}

	blocks = append(blocks, slack.NewDividerBlock())

	for _, pr := range prs {
		blocks = append(blocks, prSection(pr, now), prActions(pr))
	}

	return blocks
}

func prSection(pr nudge.PullRequest, now time.Time) *slack.SectionBlock {
	idle := idleDays(pr.UpdatedAt, now)
	text := fmt.Sprintf("*<%s|%s>*\n%s by %s · idle %dd",
		pr.URL, truncate(pr.Title, 150), pr.Identity, pr.Author, idle)

	return slack.NewSectionBlock(
		slack.NewTextBlockObject("mrkdwn", text, false, false),
		nil, nil,
	)
}

func prActions(pr nudge.PullRequest) *slack.ActionBlock {
	id := pr.Identity.String()
	return slack.NewActionBlock(
		actionBlockPrefix+id,
		slack.NewButtonBlockElement(
			ActionSnoozeDay, id,
			slack.NewTextBlockObject("plain_text", "😴 Snooze 1d", false, false),
		),
		slack.NewButtonBlockElement(
			ActionSnoozeWeek, id,
			slack.NewTextBlockObject("plain_text", "😴 Snooze 7d", false, false),
		),
		slack.NewButtonBlockElement(
			ActionMarkNotStale, id,
			slack.NewTextBlockObject("plain_text", "✅ Not stale", false, false),
		),
	)
}

func idleDays(updatedAt, now time.Time) int {
	if updatedAt.IsZero() || updatedAt.After(now) {
		return 0
	}
	return int(now.Sub(updatedAt).Hours() / 24)
}
