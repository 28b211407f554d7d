package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-blackswan/pr-nudge/internal/nudge"
)

const sampleRules = `
repos:
  - repo: acme/legacy
    skip: true
  - repo: acme/slow-lane
    stale_days: 14
  - repo: acme/widgets
    exclude_labels:
      - dependencies
      - backport
`

func TestLoadBytes(t *testing.T) {
	r, err := LoadBytes([]byte(sampleRules))
	require.NoError(t, err)
	require.Len(t, r.Repos, 3)
	assert.True(t, r.Repos[0].Skip)
	assert.Equal(t, 14, r.Repos[1].StaleDays)
	assert.Equal(t, []string{"dependencies", "backport"}, r.Repos[2].ExcludeLabels)
}

func TestLoadBytes_Invalid(t *testing.T) {
	_, err := LoadBytes([]byte("repos: [{skip: true}]"))
	assert.Error(t, err) // missing repo

	_, err = LoadBytes([]byte("repos: [{repo: a/b, stale_days: -1}]"))
	assert.Error(t, err)

	_, err = LoadBytes([]byte("repos: ["))
	assert.Error(t, err)
}

func TestLoadBytes_EnvExpansion(t *testing.T) {
	t.Setenv("QUIET_REPO", "acme/quiet")
	r, err := LoadBytes([]byte("repos: [{repo: ${QUIET_REPO}, skip: true}]"))
	require.NoError(t, err)
	assert.Equal(t, "acme/quiet", r.Repos[0].Repo)
}

func TestApply(t *testing.T) {
	r, err := LoadBytes([]byte(sampleRules))
	require.NoError(t, err)

	base := nudge.Options{StaleDays: 3, ExcludeLabels: []string{"WIP"}, NotStaleLabel: "not-stale"}

	_, skip := r.Apply(base, "acme", "legacy")
	assert.True(t, skip)

	opts, skip := r.Apply(base, "acme", "slow-lane")
	assert.False(t, skip)
	assert.Equal(t, 14, opts.StaleDays)
	assert.Equal(t, base.ExcludeLabels, opts.ExcludeLabels)

	opts, skip = r.Apply(base, "acme", "widgets")
	assert.False(t, skip)
	assert.Equal(t, 3, opts.StaleDays)
	assert.Equal(t, []string{"WIP", "dependencies", "backport"}, opts.ExcludeLabels)

	// Unmatched repos keep the base options.
	opts, skip = r.Apply(base, "acme", "other")
	assert.False(t, skip)
	assert.Equal(t, base, opts)
}

func TestApply_NilRules(t *testing.T) {
	var r *Rules
	base := nudge.Options{StaleDays: 3}
	opts, skip := r.Apply(base, "acme", "widgets")
	assert.False(t, skip)
	assert.Equal(t, base, opts)
}
