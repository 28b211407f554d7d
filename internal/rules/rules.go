// Package rules — optional YAML overrides for staleness filtering.
// Supports environment variable expansion via ${VAR} or $VAR syntax in values.
package rules

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/p-blackswan/pr-nudge/internal/nudge"
)

// Rules is the top-level document loaded from the rules file.
type Rules struct {
	// Repos lists per-repository overrides of the global settings.
	Repos []RepoRule `yaml:"repos"`
}

// RepoRule overrides filter settings for a single repository.
type RepoRule struct {
	// Repo is the "owner/name" the rule applies to.
	Repo string `yaml:"repo"`

	// Skip excludes the repository from digests entirely.
	Skip bool `yaml:"skip"`

	// StaleDays overrides the global threshold. 0 keeps the global value.
	StaleDays int `yaml:"stale_days"`

	// ExcludeLabels are added on top of the global exclusion set.
	ExcludeLabels []string `yaml:"exclude_labels"`
}

// Load reads and parses a YAML rules file, expanding env vars.
func Load(path string) (*Rules, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rules: read %s: %w", path, err)
	}
	return LoadBytes(raw)
}

// LoadBytes parses YAML rules from bytes (useful for testing).
func LoadBytes(data []byte) (*Rules, error) {
	expanded := expandEnvVars(string(data))

	var r Rules
	if err := yaml.Unmarshal([]byte(expanded), &r); err != nil {
		return nil, fmt.Errorf("rules: parse: %w", err)
	}

	for i, rule := range r.Repos {
		if rule.Repo == "" {
			return nil, fmt.Errorf("rules: repos[%d] missing repo", i)
		}
		if rule.StaleDays < 0 {
			return nil, fmt.Errorf("rules: repos[%d] (%s): stale_days must not be negative", i, rule.Repo)
		}
	}
	return &r, nil
}

// Apply merges the rule for owner/repo (if any) into the base options.
// skip reports whether the repository is excluded from digests.
func (r *Rules) Apply(base nudge.Options, owner, repo string) (nudge.Options, bool) {
	if r == nil {
		return base, false
	}
	full := owner + "/" + repo
	for _, rule := range r.Repos {
		if rule.Repo != full {
			continue
		}
		if rule.Skip {
			return base, true
		}
		out := base
		if rule.StaleDays > 0 {
			out.StaleDays = rule.StaleDays
		}
		if len(rule.ExcludeLabels) > 0 {
			merged := make([]string, 0, len(base.ExcludeLabels)+len(rule.ExcludeLabels))
			merged = append(merged, base.ExcludeLabels...)
			merged = append(merged, rule.ExcludeLabels...)
			out.ExcludeLabels = merged
		}
		return out, false
	}
	return base, false
}

// envVarPattern matches ${VAR_NAME} and $VAR_NAME.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars replaces ${VAR} and $VAR with the corresponding environment
// variable value. Missing vars are replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := strings.TrimPrefix(match, "${")
		name = strings.TrimSuffix(name, "}")
		name = strings.TrimPrefix(name, "$")
		return os.Getenv(name)
	})
}
