// Package featureflag evaluates runtime feature flags with percentage rollouts.
//
// Flags are rows of (key, enabled, rollout_pct, platform). A flag is on for
// an identity when it is enabled, targets the serving platform, and the
// identity falls into the rollout percentage. Bucketing hashes
// "key:identity" with 32-bit FNV-1a, so an identity keeps its bucket across
// processes and restarts.
package featureflag

import (
	"hash/fnv"
	"strings"
)

// PlatformAll targets every platform.
const PlatformAll = "all"

// Flag is one feature flag definition.
type Flag struct {
	Key        string `json:"key" koanf:"key"`
	Enabled    bool   `json:"enabled" koanf:"enabled"`
	RolloutPct int    `json:"rollout_pct" koanf:"rollout_pct"`
	Platform   string `json:"platform" koanf:"platform"`
}

// Bucket maps key and identity to a stable bucket in [0, 100).
func Bucket(key, identity string) int {
	h := fnv.New32a()
	h.Write([]byte(key + ":" + identity))
	return int(h.Sum32() % 100)
}

// EnabledFor reports whether the flag is on for identity on platform.
func (f Flag) EnabledFor(identity, platform string) bool {
	if !f.Enabled {
		return false
	}
	if f.Platform != "" && f.Platform != PlatformAll && f.Platform != platform {
		return false
	}
	if f.RolloutPct >= 100 {
		return true
	}
	if f.RolloutPct <= 0 || identity == "" {
		return false
	}
	return Bucket(f.Key, identity) < f.RolloutPct
}

// ParseOverride reads an override value. ok is false for unrecognized values.
func ParseOverride(value string) (enabled bool, ok bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "on":
		return true, true
	case "0", "false", "off":
		return false, true
	}
	return false, false
}

// ParseOverrides reads a comma-separated list of key=value overrides,
// for example "vector_ranking=on,new_onboarding=off". Unrecognized
// entries are skipped.
func ParseOverrides(list string) map[string]bool {
	overrides := make(map[string]bool)
	for _, entry := range strings.Split(list, ",") {
		key, value, found := strings.Cut(entry, "=")
		key = strings.TrimSpace(key)
		if !found || key == "" {
			continue
		}
		if enabled, ok := ParseOverride(value); ok {
			overrides[key] = enabled
		}
	}
	return overrides
}
