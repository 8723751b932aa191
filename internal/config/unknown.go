package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions when unknown config keys are detected.
const maxLevenshteinDistance = 3

// knownKeys lists the valid keys of each section. [sites] is a free-form
// map and never has undecoded keys.
var knownKeys = map[string][]string{
	"auth": {
		"tenant_id", "client_id", "client_secret", "redirect_uri", "authority",
		"scope_profile", "prompt", "expiry_window", "flow_ttl",
	},
	"storage": {"site_url", "drive_id", "root_path", "upload_parallelism"},
	"session": {"backend", "sqlite_path", "redis_url", "session_ttl", "reap_interval"},
	"server":  {"listen", "cookie_name", "cookie_secure"},
	"network": {"graph_url", "request_timeout", "upload_timeout", "user_agent"},
	"logging": {"log_level", "log_format", "log_file"},
	"sites":   {},
}

// knownSections is the sorted list of section names, sorted for
// deterministic suggestions.
var knownSections = func() []string {
	names := make([]string, 0, len(knownKeys))
	for k := range knownKeys {
		names = append(names, k)
	}

	sort.Strings(names)

	return names
}()

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns
// an error with "did you mean?" suggestions for each unknown key.
func checkUnknownKeys(md *toml.MetaData) error {
	var errs []error

	reported := make(map[string]bool)

	for _, key := range md.Undecoded() {
		err := unknownKeyError(md, key)
		if err == nil || reported[err.Error()] {
			continue
		}

		reported[err.Error()] = true
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func unknownKeyError(md *toml.MetaData, key toml.Key) error {
	section := key[0]

	leaves, ok := knownKeys[section]
	if !ok {
		if len(key) > 1 {
			return nil // reported with its table
		}

		if md.Type(section) == "Hash" {
			return withSuggestion(fmt.Sprintf("unknown config section [%s]", section), section, knownSections)
		}

		if home := sectionOf(section); home != "" {
			return fmt.Errorf("config key %q must be inside [%s]", section, home)
		}

		return fmt.Errorf("unknown config key %q", section)
	}

	if len(key) < 2 { //nolint:mnd // section.key
		return nil
	}

	return withSuggestion(fmt.Sprintf("unknown config key %q in [%s]", key[1], section), key[1], leaves)
}

// sectionOf returns the section that defines leaf, if any.
func sectionOf(leaf string) string {
	for _, section := range knownSections {
		for _, k := range knownKeys[section] {
			if k == leaf {
				return section
			}
		}
	}

	return ""
}

func withSuggestion(msg, unknown string, known []string) error {
	if suggestion := closestMatch(unknown, known); suggestion != "" {
		return fmt.Errorf("%s, did you mean %q?", msg, suggestion)
	}

	return errors.New(msg)
}

// closestMatch finds the closest known key by Levenshtein distance.
// Returns empty string if no match is within maxLevenshteinDistance.
func closestMatch(unknown string, known []string) string {
	best := ""
	bestDist := maxLevenshteinDistance + 1

	for _, k := range known {
		d := levenshtein(strings.ToLower(unknown), k)
		if d < bestDist {
			bestDist = d
			best = k
		}
	}

	if bestDist <= maxLevenshteinDistance {
		return best
	}

	return ""
}

// levenshtein computes the edit distance between two strings.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}

	if b == "" {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := range len(a) {
		curr[0] = i + 1

		for j := range len(b) {
			cost := 1
			if a[i] == b[j] {
				cost = 0
			}

			curr[j+1] = min(curr[j]+1, prev[j+1]+1, prev[j]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}
