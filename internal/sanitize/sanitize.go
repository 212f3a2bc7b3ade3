// Package sanitize redacts sensitive metadata values before events leave
// the process.
package sanitize

import (
	"strings"

	"github.com/dotcommander/missiontrack/internal/models"
)

// Redacted replaces the value of every sensitive key.
const Redacted = "***"

// DefaultSensitiveKeys are the key substrings redacted when none are configured.
//
//nolint:gochecknoglobals // read-only defaults
var DefaultSensitiveKeys = []string{"password", "token", "secret", "key", "api_key"}

// Sanitizer redacts metadata values whose keys contain a sensitive substring.
// It is safe for concurrent use.
type Sanitizer struct {
	substrings []string
}

// New returns a Sanitizer matching the given substrings case-insensitively.
// An empty list falls back to DefaultSensitiveKeys.
func New(substrings []string) *Sanitizer {
	s := &Sanitizer{}
	for _, sub := range substrings {
		sub = strings.ToLower(strings.TrimSpace(sub))
		if sub != "" {
			s.substrings = append(s.substrings, sub)
		}
	}
	if len(s.substrings) == 0 {
		s.substrings = append(s.substrings, DefaultSensitiveKeys...)
	}
	return s
}

// Sensitive reports whether key matches any configured substring.
func (s *Sanitizer) Sensitive(key string) bool {
	lower := strings.ToLower(key)
	for _, sub := range s.substrings {
		if strings.Contains(lower, sub) {
			return true
		}
	}
	return false
}

// Sanitize returns a scrubbed copy of meta. Nested maps are copied and
// scrubbed the same way; meta itself is never modified.
func (s *Sanitizer) Sanitize(meta models.Metadata) models.Metadata {
	out := make(models.Metadata, len(meta))
	for k, v := range meta {
		if s.Sensitive(k) {
			out[k] = models.String(Redacted)
			continue
		}
		if nested, ok := v.Nested(); ok {
			out[k] = models.Map(s.Sanitize(nested))
			continue
		}
		out[k] = v
	}
	return out
}
