package input

import (
	"slices"
	"strings"
)

// Matcher checks a resource ID or button event against a configured pattern.
// Implementations are immutable and safe for concurrent use.
type Matcher interface {
	Matches(value string) bool
	String() string
}

type matchAny struct{}

func (matchAny) Matches(string) bool { return true }
func (matchAny) String() string      { return "*" }

type matchExact string

func (m matchExact) Matches(value string) bool { return string(m) == value }
func (m matchExact) String() string            { return string(m) }

type matchOneOf []string

func (m matchOneOf) Matches(value string) bool { return slices.Contains(m, value) }

func (m matchOneOf) String() string {
	if len(m) == 0 {
		return "(none)"
	}
	return strings.Join(m, "|")
}

// ParseMatcher builds a Matcher from a config pattern.
// "*" and the empty pattern match everything, "a|b" matches either
// alternative and anything else is an exact match. Whitespace around
// alternatives is ignored.
func ParseMatcher(pattern string) Matcher {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" || pattern == "*" {
		return matchAny{}
	}
	if !strings.Contains(pattern, "|") {
		return matchExact(pattern)
	}

	var alts matchOneOf
	for _, part := range strings.Split(pattern, "|") {
		part = strings.TrimSpace(part)
		if part == "*" {
			return matchAny{}
		}
		if part != "" && !slices.Contains(alts, part) {
			alts = append(alts, part)
		}
	}
	if len(alts) == 1 {
		return matchExact(alts[0])
	}
	return alts
}
