// Package pattern compiles event-type registration patterns into matchers.
//
// Event types are dot-segmented names ("order.created"). A pattern is
// matched segment by segment:
//
//   - a literal segment matches only itself
//   - "*" in a non-final position matches exactly one segment
//   - "*" as the final segment matches one or more trailing segments, so
//     "device.*" matches "device.created" and "device.sensor.read" but
//     not "device" itself
//   - "**" matches zero or more segments anywhere in the pattern
//   - the bare pattern "*" therefore matches every event type
//
// Matching is boolean; registration order never influences whether a
// pattern matches, only the execution order among matches.
package pattern

import (
	"fmt"
	"strings"
)

const (
	// Separator splits event types and patterns into segments.
	Separator = "."

	wildcardOne  = "*"
	wildcardMany = "**"
)

// Pattern is a compiled event-type pattern.
type Pattern struct {
	raw      string
	segments []string
}

// Compile validates and compiles a registration pattern.
func Compile(raw string) (Pattern, error) {
	if raw == "" {
		return Pattern{}, fmt.Errorf("empty pattern")
	}
	segments := strings.Split(raw, Separator)
	for _, seg := range segments {
		if seg == "" {
			return Pattern{}, fmt.Errorf("pattern %q contains an empty segment", raw)
		}
	}
	return Pattern{raw: raw, segments: segments}, nil
}

// MustCompile is Compile for patterns known valid at build time; it panics
// on error.
func MustCompile(raw string) Pattern {
	p, err := Compile(raw)
	if err != nil {
		panic(err)
	}
	return p
}

// CompileAll compiles a list of patterns, failing on the first invalid one.
func CompileAll(raws []string) ([]Pattern, error) {
	patterns := make([]Pattern, 0, len(raws))
	for _, raw := range raws {
		p, err := Compile(raw)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, p)
	}
	return patterns, nil
}

// String returns the original pattern text.
func (p Pattern) String() string { return p.raw }

// IsWildcard reports whether the pattern contains any wildcard segment.
func (p Pattern) IsWildcard() bool {
	for _, seg := range p.segments {
		if seg == wildcardOne || seg == wildcardMany {
			return true
		}
	}
	return false
}

// Matches reports whether eventType matches the pattern.
func (p Pattern) Matches(eventType string) bool {
	if eventType == "" {
		return false
	}
	return matchSegments(strings.Split(eventType, Separator), p.segments)
}

// MatchAny reports whether eventType matches at least one pattern.
func MatchAny(patterns []Pattern, eventType string) bool {
	for _, p := range patterns {
		if p.Matches(eventType) {
			return true
		}
	}
	return false
}

// matchSegments walks type and pattern segments in lockstep, recursing for
// the variable-width wildcard.
func matchSegments(typ, pat []string) bool {
	ti, pi := 0, 0

	for pi < len(pat) {
		switch pat[pi] {
		case wildcardMany:
			// ** matches zero or more segments.
			for i := ti; i <= len(typ); i++ {
				if matchSegments(typ[i:], pat[pi+1:]) {
					return true
				}
			}
			return false

		case wildcardOne:
			if pi == len(pat)-1 {
				// A trailing * consumes one or more segments.
				return ti < len(typ)
			}
			if ti >= len(typ) {
				return false
			}
			ti++
			pi++

		default:
			if ti >= len(typ) || typ[ti] != pat[pi] {
				return false
			}
			ti++
			pi++
		}
	}

	return ti == len(typ)
}
