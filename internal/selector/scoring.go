// Package selector persists site/field selector mappings and verifies them
// against live or static pages.
package selector

import (
	"regexp"
	"strings"
)

// Scorer ranks a selector candidate; higher is better. The default favors
// short, attribute-anchored selectors over brittle positional chains.
type Scorer func(selector string) float64

var positionalPredicate = regexp.MustCompile(`\[\d+\]|:nth-`)

// DefaultScore implements the candidate ranking:
//
//	+10.0 when the selector is anchored on an id
//	 +3.0 when it uses a class
//	 +5.0 when it carries no positional predicate
//	 -0.5 per path segment
func DefaultScore(selector string) float64 {
	var score float64
	if strings.Contains(selector, "@id") || strings.Contains(selector, "#") {
		score += 10
	}
	if strings.Contains(selector, "@class") || containsCSSClass(selector) {
		score += 3
	}
	if !positionalPredicate.MatchString(selector) {
		score += 5
	}
	score -= 0.5 * float64(segmentCount(selector))
	return score
}

// containsCSSClass detects a ".class" token without tripping on XPath axes
// like "./" or relative paths.
func containsCSSClass(selector string) bool {
	if strings.HasPrefix(selector, "/") || strings.HasPrefix(selector, "./") || strings.HasPrefix(selector, "(") {
		return false
	}
	for i, r := range selector {
		if r != '.' {
			continue
		}
		if i+1 < len(selector) && (isIdentRune(rune(selector[i+1]))) {
			return true
		}
	}
	return false
}

func isIdentRune(r rune) bool {
	return r == '_' || r == '-' ||
		(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

func segmentCount(selector string) int {
	if strings.HasPrefix(selector, "/") || strings.HasPrefix(selector, "./") || strings.HasPrefix(selector, "(") {
		n := 0
		for _, seg := range strings.Split(selector, "/") {
			if strings.TrimSpace(seg) != "" {
				n++
			}
		}
		return n
	}
	n := 0
	for _, seg := range strings.Split(selector, ">") {
		for _, part := range strings.Fields(seg) {
			if part != "" && part != "+" && part != "~" {
				n++
			}
		}
	}
	return n
}

// ChooseBestSelector picks the highest-scoring candidate. Ties resolve to the
// earliest candidate, so callers should order candidates by preference. Empty
// candidates are skipped; an empty list yields "".
func ChooseBestSelector(candidates []string, score Scorer) string {
	if score == nil {
		score = DefaultScore
	}
	best := ""
	bestScore := 0.0
	for _, c := range candidates {
		if c == "" {
			continue
		}
		s := score(c)
		if best == "" || s > bestScore {
			best = c
			bestScore = s
		}
	}
	return best
}
