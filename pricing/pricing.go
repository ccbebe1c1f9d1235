// Package pricing maps request paths to price rules. The table is an
// ordered list scanned linearly; the first matching rule wins.
package pricing

import "strings"

// Rule prices a set of paths. Matcher is either an exact path or a prefix
// pattern ending in "/*".
type Rule struct {
	Matcher     string
	PriceUnits  uint64
	Description string
}

// Table is an immutable, ordered rule list built once at startup.
type Table struct {
	rules []Rule
}

func NewTable(rules []Rule) *Table {
	owned := make([]Rule, len(rules))
	copy(owned, rules)
	return &Table{rules: owned}
}

// Match returns the first rule whose matcher covers path, or nil when the
// path is unprotected. Matching is deterministic and has no side effects.
func (t *Table) Match(path string) *Rule {
	for i := range t.rules {
		if matches(t.rules[i].Matcher, path) {
			return &t.rules[i]
		}
	}
	return nil
}

// Rules returns a copy of the table for enumeration endpoints.
func (t *Table) Rules() []Rule {
	out := make([]Rule, len(t.rules))
	copy(out, t.rules)
	return out
}

func matches(matcher, path string) bool {
	if prefix, ok := strings.CutSuffix(matcher, "/*"); ok {
		return path == prefix || strings.HasPrefix(path, prefix+"/")
	}
	return path == matcher
}
