package keyword

import (
	"strings"

	"golang.org/x/text/cases"
)

// BrandMatcher flags keywords containing any configured brand term,
// case-insensitively under Unicode case folding.
type BrandMatcher struct {
	terms []string
}

// NewBrandMatcher builds a matcher from terms; blank terms are ignored.
func NewBrandMatcher(terms []string) *BrandMatcher {
	m := &BrandMatcher{}
	seen := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		folded := fold(strings.TrimSpace(t))
		if folded == "" {
			continue
		}
		if _, dup := seen[folded]; dup {
			continue
		}
		seen[folded] = struct{}{}
		m.terms = append(m.terms, folded)
	}
	return m
}

// ParseTerms splits a comma-separated list of brand terms.
func ParseTerms(list string) []string {
	var terms []string
	for _, t := range strings.Split(list, ",") {
		if t = strings.TrimSpace(t); t != "" {
			terms = append(terms, t)
		}
	}
	return terms
}

// Empty reports whether no terms are configured.
func (m *BrandMatcher) Empty() bool {
	return m == nil || len(m.terms) == 0
}

// Terms returns the folded terms.
func (m *BrandMatcher) Terms() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.terms...)
}

func (m *BrandMatcher) Match(keyword string) bool {
	if m.Empty() {
		return false
	}
	k := fold(keyword)
	for _, t := range m.terms {
		if strings.Contains(k, t) {
			return true
		}
	}
	return false
}

// cases.Caser is stateful, so a fresh one is used per call.
func fold(s string) string {
	return cases.Fold().String(s)
}
