package classifier

import (
	"regexp"
	"strings"
	"sync"

	"github.com/ignite/opinion-monitor/internal/domain"
)

// compiledRule pairs a stored rule with its compiled regex (nil for keyword
// rules).
type compiledRule struct {
	rule domain.FeedbackRule
	re   *regexp.Regexp
}

func (cr compiledRule) matches(text string) bool {
	if cr.re != nil {
		return cr.re.MatchString(text)
	}
	return strings.Contains(text, cr.rule.Pattern)
}

// RuleSet holds the currently enabled suppression rules. Swapped atomically
// on each reload so classification never sees a half-updated set.
type RuleSet struct {
	suppress  []compiledRule
	downgrade []compiledRule
}

// CompileRules builds a RuleSet, skipping rules below minConfidence and
// regex rules that fail to compile.
func CompileRules(rules []domain.FeedbackRule, minConfidence float64) *RuleSet {
	rs := &RuleSet{}
	for _, r := range rules {
		if r.Confidence < minConfidence {
			continue
		}
		cr := compiledRule{rule: r}
		if r.RuleType == domain.RuleTypeRegex {
			re, err := regexp.Compile(r.Pattern)
			if err != nil {
				continue
			}
			cr.re = re
		}
		switch r.Action {
		case domain.ActionSuppress:
			rs.suppress = append(rs.suppress, cr)
		case domain.ActionDowngrade:
			rs.downgrade = append(rs.downgrade, cr)
		}
	}
	return rs
}

// MatchSuppress returns the pattern of the first suppress rule matching
// text, or "".
func (rs *RuleSet) MatchSuppress(text string) string {
	for _, cr := range rs.suppress {
		if cr.matches(text) {
			return cr.rule.Pattern
		}
	}
	return ""
}

// SeverityCeiling returns the maximum severity allowed for text: medium when
// any downgrade rule matches, high otherwise.
func (rs *RuleSet) SeverityCeiling(text string) string {
	for _, cr := range rs.downgrade {
		if cr.matches(text) {
			return domain.SeverityMedium
		}
	}
	return domain.SeverityHigh
}

// Keywords is the admin-managed suppress-keyword list. Edits from the
// dashboard take effect on the next classification.
type Keywords struct {
	mu    sync.RWMutex
	words []string
}

// NewKeywords seeds the list from configuration.
func NewKeywords(words []string) *Keywords {
	k := &Keywords{}
	k.Set(words)
	return k
}

// List returns a copy of the current keywords.
func (k *Keywords) List() []string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := make([]string, len(k.words))
	copy(out, k.words)
	return out
}

// Set replaces the keyword list, dropping empties and duplicates.
func (k *Keywords) Set(words []string) {
	seen := make(map[string]struct{})
	var clean []string
	for _, w := range words {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		clean = append(clean, w)
	}
	k.mu.Lock()
	k.words = clean
	k.mu.Unlock()
}

// Match returns the first keyword contained in text, or "".
func (k *Keywords) Match(text string) string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	for _, w := range k.words {
		if strings.Contains(text, w) {
			return w
		}
	}
	return ""
}
