package feedback

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/ignite/opinion-monitor/internal/domain"
)

// compileLookback bounds how much feedback history one compile pass mines.
const compileLookback = 30 * 24 * time.Hour

// ngramSize is the character n-gram length mined from Chinese titles and
// reasons. Four characters is long enough to be a phrase, short enough to
// recur.
const ngramSize = 4

var (
	explicitKeywordPattern = regexp.MustCompile(`(?:关键词|关键字|排除|规则)[:：]\s*(.+)`)
	quotedPattern          = regexp.MustCompile(`[“"《](.+?)[”"》]`)
	termSplitPattern       = regexp.MustCompile(`[，,、;；\s]+`)
)

// ExtractRuleCandidates pulls explicitly named patterns out of feedback
// text: a labelled "关键词: ..." line and quoted terms. Terms outside 2..20
// characters are dropped. Explicit candidates carry confidence 0.9.
func ExtractRuleCandidates(text string) []domain.FeedbackRule {
	if text == "" {
		return nil
	}

	var raws []string
	if m := explicitKeywordPattern.FindStringSubmatch(text); m != nil {
		raws = append(raws, m[1])
	}
	for _, m := range quotedPattern.FindAllStringSubmatch(text, -1) {
		raws = append(raws, m[1])
	}

	seen := make(map[string]struct{})
	var rules []domain.FeedbackRule
	for _, raw := range raws {
		for _, part := range termSplitPattern.Split(raw, -1) {
			term := strings.TrimSpace(part)
			n := len([]rune(term))
			if n < 2 || n > 20 {
				continue
			}
			if _, dup := seen[term]; dup {
				continue
			}
			seen[term] = struct{}{}
			rules = append(rules, domain.FeedbackRule{
				Pattern:    term,
				RuleType:   domain.RuleTypeKeyword,
				Action:     domain.ActionSuppress,
				Confidence: 0.9,
				Enabled:    true,
			})
		}
	}
	return rules
}

// CompileRules promotes recurring false-positive n-grams to suppression
// rules: an n-gram seen in at least RulePromoteThreshold false-positive
// feedbacks and in zero confirmed-negative feedbacks becomes a keyword rule
// with confidence K/(K+noise). Promotion is idempotent via the rule table's
// unique key; manually-authored keywords are never touched.
func (s *Service) CompileRules(ctx context.Context) error {
	samples, err := s.store.RecentFeedback(ctx, s.now().Add(-compileLookback))
	if err != nil {
		return err
	}

	falseCounts := make(map[string]int)
	confirmedCounts := make(map[string]int)
	for _, sm := range samples {
		grams := ngrams(sm.Title+" "+sm.Reason, ngramSize)
		if sm.Feedback.Judgment {
			for g := range grams {
				confirmedCounts[g]++
			}
		} else {
			for g := range grams {
				falseCounts[g]++
			}
		}
	}

	threshold := s.cfg.RulePromoteThreshold
	if threshold <= 0 {
		threshold = 3
	}
	promoted := 0
	for gram, k := range falseCounts {
		noise := confirmedCounts[gram]
		if k < threshold || noise > 0 {
			continue
		}
		rule := &domain.FeedbackRule{
			Pattern:    gram,
			RuleType:   domain.RuleTypeKeyword,
			Action:     domain.ActionSuppress,
			Confidence: float64(k) / float64(k+noise),
			Enabled:    true,
		}
		inserted, err := s.store.InsertRule(ctx, rule)
		if err != nil {
			return err
		}
		if inserted {
			promoted++
			s.log.Info("suppression rule promoted", "pattern", gram, "occurrences", k)
		}
	}
	if promoted > 0 {
		s.log.Info("rule compilation finished", "promoted", promoted, "samples", len(samples))
	}
	return nil
}

// ngrams returns the set of character n-grams of Han text, skipping windows
// containing whitespace or ASCII punctuation.
func ngrams(text string, n int) map[string]struct{} {
	runes := []rune(text)
	out := make(map[string]struct{})
	for i := 0; i+n <= len(runes); i++ {
		window := runes[i : i+n]
		ok := true
		for _, r := range window {
			if r <= 0x2FFF { // ASCII, whitespace, CJK punctuation block boundary
				ok = false
				break
			}
		}
		if ok {
			out[string(window)] = struct{}{}
		}
	}
	return out
}
