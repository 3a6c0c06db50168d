package classifier

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ignite/opinion-monitor/internal/domain"
)

// firstJSONObject returns the first balanced top-level {...} in s, tolerating
// prose and code fences around the model's answer. Braces inside JSON strings
// are skipped.
func firstJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// parseVerdict extracts and normalizes the verdict object from a raw model
// response.
func parseVerdict(raw string) (domain.Verdict, error) {
	obj, ok := firstJSONObject(raw)
	if !ok {
		return domain.Verdict{}, fmt.Errorf("no JSON object in response")
	}
	var v domain.Verdict
	if err := json.Unmarshal([]byte(obj), &v); err != nil {
		return domain.Verdict{}, fmt.Errorf("unmarshal verdict: %w", err)
	}
	return normalizeVerdict(v), nil
}

func normalizeVerdict(v domain.Verdict) domain.Verdict {
	v.Severity = domain.NormalizeSeverity(v.Severity)
	v.Reason = strings.TrimSpace(v.Reason)
	v.Title = strings.TrimSpace(v.Title)
	if v.Confidence < 0 {
		v.Confidence = 0
	}
	if v.Confidence > 1 {
		v.Confidence = 1
	}
	return v
}
