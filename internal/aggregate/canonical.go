package aggregate

import (
	"net/url"
	"sort"
	"strings"
)

// CanonicalizeURL maps every variant of the same link to one stable form:
// lower-cased scheme and host, default ports stripped, fragment dropped,
// tracking parameters removed, remaining query keys sorted. Canonicalizing
// an already-canonical URL is a no-op.
func CanonicalizeURL(raw string, trackingParams []string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return strings.TrimSpace(raw)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Host)
	switch {
	case u.Scheme == "http" && strings.HasSuffix(host, ":80"):
		host = strings.TrimSuffix(host, ":80")
	case u.Scheme == "https" && strings.HasSuffix(host, ":443"):
		host = strings.TrimSuffix(host, ":443")
	}
	u.Host = host
	u.Fragment = ""

	q := u.Query()
	for key := range q {
		if isTrackingParam(key, trackingParams) {
			q.Del(key)
		}
	}
	u.RawQuery = sortedQuery(q)
	return u.String()
}

func isTrackingParam(key string, trackingParams []string) bool {
	key = strings.ToLower(key)
	for _, p := range trackingParams {
		p = strings.ToLower(p)
		if strings.HasSuffix(p, "*") {
			if strings.HasPrefix(key, strings.TrimSuffix(p, "*")) {
				return true
			}
		} else if key == p {
			return true
		}
	}
	return false
}

// sortedQuery re-encodes query values with keys in sorted order so parameter
// ordering never splits an event.
func sortedQuery(q url.Values) string {
	if len(q) == 0 {
		return ""
	}
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		vals := q[k]
		sort.Strings(vals)
		for _, v := range vals {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}

// Administrative suffixes the mail extractor sometimes appends even when the
// parsed name already ends with one, producing "协和医院医院".
var hospitalSuffixes = []string{"医疗中心", "卫生院", "保健院", "医院", "诊所"}

// NormalizeHospital trims and collapses internal whitespace and strips a
// duplicated trailing administrative suffix, so the same hospital written
// with stray spaces or extractor artifacts fingerprints identically.
func NormalizeHospital(name string) string {
	s := strings.Join(strings.Fields(name), "")
	for _, suffix := range hospitalSuffixes {
		for strings.HasSuffix(s, suffix+suffix) {
			s = strings.TrimSuffix(s, suffix)
		}
	}
	return s
}
