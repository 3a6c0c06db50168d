package extract

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var rawURLPattern = regexp.MustCompile(`https?://[^\s"'<>()]+`)

// CollectURLs returns the deduplicated vendor-domain links in a mail body,
// in first-seen order. Anchor hrefs are taken from the parsed HTML first;
// the raw-text scan catches links in plain-text parts and unparseable
// markup.
func CollectURLs(body, vendorDomain string) []string {
	var candidates []string

	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(body)); err == nil {
		doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
			if href, ok := sel.Attr("href"); ok {
				candidates = append(candidates, href)
			}
		})
	}
	candidates = append(candidates, rawURLPattern.FindAllString(body, -1)...)

	seen := make(map[string]struct{})
	var out []string
	for _, raw := range candidates {
		// Mail bodies are Chinese prose; trailing CJK punctuation sticks to
		// bare URLs.
		raw = strings.TrimRight(raw, ".,;。，；、）】")
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			continue
		}
		if !onDomain(u.Hostname(), vendorDomain) {
			continue
		}
		if _, dup := seen[raw]; dup {
			continue
		}
		seen[raw] = struct{}{}
		out = append(out, raw)
	}
	return out
}

// onDomain reports whether host is the vendor domain or a subdomain of it.
func onDomain(host, vendorDomain string) bool {
	host = strings.ToLower(host)
	vendorDomain = strings.ToLower(vendorDomain)
	return host == vendorDomain || strings.HasSuffix(host, "."+vendorDomain)
}
