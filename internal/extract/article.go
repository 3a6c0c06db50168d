package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// page holds the structural fields pulled out of rendered HTML.
type page struct {
	Title    string
	Platform string
	Text     string
}

// parsePage extracts title, platform label and visible text using structural
// selectors with text-node fallbacks. It never fails: a page with no usable
// structure yields whatever text nodes remain.
func parsePage(html, pageURL string) page {
	var p page
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return page{Text: strings.TrimSpace(html)}
	}

	if og, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok && og != "" {
		p.Title = strings.TrimSpace(og)
	}
	if p.Title == "" {
		p.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	if p.Title == "" {
		p.Title = strings.TrimSpace(doc.Find("h1").First().Text())
	}

	if site, ok := doc.Find(`meta[property="og:site_name"]`).Attr("content"); ok && site != "" {
		p.Platform = strings.TrimSpace(site)
	}
	if p.Platform == "" {
		p.Platform = strings.TrimSpace(doc.Find(".source, .platform, .site-name").First().Text())
	}
	if p.Platform == "" {
		if u, err := url.Parse(pageURL); err == nil {
			p.Platform = u.Hostname()
		}
	}

	doc.Find("script, style, noscript, iframe").Remove()
	body := doc.Find("article, .content, .article-content, #content").First()
	if body.Length() == 0 {
		body = doc.Find("body").First()
	}
	p.Text = collapseWhitespace(body.Text())
	return p
}

// truncateBytes caps s at max UTF-8 bytes on a rune boundary, appending an
// ellipsis when anything was cut.
func truncateBytes(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
