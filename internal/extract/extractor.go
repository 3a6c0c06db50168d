// Package extract turns vendor notification mails into normalized articles:
// it names the hospital, collects vendor-domain report links, renders each
// page through a bounded fetch pool, and extracts title/platform/text.
package extract

import (
	"context"
	"sync"

	"github.com/ignite/opinion-monitor/internal/config"
	"github.com/ignite/opinion-monitor/internal/domain"
	"github.com/ignite/opinion-monitor/internal/pkg/logger"
)

// Extractor fans page fetches out across a slot pool shared by all mails in
// a tick, so total render-service pressure stays bounded regardless of how
// many mails arrive at once.
type Extractor struct {
	cfg     config.BrowserConfig
	fetcher PageFetcher
	slots   chan struct{}
	log     *logger.Logger
}

// NewExtractor builds an extractor with poolSize concurrent fetch slots.
func NewExtractor(cfg config.BrowserConfig, fetcher PageFetcher, poolSize int, log *logger.Logger) *Extractor {
	if poolSize <= 0 {
		poolSize = 4
	}
	return &Extractor{
		cfg:     cfg,
		fetcher: fetcher,
		slots:   make(chan struct{}, poolSize),
		log:     log,
	}
}

// Extract parses one mail into articles. A page that cannot be rendered
// after retries yields a synthetic article with FetchFailed set instead of
// aborting the whole mail.
func (e *Extractor) Extract(ctx context.Context, mail domain.RawMail) []domain.Article {
	hospital := mail.Hospital
	if hospital == "" {
		hospital = ParseHospital(mail.Body, mail.Subject)
	}

	urls := CollectURLs(mail.Body, e.cfg.VendorDomain)
	if len(urls) == 0 {
		e.log.Info("mail has no vendor links", "subject", mail.Subject, "hospital", hospital)
		return nil
	}

	articles := make([]domain.Article, len(urls))
	var wg sync.WaitGroup
	for i, pageURL := range urls {
		wg.Add(1)
		go func(i int, pageURL string) {
			defer wg.Done()

			select {
			case e.slots <- struct{}{}:
			case <-ctx.Done():
				articles[i] = failedArticle(hospital, pageURL)
				return
			}
			defer func() { <-e.slots }()

			articles[i] = e.fetchArticle(ctx, hospital, pageURL)
		}(i, pageURL)
	}
	wg.Wait()
	return articles
}

func (e *Extractor) fetchArticle(ctx context.Context, hospital, pageURL string) domain.Article {
	html, err := e.fetcher.RenderPage(ctx, pageURL)
	if err != nil {
		e.log.Warn("page fetch failed", "url", pageURL, "error", err.Error())
		return failedArticle(hospital, pageURL)
	}

	p := parsePage(html, pageURL)
	return domain.Article{
		Hospital: hospital,
		Source:   p.Platform,
		Title:    p.Title,
		URL:      pageURL,
		Body:     truncateBytes(p.Text, e.cfg.MaxBodyBytes),
	}
}

// failedArticle is the synthetic placeholder the classifier downgrades
// confidence for.
func failedArticle(hospital, pageURL string) domain.Article {
	return domain.Article{
		Hospital:    hospital,
		URL:         pageURL,
		FetchFailed: true,
	}
}
