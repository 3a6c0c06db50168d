package extract

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ignite/opinion-monitor/internal/config"
	"github.com/ignite/opinion-monitor/internal/pkg/httpretry"
)

// PageFetcher renders one page and returns its HTML. Implementations must be
// safe for concurrent use; the extractor bounds concurrency itself.
type PageFetcher interface {
	RenderPage(ctx context.Context, pageURL string) (string, error)
}

// RenderClient fetches pages through the headless render service, which
// executes the vendor site's JavaScript and returns the settled DOM.
type RenderClient struct {
	renderURL string
	client    httpretry.HTTPDoer
	maxBody   int64
}

// NewRenderClient builds a render-service client with retry/backoff on 5xx
// and transport errors.
func NewRenderClient(cfg config.BrowserConfig) *RenderClient {
	base := &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second}
	return &RenderClient{
		renderURL: cfg.RenderURL,
		client:    httpretry.NewRetryClient(base, cfg.MaxRetries),
		maxBody:   4 << 20,
	}
}

// RenderPage asks the render service for the given URL's settled HTML.
func (rc *RenderClient) RenderPage(ctx context.Context, pageURL string) (string, error) {
	endpoint := rc.renderURL + "?url=" + url.QueryEscape(pageURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("build render request: %w", err)
	}
	req.Header.Set("Accept", "text/html")

	resp, err := rc.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("render %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("render %s: status %d", pageURL, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, rc.maxBody))
	if err != nil {
		return "", fmt.Errorf("render %s: read body: %w", pageURL, err)
	}
	return string(data), nil
}
