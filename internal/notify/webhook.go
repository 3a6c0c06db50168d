// Package notify pushes alert messages to the configured chat webhooks and
// enqueues the matching feedback-queue entry so recipients can judge the
// alert from a signed link.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ignite/opinion-monitor/internal/config"
	"github.com/ignite/opinion-monitor/internal/domain"
	"github.com/ignite/opinion-monitor/internal/feedback"
	"github.com/ignite/opinion-monitor/internal/pkg/httpretry"
	"github.com/ignite/opinion-monitor/internal/pkg/logger"
	"github.com/ignite/opinion-monitor/internal/store"
)

// maxMarkdownChars is the WeChat Work markdown content limit.
const maxMarkdownChars = 4096

// Payload is the typed alert content rendered into each webhook message.
type Payload struct {
	Title       string
	Hospital    string
	Severity    string
	Source      string
	Body        string
	Reason      string
	URL         string
	EventTotal  int64
	FeedbackURL string
}

// Notifier delivers alerts. Delivery failure is logged, never propagated:
// a down webhook must not stall ingestion.
type Notifier struct {
	cfg    config.NotificationConfig
	fbCfg  config.FeedbackConfig
	store  *store.Store
	client httpretry.HTTPDoer
	log    *logger.Logger
	now    func() time.Time
}

// New builds a notifier with retrying HTTP delivery.
func New(cfg config.NotificationConfig, fbCfg config.FeedbackConfig, st *store.Store, log *logger.Logger) *Notifier {
	base := &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second}
	return &Notifier{
		cfg:    cfg,
		fbCfg:  fbCfg,
		store:  st,
		client: httpretry.NewRetryClient(base, cfg.MaxRetries),
		log:    log,
		now:    time.Now,
	}
}

// Notify sends one alert for a sentiment and its event. The feedback-queue
// entry is created first so the signed link is valid even if some webhooks
// fail.
func (n *Notifier) Notify(ctx context.Context, sent *domain.Sentiment, event *domain.Event) {
	if word := n.suppressedBy(sent); word != "" {
		n.log.Info("notification suppressed by keyword",
			"keyword", word, "sentiment_id", sent.SentimentID)
		return
	}
	if len(n.cfg.Webhooks) == 0 {
		n.log.Warn("no webhooks configured, alert dropped", "sentiment_id", sent.SentimentID)
		return
	}

	now := n.now()
	queueID, err := n.store.EnqueueFeedback(ctx, sent.SentimentID, n.recipient(), now)
	if err != nil {
		n.log.Error("enqueue feedback failed", "sentiment_id", sent.SentimentID, "error", err.Error())
		return
	}
	expiry := now.Add(time.Duration(n.fbCfg.LinkTTLHours) * time.Hour)

	payload := Payload{
		Title:       sent.Title,
		Hospital:    sent.Hospital,
		Severity:    sent.Severity,
		Source:      sent.Source,
		Body:        sent.Content,
		Reason:      sent.Reason,
		URL:         sent.URL,
		EventTotal:  event.TotalCount,
		FeedbackURL: feedback.SignedURL(n.fbCfg.LinkBaseURL, n.fbCfg.LinkSecret, queueID, sent.SentimentID, expiry),
	}
	content := renderMarkdown(payload)

	for _, hook := range n.cfg.Webhooks {
		if err := n.post(ctx, hook, content); err != nil {
			n.log.Error("webhook delivery failed", "webhook", hook, "error", err.Error())
			continue
		}
		n.log.Info("alert delivered",
			"sentiment_id", sent.SentimentID, "severity", sent.Severity, "event_total", event.TotalCount)
	}
}

func (n *Notifier) suppressedBy(sent *domain.Sentiment) string {
	text := sent.Title + "\n" + sent.Content
	for _, word := range n.cfg.SuppressKeywords {
		if word != "" && strings.Contains(text, word) {
			return word
		}
	}
	return ""
}

func (n *Notifier) recipient() string {
	if len(n.cfg.Recipients) > 0 {
		return n.cfg.Recipients[0]
	}
	return "@all"
}

type wechatMarkdown struct {
	MsgType  string `json:"msgtype"`
	Markdown struct {
		Content string `json:"content"`
	} `json:"markdown"`
}

type wechatResult struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

func (n *Notifier) post(ctx context.Context, webhookURL, content string) error {
	var msg wechatMarkdown
	msg.MsgType = "markdown"
	msg.Markdown.Content = content
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal webhook message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("webhook status %d", resp.StatusCode)
	}
	var result wechatResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode webhook response: %w", err)
	}
	if result.ErrCode != 0 {
		return fmt.Errorf("webhook errcode %d: %s", result.ErrCode, result.ErrMsg)
	}
	return nil
}

// renderMarkdown produces the WeChat Work markdown message, truncating the
// body so header, footer and feedback link always survive the 4096-char cap.
func renderMarkdown(p Payload) string {
	var header strings.Builder
	header.WriteString("### ⚠️ 舆情监控通知\n\n")
	fmt.Fprintf(&header, "**%s**\n\n", p.Title)
	fmt.Fprintf(&header, "> **医院：** %s\n", p.Hospital)
	fmt.Fprintf(&header, "> **来源：** %s\n", p.Source)
	fmt.Fprintf(&header, "> **AI判断：** %s\n", p.Reason)
	fmt.Fprintf(&header, "> **严重程度：** %s\n", p.Severity)
	fmt.Fprintf(&header, "> **事件累计：** %d 条\n", p.EventTotal)
	if p.URL != "" {
		fmt.Fprintf(&header, "**原文链接：** [%s](%s)\n", p.URL, p.URL)
	}
	header.WriteString("\n**详细内容：**\n\n")

	footer := "\n\n请及时查看详情。\n"
	if p.FeedbackURL != "" {
		footer += fmt.Sprintf("**反馈链接：** [点击反馈](%s)\n", p.FeedbackURL)
	}

	const truncNote = "\n...（内容过长已截断）"
	fixed := len([]rune(header.String())) + len([]rune(footer))
	available := maxMarkdownChars - fixed - 100

	body := p.Body
	if runes := []rune(body); len(runes) > available {
		keep := available - len([]rune(truncNote))
		if keep < 0 {
			keep = 0
		}
		body = string(runes[:keep]) + truncNote
	}
	return header.String() + body + footer
}
