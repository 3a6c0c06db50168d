package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/opinion-monitor/internal/config"
	"github.com/ignite/opinion-monitor/internal/domain"
	"github.com/ignite/opinion-monitor/internal/pkg/logger"
	"github.com/ignite/opinion-monitor/internal/store"
)

func newTestNotifier(t *testing.T, webhooks []string, suppress []string) (*Notifier, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := config.NotificationConfig{
		Webhooks:         webhooks,
		SuppressKeywords: suppress,
		MaxRetries:       1,
		TimeoutSeconds:   5,
		Recipients:       []string{"@all"},
	}
	fbCfg := config.FeedbackConfig{
		LinkBaseURL:  "https://monitor.example/api/feedback",
		LinkSecret:   "test-secret",
		LinkTTLHours: 168,
	}
	return New(cfg, fbCfg, store.New(db), logger.Default()), mock
}

func sampleSentiment() *domain.Sentiment {
	return &domain.Sentiment{
		SentimentID: "sid-1",
		Hospital:    "协和医院",
		Title:       "患者投诉收费问题",
		Source:      "微博",
		Content:     "正文内容",
		Reason:      "收费纠纷",
		Severity:    domain.SeverityHigh,
		URL:         "https://news.example/a",
	}
}

func TestNotify_DeliversSignedPayload(t *testing.T) {
	var received wechatMarkdown
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.Write([]byte(`{"errcode":0,"errmsg":"ok"}`))
	}))
	defer srv.Close()

	n, mock := newTestNotifier(t, []string{srv.URL}, nil)
	mock.ExpectExec("INSERT INTO feedback_queue").
		WithArgs("sid-1", "@all", sqlmock.AnyArg(), domain.QueuePending).
		WillReturnResult(sqlmock.NewResult(33, 1))

	n.Notify(context.Background(), sampleSentiment(), &domain.Event{TotalCount: 2})

	assert.Equal(t, "markdown", received.MsgType)
	content := received.Markdown.Content
	assert.Contains(t, content, "患者投诉收费问题")
	assert.Contains(t, content, "协和医院")
	assert.Contains(t, content, "事件累计：** 2 条")
	assert.Contains(t, content, "queue_id=33")
	assert.Contains(t, content, "sig=")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotify_SuppressKeywordSkipsDelivery(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.Write([]byte(`{"errcode":0}`))
	}))
	defer srv.Close()

	n, mock := newTestNotifier(t, []string{srv.URL}, []string{"招聘"})

	sent := sampleSentiment()
	sent.Title = "医院招聘公告"
	n.Notify(context.Background(), sent, &domain.Event{TotalCount: 1})

	assert.False(t, called)
	// No feedback queue row when nothing was sent.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotify_WebhookErrorDoesNotPanic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"errcode":93000,"errmsg":"invalid key"}`))
	}))
	defer srv.Close()

	n, mock := newTestNotifier(t, []string{srv.URL}, nil)
	mock.ExpectExec("INSERT INTO feedback_queue").
		WillReturnResult(sqlmock.NewResult(34, 1))

	// Must not panic or propagate the delivery failure.
	n.Notify(context.Background(), sampleSentiment(), &domain.Event{TotalCount: 1})
}

func TestRenderMarkdown_CapsAt4096(t *testing.T) {
	p := Payload{
		Title:       "标题",
		Hospital:    "协和医院",
		Severity:    "high",
		Source:      "微博",
		Body:        strings.Repeat("长", 10000),
		Reason:      "纠纷",
		URL:         "https://news.example/a",
		EventTotal:  3,
		FeedbackURL: "https://monitor.example/api/feedback?queue_id=1&sig=abc",
	}
	content := renderMarkdown(p)

	assert.LessOrEqual(t, len([]rune(content)), maxMarkdownChars)
	// Truncation must never cost the feedback link or the footer.
	assert.Contains(t, content, "点击反馈")
	assert.Contains(t, content, "内容过长已截断")
}

func TestRenderMarkdown_ShortBodyUntruncated(t *testing.T) {
	content := renderMarkdown(Payload{Title: "标题", Body: "短内容", EventTotal: 1})
	assert.Contains(t, content, "短内容")
	assert.NotContains(t, content, "已截断")
}
