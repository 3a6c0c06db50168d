package feedback

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/opinion-monitor/internal/config"
	"github.com/ignite/opinion-monitor/internal/domain"
	"github.com/ignite/opinion-monitor/internal/pkg/logger"
	"github.com/ignite/opinion-monitor/internal/store"
)

const testSecret = "test-secret"

func TestSignAndVerify(t *testing.T) {
	now := time.Now()
	expiry := now.Add(time.Hour).Unix()

	sig := Sign(testSecret, 42, "sid-1", expiry)
	assert.True(t, Verify(testSecret, 42, "sid-1", expiry, sig, now))

	assert.False(t, Verify(testSecret, 43, "sid-1", expiry, sig, now), "wrong queue id")
	assert.False(t, Verify(testSecret, 42, "sid-2", expiry, sig, now), "wrong sentiment id")
	assert.False(t, Verify("other-secret", 42, "sid-1", expiry, sig, now), "wrong secret")
	assert.False(t, Verify(testSecret, 42, "sid-1", expiry, "deadbeef", now), "forged sig")
}

func TestVerify_ExpiredLink(t *testing.T) {
	now := time.Now()
	expiry := now.Add(-time.Minute).Unix()
	sig := Sign(testSecret, 42, "sid-1", expiry)

	assert.False(t, Verify(testSecret, 42, "sid-1", expiry, sig, now))
}

func TestSignedURL_RoundTrips(t *testing.T) {
	expiry := time.Now().Add(24 * time.Hour)
	u := SignedURL("https://monitor.example/api/feedback", testSecret, 7, "sid-9", expiry)

	assert.Contains(t, u, "https://monitor.example/api/feedback?")
	assert.Contains(t, u, "queue_id=7")
	assert.Contains(t, u, "sentiment_id=sid-9")
	assert.Contains(t, u, "sig="+Sign(testSecret, 7, "sid-9", expiry.Unix()))

	// Base URLs that already carry a query get & instead of ?.
	u2 := SignedURL("https://monitor.example/cb?src=wechat", testSecret, 7, "sid-9", expiry)
	assert.Contains(t, u2, "cb?src=wechat&")
}

func TestExtractRuleCandidates(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "labelled keyword line",
			text: "误报。关键词：义诊活动, 健康讲座",
			want: []string{"义诊活动", "健康讲座"},
		},
		{
			name: "quoted terms",
			text: `这条是宣传稿，“急救演练”相关的都不是负面`,
			want: []string{"急救演练"},
		},
		{
			name: "length bounds drop singletons and essays",
			text: "关键词：好, 这是一个超过二十个汉字长度限制的超长规则词组示例啊啊啊啊",
			want: nil,
		},
		{
			name: "no explicit patterns",
			text: "这条判断错了",
			want: nil,
		},
		{
			name: "empty text",
			text: "",
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractRuleCandidates(tt.text)
			var patterns []string
			for _, r := range got {
				patterns = append(patterns, r.Pattern)
				assert.Equal(t, domain.ActionSuppress, r.Action)
				assert.Equal(t, 0.9, r.Confidence)
			}
			assert.Equal(t, tt.want, patterns)
		})
	}
}

func newTestService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := config.FeedbackConfig{
		LinkSecret:           testSecret,
		LinkTTLHours:         168,
		RulePromoteThreshold: 3,
		RulesMinConfidence:   0.7,
	}
	return NewService(cfg, store.New(db), logger.Default()), mock
}

func TestOnFeedback_RejectsBadSignatureBeforeDB(t *testing.T) {
	s, mock := newTestService(t)

	err := s.OnFeedback(context.Background(), Submission{
		QueueID:     1,
		SentimentID: "sid-1",
		Expiry:      time.Now().Add(time.Hour).Unix(),
		Signature:   "forged",
	})
	assert.ErrorIs(t, err, ErrBadSignature)
	// No SQL expectations were set: a bad signature must not reach the DB.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOnFeedback_FalsePositiveSavesExplicitRules(t *testing.T) {
	s, mock := newTestService(t)
	expiry := time.Now().Add(time.Hour).Unix()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT sentiment_id, status FROM feedback_queue").
		WillReturnRows(sqlmock.NewRows([]string{"sentiment_id", "status"}).
			AddRow("sid-1", domain.QueuePending))
	mock.ExpectExec("INSERT INTO sentiment_feedback").
		WillReturnResult(sqlmock.NewResult(9, 1))
	mock.ExpectExec("UPDATE feedback_queue SET status").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE negative_sentiments SET status").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectExec("INSERT IGNORE INTO feedback_rules").
		WithArgs("义诊活动", domain.RuleTypeKeyword, domain.ActionSuppress, 0.9, true, int64(0)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := s.OnFeedback(context.Background(), Submission{
		QueueID:     1,
		SentimentID: "sid-1",
		Expiry:      expiry,
		Signature:   Sign(testSecret, 1, "sid-1", expiry),
		Judgment:    false,
		Type:        "false_positive",
		Text:        "误报。关键词：义诊活动",
		UserID:      "u-1",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func feedbackRows(samples []struct {
	title    string
	reason   string
	judgment bool
}) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"id", "sentiment_id", "judgment", "feedback_type",
		"feedback_text", "user_id", "feedback_time", "created_at", "title", "reason"})
	now := time.Now()
	for i, s := range samples {
		rows.AddRow(int64(i+1), "sid", s.judgment, "type", "", "u", now, now, s.title, s.reason)
	}
	return rows
}

func TestCompileRules_PromotesRecurringFalsePositiveNgram(t *testing.T) {
	s, mock := newTestService(t)

	// The phrase 义诊活动 appears in three false positives and no confirmed
	// negatives.
	samples := []struct {
		title    string
		reason   string
		judgment bool
	}{
		{"医院义诊活动报道", "提及义诊", false},
		{"周末义诊活动通知", "活动宣传", false},
		{"社区义诊活动圆满结束", "正面报道", false},
		{"患者投诉收费", "收费纠纷", true},
	}
	mock.ExpectQuery("SELECT f.id, f.sentiment_id").
		WillReturnRows(feedbackRows(samples))
	// 义诊活动 is the only gram reaching the threshold: K=3, noise=0,
	// confidence 3/3.
	mock.ExpectExec("INSERT IGNORE INTO feedback_rules").
		WithArgs("义诊活动", domain.RuleTypeKeyword, domain.ActionSuppress, 1.0, true, int64(0)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := s.CompileRules(context.Background())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNgrams(t *testing.T) {
	grams := ngrams("义诊活动报道", 4)
	assert.Contains(t, grams, "义诊活动")
	assert.Contains(t, grams, "诊活动报")
	assert.Contains(t, grams, "活动报道")
	assert.Len(t, grams, 3)

	// Windows crossing whitespace or ASCII are dropped.
	grams = ngrams("义诊 活动", 4)
	assert.Empty(t, grams)
}

func TestExpireStale(t *testing.T) {
	s, mock := newTestService(t)

	mock.ExpectExec("UPDATE feedback_queue SET status = \\?").
		WithArgs(domain.QueueExpired, domain.QueuePending, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))

	assert.NoError(t, s.ExpireStale(context.Background()))
}
