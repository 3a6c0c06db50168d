package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/opinion-monitor/internal/domain"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db), mock
}

func TestUpsertProcessedMail_NewToken(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("INSERT IGNORE INTO processed_emails").
		WithArgs("uid:12345", "北京协和医院", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	inserted, err := s.UpsertProcessedMail(context.Background(), "uid:12345", "北京协和医院", time.Now())
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertProcessedMail_DuplicateToken(t *testing.T) {
	s, mock := newMockStore(t)

	// INSERT IGNORE on an existing token affects zero rows.
	mock.ExpectExec("INSERT IGNORE INTO processed_emails").
		WithArgs("uid:12345", "北京协和医院", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	inserted, err := s.UpsertProcessedMail(context.Background(), "uid:12345", "北京协和医院", time.Now())
	require.NoError(t, err)
	assert.False(t, inserted)
}

func TestFindOpenEvent_NotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM event_groups").
		WithArgs("北京协和医院", uint64(0xdeadbeef), sqlmock.AnyArg()).
		WillReturnError(sql.ErrNoRows)

	_, err := s.FindOpenEvent(context.Background(), "北京协和医院", 0xdeadbeef, time.Now().Add(-72*time.Hour))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFindOpenEvent_Found(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()

	cols := []string{"id", "hospital_name", "fingerprint", "event_url", "total_count",
		"last_title", "last_reason", "last_source", "last_severity", "last_sentiment_id",
		"created_at", "last_seen_at"}
	mock.ExpectQuery("SELECT (.+) FROM event_groups").
		WithArgs("北京协和医院", uint64(42), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(7, "北京协和医院", uint64(42), "https://example.com/a", 3,
				"标题", "原因", "微博", "high", "sid-1", now, now))

	e, err := s.FindOpenEvent(context.Background(), "北京协和医院", 42, now.Add(-72*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(7), e.ID)
	assert.Equal(t, int64(3), e.TotalCount)
	assert.Equal(t, "high", e.LastSeverity)
}

func TestCreateEventWithSentiment_OneTransaction(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO event_groups").
		WillReturnResult(sqlmock.NewResult(7, 1))
	mock.ExpectExec("INSERT INTO negative_sentiments").
		WillReturnResult(sqlmock.NewResult(21, 1))
	mock.ExpectCommit()

	e := &domain.Event{Hospital: "北京协和医院", Fingerprint: 42, CreatedAt: now, LastSeenAt: now}
	sent := &domain.Sentiment{SentimentID: "sid-1", Hospital: "北京协和医院", ProcessedAt: now}
	err := s.CreateEventWithSentiment(context.Background(), e, sent)
	require.NoError(t, err)
	assert.Equal(t, int64(7), e.ID)
	assert.Equal(t, int64(7), sent.EventID)
	assert.Equal(t, int64(21), sent.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttachSentiment_BumpsCounterInOneTransaction(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO negative_sentiments").
		WillReturnResult(sqlmock.NewResult(22, 1))
	mock.ExpectExec("UPDATE event_groups SET").
		WithArgs("新标题", "新原因", "微信", "medium", "sid-2", sqlmock.AnyArg(), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	sent := &domain.Sentiment{
		Title: "新标题", Reason: "新原因", Source: "微信",
		Severity: "medium", SentimentID: "sid-2",
	}
	err := s.AttachSentiment(context.Background(), 7, sent, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(7), sent.EventID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttachSentiment_MissingEventRollsBack(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO negative_sentiments").
		WillReturnResult(sqlmock.NewResult(22, 1))
	mock.ExpectExec("UPDATE event_groups SET").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := s.AttachSentiment(context.Background(), 99, &domain.Sentiment{SentimentID: "sid-3"}, time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetSentimentStatus_DismissStampsTime(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("UPDATE negative_sentiments SET status = \\?, dismissed_at = \\?").
		WithArgs(domain.StatusDismissed, sqlmock.AnyArg(), "sid-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.SetSentimentStatus(context.Background(), "sid-1", domain.StatusDismissed, time.Now())
	assert.NoError(t, err)
}

func TestSetSentimentStatus_RestoreClearsTime(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("UPDATE negative_sentiments SET status = \\?, dismissed_at = NULL").
		WithArgs(domain.StatusActive, "sid-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.SetSentimentStatus(context.Background(), "sid-1", domain.StatusActive, time.Now())
	assert.NoError(t, err)
}

func TestSetSentimentStatus_UnknownID(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("UPDATE negative_sentiments SET").
		WithArgs(domain.StatusActive, "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.SetSentimentStatus(context.Background(), "missing", domain.StatusActive, time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveFeedback_FalsePositiveDismisses(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT sentiment_id, status FROM feedback_queue").
		WithArgs(int64(11)).
		WillReturnRows(sqlmock.NewRows([]string{"sentiment_id", "status"}).
			AddRow("sid-1", domain.QueuePending))
	mock.ExpectExec("INSERT INTO sentiment_feedback").
		WithArgs("sid-1", false, "false_positive", "这是医院官方活动新闻", "u-1", now).
		WillReturnResult(sqlmock.NewResult(5, 1))
	mock.ExpectExec("UPDATE feedback_queue SET status = \\?").
		WithArgs(domain.QueueAnswered, int64(11)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE negative_sentiments SET status = \\?, dismissed_at = \\?").
		WithArgs(domain.StatusDismissed, now, "sid-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.ResolveFeedback(context.Background(), 11, &domain.Feedback{
		SentimentID:  "sid-1",
		Judgment:     false,
		FeedbackType: "false_positive",
		FeedbackText: "这是医院官方活动新闻",
		UserID:       "u-1",
		FeedbackTime: now,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveFeedback_AlreadyAnswered(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT sentiment_id, status FROM feedback_queue").
		WithArgs(int64(11)).
		WillReturnRows(sqlmock.NewRows([]string{"sentiment_id", "status"}).
			AddRow("sid-1", domain.QueueAnswered))
	mock.ExpectRollback()

	err := s.ResolveFeedback(context.Background(), 11, &domain.Feedback{
		SentimentID: "sid-1", FeedbackTime: time.Now(),
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveFeedback_ConfirmedRestoresActive(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT sentiment_id, status FROM feedback_queue").
		WithArgs(int64(12)).
		WillReturnRows(sqlmock.NewRows([]string{"sentiment_id", "status"}).
			AddRow("sid-2", domain.QueuePending))
	mock.ExpectExec("INSERT INTO sentiment_feedback").
		WithArgs("sid-2", true, "confirmed", "", "u-2", now).
		WillReturnResult(sqlmock.NewResult(6, 1))
	mock.ExpectExec("UPDATE feedback_queue SET status = \\?").
		WithArgs(domain.QueueAnswered, int64(12)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE negative_sentiments SET status = \\?, dismissed_at = NULL").
		WithArgs(domain.StatusActive, "sid-2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.ResolveFeedback(context.Background(), 12, &domain.Feedback{
		SentimentID:  "sid-2",
		Judgment:     true,
		FeedbackType: "confirmed",
		UserID:       "u-2",
		FeedbackTime: now,
	})
	assert.NoError(t, err)
}

func TestInsertRule_Idempotent(t *testing.T) {
	s, mock := newMockStore(t)

	rule := &domain.FeedbackRule{
		Pattern: "义诊活动", RuleType: domain.RuleTypeKeyword,
		Action: domain.ActionSuppress, Confidence: 0.75, Enabled: true,
	}

	mock.ExpectExec("INSERT IGNORE INTO feedback_rules").
		WithArgs("义诊活动", domain.RuleTypeKeyword, domain.ActionSuppress, 0.75, true, int64(0)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	inserted, err := s.InsertRule(context.Background(), rule)
	require.NoError(t, err)
	assert.True(t, inserted)

	mock.ExpectExec("INSERT IGNORE INTO feedback_rules").
		WithArgs("义诊活动", domain.RuleTypeKeyword, domain.ActionSuppress, 0.75, true, int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	inserted, err = s.InsertRule(context.Background(), rule)
	require.NoError(t, err)
	assert.False(t, inserted)
}

func TestListSentiments_FilterBuildsConditions(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery("SELECT COUNT\\(1\\) FROM negative_sentiments WHERE").
		WithArgs(domain.StatusActive, "北京协和医院", "%投诉%", "%投诉%", "%投诉%", "%投诉%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	cols := []string{"id", "sentiment_id", "event_id", "hospital_name", "title",
		"source", "content", "reason", "severity", "url", "status", "is_duplicate",
		"dismissed_at", "insight_text", "insight_at", "processed_at"}
	mock.ExpectQuery("SELECT (.+) FROM negative_sentiments WHERE").
		WithArgs(domain.StatusActive, "北京协和医院", "%投诉%", "%投诉%", "%投诉%", "%投诉%", 20, 0).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(1, "sid-1", 7, "北京协和医院", "投诉标题", "微博", "正文", "投诉",
				"high", "https://example.com/a", domain.StatusActive, false,
				nil, nil, nil, now))

	list, total, err := s.ListSentiments(context.Background(), Filter{
		Status:   domain.StatusActive,
		Hospital: "北京协和医院",
		Search:   "投诉",
		Limit:    20,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, list, 1)
	assert.Equal(t, "sid-1", list[0].SentimentID)
	assert.True(t, list[0].DismissedAt == nil)
}

func TestStats_AggregatesGroups(t *testing.T) {
	s, mock := newMockStore(t)
	start := time.Now().Add(-7 * 24 * time.Hour)
	end := time.Now()

	mock.ExpectQuery("SELECT(.+)FROM negative_sentiments(.+)processed_at >= ").
		WithArgs(start, end).
		WillReturnRows(sqlmock.NewRows(
			[]string{"active", "high", "medium", "low"}).
			AddRow(8, 3, 4, 1))
	// Dismissed items are counted by when they were dismissed, so a row
	// first seen long before the range still counts here.
	mock.ExpectQuery("dismissed_at >= ").
		WithArgs(domain.StatusDismissed, start, end).
		WillReturnRows(sqlmock.NewRows([]string{"dismissed"}).AddRow(2))
	mock.ExpectQuery("GROUP BY 1 ORDER BY 2 DESC").
		WithArgs(start, end).
		WillReturnRows(sqlmock.NewRows([]string{"source", "count"}).
			AddRow("微博", 6).AddRow("知乎", 2))
	mock.ExpectQuery("SELECT DISTINCT").
		WithArgs(start, end).
		WillReturnRows(sqlmock.NewRows([]string{"hospital"}).
			AddRow("北京协和医院").AddRow("未知"))
	mock.ExpectQuery("GROUP BY 1 ORDER BY 5 DESC").
		WithArgs(start, end).
		WillReturnRows(sqlmock.NewRows(
			[]string{"hospital", "high", "medium", "low", "total"}).
			AddRow("北京协和医院", 3, 4, 1, 8))

	st, err := s.Stats(context.Background(), start, end)
	require.NoError(t, err)
	assert.Equal(t, int64(8), st.ActiveTotal)
	assert.Equal(t, int64(2), st.DismissedTotal)
	assert.Equal(t, int64(3), st.High)
	require.Len(t, st.Sources, 2)
	assert.Equal(t, "微博", st.Sources[0].Source)
	assert.Equal(t, []string{"北京协和医院", "未知"}, st.HospitalList)
	require.Len(t, st.Hospitals, 1)
	assert.Equal(t, int64(8), st.Hospitals[0].Total)
}

func TestExpirePendingFeedback(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("UPDATE feedback_queue SET status = \\?").
		WithArgs(domain.QueueExpired, domain.QueuePending, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := s.ExpirePendingFeedback(context.Background(), time.Now().Add(-168*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}
