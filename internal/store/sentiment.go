package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ignite/opinion-monitor/internal/domain"
)

const sentimentColumns = `id, sentiment_id, event_id, hospital_name, title,
	source, content, reason, severity, url, status, is_duplicate,
	dismissed_at, insight_text, insight_at, processed_at`

func scanSentiment(scan func(dest ...any) error) (*domain.Sentiment, error) {
	var st domain.Sentiment
	var title, source, content, reason, url, insight sql.NullString
	var dismissedAt, insightAt sql.NullTime
	err := scan(&st.ID, &st.SentimentID, &st.EventID, &st.Hospital, &title,
		&source, &content, &reason, &st.Severity, &url, &st.Status, &st.IsDuplicate,
		&dismissedAt, &insight, &insightAt, &st.ProcessedAt)
	if err != nil {
		return nil, err
	}
	st.Title = title.String
	st.Source = source.String
	st.Content = content.String
	st.Reason = reason.String
	st.URL = url.String
	st.InsightText = insight.String
	if dismissedAt.Valid {
		t := dismissedAt.Time
		st.DismissedAt = &t
	}
	if insightAt.Valid {
		t := insightAt.Time
		st.InsightAt = &t
	}
	return &st, nil
}

func collectSentiments(rows *sql.Rows) ([]domain.Sentiment, error) {
	var out []domain.Sentiment
	for rows.Next() {
		st, err := scanSentiment(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan sentiment: %w", err)
		}
		out = append(out, *st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sentiments: %w", err)
	}
	return out, nil
}

// InsertSentiment persists one classified article and returns the assigned
// row id. Sentiments that belong to an event group go through
// CreateEventWithSentiment or AttachSentiment instead.
func (s *Store) InsertSentiment(ctx context.Context, st *domain.Sentiment) (int64, error) {
	return insertSentiment(ctx, s.db, st)
}

func insertSentiment(ctx context.Context, ex execer, st *domain.Sentiment) (int64, error) {
	res, err := ex.ExecContext(ctx,
		`INSERT INTO negative_sentiments
		 (sentiment_id, event_id, hospital_name, title, source, content,
		  reason, severity, url, status, is_duplicate, processed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		st.SentimentID, st.EventID, st.Hospital, st.Title, st.Source, st.Content,
		st.Reason, st.Severity, st.URL, st.Status, st.IsDuplicate, st.ProcessedAt)
	if err != nil {
		return 0, fmt.Errorf("insert sentiment: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert sentiment: last insert id: %w", err)
	}
	return id, nil
}

// GetSentiment fetches one sentiment by its public sentiment_id.
func (s *Store) GetSentiment(ctx context.Context, sentimentID string) (*domain.Sentiment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sentimentColumns+` FROM negative_sentiments WHERE sentiment_id = ?`,
		sentimentID)
	st, err := scanSentiment(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get sentiment %s: %w", sentimentID, err)
	}
	return st, nil
}

// SetSentimentStatus flips a sentiment between active and dismissed.
// Dismissing stamps dismissed_at; restoring clears it.
func (s *Store) SetSentimentStatus(ctx context.Context, sentimentID, status string, at time.Time) error {
	var res sql.Result
	var err error
	if status == domain.StatusDismissed {
		res, err = s.db.ExecContext(ctx,
			`UPDATE negative_sentiments SET status = ?, dismissed_at = ? WHERE sentiment_id = ?`,
			status, at, sentimentID)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE negative_sentiments SET status = ?, dismissed_at = NULL WHERE sentiment_id = ?`,
			status, sentimentID)
	}
	if err != nil {
		return fmt.Errorf("set sentiment status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetInsight caches a generated AI insight on the sentiment row.
func (s *Store) SetInsight(ctx context.Context, sentimentID, text string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE negative_sentiments SET insight_text = ?, insight_at = ? WHERE sentiment_id = ?`,
		text, at, sentimentID)
	if err != nil {
		return fmt.Errorf("set insight: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Filter narrows sentiment listings. Zero values mean "no constraint".
type Filter struct {
	Status   string
	Hospital string
	Severity string
	Search   string
	Start    time.Time
	End      time.Time
	Limit    int
	Offset   int
}

func (f Filter) where() (string, []any) {
	var conds []string
	var args []any
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, f.Status)
	}
	if f.Hospital != "" {
		conds = append(conds, "hospital_name = ?")
		args = append(args, f.Hospital)
	}
	if f.Severity != "" {
		conds = append(conds, "severity = ?")
		args = append(args, f.Severity)
	}
	if f.Search != "" {
		conds = append(conds, "(title LIKE ? OR content LIKE ? OR reason LIKE ? OR hospital_name LIKE ?)")
		pat := "%" + f.Search + "%"
		args = append(args, pat, pat, pat, pat)
	}
	if !f.Start.IsZero() {
		conds = append(conds, "processed_at >= ?")
		args = append(args, f.Start)
	}
	if !f.End.IsZero() {
		conds = append(conds, "processed_at <= ?")
		args = append(args, f.End)
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// ListSentiments returns a filtered page of sentiments, newest first, plus
// the total row count for the filter.
func (s *Store) ListSentiments(ctx context.Context, f Filter) ([]domain.Sentiment, int64, error) {
	where, args := f.where()

	var total int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM negative_sentiments`+where, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count sentiments: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT ` + sentimentColumns + ` FROM negative_sentiments` + where +
		` ORDER BY processed_at DESC LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, q, append(args, limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list sentiments: %w", err)
	}
	defer rows.Close()
	out, err := collectSentiments(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}
