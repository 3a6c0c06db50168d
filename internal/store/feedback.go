package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ignite/opinion-monitor/internal/domain"
)

// EnqueueFeedback records that an alert for sentimentID was sent to userID
// and is awaiting a judgement. Returns the queue entry id used in the signed
// callback link.
func (s *Store) EnqueueFeedback(ctx context.Context, sentimentID, userID string, sentAt time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO feedback_queue (sentiment_id, user_id, sent_time, status)
		 VALUES (?, ?, ?, ?)`,
		sentimentID, userID, sentAt, domain.QueuePending)
	if err != nil {
		return 0, fmt.Errorf("enqueue feedback: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("enqueue feedback: last insert id: %w", err)
	}
	return id, nil
}

// GetQueueEntry fetches one feedback queue entry by id.
func (s *Store) GetQueueEntry(ctx context.Context, id int64) (*domain.QueueEntry, error) {
	var q domain.QueueEntry
	var userID sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, sentiment_id, user_id, sent_time, status, created_at
		 FROM feedback_queue WHERE id = ?`, id).
		Scan(&q.ID, &q.SentimentID, &userID, &q.SentTime, &q.Status, &q.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get queue entry %d: %w", id, err)
	}
	q.UserID = userID.String
	return &q, nil
}

// ResolveFeedback records a user judgement in one transaction: the queue row
// is locked and flipped to answered, the immutable feedback row is written,
// and the sentiment status is updated (false positive -> dismissed, confirmed
// negative -> active). A queue entry that is no longer pending returns
// ErrNotFound so repeated clicks are harmless.
func (s *Store) ResolveFeedback(ctx context.Context, queueID int64, fb *domain.Feedback) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var sentimentID, status string
		err := tx.QueryRowContext(ctx,
			`SELECT sentiment_id, status FROM feedback_queue WHERE id = ? FOR UPDATE`,
			queueID).Scan(&sentimentID, &status)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock queue entry %d: %w", queueID, err)
		}
		if status != domain.QueuePending {
			return ErrNotFound
		}
		if sentimentID != fb.SentimentID {
			return fmt.Errorf("queue entry %d does not reference sentiment %s", queueID, fb.SentimentID)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO sentiment_feedback
			 (sentiment_id, judgment, feedback_type, feedback_text, user_id, feedback_time)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			fb.SentimentID, fb.Judgment, fb.FeedbackType, fb.FeedbackText,
			fb.UserID, fb.FeedbackTime); err != nil {
			return fmt.Errorf("insert feedback: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE feedback_queue SET status = ? WHERE id = ?`,
			domain.QueueAnswered, queueID); err != nil {
			return fmt.Errorf("answer queue entry: %w", err)
		}

		// judgment=false means the alert was a false positive.
		if fb.Judgment {
			_, err = tx.ExecContext(ctx,
				`UPDATE negative_sentiments SET status = ?, dismissed_at = NULL
				 WHERE sentiment_id = ?`,
				domain.StatusActive, fb.SentimentID)
		} else {
			_, err = tx.ExecContext(ctx,
				`UPDATE negative_sentiments SET status = ?, dismissed_at = ?
				 WHERE sentiment_id = ?`,
				domain.StatusDismissed, fb.FeedbackTime, fb.SentimentID)
		}
		if err != nil {
			return fmt.Errorf("update sentiment status: %w", err)
		}
		return nil
	})
}

// RecentFeedback returns feedback rows recorded since the given time, oldest
// first, joined with the sentiment title and reason the rule compiler mines
// for candidate patterns.
type FeedbackSample struct {
	Feedback domain.Feedback
	Title    string
	Reason   string
}

func (s *Store) RecentFeedback(ctx context.Context, since time.Time) ([]FeedbackSample, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT f.id, f.sentiment_id, f.judgment, f.feedback_type, f.feedback_text,
		        f.user_id, f.feedback_time, f.created_at,
		        COALESCE(n.title, ''), COALESCE(n.reason, '')
		 FROM sentiment_feedback f
		 LEFT JOIN negative_sentiments n ON n.sentiment_id = f.sentiment_id
		 WHERE f.created_at >= ?
		 ORDER BY f.created_at ASC`, since)
	if err != nil {
		return nil, fmt.Errorf("recent feedback: %w", err)
	}
	defer rows.Close()

	var out []FeedbackSample
	for rows.Next() {
		var sm FeedbackSample
		var ftype, ftext, userID sql.NullString
		if err := rows.Scan(&sm.Feedback.ID, &sm.Feedback.SentimentID, &sm.Feedback.Judgment,
			&ftype, &ftext, &userID, &sm.Feedback.FeedbackTime, &sm.Feedback.CreatedAt,
			&sm.Title, &sm.Reason); err != nil {
			return nil, fmt.Errorf("scan feedback: %w", err)
		}
		sm.Feedback.FeedbackType = ftype.String
		sm.Feedback.FeedbackText = ftext.String
		sm.Feedback.UserID = userID.String
		out = append(out, sm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate feedback: %w", err)
	}
	return out, nil
}

// ExpirePendingFeedback flips pending queue entries older than cutoff to
// expired. Returns the number of rows changed.
func (s *Store) ExpirePendingFeedback(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE feedback_queue SET status = ? WHERE status = ? AND sent_time < ?`,
		domain.QueueExpired, domain.QueuePending, cutoff)
	if err != nil {
		return 0, fmt.Errorf("expire pending feedback: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
