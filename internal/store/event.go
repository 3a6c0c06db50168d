package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ignite/opinion-monitor/internal/domain"
)

const eventColumns = `id, hospital_name, fingerprint, event_url, total_count,
	last_title, last_reason, last_source, last_severity, last_sentiment_id,
	created_at, last_seen_at`

func scanEvent(row *sql.Row) (*domain.Event, error) {
	var e domain.Event
	var eventURL, lastTitle, lastReason, lastSource, lastSID sql.NullString
	err := row.Scan(&e.ID, &e.Hospital, &e.Fingerprint, &eventURL, &e.TotalCount,
		&lastTitle, &lastReason, &lastSource, &e.LastSeverity, &lastSID,
		&e.CreatedAt, &e.LastSeenAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan event: %w", err)
	}
	e.EventURL = eventURL.String
	e.LastTitle = lastTitle.String
	e.LastReason = lastReason.String
	e.LastSource = lastSource.String
	e.LastSentimentID = lastSID.String
	return &e, nil
}

// FindOpenEvent returns the most recent event group for the hospital and
// fingerprint whose last activity is at or after since, or ErrNotFound.
func (s *Store) FindOpenEvent(ctx context.Context, hospital string, fingerprint uint64, since time.Time) (*domain.Event, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM event_groups
		 WHERE hospital_name = ? AND fingerprint = ? AND last_seen_at >= ?
		 ORDER BY last_seen_at DESC LIMIT 1`,
		hospital, fingerprint, since)
	return scanEvent(row)
}

func insertEvent(ctx context.Context, ex execer, e *domain.Event) (int64, error) {
	res, err := ex.ExecContext(ctx,
		`INSERT INTO event_groups
		 (hospital_name, fingerprint, event_url, total_count,
		  last_title, last_reason, last_source, last_severity, last_sentiment_id,
		  created_at, last_seen_at)
		 VALUES (?, ?, ?, 1, ?, ?, ?, ?, ?, ?, ?)`,
		e.Hospital, e.Fingerprint, e.EventURL,
		e.LastTitle, e.LastReason, e.LastSource, e.LastSeverity, e.LastSentimentID,
		e.CreatedAt, e.LastSeenAt)
	if err != nil {
		return 0, fmt.Errorf("create event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("create event: last insert id: %w", err)
	}
	return id, nil
}

func touchEvent(ctx context.Context, ex execer, eventID int64, sent *domain.Sentiment, seenAt time.Time) error {
	res, err := ex.ExecContext(ctx,
		`UPDATE event_groups SET
		 total_count = total_count + 1,
		 last_title = ?, last_reason = ?, last_source = ?, last_severity = ?,
		 last_sentiment_id = ?, last_seen_at = ?
		 WHERE id = ?`,
		sent.Title, sent.Reason, sent.Source, sent.Severity,
		sent.SentimentID, seenAt, eventID)
	if err != nil {
		return fmt.Errorf("touch event %d: %w", eventID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateEventWithSentiment inserts a new event group and its first sentiment
// in one transaction and fills in the assigned ids. A crash between the two
// writes can therefore never leave an event group without its seed row.
func (s *Store) CreateEventWithSentiment(ctx context.Context, e *domain.Event, sent *domain.Sentiment) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		id, err := insertEvent(ctx, tx, e)
		if err != nil {
			return err
		}
		e.ID = id
		sent.EventID = id
		rowID, err := insertSentiment(ctx, tx, sent)
		if err != nil {
			return err
		}
		sent.ID = rowID
		return nil
	})
}

// AttachSentiment inserts a duplicate sentiment and bumps its event group in
// one transaction: the counter increments and the "last" fields roll forward
// to the new sentiment, and total_count can never drift from the rows.
func (s *Store) AttachSentiment(ctx context.Context, eventID int64, sent *domain.Sentiment, seenAt time.Time) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		sent.EventID = eventID
		rowID, err := insertSentiment(ctx, tx, sent)
		if err != nil {
			return err
		}
		sent.ID = rowID
		return touchEvent(ctx, tx, eventID, sent, seenAt)
	})
}

// GetEvent fetches one event group by id.
func (s *Store) GetEvent(ctx context.Context, id int64) (*domain.Event, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM event_groups WHERE id = ?`, id)
	return scanEvent(row)
}

// ListEventSentiments returns all sentiments attached to an event group,
// newest first.
func (s *Store) ListEventSentiments(ctx context.Context, eventID int64) ([]domain.Sentiment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sentimentColumns+` FROM negative_sentiments
		 WHERE event_id = ? ORDER BY processed_at DESC`, eventID)
	if err != nil {
		return nil, fmt.Errorf("list event sentiments: %w", err)
	}
	defer rows.Close()
	return collectSentiments(rows)
}
