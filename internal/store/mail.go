package store

import (
	"context"
	"fmt"
	"time"
)

// UpsertProcessedMail records an email token before any downstream work.
// Returns true when the token is new and the mail should be processed;
// false when another run (or a crashed prior run) already claimed it.
func (s *Store) UpsertProcessedMail(ctx context.Context, token, hospital string, emailDate time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT IGNORE INTO processed_emails (email_token, hospital_name, email_date)
		 VALUES (?, ?, ?)`,
		token, hospital, emailDate)
	if err != nil {
		return false, fmt.Errorf("upsert processed mail: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("upsert processed mail: rows affected: %w", err)
	}
	return n > 0, nil
}

// CountProcessedMails returns the total number of claimed tokens. Used by the
// stats endpoint.
func (s *Store) CountProcessedMails(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM processed_emails`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count processed mails: %w", err)
	}
	return n, nil
}
