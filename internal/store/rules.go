package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/opinion-monitor/internal/domain"
)

// ListEnabledRules returns all enabled suppression rules, newest first.
func (s *Store) ListEnabledRules(ctx context.Context) ([]domain.FeedbackRule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, pattern, rule_type, action, confidence, enabled,
		        source_feedback_id, created_at
		 FROM feedback_rules WHERE enabled = 1 ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var out []domain.FeedbackRule
	for rows.Next() {
		var r domain.FeedbackRule
		if err := rows.Scan(&r.ID, &r.Pattern, &r.RuleType, &r.Action,
			&r.Confidence, &r.Enabled, &r.SourceFeedbackID, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rules: %w", err)
	}
	return out, nil
}

// InsertRule stores a compiled rule. The (pattern, rule_type, action) unique
// key makes re-compilation idempotent; returns true when the rule is new.
func (s *Store) InsertRule(ctx context.Context, r *domain.FeedbackRule) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT IGNORE INTO feedback_rules
		 (pattern, rule_type, action, confidence, enabled, source_feedback_id)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.Pattern, r.RuleType, r.Action, r.Confidence, r.Enabled, r.SourceFeedbackID)
	if err != nil {
		return false, fmt.Errorf("insert rule: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert rule: rows affected: %w", err)
	}
	return n > 0, nil
}

// SetRuleEnabled enables or disables one rule by id.
func (s *Store) SetRuleEnabled(ctx context.Context, id int64, enabled bool) error {
	var res sql.Result
	res, err := s.db.ExecContext(ctx,
		`UPDATE feedback_rules SET enabled = ? WHERE id = ?`, enabled, id)
	if err != nil {
		return fmt.Errorf("set rule enabled: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
