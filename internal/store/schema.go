package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Table DDL. CREATE TABLE IF NOT EXISTS keeps startup idempotent; index
// creation is guarded separately because MySQL has no IF NOT EXISTS for
// secondary indexes.
var schemaDDL = []string{
	`CREATE TABLE IF NOT EXISTS processed_emails (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		email_token VARCHAR(255) NOT NULL UNIQUE,
		hospital_name VARCHAR(255),
		email_date DATETIME,
		processed_at DATETIME DEFAULT CURRENT_TIMESTAMP
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS negative_sentiments (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		sentiment_id VARCHAR(64) NOT NULL UNIQUE,
		event_id BIGINT DEFAULT 0,
		hospital_name VARCHAR(255) NOT NULL,
		title TEXT,
		source VARCHAR(255),
		content MEDIUMTEXT,
		reason TEXT,
		severity VARCHAR(16) NOT NULL DEFAULT 'low',
		url TEXT,
		status VARCHAR(16) NOT NULL DEFAULT 'active',
		is_duplicate TINYINT(1) NOT NULL DEFAULT 0,
		dismissed_at DATETIME NULL,
		insight_text MEDIUMTEXT,
		insight_at DATETIME NULL,
		processed_at DATETIME DEFAULT CURRENT_TIMESTAMP
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS event_groups (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		hospital_name VARCHAR(255) NOT NULL,
		fingerprint BIGINT UNSIGNED NOT NULL,
		event_url TEXT,
		total_count INT NOT NULL DEFAULT 1,
		last_title TEXT,
		last_reason TEXT,
		last_source VARCHAR(255),
		last_severity VARCHAR(16) NOT NULL DEFAULT 'low',
		last_sentiment_id VARCHAR(64),
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		last_seen_at DATETIME DEFAULT CURRENT_TIMESTAMP
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS sentiment_feedback (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		sentiment_id VARCHAR(64) NOT NULL,
		judgment TINYINT(1) NOT NULL,
		feedback_type VARCHAR(32),
		feedback_text TEXT,
		user_id VARCHAR(64),
		feedback_time DATETIME DEFAULT CURRENT_TIMESTAMP,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS feedback_queue (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		sentiment_id VARCHAR(64) NOT NULL,
		user_id VARCHAR(64),
		sent_time DATETIME DEFAULT CURRENT_TIMESTAMP,
		status VARCHAR(16) NOT NULL DEFAULT 'pending',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS feedback_rules (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		pattern VARCHAR(255) NOT NULL,
		rule_type VARCHAR(16) NOT NULL DEFAULT 'keyword',
		action VARCHAR(16) NOT NULL DEFAULT 'suppress',
		confidence DOUBLE NOT NULL DEFAULT 0,
		enabled TINYINT(1) NOT NULL DEFAULT 1,
		source_feedback_id BIGINT DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE KEY uq_rule_pattern (pattern, rule_type, action)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Secondary indexes. event_url is TEXT so the index takes a 191-char prefix,
// which stays under the utf8mb4 key length limit.
var schemaIndexes = []struct {
	table string
	name  string
	ddl   string
}{
	{"negative_sentiments", "idx_ns_hospital", "CREATE INDEX idx_ns_hospital ON negative_sentiments (hospital_name)"},
	{"negative_sentiments", "idx_ns_status", "CREATE INDEX idx_ns_status ON negative_sentiments (status)"},
	{"negative_sentiments", "idx_ns_processed", "CREATE INDEX idx_ns_processed ON negative_sentiments (processed_at)"},
	{"event_groups", "idx_eg_lookup", "CREATE INDEX idx_eg_lookup ON event_groups (hospital_name, fingerprint, last_seen_at)"},
	{"event_groups", "idx_eg_url", "CREATE INDEX idx_eg_url ON event_groups (event_url(191))"},
	{"sentiment_feedback", "idx_sf_sentiment", "CREATE INDEX idx_sf_sentiment ON sentiment_feedback (sentiment_id)"},
	{"feedback_queue", "idx_fq_sentiment", "CREATE INDEX idx_fq_sentiment ON feedback_queue (sentiment_id)"},
	{"feedback_queue", "idx_fq_status", "CREATE INDEX idx_fq_status ON feedback_queue (status)"},
}

// EnsureSchema creates all tables and indexes if missing. It is safe to run
// on every startup and from the migrate command.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, ddl := range schemaDDL {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	for _, idx := range schemaIndexes {
		exists, err := s.indexExists(ctx, idx.table, idx.name)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if _, err := s.db.ExecContext(ctx, idx.ddl); err != nil {
			return fmt.Errorf("create index %s: %w", idx.name, err)
		}
	}
	return nil
}

func (s *Store) indexExists(ctx context.Context, table, name string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM information_schema.statistics
		 WHERE table_schema = DATABASE() AND table_name = ? AND index_name = ?`,
		table, name).Scan(&n)
	if err != nil && err != sql.ErrNoRows {
		return false, fmt.Errorf("check index %s: %w", name, err)
	}
	return n > 0, nil
}
