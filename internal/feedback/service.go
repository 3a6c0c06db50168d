// Package feedback closes the loop on alert quality: it verifies signed
// callback links, records judgements, and periodically compiles recurring
// false-positive patterns into suppression rules for the classifier.
package feedback

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/opinion-monitor/internal/config"
	"github.com/ignite/opinion-monitor/internal/domain"
	"github.com/ignite/opinion-monitor/internal/pkg/logger"
	"github.com/ignite/opinion-monitor/internal/store"
)

// ErrBadSignature is returned when a callback's signature or expiry fails
// verification.
var ErrBadSignature = fmt.Errorf("feedback: invalid or expired signature")

// Submission is one parsed feedback callback.
type Submission struct {
	QueueID     int64
	SentimentID string
	Expiry      int64
	Signature   string
	Judgment    bool
	Type        string
	Text        string
	UserID      string
}

// Service handles feedback callbacks and rule compilation.
type Service struct {
	cfg   config.FeedbackConfig
	store *store.Store
	log   *logger.Logger
	now   func() time.Time
}

// NewService builds the feedback service.
func NewService(cfg config.FeedbackConfig, st *store.Store, log *logger.Logger) *Service {
	return &Service{cfg: cfg, store: st, log: log, now: time.Now}
}

// OnFeedback verifies the signature before touching the database, then
// resolves the queue entry transactionally. Explicit rule candidates in the
// feedback text are saved immediately; statistical promotion waits for the
// next CompileRules pass.
func (s *Service) OnFeedback(ctx context.Context, sub Submission) error {
	if !Verify(s.cfg.LinkSecret, sub.QueueID, sub.SentimentID, sub.Expiry, sub.Signature, s.now()) {
		return ErrBadSignature
	}

	fb := &domain.Feedback{
		SentimentID:  sub.SentimentID,
		Judgment:     sub.Judgment,
		FeedbackType: sub.Type,
		FeedbackText: sub.Text,
		UserID:       sub.UserID,
		FeedbackTime: s.now(),
	}
	if err := s.store.ResolveFeedback(ctx, sub.QueueID, fb); err != nil {
		return err
	}
	s.log.Info("feedback recorded",
		"queue_id", sub.QueueID, "sentiment_id", sub.SentimentID, "judgment", sub.Judgment)

	// False-positive feedback may name the pattern outright.
	if !sub.Judgment {
		for _, cand := range ExtractRuleCandidates(sub.Text) {
			inserted, err := s.store.InsertRule(ctx, &cand)
			if err != nil {
				s.log.Warn("save explicit rule failed", "pattern", cand.Pattern, "error", err.Error())
				continue
			}
			if inserted {
				s.log.Info("explicit suppression rule saved", "pattern", cand.Pattern)
			}
		}
	}
	return nil
}

// ExpireStale flips pending queue entries past the link TTL to expired.
func (s *Service) ExpireStale(ctx context.Context) error {
	cutoff := s.now().Add(-time.Duration(s.cfg.LinkTTLHours) * time.Hour)
	n, err := s.store.ExpirePendingFeedback(ctx, cutoff)
	if err != nil {
		return err
	}
	if n > 0 {
		s.log.Info("stale feedback entries expired", "count", n)
	}
	return nil
}
