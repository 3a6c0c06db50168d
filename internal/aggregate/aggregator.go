// Package aggregate groups negative sentiments into events: same canonical
// URL plus same hospital within the window means the same real-world
// incident.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/ignite/opinion-monitor/internal/config"
	"github.com/ignite/opinion-monitor/internal/domain"
	"github.com/ignite/opinion-monitor/internal/pkg/logger"
	"github.com/ignite/opinion-monitor/internal/store"
)

// Result is the outcome of aggregating one verdict.
type Result struct {
	SentimentID string
	EventID     int64
	IsDuplicate bool

	// Notify is set for first occurrences and for severity escalations
	// (high arriving on an event whose prior last severity was lower).
	Notify bool
	Event  *domain.Event
}

// Aggregator applies the find-or-create-or-bump algorithm under a keyed
// serialization point.
type Aggregator struct {
	store  *store.Store
	locker KeyedLocker
	cfg    config.AggregationConfig
	log    *logger.Logger
	now    func() time.Time
}

// New builds an aggregator. locker defaults to the in-process keyed mutex.
func New(st *store.Store, locker KeyedLocker, cfg config.AggregationConfig, log *logger.Logger) *Aggregator {
	if locker == nil {
		locker = NewMutexLocker()
	}
	return &Aggregator{store: st, locker: locker, cfg: cfg, log: log, now: time.Now}
}

// Fingerprint derives the 64-bit event key from the canonical URL and
// normalized hospital.
func Fingerprint(canonicalURL, hospital string) uint64 {
	return xxhash.Sum64String(canonicalURL + "\x00" + hospital)
}

// Aggregate persists one negative verdict and links it to its event group.
// Concurrent calls for the same (hospital, fingerprint) are serialized so
// total_count never races and only one event is created per window.
func (a *Aggregator) Aggregate(ctx context.Context, v domain.Verdict, art domain.Article) (*Result, error) {
	hospital := NormalizeHospital(art.Hospital)
	if hospital == "" {
		hospital = domain.UnknownHospital
	}
	canonical := CanonicalizeURL(art.URL, a.cfg.TrackingParams)
	fp := Fingerprint(canonical, hospital)
	now := a.now()

	key := hospital + ":" + strconv.FormatUint(fp, 16)
	unlock, err := a.locker.Lock(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("lock aggregation key: %w", err)
	}
	defer unlock()

	sent := &domain.Sentiment{
		SentimentID: uuid.NewString(),
		Hospital:    hospital,
		Title:       v.Title,
		Source:      art.Source,
		Content:     art.Body,
		Reason:      v.Reason,
		Severity:    v.Severity,
		URL:         canonical,
		Status:      domain.StatusActive,
		ProcessedAt: now,
	}

	windowStart := now.Add(-time.Duration(a.cfg.WindowHours) * time.Hour)
	existing, err := a.store.FindOpenEvent(ctx, hospital, fp, windowStart)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return a.createEvent(ctx, sent, fp, now)
	case err != nil:
		return nil, fmt.Errorf("find open event: %w", err)
	}

	sent.IsDuplicate = true
	priorSeverity := existing.LastSeverity
	if err := a.store.AttachSentiment(ctx, existing.ID, sent, now); err != nil {
		return nil, err
	}
	existing.TotalCount++
	existing.LastTitle = sent.Title
	existing.LastReason = sent.Reason
	existing.LastSource = sent.Source
	existing.LastSeverity = sent.Severity
	existing.LastSentimentID = sent.SentimentID
	existing.LastSeenAt = now

	escalated := v.Severity == domain.SeverityHigh &&
		domain.SeverityRank(priorSeverity) < domain.SeverityRank(domain.SeverityHigh)
	if escalated {
		a.log.Info("event escalated to high",
			"event_id", existing.ID, "hospital", hospital, "count", existing.TotalCount)
	}

	return &Result{
		SentimentID: sent.SentimentID,
		EventID:     existing.ID,
		IsDuplicate: true,
		Notify:      escalated,
		Event:       existing,
	}, nil
}

func (a *Aggregator) createEvent(ctx context.Context, sent *domain.Sentiment, fp uint64, now time.Time) (*Result, error) {
	event := &domain.Event{
		Hospital:        sent.Hospital,
		Fingerprint:     fp,
		EventURL:        sent.URL,
		TotalCount:      1,
		LastTitle:       sent.Title,
		LastReason:      sent.Reason,
		LastSource:      sent.Source,
		LastSeverity:    sent.Severity,
		LastSentimentID: sent.SentimentID,
		CreatedAt:       now,
		LastSeenAt:      now,
	}
	if err := a.store.CreateEventWithSentiment(ctx, event, sent); err != nil {
		return nil, err
	}
	a.log.Info("new event created",
		"event_id", event.ID, "hospital", sent.Hospital, "severity", sent.Severity)

	return &Result{
		SentimentID: sent.SentimentID,
		EventID:     event.ID,
		Notify:      true,
		Event:       event,
	}, nil
}

// RecordFailure persists an article whose classification failed as a
// non-negative sentiment. The row keeps the failure reason for audit and
// re-review but never joins an event group and never alerts.
func (a *Aggregator) RecordFailure(ctx context.Context, v domain.Verdict, art domain.Article) (string, error) {
	hospital := NormalizeHospital(art.Hospital)
	if hospital == "" {
		hospital = domain.UnknownHospital
	}
	sent := &domain.Sentiment{
		SentimentID: uuid.NewString(),
		Hospital:    hospital,
		Title:       v.Title,
		Source:      art.Source,
		Content:     art.Body,
		Reason:      v.Reason,
		Severity:    v.Severity,
		URL:         CanonicalizeURL(art.URL, a.cfg.TrackingParams),
		Status:      domain.StatusActive,
		ProcessedAt: a.now(),
	}
	if _, err := a.store.InsertSentiment(ctx, sent); err != nil {
		return "", err
	}
	a.log.Warn("classification failed, recorded for re-review",
		"hospital", hospital, "url", sent.URL, "reason", v.Reason)
	return sent.SentimentID, nil
}
