// Package scheduler owns the pipeline lifecycle: it polls the mailbox on a
// fixed cadence, fans mails out across a bounded worker pool, and runs the
// feedback-rule compiler on a slower cadence.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/ignite/opinion-monitor/internal/aggregate"
	"github.com/ignite/opinion-monitor/internal/classifier"
	"github.com/ignite/opinion-monitor/internal/config"
	"github.com/ignite/opinion-monitor/internal/domain"
	"github.com/ignite/opinion-monitor/internal/extract"
	"github.com/ignite/opinion-monitor/internal/feedback"
	"github.com/ignite/opinion-monitor/internal/mailer"
	"github.com/ignite/opinion-monitor/internal/notify"
	"github.com/ignite/opinion-monitor/internal/pkg/logger"
	"github.com/ignite/opinion-monitor/internal/store"
)

// Scheduler supervises the ingestion pipeline. One tick never aborts because
// one mail or one article failed; errors stay local to their item.
type Scheduler struct {
	cfg  config.RuntimeConfig
	conc config.ConcurrencyConfig

	source     mailer.Source
	store      *store.Store
	extractor  *extract.Extractor
	classifier *classifier.Classifier
	aggregator *aggregate.Aggregator
	notifier   *notify.Notifier
	feedback   *feedback.Service
	log        *logger.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New wires the scheduler over the pipeline components.
func New(cfg config.RuntimeConfig, conc config.ConcurrencyConfig, source mailer.Source,
	st *store.Store, ex *extract.Extractor, cl *classifier.Classifier,
	ag *aggregate.Aggregator, nt *notify.Notifier, fb *feedback.Service,
	log *logger.Logger) *Scheduler {
	return &Scheduler{
		cfg:        cfg,
		conc:       conc,
		source:     source,
		store:      st,
		extractor:  ex,
		classifier: cl,
		aggregator: ag,
		notifier:   nt,
		feedback:   fb,
		log:        log,
	}
}

// Start launches the polling and maintenance loops. Safe to call once;
// repeated calls are no-ops until Stop.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	// Rules compiled by earlier runs must apply from the first tick.
	if err := s.classifier.ReloadRules(ctx); err != nil {
		s.log.Warn("initial rule load failed", "error", err.Error())
	}

	s.wg.Add(2)
	go s.pollLoop(ctx)
	go s.maintenanceLoop(ctx)
	s.log.Info("scheduler started",
		"check_interval", s.cfg.CheckInterval().String(),
		"rule_compile_interval", s.cfg.RuleCompileInterval().String())
}

// Stop cancels both loops and waits for in-flight work up to the shutdown
// deadline.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("scheduler stopped")
	case <-time.After(s.cfg.ShutdownTimeout()):
		s.log.Warn("scheduler shutdown deadline exceeded, abandoning in-flight work")
	}
}

func (s *Scheduler) pollLoop(ctx context.Context) {
	defer s.wg.Done()

	// First tick fires immediately so a restart never waits a full interval.
	s.Tick(ctx)

	ticker := time.NewTicker(s.cfg.CheckInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Tick(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) maintenanceLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.RuleCompileInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.maintain(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) maintain(ctx context.Context) {
	if err := s.feedback.CompileRules(ctx); err != nil {
		s.log.Error("rule compilation failed", "error", err.Error())
	}
	if err := s.classifier.ReloadRules(ctx); err != nil {
		s.log.Error("rule reload failed", "error", err.Error())
	}
	if err := s.feedback.ExpireStale(ctx); err != nil {
		s.log.Error("feedback expiry sweep failed", "error", err.Error())
	}
}

// Tick runs one full pipeline pass: fetch unread mails, claim each token,
// then process claimed mails on a bounded worker pool.
func (s *Scheduler) Tick(ctx context.Context) {
	mails, err := s.source.FetchUnread(ctx)
	if err != nil {
		s.log.Error("mail fetch failed", "error", err.Error())
		return
	}
	if len(mails) == 0 {
		return
	}
	s.log.Info("tick started", "mails", len(mails))

	poolSize := s.conc.PMail
	if poolSize <= 0 {
		poolSize = 2
	}
	slots := make(chan struct{}, poolSize)
	var wg sync.WaitGroup
	for _, mail := range mails {
		select {
		case slots <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return
		}
		wg.Add(1)
		go func(mail domain.RawMail) {
			defer wg.Done()
			defer func() { <-slots }()
			s.processMail(ctx, mail)
		}(mail)
	}
	wg.Wait()
}

// processMail claims the token first so a crash mid-mail never causes a
// double alert, then classifies and aggregates articles sequentially in link
// order to keep per-event ordering clean.
func (s *Scheduler) processMail(ctx context.Context, mail domain.RawMail) {
	if mail.Hospital == "" {
		mail.Hospital = extract.ParseHospital(mail.Body, mail.Subject)
	}
	claimed, err := s.store.UpsertProcessedMail(ctx, mail.Token, mail.Hospital, mail.ReceivedAt)
	if err != nil {
		s.log.Error("claim mail failed", "token", mail.Token, "error", err.Error())
		return
	}
	if !claimed {
		s.log.Debug("mail already processed", "token", mail.Token)
		return
	}

	articles := s.extractor.Extract(ctx, mail)
	negatives := 0
	for _, art := range articles {
		if ctx.Err() != nil {
			return
		}
		v := s.classifier.Classify(ctx, art)
		if !v.IsNegative {
			// Failed classifications are kept for audit and re-review;
			// genuine non-negative judgements leave no row behind.
			if v.Failure {
				if _, err := s.aggregator.RecordFailure(ctx, v, art); err != nil {
					s.log.Error("record failed classification", "url", art.URL, "error", err.Error())
				}
			}
			continue
		}
		negatives++
		res, err := s.aggregator.Aggregate(ctx, v, art)
		if err != nil {
			s.log.Error("aggregate failed", "url", art.URL, "error", err.Error())
			continue
		}
		if res.Notify {
			s.notifier.Notify(ctx, &domain.Sentiment{
				SentimentID: res.SentimentID,
				Hospital:    res.Event.Hospital,
				Title:       res.Event.LastTitle,
				Source:      res.Event.LastSource,
				Content:     art.Body,
				Reason:      res.Event.LastReason,
				Severity:    res.Event.LastSeverity,
				URL:         res.Event.EventURL,
			}, res.Event)
		}
	}
	s.log.Info("mail processed",
		"token", mail.Token, "hospital", mail.Hospital,
		"articles", len(articles), "negatives", negatives)
}
