// Package classifier decides whether an article is genuinely negative for
// the hospital. Compiled suppression rules and the admin keyword list run
// first; only articles that pass both reach the LLM.
package classifier

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/ignite/opinion-monitor/internal/config"
	"github.com/ignite/opinion-monitor/internal/domain"
	"github.com/ignite/opinion-monitor/internal/pkg/logger"
	"github.com/ignite/opinion-monitor/internal/store"
)

// fetchFailedConfidence caps confidence for articles whose page could not be
// rendered, so downstream consumers can tell "judged from title only".
const fetchFailedConfidence = 0.4

// Classifier runs the prefilter chain and the LLM call with bounded
// concurrency.
type Classifier struct {
	cfg      config.FeedbackConfig
	llm      Completer
	store    *store.Store
	keywords *Keywords
	rules    atomic.Pointer[RuleSet]
	slots    chan struct{}
	log      *logger.Logger
}

// New builds a classifier. poolSize bounds concurrent LLM calls.
func New(cfg config.FeedbackConfig, llm Completer, st *store.Store, keywords *Keywords, poolSize int, log *logger.Logger) *Classifier {
	if poolSize <= 0 {
		poolSize = 4
	}
	c := &Classifier{
		cfg:      cfg,
		llm:      llm,
		store:    st,
		keywords: keywords,
		slots:    make(chan struct{}, poolSize),
		log:      log,
	}
	c.rules.Store(CompileRules(nil, 0))
	return c
}

// ReloadRules fetches the enabled rules and swaps in a freshly compiled set.
func (c *Classifier) ReloadRules(ctx context.Context) error {
	rules, err := c.store.ListEnabledRules(ctx)
	if err != nil {
		return err
	}
	rs := CompileRules(rules, c.cfg.RulesMinConfidence)
	c.rules.Store(rs)
	c.log.Info("suppression rules reloaded",
		"suppress", len(rs.suppress), "downgrade", len(rs.downgrade))
	return nil
}

// Keywords exposes the admin keyword list for the dashboard handlers.
func (c *Classifier) Keywords() *Keywords { return c.keywords }

// Classify returns the verdict for one article. Rule and keyword hits
// short-circuit without an LLM call. An LLM outage yields a non-negative
// failure verdict with reason "llm-unavailable", an unparseable response one
// with reason "parse-error"; neither ever raises a false alarm.
func (c *Classifier) Classify(ctx context.Context, a domain.Article) domain.Verdict {
	text := a.Title + "\n" + a.Body
	rs := c.rules.Load()

	if pattern := rs.MatchSuppress(text); pattern != "" {
		return domain.Verdict{
			IsNegative: false,
			Severity:   domain.SeverityLow,
			Reason:     "rule:" + pattern,
			Title:      a.Title,
			Confidence: 1,
		}
	}
	if word := c.keywords.Match(text); word != "" {
		return domain.Verdict{
			IsNegative: false,
			Severity:   domain.SeverityLow,
			Reason:     "rule:" + word,
			Title:      a.Title,
			Confidence: 1,
		}
	}

	select {
	case c.slots <- struct{}{}:
	case <-ctx.Done():
		return failureVerdict(a, reasonLLMUnavailable)
	}
	defer func() { <-c.slots }()

	start := time.Now()
	raw, err := c.llm.Complete(ctx, buildPrompt(a))
	if err != nil {
		c.log.Warn("llm call failed", "url", a.URL, "error", err.Error())
		return failureVerdict(a, reasonLLMUnavailable)
	}
	v, err := parseVerdict(raw)
	if err != nil {
		c.log.Warn("llm response unparseable", "url", a.URL, "error", err.Error())
		return failureVerdict(a, reasonParseError)
	}
	c.log.Debug("article classified",
		"url", a.URL, "negative", v.IsNegative, "severity", v.Severity,
		"elapsed", time.Since(start).String())

	if v.Title == "" {
		v.Title = a.Title
	}
	if ceiling := rs.SeverityCeiling(text); domain.SeverityRank(v.Severity) > domain.SeverityRank(ceiling) {
		v.Severity = ceiling
	}
	if a.FetchFailed && v.Confidence > fetchFailedConfidence {
		v.Confidence = fetchFailedConfidence
	}
	return v
}

// Reasons stamped on failure verdicts so the stored rows stay auditable.
const (
	reasonParseError     = "parse-error"
	reasonLLMUnavailable = "llm-unavailable"
)

func failureVerdict(a domain.Article, reason string) domain.Verdict {
	return domain.Verdict{
		IsNegative: false,
		Severity:   domain.SeverityLow,
		Reason:     reason,
		Title:      a.Title,
		Failure:    true,
	}
}
