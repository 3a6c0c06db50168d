// Package domain holds the shared types flowing through the monitoring
// pipeline: raw mails, scraped articles, classifier verdicts, and the
// persisted sentiment/event/feedback records.
package domain

import (
	"strings"
	"time"
)

// Severity literals. Anything else coming back from the LLM is coerced to low.
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// Sentiment status values. Transitions are active -> dismissed via feedback
// or admin action, and back only via an explicit feedback reversal.
const (
	StatusActive    = "active"
	StatusDismissed = "dismissed"
)

// Feedback queue status values.
const (
	QueuePending  = "pending"
	QueueAnswered = "answered"
	QueueExpired  = "expired"
)

// FeedbackRule pattern kinds and actions.
const (
	RuleTypeKeyword = "keyword"
	RuleTypeRegex   = "regex"

	ActionSuppress  = "suppress"
	ActionDowngrade = "downgrade"
)

// UnknownHospital is the placeholder when no hospital name can be parsed.
const UnknownHospital = "未知"

// NormalizeSeverity lower-cases and validates a severity string, coercing
// unknown values to low.
func NormalizeSeverity(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case SeverityHigh:
		return SeverityHigh
	case SeverityMedium:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// SeverityScore maps a severity to the score used for aggregate statistics.
// The mapping is presentation-stable: dashboards badge against these values.
func SeverityScore(severity string) float64 {
	switch severity {
	case SeverityHigh:
		return 0.92
	case SeverityMedium:
		return 0.60
	default:
		return 0.35
	}
}

// SeverityRank orders severities for escalation checks (low < medium < high).
func SeverityRank(severity string) int {
	switch severity {
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 1
	default:
		return 0
	}
}

// RawMail is one fetched vendor notification email.
type RawMail struct {
	Token      string
	Subject    string
	Sender     string
	Body       string
	Hospital   string
	ReceivedAt time.Time
}

// Article is one scraped report page, normalized for classification.
type Article struct {
	Hospital string
	Source   string
	Title    string
	URL      string
	Body     string

	// FetchFailed marks articles whose page could not be rendered after
	// retries; the classifier downgrades confidence for these.
	FetchFailed bool
}

// Verdict is the typed classifier output for one article.
type Verdict struct {
	IsNegative bool    `json:"is_negative"`
	Severity   string  `json:"severity"`
	Reason     string  `json:"reason"`
	Title      string  `json:"title"`
	Confidence float64 `json:"confidence"`

	// Failure marks verdicts synthesized because the LLM call or its
	// response parsing failed, with Reason carrying the failure mode.
	// Failed articles are persisted for audit but never join an event and
	// never alert; a genuine non-negative judgement has Failure unset.
	Failure bool `json:"-"`
}

// Sentiment is one classified article as persisted.
type Sentiment struct {
	ID          int64
	SentimentID string
	EventID     int64
	Hospital    string
	Title       string
	Source      string
	Content     string
	Reason      string
	Severity    string
	URL         string
	Status      string
	IsDuplicate bool
	DismissedAt *time.Time
	InsightText string
	InsightAt   *time.Time
	ProcessedAt time.Time
}

// Event groups sentiments judged to concern the same real-world incident.
type Event struct {
	ID              int64
	Hospital        string
	Fingerprint     uint64
	EventURL        string
	TotalCount      int64
	LastTitle       string
	LastReason      string
	LastSource      string
	LastSeverity    string
	LastSentimentID string
	CreatedAt       time.Time
	LastSeenAt      time.Time
}

// Feedback is one immutable user judgement on a sentiment.
type Feedback struct {
	ID           int64
	SentimentID  string
	Judgment     bool
	FeedbackType string
	FeedbackText string
	UserID       string
	FeedbackTime time.Time
	CreatedAt    time.Time
}

// QueueEntry correlates an outgoing alert to a future feedback callback.
type QueueEntry struct {
	ID          int64
	SentimentID string
	UserID      string
	SentTime    time.Time
	Status      string
	CreatedAt   time.Time
}

// FeedbackRule is a compiled suppression directive consulted by the
// classifier before any LLM call.
type FeedbackRule struct {
	ID               int64
	Pattern          string
	RuleType         string
	Action           string
	Confidence       float64
	Enabled          bool
	SourceFeedbackID int64
	CreatedAt        time.Time
}
