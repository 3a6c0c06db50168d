package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/opinion-monitor/internal/classifier"
	"github.com/ignite/opinion-monitor/internal/config"
	"github.com/ignite/opinion-monitor/internal/domain"
	"github.com/ignite/opinion-monitor/internal/feedback"
	"github.com/ignite/opinion-monitor/internal/pkg/httputil"
	"github.com/ignite/opinion-monitor/internal/pkg/logger"
	"github.com/ignite/opinion-monitor/internal/report"
	"github.com/ignite/opinion-monitor/internal/store"
)

// defaultPreview is the content preview length (in runes) for compact
// listings.
const defaultPreview = 240

// Handlers carries the dependencies shared by all dashboard endpoints.
type Handlers struct {
	store    *store.Store
	keywords *classifier.Keywords
	llm      classifier.Completer
	feedback *feedback.Service
	reports  *report.Generator
	cfg      config.AIConfig
	log      *logger.Logger
}

// NewHandlers wires the dashboard handlers. llm may be nil; the AI endpoints
// then report the model as unconfigured.
func NewHandlers(st *store.Store, keywords *classifier.Keywords, llm classifier.Completer,
	fb *feedback.Service, reports *report.Generator, cfg config.AIConfig, log *logger.Logger) *Handlers {
	return &Handlers{
		store:    st,
		keywords: keywords,
		llm:      llm,
		feedback: fb,
		reports:  reports,
		cfg:      cfg,
		log:      log,
	}
}

// opinionJSON is the wire shape of one sentiment in dashboard responses.
// score is the badge value dashboards render, not the statistics weight.
type opinionJSON struct {
	ID               string  `json:"id"`
	Hospital         string  `json:"hospital"`
	Title            string  `json:"title"`
	Source           string  `json:"source"`
	Content          string  `json:"content"`
	Reason           string  `json:"reason"`
	Severity         string  `json:"severity"`
	Score            float64 `json:"score"`
	URL              string  `json:"url"`
	Status           string  `json:"status"`
	DismissedAt      string  `json:"dismissed_at,omitempty"`
	ContentTruncated bool    `json:"content_truncated,omitempty"`
	CreatedAt        string  `json:"createdAt"`
}

func badgeScore(severity string) float64 {
	switch severity {
	case domain.SeverityHigh:
		return 1.0
	case domain.SeverityMedium:
		return 0.6
	default:
		return 0.3
	}
}

func toOpinion(st domain.Sentiment, compact bool, preview int) opinionJSON {
	o := opinionJSON{
		ID:        st.SentimentID,
		Hospital:  st.Hospital,
		Title:     st.Title,
		Source:    st.Source,
		Content:   st.Content,
		Reason:    st.Reason,
		Severity:  st.Severity,
		Score:     badgeScore(st.Severity),
		URL:       st.URL,
		Status:    st.Status,
		CreatedAt: st.ProcessedAt.Format("2006-01-02 15:04:05"),
	}
	if st.DismissedAt != nil {
		o.DismissedAt = st.DismissedAt.Format("2006-01-02 15:04:05")
	}
	if compact {
		if runes := []rune(o.Content); len(runes) > preview {
			o.Content = string(runes[:preview])
			o.ContentTruncated = true
		}
	}
	return o
}

// compactParams reads the compact/preview query parameters.
func compactParams(r *http.Request) (bool, int) {
	compact := r.URL.Query().Get("compact") == "true" || r.URL.Query().Get("compact") == "1"
	preview := defaultPreview
	if v := r.URL.Query().Get("preview"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			preview = n
		}
	}
	return compact, preview
}

func listFilter(r *http.Request) store.Filter {
	q := r.URL.Query()
	f := store.Filter{
		Hospital: q.Get("hospital"),
		Severity: q.Get("severity"),
	}
	switch status := q.Get("status"); status {
	case "", domain.StatusActive:
		f.Status = domain.StatusActive
	case "all":
		// no status constraint
	default:
		f.Status = status
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			f.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			f.Offset = n
		}
	}
	return f
}

// ListOpinions serves GET /api/opinions.
func (h *Handlers) ListOpinions(w http.ResponseWriter, r *http.Request) {
	compact, preview := compactParams(r)
	sentiments, total, err := h.store.ListSentiments(r.Context(), listFilter(r))
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	opinions := make([]opinionJSON, 0, len(sentiments))
	for _, st := range sentiments {
		opinions = append(opinions, toOpinion(st, compact, preview))
	}
	httputil.OK(w, map[string]any{"opinions": opinions, "total": total})
}

// GetOpinion serves GET /api/opinions/{id} with the full content.
func (h *Handlers) GetOpinion(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	st, err := h.store.GetSentiment(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		httputil.NotFound(w, "opinion "+id+" not found")
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, toOpinion(*st, false, 0))
}

// Search serves GET /api/search over title/content/reason/hospital.
func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	if query == "" {
		httputil.OK(w, map[string]any{"opinions": []opinionJSON{}, "total": 0})
		return
	}
	compact, preview := compactParams(r)
	f := listFilter(r)
	f.Search = query
	sentiments, total, err := h.store.ListSentiments(r.Context(), f)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	opinions := make([]opinionJSON, 0, len(sentiments))
	for _, st := range sentiments {
		opinions = append(opinions, toOpinion(st, compact, preview))
	}
	httputil.OK(w, map[string]any{"opinions": opinions, "total": total})
}

// rangeWindow maps a range parameter to its start time and bucketing unit.
func rangeWindow(rangeParam string, now time.Time) (start time.Time, hourly bool, normalized string) {
	switch rangeParam {
	case "7d":
		return now.AddDate(0, 0, -7), false, "7d"
	case "30d":
		return now.AddDate(0, 0, -30), false, "30d"
	default:
		return now.Add(-24 * time.Hour), true, "24h"
	}
}
