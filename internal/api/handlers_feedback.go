package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/ignite/opinion-monitor/internal/feedback"
	"github.com/ignite/opinion-monitor/internal/pkg/httputil"
	"github.com/ignite/opinion-monitor/internal/store"
)

// Feedback serves the signed callback link embedded in alerts. Chat clients
// open it as GET; the dashboard posts it. Parameters ride in the query
// string either way; the signature is verified before any database access.
func (h *Handlers) Feedback(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		httputil.BadRequest(w, "invalid parameters")
		return
	}

	queueID, err := strconv.ParseInt(r.Form.Get("queue_id"), 10, 64)
	if err != nil {
		httputil.BadRequest(w, "invalid queue_id")
		return
	}
	expiry, err := strconv.ParseInt(r.Form.Get("expires"), 10, 64)
	if err != nil {
		httputil.BadRequest(w, "invalid expires")
		return
	}
	judgment, err := strconv.ParseBool(r.Form.Get("judgement"))
	if err != nil {
		httputil.BadRequest(w, "invalid judgement")
		return
	}

	sub := feedback.Submission{
		QueueID:     queueID,
		SentimentID: r.Form.Get("sentiment_id"),
		Expiry:      expiry,
		Signature:   r.Form.Get("sig"),
		Judgment:    judgment,
		Type:        r.Form.Get("type"),
		Text:        r.Form.Get("text"),
		UserID:      r.Form.Get("user_id"),
	}

	switch err := h.feedback.OnFeedback(r.Context(), sub); {
	case errors.Is(err, feedback.ErrBadSignature):
		httputil.Unauthorized(w, "invalid or expired feedback link")
	case errors.Is(err, store.ErrNotFound):
		httputil.NotFound(w, "feedback link already used or expired")
	case err != nil:
		httputil.InternalError(w, err)
	default:
		httputil.OK(w, map[string]any{"success": true})
	}
}
