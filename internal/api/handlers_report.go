package api

import (
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/opinion-monitor/internal/pkg/httputil"
	"github.com/ignite/opinion-monitor/internal/report"
)

const reportDateLayout = "2006-01-02"

// GenerateReport serves POST /api/report/generate.
func (h *Handlers) GenerateReport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Hospital  string `json:"hospital"`
		StartDate string `json:"start_date"`
		EndDate   string `json:"end_date"`
		Format    string `json:"format"`
	}
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.Hospital == "" {
		req.Hospital = "all"
	}
	if req.Format == "" {
		req.Format = "markdown"
	}

	now := time.Now()
	start := now.AddDate(0, 0, -7)
	end := now
	if req.StartDate != "" {
		t, err := time.ParseInLocation(reportDateLayout, req.StartDate, time.Local)
		if err != nil {
			httputil.BadRequest(w, "invalid start_date: "+req.StartDate)
			return
		}
		start = t
	}
	if req.EndDate != "" {
		t, err := time.ParseInLocation(reportDateLayout, req.EndDate, time.Local)
		if err != nil {
			httputil.BadRequest(w, "invalid end_date: "+req.EndDate)
			return
		}
		// Cover the whole end day.
		end = t.AddDate(0, 0, 1).Add(-time.Second)
	}
	if end.Before(start) {
		httputil.BadRequest(w, "end_date is before start_date")
		return
	}

	filename, err := h.reports.Generate(r.Context(), req.Hospital, start, end, req.Format)
	if err != nil {
		h.log.Warn("report generation failed", "hospital", req.Hospital, "error", err.Error())
		httputil.BadRequest(w, err.Error())
		return
	}
	httputil.OK(w, map[string]any{
		"success":      true,
		"filename":     filename,
		"download_url": "/api/report/download/" + url.PathEscape(filename),
	})
}

// DownloadReport serves GET /api/report/download/{filename}, streaming a
// previously rendered report.
func (h *Handlers) DownloadReport(w http.ResponseWriter, r *http.Request) {
	filename, err := url.PathUnescape(chi.URLParam(r, "filename"))
	if err != nil {
		httputil.BadRequest(w, "invalid filename")
		return
	}
	path, err := h.reports.Open(filename)
	if err != nil {
		httputil.NotFound(w, "report not found")
		return
	}
	w.Header().Set("Content-Type", report.ContentType(filename))
	w.Header().Set("Content-Disposition", "attachment; filename*=UTF-8''"+url.PathEscape(filename))
	http.ServeFile(w, r, path)
}
