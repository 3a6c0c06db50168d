package api

import (
	"math"
	"net/http"
	"time"

	"github.com/ignite/opinion-monitor/internal/domain"
	"github.com/ignite/opinion-monitor/internal/pkg/httputil"
)

// Stats serves GET /api/stats: the dashboard's aggregate snapshot for the
// requested range.
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	start, _, normalized := rangeWindow(r.URL.Query().Get("range"), now)

	res, err := h.store.Stats(r.Context(), start, now)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}

	// Average risk score over active sentiments, scaled to 0-100.
	avgScore := 0.0
	if res.ActiveTotal > 0 {
		sum := domain.SeverityScore(domain.SeverityHigh)*float64(res.High) +
			domain.SeverityScore(domain.SeverityMedium)*float64(res.Medium) +
			domain.SeverityScore(domain.SeverityLow)*float64(res.Low)
		avgScore = math.Round(sum/float64(res.ActiveTotal)*1000) / 10
	}

	sources := make([]map[string]any, 0, len(res.Sources))
	for _, sc := range res.Sources {
		sources = append(sources, map[string]any{"source": sc.Source, "count": sc.Count})
	}
	hospitals := make([]map[string]any, 0, len(res.Hospitals))
	for _, hs := range res.Hospitals {
		hospitals = append(hospitals, map[string]any{
			"hospital": hs.Hospital,
			"high":     hs.High,
			"medium":   hs.Medium,
			"low":      hs.Low,
			"total":    hs.Total,
		})
	}
	hospitalList := res.HospitalList
	if hospitalList == nil {
		hospitalList = []string{}
	}

	httputil.OK(w, map[string]any{
		"range":           normalized,
		"active_total":    res.ActiveTotal,
		"dismissed_total": res.DismissedTotal,
		"high_total":      res.High,
		"avg_score":       avgScore,
		"severity": map[string]int64{
			"high":   res.High,
			"medium": res.Medium,
			"low":    res.Low,
		},
		"sources":       sources,
		"hospital_list": hospitalList,
		"hospitals":     hospitals,
	})
}

// trendBucket is one labelled time slot in the trend response.
type trendBucket struct {
	Label    string  `json:"label"`
	Count    int64   `json:"count"`
	AvgScore float64 `json:"avgScore"`
}

// Trend serves GET /api/stats/trend. Buckets are zero-seeded over the whole
// range so charts keep a continuous axis: hourly HH:00 labels for 24h, daily
// MM-DD labels for 7d/30d. Label times use the server's local zone.
func (h *Handlers) Trend(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	start, hourly, normalized := rangeWindow(r.URL.Query().Get("range"), now)

	samples, err := h.store.TrendSamples(r.Context(), start, now)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}

	// Buckets are keyed by the full truncated timestamp, not the display
	// label: with a 24h range the oldest and newest slots can share an HH:00
	// label, and a stale sample must not land in the newest bucket.
	labelOf := func(t time.Time) string { return t.Local().Format("01-02") }
	keyOf := func(t time.Time) string { return t.Local().Format("2006-01-02") }
	var slots []time.Time
	if hourly {
		labelOf = func(t time.Time) string { return t.Local().Format("15:00") }
		keyOf = func(t time.Time) string { return t.Local().Format("2006-01-02 15") }
		cur := now.Local().Truncate(time.Hour)
		for i := 23; i >= 0; i-- {
			slots = append(slots, cur.Add(-time.Duration(i)*time.Hour))
		}
	} else {
		days := 7
		if normalized == "30d" {
			days = 30
		}
		cur := now.Local()
		for i := days - 1; i >= 0; i-- {
			slots = append(slots, cur.AddDate(0, 0, -i))
		}
	}

	buckets := make([]trendBucket, len(slots))
	index := make(map[string]int, len(slots))
	for i, slot := range slots {
		buckets[i] = trendBucket{Label: labelOf(slot)}
		index[keyOf(slot)] = i
	}

	scoreSums := make([]float64, len(slots))
	for _, s := range samples {
		i, ok := index[keyOf(s.ProcessedAt)]
		if !ok {
			continue
		}
		buckets[i].Count++
		scoreSums[i] += domain.SeverityScore(s.Severity)
	}
	for i := range buckets {
		if buckets[i].Count > 0 {
			buckets[i].AvgScore = math.Round(scoreSums[i] / float64(buckets[i].Count) * 100)
		}
	}

	httputil.OK(w, map[string]any{"range": normalized, "data": buckets})
}
