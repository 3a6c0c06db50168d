package store

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/opinion-monitor/internal/domain"
)

// SourceCount is one platform's share of active sentiments.
type SourceCount struct {
	Source string
	Count  int64
}

// HospitalStat is one hospital's severity breakdown.
type HospitalStat struct {
	Hospital string
	High     int64
	Medium   int64
	Low      int64
	Total    int64
}

// StatsResult is the aggregate snapshot behind the dashboard stats payload.
// Severity counts cover active sentiments only; DismissedTotal counts items
// whose dismissal fell inside the range.
type StatsResult struct {
	ActiveTotal    int64
	DismissedTotal int64
	High           int64
	Medium         int64
	Low            int64
	Sources        []SourceCount
	HospitalList   []string
	Hospitals      []HospitalStat
}

const statsActiveCond = "status != '" + domain.StatusDismissed + "'"

// Stats aggregates sentiment counts between start and end for the dashboard.
func (s *Store) Stats(ctx context.Context, start, end time.Time) (*StatsResult, error) {
	out := &StatsResult{}

	err := s.db.QueryRowContext(ctx,
		`SELECT
		   COALESCE(SUM(`+statsActiveCond+`), 0),
		   COALESCE(SUM(severity = 'high' AND `+statsActiveCond+`), 0),
		   COALESCE(SUM(severity = 'medium' AND `+statsActiveCond+`), 0),
		   COALESCE(SUM(severity = 'low' AND `+statsActiveCond+`), 0)
		 FROM negative_sentiments
		 WHERE processed_at >= ? AND processed_at <= ?`,
		start, end).
		Scan(&out.ActiveTotal, &out.High, &out.Medium, &out.Low)
	if err != nil {
		return nil, fmt.Errorf("stats totals: %w", err)
	}

	// Dismissals are windowed by when the item was dismissed, not by when it
	// was first seen, so old items dismissed today still count.
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM negative_sentiments
		 WHERE status = ? AND dismissed_at >= ? AND dismissed_at <= ?`,
		domain.StatusDismissed, start, end).
		Scan(&out.DismissedTotal)
	if err != nil {
		return nil, fmt.Errorf("stats dismissed: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT COALESCE(NULLIF(source, ''), '未知'), COUNT(1)
		 FROM negative_sentiments
		 WHERE `+statsActiveCond+` AND processed_at >= ? AND processed_at <= ?
		 GROUP BY 1 ORDER BY 2 DESC LIMIT 10`, start, end)
	if err != nil {
		return nil, fmt.Errorf("stats sources: %w", err)
	}
	for rows.Next() {
		var sc SourceCount
		if err := rows.Scan(&sc.Source, &sc.Count); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan source count: %w", err)
		}
		out.Sources = append(out.Sources, sc)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate source counts: %w", err)
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx,
		`SELECT DISTINCT COALESCE(NULLIF(hospital_name, ''), '未知')
		 FROM negative_sentiments
		 WHERE `+statsActiveCond+` AND processed_at >= ? AND processed_at <= ?
		 ORDER BY 1`, start, end)
	if err != nil {
		return nil, fmt.Errorf("stats hospital list: %w", err)
	}
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan hospital name: %w", err)
		}
		out.HospitalList = append(out.HospitalList, h)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate hospital list: %w", err)
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx,
		`SELECT COALESCE(NULLIF(hospital_name, ''), '未知'),
		   COALESCE(SUM(severity = 'high'), 0),
		   COALESCE(SUM(severity = 'medium'), 0),
		   COALESCE(SUM(severity = 'low'), 0),
		   COUNT(1)
		 FROM negative_sentiments
		 WHERE `+statsActiveCond+` AND processed_at >= ? AND processed_at <= ?
		 GROUP BY 1 ORDER BY 5 DESC LIMIT 10`, start, end)
	if err != nil {
		return nil, fmt.Errorf("stats hospitals: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var hs HospitalStat
		if err := rows.Scan(&hs.Hospital, &hs.High, &hs.Medium, &hs.Low, &hs.Total); err != nil {
			return nil, fmt.Errorf("scan hospital stat: %w", err)
		}
		out.Hospitals = append(out.Hospitals, hs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate hospital stats: %w", err)
	}
	return out, nil
}

// TrendSample is one active sentiment's timestamp and severity; the API layer
// buckets samples into labelled time slots.
type TrendSample struct {
	ProcessedAt time.Time
	Severity    string
}

// TrendSamples returns active sentiments between start and end in time order.
func (s *Store) TrendSamples(ctx context.Context, start, end time.Time) ([]TrendSample, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT processed_at, severity FROM negative_sentiments
		 WHERE `+statsActiveCond+` AND processed_at >= ? AND processed_at <= ?
		 ORDER BY processed_at ASC`, start, end)
	if err != nil {
		return nil, fmt.Errorf("trend samples: %w", err)
	}
	defer rows.Close()

	var out []TrendSample
	for rows.Next() {
		var ts TrendSample
		if err := rows.Scan(&ts.ProcessedAt, &ts.Severity); err != nil {
			return nil, fmt.Errorf("scan trend sample: %w", err)
		}
		out = append(out, ts)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trend samples: %w", err)
	}
	return out, nil
}
