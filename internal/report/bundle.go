// Package report renders hospital reputation reports: a data bundle is
// assembled from stored sentiments, an AI advice section is generated, and
// the result is written as Markdown or a Word document.
package report

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ignite/opinion-monitor/internal/domain"
	"github.com/ignite/opinion-monitor/internal/store"
)

// Bundle is everything one report needs, independent of output format.
type Bundle struct {
	Hospital  string
	StartDate string
	EndDate   string
	Generated string

	Total     int
	High      int
	Medium    int
	Low       int
	AvgScore  float64
	DailyRows []DailyCount
	Sources   []SourceShare
	Opinions  []domain.Sentiment
	Advice    string
}

// DailyCount is one day's sentiment volume.
type DailyCount struct {
	Date  string
	Count int
}

// SourceShare is one platform's share of the reported sentiments.
type SourceShare struct {
	Source string
	Count  int
}

// assemble queries the period's sentiments and computes the distribution
// tables. hospital == "all" means every hospital.
func (g *Generator) assemble(ctx context.Context, hospital string, start, end time.Time) (*Bundle, error) {
	filter := store.Filter{Start: start, End: end, Limit: 2000}
	if hospital != "all" {
		filter.Hospital = hospital
	}
	opinions, _, err := g.store.ListSentiments(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("query report data: %w", err)
	}

	label := hospital
	if hospital == "all" {
		label = "全院汇总"
	}
	b := &Bundle{
		Hospital:  label,
		StartDate: start.Format("2006-01-02"),
		EndDate:   end.Format("2006-01-02"),
		Generated: time.Now().Format("2006-01-02 15:04:05"),
		Opinions:  opinions,
	}

	daily := make(map[string]int)
	sources := make(map[string]int)
	var scoreSum float64
	for _, op := range opinions {
		switch op.Severity {
		case domain.SeverityHigh:
			b.High++
		case domain.SeverityMedium:
			b.Medium++
		default:
			b.Low++
		}
		scoreSum += domain.SeverityScore(op.Severity)
		daily[op.ProcessedAt.Format("2006-01-02")]++
		src := op.Source
		if src == "" {
			src = "未知"
		}
		sources[src]++
	}
	b.Total = len(opinions)
	if b.Total > 0 {
		b.AvgScore = scoreSum / float64(b.Total) * 100
	}

	// Zero-seed every day in the range so quiet days show as zero instead
	// of disappearing.
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		key := d.Format("2006-01-02")
		b.DailyRows = append(b.DailyRows, DailyCount{Date: key, Count: daily[key]})
	}

	for src, n := range sources {
		b.Sources = append(b.Sources, SourceShare{Source: src, Count: n})
	}
	sort.Slice(b.Sources, func(i, j int) bool {
		if b.Sources[i].Count != b.Sources[j].Count {
			return b.Sources[i].Count > b.Sources[j].Count
		}
		return b.Sources[i].Source < b.Sources[j].Source
	})
	return b, nil
}

// advicePrompt asks for the report's situation summary and PR advice.
func advicePrompt(b *Bundle) string {
	var lines []string
	for i, op := range b.Opinions {
		if i >= 20 {
			break
		}
		content := op.Content
		if runes := []rune(content); len(runes) > 200 {
			content = string(runes[:200])
		}
		lines = append(lines, fmt.Sprintf("%d. 医院:%s 标题:%s 内容:%s", i+1, op.Hospital, op.Title, content))
	}
	return "请基于以下舆情列表生成一段“现状综述”和“公关建议”。\n" +
		"输出格式：\n现状综述：...\n公关建议：...\n\n舆情列表：\n" + strings.Join(lines, "\n")
}
