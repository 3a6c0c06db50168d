package report

import (
	"fmt"

	"github.com/osteele/liquid"
)

const markdownTemplate = `# {{ hospital }} 舆情报告

**统计区间：** {{ start_date }} ~ {{ end_date }}
**生成时间：** {{ generated }}

## 总体概况

| 指标 | 数值 |
|---|---|
| 舆情总量 | {{ total }} |
| 高风险 | {{ high }} |
| 中风险 | {{ medium }} |
| 低风险 | {{ low }} |
| 平均风险分 | {{ avg_score }} |

## 每日趋势

| 日期 | 数量 |
|---|---|
{% for row in daily -%}
| {{ row.date }} | {{ row.count }} |
{% endfor %}

## 来源分布

| 来源 | 数量 |
|---|---|
{% for s in sources -%}
| {{ s.source }} | {{ s.count }} |
{% endfor %}

## 舆情明细

{% if opinions == empty %}区间内无舆情记录。{% endif -%}
{% for op in opinions %}
### {{ forloop.index }}. {{ op.title }}

- **医院：** {{ op.hospital }}
- **来源：** {{ op.source }}
- **严重程度：** {{ op.severity }}
- **AI判断：** {{ op.reason }}
- **时间：** {{ op.processed_at }}
- **链接：** {{ op.url }}
{% endfor %}

## AI 建议

{{ advice }}
`

var markdownEngine = liquid.NewEngine()

// renderMarkdown renders the bundle through the liquid template.
func renderMarkdown(b *Bundle) (string, error) {
	daily := make([]map[string]interface{}, 0, len(b.DailyRows))
	for _, row := range b.DailyRows {
		daily = append(daily, map[string]interface{}{"date": row.Date, "count": row.Count})
	}
	sources := make([]map[string]interface{}, 0, len(b.Sources))
	for _, s := range b.Sources {
		sources = append(sources, map[string]interface{}{"source": s.Source, "count": s.Count})
	}
	opinions := make([]map[string]interface{}, 0, len(b.Opinions))
	for _, op := range b.Opinions {
		opinions = append(opinions, map[string]interface{}{
			"title":        op.Title,
			"hospital":     op.Hospital,
			"source":       op.Source,
			"severity":     op.Severity,
			"reason":       op.Reason,
			"url":          op.URL,
			"processed_at": op.ProcessedAt.Format("2006-01-02 15:04"),
		})
	}

	bindings := map[string]interface{}{
		"hospital":   b.Hospital,
		"start_date": b.StartDate,
		"end_date":   b.EndDate,
		"generated":  b.Generated,
		"total":      b.Total,
		"high":       b.High,
		"medium":     b.Medium,
		"low":        b.Low,
		"avg_score":  fmt.Sprintf("%.1f", b.AvgScore),
		"daily":      daily,
		"sources":    sources,
		"opinions":   opinions,
		"advice":     b.Advice,
	}
	out, err := markdownEngine.ParseAndRenderString(markdownTemplate, bindings)
	if err != nil {
		return "", fmt.Errorf("render markdown report: %w", err)
	}
	return out, nil
}
