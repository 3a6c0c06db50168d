package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ignite/opinion-monitor/internal/pkg/httputil"
	"github.com/ignite/opinion-monitor/internal/store"
)

// summaryMaxOpinions caps how many opinions feed the briefing prompt.
const summaryMaxOpinions = 20

// summaryMaxContentRunes caps per-opinion content in prompts.
const summaryMaxContentRunes = 200

const emptySummaryText = "暂无负面舆情可总结。"

// AISummary serves POST /api/ai/summary: a global briefing over the set of
// opinions the dashboard currently shows.
func (h *Handlers) AISummary(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Opinions []opinionJSON `json:"opinions"`
	}
	if !httputil.Decode(w, r, &req) {
		return
	}
	if len(req.Opinions) == 0 {
		httputil.OK(w, map[string]any{
			"text":         emptySummaryText,
			"generated_at": time.Now().Format("2006-01-02 15:04:05"),
		})
		return
	}
	if h.llm == nil {
		httputil.Error(w, http.StatusServiceUnavailable, "ai_unavailable", "AI 模型未配置")
		return
	}

	text, err := h.llm.Complete(r.Context(), buildSummaryPrompt(req.Opinions))
	if err != nil {
		h.log.Warn("ai summary failed", "error", err.Error())
		httputil.Error(w, http.StatusBadGateway, "ai_failed", "AI 总结生成失败，请稍后重试")
		return
	}
	httputil.OK(w, map[string]any{
		"text":         strings.TrimSpace(text),
		"generated_at": time.Now().Format("2006-01-02 15:04:05"),
	})
}

// AIInsight serves POST /api/ai/insight: a per-item deep analysis cached on
// the sentiment row, so repeated clicks never re-bill the model.
func (h *Handlers) AIInsight(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Opinion struct {
			ID string `json:"id"`
		} `json:"opinion"`
	}
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.Opinion.ID == "" {
		httputil.BadRequest(w, "opinion.id is required")
		return
	}

	st, err := h.store.GetSentiment(r.Context(), req.Opinion.ID)
	if errors.Is(err, store.ErrNotFound) {
		httputil.NotFound(w, "opinion "+req.Opinion.ID+" not found")
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}

	if st.InsightText != "" && st.InsightAt != nil {
		httputil.OK(w, map[string]any{
			"text":         st.InsightText,
			"generated_at": st.InsightAt.Format("2006-01-02 15:04:05"),
			"cached":       true,
		})
		return
	}

	if h.llm == nil {
		httputil.Error(w, http.StatusServiceUnavailable, "ai_unavailable", "AI 模型未配置")
		return
	}
	text, err := h.llm.Complete(r.Context(), buildInsightPrompt(st.Hospital, st.Title, st.Reason, st.Severity, st.Content))
	if err != nil {
		h.log.Warn("ai insight failed", "sentiment_id", st.SentimentID, "error", err.Error())
		httputil.Error(w, http.StatusBadGateway, "ai_failed", "AI 分析生成失败，请稍后重试")
		return
	}
	text = strings.TrimSpace(text)
	now := time.Now()
	if err := h.store.SetInsight(r.Context(), st.SentimentID, text, now); err != nil {
		h.log.Warn("cache insight failed", "sentiment_id", st.SentimentID, "error", err.Error())
	}
	httputil.OK(w, map[string]any{
		"text":         text,
		"generated_at": now.Format("2006-01-02 15:04:05"),
		"cached":       false,
	})
}

func buildSummaryPrompt(opinions []opinionJSON) string {
	if len(opinions) > summaryMaxOpinions {
		opinions = opinions[:summaryMaxOpinions]
	}
	var b strings.Builder
	b.WriteString("你是医院公关舆情分析师。以下是近期的负面舆情列表，请输出两段：\n")
	b.WriteString("1. 现状综述：概括整体态势、主要涉事医院与高风险话题。\n")
	b.WriteString("2. 公关建议：给出可执行的处置建议。\n\n")
	for i, op := range opinions {
		content := op.Content
		if runes := []rune(content); len(runes) > summaryMaxContentRunes {
			content = string(runes[:summaryMaxContentRunes])
		}
		fmt.Fprintf(&b, "%d. 【%s】%s（严重程度：%s，来源：%s）\n判断：%s\n%s\n\n",
			i+1, op.Hospital, op.Title, op.Severity, op.Source, op.Reason, content)
	}
	return b.String()
}

func buildInsightPrompt(hospital, title, reason, severity, content string) string {
	if runes := []rune(content); len(runes) > 1000 {
		content = string(runes[:1000])
	}
	var b strings.Builder
	b.WriteString("你是医院公关舆情分析师。请针对下面这一条负面舆情做深度分析，")
	b.WriteString("包括：事件性质、潜在影响面、升级风险，以及具体的应对步骤。\n\n")
	fmt.Fprintf(&b, "医院：%s\n标题：%s\n严重程度：%s\nAI判断：%s\n正文：\n%s\n", hospital, title, severity, reason, content)
	return b.String()
}

// GetSuppressKeywords serves GET /api/notification/suppress_keywords.
// This is the manually managed list; compiled feedback rules are a separate
// mechanism and never surface here.
func (h *Handlers) GetSuppressKeywords(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]any{"keywords": h.keywords.List()})
}

// SetSuppressKeywords serves POST /api/notification/suppress_keywords,
// replacing the whole list. Takes effect on the next classification.
func (h *Handlers) SetSuppressKeywords(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Keywords []string `json:"keywords"`
	}
	if !httputil.Decode(w, r, &req) {
		return
	}
	h.keywords.Set(req.Keywords)
	h.log.Info("suppress keywords updated", "count", len(h.keywords.List()))
	httputil.OK(w, map[string]any{"success": true, "keywords": h.keywords.List()})
}
