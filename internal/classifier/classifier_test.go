package classifier

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/opinion-monitor/internal/config"
	"github.com/ignite/opinion-monitor/internal/domain"
	"github.com/ignite/opinion-monitor/internal/pkg/logger"
)

func TestFirstJSONObject(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
		ok    bool
	}{
		{
			name:  "bare object",
			input: `{"is_negative": true}`,
			want:  `{"is_negative": true}`,
			ok:    true,
		},
		{
			name:  "surrounded by prose",
			input: "好的，分析结果如下：\n```json\n{\"is_negative\": false}\n```\n希望有帮助",
			want:  `{"is_negative": false}`,
			ok:    true,
		},
		{
			name:  "nested objects",
			input: `前言 {"a": {"b": 1}, "c": 2} 后记 {"d": 3}`,
			want:  `{"a": {"b": 1}, "c": 2}`,
			ok:    true,
		},
		{
			name:  "brace inside string",
			input: `{"reason": "包含}字符", "ok": true}`,
			want:  `{"reason": "包含}字符", "ok": true}`,
			ok:    true,
		},
		{
			name:  "no object",
			input: "抱歉，我无法判断。",
			ok:    false,
		},
		{
			name:  "unbalanced",
			input: `{"a": 1`,
			ok:    false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := firstJSONObject(tt.input)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestParseVerdict_Normalization(t *testing.T) {
	v, err := parseVerdict(`{"is_negative": true, "severity": " HIGH ", "reason": " 医疗纠纷 ", "title": "标题", "confidence": 1.7}`)
	require.NoError(t, err)
	assert.True(t, v.IsNegative)
	assert.Equal(t, domain.SeverityHigh, v.Severity)
	assert.Equal(t, "医疗纠纷", v.Reason)
	assert.Equal(t, 1.0, v.Confidence)

	v, err = parseVerdict(`{"is_negative": false, "severity": "critical", "confidence": -0.5}`)
	require.NoError(t, err)
	assert.Equal(t, domain.SeverityLow, v.Severity)
	assert.Equal(t, 0.0, v.Confidence)
}

func TestCompileRules_SkipsLowConfidenceAndBadRegex(t *testing.T) {
	rs := CompileRules([]domain.FeedbackRule{
		{Pattern: "义诊", RuleType: domain.RuleTypeKeyword, Action: domain.ActionSuppress, Confidence: 0.9},
		{Pattern: "低置信", RuleType: domain.RuleTypeKeyword, Action: domain.ActionSuppress, Confidence: 0.3},
		{Pattern: "([bad", RuleType: domain.RuleTypeRegex, Action: domain.ActionSuppress, Confidence: 0.9},
		{Pattern: "排队.*吐槽", RuleType: domain.RuleTypeRegex, Action: domain.ActionDowngrade, Confidence: 0.8},
	}, 0.7)

	assert.Equal(t, "义诊", rs.MatchSuppress("医院组织义诊活动"))
	assert.Equal(t, "", rs.MatchSuppress("低置信内容"))
	assert.Equal(t, domain.SeverityMedium, rs.SeverityCeiling("门诊排队太久被吐槽"))
	assert.Equal(t, domain.SeverityHigh, rs.SeverityCeiling("医疗事故"))
}

func TestKeywords_SetAndMatch(t *testing.T) {
	k := NewKeywords([]string{"招聘", " 招聘 ", "", "学术会议"})
	assert.Equal(t, []string{"招聘", "学术会议"}, k.List())
	assert.Equal(t, "学术会议", k.Match("医院举办学术会议"))
	assert.Equal(t, "", k.Match("医疗纠纷"))

	k.Set([]string{"新词"})
	assert.Equal(t, "", k.Match("医院举办学术会议"))
	assert.Equal(t, "新词", k.Match("包含新词的内容"))
}

type stubCompleter struct {
	response string
	err      error
	calls    int
}

func (s *stubCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func newTestClassifier(llm Completer, keywords []string) *Classifier {
	cfg := config.FeedbackConfig{RulesMinConfidence: 0.7}
	return New(cfg, llm, nil, NewKeywords(keywords), 2, logger.Default())
}

func TestClassify_SuppressRuleSkipsLLM(t *testing.T) {
	llm := &stubCompleter{response: `{"is_negative": true, "severity": "high"}`}
	c := newTestClassifier(llm, nil)
	c.rules.Store(CompileRules([]domain.FeedbackRule{
		{Pattern: "义诊活动", RuleType: domain.RuleTypeKeyword, Action: domain.ActionSuppress, Confidence: 0.9},
	}, 0.7))

	v := c.Classify(context.Background(), domain.Article{
		Hospital: "协和医院", Title: "医院组织义诊活动", Body: "现场火爆",
	})
	assert.False(t, v.IsNegative)
	assert.Equal(t, "rule:义诊活动", v.Reason)
	assert.Equal(t, 0, llm.calls)
}

func TestClassify_AdminKeywordSkipsLLM(t *testing.T) {
	llm := &stubCompleter{response: `{"is_negative": true, "severity": "high"}`}
	c := newTestClassifier(llm, []string{"招聘"})

	v := c.Classify(context.Background(), domain.Article{
		Title: "医院招聘公告", Body: "岗位若干",
	})
	assert.False(t, v.IsNegative)
	assert.Equal(t, "rule:招聘", v.Reason)
	assert.Equal(t, 0, llm.calls)
}

func TestClassify_LLMVerdict(t *testing.T) {
	llm := &stubCompleter{response: `{"is_negative": true, "severity": "high", "reason": "医疗纠纷", "confidence": 0.95}`}
	c := newTestClassifier(llm, nil)

	v := c.Classify(context.Background(), domain.Article{
		Hospital: "协和医院", Title: "患者投诉", Body: "手术引发纠纷",
	})
	assert.True(t, v.IsNegative)
	assert.Equal(t, domain.SeverityHigh, v.Severity)
	assert.Equal(t, 0.95, v.Confidence)
	assert.Equal(t, "患者投诉", v.Title)
	assert.False(t, v.Failure)
	assert.Equal(t, 1, llm.calls)
}

func TestClassify_ParseFailureNeverNegative(t *testing.T) {
	llm := &stubCompleter{response: "抱歉，我无法给出结构化结果。"}
	c := newTestClassifier(llm, nil)

	v := c.Classify(context.Background(), domain.Article{Title: "标题"})
	assert.False(t, v.IsNegative)
	assert.Equal(t, "parse-error", v.Reason)
	assert.True(t, v.Failure)
}

func TestClassify_LLMErrorNeverNegative(t *testing.T) {
	llm := &stubCompleter{err: errors.New("upstream 500")}
	c := newTestClassifier(llm, nil)

	v := c.Classify(context.Background(), domain.Article{Title: "标题"})
	assert.False(t, v.IsNegative)
	assert.Equal(t, "llm-unavailable", v.Reason)
	assert.True(t, v.Failure)
}

func TestClassify_DowngradeCapsSeverity(t *testing.T) {
	llm := &stubCompleter{response: `{"is_negative": true, "severity": "high", "confidence": 0.9}`}
	c := newTestClassifier(llm, nil)
	c.rules.Store(CompileRules([]domain.FeedbackRule{
		{Pattern: "排队", RuleType: domain.RuleTypeKeyword, Action: domain.ActionDowngrade, Confidence: 0.8},
	}, 0.7))

	v := c.Classify(context.Background(), domain.Article{
		Title: "门诊排队时间过长", Body: "市民抱怨",
	})
	assert.True(t, v.IsNegative)
	assert.Equal(t, domain.SeverityMedium, v.Severity)
}

func TestClassify_FetchFailedCapsConfidence(t *testing.T) {
	llm := &stubCompleter{response: `{"is_negative": true, "severity": "medium", "confidence": 0.9}`}
	c := newTestClassifier(llm, nil)

	v := c.Classify(context.Background(), domain.Article{
		Title: "仅有标题", FetchFailed: true,
	})
	assert.True(t, v.IsNegative)
	assert.Equal(t, fetchFailedConfidence, v.Confidence)
}
