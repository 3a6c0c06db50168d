package extract

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/opinion-monitor/internal/config"
	"github.com/ignite/opinion-monitor/internal/domain"
	"github.com/ignite/opinion-monitor/internal/pkg/logger"
)

func TestParseHospital(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		subject string
		want    string
	}{
		{
			name: "labelled body line",
			body: "您好，以下是北京协和医院方案的网路舆情信息，请查收。",
			want: "北京协和医院",
		},
		{
			name:    "body wins over subject",
			body:    "以下是上海仁济医院方案的网路舆情信息",
			subject: "【北京协和医院】舆情预警",
			want:    "上海仁济医院",
		},
		{
			name:    "subject hospital suffix fallback",
			body:    "无标签正文",
			subject: "舆情预警：广州市妇女儿童医疗中心 负面信息",
			want:    "广州市妇女儿童医疗中心",
		},
		{
			name:    "subject bracket fallback",
			body:    "无标签正文",
			subject: "【华西口腔】监测日报",
			want:    "华西口腔",
		},
		{
			name:    "nothing matches",
			body:    "无标签正文",
			subject: "每日简报",
			want:    domain.UnknownHospital,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseHospital(tt.body, tt.subject))
		})
	}
}

func TestCollectURLs_FiltersAndDedupes(t *testing.T) {
	body := `
	<p>详情：<a href="https://lt.vendor.example/h5List?token=abc">查看</a></p>
	<a href="https://other.example/page">无关链接</a>
	正文内提到 https://lt.vendor.example/h5List?token=abc 以及
	https://api.vendor.example/detail?id=123。
	`
	urls := CollectURLs(body, "vendor.example")
	require.Len(t, urls, 2)
	assert.Equal(t, "https://lt.vendor.example/h5List?token=abc", urls[0])
	assert.Equal(t, "https://api.vendor.example/detail?id=123", urls[1])
}

func TestCollectURLs_NoVendorLinks(t *testing.T) {
	urls := CollectURLs(`<a href="https://unrelated.example/x">x</a>`, "vendor.example")
	assert.Empty(t, urls)
}

func TestTruncateBytes_RuneSafe(t *testing.T) {
	s := strings.Repeat("舆", 10) // 30 bytes

	out := truncateBytes(s, 10)
	// 10 bytes falls mid-rune; the cut backs up to a boundary.
	assert.True(t, strings.HasSuffix(out, "…"))
	assert.Equal(t, "舆舆舆…", out)

	assert.Equal(t, s, truncateBytes(s, 30))
	assert.Equal(t, s, truncateBytes(s, 0))
}

func TestParsePage_StructuralSelectors(t *testing.T) {
	html := `<html><head>
	<title>fallback title</title>
	<meta property="og:title" content="医院投诉事件引关注">
	<meta property="og:site_name" content="微博">
	</head><body>
	<script>var x = 1;</script>
	<article>患者家属投诉    医院收费问题。</article>
	</body></html>`

	p := parsePage(html, "https://weibo.example/status/1")
	assert.Equal(t, "医院投诉事件引关注", p.Title)
	assert.Equal(t, "微博", p.Platform)
	assert.Equal(t, "患者家属投诉 医院收费问题。", p.Text)
}

func TestParsePage_Fallbacks(t *testing.T) {
	html := `<html><head><title>页面标题</title></head><body><p>正文内容</p></body></html>`

	p := parsePage(html, "https://zhihu.example/q/9")
	assert.Equal(t, "页面标题", p.Title)
	assert.Equal(t, "zhihu.example", p.Platform)
	assert.Contains(t, p.Text, "正文内容")
}

type stubFetcher struct {
	html    string
	err     error
	inUse   atomic.Int32
	maxSeen atomic.Int32
}

func (f *stubFetcher) RenderPage(ctx context.Context, pageURL string) (string, error) {
	cur := f.inUse.Add(1)
	for {
		prev := f.maxSeen.Load()
		if cur <= prev || f.maxSeen.CompareAndSwap(prev, cur) {
			break
		}
	}
	defer f.inUse.Add(-1)
	if f.err != nil {
		return "", f.err
	}
	return f.html, nil
}

func testBrowserConfig() config.BrowserConfig {
	return config.BrowserConfig{
		VendorDomain: "vendor.example",
		MaxBodyBytes: 20000,
	}
}

func TestExtract_FailedPageYieldsSyntheticArticle(t *testing.T) {
	fetcher := &stubFetcher{err: errors.New("render timeout")}
	ex := NewExtractor(testBrowserConfig(), fetcher, 2, logger.Default())

	mail := domain.RawMail{
		Subject: "舆情预警",
		Body:    `以下是协和医院方案的网路舆情信息 https://lt.vendor.example/a`,
	}
	articles := ex.Extract(context.Background(), mail)
	require.Len(t, articles, 1)
	assert.True(t, articles[0].FetchFailed)
	assert.Equal(t, "协和医院", articles[0].Hospital)
	assert.Empty(t, articles[0].Body)
}

func TestExtract_BoundsConcurrency(t *testing.T) {
	fetcher := &stubFetcher{html: "<html><body><p>ok</p></body></html>"}
	ex := NewExtractor(testBrowserConfig(), fetcher, 2, logger.Default())

	var links strings.Builder
	for i := 0; i < 8; i++ {
		links.WriteString("https://lt.vendor.example/page/")
		links.WriteByte(byte('a' + i))
		links.WriteString(" ")
	}
	mail := domain.RawMail{Body: "以下是协和医院方案的网路舆情信息 " + links.String()}

	articles := ex.Extract(context.Background(), mail)
	assert.Len(t, articles, 8)
	assert.LessOrEqual(t, fetcher.maxSeen.Load(), int32(2))
	for _, a := range articles {
		assert.False(t, a.FetchFailed)
		assert.Contains(t, a.Body, "ok")
	}
}
