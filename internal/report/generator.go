package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ignite/opinion-monitor/internal/classifier"
	"github.com/ignite/opinion-monitor/internal/config"
	"github.com/ignite/opinion-monitor/internal/pkg/logger"
	"github.com/ignite/opinion-monitor/internal/store"
)

// Generator renders report files into the configured output directory.
type Generator struct {
	store *store.Store
	llm   classifier.Completer
	cfg   config.ReportConfig
	log   *logger.Logger
}

// NewGenerator builds a report generator. llm may be nil; the advice section
// then carries a placeholder.
func NewGenerator(st *store.Store, llm classifier.Completer, cfg config.ReportConfig, log *logger.Logger) *Generator {
	return &Generator{store: st, llm: llm, cfg: cfg, log: log}
}

// Generate assembles and writes one report, returning the download filename.
// format is "markdown" or "word".
func (g *Generator) Generate(ctx context.Context, hospital string, start, end time.Time, format string) (string, error) {
	b, err := g.assemble(ctx, hospital, start, end)
	if err != nil {
		return "", err
	}
	b.Advice = g.advice(ctx, b)

	var (
		data []byte
		ext  string
	)
	switch format {
	case "markdown", "md":
		md, err := renderMarkdown(b)
		if err != nil {
			return "", err
		}
		data, ext = []byte(md), "md"
	case "word", "doc", "docx":
		data, err = renderWord(b)
		if err != nil {
			return "", err
		}
		ext = "docx"
	default:
		return "", fmt.Errorf("unsupported report format %q", format)
	}

	if err := os.MkdirAll(g.cfg.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}
	filename := fmt.Sprintf("%s_舆情报告_%s.%s", b.Hospital, time.Now().Format("20060102"), ext)
	if err := os.WriteFile(filepath.Join(g.cfg.OutputDir, filename), data, 0o644); err != nil {
		return "", fmt.Errorf("write report file: %w", err)
	}
	g.log.Info("report generated", "file", filename, "opinions", b.Total)
	return filename, nil
}

func (g *Generator) advice(ctx context.Context, b *Bundle) string {
	if b.Total == 0 {
		return "区间内无负面舆情，无需公关处置。"
	}
	if g.llm == nil {
		return "AI 未配置，暂无建议。"
	}
	text, err := g.llm.Complete(ctx, advicePrompt(b))
	if err != nil {
		g.log.Warn("report advice generation failed", "error", err.Error())
		return "AI 建议生成失败，请稍后重试。"
	}
	return strings.TrimSpace(text)
}

// Open returns the on-disk path for a previously generated report after
// rejecting path traversal. The caller streams the file.
func (g *Generator) Open(filename string) (string, error) {
	if filename == "" || filename != filepath.Base(filename) || strings.Contains(filename, "..") {
		return "", fmt.Errorf("invalid report filename %q", filename)
	}
	path := filepath.Join(g.cfg.OutputDir, filename)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("report file %s: %w", filename, err)
	}
	return path, nil
}

// ContentType maps a report filename to its download MIME type.
func ContentType(filename string) string {
	switch filepath.Ext(filename) {
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".md":
		return "text/markdown; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}
