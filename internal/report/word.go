package report

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"
)

// renderWord produces a minimal but valid .docx: the OPC container with one
// document part holding the report as styled paragraphs. Enough for the
// dashboard's "导出Word" button; no embedded charts.
func renderWord(b *Bundle) ([]byte, error) {
	var doc strings.Builder
	doc.WriteString(xmlHeader)
	doc.WriteString(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)

	writeHeading(&doc, fmt.Sprintf("%s 舆情报告", b.Hospital), 1)
	writeParagraph(&doc, fmt.Sprintf("统计区间：%s ~ %s", b.StartDate, b.EndDate))
	writeParagraph(&doc, fmt.Sprintf("生成时间：%s", b.Generated))

	writeHeading(&doc, "总体概况", 2)
	writeParagraph(&doc, fmt.Sprintf("舆情总量 %d 条，高风险 %d 条，中风险 %d 条，低风险 %d 条，平均风险分 %.1f。",
		b.Total, b.High, b.Medium, b.Low, b.AvgScore))

	writeHeading(&doc, "每日趋势", 2)
	for _, row := range b.DailyRows {
		writeParagraph(&doc, fmt.Sprintf("%s：%d 条", row.Date, row.Count))
	}

	writeHeading(&doc, "来源分布", 2)
	for _, s := range b.Sources {
		writeParagraph(&doc, fmt.Sprintf("%s：%d 条", s.Source, s.Count))
	}

	writeHeading(&doc, "舆情明细", 2)
	if len(b.Opinions) == 0 {
		writeParagraph(&doc, "区间内无舆情记录。")
	}
	for i, op := range b.Opinions {
		writeHeading(&doc, fmt.Sprintf("%d. %s", i+1, op.Title), 3)
		writeParagraph(&doc, fmt.Sprintf("医院：%s | 来源：%s | 严重程度：%s", op.Hospital, op.Source, op.Severity))
		writeParagraph(&doc, fmt.Sprintf("AI判断：%s", op.Reason))
		writeParagraph(&doc, fmt.Sprintf("时间：%s", op.ProcessedAt.Format("2006-01-02 15:04")))
		if op.URL != "" {
			writeParagraph(&doc, fmt.Sprintf("链接：%s", op.URL))
		}
	}

	writeHeading(&doc, "AI 建议", 2)
	for _, line := range strings.Split(b.Advice, "\n") {
		writeParagraph(&doc, line)
	}

	doc.WriteString(`</w:body></w:document>`)
	return packDocx(doc.String())
}

const xmlHeader = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n"

func writeHeading(w *strings.Builder, text string, level int) {
	fmt.Fprintf(w,
		`<w:p><w:pPr><w:pStyle w:val="Heading%d"/></w:pPr><w:r><w:t xml:space="preserve">%s</w:t></w:r></w:p>`,
		level, escapeXML(text))
}

func writeParagraph(w *strings.Builder, text string) {
	fmt.Fprintf(w,
		`<w:p><w:r><w:t xml:space="preserve">%s</w:t></w:r></w:p>`,
		escapeXML(text))
}

func escapeXML(s string) string {
	var buf bytes.Buffer
	xml.EscapeText(&buf, []byte(s))
	return buf.String()
}

const contentTypesXML = xmlHeader +
	`<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">` +
	`<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>` +
	`<Default Extension="xml" ContentType="application/xml"/>` +
	`<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>` +
	`</Types>`

const relsXML = xmlHeader +
	`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
	`<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>` +
	`</Relationships>`

func packDocx(documentXML string) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	parts := []struct {
		name    string
		content string
	}{
		{"[Content_Types].xml", contentTypesXML},
		{"_rels/.rels", relsXML},
		{"word/document.xml", documentXML},
	}
	for _, part := range parts {
		f, err := zw.Create(part.name)
		if err != nil {
			return nil, fmt.Errorf("create docx part %s: %w", part.name, err)
		}
		if _, err := f.Write([]byte(part.content)); err != nil {
			return nil, fmt.Errorf("write docx part %s: %w", part.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalize docx: %w", err)
	}
	return buf.Bytes(), nil
}
