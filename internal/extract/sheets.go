package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"
)

// extractSpreadsheet streams every sheet row by row, cells joined by tabs. Blank rows are
// dropped and reading stops once limit characters are collected.
func extractSpreadsheet(content []byte, limit int) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("extract XLSX: %w", err)
	}
	defer f.Close()

	var lines lineBuilder
	lines.limit = limit
	for _, sheet := range f.GetSheetList() {
		rows, err := f.Rows(sheet)
		if err != nil {
			return "", fmt.Errorf("extract XLSX: sheet %q: %w", sheet, err)
		}
		for !lines.full() && rows.Next() {
			cols, err := rows.Columns()
			if err != nil {
				rows.Close()
				return "", fmt.Errorf("extract XLSX: sheet %q: %w", sheet, err)
			}
			lines.add(strings.Join(cols, "\t"))
		}
		if err := rows.Close(); err != nil {
			return "", fmt.Errorf("extract XLSX: sheet %q: %w", sheet, err)
		}
		if lines.full() {
			break
		}
	}
	return lines.String(), nil
}

// extractPDF returns the plain text of each page on its own line, skipping empty pages.
func extractPDF(content []byte, limit int) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("extract PDF: %w", err)
	}
	var lines lineBuilder
	lines.limit = limit
	for i := 1; i <= r.NumPage() && !lines.full(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("extract PDF: page %d: %w", i, err)
		}
		lines.add(text)
	}
	return lines.String(), nil
}

// lineBuilder joins trimmed, non-blank lines until limit characters are held. A limit of
// zero means no limit.
type lineBuilder struct {
	sb    strings.Builder
	limit int
}

func (b *lineBuilder) add(s string) {
	s = strings.TrimSpace(s)
	if s == "" || b.full() {
		return
	}
	if b.sb.Len() > 0 {
		b.sb.WriteByte('\n')
	}
	b.sb.WriteString(s)
}

func (b *lineBuilder) full() bool { return b.limit > 0 && b.sb.Len() >= b.limit }

func (b *lineBuilder) String() string { return b.sb.String() }
