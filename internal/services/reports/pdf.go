package reports

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/go-pdf/fpdf"
)

// renderPDF lays the markdown report out as an A4 PDF. The report generator
// emits a known markdown subset (headings, a ranking table, bullet lists and
// paragraphs), so rendering walks lines rather than a full AST.
func renderPDF(markdown string) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()
	pdf.SetFont("Arial", "", 10)

	var table [][]string
	flushTable := func() {
		if len(table) == 0 {
			return
		}
		writeTable(pdf, table)
		table = nil
	}

	for _, line := range strings.Split(markdown, "\n") {
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "|") {
			cells := splitTableRow(trimmed)
			if isSeparatorRow(cells) {
				continue
			}
			table = append(table, cells)
			continue
		}
		flushTable()

		switch {
		case trimmed == "":
			pdf.Ln(2)
		case strings.HasPrefix(trimmed, "# "):
			pdf.SetFont("Arial", "B", 16)
			pdf.MultiCell(0, 8, stripInline(trimmed[2:]), "", "L", false)
			pdf.SetFont("Arial", "", 10)
			pdf.Ln(2)
		case strings.HasPrefix(trimmed, "## "):
			pdf.SetFont("Arial", "B", 13)
			pdf.MultiCell(0, 7, stripInline(trimmed[3:]), "", "L", false)
			pdf.SetFont("Arial", "", 10)
			pdf.Ln(1)
		case strings.HasPrefix(trimmed, "- "):
			pdf.SetX(pdf.GetX() + 4)
			pdf.MultiCell(0, 5, "- "+stripInline(trimmed[2:]), "", "L", false)
		default:
			pdf.MultiCell(0, 5, stripInline(trimmed), "", "L", false)
		}
	}
	flushTable()

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func writeTable(pdf *fpdf.Fpdf, rows [][]string) {
	cols := 0
	for _, row := range rows {
		if len(row) > cols {
			cols = len(row)
		}
	}
	if cols == 0 {
		return
	}

	pageWidth, _ := pdf.GetPageSize()
	left, _, right, _ := pdf.GetMargins()
	width := (pageWidth - left - right) / float64(cols)

	for i, row := range rows {
		if i == 0 {
			pdf.SetFont("Arial", "B", 10)
		}
		for c := 0; c < cols; c++ {
			cell := ""
			if c < len(row) {
				cell = stripInline(row[c])
			}
			pdf.CellFormat(width, 6, cell, "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
		if i == 0 {
			pdf.SetFont("Arial", "", 10)
		}
	}
	pdf.Ln(2)
}

func splitTableRow(line string) []string {
	parts := strings.Split(strings.Trim(line, "|"), "|")
	cells := make([]string, len(parts))
	for i, p := range parts {
		cells[i] = strings.TrimSpace(p)
	}
	return cells
}

func isSeparatorRow(cells []string) bool {
	for _, c := range cells {
		if strings.Trim(c, "-: ") != "" {
			return false
		}
	}
	return true
}

// stripInline removes bold and italic markers; fpdf gets plain text
func stripInline(s string) string {
	s = strings.ReplaceAll(s, "**", "")
	s = strings.ReplaceAll(s, "*", "")
	s = strings.ReplaceAll(s, "`", "")
	return strings.TrimSpace(s)
}
