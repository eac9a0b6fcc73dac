package ingest

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/ternarybob/arbor"
)

// Extractor converts fetched bytes into markdown text. HTML is cleaned with
// goquery and converted; PDFs go through pdfcpu; anything text-like passes
// through unchanged.
type Extractor struct {
	logger arbor.ILogger
}

// NewExtractor creates an extractor
func NewExtractor(logger arbor.ILogger) *Extractor {
	return &Extractor{logger: logger}
}

// Extract converts the fetched document into markdown based on its content
// type, falling back to sniffing the body when the header is absent
func (e *Extractor) Extract(result *FetchResult, sourceURL string) (string, error) {
	contentType := strings.ToLower(result.ContentType)

	switch {
	case strings.HasPrefix(contentType, "application/pdf"):
		return e.extractPDF(result.Body)
	case isHTMLContentType(contentType) && looksLikeHTML(result.Body):
		return e.extractHTML(result.Body, sourceURL)
	case strings.HasPrefix(contentType, "text/markdown"), strings.HasPrefix(contentType, "text/plain"):
		return string(result.Body), nil
	case contentType == "":
		if bytes.HasPrefix(result.Body, []byte("%PDF")) {
			return e.extractPDF(result.Body)
		}
		if looksLikeHTML(result.Body) {
			return e.extractHTML(result.Body, sourceURL)
		}
		return string(result.Body), nil
	default:
		return "", fmt.Errorf("unsupported content type: %s", result.ContentType)
	}
}

// extractHTML strips boilerplate and converts the main content to markdown
func (e *Extractor) extractHTML(body []byte, sourceURL string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse HTML: %w", err)
	}

	content := doc.Find("body")
	if content.Length() == 0 {
		content = doc.Selection
	}

	// Prefer the main content container when the page has one
	main := content.Find("main, article, [role=main]").First()
	if main.Length() > 0 {
		content = main
	} else {
		content.Find("nav, header, footer, aside, script, style, noscript").Remove()
		content.Find("[class*=ad], [id*=ad], [class*=promo], [class*=sidebar]").Remove()
	}

	html, err := content.Html()
	if err != nil {
		return "", fmt.Errorf("serialize HTML: %w", err)
	}

	converter := md.NewConverter(sourceURL, true, nil)
	markdown, err := converter.ConvertString(html)
	if err != nil {
		return "", fmt.Errorf("convert HTML to markdown: %w", err)
	}

	return cleanWhitespace(markdown), nil
}

// extractPDF pulls page text with pdfcpu. Content extraction works through
// temp files because the pdfcpu API is file oriented.
func (e *Extractor) extractPDF(body []byte) (string, error) {
	tempDir, err := os.MkdirTemp("", "comparo-pdf-*")
	if err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	tempFile := filepath.Join(tempDir, "document.pdf")
	if err := os.WriteFile(tempFile, body, 0o644); err != nil {
		return "", fmt.Errorf("write temp PDF: %w", err)
	}

	pdfCtx, err := api.ReadContextFile(tempFile)
	if err != nil {
		return "", fmt.Errorf("read PDF: %w", err)
	}
	pageCount := pdfCtx.PageCount

	outDir := filepath.Join(tempDir, "pages")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	conf := model.NewDefaultConfiguration()
	if err := api.ExtractContentFile(tempFile, outDir, nil, conf); err != nil {
		return "", fmt.Errorf("extract PDF content: %w", err)
	}

	pageTexts := make(map[int]string)
	entries, _ := os.ReadDir(outDir)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		content, err := os.ReadFile(filepath.Join(outDir, entry.Name()))
		if err != nil {
			continue
		}
		var pageNum int
		if _, err := fmt.Sscanf(entry.Name(), "page_%d", &pageNum); err != nil {
			if _, err := fmt.Sscanf(entry.Name(), "Content_page_%d", &pageNum); err != nil {
				continue
			}
		}
		pageTexts[pageNum] = string(content)
	}

	pages := make([]int, 0, len(pageTexts))
	for pageNum := range pageTexts {
		pages = append(pages, pageNum)
	}
	sort.Ints(pages)

	var builder strings.Builder
	for _, pageNum := range pages {
		if builder.Len() > 0 {
			builder.WriteString("\n\n")
		}
		builder.WriteString(strings.TrimSpace(pageTexts[pageNum]))
	}

	e.logger.Debug().
		Int("page_count", pageCount).
		Int("pages_with_text", len(pages)).
		Msg("PDF text extracted")

	return cleanWhitespace(builder.String()), nil
}

func looksLikeHTML(body []byte) bool {
	head := bytes.ToLower(bytes.TrimSpace(body))
	if len(head) > 512 {
		head = head[:512]
	}
	return bytes.Contains(head, []byte("<html")) ||
		bytes.Contains(head, []byte("<!doctype html")) ||
		bytes.Contains(head, []byte("<body"))
}

var (
	spaceRegex   = regexp.MustCompile(`[ \t]+`)
	newlineRegex = regexp.MustCompile(`\n{3,}`)
)

func cleanWhitespace(text string) string {
	text = spaceRegex.ReplaceAllString(text, " ")
	text = newlineRegex.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
