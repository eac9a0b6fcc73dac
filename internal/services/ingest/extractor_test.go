package ingest

import (
	"strings"
	"testing"

	"github.com/ternarybob/arbor"
)

func TestExtractHTMLPrefersMainContent(t *testing.T) {
	html := `<html><body>
		<nav>site navigation</nav>
		<main><h1>Profile</h1><p>Seven years of Go experience.</p></main>
		<footer>copyright</footer>
	</body></html>`

	e := NewExtractor(arbor.NewLogger())
	markdown, err := e.Extract(&FetchResult{Body: []byte(html), ContentType: "text/html"}, "https://example.com/profile")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if !strings.Contains(markdown, "Profile") || !strings.Contains(markdown, "Seven years of Go experience.") {
		t.Errorf("Main content missing from markdown: %q", markdown)
	}
	if strings.Contains(markdown, "site navigation") || strings.Contains(markdown, "copyright") {
		t.Errorf("Boilerplate leaked into markdown: %q", markdown)
	}
}

func TestExtractHTMLStripsBoilerplateWithoutMain(t *testing.T) {
	html := `<html><body>
		<header>masthead</header>
		<script>var x = 1;</script>
		<p>Body paragraph.</p>
		<aside>related links</aside>
	</body></html>`

	e := NewExtractor(arbor.NewLogger())
	markdown, err := e.Extract(&FetchResult{Body: []byte(html), ContentType: "text/html"}, "https://example.com")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if !strings.Contains(markdown, "Body paragraph.") {
		t.Errorf("Content missing: %q", markdown)
	}
	for _, noise := range []string{"masthead", "var x", "related links"} {
		if strings.Contains(markdown, noise) {
			t.Errorf("Expected %q to be stripped, got %q", noise, markdown)
		}
	}
}

func TestExtractPlainTextPassthrough(t *testing.T) {
	e := NewExtractor(arbor.NewLogger())
	text := "Just a plain text resume."
	got, err := e.Extract(&FetchResult{Body: []byte(text), ContentType: "text/plain; charset=utf-8"}, "")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if got != text {
		t.Errorf("Plain text must pass through, got %q", got)
	}
}

func TestExtractSniffsHTMLWithoutContentType(t *testing.T) {
	html := `<!DOCTYPE html><html><body><p>Sniffed content.</p></body></html>`

	e := NewExtractor(arbor.NewLogger())
	markdown, err := e.Extract(&FetchResult{Body: []byte(html)}, "https://example.com")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if !strings.Contains(markdown, "Sniffed content.") {
		t.Errorf("Expected sniffed HTML conversion, got %q", markdown)
	}
}

func TestExtractRejectsUnsupportedType(t *testing.T) {
	e := NewExtractor(arbor.NewLogger())
	_, err := e.Extract(&FetchResult{Body: []byte{0x00, 0x01}, ContentType: "image/png"}, "")
	if err == nil || !strings.Contains(err.Error(), "unsupported content type") {
		t.Fatalf("Expected unsupported content type error, got %v", err)
	}
}

func TestCleanWhitespace(t *testing.T) {
	in := "a  b\t c\n\n\n\nd  "
	want := "a b c\n\nd"
	if got := cleanWhitespace(in); got != want {
		t.Errorf("cleanWhitespace(%q) = %q, want %q", in, got, want)
	}
}
