package connectors

import (
	"strings"
	"testing"

	"github.com/google/go-github/v57/github"
)

func stringPtr(s string) *string { return &s }

func TestProfileMarkdown(t *testing.T) {
	repos := 12
	user := &github.User{
		Login:       stringPtr("octocat"),
		Name:        stringPtr("The Octocat"),
		Bio:         stringPtr("Building things."),
		Company:     stringPtr("GitHub"),
		Location:    stringPtr("San Francisco"),
		Blog:        stringPtr("https://octocat.dev"),
		PublicRepos: &repos,
	}

	md := profileMarkdown(user)

	for _, want := range []string{
		"# octocat",
		"**Name:** The Octocat",
		"Building things.",
		"**Company:** GitHub",
		"**Location:** San Francisco",
		"**Website:** https://octocat.dev",
		"**Public repositories:** 12",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("Profile markdown missing %q:\n%s", want, md)
		}
	}
}

func TestProfileMarkdownSparseProfile(t *testing.T) {
	md := profileMarkdown(&github.User{Login: stringPtr("ghost")})

	if !strings.HasPrefix(md, "# ghost\n") {
		t.Errorf("Expected login heading, got:\n%s", md)
	}
	if strings.Contains(md, "**Name:**") || strings.Contains(md, "**Company:**") {
		t.Errorf("Empty fields should be omitted:\n%s", md)
	}
}

func TestExtractTextBody(t *testing.T) {
	raw := "From: alice@example.com\r\n" +
		"To: intake@example.com\r\n" +
		"Subject: Application\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: multipart/alternative; boundary=b1\r\n" +
		"\r\n" +
		"--b1\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"Hello, I am interested in the role.\r\n" +
		"--b1\r\n" +
		"Content-Type: text/html; charset=utf-8\r\n" +
		"\r\n" +
		"<p>Hello, I am interested in the role.</p>\r\n" +
		"--b1--\r\n"

	body, err := extractTextBody(strings.NewReader(raw))
	if err != nil {
		t.Fatalf("extractTextBody failed: %v", err)
	}
	if !strings.Contains(body, "Hello, I am interested in the role.") {
		t.Errorf("Expected plain text part, got %q", body)
	}
	if strings.Contains(body, "<p>") {
		t.Errorf("HTML part leaked into body: %q", body)
	}
}

func TestExtractTextBodyNilLiteral(t *testing.T) {
	if _, err := extractTextBody(nil); err == nil {
		t.Fatal("Expected an error for a missing body section")
	}
}
