package reports

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/comparo/internal/interfaces"
	"github.com/ternarybob/comparo/internal/models"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// Format selects the report output encoding
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
	FormatPDF      Format = "pdf"
)

// ParseFormat maps a query-string value onto a format, defaulting to markdown
func ParseFormat(raw string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "md", "markdown":
		return FormatMarkdown, nil
	case "html":
		return FormatHTML, nil
	case "pdf":
		return FormatPDF, nil
	default:
		return "", fmt.Errorf("unsupported report format: %s", raw)
	}
}

// ContentType returns the MIME type for the format
func (f Format) ContentType() string {
	switch f {
	case FormatHTML:
		return "text/html; charset=utf-8"
	case FormatPDF:
		return "application/pdf"
	default:
		return "text/markdown; charset=utf-8"
	}
}

// Report is a rendered job report
type Report struct {
	Filename string
	Format   Format
	Data     []byte
}

// Service renders match reports for finished jobs. The canonical form is
// markdown; HTML and PDF are renderings of the same document.
type Service struct {
	storage interfaces.StorageManager
	md      goldmark.Markdown
	logger  arbor.ILogger
}

// NewService creates the report service
func NewService(storage interfaces.StorageManager, logger arbor.ILogger) *Service {
	return &Service{
		storage: storage,
		md: goldmark.New(
			goldmark.WithExtensions(extension.Table, extension.Strikethrough),
			goldmark.WithRendererOptions(html.WithHardWraps()),
		),
		logger: logger,
	}
}

// GenerateJobReport renders the ranked match report for a job in the
// requested format. The job must have results; a job that never completed a
// run has none.
func (s *Service) GenerateJobReport(ctx context.Context, jobID string, format Format) (*Report, error) {
	job, err := s.storage.MatchingJobs().GetJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("job not found: %w", err)
	}

	matches, err := s.storage.Matches().ListMatches(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("job has no match results")
	}

	markdown, err := s.buildMarkdown(ctx, job, matches)
	if err != nil {
		return nil, err
	}

	report := &Report{Format: format}
	switch format {
	case FormatHTML:
		var buf bytes.Buffer
		if err := s.md.Convert([]byte(markdown), &buf); err != nil {
			return nil, fmt.Errorf("render html: %w", err)
		}
		report.Data = buf.Bytes()
		report.Filename = fmt.Sprintf("match-report-%s.html", shortID(jobID))
	case FormatPDF:
		data, err := renderPDF(markdown)
		if err != nil {
			return nil, fmt.Errorf("render pdf: %w", err)
		}
		report.Data = data
		report.Filename = fmt.Sprintf("match-report-%s.pdf", shortID(jobID))
	default:
		report.Format = FormatMarkdown
		report.Data = []byte(markdown)
		report.Filename = fmt.Sprintf("match-report-%s.md", shortID(jobID))
	}

	s.logger.Debug().
		Str("job_id", jobID).
		Str("format", string(report.Format)).
		Int("size", len(report.Data)).
		Msg("Report generated")
	return report, nil
}

// buildMarkdown assembles the canonical markdown document
func (s *Service) buildMarkdown(ctx context.Context, job *models.MatchingJob, matches []*models.Match) (string, error) {
	source, err := s.storage.Entities().GetEntity(ctx, job.SourceEntityID)
	if err != nil {
		return "", fmt.Errorf("source entity not found: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Match report: %s\n\n", source.Name)
	fmt.Fprintf(&b, "**Job:** %s  \n", job.ID)
	fmt.Fprintf(&b, "**Status:** %s  \n", job.Status)
	if job.FinishedAt != nil {
		fmt.Fprintf(&b, "**Finished:** %s  \n", job.FinishedAt.Format("2006-01-02 15:04 UTC"))
	}
	fmt.Fprintf(&b, "**Candidates ranked:** %d\n", len(matches))

	b.WriteString("\n## Ranking\n\n")
	b.WriteString("| Rank | Candidate | Score |\n")
	b.WriteString("| --- | --- | --- |\n")
	names := make(map[string]string, len(matches))
	for _, match := range matches {
		name := s.targetName(ctx, match.TargetEntityID)
		names[match.TargetEntityID] = name
		fmt.Fprintf(&b, "| %d | %s | %.2f |\n", match.Rank, name, match.Score)
	}

	for _, match := range matches {
		fmt.Fprintf(&b, "\n## %d. %s (%.2f)\n\n", match.Rank, names[match.TargetEntityID], match.Score)
		if match.Explanation != "" {
			fmt.Fprintf(&b, "%s\n\n", match.Explanation)
		}

		features, err := s.storage.Matches().ListFeatures(ctx, match.ID)
		if err != nil {
			return "", fmt.Errorf("list features: %w", err)
		}
		for _, feature := range features {
			if feature.ValueNumeric != nil {
				fmt.Fprintf(&b, "- **%s:** %.2f", feature.Label, *feature.ValueNumeric)
			} else {
				fmt.Fprintf(&b, "- **%s:**", feature.Label)
			}
			if feature.ValueText != "" {
				fmt.Fprintf(&b, " %s", feature.ValueText)
			}
			b.WriteString("\n")
		}
	}
	return b.String(), nil
}

func (s *Service) targetName(ctx context.Context, entityID string) string {
	entity, err := s.storage.Entities().GetEntity(ctx, entityID)
	if err != nil {
		return entityID
	}
	return entity.Name
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
