package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// formatJobList renders a job listing as markdown
func formatJobList(workspaceID string, resp *jobListResponse) string {
	if len(resp.Jobs) == 0 {
		return fmt.Sprintf("No matching jobs found in workspace %s.", workspaceID)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# Matching Jobs (%d)\n\n", len(resp.Jobs)))
	sb.WriteString(fmt.Sprintf("Workspace: %s\n\n", workspaceID))

	for i, job := range resp.Jobs {
		sb.WriteString(fmt.Sprintf("## %d. Job %s\n\n", i+1, job.ID))
		sb.WriteString(fmt.Sprintf("- **Status:** %s\n", job.Status))
		sb.WriteString(fmt.Sprintf("- **Template:** %s\n", job.TemplateID))
		sb.WriteString(fmt.Sprintf("- **Source Entity:** %s\n", job.SourceEntityID))
		sb.WriteString(fmt.Sprintf("- **Created:** %s\n", job.CreatedAt.Format(time.RFC3339)))
		if job.StartedAt != nil {
			sb.WriteString(fmt.Sprintf("- **Started:** %s\n", job.StartedAt.Format(time.RFC3339)))
		}
		if job.FinishedAt != nil {
			sb.WriteString(fmt.Sprintf("- **Finished:** %s\n", job.FinishedAt.Format(time.RFC3339)))
		}
		if job.ErrorMessage != "" {
			sb.WriteString(fmt.Sprintf("- **Error:** %s\n", job.ErrorMessage))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// formatMatches renders ranked match results as markdown
func formatMatches(jobID string, resp *matchListResponse) string {
	if len(resp.Matches) == 0 {
		return fmt.Sprintf("No matches recorded for job %s. The job may not have completed a run yet.", jobID)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# Match Results for Job %s\n\n", jobID))
	sb.WriteString(fmt.Sprintf("%d ranked matches.\n\n", len(resp.Matches)))

	for _, entry := range resp.Matches {
		m := entry.Match
		if m == nil {
			continue
		}
		sb.WriteString(fmt.Sprintf("## Rank %d: %s\n\n", m.Rank, m.TargetEntityID))
		sb.WriteString(fmt.Sprintf("- **Score:** %.2f\n", m.Score))
		if m.Explanation != "" {
			sb.WriteString(fmt.Sprintf("- **Explanation:** %s\n", m.Explanation))
		}
		if len(entry.Features) > 0 {
			sb.WriteString("- **Features:**\n")
			for _, f := range entry.Features {
				if f.ValueNumeric != nil {
					sb.WriteString(fmt.Sprintf("  - %s: %.2f", f.Label, *f.ValueNumeric))
					if f.ValueText != "" {
						sb.WriteString(fmt.Sprintf(" (%s)", f.ValueText))
					}
					sb.WriteString("\n")
				} else {
					sb.WriteString(fmt.Sprintf("  - %s: %s\n", f.Label, f.ValueText))
				}
			}
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// formatUpdates renders persisted job events as markdown, newest first
func formatUpdates(jobID string, resp *updateListResponse) string {
	if len(resp.Updates) == 0 {
		return fmt.Sprintf("No progress events recorded for job %s.", jobID)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# Progress Events for Job %s\n\n", jobID))
	if resp.TotalCount > len(resp.Updates) {
		sb.WriteString(fmt.Sprintf("Showing %d of %d events (newest first).\n\n", len(resp.Updates), resp.TotalCount))
	} else {
		sb.WriteString(fmt.Sprintf("%d events (newest first).\n\n", len(resp.Updates)))
	}

	for i, update := range resp.Updates {
		sb.WriteString(fmt.Sprintf("%d. **%s** at %s", i+1, update.EventType, update.CreatedAt.Format(time.RFC3339)))
		if payload := compactPayload(update.Payload); payload != "" {
			sb.WriteString(fmt.Sprintf("\n   `%s`", payload))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// compactPayload renders a payload map as single-line JSON, truncated for readability
func compactPayload(payload map[string]interface{}) string {
	if len(payload) == 0 {
		return ""
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	const maxLen = 200
	if len(data) > maxLen {
		return string(data[:maxLen]) + "..."
	}
	return string(data)
}
