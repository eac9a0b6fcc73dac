package main

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"
)

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

// handleListMatchingJobs implements the list_matching_jobs tool
func handleListMatchingJobs(client *apiClient, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		workspaceID, err := request.RequireString("workspace_id")
		if err != nil || workspaceID == "" {
			return textResult("Error: workspace_id parameter is required"), nil
		}

		status := request.GetString("status", "")
		limit := request.GetInt("limit", 20)
		if limit > 100 {
			limit = 100
		}

		resp, err := client.ListJobs(ctx, workspaceID, status, limit)
		if err != nil {
			logger.Error().Err(err).Msg("List jobs failed")
			return textResult(fmt.Sprintf("Error: %v", err)), nil
		}

		return textResult(formatJobList(workspaceID, resp)), nil
	}
}

// handleGetJobMatches implements the get_job_matches tool
func handleGetJobMatches(client *apiClient, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jobID, err := request.RequireString("job_id")
		if err != nil || jobID == "" {
			return textResult("Error: job_id parameter is required"), nil
		}

		resp, err := client.GetMatches(ctx, jobID)
		if err != nil {
			logger.Error().Err(err).Str("job_id", jobID).Msg("Get matches failed")
			return textResult(fmt.Sprintf("Error: %v", err)), nil
		}

		return textResult(formatMatches(jobID, resp)), nil
	}
}

// handleGetJobUpdates implements the get_job_updates tool
func handleGetJobUpdates(client *apiClient, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jobID, err := request.RequireString("job_id")
		if err != nil || jobID == "" {
			return textResult("Error: job_id parameter is required"), nil
		}

		limit := request.GetInt("limit", 50)
		if limit > 200 {
			limit = 200
		}

		resp, err := client.GetUpdates(ctx, jobID, limit)
		if err != nil {
			logger.Error().Err(err).Str("job_id", jobID).Msg("Get updates failed")
			return textResult(fmt.Sprintf("Error: %v", err)), nil
		}

		return textResult(formatUpdates(jobID, resp)), nil
	}
}

// handleTriggerMatchingJob implements the trigger_matching_job tool
func handleTriggerMatchingJob(client *apiClient, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jobID, err := request.RequireString("job_id")
		if err != nil || jobID == "" {
			return textResult("Error: job_id parameter is required"), nil
		}

		resp, err := client.TriggerRun(ctx, jobID)
		if err != nil {
			logger.Error().Err(err).Str("job_id", jobID).Msg("Trigger run failed")
			return textResult(fmt.Sprintf("Error: %v", err)), nil
		}

		return textResult(fmt.Sprintf("Run queued for job %s (status: %s)", resp.JobID, resp.Status)), nil
	}
}
