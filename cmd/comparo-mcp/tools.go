package main

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// createListMatchingJobsTool returns the list_matching_jobs tool definition
func createListMatchingJobsTool() mcp.Tool {
	return mcp.NewTool("list_matching_jobs",
		mcp.WithDescription("List matching jobs in a Comparo workspace with their current status"),
		mcp.WithString("workspace_id",
			mcp.Required(),
			mcp.Description("Workspace UUID"),
		),
		mcp.WithString("status",
			mcp.Description("Filter by status: queued, running, complete, failed"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum jobs to return (default: 20, max: 100)"),
		),
	)
}

// createGetJobMatchesTool returns the get_job_matches tool definition
func createGetJobMatchesTool() mcp.Tool {
	return mcp.NewTool("get_job_matches",
		mcp.WithDescription("Get the ranked match results of a matching job, including per-criterion features"),
		mcp.WithString("job_id",
			mcp.Required(),
			mcp.Description("Matching job UUID"),
		),
	)
}

// createGetJobUpdatesTool returns the get_job_updates tool definition
func createGetJobUpdatesTool() mcp.Tool {
	return mcp.NewTool("get_job_updates",
		mcp.WithDescription("Replay the persisted progress events of a matching job, newest first"),
		mcp.WithString("job_id",
			mcp.Required(),
			mcp.Description("Matching job UUID"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum events to return (default: 50, max: 200)"),
		),
	)
}

// createTriggerMatchingJobTool returns the trigger_matching_job tool definition
func createTriggerMatchingJobTool() mcp.Tool {
	return mcp.NewTool("trigger_matching_job",
		mcp.WithDescription("Enqueue a new run for an existing matching job"),
		mcp.WithString("job_id",
			mcp.Required(),
			mcp.Description("Matching job UUID"),
		),
	)
}
