package main

import (
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"
	arbormodels "github.com/ternarybob/arbor/models"
	"github.com/ternarybob/comparo/internal/common"
)

func main() {
	// The sidecar talks to a running comparo server over HTTP so both
	// processes never contend for the Badger lock
	baseURL := os.Getenv("COMPARO_API_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	// Minimal logging to avoid cluttering MCP stdio
	logger := arbor.NewLogger().WithConsoleWriter(arbormodels.WriterConfiguration{
		Type:             arbormodels.LogWriterTypeConsole,
		TimeFormat:       "15:04:05",
		DisableTimestamp: false,
	}).WithLevelFromString("warn")

	client := newAPIClient(baseURL)

	mcpServer := server.NewMCPServer(
		"comparo",
		common.GetVersion(),
		server.WithToolCapabilities(true),
	)

	mcpServer.AddTool(createListMatchingJobsTool(), handleListMatchingJobs(client, logger))
	mcpServer.AddTool(createGetJobMatchesTool(), handleGetJobMatches(client, logger))
	mcpServer.AddTool(createGetJobUpdatesTool(), handleGetJobUpdates(client, logger))
	mcpServer.AddTool(createTriggerMatchingJobTool(), handleTriggerMatchingJob(client, logger))

	// Blocks on stdio
	if err := server.ServeStdio(mcpServer); err != nil {
		logger.Fatal().Err(err).Msg("MCP server failed")
	}
}
