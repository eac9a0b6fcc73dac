package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ternarybob/comparo/internal/models"
)

// apiClient is a thin client for the comparo management API
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

type jobListResponse struct {
	Jobs  []*models.MatchingJob `json:"jobs"`
	Count int                   `json:"count"`
}

type matchEntry struct {
	Match    *models.Match          `json:"match"`
	Features []*models.MatchFeature `json:"features"`
}

type matchListResponse struct {
	JobID   string       `json:"job_id"`
	Matches []matchEntry `json:"matches"`
	Count   int          `json:"count"`
}

type updateListResponse struct {
	JobID      string                      `json:"job_id"`
	Updates    []*models.MatchingJobUpdate `json:"updates"`
	Count      int                         `json:"count"`
	TotalCount int                         `json:"total_count"`
}

type runResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// ListJobs fetches jobs for a workspace, optionally filtered by status
func (c *apiClient) ListJobs(ctx context.Context, workspaceID, status string, limit int) (*jobListResponse, error) {
	query := url.Values{"workspace_id": {workspaceID}}
	if status != "" {
		query.Set("status", status)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var out jobListResponse
	if err := c.get(ctx, "/api/matching-jobs?"+query.Encode(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetMatches fetches the ranked matches for a job
func (c *apiClient) GetMatches(ctx context.Context, jobID string) (*matchListResponse, error) {
	var out matchListResponse
	if err := c.get(ctx, "/api/matching-jobs/"+url.PathEscape(jobID)+"/matches", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetUpdates fetches the persisted job events, newest first
func (c *apiClient) GetUpdates(ctx context.Context, jobID string, limit int) (*updateListResponse, error) {
	path := "/api/matching-jobs/" + url.PathEscape(jobID) + "/updates"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}

	var out updateListResponse
	if err := c.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TriggerRun enqueues a run for an existing job
func (c *apiClient) TriggerRun(ctx context.Context, jobID string) (*runResponse, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/matching-jobs/"+url.PathEscape(jobID)+"/run", nil)
	if err != nil {
		return nil, err
	}

	var out runResponse
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *apiClient) do(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("comparo API unreachable: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4*1024*1024))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("comparo API: %s (status %d)", apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("comparo API returned status %d", resp.StatusCode)
	}

	return json.Unmarshal(body, out)
}
