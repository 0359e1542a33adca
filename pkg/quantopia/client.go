// Package quantopia provides a Go client for the quantopia server API.
package quantopia

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks to a running quantopia server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the server at baseURL, e.g.
// "http://localhost:8000".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(data, &apiErr) != nil || apiErr.Error == "" {
			apiErr.Error = string(data)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: apiErr.Error}
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// GenerateData asks the server to generate a synthetic price series and
// returns its file id.
func (c *Client) GenerateData(ctx context.Context, req map[string]any) (string, error) {
	var resp struct {
		FileID string `json:"file_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/data/generate", req, &resp); err != nil {
		return "", err
	}
	return resp.FileID, nil
}

// ListData lists the metadata of every stored price series.
func (c *Client) ListData(ctx context.Context) ([]map[string]any, error) {
	var resp struct {
		Files []map[string]any `json:"files"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/data/list", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Files, nil
}

// GetData loads one series: metadata plus the raw prices.
func (c *Client) GetData(ctx context.Context, fileID string) (map[string]any, []float64, error) {
	var resp struct {
		Metadata map[string]any `json:"metadata"`
		Prices   []float64      `json:"prices"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/data/"+fileID, nil, &resp); err != nil {
		return nil, nil, err
	}
	return resp.Metadata, resp.Prices, nil
}

// DeleteData removes a stored series.
func (c *Client) DeleteData(ctx context.Context, fileID string) error {
	return c.do(ctx, http.MethodDelete, "/api/data/"+fileID, nil, nil)
}

// StrategyInfo describes one registered strategy.
type StrategyInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Params      json.RawMessage `json:"params"`
}

// ListStrategies lists the strategies the server can run.
func (c *Client) ListStrategies(ctx context.Context) ([]StrategyInfo, error) {
	var resp struct {
		Strategies []StrategyInfo `json:"strategies"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/strategies/list", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Strategies, nil
}

// RunBacktest runs a backtest and returns the raw result document.
func (c *Client) RunBacktest(ctx context.Context, req map[string]any) (json.RawMessage, error) {
	var resp json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/api/backtest/run", req, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// TaskSummary is the list-level view of a scheduler task.
type TaskSummary struct {
	TaskID         string   `json:"task_id"`
	Kind           string   `json:"kind"`
	Symbol         string   `json:"symbol"`
	Mode           string   `json:"mode"`
	Status         string   `json:"status"`
	CurrentSession string   `json:"current_session"`
	Sessions       []string `json:"sessions"`
	StartTime      string   `json:"start_time"`
	StrategyName   string   `json:"strategy_name"`
}

// CreateTask starts a fetch or trade task; kind is "fetch" or "trade".
func (c *Client) CreateTask(ctx context.Context, kind string, req map[string]any) (string, error) {
	var resp struct {
		TaskID string `json:"task_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/"+kind+"/create", req, &resp); err != nil {
		return "", err
	}
	return resp.TaskID, nil
}

// ListTasks lists tasks of the given kind.
func (c *Client) ListTasks(ctx context.Context, kind string) ([]TaskSummary, error) {
	var resp struct {
		Tasks []TaskSummary `json:"tasks"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/"+kind+"/list", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Tasks, nil
}

// GetTask returns the raw detail document for one task.
func (c *Client) GetTask(ctx context.Context, kind, taskID string) (json.RawMessage, error) {
	var resp json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/api/"+kind+"/"+taskID, nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// PauseTask pauses a running task.
func (c *Client) PauseTask(ctx context.Context, kind, taskID string) error {
	return c.do(ctx, http.MethodPost, "/api/"+kind+"/"+taskID+"/pause", nil, nil)
}

// ResumeTask resumes a paused task.
func (c *Client) ResumeTask(ctx context.Context, kind, taskID string) error {
	return c.do(ctx, http.MethodPost, "/api/"+kind+"/"+taskID+"/resume", nil, nil)
}

// StopTask stops a task permanently.
func (c *Client) StopTask(ctx context.Context, kind, taskID string) error {
	return c.do(ctx, http.MethodPost, "/api/"+kind+"/"+taskID+"/stop", nil, nil)
}

// DeleteTask stops a task and removes its log.
func (c *Client) DeleteTask(ctx context.Context, kind, taskID string) error {
	return c.do(ctx, http.MethodDelete, "/api/"+kind+"/"+taskID, nil, nil)
}
