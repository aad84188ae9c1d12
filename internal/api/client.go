package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Client talks to a running feed server; used by the CLI
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// EnqueueClip asks the server to queue the clip at path
func (c *Client) EnqueueClip(ctx context.Context, path string) (*EnqueueResponse, error) {
	var resp EnqueueResponse
	if err := c.post(ctx, "/api/clips", ClipRequest{Path: path}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Announce asks the server to synthesize and queue text
func (c *Client) Announce(ctx context.Context, text string) (*EnqueueResponse, error) {
	var resp EnqueueResponse
	if err := c.post(ctx, "/api/announcements", AnnouncementRequest{Text: text}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status fetches the writer's current status
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/status", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	var status StatusResponse
	if err := c.do(req, http.StatusOK, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Queue lists the clips waiting to play
func (c *Client) Queue(ctx context.Context) (*QueueResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/queue", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	var queue QueueResponse
	if err := c.do(req, http.StatusOK, &queue); err != nil {
		return nil, err
	}
	return &queue, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, http.StatusAccepted, out)
}

func (c *Client) do(req *http.Request, want int, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		var e errorResponse
		json.NewDecoder(resp.Body).Decode(&e)
		if e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, e.Error)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
