package comfy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/joeflack4/genonaut/internal/engine"
)

// Options configures the HTTP client for the external generation engine.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// Client talks to a ComfyUI-compatible generation server.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

var _ engine.Client = (*Client)(nil)

func NewClient(opts Options) *Client {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = "http://localhost:8188"
	}
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Client{httpClient: client, baseURL: base}
}

type submitRequest struct {
	Prompt engine.WorkflowDefinition `json:"prompt"`
}

type submitResponse struct {
	PromptID string `json:"prompt_id"`
	Error    string `json:"error,omitempty"`
}

// Submit enqueues a workflow and returns the engine's opaque handle.
func (c *Client) Submit(ctx context.Context, wf engine.WorkflowDefinition) (string, error) {
	if strings.TrimSpace(wf.Prompt) == "" {
		return "", engine.Fatalf("workflow prompt is empty")
	}
	body, err := json.Marshal(submitRequest{Prompt: wf})
	if err != nil {
		return "", engine.Fatalf("marshal workflow: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/prompt", bytes.NewReader(body))
	if err != nil {
		return "", engine.Fatalf("build submit request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", engine.Transientf(err, "submit workflow")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", engine.Transientf(err, "read submit response")
	}

	switch {
	case resp.StatusCode >= 500:
		return "", engine.Transientf(nil, "engine returned %d: %s", resp.StatusCode, truncate(raw))
	case resp.StatusCode >= 400:
		return "", engine.Fatalf("engine rejected workflow (%d): %s", resp.StatusCode, truncate(raw))
	}

	var parsed submitResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", engine.Transientf(err, "decode submit response")
	}
	if parsed.PromptID == "" {
		return "", engine.Fatalf("engine returned no prompt id: %s", truncate(raw))
	}
	return parsed.PromptID, nil
}

type historyEntry struct {
	Status struct {
		Completed bool   `json:"completed"`
		Error     string `json:"error,omitempty"`
	} `json:"status"`
	Outputs []engine.Output `json:"outputs"`
}

// Poll reports the engine-side status of a previously submitted workflow.
func (c *Client) Poll(ctx context.Context, ref string) (*engine.PollResult, error) {
	if ref == "" {
		return nil, engine.Fatalf("poll requires a ref")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/history/"+ref, nil)
	if err != nil {
		return nil, engine.Fatalf("build poll request: %v", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, engine.Transientf(err, "poll %s", ref)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, engine.Transientf(nil, "engine returned %d on poll", resp.StatusCode)
	}
	if resp.StatusCode == http.StatusNotFound {
		// Not yet visible in history: still in the engine queue.
		return &engine.PollResult{Status: engine.PollPending}, nil
	}
	if resp.StatusCode >= 400 {
		return nil, engine.Fatalf("engine rejected poll (%d)", resp.StatusCode)
	}

	var entries map[string]historyEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, engine.Transientf(err, "decode poll response")
	}

	entry, ok := entries[ref]
	if !ok {
		return &engine.PollResult{Status: engine.PollPending}, nil
	}
	if entry.Status.Error != "" {
		return &engine.PollResult{Status: engine.PollFailed, Error: entry.Status.Error}, nil
	}
	if !entry.Status.Completed {
		return &engine.PollResult{Status: engine.PollPending}, nil
	}
	return &engine.PollResult{Status: engine.PollCompleted, Outputs: entry.Outputs}, nil
}

// Cancel interrupts a submitted workflow. Best effort: a workflow the engine
// already finished cannot be interrupted and that is not an error here.
func (c *Client) Cancel(ctx context.Context, ref string) error {
	body, _ := json.Marshal(map[string]string{"prompt_id": ref})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/interrupt", bytes.NewReader(body))
	if err != nil {
		return engine.Fatalf("build cancel request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return engine.Transientf(err, "cancel %s", ref)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return engine.Transientf(nil, "engine returned %d on cancel", resp.StatusCode)
	}
	return nil
}

// QueueInfo reads the engine's queue depth. Readiness only.
func (c *Client) QueueInfo(ctx context.Context) (*engine.QueueInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/queue", nil)
	if err != nil {
		return nil, fmt.Errorf("build queue request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("queue info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("queue info: engine returned %d", resp.StatusCode)
	}

	var parsed struct {
		Pending []json.RawMessage `json:"queue_pending"`
		Running []json.RawMessage `json:"queue_running"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode queue info: %w", err)
	}
	return &engine.QueueInfo{Pending: len(parsed.Pending), Running: len(parsed.Running)}, nil
}

func truncate(raw []byte) string {
	const limit = 300
	s := strings.TrimSpace(string(raw))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
