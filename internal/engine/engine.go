package engine

import "context"

// Client is the worker-to-engine wire contract, implemented identically by
// the real backend and the test double. QueueInfo is auxiliary and used only
// for readiness, never for job-critical decisions.
type Client interface {
	Submit(ctx context.Context, wf WorkflowDefinition) (string, error)
	Poll(ctx context.Context, ref string) (*PollResult, error)
	Cancel(ctx context.Context, ref string) error
	QueueInfo(ctx context.Context) (*QueueInfo, error)
}

// WorkflowDefinition describes one generation request in engine terms.
type WorkflowDefinition struct {
	Prompt          string         `json:"prompt"`
	NegativePrompt  string         `json:"negative_prompt,omitempty"`
	CheckpointModel string         `json:"checkpoint_model"`
	LoraModels      []string       `json:"lora_models,omitempty"`
	Width           int            `json:"width"`
	Height          int            `json:"height"`
	BatchSize       int            `json:"batch_size"`
	SamplerParams   map[string]any `json:"sampler_params,omitempty"`
}

type PollStatus string

const (
	PollPending   PollStatus = "pending"
	PollCompleted PollStatus = "completed"
	PollFailed    PollStatus = "failed"
)

// Output is one artifact reported by the engine on completion.
type Output struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

type PollResult struct {
	Status  PollStatus `json:"status"`
	Outputs []Output   `json:"outputs,omitempty"`
	Error   string     `json:"error,omitempty"`
}

type QueueInfo struct {
	Pending int `json:"pending"`
	Running int `json:"running"`
}
