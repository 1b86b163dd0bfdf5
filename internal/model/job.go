package model

import (
	"encoding/json"
	"time"
)

// Job represents a background job in the system. Payload and Result hold
// pre-encoded JSON so the stored record round-trips through the job store.
type Job struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Status      JobStatus       `json:"status"`
	Progress    int             `json:"progress"`
	CurrentStep string          `json:"currentStep,omitempty"`
	Error       *string         `json:"error,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	StartedAt   *time.Time      `json:"startedAt,omitempty"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
	RetryCount  int             `json:"retryCount"`
}

// Job types
const (
	JobTypeRender = "render"
)

// RenderJobPayload contains the data for a render job
type RenderJobPayload struct {
	Provider        Provider                 `json:"provider"`
	Prompt          string                   `json:"prompt"`
	DurationSeconds int                      `json:"durationSeconds,omitempty"`
	AspectRatio     AspectRatio              `json:"aspectRatio,omitempty"`
	Mode            RenderMode               `json:"mode,omitempty"`
	ManifestVersion string                   `json:"manifestVersion,omitempty"`
	Options         map[string]RenderOptions `json:"options,omitempty"`
}

// RenderOptions are per-provider overrides carried through the queue.
type RenderOptions struct {
	Model           string `json:"model,omitempty"`
	DurationSeconds int    `json:"durationSeconds,omitempty"`
	AspectRatio     string `json:"aspectRatio,omitempty"`
}
