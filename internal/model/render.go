package model

import "time"

// RenderStartRequest represents the request body for starting a video render
type RenderStartRequest struct {
	Provider        Provider                 `json:"provider" validate:"required,oneof=veo sora"`
	Prompt          string                   `json:"prompt" validate:"required,min=1,max=4000"`
	DurationSeconds int                      `json:"durationSeconds" validate:"omitempty,min=1,max=600"`
	AspectRatio     AspectRatio              `json:"aspectRatio" validate:"omitempty,oneof=9:16 16:9 1:1"`
	Mode            RenderMode               `json:"mode" validate:"omitempty,oneof=job_ad outro teaser"`
	ManifestVersion string                   `json:"manifestVersion" validate:"omitempty,max=64"`
	Options         map[string]RenderOptions `json:"options" validate:"omitempty"`
}

// RenderStartResponse represents the response when a render job is accepted
type RenderStartResponse struct {
	JobID     string    `json:"jobId"`
	Status    JobStatus `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// RenderStatusResponse represents the status of a render job
type RenderStatusResponse struct {
	JobID       string     `json:"jobId"`
	Status      JobStatus  `json:"status"`
	Progress    int        `json:"progress"`
	CurrentStep string     `json:"currentStep,omitempty"`
	Error       *string    `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	RetryCount  int        `json:"retryCount"`
}

// RenderCancelResponse represents the response for a cancel request
type RenderCancelResponse struct {
	Success bool      `json:"success"`
	JobID   string    `json:"jobId"`
	Status  JobStatus `json:"status"`
}

// VideoRenderTask is the final artifact record of one render attempt,
// assembled by the worker when the job reaches a terminal state. Immutable
// once returned to a caller.
type VideoRenderTask struct {
	ID              string           `json:"id"`
	ManifestVersion string           `json:"manifestVersion,omitempty"`
	Mode            RenderMode       `json:"mode,omitempty"`
	Status          JobStatus        `json:"status"`
	Renderer        Provider         `json:"renderer"`
	RequestedAt     time.Time        `json:"requestedAt"`
	CompletedAt     *time.Time       `json:"completedAt,omitempty"`
	Metrics         RenderMetrics    `json:"metrics"`
	Result          *RenderResult    `json:"result,omitempty"`
	Error           *RenderTaskError `json:"error,omitempty"`
}

// RenderMetrics summarizes what the render actually produced
type RenderMetrics struct {
	SecondsGenerated *float64  `json:"secondsGenerated,omitempty"`
	Model            string    `json:"model,omitempty"`
	Tier             ModelTier `json:"tier,omitempty"`
}

// RenderResult carries the durable output location
type RenderResult struct {
	VideoURL string `json:"videoUrl"`
}

// RenderTaskError carries the failure taxonomy code and detail
type RenderTaskError struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

// PlanResponse represents a duration-plan preview
type PlanResponse struct {
	Provider            string        `json:"provider"`
	ModelID             string        `json:"modelId,omitempty"`
	Strategy            string        `json:"strategy"`
	Segments            []PlanSegment `json:"segments"`
	FinalPlannedSeconds int           `json:"finalPlannedSeconds"`
}

// PlanSegment is one hop of a duration plan
type PlanSegment struct {
	Kind    string `json:"kind"`
	Seconds int    `json:"seconds"`
}
