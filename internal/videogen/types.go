package videogen

import (
	"context"
	"encoding/json"
)

// Status is the unified lifecycle state of a provider job. A terminal status
// never reverts.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// IsTerminal returns whether the status is terminal.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Request is the provider-neutral video generation request.
type Request struct {
	Prompt          string             `json:"prompt"`
	DurationSeconds int                `json:"durationSeconds,omitempty"` // 0 = provider default
	AspectRatio     string             `json:"aspectRatio,omitempty"`     // e.g. "9:16", "16:9"
	ProviderOptions map[string]Options `json:"providerOptions,omitempty"` // keyed by provider name
}

// Options overrides derived values for a single provider. Set fields take
// precedence over whatever the client would compute from the request.
type Options struct {
	Model           string `json:"model,omitempty"`
	DurationSeconds int    `json:"durationSeconds,omitempty"`
	AspectRatio     string `json:"aspectRatio,omitempty"`
}

// optionsFor returns the override bag for a provider, if any.
func (r *Request) optionsFor(provider string) Options {
	if r.ProviderOptions == nil {
		return Options{}
	}
	return r.ProviderOptions[provider]
}

// Result is one observation of a provider job. Submit creates it with status
// pending; subsequent observations come only from read-polling.
type Result struct {
	ID       string          `json:"id"`
	Status   Status          `json:"status"`
	VideoURL string          `json:"videoUrl,omitempty"` // present iff completed
	Seconds  *float64        `json:"seconds,omitempty"`  // measured, nil = unknown
	Error    string          `json:"error,omitempty"`    // present iff failed
	Raw      json.RawMessage `json:"-"`                  // provider payload for audit logging

	// RetryAfterMs is a pacing hint from the provider (Retry-After on a
	// non-429 poll response). Zero means no hint.
	RetryAfterMs int64 `json:"-"`
}

// Output is what RenderVideo hands back to callers on success.
type Output struct {
	VideoURL string   `json:"videoUrl"`
	Seconds  *float64 `json:"seconds,omitempty"`
}

// ProviderClient is the contract every video provider implements.
//
// StartGeneration submits a job and returns a pending Result whose ID is the
// provider's opaque handle. CheckStatus must be side-effect-free and
// idempotent against an unchanged remote job. Every failure path returns a
// *RendererError.
type ProviderClient interface {
	Name() string
	StartGeneration(ctx context.Context, req *Request) (*Result, error)
	CheckStatus(ctx context.Context, id string) (*Result, error)

	// MaxClipSeconds is the provider's native single-call duration cap, used
	// for the requested-duration fallback when no measured duration exists.
	MaxClipSeconds() int
}

// PersistRequest asks the persistence collaborator to mirror remotely hosted
// bytes into durable storage.
type PersistRequest struct {
	SourceURL string
	JobID     string
	Provider  string
	Headers   map[string]string
}

// VideoPersister mirrors a remote video into durable storage and returns the
// stable URL.
type VideoPersister interface {
	PersistRemoteVideo(ctx context.Context, req PersistRequest) (string, error)
}

// DurationProber measures the duration of a locally stored media file.
type DurationProber interface {
	ProbeDurationSeconds(ctx context.Context, localPath string) (float64, error)
}

// TrafficDirection marks which way an audited payload flowed.
type TrafficDirection string

const (
	TrafficOutbound TrafficDirection = "outbound"
	TrafficInbound  TrafficDirection = "inbound"
)

// TrafficRecord is one audited provider exchange. Binary payloads are
// stripped before the record is built.
type TrafficRecord struct {
	TaskID           string           `json:"taskId"`
	Direction        TrafficDirection `json:"direction"`
	ProviderEndpoint string           `json:"providerEndpoint"`
	Payload          json.RawMessage  `json:"payload,omitempty"`
}

// TrafficLogger records provider traffic. Implementations are fire-and-forget:
// they must never return an error or panic into the render path.
type TrafficLogger interface {
	LogTraffic(ctx context.Context, rec TrafficRecord)
}
