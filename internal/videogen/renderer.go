package videogen

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"
)

// ClientRegistration binds a provider client to the orchestration knobs the
// renderer needs for it.
type ClientRegistration struct {
	Client ProviderClient
	Policy PollPolicy

	// RequiresPersistence marks providers whose completed URL points at
	// provider-hosted content that expires; the renderer mirrors it into
	// durable storage before returning.
	RequiresPersistence bool

	// ContentHeaders are sent when downloading the provider-hosted content.
	ContentHeaders map[string]string
}

// RendererOptions wires the renderer's optional collaborators.
type RendererOptions struct {
	Persister VideoPersister // nil = persistence unavailable
	Prober    DurationProber // nil = no local duration measurement
	Audit     TrafficLogger  // nil = no traffic audit

	// AssetBaseURL/AssetDir map locally served video URLs back to files on
	// disk so the prober can reach them.
	AssetBaseURL string
	AssetDir     string
}

// Renderer routes render requests to registered provider clients and drives
// each job to a terminal outcome: submit, poll, persist, measure.
type Renderer struct {
	registry     map[string]ClientRegistration
	persister    VideoPersister
	prober       DurationProber
	audit        TrafficLogger
	assetBaseURL string
	assetDir     string
}

// NewRenderer builds a renderer with no providers registered.
func NewRenderer(opts RendererOptions) *Renderer {
	return &Renderer{
		registry:     make(map[string]ClientRegistration),
		persister:    opts.Persister,
		prober:       opts.Prober,
		audit:        opts.Audit,
		assetBaseURL: strings.TrimRight(opts.AssetBaseURL, "/"),
		assetDir:     opts.AssetDir,
	}
}

// Register adds a provider client. Registration under a name already taken
// replaces the previous client.
func (r *Renderer) Register(reg ClientRegistration) {
	r.registry[strings.ToLower(reg.Client.Name())] = reg
}

// resolve looks a provider up case-insensitively.
func (r *Renderer) resolve(provider string) (ClientRegistration, error) {
	reg, ok := r.registry[strings.ToLower(strings.TrimSpace(provider))]
	if !ok {
		return ClientRegistration{}, NewError(CodeInvalidProvider, "unknown provider %q", provider)
	}
	return reg, nil
}

// RenderVideo runs one request end to end against the named provider and
// returns the final video URL plus duration. taskID threads through audit
// records only; it never reaches the provider.
func (r *Renderer) RenderVideo(ctx context.Context, taskID, provider string, req *Request) (*Output, error) {
	reg, err := r.resolve(provider)
	if err != nil {
		return nil, err
	}
	client := reg.Client

	r.logTraffic(ctx, taskID, TrafficOutbound, client.Name()+":submit", mustJSON(req))

	submitted, err := client.StartGeneration(ctx, req)
	if err != nil {
		r.logErrorTraffic(ctx, taskID, client.Name()+":submit", err)
		return nil, err
	}
	if submitted == nil || submitted.ID == "" {
		return nil, NewError(CodeProviderError, "submit response carried no job id").
			WithContext(ErrorContext{Provider: client.Name()})
	}
	log.Printf("[Renderer] task %s: %s accepted job %s", taskID, client.Name(), submitted.ID)

	final, err := r.pollUntilTerminal(ctx, taskID, reg, submitted.ID)
	if err != nil {
		return nil, err
	}

	if final.Status == StatusFailed {
		msg := final.Error
		if msg == "" {
			msg = "provider reported failure"
		}
		return nil, NewError(CodeProviderError, "%s", msg).
			WithContext(ErrorContext{Provider: client.Name(), Raw: truncateRaw(final.Raw)})
	}
	if final.VideoURL == "" {
		return nil, NewError(CodeProviderError, "completed job %s carried no video url", final.ID).
			WithContext(ErrorContext{Provider: client.Name(), Raw: truncateRaw(final.Raw)})
	}

	videoURL := final.VideoURL
	if reg.RequiresPersistence {
		if r.persister == nil {
			return nil, NewError(CodePersistenceError, "provider %s requires persistence but no store is configured", client.Name())
		}
		stored, err := r.persister.PersistRemoteVideo(ctx, PersistRequest{
			SourceURL: videoURL,
			JobID:     final.ID,
			Provider:  client.Name(),
			Headers:   reg.ContentHeaders,
		})
		if err != nil {
			if _, ok := AsRendererError(err); ok {
				return nil, err
			}
			return nil, NewError(CodePersistenceError, "persisting video: %v", err).
				WithContext(ErrorContext{Provider: client.Name()})
		}
		videoURL = stored
	}

	out := &Output{
		VideoURL: videoURL,
		Seconds:  r.finalSeconds(ctx, client, req, final, videoURL),
	}
	log.Printf("[Renderer] task %s: %s job %s completed, url=%s", taskID, client.Name(), final.ID, out.VideoURL)
	return out, nil
}

// pollUntilTerminal drives CheckStatus under the registration's poll policy
// until the job reaches a terminal state or the deadline elapses. The first
// check fires immediately; waits only separate subsequent checks.
func (r *Renderer) pollUntilTerminal(ctx context.Context, taskID string, reg ClientRegistration, jobID string) (*Result, error) {
	policy := reg.Policy.normalized()
	client := reg.Client
	deadline := time.Now().Add(policy.Deadline)

	var prev time.Duration
	for {
		if ctx.Err() != nil {
			return nil, NewError(CodeTimeout, "render cancelled: %v", ctx.Err()).
				WithContext(ErrorContext{Provider: client.Name()})
		}

		res, err := client.CheckStatus(ctx, jobID)
		if err != nil {
			// Errors propagate immediately, RATE_LIMITED included: the caller
			// owns the reschedule decision, carrying retryAfterMs with it. A
			// provider payload riding on the error still joins the trail, so
			// failed renders audit the same way completed ones do.
			r.logErrorTraffic(ctx, taskID, client.Name()+":poll", err)
			return nil, err
		}

		if res.Status.IsTerminal() {
			r.logTraffic(ctx, taskID, TrafficInbound, client.Name()+":poll", stripBinary(res.Raw))
			return res, nil
		}

		wait := policy.nextWait(prev, res.RetryAfterMs)
		prev = wait
		if time.Now().Add(wait).After(deadline) {
			return nil, NewError(CodeTimeout, "job %s not terminal after %s", jobID, policy.Deadline).
				WithContext(ErrorContext{Provider: client.Name()})
		}

		select {
		case <-ctx.Done():
			return nil, NewError(CodeTimeout, "render cancelled: %v", ctx.Err()).
				WithContext(ErrorContext{Provider: client.Name()})
		case <-time.After(wait):
		}
	}
}

// finalSeconds resolves the reported duration: a measured value wins, then the
// provider's own report, then the requested duration clamped to the
// provider's cap. Nil means unknown.
func (r *Renderer) finalSeconds(ctx context.Context, client ProviderClient, req *Request, final *Result, videoURL string) *float64 {
	if localPath := r.localPathFor(videoURL); localPath != "" && r.prober != nil {
		if secs, err := r.prober.ProbeDurationSeconds(ctx, localPath); err == nil && secs > 0 {
			return &secs
		} else if err != nil {
			log.Printf("[Renderer] probing %s failed: %v", localPath, err)
		}
	}
	if final.Seconds != nil {
		return final.Seconds
	}
	if req.DurationSeconds > 0 {
		secs := float64(req.DurationSeconds)
		if max := float64(client.MaxClipSeconds()); secs > max {
			secs = max
		}
		return &secs
	}
	return nil
}

// localPathFor maps a locally served asset URL back to its path on disk, or
// returns "" for remote URLs.
func (r *Renderer) localPathFor(videoURL string) string {
	if r.assetBaseURL == "" || r.assetDir == "" {
		return ""
	}
	if !strings.HasPrefix(videoURL, r.assetBaseURL+"/") {
		return ""
	}
	rel := strings.TrimPrefix(videoURL, r.assetBaseURL+"/")
	if rel == "" || strings.Contains(rel, "..") {
		return ""
	}
	return filepath.Join(r.assetDir, filepath.FromSlash(rel))
}

// logTraffic records an audit entry if a logger is wired. Audit is strictly
// best-effort and never affects the render outcome.
func (r *Renderer) logTraffic(ctx context.Context, taskID string, dir TrafficDirection, endpoint string, payload json.RawMessage) {
	if r.audit == nil || taskID == "" {
		return
	}
	r.audit.LogTraffic(ctx, TrafficRecord{
		TaskID:           taskID,
		Direction:        dir,
		ProviderEndpoint: endpoint,
		Payload:          payload,
	})
}

// logErrorTraffic records the provider payload attached to a terminal error.
// RATE_LIMITED stays out of the trail: throttles are caller-retriable, not an
// outcome of the job.
func (r *Renderer) logErrorTraffic(ctx context.Context, taskID, endpoint string, err error) {
	re, ok := AsRendererError(err)
	if !ok || re.Code == CodeRateLimited || re.Context.Raw == "" {
		return
	}
	r.logTraffic(ctx, taskID, TrafficInbound, endpoint, stripBinary(json.RawMessage(re.Context.Raw)))
}

// auditMaxString bounds string values kept in audit payloads; anything larger
// is almost certainly inline media.
const auditMaxString = 512

// stripBinary replaces oversized string values in a JSON payload so base64
// video bytes never land in the audit trail.
func stripBinary(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return mustJSON(truncateRaw(raw))
	}
	cleaned, err := json.Marshal(stripBinaryValue(v))
	if err != nil {
		return nil
	}
	return cleaned
}

func stripBinaryValue(v interface{}) interface{} {
	switch t := v.(type) {
	case string:
		if len(t) > auditMaxString {
			return fmt.Sprintf("(stripped %d bytes)", len(t))
		}
		return t
	case map[string]interface{}:
		for k, val := range t {
			t[k] = stripBinaryValue(val)
		}
		return t
	case []interface{}:
		for i, val := range t {
			t[i] = stripBinaryValue(val)
		}
		return t
	default:
		return v
	}
}

// mustJSON marshals for audit payloads, falling back to null on the
// impossible failure path rather than panicking in a log helper.
func mustJSON(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("null")
	}
	return b
}
