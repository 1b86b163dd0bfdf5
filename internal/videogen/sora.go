package videogen

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// SoraConfig configures the Sora REST client.
type SoraConfig struct {
	APIKey       string
	BaseURL      string // optional; defaults to the public endpoint
	DefaultModel string // optional; falls back to the provider default
}

// SoraClient talks to the Sora video API: jobs are created with a single
// POST and observed by GET until they reach a terminal state.
type SoraClient struct {
	httpClient   *http.Client
	apiKey       string
	baseURL      string
	defaultModel string
}

const (
	soraMaxClipSeconds = 12
	soraDefaultBaseURL = "https://api.openai.com/v1"
)

// soraKnownModels are the model ids the API currently accepts. An override
// outside this set is logged and replaced with the client default rather than
// failing the whole render.
var soraKnownModels = map[string]bool{
	"sora-2":     true,
	"sora-2-pro": true,
}

// soraAllowedSeconds are the clip lengths the API accepts; requests snap to
// the nearest, lower value winning ties.
var soraAllowedSeconds = []int{4, 8, 12}

// NewSoraClient validates configuration; a missing API key is a
// CONFIGURATION_ERROR before any request goes out.
func NewSoraClient(cfg *SoraConfig, httpClient *http.Client) (*SoraClient, error) {
	if cfg.APIKey == "" {
		return nil, NewError(CodeConfigurationError, "sora: api key is required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = soraDefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	return &SoraClient{
		httpClient:   httpClient,
		apiKey:       cfg.APIKey,
		baseURL:      strings.TrimRight(baseURL, "/"),
		defaultModel: cfg.DefaultModel,
	}, nil
}

// Name returns the provider key.
func (c *SoraClient) Name() string { return "sora" }

// MaxClipSeconds returns Sora's longest accepted clip length.
func (c *SoraClient) MaxClipSeconds() int { return soraMaxClipSeconds }

// soraCreateRequest is the POST /videos body. Seconds is a string on the
// wire, not a number.
type soraCreateRequest struct {
	Prompt  string `json:"prompt"`
	Model   string `json:"model,omitempty"`
	Size    string `json:"size,omitempty"`
	Seconds string `json:"seconds,omitempty"`
}

type soraJob struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Seconds string `json:"seconds,omitempty"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// soraSizeFor maps a neutral aspect ratio to the API's pixel-size string.
// Unmapped ratios (1:1 included) omit the field so the provider picks.
func soraSizeFor(aspectRatio string) string {
	switch aspectRatio {
	case "9:16":
		return "720x1280"
	case "16:9":
		return "1280x720"
	default:
		return ""
	}
}

// soraSnapSeconds snaps a requested duration to the nearest allowed value.
func soraSnapSeconds(requested int) int {
	if requested <= 0 {
		return 0
	}
	best := soraAllowedSeconds[0]
	bestDist := abs(requested - best)
	for _, s := range soraAllowedSeconds[1:] {
		if d := abs(requested - s); d < bestDist {
			best, bestDist = s, d
		}
	}
	return best
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// resolveModel applies model precedence: a known per-request override wins,
// then the client default, then the provider's own default (field omitted).
func (c *SoraClient) resolveModel(override string) string {
	if override != "" {
		if soraKnownModels[override] {
			return override
		}
		log.Printf("[Sora API] unknown model override %q, falling back to %q", override, c.defaultModel)
	}
	return c.defaultModel
}

// StartGeneration creates a Sora video job.
func (c *SoraClient) StartGeneration(ctx context.Context, req *Request) (*Result, error) {
	if req == nil || strings.TrimSpace(req.Prompt) == "" {
		return nil, NewError(CodeInvalidRequest, "prompt must not be empty").
			WithContext(ErrorContext{Provider: c.Name()})
	}

	opts := req.optionsFor(c.Name())
	aspect := req.AspectRatio
	if opts.AspectRatio != "" {
		aspect = opts.AspectRatio
	}
	duration := req.DurationSeconds
	if opts.DurationSeconds > 0 {
		duration = opts.DurationSeconds
	}

	body := soraCreateRequest{
		Prompt: req.Prompt,
		Model:  c.resolveModel(opts.Model),
		Size:   soraSizeFor(aspect),
	}
	if snapped := soraSnapSeconds(duration); snapped > 0 {
		body.Seconds = strconv.Itoa(snapped)
	}

	raw, err := c.do(ctx, http.MethodPost, c.baseURL+"/videos", body)
	if err != nil {
		return nil, err
	}

	job, rerr := c.decodeJob(raw)
	if rerr != nil {
		return nil, rerr
	}
	return &Result{ID: job.ID, Status: StatusPending, Raw: raw}, nil
}

// CheckStatus fetches the job. GETs are idempotent against an unchanged job.
func (c *SoraClient) CheckStatus(ctx context.Context, id string) (*Result, error) {
	if id == "" {
		return nil, NewError(CodeInvalidRequest, "job id must not be empty").
			WithContext(ErrorContext{Provider: c.Name()})
	}

	raw, err := c.do(ctx, http.MethodGet, c.baseURL+"/videos/"+id, nil)
	if err != nil {
		return nil, err
	}

	job, rerr := c.decodeJob(raw)
	if rerr != nil {
		return nil, rerr
	}

	res := &Result{ID: job.ID, Raw: raw}
	switch job.Status {
	case "completed", "succeeded":
		res.Status = StatusCompleted
		res.VideoURL = c.ContentURL(job.ID)
		if secs, err := strconv.ParseFloat(job.Seconds, 64); err == nil && secs > 0 {
			res.Seconds = &secs
		}
	case "failed", "cancelled":
		res.Status = StatusFailed
		msg := "generation failed"
		if job.Error != nil && job.Error.Message != "" {
			msg = job.Error.Message
		}
		res.Error = msg
	default:
		// queued, in_progress, and anything the API adds later.
		res.Status = StatusPending
	}
	return res, nil
}

// ContentURL returns the authenticated download endpoint for a finished job.
func (c *SoraClient) ContentURL(id string) string {
	return c.baseURL + "/videos/" + id + "/content"
}

// ContentHeaders returns the headers a downloader must send to fetch the
// video bytes, since the content endpoint requires the same bearer token.
func (c *SoraClient) ContentHeaders() map[string]string {
	return map[string]string{"Authorization": "Bearer " + c.apiKey}
}

func (c *SoraClient) decodeJob(raw []byte) (*soraJob, *RendererError) {
	var job soraJob
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, NewError(CodeProviderError, "sora returned malformed JSON: %v", err).
			WithContext(ErrorContext{Provider: c.Name(), Raw: truncateRaw(raw)})
	}
	if job.ID == "" {
		return nil, NewError(CodeProviderError, "sora response missing job id").
			WithContext(ErrorContext{Provider: c.Name(), Raw: truncateRaw(raw)})
	}
	return &job, nil
}

func (c *SoraClient) do(ctx context.Context, method, url string, body interface{}) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, NewError(CodeInvalidRequest, "marshaling request: %v", err).
				WithContext(ErrorContext{Provider: c.Name()})
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, NewError(CodeProviderError, "creating request: %v", err).
			WithContext(ErrorContext{Provider: c.Name()})
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	log.Printf("[Sora API] → %s %s", method, url)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("[Sora API] ✗ %s %s request failed: %v", method, url, err)
		return nil, NewError(CodeProviderError, "request failed: %v", err).
			WithContext(ErrorContext{Provider: c.Name()})
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewError(CodeProviderError, "reading response: %v", err).
			WithContext(ErrorContext{Provider: c.Name(), HTTPStatus: resp.StatusCode})
	}

	log.Printf("[Sora API] ← %d %s %s", resp.StatusCode, method, url)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, rateLimited(c.Name(), resp, respBody)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, NewError(CodeAuthError, "provider rejected credentials (status %d)", resp.StatusCode).
			WithContext(ErrorContext{Provider: c.Name(), HTTPStatus: resp.StatusCode, Raw: truncateRaw(respBody)})
	case resp.StatusCode == http.StatusBadRequest:
		return nil, NewError(CodeInvalidRequest, "provider rejected the request (status %d)", resp.StatusCode).
			WithContext(ErrorContext{Provider: c.Name(), HTTPStatus: resp.StatusCode, Raw: truncateRaw(respBody)})
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, NewError(CodeProviderError, "provider returned status %d", resp.StatusCode).
			WithContext(ErrorContext{Provider: c.Name(), HTTPStatus: resp.StatusCode, Raw: truncateRaw(respBody)})
	}

	return respBody, nil
}
