package videogen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CredentialSource supplies a bearer token for Vertex AI calls. Tokens are
// fetched fresh per HTTP call, never cached across calls, so a token expiring
// mid-poll cannot strand a render.
type CredentialSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// VeoConfig configures the Vertex AI Veo client.
type VeoConfig struct {
	ProjectID    string
	Location     string
	ModelID      string
	BaseURL      string // optional; defaults to the regional aiplatform endpoint
	SampleCount  int    // optional; defaults to 1
	OutputDir    string // where inline video bytes are written
	AssetBaseURL string // route prefix the written files are served under
}

// VeoClient drives Veo's predict-long-running protocol: submit returns an
// operation name, completion is observed through fetchPredictOperation.
type VeoClient struct {
	httpClient  *http.Client
	creds       CredentialSource
	projectID   string
	location    string
	modelID     string
	baseURL     string
	sampleCount int
	outputDir   string
	assetBase   string
}

const veoMaxClipSeconds = 8

// NewVeoClient validates configuration up front: missing project, model or
// credentials fail here with CONFIGURATION_ERROR, before any network call.
func NewVeoClient(cfg *VeoConfig, creds CredentialSource, httpClient *http.Client) (*VeoClient, error) {
	if cfg.ProjectID == "" {
		return nil, NewError(CodeConfigurationError, "veo: project id is required")
	}
	if cfg.ModelID == "" {
		return nil, NewError(CodeConfigurationError, "veo: model id is required")
	}
	if creds == nil {
		return nil, NewError(CodeConfigurationError, "veo: credential source is required")
	}

	location := cfg.Location
	if location == "" {
		location = "us-central1"
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s-aiplatform.googleapis.com/v1", location)
	}
	sampleCount := cfg.SampleCount
	if sampleCount <= 0 {
		sampleCount = 1
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}

	return &VeoClient{
		httpClient:  httpClient,
		creds:       creds,
		projectID:   cfg.ProjectID,
		location:    location,
		modelID:     cfg.ModelID,
		baseURL:     strings.TrimRight(baseURL, "/"),
		sampleCount: sampleCount,
		outputDir:   cfg.OutputDir,
		assetBase:   strings.TrimRight(cfg.AssetBaseURL, "/"),
	}, nil
}

// Name returns the provider key.
func (c *VeoClient) Name() string { return "veo" }

// MaxClipSeconds returns Veo's native single-call duration cap.
func (c *VeoClient) MaxClipSeconds() int { return veoMaxClipSeconds }

type veoPredictRequest struct {
	Instances  []veoInstance `json:"instances"`
	Parameters veoParameters `json:"parameters"`
}

type veoInstance struct {
	Prompt string `json:"prompt"`
}

type veoParameters struct {
	SampleCount     int    `json:"sampleCount"`
	AspectRatio     string `json:"aspectRatio,omitempty"`
	DurationSeconds int    `json:"durationSeconds,omitempty"`
}

type veoOperation struct {
	Name     string          `json:"name"`
	Done     bool            `json:"done"`
	Error    *veoStatus      `json:"error,omitempty"`
	Response json.RawMessage `json:"response,omitempty"`
}

type veoStatus struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (c *VeoClient) modelEndpoint(verb string) string {
	return fmt.Sprintf("%s/projects/%s/locations/%s/publishers/google/models/%s:%s",
		c.baseURL, c.projectID, c.location, c.modelID, verb)
}

// StartGeneration submits a predictLongRunning request and returns the
// operation resource name as the job id.
func (c *VeoClient) StartGeneration(ctx context.Context, req *Request) (*Result, error) {
	if req == nil || strings.TrimSpace(req.Prompt) == "" {
		return nil, NewError(CodeInvalidRequest, "prompt must not be empty").
			WithContext(ErrorContext{Provider: c.Name()})
	}

	opts := req.optionsFor(c.Name())
	duration := req.DurationSeconds
	if opts.DurationSeconds > 0 {
		duration = opts.DurationSeconds
	}
	if duration > veoMaxClipSeconds {
		duration = veoMaxClipSeconds
	}
	aspect := req.AspectRatio
	if opts.AspectRatio != "" {
		aspect = opts.AspectRatio
	}

	body := veoPredictRequest{
		Instances: []veoInstance{{Prompt: req.Prompt}},
		Parameters: veoParameters{
			SampleCount:     c.sampleCount,
			AspectRatio:     aspect,
			DurationSeconds: duration,
		},
	}

	raw, err := c.post(ctx, c.modelEndpoint("predictLongRunning"), body)
	if err != nil {
		return nil, err
	}

	var op veoOperation
	if err := json.Unmarshal(raw, &op); err != nil {
		return nil, NewError(CodeProviderError, "veo submit returned malformed JSON: %v", err).
			WithContext(ErrorContext{Provider: c.Name(), Raw: truncateRaw(raw)})
	}
	if op.Name == "" {
		return nil, NewError(CodeProviderError, "veo submit response missing operation name").
			WithContext(ErrorContext{Provider: c.Name(), Raw: truncateRaw(raw)})
	}

	return &Result{ID: op.Name, Status: StatusPending, Raw: raw}, nil
}

// CheckStatus polls the operation. It has no side effects on the remote job:
// the same operation can be fetched any number of times.
func (c *VeoClient) CheckStatus(ctx context.Context, id string) (*Result, error) {
	if id == "" {
		return nil, NewError(CodeInvalidRequest, "operation name must not be empty").
			WithContext(ErrorContext{Provider: c.Name()})
	}

	raw, err := c.post(ctx, c.modelEndpoint("fetchPredictOperation"), map[string]string{
		"operationName": id,
	})
	if err != nil {
		return nil, err
	}

	var op veoOperation
	if err := json.Unmarshal(raw, &op); err != nil {
		return nil, NewError(CodeProviderError, "veo poll returned malformed JSON: %v", err).
			WithContext(ErrorContext{Provider: c.Name(), Raw: truncateRaw(raw)})
	}

	if !op.Done {
		return &Result{ID: id, Status: StatusPending, Raw: raw}, nil
	}
	if op.Error != nil {
		return nil, NewError(CodeProviderError, "veo generation failed: %s (code %d)", op.Error.Message, op.Error.Code).
			WithContext(ErrorContext{Provider: c.Name(), Raw: truncateRaw(raw)})
	}

	video, err := decodeVeoResponse(op.Response)
	if err != nil {
		return nil, NewError(CodeProviderError, "veo response carried no recognizable video payload").
			WithContext(ErrorContext{Provider: c.Name(), Raw: truncateRaw(op.Response)})
	}

	url := video.URI
	if url == "" {
		url, err = c.writeInline(video.Bytes)
		if err != nil {
			return nil, NewError(CodePersistenceError, "writing inline video bytes: %v", err).
				WithContext(ErrorContext{Provider: c.Name()})
		}
	}

	return &Result{ID: id, Status: StatusCompleted, VideoURL: url, Raw: raw}, nil
}

// veoVideo is the normalized payload extracted from an operation response:
// either a hosted URI or inline bytes, never both.
type veoVideo struct {
	URI   string
	Bytes []byte
}

// Veo's response schema varies by model version. Instead of walking the tree
// for anything video-shaped (string matching false-positives on thumbnails
// and debug fields), each known shape gets its own decoder, tried in order;
// an unmatched shape is a PROVIDER_ERROR upstream.
var veoDecoders = []func(json.RawMessage) (veoVideo, bool){
	decodeVeoVideosShape,
	decodeVeoGeneratedSamplesShape,
	decodeVeoPredictionsShape,
}

func decodeVeoResponse(raw json.RawMessage) (veoVideo, error) {
	if len(raw) == 0 {
		return veoVideo{}, fmt.Errorf("empty response")
	}
	for _, decode := range veoDecoders {
		if v, ok := decode(raw); ok {
			return v, nil
		}
	}
	return veoVideo{}, fmt.Errorf("no decoder matched")
}

// decodeVeoVideosShape handles the current GA shape:
// {"videos":[{"gcsUri":...}|{"bytesBase64Encoded":..., "mimeType":"video/mp4"}]}
func decodeVeoVideosShape(raw json.RawMessage) (veoVideo, bool) {
	var resp struct {
		Videos []struct {
			GcsURI             string `json:"gcsUri"`
			BytesBase64Encoded string `json:"bytesBase64Encoded"`
			MimeType           string `json:"mimeType"`
		} `json:"videos"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil || len(resp.Videos) == 0 {
		return veoVideo{}, false
	}
	return normalizeVeoSample(resp.Videos[0].GcsURI, resp.Videos[0].BytesBase64Encoded)
}

// decodeVeoGeneratedSamplesShape handles the preview shape:
// {"generatedSamples":[{"video":{"uri":...}}]} with "videoBytes" for inline.
func decodeVeoGeneratedSamplesShape(raw json.RawMessage) (veoVideo, bool) {
	var resp struct {
		GeneratedSamples []struct {
			Video struct {
				URI        string `json:"uri"`
				VideoBytes string `json:"videoBytes"`
			} `json:"video"`
		} `json:"generatedSamples"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil || len(resp.GeneratedSamples) == 0 {
		return veoVideo{}, false
	}
	s := resp.GeneratedSamples[0]
	return normalizeVeoSample(s.Video.URI, s.Video.VideoBytes)
}

// decodeVeoPredictionsShape handles the legacy predict-style shape:
// {"predictions":[{"videoUri":...}|{"video":<base64>}|{"bytesBase64Encoded":...}]}
func decodeVeoPredictionsShape(raw json.RawMessage) (veoVideo, bool) {
	var resp struct {
		Predictions []struct {
			VideoURI           string `json:"videoUri"`
			Video              string `json:"video"`
			BytesBase64Encoded string `json:"bytesBase64Encoded"`
		} `json:"predictions"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil || len(resp.Predictions) == 0 {
		return veoVideo{}, false
	}
	p := resp.Predictions[0]
	inline := p.Video
	if inline == "" {
		inline = p.BytesBase64Encoded
	}
	return normalizeVeoSample(p.VideoURI, inline)
}

// normalizeVeoSample validates one extracted sample. A URI must be a gs:// or
// http(s) location; inline content must decode as base64.
func normalizeVeoSample(uri, inline string) (veoVideo, bool) {
	if uri != "" {
		if strings.HasPrefix(uri, "gs://") || strings.HasPrefix(uri, "http://") || strings.HasPrefix(uri, "https://") {
			return veoVideo{URI: uri}, true
		}
		return veoVideo{}, false
	}
	if inline == "" {
		return veoVideo{}, false
	}
	data, err := base64.StdEncoding.DecodeString(inline)
	if err != nil || len(data) == 0 {
		return veoVideo{}, false
	}
	return veoVideo{Bytes: data}, true
}

// writeInline stores decoded video bytes under the output dir and returns the
// routable relative URL.
func (c *VeoClient) writeInline(data []byte) (string, error) {
	if c.outputDir == "" {
		return "", fmt.Errorf("no output directory configured")
	}
	if err := os.MkdirAll(c.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("creating output dir: %w", err)
	}
	name := fmt.Sprintf("veo-%s.mp4", uuid.New().String())
	if err := os.WriteFile(filepath.Join(c.outputDir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("writing video file: %w", err)
	}
	return path.Join(c.assetBase, name), nil
}

// post issues an authenticated JSON POST. The bearer token is fetched from the
// credential source on every call.
func (c *VeoClient) post(ctx context.Context, url string, body interface{}) ([]byte, error) {
	token, err := c.creds.AccessToken(ctx)
	if err != nil {
		return nil, NewError(CodeAuthError, "fetching access token: %v", err).
			WithContext(ErrorContext{Provider: c.Name()})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, NewError(CodeInvalidRequest, "marshaling request: %v", err).
			WithContext(ErrorContext{Provider: c.Name()})
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, NewError(CodeProviderError, "creating request: %v", err).
			WithContext(ErrorContext{Provider: c.Name()})
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	log.Printf("[Veo API] → POST %s", url)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("[Veo API] ✗ POST %s request failed: %v", url, err)
		return nil, NewError(CodeProviderError, "request failed: %v", err).
			WithContext(ErrorContext{Provider: c.Name()})
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewError(CodeProviderError, "reading response: %v", err).
			WithContext(ErrorContext{Provider: c.Name(), HTTPStatus: resp.StatusCode})
	}

	log.Printf("[Veo API] ← %d POST %s", resp.StatusCode, url)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, rateLimited(c.Name(), resp, respBody)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, NewError(CodeAuthError, "provider rejected credentials (status %d)", resp.StatusCode).
			WithContext(ErrorContext{Provider: c.Name(), HTTPStatus: resp.StatusCode, Raw: truncateRaw(respBody)})
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, NewError(CodeProviderError, "provider returned status %d", resp.StatusCode).
			WithContext(ErrorContext{Provider: c.Name(), HTTPStatus: resp.StatusCode, Raw: truncateRaw(respBody)})
	}

	return respBody, nil
}
