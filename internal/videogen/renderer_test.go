package videogen

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeClient is a scripted provider: each CheckStatus call pops the next
// result (or error) from the queue, staying on the last entry once drained.
type fakeClient struct {
	name    string
	maxClip int

	submitResult *Result
	submitErr    error

	mu      sync.Mutex
	polls   []pollStep
	pollIdx int
}

type pollStep struct {
	res *Result
	err error
}

func (f *fakeClient) Name() string { return f.name }

func (f *fakeClient) MaxClipSeconds() int {
	if f.maxClip > 0 {
		return f.maxClip
	}
	return 8
}

func (f *fakeClient) StartGeneration(ctx context.Context, req *Request) (*Result, error) {
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	if f.submitResult != nil {
		return f.submitResult, nil
	}
	return &Result{ID: "job-1", Status: StatusPending}, nil
}

func (f *fakeClient) CheckStatus(ctx context.Context, id string) (*Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.polls) == 0 {
		return &Result{ID: id, Status: StatusPending}, nil
	}
	step := f.polls[f.pollIdx]
	if f.pollIdx < len(f.polls)-1 {
		f.pollIdx++
	}
	return step.res, step.err
}

type fakePersister struct {
	gotReq PersistRequest
	url    string
	err    error
}

func (p *fakePersister) PersistRemoteVideo(ctx context.Context, req PersistRequest) (string, error) {
	p.gotReq = req
	if p.err != nil {
		return "", p.err
	}
	return p.url, nil
}

type fakeProber struct {
	gotPath string
	seconds float64
	err     error
}

func (p *fakeProber) ProbeDurationSeconds(ctx context.Context, path string) (float64, error) {
	p.gotPath = path
	return p.seconds, p.err
}

type memoryAudit struct {
	mu      sync.Mutex
	records []TrafficRecord
}

func (a *memoryAudit) LogTraffic(ctx context.Context, rec TrafficRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, rec)
}

func fastPolicy() PollPolicy {
	return PollPolicy{Mode: PollFixed, Interval: time.Millisecond, Deadline: time.Second}
}

func TestRenderVideoUnknownProvider(t *testing.T) {
	r := NewRenderer(RendererOptions{})
	_, err := r.RenderVideo(context.Background(), "t1", "pika", &Request{Prompt: "p"})
	assertCode(t, err, CodeInvalidProvider)
}

func TestRenderVideoProviderLookupIsCaseInsensitive(t *testing.T) {
	client := &fakeClient{name: "veo", polls: []pollStep{
		{res: &Result{ID: "job-1", Status: StatusCompleted, VideoURL: "gs://b/v.mp4"}},
	}}
	r := NewRenderer(RendererOptions{})
	r.Register(ClientRegistration{Client: client, Policy: fastPolicy()})

	out, err := r.RenderVideo(context.Background(), "t1", "  Veo ", &Request{Prompt: "p"})
	if err != nil {
		t.Fatalf("RenderVideo: %v", err)
	}
	if out.VideoURL != "gs://b/v.mp4" {
		t.Errorf("videoUrl = %q", out.VideoURL)
	}
}

func TestRenderVideoSubmitWithoutID(t *testing.T) {
	client := &fakeClient{name: "veo", submitResult: &Result{Status: StatusPending}}
	r := NewRenderer(RendererOptions{})
	r.Register(ClientRegistration{Client: client, Policy: fastPolicy()})

	_, err := r.RenderVideo(context.Background(), "t1", "veo", &Request{Prompt: "p"})
	assertCode(t, err, CodeProviderError)
}

func TestRenderVideoCompletedWithoutURL(t *testing.T) {
	client := &fakeClient{name: "veo", polls: []pollStep{
		{res: &Result{ID: "job-1", Status: StatusCompleted}},
	}}
	r := NewRenderer(RendererOptions{})
	r.Register(ClientRegistration{Client: client, Policy: fastPolicy()})

	_, err := r.RenderVideo(context.Background(), "t1", "veo", &Request{Prompt: "p"})
	assertCode(t, err, CodeProviderError)
}

func TestRenderVideoProviderFailure(t *testing.T) {
	client := &fakeClient{name: "veo", polls: []pollStep{
		{res: &Result{ID: "job-1", Status: StatusPending}},
		{res: &Result{ID: "job-1", Status: StatusFailed, Error: "safety filter"}},
	}}
	r := NewRenderer(RendererOptions{})
	r.Register(ClientRegistration{Client: client, Policy: fastPolicy()})

	_, err := r.RenderVideo(context.Background(), "t1", "veo", &Request{Prompt: "p"})
	re := assertCode(t, err, CodeProviderError)
	if !strings.Contains(re.Message, "safety filter") {
		t.Errorf("message = %q", re.Message)
	}
}

func TestRenderVideoTimeout(t *testing.T) {
	client := &fakeClient{name: "veo"} // always pending
	r := NewRenderer(RendererOptions{})
	r.Register(ClientRegistration{Client: client, Policy: PollPolicy{
		Mode: PollFixed, Interval: 5 * time.Millisecond, Deadline: 25 * time.Millisecond,
	}})

	_, err := r.RenderVideo(context.Background(), "t1", "veo", &Request{Prompt: "p"})
	assertCode(t, err, CodeTimeout)
}

func TestRenderVideoContextCancelled(t *testing.T) {
	client := &fakeClient{name: "veo"}
	r := NewRenderer(RendererOptions{})
	r.Register(ClientRegistration{Client: client, Policy: PollPolicy{
		Mode: PollFixed, Interval: 50 * time.Millisecond, Deadline: 10 * time.Second,
	}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.RenderVideo(ctx, "t1", "veo", &Request{Prompt: "p"})
	assertCode(t, err, CodeTimeout)
}

func TestRenderVideoPersistenceSubstitutesURL(t *testing.T) {
	client := &fakeClient{name: "sora", polls: []pollStep{
		{res: &Result{ID: "job-1", Status: StatusCompleted, VideoURL: "https://provider/videos/job-1/content"}},
	}}
	persister := &fakePersister{url: "https://cdn.example/videos/job-1.mp4"}
	r := NewRenderer(RendererOptions{Persister: persister})
	r.Register(ClientRegistration{
		Client:              client,
		Policy:              fastPolicy(),
		RequiresPersistence: true,
		ContentHeaders:      map[string]string{"Authorization": "Bearer k"},
	})

	out, err := r.RenderVideo(context.Background(), "t1", "sora", &Request{Prompt: "p"})
	if err != nil {
		t.Fatalf("RenderVideo: %v", err)
	}
	if out.VideoURL != "https://cdn.example/videos/job-1.mp4" {
		t.Errorf("videoUrl = %q, want persisted url", out.VideoURL)
	}
	if persister.gotReq.SourceURL != "https://provider/videos/job-1/content" {
		t.Errorf("persist source = %q", persister.gotReq.SourceURL)
	}
	if persister.gotReq.Headers["Authorization"] != "Bearer k" {
		t.Errorf("persist headers = %v", persister.gotReq.Headers)
	}
}

func TestRenderVideoPersistenceUnavailable(t *testing.T) {
	client := &fakeClient{name: "sora", polls: []pollStep{
		{res: &Result{ID: "job-1", Status: StatusCompleted, VideoURL: "https://provider/c"}},
	}}
	r := NewRenderer(RendererOptions{}) // no persister wired
	r.Register(ClientRegistration{Client: client, Policy: fastPolicy(), RequiresPersistence: true})

	_, err := r.RenderVideo(context.Background(), "t1", "sora", &Request{Prompt: "p"})
	assertCode(t, err, CodePersistenceError)
}

func TestRenderVideoSecondsFallbackToRequested(t *testing.T) {
	client := &fakeClient{name: "veo", maxClip: 8, polls: []pollStep{
		{res: &Result{ID: "job-1", Status: StatusCompleted, VideoURL: "gs://b/v.mp4"}},
	}}
	r := NewRenderer(RendererOptions{})
	r.Register(ClientRegistration{Client: client, Policy: fastPolicy()})

	out, err := r.RenderVideo(context.Background(), "t1", "veo", &Request{Prompt: "p", DurationSeconds: 20})
	if err != nil {
		t.Fatalf("RenderVideo: %v", err)
	}
	if out.Seconds == nil || *out.Seconds != 8 {
		t.Errorf("seconds = %v, want requested clamped to clip cap", out.Seconds)
	}
}

func TestRenderVideoProbesLocalAsset(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "v.mp4"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	client := &fakeClient{name: "veo", polls: []pollStep{
		{res: &Result{ID: "job-1", Status: StatusCompleted, VideoURL: "/video-assets/v.mp4"}},
	}}
	prober := &fakeProber{seconds: 7.96}
	r := NewRenderer(RendererOptions{Prober: prober, AssetBaseURL: "/video-assets", AssetDir: dir})
	r.Register(ClientRegistration{Client: client, Policy: fastPolicy()})

	out, err := r.RenderVideo(context.Background(), "t1", "veo", &Request{Prompt: "p", DurationSeconds: 8})
	if err != nil {
		t.Fatalf("RenderVideo: %v", err)
	}
	if out.Seconds == nil || *out.Seconds != 7.96 {
		t.Errorf("seconds = %v, want probed value", out.Seconds)
	}
	if prober.gotPath != filepath.Join(dir, "v.mp4") {
		t.Errorf("probed path = %q", prober.gotPath)
	}
}

func TestRenderVideoAdaptiveHonorsPacingHint(t *testing.T) {
	client := &fakeClient{name: "veo", polls: []pollStep{
		{res: &Result{ID: "job-1", Status: StatusPending, RetryAfterMs: 1}},
		{res: &Result{ID: "job-1", Status: StatusCompleted, VideoURL: "gs://b/v.mp4"}},
	}}
	r := NewRenderer(RendererOptions{})
	r.Register(ClientRegistration{Client: client, Policy: PollPolicy{
		Mode: PollAdaptive, Interval: time.Millisecond, Deadline: time.Second,
	}})

	out, err := r.RenderVideo(context.Background(), "t1", "veo", &Request{Prompt: "p"})
	if err != nil {
		t.Fatalf("RenderVideo: %v", err)
	}
	if out.VideoURL != "gs://b/v.mp4" {
		t.Errorf("videoUrl = %q", out.VideoURL)
	}
}

func TestRenderVideoSurfacesRateLimited(t *testing.T) {
	throttle := NewError(CodeRateLimited, "slow down").WithContext(ErrorContext{RetryAfterMs: 4000})
	for _, mode := range []PollMode{PollFixed, PollAdaptive} {
		client := &fakeClient{name: "veo", polls: []pollStep{{err: throttle}}}
		r := NewRenderer(RendererOptions{})
		r.Register(ClientRegistration{Client: client, Policy: PollPolicy{
			Mode: mode, Interval: time.Millisecond, Deadline: time.Second,
		}})

		_, err := r.RenderVideo(context.Background(), "t1", "veo", &Request{Prompt: "p"})
		re := assertCode(t, err, CodeRateLimited)
		if re.Context.RetryAfterMs != 4000 {
			t.Errorf("%s mode lost retryAfterMs: %d", mode, re.Context.RetryAfterMs)
		}
	}
}

func TestRenderVideoAuditRecords(t *testing.T) {
	client := &fakeClient{name: "veo", polls: []pollStep{
		{res: &Result{ID: "job-1", Status: StatusCompleted, VideoURL: "gs://b/v.mp4",
			Raw: json.RawMessage(`{"done":true}`)}},
	}}
	audit := &memoryAudit{}
	r := NewRenderer(RendererOptions{Audit: audit})
	r.Register(ClientRegistration{Client: client, Policy: fastPolicy()})

	if _, err := r.RenderVideo(context.Background(), "task-7", "veo", &Request{Prompt: "p"}); err != nil {
		t.Fatalf("RenderVideo: %v", err)
	}

	if len(audit.records) != 2 {
		t.Fatalf("got %d audit records, want 2", len(audit.records))
	}
	if audit.records[0].Direction != TrafficOutbound || audit.records[0].TaskID != "task-7" {
		t.Errorf("first record = %+v", audit.records[0])
	}
	if audit.records[1].Direction != TrafficInbound {
		t.Errorf("second record = %+v", audit.records[1])
	}
}

func TestRenderVideoAuditRecordsTerminalFailure(t *testing.T) {
	pollErr := NewError(CodeProviderError, "veo generation failed: quota exceeded (code 8)").
		WithContext(ErrorContext{
			Provider: "veo",
			Raw:      `{"done":true,"error":{"code":8,"message":"quota exceeded"}}`,
		})
	client := &fakeClient{name: "veo", polls: []pollStep{{err: pollErr}}}
	audit := &memoryAudit{}
	r := NewRenderer(RendererOptions{Audit: audit})
	r.Register(ClientRegistration{Client: client, Policy: fastPolicy()})

	_, err := r.RenderVideo(context.Background(), "task-8", "veo", &Request{Prompt: "p"})
	assertCode(t, err, CodeProviderError)

	if len(audit.records) != 2 {
		t.Fatalf("got %d audit records, want 2", len(audit.records))
	}
	last := audit.records[1]
	if last.Direction != TrafficInbound || last.TaskID != "task-8" {
		t.Errorf("second record = %+v", last)
	}
	if !strings.Contains(string(last.Payload), "quota exceeded") {
		t.Errorf("payload = %s, want provider error detail", last.Payload)
	}
}

func TestRenderVideoRateLimitedLeavesNoInboundRecord(t *testing.T) {
	throttle := NewError(CodeRateLimited, "slow down").
		WithContext(ErrorContext{Provider: "veo", Raw: `{"error":{"code":429}}`, RetryAfterMs: 4000})
	client := &fakeClient{name: "veo", polls: []pollStep{{err: throttle}}}
	audit := &memoryAudit{}
	r := NewRenderer(RendererOptions{Audit: audit})
	r.Register(ClientRegistration{Client: client, Policy: fastPolicy()})

	_, err := r.RenderVideo(context.Background(), "task-9", "veo", &Request{Prompt: "p"})
	assertCode(t, err, CodeRateLimited)

	for _, rec := range audit.records {
		if rec.Direction == TrafficInbound {
			t.Errorf("throttle produced an inbound record: %+v", rec)
		}
	}
}

func TestRenderVideoFirstPollIsImmediate(t *testing.T) {
	client := &fakeClient{name: "veo", polls: []pollStep{
		{res: &Result{ID: "job-1", Status: StatusCompleted, VideoURL: "gs://b/v.mp4"}},
	}}
	r := NewRenderer(RendererOptions{})
	r.Register(ClientRegistration{Client: client, Policy: PollPolicy{
		Mode: PollFixed, Interval: time.Hour, Deadline: 2 * time.Hour,
	}})

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := r.RenderVideo(context.Background(), "t1", "veo", &Request{Prompt: "p"}); err != nil {
			t.Errorf("RenderVideo: %v", err)
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("first status check waited for the poll interval")
	}
}

func TestPollPolicyNextWait(t *testing.T) {
	fixed := DefaultFixedPolicy().normalized()
	if got := fixed.nextWait(10*time.Second, 9000); got != 2*time.Second {
		t.Errorf("fixed ignores hints and history, got %v", got)
	}

	adaptive := DefaultAdaptivePolicy().normalized()
	if got := adaptive.nextWait(0, 0); got != 2*time.Second {
		t.Errorf("first adaptive wait = %v", got)
	}
	if got := adaptive.nextWait(2*time.Second, 0); got != 3*time.Second {
		t.Errorf("grown wait = %v, want 3s", got)
	}
	if got := adaptive.nextWait(29*time.Second, 0); got != 30*time.Second {
		t.Errorf("capped wait = %v, want 30s", got)
	}
	if got := adaptive.nextWait(2*time.Second, 5000); got != 5*time.Second {
		t.Errorf("hinted wait = %v, want 5s", got)
	}
}

func TestStripBinary(t *testing.T) {
	long := strings.Repeat("A", 4096)
	raw := json.RawMessage(`{"videos":[{"bytesBase64Encoded":"` + long + `","mimeType":"video/mp4"}]}`)

	cleaned := stripBinary(raw)
	var v struct {
		Videos []struct {
			Bytes    string `json:"bytesBase64Encoded"`
			MimeType string `json:"mimeType"`
		} `json:"videos"`
	}
	if err := json.Unmarshal(cleaned, &v); err != nil {
		t.Fatalf("unmarshaling cleaned payload: %v", err)
	}
	if strings.Contains(v.Videos[0].Bytes, "AAAA") {
		t.Error("inline bytes survived stripping")
	}
	if v.Videos[0].MimeType != "video/mp4" {
		t.Errorf("short field was mangled: %q", v.Videos[0].MimeType)
	}
}
