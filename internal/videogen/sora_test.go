package videogen

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestSoraClient(t *testing.T, handler http.HandlerFunc) *SoraClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewSoraClient(&SoraConfig{
		APIKey:       "sk-test",
		BaseURL:      srv.URL,
		DefaultModel: "sora-2",
	}, srv.Client())
	if err != nil {
		t.Fatalf("NewSoraClient: %v", err)
	}
	return client
}

func assertCode(t *testing.T, err error, want ErrorCode) *RendererError {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", want)
	}
	re, ok := AsRendererError(err)
	if !ok {
		t.Fatalf("expected *RendererError, got %T: %v", err, err)
	}
	if re.Code != want {
		t.Fatalf("error code = %s, want %s (err: %v)", re.Code, want, err)
	}
	return re
}

func TestNewSoraClientRequiresAPIKey(t *testing.T) {
	_, err := NewSoraClient(&SoraConfig{}, nil)
	assertCode(t, err, CodeConfigurationError)
}

func TestSoraSnapSeconds(t *testing.T) {
	cases := []struct{ in, want int }{
		{1, 4},
		{4, 4},
		{5, 4},
		{6, 4}, // equidistant, shorter wins
		{7, 8},
		{10, 8}, // equidistant, shorter wins
		{11, 12},
		{12, 12},
		{30, 12},
	}
	for _, c := range cases {
		if got := soraSnapSeconds(c.in); got != c.want {
			t.Errorf("soraSnapSeconds(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestSoraSizeFor(t *testing.T) {
	if got := soraSizeFor("9:16"); got != "720x1280" {
		t.Errorf("9:16 = %q", got)
	}
	if got := soraSizeFor("16:9"); got != "1280x720" {
		t.Errorf("16:9 = %q", got)
	}
	if got := soraSizeFor("1:1"); got != "" {
		t.Errorf("1:1 should omit size, got %q", got)
	}
}

func TestSoraStartGenerationRequestShape(t *testing.T) {
	var got soraCreateRequest
	client := newTestSoraClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/videos" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test" {
			t.Errorf("Authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]string{"id": "video_123", "status": "queued"})
	})

	res, err := client.StartGeneration(context.Background(), &Request{
		Prompt:          "a hiring manager greets a candidate",
		DurationSeconds: 10,
		AspectRatio:     "9:16",
	})
	if err != nil {
		t.Fatalf("StartGeneration: %v", err)
	}
	if res.ID != "video_123" || res.Status != StatusPending {
		t.Errorf("result = %+v", res)
	}
	if got.Model != "sora-2" {
		t.Errorf("model = %q, want client default", got.Model)
	}
	if got.Size != "720x1280" {
		t.Errorf("size = %q", got.Size)
	}
	if got.Seconds != "8" {
		t.Errorf("seconds = %q, want \"8\" (string on the wire)", got.Seconds)
	}
}

func TestSoraUnknownModelOverrideFallsBack(t *testing.T) {
	var got soraCreateRequest
	client := newTestSoraClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(map[string]string{"id": "video_1", "status": "queued"})
	})

	_, err := client.StartGeneration(context.Background(), &Request{
		Prompt: "p",
		ProviderOptions: map[string]Options{
			"sora": {Model: "sora-99-ultra"},
		},
	})
	if err != nil {
		t.Fatalf("StartGeneration: %v", err)
	}
	if got.Model != "sora-2" {
		t.Errorf("model = %q, want fallback to client default", got.Model)
	}
}

func TestSoraStartGenerationEmptyPrompt(t *testing.T) {
	client := newTestSoraClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request should be sent")
	})
	_, err := client.StartGeneration(context.Background(), &Request{Prompt: "   "})
	assertCode(t, err, CodeInvalidRequest)
}

func TestSoraCheckStatusCompleted(t *testing.T) {
	client := newTestSoraClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/videos/video_9" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]string{
			"id": "video_9", "status": "completed", "seconds": "8",
		})
	})

	res, err := client.CheckStatus(context.Background(), "video_9")
	if err != nil {
		t.Fatalf("CheckStatus: %v", err)
	}
	if res.Status != StatusCompleted {
		t.Errorf("status = %s", res.Status)
	}
	if res.VideoURL != client.ContentURL("video_9") {
		t.Errorf("videoUrl = %q", res.VideoURL)
	}
	if res.Seconds == nil || *res.Seconds != 8 {
		t.Errorf("seconds = %v, want 8", res.Seconds)
	}
}

func TestSoraCheckStatusIsIdempotent(t *testing.T) {
	var gets int
	client := newTestSoraClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("poll used %s, want GET", r.Method)
		}
		gets++
		json.NewEncoder(w).Encode(map[string]string{
			"id": "video_9", "status": "completed", "seconds": "8",
		})
	})

	first, err := client.CheckStatus(context.Background(), "video_9")
	if err != nil {
		t.Fatalf("first CheckStatus: %v", err)
	}
	second, err := client.CheckStatus(context.Background(), "video_9")
	if err != nil {
		t.Fatalf("second CheckStatus: %v", err)
	}

	if first.Status != second.Status || first.VideoURL != second.VideoURL ||
		first.ID != second.ID || *first.Seconds != *second.Seconds {
		t.Errorf("repeated polls diverged: %+v vs %+v", first, second)
	}
	if gets != 2 {
		t.Errorf("poll count = %d, want 2", gets)
	}
}

func TestSoraCheckStatusFailed(t *testing.T) {
	client := newTestSoraClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id": "video_9", "status": "failed",
			"error": map[string]string{"code": "moderation_blocked", "message": "prompt rejected"},
		})
	})

	res, err := client.CheckStatus(context.Background(), "video_9")
	if err != nil {
		t.Fatalf("CheckStatus: %v", err)
	}
	if res.Status != StatusFailed || res.Error != "prompt rejected" {
		t.Errorf("result = %+v", res)
	}
}

func TestSoraCheckStatusPendingStates(t *testing.T) {
	for _, status := range []string{"queued", "in_progress", "some_new_state"} {
		client := newTestSoraClient(t, func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]string{"id": "v", "status": status})
		})
		res, err := client.CheckStatus(context.Background(), "v")
		if err != nil {
			t.Fatalf("CheckStatus(%s): %v", status, err)
		}
		if res.Status != StatusPending {
			t.Errorf("status %q mapped to %s, want pending", status, res.Status)
		}
	}
}

func TestSoraRateLimited(t *testing.T) {
	client := newTestSoraClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.CheckStatus(context.Background(), "v")
	re := assertCode(t, err, CodeRateLimited)
	if re.Context.RetryAfterMs != 7000 {
		t.Errorf("retryAfterMs = %d, want 7000", re.Context.RetryAfterMs)
	}
}

func TestSoraAuthRejection(t *testing.T) {
	client := newTestSoraClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	_, err := client.CheckStatus(context.Background(), "v")
	assertCode(t, err, CodeAuthError)
}

func TestSoraContentHeaders(t *testing.T) {
	client := newTestSoraClient(t, nil)
	h := client.ContentHeaders()
	if h["Authorization"] != "Bearer sk-test" {
		t.Errorf("content headers = %v", h)
	}
}
