package client

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/hireloop/api/internal/videogen"
)

// VideoStore mirrors provider-hosted video content into object storage. It
// implements videogen.VideoPersister: provider download URLs expire, the
// stored copy is what callers keep.
type VideoStore struct {
	storage    StorageClient
	httpClient *http.Client
}

func NewVideoStore(storage StorageClient, httpClient *http.Client) *VideoStore {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Minute}
	}
	return &VideoStore{storage: storage, httpClient: httpClient}
}

// PersistRemoteVideo downloads the source and streams it into storage,
// returning the durable public URL.
func (s *VideoStore) PersistRemoteVideo(ctx context.Context, req videogen.PersistRequest) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.SourceURL, nil)
	if err != nil {
		return "", videogen.NewError(videogen.CodePersistenceError, "creating download request: %v", err).
			WithContext(videogen.ErrorContext{Provider: req.Provider})
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	log.Printf("[VideoStore] → GET %s", req.SourceURL)
	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return "", videogen.NewError(videogen.CodePersistenceError, "downloading video: %v", err).
			WithContext(videogen.ErrorContext{Provider: req.Provider})
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", videogen.NewError(videogen.CodePersistenceError, "video download returned status %d", resp.StatusCode).
			WithContext(videogen.ErrorContext{Provider: req.Provider, HTTPStatus: resp.StatusCode})
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "video/mp4"
	}

	key := fmt.Sprintf("videos/%s/%s.mp4", req.Provider, req.JobID)
	url, err := s.storage.Upload(ctx, key, resp.Body, contentType)
	if err != nil {
		return "", videogen.NewError(videogen.CodePersistenceError, "storing video: %v", err).
			WithContext(videogen.ErrorContext{Provider: req.Provider})
	}

	log.Printf("[VideoStore] ← stored %s as %s", req.JobID, key)
	return url, nil
}
