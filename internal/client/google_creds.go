package client

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// StaticToken is a videogen.CredentialSource returning a fixed bearer token.
// Local-dev only: the token is whatever `gcloud auth print-access-token`
// produced and expires on Google's schedule.
type StaticToken string

func (t StaticToken) AccessToken(ctx context.Context) (string, error) {
	if t == "" {
		return "", fmt.Errorf("empty static token")
	}
	return string(t), nil
}

// GoogleCredentials resolves bearer tokens through Application Default
// Credentials. The underlying oauth2 source caches and refreshes the token
// itself; callers still fetch per call, so an expired token is refreshed
// transparently instead of failing a poll mid-render.
type GoogleCredentials struct {
	mu     sync.Mutex
	source oauth2.TokenSource
}

func NewGoogleCredentials() *GoogleCredentials {
	return &GoogleCredentials{}
}

func (g *GoogleCredentials) AccessToken(ctx context.Context) (string, error) {
	g.mu.Lock()
	if g.source == nil {
		src, err := google.DefaultTokenSource(ctx, cloudPlatformScope)
		if err != nil {
			g.mu.Unlock()
			return "", fmt.Errorf("resolving application default credentials: %w", err)
		}
		g.source = src
	}
	source := g.source
	g.mu.Unlock()

	tok, err := source.Token()
	if err != nil {
		return "", fmt.Errorf("fetching access token: %w", err)
	}
	return tok.AccessToken, nil
}
