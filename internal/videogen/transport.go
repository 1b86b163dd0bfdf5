package videogen

import (
	"net/http"
	"strconv"
	"time"
)

// parseRetryAfterMs converts a Retry-After header into milliseconds. The
// header is either delay seconds or an HTTP date; an unparseable or absent
// value yields 0.
func parseRetryAfterMs(h string, now time.Time) int64 {
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(h); err == nil {
		if secs < 0 {
			return 0
		}
		return int64(secs) * 1000
	}
	if t, err := http.ParseTime(h); err == nil {
		delta := t.Sub(now)
		if delta < 0 {
			return 0
		}
		return delta.Milliseconds()
	}
	return 0
}

// rateLimited builds the RATE_LIMITED error for a 429, carrying the parsed
// Retry-After delay so callers can reschedule.
func rateLimited(provider string, resp *http.Response, body []byte) *RendererError {
	return NewError(CodeRateLimited, "provider rate limited the request").WithContext(ErrorContext{
		Provider:     provider,
		HTTPStatus:   http.StatusTooManyRequests,
		RetryAfterMs: parseRetryAfterMs(resp.Header.Get("Retry-After"), time.Now()),
		Raw:          truncateRaw(body),
	})
}
