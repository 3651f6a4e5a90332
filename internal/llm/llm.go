// Package llm holds the hosted-model clients used to classify and explain
// messages. Every provider exposes the same two-prompt Complete call; retry
// and caching live above this package.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Client sends one system+user prompt pair and returns the model's reply.
// Implementations must be safe for concurrent use.
type Client interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	Name() string
}

// ErrEmptyReply is returned when the provider answered without any content.
var ErrEmptyReply = errors.New("llm: empty reply")

// APIError is a non-2xx answer from a provider.
type APIError struct {
	Provider        string
	StatusCode      int
	Body            string
	RetryAfterDelay time.Duration // parsed from Retry-After, 0 if absent
}

func (e *APIError) Error() string {
	body := e.Body
	if len(body) > 512 {
		body = body[:512] + "..."
	}
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, body)
}

// RetryAfter reports the server-requested delay before the next attempt.
func (e *APIError) RetryAfter() time.Duration { return e.RetryAfterDelay }

// Temporary reports whether the status is worth retrying.
func (e *APIError) Temporary() bool {
	switch {
	case e.StatusCode == http.StatusTooManyRequests,
		e.StatusCode == http.StatusRequestTimeout,
		e.StatusCode >= 500:
		return true
	}
	return false
}

// Retryable reports whether err is a transient failure: rate limiting,
// server errors, timeouts or connection problems.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	var temp interface{ Temporary() bool }
	if errors.As(err, &temp) && temp.Temporary() {
		return true
	}
	if errors.Is(err, ErrEmptyReply) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}

// parseRetryAfter understands both delta-seconds and HTTP-date values.
func parseRetryAfter(h string) time.Duration {
	h = strings.TrimSpace(h)
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(h); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// CleanReply removes reasoning blocks and markdown fences some models wrap
// around their answer.
func CleanReply(s string) string {
	return stripCodeFence(stripThinkBlock(strings.TrimSpace(s)))
}

// stripThinkBlock removes a <think>...</think> block emitted by reasoning models.
func stripThinkBlock(s string) string {
	const open, close = "<think>", "</think>"
	start := strings.Index(s, open)
	if start < 0 {
		return s
	}
	end := strings.Index(s, close)
	if end < 0 {
		// Unclosed block - drop everything from <think> onwards.
		return strings.TrimSpace(s[:start])
	}
	return strings.TrimSpace(s[:start] + s[end+len(close):])
}

// stripCodeFence removes ```lang ... ``` wrappers.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx >= 0 {
			s = s[idx+1:]
		} else {
			s = strings.TrimPrefix(s, "```")
		}
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}
	return s
}
