package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gonkalabs/scamcheck/internal/upstream"
)

// Doer is the part of upstream.Client that Gonka needs.
type Doer interface {
	Do(ctx context.Context, method, path string, payload []byte) ([]byte, error)
}

// Gonka sends OpenAI-format chat requests over the signed Gonka transport.
type Gonka struct {
	up    Doer
	model string
}

// NewGonka creates a Gonka client on top of an upstream transport.
func NewGonka(up Doer, model string) *Gonka {
	return &Gonka{up: up, model: model}
}

// Name implements Client.
func (g *Gonka) Name() string { return "gonka" }

// Complete implements Client.
func (g *Gonka) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: g.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: 0,
		MaxTokens:   1024,
	})
	if err != nil {
		return "", fmt.Errorf("gonka: marshal: %w", err)
	}

	raw, err := g.up.Do(ctx, http.MethodPost, "/chat/completions", body)
	if err != nil {
		var se *upstream.StatusError
		if errors.As(err, &se) {
			return "", &APIError{
				Provider:        "gonka",
				StatusCode:      se.StatusCode,
				Body:            se.Body,
				RetryAfterDelay: parseRetryAfter(se.RetryAfter),
			}
		}
		return "", fmt.Errorf("gonka: %w", err)
	}
	return decodeChatResponse("gonka", raw)
}
