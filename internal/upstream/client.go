// Package upstream is the transport to the Gonka inference network: it
// discovers active nodes and sends wallet-signed requests to them.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gonkalabs/scamcheck/internal/signer"
)

// Endpoint is a Gonka node with its transfer address.
type Endpoint struct {
	URL     string // e.g. http://node2.gonka.ai:8000/v1
	Address string // bech32 address of this host
}

// DefaultTransferAgents are the nodes known to accept proxied inference.
var DefaultTransferAgents = []string{
	"gonka1y2a9p56kv044327uycmqdexl7zs82fs5ryv5le",
	"gonka1dkl4mah5erqggvhqkpc8j3qs5tyuetgdy552cp",
	"gonka1kx9mca3xm8u8ypzfuhmxey66u0ufxhs7nm6wc5",
	"gonka1ddswmmmn38esxegjf6qw36mt4aqyw6etvysy5x",
	"gonka10fynmy2npvdvew0vj2288gz8ljfvmjs35lat8n",
	"gonka1v8gk5z7gcv72447yfcd2y8g78qk05yc4f3nk4w",
	"gonka1gndhek2h2y5849wf6tmw6gnw9qn4vysgljed0u",
}

// StatusError is a non-2xx response from a node.
type StatusError struct {
	StatusCode int
	Body       string
	RetryAfter string // raw Retry-After header
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream: status %d: %s", e.StatusCode, e.Body)
}

// Client sends signed requests to a random discovered endpoint, rotating
// wallets from the pool.
type Client struct {
	sourceURL string
	pool      *signer.Pool
	allowed   map[string]bool // nil accepts every participant

	mu        sync.RWMutex
	endpoints []Endpoint

	http *http.Client
}

// New creates a Client. sourceURL is a bare node URL used for discovery.
// allowed restricts which participants are used; empty means all.
func New(sourceURL string, pool *signer.Pool, allowed []string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	var allow map[string]bool
	if len(allowed) > 0 {
		allow = make(map[string]bool, len(allowed))
		for _, a := range allowed {
			allow[a] = true
		}
	}
	return &Client{
		sourceURL: strings.TrimRight(sourceURL, "/"),
		pool:      pool,
		allowed:   allow,
		http:      &http.Client{Timeout: timeout},
	}
}

// SetEndpoints replaces the endpoint list without discovery.
func (c *Client) SetEndpoints(eps []Endpoint) {
	c.mu.Lock()
	c.endpoints = append([]Endpoint(nil), eps...)
	c.mu.Unlock()
}

// Endpoints returns a copy of the current endpoint list.
func (c *Client) Endpoints() []Endpoint {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Endpoint(nil), c.endpoints...)
}

// DiscoverEndpoints fetches the active participant list from sourceURL.
func (c *Client) DiscoverEndpoints(ctx context.Context) error {
	url := c.sourceURL + "/v1/epochs/current/participants"
	slog.Info("upstream: discovering endpoints", "url", url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("upstream: discover: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("upstream: discover: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("upstream: discover: %w", &StatusError{StatusCode: resp.StatusCode, Body: string(body)})
	}

	var result struct {
		ActiveParticipants struct {
			Participants []struct {
				Index        string `json:"index"`
				InferenceURL string `json:"inference_url"`
			} `json:"participants"`
		} `json:"active_participants"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("upstream: discover: decode: %w", err)
	}

	var eps []Endpoint
	for _, p := range result.ActiveParticipants.Participants {
		if p.InferenceURL == "" || p.Index == "" {
			continue
		}
		if c.allowed != nil && !c.allowed[p.Index] {
			continue
		}
		eps = append(eps, Endpoint{URL: strings.TrimRight(p.InferenceURL, "/") + "/v1", Address: p.Index})
	}
	if len(eps) == 0 {
		return fmt.Errorf("upstream: discover: no usable endpoints among active participants")
	}

	c.SetEndpoints(eps)
	slog.Info("upstream: endpoints discovered", "count", len(eps))
	return nil
}

// pickEndpoint returns a random endpoint not in exclude, or any endpoint
// once all have been tried.
func (c *Client) pickEndpoint(exclude map[string]bool) (Endpoint, error) {
	c.mu.RLock()
	eps := c.endpoints
	c.mu.RUnlock()
	if len(eps) == 0 {
		return Endpoint{}, fmt.Errorf("upstream: no endpoints available")
	}
	var candidates []Endpoint
	for _, ep := range eps {
		if !exclude[ep.Address] {
			candidates = append(candidates, ep)
		}
	}
	if len(candidates) == 0 {
		return eps[rand.Intn(len(eps))], nil
	}
	return candidates[rand.Intn(len(candidates))], nil
}

// Do sends a signed request and returns the response body. Connection
// failures move on to another endpoint, up to three endpoints per call.
// A non-2xx answer is returned as *StatusError without trying further nodes;
// backoff across calls is the caller's job.
func (c *Client) Do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var lastErr error
	tried := map[string]bool{}
	for attempt := 0; attempt < 3; attempt++ {
		ep, err := c.pickEndpoint(tried)
		if err != nil {
			return nil, err
		}
		tried[ep.Address] = true

		resp, err := c.send(ctx, ep, c.pool.Next(), method, path, payload)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("upstream: %w", err)
			}
			slog.Warn("upstream: request failed, trying another endpoint", "attempt", attempt+1, "endpoint", ep.Address, "err", err)
			lastErr = err
			continue
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("upstream: read body: %w", err)
		}
		if resp.StatusCode >= 400 {
			return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body), RetryAfter: resp.Header.Get("Retry-After")}
		}
		return body, nil
	}
	return nil, fmt.Errorf("upstream: %w", lastErr)
}

func (c *Client) send(ctx context.Context, ep Endpoint, w *signer.Wallet, method, path string, payload []byte) (*http.Response, error) {
	url := ep.URL + path

	sig, ts, err := w.Signer.Sign(payload, ep.Address)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", sig)
	req.Header.Set("X-Requester-Address", w.Address)
	req.Header.Set("X-Timestamp", strconv.FormatInt(ts, 10))

	slog.Debug("upstream: request", "method", method, "url", url, "endpoint_addr", ep.Address, "wallet", w.Address)
	return c.http.Do(req)
}
