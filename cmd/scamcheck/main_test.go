package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gonkalabs/scamcheck/internal/config"
	"github.com/gonkalabs/scamcheck/internal/detector"
)

// fakeOpenAI answers classify prompts with decision and everything else
// with a fixed explanation.
func fakeOpenAI(t *testing.T, decision string, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		reply := "It pressures you to pay."
		if strings.HasPrefix(req.Messages[1].Content, "Is this message a scam?") {
			reply = decision
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{
				"message":       map[string]string{"role": "assistant", "content": reply},
				"finish_reason": "stop",
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func setEnv(t *testing.T, baseURL string) {
	t.Helper()
	t.Setenv("LLM_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_BASE_URL", baseURL)
	t.Setenv("LLM_MODEL", "")
	t.Setenv("CACHE_PATH", "")
	t.Setenv("REDACT", "")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("RETRY_MAX_ATTEMPTS", "1")
}

func runRoot(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetIn(strings.NewReader(stdin))
	err := cmd.Execute()
	return out.String(), err
}

func TestCheck_Scam(t *testing.T) {
	var calls atomic.Int32
	setEnv(t, fakeOpenAI(t, "Yes", &calls).URL)

	out, err := runRoot(t, "", "check", "Please pay the overdue invoice today")
	assert.ErrorIs(t, err, errScam)
	assert.Contains(t, out, "SCAM (model)")
	assert.Contains(t, out, "It pressures you to pay.")
	assert.Equal(t, int32(2), calls.Load())
}

func TestCheck_NotScamFromStdin(t *testing.T) {
	var calls atomic.Int32
	setEnv(t, fakeOpenAI(t, "No", &calls).URL)

	out, err := runRoot(t, "See you at lunch\n", "check")
	require.NoError(t, err)
	assert.Equal(t, "NOT a scam\n", out)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCheck_HeuristicJSON(t *testing.T) {
	var calls atomic.Int32
	setEnv(t, fakeOpenAI(t, "No", &calls).URL)

	out, err := runRoot(t, "", "check", "--json", "Congratulations, you've won a cruise")
	assert.ErrorIs(t, err, errScam)

	var res detector.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, res.Scam)
	assert.Equal(t, detector.SourceHeuristic, res.Source)
	assert.Equal(t, "It pressures you to pay.", res.Explanation)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCheck_Empty(t *testing.T) {
	var calls atomic.Int32
	setEnv(t, fakeOpenAI(t, "No", &calls).URL)

	_, err := runRoot(t, "  \n", "check")
	assert.ErrorIs(t, err, detector.ErrEmptyMessage)
	assert.Zero(t, calls.Load())
}

func TestCheck_PersistentCache(t *testing.T) {
	var calls atomic.Int32
	setEnv(t, fakeOpenAI(t, "No", &calls).URL)
	t.Setenv("CACHE_PATH", filepath.Join(t.TempDir(), "cache", "scamcheck.db"))

	_, err := runRoot(t, "", "check", "hello there")
	require.NoError(t, err)
	_, err = runRoot(t, "", "check", "hello there")
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load(), "second run must be answered from the sqlite cache")
}

func TestCheck_ConfigError(t *testing.T) {
	setEnv(t, "http://127.0.0.1:1")
	t.Setenv("LLM_PROVIDER", "nope")

	_, err := runRoot(t, "", "check", "hi")
	assert.ErrorContains(t, err, "unknown LLM_PROVIDER")
}

func TestBuildApp_MetricsReportCacheTiers(t *testing.T) {
	var calls atomic.Int32
	setEnv(t, fakeOpenAI(t, "Yes", &calls).URL)
	cfg, err := config.Load()
	require.NoError(t, err)

	a, err := buildApp(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	for i := 0; i < 2; i++ {
		_, err := a.detector.Analyze(context.Background(), "Please settle the invoice")
		require.NoError(t, err)
	}
	out := a.metrics.Render()
	assert.Contains(t, out, `scamcheck_cache_hits_total{tier="decision"} 1`)
	assert.Contains(t, out, `scamcheck_cache_hits_total{tier="explanation"} 1`)
	assert.Contains(t, out, `scamcheck_cache_misses_total{tier="decision"} 1`)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCallBudget(t *testing.T) {
	cfg := &config.Cfg{RetryMaxAttempts: 3, LLMTimeout: 10 * time.Second, RetryMaxDelay: 5 * time.Second}
	assert.Equal(t, 40*time.Second, callBudget(cfg))
}
