package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	c := New()
	c.IncAnalysis(true)
	c.IncAnalysis(false)
	c.IncHeuristicHit()
	c.IncRetry()
	c.IncLLMCall("classify")
	c.IncLLMCall("classify")
	c.IncLLMCall("explain")
	c.IncLLMError("")
	c.SetCacheSource(func() (map[string]uint64, map[string]uint64) {
		return map[string]uint64{"decision": 3}, map[string]uint64{"decision": 1, "explanation": 2}
	})

	out := c.Render()
	assert.Contains(t, out, "scamcheck_analyses_total 2\n")
	assert.Contains(t, out, "scamcheck_scams_total 1\n")
	assert.Contains(t, out, "scamcheck_heuristic_hits_total 1\n")
	assert.Contains(t, out, "scamcheck_llm_retries_total 1\n")
	assert.Contains(t, out, `scamcheck_llm_calls_total{purpose="classify"} 2`)
	assert.Contains(t, out, `scamcheck_llm_calls_total{purpose="explain"} 1`)
	assert.Contains(t, out, `scamcheck_llm_errors_total{purpose="unknown"} 1`)
	assert.Contains(t, out, `scamcheck_cache_hits_total{tier="decision"} 3`)
	assert.Contains(t, out, `scamcheck_cache_misses_total{tier="explanation"} 2`)
	assert.Contains(t, out, "# TYPE scamcheck_uptime_seconds gauge")
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	c.IncAnalysis(true)
	c.IncLLMCall("classify")
	assert.Empty(t, c.Render())
}

func TestHandler(t *testing.T) {
	c := New()
	c.IncAnalysis(false)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	assert.Contains(t, string(body), "scamcheck_analyses_total 1")
}
