// Package metrics keeps process counters and serves them in the Prometheus
// text exposition format.
package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Collector is a minimal Prometheus-compatible counter set. A nil
// *Collector is valid and records nothing.
type Collector struct {
	startedAt time.Time

	analyses      atomic.Uint64
	scams         atomic.Uint64
	heuristicHits atomic.Uint64
	retries       atomic.Uint64

	llmCalls  sync.Map // purpose -> *atomic.Uint64
	llmErrors sync.Map // purpose -> *atomic.Uint64

	cacheStats func() (hits, misses map[string]uint64)
}

// New creates a Collector.
func New() *Collector {
	return &Collector{startedAt: time.Now().UTC()}
}

// IncAnalysis records one finished analysis.
func (c *Collector) IncAnalysis(scam bool) {
	if c == nil {
		return
	}
	c.analyses.Add(1)
	if scam {
		c.scams.Add(1)
	}
}

// IncHeuristicHit records a regex short-circuit.
func (c *Collector) IncHeuristicHit() {
	if c == nil {
		return
	}
	c.heuristicHits.Add(1)
}

// IncRetry records one backoff sleep.
func (c *Collector) IncRetry() {
	if c == nil {
		return
	}
	c.retries.Add(1)
}

// IncLLMCall records a model call for purpose ("classify", "explain").
func (c *Collector) IncLLMCall(purpose string) {
	if c == nil {
		return
	}
	inc(&c.llmCalls, purpose)
}

// IncLLMError records a model call that failed after retries.
func (c *Collector) IncLLMError(purpose string) {
	if c == nil {
		return
	}
	inc(&c.llmErrors, purpose)
}

// SetCacheSource registers a callback that reports cache hits and misses
// per tier at scrape time.
func (c *Collector) SetCacheSource(fn func() (hits, misses map[string]uint64)) {
	if c == nil {
		return
	}
	c.cacheStats = fn
}

func inc(m *sync.Map, key string) {
	if key == "" {
		key = "unknown"
	}
	ptr, _ := m.LoadOrStore(key, &atomic.Uint64{})
	ptr.(*atomic.Uint64).Add(1)
}

func snapshot(m *sync.Map) map[string]uint64 {
	out := map[string]uint64{}
	m.Range(func(k, v any) bool {
		out[k.(string)] = v.(*atomic.Uint64).Load()
		return true
	})
	return out
}

// Handler serves the counters.
func (c *Collector) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(c.Render()))
	})
}

// Render returns the exposition text.
func (c *Collector) Render() string {
	if c == nil {
		return ""
	}
	var b strings.Builder

	counter(&b, "scamcheck_analyses_total", "Messages analysed.", c.analyses.Load())
	counter(&b, "scamcheck_scams_total", "Messages judged to be scams.", c.scams.Load())
	counter(&b, "scamcheck_heuristic_hits_total", "Messages flagged by the regex heuristic.", c.heuristicHits.Load())
	counter(&b, "scamcheck_llm_retries_total", "Backoff sleeps before retrying a model call.", c.retries.Load())
	labelled(&b, "scamcheck_llm_calls_total", "Model calls by purpose.", "purpose", snapshot(&c.llmCalls))
	labelled(&b, "scamcheck_llm_errors_total", "Model calls failed after retries, by purpose.", "purpose", snapshot(&c.llmErrors))

	if c.cacheStats != nil {
		hits, misses := c.cacheStats()
		labelled(&b, "scamcheck_cache_hits_total", "Cache hits by tier.", "tier", hits)
		labelled(&b, "scamcheck_cache_misses_total", "Cache misses by tier.", "tier", misses)
	}

	fmt.Fprintf(&b, "# HELP scamcheck_uptime_seconds Seconds since start.\n# TYPE scamcheck_uptime_seconds gauge\nscamcheck_uptime_seconds %d\n",
		int64(time.Since(c.startedAt).Seconds()))
	return b.String()
}

func counter(b *strings.Builder, name, help string, v uint64) {
	fmt.Fprintf(b, "# HELP %s %s\n# TYPE %s counter\n%s %d\n", name, help, name, name, v)
}

func labelled(b *strings.Builder, name, help, label string, vals map[string]uint64) {
	fmt.Fprintf(b, "# HELP %s %s\n# TYPE %s counter\n", name, help, name)
	keys := make([]string, 0, len(vals))
	for k := range vals {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(b, "%s{%s=%q} %d\n", name, label, k, vals[k])
	}
}
