// Package detector decides whether a message is a scam and, if so, asks the
// model to explain why. It strings together the regex heuristic, the answer
// cache and retried model calls.
package detector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/gonkalabs/scamcheck/internal/cache"
	"github.com/gonkalabs/scamcheck/internal/heuristic"
	"github.com/gonkalabs/scamcheck/internal/llm"
	"github.com/gonkalabs/scamcheck/internal/metrics"
	"github.com/gonkalabs/scamcheck/internal/retry"
	"github.com/gonkalabs/scamcheck/internal/sanitize"
)

var (
	// ErrEmptyMessage is returned for blank input.
	ErrEmptyMessage = errors.New("detector: empty message")
	// ErrClassify wraps a classification call that failed after retries.
	ErrClassify = errors.New("detector: classification failed")
)

const (
	classifySystemPrompt = "You're a scam detection expert. Answer only 'Yes' or 'No'."
	classifyUserPrompt   = "Is this message a scam? %s"
	explainSystemPrompt  = "You're a cybersecurity expert."
	explainUserPrompt    = "Explain why this message might be a scam: '%s'"
)

// Source says where the verdict came from.
type Source string

const (
	SourceHeuristic Source = "heuristic"
	SourceModel     Source = "model"
	SourceCache     Source = "cache"
)

// Result is the outcome of one analysis.
type Result struct {
	ID                string               `json:"id"`
	Scam              bool                 `json:"scam"`
	Source            Source               `json:"source"`
	Heuristic         *heuristic.Match     `json:"heuristic,omitempty"`
	Explanation       string               `json:"explanation,omitempty"`
	ExplanationCached bool                 `json:"explanation_cached,omitempty"`
	ExplanationError  string               `json:"explanation_error,omitempty"`
	Redacted          int                  `json:"redacted,omitempty"`
	Redactions        []sanitize.Redaction `json:"redactions,omitempty"`
	Provider          string               `json:"provider"`
	ElapsedMS         int64                `json:"elapsed_ms"`
}

// Options configures a Detector. Zero values pick sensible defaults.
type Options struct {
	Cache     *cache.Cache        // nil: unbounded in-memory cache
	Retry     retry.Policy        // zero: retry.DefaultPolicy()
	Sanitizer *sanitize.Sanitizer // nil: messages are sent verbatim
	Metrics   *metrics.Collector  // nil: no counters
	Heuristic func(string) heuristic.Match

	// CallTimeout bounds one shared model call including its retries.
	// Zero means 5 minutes.
	CallTimeout time.Duration
}

// Detector is safe for concurrent use.
type Detector struct {
	llm       llm.Client
	cache     *cache.Cache
	retry     retry.Policy
	sanitizer *sanitize.Sanitizer
	metrics   *metrics.Collector
	heuristic func(string) heuristic.Match

	callTimeout time.Duration
	flight      singleflight.Group
}

// New creates a Detector around client.
func New(client llm.Client, opts Options) *Detector {
	d := &Detector{
		llm:       client,
		cache:     opts.Cache,
		retry:     opts.Retry,
		sanitizer: opts.Sanitizer,
		metrics:   opts.Metrics,
		heuristic: opts.Heuristic,

		callTimeout: opts.CallTimeout,
	}
	if d.cache == nil {
		d.cache = cache.New(cache.NewMemory(0, 0))
	}
	if d.retry.MaxAttempts == 0 {
		d.retry = retry.DefaultPolicy()
	}
	if d.heuristic == nil {
		d.heuristic = heuristic.Check
	}
	if d.callTimeout <= 0 {
		d.callTimeout = 5 * time.Minute
	}
	d.retry.ShouldRetry = llm.Retryable
	d.retry.OnRetry = func(attempt int, delay time.Duration, err error) {
		slog.Warn("detector: model call failed, backing off", "attempt", attempt, "delay", delay, "err", err)
		d.metrics.IncRetry()
	}
	return d
}

// Cache exposes the answer cache, e.g. for stats.
func (d *Detector) Cache() *cache.Cache { return d.cache }

// Analyze classifies message and explains it when it is a scam.
// A failing explanation does not fail the analysis; it is reported in
// Result.ExplanationError instead.
func (d *Detector) Analyze(ctx context.Context, message string) (*Result, error) {
	if strings.TrimSpace(message) == "" {
		return nil, ErrEmptyMessage
	}
	start := time.Now()
	res := &Result{ID: uuid.NewString(), Provider: d.llm.Name()}

	outbound, tm := message, (*sanitize.TokenMap)(nil)
	if d.sanitizer != nil {
		outbound, tm = d.sanitizer.Redact(message)
		res.Redacted = tm.Count()
		if !tm.IsEmpty() {
			res.Redactions = tm.Redactions()
		}
	}

	if m := d.heuristic(message); m.Hit {
		d.metrics.IncHeuristicHit()
		res.Scam, res.Source, res.Heuristic = true, SourceHeuristic, &m
	} else {
		scam, cached, err := d.classify(ctx, message, outbound)
		if err != nil {
			slog.Error("detector: classification failed", "id", res.ID, "err", err)
			return nil, fmt.Errorf("%w: %w", ErrClassify, err)
		}
		res.Scam, res.Source = scam, SourceModel
		if cached {
			res.Source = SourceCache
		}
	}

	if res.Scam {
		text, cached, err := d.explain(ctx, message, outbound, tm)
		if err != nil {
			slog.Warn("detector: explanation failed", "id", res.ID, "err", err)
			res.ExplanationError = fmt.Sprintf("failed to get explanation: %v", err)
		} else {
			res.Explanation, res.ExplanationCached = text, cached
		}
	}

	res.ElapsedMS = time.Since(start).Milliseconds()
	d.metrics.IncAnalysis(res.Scam)
	slog.Info("detector: analysed",
		"id", res.ID,
		"scam", res.Scam,
		"source", res.Source,
		"provider", res.Provider,
		"elapsed_ms", res.ElapsedMS,
	)
	return res, nil
}

// classify returns the decision for message, consulting the cache first.
// outbound is the text actually sent to the model.
func (d *Detector) classify(ctx context.Context, message, outbound string) (scam, cached bool, err error) {
	if scam, ok := d.cache.GetDecision(ctx, message); ok {
		return scam, true, nil
	}
	v, err := d.shared(ctx, "decision:"+cache.Key(message), func(ctx context.Context) (any, error) {
		reply, err := d.complete(ctx, "classify", classifySystemPrompt, fmt.Sprintf(classifyUserPrompt, outbound))
		if err != nil {
			return false, err
		}
		scam := ParseDecision(reply)
		slog.Debug("detector: model decision", "reply", reply, "scam", scam)
		d.cache.PutDecision(ctx, message, scam)
		return scam, nil
	})
	if err != nil {
		return false, false, err
	}
	return v.(bool), false, nil
}

// explain returns the explanation for message, consulting the cache first.
func (d *Detector) explain(ctx context.Context, message, outbound string, tm *sanitize.TokenMap) (text string, cached bool, err error) {
	if text, ok := d.cache.Get(ctx, cache.TierExplanation, message); ok {
		return text, true, nil
	}
	v, err := d.shared(ctx, "explanation:"+cache.Key(message), func(ctx context.Context) (any, error) {
		reply, err := d.complete(ctx, "explain", explainSystemPrompt, fmt.Sprintf(explainUserPrompt, outbound))
		if err != nil {
			return "", err
		}
		reply = tm.Restore(reply)
		d.cache.Put(ctx, cache.TierExplanation, message, reply)
		return reply, nil
	})
	if err != nil {
		return "", false, err
	}
	return v.(string), false, nil
}

// shared runs fn once for all concurrent callers with the same key. fn runs
// detached from the caller that started it, bounded by callTimeout, so one
// caller going away does not fail the others; each caller stops waiting when
// its own ctx is done. An abandoned call still completes and fills the cache.
func (d *Detector) shared(ctx context.Context, key string, fn func(ctx context.Context) (any, error)) (any, error) {
	ch := d.flight.DoChan(key, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.callTimeout)
		defer cancel()
		return fn(fctx)
	})
	select {
	case r := <-ch:
		return r.Val, r.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// complete runs one model call under the retry policy.
func (d *Detector) complete(ctx context.Context, purpose, systemPrompt, userPrompt string) (string, error) {
	var reply string
	err := retry.Do(ctx, d.retry, func(ctx context.Context) error {
		d.metrics.IncLLMCall(purpose)
		out, err := d.llm.Complete(ctx, systemPrompt, userPrompt)
		if err != nil {
			return err
		}
		reply = llm.CleanReply(out)
		if reply == "" {
			return llm.ErrEmptyReply
		}
		return nil
	})
	if err != nil {
		d.metrics.IncLLMError(purpose)
		return "", err
	}
	return reply, nil
}

var yesWordRe = regexp.MustCompile(`(?i)\byes\b`)

// ParseDecision interprets the model's yes/no reply. The first word
// decides; otherwise any standalone "yes" counts as a scam verdict.
func ParseDecision(reply string) bool {
	words := strings.FieldsFunc(strings.ToLower(reply), func(r rune) bool { return !unicode.IsLetter(r) })
	if len(words) > 0 {
		switch words[0] {
		case "yes":
			return true
		case "no":
			return false
		}
	}
	return yesWordRe.MatchString(reply)
}
