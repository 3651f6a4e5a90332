package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gonkalabs/scamcheck/internal/cache"
	"github.com/gonkalabs/scamcheck/internal/config"
	"github.com/gonkalabs/scamcheck/internal/detector"
	"github.com/gonkalabs/scamcheck/internal/llm"
	"github.com/gonkalabs/scamcheck/internal/metrics"
	"github.com/gonkalabs/scamcheck/internal/retry"
	"github.com/gonkalabs/scamcheck/internal/sanitize"
	"github.com/gonkalabs/scamcheck/internal/signer"
	"github.com/gonkalabs/scamcheck/internal/upstream"
)

// app holds everything built from configuration.
type app struct {
	cfg      *config.Cfg
	detector *detector.Detector
	metrics  *metrics.Collector
}

func (a *app) Close() error { return a.detector.Cache().Close() }

// buildApp wires the detector and its collaborators from cfg.
func buildApp(ctx context.Context, cfg *config.Cfg) (*app, error) {
	client, err := newLLMClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err := newStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var san *sanitize.Sanitizer
	if cfg.Redact {
		san = sanitize.New(sanitize.DefaultPatterns())
		slog.Info("redaction enabled")
	}

	policy := retry.DefaultPolicy()
	policy.MaxAttempts = cfg.RetryMaxAttempts
	policy.BaseDelay = cfg.RetryBaseDelay
	policy.MaxDelay = cfg.RetryMaxDelay

	m := metrics.New()
	d := detector.New(client, detector.Options{
		Cache:       cache.New(store),
		Retry:       policy,
		Sanitizer:   san,
		Metrics:     m,
		CallTimeout: callBudget(cfg),
	})
	m.SetCacheSource(func() (map[string]uint64, map[string]uint64) {
		st := d.Cache().Stats(context.Background())
		hits := map[string]uint64{
			string(cache.TierDecision):    st.DecisionHits,
			string(cache.TierExplanation): st.ExplanationHits,
		}
		misses := map[string]uint64{
			string(cache.TierDecision):    st.DecisionMisses,
			string(cache.TierExplanation): st.ExplanationMisses,
		}
		return hits, misses
	})
	return &app{cfg: cfg, detector: d, metrics: m}, nil
}

// callBudget is the longest one model call may take with every retry.
func callBudget(cfg *config.Cfg) time.Duration {
	n := time.Duration(cfg.RetryMaxAttempts)
	return n*cfg.LLMTimeout + (n-1)*cfg.RetryMaxDelay
}

func newLLMClient(ctx context.Context, cfg *config.Cfg) (llm.Client, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return llm.NewOpenAI(cfg.OpenAIBaseURL, cfg.OpenAIKey, cfg.Model, cfg.LLMTimeout), nil
	case config.ProviderGemini:
		return llm.NewGemini(ctx, cfg.GeminiKey, cfg.Model)
	case config.ProviderGonka:
		return newGonkaClient(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

func newGonkaClient(ctx context.Context, cfg *config.Cfg) (llm.Client, error) {
	var wallets []signer.Wallet
	for i, wc := range cfg.Wallets {
		s, err := signer.New(wc.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("wallet %d: %w", i+1, err)
		}
		wallets = append(wallets, signer.Wallet{Signer: s, Address: wc.Address})
	}
	pool, err := signer.NewPool(wallets)
	if err != nil {
		return nil, err
	}

	up := upstream.New(cfg.SourceURL, pool, upstream.DefaultTransferAgents, cfg.LLMTimeout)

	dctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := up.DiscoverEndpoints(dctx); err != nil {
		return nil, fmt.Errorf("endpoint discovery: %w", err)
	}
	slog.Info("gonka endpoints discovered", "count", len(up.Endpoints()), "wallets", pool.Len())
	return llm.NewGonka(up, cfg.Model), nil
}

func newStore(ctx context.Context, cfg *config.Cfg) (cache.Store, error) {
	if cfg.CachePath == "" {
		return cache.NewMemory(cfg.CacheMaxEntries, cfg.CacheTTL), nil
	}
	s, err := cache.OpenSQLite(cfg.CachePath, cfg.CacheTTL)
	if err != nil {
		return nil, err
	}
	if n, err := s.Purge(ctx); err != nil {
		slog.Warn("cache purge failed", "err", err)
	} else if n > 0 {
		slog.Info("expired cache entries purged", "count", n)
	}
	slog.Info("persistent cache opened", "path", cfg.CachePath)
	return s, nil
}
