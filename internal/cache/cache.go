// Package cache stores model answers keyed by message text so that the same
// message never costs two API calls. There are two tiers: the yes/no
// decision and the explanation text.
package cache

import (
	"context"
	"encoding/hex"
	"errors"
	"log/slog"
	"sync/atomic"

	"golang.org/x/crypto/blake2b"
)

// Tier separates the two kinds of cached answers.
type Tier string

const (
	TierDecision    Tier = "decision"
	TierExplanation Tier = "explanation"
)

// Store is a flat key-value backend. Implementations must be safe for
// concurrent use.
type Store interface {
	Get(ctx context.Context, tier Tier, key string) (string, bool, error)
	Put(ctx context.Context, tier Tier, key, value string) error
	Len(ctx context.Context) (int, error)
	Close() error
}

// Key derives the cache key for a message: hex BLAKE2b-256 of the exact text.
func Key(message string) string {
	sum := blake2b.Sum256([]byte(message))
	return hex.EncodeToString(sum[:])
}

// Stats is a snapshot of hit/miss counters.
type Stats struct {
	DecisionHits      uint64 `json:"decision_hits"`
	DecisionMisses    uint64 `json:"decision_misses"`
	ExplanationHits   uint64 `json:"explanation_hits"`
	ExplanationMisses uint64 `json:"explanation_misses"`
	Entries           int    `json:"entries"`
}

type tierCounters struct {
	hits   atomic.Uint64
	misses atomic.Uint64
}

// Cache fronts a Store with per-tier statistics. Backend errors degrade to
// a miss (on Get) or are logged and dropped (on Put): the cache is never the
// reason an analysis fails.
type Cache struct {
	store       Store
	decision    tierCounters
	explanation tierCounters
}

// New wraps store.
func New(store Store) *Cache {
	return &Cache{store: store}
}

func (c *Cache) counters(tier Tier) *tierCounters {
	if tier == TierExplanation {
		return &c.explanation
	}
	return &c.decision
}

// Get looks up the answer for message in tier.
func (c *Cache) Get(ctx context.Context, tier Tier, message string) (string, bool) {
	v, ok, err := c.store.Get(ctx, tier, Key(message))
	if err != nil {
		slog.Warn("cache: get failed, treating as miss", "tier", tier, "err", err)
		ok = false
	}
	if ok {
		c.counters(tier).hits.Add(1)
	} else {
		c.counters(tier).misses.Add(1)
	}
	return v, ok
}

// Put records the answer for message in tier.
func (c *Cache) Put(ctx context.Context, tier Tier, message, value string) {
	if err := c.store.Put(ctx, tier, Key(message), value); err != nil {
		slog.Warn("cache: put failed", "tier", tier, "err", err)
	}
}

// GetDecision returns the cached scam decision for message.
func (c *Cache) GetDecision(ctx context.Context, message string) (scam bool, ok bool) {
	v, ok := c.Get(ctx, TierDecision, message)
	if !ok {
		return false, false
	}
	switch v {
	case "yes":
		return true, true
	case "no":
		return false, true
	}
	slog.Warn("cache: ignoring malformed decision", "value", v)
	return false, false
}

// PutDecision records the scam decision for message.
func (c *Cache) PutDecision(ctx context.Context, message string, scam bool) {
	v := "no"
	if scam {
		v = "yes"
	}
	c.Put(ctx, TierDecision, message, v)
}

// Stats returns the current counters and entry count.
func (c *Cache) Stats(ctx context.Context) Stats {
	n, err := c.store.Len(ctx)
	if err != nil {
		slog.Warn("cache: len failed", "err", err)
	}
	return Stats{
		DecisionHits:      c.decision.hits.Load(),
		DecisionMisses:    c.decision.misses.Load(),
		ExplanationHits:   c.explanation.hits.Load(),
		ExplanationMisses: c.explanation.misses.Load(),
		Entries:           n,
	}
}

// Close closes the backing store.
func (c *Cache) Close() error {
	if c == nil || c.store == nil {
		return nil
	}
	return c.store.Close()
}

// ErrClosed is returned by stores used after Close.
var ErrClosed = errors.New("cache: store closed")
