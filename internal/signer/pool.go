package signer

import (
	"fmt"
	"log/slog"
	"sync/atomic"
)

// Wallet pairs a Signer with the requester address sent alongside it.
type Wallet struct {
	Signer  *Signer
	Address string
}

// Pool hands out wallets round-robin. Safe for concurrent use.
type Pool struct {
	wallets []Wallet
	counter atomic.Uint64
}

// NewPool requires at least one wallet.
func NewPool(wallets []Wallet) (*Pool, error) {
	if len(wallets) == 0 {
		return nil, fmt.Errorf("signer: pool needs at least one wallet")
	}
	for i, w := range wallets {
		slog.Debug("signer: wallet registered", "index", i, "address", w.Address)
	}
	return &Pool{wallets: wallets}, nil
}

// Next returns the next wallet.
func (p *Pool) Next() *Wallet {
	idx := p.counter.Add(1) - 1
	return &p.wallets[idx%uint64(len(p.wallets))]
}

// Len returns the number of wallets in the pool.
func (p *Pool) Len() int { return len(p.wallets) }
