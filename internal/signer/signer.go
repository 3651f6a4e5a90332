// Package signer signs requests for the Gonka inference network and keeps
// the pool of wallets used to do so.
package signer

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
)

// Signer produces secp256k1 ECDSA signatures in the format Gonka nodes
// verify: base64(r || s), 64 bytes, low-S.
type Signer struct {
	key *ecdsa.PrivateKey
	now func() time.Time
}

// New creates a Signer from a hex-encoded private key (0x prefix optional).
func New(hexKey string) (*Signer, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("signer: invalid hex key: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("signer: key must be 32 bytes, got %d", len(raw))
	}
	key, err := crypto.ToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("signer: %w", err)
	}
	return &Signer{key: key, now: time.Now}, nil
}

// PublicKey returns the uncompressed 65-byte public key.
func (s *Signer) PublicKey() []byte {
	return crypto.FromECDSAPub(&s.key.PublicKey)
}

// Sign returns the signature header value and the nanosecond timestamp that
// was signed over.
//
//	input  = hex(SHA256(payload)) + decimal(ts_ns) + transferAddress
//	digest = SHA256(input)
//
// crypto.Sign is deterministic (RFC 6979) and already low-S normalised; the
// trailing recovery byte is dropped.
func (s *Signer) Sign(payload []byte, transferAddress string) (string, int64, error) {
	ts := s.now().UnixNano()
	digest := Digest(payload, ts, transferAddress)

	sig, err := crypto.Sign(digest, s.key)
	if err != nil {
		return "", 0, fmt.Errorf("signer: sign: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig[:64]), ts, nil
}

// Digest computes the message hash that Sign signs.
func Digest(payload []byte, tsNano int64, transferAddress string) []byte {
	payloadHash := sha256.Sum256(payload)
	input := hex.EncodeToString(payloadHash[:]) + strconv.FormatInt(tsNano, 10) + transferAddress
	sum := sha256.Sum256([]byte(input))
	return sum[:]
}
