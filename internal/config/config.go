package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Supported LLM providers.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderGonka  = "gonka"
)

var defaultModels = map[string]string{
	ProviderOpenAI: "gpt-3.5-turbo",
	ProviderGemini: "gemini-2.0-flash",
	ProviderGonka:  "Qwen/Qwen3-235B-A22B-Instruct-2507-FP8",
}

// WalletCfg holds the credentials for a single Gonka wallet.
type WalletCfg struct {
	PrivateKey string // hex secp256k1 private key (with or without 0x)
	Address    string // requester address sent with each request
}

// Cfg holds all runtime configuration loaded from environment variables.
type Cfg struct {
	// Model provider
	Provider   string        // LLM_PROVIDER=openai|gemini|gonka
	Model      string        // LLM_MODEL, defaults per provider
	LLMTimeout time.Duration // LLM_TIMEOUT_SECONDS=60, per model call

	// OpenAI-compatible chat completions
	OpenAIKey     string // OPENAI_API_KEY
	OpenAIBaseURL string // OPENAI_BASE_URL=https://api.openai.com/v1

	// Gemini
	GeminiKey string // GEMINI_API_KEY

	// Gonka. Populated from GONKA_WALLETS (multi) or GONKA_PRIVATE_KEY (single).
	Wallets   []WalletCfg
	SourceURL string // GONKA_SOURCE_URL, e.g. http://node2.gonka.ai:8000

	// Retry around model calls
	RetryMaxAttempts int           // RETRY_MAX_ATTEMPTS=5
	RetryBaseDelay   time.Duration // RETRY_BASE_DELAY_MS=1000
	RetryMaxDelay    time.Duration // RETRY_MAX_DELAY_MS=30000

	// Answer cache
	CachePath       string        // CACHE_PATH, empty keeps the cache in memory
	CacheMaxEntries int           // CACHE_MAX_ENTRIES=1024, memory cache only
	CacheTTL        time.Duration // CACHE_TTL_SECONDS=0 (0 = never expire)

	// Privacy
	Redact bool // REDACT=true masks emails, phones, cards and IBANs before model calls

	// Server
	ListenAddr string     // PORT=8080
	LogLevel   slog.Level // LOG_LEVEL=debug|info|warn|error
}

// Load reads .env (if present) then environment variables and returns Cfg.
func Load() (*Cfg, error) {
	// Best-effort: load .env from current directory
	_ = godotenv.Load()

	provider := strings.ToLower(strings.TrimSpace(os.Getenv("LLM_PROVIDER")))
	if provider == "" {
		provider = ProviderOpenAI
	}
	model, ok := defaultModels[provider]
	if !ok {
		return nil, fmt.Errorf("config: unknown LLM_PROVIDER %q (want openai, gemini or gonka)", provider)
	}
	if m := strings.TrimSpace(os.Getenv("LLM_MODEL")); m != "" {
		model = m
	}

	cfg := &Cfg{
		Provider:      provider,
		Model:         model,
		OpenAIKey:     strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		OpenAIBaseURL: strings.TrimRight(envOr("OPENAI_BASE_URL", "https://api.openai.com/v1"), "/"),
		GeminiKey:     strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		CachePath:     strings.TrimSpace(os.Getenv("CACHE_PATH")),
		Redact:        envBool("REDACT"),
		ListenAddr:    ":" + envOr("PORT", "8080"),
	}

	var err error
	if cfg.LLMTimeout, err = envSeconds("LLM_TIMEOUT_SECONDS", 60); err != nil {
		return nil, err
	}
	if cfg.RetryMaxAttempts, err = envInt("RETRY_MAX_ATTEMPTS", 5); err != nil {
		return nil, err
	}
	if cfg.RetryMaxAttempts < 1 {
		return nil, fmt.Errorf("config: RETRY_MAX_ATTEMPTS must be at least 1")
	}
	if cfg.RetryBaseDelay, err = envMillis("RETRY_BASE_DELAY_MS", 1000); err != nil {
		return nil, err
	}
	if cfg.RetryMaxDelay, err = envMillis("RETRY_MAX_DELAY_MS", 30000); err != nil {
		return nil, err
	}
	if cfg.CacheMaxEntries, err = envInt("CACHE_MAX_ENTRIES", 1024); err != nil {
		return nil, err
	}
	if cfg.CacheTTL, err = envSeconds("CACHE_TTL_SECONDS", 0); err != nil {
		return nil, err
	}
	if cfg.LogLevel, err = logLevel(os.Getenv("LOG_LEVEL")); err != nil {
		return nil, err
	}

	switch provider {
	case ProviderOpenAI:
		if cfg.OpenAIKey == "" {
			return nil, fmt.Errorf("config: OPENAI_API_KEY must be set for provider openai")
		}
	case ProviderGemini:
		if cfg.GeminiKey == "" {
			return nil, fmt.Errorf("config: GEMINI_API_KEY must be set for provider gemini")
		}
	case ProviderGonka:
		if cfg.Wallets, err = loadWallets(); err != nil {
			return nil, err
		}
		// Source URL: strip /v1 suffix so we have a bare node URL
		src := strings.TrimRight(envOr("GONKA_SOURCE_URL", "http://node2.gonka.ai:8000"), "/")
		cfg.SourceURL = strings.TrimSuffix(src, "/v1")
	}

	return cfg, nil
}

// loadWallets builds the wallet list from environment variables.
//
// Multi-wallet format (GONKA_WALLETS):
//
//	GONKA_WALLETS=privkey1:addr1,privkey2:addr2
//
// Each entry is "private_key:address" separated by commas.
//
// Single-wallet fallback:
//
//	GONKA_PRIVATE_KEY=... GONKA_ADDRESS=...
func loadWallets() ([]WalletCfg, error) {
	multi := strings.TrimSpace(os.Getenv("GONKA_WALLETS"))
	if multi != "" {
		return parseMultiWallets(multi)
	}

	pk := strings.TrimSpace(os.Getenv("GONKA_PRIVATE_KEY"))
	if pk == "" {
		return nil, fmt.Errorf("config: either GONKA_WALLETS or GONKA_PRIVATE_KEY must be set for provider gonka")
	}
	addr := strings.TrimSpace(os.Getenv("GONKA_ADDRESS"))
	return []WalletCfg{{PrivateKey: pk, Address: addr}}, nil
}

// parseMultiWallets parses "key1:addr1,key2:addr2" into WalletCfg slices.
func parseMultiWallets(raw string) ([]WalletCfg, error) {
	var wallets []WalletCfg
	for i, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		// Split on first colon only (private keys may have 0x prefix but no colons)
		pk, addr, _ := strings.Cut(part, ":")
		pk, addr = strings.TrimSpace(pk), strings.TrimSpace(addr)
		if pk == "" {
			return nil, fmt.Errorf("config: wallet entry %d has empty private key", i+1)
		}
		wallets = append(wallets, WalletCfg{PrivateKey: pk, Address: addr})
	}
	if len(wallets) == 0 {
		return nil, fmt.Errorf("config: GONKA_WALLETS is set but contains no valid entries")
	}
	return wallets, nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envBool(key string) bool {
	v := strings.TrimSpace(os.Getenv(key))
	return v == "1" || strings.EqualFold(v, "true")
}

func envInt(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("config: %s must be a non-negative integer, got %q", key, raw)
	}
	return n, nil
}

func envSeconds(key string, def int) (time.Duration, error) {
	n, err := envInt(key, def)
	return time.Duration(n) * time.Second, err
}

func envMillis(key string, def int) (time.Duration, error) {
	n, err := envInt(key, def)
	return time.Duration(n) * time.Millisecond, err
}

func logLevel(raw string) (slog.Level, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return slog.LevelInfo, nil
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(raw)); err != nil {
		return 0, fmt.Errorf("config: LOG_LEVEL: %w", err)
	}
	return l, nil
}
