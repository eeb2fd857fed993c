// CLAUDE:SUMMARY Structured analysis orchestrator: ordered provider fallback, schema validation, injected rate limiting.
// Package analyzer derives a structured object from extracted document text
// by calling an external language-model provider.
//
// Providers are tried in order until one returns a schema-conforming result
// or the list is exhausted. The worker sees a single logical call: it never
// learns which provider answered. No retries happen inside this package; a
// failed attempt is a failed attempt, and retry policy lives with the caller.
package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"
)

// ErrNoProviders is returned when the analyzer was built without any provider.
var ErrNoProviders = errors.New("analyzer: no providers configured")

// Result is the best-effort structured shape derived from document text.
// Every key is independently optional.
type Result struct {
	DocumentType string   `json:"documentType,omitempty"`
	Entities     []string `json:"entities,omitempty"`
	Topics       []string `json:"topics,omitempty"`
	Deadlines    []string `json:"deadlines,omitempty"`
	ActionItems  []string `json:"actionItems,omitempty"`
}

// Provider is one language-model backend. Complete sends a system and user
// message and returns the raw text content of the model's reply.
type Provider interface {
	Name() string
	Complete(ctx context.Context, system, user string) (string, error)
}

// Analyzer tries an ordered list of providers and validates every response
// against the result schema before accepting it.
type Analyzer struct {
	providers []Provider
	limiter   *rate.Limiter
	timeout   time.Duration
	maxInput  int
	log       *slog.Logger
}

// Options configures an Analyzer.
type Options struct {
	// Timeout bounds each individual provider call. Zero means 60s.
	Timeout time.Duration
	// MaxInput bounds the text prefix handed to a provider, in bytes.
	// Zero means 12000.
	MaxInput int
	// Limiter throttles outbound provider calls. Nil means unlimited.
	Limiter *rate.Limiter
	// Logger receives per-attempt diagnostics. Nil means slog.Default.
	Logger *slog.Logger
}

// New creates an Analyzer over the given providers, tried in order.
func New(providers []Provider, opts Options) *Analyzer {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.MaxInput <= 0 {
		opts.MaxInput = 12000
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Analyzer{
		providers: providers,
		limiter:   opts.Limiter,
		timeout:   opts.Timeout,
		maxInput:  opts.MaxInput,
		log:       opts.Logger,
	}
}

// Analyze derives a structured result from text. The returned bytes are the
// winning provider's validated object re-encoded through Result, suitable
// for direct persistence.
func (a *Analyzer) Analyze(ctx context.Context, text string) ([]byte, error) {
	if len(a.providers) == 0 {
		return nil, ErrNoProviders
	}

	input := Truncate(text, a.maxInput)
	system := systemPrompt()
	user := userPrompt(input)

	var lastErr error
	for _, p := range a.providers {
		raw, err := a.attempt(ctx, p, system, user)
		if err == nil {
			return raw, nil
		}
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		a.log.Warn("analyzer provider failed",
			"provider", p.Name(), "error", err)
		lastErr = err
	}
	return nil, fmt.Errorf("all providers failed: %w", lastErr)
}

func (a *Analyzer) attempt(ctx context.Context, p Provider, system, user string) ([]byte, error) {
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	content, err := p.Complete(callCtx, system, user)
	if err != nil {
		return nil, err
	}

	raw := []byte(content)
	if err := validateResult(raw); err != nil {
		return nil, fmt.Errorf("response validation: %w", err)
	}

	// Re-encode through the typed shape so persisted JSON carries only the
	// recognized keys in a stable layout.
	var res Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	out, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}

	a.log.Info("analyzer provider ok",
		"provider", p.Name(),
		"input_len", len(user),
		"elapsed_ms", time.Since(start).Milliseconds())
	return out, nil
}

// Truncate returns the leading max bytes of s, backed off to the nearest
// rune boundary. Deterministic: the same input and limit always produce the
// identical prefix.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
