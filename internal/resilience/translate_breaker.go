package resilience

import (
	"context"

	"github.com/voicebridge-ai/voicebridge/pkg/translate"
)

// GuardedProvider wraps a [translate.Provider] with its own circuit breaker.
// The translator pool prefers providers whose breaker is not open when
// picking a round-robin target, so a dead endpoint stops eating retry
// budget until its reset timeout elapses.
type GuardedProvider struct {
	inner   translate.Provider
	breaker *CircuitBreaker
}

// Compile-time interface assertion.
var _ translate.Provider = (*GuardedProvider)(nil)

// Guard wraps provider with a breaker configured from cfg. cfg.Name defaults
// to the provider's own name.
func Guard(provider translate.Provider, cfg CircuitBreakerConfig) *GuardedProvider {
	if cfg.Name == "" {
		cfg.Name = provider.Name()
	}
	return &GuardedProvider{
		inner:   provider,
		breaker: NewCircuitBreaker(cfg),
	}
}

// Name implements translate.Provider.
func (g *GuardedProvider) Name() string { return g.inner.Name() }

// Chat forwards to the wrapped provider when the breaker allows it; otherwise
// it fails fast with [ErrCircuitOpen].
func (g *GuardedProvider) Chat(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if err := g.breaker.Allow(); err != nil {
		return "", err
	}
	out, err := g.inner.Chat(ctx, systemPrompt, userPrompt)
	g.breaker.Record(err)
	return out, err
}

// Healthy reports whether the breaker currently admits calls.
func (g *GuardedProvider) Healthy() bool {
	return g.breaker.State() != StateOpen
}
