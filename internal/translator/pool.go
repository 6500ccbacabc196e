// Package translator implements the load-balanced translation pool: a set of
// interchangeable LLM providers rotated round-robin, a shared bounded rolling
// context of recent source texts, chunked target-language batching, and
// strict-JSON response validation with bounded retries.
package translator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/voicebridge-ai/voicebridge/internal/observe"
	"github.com/voicebridge-ai/voicebridge/internal/resilience"
	"github.com/voicebridge-ai/voicebridge/pkg/translate"
)

// ErrNoProviders is returned by [Pool.Translate] when the pool was built
// without any providers.
var ErrNoProviders = errors.New("translator: no providers configured")

// healthChecker is implemented by providers that expose circuit breaker
// health (see resilience.GuardedProvider). Providers without it are always
// considered healthy.
type healthChecker interface {
	Healthy() bool
}

// Config tunes a [Pool]. Zero values are replaced with defaults matching the
// config package.
type Config struct {
	// MaxAttempts bounds attempts per chunk, including the first. Default: 3.
	MaxAttempts int

	// RetryDelay is the pause between attempts. Default: 500ms.
	RetryDelay time.Duration

	// ChunkSize caps target languages per provider call. Default: 30.
	ChunkSize int

	// ContextDepth is how many recent source texts are kept as rolling
	// prompt context. Default: 3.
	ContextDepth int
}

// Pool is the load-balanced translator. It is safe for concurrent use; the
// mutex guards only the rolling context and the round-robin counter, never a
// network call.
type Pool struct {
	providers []translate.Provider
	cfg       Config
	metrics   *observe.Metrics

	mu         sync.Mutex
	contextBuf []string
	counter    int
}

// Option is a functional option for [NewPool].
type Option func(*Pool)

// WithMetrics attaches metric instruments to the pool. Without it the pool
// records into [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pool) { p.metrics = m }
}

// NewPool creates a Pool over the given providers. An empty provider list is
// allowed; such a pool rejects every Translate call with [ErrNoProviders].
func NewPool(providers []translate.Provider, cfg Config, opts ...Option) *Pool {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 30
	}
	if cfg.ContextDepth < 0 {
		cfg.ContextDepth = 0
	}
	p := &Pool{
		providers: providers,
		cfg:       cfg,
	}
	for _, o := range opts {
		o(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	return p
}

// Translate translates one finalized unit into every language in tgts and
// returns the merged map, which additionally carries the source-language
// pass-through (src → text). On failure the unit is gone: the caller must not
// resubmit, and no partial result is returned.
//
// Target languages are processed in chunks of at most cfg.ChunkSize, with
// all chunks in flight concurrently; one provider (chosen round-robin,
// preferring providers whose circuit breaker is not open) serves all chunks
// of a unit. The rolling context advances only after a fully successful unit.
func (p *Pool) Translate(ctx context.Context, text, src string, tgts []string) (map[string]string, error) {
	if len(p.providers) == 0 {
		return nil, ErrNoProviders
	}

	start := time.Now()
	provider, contextSnapshot := p.pick()

	var mergedMu sync.Mutex
	merged := make(map[string]string, len(tgts)+1)

	eg, egCtx := errgroup.WithContext(ctx)
	for _, chunk := range splitChunks(tgts, p.cfg.ChunkSize) {
		eg.Go(func() error {
			result, err := p.translateChunk(egCtx, provider, text, src, chunk, contextSnapshot)
			if err != nil {
				return err
			}
			mergedMu.Lock()
			defer mergedMu.Unlock()
			for lang, translated := range result {
				merged[lang] = translated
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		p.metrics.TranslationDrops.Add(ctx, 1)
		return nil, err
	}
	merged[src] = text

	p.remember(text)
	p.metrics.TranslationDuration.Record(ctx, time.Since(start).Seconds())
	return merged, nil
}

// translateChunk runs the retry loop for one chunk of target languages.
func (p *Pool) translateChunk(ctx context.Context, provider translate.Provider, text, src string, chunk []string, contextTexts []string) (map[string]string, error) {
	system := systemPrompt(src, chunk, contextTexts, exampleResponse(chunk))

	attempt := 0
	return resilience.Retry(ctx, resilience.RetryConfig{
		Name:        "translate/" + provider.Name(),
		MaxAttempts: p.cfg.MaxAttempts,
		Delay:       p.cfg.RetryDelay,
	}, func(ctx context.Context) (map[string]string, resilience.Outcome, error) {
		attempt++
		if attempt > 1 {
			p.metrics.RecordTranslationRetry(ctx, provider.Name())
		}

		raw, err := provider.Chat(ctx, system, text)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, resilience.OutcomeFatal, err
			}
			return nil, resilience.OutcomeRetryable, err
		}
		result, err := parseResponse(raw, chunk)
		if err != nil {
			slog.Debug("translator: invalid provider response",
				"provider", provider.Name(), "error", err)
			return nil, resilience.OutcomeRetryable, err
		}
		return result, resilience.OutcomeOK, nil
	})
}

// pick selects the provider for the next unit and snapshots the rolling
// context. Providers with an open circuit breaker are skipped unless all are
// open, in which case the round-robin choice stands and the breaker's
// half-open probing takes it from there.
func (p *Pool) pick() (translate.Provider, []string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.providers)
	idx := p.counter % n
	for off := range n {
		candidate := p.providers[(idx+off)%n]
		hc, ok := candidate.(healthChecker)
		if !ok || hc.Healthy() {
			idx = (idx + off) % n
			break
		}
	}
	p.counter++

	snapshot := make([]string, len(p.contextBuf))
	copy(snapshot, p.contextBuf)
	return p.providers[idx], snapshot
}

// remember appends text to the rolling context, evicting the oldest entry
// beyond the configured depth.
func (p *Pool) remember(text string) {
	if p.cfg.ContextDepth == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.contextBuf = append(p.contextBuf, text)
	if len(p.contextBuf) > p.cfg.ContextDepth {
		p.contextBuf = p.contextBuf[1:]
	}
}

// ContextSnapshot returns a copy of the current rolling context, oldest
// first. Intended for tests and diagnostics.
func (p *Pool) ContextSnapshot() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.contextBuf))
	copy(out, p.contextBuf)
	return out
}

// splitChunks slices langs into pieces of at most size elements.
func splitChunks(langs []string, size int) [][]string {
	var chunks [][]string
	for len(langs) > size {
		chunks = append(chunks, langs[:size])
		langs = langs[size:]
	}
	if len(langs) > 0 {
		chunks = append(chunks, langs)
	}
	return chunks
}

// systemPrompt builds the instruction block for one chunk.
func systemPrompt(src string, langs []string, contextTexts []string, example string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Expert translator: translate from %s to %s.\n", src, strings.Join(langs, ", "))
	b.WriteString("Rules:\n")
	b.WriteString("1. Return strict JSON keyed by ISO 2-letter language codes.\n")
	b.WriteString("2. Keep the exact structure shown in the example response.\n")
	b.WriteString("3. Preserve the original meaning without additions or commentary.\n")
	b.WriteString("4. Include every requested target language.\n")
	if len(contextTexts) > 0 {
		fmt.Fprintf(&b, "5. Use the previous sentences only as context for pronouns and terminology: %s\n",
			strings.Join(contextTexts, " "))
	}
	b.WriteString("\nExample response (strictly follow this format):\n")
	b.WriteString(example)
	return b.String()
}

// parseResponse validates the provider output: it must be a JSON object (or a
// JSON-encoded string containing one) with a top-level "translate" object
// carrying every requested language code.
func parseResponse(raw string, want []string) (map[string]string, error) {
	s := strings.TrimSpace(raw)

	var doc struct {
		Translate map[string]string `json:"translate"`
	}
	if err := json.Unmarshal([]byte(s), &doc); err != nil {
		// Some providers double-encode: a JSON string whose content is the
		// actual document.
		var inner string
		if err2 := json.Unmarshal([]byte(s), &inner); err2 != nil {
			return nil, fmt.Errorf("translator: response is not JSON: %w", err)
		}
		if err2 := json.Unmarshal([]byte(strings.TrimSpace(inner)), &doc); err2 != nil {
			return nil, fmt.Errorf("translator: nested response is not JSON: %w", err2)
		}
	}

	if doc.Translate == nil {
		return nil, errors.New(`translator: response has no "translate" object`)
	}
	// Keep exactly the requested languages; providers sometimes volunteer
	// extras and those must not leak into the broadcast map.
	out := make(map[string]string, len(want))
	for _, lang := range want {
		text, ok := doc.Translate[lang]
		if !ok {
			return nil, fmt.Errorf("translator: response is missing language %q", lang)
		}
		out[lang] = text
	}
	return out, nil
}
