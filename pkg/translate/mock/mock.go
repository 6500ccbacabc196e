// Package mock provides a scripted translate.Provider for tests.
package mock

import (
	"context"
	"sync"

	"github.com/voicebridge-ai/voicebridge/pkg/translate"
)

// Compile-time assertion that Provider satisfies translate.Provider.
var _ translate.Provider = (*Provider)(nil)

// Call records one Chat invocation.
type Call struct {
	SystemPrompt string
	UserPrompt   string
}

// Response is one scripted Chat result.
type Response struct {
	Content string
	Err     error
}

// Provider is a scripted translate.Provider. Responses are consumed in FIFO
// order; when the script is exhausted, the last response repeats. All methods
// are safe for concurrent use.
type Provider struct {
	name string

	mu        sync.Mutex
	responses []Response
	calls     []Call
}

// New returns a Provider with the given name and an empty script.
func New(name string) *Provider {
	return &Provider{name: name}
}

// Enqueue appends scripted responses.
func (p *Provider) Enqueue(responses ...Response) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.responses = append(p.responses, responses...)
}

// Name implements translate.Provider.
func (p *Provider) Name() string { return p.name }

// Chat records the call and pops the next scripted response. The final
// response is sticky so a mock configured with one success can serve any
// number of calls.
func (p *Provider) Chat(_ context.Context, systemPrompt, userPrompt string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls = append(p.calls, Call{SystemPrompt: systemPrompt, UserPrompt: userPrompt})
	if len(p.responses) == 0 {
		return "", nil
	}
	resp := p.responses[0]
	if len(p.responses) > 1 {
		p.responses = p.responses[1:]
	}
	return resp.Content, resp.Err
}

// Calls returns a copy of all recorded invocations.
func (p *Provider) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Call, len(p.calls))
	copy(out, p.calls)
	return out
}

// CallCount returns how many Chat calls have been recorded.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}
