// Package mock provides a scripted asr.Engine for tests.
package mock

import (
	"context"
	"sync"

	"github.com/voicebridge-ai/voicebridge/pkg/asr"
)

// Compile-time assertion that Engine satisfies asr.Engine.
var _ asr.Engine = (*Engine)(nil)

// Response is one scripted Transcribe result.
type Response struct {
	Segments []asr.Segment
	Info     asr.Info
	Err      error
}

// Engine is a scripted asr.Engine. Responses are consumed in FIFO order; when
// the script is exhausted, Transcribe returns empty results (no speech).
// All methods are safe for concurrent use.
type Engine struct {
	mu        sync.Mutex
	responses []Response
	calls     []asr.Request
	closed    bool
}

// New returns an Engine with an empty script.
func New() *Engine {
	return &Engine{}
}

// Enqueue appends scripted responses.
func (e *Engine) Enqueue(responses ...Response) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.responses = append(e.responses, responses...)
}

// Transcribe records the request and pops the next scripted response.
func (e *Engine) Transcribe(_ context.Context, req asr.Request) ([]asr.Segment, asr.Info, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.calls = append(e.calls, req)
	if len(e.responses) == 0 {
		return nil, asr.Info{Language: req.Language}, nil
	}
	resp := e.responses[0]
	e.responses = e.responses[1:]
	return resp.Segments, resp.Info, resp.Err
}

// Close marks the engine closed.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (e *Engine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Calls returns a copy of all recorded requests.
func (e *Engine) Calls() []asr.Request {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]asr.Request, len(e.calls))
	copy(out, e.calls)
	return out
}

// CallCount returns how many Transcribe calls have been recorded.
func (e *Engine) CallCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}
