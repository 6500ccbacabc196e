// Package asr defines the speech recognition engine interface and the
// process-wide Service that serializes inference across all sessions.
//
// An Engine wraps a Whisper-family model. The model is a heavyweight shared
// singleton: sessions never construct their own engine, they borrow the
// Service and submit chunks through it. The Service owns the mutex that
// serializes all Transcribe calls; concurrency of sessions does not imply
// concurrency of inference.
package asr

import (
	"context"
	"sync"
)

// SampleRate is the fixed input sample rate in Hz. All submitted audio must
// be mono float32 PCM at this rate.
const SampleRate = 16000

// Segment is a single recognised span, with times local to the submitted
// chunk (seconds from the start of the chunk).
type Segment struct {
	Start        float64
	End          float64
	Text         string
	NoSpeechProb float64
}

// Info carries per-call metadata from the engine.
type Info struct {
	// Language is the language the engine decoded with (detected when the
	// request left it empty).
	Language string

	// LanguageProbability is the engine's confidence in Language, in [0, 1].
	LanguageProbability float64
}

// Request describes one inference call.
type Request struct {
	// Samples is mono float32 PCM at [SampleRate].
	Samples []float32

	// Language is the source language code, or empty for auto-detection.
	Language string

	// Translate makes the engine translate to English while decoding
	// instead of transcribing in the source language.
	Translate bool

	// InitialPrompt biases decoding towards the given text.
	InitialPrompt string

	// VADFilter drops chunks that contain no detectable speech before
	// running the model.
	VADFilter bool

	// VADParameters holds engine-specific VAD tuning values.
	VADParameters map[string]any
}

// Engine is the abstraction over a speech recognition backend.
//
// Engines are NOT required to be safe for concurrent use; callers go through
// a [Service], which serializes access.
type Engine interface {
	// Transcribe runs inference over req.Samples and returns the ordered
	// sub-segments plus call metadata. A nil segment slice with a nil error
	// means the chunk contained no recognisable speech.
	Transcribe(ctx context.Context, req Request) ([]Segment, Info, error)

	// Close releases the model. No Transcribe calls may follow.
	Close() error
}

// Service wraps an [Engine] with the process-wide inference lock. It is safe
// for concurrent use; calls queue on the internal mutex in FIFO-ish order
// (Go mutexes are fair under contention since 1.9).
type Service struct {
	mu     sync.Mutex
	engine Engine
}

// NewService wraps engine. The Service takes ownership: closing the Service
// closes the engine.
func NewService(engine Engine) *Service {
	return &Service{engine: engine}
}

// Transcribe serializes and forwards to the underlying engine.
func (s *Service) Transcribe(ctx context.Context, req Request) ([]Segment, Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, Info{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Transcribe(ctx, req)
}

// Close releases the underlying engine. Concurrent in-flight Transcribe
// calls complete first.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Close()
}
