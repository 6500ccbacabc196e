// Package whisper implements asr.Engine using the whisper.cpp CGO bindings.
// The whisper.cpp static library (libwhisper.a) and headers (whisper.h) must
// be available at link time via LIBRARY_PATH and C_INCLUDE_PATH environment
// variables.
//
// The model is loaded once and shared; a fresh whisper context is created per
// Transcribe call because contexts are not reusable across concurrent runs.
// Serialization across sessions is the caller's concern (see asr.Service).
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/voicebridge-ai/voicebridge/pkg/asr"
)

// Compile-time assertion that Engine satisfies asr.Engine.
var _ asr.Engine = (*Engine)(nil)

const (
	defaultThreads = 4

	// defaultVADThreshold is the RMS energy level (for float32 samples in
	// [-1, 1]) below which a chunk is treated as silence when VAD filtering
	// is requested. Roughly 300/32768 in 16-bit PCM units.
	defaultVADThreshold = 0.009
)

// Engine runs whisper.cpp inference over float32 mono PCM at 16 kHz.
type Engine struct {
	model    whisperlib.Model
	threads  uint
	beamSize int
}

// Option is a functional option for configuring an Engine.
type Option func(*Engine)

// WithThreads sets the number of CPU threads used per inference. Defaults to 4.
func WithThreads(n uint) Option {
	return func(e *Engine) { e.threads = n }
}

// WithBeamSize sets the decoder beam size. Zero keeps the binding default
// (greedy decoding).
func WithBeamSize(n int) Option {
	return func(e *Engine) { e.beamSize = n }
}

// New loads the whisper.cpp model from the given file path. The caller must
// call Close when the engine is no longer needed.
func New(modelPath string, opts ...Option) (*Engine, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	e := &Engine{
		model:   model,
		threads: defaultThreads,
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Close releases the whisper model.
func (e *Engine) Close() error {
	if e.model != nil {
		return e.model.Close()
	}
	return nil
}

// Transcribe implements asr.Engine. A request with an empty Language runs
// auto-detection; the detected language is reported in the returned Info.
func (e *Engine) Transcribe(ctx context.Context, req asr.Request) ([]asr.Segment, asr.Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, asr.Info{}, err
	}

	if req.VADFilter && !hasSpeech(req.Samples, vadThreshold(req.VADParameters)) {
		return nil, asr.Info{Language: req.Language}, nil
	}

	// Each context is single-use; the model is the shared part.
	wctx, err := e.model.NewContext()
	if err != nil {
		return nil, asr.Info{}, fmt.Errorf("whisper: create context: %w", err)
	}

	lang := req.Language
	if lang == "" {
		lang = "auto"
	}
	if err := wctx.SetLanguage(lang); err != nil {
		slog.Warn("whisper: failed to set language, decoding with default",
			"language", lang, "error", err)
	}
	wctx.SetTranslate(req.Translate)
	wctx.SetThreads(e.threads)
	if e.beamSize > 0 {
		wctx.SetBeamSize(e.beamSize)
	}
	if req.InitialPrompt != "" {
		wctx.SetInitialPrompt(req.InitialPrompt)
	}

	if err := wctx.Process(req.Samples, nil, nil, nil); err != nil {
		return nil, asr.Info{}, fmt.Errorf("whisper: process audio: %w", err)
	}

	var (
		segments []asr.Segment
		probSum  float64
		tokCount int
	)
	for {
		seg, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, asr.Info{}, fmt.Errorf("whisper: read segment: %w", err)
		}
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		segments = append(segments, asr.Segment{
			Start:        seg.Start.Seconds(),
			End:          seg.End.Seconds(),
			Text:         text,
			NoSpeechProb: noSpeechProb(seg.Tokens),
		})
		for _, tok := range seg.Tokens {
			probSum += float64(tok.P)
			tokCount++
		}
	}

	info := asr.Info{Language: req.Language}
	if req.Language == "" && len(segments) > 0 {
		info.Language = wctx.DetectedLanguage()
		// The binding does not surface the detector's own probability;
		// the mean token probability of this run is the closest signal.
		if tokCount > 0 {
			info.LanguageProbability = probSum / float64(tokCount)
		}
	}
	return segments, info, nil
}

// noSpeechProb estimates how likely a segment is non-speech from the inverse
// of its mean token probability.
func noSpeechProb(tokens []whisperlib.Token) float64 {
	if len(tokens) == 0 {
		return 1.0
	}
	var sum float64
	for _, tok := range tokens {
		sum += float64(tok.P)
	}
	return 1.0 - sum/float64(len(tokens))
}

// vadThreshold extracts a "threshold" override from VAD parameters, falling
// back to the package default.
func vadThreshold(params map[string]any) float64 {
	if params != nil {
		switch v := params["threshold"].(type) {
		case float64:
			return v
		case int:
			return float64(v)
		}
	}
	return defaultVADThreshold
}
