// Package session implements the per-connection session layer: the streaming
// audio buffer, the sentence accumulators, speaker and listener sessions, and
// the capacity-managed registries with listener heartbeat and fan-out.
package session

import (
	"sync"

	"github.com/voicebridge-ai/voicebridge/pkg/asr"
)

const (
	// maxBufferSeconds caps the retained audio window.
	maxBufferSeconds = 60.0

	// truncateSeconds is how much is dropped from the head when the cap is
	// exceeded.
	truncateSeconds = 30.0

	// staleTailSeconds is the unread-tail length beyond which the consumer
	// clock is forced forward.
	staleTailSeconds = 25.0

	// lookBackSeconds is how much audio a stale-clip keeps behind the new
	// consumer position.
	lookBackSeconds = 5.0
)

// AudioBuffer is an append-only PCM sample buffer with head truncation and an
// offset clock. It is owned by exactly one speaker session; the producer pump
// appends while the transcription loop consumes. All methods are safe for
// concurrent use and none performs I/O under the lock.
//
// Two clocks track positions in the stream, both in seconds from session
// start: framesOffset is how much audio has been discarded from the head, and
// timestampOffset is how much the transcriber has consumed. The invariant
// framesOffset <= timestampOffset <= framesOffset + duration holds outside
// the critical sections that move them.
type AudioBuffer struct {
	mu              sync.Mutex
	samples         []float32
	framesOffset    float64
	timestampOffset float64
}

// NewAudioBuffer returns an empty buffer with both clocks at zero.
func NewAudioBuffer() *AudioBuffer {
	return &AudioBuffer{}
}

// Append adds samples to the tail. When the retained window would exceed 60
// seconds, the oldest 30 seconds are dropped first and framesOffset advances
// accordingly; timestampOffset is raised to framesOffset if the drop passed
// it.
func (b *AudioBuffer) Append(samples []float32) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.samples) > int(maxBufferSeconds*asr.SampleRate) {
		drop := int(truncateSeconds * asr.SampleRate)
		b.samples = b.samples[drop:]
		b.framesOffset += truncateSeconds
		if b.timestampOffset < b.framesOffset {
			b.timestampOffset = b.framesOffset
		}
	}
	b.samples = append(b.samples, samples...)
}

// ClipIfStale force-forwards the consumer clock when the unread tail exceeds
// 25 seconds, keeping a 5 second look-back window. Called by the
// transcription loop before taking the next chunk so a slow model never
// falls unboundedly behind live audio.
func (b *AudioBuffer) ClipIfStale() {
	b.mu.Lock()
	defer b.mu.Unlock()

	duration := float64(len(b.samples)) / asr.SampleRate
	unread := b.framesOffset + duration - b.timestampOffset
	if unread > staleTailSeconds {
		b.timestampOffset = b.framesOffset + duration - lookBackSeconds
	}
}

// NextChunk copies the unread tail, from timestampOffset to the end of the
// buffer, and returns it with its duration in seconds. Callers must not call
// the transcriber for chunks shorter than one second; they should wait and
// retry instead.
func (b *AudioBuffer) NextChunk() ([]float32, float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	start := int((b.timestampOffset - b.framesOffset) * asr.SampleRate)
	if start < 0 {
		start = 0
	}
	if start >= len(b.samples) {
		return nil, 0
	}
	tail := make([]float32, len(b.samples)-start)
	copy(tail, b.samples[start:])
	return tail, float64(len(tail)) / asr.SampleRate
}

// AdvanceTimestamp moves the consumer clock forward by seconds, clamped to
// the end of the buffered audio.
func (b *AudioBuffer) AdvanceTimestamp(seconds float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.timestampOffset += seconds
	end := b.framesOffset + float64(len(b.samples))/asr.SampleRate
	if b.timestampOffset > end {
		b.timestampOffset = end
	}
	if b.timestampOffset < b.framesOffset {
		b.timestampOffset = b.framesOffset
	}
}

// TimestampOffset returns the consumer clock in seconds from session start.
func (b *AudioBuffer) TimestampOffset() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.timestampOffset
}

// FramesOffset returns the head-discard clock in seconds from session start.
func (b *AudioBuffer) FramesOffset() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.framesOffset
}

// Duration returns the seconds of audio currently retained.
func (b *AudioBuffer) Duration() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return float64(len(b.samples)) / asr.SampleRate
}

// Empty reports whether the buffer holds no samples.
func (b *AudioBuffer) Empty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.samples) == 0
}
