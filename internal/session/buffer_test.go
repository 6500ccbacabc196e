package session

import (
	"math"
	"testing"

	"github.com/voicebridge-ai/voicebridge/pkg/asr"
)

// seconds builds a silent sample block of the given length.
func seconds(n float64) []float32 {
	return make([]float32, int(n*asr.SampleRate))
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestAudioBuffer_AppendAndNextChunk(t *testing.T) {
	t.Parallel()

	b := NewAudioBuffer()
	b.Append(seconds(2))

	chunk, dur := b.NextChunk()
	if !almostEqual(dur, 2) {
		t.Errorf("duration = %v, want 2", dur)
	}
	if len(chunk) != 2*asr.SampleRate {
		t.Errorf("chunk length = %d, want %d", len(chunk), 2*asr.SampleRate)
	}
}

func TestAudioBuffer_HeadTruncation(t *testing.T) {
	t.Parallel()

	b := NewAudioBuffer()
	// The append that finds more than 60 s already retained triggers exactly
	// one head truncation of 30 s.
	for range 62 {
		b.Append(seconds(1))
	}

	if got := b.FramesOffset(); !almostEqual(got, 30) {
		t.Errorf("frames offset = %v, want 30", got)
	}
	// 61 s retained at truncation time, 30 dropped, 1 appended after.
	if got := b.Duration(); !almostEqual(got, 32) {
		t.Errorf("duration = %v, want 32", got)
	}
	// timestampOffset was 0, behind the new head, so it must be raised.
	if got := b.TimestampOffset(); !almostEqual(got, 30) {
		t.Errorf("timestamp offset = %v, want 30", got)
	}
}

func TestAudioBuffer_TruncationPreservesConsumerClock(t *testing.T) {
	t.Parallel()

	b := NewAudioBuffer()
	for range 55 {
		b.Append(seconds(1))
	}
	b.AdvanceTimestamp(50)

	for range 10 {
		b.Append(seconds(1))
	}

	// The consumer was already past the new head, so it must not move.
	if got := b.TimestampOffset(); !almostEqual(got, 50) {
		t.Errorf("timestamp offset = %v, want 50", got)
	}
	if got := b.FramesOffset(); !almostEqual(got, 30) {
		t.Errorf("frames offset = %v, want 30", got)
	}
}

func TestAudioBuffer_ClipIfStale(t *testing.T) {
	t.Parallel()

	b := NewAudioBuffer()
	b.Append(seconds(30))

	b.ClipIfStale()
	// Unread tail of 30 s exceeds 25 s: forced to duration-5.
	if got := b.TimestampOffset(); !almostEqual(got, 25) {
		t.Errorf("timestamp offset = %v, want 25", got)
	}

	_, dur := b.NextChunk()
	if !almostEqual(dur, 5) {
		t.Errorf("chunk duration after clip = %v, want 5", dur)
	}
}

func TestAudioBuffer_ClipIfStale_NoOpWhenFresh(t *testing.T) {
	t.Parallel()

	b := NewAudioBuffer()
	b.Append(seconds(10))

	b.ClipIfStale()
	if got := b.TimestampOffset(); !almostEqual(got, 0) {
		t.Errorf("timestamp offset = %v, want 0", got)
	}
}

func TestAudioBuffer_AdvanceClampsToBufferedAudio(t *testing.T) {
	t.Parallel()

	b := NewAudioBuffer()
	b.Append(seconds(3))

	b.AdvanceTimestamp(10)
	if got := b.TimestampOffset(); !almostEqual(got, 3) {
		t.Errorf("timestamp offset = %v, want 3 (clamped)", got)
	}

	chunk, dur := b.NextChunk()
	if chunk != nil || dur != 0 {
		t.Errorf("NextChunk after full consume = (%d samples, %v), want empty", len(chunk), dur)
	}
}

func TestAudioBuffer_InvariantUnderMixedOperations(t *testing.T) {
	t.Parallel()

	b := NewAudioBuffer()
	check := func(step string) {
		t.Helper()
		frames, ts, dur := b.FramesOffset(), b.TimestampOffset(), b.Duration()
		if frames > ts+1e-6 || ts > frames+dur+1e-6 {
			t.Fatalf("%s: invariant violated: frames=%v ts=%v dur=%v", step, frames, ts, dur)
		}
	}

	for i := range 70 {
		b.Append(seconds(1))
		check("append")
		if i%7 == 0 {
			b.ClipIfStale()
			check("clip")
		}
		if i%3 == 0 {
			b.AdvanceTimestamp(0.5)
			check("advance")
		}
	}
}

func TestAudioBuffer_Empty(t *testing.T) {
	t.Parallel()

	b := NewAudioBuffer()
	if !b.Empty() {
		t.Error("new buffer not empty")
	}
	b.Append(seconds(0.5))
	if b.Empty() {
		t.Error("buffer with samples reported empty")
	}
}
