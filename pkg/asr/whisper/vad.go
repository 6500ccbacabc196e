package whisper

import "math"

// hasSpeech reports whether the chunk's root-mean-square energy exceeds the
// silence threshold. This is a cheap energy gate, not a full VAD model; it
// exists to avoid burning inference time on all-silence chunks.
func hasSpeech(samples []float32, threshold float64) bool {
	if len(samples) == 0 {
		return false
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	rms := math.Sqrt(sum / float64(len(samples)))
	return rms >= threshold
}
