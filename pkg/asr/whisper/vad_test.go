package whisper

import (
	"math"
	"testing"
)

func TestHasSpeech(t *testing.T) {
	t.Parallel()

	sine := make([]float32, 1600)
	for i := range sine {
		sine[i] = 0.5 * float32(math.Sin(2*math.Pi*440*float64(i)/16000))
	}
	quiet := make([]float32, 1600)
	for i := range quiet {
		quiet[i] = 0.001 * float32(math.Sin(2*math.Pi*440*float64(i)/16000))
	}

	tests := []struct {
		name      string
		samples   []float32
		threshold float64
		want      bool
	}{
		{"empty", nil, defaultVADThreshold, false},
		{"all zero", make([]float32, 1600), defaultVADThreshold, false},
		{"loud sine", sine, defaultVADThreshold, true},
		{"near silence", quiet, defaultVADThreshold, false},
		{"near silence with tiny threshold", quiet, 0.0001, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := hasSpeech(tt.samples, tt.threshold); got != tt.want {
				t.Errorf("hasSpeech() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVADThreshold(t *testing.T) {
	t.Parallel()

	if got := vadThreshold(nil); got != defaultVADThreshold {
		t.Errorf("vadThreshold(nil) = %v, want default %v", got, defaultVADThreshold)
	}
	if got := vadThreshold(map[string]any{"threshold": 0.02}); got != 0.02 {
		t.Errorf("vadThreshold(0.02) = %v, want 0.02", got)
	}
	if got := vadThreshold(map[string]any{"threshold": "loud"}); got != defaultVADThreshold {
		t.Errorf("vadThreshold(bad type) = %v, want default %v", got, defaultVADThreshold)
	}
}
