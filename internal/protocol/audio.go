package protocol

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrBadAudioPayload reports a base64 audio payload that does not decode to a
// whole number of float32 samples.
var ErrBadAudioPayload = errors.New("protocol: audio payload is not a whole number of float32 samples")

// DecodeAudio decodes a base64 payload of little-endian float32 mono PCM.
func DecodeAudio(encoded string) ([]float32, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("protocol: bad base64 audio: %w", err)
	}
	if len(raw)%4 != 0 {
		return nil, ErrBadAudioPayload
	}
	samples := make([]float32, len(raw)/4)
	for i := range samples {
		bits := binary.LittleEndian.Uint32(raw[i*4:])
		samples[i] = math.Float32frombits(bits)
	}
	return samples, nil
}

// EncodeAudio is the inverse of [DecodeAudio]. Used by tests and by tooling
// that replays recorded streams.
func EncodeAudio(samples []float32) string {
	raw := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(s))
	}
	return base64.StdEncoding.EncodeToString(raw)
}
