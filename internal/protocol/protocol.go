// Package protocol defines the wire frames exchanged with speaker and
// listener clients. Inbound text frames are parsed at the connection boundary
// into tagged variants; the rest of the pipeline never branches on raw bytes.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Sentinel byte strings that speakers may send instead of a JSON frame.
const (
	sentinelEndOfAudio = "END_OF_AUDIO"
	sentinelListener   = "LISTENER"
)

// Backend is the transcription backend name reported in the ready frame.
// Kept for wire compatibility with existing clients.
const Backend = "faster_whisper"

var (
	// ErrMalformedFrame reports an inbound frame that is neither a known
	// sentinel nor valid JSON of the expected shape.
	ErrMalformedFrame = errors.New("protocol: malformed frame")

	// ErrMalformedHandshake reports an invalid handshake frame.
	ErrMalformedHandshake = errors.New("protocol: malformed handshake")
)

// Handshake is the first text frame on every connection. The presence of
// listener_uid discriminates a listener from a speaker.
type Handshake struct {
	UID           string         `json:"uid"`
	ListenerUID   string         `json:"listener_uid,omitempty"`
	Language      string         `json:"language,omitempty"`
	Task          string         `json:"task,omitempty"`
	Model         string         `json:"model,omitempty"`
	UseVAD        bool           `json:"use_vad,omitempty"`
	InitialPrompt string         `json:"initial_prompt,omitempty"`
	VADParameters map[string]any `json:"vad_parameters,omitempty"`
}

// IsListener reports whether the handshake came from a listener client.
func (h *Handshake) IsListener() bool { return h.ListenerUID != "" }

// ParseHandshake parses and validates the first frame of a connection.
func ParseHandshake(data []byte) (*Handshake, error) {
	var h Handshake
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedHandshake, err)
	}
	if h.UID == "" {
		return nil, fmt.Errorf("%w: missing uid", ErrMalformedHandshake)
	}
	return &h, nil
}

// SpeakerFrame is a tagged variant for one inbound speaker frame.
type SpeakerFrame interface{ speakerFrame() }

// EndOfAudio signals that the speaker finished streaming and the session
// should drain and terminate.
type EndOfAudio struct{}

// ListenerSentinel is a reserved sentinel, ignored on the speaker channel.
type ListenerSentinel struct{}

// AudioFrame carries one decoded chunk of PCM audio plus the speaker's
// current language settings.
type AudioFrame struct {
	Samples       []float32
	SpeakerLang   string
	AllLangs      []string
	IsStartStream bool
}

func (EndOfAudio) speakerFrame()       {}
func (ListenerSentinel) speakerFrame() {}
func (*AudioFrame) speakerFrame()      {}

// audioFrameWire is the JSON shape of a speaker audio frame.
type audioFrameWire struct {
	Audio         string   `json:"audio"`
	SpeakerLang   string   `json:"speakerLang"`
	AllLangs      []string `json:"allLangs"`
	IsStartStream bool     `json:"isStartStream,omitempty"`
}

// ParseSpeakerFrame classifies one inbound speaker text frame: a sentinel, or
// a JSON audio frame whose payload is base64 float32 little-endian PCM.
func ParseSpeakerFrame(data []byte) (SpeakerFrame, error) {
	switch string(data) {
	case sentinelEndOfAudio:
		return EndOfAudio{}, nil
	case sentinelListener:
		return ListenerSentinel{}, nil
	}

	var wire audioFrameWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedFrame, err)
	}
	samples, err := DecodeAudio(wire.Audio)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedFrame, err)
	}
	return &AudioFrame{
		Samples:       samples,
		SpeakerLang:   wire.SpeakerLang,
		AllLangs:      wire.AllLangs,
		IsStartStream: wire.IsStartStream,
	}, nil
}
