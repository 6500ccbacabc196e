package protocol

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
)

func TestParseHandshake_Speaker(t *testing.T) {
	t.Parallel()

	data := []byte(`{
		"uid": "spk-1",
		"language": "en",
		"task": "transcribe",
		"model": "small",
		"use_vad": true,
		"initial_prompt": "Meeting notes.",
		"vad_parameters": {"threshold": 0.02}
	}`)
	h, err := ParseHandshake(data)
	if err != nil {
		t.Fatalf("ParseHandshake: %v", err)
	}
	if h.IsListener() {
		t.Error("speaker handshake classified as listener")
	}
	if h.UID != "spk-1" || h.Language != "en" || h.Task != "transcribe" || !h.UseVAD {
		t.Errorf("unexpected handshake: %+v", h)
	}
	if got, ok := h.VADParameters["threshold"].(float64); !ok || got != 0.02 {
		t.Errorf("vad_parameters threshold = %v", h.VADParameters["threshold"])
	}
}

func TestParseHandshake_Listener(t *testing.T) {
	t.Parallel()

	h, err := ParseHandshake([]byte(`{"uid":"spk-1","listener_uid":"lst-9"}`))
	if err != nil {
		t.Fatalf("ParseHandshake: %v", err)
	}
	if !h.IsListener() {
		t.Error("listener handshake not classified as listener")
	}
	if h.UID != "spk-1" || h.ListenerUID != "lst-9" {
		t.Errorf("unexpected handshake: %+v", h)
	}
}

func TestParseHandshake_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data string
	}{
		{"not json", "hello"},
		{"wrong field type", `{"uid": 42}`},
		{"missing uid", `{"language":"en"}`},
		{"use_vad wrong type", `{"uid":"a","use_vad":"yes"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := ParseHandshake([]byte(tc.data)); !errors.Is(err, ErrMalformedHandshake) {
				t.Errorf("ParseHandshake(%q) error = %v, want ErrMalformedHandshake", tc.data, err)
			}
		})
	}
}

func TestParseSpeakerFrame_Sentinels(t *testing.T) {
	t.Parallel()

	f, err := ParseSpeakerFrame([]byte("END_OF_AUDIO"))
	if err != nil {
		t.Fatalf("ParseSpeakerFrame: %v", err)
	}
	if _, ok := f.(EndOfAudio); !ok {
		t.Errorf("frame = %T, want EndOfAudio", f)
	}

	f, err = ParseSpeakerFrame([]byte("LISTENER"))
	if err != nil {
		t.Fatalf("ParseSpeakerFrame: %v", err)
	}
	if _, ok := f.(ListenerSentinel); !ok {
		t.Errorf("frame = %T, want ListenerSentinel", f)
	}
}

func TestParseSpeakerFrame_Audio(t *testing.T) {
	t.Parallel()

	samples := []float32{0, 0.5, -0.5, 1}
	frame := map[string]any{
		"audio":         EncodeAudio(samples),
		"speakerLang":   "en",
		"allLangs":      []string{"de", "fr"},
		"isStartStream": true,
	}
	data, _ := json.Marshal(frame)

	f, err := ParseSpeakerFrame(data)
	if err != nil {
		t.Fatalf("ParseSpeakerFrame: %v", err)
	}
	af, ok := f.(*AudioFrame)
	if !ok {
		t.Fatalf("frame = %T, want *AudioFrame", f)
	}
	if af.SpeakerLang != "en" || len(af.AllLangs) != 2 || !af.IsStartStream {
		t.Errorf("unexpected frame: %+v", af)
	}
	if len(af.Samples) != len(samples) {
		t.Fatalf("sample count = %d, want %d", len(af.Samples), len(samples))
	}
	for i := range samples {
		if af.Samples[i] != samples[i] {
			t.Errorf("sample %d = %v, want %v", i, af.Samples[i], samples[i])
		}
	}
}

func TestParseSpeakerFrame_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data string
	}{
		{"not json", "END_OF_AUDI"},
		{"bad base64", `{"audio":"!!!","speakerLang":"en","allLangs":[]}`},
		{"truncated samples", `{"audio":"AAAA BB","speakerLang":"en","allLangs":[]}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := ParseSpeakerFrame([]byte(tc.data)); !errors.Is(err, ErrMalformedFrame) {
				t.Errorf("ParseSpeakerFrame(%q) error = %v, want ErrMalformedFrame", tc.data, err)
			}
		})
	}
}

func TestDecodeAudio_RejectsPartialSample(t *testing.T) {
	t.Parallel()

	// Five bytes of payload: one full float32 plus a dangling byte.
	if _, err := DecodeAudio("AAAAAAA="); !errors.Is(err, ErrBadAudioPayload) {
		t.Errorf("DecodeAudio error = %v, want ErrBadAudioPayload", err)
	}
}

func TestAudioRoundTrip(t *testing.T) {
	t.Parallel()

	in := []float32{0, 1, -1, 0.123456, float32(math.Pi)}
	out, err := DecodeAudio(EncodeAudio(in))
	if err != nil {
		t.Fatalf("DecodeAudio: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("length = %d, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("sample %d = %v, want %v", i, out[i], in[i])
		}
	}
}

func TestFormatTime(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   float64
		want string
	}{
		{0, "0.000"},
		{1.5, "1.500"},
		{12.3456, "12.346"},
		{3600.1, "3600.100"},
	}
	for _, tc := range tests {
		if got := FormatTime(tc.in); got != tc.want {
			t.Errorf("FormatTime(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestOutboundFrameShapes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		frame any
		want  string
	}{
		{
			"server ready",
			NewServerReady("u1"),
			`{"uid":"u1","message":"SERVER_READY","backend":"faster_whisper"}`,
		},
		{
			"wait",
			NewWait("u1", 2.5),
			`{"uid":"u1","status":"WAIT","message":2.5}`,
		},
		{
			"error",
			NewError("u1", "unknown model"),
			`{"uid":"u1","status":"ERROR","message":"unknown model"}`,
		},
		{
			"disconnect",
			NewDisconnect("u1"),
			`{"uid":"u1","message":"DISCONNECT"}`,
		},
		{
			"language detected",
			LanguageDetected{UID: "u1", Language: "de", LanguageProb: 0.92},
			`{"uid":"u1","language":"de","language_prob":0.92}`,
		},
		{
			"segments",
			Segments{UID: "u1", Segments: []Segment{NewSegment(0, 1.25, "hi")}},
			`{"uid":"u1","segments":[{"start":"0.000","end":"1.250","text":"hi"}]}`,
		},
		{
			"translation",
			NewTranslation(1, 0, 2, map[string]string{"de": "hallo"}),
			`{"id":1,"start":"0.000","end":"2.000","translate":{"de":"hallo"}}`,
		},
		{
			"ping",
			NewPing(),
			`{"ping":"ping"}`,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := json.Marshal(tc.frame)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			if string(got) != tc.want {
				t.Errorf("frame = %s, want %s", got, tc.want)
			}
		})
	}
}
