package session

import (
	"strings"
	"unicode/utf8"
)

// rtlLanguages are the source languages finalized by the right-to-left
// policy instead of terminal punctuation.
var rtlLanguages = map[string]bool{
	"ar": true,
	"he": true,
	"fa": true,
	"ur": true,
	"ps": true,
	"sd": true,
}

// IsRTL reports whether code uses the right-to-left finalization policy.
func IsRTL(code string) bool { return rtlLanguages[code] }

// sentenceTerminators are the characters that complete a left-to-right
// sentence. The Arabic question mark is included because mixed-script
// transcripts occur in practice.
const sentenceTerminators = ".!?؟"

// TextEvent is one committed transcript span fed into an accumulator.
// Translate=false events carry no text; they signal that the transcriber
// produced nothing this iteration, which is what finalizes an RTL buffer.
type TextEvent struct {
	Start     float64
	End       float64
	Text      string
	Translate bool
}

// Unit is a finalized source-language text ready for translation, with its
// span on the speaker's stream clock.
type Unit struct {
	Start float64
	End   float64
	Text  string
}

// Accumulator turns a stream of transcript text events into finalized units.
// Implementations are not safe for concurrent use; each belongs to exactly
// one speaker session's transcription loop.
type Accumulator interface {
	// Push feeds one event and reports a finalized unit when one completed.
	Push(ev TextEvent) (Unit, bool)

	// Flush finalizes whatever is buffered, used on idle stretches and
	// session drain.
	Flush() (Unit, bool)

	// Reset discards all buffered state.
	Reset()
}

// NewAccumulator picks the policy for the given source language code.
func NewAccumulator(lang string) Accumulator {
	if IsRTL(lang) {
		return &rtlAccumulator{}
	}
	return &ltrAccumulator{}
}

// ltrAccumulator buffers text until terminal punctuation appears, then
// yields the completed prefix up to and including the last terminator. Text
// is whitespace-normalized on the way in, so units come out trimmed and
// single-spaced.
type ltrAccumulator struct {
	buf      string
	start    float64
	end      float64
	hasStart bool
}

func (a *ltrAccumulator) Push(ev TextEvent) (Unit, bool) {
	if !ev.Translate {
		return Unit{}, false
	}
	text := normalizeSpace(ev.Text)
	if text == "" {
		return Unit{}, false
	}
	if !a.hasStart {
		a.start = ev.Start
		a.hasStart = true
	}
	a.end = ev.End
	a.buf = joinSpace(a.buf, text)

	idx := strings.LastIndexAny(a.buf, sentenceTerminators)
	if idx < 0 {
		return Unit{}, false
	}
	_, width := utf8.DecodeRuneInString(a.buf[idx:])
	unit := Unit{Start: a.start, End: a.end, Text: strings.TrimSpace(a.buf[:idx+width])}
	a.buf = strings.TrimSpace(a.buf[idx+width:])
	if a.buf == "" {
		a.hasStart = false
	} else {
		// The remainder came from this event's tail.
		a.start = ev.Start
	}
	return unit, true
}

func (a *ltrAccumulator) Flush() (Unit, bool) {
	if a.buf == "" {
		return Unit{}, false
	}
	unit := Unit{Start: a.start, End: a.end, Text: a.buf}
	a.Reset()
	return unit, true
}

func (a *ltrAccumulator) Reset() {
	a.buf = ""
	a.hasStart = false
}

// rtlAccumulator concatenates by prepending each new span, so the buffer
// reads in spoken order for right-to-left scripts. A Translate=false event
// after a streak of text finalizes the buffer, except when the buffer is a
// prefix of the previously finalized text (the transcriber re-emitting an
// already-finalized window).
type rtlAccumulator struct {
	buf       string
	lastFinal string
	start     float64
	end       float64
	hasStart  bool
}

func (a *rtlAccumulator) Push(ev TextEvent) (Unit, bool) {
	if ev.Translate {
		text := normalizeSpace(ev.Text)
		if text == "" {
			return Unit{}, false
		}
		if !a.hasStart {
			a.start = ev.Start
			a.hasStart = true
		}
		a.end = ev.End
		a.buf = joinSpace(text, a.buf)
		return Unit{}, false
	}
	return a.finalize()
}

func (a *rtlAccumulator) Flush() (Unit, bool) { return a.finalize() }

func (a *rtlAccumulator) finalize() (Unit, bool) {
	if a.buf == "" {
		return Unit{}, false
	}
	text := strings.TrimSpace(a.buf)
	a.buf = ""
	a.hasStart = false
	if a.lastFinal != "" && strings.HasPrefix(a.lastFinal, text) {
		return Unit{}, false
	}
	a.lastFinal = text
	return Unit{Start: a.start, End: a.end, Text: text}, true
}

func (a *rtlAccumulator) Reset() {
	a.buf = ""
	a.hasStart = false
}

// normalizeSpace trims and collapses runs of whitespace to single spaces.
func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// joinSpace concatenates two already-normalized fragments with a single
// space, tolerating either side being empty.
func joinSpace(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + " " + b
	}
}
