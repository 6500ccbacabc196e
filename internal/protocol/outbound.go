package protocol

import "strconv"

// FormatTime renders a stream-clock timestamp the way clients expect:
// seconds with exactly three decimal places, as a string.
func FormatTime(seconds float64) string {
	return strconv.FormatFloat(seconds, 'f', 3, 64)
}

// ServerReady is sent once to a speaker after a successful handshake.
type ServerReady struct {
	UID     string `json:"uid"`
	Message string `json:"message"`
	Backend string `json:"backend"`
}

// NewServerReady builds the ready frame for uid.
func NewServerReady(uid string) ServerReady {
	return ServerReady{UID: uid, Message: "SERVER_READY", Backend: Backend}
}

// Wait tells a client the server is at capacity, with an estimated wait in
// minutes.
type Wait struct {
	UID     string  `json:"uid"`
	Status  string  `json:"status"`
	Message float64 `json:"message"`
}

// NewWait builds a WAIT frame.
func NewWait(uid string, minutes float64) Wait {
	return Wait{UID: uid, Status: "WAIT", Message: minutes}
}

// ErrorFrame reports a recoverable client-facing error.
type ErrorFrame struct {
	UID     string `json:"uid"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// NewError builds an ERROR frame.
func NewError(uid, message string) ErrorFrame {
	return ErrorFrame{UID: uid, Status: "ERROR", Message: message}
}

// Disconnect is sent before the server forcibly closes a connection.
type Disconnect struct {
	UID     string `json:"uid"`
	Message string `json:"message"`
}

// NewDisconnect builds a DISCONNECT frame.
func NewDisconnect(uid string) Disconnect {
	return Disconnect{UID: uid, Message: "DISCONNECT"}
}

// LanguageDetected announces the auto-detected source language to a speaker.
type LanguageDetected struct {
	UID          string  `json:"uid"`
	Language     string  `json:"language"`
	LanguageProb float64 `json:"language_prob"`
}

// Segment is one transcript entry on the wire. Times are stream-clock
// seconds formatted with [FormatTime].
type Segment struct {
	Start string `json:"start"`
	End   string `json:"end"`
	Text  string `json:"text"`
}

// NewSegment builds a wire segment from numeric times.
func NewSegment(start, end float64, text string) Segment {
	return Segment{Start: FormatTime(start), End: FormatTime(end), Text: text}
}

// Segments is the periodic transcript frame sent to a speaker.
type Segments struct {
	UID      string    `json:"uid"`
	Segments []Segment `json:"segments"`
}

// Translation carries one finalized unit's translations to listeners.
type Translation struct {
	ID        int               `json:"id"`
	Start     string            `json:"start"`
	End       string            `json:"end"`
	Translate map[string]string `json:"translate"`
}

// NewTranslation builds a translation frame from numeric times.
func NewTranslation(id int, start, end float64, translate map[string]string) Translation {
	return Translation{
		ID:        id,
		Start:     FormatTime(start),
		End:       FormatTime(end),
		Translate: translate,
	}
}

// Ping is the listener heartbeat frame.
type Ping struct {
	Ping string `json:"ping"`
}

// NewPing builds the heartbeat frame.
func NewPing() Ping { return Ping{Ping: "ping"} }
