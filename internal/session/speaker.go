package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/voicebridge-ai/voicebridge/internal/observe"
	"github.com/voicebridge-ai/voicebridge/internal/protocol"
	"github.com/voicebridge-ai/voicebridge/pkg/asr"
)

// Conn is the outbound half of one client connection. Implementations must
// serialize concurrent writes internally.
type Conn interface {
	WriteJSON(ctx context.Context, v any) error
	Close() error
}

// Translator turns one finalized unit into a per-language translation map.
// Implemented by translator.Pool.
type Translator interface {
	Translate(ctx context.Context, text, src string, tgts []string) (map[string]string, error)
}

// BroadcastFunc delivers a message to every listener following speakerUID.
type BroadcastFunc func(ctx context.Context, speakerUID string, msg any)

// Archiver persists finalized units and their translations. Optional; a nil
// archiver disables persistence.
type Archiver interface {
	SaveUnit(ctx context.Context, speakerUID string, unit Unit, translations map[string]string) error
}

// State is the speaker session lifecycle state.
type State int32

const (
	StateHandshaking State = iota
	StateReady
	StateRunning
	StateDraining
	StateTerminated
)

// String returns the state name for logging.
func (s State) String() string {
	switch s {
	case StateHandshaking:
		return "handshaking"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

const (
	// minChunkSeconds is the shortest audio chunk worth transcribing.
	minChunkSeconds = 1.0

	// shortWait is the poll interval while audio accumulates.
	shortWait = 100 * time.Millisecond

	// maxNoSpeechProb filters hallucinated sub-segments out of the log.
	maxNoSpeechProb = 0.45

	// stallThreshold is how many consecutive identical provisional outputs
	// force a commit.
	stallThreshold = 5

	// showPrevOutThreshold is the silence length after which the previous
	// segments are re-sent once.
	showPrevOutThreshold = 4 * time.Second

	// defaultAddPauseThreshold is the silence length after which a blank
	// marker is shown to the client.
	defaultAddPauseThreshold = 15 * time.Second

	// idleFinalizeIterations is how many consecutive empty transcriber
	// results finalize a pending buffer.
	idleFinalizeIterations = 3

	// drainGrace bounds how long Stop waits for workers to exit.
	drainGrace = 3 * time.Second

	// transcriptTail caps how many committed segments go to the client per
	// update, not counting the provisional one.
	transcriptTail = 10
)

// ErrSessionDone is returned by HandleFrame once the session is draining;
// the caller should stop reading frames.
var ErrSessionDone = errors.New("session: speaker is done")

// segment is one committed transcript entry on the stream clock.
type segment struct {
	start, end float64
	text       string
}

// SpeakerConfig carries the handshake parameters of one speaker.
type SpeakerConfig struct {
	UID           string
	Language      string
	Task          string
	UseVAD        bool
	VADParameters map[string]any
	InitialPrompt string

	// AddPauseThreshold overrides the blank-marker silence threshold.
	AddPauseThreshold time.Duration
}

// SpeakerDeps are the collaborators of a speaker session.
type SpeakerDeps struct {
	Conn       Conn
	ASR        *asr.Service
	Translator Translator
	Broadcast  BroadcastFunc
	Archiver   Archiver
	Metrics    *observe.Metrics
	Logger     *slog.Logger
}

// Speaker is one speaker session. It owns its audio buffer, transcript log,
// sentence accumulator and translation id counter. Two workers run per
// session: the transcription loop and the translation worker; the inbound
// frame pump lives in the server and calls HandleFrame.
type Speaker struct {
	cfg     SpeakerConfig
	conn    Conn
	asrSvc  *asr.Service
	pool    Translator
	cast    BroadcastFunc
	archive Archiver
	metrics *observe.Metrics
	log     *slog.Logger

	buffer *AudioBuffer

	unitsMu     sync.Mutex
	units       chan Unit
	unitsClosed bool

	mu               sync.Mutex
	state            State
	language         string
	speakerLang      string
	allLangs         []string
	acc              Accumulator
	transcript       []segment
	provisional      *segment
	lastProvisional  string
	repeatCount      int
	translationID    int
	lastOutputAt     time.Time
	resentPrev       bool
	pauseMarked      bool
	silentIterations int

	cancelTranscribe context.CancelFunc
	cancelTranslate  context.CancelFunc
	transcribeDone   chan struct{}
	translateDone    chan struct{}
	stopOnce         sync.Once
}

// NewSpeaker builds a speaker session in the handshaking state.
func NewSpeaker(cfg SpeakerConfig, deps SpeakerDeps) *Speaker {
	if cfg.AddPauseThreshold <= 0 {
		cfg.AddPauseThreshold = defaultAddPauseThreshold
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Speaker{
		cfg:            cfg,
		conn:           deps.Conn,
		asrSvc:         deps.ASR,
		pool:           deps.Translator,
		cast:           deps.Broadcast,
		archive:        deps.Archiver,
		metrics:        metrics,
		log:            logger.With("speaker", cfg.UID),
		buffer:         NewAudioBuffer(),
		units:          make(chan Unit, 16),
		state:          StateHandshaking,
		language:       cfg.Language,
		lastOutputAt:   time.Now(),
		transcribeDone: make(chan struct{}),
		translateDone:  make(chan struct{}),
	}
}

// UID returns the speaker's client-supplied identity.
func (s *Speaker) UID() string { return s.cfg.UID }

// State returns the current lifecycle state.
func (s *Speaker) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Speaker) setState(st State) {
	s.mu.Lock()
	prev := s.state
	s.state = st
	s.mu.Unlock()
	if prev != st {
		s.log.Debug("speaker state change", "from", prev.String(), "to", st.String())
	}
}

// Start launches the transcription loop and the translation worker.
func (s *Speaker) Start(ctx context.Context) {
	tctx, cancelT := context.WithCancel(ctx)
	xctx, cancelX := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancelTranscribe = cancelT
	s.cancelTranslate = cancelX
	s.state = StateReady
	s.mu.Unlock()

	s.metrics.ActiveSpeakers.Add(ctx, 1)
	go s.transcribeLoop(tctx)
	go s.translateLoop(xctx)
}

// Stop drains the session: the transcription loop is cancelled, any pending
// accumulated text is finalized, in-flight translations get a bounded grace
// period, then the connection is closed. Safe to call more than once.
func (s *Speaker) Stop() {
	s.stopOnce.Do(func() {
		s.setState(StateDraining)
		deadline := time.Now().Add(drainGrace)

		s.mu.Lock()
		cancelT, cancelX := s.cancelTranscribe, s.cancelTranslate
		s.mu.Unlock()

		if cancelT != nil {
			cancelT()
			select {
			case <-s.transcribeDone:
			case <-time.After(time.Until(deadline)):
				s.log.Warn("transcription loop did not stop within grace period")
			}
		}

		// Finalize whatever text is still buffered.
		s.mu.Lock()
		var pending Unit
		var ok bool
		if s.acc != nil {
			pending, ok = s.acc.Flush()
		}
		s.mu.Unlock()
		if ok {
			s.submitUnit(pending)
		}
		s.closeUnits()

		if cancelX != nil {
			select {
			case <-s.translateDone:
			case <-time.After(time.Until(deadline)):
				s.log.Warn("translation worker did not drain within grace period")
			}
			cancelX()
		}

		if err := s.conn.Close(); err != nil {
			s.log.Debug("closing speaker connection", "error", err)
		}
		s.setState(StateTerminated)
		s.metrics.ActiveSpeakers.Add(context.Background(), -1)
	})
}

// Done reports whether the session reached a terminal or draining state.
func (s *Speaker) Done() bool {
	st := s.State()
	return st == StateDraining || st == StateTerminated
}

// HandleFrame processes one inbound speaker frame from the connection pump.
func (s *Speaker) HandleFrame(ctx context.Context, frame protocol.SpeakerFrame) error {
	if s.Done() {
		return ErrSessionDone
	}
	switch f := frame.(type) {
	case protocol.EndOfAudio:
		s.log.Info("end of audio received")
		s.Stop()
		return ErrSessionDone

	case protocol.ListenerSentinel:
		// Reserved sentinel, ignored on the speaker channel.
		return nil

	case *protocol.AudioFrame:
		s.mu.Lock()
		if f.SpeakerLang != "" {
			s.speakerLang = f.SpeakerLang
		}
		if f.AllLangs != nil {
			s.allLangs = append(s.allLangs[:0], f.AllLangs...)
		}
		if f.IsStartStream && s.acc != nil {
			s.acc.Reset()
		}
		if s.state == StateReady {
			s.state = StateRunning
		}
		s.mu.Unlock()
		s.buffer.Append(f.Samples)
		return nil

	default:
		return protocol.ErrMalformedFrame
	}
}

// transcribeLoop is the per-session transcription driver.
func (s *Speaker) transcribeLoop(ctx context.Context) {
	defer close(s.transcribeDone)
	for {
		wait := s.iterate(ctx)
		if wait < 0 {
			return
		}
		if wait == 0 {
			wait = shortWait
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// iterate runs one driver iteration and returns how long to wait before the
// next one. A negative value stops the loop.
func (s *Speaker) iterate(ctx context.Context) time.Duration {
	if ctx.Err() != nil {
		return -1
	}
	if s.buffer.Empty() {
		return shortWait
	}

	s.buffer.ClipIfStale()
	samples, duration := s.buffer.NextChunk()
	if duration < minChunkSeconds {
		return shortWait
	}

	start := time.Now()
	segs, info, err := s.asrSvc.Transcribe(ctx, asr.Request{
		Samples:       samples,
		Language:      s.sourceLang(),
		Translate:     s.cfg.Task == "translate",
		InitialPrompt: s.cfg.InitialPrompt,
		VADFilter:     s.cfg.UseVAD,
		VADParameters: s.cfg.VADParameters,
	})
	s.metrics.ASRDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return -1
		}
		s.metrics.ASRErrors.Add(ctx, 1)
		s.log.Warn("transcription failed", "error", err)
		return shortWait
	}

	if len(segs) == 0 {
		s.handleSilence(ctx, duration)
		s.buffer.AdvanceTimestamp(duration)
		return shortWait
	}

	s.maybeAdoptLanguage(ctx, info)
	out := s.updateSegments(ctx, segs, duration)
	s.sendSegments(ctx, out)
	return shortWait
}

// sourceLang resolves the language sent to the transcriber: the per-frame
// speaker language wins over the handshake language; empty means auto-detect.
func (s *Speaker) sourceLang() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.speakerLang != "" {
		return s.speakerLang
	}
	return s.language
}

// targetLangs snapshots the current target language set.
func (s *Speaker) targetLangs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.allLangs))
	copy(out, s.allLangs)
	return out
}

// maybeAdoptLanguage adopts an auto-detected language once, when the session
// has none and the detection is confident enough.
func (s *Speaker) maybeAdoptLanguage(ctx context.Context, info asr.Info) {
	s.mu.Lock()
	adopt := s.language == "" && s.speakerLang == "" &&
		info.Language != "" && info.LanguageProbability > 0.5
	if adopt {
		s.language = info.Language
	}
	s.mu.Unlock()
	if !adopt {
		return
	}
	s.log.Info("language detected", "language", info.Language, "prob", info.LanguageProbability)
	s.write(ctx, protocol.LanguageDetected{
		UID:          s.cfg.UID,
		Language:     info.Language,
		LanguageProb: info.LanguageProbability,
	})
}

// accumulator lazily creates the sentence accumulator once the source
// language (and therefore the finalization policy) is known.
func (s *Speaker) accumulator() Accumulator {
	if s.acc == nil {
		lang := s.speakerLang
		if lang == "" {
			lang = s.language
		}
		s.acc = NewAccumulator(lang)
	}
	return s.acc
}

// updateSegments folds one transcriber result into the session state and
// returns the client-facing update: the last committed segments plus the
// provisional tail. Called with fresh sub-segments whose times are local to
// the transcribed chunk.
func (s *Speaker) updateSegments(ctx context.Context, segs []asr.Segment, duration float64) []protocol.Segment {
	base := s.buffer.TimestampOffset()

	s.mu.Lock()
	var offset float64
	commits := 0

	commit := func(seg segment) {
		s.transcript = append(s.transcript, seg)
		commits++
		if unit, ok := s.accumulator().Push(TextEvent{
			Start: seg.start, End: seg.end, Text: seg.text, Translate: true,
		}); ok {
			s.submitUnit(unit)
		}
	}

	// All but the last sub-segment are final; the last is provisional.
	for _, sub := range segs[:len(segs)-1] {
		if sub.Start >= sub.End || sub.NoSpeechProb > maxNoSpeechProb {
			continue
		}
		commit(segment{start: base + sub.Start, end: base + sub.End, text: sub.Text})
		if sub.End > offset {
			offset = sub.End
		}
	}

	last := segs[len(segs)-1]
	prov := segment{start: base + last.Start, end: base + last.End, text: last.Text}

	// Stall detection: identical provisional output across iterations means
	// the model stopped refining; commit it once and move on.
	trimmed := strings.ToLower(strings.TrimSpace(last.Text))
	if trimmed != "" && trimmed == s.lastProvisional {
		s.repeatCount++
	} else {
		s.repeatCount = 0
	}
	s.lastProvisional = trimmed

	stalled := s.repeatCount > stallThreshold
	if stalled {
		if prov.start < prov.end && last.NoSpeechProb <= maxNoSpeechProb {
			commit(prov)
		}
		s.repeatCount = 0
		s.lastProvisional = ""
		s.provisional = nil
		offset = duration
	} else {
		s.provisional = &prov
	}

	s.lastOutputAt = time.Now()
	s.resentPrev = false
	s.pauseMarked = false
	s.silentIterations = 0

	out := s.clientSegmentsLocked()
	s.mu.Unlock()

	if commits > 0 {
		s.metrics.SegmentsCommitted.Add(ctx, int64(commits))
		s.buffer.AdvanceTimestamp(offset)
	}
	return out
}

// clientSegmentsLocked builds the bounded segments list for the client: the
// tail of the transcript log plus the provisional segment. Caller holds mu.
func (s *Speaker) clientSegmentsLocked() []protocol.Segment {
	tail := s.transcript
	if len(tail) > transcriptTail {
		tail = tail[len(tail)-transcriptTail:]
	}
	out := make([]protocol.Segment, 0, len(tail)+1)
	for _, seg := range tail {
		out = append(out, protocol.NewSegment(seg.start, seg.end, seg.text))
	}
	if s.provisional != nil {
		out = append(out, protocol.NewSegment(s.provisional.start, s.provisional.end, s.provisional.text))
	}
	return out
}

// handleSilence reacts to an empty transcriber result: idle stretches
// finalize pending text, long pauses re-send the previous output once and
// then show a blank marker.
func (s *Speaker) handleSilence(ctx context.Context, duration float64) {
	s.mu.Lock()
	s.silentIterations++

	// RTL buffers finalize on the first empty result; LTR buffers are
	// flushed after a sustained idle stretch.
	if s.acc != nil {
		if unit, ok := s.acc.Push(TextEvent{Translate: false}); ok {
			s.submitUnit(unit)
		} else if s.silentIterations >= idleFinalizeIterations {
			if unit, ok := s.acc.Flush(); ok {
				s.submitUnit(unit)
			}
		}
	}

	silence := time.Since(s.lastOutputAt)
	resend := silence > showPrevOutThreshold && !s.resentPrev && len(s.transcript) > 0
	if resend {
		s.resentPrev = true
	}
	if silence > s.cfg.AddPauseThreshold && !s.pauseMarked {
		// Blank marker so the client renders the pause; never committed to
		// the transcript log.
		ts := s.buffer.TimestampOffset()
		s.provisional = &segment{start: ts, end: ts + duration, text: ""}
		s.pauseMarked = true
		resend = true
	}
	var out []protocol.Segment
	if resend {
		out = s.clientSegmentsLocked()
	}
	s.mu.Unlock()

	if out != nil {
		s.sendSegments(ctx, out)
	}
}

// submitUnit queues a finalized unit for translation. Units arriving after
// the queue closed or while it is full are dropped with a warning; the
// transcription loop must never block on translation.
func (s *Speaker) submitUnit(unit Unit) {
	s.unitsMu.Lock()
	defer s.unitsMu.Unlock()
	if s.unitsClosed {
		s.log.Warn("translation queue closed, dropping unit", "text_len", len(unit.Text))
		return
	}
	select {
	case s.units <- unit:
	default:
		s.log.Warn("translation queue full, dropping unit", "text_len", len(unit.Text))
	}
}

// closeUnits closes the translation queue exactly once.
func (s *Speaker) closeUnits() {
	s.unitsMu.Lock()
	defer s.unitsMu.Unlock()
	if !s.unitsClosed {
		s.unitsClosed = true
		close(s.units)
	}
}

// translateLoop is the per-session translation worker. Processing units on a
// single goroutine guarantees translation ids reach listeners in increasing
// order.
func (s *Speaker) translateLoop(ctx context.Context) {
	defer close(s.translateDone)
	for unit := range s.units {
		if ctx.Err() != nil {
			return
		}
		s.processUnit(ctx, unit)
	}
}

// processUnit translates one finalized unit and broadcasts the result. A
// dropped unit (translation failed after retries) does not advance the id.
func (s *Speaker) processUnit(ctx context.Context, unit Unit) {
	tgts := s.targetLangs()
	src := s.sourceLang()
	if src == "" || len(tgts) == 0 {
		s.log.Debug("skipping unit without language routing", "src", src, "targets", len(tgts))
		return
	}

	translations, err := s.pool.Translate(ctx, unit.Text, src, tgts)
	if err != nil {
		s.log.Warn("translation dropped", "error", err)
		return
	}

	s.mu.Lock()
	s.translationID++
	id := s.translationID
	s.mu.Unlock()

	msg := protocol.NewTranslation(id, unit.Start, unit.End, translations)
	s.cast(ctx, s.cfg.UID, msg)

	if s.archive != nil {
		if err := s.archive.SaveUnit(ctx, s.cfg.UID, unit, translations); err != nil {
			s.log.Warn("archiving unit failed", "error", err)
		}
	}
}

// sendSegments delivers one transcript update to the speaker. A write
// failure marks the session for termination.
func (s *Speaker) sendSegments(ctx context.Context, segs []protocol.Segment) {
	if len(segs) == 0 {
		return
	}
	s.write(ctx, protocol.Segments{UID: s.cfg.UID, Segments: segs})
}

func (s *Speaker) write(ctx context.Context, v any) {
	if err := s.conn.WriteJSON(ctx, v); err != nil {
		s.log.Warn("speaker write failed, terminating", "error", err)
		s.mu.Lock()
		cancel := s.cancelTranscribe
		s.mu.Unlock()
		if cancel != nil {
			cancel()
		}
	}
}
