package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/voicebridge-ai/voicebridge/internal/observe"
	"github.com/voicebridge-ai/voicebridge/internal/protocol"
)

// timeoutSweepInterval is how often session ages are checked against the
// connection time limit.
const timeoutSweepInterval = 10 * time.Second

// registry maps connections to sessions with a capacity limit and per-entry
// start times. One mutex serializes all mutations; snapshot-then-send is
// used for anything that performs I/O.
type registry[T any] struct {
	mu       sync.Mutex
	max      int
	sessions map[Conn]T
	started  map[Conn]time.Time
}

func newRegistry[T any](max int) *registry[T] {
	return &registry[T]{
		max:      max,
		sessions: make(map[Conn]T),
		started:  make(map[Conn]time.Time),
	}
}

func (r *registry[T]) add(conn Conn, session T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[conn] = session
	r.started[conn] = time.Now()
}

func (r *registry[T]) get(conn Conn) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[conn]
	return s, ok
}

func (r *registry[T]) remove(conn Conn) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[conn]
	delete(r.sessions, conn)
	delete(r.started, conn)
	return s, ok
}

func (r *registry[T]) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *registry[T]) full() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.max > 0 && len(r.sessions) >= r.max
}

// maxAge returns the age of the oldest entry.
func (r *registry[T]) maxAge(now time.Time) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	var oldest time.Duration
	for _, started := range r.started {
		if age := now.Sub(started); age > oldest {
			oldest = age
		}
	}
	return oldest
}

// expired returns the connections whose sessions exceeded the limit.
func (r *registry[T]) expired(now time.Time, limit time.Duration) []Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Conn
	for conn, started := range r.started {
		if now.Sub(started) >= limit {
			out = append(out, conn)
		}
	}
	return out
}

// snapshot copies all sessions for lock-free iteration.
func (r *registry[T]) snapshot() map[Conn]T {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[Conn]T, len(r.sessions))
	for conn, s := range r.sessions {
		out[conn] = s
	}
	return out
}

// ManagerConfig tunes the session manager.
type ManagerConfig struct {
	MaxSpeakers       int
	MaxListeners      int
	MaxConnectionTime time.Duration
	HeartbeatInterval time.Duration
}

// Manager holds the speaker and listener registries, enforces capacity and
// connection-time limits, runs the listener heartbeat and implements the
// translation fan-out.
type Manager struct {
	cfg       ManagerConfig
	speakers  *registry[*Speaker]
	listeners *registry[*Listener]
	metrics   *observe.Metrics
	log       *slog.Logger
}

// NewManager builds a Manager. Zero limits mean unlimited; a zero heartbeat
// interval defaults to 15 seconds.
func NewManager(cfg ManagerConfig, metrics *observe.Metrics, logger *slog.Logger) *Manager {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 15 * time.Second
	}
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:       cfg,
		speakers:  newRegistry[*Speaker](cfg.MaxSpeakers),
		listeners: newRegistry[*Listener](cfg.MaxListeners),
		metrics:   metrics,
		log:       logger,
	}
}

// Run drives the listener heartbeat and the timeout sweep until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	heartbeat := time.NewTicker(m.cfg.HeartbeatInterval)
	defer heartbeat.Stop()
	sweep := time.NewTicker(timeoutSweepInterval)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			m.pingListeners(ctx)
		case <-sweep.C:
			m.sweepTimeouts(ctx)
		}
	}
}

// AddSpeaker registers a speaker session. A uid collision evicts the prior
// holder before the new session is inserted: its workers are stopped and its
// connection closed.
func (m *Manager) AddSpeaker(conn Conn, s *Speaker) {
	for victimConn, victim := range m.speakers.snapshot() {
		if victim.UID() == s.UID() {
			m.log.Info("evicting speaker on uid collision", "uid", s.UID())
			m.speakers.remove(victimConn)
			victim.Stop()
		}
	}
	m.speakers.add(conn, s)
}

// GetSpeaker looks up the speaker bound to conn.
func (m *Manager) GetSpeaker(conn Conn) (*Speaker, bool) {
	return m.speakers.get(conn)
}

// RemoveSpeaker removes and stops the speaker bound to conn.
func (m *Manager) RemoveSpeaker(conn Conn) {
	if s, ok := m.speakers.remove(conn); ok {
		s.Stop()
	}
}

// AddListener registers a listener session.
func (m *Manager) AddListener(conn Conn, l *Listener) {
	m.listeners.add(conn, l)
	m.metrics.ActiveListeners.Add(context.Background(), 1)
}

// RemoveListener removes the listener bound to conn and closes it. Close
// failures are logged, never propagated.
func (m *Manager) RemoveListener(conn Conn) {
	l, ok := m.listeners.remove(conn)
	if !ok {
		return
	}
	if err := l.Close(); err != nil {
		m.log.Debug("closing listener connection", "listener", l.ID(), "error", err)
	}
	m.metrics.ActiveListeners.Add(context.Background(), -1)
}

// SpeakerCount returns the number of registered speakers.
func (m *Manager) SpeakerCount() int { return m.speakers.count() }

// ListenerCount returns the number of registered listeners.
func (m *Manager) ListenerCount() int { return m.listeners.count() }

// SpeakerSlotsFull checks speaker capacity; when full it sends a WAIT frame
// with the estimated wait in minutes and reports true. The caller should
// close the connection.
func (m *Manager) SpeakerSlotsFull(ctx context.Context, conn Conn, uid string) bool {
	return m.slotsFull(ctx, conn, uid, m.speakers.full(), m.speakers.maxAge(time.Now()))
}

// ListenerSlotsFull is the listener-side capacity check.
func (m *Manager) ListenerSlotsFull(ctx context.Context, conn Conn, uid string) bool {
	return m.slotsFull(ctx, conn, uid, m.listeners.full(), m.listeners.maxAge(time.Now()))
}

func (m *Manager) slotsFull(ctx context.Context, conn Conn, uid string, full bool, oldest time.Duration) bool {
	if !full {
		return false
	}
	wait := m.estimatedWaitMinutes(oldest)
	if err := conn.WriteJSON(ctx, protocol.NewWait(uid, wait)); err != nil {
		m.log.Debug("sending WAIT frame", "uid", uid, "error", err)
	}
	return true
}

// estimatedWaitMinutes estimates how long until the oldest session times
// out, in minutes.
func (m *Manager) estimatedWaitMinutes(oldest time.Duration) float64 {
	if oldest <= 0 {
		return 0
	}
	remaining := m.cfg.MaxConnectionTime - oldest
	if remaining < 0 {
		remaining = 0
	}
	return remaining.Minutes()
}

// sweepTimeouts disconnects sessions that exceeded the connection time
// limit: a DISCONNECT frame is sent, then the session is removed.
func (m *Manager) sweepTimeouts(ctx context.Context) {
	if m.cfg.MaxConnectionTime <= 0 {
		return
	}
	now := time.Now()

	for _, conn := range m.speakers.expired(now, m.cfg.MaxConnectionTime) {
		if s, ok := m.speakers.get(conn); ok {
			m.log.Info("speaker session timed out", "uid", s.UID())
			if err := conn.WriteJSON(ctx, protocol.NewDisconnect(s.UID())); err != nil {
				m.log.Debug("sending DISCONNECT frame", "error", err)
			}
		}
		m.RemoveSpeaker(conn)
	}

	for _, conn := range m.listeners.expired(now, m.cfg.MaxConnectionTime) {
		if l, ok := m.listeners.get(conn); ok {
			m.log.Info("listener session timed out", "listener", l.ID())
			if err := conn.WriteJSON(ctx, protocol.NewDisconnect(l.Follows())); err != nil {
				m.log.Debug("sending DISCONNECT frame", "error", err)
			}
		}
		m.RemoveListener(conn)
	}
}

// pingListeners sends the heartbeat to every listener. The registry mutex is
// never held while sending; failures remove the listener.
func (m *Manager) pingListeners(ctx context.Context) {
	ping := protocol.NewPing()
	for conn, l := range m.listeners.snapshot() {
		if err := l.Send(ctx, ping); err != nil {
			m.log.Info("listener heartbeat failed, removing", "listener", l.ID(), "error", err)
			m.RemoveListener(conn)
		}
	}
}

// Broadcast delivers msg to every listener following speakerUID. A failed
// send removes that listener and never aborts delivery to the rest.
func (m *Manager) Broadcast(ctx context.Context, speakerUID string, msg any) {
	for conn, l := range m.listeners.snapshot() {
		if l.Follows() != speakerUID {
			continue
		}
		if err := l.Send(ctx, msg); err != nil {
			m.log.Info("listener send failed, removing", "listener", l.ID(), "error", err)
			m.metrics.BroadcastFailures.Add(ctx, 1)
			m.RemoveListener(conn)
		}
	}
}

// Shutdown stops every session. Used on server shutdown.
func (m *Manager) Shutdown() {
	for conn := range m.speakers.snapshot() {
		m.RemoveSpeaker(conn)
	}
	for conn := range m.listeners.snapshot() {
		m.RemoveListener(conn)
	}
}
