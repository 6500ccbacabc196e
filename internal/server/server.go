// Package server accepts websocket connections, performs the handshake that
// classifies each peer as speaker or listener, and pumps inbound frames into
// the matching session until disconnect or timeout.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voicebridge-ai/voicebridge/internal/health"
	"github.com/voicebridge-ai/voicebridge/internal/observe"
	"github.com/voicebridge-ai/voicebridge/internal/protocol"
	"github.com/voicebridge-ai/voicebridge/internal/session"
	"github.com/voicebridge-ai/voicebridge/pkg/asr"
)

// handshakeTimeout bounds how long a fresh connection may take to send its
// handshake frame.
const handshakeTimeout = 10 * time.Second

// shutdownTimeout bounds the HTTP server drain on shutdown.
const shutdownTimeout = 5 * time.Second

// Config tunes the server.
type Config struct {
	// ListenAddr is the host:port to bind.
	ListenAddr string

	// TLSCertFile and TLSKeyFile enable TLS when both are set.
	TLSCertFile string
	TLSKeyFile  string

	// ModelSize is the configured transcription model; handshakes requesting
	// a different model get an ERROR frame and fall back to it.
	ModelSize string

	// DefaultTask applies when a speaker handshake omits the task.
	DefaultTask string
}

// Deps are the server's collaborators.
type Deps struct {
	Manager    *session.Manager
	ASR        *asr.Service
	Translator session.Translator
	Archiver   session.Archiver
	Metrics    *observe.Metrics
	Logger     *slog.Logger
}

// Server owns the HTTP listener, the websocket upgrade path and the
// per-connection pumps.
type Server struct {
	cfg     Config
	manager *session.Manager
	asrSvc  *asr.Service
	pool    session.Translator
	archive session.Archiver
	metrics *observe.Metrics
	log     *slog.Logger

	mu      sync.Mutex
	baseCtx context.Context
}

// New builds a Server.
func New(cfg Config, deps Deps) *Server {
	if cfg.DefaultTask == "" {
		cfg.DefaultTask = "transcribe"
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Server{
		cfg:     cfg,
		manager: deps.Manager,
		asrSvc:  deps.ASR,
		pool:    deps.Translator,
		archive: deps.Archiver,
		metrics: metrics,
		log:     logger,
		baseCtx: context.Background(),
	}
}

// Handler returns the HTTP handler: the websocket endpoint at /, Prometheus
// metrics at /metrics and the health probes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleWS)
	mux.Handle("GET /metrics", promhttp.Handler())
	health.New(health.Checker{
		Name: "asr",
		Check: func(context.Context) error {
			if s.asrSvc == nil {
				return errors.New("transcription service not configured")
			}
			return nil
		},
	}).Register(mux)
	return mux
}

// Run serves until ctx is done, then drains sessions and the listener.
func (s *Server) Run(ctx context.Context) error {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()

	srv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: handshakeTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go s.manager.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		var err error
		if s.cfg.TLSCertFile != "" && s.cfg.TLSKeyFile != "" {
			s.log.Info("listening with TLS", "addr", s.cfg.ListenAddr)
			err = srv.ListenAndServeTLS(s.cfg.TLSCertFile, s.cfg.TLSKeyFile)
		} else {
			s.log.Info("listening", "addr", s.cfg.ListenAddr)
			err = srv.ListenAndServe()
		}
		errCh <- err
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warn("http shutdown", "error", err)
		}
		s.manager.Shutdown()
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// sessionCtx returns the context speaker workers run under, so sessions
// outlive the HTTP request that spawned them but stop on server shutdown.
func (s *Server) sessionCtx() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baseCtx
}

// handleWS upgrades the connection, reads the handshake and dispatches to
// the speaker or listener pump.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.log.Debug("websocket accept failed", "error", err)
		return
	}
	conn := newWSConn(c)

	hctx, cancel := context.WithTimeout(r.Context(), handshakeTimeout)
	_, data, err := c.Read(hctx)
	cancel()
	if err != nil {
		s.log.Info("handshake read failed", "error", err)
		conn.closeWith(websocket.StatusPolicyViolation, "handshake required")
		return
	}

	hs, err := protocol.ParseHandshake(data)
	if err != nil {
		s.log.Info("invalid handshake", "error", err)
		conn.closeWith(websocket.StatusPolicyViolation, "invalid handshake")
		return
	}

	if hs.IsListener() {
		s.serveListener(r.Context(), conn, c, hs)
		return
	}
	s.serveSpeaker(r.Context(), conn, c, hs)
}

// serveSpeaker registers a speaker session and pumps its frames.
func (s *Server) serveSpeaker(ctx context.Context, conn *wsConn, c *websocket.Conn, hs *protocol.Handshake) {
	log := s.log.With("uid", hs.UID)

	if s.manager.SpeakerSlotsFull(ctx, conn, hs.UID) {
		log.Info("speaker rejected, server full")
		conn.closeWith(websocket.StatusTryAgainLater, "server full")
		return
	}

	task := hs.Task
	if task != "transcribe" && task != "translate" {
		if task != "" {
			s.writeError(ctx, conn, hs.UID, "unknown task "+task+", using "+s.cfg.DefaultTask)
		}
		task = s.cfg.DefaultTask
	}
	if hs.Model != "" && s.cfg.ModelSize != "" && hs.Model != s.cfg.ModelSize {
		// One shared model per process; requests for another size fall back.
		s.writeError(ctx, conn, hs.UID, "model "+hs.Model+" not available, using "+s.cfg.ModelSize)
	}

	sp := session.NewSpeaker(session.SpeakerConfig{
		UID:           hs.UID,
		Language:      hs.Language,
		Task:          task,
		UseVAD:        hs.UseVAD,
		VADParameters: hs.VADParameters,
		InitialPrompt: hs.InitialPrompt,
	}, session.SpeakerDeps{
		Conn:       conn,
		ASR:        s.asrSvc,
		Translator: s.pool,
		Broadcast:  s.manager.Broadcast,
		Archiver:   s.archive,
		Metrics:    s.metrics,
		Logger:     s.log,
	})
	s.manager.AddSpeaker(conn, sp)
	sp.Start(s.sessionCtx())

	if err := conn.WriteJSON(ctx, protocol.NewServerReady(hs.UID)); err != nil {
		log.Info("sending ready frame failed", "error", err)
		s.manager.RemoveSpeaker(conn)
		return
	}
	log.Info("speaker connected", "language", hs.Language, "task", task)

	for {
		_, data, err := c.Read(ctx)
		if err != nil {
			log.Info("speaker disconnected", "error", err)
			break
		}
		frame, err := protocol.ParseSpeakerFrame(data)
		if err != nil {
			log.Info("malformed speaker frame, closing", "error", err)
			break
		}
		if err := sp.HandleFrame(ctx, frame); err != nil {
			if !errors.Is(err, session.ErrSessionDone) {
				log.Warn("frame handling failed", "error", err)
			}
			break
		}
	}
	s.manager.RemoveSpeaker(conn)
}

// serveListener registers a listener and keeps the connection alive.
// Inbound listener frames carry no meaning beyond liveness.
func (s *Server) serveListener(ctx context.Context, conn *wsConn, c *websocket.Conn, hs *protocol.Handshake) {
	log := s.log.With("uid", hs.UID, "listener", hs.ListenerUID)

	if s.manager.ListenerSlotsFull(ctx, conn, hs.UID) {
		log.Info("listener rejected, server full")
		conn.closeWith(websocket.StatusTryAgainLater, "server full")
		return
	}

	l := session.NewListener(hs.ListenerUID, hs.UID, conn)
	s.manager.AddListener(conn, l)
	log.Info("listener connected")

	for {
		if _, _, err := c.Read(ctx); err != nil {
			log.Info("listener disconnected", "error", err)
			break
		}
	}
	s.manager.RemoveListener(conn)
}

func (s *Server) writeError(ctx context.Context, conn *wsConn, uid, msg string) {
	if err := conn.WriteJSON(ctx, protocol.NewError(uid, msg)); err != nil {
		s.log.Debug("sending ERROR frame", "error", err)
	}
}
