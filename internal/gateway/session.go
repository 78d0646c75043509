package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/eleven-am/voice-client/internal/capture"
	"github.com/eleven-am/voice-client/internal/shared"
)

// Controller is the engine surface the UI drives. The press operations
// may block on UI round-trips, so the session runs them off the read
// pump.
type Controller interface {
	StartRecording(ctx context.Context) error
	StopRecording(ctx context.Context, sessionID, userID string) error
	AbortRecording()
	Gesture(ctx context.Context) error
	Interrupt()
	Snapshot() StateSnapshot
}

// Session binds one UI connection to the engine: it routes press and
// gesture commands to the controller and mic or playback replies to the
// device bridge and stream sink.
type Session struct {
	conn        *Conn
	ctrl        Controller
	bridge      *DeviceBridge
	sink        *StreamSink
	constraints capture.Constraints
	log         *slog.Logger

	mu        sync.RWMutex
	sessionID string
	userID    string
	platform  shared.Platform
}

type SessionConfig struct {
	Conn        *Conn
	Controller  Controller
	Bridge      *DeviceBridge
	Sink        *StreamSink
	Constraints capture.Constraints
	Log         *slog.Logger
}

func NewSession(cfg SessionConfig) *Session {
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	return &Session{
		conn:        cfg.Conn,
		ctrl:        cfg.Controller,
		bridge:      cfg.Bridge,
		sink:        cfg.Sink,
		constraints: cfg.Constraints,
		log:         cfg.Log,
		sessionID:   uuid.NewString(),
		platform:    shared.PlatformDesktop,
	}
}

func (s *Session) ids() (sessionID, userID string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionID, s.userID
}

func (s *Session) Platform() shared.Platform {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.platform
}

func (s *Session) handle(env *envelope) {
	switch env.Type {
	case MessageTypeAttach:
		s.handleAttach(env)

	case MessageTypePressStart:
		go func() {
			if err := s.ctrl.StartRecording(context.Background()); err != nil {
				s.sendError(err)
			}
		}()

	case MessageTypePressStop:
		sessionID, userID := s.ids()
		go func() {
			// Pipeline failures surface through the recorder's error
			// events; nothing extra to report here.
			_ = s.ctrl.StopRecording(context.Background(), sessionID, userID)
		}()

	case MessageTypePressAbort:
		s.ctrl.AbortRecording()

	case MessageTypeGesture:
		go func() {
			if err := s.ctrl.Gesture(context.Background()); err != nil {
				s.sendError(err)
			}
		}()

	case MessageTypeInterrupt:
		s.ctrl.Interrupt()

	case MessageTypeMicOpened, MessageTypeMicError:
		s.bridge.handleOpenResult(env)

	case MessageTypeAudioFrame:
		s.bridge.handleFrame(env)

	case MessageTypeTrackEnded:
		s.bridge.handleTrackEnded()

	case MessageTypePlayResult:
		s.sink.handlePlayResult(env)

	case MessageTypeResumeDone:
		s.sink.handleResumeDone(env)

	default:
		s.log.Warn("unknown message type", "type", env.Type)
	}
}

func (s *Session) handleAttach(env *envelope) {
	var p AttachPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		s.log.Error("bad attach payload", "error", err)
		return
	}

	s.mu.Lock()
	if p.SessionID != "" {
		s.sessionID = p.SessionID
	}
	s.userID = p.UserID
	s.platform = shared.ParsePlatform(p.Platform)
	sessionID := s.sessionID
	platform := s.platform
	s.mu.Unlock()

	s.log.Info("ui attached",
		"session_id", sessionID, "user_id", p.UserID, "platform", platform)

	s.conn.Send(&Message{
		Type:      MessageTypeAttached,
		RequestID: env.RequestID,
		Payload: AttachedPayload{
			SessionID:   sessionID,
			Platform:    platform,
			Constraints: s.constraints,
		},
	})
}

func (s *Session) sendError(err error) {
	s.conn.Send(&Message{
		Type:    MessageTypeError,
		Payload: ErrorPayload{Message: shared.UserMessage(err)},
	})
}
