package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/eleven-am/voice-client/internal/output"
	"github.com/eleven-am/voice-client/internal/shared"
)

const defaultResumeTimeout = 3 * time.Second

// StreamSink plays clips through the attached UI: Play ships the clip as
// a play command and blocks until the UI reports the outcome, a halt cuts
// it short, or the context is cancelled. It is the output sink for this
// engine.
type StreamSink struct {
	sender        Sender
	resumeTimeout time.Duration
	clk           clock.Clock
	log           *slog.Logger

	mu      sync.Mutex
	waiting map[string]chan output.Outcome
	resumes map[string]chan bool
}

type StreamSinkConfig struct {
	Sender        Sender
	ResumeTimeout time.Duration
	Clock         clock.Clock
	Log           *slog.Logger
}

func NewStreamSink(cfg StreamSinkConfig) *StreamSink {
	if cfg.ResumeTimeout <= 0 {
		cfg.ResumeTimeout = defaultResumeTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	return &StreamSink{
		sender:        cfg.Sender,
		resumeTimeout: cfg.ResumeTimeout,
		clk:           cfg.Clock,
		log:           cfg.Log,
		waiting:       make(map[string]chan output.Outcome),
		resumes:       make(map[string]chan bool),
	}
}

func (s *StreamSink) Play(ctx context.Context, clip []byte) (output.Outcome, error) {
	clipID := uuid.NewString()
	done := make(chan output.Outcome, 1)

	s.mu.Lock()
	s.waiting[clipID] = done
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.waiting, clipID)
		s.mu.Unlock()
	}()

	s.sender.Send(&Message{
		Type: MessageTypePlay,
		Payload: PlayPayload{
			ClipID: clipID,
			Audio:  base64.StdEncoding.EncodeToString(clip),
		},
	})

	select {
	case <-ctx.Done():
		s.sender.Send(&Message{Type: MessageTypeHalt})
		return output.OutcomeHalted, ctx.Err()
	case outcome := <-done:
		return outcome, nil
	}
}

// Halt tells the UI to stop the current clip and releases every blocked
// Play as halted.
func (s *StreamSink) Halt() {
	s.sender.Send(&Message{Type: MessageTypeHalt})

	s.mu.Lock()
	for id, waiter := range s.waiting {
		select {
		case waiter <- output.OutcomeHalted:
		default:
		}
		delete(s.waiting, id)
	}
	s.mu.Unlock()
}

// Resume asks the UI to unsuspend its audio context. A still-suspended
// answer or a silent UI both come back as a gesture requirement so the
// output manager stays suspended.
func (s *StreamSink) Resume(ctx context.Context) error {
	requestID := uuid.NewString()
	done := make(chan bool, 1)

	s.mu.Lock()
	s.resumes[requestID] = done
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.resumes, requestID)
		s.mu.Unlock()
	}()

	s.sender.Send(&Message{Type: MessageTypeResume, RequestID: requestID})

	timer := s.clk.Timer(s.resumeTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("resume unanswered: %w", shared.ErrGestureRequired)
	case running := <-done:
		if !running {
			return shared.ErrGestureRequired
		}
		return nil
	}
}

func (s *StreamSink) handlePlayResult(env *envelope) {
	var p PlayResultPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		s.log.Error("bad play_result payload", "error", err)
		return
	}

	s.mu.Lock()
	waiter, ok := s.waiting[p.ClipID]
	if ok {
		delete(s.waiting, p.ClipID)
	}
	s.mu.Unlock()
	if !ok {
		return
	}

	select {
	case waiter <- parseOutcome(p.Outcome):
	default:
	}
}

func (s *StreamSink) handleResumeDone(env *envelope) {
	var p ResumeDonePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		s.log.Error("bad resume_done payload", "error", err)
		return
	}

	s.mu.Lock()
	waiter, ok := s.resumes[env.RequestID]
	s.mu.Unlock()
	if ok {
		select {
		case waiter <- p.Running:
		default:
		}
	}
}

func parseOutcome(s string) output.Outcome {
	switch s {
	case "done":
		return output.OutcomeDone
	case "gesture_required":
		return output.OutcomeGestureRequired
	case "format_unsupported":
		return output.OutcomeFormatUnsupported
	default:
		return output.OutcomeHalted
	}
}
