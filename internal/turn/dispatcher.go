package turn

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/eleven-am/voice-client/internal/narration"
	"github.com/eleven-am/voice-client/internal/output"
	"github.com/eleven-am/voice-client/internal/shared"
)

// Service is the remote side of one voice turn.
type Service interface {
	SendTurn(ctx context.Context, encodedClip, sessionID, userID string) (*TurnResponse, error)
}

// Player plays a single complete clip.
type Player interface {
	Play(ctx context.Context, clip []byte) (output.Outcome, error)
}

// Narrator runs a chunked narration session.
type Narrator interface {
	Start(s narration.Session)
}

// Events surface per-turn results to the UI layer. OnMessage carries the
// spoken or narrated text and fires exactly once per successful turn.
type Events struct {
	OnMessage         func(text string)
	OnGestureRequired func()
}

// Dispatcher uploads an encoded recording and routes the reply: a plain
// response goes straight to playback, a chunked narration seeds a fresh
// queue and hands it to the narration engine.
type Dispatcher struct {
	service  Service
	player   Player
	narrator Narrator
	events   Events
	log      *slog.Logger
}

type DispatcherConfig struct {
	Service  Service
	Player   Player
	Narrator Narrator
	Events   Events
	Log      *slog.Logger
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	return &Dispatcher{
		service:  cfg.Service,
		player:   cfg.Player,
		narrator: cfg.Narrator,
		events:   cfg.Events,
		log:      cfg.Log,
	}
}

// Upload sends one encoded clip and dispatches the reply. It implements
// the recorder's uploader contract.
func (d *Dispatcher) Upload(ctx context.Context, encodedClip, sessionID, userID string) error {
	resp, err := d.service.SendTurn(ctx, encodedClip, sessionID, userID)
	if err != nil {
		return fmt.Errorf("voice turn: %w", err)
	}
	return d.dispatch(ctx, resp, userID)
}

func (d *Dispatcher) dispatch(ctx context.Context, resp *TurnResponse, userID string) error {
	if d.events.OnMessage != nil {
		d.events.OnMessage(resp.ResponseText)
	}

	if resp.IsChunked() {
		return d.startNarration(resp, userID)
	}

	clip, err := base64.StdEncoding.DecodeString(resp.ResponseAudio)
	if err != nil {
		return fmt.Errorf("decode response audio: %w", err)
	}

	outcome, err := d.player.Play(ctx, clip)
	if err != nil {
		return fmt.Errorf("play response: %w", err)
	}
	switch outcome {
	case output.OutcomeGestureRequired:
		if d.events.OnGestureRequired != nil {
			d.events.OnGestureRequired()
		}
	case output.OutcomeFormatUnsupported:
		return fmt.Errorf("play response: %w", shared.ErrFormatUnsupported)
	}
	return nil
}

func (d *Dispatcher) startNarration(resp *TurnResponse, userID string) error {
	firstAudio, err := base64.StdEncoding.DecodeString(resp.ResponseAudio)
	if err != nil {
		return fmt.Errorf("decode first chunk audio: %w", err)
	}
	if len(firstAudio) == 0 {
		// No inline audio means the first chunk is fetched like the rest.
		firstAudio = nil
	}

	meta := resp.Metadata
	rest := make([]narration.Descriptor, 0, len(meta.RemainingChunks))
	for _, d := range meta.RemainingChunks {
		rest = append(rest, narration.Descriptor{
			Index: d.ChunkID,
			Text:  d.Text,
		})
	}

	if meta.TotalChunks > 0 && meta.TotalChunks != len(rest)+1 {
		d.log.Warn("narration chunk count mismatch",
			"total_chunks", meta.TotalChunks, "descriptors", len(rest))
	}

	sessionID := uuid.NewString()
	queue := narration.NewQueue(sessionID, resp.ResponseText, firstAudio, rest)
	d.narrator.Start(narration.Session{
		Queue:  queue,
		UserID: userID,
	})

	d.log.Info("narration started", "story_session_id", sessionID, "chunks", queue.Len())
	return nil
}
