package turn

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"testing"

	"github.com/eleven-am/voice-client/internal/narration"
	"github.com/eleven-am/voice-client/internal/output"
	"github.com/eleven-am/voice-client/internal/shared"
)

type stubService struct {
	resp *TurnResponse
	err  error
}

func (s *stubService) SendTurn(context.Context, string, string, string) (*TurnResponse, error) {
	return s.resp, s.err
}

type spyPlayer struct {
	mu      sync.Mutex
	clips   [][]byte
	outcome output.Outcome
}

func (p *spyPlayer) Play(_ context.Context, clip []byte) (output.Outcome, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clips = append(p.clips, clip)
	return p.outcome, nil
}

func (p *spyPlayer) playCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clips)
}

type spyNarrator struct {
	mu       sync.Mutex
	sessions []narration.Session
}

func (n *spyNarrator) Start(s narration.Session) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sessions = append(n.sessions, s)
}

func (n *spyNarrator) startCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sessions)
}

type messageRecorder struct {
	mu       sync.Mutex
	messages []string
	gestures int
}

func (r *messageRecorder) events() Events {
	return Events{
		OnMessage: func(text string) {
			r.mu.Lock()
			r.messages = append(r.messages, text)
			r.mu.Unlock()
		},
		OnGestureRequired: func() {
			r.mu.Lock()
			r.gestures++
			r.mu.Unlock()
		},
	}
}

func b64(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

func newTestDispatcher(svc Service, p Player, n Narrator, rec *messageRecorder) *Dispatcher {
	return NewDispatcher(DispatcherConfig{
		Service:  svc,
		Player:   p,
		Narrator: n,
		Events:   rec.events(),
	})
}

func TestDispatcher_SingleClipTurn(t *testing.T) {
	audio := []byte{1, 2, 3}
	svc := &stubService{resp: &TurnResponse{
		Status:        "success",
		ResponseText:  "hi there",
		ResponseAudio: b64(audio),
	}}
	player := &spyPlayer{}
	narrator := &spyNarrator{}
	rec := &messageRecorder{}
	d := newTestDispatcher(svc, player, narrator, rec)

	if err := d.Upload(context.Background(), "clip", "s", "u"); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	if player.playCount() != 1 {
		t.Errorf("single-clip turn should play exactly once, got %d", player.playCount())
	}
	if narrator.startCount() != 0 {
		t.Error("no playback queue may be created for a plain turn")
	}
	if len(rec.messages) != 1 || rec.messages[0] != "hi there" {
		t.Errorf("exactly one message record expected, got %v", rec.messages)
	}
}

func TestDispatcher_ChunkedNarrationTurn(t *testing.T) {
	svc := &stubService{resp: &TurnResponse{
		Status:        "success",
		ResponseText:  "once upon a time",
		ResponseAudio: b64([]byte{9}),
		Metadata: &TurnMetadata{
			StoryMode:   true,
			TotalChunks: 5,
			RemainingChunks: []ChunkDescriptor{
				{ChunkID: 1, Text: "a"},
				{ChunkID: 2, Text: "b"},
				{ChunkID: 3, Text: "c"},
				{ChunkID: 4, Text: "d"},
			},
		},
	}}
	player := &spyPlayer{}
	narrator := &spyNarrator{}
	rec := &messageRecorder{}
	d := newTestDispatcher(svc, player, narrator, rec)

	if err := d.Upload(context.Background(), "clip", "s", "user-1"); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	if narrator.startCount() != 1 {
		t.Fatalf("narration should start exactly once, got %d", narrator.startCount())
	}
	sess := narrator.sessions[0]
	if sess.Queue.Len() != 5 {
		t.Errorf("queue should hold all 5 chunks, got %d", sess.Queue.Len())
	}
	if sess.UserID != "user-1" {
		t.Errorf("session user id lost: %q", sess.UserID)
	}
	if player.playCount() != 0 {
		t.Error("the dispatcher must not play directly in the chunked branch")
	}
	if len(rec.messages) != 1 {
		t.Errorf("exactly one message record per turn, got %d", len(rec.messages))
	}
}

func TestDispatcher_FreshSessionIDPerNarration(t *testing.T) {
	resp := &TurnResponse{
		Status:        "success",
		ResponseText:  "story",
		ResponseAudio: b64([]byte{1}),
		Metadata:      &TurnMetadata{StoryMode: true},
	}
	narrator := &spyNarrator{}
	rec := &messageRecorder{}
	d := newTestDispatcher(&stubService{resp: resp}, &spyPlayer{}, narrator, rec)

	d.Upload(context.Background(), "clip", "s", "u")
	d.Upload(context.Background(), "clip", "s", "u")

	if narrator.sessions[0].Queue.SessionID == narrator.sessions[1].Queue.SessionID {
		t.Error("each narration attempt needs a fresh session id")
	}
}

func TestDispatcher_ServiceErrorPropagates(t *testing.T) {
	svc := &stubService{err: &shared.ProcessingError{Message: "no speech"}}
	rec := &messageRecorder{}
	d := newTestDispatcher(svc, &spyPlayer{}, &spyNarrator{}, rec)

	err := d.Upload(context.Background(), "clip", "s", "u")
	var procErr *shared.ProcessingError
	if !errors.As(err, &procErr) {
		t.Fatalf("expected ProcessingError, got %v", err)
	}
	if len(rec.messages) != 0 {
		t.Error("failed turn must not emit a message record")
	}
}

func TestDispatcher_GestureRequiredSurfaced(t *testing.T) {
	svc := &stubService{resp: &TurnResponse{
		Status:        "success",
		ResponseText:  "hi",
		ResponseAudio: b64([]byte{1}),
	}}
	player := &spyPlayer{outcome: output.OutcomeGestureRequired}
	rec := &messageRecorder{}
	d := newTestDispatcher(svc, player, &spyNarrator{}, rec)

	if err := d.Upload(context.Background(), "clip", "s", "u"); err != nil {
		t.Fatalf("gesture-required is not a failure: %v", err)
	}
	if rec.gestures != 1 {
		t.Errorf("expected one gesture affordance event, got %d", rec.gestures)
	}
}

func TestDispatcher_FormatUnsupportedIsTerminal(t *testing.T) {
	svc := &stubService{resp: &TurnResponse{
		Status:        "success",
		ResponseText:  "hi",
		ResponseAudio: b64([]byte{1}),
	}}
	player := &spyPlayer{outcome: output.OutcomeFormatUnsupported}
	rec := &messageRecorder{}
	d := newTestDispatcher(svc, player, &spyNarrator{}, rec)

	err := d.Upload(context.Background(), "clip", "s", "u")
	if !errors.Is(err, shared.ErrFormatUnsupported) {
		t.Errorf("expected ErrFormatUnsupported, got %v", err)
	}
}
