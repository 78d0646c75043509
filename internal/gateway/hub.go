package gateway

import (
	"log/slog"
	"sync"
)

// Hub holds the single active UI session. A second connection replaces
// the first; the engine talks to whichever UI is attached, or drops
// messages when none is.
type Hub struct {
	log *slog.Logger

	mu   sync.RWMutex
	sess *Session
}

func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{log: log}
}

func (h *Hub) register(s *Session) {
	h.mu.Lock()
	old := h.sess
	h.sess = s
	h.mu.Unlock()

	if old != nil {
		h.log.Info("replacing attached ui connection")
		_ = old.conn.Close()
	}
}

func (h *Hub) unregister(s *Session) {
	h.mu.Lock()
	if h.sess == s {
		h.sess = nil
	}
	h.mu.Unlock()
}

// Send forwards an engine message to the attached UI, if any.
func (h *Hub) Send(msg *Message) {
	h.mu.RLock()
	sess := h.sess
	h.mu.RUnlock()
	if sess != nil {
		sess.conn.Send(msg)
	}
}

// Session returns the attached session, which may be nil.
func (h *Hub) Session() *Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sess
}

func (h *Hub) NotifyRecorderState(state string) {
	h.Send(&Message{Type: MessageTypeRecorderState, Payload: RecorderStatePayload{State: state}})
}

func (h *Hub) NotifyElapsed(seconds int) {
	h.Send(&Message{Type: MessageTypeElapsed, Payload: ElapsedPayload{Seconds: seconds}})
}

func (h *Hub) NotifyAssistantText(text string) {
	h.Send(&Message{Type: MessageTypeAssistantText, Payload: AssistantTextPayload{Text: text}})
}

func (h *Hub) NotifyTextReveal(index int, text string) {
	h.Send(&Message{Type: MessageTypeTextReveal, Payload: TextRevealPayload{ChunkIndex: index, Text: text}})
}

func (h *Hub) NotifyNarrationDone() {
	h.Send(&Message{Type: MessageTypeNarrationDone})
}

func (h *Hub) NotifyGestureRequired() {
	h.Send(&Message{Type: MessageTypeGestureRequired})
}

func (h *Hub) NotifyError(message string) {
	h.Send(&Message{Type: MessageTypeError, Payload: ErrorPayload{Message: message}})
}
