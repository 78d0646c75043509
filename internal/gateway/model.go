package gateway

import (
	"encoding/json"
	"time"

	"github.com/eleven-am/voice-client/internal/capture"
	"github.com/eleven-am/voice-client/internal/shared"
)

type MessageType string

const (
	// UI to engine.
	MessageTypeAttach     MessageType = "attach"
	MessageTypePressStart MessageType = "press_start"
	MessageTypePressStop  MessageType = "press_stop"
	MessageTypePressAbort MessageType = "press_abort"
	MessageTypeGesture    MessageType = "gesture"
	MessageTypeInterrupt  MessageType = "interrupt"
	MessageTypeMicOpened  MessageType = "mic_opened"
	MessageTypeMicError   MessageType = "mic_error"
	MessageTypeAudioFrame MessageType = "audio_frame"
	MessageTypeTrackEnded MessageType = "track_ended"
	MessageTypePlayResult MessageType = "play_result"
	MessageTypeResumeDone MessageType = "resume_done"

	// Engine to UI.
	MessageTypeAttached        MessageType = "attached"
	MessageTypeOpenMic         MessageType = "open_mic"
	MessageTypeCloseMic        MessageType = "close_mic"
	MessageTypeRecorderState   MessageType = "recorder_state"
	MessageTypeElapsed         MessageType = "elapsed"
	MessageTypeAssistantText   MessageType = "assistant_text"
	MessageTypeTextReveal      MessageType = "text_reveal"
	MessageTypeNarrationDone   MessageType = "narration_done"
	MessageTypePlay            MessageType = "play"
	MessageTypeHalt            MessageType = "halt"
	MessageTypeResume          MessageType = "resume"
	MessageTypeGestureRequired MessageType = "gesture_required"
	MessageTypeError           MessageType = "error"
)

// Message is one frame on the UI stream. Payload is typed per message
// kind; inbound frames are decoded through envelope first.
type Message struct {
	Type      MessageType `json:"type"`
	RequestID string      `json:"request_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   any         `json:"payload,omitempty"`
}

type envelope struct {
	Type      MessageType     `json:"type"`
	RequestID string          `json:"request_id"`
	Payload   json.RawMessage `json:"payload"`
}

type AttachPayload struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	Platform  string `json:"platform"`
}

type AttachedPayload struct {
	SessionID   string              `json:"session_id"`
	Platform    shared.Platform     `json:"platform"`
	Constraints capture.Constraints `json:"constraints"`
}

type OpenMicPayload struct {
	Constraints capture.Constraints `json:"constraints"`
}

type MicOpenedPayload struct {
	SampleRate int `json:"sample_rate"`
}

type MicErrorPayload struct {
	// Code is one of "permission_denied", "device_unavailable",
	// "device_busy".
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

type AudioFramePayload struct {
	// Audio is base64 PCM16LE at the negotiated sample rate.
	Audio string `json:"audio"`
}

type PlayPayload struct {
	ClipID string `json:"clip_id"`
	Audio  string `json:"audio"`
}

type PlayResultPayload struct {
	ClipID string `json:"clip_id"`
	// Outcome is one of "done", "gesture_required",
	// "format_unsupported", "halted".
	Outcome string `json:"outcome"`
}

type ResumeDonePayload struct {
	Running bool `json:"running"`
}

type RecorderStatePayload struct {
	State string `json:"state"`
}

type ElapsedPayload struct {
	Seconds int `json:"seconds"`
}

type AssistantTextPayload struct {
	Text string `json:"text"`
}

type TextRevealPayload struct {
	ChunkIndex int    `json:"chunk_index"`
	Text       string `json:"text"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

type StateSnapshot struct {
	Recorder        string `json:"recorder"`
	OutputContext   string `json:"output_context"`
	NarrationActive bool   `json:"narration_active"`
	PendingClip     bool   `json:"pending_clip"`
}
