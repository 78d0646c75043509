package output

import "context"

// Outcome is the result of one playback attempt. Platform rejections are
// outcomes, not errors: GestureRequired is recoverable through a manual
// tap-to-play affordance, FormatUnsupported is terminal for that payload.
type Outcome int

const (
	OutcomeDone Outcome = iota
	OutcomeGestureRequired
	OutcomeFormatUnsupported
	OutcomeHalted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDone:
		return "done"
	case OutcomeGestureRequired:
		return "gesture_required"
	case OutcomeFormatUnsupported:
		return "format_unsupported"
	case OutcomeHalted:
		return "halted"
	default:
		return "unknown"
	}
}

// ContextState tracks the shared audio-output context. Created once at
// startup; moves to running on the first user gesture or a successful
// autoplay; closed only at teardown.
type ContextState int32

const (
	StateSuspended ContextState = iota
	StateRunning
	StateClosed
)

func (s ContextState) String() string {
	switch s {
	case StateSuspended:
		return "suspended"
	case StateRunning:
		return "running"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Sink is the platform playback device. Play blocks until the clip
// finishes, is halted, or the platform rejects it.
type Sink interface {
	Play(ctx context.Context, clip []byte) (Outcome, error)
	Halt()
	Resume(ctx context.Context) error
}
