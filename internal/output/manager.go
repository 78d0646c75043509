package output

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Manager owns the shared output context: it is the only writer of the
// play/halt state. A clip rejected for lack of a user gesture is parked so
// a later gesture handler can retry it.
type Manager struct {
	sink  Sink
	log   *slog.Logger
	state atomic.Int32

	mu      sync.Mutex
	pending []byte
}

func NewManager(sink Sink, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	m := &Manager{
		sink: sink,
		log:  log,
	}
	m.state.Store(int32(StateSuspended))
	return m
}

func (m *Manager) State() ContextState {
	return ContextState(m.state.Load())
}

// Play attempts playback immediately. A GestureRequired outcome parks the
// clip for RetryPending; it is not a failure.
func (m *Manager) Play(ctx context.Context, clip []byte) (Outcome, error) {
	if m.State() == StateClosed {
		return OutcomeHalted, nil
	}

	outcome, err := m.sink.Play(ctx, clip)
	if err != nil {
		return outcome, err
	}

	switch outcome {
	case OutcomeDone:
		m.markRunning()
		m.clearPending()
	case OutcomeGestureRequired:
		m.park(clip)
	case OutcomeFormatUnsupported:
		m.log.Warn("playback rejected: unsupported format", "clip_bytes", len(clip))
	}

	return outcome, nil
}

// RetryPending replays the parked clip from within a user-gesture handler.
func (m *Manager) RetryPending(ctx context.Context) (Outcome, error) {
	m.mu.Lock()
	clip := m.pending
	m.pending = nil
	m.mu.Unlock()

	if clip == nil {
		return OutcomeDone, nil
	}

	m.Resume(ctx)
	return m.Play(ctx, clip)
}

// Resume opportunistically unsuspends the output context. Invoked at the
// start of every gesture-triggered recording or playback action, since
// some platforms require a gesture even to unsuspend.
func (m *Manager) Resume(ctx context.Context) {
	if m.State() != StateSuspended {
		return
	}
	if err := m.sink.Resume(ctx); err != nil {
		m.log.Debug("output context resume deferred", "error", err)
		return
	}
	m.markRunning()
}

// Halt stops whatever is currently playing and discards its position.
func (m *Manager) Halt() {
	m.sink.Halt()
}

// Close marks the context closed; subsequent plays are no-ops.
func (m *Manager) Close() {
	m.state.Store(int32(StateClosed))
	m.sink.Halt()
	m.clearPending()
}

func (m *Manager) markRunning() {
	m.state.CompareAndSwap(int32(StateSuspended), int32(StateRunning))
}

func (m *Manager) park(clip []byte) {
	m.mu.Lock()
	m.pending = clip
	m.mu.Unlock()
}

func (m *Manager) clearPending() {
	m.mu.Lock()
	m.pending = nil
	m.mu.Unlock()
}

// HasPending reports whether a clip awaits a manual tap-to-play gesture.
func (m *Manager) HasPending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending != nil
}
