package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/eleven-am/voice-client/internal/shared"
)

const defaultRetryDelay = 300 * time.Millisecond

// Manager owns the microphone handle. Exactly one live handle exists at a
// time; acquiring a new one releases the old one first. A track-ended
// observer marks the handle not ready and reacquires automatically.
type Manager struct {
	opener      Opener
	constraints Constraints
	retryDelay  time.Duration
	clk         clock.Clock
	log         *slog.Logger

	mu     sync.Mutex
	handle *Handle
	gen    uint64
	closed bool
}

type ManagerConfig struct {
	Opener      Opener
	Constraints Constraints
	RetryDelay  time.Duration
	Clock       clock.Clock
	Log         *slog.Logger
}

func NewManager(cfg ManagerConfig) *Manager {
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.Constraints == (Constraints{}) {
		cfg.Constraints = DefaultConstraints()
	}
	return &Manager{
		opener:      cfg.Opener,
		constraints: cfg.Constraints,
		retryDelay:  cfg.RetryDelay,
		clk:         cfg.Clock,
		log:         cfg.Log,
	}
}

func (m *Manager) Constraints() Constraints {
	return m.constraints
}

// Acquire opens a device, retrying once after a short delay on busy or
// transient failures. Permission denial is surfaced immediately.
func (m *Manager) Acquire(ctx context.Context) (*Handle, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, shared.ErrDeviceUnavailable
	}
	m.releaseLocked()
	gen := m.gen
	m.mu.Unlock()

	// The open can sit on a permission prompt or the retry delay for
	// seconds; Handle, Release and Close must stay responsive meanwhile.
	dev, err := m.open(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire capture device: %w", err)
	}

	m.mu.Lock()
	if m.closed || m.gen != gen {
		// Released, closed or replaced while the open was in flight.
		m.mu.Unlock()
		if cerr := dev.Close(); cerr != nil {
			m.log.Warn("capture device close failed", "error", cerr)
		}
		return nil, shared.ErrDeviceUnavailable
	}
	handle := newHandle(dev)
	m.handle = handle
	m.mu.Unlock()

	go m.watchEnded(handle, gen)
	return handle, nil
}

func (m *Manager) open(ctx context.Context) (Device, error) {
	dev, err := m.opener.Open(ctx, m.constraints)
	if err == nil {
		return dev, nil
	}
	if errors.Is(err, shared.ErrPermissionDenied) {
		return nil, err
	}

	m.log.Warn("capture open failed, retrying once", "error", err)
	m.clk.Sleep(m.retryDelay)

	dev, retryErr := m.opener.Open(ctx, m.constraints)
	if retryErr != nil {
		return nil, retryErr
	}
	return dev, nil
}

func (m *Manager) watchEnded(h *Handle, gen uint64) {
	select {
	case <-h.dev.Ended():
	case <-h.doneCh():
		return
	}

	h.markEnded()
	m.log.Warn("capture track ended, reacquiring")

	m.mu.Lock()
	stale := m.closed || m.gen != gen || m.handle != h
	m.mu.Unlock()
	if stale {
		return
	}

	if _, err := m.Acquire(context.Background()); err != nil {
		m.log.Error("capture reacquire failed", "error", err)
	}
}

// Handle returns the current handle, which may be nil or not ready.
func (m *Manager) Handle() *Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handle
}

// Release stops the underlying tracks. Called on teardown and before any
// replacement acquisition.
func (m *Manager) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releaseLocked()
}

// Close releases the device and refuses further acquisitions.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releaseLocked()
	m.closed = true
}

// releaseLocked bumps the generation even without a live handle so that an
// acquisition still opening its device sees it was superseded.
func (m *Manager) releaseLocked() {
	m.gen++
	if m.handle == nil {
		return
	}
	m.handle.markEnded()
	close(m.handle.done)
	if err := m.handle.dev.Close(); err != nil {
		m.log.Warn("capture device close failed", "error", err)
	}
	m.handle = nil
}
