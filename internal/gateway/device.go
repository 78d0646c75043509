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

	"github.com/eleven-am/voice-client/internal/capture"
	"github.com/eleven-am/voice-client/internal/shared"
)

const defaultOpenTimeout = 10 * time.Second

// Sender delivers engine messages to the attached UI.
type Sender interface {
	Send(msg *Message)
}

// StreamDevice is a microphone stream fed by audio_frame messages from
// the UI. It satisfies the capture device contract.
type StreamDevice struct {
	bridge *DeviceBridge
	frames chan []byte
	ended  chan struct{}
	rate   int
	once   sync.Once
}

func (d *StreamDevice) Frames() <-chan []byte  { return d.frames }
func (d *StreamDevice) Ended() <-chan struct{} { return d.ended }
func (d *StreamDevice) SampleRate() int        { return d.rate }

func (d *StreamDevice) Close() error {
	d.bridge.closeDevice(d)
	d.end()
	return nil
}

func (d *StreamDevice) end() {
	d.once.Do(func() { close(d.ended) })
}

func (d *StreamDevice) push(frame []byte) {
	select {
	case d.frames <- frame:
	default:
	}
}

type micOpenResult struct {
	rate int
	err  error
}

// DeviceBridge opens microphone streams over the UI connection: Open
// sends an open_mic command and blocks until the UI reports mic_opened or
// mic_error. It is the capture opener for this engine.
type DeviceBridge struct {
	sender      Sender
	openTimeout time.Duration
	clk         clock.Clock
	log         *slog.Logger

	mu      sync.Mutex
	pending map[string]chan micOpenResult
	device  *StreamDevice
}

type DeviceBridgeConfig struct {
	Sender      Sender
	OpenTimeout time.Duration
	Clock       clock.Clock
	Log         *slog.Logger
}

func NewDeviceBridge(cfg DeviceBridgeConfig) *DeviceBridge {
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = defaultOpenTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	return &DeviceBridge{
		sender:      cfg.Sender,
		openTimeout: cfg.OpenTimeout,
		clk:         cfg.Clock,
		log:         cfg.Log,
		pending:     make(map[string]chan micOpenResult),
	}
}

// Open requests a microphone from the UI and waits for its answer. UI
// refusals come back as the shared capture sentinels so the capture
// manager's retry policy applies unchanged.
func (b *DeviceBridge) Open(ctx context.Context, c capture.Constraints) (capture.Device, error) {
	requestID := uuid.NewString()
	result := make(chan micOpenResult, 1)

	b.mu.Lock()
	b.pending[requestID] = result
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.pending, requestID)
		b.mu.Unlock()
	}()

	b.sender.Send(&Message{
		Type:      MessageTypeOpenMic,
		RequestID: requestID,
		Payload:   OpenMicPayload{Constraints: c},
	})

	timer := b.clk.Timer(b.openTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, fmt.Errorf("mic open timed out: %w", shared.ErrDeviceUnavailable)
	case res := <-result:
		if res.err != nil {
			return nil, res.err
		}
		return b.install(res.rate), nil
	}
}

func (b *DeviceBridge) install(rate int) *StreamDevice {
	dev := &StreamDevice{
		bridge: b,
		frames: make(chan []byte, 64),
		ended:  make(chan struct{}),
		rate:   rate,
	}

	b.mu.Lock()
	old := b.device
	b.device = dev
	b.mu.Unlock()

	if old != nil {
		old.end()
	}
	return dev
}

func (b *DeviceBridge) closeDevice(d *StreamDevice) {
	b.mu.Lock()
	current := b.device == d
	if current {
		b.device = nil
	}
	b.mu.Unlock()

	if current {
		b.sender.Send(&Message{Type: MessageTypeCloseMic})
	}
}

// handleOpenResult routes a mic_opened or mic_error reply to the waiting
// Open call. Unmatched replies are dropped.
func (b *DeviceBridge) handleOpenResult(env *envelope) {
	b.mu.Lock()
	waiter, ok := b.pending[env.RequestID]
	b.mu.Unlock()
	if !ok {
		b.log.Warn("mic open reply without a waiter", "request_id", env.RequestID)
		return
	}

	switch env.Type {
	case MessageTypeMicOpened:
		var p MicOpenedPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			waiter <- micOpenResult{err: fmt.Errorf("bad mic_opened payload: %w", err)}
			return
		}
		if p.SampleRate <= 0 {
			p.SampleRate = capture.DefaultConstraints().SampleRate
		}
		waiter <- micOpenResult{rate: p.SampleRate}

	case MessageTypeMicError:
		var p MicErrorPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			waiter <- micOpenResult{err: shared.ErrDeviceUnavailable}
			return
		}
		waiter <- micOpenResult{err: micError(p)}
	}
}

func micError(p MicErrorPayload) error {
	var sentinel error
	switch p.Code {
	case "permission_denied":
		sentinel = shared.ErrPermissionDenied
	case "device_busy":
		sentinel = shared.ErrDeviceBusy
	default:
		sentinel = shared.ErrDeviceUnavailable
	}
	if p.Message == "" {
		return sentinel
	}
	return fmt.Errorf("%s: %w", p.Message, sentinel)
}

// handleFrame pushes one base64 PCM fragment to the live device. Frames
// arriving with no device open are discarded.
func (b *DeviceBridge) handleFrame(env *envelope) {
	var p AudioFramePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		b.log.Error("bad audio_frame payload", "error", err)
		return
	}
	frame, err := base64.StdEncoding.DecodeString(p.Audio)
	if err != nil {
		b.log.Error("audio frame is not valid base64", "error", err)
		return
	}

	b.mu.Lock()
	dev := b.device
	b.mu.Unlock()
	if dev != nil {
		dev.push(frame)
	}
}

// handleTrackEnded marks the live device dead, which triggers the capture
// manager's reacquisition.
func (b *DeviceBridge) handleTrackEnded() {
	b.mu.Lock()
	dev := b.device
	b.device = nil
	b.mu.Unlock()
	if dev != nil {
		dev.end()
	}
}
