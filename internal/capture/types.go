package capture

import (
	"context"
	"sync/atomic"
)

// Constraints are the fixed capture settings requested from the platform
// audio layer. The companion service expects mono 16 kHz input.
type Constraints struct {
	Channels         int  `json:"channels"`
	SampleRate       int  `json:"sample_rate"`
	EchoCancellation bool `json:"echo_cancellation"`
	NoiseSuppression bool `json:"noise_suppression"`
	AutoGainControl  bool `json:"auto_gain_control"`
}

func DefaultConstraints() Constraints {
	return Constraints{
		Channels:         1,
		SampleRate:       16000,
		EchoCancellation: true,
		NoiseSuppression: true,
		AutoGainControl:  true,
	}
}

// Device is one open microphone stream. Frames delivers raw PCM16LE
// fragments at the negotiated sample rate. Ended is closed when the
// underlying track dies (device unplugged, permission revoked mid-stream).
type Device interface {
	Frames() <-chan []byte
	Ended() <-chan struct{}
	SampleRate() int
	Close() error
}

// Opener produces Devices. Open classifies failures with the shared
// sentinels ErrPermissionDenied, ErrDeviceUnavailable and ErrDeviceBusy.
type Opener interface {
	Open(ctx context.Context, c Constraints) (Device, error)
}

// Handle wraps the single live Device. Other components may only read the
// readiness flag; the Manager is the sole writer.
type Handle struct {
	dev   Device
	done  chan struct{}
	ready atomic.Bool
}

func newHandle(dev Device) *Handle {
	h := &Handle{dev: dev, done: make(chan struct{})}
	h.ready.Store(true)
	return h
}

func (h *Handle) doneCh() <-chan struct{} {
	return h.done
}

func (h *Handle) Ready() bool {
	return h != nil && h.ready.Load()
}

func (h *Handle) Frames() <-chan []byte {
	return h.dev.Frames()
}

func (h *Handle) SampleRate() int {
	return h.dev.SampleRate()
}

func (h *Handle) markEnded() {
	h.ready.Store(false)
}
