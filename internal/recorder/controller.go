package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/eleven-am/voice-client/internal/audio"
	"github.com/eleven-am/voice-client/internal/capture"
	"github.com/eleven-am/voice-client/internal/shared"
)

// State is the recording lifecycle phase. Transitions are strictly
// forward within one take; every terminal path returns to StateIdle.
type State int32

const (
	StateIdle State = iota
	StateRecording
	StateStopping
	StateEncoding
	StateUploading
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateStopping:
		return "stopping"
	case StateEncoding:
		return "encoding"
	case StateUploading:
		return "uploading"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Uploader ships one encoded clip to the conversational service and
// handles whatever reply comes back.
type Uploader interface {
	Upload(ctx context.Context, encodedClip, sessionID, userID string) error
}

// Interrupter halts whatever is currently speaking. Called unconditionally
// when a new recording starts, whether or not playback is active.
type Interrupter interface {
	Interrupt()
}

// Events push recorder progress to the UI layer. All callbacks are
// optional and are invoked outside the controller lock.
type Events struct {
	OnState   func(s State)
	OnElapsed func(seconds int)
	OnError   func(err error)
}

const defaultTickInterval = time.Second

// Controller drives one recording take at a time: it interrupts playback,
// accumulates capture frames, assembles and validates the clip, encodes
// it and hands it to the uploader. It refuses to start while a previous
// take is still in flight.
type Controller struct {
	mics        *capture.Manager
	encoder     *audio.Encoder
	uploader    Uploader
	interrupter Interrupter
	events      Events
	thresholds  audio.Thresholds
	platform    shared.Platform
	tick        time.Duration
	clk         clock.Clock
	log         *slog.Logger

	mu        sync.Mutex
	state     State
	stop      chan struct{}
	fragments [][]byte
	rate      int
}

type ControllerConfig struct {
	Mics         *capture.Manager
	Encoder      *audio.Encoder
	Uploader     Uploader
	Interrupter  Interrupter
	Events       Events
	Thresholds   audio.Thresholds
	Platform     shared.Platform
	TickInterval time.Duration
	Clock        clock.Clock
	Log          *slog.Logger
}

func NewController(cfg ControllerConfig) *Controller {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = defaultTickInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.Thresholds == (audio.Thresholds{}) {
		cfg.Thresholds = audio.DefaultThresholds()
	}
	if cfg.Platform == "" {
		cfg.Platform = shared.PlatformDesktop
	}
	return &Controller{
		mics:        cfg.Mics,
		encoder:     cfg.Encoder,
		uploader:    cfg.Uploader,
		interrupter: cfg.Interrupter,
		events:      cfg.Events,
		thresholds:  cfg.Thresholds,
		platform:    cfg.Platform,
		tick:        cfg.TickInterval,
		clk:         cfg.Clock,
		log:         cfg.Log,
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start interrupts any active playback and begins accumulating frames.
// It fails with ErrDeviceBusy while a previous take is still being
// processed, and with a capture error when no microphone can be opened.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return fmt.Errorf("recorder busy in state %s: %w", c.state, shared.ErrDeviceBusy)
	}
	c.mu.Unlock()

	// Barge-in happens before the device is touched so the speaker goes
	// quiet even if acquisition then fails.
	c.interrupter.Interrupt()

	handle := c.mics.Handle()
	if !handle.Ready() {
		var err error
		handle, err = c.mics.Acquire(ctx)
		if err != nil {
			c.emitError(err)
			return err
		}
	}

	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return fmt.Errorf("recorder busy in state %s: %w", c.state, shared.ErrDeviceBusy)
	}
	c.state = StateRecording
	c.stop = make(chan struct{})
	c.fragments = nil
	c.rate = handle.SampleRate()
	stop := c.stop
	c.mu.Unlock()

	c.emitState(StateRecording)

	go c.accumulate(handle, stop)
	go c.tickElapsed(stop)

	return nil
}

// Stop ends frame accumulation and runs the assemble, validate, encode
// and upload pipeline. It returns once the pipeline finishes; the
// controller is back in StateIdle whatever the outcome.
func (c *Controller) Stop(ctx context.Context, sessionID, userID string) error {
	c.mu.Lock()
	if c.state != StateRecording {
		c.mu.Unlock()
		return fmt.Errorf("stop in state %s: %w", c.state, shared.ErrDeviceBusy)
	}
	c.state = StateStopping
	close(c.stop)
	c.mu.Unlock()

	c.emitState(StateStopping)

	err := c.process(ctx, sessionID, userID)

	// Done and Failed are reported but not rested in: the controller is
	// immediately ready for the next take.
	final := StateDone
	if err != nil {
		final = StateFailed
	}
	c.setState(final)

	c.mu.Lock()
	c.state = StateIdle
	c.fragments = nil
	c.mu.Unlock()
	c.emitState(StateIdle)

	if err != nil {
		c.emitError(err)
	}
	return err
}

// Abort discards the take without encoding or uploading anything.
func (c *Controller) Abort() {
	c.mu.Lock()
	if c.state != StateRecording {
		c.mu.Unlock()
		return
	}
	c.state = StateIdle
	close(c.stop)
	c.fragments = nil
	c.mu.Unlock()
	c.emitState(StateIdle)
}

func (c *Controller) process(ctx context.Context, sessionID, userID string) error {
	c.mu.Lock()
	fragments := c.fragments
	rate := c.rate
	c.mu.Unlock()

	clip := audio.Assemble(fragments, rate)
	if err := audio.Validate(clip, c.platform, c.thresholds); err != nil {
		if errors.Is(err, shared.ErrRecordingTooShort) {
			c.log.Info("recording discarded", "reason", "too short", "bytes", len(clip))
		}
		return err
	}

	c.setState(StateEncoding)
	encoded, err := c.encoder.Encode(clip)
	if err != nil {
		return fmt.Errorf("encode clip: %w", err)
	}

	c.setState(StateUploading)
	if err := c.uploader.Upload(ctx, encoded, sessionID, userID); err != nil {
		return err
	}

	c.log.Info("turn uploaded", "clip_bytes", len(clip), "session_id", sessionID)
	return nil
}

func (c *Controller) accumulate(handle *capture.Handle, stop <-chan struct{}) {
	frames := handle.Frames()
	for {
		select {
		case <-stop:
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			buf := make([]byte, len(frame))
			copy(buf, frame)
			c.mu.Lock()
			if c.state == StateRecording {
				c.fragments = append(c.fragments, buf)
			}
			c.mu.Unlock()
		}
	}
}

func (c *Controller) tickElapsed(stop <-chan struct{}) {
	if c.events.OnElapsed == nil {
		return
	}
	ticker := c.clk.Ticker(c.tick)
	defer ticker.Stop()

	elapsed := 0
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			elapsed++
			c.events.OnElapsed(elapsed)
		}
	}
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	c.emitState(s)
}

func (c *Controller) emitState(s State) {
	if c.events.OnState != nil {
		c.events.OnState(s)
	}
}

func (c *Controller) emitError(err error) {
	if c.events.OnError != nil {
		c.events.OnError(err)
	}
}
