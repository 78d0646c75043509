package bootstrap

import (
	"context"
	"log/slog"

	"github.com/labstack/echo/v4"
	"go.uber.org/fx"

	"github.com/eleven-am/voice-client/internal/audio"
	"github.com/eleven-am/voice-client/internal/capture"
	"github.com/eleven-am/voice-client/internal/gateway"
	"github.com/eleven-am/voice-client/internal/interrupt"
	"github.com/eleven-am/voice-client/internal/narration"
	"github.com/eleven-am/voice-client/internal/output"
	"github.com/eleven-am/voice-client/internal/recorder"
	"github.com/eleven-am/voice-client/internal/shared"
	"github.com/eleven-am/voice-client/internal/turn"
)

// Engine is the controller the UI gateway drives. It fronts the recorder,
// the output manager, the narration engine and the barge-in coordinator.
type Engine struct {
	recorder *recorder.Controller
	outputs  *output.Manager
	narrator *narration.Engine
	coord    *interrupt.Coordinator
}

func NewEngine(
	rec *recorder.Controller,
	outputs *output.Manager,
	narrator *narration.Engine,
	coord *interrupt.Coordinator,
) *Engine {
	return &Engine{
		recorder: rec,
		outputs:  outputs,
		narrator: narrator,
		coord:    coord,
	}
}

// StartRecording begins a take. The press is a user gesture, so the
// output context gets its opportunistic resume first.
func (e *Engine) StartRecording(ctx context.Context) error {
	e.outputs.Resume(ctx)
	return e.recorder.Start(ctx)
}

func (e *Engine) StopRecording(ctx context.Context, sessionID, userID string) error {
	return e.recorder.Stop(ctx, sessionID, userID)
}

func (e *Engine) AbortRecording() {
	e.recorder.Abort()
}

// Gesture handles an explicit tap-to-play: it resumes the output context
// and replays whatever clip was parked waiting for it.
func (e *Engine) Gesture(ctx context.Context) error {
	outcome, err := e.outputs.RetryPending(ctx)
	if err != nil {
		return err
	}
	if outcome == output.OutcomeGestureRequired {
		return shared.ErrGestureRequired
	}
	return nil
}

func (e *Engine) Interrupt() {
	e.coord.Interrupt()
}

func (e *Engine) Snapshot() gateway.StateSnapshot {
	return gateway.StateSnapshot{
		Recorder:        e.recorder.State().String(),
		OutputContext:   e.outputs.State().String(),
		NarrationActive: e.narrator.Active(),
		PendingClip:     e.outputs.HasPending(),
	}
}

func ProvideHub(logger *slog.Logger) *gateway.Hub {
	return gateway.NewHub(logger)
}

func ProvideDeviceBridge(hub *gateway.Hub, logger *slog.Logger) *gateway.DeviceBridge {
	return gateway.NewDeviceBridge(gateway.DeviceBridgeConfig{
		Sender: hub,
		Log:    logger.With("component", "device_bridge"),
	})
}

func ProvideStreamSink(hub *gateway.Hub, logger *slog.Logger) *gateway.StreamSink {
	return gateway.NewStreamSink(gateway.StreamSinkConfig{
		Sender: hub,
		Log:    logger.With("component", "stream_sink"),
	})
}

func ProvideCaptureManager(bridge *gateway.DeviceBridge, cfg *Config, logger *slog.Logger) *capture.Manager {
	return capture.NewManager(capture.ManagerConfig{
		Opener:      bridge,
		Constraints: capture.DefaultConstraints(),
		RetryDelay:  cfg.MicRetry,
		Log:         logger.With("component", "capture"),
	})
}

func ProvideOutputManager(sink *gateway.StreamSink, logger *slog.Logger) *output.Manager {
	return output.NewManager(sink, logger.With("component", "output"))
}

func ProvideEncoder(logger *slog.Logger) *audio.Encoder {
	return audio.NewEncoder(logger.With("component", "encoder"))
}

func ProvideTurnClient(cfg *Config, logger *slog.Logger) *turn.Client {
	return turn.NewClient(turn.ClientConfig{
		BaseURL:      cfg.ServiceBaseURL,
		TurnTimeout:  cfg.TurnTimeout,
		ChunkTimeout: cfg.ChunkTimeout,
	}, logger.With("component", "turn_client"))
}

func ProvideNarrator(client *turn.Client, outputs *output.Manager, hub *gateway.Hub, cfg *Config, logger *slog.Logger) *narration.Engine {
	return narration.NewEngine(narration.EngineConfig{
		Fetcher: client,
		Player:  outputs,
		Events: narration.Events{
			OnTextReveal: hub.NotifyTextReveal,
			OnComplete:   hub.NotifyNarrationDone,
		},
		FetchDelay: cfg.FetchDelay,
		Log:        logger.With("component", "narration"),
	})
}

func ProvideCoordinator(narrator *narration.Engine, outputs *output.Manager, logger *slog.Logger) *interrupt.Coordinator {
	return interrupt.NewCoordinator(narrator, outputs, logger.With("component", "interrupt"))
}

func ProvideDispatcher(client *turn.Client, outputs *output.Manager, narrator *narration.Engine, hub *gateway.Hub, logger *slog.Logger) *turn.Dispatcher {
	return turn.NewDispatcher(turn.DispatcherConfig{
		Service:  client,
		Player:   outputs,
		Narrator: narrator,
		Events: turn.Events{
			OnMessage:         hub.NotifyAssistantText,
			OnGestureRequired: hub.NotifyGestureRequired,
		},
		Log: logger.With("component", "dispatcher"),
	})
}

func ProvideRecorder(
	mics *capture.Manager,
	encoder *audio.Encoder,
	dispatcher *turn.Dispatcher,
	coord *interrupt.Coordinator,
	hub *gateway.Hub,
	cfg *Config,
	logger *slog.Logger,
) *recorder.Controller {
	return recorder.NewController(recorder.ControllerConfig{
		Mics:        mics,
		Encoder:     encoder,
		Uploader:    dispatcher,
		Interrupter: coord,
		Events: recorder.Events{
			OnState:   func(s recorder.State) { hub.NotifyRecorderState(s.String()) },
			OnElapsed: hub.NotifyElapsed,
			OnError:   func(err error) { hub.NotifyError(shared.UserMessage(err)) },
		},
		Thresholds: audio.Thresholds{
			Desktop: cfg.DesktopMinBytes,
			Mobile:  cfg.MobileMinBytes,
		},
		Platform: shared.ParsePlatform(cfg.Platform),
		Log:      logger.With("component", "recorder"),
	})
}

func ProvideGatewayHandler(
	hub *gateway.Hub,
	engine *Engine,
	bridge *gateway.DeviceBridge,
	sink *gateway.StreamSink,
	mics *capture.Manager,
	logger *slog.Logger,
) *gateway.Handler {
	return gateway.NewHandler(gateway.HandlerConfig{
		Hub:         hub,
		Controller:  engine,
		Bridge:      bridge,
		Sink:        sink,
		Constraints: mics.Constraints(),
		Log:         logger.With("component", "gateway"),
	})
}

func RegisterGatewayRoutes(e *echo.Echo, h *gateway.Handler) {
	h.RegisterRoutes(e)
}

// RegisterShutdown tears the engine down in dependency order: stop the
// narration first so nothing else queues playback, then close the output
// context and release the microphone.
func RegisterShutdown(lc fx.Lifecycle, narrator *narration.Engine, outputs *output.Manager, mics *capture.Manager) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			narrator.Interrupt()
			outputs.Close()
			mics.Close()
			return nil
		},
	})
}

var EngineModule = fx.Options(
	fx.Provide(
		ProvideHub,
		ProvideDeviceBridge,
		ProvideStreamSink,
		ProvideCaptureManager,
		ProvideOutputManager,
		ProvideEncoder,
		ProvideTurnClient,
		ProvideNarrator,
		ProvideCoordinator,
		ProvideDispatcher,
		ProvideRecorder,
		NewEngine,
		ProvideGatewayHandler,
	),
	fx.Invoke(
		RegisterGatewayRoutes,
		RegisterShutdown,
	),
)
