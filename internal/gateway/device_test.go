package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/eleven-am/voice-client/internal/capture"
	"github.com/eleven-am/voice-client/internal/shared"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingSender struct {
	mu     sync.Mutex
	msgs   []*Message
	notify chan *Message
}

func newRecordingSender() *recordingSender {
	return &recordingSender{notify: make(chan *Message, 16)}
}

func (r *recordingSender) Send(m *Message) {
	r.mu.Lock()
	r.msgs = append(r.msgs, m)
	r.mu.Unlock()
	select {
	case r.notify <- m:
	default:
	}
}

func (r *recordingSender) wait(t *testing.T, typ MessageType) *Message {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case m := <-r.notify:
			if m.Type == typ {
				return m
			}
		case <-deadline:
			t.Fatalf("no %s message sent", typ)
		}
	}
}

func rawPayload(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return data
}

func newTestBridge(sender Sender, clk clock.Clock) *DeviceBridge {
	return NewDeviceBridge(DeviceBridgeConfig{
		Sender: sender,
		Clock:  clk,
		Log:    discardLogger(),
	})
}

func TestDeviceBridge_OpenSuccess(t *testing.T) {
	sender := newRecordingSender()
	bridge := newTestBridge(sender, nil)

	type result struct {
		dev capture.Device
		err error
	}
	done := make(chan result, 1)
	go func() {
		dev, err := bridge.Open(context.Background(), capture.DefaultConstraints())
		done <- result{dev, err}
	}()

	req := sender.wait(t, MessageTypeOpenMic)
	bridge.handleOpenResult(&envelope{
		Type:      MessageTypeMicOpened,
		RequestID: req.RequestID,
		Payload:   rawPayload(t, MicOpenedPayload{SampleRate: 48000}),
	})

	res := <-done
	if res.err != nil {
		t.Fatalf("Open failed: %v", res.err)
	}
	if res.dev.SampleRate() != 48000 {
		t.Errorf("sample rate = %d, want 48000", res.dev.SampleRate())
	}
}

func TestDeviceBridge_OpenPermissionDenied(t *testing.T) {
	sender := newRecordingSender()
	bridge := newTestBridge(sender, nil)

	done := make(chan error, 1)
	go func() {
		_, err := bridge.Open(context.Background(), capture.DefaultConstraints())
		done <- err
	}()

	req := sender.wait(t, MessageTypeOpenMic)
	bridge.handleOpenResult(&envelope{
		Type:      MessageTypeMicError,
		RequestID: req.RequestID,
		Payload:   rawPayload(t, MicErrorPayload{Code: "permission_denied"}),
	})

	if err := <-done; !errors.Is(err, shared.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
}

func TestDeviceBridge_OpenTimeout(t *testing.T) {
	sender := newRecordingSender()
	clk := clock.NewMock()
	bridge := newTestBridge(sender, clk)

	done := make(chan error, 1)
	go func() {
		_, err := bridge.Open(context.Background(), capture.DefaultConstraints())
		done <- err
	}()

	sender.wait(t, MessageTypeOpenMic)

	deadline := time.Now().Add(time.Second)
	for {
		clk.Add(defaultOpenTimeout)
		select {
		case err := <-done:
			if !errors.Is(err, shared.ErrDeviceUnavailable) {
				t.Fatalf("expected ErrDeviceUnavailable, got %v", err)
			}
			return
		default:
		}
		if time.Now().After(deadline) {
			t.Fatal("Open did not time out")
		}
		time.Sleep(time.Millisecond)
	}
}

func openDevice(t *testing.T, bridge *DeviceBridge, sender *recordingSender) capture.Device {
	t.Helper()
	done := make(chan capture.Device, 1)
	go func() {
		dev, err := bridge.Open(context.Background(), capture.DefaultConstraints())
		if err != nil {
			t.Errorf("Open failed: %v", err)
		}
		done <- dev
	}()
	req := sender.wait(t, MessageTypeOpenMic)
	bridge.handleOpenResult(&envelope{
		Type:      MessageTypeMicOpened,
		RequestID: req.RequestID,
		Payload:   rawPayload(t, MicOpenedPayload{SampleRate: 16000}),
	})
	return <-done
}

func TestDeviceBridge_FramesRouted(t *testing.T) {
	sender := newRecordingSender()
	bridge := newTestBridge(sender, nil)
	dev := openDevice(t, bridge, sender)

	pcm := []byte{1, 2, 3, 4}
	bridge.handleFrame(&envelope{
		Type:    MessageTypeAudioFrame,
		Payload: rawPayload(t, AudioFramePayload{Audio: base64.StdEncoding.EncodeToString(pcm)}),
	})

	select {
	case frame := <-dev.Frames():
		if string(frame) != string(pcm) {
			t.Errorf("frame = %v, want %v", frame, pcm)
		}
	case <-time.After(time.Second):
		t.Fatal("frame not delivered")
	}
}

func TestDeviceBridge_FrameWithoutDeviceDropped(t *testing.T) {
	sender := newRecordingSender()
	bridge := newTestBridge(sender, nil)

	// Must not panic or block.
	bridge.handleFrame(&envelope{
		Type:    MessageTypeAudioFrame,
		Payload: rawPayload(t, AudioFramePayload{Audio: base64.StdEncoding.EncodeToString([]byte{1})}),
	})
}

func TestDeviceBridge_TrackEnded(t *testing.T) {
	sender := newRecordingSender()
	bridge := newTestBridge(sender, nil)
	dev := openDevice(t, bridge, sender)

	bridge.handleTrackEnded()

	select {
	case <-dev.Ended():
	case <-time.After(time.Second):
		t.Fatal("device not marked ended")
	}
}

func TestDeviceBridge_CloseSendsCloseMic(t *testing.T) {
	sender := newRecordingSender()
	bridge := newTestBridge(sender, nil)
	dev := openDevice(t, bridge, sender)

	if err := dev.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	sender.wait(t, MessageTypeCloseMic)
}

func TestDeviceBridge_ReplacementEndsOldDevice(t *testing.T) {
	sender := newRecordingSender()
	bridge := newTestBridge(sender, nil)
	old := openDevice(t, bridge, sender)
	_ = openDevice(t, bridge, sender)

	select {
	case <-old.Ended():
	case <-time.After(time.Second):
		t.Fatal("replaced device not ended")
	}
}
