package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/eleven-am/voice-client/internal/output"
	"github.com/eleven-am/voice-client/internal/shared"
)

func newTestSink(sender Sender, clk clock.Clock) *StreamSink {
	return NewStreamSink(StreamSinkConfig{
		Sender: sender,
		Clock:  clk,
		Log:    discardLogger(),
	})
}

func clipIDOf(t *testing.T, msg *Message) string {
	t.Helper()
	p, ok := msg.Payload.(PlayPayload)
	if !ok {
		t.Fatalf("play payload type %T", msg.Payload)
	}
	return p.ClipID
}

func TestStreamSink_PlayDone(t *testing.T) {
	sender := newRecordingSender()
	sink := newTestSink(sender, nil)

	type result struct {
		outcome output.Outcome
		err     error
	}
	done := make(chan result, 1)
	go func() {
		o, err := sink.Play(context.Background(), []byte{1, 2, 3})
		done <- result{o, err}
	}()

	msg := sender.wait(t, MessageTypePlay)
	sink.handlePlayResult(&envelope{
		Type:    MessageTypePlayResult,
		Payload: rawPayload(t, PlayResultPayload{ClipID: clipIDOf(t, msg), Outcome: "done"}),
	})

	res := <-done
	if res.err != nil {
		t.Fatalf("Play failed: %v", res.err)
	}
	if res.outcome != output.OutcomeDone {
		t.Errorf("outcome = %s, want done", res.outcome)
	}
}

func TestStreamSink_PlayGestureRequired(t *testing.T) {
	sender := newRecordingSender()
	sink := newTestSink(sender, nil)

	done := make(chan output.Outcome, 1)
	go func() {
		o, _ := sink.Play(context.Background(), []byte{1})
		done <- o
	}()

	msg := sender.wait(t, MessageTypePlay)
	sink.handlePlayResult(&envelope{
		Type:    MessageTypePlayResult,
		Payload: rawPayload(t, PlayResultPayload{ClipID: clipIDOf(t, msg), Outcome: "gesture_required"}),
	})

	if o := <-done; o != output.OutcomeGestureRequired {
		t.Errorf("outcome = %s, want gesture_required", o)
	}
}

func TestStreamSink_HaltReleasesPlay(t *testing.T) {
	sender := newRecordingSender()
	sink := newTestSink(sender, nil)

	done := make(chan output.Outcome, 1)
	go func() {
		o, _ := sink.Play(context.Background(), []byte{1})
		done <- o
	}()
	sender.wait(t, MessageTypePlay)

	sink.Halt()

	select {
	case o := <-done:
		if o != output.OutcomeHalted {
			t.Errorf("outcome = %s, want halted", o)
		}
	case <-time.After(time.Second):
		t.Fatal("Play still blocked after Halt")
	}
	sender.wait(t, MessageTypeHalt)
}

func TestStreamSink_PlayCancelSendsHalt(t *testing.T) {
	sender := newRecordingSender()
	sink := newTestSink(sender, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := sink.Play(ctx, []byte{1})
		done <- err
	}()
	sender.wait(t, MessageTypePlay)

	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	sender.wait(t, MessageTypeHalt)
}

func TestStreamSink_ResumeRunning(t *testing.T) {
	sender := newRecordingSender()
	sink := newTestSink(sender, nil)

	done := make(chan error, 1)
	go func() { done <- sink.Resume(context.Background()) }()

	msg := sender.wait(t, MessageTypeResume)
	sink.handleResumeDone(&envelope{
		Type:      MessageTypeResumeDone,
		RequestID: msg.RequestID,
		Payload:   rawPayload(t, ResumeDonePayload{Running: true}),
	})

	if err := <-done; err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
}

func TestStreamSink_ResumeStillSuspended(t *testing.T) {
	sender := newRecordingSender()
	sink := newTestSink(sender, nil)

	done := make(chan error, 1)
	go func() { done <- sink.Resume(context.Background()) }()

	msg := sender.wait(t, MessageTypeResume)
	sink.handleResumeDone(&envelope{
		Type:      MessageTypeResumeDone,
		RequestID: msg.RequestID,
		Payload:   rawPayload(t, ResumeDonePayload{Running: false}),
	})

	if err := <-done; !errors.Is(err, shared.ErrGestureRequired) {
		t.Fatalf("expected ErrGestureRequired, got %v", err)
	}
}

func TestStreamSink_ResumeTimeout(t *testing.T) {
	sender := newRecordingSender()
	clk := clock.NewMock()
	sink := newTestSink(sender, clk)

	done := make(chan error, 1)
	go func() { done <- sink.Resume(context.Background()) }()
	sender.wait(t, MessageTypeResume)

	deadline := time.Now().Add(time.Second)
	for {
		clk.Add(defaultResumeTimeout)
		select {
		case err := <-done:
			if !errors.Is(err, shared.ErrGestureRequired) {
				t.Fatalf("expected ErrGestureRequired, got %v", err)
			}
			return
		default:
		}
		if time.Now().After(deadline) {
			t.Fatal("Resume did not time out")
		}
		time.Sleep(time.Millisecond)
	}
}
