package interrupt

import (
	"log/slog"
	"sync"
)

// Playback is the narration side of a barge-in: terminate the active
// queue and cancel its in-flight fetches.
type Playback interface {
	Interrupt()
}

// Output is the playback device side: stop whatever is sounding right now.
type Output interface {
	Halt()
}

// Coordinator applies a barge-in atomically from the caller's point of
// view: the narration session is terminated and current audio halted
// before the call returns. It runs unconditionally at every recording
// start, even when nothing is playing, and on explicit external interrupt
// signals. There is no resume; an interrupted narration is over.
type Coordinator struct {
	playback Playback
	output   Output
	log      *slog.Logger

	mu sync.Mutex
}

func NewCoordinator(playback Playback, output Output, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{
		playback: playback,
		output:   output,
		log:      log,
	}
}

func (c *Coordinator) Interrupt() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.playback.Interrupt()
	c.output.Halt()
	c.log.Debug("barge-in applied")
}
