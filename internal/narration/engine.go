package narration

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/eleven-am/voice-client/internal/output"
)

const defaultFetchDelay = 150 * time.Millisecond

// ChunkRequest asks the conversational service for one chunk's audio.
type ChunkRequest struct {
	Text           string
	ChunkID        int
	UserID         string
	StorySessionID string
}

type Fetcher interface {
	FetchChunk(ctx context.Context, req ChunkRequest) ([]byte, error)
}

type Player interface {
	Play(ctx context.Context, clip []byte) (output.Outcome, error)
}

// Events surface narration progress to the UI layer. OnTextReveal fires at
// the moment a chunk's audio becomes available, never before, so text does
// not run ahead of speech. OnComplete fires exactly once per session.
type Events struct {
	OnTextReveal func(index int, text string)
	OnComplete   func()
}

// Session is one narration attempt.
type Session struct {
	Queue  *Queue
	UserID string
}

// Engine plays a queue's chunks strictly in ascending index order while
// the remaining chunks are fetched concurrently. Fetches are deduplicated
// per scoped id and carry a per-session cancellation token; a chunk whose
// fetch permanently fails is skipped, not retried forever.
type Engine struct {
	fetcher    Fetcher
	player     Player
	events     Events
	fetchDelay time.Duration
	clk        clock.Clock
	log        *slog.Logger

	mu        sync.Mutex
	cond      *sync.Cond
	queue     *Queue
	userID    string
	cancel    context.CancelFunc
	pending   map[string]context.CancelFunc
	fetched   map[string]bool
	playing   bool
	completed bool
}

type EngineConfig struct {
	Fetcher    Fetcher
	Player     Player
	Events     Events
	FetchDelay time.Duration
	Clock      clock.Clock
	Log        *slog.Logger
}

func NewEngine(cfg EngineConfig) *Engine {
	if cfg.FetchDelay <= 0 {
		cfg.FetchDelay = defaultFetchDelay
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	e := &Engine{
		fetcher:    cfg.Fetcher,
		player:     cfg.Player,
		events:     cfg.Events,
		fetchDelay: cfg.FetchDelay,
		clk:        cfg.Clock,
		log:        cfg.Log,
	}
	e.cond = sync.NewCond(&e.mu)
	return e
}

// Start adopts a fresh session, interrupting any previous one, and runs
// the playback and fetch loops concurrently.
func (e *Engine) Start(s Session) {
	e.mu.Lock()
	e.interruptLocked()

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.queue = s.Queue
	e.userID = s.UserID
	e.pending = make(map[string]context.CancelFunc)
	e.fetched = make(map[string]bool)
	e.completed = false

	var seeded *Chunk
	if first := s.Queue.at(0); first != nil && len(first.Audio) > 0 {
		e.fetched[first.ScopedID] = true
		seeded = first
	}
	e.mu.Unlock()

	if seeded != nil && e.events.OnTextReveal != nil {
		e.events.OnTextReveal(seeded.Index, seeded.Text)
	}

	go e.playLoop(ctx, s.Queue)
	go e.fetchLoop(ctx, s.Queue)
}

// Interrupt terminates the active session: the queue is marked
// interrupted and cleared, and every in-flight fetch is cancelled through
// its token. The session cannot be resumed; the next narration is a new
// turn.
func (e *Engine) Interrupt() {
	e.mu.Lock()
	e.interruptLocked()
	e.mu.Unlock()
}

func (e *Engine) interruptLocked() {
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	for id, cancel := range e.pending {
		cancel()
		delete(e.pending, id)
	}
	if e.queue != nil {
		e.queue.interrupted = true
		e.queue.clear()
		e.queue = nil
	}
	e.cond.Broadcast()
}

// Active reports whether a narration session is in progress.
func (e *Engine) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.queue != nil
}

func (e *Engine) playLoop(ctx context.Context, q *Queue) {
	for {
		e.mu.Lock()
		for e.current(q) && !e.stepReady(q) {
			e.cond.Wait()
		}
		if !e.current(q) || ctx.Err() != nil {
			e.mu.Unlock()
			return
		}

		if q.current >= len(q.chunks) {
			fire := !e.completed
			e.completed = true
			if e.cancel != nil {
				e.cancel()
				e.cancel = nil
			}
			q.clear()
			e.queue = nil
			e.mu.Unlock()
			if fire && e.events.OnComplete != nil {
				e.events.OnComplete()
			}
			return
		}

		ch := q.chunks[q.current]
		if ch.Played || ch.Failed {
			// Defensive de-duplication: never replay, never stall on a
			// permanently failed chunk.
			q.current++
			e.mu.Unlock()
			continue
		}

		clip := ch.Audio
		e.playing = true
		e.mu.Unlock()

		outcome, err := e.player.Play(ctx, clip)

		e.mu.Lock()
		e.playing = false
		ch.Played = true
		ch.Audio = nil
		if err != nil {
			e.log.Warn("chunk playback failed, skipping", "chunk", ch.Index, "error", err)
		} else if outcome == output.OutcomeFormatUnsupported {
			e.log.Warn("chunk format unsupported, skipping", "chunk", ch.Index)
		}
		if e.current(q) {
			q.current++
		}
		e.mu.Unlock()
	}
}

// current reports whether q is still the engine's live, uninterrupted
// queue. Callers hold e.mu.
func (e *Engine) current(q *Queue) bool {
	return e.queue == q && !q.interrupted
}

// stepReady reports whether the playback step can proceed: the head chunk
// either has audio or is known skippable, or the queue is exhausted.
// Callers hold e.mu.
func (e *Engine) stepReady(q *Queue) bool {
	if q.current >= len(q.chunks) {
		return true
	}
	ch := q.chunks[q.current]
	return len(ch.Audio) > 0 || ch.Played || ch.Failed
}

func (e *Engine) fetchLoop(ctx context.Context, q *Queue) {
	e.mu.Lock()
	remaining := make([]*Chunk, 0, len(q.chunks))
	for _, ch := range q.chunks {
		// A zero-length seed is not speech; fetch it like any other chunk.
		if len(ch.Audio) == 0 {
			remaining = append(remaining, ch)
		}
	}
	userID := e.userID
	e.mu.Unlock()

	for _, ch := range remaining {
		if ctx.Err() != nil {
			return
		}

		e.mu.Lock()
		if !e.current(q) {
			e.mu.Unlock()
			return
		}
		if len(ch.Audio) > 0 || ch.Failed || e.fetched[ch.ScopedID] {
			e.mu.Unlock()
			continue
		}
		if _, inflight := e.pending[ch.ScopedID]; inflight {
			e.mu.Unlock()
			continue
		}
		fetchCtx, cancel := context.WithCancel(ctx)
		e.pending[ch.ScopedID] = cancel
		e.mu.Unlock()

		go e.fetch(fetchCtx, q, ch, ChunkRequest{
			Text:           ch.Text,
			ChunkID:        ch.Index,
			UserID:         userID,
			StorySessionID: q.SessionID,
		})

		e.sleep(ctx, e.fetchDelay)
	}
}

func (e *Engine) fetch(ctx context.Context, q *Queue, ch *Chunk, req ChunkRequest) {
	audio, err := e.fetcher.FetchChunk(ctx, req)
	// Read the token before releasing it below; afterwards ctx.Err() is
	// always context.Canceled and a genuine failure would be mistaken
	// for a barge-in.
	cancelled := ctx.Err() != nil

	e.mu.Lock()
	if cancel, ok := e.pending[ch.ScopedID]; ok {
		cancel()
		delete(e.pending, ch.ScopedID)
	}
	if !e.current(q) {
		e.mu.Unlock()
		return
	}

	if err != nil {
		if cancelled {
			e.mu.Unlock()
			return
		}
		e.fetched[ch.ScopedID] = true
		ch.Failed = true
		e.log.Warn("chunk fetch failed permanently, will skip", "chunk", ch.Index, "error", err)
		e.cond.Broadcast()
		e.mu.Unlock()
		return
	}

	e.fetched[ch.ScopedID] = true
	if len(audio) == 0 {
		// An empty clip would stall the play step; treat it as a skip.
		ch.Failed = true
		e.log.Warn("chunk fetch returned no audio, will skip", "chunk", ch.Index)
		e.cond.Broadcast()
		e.mu.Unlock()
		return
	}
	ch.Audio = audio
	reveal := e.events.OnTextReveal
	e.cond.Broadcast()
	e.mu.Unlock()

	if reveal != nil {
		reveal(ch.Index, ch.Text)
	}
}

func (e *Engine) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := e.clk.Timer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
