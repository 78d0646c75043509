package narration

import "fmt"

// Chunk is one unit of progressive playback. Audio transitions absent to
// present at most once; Played transitions false to true at most once.
type Chunk struct {
	Index    int
	ScopedID string
	Text     string
	Audio    []byte
	Played   bool
	Failed   bool
}

// Descriptor names a chunk whose audio has not been generated yet.
type Descriptor struct {
	Index int
	Text  string
}

// Queue holds the ordered chunks of one narration session. It is built
// atomically per session and discarded wholesale on a new turn or a
// barge-in, never patched incrementally.
type Queue struct {
	SessionID string

	chunks      []*Chunk
	current     int
	interrupted bool
}

// NewQueue seeds a queue with the first chunk, carrying whatever audio the
// turn response inlined (possibly none), and descriptors for the rest.
// ScopedIDs derive from the session id, so chunks from different narration
// attempts never collide.
func NewQueue(sessionID, firstText string, firstAudio []byte, rest []Descriptor) *Queue {
	chunks := make([]*Chunk, 0, len(rest)+1)
	chunks = append(chunks, &Chunk{
		Index:    0,
		ScopedID: scopedID(sessionID, 0),
		Text:     firstText,
		Audio:    firstAudio,
	})
	for _, d := range rest {
		chunks = append(chunks, &Chunk{
			Index:    d.Index,
			ScopedID: scopedID(sessionID, d.Index),
			Text:     d.Text,
		})
	}
	return &Queue{
		SessionID: sessionID,
		chunks:    chunks,
	}
}

func (q *Queue) Len() int {
	return len(q.chunks)
}

func (q *Queue) CurrentIndex() int {
	return q.current
}

func (q *Queue) Interrupted() bool {
	return q.interrupted
}

func (q *Queue) at(i int) *Chunk {
	if i < 0 || i >= len(q.chunks) {
		return nil
	}
	return q.chunks[i]
}

func (q *Queue) clear() {
	q.chunks = nil
	q.current = 0
}

func scopedID(sessionID string, index int) string {
	return fmt.Sprintf("%s#%d", sessionID, index)
}
