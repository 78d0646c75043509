package narration

import "testing"

func descriptors(texts ...string) []Descriptor {
	out := make([]Descriptor, 0, len(texts))
	for i, txt := range texts {
		out = append(out, Descriptor{Index: i + 1, Text: txt})
	}
	return out
}

func TestNewQueue_SeedsFirstChunk(t *testing.T) {
	q := NewQueue("sess-1", "once upon a time", []byte{1, 2, 3}, descriptors("a", "b"))

	if q.Len() != 3 {
		t.Fatalf("expected 3 chunks, got %d", q.Len())
	}
	first := q.at(0)
	if first.Audio == nil {
		t.Error("first chunk should carry audio")
	}
	if first.Text != "once upon a time" {
		t.Errorf("unexpected first text: %q", first.Text)
	}
	for i := 1; i < q.Len(); i++ {
		if q.at(i).Audio != nil {
			t.Errorf("descriptor chunk %d should start without audio", i)
		}
	}
}

func TestNewQueue_IndicesAscending(t *testing.T) {
	q := NewQueue("sess-1", "intro", []byte{1}, descriptors("a", "b", "c", "d"))
	for i := 0; i < q.Len(); i++ {
		if q.at(i).Index != i {
			t.Errorf("chunk at position %d has index %d", i, q.at(i).Index)
		}
	}
}

func TestNewQueue_ScopedIDsDistinctAcrossSessions(t *testing.T) {
	q1 := NewQueue("sess-1", "intro", []byte{1}, descriptors("a"))
	q2 := NewQueue("sess-2", "intro", []byte{1}, descriptors("a"))

	seen := map[string]bool{}
	for _, q := range []*Queue{q1, q2} {
		for i := 0; i < q.Len(); i++ {
			id := q.at(i).ScopedID
			if seen[id] {
				t.Errorf("scoped id %q collides across sessions", id)
			}
			seen[id] = true
		}
	}
}

func TestQueue_Clear(t *testing.T) {
	q := NewQueue("sess-1", "intro", []byte{1}, descriptors("a", "b"))
	q.current = 2
	q.clear()
	if q.Len() != 0 || q.CurrentIndex() != 0 {
		t.Error("clear should drop all entries and reset the index")
	}
}

func TestQueue_AtOutOfRange(t *testing.T) {
	q := NewQueue("sess-1", "intro", []byte{1}, nil)
	if q.at(-1) != nil || q.at(5) != nil {
		t.Error("out-of-range access should return nil")
	}
}
