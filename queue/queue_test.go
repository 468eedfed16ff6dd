package queue

import (
	"fmt"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"

	"github.com/hibiki-audio/hibiki/track"
)

func newTrack(id string, length time.Duration) *track.Track {
	return &track.Track{Identifier: id, Title: "Track " + id, Length: length}
}

func TestAddAndSizes(t *testing.T) {
	q := New()
	assert.True(t, q.IsEmpty())
	assert.Equal(t, 0, q.Size())
	assert.Equal(t, 0, q.TotalSize())

	requester := &track.Requester{ID: "user-1", DisplayName: "Tester"}
	a := newTrack("a", time.Minute)
	q.Add(a, requester)
	q.Add(newTrack("b", time.Minute), nil)

	assert.Equal(t, 2, q.Size())
	assert.Equal(t, 2, q.TotalSize())
	assert.Equal(t, requester, a.Requester)

	// TotalSize counts current on top of the sequence.
	q.SetCurrent(newTrack("c", time.Minute))
	assert.Equal(t, 2, q.Size())
	assert.Equal(t, 3, q.TotalSize())

	q.SetCurrent(nil)
	assert.Equal(t, 2, q.TotalSize())
}

func TestRemove(t *testing.T) {
	q := New()
	q.Add(newTrack("a", 0), nil)
	q.Add(newTrack("b", 0), nil)
	q.Add(newTrack("c", 0), nil)

	removed, err := q.Remove(1)
	assert.NoError(t, err)
	assert.Equal(t, "b", removed.Identifier)
	assert.Equal(t, 2, q.Size())

	tests := []struct {
		name  string
		index int
	}{
		{name: "negative index", index: -1},
		{name: "index past end", index: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := q.Remove(tt.index)
			assert.True(t, errors.Is(err, ErrIndexOutOfRange))
		})
	}
}

func TestClear(t *testing.T) {
	q := New()
	q.Add(newTrack("a", 0), nil)
	q.Add(newTrack("b", 0), nil)
	cur := newTrack("c", 0)
	q.SetCurrent(cur)

	removed := q.Clear()
	assert.Len(t, removed, 2)
	assert.True(t, q.IsEmpty())
	// Clear never touches the current track.
	assert.Same(t, cur, q.Current())
	assert.Equal(t, 1, q.TotalSize())
}

func TestShuffleIsPermutation(t *testing.T) {
	q := New()
	before := make(map[string]int)
	for i := 0; i < 50; i++ {
		id := fmt.Sprintf("t%d", i)
		q.Add(newTrack(id, 0), nil)
		before[id]++
	}

	q.Shuffle()

	assert.Equal(t, 50, q.Size())
	after := make(map[string]int)
	for _, tr := range q.Tracks() {
		after[tr.Identifier]++
	}
	assert.Equal(t, before, after)
}

func TestShiftAndPush(t *testing.T) {
	q := New()
	assert.Nil(t, q.Shift())

	a := newTrack("a", 0)
	b := newTrack("b", 0)
	q.Add(a, nil)
	q.Add(b, nil)

	assert.Same(t, a, q.Shift())
	assert.Equal(t, 1, q.Size())

	// Track-loop replays via the front, queue-loop recycles to the back.
	q.PushFront(a)
	assert.Same(t, a, q.Shift())

	q.PushBack(a)
	got := q.Tracks()
	assert.Same(t, b, got[0])
	assert.Same(t, a, got[1])
}

func TestDuration(t *testing.T) {
	q := New()
	q.Add(newTrack("a", 3*time.Minute), nil)
	q.Add(newTrack("b", 0), nil) // unknown length counts as zero
	q.Add(newTrack("c", 90*time.Second), nil)
	q.SetCurrent(newTrack("cur", time.Hour)) // current is excluded

	assert.Equal(t, 4*time.Minute+30*time.Second, q.Duration())
}

func TestPreviousOverwrittenOnAdvance(t *testing.T) {
	q := New()
	a := newTrack("a", 0)
	b := newTrack("b", 0)

	q.SetPrevious(a)
	assert.Same(t, a, q.Previous())
	q.SetPrevious(b)
	assert.Same(t, b, q.Previous())
}
