// Package queue provides the per-player track queue.
package queue

import (
	"math/rand"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/hibiki-audio/hibiki/track"
)

// ErrIndexOutOfRange is returned by Remove for an invalid index.
var ErrIndexOutOfRange = errors.New("queue index out of range")

// Queue is an ordered sequence of tracks plus two single-slot references:
// current (the track playing or about to play, never a member of the
// sequence) and previous (the last track that finished or was superseded).
type Queue struct {
	mu       sync.RWMutex
	tracks   []*track.Track
	current  *track.Track
	previous *track.Track
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{tracks: make([]*track.Track, 0)}
}

// Add stamps the requester on the track and appends it. Always succeeds.
func (q *Queue) Add(t *track.Track, requester *track.Requester) {
	q.mu.Lock()
	defer q.mu.Unlock()

	t.Requester = requester
	q.tracks = append(q.tracks, t)
}

// Remove removes and returns the track at index.
func (q *Queue) Remove(index int) (*track.Track, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if index < 0 || index >= len(q.tracks) {
		return nil, errors.Wrapf(ErrIndexOutOfRange, "index %d, size %d", index, len(q.tracks))
	}
	t := q.tracks[index]
	q.tracks = append(q.tracks[:index], q.tracks[index+1:]...)
	return t, nil
}

// Clear removes all queued tracks and returns them. Current is untouched.
func (q *Queue) Clear() []*track.Track {
	q.mu.Lock()
	defer q.mu.Unlock()

	removed := q.tracks
	q.tracks = make([]*track.Track, 0)
	return removed
}

// Shuffle randomizes the queued tracks in place with a Fisher-Yates pass.
func (q *Queue) Shuffle() {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i := len(q.tracks) - 1; i > 0; i-- {
		j := rand.Intn(i + 1)
		q.tracks[i], q.tracks[j] = q.tracks[j], q.tracks[i]
	}
}

// PushFront inserts a track at the head of the queue. Used by track-loop
// handling to replay the just-finished track.
func (q *Queue) PushFront(t *track.Track) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.tracks = append([]*track.Track{t}, q.tracks...)
}

// PushBack appends a track without touching its requester. Used by
// queue-loop handling to recycle the just-finished track.
func (q *Queue) PushBack(t *track.Track) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.tracks = append(q.tracks, t)
}

// Shift pops and returns the front of the queue, or nil when empty.
func (q *Queue) Shift() *track.Track {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tracks) == 0 {
		return nil
	}
	t := q.tracks[0]
	q.tracks = q.tracks[1:]
	return t
}

// Current returns the track playing or about to play.
func (q *Queue) Current() *track.Track {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.current
}

// SetCurrent sets the current track. Pass nil when playback of it ends.
func (q *Queue) SetCurrent(t *track.Track) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.current = t
}

// Previous returns the last track that finished or was superseded.
func (q *Queue) Previous() *track.Track {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.previous
}

// SetPrevious records the last finished track. Overwritten on each advance.
func (q *Queue) SetPrevious(t *track.Track) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.previous = t
}

// Size returns the number of queued tracks, current excluded.
func (q *Queue) Size() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.tracks)
}

// TotalSize returns the queued count plus one if a current track is set.
func (q *Queue) TotalSize() int {
	q.mu.RLock()
	defer q.mu.RUnlock()

	n := len(q.tracks)
	if q.current != nil {
		n++
	}
	return n
}

// IsEmpty reports whether no tracks are queued. Current is not counted.
func (q *Queue) IsEmpty() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.tracks) == 0
}

// Duration returns the summed length of the queued tracks, treating an
// unknown length as zero. Current is excluded.
func (q *Queue) Duration() time.Duration {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var total time.Duration
	for _, t := range q.tracks {
		total += t.Length
	}
	return total
}

// Tracks returns a copy of the queued tracks in play order.
func (q *Queue) Tracks() []*track.Track {
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := make([]*track.Track, len(q.tracks))
	copy(out, q.tracks)
	return out
}
