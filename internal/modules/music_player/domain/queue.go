package domain

import "strings"

// Queue is the ordered list of tracks awaiting playback. Insertion order is
// the playback order. The currently playing track is never part of the queue:
// it is removed when promoted to "current" by the owning session.
//
// Queue is not safe for concurrent use. It is exclusively owned by one
// session worker, which serializes all access.
type Queue struct {
	tracks []*Track
}

// NewQueue creates a new empty Queue.
func NewQueue() Queue {
	return Queue{tracks: make([]*Track, 0)}
}

// Len returns the number of queued tracks.
func (q *Queue) Len() int {
	return len(q.tracks)
}

// IsEmpty returns true if the queue has no tracks.
func (q *Queue) IsEmpty() bool {
	return len(q.tracks) == 0
}

// Enqueue appends track(s) to the end of the queue.
func (q *Queue) Enqueue(tracks ...*Track) {
	q.tracks = append(q.tracks, tracks...)
}

// Dequeue removes and returns the front track. The second return value is
// false when the queue is empty; an empty queue is not an error.
func (q *Queue) Dequeue() (*Track, bool) {
	if len(q.tracks) == 0 {
		return nil, false
	}
	track := q.tracks[0]
	q.tracks = q.tracks[1:]
	return track, true
}

// Peek returns the front track without removing it, or nil if empty.
func (q *Queue) Peek() *Track {
	if len(q.tracks) == 0 {
		return nil
	}
	return q.tracks[0]
}

// List returns a copy of all queued tracks in playback order.
func (q *Queue) List() []*Track {
	result := make([]*Track, len(q.tracks))
	copy(result, q.tracks)
	return result
}

// RemoveAt removes and returns the track at the given index.
// Returns nil if the index is out of range.
func (q *Queue) RemoveAt(index int) *Track {
	if index < 0 || index >= len(q.tracks) {
		return nil
	}
	track := q.tracks[index]
	q.tracks = append(q.tracks[:index], q.tracks[index+1:]...)
	return track
}

// RemoveByTitle removes and returns the first track whose title contains the
// given text, compared case-insensitively. Returns nil if nothing matches.
func (q *Queue) RemoveByTitle(text string) *Track {
	needle := strings.ToLower(text)
	for i, track := range q.tracks {
		if strings.Contains(strings.ToLower(track.Title), needle) {
			return q.RemoveAt(i)
		}
	}
	return nil
}

// Clear removes all tracks from the queue and releases them.
func (q *Queue) Clear() {
	q.tracks = nil
}
