package music

import "math/rand"

// Queue is the looping track list of a player. The current position moves by
// NextOffset on every advance, so skipping backwards is setting the offset
// to -1 before the next advance. Queue is not safe for concurrent use; the
// owning Player locks around it.
type Queue struct {
	// NextOffset is applied on the next call to Advance, then reset to 1.
	NextOffset int

	loop     bool
	index    int
	playlist []Track
}

// NewQueue returns an empty queue with looping on.
func NewQueue() *Queue {
	return &Queue{NextOffset: 1, loop: true}
}

// Append adds a single new track to the queue.
func (q *Queue) Append(t Track) {
	q.playlist = append(q.playlist, t)
}

// Extend appends a list of new tracks to the queue.
func (q *Queue) Extend(ts []Track) {
	q.playlist = append(q.playlist, ts...)
}

// Current returns the track at the current position.
func (q *Queue) Current() Track {
	return q.playlist[q.index]
}

// Len returns the number of tracks in the queue.
func (q *Queue) Len() int {
	return len(q.playlist)
}

// IsEmpty reports whether the playlist is empty.
func (q *Queue) IsEmpty() bool {
	return len(q.playlist) == 0
}

// OnFirst reports whether the current track is the first one.
func (q *Queue) OnFirst() bool {
	return q.index == 0
}

// Loop reports whether the queue loops after the last track.
func (q *Queue) Loop() bool {
	return q.loop
}

// SetLoop sets the queue looping on or off.
func (q *Queue) SetLoop(loop bool) {
	q.loop = loop
}

// ShouldStop reports whether playback should stop instead of advancing:
// the current track is the last one and looping is off.
func (q *Queue) ShouldStop() bool {
	return len(q.playlist) > 0 &&
		q.NextOffset == 1 &&
		q.index >= len(q.playlist)-1 &&
		!q.loop
}

// Advance moves the current position by NextOffset, resets the offset to 1
// and returns the new current track.
func (q *Queue) Advance() Track {
	q.index = mod(q.index+q.NextOffset, len(q.playlist))
	q.NextOffset = 1
	return q.playlist[q.index]
}

// Pop removes and returns the track at the given offset from the current
// position.
func (q *Queue) Pop(offset int) Track {
	i := mod(q.index+offset, len(q.playlist))
	t := q.playlist[i]
	q.playlist = append(q.playlist[:i], q.playlist[i+1:]...)
	if i < q.index || q.index >= len(q.playlist) && q.index > 0 {
		q.index--
	}
	return t
}

// InsertNext places a track immediately after the current position, so it
// plays next.
func (q *Queue) InsertNext(t Track) {
	if len(q.playlist) == 0 {
		q.playlist = append(q.playlist, t)
		return
	}
	i := q.index + 1
	q.playlist = append(q.playlist[:i], append([]Track{t}, q.playlist[i:]...)...)
}

// Shuffle randomly reorders the tracks of the queue.
func (q *Queue) Shuffle() {
	rand.Shuffle(len(q.playlist), func(i, j int) {
		q.playlist[i], q.playlist[j] = q.playlist[j], q.playlist[i]
	})
}

// Clear removes all tracks from the queue and returns the removed tracks in
// play order.
func (q *Queue) Clear() []Track {
	removed := q.Tracks()
	q.playlist = nil
	q.index = 0
	return removed
}

// Tracks returns the queue in play order: the tracks from the current
// position onwards, then the tracks before it.
func (q *Queue) Tracks() []Track {
	head, tail, _ := q.Split()
	return append(append([]Track{}, head...), tail...)
}

// Split returns the queue in two parts around the current position, and the
// offset at which it is split.
func (q *Queue) Split() (head, tail []Track, split int) {
	return q.playlist[q.index:], q.playlist[:q.index], len(q.playlist) - q.index
}

// mod is the positive remainder, so negative offsets wrap around the end.
func mod(a, b int) int {
	return ((a % b) + b) % b
}
