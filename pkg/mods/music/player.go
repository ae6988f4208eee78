package music

import (
	"context"
	"sync"

	"github.com/kmolski/acmebot/pkg/eval"
)

// State is the playback state of a player.
type State int

const (
	// Idle means nothing was played yet.
	Idle State = iota
	// Playing means a track is being played.
	Playing
	// Paused means the current track is paused mid-play.
	Paused
	// Stopped means playback ran out of tracks or was stopped explicitly.
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// AudioBackend plays tracks into a voice channel. The transport provides an
// implementation when the player connects.
type AudioBackend interface {
	PlayTrack(ctx context.Context, t Track) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Stop(ctx context.Context) error
	SetVolume(ctx context.Context, percent int) error
	Disconnect(ctx context.Context) error
}

// Player plays the track queue of one voice channel. All methods are safe
// for concurrent use; remote control and chat commands share a player.
type Player struct {
	mu      sync.Mutex
	queue   *Queue
	state   State
	volume  int
	backend AudioBackend

	channelID   string
	channelName string
	accessCode  int

	// observers are notified after every state change, outside the lock.
	observers []func(*Player)
}

func newPlayer(channelID, channelName string, accessCode int, backend AudioBackend) *Player {
	return &Player{
		queue:       NewQueue(),
		volume:      100,
		backend:     backend,
		channelID:   channelID,
		channelName: channelName,
		accessCode:  accessCode,
	}
}

// ChannelID returns the id of the player's voice channel.
func (p *Player) ChannelID() string { return p.channelID }

// ChannelName returns the name of the player's voice channel.
func (p *Player) ChannelName() string { return p.channelName }

// AccessCode returns the remote control access code of the player.
func (p *Player) AccessCode() int { return p.accessCode }

// State returns the playback state.
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Volume returns the current volume percentage.
func (p *Player) Volume() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// Observe registers a callback invoked after every player state change.
func (p *Player) Observe(f func(*Player)) {
	p.mu.Lock()
	p.observers = append(p.observers, f)
	p.mu.Unlock()
}

// Notify invokes the observers.
func (p *Player) Notify() {
	p.mu.Lock()
	observers := p.observers
	p.mu.Unlock()
	for _, f := range observers {
		f(p)
	}
}

// withQueue runs f with the queue locked and notifies observers afterwards.
func (p *Player) withQueue(f func(q *Queue) error) error {
	p.mu.Lock()
	err := f(p.queue)
	p.mu.Unlock()
	p.Notify()
	return err
}

// Append adds tracks to the queue.
func (p *Player) Append(tracks ...Track) {
	p.withQueue(func(q *Queue) error {
		q.Extend(tracks)
		return nil
	})
}

// Tracks returns the queue content in play order.
func (p *Player) Tracks() []Track {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.Tracks()
}

// QueueLen returns the number of queued tracks.
func (p *Player) QueueLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.Len()
}

// Current returns the current track, if any.
func (p *Player) Current() (Track, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.queue.IsEmpty() {
		return Track{}, false
	}
	return p.queue.Current(), true
}

// Resume starts or resumes playback: a paused track is resumed, otherwise
// the current track is played from the start.
func (p *Player) Resume(ctx context.Context) error {
	p.mu.Lock()
	defer p.unlockAndNotify()
	switch p.state {
	case Paused:
		if err := p.backend.Resume(ctx); err != nil {
			return err
		}
	case Playing:
		return nil
	default:
		if p.queue.IsEmpty() {
			return eval.Errorf("the queue is empty!")
		}
		if err := p.backend.PlayTrack(ctx, p.queue.Current()); err != nil {
			return err
		}
	}
	p.state = Playing
	return nil
}

// Pause pauses the current track.
func (p *Player) Pause(ctx context.Context) error {
	p.mu.Lock()
	defer p.unlockAndNotify()
	if p.state != Playing {
		return nil
	}
	if err := p.backend.Pause(ctx); err != nil {
		return err
	}
	p.state = Paused
	return nil
}

// Skip advances to the next track.
func (p *Player) Skip(ctx context.Context) error {
	return p.playAdvanced(ctx, 1)
}

// Previous plays the previous track.
func (p *Player) Previous(ctx context.Context) error {
	return p.playAdvanced(ctx, -1)
}

func (p *Player) playAdvanced(ctx context.Context, offset int) error {
	p.mu.Lock()
	defer p.unlockAndNotify()
	if p.queue.IsEmpty() {
		return eval.Errorf("the queue is empty!")
	}
	p.queue.NextOffset = offset
	if err := p.backend.PlayTrack(ctx, p.queue.Advance()); err != nil {
		return err
	}
	p.state = Playing
	return nil
}

// OnTrackEnd is called by the backend when the current track finishes on
// its own. Playback advances, or stops at the end of a non-looping queue.
func (p *Player) OnTrackEnd(ctx context.Context) error {
	p.mu.Lock()
	defer p.unlockAndNotify()
	if p.state != Playing {
		return nil
	}
	if p.queue.IsEmpty() || p.queue.ShouldStop() {
		p.state = Stopped
		return nil
	}
	return p.backend.PlayTrack(ctx, p.queue.Advance())
}

// Stop stops playback, keeping the queue.
func (p *Player) Stop(ctx context.Context) error {
	p.mu.Lock()
	defer p.unlockAndNotify()
	if p.state == Playing || p.state == Paused {
		if err := p.backend.Stop(ctx); err != nil {
			return err
		}
	}
	p.state = Stopped
	return nil
}

// SetLoop sets the queue looping on or off.
func (p *Player) SetLoop(loop bool) {
	p.withQueue(func(q *Queue) error {
		q.SetLoop(loop)
		return nil
	})
}

// Loop reports whether the queue loops.
func (p *Player) Loop() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.Loop()
}

// SetVolume sets the playback volume, from 0 to 1000 percent.
func (p *Player) SetVolume(ctx context.Context, percent int) error {
	if percent < 0 || percent > 1000 {
		return eval.Errorf("argument `volume` must be between 0 and 1000")
	}
	p.mu.Lock()
	defer p.unlockAndNotify()
	if err := p.backend.SetVolume(ctx, percent); err != nil {
		return err
	}
	p.volume = percent
	return nil
}

// Clear removes all tracks from the queue and returns them.
func (p *Player) Clear() []Track {
	p.mu.Lock()
	removed := p.queue.Clear()
	p.mu.Unlock()
	p.Notify()
	return removed
}

// Remove removes the track at the given offset from the current position
// and returns it.
func (p *Player) Remove(offset int) (Track, error) {
	p.mu.Lock()
	defer p.unlockAndNotify()
	if p.queue.IsEmpty() {
		return Track{}, eval.Errorf("the queue is empty!")
	}
	return p.queue.Pop(offset), nil
}

// MoveToNext moves the track at the given offset from the current position
// so that it plays next, and returns it.
func (p *Player) MoveToNext(offset int) (Track, error) {
	p.mu.Lock()
	defer p.unlockAndNotify()
	if p.queue.IsEmpty() {
		return Track{}, eval.Errorf("the queue is empty!")
	}
	t := p.queue.Pop(offset)
	p.queue.InsertNext(t)
	return t, nil
}

// Shuffle randomly reorders the queue.
func (p *Player) Shuffle() {
	p.withQueue(func(q *Queue) error {
		q.Shuffle()
		return nil
	})
}

// Disconnect tears the backend connection down.
func (p *Player) Disconnect(ctx context.Context) error {
	p.mu.Lock()
	defer p.unlockAndNotify()
	p.state = Stopped
	return p.backend.Disconnect(ctx)
}

func (p *Player) unlockAndNotify() {
	p.mu.Unlock()
	p.Notify()
}
