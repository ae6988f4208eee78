package music

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/kmolski/acmebot/pkg/command"
	"github.com/kmolski/acmebot/pkg/eval"
)

// accessCodeDigits is the length of the numeric remote control access code.
const accessCodeDigits = 6

// searchLimit caps the number of results fetched for a play query.
const searchLimit = 10

// VoiceSession is supplied by the transport in eval.Context.Data for music
// commands. It reports where the caller is and opens audio connections.
type VoiceSession interface {
	// VoiceChannel returns the caller's current voice channel.
	VoiceChannel() (id, name string, ok bool)
	// Connect opens an audio connection to the given voice channel. The
	// backend calls onTrackEnd whenever a track finishes on its own.
	Connect(ctx context.Context, channelID string, onTrackEnd func()) (AudioBackend, error)
}

// Module holds the music player commands and the players of all connected
// voice channels.
type Module struct {
	logger        zerolog.Logger
	extractor     Extractor
	remoteBaseURL string

	mu      sync.Mutex
	players map[string]*Player
	codes   map[int]*Player
	created []func(*Player)
	deleted []func(*Player)
}

// New returns a music module using the given extractor. remoteBaseURL, when
// not empty, is shown to users together with their player's access code.
func New(logger zerolog.Logger, extractor Extractor, remoteBaseURL string) *Module {
	return &Module{
		logger:        logger,
		extractor:     extractor,
		remoteBaseURL: remoteBaseURL,
		players:       make(map[string]*Player),
		codes:         make(map[int]*Player),
	}
}

// Register adds the module's commands to the registry.
func (m *Module) Register(r *command.Registry) {
	r.AddFn("join", m.join, command.Before(m.ensureVoiceOrJoin),
		command.Help("Join the sender's current voice channel."))
	r.AddFn("leave", m.leave, command.Aliases("leav"), command.Before(m.ensureVoiceOrFail),
		command.Help("Leave the sender's current voice channel."))
	r.AddFn("play", m.play, command.Before(m.ensureVoiceOrJoin),
		command.Help("Search for and play a track."))
	r.AddFn("play-snd", m.playSoundcloud, command.Aliases("psnd"), command.Before(m.ensureVoiceOrJoin),
		command.Help("Search Soundcloud for and play a track."))
	r.AddFn("play-url", m.playURL, command.Aliases("purl"), command.Before(m.ensureVoiceOrJoin),
		command.Help("Play tracks from the given URLs."))
	r.AddFn("list-urls", m.listURLs, command.Aliases("lurl"),
		command.Help("Extract track URLs from the given playlists."))
	r.AddFn("previous", m.previous, command.Aliases("prev"), command.Before(m.ensureNonEmptyQueue),
		command.Help("Play the previous track."))
	r.AddFn("skip", m.skip, command.Aliases("next"), command.Before(m.ensureNonEmptyQueue),
		command.Help("Play the next track."))
	r.AddFn("loop", m.loop, command.Before(m.ensureVoiceOrFail),
		command.Help("Set the looping behaviour of the player."))
	r.AddFn("pause", m.pause, command.Aliases("paus"), command.Before(m.ensureVoiceOrFail),
		command.Help("Pause the player."))
	r.AddFn("queue", m.queue, command.Aliases("queu"), command.Before(m.ensureNonEmptyQueue),
		command.Help("Show all tracks from the current queue."))
	r.AddFn("resume", m.resume, command.Aliases("resu"), command.Before(m.ensureVoiceOrFail),
		command.Help("Resume playing the current track."))
	r.AddFn("clear", m.clear, command.Aliases("clea"), command.Before(m.ensureVoiceOrFail),
		command.Help("Delete all tracks from the queue."))
	r.AddFn("volume", m.volume, command.Aliases("volu"), command.Before(m.ensureVoiceOrJoin),
		command.Help("Change the current player volume."))
	r.AddFn("current", m.current, command.Aliases("curr"), command.Before(m.ensureVoiceOrFail),
		command.Help("Show information about the current track."))
	r.AddFn("remove", m.remove, command.Aliases("remo"), command.Before(m.ensureNonEmptyQueue),
		command.Help("Remove a track from the queue."))
}

// OnPlayerCreated registers a callback for new players. The remote control
// listener uses it to pick up access codes.
func (m *Module) OnPlayerCreated(f func(*Player)) {
	m.mu.Lock()
	m.created = append(m.created, f)
	m.mu.Unlock()
}

// OnPlayerDeleted registers a callback for deleted players.
func (m *Module) OnPlayerDeleted(f func(*Player)) {
	m.mu.Lock()
	m.deleted = append(m.deleted, f)
	m.mu.Unlock()
}

// PlayerByCode returns the player with the given access code.
func (m *Module) PlayerByCode(code int) (*Player, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.codes[code]
	return p, ok
}

// DisconnectChannel deletes the player of a voice channel that became
// empty. The transport calls this on voice state updates.
func (m *Module) DisconnectChannel(ctx context.Context, channelID string) error {
	m.mu.Lock()
	p, ok := m.players[channelID]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	m.logger.Info().Str("channel", channelID).Msg("voice channel is now empty, disconnecting")
	return m.deletePlayer(ctx, p)
}

func session(ec *eval.Context) (VoiceSession, error) {
	if s, ok := ec.Data.(VoiceSession); ok {
		return s, nil
	}
	return nil, eval.Errorf("music playback is not available on this transport")
}

// ensureVoiceOrJoin makes sure the caller's voice channel has a player,
// connecting and creating one if needed.
func (m *Module) ensureVoiceOrJoin(ctx context.Context, ec *eval.Context) error {
	s, err := session(ec)
	if err != nil {
		return err
	}
	id, name, ok := s.VoiceChannel()
	if !ok {
		return eval.Errorf("you are not connected to a voice channel")
	}
	m.mu.Lock()
	_, exists := m.players[id]
	m.mu.Unlock()
	if exists {
		return nil
	}

	var p *Player
	backend, err := s.Connect(ctx, id, func() {
		if p != nil {
			if err := p.OnTrackEnd(context.Background()); err != nil {
				m.logger.Warn().Err(err).Msg("advancing to the next track failed")
			}
		}
	})
	if err != nil {
		return err
	}
	m.mu.Lock()
	code := m.generateAccessCode()
	p = newPlayer(id, name, code, backend)
	m.players[id] = p
	m.codes[code] = p
	created := m.created
	m.mu.Unlock()
	for _, f := range created {
		f(p)
	}
	m.logger.Info().Str("channel", id).Int("access_code", code).Msg("created player")

	if m.remoteBaseURL != "" {
		msg := fmt.Sprintf("\U0001F517 Remote control available at %s with access code **%06d**.",
			m.remoteBaseURL, code)
		return ec.Output.Send(ctx, msg)
	}
	return nil
}

// ensureVoiceOrFail makes sure the caller's voice channel has a player.
func (m *Module) ensureVoiceOrFail(_ context.Context, ec *eval.Context) error {
	_, err := m.playerFor(ec)
	return err
}

// ensureNonEmptyQueue additionally requires queued tracks.
func (m *Module) ensureNonEmptyQueue(_ context.Context, ec *eval.Context) error {
	p, err := m.playerFor(ec)
	if err != nil {
		return err
	}
	if p.QueueLen() == 0 {
		return eval.Errorf("the queue is empty!")
	}
	return nil
}

func (m *Module) playerFor(ec *eval.Context) (*Player, error) {
	s, err := session(ec)
	if err != nil {
		return nil, err
	}
	id, _, ok := s.VoiceChannel()
	if !ok {
		return nil, eval.Errorf("you are not connected to a voice channel")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.players[id]
	if !ok {
		return nil, eval.Errorf("you are not connected to a voice channel")
	}
	return p, nil
}

func (m *Module) deletePlayer(ctx context.Context, p *Player) error {
	m.mu.Lock()
	delete(m.players, p.ChannelID())
	delete(m.codes, p.AccessCode())
	deleted := m.deleted
	m.mu.Unlock()
	m.logger.Info().Str("channel", p.ChannelID()).Msg("deleted player")
	err := p.Disconnect(ctx)
	for _, f := range deleted {
		f(p)
	}
	return err
}

func (m *Module) generateAccessCode() int {
	for {
		code := rand.Intn(900000) + 100000
		if _, taken := m.codes[code]; !taken {
			return code
		}
	}
}

func (m *Module) join(ctx context.Context, fm *command.Frame) error {
	p, err := m.playerFor(fm.Context)
	if err != nil {
		return err
	}
	if fm.Display {
		msg := fmt.Sprintf("➡️ Joining channel **%s**.", p.ChannelName())
		return fm.Output.Send(ctx, msg)
	}
	return nil
}

func (m *Module) leave(ctx context.Context, fm *command.Frame) (string, error) {
	p, err := m.playerFor(fm.Context)
	if err != nil {
		return "", err
	}
	if fm.Display {
		msg := fmt.Sprintf("⏏️ Quitting channel **%s**.", p.ChannelName())
		if err := fm.Output.Send(ctx, msg); err != nil {
			return "", err
		}
	}
	tracks := p.Tracks()
	if err := m.deletePlayer(ctx, p); err != nil {
		return "", err
	}
	return exportEntryList(tracks), nil
}

func (m *Module) play(ctx context.Context, fm *command.Frame, query ...string) (string, error) {
	return m.playSearched(ctx, fm, m.extractor.Search, query)
}

func (m *Module) playSoundcloud(ctx context.Context, fm *command.Frame, query ...string) (string, error) {
	return m.playSearched(ctx, fm, m.extractor.SearchSoundcloud, query)
}

type searchFunc func(ctx context.Context, query string, limit int) ([]Track, error)

// playSearched appends the first search result to the caller's queue.
func (m *Module) playSearched(ctx context.Context, fm *command.Frame, search searchFunc, query []string) (string, error) {
	p, err := m.playerFor(fm.Context)
	if err != nil {
		return "", err
	}
	results, err := search(ctx, strings.Join(query, " "), searchLimit)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "", eval.Errorf("no tracks found for `%s`", strings.Join(query, " "))
	}
	track := results[0]
	p.Append(track)
	if fm.Display {
		msg := fmt.Sprintf("✅️ Added **%s** by %s to the queue.", track.Title, track.Uploader)
		if err := fm.Output.Send(ctx, msg); err != nil {
			return "", err
		}
	}
	return exportEntry(track), nil
}

func (m *Module) playURL(ctx context.Context, fm *command.Frame, urls ...string) (string, error) {
	p, err := m.playerFor(fm.Context)
	if err != nil {
		return "", err
	}
	results, err := m.extractTracks(ctx, urls)
	if err != nil {
		return "", err
	}
	p.Append(results...)
	if fm.Display {
		msg := fmt.Sprintf("✅️ Extracted %d tracks.", len(results))
		if err := fm.Output.Send(ctx, msg); err != nil {
			return "", err
		}
	}
	return exportEntryList(results), nil
}

func (m *Module) listURLs(ctx context.Context, fm *command.Frame, urls ...string) (string, error) {
	results, err := m.extractTracks(ctx, urls)
	if err != nil {
		return "", err
	}
	if fm.Display {
		msg := fmt.Sprintf("✅️ Extracted %d tracks.", len(results))
		if err := fm.Output.Send(ctx, msg); err != nil {
			return "", err
		}
	}
	return exportEntryList(results), nil
}

// extractTracks resolves every URL in the arguments, which may themselves
// be exported entry lists.
func (m *Module) extractTracks(ctx context.Context, urls []string) ([]Track, error) {
	var results []Track
	for _, url := range stripURLs(strings.Join(urls, "\n")) {
		tracks, err := m.extractor.ExtractTracks(ctx, url)
		if err != nil {
			return nil, err
		}
		results = append(results, tracks...)
	}
	return results, nil
}

func (m *Module) previous(ctx context.Context, fm *command.Frame) error {
	p, err := m.playerFor(fm.Context)
	if err != nil {
		return err
	}
	return p.Previous(ctx)
}

func (m *Module) skip(ctx context.Context, fm *command.Frame) error {
	p, err := m.playerFor(fm.Context)
	if err != nil {
		return err
	}
	return p.Skip(ctx)
}

func (m *Module) loop(ctx context.Context, fm *command.Frame, doLoop bool) (bool, error) {
	p, err := m.playerFor(fm.Context)
	if err != nil {
		return false, err
	}
	p.SetLoop(doLoop)
	if fm.Display {
		msg := "\U0001F501 Playlist loop off."
		if doLoop {
			msg = "\U0001F501 Playlist loop on."
		}
		if err := fm.Output.Send(ctx, msg); err != nil {
			return false, err
		}
	}
	return doLoop, nil
}

func (m *Module) pause(ctx context.Context, fm *command.Frame) error {
	p, err := m.playerFor(fm.Context)
	if err != nil {
		return err
	}
	if err := p.Pause(ctx); err != nil {
		return err
	}
	if fm.Display {
		return fm.Output.Send(ctx, "⏸️ Paused.")
	}
	return nil
}

func (m *Module) queue(ctx context.Context, fm *command.Frame) (string, error) {
	p, err := m.playerFor(fm.Context)
	if err != nil {
		return "", err
	}
	tracks := p.Tracks()
	if fm.Display {
		shown := tracks
		if len(shown) > 10 {
			shown = shown[:10]
		}
		header := fmt.Sprintf("\U0001F3BC Track queue for channel '%s' (%d tracks):",
			p.ChannelName(), len(tracks))
		if err := fm.Output.Send(ctx, assembleMenu(header, shown)); err != nil {
			return "", err
		}
	}
	return exportEntryList(tracks), nil
}

func (m *Module) resume(ctx context.Context, fm *command.Frame) error {
	p, err := m.playerFor(fm.Context)
	if err != nil {
		return err
	}
	return p.Resume(ctx)
}

func (m *Module) clear(ctx context.Context, fm *command.Frame) (string, error) {
	p, err := m.playerFor(fm.Context)
	if err != nil {
		return "", err
	}
	removed := p.Clear()
	if fm.Display {
		if err := fm.Output.Send(ctx, "✖️ Queue cleared."); err != nil {
			return "", err
		}
	}
	return exportEntryList(removed), nil
}

func (m *Module) volume(ctx context.Context, fm *command.Frame, volume int) (int, error) {
	p, err := m.playerFor(fm.Context)
	if err != nil {
		return 0, err
	}
	if err := p.SetVolume(ctx, volume); err != nil {
		return 0, err
	}
	if fm.Display {
		msg := fmt.Sprintf("\U0001F4E2 Volume is now at **%d%%**.", volume)
		if err := fm.Output.Send(ctx, msg); err != nil {
			return 0, err
		}
	}
	return volume, nil
}

func (m *Module) current(ctx context.Context, fm *command.Frame) (any, error) {
	p, err := m.playerFor(fm.Context)
	if err != nil {
		return nil, err
	}
	track, ok := p.Current()
	if !ok {
		return nil, nil
	}
	if fm.Display {
		msg := fmt.Sprintf("▶️ Playing **%s** by %s.", track.Title, track.Uploader)
		if err := fm.Output.Send(ctx, msg); err != nil {
			return nil, err
		}
	}
	return exportEntry(track), nil
}

func (m *Module) remove(ctx context.Context, fm *command.Frame, index int) (string, error) {
	p, err := m.playerFor(fm.Context)
	if err != nil {
		return "", err
	}
	// One-based positions count from the current track; negative offsets
	// address the tracks played before it.
	offset := index
	if index >= 1 {
		offset = index - 1
	}
	removed, err := p.Remove(offset)
	if err != nil {
		return "", err
	}
	if fm.Display {
		msg := fmt.Sprintf("➖ **%s** by %s removed from the queue.", removed.Title, removed.Uploader)
		if err := fm.Output.Send(ctx, msg); err != nil {
			return "", err
		}
	}
	return exportEntry(removed), nil
}
