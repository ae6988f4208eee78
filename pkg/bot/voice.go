package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"syscall"

	"github.com/bwmarrin/discordgo"
	"github.com/jonas747/dca"
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/kmolski/acmebot/pkg/mods/music"
)

// voiceSession locates the caller's voice channel and opens audio
// connections on demand. One instance is built per invocation.
type voiceSession struct {
	logger  zerolog.Logger
	session *discordgo.Session
	guildID string
	userID  string
}

func (v *voiceSession) VoiceChannel() (id, name string, ok bool) {
	guild, err := v.session.State.Guild(v.guildID)
	if err != nil {
		return "", "", false
	}
	for _, vs := range guild.VoiceStates {
		if vs.UserID != v.userID {
			continue
		}
		name := vs.ChannelID
		if ch, err := v.session.State.Channel(vs.ChannelID); err == nil {
			name = ch.Name
		}
		return vs.ChannelID, name, true
	}
	return "", "", false
}

func (v *voiceSession) Connect(ctx context.Context, channelID string, onTrackEnd func()) (music.AudioBackend, error) {
	conn, err := v.session.ChannelVoiceJoin(v.guildID, channelID, false, true)
	if err != nil {
		return nil, err
	}
	return &voiceBackend{
		logger:     v.logger.With().Str("voiceChannel", channelID).Logger(),
		conn:       conn,
		onTrackEnd: onTrackEnd,
		volume:     100,
	}, nil
}

// voiceBackend streams opus audio of one track at a time into a voice
// connection. Tracks are transcoded with ffmpeg from a direct stream URL
// resolved by yt-dlp.
type voiceBackend struct {
	logger     zerolog.Logger
	conn       *discordgo.VoiceConnection
	onTrackEnd func()

	mu     sync.Mutex
	volume int
	encode *dca.EncodeSession
	stream *dca.StreamingSession
	cancel context.CancelFunc
}

func (b *voiceBackend) PlayTrack(ctx context.Context, t music.Track) error {
	streamURL, err := resolveStreamURL(ctx, t.URL)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopCurrent()

	opts := *dca.StdEncodeOptions
	opts.RawOutput = true
	opts.Bitrate = 96
	// Volume changes apply from the next track.
	opts.Volume = b.volume * 256 / 100
	encode, err := dca.EncodeFile(streamURL, &opts)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", t.URL, err)
	}

	if err := b.conn.Speaking(true); err != nil {
		encode.Cleanup()
		return err
	}
	done := make(chan error, 1)
	playCtx, cancel := context.WithCancel(context.Background())
	b.encode = encode
	b.stream = dca.NewStream(encode, b.conn, done)
	b.cancel = cancel

	go func() {
		select {
		case err := <-done:
			encode.Cleanup()
			b.conn.Speaking(false)
			if err != nil && !errors.Is(err, io.EOF) {
				b.logger.Error().Err(err).Str("track", t.Title).Msg("playback failed")
			}
			if playCtx.Err() == nil {
				b.onTrackEnd()
			}
		case <-playCtx.Done():
			encode.Cleanup()
			b.conn.Speaking(false)
		}
	}()
	return nil
}

func (b *voiceBackend) Pause(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stream != nil {
		b.stream.SetPaused(true)
	}
	return nil
}

func (b *voiceBackend) Resume(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stream != nil {
		b.stream.SetPaused(false)
	}
	return nil
}

func (b *voiceBackend) Stop(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopCurrent()
	return nil
}

func (b *voiceBackend) SetVolume(_ context.Context, percent int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.volume = percent
	return nil
}

func (b *voiceBackend) Disconnect(ctx context.Context) error {
	if err := b.Stop(ctx); err != nil {
		return err
	}
	return b.conn.Disconnect()
}

// stopCurrent tears down the running stream, if any. Callers hold b.mu.
func (b *voiceBackend) stopCurrent() {
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
	b.encode = nil
	b.stream = nil
}

// resolveStreamURL asks yt-dlp for a direct URL of the track's best audio
// stream. The subprocess runs in its own process group so that cancellation
// kills its children too.
func resolveStreamURL(ctx context.Context, trackURL string) (string, error) {
	cmd := exec.CommandContext(ctx, "yt-dlp", "-f", "bestaudio/best", "-g", "--", trackURL)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error { return unix.Kill(-cmd.Process.Pid, unix.SIGKILL) }
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("resolving stream for %s: %w", trackURL, err)
	}
	streamURL, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	if streamURL == "" {
		return "", fmt.Errorf("no audio stream found for %s", trackURL)
	}
	return streamURL, nil
}
