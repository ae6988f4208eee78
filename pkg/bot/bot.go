// Package bot connects the command evaluator to Discord. It turns incoming
// messages into evaluations, channels into output sinks, and voice states
// into music playback sessions.
package bot

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/kmolski/acmebot/pkg/command"
	"github.com/kmolski/acmebot/pkg/config"
	"github.com/kmolski/acmebot/pkg/eval"
	"github.com/kmolski/acmebot/pkg/mods/music"
	"github.com/kmolski/acmebot/pkg/parse"
	"github.com/kmolski/acmebot/pkg/store"
)

// historyDefaultLimit is how many history items the history command shows
// when invoked without an argument.
const historyDefaultLimit = 10

// Bot is a Discord gateway client that evaluates prefixed messages as
// commands.
type Bot struct {
	logger   zerolog.Logger
	session  *discordgo.Session
	registry *command.Registry
	evaler   *eval.Evaler
	history  *store.DB
	music    *music.Module
	prefix   string
}

// New builds a gateway client from the configuration. The registry should
// already hold every module's commands; New adds the built-in help and
// history commands to it. musicMod may be nil when music playback is
// disabled.
func New(cfg *config.Config, logger zerolog.Logger, registry *command.Registry, history *store.DB, musicMod *music.Module) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("creating gateway session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentMessageContent |
		discordgo.IntentsGuildVoiceStates

	b := &Bot{
		logger:   logger,
		session:  session,
		registry: registry,
		evaler:   eval.New(registry, logger),
		history:  history,
		music:    musicMod,
		prefix:   cfg.Prefix,
	}
	registry.
		AddFn("help", b.help, command.Help("Show help for the given commands, or list all commands.")).
		AddFn("history", b.historyCmd, command.Aliases("hist"),
			command.Help("Show the most recent command invocations in this channel."))
	session.AddHandler(b.onMessageCreate)
	session.AddHandler(b.onVoiceStateUpdate)
	return b, nil
}

// Latency reports the gateway heartbeat round-trip time.
func (b *Bot) Latency(context.Context) (time.Duration, error) {
	return b.session.HeartbeatLatency(), nil
}

// Open connects to the gateway and starts handling messages.
func (b *Bot) Open() error {
	return b.session.Open()
}

// Close disconnects from the gateway.
func (b *Bot) Close() error {
	return b.session.Close()
}

func (b *Bot) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	text, ok := strings.CutPrefix(m.Content, b.prefix)
	if !ok {
		return
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	// Handled off the gateway goroutine, so a slow command does not stall
	// event dispatch.
	go b.execute(m, text)
}

// onVoiceStateUpdate deletes the player of a voice channel once its last
// human member leaves.
func (b *Bot) onVoiceStateUpdate(_ *discordgo.Session, update *discordgo.VoiceStateUpdate) {
	if b.music == nil || update.BeforeUpdate == nil {
		return
	}
	left := update.BeforeUpdate.ChannelID
	if left == "" || left == update.ChannelID {
		return
	}
	if !b.channelEmptyOfHumans(update.GuildID, left) {
		return
	}
	if err := b.music.DisconnectChannel(context.Background(), left); err != nil {
		b.logger.Warn().Err(err).Str("voiceChannel", left).Msg("disconnecting empty channel")
	}
}

// channelEmptyOfHumans reports whether only bots remain in a voice channel.
// Members the state cache cannot resolve are assumed to be human.
func (b *Bot) channelEmptyOfHumans(guildID, channelID string) bool {
	guild, err := b.session.State.Guild(guildID)
	if err != nil {
		return false
	}
	for _, vs := range guild.VoiceStates {
		if vs.ChannelID != channelID {
			continue
		}
		member, err := b.session.State.Member(guildID, vs.UserID)
		if err != nil || member.User == nil || !member.User.Bot {
			return false
		}
	}
	return true
}

func (b *Bot) execute(m *discordgo.MessageCreate, text string) {
	ctx := context.Background()
	out := &channelOutput{session: b.session, channelID: m.ChannelID}
	ec := &eval.Context{
		Caller:      m.Author.Username,
		Output:      out,
		Attachments: &attachmentSource{session: b.session, channelID: m.ChannelID},
		Data: &invocationData{
			voiceSession: voiceSession{
				logger:  b.logger,
				session: b.session,
				guildID: m.GuildID,
				userID:  m.Author.ID,
			},
			textChannelID: m.ChannelID,
		},
	}

	tree, err := parse.Parse(parse.Source{Name: "message", Code: text})
	if err == nil {
		_, err = b.evaler.Eval(ctx, tree, ec, true)
	}
	if err != nil {
		b.reportError(ctx, out, ec, err)
	}

	status := "ok"
	if err != nil {
		status = "error"
	}
	if _, err := b.history.Add(m.ChannelID, store.Invocation{
		Caller: m.Author.Username,
		Text:   text,
		Status: status,
		When:   time.Now(),
	}); err != nil {
		b.logger.Warn().Err(err).Msg("recording history")
	}
}

func (b *Bot) reportError(ctx context.Context, out *channelOutput, ec *eval.Context, err error) {
	if eval.IsUserError(err) {
		if err := out.Send(ctx, "⚠️ "+err.Error()); err != nil {
			b.logger.Error().Err(err).Msg("sending error message")
		}
		return
	}
	log := b.logger.Error().Err(err)
	if ec.Command != nil {
		log = log.Str("command", ec.Command.Name)
	}
	log.Msg("command failed")
	if err := out.Send(ctx, "⚠️ An internal error occurred while running the command."); err != nil {
		b.logger.Error().Err(err).Msg("sending error message")
	}
}

// invocationData is the transport data attached to one invocation. It
// provides voice playback and the originating text channel.
type invocationData struct {
	voiceSession
	textChannelID string
}

func (d *invocationData) TextChannelID() string { return d.textChannelID }

func (b *Bot) help(ctx context.Context, fm *command.Frame, names ...string) (string, error) {
	if len(names) == 0 {
		names = b.registry.Names()
	}
	var sb strings.Builder
	for _, name := range names {
		fn, ok := b.registry.Fn(name)
		if !ok {
			return "", &eval.CommandNotFoundError{Name: name}
		}
		fmt.Fprintf(&sb, "%s - %s\n", name, fn.Help())
	}
	text := strings.TrimSuffix(sb.String(), "\n")
	if fm.Display {
		if err := fm.Output.SendBlock(ctx, text, ""); err != nil {
			return "", err
		}
	}
	return text, nil
}

func (b *Bot) historyCmd(ctx context.Context, fm *command.Frame, limit ...int) (string, error) {
	n := historyDefaultLimit
	if len(limit) > 1 {
		return "", eval.Errorf("history takes at most one argument, got %d", len(limit))
	}
	if len(limit) == 1 {
		if limit[0] <= 0 {
			return "", eval.Errorf("the entry count must be positive")
		}
		n = limit[0]
	}
	provider, ok := fm.Data.(interface{ TextChannelID() string })
	if !ok {
		return "", eval.Errorf("history is not available on this transport")
	}
	invs, err := b.history.Recent(provider.TextChannelID(), n)
	if err != nil {
		return "", err
	}
	// Oldest first reads naturally in chat.
	sort.Slice(invs, func(i, j int) bool { return invs[i].Seq < invs[j].Seq })
	var sb strings.Builder
	for _, inv := range invs {
		fmt.Fprintf(&sb, "%s  %s: %s", inv.When.Format("2006-01-02 15:04"), inv.Caller, inv.Text)
		if inv.Status == "error" {
			sb.WriteString(" (failed)")
		}
		sb.WriteString("\n")
	}
	text := strings.TrimSuffix(sb.String(), "\n")
	if fm.Display {
		if err := fm.Output.SendBlock(ctx, text, ""); err != nil {
			return "", err
		}
	}
	return text, nil
}
