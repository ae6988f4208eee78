// Package prog provides the entry point to acmebot. It parses command-line
// flags, loads the configuration and runs the bot until it is interrupted.
package prog

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"

	"github.com/kmolski/acmebot/pkg/bot"
	"github.com/kmolski/acmebot/pkg/buildinfo"
	"github.com/kmolski/acmebot/pkg/command"
	"github.com/kmolski/acmebot/pkg/config"
	"github.com/kmolski/acmebot/pkg/errutil"
	"github.com/kmolski/acmebot/pkg/mods/music"
	"github.com/kmolski/acmebot/pkg/mods/shellmod"
	"github.com/kmolski/acmebot/pkg/remote"
	"github.com/kmolski/acmebot/pkg/store"
)

// Flags keeps command-line flags.
type Flags struct {
	Config   string
	LogLevel string
	Version  bool
}

func newFlagSet(f *Flags) *flag.FlagSet {
	fs := flag.NewFlagSet("acmebot", flag.ContinueOnError)
	// Error and usage will be printed explicitly.
	fs.SetOutput(io.Discard)

	fs.StringVar(&f.Config, "config", "", "path to the configuration file")
	fs.StringVar(&f.LogLevel, "log-level", "", "log level, overriding the configuration")
	fs.BoolVar(&f.Version, "version", false, "show version and quit")
	return fs
}

func usage(out io.Writer, fs *flag.FlagSet) {
	fmt.Fprintln(out, "Usage: acmebot [flags]")
	fmt.Fprintln(out, "Supported flags:")
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// Run parses command-line flags and runs the bot. It returns the exit status
// of the program.
func Run(fds [3]*os.File, args []string) int {
	f := &Flags{}
	fs := newFlagSet(f)
	if err := fs.Parse(args[1:]); err != nil {
		if err == flag.ErrHelp {
			usage(fds[1], fs)
			return 0
		}
		fmt.Fprintln(fds[2], err)
		usage(fds[2], fs)
		return 2
	}
	if f.Version {
		fmt.Fprintln(fds[1], buildinfo.Full())
		return 0
	}

	cfg, err := config.Load(f.Config)
	if err != nil {
		fmt.Fprintln(fds[2], err)
		return 2
	}
	if f.LogLevel != "" {
		cfg.LogLevel = f.LogLevel
	}
	logger, err := newLogger(fds[2], cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(fds[2], err)
		return 2
	}

	if err := serve(cfg, logger); err != nil {
		logger.Error().Err(err).Msg("acmebot failed")
		return 1
	}
	return 0
}

// newLogger builds the root logger. Terminal output gets the human-readable
// console format; non-terminal output gets JSON lines.
func newLogger(out *os.File, level string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q", level)
	}
	var w io.Writer = out
	if isatty.IsTerminal(out.Fd()) {
		w = zerolog.ConsoleWriter{Out: out}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
}

// serve assembles the modules and runs the bot until SIGINT or SIGTERM.
func serve(cfg *config.Config, logger zerolog.Logger) error {
	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("opening history store: %w", err)
	}

	registry := command.NewRegistry()
	shell := shellmod.New(logger)
	shell.Register(registry)
	extractor := music.NewYTDLExtractor(logger, cfg.Music.ExtractorWorkers)
	musicMod := music.New(logger, extractor, cfg.Music.RemoteBaseURL)
	musicMod.Register(registry)

	b, err := bot.New(cfg, logger, registry, db, musicMod)
	if err != nil {
		db.Close()
		return err
	}
	shell.Ping = b.Latency

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Remote.ListenAddr != "" {
		lis, err := net.Listen("tcp", cfg.Remote.ListenAddr)
		if err != nil {
			db.Close()
			return fmt.Errorf("starting remote control listener: %w", err)
		}
		logger.Info().Str("addr", lis.Addr().String()).Msg("remote control listening")
		srv := remote.NewServer(logger, musicMod)
		go func() {
			if err := srv.Serve(ctx, lis); err != nil {
				logger.Error().Err(err).Msg("remote control listener failed")
			}
		}()
	}

	if err := b.Open(); err != nil {
		db.Close()
		return fmt.Errorf("connecting to the gateway: %w", err)
	}
	logger.Info().Str("version", buildinfo.Full()).Msg("acmebot is ready")

	<-ctx.Done()
	logger.Info().Msg("shutting down")
	return errutil.Multi(b.Close(), db.Close())
}
