package music

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/kmolski/acmebot/pkg/eval"
)

// Extractor resolves URLs and search queries into track metadata.
type Extractor interface {
	// ExtractTracks returns the tracks behind a URL; a playlist URL yields
	// all of its entries.
	ExtractTracks(ctx context.Context, url string) ([]Track, error)
	// Search returns up to limit tracks matching the query.
	Search(ctx context.Context, query string, limit int) ([]Track, error)
	// SearchSoundcloud returns up to limit Soundcloud tracks matching the
	// query.
	SearchSoundcloud(ctx context.Context, query string, limit int) ([]Track, error)
}

// YTDLExtractor extracts track metadata by running yt-dlp. A semaphore
// bounds the number of concurrent child processes.
type YTDLExtractor struct {
	logger zerolog.Logger
	sem    chan struct{}
}

// NewYTDLExtractor returns an extractor running at most workers concurrent
// extractions.
func NewYTDLExtractor(logger zerolog.Logger, workers int) *YTDLExtractor {
	if workers < 1 {
		workers = 1
	}
	return &YTDLExtractor{logger: logger, sem: make(chan struct{}, workers)}
}

func (e *YTDLExtractor) ExtractTracks(ctx context.Context, url string) ([]Track, error) {
	return e.extract(ctx, url)
}

func (e *YTDLExtractor) Search(ctx context.Context, query string, limit int) ([]Track, error) {
	return e.extract(ctx, fmt.Sprintf("ytsearch%d:%s", limit, query))
}

func (e *YTDLExtractor) SearchSoundcloud(ctx context.Context, query string, limit int) ([]Track, error) {
	return e.extract(ctx, fmt.Sprintf("scsearch%d:%s", limit, query))
}

func (e *YTDLExtractor) extract(ctx context.Context, target string) ([]Track, error) {
	select {
	case e.sem <- struct{}{}:
		defer func() { <-e.sem }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	cmd := exec.CommandContext(ctx, "yt-dlp", "--dump-single-json", "--flat-playlist", "--", target)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		e.logger.Warn().Str("target", target).Err(err).Msg("track extraction failed")
		return nil, eval.Errorf("no tracks found for `%s`", target)
	}

	var info trackInfo
	if err := json.Unmarshal(stdout.Bytes(), &info); err != nil {
		return nil, fmt.Errorf("decode extractor output: %w", err)
	}
	if len(info.Entries) > 0 {
		tracks := make([]Track, 0, len(info.Entries))
		for _, entry := range info.Entries {
			tracks = append(tracks, entry.track())
		}
		return tracks, nil
	}
	return []Track{info.track()}, nil
}

// trackInfo is the part of the yt-dlp JSON output the queue cares about.
type trackInfo struct {
	Title      string      `json:"title"`
	Uploader   string      `json:"uploader"`
	WebpageURL string      `json:"webpage_url"`
	URL        string      `json:"url"`
	Duration   float64     `json:"duration"`
	Entries    []trackInfo `json:"entries"`
}

func (i trackInfo) track() Track {
	url := i.WebpageURL
	if url == "" {
		url = i.URL
	}
	return Track{
		Title:    i.Title,
		Uploader: i.Uploader,
		URL:      url,
		Duration: int(i.Duration),
	}
}
