// Package music implements the music player commands: a looping track
// queue, a player state machine per voice channel, and track metadata
// extraction through a bounded worker pool.
package music

import (
	"fmt"
	"strings"

	"github.com/kmolski/acmebot/pkg/textutil"
)

// Track is one playable entry in the queue.
type Track struct {
	Title    string
	Uploader string
	// URL is the track's web page, used for exporting and re-adding.
	URL string
	// Duration in seconds.
	Duration int
}

// displayEntry formats a track with its position and duration for menus.
func displayEntry(index int, t Track) string {
	return fmt.Sprintf("%d. **%s** - %s - %s",
		index, t.Title, t.Uploader, textutil.FormatDuration(t.Duration))
}

// assembleMenu creates a menu with the given header and information about
// the queue entries.
func assembleMenu(header string, entries []Track) string {
	lines := []string{header}
	for i, t := range entries {
		lines = append(lines, displayEntry(i+1, t))
	}
	return strings.Join(lines, "\n")
}

// exportEntry formats an entry string with the URL, title and duration.
func exportEntry(t Track) string {
	return fmt.Sprintf("%s    %s - %s\n", t.URL, t.Title, textutil.FormatDuration(t.Duration))
}

// exportEntryList formats entry lists using exportEntry.
func exportEntryList(tracks []Track) string {
	var sb strings.Builder
	for _, t := range tracks {
		sb.WriteString(exportEntry(t))
	}
	return sb.String()
}

// stripURLs strips entry strings from their title and duration, leaving the
// URL. This lets exported lists be piped back into play-url.
func stripURLs(urls string) []string {
	var out []string
	for _, line := range strings.Split(urls, "\n") {
		if fields := strings.Fields(line); len(fields) > 0 {
			out = append(out, fields[0])
		}
	}
	return out
}
