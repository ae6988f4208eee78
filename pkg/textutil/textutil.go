// Package textutil has text helpers shared by the command modules and the
// chat transport: chunking long output to the message size limit, markdown
// code-block formatting and duration formatting.
package textutil

import (
	"fmt"
	"strings"
)

// MaxMessageLength is the hard message size limit of the chat service.
// https://discord.com/developers/docs/resources/channel
const MaxMessageLength = 2000

// MDBlockFmt wraps text in a markdown code block.
const MDBlockFmt = "```\n%s\n```"

// FormatMDBlock returns text wrapped in a markdown code block.
func FormatMDBlock(text string) string {
	return fmt.Sprintf(MDBlockFmt, text)
}

// mdBlockEscape is "```" with zero-width spaces between the backticks, so
// that embedded fences cannot terminate a surrounding code block.
const mdBlockEscape = "`​`​`"

// EscapeMDBlock escapes triple backtick delimiters in the given text.
func EscapeMDBlock(text string) string {
	return strings.ReplaceAll(text, "```", mdBlockEscape)
}

// SplitMessage splits text into chunks no longer than limit. Chunks break at
// line boundaries; lines longer than the limit are wrapped first. Empty
// lines are preserved, and each chunk has trailing whitespace trimmed.
func SplitMessage(text string, limit int) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if len(line) > limit {
			lines = append(lines, wrapLine(line, limit)...)
		} else {
			lines = append(lines, line)
		}
	}

	var messages []string
	var current strings.Builder
	for _, line := range lines {
		if current.Len()+len(line) > limit {
			messages = append(messages, strings.TrimRight(current.String(), " \n"))
			current.Reset()
		}
		current.WriteString(line)
		current.WriteString("\n")
	}
	return append(messages, strings.TrimRight(current.String(), " \n"))
}

// wrapLine greedily wraps a single overlong line at word boundaries,
// hard-breaking any word longer than the limit.
func wrapLine(line string, limit int) []string {
	var wrapped []string
	var current strings.Builder
	for _, word := range strings.Fields(line) {
		for len(word) > limit {
			if current.Len() > 0 {
				wrapped = append(wrapped, current.String())
				current.Reset()
			}
			wrapped = append(wrapped, word[:limit])
			word = word[limit:]
		}
		switch {
		case current.Len() == 0:
			current.WriteString(word)
		case current.Len()+1+len(word) <= limit:
			current.WriteString(" ")
			current.WriteString(word)
		default:
			wrapped = append(wrapped, current.String())
			current.Reset()
			current.WriteString(word)
		}
	}
	if current.Len() > 0 {
		wrapped = append(wrapped, current.String())
	}
	return wrapped
}

// FormatDuration formats a duration in seconds as M:SS, or H:MM:SS from one
// hour up.
func FormatDuration(secs int) string {
	mins := secs / 60
	hrs := mins / 60
	mins %= 60
	secs %= 60
	if hrs > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hrs, mins, secs)
	}
	return fmt.Sprintf("%d:%02d", mins, secs)
}
