package bot

import (
	"bytes"
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/kmolski/acmebot/pkg/textutil"
)

// channelOutput sends command output to the text channel an invocation came
// from. It implements eval.Output and the file upload used by to-file.
type channelOutput struct {
	session   *discordgo.Session
	channelID string
}

func (o *channelOutput) Send(_ context.Context, text string) error {
	for _, chunk := range textutil.SplitMessage(text, textutil.MaxMessageLength) {
		if _, err := o.session.ChannelMessageSend(o.channelID, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (o *channelOutput) SendBlock(_ context.Context, text, lang string) error {
	format := fmt.Sprintf("```%s\n%%s\n```", lang)
	limit := textutil.MaxMessageLength - len(format) + len("%s")
	escaped := textutil.EscapeMDBlock(text)
	for _, chunk := range textutil.SplitMessage(escaped, limit) {
		if _, err := o.session.ChannelMessageSend(o.channelID, fmt.Sprintf(format, chunk)); err != nil {
			return err
		}
	}
	return nil
}

func (o *channelOutput) SendFile(_ context.Context, message, name string, content []byte) error {
	_, err := o.session.ChannelMessageSendComplex(o.channelID, &discordgo.MessageSend{
		Content: message,
		Files: []*discordgo.File{
			{Name: name, Reader: bytes.NewReader(content)},
		},
	})
	return err
}
