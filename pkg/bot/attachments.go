package bot

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/bwmarrin/discordgo"

	"github.com/kmolski/acmebot/pkg/eval"
)

// messagesPerPage is the maximum page size the message history endpoint
// accepts.
const messagesPerPage = 100

// attachmentSource resolves file references against the recent message
// history of one text channel.
type attachmentSource struct {
	session   *discordgo.Session
	channelID string
}

func (a *attachmentSource) RecentAttachments(ctx context.Context, limit int) ([]eval.Attachment, error) {
	var found []eval.Attachment
	beforeID := ""
	for limit > 0 {
		pageSize := limit
		if pageSize > messagesPerPage {
			pageSize = messagesPerPage
		}
		page, err := a.session.ChannelMessages(a.channelID, pageSize, beforeID, "", "", discordgo.WithContext(ctx))
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		for _, msg := range page {
			for _, att := range msg.Attachments {
				found = append(found, eval.Attachment{
					Name: att.Filename,
					Read: fetchAttachment(att.URL),
				})
			}
		}
		beforeID = page[len(page)-1].ID
		limit -= len(page)
	}
	return found, nil
}

func fetchAttachment(url string) func(ctx context.Context) ([]byte, error) {
	return func(ctx context.Context) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("fetching attachment: %s", resp.Status)
		}
		return io.ReadAll(resp.Body)
	}
}
