package eval

import (
	"context"

	"github.com/kmolski/acmebot/pkg/parse"
)

// Output is the capability to produce user-visible output. It is supplied by
// the transport; any chunking of long text is the implementation's concern.
type Output interface {
	// Send emits user-visible output.
	Send(ctx context.Context, text string) error
	// SendBlock emits user-visible output formatted as a fenced code block
	// with the given syntax highlighting tag (usually empty). The transport
	// escapes embedded fences and splits overlong output into chunks.
	SendBlock(ctx context.Context, text, lang string) error
}

// Attachment is a file attached to a recent message in the invocation's
// channel. Content is fetched lazily, since resolution usually stops at the
// first name match.
type Attachment struct {
	Name string
	Read func(ctx context.Context) ([]byte, error)
}

// AttachmentSource scans the recent message history of the invocation's
// channel. RecentAttachments inspects up to limit messages, most recent
// first, and returns their attachments in scan order.
type AttachmentSource interface {
	RecentAttachments(ctx context.Context, limit int) ([]Attachment, error)
}

// Context is the request-scoped state threaded through one evaluation. It is
// created by the transport for each invocation and shared by every node
// evaluated within it; visibility of output is not part of it but passed
// explicitly down the evaluation call tree.
type Context struct {
	// Caller is an opaque identity token for the invoking user. The
	// evaluator only hands it to permission predicates.
	Caller any
	// Output emits user-visible output.
	Output Output
	// Attachments resolves file references against recent messages.
	Attachments AttachmentSource
	// Data carries transport-specific request data, opaque to the
	// evaluator but available to operations.
	Data any

	// Command is the command most recently dispatched within this
	// invocation. It is kept up to date before anything can fail, so that
	// the transport can attribute an error to the command that raised it.
	// Evaluation itself never reads it.
	Command *parse.Command
}
