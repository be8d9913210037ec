package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
)

// TerminalChannel prints notifications to the terminal with a bell so
// safety events are hard to miss during a live session.
type TerminalChannel struct {
	mu     sync.Mutex
	writer io.Writer
	bell   bool
}

// NewTerminalChannel creates a terminal channel writing to stdout.
func NewTerminalChannel(bell bool) *TerminalChannel {
	return &TerminalChannel{writer: os.Stdout, bell: bell}
}

// NewTerminalChannelWriter creates a terminal channel with a custom
// writer, used by tests.
func NewTerminalChannelWriter(w io.Writer) *TerminalChannel {
	return &TerminalChannel{writer: w}
}

// Name returns the channel name.
func (t *TerminalChannel) Name() string { return "terminal" }

// Send prints the notification.
func (t *TerminalChannel) Send(_ context.Context, n Notification) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	color := "\033[33m" // yellow
	switch n.Kind {
	case KindBreakerTripped, KindLedgerFault:
		color = "\033[31m" // red
	case KindBreakerReset, KindFill:
		color = "\033[32m" // green
	}

	bell := ""
	if t.bell && (n.Kind == KindBreakerTripped || n.Kind == KindLedgerFault) {
		bell = "\a"
	}

	_, err := fmt.Fprintf(t.writer, "%s%s[%s] %s: %s\033[0m\n",
		bell, color, n.Timestamp.Format("15:04:05"), n.Title, n.Message)
	return err
}
