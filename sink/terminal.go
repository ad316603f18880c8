package sink

import (
	"context"
	"fmt"
	"io"
	"messenger/domain"
	"messenger/domain/event"
	"messenger/projection"
	"sync"

	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
)

// Terminal renders session events and command output on one writer.
type Terminal struct {
	mu   sync.Mutex
	out  io.Writer
	self string
}

func NewTerminal(out io.Writer) *Terminal {
	return &Terminal{out: out}
}

func (t *Terminal) Consume(_ context.Context, e event.DomainEvent) error {
	switch e := e.(type) {
	case event.SessionStarted:
		t.setSelf(e.UserID)
		t.Println(color.Green.Sprintf("Signed in as %s", e.UserID))
	case event.SessionEnded:
		t.setSelf("")
		t.Println(color.Yellow.Sprint("Signed out"))
	case event.ConversationOpened:
		t.Println(color.Bold.Sprintf("── %s ──", e.Ref))
		for _, m := range e.Messages {
			t.Println(t.formatMessage(m))
		}
	case event.ConversationClosed:
		t.Println(color.Gray.Sprintf("── closed %s ──", e.Ref))
	case event.MessageAppended:
		t.Println(t.formatMessage(e.Message))
	case event.TimestampResolved:
		t.Println(color.Gray.Sprintf("   ✓ %s", e.At.Local().Format("15:04")))
	case event.Alert:
		t.Println(color.Red.Sprintf("⚠ %s failed: %v", e.Operation, e.Err))
	}
	return nil
}

func (t *Terminal) setSelf(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.self = userID
}

func (t *Terminal) formatMessage(m domain.Message) string {
	t.mu.Lock()
	self := t.self
	t.mu.Unlock()

	at := projection.FormatTime(m)
	if at == "" {
		at = "sending"
	}
	line := fmt.Sprintf("[%s] %s: %s", at, m.SenderName, m.Text)
	if m.SenderID == self {
		return color.Cyan.Sprint(line)
	}
	return line
}

func (t *Terminal) Println(a ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, _ = fmt.Fprintln(t.out, a...)
}

func (t *Terminal) Errorf(format string, a ...any) {
	t.Println(color.Red.Sprintf(format, a...))
}

// Table prints rows without borders.
func (t *Terminal) Table(header []string, rows [][]string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	table := tablewriter.NewWriter(t.out)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.AppendBulk(rows)
	table.Render()
}
