package sink

import (
	"context"
	"messenger/domain"
	"messenger/domain/event"
	"slices"
	"sync"
)

// Transcript keeps what a user has been shown, per conversation.
type Transcript struct {
	mu       sync.Mutex
	messages map[domain.ConversationRef][]domain.Message
	alerts   []event.Alert
}

func NewTranscript() *Transcript {
	return &Transcript{messages: make(map[domain.ConversationRef][]domain.Message)}
}

func (t *Transcript) Consume(_ context.Context, e event.DomainEvent) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch evt := e.(type) {
	case event.ConversationOpened:
		t.messages[evt.Ref] = slices.Clone(evt.Messages)
	case event.MessageAppended:
		t.messages[evt.Ref] = append(t.messages[evt.Ref], evt.Message)
	case event.TimestampResolved:
		list := t.messages[evt.Ref]
		for i := range list {
			if list[i].ID == evt.MessageID {
				at := evt.At
				list[i].CreatedAt = &at
			}
		}
	case event.Alert:
		t.alerts = append(t.alerts, evt)
	}
	return nil
}

func (t *Transcript) Messages(ref domain.ConversationRef) []domain.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.messages[ref])
}

// Texts is a shortcut for assertions and dumps.
func (t *Transcript) Texts(ref domain.ConversationRef) []string {
	messages := t.Messages(ref)
	texts := make([]string, len(messages))
	for i, m := range messages {
		texts[i] = m.Text
	}
	return texts
}

func (t *Transcript) Alerts() []event.Alert {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.alerts)
}
