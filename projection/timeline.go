// Package projection builds the local view of an open conversation from live batches.
// Handles ordering, deduplication and timestamp resolution.
// Does not emit events or interact with the UI directly: it returns render operations.
package projection

import (
	"messenger/domain"
	"messenger/domain/document"
	"messenger/repositories"
	"sync"
	"time"
)

type OpKind int

const (
	Appended OpKind = iota + 1
	TimestampPatched
)

func (k OpKind) String() string {
	switch k {
	case Appended:
		return "appended"
	case TimestampPatched:
		return "timestamp-patched"
	default:
		return "unknown"
	}
}

// Op is one incremental render step.
// Index is the position of the message in the timeline.
type Op struct {
	Kind    OpKind
	Index   int
	Message domain.Message
}

// Timeline holds the rendered messages of one conversation, oldest first.
// Messages are identified by their store id; an id is rendered at most once.
type Timeline struct {
	ref domain.ConversationRef

	mu       sync.Mutex
	messages []domain.Message
	index    map[string]int
}

func NewTimeline(ref domain.ConversationRef) *Timeline {
	return &Timeline{ref: ref, index: make(map[string]int)}
}

func (t *Timeline) Ref() domain.ConversationRef {
	return t.ref
}

// Apply folds a live batch into the timeline.
// An initial batch on an empty view renders everything in order. On a view
// that already holds pending entries it is merged ahead of them.
// Added messages are appended at the end even when they are older than the last one.
func (t *Timeline) Apply(batch repositories.MessageBatch) []Op {
	t.mu.Lock()
	defer t.mu.Unlock()

	var ops []Op
	if batch.Initial {
		if len(t.messages) > 0 {
			return t.merge(batch.Messages)
		}
		for _, m := range batch.Messages {
			if op, ok := t.added(m); ok {
				ops = append(ops, op)
			}
		}
		return ops
	}
	for _, c := range batch.Changes {
		var (
			op Op
			ok bool
		)
		switch c.Kind {
		case document.Added:
			op, ok = t.added(c.Message)
		case document.Modified:
			op, ok = t.patch(c.Message)
		}
		if ok {
			ops = append(ops, op)
		}
	}
	return ops
}

// AddPending renders a message before the store acknowledged it.
// Its timestamp is patched when the live query delivers it.
func (t *Timeline) AddPending(m domain.Message) (Op, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	m.CreatedAt = nil
	return t.added(m)
}

func (t *Timeline) added(m domain.Message) (Op, bool) {
	if m.ID == "" {
		return Op{}, false
	}
	if _, ok := t.index[m.ID]; ok {
		return t.patch(m)
	}
	t.index[m.ID] = len(t.messages)
	t.messages = append(t.messages, m)
	return Op{Kind: Appended, Index: len(t.messages) - 1, Message: m}, true
}

// merge rebuilds the view as the snapshot followed by local entries it does not hold.
// Local entries found in the snapshot keep their content and take its timestamp.
func (t *Timeline) merge(snapshot []domain.Message) []Op {
	local := t.messages
	merged := make([]domain.Message, 0, len(snapshot)+len(local))
	seen := make(map[string]bool, len(snapshot))
	var fresh, patched []string
	for _, m := range snapshot {
		if m.ID == "" || seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		i, known := t.index[m.ID]
		if !known {
			fresh = append(fresh, m.ID)
			merged = append(merged, m)
			continue
		}
		current := local[i]
		if m.CreatedAt != nil && (current.CreatedAt == nil || !current.CreatedAt.Equal(*m.CreatedAt)) {
			at := *m.CreatedAt
			current.CreatedAt = &at
			patched = append(patched, m.ID)
		}
		merged = append(merged, current)
	}
	for _, m := range local {
		if !seen[m.ID] {
			merged = append(merged, m)
		}
	}

	t.messages = merged
	t.index = make(map[string]int, len(merged))
	for i, m := range merged {
		t.index[m.ID] = i
	}

	ops := make([]Op, 0, len(fresh)+len(patched))
	for _, id := range fresh {
		i := t.index[id]
		ops = append(ops, Op{Kind: Appended, Index: i, Message: t.messages[i]})
	}
	for _, id := range patched {
		i := t.index[id]
		ops = append(ops, Op{Kind: TimestampPatched, Index: i, Message: t.messages[i]})
	}
	return ops
}

// patch only ever touches the creation time of a rendered message.
func (t *Timeline) patch(m domain.Message) (Op, bool) {
	i, ok := t.index[m.ID]
	if !ok || m.CreatedAt == nil {
		return Op{}, false
	}
	current := t.messages[i].CreatedAt
	if current != nil && current.Equal(*m.CreatedAt) {
		return Op{}, false
	}
	at := *m.CreatedAt
	t.messages[i].CreatedAt = &at
	return Op{Kind: TimestampPatched, Index: i, Message: t.messages[i]}, true
}

// Messages returns a copy of the rendered messages.
func (t *Timeline) Messages() []domain.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]domain.Message, len(t.messages))
	copy(out, t.messages)
	return out
}

func (t *Timeline) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.messages)
}

// FormatTime renders the time of a message, empty while pending.
func FormatTime(m domain.Message) string {
	if m.CreatedAt == nil {
		return ""
	}
	return m.CreatedAt.Local().Format(time.Kitchen)
}
