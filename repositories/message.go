package repositories

import (
	"context"
	"fmt"
	"log/slog"
	"messenger/contract"
	"messenger/domain"
	"messenger/domain/document"
	"slices"

	"github.com/google/uuid"
)

const DefaultMessageWindow = 50

type IMessageRepository interface {
	Append(ctx context.Context, ref domain.ConversationRef, message domain.Message) (string, error)
	Recent(ctx context.Context, ref domain.ConversationRef, limit int) ([]domain.Message, error)
	Listen(ref domain.ConversationRef, onBatch func(MessageBatch), onError func(error)) (contract.Subscription, error)
	DeleteAll(ctx context.Context, ref domain.ConversationRef) error
}

type MessageRepository struct {
	store  contract.IDocumentStore
	log    *slog.Logger
	window int
}

func NewMessageRepository(store contract.IDocumentStore, log *slog.Logger, window int) MessageRepository {
	if window <= 0 {
		window = DefaultMessageWindow
	}
	return MessageRepository{store: store, log: log, window: window}
}

// MessageChange is one added or modified message of a live batch.
type MessageChange struct {
	Kind    document.ChangeKind
	Message domain.Message
}

// MessageBatch is delivered to live listeners.
// Initial batches carry the window oldest first; later ones only carry changes.
type MessageBatch struct {
	Initial  bool
	Messages []domain.Message
	Changes  []MessageChange
}

// Append writes a message with a server assigned creation time.
// An empty id is replaced by a generated one, which is returned.
func (r MessageRepository) Append(ctx context.Context, ref domain.ConversationRef, message domain.Message) (string, error) {
	id := message.ID
	if id == "" {
		id = uuid.NewString()
	}
	err := r.store.Set(ctx, ref.MessagesCollection(), id, document.Fields{
		fieldText:      message.Text,
		fieldUID:       message.SenderID,
		fieldUsername:  message.SenderName,
		fieldCreatedAt: document.ServerTimestamp(),
	}, false)
	if err != nil {
		return "", fmt.Errorf("writing message to %s: %w", ref, err)
	}
	return id, nil
}

func (r MessageRepository) windowQuery(ref domain.ConversationRef, limit int) document.Query {
	return document.NewQuery(ref.MessagesCollection()).
		Order(fieldCreatedAt, document.Descending).
		WithLimit(limit)
}

// Recent returns the last limit messages, oldest first.
func (r MessageRepository) Recent(ctx context.Context, ref domain.ConversationRef, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = r.window
	}
	docs, err := r.store.Query(ctx, r.windowQuery(ref, limit))
	if err != nil {
		return nil, fmt.Errorf("reading messages of %s: %w", ref, err)
	}
	return chronological(docs), nil
}

// Listen follows the most recent window of a conversation.
// Removed messages are not reported.
func (r MessageRepository) Listen(ref domain.ConversationRef, onBatch func(MessageBatch), onError func(error)) (contract.Subscription, error) {
	return r.store.Listen(r.windowQuery(ref, r.window), func(s document.Snapshot) {
		if s.Initial {
			onBatch(MessageBatch{Initial: true, Messages: chronological(s.Docs)})
			return
		}
		var changes []MessageChange
		for _, c := range s.Changes {
			if c.Kind == document.Removed {
				continue
			}
			changes = append(changes, MessageChange{Kind: c.Kind, Message: toMessage(c.Doc)})
		}
		if len(changes) > 0 {
			onBatch(MessageBatch{Changes: changes})
		}
	}, onError)
}

// DeleteAll removes every message of a conversation.
func (r MessageRepository) DeleteAll(ctx context.Context, ref domain.ConversationRef) error {
	docs, err := r.store.Query(ctx, document.NewQuery(ref.MessagesCollection()))
	if err != nil {
		return err
	}
	for _, d := range docs {
		if err = r.store.Delete(ctx, d.Collection, d.ID); err != nil {
			return fmt.Errorf("deleting message %s: %w", d.ID, err)
		}
	}
	return nil
}

// chronological reverses a descending batch.
func chronological(docs []document.Document) []domain.Message {
	messages := make([]domain.Message, 0, len(docs))
	for _, d := range docs {
		messages = append(messages, toMessage(d))
	}
	slices.Reverse(messages)
	return messages
}

// MessageFromDocument decodes a message read from a change feed.
func MessageFromDocument(doc document.Document) domain.Message {
	return toMessage(doc)
}
