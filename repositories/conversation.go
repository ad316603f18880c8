package repositories

import (
	"context"
	"fmt"
	"log/slog"
	"messenger/contract"
	"messenger/domain"
	"messenger/domain/document"
)

type IConversationRepository interface {
	Get(ctx context.Context, ref domain.ConversationRef) (domain.Conversation, bool, error)
	ListDirect(ctx context.Context, userID string) ([]domain.Conversation, error)
	ListenDirect(userID string, onChange func([]domain.Conversation), onError func(error)) (contract.Subscription, error)
}

type ConversationRepository struct {
	store contract.IDocumentStore
	log   *slog.Logger
}

func NewConversationRepository(store contract.IDocumentStore, log *slog.Logger) ConversationRepository {
	return ConversationRepository{store: store, log: log}
}

// Get reads the metadata document of a direct chat or a group.
func (r ConversationRepository) Get(ctx context.Context, ref domain.ConversationRef) (domain.Conversation, bool, error) {
	doc, err := r.store.Get(ctx, ref.Collection(), string(ref.ID))
	if err != nil {
		return domain.Conversation{}, false, fmt.Errorf("reading conversation %s: %w", ref, err)
	}
	if !doc.Exists {
		return domain.Conversation{Ref: ref, Unread: domain.UnreadCounts{}}, false, nil
	}
	return toConversation(doc), true, nil
}

func directListQuery(userID string) document.Query {
	return document.NewQuery(domain.ChatsCollection).
		Where(fieldParticipants, document.OpArrayContains, userID).
		Order(fieldLastMessageTime, document.Descending)
}

// ListDirect returns the direct chats of userID, most recent first.
func (r ConversationRepository) ListDirect(ctx context.Context, userID string) ([]domain.Conversation, error) {
	docs, err := r.store.Query(ctx, directListQuery(userID))
	if err != nil {
		return nil, fmt.Errorf("listing chats of %s: %w", userID, err)
	}
	return toConversations(docs), nil
}

// ListenDirect delivers the whole list again on every change.
func (r ConversationRepository) ListenDirect(userID string, onChange func([]domain.Conversation), onError func(error)) (contract.Subscription, error) {
	return r.store.Listen(directListQuery(userID), func(s document.Snapshot) {
		onChange(toConversations(s.Docs))
	}, onError)
}

func toConversations(docs []document.Document) []domain.Conversation {
	out := make([]domain.Conversation, 0, len(docs))
	for _, d := range docs {
		out = append(out, toConversation(d))
	}
	return out
}

// ConversationFromDocument decodes a chats or groups metadata document.
func ConversationFromDocument(doc document.Document) domain.Conversation {
	return toConversation(doc)
}

// SentFields is the metadata merged after a message is written.
// The whole counter map is written; merging keeps counters of other keys.
func SentFields(ref domain.ConversationRef, participants []string, text string, counts domain.UnreadCounts) document.Fields {
	fields := document.Fields{
		fieldLastMessage:     text,
		fieldLastMessageTime: document.ServerTimestamp(),
		fieldUnreadCount:     countsValue(counts),
	}
	if ref.Kind == domain.Direct {
		fields[fieldParticipants] = participants
	}
	return fields
}

// NewConversationFields creates the metadata of a conversation nobody wrote to yet.
func NewConversationFields(ref domain.ConversationRef, participants []string, counts domain.UnreadCounts) document.Fields {
	return document.Fields{
		ref.ParticipantsField(): participants,
		fieldLastMessage:        "",
		fieldLastMessageTime:    document.ServerTimestamp(),
		fieldUnreadCount:        countsValue(counts),
	}
}

// ResetFields clears one counter and nothing else.
func ResetFields(viewerID string) document.Fields {
	return document.Fields{UnreadField(viewerID): 0}
}

// SeedFields adds the counters listed in missing.
func SeedFields(missing []string) document.Fields {
	fields := document.Fields{}
	for _, p := range missing {
		fields[UnreadField(p)] = 0
	}
	return fields
}

func countsValue(counts domain.UnreadCounts) map[string]any {
	out := make(map[string]any, len(counts))
	for k, v := range counts {
		out[k] = v
	}
	return out
}
