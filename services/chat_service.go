package services

import (
	"context"
	"fmt"
	"log/slog"
	"messenger/domain"
	"messenger/errors"
	"messenger/repositories"
	"slices"
)

type IChatService interface {
	Open(ctx context.Context, ref domain.ConversationRef, viewerID string) (domain.CounterChange, error)
	Send(ctx context.Context, ref domain.ConversationRef, sender domain.User, message domain.Message) (SendResult, error)
	MarkSeen(ctx context.Context, ref domain.ConversationRef, viewerID string) (domain.CounterChange, error)
	Participants(ctx context.Context, ref domain.ConversationRef) ([]string, error)
}

type ChatService struct {
	messages repositories.IMessageRepository
	groups   repositories.IGroupRepository
	tracker  IUnreadTracker
	log      *slog.Logger
}

func NewChatService(messages repositories.IMessageRepository, groups repositories.IGroupRepository, tracker IUnreadTracker, log *slog.Logger) *ChatService {
	return &ChatService{messages: messages, groups: groups, tracker: tracker, log: log}
}

// SendResult describes a sent message.
// MetadataErr is set when the message was written but its conversation metadata was not.
type SendResult struct {
	Message     domain.Message
	Counters    domain.CounterChange
	MetadataErr error
}

// Participants of a direct chat come from its id, those of a group from the group record.
func (s *ChatService) Participants(ctx context.Context, ref domain.ConversationRef) ([]string, error) {
	if ref.Kind == domain.Direct {
		a, b, ok := domain.ParseDirectConversationID(ref.ID)
		if !ok {
			return nil, fmt.Errorf("%w: %q", errors.ErrInvalidUserID, ref.ID)
		}
		return []string{a, b}, nil
	}
	group, err := s.groups.Get(ctx, string(ref.ID))
	if err != nil {
		return nil, err
	}
	return group.Members, nil
}

func (s *ChatService) checkParticipant(ctx context.Context, ref domain.ConversationRef, userID string) ([]string, error) {
	participants, err := s.Participants(ctx, ref)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(participants, userID) {
		return nil, fmt.Errorf("%w: %s in %s", errors.ErrNotParticipant, userID, ref)
	}
	return participants, nil
}

// Open prepares a conversation for the viewer: a direct chat is created on first open,
// then the viewer counter is cleared.
func (s *ChatService) Open(ctx context.Context, ref domain.ConversationRef, viewerID string) (domain.CounterChange, error) {
	participants, err := s.checkParticipant(ctx, ref, viewerID)
	if err != nil {
		return domain.CounterChange{}, err
	}
	if ref.Kind == domain.Direct {
		if _, err = s.tracker.ConversationInitialized(ctx, ref, participants); err != nil {
			s.log.Warn("Initializing conversation failed", "conversation", ref.String(), "error", err)
		}
	}
	return s.tracker.ConversationOpened(ctx, ref, viewerID)
}

// MarkSeen clears the viewer counter of an open conversation.
func (s *ChatService) MarkSeen(ctx context.Context, ref domain.ConversationRef, viewerID string) (domain.CounterChange, error) {
	return s.tracker.ConversationOpened(ctx, ref, viewerID)
}

// Send writes the message then the conversation metadata.
// A metadata failure does not fail the send: the message is already stored.
func (s *ChatService) Send(ctx context.Context, ref domain.ConversationRef, sender domain.User, message domain.Message) (SendResult, error) {
	text, err := domain.NormalizeText(message.Text)
	if err != nil {
		return SendResult{}, err
	}
	participants, err := s.checkParticipant(ctx, ref, sender.ID)
	if err != nil {
		return SendResult{}, err
	}
	message.Text = text
	message.SenderID = sender.ID
	message.SenderName = sender.Username
	id, err := s.messages.Append(ctx, ref, message)
	if err != nil {
		return SendResult{}, err
	}
	message.ID = id

	result := SendResult{Message: message}
	result.Counters, result.MetadataErr = s.tracker.MessageSent(ctx, ref, sender.ID, participants, text)
	if result.MetadataErr != nil {
		s.log.Error("Message written but metadata update failed",
			"conversation", ref.String(), "message", id, "error", result.MetadataErr)
	}
	return result, nil
}
