// Package domain contains core concepts of the messenger.
// This file defines conversation identity and where conversations are stored.
// No runtime, network, or UI logic should be added here.
package domain

import (
	"fmt"
	"messenger/errors"
	"sort"
	"strings"
	"time"
)

const (
	ChatsCollection    = "chats"
	GroupsCollection   = "groups"
	UsersCollection    = "users"
	DirectMessagesRoot = "directMessages"
	GroupMessagesRoot  = "groupMessages"
	messagesSuffix     = "messages"

	// DirectSeparator joins the two participants of a direct conversation.
	// It is rejected inside user identifiers.
	DirectSeparator = "_"
)

type ConversationKind int

const (
	Direct ConversationKind = iota
	GroupKind
)

func (k ConversationKind) String() string {
	if k == GroupKind {
		return "group"
	}
	return "dm"
}

type ConversationID string

// DirectConversationID is the canonical id of the conversation between a and b.
// Both participants compute the same id without any lookup.
func DirectConversationID(a, b string) ConversationID {
	ids := []string{a, b}
	sort.Strings(ids)
	return ConversationID(strings.Join(ids, DirectSeparator))
}

// ParseDirectConversationID splits a direct conversation id into its two participants.
func ParseDirectConversationID(id ConversationID) (string, string, bool) {
	parts := strings.Split(string(id), DirectSeparator)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// PeerOf returns the other participant of a direct conversation.
func PeerOf(id ConversationID, me string) (string, bool) {
	a, b, ok := ParseDirectConversationID(id)
	switch {
	case !ok:
		return "", false
	case a == me:
		return b, true
	case b == me:
		return a, true
	default:
		return "", false
	}
}

// ValidUserID guards the separator used by direct conversation ids.
func ValidUserID(id string) error {
	if strings.TrimSpace(id) == "" || strings.Contains(id, DirectSeparator) {
		return fmt.Errorf("%w: %q", errors.ErrInvalidUserID, id)
	}
	return nil
}

// ConversationRef addresses a conversation and its messages in the document store.
type ConversationRef struct {
	Kind ConversationKind
	ID   ConversationID
}

func DirectRef(a, b string) ConversationRef {
	return ConversationRef{Kind: Direct, ID: DirectConversationID(a, b)}
}

func GroupRef(groupID string) ConversationRef {
	return ConversationRef{Kind: GroupKind, ID: ConversationID(groupID)}
}

// Collection holds the conversation metadata document.
func (r ConversationRef) Collection() string {
	if r.Kind == GroupKind {
		return GroupsCollection
	}
	return ChatsCollection
}

func (r ConversationRef) MessagesCollection() string {
	root := DirectMessagesRoot
	if r.Kind == GroupKind {
		root = GroupMessagesRoot
	}
	return root + "/" + string(r.ID) + "/" + messagesSuffix
}

// ParticipantsField is "members" for groups, "participants" for direct chats.
func (r ConversationRef) ParticipantsField() string {
	if r.Kind == GroupKind {
		return "members"
	}
	return "participants"
}

func (r ConversationRef) String() string {
	return r.Kind.String() + ":" + string(r.ID)
}

// ParseMessagesCollection is the inverse of MessagesCollection.
func ParseMessagesCollection(path string) (ConversationRef, bool) {
	parts := strings.Split(path, "/")
	if len(parts) != 3 || parts[2] != messagesSuffix || parts[1] == "" {
		return ConversationRef{}, false
	}
	switch parts[0] {
	case DirectMessagesRoot:
		return ConversationRef{Kind: Direct, ID: ConversationID(parts[1])}, true
	case GroupMessagesRoot:
		return ConversationRef{Kind: GroupKind, ID: ConversationID(parts[1])}, true
	default:
		return ConversationRef{}, false
	}
}

// Conversation is the denormalized metadata rendered in conversation lists.
type Conversation struct {
	Ref             ConversationRef
	Participants    []string
	LastMessage     string
	LastMessageTime *time.Time
	Unread          UnreadCounts
}
