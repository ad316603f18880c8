// Package event defines the closed set of events a session publishes.
// Consumers switch on Kind or on the concrete type; no event is identified by a string.
package event

import (
	"messenger/domain"
	"time"
)

type Kind int

const (
	SessionStartedKind Kind = iota + 1
	SessionEndedKind
	ConversationOpenedKind
	ConversationClosedKind
	MessageAppendedKind
	TimestampResolvedKind
	UnreadResetKind
	AlertKind
)

func (k Kind) String() string {
	switch k {
	case SessionStartedKind:
		return "SESSION_STARTED"
	case SessionEndedKind:
		return "SESSION_ENDED"
	case ConversationOpenedKind:
		return "CONVERSATION_OPENED"
	case ConversationClosedKind:
		return "CONVERSATION_CLOSED"
	case MessageAppendedKind:
		return "MESSAGE_APPENDED"
	case TimestampResolvedKind:
		return "TIMESTAMP_RESOLVED"
	case UnreadResetKind:
		return "UNREAD_RESET"
	case AlertKind:
		return "ALERT"
	default:
		return "UNKNOWN"
	}
}

type DomainEvent interface {
	Kind() Kind
	Conversation() domain.ConversationRef
}

type SessionStarted struct {
	UserID string
	At     time.Time
}

func (SessionStarted) Kind() Kind { return SessionStartedKind }
func (SessionStarted) Conversation() domain.ConversationRef { return domain.ConversationRef{} }

type SessionEnded struct {
	UserID string
	At     time.Time
}

func (SessionEnded) Kind() Kind { return SessionEndedKind }
func (SessionEnded) Conversation() domain.ConversationRef { return domain.ConversationRef{} }

type ConversationOpened struct {
	Ref      domain.ConversationRef
	ViewerID string
	// Messages is the initial window in ascending order.
	Messages []domain.Message
}

func (ConversationOpened) Kind() Kind { return ConversationOpenedKind }
func (e ConversationOpened) Conversation() domain.ConversationRef { return e.Ref }

type ConversationClosed struct {
	Ref domain.ConversationRef
}

func (ConversationClosed) Kind() Kind { return ConversationClosedKind }
func (e ConversationClosed) Conversation() domain.ConversationRef { return e.Ref }

type MessageAppended struct {
	Ref     domain.ConversationRef
	Message domain.Message
}

func (MessageAppended) Kind() Kind { return MessageAppendedKind }
func (e MessageAppended) Conversation() domain.ConversationRef { return e.Ref }

// TimestampResolved patches the time of an already rendered message.
type TimestampResolved struct {
	Ref       domain.ConversationRef
	MessageID string
	At        time.Time
}

func (TimestampResolved) Kind() Kind { return TimestampResolvedKind }
func (e TimestampResolved) Conversation() domain.ConversationRef { return e.Ref }

type UnreadReset struct {
	Ref    domain.ConversationRef
	UserID string
	Change domain.CounterChange
	// Live is true when the reset was triggered by a message arriving while viewing.
	Live bool
}

func (UnreadReset) Kind() Kind { return UnreadResetKind }
func (e UnreadReset) Conversation() domain.ConversationRef { return e.Ref }

// Alert is the user facing notice of a failed backend call.
type Alert struct {
	Ref       domain.ConversationRef
	Operation string
	Err       error
}

func (Alert) Kind() Kind { return AlertKind }
func (e Alert) Conversation() domain.ConversationRef { return e.Ref }
