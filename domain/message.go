// Package domain contains core concepts of the messenger.
// This file defines Message records and related rules.
// Messages are immutable once written, except for their creation time
// which is filled in by the store after the write is acknowledged.
package domain

import (
	"messenger/errors"
	"strings"
	"time"
)

// Message is a single entry of a conversation.
type Message struct {
	ID         string
	Text       string
	SenderID   string
	SenderName string     // denormalized at write time
	CreatedAt  *time.Time // nil while pending
}

func (m Message) Pending() bool {
	return m.CreatedAt == nil
}

// NormalizeText trims a message and rejects empty ones.
func NormalizeText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.ErrEmptyMessage
	}
	return text, nil
}
