// Package notify turns newly written messages into push notifications.
package notify

import (
	"messenger/contract"
	"messenger/domain"
	"net/url"
	"strconv"
)

const (
	MaxBodyRunes   = 100
	DefaultBaseURL = "https://messenger.local/"
)

// Truncate cuts text to MaxBodyRunes characters and marks the cut.
func Truncate(text string) string {
	runes := []rune(text)
	if len(runes) <= MaxBodyRunes {
		return text
	}
	return string(runes[:MaxBodyRunes]) + "..."
}

// Chat is what a recipient needs to know about the conversation a message belongs to.
type Chat struct {
	Ref  domain.ConversationRef
	Name string // group name, empty for direct chats
}

// BuildPush prepares the notification of message for one device of recipientID.
func BuildPush(chat Chat, messageID string, message domain.Message, recipientID, token string, unread int, baseURL string) contract.PushMessage {
	chatID := string(chat.Ref.ID)
	push := contract.PushMessage{
		Token:  token,
		UserID: recipientID,
		Link:   Link(baseURL, chat.Ref),
	}
	if chat.Ref.Kind == domain.GroupKind {
		push.Title = "👥 " + chat.Name
		push.Body = message.SenderName + ": " + Truncate(message.Text)
		push.Data = map[string]string{
			"chatId":      chatID,
			"chatType":    chat.Ref.Kind.String(),
			"chatName":    chat.Name,
			"senderId":    message.SenderID,
			"senderName":  message.SenderName,
			"messageId":   messageID,
			"unreadCount": strconv.Itoa(unread),
		}
		return push
	}
	push.Title = "👤 @" + message.SenderName
	push.Body = Truncate(message.Text)
	push.Data = map[string]string{
		"chatId":      chatID,
		"chatType":    chat.Ref.Kind.String(),
		"userId":      message.SenderID,
		"username":    message.SenderName,
		"messageId":   messageID,
		"unreadCount": strconv.Itoa(unread),
	}
	return push
}

// Link opens the conversation in the client.
func Link(baseURL string, ref domain.ConversationRef) string {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	q := url.Values{}
	q.Set("openChat", string(ref.ID))
	q.Set("type", ref.Kind.String())
	return baseURL + "?" + q.Encode()
}
