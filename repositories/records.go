package repositories

import (
	"messenger/domain"
	"messenger/domain/document"
	"time"
)

// Field names of the persisted records.
const (
	fieldParticipants    = "participants"
	fieldMembers         = "members"
	fieldAdmins          = "admins"
	fieldLastMessage     = "lastMessage"
	fieldLastMessageTime = "lastMessageTime"
	fieldUnreadCount     = "unreadCount"
	fieldName            = "name"
	fieldDescription     = "description"
	fieldCreatedBy       = "createdBy"
	fieldCreatedAt       = "createdAt"

	fieldText     = "text"
	fieldUID      = "uid"
	fieldUsername = "username"

	fieldEmail                = "email"
	fieldFcmTokens            = "fcmTokens"
	fieldNotificationsEnabled = "notificationsEnabled"
	fieldSettings             = "notificationSettings"
)

// UnreadField is the dotted path of one participant counter.
func UnreadField(userID string) string {
	return fieldUnreadCount + "." + userID
}

func unreadCounts(f document.Fields) domain.UnreadCounts {
	counts := domain.UnreadCounts{}
	for k := range f.Map(fieldUnreadCount) {
		counts[k] = f.Int(UnreadField(k))
	}
	return counts
}

func toConversation(doc document.Document) domain.Conversation {
	kind := domain.Direct
	if doc.Collection == domain.GroupsCollection {
		kind = domain.GroupKind
	}
	ref := domain.ConversationRef{Kind: kind, ID: domain.ConversationID(doc.ID)}
	return domain.Conversation{
		Ref:             ref,
		Participants:    doc.Fields.Strings(ref.ParticipantsField()),
		LastMessage:     doc.Fields.String(fieldLastMessage),
		LastMessageTime: doc.Fields.Time(fieldLastMessageTime),
		Unread:          unreadCounts(doc.Fields),
	}
}

func toGroup(doc document.Document) domain.Group {
	return domain.Group{
		ID:              doc.ID,
		Name:            doc.Fields.String(fieldName),
		Description:     doc.Fields.String(fieldDescription),
		CreatedBy:       doc.Fields.String(fieldCreatedBy),
		Members:         doc.Fields.Strings(fieldMembers),
		Admins:          doc.Fields.Strings(fieldAdmins),
		CreatedAt:       doc.Fields.Time(fieldCreatedAt),
		LastMessage:     doc.Fields.String(fieldLastMessage),
		LastMessageTime: doc.Fields.Time(fieldLastMessageTime),
		Unread:          unreadCounts(doc.Fields),
	}
}

func toMessage(doc document.Document) domain.Message {
	return domain.Message{
		ID:         doc.ID,
		Text:       doc.Fields.String(fieldText),
		SenderID:   doc.Fields.String(fieldUID),
		SenderName: doc.Fields.String(fieldUsername),
		CreatedAt:  doc.Fields.Time(fieldCreatedAt),
	}
}

// toUser reads a profile. A missing notificationsEnabled flag means enabled.
func toUser(doc document.Document) domain.User {
	enabled, present := doc.Fields.Bool(fieldNotificationsEnabled)
	user := domain.User{
		ID:                   doc.ID,
		Username:             doc.Fields.String(fieldUsername),
		Email:                doc.Fields.String(fieldEmail),
		CreatedAt:            doc.Fields.Time(fieldCreatedAt),
		DeviceTokens:         map[string]domain.DeviceToken{},
		NotificationsEnabled: enabled || !present,
		Settings:             toSettings(doc.Fields),
	}
	for token := range doc.Fields.Map(fieldFcmTokens) {
		user.DeviceTokens[token] = domain.DeviceToken{
			Token:    token,
			LastUsed: doc.Fields.Time(fieldFcmTokens + "." + token + ".lastUsed"),
		}
	}
	return user
}

func toSettings(f document.Fields) domain.NotificationSettings {
	settings := domain.DefaultNotificationSettings()
	if !f.Has(fieldSettings) {
		return settings
	}
	if v, ok := f.Bool(fieldSettings + ".enabled"); ok {
		settings.Enabled = v
	}
	if v, ok := f.Bool(fieldSettings + ".sound"); ok {
		settings.Sound = v
	}
	if v, ok := f.Bool(fieldSettings + ".doNotDisturb"); ok {
		settings.DoNotDisturb = v
	}
	settings.DoNotDisturbUntil = f.Time(fieldSettings + ".doNotDisturbUntil")
	for chatID := range f.Map(fieldSettings + ".chatMuted") {
		if until := f.Time(fieldSettings + ".chatMuted." + chatID); until != nil {
			settings.ChatMuted[chatID] = *until
		}
	}
	return settings
}

func millis(t time.Time) float64 {
	return document.Millis(t)
}
