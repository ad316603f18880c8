package notify

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"messenger/contract"
	"messenger/domain"
	"messenger/domain/document"
	"messenger/errors"
	"messenger/repositories"
	"slices"
	"time"
)

// Report sums up the fan-out of one message.
type Report struct {
	Sent    int
	Failed  int
	Skipped map[string]domain.SkipReason
	Removed []string
}

type Dispatcher struct {
	users         repositories.IUserRepository
	groups        repositories.IGroupRepository
	conversations repositories.IConversationRepository
	sender        contract.IPushSender
	log           *slog.Logger
	baseURL       string
	now           func() time.Time
}

func NewDispatcher(users repositories.IUserRepository, groups repositories.IGroupRepository,
	conversations repositories.IConversationRepository, sender contract.IPushSender, log *slog.Logger, baseURL string) *Dispatcher {
	return &Dispatcher{
		users:         users,
		groups:        groups,
		conversations: conversations,
		sender:        sender,
		log:           log,
		baseURL:       baseURL,
		now:           time.Now,
	}
}

// HandleChange dispatches the creation of a message document.
// Every other change is ignored.
func (d *Dispatcher) HandleChange(ctx context.Context, change document.Change) (Report, bool, error) {
	if change.Kind != document.Added {
		return Report{}, false, nil
	}
	ref, ok := domain.ParseMessagesCollection(change.Doc.Collection)
	if !ok {
		return Report{}, false, nil
	}
	message := repositories.MessageFromDocument(change.Doc)
	report, err := d.MessageCreated(ctx, ref, message)
	return report, true, err
}

// MessageCreated notifies every participant but the sender, device by device.
func (d *Dispatcher) MessageCreated(ctx context.Context, ref domain.ConversationRef, message domain.Message) (Report, error) {
	chat, recipients, unread, err := d.recipients(ctx, ref, message.SenderID)
	if err != nil {
		return Report{}, err
	}
	report := Report{Skipped: make(map[string]domain.SkipReason)}
	now := d.now()
	for _, recipientID := range recipients {
		user, found, err := d.users.Get(ctx, recipientID)
		if err != nil {
			return report, err
		}
		if !found {
			continue
		}
		if reason := domain.ShouldNotify(user, string(ref.ID), now); reason != domain.Deliver {
			report.Skipped[recipientID] = reason
			continue
		}
		var invalid []string
		for token := range user.DeviceTokens {
			push := BuildPush(chat, message.ID, message, recipientID, token, unread.Get(recipientID), d.baseURL)
			err = d.sender.Send(ctx, push)
			switch {
			case err == nil:
				report.Sent++
			case stderrors.Is(err, errors.ErrInvalidDeviceToken):
				report.Failed++
				invalid = append(invalid, token)
			default:
				report.Failed++
				d.log.Warn("Push delivery failed", "user", recipientID, "conversation", ref.String(), "error", err)
			}
		}
		if len(invalid) == 0 {
			continue
		}
		slices.Sort(invalid)
		if err = d.users.UpdateFields(ctx, recipientID, repositories.RemoveDeviceTokensFields(invalid...)); err != nil {
			d.log.Warn("Removing invalid device tokens failed", "user", recipientID, "error", err)
			continue
		}
		report.Removed = append(report.Removed, invalid...)
	}
	d.log.Debug("Message notified",
		"conversation", ref.String(),
		"message", message.ID,
		"sent", report.Sent,
		"failed", report.Failed,
		"skipped", len(report.Skipped))
	return report, nil
}

// recipients resolves the conversation, the users to notify and their counters.
func (d *Dispatcher) recipients(ctx context.Context, ref domain.ConversationRef, senderID string) (Chat, []string, domain.UnreadCounts, error) {
	chat := Chat{Ref: ref}
	if ref.Kind == domain.GroupKind {
		group, err := d.groups.Get(ctx, string(ref.ID))
		if err != nil {
			return chat, nil, nil, err
		}
		chat.Name = group.Name
		recipients := slices.DeleteFunc(slices.Clone(group.Members), func(m string) bool { return m == senderID })
		return chat, recipients, group.Unread, nil
	}
	peer, ok := domain.PeerOf(ref.ID, senderID)
	if !ok {
		return chat, nil, nil, fmt.Errorf("%w: %s in %s", errors.ErrNotParticipant, senderID, ref)
	}
	conversation, found, err := d.conversations.Get(ctx, ref)
	if err != nil {
		return chat, nil, nil, err
	}
	if !found {
		return chat, []string{peer}, domain.UnreadCounts{}, nil
	}
	return chat, []string{peer}, conversation.Unread, nil
}
