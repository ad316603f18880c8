package runtime

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"messenger/contract"
	"messenger/domain"
	"messenger/domain/event"
	"messenger/errors"
	"messenger/projection"
	"messenger/repositories"
	"messenger/services"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	subMessages = "messages"
	subChats    = "chats"
	subGroups   = "groups"
)

type EventPublisher interface {
	Publish(e event.DomainEvent) bool
}

// SessionDeps are the collaborators shared by every session of the process.
type SessionDeps struct {
	Chat          services.IChatService
	Profiles      *services.ProfileService
	Messages      repositories.IMessageRepository
	Conversations repositories.IConversationRepository
	Groups        repositories.IGroupRepository
	Users         repositories.IUserRepository
	Events        EventPublisher
	Log           *slog.Logger
}

type openConversation struct {
	ref        domain.ConversationRef
	timeline   *projection.Timeline
	generation uint64
}

// Session is everything tied to a signed in user, from login to logout.
// At most one conversation is open at a time. Live callbacks carry the
// generation of the conversation they were registered for and are dropped
// once that conversation is no longer the open one.
type Session struct {
	deps     SessionDeps
	log      *slog.Logger
	userID   string
	email    string
	profiles *services.ProfileCache
	registry *Registry

	mu         sync.Mutex
	generation uint64
	open       *openConversation
	resetDone  bool
	ended      bool
}

func NewSession(deps SessionDeps, userID, email string) *Session {
	return &Session{
		deps:     deps,
		log:      deps.Log.With("user", userID),
		userID:   userID,
		email:    email,
		profiles: services.NewProfileCache(deps.Users),
		registry: NewRegistry(),
	}
}

func (s *Session) UserID() string { return s.userID }

func (s *Session) Profiles() *services.ProfileCache { return s.profiles }

// Profile returns the signed in user's profile, errors.ErrNoProfile until a username is claimed.
func (s *Session) Profile(ctx context.Context) (domain.User, error) {
	user, found, err := s.profiles.Get(ctx, s.userID)
	if err != nil {
		return domain.User{}, err
	}
	if !found {
		return domain.User{}, errors.ErrNoProfile
	}
	return user, nil
}

func (s *Session) ClaimUsername(ctx context.Context, username string) (domain.User, error) {
	user, err := s.deps.Profiles.ClaimUsername(ctx, s.userID, s.email, username)
	if err != nil {
		return domain.User{}, err
	}
	s.profiles.Put(user)
	return user, nil
}

// Active returns the open conversation.
func (s *Session) Active() (domain.ConversationRef, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.open == nil {
		return domain.ConversationRef{}, false
	}
	return s.open.ref, true
}

// Timeline returns the rendered messages of the open conversation.
func (s *Session) Timeline() (*projection.Timeline, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.open == nil {
		return nil, false
	}
	return s.open.timeline, true
}

func (s *Session) OpenDirect(ctx context.Context, peerID string) error {
	if err := domain.ValidUserID(peerID); err != nil {
		return err
	}
	if peerID == s.userID {
		return fmt.Errorf("%w: cannot chat with yourself", errors.ErrInvalidUserID)
	}
	return s.openConversation(ctx, domain.DirectRef(s.userID, peerID))
}

func (s *Session) OpenGroup(ctx context.Context, groupID string) error {
	return s.openConversation(ctx, domain.GroupRef(groupID))
}

// openConversation makes ref the active conversation, then creates it when needed,
// clears the viewer counter and follows its message window.
func (s *Session) openConversation(ctx context.Context, ref domain.ConversationRef) error {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return errors.ErrNotAuthenticated
	}
	previous := s.open
	s.generation++
	gen := s.generation
	s.open = &openConversation{ref: ref, timeline: projection.NewTimeline(ref), generation: gen}
	s.resetDone = false
	s.mu.Unlock()

	s.registry.Cancel(subMessages)
	if previous != nil {
		s.publish(event.ConversationClosed{Ref: previous.ref})
	}

	change, err := s.deps.Chat.Open(ctx, ref, s.userID)
	switch {
	case stderrors.Is(err, errors.ErrNotParticipant), stderrors.Is(err, errors.ErrNotFound):
		s.abandon(gen)
		return err
	case err != nil:
		s.alert(ref, "reset unread count", err)
	default:
		s.mu.Lock()
		if s.isCurrent(gen) {
			s.resetDone = true
		}
		s.mu.Unlock()
		if change.Written {
			s.publish(event.UnreadReset{Ref: ref, UserID: s.userID, Change: change})
		}
	}

	sub, err := s.deps.Messages.Listen(ref,
		func(batch repositories.MessageBatch) { s.onBatch(gen, batch) },
		func(err error) { s.onListenError(gen, err) })
	if err != nil {
		s.abandon(gen)
		return fmt.Errorf("following %s: %w", ref, err)
	}

	s.mu.Lock()
	if !s.isCurrent(gen) {
		s.mu.Unlock()
		sub.Stop()
		return nil
	}
	replaced := s.registry.Swap(subMessages, sub)
	s.mu.Unlock()
	if replaced != nil {
		replaced.Stop()
	}
	s.log.Debug("Conversation opened", "conversation", ref.String(), "generation", gen)
	return nil
}

// isCurrent must be called with mu held.
func (s *Session) isCurrent(gen uint64) bool {
	return s.open != nil && s.open.generation == gen
}

func (s *Session) abandon(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isCurrent(gen) {
		s.open = nil
		s.resetDone = false
	}
}

func (s *Session) onBatch(gen uint64, batch repositories.MessageBatch) {
	s.mu.Lock()
	if !s.isCurrent(gen) {
		s.mu.Unlock()
		s.log.Debug("Dropping batch of a closed conversation", "generation", gen)
		return
	}
	open := s.open
	s.mu.Unlock()

	ops := open.timeline.Apply(batch)
	if batch.Initial {
		s.publish(event.ConversationOpened{Ref: open.ref, ViewerID: s.userID, Messages: open.timeline.Messages()})
		// Entries sent before the snapshot arrived may be resolved by it.
		for _, op := range ops {
			if op.Kind == projection.TimestampPatched {
				s.publish(event.TimestampResolved{Ref: open.ref, MessageID: op.Message.ID, At: *op.Message.CreatedAt})
			}
		}
		return
	}
	arrived := false
	for _, op := range ops {
		switch op.Kind {
		case projection.Appended:
			s.publish(event.MessageAppended{Ref: open.ref, Message: op.Message})
			arrived = arrived || op.Message.SenderID != s.userID
		case projection.TimestampPatched:
			s.publish(event.TimestampResolved{Ref: open.ref, MessageID: op.Message.ID, At: *op.Message.CreatedAt})
		}
	}
	if arrived {
		s.resetOnArrival(gen, open.ref)
	}
}

// resetOnArrival clears the counter at most once per viewing session.
func (s *Session) resetOnArrival(gen uint64, ref domain.ConversationRef) {
	s.mu.Lock()
	if !s.isCurrent(gen) || s.resetDone {
		s.mu.Unlock()
		return
	}
	s.resetDone = true
	s.mu.Unlock()

	change, err := s.deps.Chat.MarkSeen(context.Background(), ref, s.userID)
	if err != nil {
		s.alert(ref, "reset unread count", err)
		return
	}
	if change.Written {
		s.publish(event.UnreadReset{Ref: ref, UserID: s.userID, Change: change, Live: true})
	}
}

func (s *Session) onListenError(gen uint64, err error) {
	s.mu.Lock()
	current := s.isCurrent(gen)
	var ref domain.ConversationRef
	if current {
		ref = s.open.ref
	}
	s.mu.Unlock()
	if current {
		s.alert(ref, "follow messages", err)
	}
}

// Send writes text in the open conversation and renders it right away as pending.
func (s *Session) Send(ctx context.Context, text string) (services.SendResult, error) {
	text, err := domain.NormalizeText(text)
	if err != nil {
		return services.SendResult{}, err
	}
	s.mu.Lock()
	open := s.open
	s.mu.Unlock()
	if open == nil {
		return services.SendResult{}, errors.ErrNoOpenConversation
	}
	sender, err := s.Profile(ctx)
	if err != nil {
		return services.SendResult{}, err
	}

	message := domain.Message{ID: uuid.NewString(), Text: text, SenderID: sender.ID, SenderName: sender.Username}
	if op, ok := open.timeline.AddPending(message); ok {
		s.publish(event.MessageAppended{Ref: open.ref, Message: op.Message})
	}
	result, err := s.deps.Chat.Send(ctx, open.ref, sender, message)
	if err != nil {
		s.alert(open.ref, "send message", err)
		return result, err
	}
	if result.MetadataErr != nil {
		s.alert(open.ref, "update conversation", result.MetadataErr)
	}
	return result, nil
}

// Close stops following the open conversation.
func (s *Session) Close() {
	s.mu.Lock()
	open := s.open
	s.open = nil
	s.resetDone = false
	s.generation++
	s.mu.Unlock()

	s.registry.Cancel(subMessages)
	if open != nil {
		s.publish(event.ConversationClosed{Ref: open.ref})
	}
}

// WatchChatList follows the direct chats and groups of the user.
// onChange receives the merged list, most recent first.
func (s *Session) WatchChatList(onChange func([]services.ChatListEntry)) error {
	s.mu.Lock()
	ended := s.ended
	s.mu.Unlock()
	if ended {
		return errors.ErrNotAuthenticated
	}
	var (
		mu      sync.Mutex
		directs []services.ChatListEntry
		groups  []services.ChatListEntry
	)
	emit := func() {
		onChange(services.MergeEntries(directs, groups))
	}
	dmSub, err := s.deps.Conversations.ListenDirect(s.userID, func(conversations []domain.Conversation) {
		entries := s.deps.Profiles.DirectEntries(context.Background(), s.userID, conversations, s.profiles)
		mu.Lock()
		defer mu.Unlock()
		directs = entries
		emit()
	}, func(err error) { s.alert(domain.ConversationRef{}, "follow conversations", err) })
	if err != nil {
		return err
	}
	if err := s.track(subChats, dmSub); err != nil {
		return err
	}

	groupSub, err := s.deps.Groups.ListenForUser(s.userID, func(list []domain.Group) {
		entries := services.GroupEntries(s.userID, list)
		mu.Lock()
		defer mu.Unlock()
		groups = entries
		emit()
	}, func(err error) { s.alert(domain.ConversationRef{}, "follow groups", err) })
	if err != nil {
		return err
	}
	return s.track(subGroups, groupSub)
}

// track keeps sub in the registry unless the session ended meanwhile.
// Logout flags the session before cancelling, so a tracked sub is always cancelled.
func (s *Session) track(key string, sub contract.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		sub.Stop()
		return errors.ErrNotAuthenticated
	}
	s.registry.Track(key, sub)
	return nil
}

// Logout stops every live subscription. The session cannot be used afterwards.
func (s *Session) Logout() {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	s.mu.Unlock()

	s.Close()
	s.registry.CancelAll()
	s.publish(event.SessionEnded{UserID: s.userID, At: time.Now()})
	s.log.Info("Session ended", "cached_profiles", s.profiles.Len())
}

func (s *Session) alert(ref domain.ConversationRef, operation string, err error) {
	s.log.Warn("Backend call failed", "operation", operation, "conversation", ref.String(), "error", err)
	s.publish(event.Alert{Ref: ref, Operation: operation, Err: err})
}

func (s *Session) publish(e event.DomainEvent) {
	if s.deps.Events != nil {
		s.deps.Events.Publish(e)
	}
}
