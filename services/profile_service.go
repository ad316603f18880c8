package services

import (
	"context"
	"fmt"
	"log/slog"
	"messenger/domain"
	"messenger/errors"
	"messenger/infrastructure/search"
	"messenger/repositories"
	"sort"
	"time"

	"github.com/samber/lo"
)

type IUserIndex interface {
	Index(user domain.User) error
	Search(ctx context.Context, term string, limit int) ([]search.Hit, error)
}

// ChatListEntry is one row of a conversation list, seen by one viewer.
type ChatListEntry struct {
	Ref             domain.ConversationRef
	Title           string
	LastMessage     string
	LastMessageTime *time.Time
	Unread          int
}

type ProfileService struct {
	users         repositories.IUserRepository
	conversations repositories.IConversationRepository
	groups        repositories.IGroupRepository
	index         IUserIndex
	log           *slog.Logger
}

func NewProfileService(users repositories.IUserRepository, conversations repositories.IConversationRepository,
	groups repositories.IGroupRepository, index IUserIndex, log *slog.Logger) *ProfileService {
	return &ProfileService{users: users, conversations: conversations, groups: groups, index: index, log: log}
}

// ClaimUsername normalizes and reserves a username for userID.
func (s *ProfileService) ClaimUsername(ctx context.Context, userID, email, username string) (domain.User, error) {
	if err := domain.ValidUserID(userID); err != nil {
		return domain.User{}, err
	}
	username, err := domain.NormalizeUsername(username)
	if err != nil {
		return domain.User{}, err
	}
	if err = s.users.ClaimUsername(ctx, userID, email, username); err != nil {
		return domain.User{}, err
	}
	user, found, err := s.users.Get(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}
	if !found {
		return domain.User{}, fmt.Errorf("%w: %s", errors.ErrNoProfile, userID)
	}
	if err = s.index.Index(user); err != nil {
		s.log.Warn("Indexing profile failed", "user", userID, "error", err)
	}
	return user, nil
}

func (s *ProfileService) Profile(ctx context.Context, userID string) (domain.User, bool, error) {
	return s.users.Get(ctx, userID)
}

// ListUsers returns every profile but exclude, ordered by username.
func (s *ProfileService) ListUsers(ctx context.Context, exclude string) ([]domain.User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, err
	}
	return lo.Filter(users, func(u domain.User, _ int) bool { return u.ID != exclude }), nil
}

// Search matches term against usernames and e-mails.
func (s *ProfileService) Search(ctx context.Context, term, exclude string, limit int) ([]domain.User, error) {
	hits, err := s.index.Search(ctx, term, limit)
	if err != nil {
		return nil, err
	}
	users := make([]domain.User, 0, len(hits))
	for _, h := range hits {
		if h.UserID == exclude {
			continue
		}
		users = append(users, domain.User{ID: h.UserID, Username: h.Username, Email: h.Email})
	}
	return users, nil
}

// Reindex rebuilds the search index from the stored profiles.
func (s *ProfileService) Reindex(ctx context.Context) error {
	users, err := s.users.List(ctx)
	if err != nil {
		return err
	}
	for _, u := range users {
		if err = s.index.Index(u); err != nil {
			return err
		}
	}
	s.log.Info("User index rebuilt", "users", len(users))
	return nil
}

// ListConversations returns the direct chats of userID with the peer username as title.
func (s *ProfileService) ListConversations(ctx context.Context, userID string, profiles *ProfileCache) ([]ChatListEntry, error) {
	conversations, err := s.conversations.ListDirect(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.DirectEntries(ctx, userID, conversations, profiles), nil
}

// DirectEntries turns direct chats into list rows for userID.
func (s *ProfileService) DirectEntries(ctx context.Context, userID string, conversations []domain.Conversation, profiles *ProfileCache) []ChatListEntry {
	entries := make([]ChatListEntry, 0, len(conversations))
	for _, c := range conversations {
		title := string(c.Ref.ID)
		if peer, ok := domain.PeerOf(c.Ref.ID, userID); ok {
			title = "@" + profiles.Username(ctx, peer)
		}
		entries = append(entries, ChatListEntry{
			Ref:             c.Ref,
			Title:           title,
			LastMessage:     c.LastMessage,
			LastMessageTime: c.LastMessageTime,
			Unread:          c.Unread.Get(userID),
		})
	}
	return entries
}

func (s *ProfileService) ListGroups(ctx context.Context, userID string) ([]ChatListEntry, error) {
	groups, err := s.groups.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return GroupEntries(userID, groups), nil
}

func GroupEntries(userID string, groups []domain.Group) []ChatListEntry {
	entries := make([]ChatListEntry, 0, len(groups))
	for _, g := range groups {
		entries = append(entries, ChatListEntry{
			Ref:             g.Ref(),
			Title:           g.Name,
			LastMessage:     g.LastMessage,
			LastMessageTime: g.LastMessageTime,
			Unread:          g.Unread.Get(userID),
		})
	}
	return entries
}

// MergeEntries orders direct and group rows together, most recent first.
func MergeEntries(lists ...[]ChatListEntry) []ChatListEntry {
	all := lo.Flatten(lists)
	sort.SliceStable(all, func(i, j int) bool {
		a, b := all[i].LastMessageTime, all[j].LastMessageTime
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})
	return all
}
