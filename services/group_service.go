package services

import (
	"context"
	"fmt"
	"log/slog"
	"messenger/domain"
	"messenger/domain/document"
	"messenger/errors"
	"messenger/repositories"
	"strings"
)

type IGroupService interface {
	CreateGroup(ctx context.Context, creatorID, name, description string) (domain.Group, error)
	AddMember(ctx context.Context, actorID, groupID, userID string) error
	RemoveMember(ctx context.Context, actorID, groupID, userID string) error
	Leave(ctx context.Context, userID, groupID string) error
	PromoteAdmin(ctx context.Context, actorID, groupID, userID string) error
	DemoteAdmin(ctx context.Context, actorID, groupID, userID string) error
	UpdateSettings(ctx context.Context, actorID, groupID, name, description string) error
	DeleteGroup(ctx context.Context, actorID, groupID string) error
}

// GroupService applies membership and settings changes.
// Every check runs against the group as read inside the writing transaction.
type GroupService struct {
	groups   repositories.IGroupRepository
	users    repositories.IUserRepository
	messages repositories.IMessageRepository
	log      *slog.Logger
}

func NewGroupService(groups repositories.IGroupRepository, users repositories.IUserRepository, messages repositories.IMessageRepository, log *slog.Logger) *GroupService {
	return &GroupService{groups: groups, users: users, messages: messages, log: log}
}

func (s *GroupService) CreateGroup(ctx context.Context, creatorID, name, description string) (domain.Group, error) {
	if err := domain.ValidUserID(creatorID); err != nil {
		return domain.Group{}, err
	}
	name, err := domain.NormalizeGroupName(name)
	if err != nil {
		return domain.Group{}, err
	}
	group := domain.Group{
		Name:        name,
		Description: strings.TrimSpace(description),
		CreatedBy:   creatorID,
		Members:     []string{creatorID},
		Admins:      []string{},
	}
	id, err := s.groups.Create(ctx, group)
	if err != nil {
		return domain.Group{}, err
	}
	s.log.Info("Group created", "group", id, "creator", creatorID)
	return s.groups.Get(ctx, id)
}

// AddMember requires the new member to have a profile.
func (s *GroupService) AddMember(ctx context.Context, actorID, groupID, userID string) error {
	if _, found, err := s.users.Get(ctx, userID); err != nil {
		return err
	} else if !found {
		return fmt.Errorf("%w: user %s", errors.ErrNotFound, userID)
	}
	return s.mutate(ctx, "add member", groupID, func(g domain.Group) (document.Fields, error) {
		if err := g.CheckAddMember(actorID, userID); err != nil {
			return nil, err
		}
		return repositories.AddMemberFields(userID), nil
	})
}

func (s *GroupService) RemoveMember(ctx context.Context, actorID, groupID, userID string) error {
	return s.mutate(ctx, "remove member", groupID, func(g domain.Group) (document.Fields, error) {
		if err := g.CheckRemoveMember(actorID, userID); err != nil {
			return nil, err
		}
		return repositories.RemoveMemberFields(userID), nil
	})
}

func (s *GroupService) Leave(ctx context.Context, userID, groupID string) error {
	return s.mutate(ctx, "leave", groupID, func(g domain.Group) (document.Fields, error) {
		if err := g.CheckLeave(userID); err != nil {
			return nil, err
		}
		return repositories.RemoveMemberFields(userID), nil
	})
}

func (s *GroupService) PromoteAdmin(ctx context.Context, actorID, groupID, userID string) error {
	return s.mutate(ctx, "promote admin", groupID, func(g domain.Group) (document.Fields, error) {
		if err := g.CheckPromote(actorID, userID); err != nil {
			return nil, err
		}
		if g.IsAdmin(userID) {
			return nil, nil
		}
		return repositories.PromoteAdminFields(userID), nil
	})
}

func (s *GroupService) DemoteAdmin(ctx context.Context, actorID, groupID, userID string) error {
	return s.mutate(ctx, "demote admin", groupID, func(g domain.Group) (document.Fields, error) {
		if err := g.CheckDemote(actorID, userID); err != nil {
			return nil, err
		}
		return repositories.DemoteAdminFields(userID), nil
	})
}

func (s *GroupService) UpdateSettings(ctx context.Context, actorID, groupID, name, description string) error {
	name, err := domain.NormalizeGroupName(name)
	if err != nil {
		return err
	}
	return s.mutate(ctx, "update settings", groupID, func(g domain.Group) (document.Fields, error) {
		if err := g.CheckEdit(actorID); err != nil {
			return nil, err
		}
		return repositories.SettingsFields(name, strings.TrimSpace(description)), nil
	})
}

// DeleteGroup removes the group and then its messages.
func (s *GroupService) DeleteGroup(ctx context.Context, actorID, groupID string) error {
	group, err := s.groups.Get(ctx, groupID)
	if err != nil {
		return err
	}
	if err = group.CheckDelete(actorID); err != nil {
		return err
	}
	if err = s.groups.Delete(ctx, groupID); err != nil {
		return err
	}
	if err = s.messages.DeleteAll(ctx, group.Ref()); err != nil {
		s.log.Warn("Deleting messages of removed group failed", "group", groupID, "error", err)
	}
	s.log.Info("Group deleted", "group", groupID, "by", actorID)
	return nil
}

func (s *GroupService) mutate(ctx context.Context, operation, groupID string, fn func(domain.Group) (document.Fields, error)) error {
	err := s.groups.Mutate(ctx, groupID, fn)
	if err != nil {
		s.log.Debug("Group change rejected", "operation", operation, "group", groupID, "error", err)
		return err
	}
	s.log.Info("Group changed", "operation", operation, "group", groupID)
	return nil
}
