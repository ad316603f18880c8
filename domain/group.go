// Package domain contains core concepts of the messenger.
// This file defines groups, their role lattice and the permission rules
// every group mutation is checked against.
package domain

import (
	"fmt"
	"messenger/errors"
	"slices"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MinGroupNameLength = 3
	MaxGroupNameLength = 50
)

type Role int

const (
	RoleNone Role = iota
	RoleMember
	RoleAdmin
	RoleCreator
)

func (r Role) String() string {
	switch r {
	case RoleCreator:
		return "creator"
	case RoleAdmin:
		return "admin"
	case RoleMember:
		return "member"
	default:
		return "none"
	}
}

type Group struct {
	ID              string
	Name            string
	Description     string
	CreatedBy       string
	Members         []string
	Admins          []string
	CreatedAt       *time.Time
	LastMessage     string
	LastMessageTime *time.Time
	Unread          UnreadCounts
}

func (g Group) Ref() ConversationRef {
	return GroupRef(g.ID)
}

func (g Group) IsMember(userID string) bool {
	return slices.Contains(g.Members, userID)
}

func (g Group) IsCreator(userID string) bool {
	return g.CreatedBy == userID
}

func (g Group) IsAdmin(userID string) bool {
	return slices.Contains(g.Admins, userID)
}

func (g Group) CanManageMembers(userID string) bool {
	return g.IsCreator(userID) || g.IsAdmin(userID)
}

func (g Group) CanManageAdmins(userID string) bool {
	return g.IsCreator(userID) || g.IsAdmin(userID)
}

func (g Group) CanEditGroup(userID string) bool {
	return g.IsCreator(userID) || g.IsAdmin(userID)
}

func (g Group) CanDeleteGroup(userID string) bool {
	return g.IsCreator(userID)
}

// RoleOf returns the highest role held by userID.
func (g Group) RoleOf(userID string) Role {
	switch {
	case g.IsCreator(userID):
		return RoleCreator
	case g.IsAdmin(userID):
		return RoleAdmin
	case g.IsMember(userID):
		return RoleMember
	default:
		return RoleNone
	}
}

func (g Group) CheckAddMember(actorID, targetID string) error {
	if !g.CanManageMembers(actorID) {
		return errors.ErrPermissionDenied
	}
	if err := ValidUserID(targetID); err != nil {
		return err
	}
	if g.IsMember(targetID) {
		return errors.ErrAlreadyMember
	}
	return nil
}

func (g Group) CheckRemoveMember(actorID, targetID string) error {
	if !g.CanManageMembers(actorID) {
		return errors.ErrPermissionDenied
	}
	if g.IsCreator(targetID) {
		return errors.ErrCreatorImmune
	}
	if actorID == targetID {
		return errors.ErrSelfRemoval
	}
	if !g.IsMember(targetID) {
		return errors.ErrNotMember
	}
	return nil
}

func (g Group) CheckLeave(userID string) error {
	if !g.IsMember(userID) {
		return errors.ErrNotMember
	}
	if g.IsCreator(userID) {
		return errors.ErrCreatorCannotLeave
	}
	return nil
}

func (g Group) CheckPromote(actorID, targetID string) error {
	if !g.CanManageAdmins(actorID) {
		return errors.ErrPermissionDenied
	}
	if g.IsCreator(targetID) {
		return errors.ErrCreatorImmune
	}
	if !g.IsMember(targetID) {
		return errors.ErrNotMember
	}
	return nil
}

// CheckDemote lets an admin step down on their own.
func (g Group) CheckDemote(actorID, targetID string) error {
	if actorID != targetID && !g.CanManageAdmins(actorID) {
		return errors.ErrPermissionDenied
	}
	if g.IsCreator(targetID) {
		return errors.ErrCreatorImmune
	}
	if !g.IsAdmin(targetID) {
		return errors.ErrNotAdmin
	}
	return nil
}

func (g Group) CheckEdit(actorID string) error {
	if !g.CanEditGroup(actorID) {
		return errors.ErrPermissionDenied
	}
	return nil
}

func (g Group) CheckDelete(actorID string) error {
	if !g.CanDeleteGroup(actorID) {
		return errors.ErrPermissionDenied
	}
	return nil
}

// NormalizeGroupName trims the name and checks its length in characters.
func NormalizeGroupName(name string) (string, error) {
	name = strings.TrimSpace(name)
	n := utf8.RuneCountInString(name)
	if n < MinGroupNameLength || n > MaxGroupNameLength {
		return "", fmt.Errorf("%w: got %d characters", errors.ErrInvalidGroupName, n)
	}
	return name, nil
}
