package services

import (
	"context"
	"messenger/domain"
	"messenger/errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func newGroupService(f fixture) *GroupService {
	return NewGroupService(f.groups, f.users, f.messages, f.log)
}

func TestGroupService_Create(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	svc := newGroupService(f)

	group, err := svc.CreateGroup(ctx, "c", "  Hiking club ", "weekends")

	req.NoError(err)
	req.NotEmpty(group.ID)
	req.Equal("Hiking club", group.Name)
	req.Equal([]string{"c"}, group.Members)
	req.Empty(group.Admins)
	req.Equal(domain.RoleCreator, group.RoleOf("c"))

	_, err = svc.CreateGroup(ctx, "c", "ab", "")
	req.ErrorIs(err, errors.ErrInvalidGroupName)
}

func TestGroupService_Creator_Admin_Member(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	f.withProfiles(t, "c", "x", "m")
	svc := newGroupService(f)

	// Given creator c, admin x and member m
	group, err := svc.CreateGroup(ctx, "c", "crew", "")
	req.NoError(err)
	req.NoError(svc.AddMember(ctx, "c", group.ID, "x"))
	req.NoError(svc.AddMember(ctx, "c", group.ID, "m"))
	req.NoError(svc.PromoteAdmin(ctx, "c", group.ID, "x"))

	// Then m cannot manage anybody
	req.ErrorIs(svc.RemoveMember(ctx, "m", group.ID, "x"), errors.ErrPermissionDenied)
	req.ErrorIs(svc.PromoteAdmin(ctx, "m", group.ID, "m"), errors.ErrPermissionDenied)

	// And nobody can remove nor demote the creator
	req.ErrorIs(svc.RemoveMember(ctx, "x", group.ID, "c"), errors.ErrCreatorImmune)
	req.ErrorIs(svc.DemoteAdmin(ctx, "x", group.ID, "c"), errors.ErrCreatorImmune)

	// When x removes m
	req.NoError(svc.RemoveMember(ctx, "x", group.ID, "m"))

	// Then m is gone with its counter
	stored, err := f.groups.Get(ctx, group.ID)
	req.NoError(err)
	req.Equal([]string{"c", "x"}, stored.Members)
	req.Equal([]string{"x"}, stored.Admins)
	_, hasCounter := stored.Unread["m"]
	req.False(hasCounter)
}

func TestGroupService_Add_Member(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	f.withProfiles(t, "c", "m")
	svc := newGroupService(f)
	group, err := svc.CreateGroup(ctx, "c", "crew", "")
	req.NoError(err)

	req.ErrorIs(svc.AddMember(ctx, "c", group.ID, "ghost"), errors.ErrNotFound)
	req.NoError(svc.AddMember(ctx, "c", group.ID, "m"))
	req.ErrorIs(svc.AddMember(ctx, "c", group.ID, "m"), errors.ErrAlreadyMember)

	stored, err := f.groups.Get(ctx, group.ID)
	req.NoError(err)
	count, ok := stored.Unread["m"]
	req.True(ok)
	req.Equal(0, count)
}

func TestGroupService_Leave_And_Demote_Self(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	f.withProfiles(t, "c", "x")
	svc := newGroupService(f)
	group, err := svc.CreateGroup(ctx, "c", "crew", "")
	req.NoError(err)
	req.NoError(svc.AddMember(ctx, "c", group.ID, "x"))
	req.NoError(svc.PromoteAdmin(ctx, "c", group.ID, "x"))

	// An admin may step down on their own
	req.NoError(svc.DemoteAdmin(ctx, "x", group.ID, "x"))
	req.ErrorIs(svc.DemoteAdmin(ctx, "c", group.ID, "x"), errors.ErrNotAdmin)

	// The creator cannot leave, a member can
	req.ErrorIs(svc.Leave(ctx, "c", group.ID), errors.ErrCreatorCannotLeave)
	req.NoError(svc.Leave(ctx, "x", group.ID))
	req.ErrorIs(svc.Leave(ctx, "x", group.ID), errors.ErrNotMember)
}

func TestGroupService_Settings_And_Delete(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	f.withProfiles(t, "c", "x", "m")
	svc := newGroupService(f)
	group, err := svc.CreateGroup(ctx, "c", "crew", "")
	req.NoError(err)
	req.NoError(svc.AddMember(ctx, "c", group.ID, "x"))
	req.NoError(svc.AddMember(ctx, "c", group.ID, "m"))
	req.NoError(svc.PromoteAdmin(ctx, "c", group.ID, "x"))
	_, err = f.messages.Append(ctx, group.Ref(), domain.Message{Text: "hi", SenderID: "m"})
	req.NoError(err)

	// Admins edit, members do not
	req.NoError(svc.UpdateSettings(ctx, "x", group.ID, "new crew", "desc"))
	req.ErrorIs(svc.UpdateSettings(ctx, "m", group.ID, "mine", ""), errors.ErrPermissionDenied)
	stored, err := f.groups.Get(ctx, group.ID)
	req.NoError(err)
	req.Equal("new crew", stored.Name)
	req.Equal("desc", stored.Description)

	// Only the creator deletes
	req.ErrorIs(svc.DeleteGroup(ctx, "x", group.ID), errors.ErrPermissionDenied)
	req.NoError(svc.DeleteGroup(ctx, "c", group.ID))
	_, err = f.groups.Get(ctx, group.ID)
	req.ErrorIs(err, errors.ErrNotFound)
	messages, err := f.messages.Recent(ctx, group.Ref(), 10)
	req.NoError(err)
	req.Empty(messages)
}
