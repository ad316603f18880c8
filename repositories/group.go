package repositories

import (
	"context"
	"fmt"
	"log/slog"
	"messenger/contract"
	"messenger/domain"
	"messenger/domain/document"
	"messenger/errors"

	"github.com/google/uuid"
)

type IGroupRepository interface {
	Create(ctx context.Context, group domain.Group) (string, error)
	Get(ctx context.Context, groupID string) (domain.Group, error)
	ListForUser(ctx context.Context, userID string) ([]domain.Group, error)
	ListenForUser(userID string, onChange func([]domain.Group), onError func(error)) (contract.Subscription, error)
	Mutate(ctx context.Context, groupID string, fn func(group domain.Group) (document.Fields, error)) error
	Delete(ctx context.Context, groupID string) error
}

type GroupRepository struct {
	store contract.IDocumentStore
	log   *slog.Logger
}

func NewGroupRepository(store contract.IDocumentStore, log *slog.Logger) GroupRepository {
	return GroupRepository{store: store, log: log}
}

// Create writes a new group. Every member starts with a 0 counter.
func (r GroupRepository) Create(ctx context.Context, group domain.Group) (string, error) {
	id := group.ID
	if id == "" {
		id = uuid.NewString()
	}
	unread := map[string]any{}
	for _, m := range group.Members {
		unread[m] = 0
	}
	err := r.store.Set(ctx, domain.GroupsCollection, id, document.Fields{
		fieldName:            group.Name,
		fieldDescription:     group.Description,
		fieldCreatedBy:       group.CreatedBy,
		fieldMembers:         group.Members,
		fieldAdmins:          group.Admins,
		fieldCreatedAt:       document.ServerTimestamp(),
		fieldLastMessage:     "",
		fieldLastMessageTime: document.ServerTimestamp(),
		fieldUnreadCount:     unread,
	}, false)
	if err != nil {
		return "", fmt.Errorf("creating group %s: %w", id, err)
	}
	return id, nil
}

func (r GroupRepository) Get(ctx context.Context, groupID string) (domain.Group, error) {
	doc, err := r.store.Get(ctx, domain.GroupsCollection, groupID)
	if err != nil {
		return domain.Group{}, fmt.Errorf("reading group %s: %w", groupID, err)
	}
	if !doc.Exists {
		return domain.Group{}, fmt.Errorf("%w: group %s", errors.ErrNotFound, groupID)
	}
	return toGroup(doc), nil
}

func groupListQuery(userID string) document.Query {
	return document.NewQuery(domain.GroupsCollection).
		Where(fieldMembers, document.OpArrayContains, userID).
		Order(fieldLastMessageTime, document.Descending)
}

func (r GroupRepository) ListForUser(ctx context.Context, userID string) ([]domain.Group, error) {
	docs, err := r.store.Query(ctx, groupListQuery(userID))
	if err != nil {
		return nil, fmt.Errorf("listing groups of %s: %w", userID, err)
	}
	return toGroups(docs), nil
}

func (r GroupRepository) ListenForUser(userID string, onChange func([]domain.Group), onError func(error)) (contract.Subscription, error) {
	return r.store.Listen(groupListQuery(userID), func(s document.Snapshot) {
		onChange(toGroups(s.Docs))
	}, onError)
}

// Mutate reads the group and applies the update computed by fn in one transaction,
// so permission checks in fn see the group as it is when the write happens.
func (r GroupRepository) Mutate(ctx context.Context, groupID string, fn func(group domain.Group) (document.Fields, error)) error {
	return r.store.RunTransaction(ctx, func(tx contract.ITransaction) error {
		doc, err := tx.Get(domain.GroupsCollection, groupID)
		if err != nil {
			return err
		}
		if !doc.Exists {
			return fmt.Errorf("%w: group %s", errors.ErrNotFound, groupID)
		}
		update, err := fn(toGroup(doc))
		if err != nil {
			return err
		}
		if len(update) == 0 {
			return nil
		}
		return tx.Update(domain.GroupsCollection, groupID, update)
	})
}

func (r GroupRepository) Delete(ctx context.Context, groupID string) error {
	if err := r.store.Delete(ctx, domain.GroupsCollection, groupID); err != nil {
		return fmt.Errorf("deleting group %s: %w", groupID, err)
	}
	return nil
}

func toGroups(docs []document.Document) []domain.Group {
	out := make([]domain.Group, 0, len(docs))
	for _, d := range docs {
		out = append(out, toGroup(d))
	}
	return out
}

func AddMemberFields(userID string) document.Fields {
	return document.Fields{
		fieldMembers:        document.ArrayUnion(userID),
		UnreadField(userID): 0,
	}
}

// RemoveMemberFields drops the user from members, admins and counters.
func RemoveMemberFields(userID string) document.Fields {
	return document.Fields{
		fieldMembers:        document.ArrayRemove(userID),
		fieldAdmins:         document.ArrayRemove(userID),
		UnreadField(userID): document.DeleteField(),
	}
}

func PromoteAdminFields(userID string) document.Fields {
	return document.Fields{fieldAdmins: document.ArrayUnion(userID)}
}

func DemoteAdminFields(userID string) document.Fields {
	return document.Fields{fieldAdmins: document.ArrayRemove(userID)}
}

func SettingsFields(name, description string) document.Fields {
	return document.Fields{fieldName: name, fieldDescription: description}
}
