package services

import (
	"context"
	"fmt"
	"log/slog"
	"messenger/contract"
	"messenger/domain"
	"messenger/domain/document"
	"messenger/errors"
	"messenger/repositories"
)

// CounterMode selects how counter writes are made.
type CounterMode string

const (
	// ModeTransactional reads and writes counters in one store transaction.
	ModeTransactional CounterMode = "transactional"
	// ModeReadModifyWrite reads then writes with no isolation:
	// concurrent senders may lose increments.
	ModeReadModifyWrite CounterMode = "read-modify-write"
)

func ParseCounterMode(s string) (CounterMode, error) {
	switch m := CounterMode(s); m {
	case ModeTransactional, ModeReadModifyWrite:
		return m, nil
	case "":
		return ModeTransactional, nil
	default:
		return "", fmt.Errorf("unknown counter mode %q", s)
	}
}

type IUnreadTracker interface {
	MessageSent(ctx context.Context, ref domain.ConversationRef, senderID string, participants []string, text string) (domain.CounterChange, error)
	ConversationOpened(ctx context.Context, ref domain.ConversationRef, viewerID string) (domain.CounterChange, error)
	ConversationInitialized(ctx context.Context, ref domain.ConversationRef, participants []string) (domain.CounterChange, error)
}

// UnreadTracker keeps the per participant unread counters of conversations.
type UnreadTracker struct {
	store contract.IDocumentStore
	log   *slog.Logger
	mode  CounterMode
}

func NewUnreadTracker(store contract.IDocumentStore, log *slog.Logger, mode CounterMode) *UnreadTracker {
	if mode == "" {
		mode = ModeTransactional
	}
	return &UnreadTracker{store: store, log: log, mode: mode}
}

// counterIO is the view an operation has on the store in either mode.
type counterIO interface {
	get(ref domain.ConversationRef) (document.Document, error)
	set(ref domain.ConversationRef, fields document.Fields) error
	update(ref domain.ConversationRef, fields document.Fields) error
}

type txIO struct {
	tx contract.ITransaction
}

func (t txIO) get(ref domain.ConversationRef) (document.Document, error) {
	return t.tx.Get(ref.Collection(), string(ref.ID))
}

func (t txIO) set(ref domain.ConversationRef, fields document.Fields) error {
	return t.tx.Set(ref.Collection(), string(ref.ID), fields, true)
}

func (t txIO) update(ref domain.ConversationRef, fields document.Fields) error {
	return t.tx.Update(ref.Collection(), string(ref.ID), fields)
}

type storeIO struct {
	ctx   context.Context
	store contract.IDocumentStore
}

func (s storeIO) get(ref domain.ConversationRef) (document.Document, error) {
	return s.store.Get(s.ctx, ref.Collection(), string(ref.ID))
}

func (s storeIO) set(ref domain.ConversationRef, fields document.Fields) error {
	return s.store.Set(s.ctx, ref.Collection(), string(ref.ID), fields, true)
}

func (s storeIO) update(ref domain.ConversationRef, fields document.Fields) error {
	return s.store.Update(s.ctx, ref.Collection(), string(ref.ID), fields)
}

func (u *UnreadTracker) run(ctx context.Context, fn func(io counterIO) error) error {
	if u.mode == ModeReadModifyWrite {
		return fn(storeIO{ctx: ctx, store: u.store})
	}
	return u.store.RunTransaction(ctx, func(tx contract.ITransaction) error {
		return fn(txIO{tx: tx})
	})
}

// MessageSent sets the sender counter to 0 and increments everybody else.
// Group participants are read from the group when none are given.
func (u *UnreadTracker) MessageSent(ctx context.Context, ref domain.ConversationRef, senderID string, participants []string, text string) (domain.CounterChange, error) {
	var change domain.CounterChange
	err := u.run(ctx, func(io counterIO) error {
		doc, err := io.get(ref)
		if err != nil {
			return err
		}
		if ref.Kind == domain.GroupKind && !doc.Exists {
			return fmt.Errorf("%w: group %s", errors.ErrNotFound, ref.ID)
		}
		current := repositories.ConversationFromDocument(doc)
		members := participants
		if len(members) == 0 {
			members = current.Participants
		}
		previous := current.Unread
		next := previous.AfterMessageSent(senderID, members)
		if err = io.set(ref, repositories.SentFields(ref, members, text, next)); err != nil {
			return err
		}
		change = domain.CounterChange{Previous: previous, Current: next, Written: true}
		return nil
	})
	if err != nil {
		return domain.CounterChange{}, fmt.Errorf("updating metadata of %s: %w", ref, err)
	}
	u.log.Debug("Unread counters updated after send", "conversation", ref.String(), "sender", senderID)
	return change, nil
}

// ConversationOpened clears the viewer counter. Nothing is written when it is already 0.
func (u *UnreadTracker) ConversationOpened(ctx context.Context, ref domain.ConversationRef, viewerID string) (domain.CounterChange, error) {
	var change domain.CounterChange
	err := u.run(ctx, func(io counterIO) error {
		doc, err := io.get(ref)
		if err != nil {
			return err
		}
		previous := repositories.ConversationFromDocument(doc).Unread
		next, changed := previous.AfterReset(viewerID)
		change = domain.CounterChange{Previous: previous, Current: next}
		if !doc.Exists || !changed {
			return nil
		}
		if err = io.update(ref, repositories.ResetFields(viewerID)); err != nil {
			return err
		}
		change.Written = true
		return nil
	})
	if err != nil {
		return domain.CounterChange{}, fmt.Errorf("resetting unread count of %s in %s: %w", viewerID, ref, err)
	}
	return change, nil
}

// ConversationInitialized creates the metadata when absent and seeds missing counters at 0.
// Existing counters are never overwritten.
func (u *UnreadTracker) ConversationInitialized(ctx context.Context, ref domain.ConversationRef, participants []string) (domain.CounterChange, error) {
	var change domain.CounterChange
	err := u.run(ctx, func(io counterIO) error {
		doc, err := io.get(ref)
		if err != nil {
			return err
		}
		current := repositories.ConversationFromDocument(doc)
		members := participants
		if len(members) == 0 {
			members = current.Participants
		}
		previous := current.Unread
		next := previous.Seeded(members)
		change = domain.CounterChange{Previous: previous, Current: next}

		if !doc.Exists {
			if err = io.set(ref, repositories.NewConversationFields(ref, members, next)); err != nil {
				return err
			}
			change.Written = true
			return nil
		}
		var missing []string
		for _, p := range members {
			if _, ok := previous[p]; !ok {
				missing = append(missing, p)
			}
		}
		if len(missing) == 0 {
			return nil
		}
		if err = io.update(ref, repositories.SeedFields(missing)); err != nil {
			return err
		}
		change.Written = true
		return nil
	})
	if err != nil {
		return domain.CounterChange{}, fmt.Errorf("initializing %s: %w", ref, err)
	}
	return change, nil
}
