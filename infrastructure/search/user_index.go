// Package search keeps a full text index of user profiles.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"messenger/domain"
	"strings"

	"github.com/blugelabs/bluge"
)

const (
	fieldID       = "_id"
	fieldUsername = "username"
	fieldEmail    = "email"
	defaultLimit  = 20
)

// Hit is one matching profile.
type Hit struct {
	UserID   string
	Username string
	Email    string
}

type UserIndex struct {
	writer *bluge.Writer
	log    *slog.Logger
}

func NewUserIndex(writer *bluge.Writer, log *slog.Logger) *UserIndex {
	return &UserIndex{writer: writer, log: log}
}

// NewInMemoryUserIndex opens an index that is rebuilt at every start.
func NewInMemoryUserIndex(log *slog.Logger) (*UserIndex, error) {
	writer, err := bluge.OpenWriter(bluge.InMemoryOnlyConfig())
	if err != nil {
		return nil, fmt.Errorf("opening user index: %w", err)
	}
	return NewUserIndex(writer, log), nil
}

// Index adds or replaces the profile of a user.
func (u *UserIndex) Index(user domain.User) error {
	doc := bluge.NewDocument(user.ID).
		AddField(bluge.NewKeywordField(fieldUsername, strings.ToLower(user.Username)).StoreValue().Sortable()).
		AddField(bluge.NewKeywordField(fieldEmail, strings.ToLower(user.Email)).StoreValue())
	if err := u.writer.Update(doc.ID(), doc); err != nil {
		return fmt.Errorf("indexing user %s: %w", user.ID, err)
	}
	return nil
}

func (u *UserIndex) Remove(userID string) error {
	return u.writer.Delete(bluge.NewDocument(userID).ID())
}

// Search returns the users whose username or e-mail contains term,
// ordered by username. An empty term matches everybody.
func (u *UserIndex) Search(ctx context.Context, term string, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	reader, err := u.writer.Reader()
	if err != nil {
		return nil, fmt.Errorf("opening user index reader: %w", err)
	}
	defer func() {
		if err := reader.Close(); err != nil {
			u.log.Warn("Closing user index reader failed", "error", err)
		}
	}()

	var query bluge.Query = bluge.NewMatchAllQuery()
	if term = strings.ToLower(strings.TrimSpace(term)); term != "" {
		pattern := "*" + stripWildcards(term) + "*"
		query = bluge.NewBooleanQuery().
			AddShould(bluge.NewWildcardQuery(pattern).SetField(fieldUsername)).
			AddShould(bluge.NewWildcardQuery(pattern).SetField(fieldEmail)).
			SetMinShould(1)
	}
	request := bluge.NewTopNSearch(limit, query).SortBy([]string{fieldUsername})

	matches, err := reader.Search(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("searching users: %w", err)
	}
	var hits []Hit
	match, err := matches.Next()
	for err == nil && match != nil {
		var hit Hit
		visitErr := match.VisitStoredFields(func(field string, value []byte) bool {
			switch field {
			case fieldID:
				hit.UserID = string(value)
			case fieldUsername:
				hit.Username = string(value)
			case fieldEmail:
				hit.Email = string(value)
			}
			return true
		})
		if visitErr != nil {
			return nil, visitErr
		}
		hits = append(hits, hit)
		match, err = matches.Next()
	}
	if err != nil {
		return nil, fmt.Errorf("reading user matches: %w", err)
	}
	return hits, nil
}

func (u *UserIndex) Close() error {
	return u.writer.Close()
}

// stripWildcards keeps user input literal.
func stripWildcards(s string) string {
	return strings.NewReplacer("*", "", "?", "").Replace(s)
}
