//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"messenger/domain/document"
	"messenger/domain/event"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// Subscription is the cancellation handle of a live query.
// Stop is idempotent and never blocks: once it returns the listener is released
// and later commits are not delivered. A snapshot already being dispatched may still arrive.
type Subscription interface {
	Stop()
}

// IDocumentStore is a collection based document store.
// Collections are slash separated paths ("groupMessages/g1/messages").
type IDocumentStore interface {
	// Get returns a document with Exists set to false when nothing is stored.
	Get(ctx context.Context, collection, id string) (document.Document, error)
	// Set replaces the document, or merges into it when merge is true.
	Set(ctx context.Context, collection, id string, fields document.Fields, merge bool) error
	// Update writes dotted field paths into an existing document.
	Update(ctx context.Context, collection, id string, fields document.Fields) error
	// Add creates a document with a generated id.
	Add(ctx context.Context, collection string, fields document.Fields) (string, error)
	Delete(ctx context.Context, collection, id string) error
	Query(ctx context.Context, q document.Query) ([]document.Document, error)
	// Listen delivers an initial snapshot then one snapshot per change of the result set.
	// A failing listener reports to onError once and is not restarted.
	Listen(q document.Query, onSnapshot func(document.Snapshot), onError func(error)) (Subscription, error)
	// RunTransaction runs fn atomically, retrying it on conflicting writes.
	RunTransaction(ctx context.Context, fn func(tx ITransaction) error) error
}

type ITransaction interface {
	Get(collection, id string) (document.Document, error)
	Set(collection, id string, fields document.Fields, merge bool) error
	Update(collection, id string, fields document.Fields) error
	Delete(collection, id string) error
}

// IChangeFeed streams committed document changes of every collection
// starting with prefix, until ctx is done.
type IChangeFeed interface {
	Watch(ctx context.Context, prefix string, fn func(document.Change)) error
}

// PushMessage is one notification addressed to one device.
type PushMessage struct {
	Token  string            `json:"token"`
	UserID string            `json:"userId"`
	Title  string            `json:"title"`
	Body   string            `json:"body"`
	Data   map[string]string `json:"data"`
	Link   string            `json:"link"`
}

type IPushSender interface {
	// Send returns errors.ErrInvalidDeviceToken when the device is gone.
	Send(ctx context.Context, msg PushMessage) error
}
