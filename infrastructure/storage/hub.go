package storage

import (
	"context"
	"log/slog"
	"messenger/domain/document"
	"strings"
	"sync"
	"sync/atomic"
)

const watcherBufferSize = 256

// hub routes committed changes to live queries and change feed watchers
// of the current process.
type hub struct {
	mu        sync.Mutex
	log       *slog.Logger
	nextID    int
	listeners map[int]*listener
	watchers  map[int]*watcher
}

func newHub(log *slog.Logger) *hub {
	return &hub{
		log:       log,
		listeners: make(map[int]*listener),
		watchers:  make(map[int]*watcher),
	}
}

type queryRunner func(q document.Query) ([]document.Document, error)

// listener re-runs its query each time its collection changes
// and delivers the diff against the previous result.
type listener struct {
	id         int
	hub        *hub
	query      document.Query
	run        queryRunner
	onSnapshot func(document.Snapshot)
	onError    func(error)
	wake       chan struct{}
	done       chan struct{}
	once       sync.Once
	stopped    atomic.Bool
}

func (h *hub) listen(q document.Query, run queryRunner, onSnapshot func(document.Snapshot), onError func(error)) *listener {
	h.mu.Lock()
	h.nextID++
	l := &listener{
		id:         h.nextID,
		hub:        h,
		query:      q,
		run:        run,
		onSnapshot: onSnapshot,
		onError:    onError,
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
	h.listeners[l.id] = l
	h.mu.Unlock()

	go l.loop()
	return l
}

func (l *listener) loop() {
	docs, err := l.run(l.query)
	if err != nil {
		l.fail(err)
		return
	}
	if !l.deliver(document.InitialSnapshot(docs)) {
		return
	}
	previous := docs
	for {
		select {
		case <-l.done:
			return
		case <-l.wake:
			next, err := l.run(l.query)
			if err != nil {
				l.fail(err)
				return
			}
			changes := document.Diff(previous, next)
			previous = next
			if len(changes) == 0 {
				continue
			}
			if !l.deliver(document.Snapshot{Docs: next, Changes: changes}) {
				return
			}
		}
	}
}

func (l *listener) deliver(s document.Snapshot) bool {
	if l.stopped.Load() {
		return false
	}
	l.onSnapshot(s)
	return true
}

// fail reports the error once; the listener is not restarted.
func (l *listener) fail(err error) {
	if l.stopped.Load() {
		return
	}
	l.hub.log.Warn("Live query failed", "collection", l.query.Collection, "error", err)
	l.Stop()
	if l.onError != nil {
		l.onError(err)
	}
}

// Stop never waits for the listener goroutine, so it is safe to call
// from inside a snapshot callback. A delivery already past its stopped check
// may still complete; nothing committed afterwards is delivered.
func (l *listener) Stop() {
	l.once.Do(func() {
		l.stopped.Store(true)
		close(l.done)
		l.hub.mu.Lock()
		delete(l.hub.listeners, l.id)
		l.hub.mu.Unlock()
	})
}

type watcher struct {
	prefix  string
	changes chan document.Change
}

// watch streams changes of collections starting with prefix until ctx is done.
func (h *hub) watch(ctx context.Context, prefix string, fn func(document.Change)) error {
	w := &watcher{prefix: prefix, changes: make(chan document.Change, watcherBufferSize)}
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.watchers[id] = w
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.watchers, id)
		h.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case c := <-w.changes:
			fn(c)
		}
	}
}

// publish wakes the listeners of every touched collection.
// It never blocks: a listener already awake will pick up the latest state.
func (h *hub) publish(changes []document.Change) {
	if len(changes) == 0 {
		return
	}
	touched := make(map[string]struct{}, len(changes))
	for _, c := range changes {
		touched[c.Doc.Collection] = struct{}{}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, l := range h.listeners {
		if _, ok := touched[l.query.Collection]; !ok {
			continue
		}
		select {
		case l.wake <- struct{}{}:
		default:
		}
	}
	for _, w := range h.watchers {
		for _, c := range changes {
			if !strings.HasPrefix(c.Doc.Collection, w.prefix) {
				continue
			}
			select {
			case w.changes <- c:
			default:
				h.log.Warn("Change feed watcher is lagging, change dropped",
					"collection", c.Doc.Collection, "id", c.Doc.ID)
			}
		}
	}
}
