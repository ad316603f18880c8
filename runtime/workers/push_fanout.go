package workers

import (
	"context"
	"log/slog"
	"messenger/contract"
	"messenger/domain/document"
	"messenger/notify"
)

type IMessageDispatcher interface {
	HandleChange(ctx context.Context, change document.Change) (notify.Report, bool, error)
}

// PushFanout follows the messages written under one root and notifies
// the participants of each new message.
type PushFanout struct {
	log        *slog.Logger
	feed       contract.IChangeFeed
	dispatcher IMessageDispatcher
	prefix     string
}

func NewPushFanout(log *slog.Logger, feed contract.IChangeFeed, dispatcher IMessageDispatcher, prefix string) *PushFanout {
	return &PushFanout{log: log, feed: feed, dispatcher: dispatcher, prefix: prefix}
}

// Run blocks until ctx is done. A failed message is logged and skipped.
func (w *PushFanout) Run(ctx context.Context) error {
	w.log.Info("Push fan-out started", "prefix", w.prefix)
	return w.feed.Watch(ctx, w.prefix, func(change document.Change) {
		if _, handled, err := w.dispatcher.HandleChange(ctx, change); handled && err != nil {
			w.log.Error("Sending message notification failed",
				"collection", change.Doc.Collection,
				"message", change.Doc.ID,
				"error", err)
		}
	})
}
