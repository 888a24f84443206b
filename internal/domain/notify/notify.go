// Package notify keeps the bounded event history and the single-slot
// notification display queue.
//
// A Queue is not safe for concurrent use; its owner serializes access.
package notify

import (
	"context"

	"github.com/google/uuid"

	"github.com/okian/helpquest/internal/domain/dedupe"
	"github.com/okian/helpquest/internal/domain/model"
	"github.com/okian/helpquest/pkg/logger"
	"github.com/okian/helpquest/pkg/metrics"
)

// DefaultHistoryLimit is the number of events kept in history.
const DefaultHistoryLimit = 20

// Option configures a Queue.
type Option func(*Queue)

// WithHistoryLimit sets how many events the history keeps.
func WithHistoryLimit(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.limit = n
		}
	}
}

// WithDeduper sets the guard used to drop re-recorded event ids.
func WithDeduper(d dedupe.Deduper) Option {
	return func(q *Queue) {
		if d != nil {
			q.guard = d
		}
	}
}

// WithLogger sets the queue logger.
func WithLogger(l logger.Logger) Option {
	return func(q *Queue) {
		if l != nil {
			q.log = l
		}
	}
}

// Queue records events and shows them one at a time, oldest first.
type Queue struct {
	limit   int
	history []model.GameEvent // newest first
	pending []model.GameEvent // FIFO behind current
	current *model.GameEvent
	guard   dedupe.Deduper
	log     logger.Logger
}

// New creates an empty queue.
func New(opts ...Option) *Queue {
	q := &Queue{
		limit: DefaultHistoryLimit,
		log:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.guard == nil {
		q.guard = dedupe.NewInMemoryDeduper()
	}
	return q
}

// Record adds e to the history and to the display queue. If no
// notification is open e opens immediately, otherwise it waits behind the
// ones already queued. An event whose id was already recorded is dropped
// and Record returns false. Events without an id get a fresh one.
func (q *Queue) Record(ctx context.Context, e model.GameEvent) bool {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if q.guard.SeenAndRecord(ctx, e.ID) {
		metrics.RecordDuplicateEvent()
		q.log.Debug(ctx, "duplicate event dropped", logger.String("event_id", e.ID))
		return false
	}
	e = e.Clone()

	q.history = append(q.history, model.GameEvent{})
	copy(q.history[1:], q.history)
	q.history[0] = e
	if len(q.history) > q.limit {
		clear(q.history[q.limit:])
		q.history = q.history[:q.limit]
	}

	if q.current == nil {
		q.current = &e
	} else {
		q.pending = append(q.pending, e)
	}
	metrics.RecordGameEvent(string(e.Type))
	metrics.UpdatePendingNotifications(len(q.pending))
	return true
}

// Dismiss closes the open notification and opens the next pending one.
// It returns false when nothing was open.
func (q *Queue) Dismiss(ctx context.Context) bool {
	if q.current == nil {
		return false
	}
	q.log.Debug(ctx, "notification dismissed", logger.String("event_id", q.current.ID))
	q.current = nil
	if len(q.pending) > 0 {
		next := q.pending[0]
		q.pending[0] = model.GameEvent{}
		q.pending = q.pending[1:]
		q.current = &next
	}
	metrics.UpdatePendingNotifications(len(q.pending))
	return true
}

// Slot returns a copy of the notification slot.
func (q *Queue) Slot() model.NotificationSlot {
	slot := model.NotificationSlot{Pending: len(q.pending)}
	if q.current != nil {
		e := q.current.Clone()
		slot.Current = &e
		slot.Open = true
	}
	return slot
}

// History returns a copy of the history, newest first.
func (q *Queue) History() []model.GameEvent {
	out := make([]model.GameEvent, len(q.history))
	for i := range q.history {
		out[i] = q.history[i].Clone()
	}
	return out
}

// Pending returns a copy of the events waiting behind the open one.
func (q *Queue) Pending() []model.GameEvent {
	out := make([]model.GameEvent, len(q.pending))
	for i := range q.pending {
		out[i] = q.pending[i].Clone()
	}
	return out
}

// ClearHistory empties the history. Queued notifications are kept.
func (q *Queue) ClearHistory() {
	q.history = nil
}

// Reset drops history, the open slot, pending events and the id guard.
func (q *Queue) Reset(ctx context.Context) {
	q.history = nil
	q.pending = nil
	q.current = nil
	q.guard.Reset(ctx)
	metrics.UpdatePendingNotifications(0)
}
