// Package broker holds the in-memory conversation log and fans new
// messages out to the live sink set. It is the single source of truth
// for message order; nothing here survives a process restart.
package broker

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"support-chat/contract"
	"support-chat/domain"
	"support-chat/observability"
)

// HistoryLimit caps the log at the most recent entries. It bounds memory
// and the cost of the snapshot replayed to every new subscriber.
const HistoryLimit = 200

// Store owns the ordered message log and the registered sinks. All
// mutations are serialized by one mutex, so an Append and a Join are
// always observed atomically relative to each other.
type Store struct {
	mu       sync.Mutex
	log      *slog.Logger
	stats    *observability.ChatStats
	limit    int
	messages []domain.Message
	sinks    map[uuid.UUID]contract.MessageSink
}

// NewStore builds an empty store, optionally seeded with messages (the
// support desk greets first-time visitors with a welcome entry).
func NewStore(log *slog.Logger, stats *observability.ChatStats, seed ...domain.Message) *Store {
	s := &Store{
		log:   log,
		stats: stats,
		limit: HistoryLimit,
		sinks: make(map[uuid.UUID]contract.MessageSink),
	}
	for _, m := range seed {
		s.Append(m)
	}
	return s
}

// Append adds m to the end of the log, evicts the oldest entries past
// the history limit, then delivers m to every registered sink. Delivery
// happens under the store lock so a Join never misses or double-receives
// a message relative to its snapshot; sinks are required to be
// non-blocking for the same reason.
func (s *Store) Append(m domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = append(s.messages, m)
	if len(s.messages) > s.limit {
		s.messages = s.messages[len(s.messages)-s.limit:]
	}
	s.stats.IncrPublished()

	for handle, sink := range s.sinks {
		s.deliver(handle, sink, m)
	}
}

// deliver isolates one sink invocation: a panicking or erroring sink is
// treated as independently failed and must not abort delivery to the
// remaining sinks.
func (s *Store) deliver(handle uuid.UUID, sink contract.MessageSink, m domain.Message) {
	defer func() {
		if r := recover(); r != nil {
			s.stats.IncrDroppedDelivery()
			s.log.Warn("Sink panicked during delivery", "handle", handle, "panic", r)
		}
	}()

	if err := sink.Consume(context.Background(), m); err != nil {
		s.stats.IncrDroppedDelivery()
		s.log.Debug("Sink rejected delivery", "handle", handle, "error", err)
	}
}

// Snapshot returns a copy of the current log, oldest first.
func (s *Store) Snapshot() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() []domain.Message {
	out := make([]domain.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Tail returns the most recent log entry, if any. The responder uses it
// for the last-writer-wins staleness guard.
func (s *Store) Tail() (domain.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.messages) == 0 {
		return domain.Message{}, false
	}
	return s.messages[len(s.messages)-1], true
}

// Subscribe registers a sink invoked once per future Append and returns
// the handle to unsubscribe with.
func (s *Store) Subscribe(sink contract.MessageSink) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscribeLocked(sink)
}

func (s *Store) subscribeLocked(sink contract.MessageSink) uuid.UUID {
	handle := uuid.New()
	s.sinks[handle] = sink
	s.stats.SetOpenStreams(int64(len(s.sinks)))
	return handle
}

// Unsubscribe removes a sink. Removing an unknown handle is a no-op, so
// stream teardown paths can call it unconditionally.
func (s *Store) Unsubscribe(handle uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sinks, handle)
	s.stats.SetOpenStreams(int64(len(s.sinks)))
}

// Join takes a snapshot and registers the sink under one lock, so a
// message appended concurrently either shows up in the snapshot or is
// delivered to the sink, never both and never neither.
func (s *Store) Join(sink contract.MessageSink) ([]domain.Message, uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(), s.subscribeLocked(sink)
}
