//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"github.com/google/uuid"

	"support-chat/domain"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker
// lifecycle events, avoiding the need for manual naming in the Worker
// interface.
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

// MessageSink receives one appended message per call. The broker invokes
// sinks while holding its log lock, so implementations must never block.
type MessageSink interface {
	Consume(ctx context.Context, m domain.Message) error
}

// IBroker is the process-wide conversation log plus the live sink set.
// Join performs snapshot-then-subscribe as one atomic unit so a new
// subscriber never misses or double-receives a message relative to the
// snapshot it was handed.
type IBroker interface {
	Append(m domain.Message)
	Snapshot() []domain.Message
	Tail() (domain.Message, bool)
	Subscribe(sink MessageSink) uuid.UUID
	Unsubscribe(handle uuid.UUID)
	Join(sink MessageSink) ([]domain.Message, uuid.UUID)
}

// ReplyScheduler queues a just-published user message for a delayed
// automated answer. Scheduling is fire-and-forget: it never blocks and
// never fails the publish path.
type ReplyScheduler interface {
	Schedule(m domain.Message)
}

// Notifier is the injected local-notification capability of the host
// environment.
type Notifier interface {
	CanNotify() bool
	Notify(m domain.Message) error
}

// Visibility reports whether the conversation view is currently in the
// foreground.
type Visibility interface {
	Visible() bool
}
