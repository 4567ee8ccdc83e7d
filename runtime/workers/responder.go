package workers

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"support-chat/contract"
	"support-chat/domain"
	"support-chat/observability"
)

// DefaultReplyDelay mirrors the support desk's simulated typing time.
const DefaultReplyDelay = 1800 * time.Millisecond

// replyPool is the fixed set of canned support answers.
var replyPool = []string{
	"धन्यवाद! We'll review your request and respond shortly.",
	"Our support guide will call you within the next few minutes.",
	"Sharing a curated deck for your preferred region. Kindly keep notifications on.",
}

// Responder answers user messages with a delayed canned support reply.
// Every scheduled message gets its own timer keyed by its identity; at
// fire time the reply is appended only when the log tail is still the
// message being answered, so a conversation that has moved on is never
// answered late.
type Responder struct {
	log     *slog.Logger
	broker  contract.IBroker
	stats   *observability.ChatStats
	delay   time.Duration
	pending chan domain.Message
}

func NewResponder(log *slog.Logger, broker contract.IBroker,
	stats *observability.ChatStats, delay time.Duration, bufferSize int) *Responder {
	return &Responder{
		log:     log,
		broker:  broker,
		stats:   stats,
		delay:   delay,
		pending: make(chan domain.Message, bufferSize),
	}
}

// Schedule queues a user message for a delayed reply. It never blocks
// and never fails the publish path: messages from the support side are
// ignored and a full queue simply skips the auto-reply.
func (w *Responder) Schedule(m domain.Message) {
	if m.Sender != domain.SenderUser {
		return
	}
	select {
	case w.pending <- m:
	default:
		w.log.Warn("Responder queue full, skipping auto-reply", "message_id", m.ID)
	}
}

func (w *Responder) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping responder")
			return nil
		case m, ok := <-w.pending:
			if !ok {
				return nil
			}
			go w.answer(ctx, m)
		}
	}
}

// answer waits out the delay, then applies the last-writer-wins guard
// before appending a reply. No lock is held across the wait.
func (w *Responder) answer(ctx context.Context, m domain.Message) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(w.delay):
	}

	tail, ok := w.broker.Tail()
	if !ok || tail.ID != m.ID {
		w.stats.IncrSuppressedReply()
		w.log.Debug("Conversation moved on, suppressing auto-reply", "answer_to", m.ID)
		return
	}

	reply := domain.NewMessage(domain.SenderSupport, replyPool[rand.IntN(len(replyPool))])
	w.broker.Append(reply)
	w.stats.IncrAutoReply()
}
