package sink

import (
	"context"

	"support-chat/domain"
	"support-chat/errors"
)

// StreamSink bridges broker fan-out to one open stream. The broker
// pushes into Events and the stream handler drains it at its own pace.
type StreamSink struct {
	Events chan domain.Message
}

func NewStreamSink(bufferSize int) *StreamSink {
	return &StreamSink{Events: make(chan domain.Message, bufferSize)}
}

// Consume is called by the broker during fan-out. It never blocks: when
// the buffer is full the message is dropped for this stream only and the
// backpressure reported, leaving the remaining sinks unaffected.
func (s *StreamSink) Consume(ctx context.Context, m domain.Message) error {
	select {
	case s.Events <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return errors.ErrSlowConsumer
	}
}
