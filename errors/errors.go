package errors

import "fmt"

var (
	ErrWorkerPanic   = fmt.Errorf("worker panic")
	ErrEmptyMessage  = fmt.Errorf("message cannot be empty")
	ErrUnknownSender = fmt.Errorf("unknown sender")
	ErrSlowConsumer  = fmt.Errorf("stream consumer too slow")
)
