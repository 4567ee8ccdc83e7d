package domain

// PostMessageCommand carries a publish intent from a client. An absent
// sender defaults to SenderUser at the service boundary; content must be
// non-blank after trimming.
type PostMessageCommand struct {
	Sender  Sender `json:"sender" validate:"omitempty,oneof=user support"`
	Content string `json:"content" validate:"required"`
}
