// Package domain contains core concepts of the support chat.
// This file defines Message records and related rules.
// Messages are immutable once appended to the conversation log.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Sender identifies which side of the conversation authored a message.
// The enumeration is closed: a message is either from the visitor or
// from the support desk.
type Sender string

const (
	SenderUser    Sender = "user"
	SenderSupport Sender = "support"
)

// Message represents an immutable chat event. The JSON tags define the
// wire shape shared by the stream endpoint and the client manager;
// CreatedAt serializes as an RFC 3339 timestamp.
type Message struct {
	ID        uuid.UUID `json:"id"`
	Sender    Sender    `json:"sender"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewMessage builds a message with a fresh identifier and the current
// server-side UTC timestamp. Content is expected to be trimmed and
// validated at the service boundary before this is called.
func NewMessage(sender Sender, content string) Message {
	return Message{
		ID:        uuid.New(),
		Sender:    sender,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
}
