package services

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"support-chat/contract"
	"support-chat/domain"
	"support-chat/errors"
)

type IChatService interface {
	PostMessage(ctx context.Context, cmd domain.PostMessageCommand) error
	Snapshot() []domain.Message
	Join(sink contract.MessageSink) ([]domain.Message, uuid.UUID)
	Leave(handle uuid.UUID)
}

var validate = validator.New()

// ChatService validates publish intents, owns message construction and
// feeds the responder. Transport handlers stay thin on top of it.
type ChatService struct {
	broker    contract.IBroker
	responder contract.ReplyScheduler
}

func NewChatService(broker contract.IBroker, responder contract.ReplyScheduler) *ChatService {
	return &ChatService{broker: broker, responder: responder}
}

// PostMessage validates the command, appends the resulting message and
// hands user messages to the responder. The caller gets its success as
// soon as the append is done; the delayed reply is fire-and-forget and
// can never fail the publish contract.
func (s *ChatService) PostMessage(_ context.Context, cmd domain.PostMessageCommand) error {
	cmd.Content = strings.TrimSpace(cmd.Content)
	if cmd.Sender == "" {
		cmd.Sender = domain.SenderUser
	}
	if err := validate.Struct(cmd); err != nil {
		return mapValidationError(err)
	}

	m := domain.NewMessage(cmd.Sender, cmd.Content)
	s.broker.Append(m)
	s.responder.Schedule(m)
	return nil
}

func (s *ChatService) Snapshot() []domain.Message {
	return s.broker.Snapshot()
}

// Join registers a stream sink and returns the snapshot seeding it, as
// one atomic unit relative to concurrent appends.
func (s *ChatService) Join(sink contract.MessageSink) ([]domain.Message, uuid.UUID) {
	return s.broker.Join(sink)
}

func (s *ChatService) Leave(handle uuid.UUID) {
	s.broker.Unsubscribe(handle)
}

// mapValidationError translates field failures into the domain
// sentinels the transport layer reports on.
func mapValidationError(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	for _, f := range verrs {
		if f.Field() == "Sender" {
			return errors.ErrUnknownSender
		}
	}
	return errors.ErrEmptyMessage
}
