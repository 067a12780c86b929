// Package handler adapts inbound Telegram deliveries to the dispatcher and
// pushes the dispatcher's reply back out. The Lambda entrypoint feeds it
// webhook events; the long-poll runner feeds it updates directly.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"tts-relay/internal/domain"
	"tts-relay/internal/integrations/telegram"
	"tts-relay/internal/usecase"
)

// Dispatcher is the core the transport hands messages to.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg domain.Message) (domain.Reply, error)
}

// Sender delivers outbound replies to a chat.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string, withKeyboard bool) error
	SendVoice(ctx context.Context, chatID int64, audio []byte, caption string) error
}

type Handler struct {
	dispatcher Dispatcher
	sender     Sender
	logger     *slog.Logger
}

func NewHandler(dispatcher Dispatcher, sender Sender, logger *slog.Logger) (*Handler, error) {
	if dispatcher == nil {
		return nil, errors.New("handler: dispatcher must not be nil")
	}
	if sender == nil {
		return nil, errors.New("handler: sender must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{dispatcher: dispatcher, sender: sender, logger: logger}, nil
}

// Handle processes one webhook delivery. It always answers 200 so Telegram
// does not redeliver the update; failures are logged, not returned.
func (h *Handler) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	var update telegram.Update
	if err := json.Unmarshal([]byte(event.Body), &update); err != nil {
		h.logger.Error("failed to decode webhook update", "err", err)
		return ok(), nil
	}
	h.Process(ctx, update.Message)
	return ok(), nil
}

// Process dispatches one inbound message and sends the reply. Non-text
// deliveries (edits, stickers, joins) are ignored. Failures are isolated to
// this one message.
func (h *Handler) Process(ctx context.Context, msg *telegram.Message) {
	if msg == nil || msg.From == nil || msg.Text == "" {
		return
	}

	logger := h.logger.With("request_id", uuid.NewString())

	in := toDomainMessage(msg)
	reply, err := h.dispatcher.Dispatch(ctx, in)
	if err != nil {
		logger.Error("dispatch failed", "identity", in.Identity, "err", err)
		reply = domain.TextReply(usecase.InternalErrorReply)
	}

	if err := h.send(ctx, msg.Chat.ID, reply); err != nil {
		logger.Error("failed to send reply", "identity", in.Identity, "chat_id", msg.Chat.ID, "err", err)
	}
}

func (h *Handler) send(ctx context.Context, chatID int64, reply domain.Reply) error {
	if reply.Kind == domain.ReplyVoice {
		return h.sender.SendVoice(ctx, chatID, reply.Audio, reply.Caption)
	}
	return h.sender.SendMessage(ctx, chatID, reply.Text, reply.Keyboard)
}

// toDomainMessage translates a Telegram message into the transport-neutral
// tuple the dispatcher consumes. Command detection happens here, upstream of
// the core.
func toDomainMessage(msg *telegram.Message) domain.Message {
	command := msg.Command()
	return domain.Message{
		Identity:  strconv.FormatInt(msg.From.ID, 10),
		Text:      msg.Text,
		IsCommand: command != "",
		Command:   command,
	}
}

func ok() events.APIGatewayProxyResponse {
	return events.APIGatewayProxyResponse{
		StatusCode: 200,
		Headers:    map[string]string{"content-type": "application/json"},
		Body:       `{"ok":true}`,
	}
}
