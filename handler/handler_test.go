package handler

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/require"

	"tts-relay/internal/domain"
	"tts-relay/internal/integrations/telegram"
	"tts-relay/internal/usecase"
)

type stubDispatcher struct {
	reply domain.Reply
	err   error
	calls int
	in    domain.Message
}

func (s *stubDispatcher) Dispatch(_ context.Context, in domain.Message) (domain.Reply, error) {
	s.calls++
	s.in = in
	return s.reply, s.err
}

type stubSender struct {
	sentText     string
	sentKeyboard bool
	sentChatID   int64
	sentAudio    []byte
	sentCaption  string
	textCalls    int
	voiceCalls   int
	sendErr      error
}

func (s *stubSender) SendMessage(_ context.Context, chatID int64, text string, withKeyboard bool) error {
	s.textCalls++
	s.sentChatID = chatID
	s.sentText = text
	s.sentKeyboard = withKeyboard
	return s.sendErr
}

func (s *stubSender) SendVoice(_ context.Context, chatID int64, audio []byte, caption string) error {
	s.voiceCalls++
	s.sentChatID = chatID
	s.sentAudio = audio
	s.sentCaption = caption
	return s.sendErr
}

func mustNewHandler(t *testing.T, d Dispatcher, s Sender) *Handler {
	t.Helper()
	h, err := NewHandler(d, s, nil)
	require.NoError(t, err)
	return h
}

func webhookEvent(body string) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{
		HTTPMethod: "POST",
		Path:       "/webhook",
		Body:       body,
	}
}

const textUpdate = `{
	"update_id": 100,
	"message": {
		"message_id": 1,
		"from": {"id": 42},
		"chat": {"id": 77},
		"text": "hello"
	}
}`

const commandUpdate = `{
	"update_id": 101,
	"message": {
		"message_id": 2,
		"from": {"id": 42},
		"chat": {"id": 77},
		"text": "/start_tts",
		"entities": [{"type": "bot_command", "offset": 0, "length": 10}]
	}
}`

func TestHandle_TextUpdateDispatched(t *testing.T) {
	d := &stubDispatcher{reply: domain.TextReply("ack")}
	s := &stubSender{}
	h := mustNewHandler(t, d, s)

	res, err := h.Handle(context.Background(), webhookEvent(textUpdate))
	require.NoError(t, err)
	require.Equal(t, 200, res.StatusCode)

	require.Equal(t, domain.Message{Identity: "42", Text: "hello"}, d.in)
	require.Equal(t, int64(77), s.sentChatID)
	require.Equal(t, "ack", s.sentText)
}

func TestHandle_CommandDetectedUpstream(t *testing.T) {
	d := &stubDispatcher{reply: domain.TextReply("on")}
	s := &stubSender{}
	h := mustNewHandler(t, d, s)

	_, err := h.Handle(context.Background(), webhookEvent(commandUpdate))
	require.NoError(t, err)

	require.True(t, d.in.IsCommand)
	require.Equal(t, "start_tts", d.in.Command)
	require.Equal(t, "/start_tts", d.in.Text)
}

func TestHandle_VoiceReplySent(t *testing.T) {
	d := &stubDispatcher{reply: domain.VoiceReply([]byte("ogg"), "Characters spent: 5")}
	s := &stubSender{}
	h := mustNewHandler(t, d, s)

	_, err := h.Handle(context.Background(), webhookEvent(textUpdate))
	require.NoError(t, err)

	require.Equal(t, 1, s.voiceCalls)
	require.Zero(t, s.textCalls)
	require.Equal(t, []byte("ogg"), s.sentAudio)
	require.Equal(t, "Characters spent: 5", s.sentCaption)
}

func TestHandle_KeyboardFlagForwarded(t *testing.T) {
	d := &stubDispatcher{reply: domain.KeyboardReply("help text")}
	s := &stubSender{}
	h := mustNewHandler(t, d, s)

	_, err := h.Handle(context.Background(), webhookEvent(textUpdate))
	require.NoError(t, err)
	require.True(t, s.sentKeyboard)
}

func TestHandle_MalformedBodyStill200(t *testing.T) {
	d := &stubDispatcher{}
	s := &stubSender{}
	h := mustNewHandler(t, d, s)

	res, err := h.Handle(context.Background(), webhookEvent("{not json"))
	require.NoError(t, err)
	require.Equal(t, 200, res.StatusCode)
	require.Zero(t, d.calls)
	require.Zero(t, s.textCalls)
}

func TestHandle_NonTextUpdateIgnored(t *testing.T) {
	d := &stubDispatcher{}
	s := &stubSender{}
	h := mustNewHandler(t, d, s)

	res, err := h.Handle(context.Background(), webhookEvent(`{"update_id":102,"message":{"message_id":3,"from":{"id":42},"chat":{"id":77}}}`))
	require.NoError(t, err)
	require.Equal(t, 200, res.StatusCode)
	require.Zero(t, d.calls)
}

func TestHandle_DispatchErrorSendsGenericReply(t *testing.T) {
	d := &stubDispatcher{err: errors.New("store down")}
	s := &stubSender{}
	h := mustNewHandler(t, d, s)

	res, err := h.Handle(context.Background(), webhookEvent(textUpdate))
	require.NoError(t, err)
	require.Equal(t, 200, res.StatusCode)
	require.Equal(t, usecase.InternalErrorReply, s.sentText)
}

func TestHandle_SendFailureDoesNotFailRequest(t *testing.T) {
	d := &stubDispatcher{reply: domain.TextReply("ack")}
	s := &stubSender{sendErr: errors.New("telegram down")}
	h := mustNewHandler(t, d, s)

	res, err := h.Handle(context.Background(), webhookEvent(textUpdate))
	require.NoError(t, err)
	require.Equal(t, 200, res.StatusCode)
}

func TestProcess_NilMessageIgnored(t *testing.T) {
	d := &stubDispatcher{}
	h := mustNewHandler(t, d, &stubSender{})

	h.Process(context.Background(), nil)
	h.Process(context.Background(), &telegram.Message{Text: "no sender", Chat: telegram.Chat{ID: 77}})
	require.Zero(t, d.calls)
}

func TestNewHandler_Validation(t *testing.T) {
	_, err := NewHandler(nil, &stubSender{}, nil)
	require.Error(t, err)
	_, err = NewHandler(&stubDispatcher{}, nil, nil)
	require.Error(t, err)
}
