// Package telegram is a minimal Bot API client covering what the relay
// needs: long-polling for updates and sending text or voice replies. No
// general-purpose bot framework, just the three calls the transport makes.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

const defaultBaseURL = "https://api.telegram.org"

type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("telegram: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// APIError is a well-formed Bot API response with ok=false.
type APIError struct {
	Method      string
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram: %s: %s", e.Method, e.Description)
}

// Update is one long-poll or webhook delivery.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message"`
}

// Message is the subset of the Bot API message the relay reads.
type Message struct {
	MessageID int64           `json:"message_id"`
	From      *User           `json:"from"`
	Chat      Chat            `json:"chat"`
	Text      string          `json:"text"`
	Entities  []MessageEntity `json:"entities"`
}

type User struct {
	ID int64 `json:"id"`
}

type Chat struct {
	ID int64 `json:"id"`
}

type MessageEntity struct {
	Type   string `json:"type"`
	Offset int    `json:"offset"`
	Length int    `json:"length"`
}

// Command returns the leading bot command without the slash (and without a
// @botname suffix), or "" if the message does not start with a command.
func (m *Message) Command() string {
	if m == nil {
		return ""
	}
	for _, e := range m.Entities {
		if e.Type != "bot_command" || e.Offset != 0 {
			continue
		}
		runes := []rune(m.Text)
		if e.Length > len(runes) {
			return ""
		}
		cmd := strings.TrimPrefix(string(runes[:e.Length]), "/")
		if at := strings.Index(cmd, "@"); at >= 0 {
			cmd = cmd[:at]
		}
		return cmd
	}
	return ""
}

// Client talks to the Bot API for a single bot.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	getter      Getter
	paramPrefix string

	tokenOnce sync.Once
	token     string
	tokenErr  error
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a Client backed by the given paramstore Getter for bot
// token retrieval. The token is fetched on first use and cached for the
// process lifetime.
func NewClient(ps Getter, paramPrefix string, opts ...Option) (*Client, error) {
	if ps == nil {
		return nil, errors.New("telegram: paramstore getter must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("telegram: parameter prefix must not be empty")
	}
	c := &Client{
		baseURL: defaultBaseURL,
		// Long polls hold the connection open for up to a minute; the client
		// timeout must sit above that.
		httpClient:  &http.Client{Timeout: 75 * time.Second},
		getter:      ps,
		paramPrefix: paramPrefix,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) resolveToken(ctx context.Context) (string, error) {
	c.tokenOnce.Do(func() {
		c.token, c.tokenErr = c.getter.GetParameter(ctx, c.paramPrefix+"/bot-token")
		if c.tokenErr != nil {
			c.tokenErr = fmt.Errorf("telegram: fetch bot token: %w", c.tokenErr)
		}
	})
	return c.token, c.tokenErr
}

func (c *Client) methodURL(token, method string) string {
	return c.baseURL + "/bot" + token + "/" + method
}

// replyKeyboard is the two-button command keyboard shown with help and filler
// replies.
func replyKeyboard() any {
	type button struct {
		Text string `json:"text"`
	}
	return struct {
		Keyboard       [][]button `json:"keyboard"`
		ResizeKeyboard bool       `json:"resize_keyboard"`
	}{
		Keyboard: [][]button{
			{{Text: "/help"}},
			{{Text: "/start_tts"}},
		},
		ResizeKeyboard: true,
	}
}

// SendMessage sends a plain text reply, optionally with the command keyboard.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, withKeyboard bool) error {
	payload := map[string]any{
		"chat_id": chatID,
		"text":    text,
	}
	if withKeyboard {
		payload["reply_markup"] = replyKeyboard()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram: marshal sendMessage: %w", err)
	}
	_, err = c.call(ctx, "sendMessage", "application/json", bytes.NewReader(body))
	return err
}

// SendVoice uploads audio as a voice note with a caption.
func (c *Client) SendVoice(ctx context.Context, chatID int64, audio []byte, caption string) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("chat_id", strconv.FormatInt(chatID, 10)); err != nil {
		return fmt.Errorf("telegram: write chat_id field: %w", err)
	}
	if caption != "" {
		if err := mw.WriteField("caption", caption); err != nil {
			return fmt.Errorf("telegram: write caption field: %w", err)
		}
	}
	fw, err := mw.CreateFormFile("voice", "voice.ogg")
	if err != nil {
		return fmt.Errorf("telegram: create voice part: %w", err)
	}
	if _, err := fw.Write(audio); err != nil {
		return fmt.Errorf("telegram: write voice payload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("telegram: finish multipart body: %w", err)
	}

	_, err = c.call(ctx, "sendVoice", mw.FormDataContentType(), &buf)
	return err
}

// GetUpdates long-polls for updates after offset. timeoutSeconds is the
// server-side hold time; 0 means return immediately.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeoutSeconds int) ([]Update, error) {
	payload := map[string]any{
		"offset":          offset,
		"timeout":         timeoutSeconds,
		"allowed_updates": []string{"message"},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("telegram: marshal getUpdates: %w", err)
	}

	raw, err := c.call(ctx, "getUpdates", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	var updates []Update
	if err := json.Unmarshal(raw, &updates); err != nil {
		return nil, fmt.Errorf("telegram: decode updates: %w", err)
	}
	return updates, nil
}

// apiResponse is the Bot API envelope around every result.
type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

// call performs one Bot API request and unwraps the response envelope.
func (c *Client) call(ctx context.Context, method, contentType string, body io.Reader) (json.RawMessage, error) {
	token, err := c.resolveToken(ctx)
	if err != nil {
		return nil, err
	}

	url := c.methodURL(token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("telegram: create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", contentType)

	res, err := c.resolvedHTTPClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("telegram: %s request failed: %w", method, err)
	}
	defer func() { _ = res.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("telegram: read %s response: %w", method, err)
	}

	var envelope apiResponse
	if decErr := json.Unmarshal(raw, &envelope); decErr != nil {
		if res.StatusCode < 200 || res.StatusCode >= 300 {
			return nil, &HTTPStatusError{StatusCode: res.StatusCode, URL: c.methodURL("<token>", method), Body: string(raw)}
		}
		return nil, fmt.Errorf("telegram: decode %s response: %w", method, decErr)
	}
	if !envelope.OK {
		return nil, &APIError{Method: method, Description: envelope.Description}
	}
	return envelope.Result, nil
}

func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return http.DefaultClient
}
