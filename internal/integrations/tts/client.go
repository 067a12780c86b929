package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
)

const defaultEndpoint = "https://tts.api.cloud.yandex.net/speech/v1/tts:synthesize"

// maxAudioBytes caps the synthesized payload we are willing to read.
const maxAudioBytes = 16 << 20

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
	return fmt.Sprintf("tts: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client is a focused client for the speech synthesis endpoint. It makes one
// attempt per call and imposes no timeout of its own; pass an *http.Client
// with a timeout via WithHTTPClient to bound the call.
type Client struct {
	endpoint    string
	httpClient  *http.Client
	getter      Getter
	paramPrefix string
	language    string
	voice       string

	credOnce sync.Once
	apiKey   string
	folderID string
	credErr  error
}

type Option func(*Client)

func WithEndpoint(endpoint string) Option {
	return func(c *Client) {
		c.endpoint = strings.TrimSpace(endpoint)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithVoice overrides the language tag and voice id sent with every request.
func WithVoice(language, voice string) Option {
	return func(c *Client) {
		c.language = language
		c.voice = voice
	}
}

// NewClient creates a Client backed by the given paramstore Getter for
// credential retrieval. The API key and folder id are fetched on the first
// call to Synthesize and reused for the lifetime of the process.
func NewClient(ps Getter, paramPrefix string, opts ...Option) (*Client, error) {
	if ps == nil {
		return nil, errors.New("tts: paramstore getter must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("tts: parameter prefix must not be empty")
	}
	c := &Client{
		endpoint:    defaultEndpoint,
		httpClient:  &http.Client{},
		getter:      ps,
		paramPrefix: paramPrefix,
		language:    "ru-RU",
		voice:       "filipp",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// resolveCredentials fetches the API key and folder id on the first call and
// returns the cached result on every subsequent call.
func (c *Client) resolveCredentials(ctx context.Context) (apiKey, folderID string, err error) {
	c.credOnce.Do(func() {
		c.apiKey, c.credErr = c.getter.GetParameter(ctx, c.paramPrefix+"/tts-api-key")
		if c.credErr != nil {
			c.credErr = fmt.Errorf("tts: fetch api key: %w", c.credErr)
			return
		}
		c.folderID, c.credErr = c.getter.GetParameter(ctx, c.paramPrefix+"/tts-folder-id")
		if c.credErr != nil {
			c.credErr = fmt.Errorf("tts: fetch folder id: %w", c.credErr)
		}
	})
	return c.apiKey, c.folderID, c.credErr
}

// Synthesize converts text to an audio payload.
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	apiKey, folderID, err := c.resolveCredentials(ctx)
	if err != nil {
		return nil, err
	}

	form := url.Values{
		"text":     {text},
		"lang":     {c.language},
		"voice":    {c.voice},
		"folderId": {folderID},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("tts: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Api-Key "+apiKey)

	res, err := c.resolvedHTTPClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("tts: request failed: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        c.endpoint,
			Body:       string(buf),
		}
	}

	audio, err := io.ReadAll(io.LimitReader(res.Body, maxAudioBytes))
	if err != nil {
		return nil, fmt.Errorf("tts: read response body: %w", err)
	}
	return audio, nil
}

func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return http.DefaultClient
}
