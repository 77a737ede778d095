// Package telegram wraps the Telegram Bot API for followerbot.
//
// It provides long-poll update retrieval, message and photo sending with
// inline keyboards, callback acknowledgement, and profile photo download.
// The client is a thin typed layer over the HTTP API; no third-party bot
// framework is involved.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultBaseURL is the production Bot API endpoint.
const DefaultBaseURL = "https://api.telegram.org"

// DefaultPollTimeout is the long-poll timeout for getUpdates.
const DefaultPollTimeout = 30 * time.Second

// maxAvatarBytes bounds profile photo downloads.
const maxAvatarBytes = 10 * 1024 * 1024

// Opts holds configuration for the Telegram client.
type Opts struct {
	Token      string
	BaseURL    string
	HTTPClient *http.Client
}

// Option configures the Telegram client.
type Option func(*Opts)

// WithToken sets the bot token.
func WithToken(token string) Option {
	return func(o *Opts) { o.Token = token }
}

// WithBaseURL overrides the Bot API base URL (tests).
func WithBaseURL(u string) Option {
	return func(o *Opts) { o.BaseURL = u }
}

// WithHTTPClient injects a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = c }
}

// Client is a typed Bot API client.
type Client struct {
	http    *http.Client
	baseURL string
	token   string
}

// NewClient creates a Telegram client, applying any provided options.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram bot token is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultPollTimeout + 30*time.Second}
	}
	slog.Debug("telegram client created", "base_url", cfg.BaseURL)
	return &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
	}, nil
}

// User is a Telegram account.
type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot,omitempty"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// Chat is the conversation an update belongs to.
type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type,omitempty"`
}

// IncomingMessage is an inbound chat message (subset of the wire type).
type IncomingMessage struct {
	MessageID int64  `json:"message_id"`
	Date      int64  `json:"date,omitempty"`
	Chat      *Chat  `json:"chat,omitempty"`
	From      *User  `json:"from,omitempty"`
	Text      string `json:"text,omitempty"`
}

// CallbackQuery is an inbound button press.
type CallbackQuery struct {
	ID   string `json:"id"`
	From *User  `json:"from,omitempty"`
	Data string `json:"data,omitempty"`
}

// Update is one entry from getUpdates.
type Update struct {
	UpdateID      int64            `json:"update_id"`
	Message       *IncomingMessage `json:"message,omitempty"`
	CallbackQuery *CallbackQuery   `json:"callback_query,omitempty"`
}

// InlineButton is one inline keyboard button carrying a callback payload.
type InlineButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

type photoSize struct {
	FileID string `json:"file_id"`
	Width  int    `json:"width,omitempty"`
}

type apiEnvelope struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`
	Description string          `json:"description,omitempty"`
}

// GetMe fetches the bot's own account, verifying the token.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var user User
	if err := c.call(ctx, "getMe", nil, &user); err != nil {
		return nil, fmt.Errorf("getMe: %w", err)
	}
	return &user, nil
}

// GetUpdates long-polls for new updates starting at offset and returns the
// updates plus the next offset to poll with.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, int64, error) {
	if timeout <= 0 {
		timeout = DefaultPollTimeout
	}
	secs := int(timeout.Seconds())
	if secs < 1 {
		secs = 1
	}

	payload := map[string]any{
		"timeout":         secs,
		"allowed_updates": []string{"message", "callback_query"},
	}
	if offset > 0 {
		payload["offset"] = offset
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout+5*time.Second)
	defer cancel()

	var updates []Update
	if err := c.call(reqCtx, "getUpdates", payload, &updates); err != nil {
		return nil, offset, fmt.Errorf("getUpdates: %w", err)
	}

	next := offset
	for _, u := range updates {
		if u.UpdateID >= next {
			next = u.UpdateID + 1
		}
	}
	return updates, next, nil
}

// SendMessage sends a text message, optionally with an inline keyboard.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, buttons []InlineButton) error {
	payload := map[string]any{
		"chat_id": chatID,
		"text":    text,
	}
	if markup := inlineKeyboard(buttons); markup != nil {
		payload["reply_markup"] = markup
	}
	if err := c.call(ctx, "sendMessage", payload, nil); err != nil {
		return fmt.Errorf("sendMessage to %d: %w", chatID, err)
	}
	slog.Debug("telegram message sent", "chat_id", chatID, "text_length", len(text))
	return nil
}

// SendPhoto sends a photo by URL with a caption, optionally with an inline
// keyboard.
func (c *Client) SendPhoto(ctx context.Context, chatID int64, photoURL, caption string, buttons []InlineButton) error {
	payload := map[string]any{
		"chat_id": chatID,
		"photo":   photoURL,
		"caption": caption,
	}
	if markup := inlineKeyboard(buttons); markup != nil {
		payload["reply_markup"] = markup
	}
	if err := c.call(ctx, "sendPhoto", payload, nil); err != nil {
		return fmt.Errorf("sendPhoto to %d: %w", chatID, err)
	}
	slog.Debug("telegram photo sent", "chat_id", chatID, "photo", photoURL)
	return nil
}

// AnswerCallback acknowledges a callback query so the client stops showing
// a progress indicator.
func (c *Client) AnswerCallback(ctx context.Context, callbackID string) error {
	payload := map[string]any{"callback_query_id": callbackID}
	if err := c.call(ctx, "answerCallbackQuery", payload, nil); err != nil {
		return fmt.Errorf("answerCallbackQuery: %w", err)
	}
	return nil
}

// ProfilePhoto returns the raw bytes of the user's current profile photo
// (largest size) and a suggested filename. ok is false when the user has no
// photo; transport failures return an error.
func (c *Client) ProfilePhoto(ctx context.Context, userID int64) (data []byte, filename string, ok bool, err error) {
	var photos struct {
		TotalCount int           `json:"total_count"`
		Photos     [][]photoSize `json:"photos"`
	}
	payload := map[string]any{"user_id": userID, "limit": 1}
	if err := c.call(ctx, "getUserProfilePhotos", payload, &photos); err != nil {
		return nil, "", false, fmt.Errorf("getUserProfilePhotos: %w", err)
	}
	if photos.TotalCount == 0 || len(photos.Photos) == 0 || len(photos.Photos[0]) == 0 {
		return nil, "", false, nil
	}

	// Sizes are ordered smallest first; take the largest.
	sizes := photos.Photos[0]
	fileID := sizes[len(sizes)-1].FileID

	data, err = c.downloadFile(ctx, fileID)
	if err != nil {
		return nil, "", false, err
	}
	return data, fmt.Sprintf("user_photo_%d.jpg", userID), true, nil
}

func (c *Client) downloadFile(ctx context.Context, fileID string) ([]byte, error) {
	var file struct {
		FilePath string `json:"file_path"`
	}
	if err := c.call(ctx, "getFile", map[string]any{"file_id": fileID}, &file); err != nil {
		return nil, fmt.Errorf("getFile: %w", err)
	}
	if file.FilePath == "" {
		return nil, fmt.Errorf("getFile: missing file_path")
	}

	fileURL := fmt.Sprintf("%s/file/bot%s/%s", c.baseURL, c.token, strings.TrimLeft(file.FilePath, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("download http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxAvatarBytes))
}

// call POSTs a JSON payload to a Bot API method and decodes the result.
func (c *Client) call(ctx context.Context, method string, payload map[string]any, out any) error {
	endpoint := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, url.PathEscape(method))

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode payload: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	raw, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if !envelope.OK {
		return fmt.Errorf("telegram api error %d: %s", envelope.ErrorCode, envelope.Description)
	}
	if out != nil && len(envelope.Result) > 0 {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
	}
	return nil
}

// IsPollTimeout reports whether the error is an expected long-poll timeout
// rather than a real transport failure.
func IsPollTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func inlineKeyboard(buttons []InlineButton) map[string]any {
	if len(buttons) == 0 {
		return nil
	}
	return map[string]any{"inline_keyboard": [][]InlineButton{buttons}}
}
