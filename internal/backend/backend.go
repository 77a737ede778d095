// Package backend implements the remote profile and content gateway.
//
// The remote store is a REST resource backend (Strapi wire shapes) holding
// follower profiles and the paginated content feed. The client covers the
// four operations the core depends on (lookup, create, update-fields,
// fetch-page) plus the media upload used for best-effort avatar capture.
// Every call is a bounded, fallible network operation; callers treat any
// error as "operation failed" for the single event being handled.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vedaverse/followerbot/internal/models"
)

// DefaultRequestTimeout bounds every gateway request so a hung backend call
// for one identity cannot starve event processing for others.
const DefaultRequestTimeout = 15 * time.Second

// Opts holds configuration for the backend client.
type Opts struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Option configures the backend client.
type Option func(*Opts)

// WithBaseURL sets the backend base URL (e.g. https://vedaverse.pro).
func WithBaseURL(u string) Option {
	return func(o *Opts) { o.BaseURL = u }
}

// WithAPIKey sets the bearer token sent on every request.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// WithHTTPClient injects a custom HTTP client (tests).
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = c }
}

// Client talks to the remote profile and content store.
type Client struct {
	http    *http.Client
	baseURL string
	apiKey  string
}

// NewClient creates a backend client, applying any provided options.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("backend base URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRequestTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	slog.Debug("backend client created", "base_url", cfg.BaseURL, "timeout", cfg.Timeout, "api_key_set", cfg.APIKey != "")
	return &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
	}, nil
}

// Strapi-style wire envelopes.

type profileAttributes struct {
	TGUserID       int64               `json:"tgUserID,omitempty"`
	Telegram       string              `json:"telegram"`
	Name           string              `json:"name,omitempty"`
	Surname        string              `json:"surname,omitempty"`
	Gender         string              `json:"gender,omitempty"`
	Country        string              `json:"country,omitempty"`
	NewsPreference *bool               `json:"news_preference,omitempty"`
	Type           models.LifecycleTag `json:"type,omitempty"`
	Media          int64               `json:"media,omitempty"`
	Blocked        *bool               `json:"blocked,omitempty"`
	LastLogin      string              `json:"lastLogin,omitempty"`
	UTMSource      string              `json:"utm_source,omitempty"`
	UTMMedium      string              `json:"utm_medium,omitempty"`
	UTMCampaign    string              `json:"utm_campaign,omitempty"`
}

type profileEntry struct {
	ID         int64             `json:"id"`
	Attributes profileAttributes `json:"attributes"`
}

type profileListResponse struct {
	Data []profileEntry `json:"data"`
}

type profileSingleResponse struct {
	Data *profileEntry `json:"data"`
}

type contentAttributes struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	ContentTxt  string `json:"content_txt"`
	MediaURL    string `json:"media_url,omitempty"`
}

type contentEntry struct {
	ID         int64             `json:"id"`
	Attributes contentAttributes `json:"attributes"`
}

type contentListResponse struct {
	Data []contentEntry `json:"data"`
}

type uploadedFile struct {
	ID  int64  `json:"id"`
	URL string `json:"url"`
}

// Lookup finds an existing profile by exact match on name, surname and
// handle. A miss is a normal outcome and returns (nil, nil); only transport
// or decode failures return an error.
func (c *Client) Lookup(ctx context.Context, name, surname, telegram string) (*models.RemoteProfile, error) {
	params := url.Values{}
	params.Set("filters[$and][0][name][$eq]", name)
	params.Set("filters[$and][1][surname][$eq]", surname)
	if telegram != "" {
		params.Set("filters[$and][2][telegram][$eq]", telegram)
	}

	slog.Debug("backend Lookup", "name", name, "surname", surname, "telegram", telegram)
	var out profileListResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/followers?"+params.Encode(), nil, &out); err != nil {
		return nil, fmt.Errorf("lookup follower: %w", err)
	}
	if len(out.Data) == 0 {
		slog.Debug("backend Lookup miss", "name", name, "surname", surname)
		return nil, nil
	}

	profile := entryToProfile(out.Data[0])
	slog.Debug("backend Lookup hit", "remote_id", profile.ID, "type", profile.Type)
	return profile, nil
}

// Create registers a new follower profile with lifecycle tag New. The
// backend echoing no profile data back is treated as a data fault.
func (c *Client) Create(ctx context.Context, draft models.ProfileDraft) (*models.RemoteProfile, error) {
	blocked := false
	attrs := profileAttributes{
		TGUserID:    draft.TGUserID,
		Telegram:    draft.Telegram, // empty string when the user has no handle
		Name:        draft.Name,
		Surname:     draft.Surname,
		Type:        models.LifecycleNew,
		Blocked:     &blocked,
		LastLogin:   time.Now().Format(time.RFC3339),
		UTMSource:   draft.Attribution["utm_source"],
		UTMMedium:   draft.Attribution["utm_medium"],
		UTMCampaign: draft.Attribution["utm_campaign"],
	}
	if draft.MediaID != 0 {
		attrs.Media = draft.MediaID
	}

	slog.Debug("backend Create", "tg_user_id", draft.TGUserID, "media_set", draft.MediaID != 0)
	var out profileSingleResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/followers", map[string]any{"data": attrs}, &out); err != nil {
		return nil, fmt.Errorf("create follower: %w", err)
	}
	if out.Data == nil || out.Data.ID == 0 {
		slog.Error("backend Create response missing profile data", "tg_user_id", draft.TGUserID)
		return nil, models.ErrMissingProfile
	}

	profile := entryToProfile(*out.Data)
	slog.Info("backend follower created", "remote_id", profile.ID, "tg_user_id", draft.TGUserID)
	return profile, nil
}

// UpdateFields applies a partial update to an existing profile. It is used
// for answer submission (tag Tested) and the feed-exhaustion lifecycle
// update (tag Reader).
func (c *Client) UpdateFields(ctx context.Context, remoteID int64, fields map[string]any) error {
	slog.Debug("backend UpdateFields", "remote_id", remoteID, "field_count", len(fields))
	path := fmt.Sprintf("/api/followers/%d", remoteID)
	if err := c.doJSON(ctx, http.MethodPut, path, map[string]any{"data": fields}, nil); err != nil {
		return fmt.Errorf("update follower %d: %w", remoteID, err)
	}
	slog.Info("backend follower updated", "remote_id", remoteID)
	return nil
}

// FetchPage returns at most one content item starting at offset, or
// (nil, nil) when the feed is exhausted at that offset.
func (c *Client) FetchPage(ctx context.Context, offset int) (*models.ContentItem, error) {
	path := fmt.Sprintf("/api/contents?pagination[start]=%d&pagination[limit]=1", offset)
	slog.Debug("backend FetchPage", "offset", offset)

	var out contentListResponse
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, fmt.Errorf("fetch content page at %d: %w", offset, err)
	}
	if len(out.Data) == 0 {
		slog.Debug("backend FetchPage exhausted", "offset", offset)
		return nil, nil
	}

	attrs := out.Data[0].Attributes
	return &models.ContentItem{
		Name:        attrs.Name,
		Description: attrs.Description,
		Content:     attrs.ContentTxt,
		MediaURL:    attrs.MediaURL,
	}, nil
}

// UploadImage stores an image in the backend media library and returns its
// handle. Used only for best-effort avatar capture.
func (c *Client) UploadImage(ctx context.Context, filename string, data []byte) (int64, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("files", filename)
	if err != nil {
		return 0, fmt.Errorf("build upload form: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return 0, fmt.Errorf("write upload form: %w", err)
	}
	if err := writer.Close(); err != nil {
		return 0, fmt.Errorf("close upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/upload", &body)
	if err != nil {
		return 0, fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	c.authorize(req)

	slog.Debug("backend UploadImage", "filename", filename, "size", len(data))
	raw, err := c.send(req)
	if err != nil {
		return 0, fmt.Errorf("upload image: %w", err)
	}

	var files []uploadedFile
	if err := json.Unmarshal(raw, &files); err != nil {
		return 0, fmt.Errorf("decode upload response: %w", err)
	}
	if len(files) == 0 || files[0].ID == 0 {
		return 0, fmt.Errorf("upload response contains no file handle")
	}
	slog.Info("backend image uploaded", "media_id", files[0].ID, "filename", filename)
	return files[0].ID, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req)

	raw, err := c.send(req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func (c *Client) send(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backend request: %w", err)
	}
	raw, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("backend http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return raw, nil
}

func entryToProfile(entry profileEntry) *models.RemoteProfile {
	attrs := entry.Attributes
	return &models.RemoteProfile{
		ID:             entry.ID,
		TGUserID:       attrs.TGUserID,
		Name:           attrs.Name,
		Surname:        attrs.Surname,
		Telegram:       attrs.Telegram,
		Gender:         attrs.Gender,
		Country:        attrs.Country,
		NewsPreference: attrs.NewsPreference,
		Type:           attrs.Type,
		MediaID:        attrs.Media,
		UTMSource:      attrs.UTMSource,
		UTMMedium:      attrs.UTMMedium,
		UTMCampaign:    attrs.UTMCampaign,
	}
}
