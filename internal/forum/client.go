package forum

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jkivela/packwatch/internal/conf"
	"github.com/jkivela/packwatch/internal/errors"
	"github.com/jkivela/packwatch/internal/logging"
)

const defaultClientTimeout = 15 * time.Second

// Client implements Interface over a JSON HTTP forum gateway. The gateway
// mediates access to the actual discussion platform; this client only speaks
// the gateway's own resource model.
type Client struct {
	base       string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient builds a gateway client from the forum settings.
func NewClient(cfg *conf.ForumSettings) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.Newf("forum base URL is required").
			Component("forum").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, errors.New(err).
			Component("forum").
			Category(errors.CategoryConfiguration).
			Context("base_url", cfg.BaseURL).
			Build()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultClientTimeout
	}
	return &Client{
		base:       strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logging.ForService("forum"),
	}, nil
}

type itemPayload struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Tags      []string  `json:"tags"`
	CreatedAt time.Time `json:"created_at"`
	Archived  bool      `json:"archived"`
	Images    []string  `json:"images,omitempty"`
}

type replyPayload struct {
	Text string `json:"text"`
}

type messagePayload struct {
	Text      string    `json:"text"`
	Images    []string  `json:"images,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateItem implements Interface.
func (c *Client) CreateItem(ctx context.Context, groupID, title string, tags, images []string) (string, error) {
	in := struct {
		Title  string   `json:"title"`
		Tags   []string `json:"tags"`
		Images []string `json:"images,omitempty"`
	}{Title: title, Tags: tags, Images: images}

	var out struct {
		ID string `json:"id"`
	}
	path := fmt.Sprintf("/groups/%s/items", url.PathEscape(groupID))
	if err := c.do(ctx, http.MethodPost, path, in, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// ListItems implements Interface. Archived items are included; the
// classifier decides what to do with them.
func (c *Client) ListItems(ctx context.Context, groupID string) ([]Item, error) {
	var payload []itemPayload
	path := fmt.Sprintf("/groups/%s/items", url.PathEscape(groupID))
	if err := c.do(ctx, http.MethodGet, path, nil, &payload); err != nil {
		return nil, err
	}
	items := make([]Item, 0, len(payload))
	for i := range payload {
		items = append(items, Item{
			ID:          payload[i].ID,
			Title:       payload[i].Title,
			AppliedTags: payload[i].Tags,
			CreatedAt:   payload[i].CreatedAt,
			Archived:    payload[i].Archived,
			Images:      payload[i].Images,
		})
	}
	return items, nil
}

// SetAppliedTags implements Interface.
func (c *Client) SetAppliedTags(ctx context.Context, itemID string, tags []string) error {
	in := struct {
		Tags []string `json:"tags"`
	}{Tags: tags}
	path := fmt.Sprintf("/items/%s/tags", url.PathEscape(itemID))
	return c.do(ctx, http.MethodPut, path, in, nil)
}

// FetchReplies implements Interface.
func (c *Client) FetchReplies(ctx context.Context, itemID string, limit int) ([]Reply, error) {
	var payload []replyPayload
	path := fmt.Sprintf("/items/%s/replies?limit=%d", url.PathEscape(itemID), limit)
	if err := c.do(ctx, http.MethodGet, path, nil, &payload); err != nil {
		return nil, err
	}
	replies := make([]Reply, 0, len(payload))
	for i := range payload {
		replies = append(replies, Reply{Text: payload[i].Text})
	}
	return replies, nil
}

// DeleteItem implements Interface.
func (c *Client) DeleteItem(ctx context.Context, itemID string) error {
	return c.do(ctx, http.MethodDelete, "/items/"+url.PathEscape(itemID), nil, nil)
}

// Notify implements Interface.
func (c *Client) Notify(ctx context.Context, channelID, text string) error {
	return c.NotifyImages(ctx, channelID, text, nil)
}

// NotifyImages implements Interface.
func (c *Client) NotifyImages(ctx context.Context, channelID, text string, images []string) error {
	in := struct {
		Text   string   `json:"text"`
		Images []string `json:"images,omitempty"`
	}{Text: text, Images: images}
	path := fmt.Sprintf("/channels/%s/messages", url.PathEscape(channelID))
	return c.do(ctx, http.MethodPost, path, in, nil)
}

// RecentReports implements Interface. Messages come back newest first.
func (c *Client) RecentReports(ctx context.Context, groupID string, limit int) ([]Message, error) {
	var payload []messagePayload
	path := fmt.Sprintf("/groups/%s/messages?limit=%d", url.PathEscape(groupID), limit)
	if err := c.do(ctx, http.MethodGet, path, nil, &payload); err != nil {
		return nil, err
	}
	msgs := make([]Message, 0, len(payload))
	for i := range payload {
		msgs = append(msgs, Message{
			Text:      payload[i].Text,
			Images:    payload[i].Images,
			CreatedAt: payload[i].CreatedAt,
		})
	}
	return msgs, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return errors.New(err).
				Component("forum").
				Category(errors.CategoryForum).
				Context("path", path).
				Build()
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return errors.New(err).
			Component("forum").
			Category(errors.CategoryForum).
			Context("path", path).
			Build()
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.New(err).
			Component("forum").
			Category(errors.CategoryNetwork).
			Context("method", method).
			Context("path", path).
			Build()
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.Newf("forum gateway returned %s", resp.Status).
			Component("forum").
			Category(errors.CategoryForum).
			Context("method", method).
			Context("path", path).
			Context("status", resp.StatusCode).
			Build()
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errors.New(err).
				Component("forum").
				Category(errors.CategoryForum).
				Context("path", path).
				Build()
		}
	}
	return nil
}
