package forum

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jkivela/packwatch/internal/conf"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	c, err := NewClient(&conf.ForumSettings{BaseURL: "http://forum.test/api/"})
	require.NoError(t, err)
	httpmock.ActivateNonDefault(c.httpClient)
	t.Cleanup(httpmock.DeactivateAndReset)
	return c
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	_, err := NewClient(&conf.ForumSettings{})
	assert.Error(t, err)
}

func TestCreateItem(t *testing.T) {
	c := newTestClient(t)

	httpmock.RegisterResponder(http.MethodPost, "http://forum.test/api/groups/g1/items",
		func(req *http.Request) (*http.Response, error) {
			var body struct {
				Title  string   `json:"title"`
				Tags   []string `json:"tags"`
				Images []string `json:"images"`
			}
			require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
			assert.Equal(t, "Ash 12 / 80% / 2P / 2026.03.01 12:00", body.Title)
			assert.Equal(t, []string{"tag-pending", "tag-2p"}, body.Tags)
			assert.Equal(t, []string{"img-1"}, body.Images)
			return httpmock.NewJsonResponse(http.StatusCreated, map[string]string{"id": "item-9"})
		})

	id, err := c.CreateItem(context.Background(),
		"g1", "Ash 12 / 80% / 2P / 2026.03.01 12:00",
		[]string{"tag-pending", "tag-2p"}, []string{"img-1"})
	require.NoError(t, err)
	assert.Equal(t, "item-9", id)
}

func TestListItems(t *testing.T) {
	c := newTestClient(t)

	created := time.Date(2026, 3, 1, 3, 0, 0, 0, time.UTC)
	httpmock.RegisterResponder(http.MethodGet, "http://forum.test/api/groups/g1/items",
		httpmock.NewJsonResponderOrPanic(http.StatusOK, []itemPayload{
			{ID: "item-1", Title: "t", Tags: []string{"tag-pending"}, CreatedAt: created},
		}))

	items, err := c.ListItems(context.Background(), "g1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "item-1", items[0].ID)
	assert.Equal(t, []string{"tag-pending"}, items[0].AppliedTags)
	assert.True(t, created.Equal(items[0].CreatedAt))
}

func TestFetchRepliesLimit(t *testing.T) {
	c := newTestClient(t)

	httpmock.RegisterResponder(http.MethodGet, "http://forum.test/api/items/item-1/replies",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "7", req.URL.Query().Get("limit"))
			return httpmock.NewJsonResponse(http.StatusOK, []replyPayload{{Text: "👍"}})
		})

	replies, err := c.FetchReplies(context.Background(), "item-1", 7)
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Equal(t, "👍", replies[0].Text)
}

func TestErrorStatusSurfaces(t *testing.T) {
	c := newTestClient(t)

	httpmock.RegisterResponder(http.MethodDelete, "http://forum.test/api/items/item-1",
		httpmock.NewStringResponder(http.StatusForbidden, "no"))

	err := c.DeleteItem(context.Background(), "item-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestNotifyImages(t *testing.T) {
	c := newTestClient(t)

	httpmock.RegisterResponder(http.MethodPost, "http://forum.test/api/channels/ch-1/messages",
		func(req *http.Request) (*http.Response, error) {
			var body struct {
				Text   string   `json:"text"`
				Images []string `json:"images"`
			}
			require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
			assert.Equal(t, "hello", body.Text)
			assert.Equal(t, []string{"i1", "i2"}, body.Images)
			return httpmock.NewStringResponse(http.StatusNoContent, ""), nil
		})

	require.NoError(t, c.NotifyImages(context.Background(), "ch-1", "hello", []string{"i1", "i2"}))
}
