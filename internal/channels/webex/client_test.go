package webex

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/teamsbot/internal/bus"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(ClientOptions{BaseURL: srv.URL, Token: "secret-token", RatePerSecond: 1000, MaxRetries: 2})
}

func TestClientIdentityCached(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/people/me", r.URL.Path)
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"id":"bot-1","displayName":"teamsbot","emails":["bot@webex.bot"]}`))
	})

	for i := 0; i < 3; i++ {
		id, err := c.Identity(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "bot-1", id)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestClientMessageText(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/messages/msg-1", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":"msg-1","roomId":"room-1","text":"@teamsbot /ping"}`))
	})

	text, err := c.MessageText(context.Background(), "msg-1")
	require.NoError(t, err)
	assert.Equal(t, "@teamsbot /ping", text)
}

func TestClientNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"The requested resource could not be found."}`))
	})

	_, err := c.MessageText(context.Background(), "gone")
	assert.ErrorIs(t, err, bus.ErrNotFound)

	_, err = c.AttachmentDetail(context.Background(), "gone")
	assert.ErrorIs(t, err, bus.ErrNotFound)
}

func TestClientAttachmentDetail(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/attachment/actions/act-1", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":"act-1","type":"submit","messageId":"msg-9","personId":"p-2","roomId":"room-1",
			"inputs":{"plugin":"survey","choice":"yes"},"created":"2024-05-01T10:00:00.000Z"}`))
	})

	d, err := c.AttachmentDetail(context.Background(), "act-1")
	require.NoError(t, err)
	assert.Equal(t, "msg-9", d.MessageID)
	assert.Equal(t, "p-2", d.PersonID)
	assert.Equal(t, "yes", d.Inputs["choice"])
	assert.False(t, d.Created.IsZero())
}

func TestClientSend(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Contains(t, r.Header.Get("Content-Type"), "application/json")

		var msg bus.OutboundMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
		assert.Equal(t, "room-1", msg.RoomID)
		assert.Equal(t, "hello", msg.Text)
		require.Len(t, msg.Attachments, 1)
		assert.Equal(t, bus.CardContentType, msg.Attachments[0].ContentType)

		_, _ = w.Write([]byte(`{"id":"sent-1","roomId":"room-1","created":"2024-05-01T10:00:00.000Z"}`))
	})

	sent, err := c.Send(context.Background(), bus.OutboundMessage{
		RoomID:      "room-1",
		Text:        "hello",
		Attachments: []bus.Attachment{bus.CardAttachment(map[string]any{"type": "AdaptiveCard"})},
	})
	require.NoError(t, err)
	assert.Equal(t, "sent-1", sent.ID)
}

func TestClientSendRequiresRecipient(t *testing.T) {
	c := NewClient(ClientOptions{BaseURL: "http://127.0.0.1:1"})
	_, err := c.Send(context.Background(), bus.OutboundMessage{Text: "nowhere"})
	assert.Error(t, err)
}

func TestClientRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"id":"msg-1","text":"ok"}`))
	})

	text, err := c.MessageText(context.Background(), "msg-1")
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("TrackingID", "trk-1")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"invalid token"}`))
	})

	_, err := c.Identity(context.Background())
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "invalid token", apiErr.Message)
	assert.Equal(t, "trk-1", apiErr.TrackingID)
	assert.Equal(t, int32(1), calls.Load())
}
