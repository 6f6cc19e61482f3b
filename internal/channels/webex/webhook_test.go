package webex

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/teamsbot/internal/bus"
)

type eventSink struct {
	mu     sync.Mutex
	events []bus.InboundEvent
}

func (s *eventSink) handle(_ context.Context, ev bus.InboundEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *eventSink) all() []bus.InboundEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]bus.InboundEvent(nil), s.events...)
}

const messagePayload = `{
  "id": "wh-1",
  "name": "teamsbot",
  "resource": "messages",
  "event": "created",
  "data": {
    "id": "msg-1",
    "roomId": "room-1",
    "roomType": "group",
    "personId": "person-1",
    "personEmail": "alice@example.com",
    "created": "2024-05-01T10:00:00.000Z"
  }
}`

const submitPayload = `{
  "resource": "attachmentActions",
  "event": "created",
  "data": {
    "id": "act-1",
    "type": "submit",
    "messageId": "msg-9",
    "personId": "person-2",
    "roomId": "room-1",
    "created": "2024-05-01T10:01:00.000Z"
  }
}`

func post(t *testing.T, h http.Handler, path, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestWebhookMessageEvent(t *testing.T) {
	sink := &eventSink{}
	wh := NewWebhook(context.Background(), WebhookOptions{}, sink.handle)
	defer wh.Close()

	rec := post(t, wh.Router(), "/", messagePayload, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	wh.Wait()
	events := sink.all()
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, bus.KindMessageCreated, ev.Kind)
	assert.Equal(t, "msg-1", ev.ID)
	assert.Equal(t, "room-1", ev.RoomID)
	assert.Equal(t, "person-1", ev.PersonID)
	assert.True(t, ev.HasCreated())
}

func TestWebhookSubmissionEvent(t *testing.T) {
	sink := &eventSink{}
	wh := NewWebhook(context.Background(), WebhookOptions{Path: "/webhook"}, sink.handle)
	defer wh.Close()

	rec := post(t, wh.Router(), "/webhook", submitPayload, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	wh.Wait()
	events := sink.all()
	require.Len(t, events, 1)
	assert.Equal(t, bus.KindAttachmentSubmitted, events[0].Kind)
	assert.Equal(t, "act-1", events[0].ID)
	assert.Equal(t, "msg-9", events[0].MessageID)
}

func TestWebhookMissingCreatedStillForwarded(t *testing.T) {
	sink := &eventSink{}
	wh := NewWebhook(context.Background(), WebhookOptions{}, sink.handle)
	defer wh.Close()

	rec := post(t, wh.Router(), "/", `{"resource":"messages","data":{"id":"msg-2","created":"yesterday"}}`, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	wh.Wait()
	events := sink.all()
	require.Len(t, events, 1)
	assert.False(t, events[0].HasCreated())
}

func TestWebhookRejectsInvalidJSON(t *testing.T) {
	sink := &eventSink{}
	wh := NewWebhook(context.Background(), WebhookOptions{}, sink.handle)
	defer wh.Close()

	rec := post(t, wh.Router(), "/", `{not json`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	wh.Wait()
	assert.Empty(t, sink.all())
}

func TestWebhookSignature(t *testing.T) {
	sink := &eventSink{}
	wh := NewWebhook(context.Background(), WebhookOptions{Secret: "shh"}, sink.handle)
	defer wh.Close()
	router := wh.Router()

	rec := post(t, router, "/", messagePayload, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = post(t, router, "/", messagePayload, http.Header{SignatureHeader: {Sign("wrong", []byte(messagePayload))}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = post(t, router, "/", messagePayload, http.Header{SignatureHeader: {Sign("shh", []byte(messagePayload))}})
	assert.Equal(t, http.StatusOK, rec.Code)

	wh.Wait()
	assert.Len(t, sink.all(), 1)
}

func TestWebhookHealthz(t *testing.T) {
	wh := NewWebhook(context.Background(), WebhookOptions{Path: "/webhook"}, func(context.Context, bus.InboundEvent) {})
	defer wh.Close()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	wh.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestWebhookRateLimit(t *testing.T) {
	wh := NewWebhook(context.Background(), WebhookOptions{RateLimitRPM: 2}, func(context.Context, bus.InboundEvent) {})
	defer wh.Close()
	router := wh.Router()

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, post(t, router, "/", messagePayload, nil).Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestWebhookBoundsConcurrency(t *testing.T) {
	release := make(chan struct{})
	var (
		mu      sync.Mutex
		running int
		peak    int
	)
	handle := func(context.Context, bus.InboundEvent) {
		mu.Lock()
		running++
		if running > peak {
			peak = running
		}
		mu.Unlock()
		<-release
		mu.Lock()
		running--
		mu.Unlock()
	}
	wh := NewWebhook(context.Background(), WebhookOptions{Workers: 2}, handle)
	router := wh.Router()

	for i := 0; i < 6; i++ {
		assert.Equal(t, http.StatusOK, post(t, router, "/", messagePayload, nil).Code)
	}
	close(release)
	wh.Wait()
	wh.Close()

	assert.LessOrEqual(t, peak, 2)
	assert.GreaterOrEqual(t, peak, 1)
}
