package correlation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/teamsbot/internal/bus"
)

func TestTrackingSender_RecordsCards(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := NewMemoryStore(clock.Now)

	next := bus.SenderFunc(func(_ context.Context, msg bus.OutboundMessage) (*bus.SentMessage, error) {
		return &bus.SentMessage{ID: "sent-1", RoomID: "room-9"}, nil
	})
	ts := NewTrackingSender(next, store)
	ts.now = clock.Now

	sent, err := ts.Send(ctx, bus.OutboundMessage{
		ToPersonEmail: "alice@example.com",
		Text:          "choose",
		Attachments:   []bus.Attachment{bus.CardAttachment(map[string]any{"type": "AdaptiveCard"})},
	})
	require.NoError(t, err)
	assert.Equal(t, "sent-1", sent.ID)

	rec, err := store.Get(ctx, "sent-1")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", rec.Field(FieldRecipient))
	assert.Equal(t, "room-9", rec.Field(FieldRoomID))
	assert.Equal(t, clock.Now().Format(time.RFC3339Nano), rec.Field(FieldSentAt))
}

func TestTrackingSender_IgnoresPlainText(t *testing.T) {
	store := NewMemoryStore(nil)
	next := bus.SenderFunc(func(context.Context, bus.OutboundMessage) (*bus.SentMessage, error) {
		return &bus.SentMessage{ID: "sent-1"}, nil
	})

	_, err := NewTrackingSender(next, store).Send(context.Background(), bus.OutboundMessage{RoomID: "r", Text: "hi"})
	require.NoError(t, err)
	assert.Equal(t, 0, store.Len())
}

func TestTrackingSender_PropagatesSendError(t *testing.T) {
	store := NewMemoryStore(nil)
	boom := errors.New("boom")
	next := bus.SenderFunc(func(context.Context, bus.OutboundMessage) (*bus.SentMessage, error) {
		return nil, boom
	})

	_, err := NewTrackingSender(next, store).Send(context.Background(), bus.OutboundMessage{
		RoomID:      "r",
		Attachments: []bus.Attachment{bus.CardAttachment(nil)},
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, store.Len())
}

func TestSweeper(t *testing.T) {
	_, err := NewSweeper(NewMemoryStore(nil), "not a cron")
	assert.Error(t, err)

	clock := newFakeClock()
	store := NewMemoryStore(clock.Now)
	require.NoError(t, store.Put(context.Background(), "a", map[string]string{FieldRoomID: "r"}))
	clock.Advance(TTL)

	s, err := NewSweeper(store, "")
	require.NoError(t, err)
	assert.Equal(t, DefaultSweepCron, s.expr)

	s.sweep(context.Background())
	assert.Equal(t, 0, store.Len())
}
