package correlation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/teamsbot/internal/bus"
)

// TrackingSender records a correlation entry for every message sent with attachments.
type TrackingSender struct {
	next  bus.Sender
	store Store
	now   Clock
}

// NewTrackingSender wraps next so that cards it sends can be correlated with submissions.
func NewTrackingSender(next bus.Sender, store Store) *TrackingSender {
	return &TrackingSender{next: next, store: store, now: time.Now}
}

// Send delivers msg and, when it carried attachments, stores the correlation record.
// A store failure is logged and does not fail the send; the message already went out.
func (t *TrackingSender) Send(ctx context.Context, msg bus.OutboundMessage) (*bus.SentMessage, error) {
	sent, err := t.next.Send(ctx, msg)
	if err != nil {
		return nil, err
	}
	if len(msg.Attachments) == 0 || sent == nil || sent.ID == "" {
		return sent, nil
	}

	roomID := sent.RoomID
	if roomID == "" {
		roomID = msg.RoomID
	}
	fields := map[string]string{
		FieldRecipient: msg.Recipient(),
		FieldRoomID:    roomID,
		FieldSentAt:    t.now().UTC().Format(time.RFC3339Nano),
	}
	if err := t.store.Put(ctx, sent.ID, fields); err != nil {
		slog.Warn("correlation: failed to record sent card", "message_id", sent.ID, "error", err)
	}
	return sent, nil
}

// Options selects and configures a Store backend.
type Options struct {
	Backend     string // memory (default), sqlite, postgres, redis
	SQLitePath  string
	PostgresDSN string
	RedisURL    string
}

// Open creates the Store selected by opts.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case "", "memory":
		return NewMemoryStore(nil), nil
	case "sqlite":
		return OpenSQLite(opts.SQLitePath, nil)
	case "postgres", "pg":
		return OpenPG(opts.PostgresDSN, nil)
	case "redis":
		return OpenRedis(ctx, opts.RedisURL)
	default:
		return nil, fmt.Errorf("unknown correlation backend %q", opts.Backend)
	}
}
