// Package correlation tracks interactive messages (cards) the bot has sent so that
// submissions against them can be attributed and deduplicated.
//
// Every record lives for TTL after its last Put. An expired record is
// indistinguishable from one that never existed.
package correlation

import (
	"context"
	"errors"
	"time"
)

// TTL is the lifetime of a correlation record.
const TTL = 600 * time.Second

// Well-known record fields.
const (
	FieldRecipient   = "recipient"
	FieldRoomID      = "roomId"
	FieldSentAt      = "sentAt"
	FieldSubmittedBy = "submittedBy"
)

// ErrNotFound is returned when a record is absent or expired.
var ErrNotFound = errors.New("correlation record not found")

// Record is a hash-like correlation entry keyed by message id.
type Record struct {
	MessageID string
	Fields    map[string]string
	ExpiresAt time.Time
}

// Field returns a field value, or "" when unset.
func (r *Record) Field(name string) string {
	if r == nil {
		return ""
	}
	return r.Fields[name]
}

// SubmittedBy returns the identity of the first submitter, or "".
func (r *Record) SubmittedBy() string { return r.Field(FieldSubmittedBy) }

// Store is the correlation store contract shared by all backends.
type Store interface {
	// Put creates or replaces the record for messageID and resets its expiry to TTL from now.
	// Empty field values are not stored.
	Put(ctx context.Context, messageID string, fields map[string]string) error
	// Get returns the live record, or ErrNotFound.
	Get(ctx context.Context, messageID string) (*Record, error)
	// SetFieldIfAbsent atomically sets field when it has no value. It reports whether this
	// call performed the write. A missing or expired record yields (false, ErrNotFound).
	SetFieldIfAbsent(ctx context.Context, messageID, field, value string) (bool, error)
	// Close releases backend resources.
	Close() error
}

// Purger is implemented by stores that can drop expired records in bulk.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// Clock returns the current time. Backends that compare expiry themselves accept one so
// tests can move time forward.
type Clock func() time.Time

func cloneFields(src map[string]string) map[string]string {
	dst := make(map[string]string, len(src))
	for k, v := range src {
		if v != "" {
			dst[k] = v
		}
	}
	return dst
}
