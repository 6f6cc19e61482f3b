package bus

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by collaborators when the requested resource is absent.
var ErrNotFound = errors.New("not found")

// EventKind classifies an inbound webhook event.
type EventKind string

const (
	KindMessageCreated      EventKind = "message-created"
	KindAttachmentSubmitted EventKind = "attachment-submitted"
)

// CardContentType is the attachment content type for adaptive cards.
const CardContentType = "application/vnd.microsoft.card.adaptive"

// InboundEvent is a decoded webhook payload.
// For attachment submissions ID is the attachment action id; for messages it is the message id.
type InboundEvent struct {
	Kind        EventKind `json:"kind"`
	ID          string    `json:"id"`
	RoomID      string    `json:"roomId"`
	RoomType    string    `json:"roomType,omitempty"`
	PersonID    string    `json:"personId"`
	PersonEmail string    `json:"personEmail,omitempty"`
	MessageID   string    `json:"messageId,omitempty"` // submissions only
	Created     time.Time `json:"created"`
}

// HasCreated reports whether the event carries a created timestamp.
func (e InboundEvent) HasCreated() bool { return !e.Created.IsZero() }

// AttachmentDetail is the full record of a card submission.
type AttachmentDetail struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	MessageID string         `json:"messageId"`
	PersonID  string         `json:"personId"`
	RoomID    string         `json:"roomId"`
	Inputs    map[string]any `json:"inputs,omitempty"`
	Created   time.Time      `json:"created"`
}

// Attachment is an interactive artifact sent with a message.
type Attachment struct {
	ContentType string         `json:"contentType"`
	Content     map[string]any `json:"content"`
}

// CardAttachment wraps an adaptive card body.
func CardAttachment(card map[string]any) Attachment {
	return Attachment{ContentType: CardContentType, Content: card}
}

// OutboundMessage is a message to be sent to a room or a person.
// Exactly one of RoomID, ToPersonID, ToPersonEmail should be set.
type OutboundMessage struct {
	RoomID        string       `json:"roomId,omitempty"`
	ToPersonID    string       `json:"toPersonId,omitempty"`
	ToPersonEmail string       `json:"toPersonEmail,omitempty"`
	Text          string       `json:"text,omitempty"`
	Markdown      string       `json:"markdown,omitempty"`
	Attachments   []Attachment `json:"attachments,omitempty"`
}

// Recipient returns the addressed target, preferring the room.
func (m OutboundMessage) Recipient() string {
	switch {
	case m.RoomID != "":
		return m.RoomID
	case m.ToPersonID != "":
		return m.ToPersonID
	default:
		return m.ToPersonEmail
	}
}

// SentMessage is the platform's view of a message that was sent.
type SentMessage struct {
	ID       string    `json:"id"`
	RoomID   string    `json:"roomId"`
	PersonID string    `json:"personId,omitempty"`
	Created  time.Time `json:"created"`
}

// Messenger is the read side of the messaging platform used by the dispatcher.
type Messenger interface {
	// Identity returns the bot's own person id.
	Identity(ctx context.Context) (string, error)
	// MessageText returns the plain text of a message, or ErrNotFound.
	MessageText(ctx context.Context, messageID string) (string, error)
	// AttachmentDetail returns a card submission, or ErrNotFound.
	AttachmentDetail(ctx context.Context, attachmentID string) (*AttachmentDetail, error)
}

// Sender delivers outbound messages.
type Sender interface {
	Send(ctx context.Context, msg OutboundMessage) (*SentMessage, error)
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, msg OutboundMessage) (*SentMessage, error)

func (f SenderFunc) Send(ctx context.Context, msg OutboundMessage) (*SentMessage, error) {
	return f(ctx, msg)
}

// SendText sends a plain text message to a room.
func SendText(ctx context.Context, s Sender, roomID, text string) error {
	_, err := s.Send(ctx, OutboundMessage{RoomID: roomID, Text: text})
	return err
}

// Submission is a card submission handed to submission handlers.
// Linked is false when no correlation record was found for the originating message;
// such submissions are accepted but cannot be attributed to a tracked send.
type Submission struct {
	Detail    AttachmentDetail
	Linked    bool
	Recipient string
	RoomID    string
}
